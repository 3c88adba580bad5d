package event

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindText(t *testing.T) {
	for k := Message; k <= Focus; k++ {
		b, err := k.MarshalText()
		require.NoError(t, err)
		var back Kind
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, k, back)
	}
	var k Kind
	assert.Error(t, k.UnmarshalText([]byte("bogus")))
	assert.Equal(t, "kind(99)", Kind(99).String())
}

func TestDisplayEventJSONDropsErr(t *testing.T) {
	ev := DisplayEvent{ServerID: "s1", Kind: Error, Text: "boom", Severity: High, ErrKind: ErrTransport, Err: errors.New("boom")}
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"kind":"error"`)
	assert.NotContains(t, string(b), `"Err"`)

	var back DisplayEvent
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, Error, back.Kind)
	assert.Equal(t, High, back.Severity)
	assert.Nil(t, back.Err)
}

func TestDisplayEventString(t *testing.T) {
	assert.Equal(t, "[#go] <alice> hi", DisplayEvent{Target: "#go", Kind: Message, Nick: "alice", Text: "hi"}.String())
	assert.Equal(t, "[#go] * alice waves", DisplayEvent{Target: "#go", Kind: Message, Command: "ACTION", Nick: "alice", Text: "waves"}.String())
	assert.Equal(t, "[*] alice is now known as carol", DisplayEvent{Kind: Nick, Nick: "alice", Subject: "carol"}.String())
	assert.Equal(t, "[*] status: connected", DisplayEvent{Kind: ConnectionStatus, Status: "connected"}.String())
	assert.Equal(t, "[*] RPL_LUSERME I have 3 clients", DisplayEvent{Kind: Raw, Command: "255", Subject: "RPL_LUSERME", Text: "I have 3 clients"}.String())
	assert.Equal(t, "[*] 999 hm", DisplayEvent{Kind: Raw, Command: "999", Text: "hm"}.String())
}
