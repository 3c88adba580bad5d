package history

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tehcyx/ircc/pkg/event"
)

func msg(server, target, text string) event.DisplayEvent {
	return event.DisplayEvent{
		ServerID: server,
		Target:   target,
		Kind:     event.Message,
		Time:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Nick:     "bob",
		Text:     text,
	}
}

func texts(events []event.DisplayEvent) []string {
	var out []string
	for _, ev := range events {
		out = append(out, ev.Text)
	}
	return out
}

// exerciseStore runs the behavior every Store must share.
func exerciseStore(t *testing.T, s Store, size int) {
	ctx := context.Background()

	for i := 0; i < size+3; i++ {
		require.NoError(t, s.Append(ctx, msg("a", "#chat", fmt.Sprint(i))))
	}
	require.NoError(t, s.Append(ctx, msg("a", "", "server")))
	require.NoError(t, s.Append(ctx, msg("b", "#chat", "other")))

	all, err := s.Recent(ctx, "a", "#chat", 0)
	require.NoError(t, err)
	require.Len(t, all, size)
	assert.Equal(t, "3", all[0].Text)
	assert.Equal(t, fmt.Sprint(size+2), all[size-1].Text)

	last, err := s.Recent(ctx, "a", "#CHAT", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{fmt.Sprint(size + 1), fmt.Sprint(size + 2)}, texts(last))

	srv, err := s.Recent(ctx, "a", "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"server"}, texts(srv))
	assert.Equal(t, event.Message, srv[0].Kind)
	assert.True(t, srv[0].Time.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	none, err := s.Recent(ctx, "a", "#nope", 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, s.Forget(ctx, "a"))
	gone, err := s.Recent(ctx, "a", "#chat", 0)
	require.NoError(t, err)
	assert.Empty(t, gone)

	kept, err := s.Recent(ctx, "b", "#chat", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, texts(kept))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore(5)
	exerciseStore(t, s, 5)
	assert.NoError(t, s.Close())
}

func TestMemoryStoreNotFull(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, msg("a", "bob", "one")))
	require.NoError(t, s.Append(ctx, msg("a", "bob", "two")))

	got, err := s.Recent(ctx, "a", "bob", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, texts(got))
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("IRCC_TEST_REDIS_URL")
	if url == "" {
		t.Skip("IRCC_TEST_REDIS_URL not set")
	}

	s, err := NewRedisStore(url, 5)
	require.NoError(t, err)
	defer s.Close()
	s.WithPrefix("ircc-test-" + uuid.NewString())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events, err := s.Subscribe(ctx)
	require.NoError(t, err)

	exerciseStore(t, s, 5)
	require.NoError(t, s.Forget(ctx, "b"))

	select {
	case ev := <-events:
		assert.Equal(t, "a", ev.ServerID)
		assert.Equal(t, "0", ev.Text)
	case <-ctx.Done():
		t.Fatal("no event published")
	}
}

func TestRedisStoreBadURL(t *testing.T) {
	_, err := NewRedisStore("not a url", 5)
	assert.Error(t, err)
}
