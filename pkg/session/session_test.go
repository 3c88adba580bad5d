package session

import (
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tehcyx/ircc/pkg/event"
	"github.com/tehcyx/ircc/pkg/ircmsg"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newSession(cfg Config) *Session {
	if cfg.Nick == "" {
		cfg.Nick = "alice"
	}
	cfg.ServerID = "srv"
	cfg.Version = "ircc test"
	cfg.Now = func() time.Time { return testNow }
	return New(cfg)
}

// feed dispatches every line and merges the results.
func feed(t *testing.T, s *Session, lines ...string) Result {
	t.Helper()
	var all Result
	for _, line := range lines {
		m, err := ircmsg.Parse(line)
		require.NoError(t, err, line)
		all.merge(s.Dispatch(m))
	}
	return all
}

func outbound(r Result) []string {
	var out []string
	for _, m := range r.Outbound {
		out = append(out, m.String())
	}
	return out
}

func targets(r Result, kind event.Kind) []string {
	var out []string
	for _, ev := range r.Events {
		if ev.Kind == kind {
			out = append(out, ev.Target)
		}
	}
	return out
}

func registered(t *testing.T, cfg Config) *Session {
	s := newSession(cfg)
	feed(t, s, ":irc.example.net 001 alice :Welcome")
	return s
}

func TestNamesBuildsChannel(t *testing.T) {
	s := newSession(Config{})
	r := feed(t, s,
		":irc.example.net 001 alice :Welcome",
		":irc.example.net 353 alice = #chat :alice bob",
		":irc.example.net 366 alice #chat :End of /NAMES list.",
	)
	require.NoError(t, r.Err)

	ch, ok := s.Channel("#chat")
	require.True(t, ok)
	assert.Equal(t, []string{"alice", "bob"}, ch.Members)
	assert.NoError(t, s.Check())

	names := r.Events[len(r.Events)-1]
	assert.Equal(t, event.Names, names.Kind)
	assert.Equal(t, "#chat", names.Target)
	assert.Equal(t, []string{"alice", "bob"}, names.Members)
}

func TestNamesReplacesMembers(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s,
		":alice!a@h JOIN #chat",
		":bob!b@h JOIN #chat",
		":irc.example.net 353 alice = #chat :@alice +carol",
		":irc.example.net 353 alice = #chat :dave",
		":irc.example.net 366 alice #chat :End",
	)
	ch, _ := s.Channel("#chat")
	assert.Equal(t, []string{"@alice", "+carol", "dave"}, ch.Members)
	assert.NoError(t, s.Check())
}

func TestNamesForOtherChannel(t *testing.T) {
	s := registered(t, Config{})
	r := feed(t, s,
		":irc.example.net 353 alice = #elsewhere :@bob carol",
		":irc.example.net 366 alice #elsewhere :End",
	)
	require.Len(t, r.Events, 1)
	assert.Equal(t, "", r.Events[0].Target)
	assert.Equal(t, "#elsewhere", r.Events[0].Subject)
	assert.Equal(t, []string{"@bob", "carol"}, r.Events[0].Members)
	_, ok := s.Channel("#elsewhere")
	assert.False(t, ok)
}

func TestSelfNickChange(t *testing.T) {
	s := newSession(Config{})
	feed(t, s,
		":irc.example.net 001 alice :Welcome",
		":irc.example.net 353 alice = #chat :alice bob",
		":irc.example.net 366 alice #chat :End",
	)
	r := feed(t, s, ":alice!a@h NICK carol")
	require.NoError(t, r.Err)

	assert.Equal(t, "carol", s.Nick())
	assert.Equal(t, []string{"", "#chat"}, targets(r, event.Nick))
	ch, _ := s.Channel("#chat")
	assert.Equal(t, []string{"bob", "carol"}, ch.Members)
	assert.NoError(t, s.Check())
}

func TestRenameIsAtomic(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s,
		":alice!a@h JOIN #a",
		":alice!a@h JOIN #b",
		":alice!a@h JOIN #c",
		":bob!b@h JOIN #a",
		":bob!b@h JOIN #b",
	)
	s.OpenQuery("bob")

	r := feed(t, s, ":bob!b@h NICK robert")
	require.NoError(t, r.Err)
	assert.Equal(t, []string{"#a", "#b", "robert"}, targets(r, event.Nick))

	for _, name := range []string{"#a", "#b"} {
		ch, _ := s.Channel(name)
		assert.Contains(t, ch.Members, "robert")
		assert.NotContains(t, ch.Members, "bob")
	}
	ch, _ := s.Channel("#c")
	assert.Equal(t, []string{"alice"}, ch.Members)
	assert.Equal(t, []string{"robert"}, s.Snapshot().Queries)
	assert.NoError(t, s.Check())
}

func TestRenameCaseOnly(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s, ":alice!a@h JOIN #a", ":bob!b@h JOIN #a", ":bob!b@h NICK Bob")

	ch, _ := s.Channel("#a")
	assert.Equal(t, []string{"alice", "Bob"}, ch.Members)
	assert.NoError(t, s.Check())
}

func TestNickCannotTakeOurs(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s, ":alice!a@h JOIN #a", ":bob!b@h JOIN #a")

	r := feed(t, s, ":bob!b@h NICK ALICE")
	assert.ErrorIs(t, r.Err, ErrProtocolViolation)
	assert.Empty(t, r.Events)
	ch, _ := s.Channel("#a")
	assert.Equal(t, []string{"alice", "bob"}, ch.Members)
}

// TestMembershipInvariant drives random membership traffic against a simple
// model of who is where.
func TestMembershipInvariant(t *testing.T) {
	s := registered(t, Config{})
	channels := []string{"#a", "#b", "#c"}
	nicks := []string{"bob", "carol", "dave", "eve", "frank", "grace"}

	model := map[string]map[string]bool{}
	for _, c := range channels {
		feed(t, s, ":alice!a@h JOIN "+c)
		model[c] = map[string]bool{"alice": true}
	}

	rng := rand.New(rand.NewSource(1))
	pick := func(list []string) string { return list[rng.Intn(len(list))] }

	for step := 0; step < 500; step++ {
		nick, c := pick(nicks), pick(channels)
		var line string
		switch rng.Intn(5) {
		case 0:
			line = ":" + nick + "!u@h JOIN " + c
			model[c][nick] = true
		case 1:
			line = ":" + nick + "!u@h PART " + c + " :bye"
			delete(model[c], nick)
		case 2:
			line = ":" + nick + "!u@h QUIT :gone"
			for _, members := range model {
				delete(members, nick)
			}
		case 3:
			to := pick(nicks)
			if to == nick {
				continue
			}
			line = ":" + nick + "!u@h NICK " + to
			for _, members := range model {
				was := members[nick]
				delete(members, to)
				delete(members, nick)
				if was {
					members[to] = true
				}
			}
		case 4:
			line = ":alice!a@h KICK " + c + " " + nick + " :out"
			delete(model[c], nick)
		}

		feed(t, s, line)
		require.NoError(t, s.Check(), "step %d: %s", step, line)

		for _, name := range channels {
			ch, ok := s.Channel(name)
			require.True(t, ok)
			var want []string
			for n := range model[name] {
				want = append(want, n)
			}
			sort.Strings(want)
			got := append([]string(nil), ch.Members...)
			sort.Strings(got)
			require.Equal(t, want, got, "step %d: %s", step, line)
		}
	}
}

func TestNickRetryLimit(t *testing.T) {
	s := newSession(Config{AltNicks: []string{"alice2"}, MaxNickRetries: 3})

	r := feed(t, s, ":irc.example.net 433 * alice :Nickname is already in use")
	assert.Equal(t, []string{"NICK alice2"}, outbound(r))
	assert.Equal(t, "alice2", s.Nick())

	r = feed(t, s, ":irc.example.net 433 * alice2 :Nickname is already in use")
	assert.Equal(t, []string{"NICK alice_"}, outbound(r))

	r = feed(t, s, ":irc.example.net 433 * alice_ :Nickname is already in use")
	assert.Equal(t, []string{"NICK alice__"}, outbound(r))

	r = feed(t, s, ":irc.example.net 433 * alice__ :Nickname is already in use")
	assert.Empty(t, r.Outbound)
	var failure *RegistrationFailure
	require.True(t, errors.As(r.Err, &failure))
	assert.Equal(t, "433", failure.Code)
}

func TestAlternateNickRespectsNickLen(t *testing.T) {
	s := newSession(Config{Nick: "abcdefgh"})
	feed(t, s, ":irc.example.net 005 * NICKLEN=8 :are supported by this server")

	r := feed(t, s, ":irc.example.net 433 * abcdefgh :in use")
	assert.Equal(t, []string{"NICK abcdefg_"}, outbound(r))
}

func TestNickInUseAfterRegistration(t *testing.T) {
	s := registered(t, Config{})
	s.RequestNick("bob")

	r := feed(t, s, ":irc.example.net 433 alice bob :Nickname is already in use")
	assert.Empty(t, r.Outbound)
	assert.NoError(t, r.Err)
	assert.Equal(t, "alice", s.Nick())
	require.Len(t, r.Events, 1)
	assert.Equal(t, event.Error, r.Events[0].Kind)
	assert.Equal(t, event.Low, r.Events[0].Severity)
}

func TestFatalRegistration(t *testing.T) {
	s := newSession(Config{})
	r := feed(t, s, ":irc.example.net 464 * :Password incorrect")

	var failure *RegistrationFailure
	require.True(t, errors.As(r.Err, &failure))
	assert.Equal(t, "Password incorrect", failure.Reason)
}

func TestWelcomeJoinsAutojoinAndRejoin(t *testing.T) {
	s := registered(t, Config{Autojoin: []string{"#a"}})
	feed(t, s, ":alice!a@h JOIN #a", ":alice!a@h JOIN #b")
	s.OpenQuery("bob")

	s.Reset()
	snap := s.Snapshot()
	assert.False(t, snap.Registered)
	assert.Empty(t, snap.Channels)
	assert.Equal(t, []string{"bob"}, snap.Queries)

	r := feed(t, s, ":irc.example.net 001 alice :Welcome back")
	assert.ElementsMatch(t, []string{"JOIN #a", "JOIN #b"}, outbound(r))

	r = feed(t, s, ":irc.example.net 001 alice :Welcome again")
	assert.Equal(t, []string{"JOIN #a"}, outbound(r))
}

func TestPartForgetsRejoin(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s, ":alice!a@h JOIN #a", ":alice!a@h JOIN #b")
	s.Reset()
	feed(t, s, ":alice!a@h JOIN #a")
	feed(t, s, ":alice!a@h PART #a")
	s.Reset()

	r := feed(t, s, ":irc.example.net 001 alice :Welcome")
	assert.Equal(t, []string{"JOIN #b"}, outbound(r))
}

func TestDestroy(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s, ":alice!a@h JOIN #a")
	s.OpenQuery("bob")

	s.Destroy()
	snap := s.Snapshot()
	assert.Empty(t, snap.Channels)
	assert.Empty(t, snap.Queries)

	r := feed(t, s, ":irc.example.net 001 alice :Welcome")
	assert.Empty(t, r.Outbound)
}

func TestCapNegotiation(t *testing.T) {
	s := newSession(Config{})

	r := feed(t, s, ":irc.example.net CAP * LS * :multi-prefix sasl=PLAIN")
	assert.Empty(t, r.Outbound)

	r = feed(t, s, ":irc.example.net CAP * LS :server-time echo-message")
	assert.Equal(t, []string{"CAP REQ :echo-message multi-prefix server-time"}, outbound(r))

	r = feed(t, s, ":irc.example.net CAP * ACK :echo-message multi-prefix server-time")
	assert.Equal(t, []string{"CAP END"}, outbound(r))
	assert.True(t, s.HasCapability("echo-message"))
	assert.False(t, s.HasCapability("sasl"))

	feed(t, s, ":irc.example.net 001 alice :Welcome")
	feed(t, s, ":irc.example.net CAP alice DEL :echo-message")
	assert.False(t, s.HasCapability("echo-message"))
	assert.Equal(t, []string{"multi-prefix", "server-time"}, s.Snapshot().Capabilities)

	r = feed(t, s, ":irc.example.net CAP alice NEW :away-notify")
	assert.Equal(t, []string{"CAP REQ away-notify"}, outbound(r))
}

func TestCapNothingWanted(t *testing.T) {
	s := newSession(Config{})
	r := feed(t, s, ":irc.example.net CAP * LS :sasl")
	assert.Equal(t, []string{"CAP END"}, outbound(r))

	s = newSession(Config{})
	feed(t, s, ":irc.example.net CAP * LS :batch")
	r = feed(t, s, ":irc.example.net CAP * NAK :batch")
	assert.Equal(t, []string{"CAP END"}, outbound(r))
}

func TestBatchHoldsMessages(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s, ":alice!a@h JOIN #chat", ":bob!b@h JOIN #chat")

	r := feed(t, s,
		":irc.example.net BATCH +b1 netsplit irc.a.net irc.b.net",
		"@batch=b1 :bob!b@h QUIT :irc.a.net irc.b.net",
	)
	assert.Empty(t, r.Events)
	ch, _ := s.Channel("#chat")
	assert.Contains(t, ch.Members, "bob")

	r = feed(t, s, ":irc.example.net BATCH -b1")
	assert.Equal(t, []string{"#chat"}, targets(r, event.Quit))
	ch, _ = s.Channel("#chat")
	assert.Equal(t, []string{"alice"}, ch.Members)
}

func TestNestedBatch(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s, ":alice!a@h JOIN #chat")

	r := feed(t, s,
		":irc.example.net BATCH +outer example",
		"@batch=outer :irc.example.net BATCH +inner example",
		"@batch=inner :bob!b@h PRIVMSG #chat :one",
		":irc.example.net BATCH -inner",
	)
	assert.Empty(t, r.Events)

	r = feed(t, s, ":irc.example.net BATCH -outer")
	require.Len(t, r.Events, 1)
	assert.Equal(t, "one", r.Events[0].Text)
}

func TestBatchUnknownEnd(t *testing.T) {
	s := registered(t, Config{})
	r := feed(t, s, ":irc.example.net BATCH -nope")
	assert.ErrorIs(t, r.Err, ErrProtocolViolation)
}

func TestChannelModes(t *testing.T) {
	s := registered(t, Config{})
	r := feed(t, s, ":alice!a@h JOIN #chat")
	assert.Equal(t, []string{"MODE #chat"}, outbound(r))

	feed(t, s,
		":bob!b@h JOIN #chat",
		":carol!c@h JOIN #chat",
		":irc.example.net MODE #chat +ov bob carol",
		":irc.example.net MODE #chat +ntk secret",
	)
	ch, _ := s.Channel("#chat")
	assert.Equal(t, []string{"@bob", "+carol", "alice"}, ch.Members)
	assert.Equal(t, "+knt secret", ch.Modes)

	feed(t, s, ":irc.example.net MODE #chat -o+b bob *!*@spam")
	ch, _ = s.Channel("#chat")
	assert.Equal(t, []string{"alice", "bob"}, ch.Members[1:])
	assert.Equal(t, "+carol", ch.Members[0])

	feed(t, s, ":irc.example.net 324 alice #chat +nl 20")
	ch, _ = s.Channel("#chat")
	assert.Equal(t, "+ln 20", ch.Modes)
}

func TestMultiPrefixKeepsRankOrder(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s,
		":alice!a@h JOIN #chat",
		":bob!b@h JOIN #chat",
		":irc.example.net MODE #chat +v bob",
		":irc.example.net MODE #chat +o bob",
		":irc.example.net MODE #chat -o bob",
	)
	ch, _ := s.Channel("#chat")
	assert.Equal(t, []string{"+bob", "alice"}, ch.Members)
}

func TestModeUnknownChannel(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s, ":alice!a@h JOIN #chat")
	before := s.Snapshot()

	r := feed(t, s, ":irc.example.net MODE #nope +n")
	assert.ErrorIs(t, r.Err, ErrProtocolViolation)
	assert.Empty(t, r.Events)
	assert.Equal(t, before, s.Snapshot())
}

func TestUserModes(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s, ":alice MODE alice :+iw", ":alice MODE alice :-w+x")
	assert.Equal(t, "ix", s.Snapshot().UserModes)

	r := feed(t, s, ":irc.example.net MODE bob +i")
	assert.ErrorIs(t, r.Err, ErrProtocolViolation)
}

func TestPingPong(t *testing.T) {
	s := newSession(Config{})
	r := feed(t, s, "PING :abc123")
	assert.Equal(t, []string{"PONG abc123"}, outbound(r))
	assert.Empty(t, r.Events)
}

func TestMotd(t *testing.T) {
	s := registered(t, Config{})
	r := feed(t, s,
		":irc.example.net 375 alice :- irc.example.net Message of the day -",
		":irc.example.net 372 alice :- hello",
		":irc.example.net 372 alice :- world",
		":irc.example.net 376 alice :End of /MOTD command.",
	)
	require.Len(t, r.Events, 1)
	assert.Equal(t, "MOTD", r.Events[0].Command)
	assert.Equal(t, "hello\nworld", r.Events[0].Text)
}

func TestISupport(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s, ":irc.example.net 005 alice PREFIX=(qov)~@+ CHANTYPES=#! CASEMAPPING=ascii NETWORK=Example :are supported by this server")

	assert.True(t, s.IsChannel("!abc"))
	assert.False(t, s.IsChannel("&abc"))
	assert.Equal(t, "Example", s.Snapshot().Network)

	feed(t, s,
		":alice!a@h JOIN #chat",
		":bob!b@h JOIN #chat",
		":irc.example.net MODE #chat +q bob",
	)
	ch, _ := s.Channel("#chat")
	assert.Equal(t, []string{"~bob", "alice"}, ch.Members)

	feed(t, s, ":irc.example.net 005 alice -NETWORK :are supported")
	assert.Equal(t, "", s.Snapshot().Network)
}

func TestFold(t *testing.T) {
	assert.Equal(t, "{}|^", Fold(CaseMappingRFC1459, "[]\\~"))
	assert.Equal(t, "{}|~", Fold(CaseMappingStrictRFC1459, "[]\\~"))
	assert.Equal(t, "[]\\~", Fold(CaseMappingASCII, "[]\\~"))
	assert.Equal(t, "nick", Fold(CaseMappingASCII, "NiCK"))

	s := newSession(Config{})
	assert.Equal(t, "bob{x}", s.Fold("Bob[X]"))
	feed(t, s, ":irc.test 005 alice CASEMAPPING=ascii :are supported")
	assert.Equal(t, "bob[x]", s.Fold("Bob[X]"))
}

func TestPrivateMessages(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s, ":alice!a@h JOIN #chat", ":bob!b@h JOIN #chat")

	r := feed(t, s, ":bob!b@h PRIVMSG #chat :hello")
	require.Len(t, r.Events, 1)
	assert.Equal(t, "#chat", r.Events[0].Target)
	assert.Equal(t, "bob", r.Events[0].Nick)
	assert.Equal(t, "hello", r.Events[0].Text)

	r = feed(t, s, ":bob!b@h PRIVMSG @#CHAT :ops only")
	assert.Equal(t, "#chat", r.Events[0].Target)

	r = feed(t, s, ":carol!c@h NOTICE alice :psst")
	assert.Equal(t, "", r.Events[0].Target)
	assert.Empty(t, s.Snapshot().Queries)

	r = feed(t, s, ":bob!b@h PRIVMSG alice :hi there")
	assert.Equal(t, "bob", r.Events[0].Target)
	assert.Equal(t, []string{"bob"}, s.Snapshot().Queries)

	r = feed(t, s, ":BOB!b@h NOTICE alice :again")
	assert.Equal(t, "bob", r.Events[0].Target)

	r = feed(t, s, ":alice!a@h PRIVMSG dave :echoed")
	assert.Equal(t, "dave", r.Events[0].Target)

	r = feed(t, s, ":irc.example.net NOTICE * :Looking up your hostname")
	assert.Equal(t, "", r.Events[0].Target)
}

func TestAction(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s, ":alice!a@h JOIN #chat")

	r := feed(t, s, ":bob!b@h PRIVMSG #chat :\x01ACTION waves\x01")
	require.Len(t, r.Events, 1)
	assert.Equal(t, "ACTION", r.Events[0].Command)
	assert.Equal(t, "waves", r.Events[0].Text)
	assert.Empty(t, r.Outbound)
}

func TestCTCPReplies(t *testing.T) {
	s := registered(t, Config{})

	r := feed(t, s, ":bob!b@h PRIVMSG alice :\x01VERSION\x01")
	require.Len(t, r.Outbound, 1)
	assert.Equal(t, []string{"bob", ircmsg.CTCP("VERSION", "ircc test")}, r.Outbound[0].Params)
	assert.Equal(t, ircmsg.NoticeCmd, r.Outbound[0].Command)

	r = feed(t, s, ":bob!b@h PRIVMSG alice :\x01PING 12345\x01")
	assert.Equal(t, ircmsg.CTCP("PING", "12345"), r.Outbound[0].Params[1])

	r = feed(t, s, ":bob!b@h NOTICE alice :\x01VERSION other 1.0\x01")
	assert.Empty(t, r.Outbound)
	assert.Equal(t, "CTCP VERSION reply from bob: other 1.0", r.Events[0].Text)

	r = feed(t, s, ":bob!b@h PRIVMSG alice :\x01FINGER\x01")
	assert.Empty(t, r.Outbound)
	assert.Empty(t, s.Snapshot().Queries)
}

func TestServerTime(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s, ":alice!a@h JOIN #chat")

	r := feed(t, s, "@time=2023-01-02T03:04:05.000Z :bob!b@h PRIVMSG #chat :late")
	assert.True(t, time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC).Equal(r.Events[0].Time))

	r = feed(t, s, ":bob!b@h PRIVMSG #chat :now")
	assert.Equal(t, testNow, r.Events[0].Time)
}

func TestTyping(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s, ":alice!a@h JOIN #chat")

	r := feed(t, s, "@+typing=active :bob!b@h TAGMSG #chat")
	require.Len(t, r.Events, 1)
	assert.Equal(t, event.Typing, r.Events[0].Kind)
	assert.Equal(t, "active", r.Events[0].Status)

	r = feed(t, s, "@+typing=paused :bob!b@h TAGMSG alice")
	assert.Empty(t, r.Events)
}

func TestKickSelf(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s, ":alice!a@h JOIN #chat", ":bob!b@h JOIN #chat")

	r := feed(t, s, ":bob!b@h KICK #chat alice :behave")
	require.Len(t, r.Events, 1)
	assert.Equal(t, event.Kick, r.Events[0].Kind)
	assert.Equal(t, "alice", r.Events[0].Subject)
	assert.Equal(t, "behave", r.Events[0].Text)

	_, ok := s.Channel("#chat")
	assert.False(t, ok)
	assert.NoError(t, s.Check())
}

func TestJoinUnknownChannel(t *testing.T) {
	s := registered(t, Config{})
	r := feed(t, s, ":bob!b@h JOIN #nope")
	assert.ErrorIs(t, r.Err, ErrProtocolViolation)
	assert.Empty(t, r.Events)
}

func TestTopic(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s,
		":alice!a@h JOIN #chat",
		":irc.example.net 332 alice #chat :hello world",
		":irc.example.net 333 alice #chat bob!b@h 1700000000",
	)
	ch, _ := s.Channel("#chat")
	assert.Equal(t, "hello world", ch.Topic)
	assert.Equal(t, "bob", ch.TopicBy)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ch.TopicAt)

	r := feed(t, s, ":carol!c@h TOPIC #chat :new topic")
	assert.Equal(t, []string{"#chat"}, targets(r, event.Topic))
	ch, _ = s.Channel("#chat")
	assert.Equal(t, "new topic", ch.Topic)
	assert.Equal(t, "carol", ch.TopicBy)
	assert.Equal(t, testNow, ch.TopicAt)
}

func TestAway(t *testing.T) {
	s := registered(t, Config{})
	r := feed(t, s, ":irc.example.net 306 alice :You have been marked as being away")
	assert.True(t, s.Snapshot().Away)
	assert.Equal(t, "away", r.Events[0].Status)

	feed(t, s, ":irc.example.net 305 alice :You are no longer marked as being away")
	assert.False(t, s.Snapshot().Away)

	s.OpenQuery("bob")
	r = feed(t, s, ":irc.example.net 301 alice bob :lunch")
	assert.Equal(t, "bob", r.Events[0].Target)
	assert.Equal(t, "lunch", r.Events[0].Text)
}

func TestAwayNotify(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s, ":alice!a@h JOIN #chat", ":bob!b@h JOIN #chat")
	s.OpenQuery("bob")

	r := feed(t, s, ":bob!b@h AWAY :lunch")
	require.Len(t, r.Events, 1)
	assert.Equal(t, event.Away, r.Events[0].Kind)
	assert.Equal(t, "away", r.Events[0].Status)
	assert.Equal(t, "lunch", r.Events[0].Text)

	r = feed(t, s, ":bob!b@h AWAY :")
	require.Len(t, r.Events, 1)
	assert.Equal(t, "back", r.Events[0].Status)

	feed(t, s, ":bob!b@h AWAY :lunch")
	r = feed(t, s, ":bob!b@h AWAY")
	require.Len(t, r.Events, 1)
	assert.Equal(t, "back", r.Events[0].Status)
}

func TestQuitKeepsQuery(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s, ":alice!a@h JOIN #chat", ":bob!b@h JOIN #chat")
	s.OpenQuery("bob")

	r := feed(t, s, ":bob!b@h QUIT :bye")
	assert.Equal(t, []string{"#chat", "bob"}, targets(r, event.Quit))
	assert.Equal(t, []string{"bob"}, s.Snapshot().Queries)
	assert.True(t, s.CloseQuery("bob"))
	assert.False(t, s.CloseQuery("bob"))
}

func TestUnknownNumerics(t *testing.T) {
	s := registered(t, Config{})

	r := feed(t, s, ":irc.example.net 401 alice nobody :No such nick/channel")
	require.Len(t, r.Events, 1)
	assert.Equal(t, event.Error, r.Events[0].Kind)
	assert.Equal(t, event.ErrServer, r.Events[0].ErrKind)
	assert.Equal(t, "nobody No such nick/channel", r.Events[0].Text)
	assert.Equal(t, "ERR_NOSUCHNICK", r.Events[0].Subject)

	r = feed(t, s, ":irc.example.net 999 alice :something new")
	assert.Equal(t, event.Raw, r.Events[0].Kind)
	assert.Empty(t, r.Events[0].Subject)

	r = feed(t, s, ":irc.example.net 002 alice :Your host is irc.example.net")
	assert.Equal(t, event.Raw, r.Events[0].Kind)
	assert.Equal(t, "RPL_YOURHOST", r.Events[0].Subject)
	assert.Equal(t, "[*] RPL_YOURHOST Your host is irc.example.net", r.Events[0].String())

	r = feed(t, s, "ERROR :Closing link")
	assert.Equal(t, event.High, r.Events[0].Severity)
}

func TestSnapshotOrdering(t *testing.T) {
	s := registered(t, Config{})
	feed(t, s, ":alice!a@h JOIN #zeta", ":alice!a@h JOIN #Alpha", ":alice!a@h JOIN #beta")
	s.OpenQuery("zed")
	s.OpenQuery("Amy")

	snap := s.Snapshot()
	var names []string
	for _, ch := range snap.Channels {
		names = append(names, ch.Name)
	}
	assert.Equal(t, []string{"#Alpha", "#beta", "#zeta"}, names)
	assert.Equal(t, []string{"Amy", "zed"}, snap.Queries)
	assert.Equal(t, "srv", snap.ServerID)
	assert.True(t, snap.Registered)
}
