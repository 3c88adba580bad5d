package session

import (
	"strings"

	"github.com/tehcyx/ircc/pkg/event"
	"github.com/tehcyx/ircc/pkg/ircmsg"
)

// handleAway tracks away-notify.
func handleAway(s *Session, m *ircmsg.Message, r *Result) {
	src := m.Source()
	key := s.fold(src.Name)
	u, ok := s.users[key]
	if !ok {
		return
	}
	u.AwayMessage = m.Param(0)
	u.Away = u.AwayMessage != ""

	if q, open := s.queries[key]; open {
		ev := s.event(m, event.Away, q)
		ev.Text = u.AwayMessage
		ev.Status = awayStatus(u.Away)
		r.emit(ev)
	}
}

func handleRplAway(s *Session, m *ircmsg.Message, r *Result) {
	nick, text := m.Param(1), m.Param(2)
	key := s.fold(nick)
	if u, ok := s.users[key]; ok {
		u.Away = true
		u.AwayMessage = text
	}

	target := ""
	if q, open := s.queries[key]; open {
		target = q
	}
	ev := s.event(m, event.Away, target)
	ev.Nick = nick
	ev.Text = text
	ev.Status = awayStatus(true)
	r.emit(ev)
}

func handleSelfAway(away bool) handler {
	return func(s *Session, m *ircmsg.Message, r *Result) {
		s.away = away
		if u, ok := s.users[s.fold(s.nick)]; ok {
			u.Away = away
		}
		ev := s.event(m, event.Away, "")
		ev.Nick = s.nick
		ev.Text = m.Trailing()
		ev.Status = awayStatus(away)
		r.emit(ev)
	}
}

// handleWhoReply refreshes user details from RPL_WHOREPLY:
// <me> <channel> <user> <host> <server> <nick> <flags> :<hops> <realname>
func handleWhoReply(s *Session, m *ircmsg.Message, r *Result) {
	if len(m.Params) < 7 {
		r.Err = violation("short WHO reply")
		return
	}
	if u, ok := s.users[s.fold(m.Params[5])]; ok {
		u.Username = m.Params[2]
		u.Hostname = m.Params[3]
		u.Away = strings.HasPrefix(m.Params[6], "G")
		if !u.Away {
			u.AwayMessage = ""
		}
	}
	handleServerText(s, m, r)
}

func awayStatus(away bool) string {
	if away {
		return "away"
	}
	return "back"
}
