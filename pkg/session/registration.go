package session

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tehcyx/ircc/pkg/event"
	"github.com/tehcyx/ircc/pkg/ircmsg"
)

func handleWelcome(s *Session, m *ircmsg.Message, r *Result) {
	s.registered = true
	if nick := m.Param(0); nick != "" {
		s.nick = nick
	}
	s.pendingNick = ""
	s.nickAttempts = 0

	handleServerText(s, m, r)

	seen := map[string]bool{}
	for _, list := range [][]string{s.cfg.Autojoin, s.rejoin} {
		for _, name := range list {
			key := s.fold(name)
			if name == "" || seen[key] {
				continue
			}
			seen[key] = true
			r.send(ircmsg.New(ircmsg.JoinCmd, name))
		}
	}
	s.rejoin = nil
}

func handleISupport(s *Session, m *ircmsg.Message, r *Result) {
	if len(m.Params) < 3 {
		return
	}
	for _, token := range m.Params[1 : len(m.Params)-1] {
		s.isupport.apply(token)
	}
	handleServerText(s, m, r)
}

func handleUModeIs(s *Session, m *ircmsg.Message, r *Result) {
	if len(m.Params) < 2 {
		return
	}
	s.userModes = m.Param(1)
	ev := s.event(m, event.Mode, "")
	ev.Subject = s.nick
	ev.Modes = m.Params[1:]
	r.emit(ev)
}

func handleMotdStart(s *Session, m *ircmsg.Message, r *Result) {
	s.motd = s.motd[:0]
}

func handleMotd(s *Session, m *ircmsg.Message, r *Result) {
	s.motd = append(s.motd, strings.TrimPrefix(m.Trailing(), "- "))
}

func handleEndOfMotd(s *Session, m *ircmsg.Message, r *Result) {
	ev := s.event(m, event.Raw, "")
	ev.Command = "MOTD"
	ev.Text = strings.Join(s.motd, "\n")
	s.motd = nil
	r.emit(ev)
}

// handleNickRejected deals with 432/433/436. Before registration it walks
// the alternate nicks and then appends underscores, giving up after
// MaxNickRetries. Afterwards it reports the rejected change and keeps the
// current nick.
func handleNickRejected(s *Session, m *ircmsg.Message, r *Result) {
	rejected := m.Param(1)

	if s.registered {
		ev := s.event(m, event.Error, "")
		ev.Command = m.Command
		ev.Subject = rejected
		ev.Text = fmt.Sprintf("cannot change nick to %s: %s", rejected, m.Trailing())
		ev.Severity = event.Low
		ev.ErrKind = event.ErrServer
		r.emit(ev)
		s.pendingNick = ""
		return
	}

	s.nickAttempts++
	if s.nickAttempts > s.cfg.MaxNickRetries {
		r.Err = &RegistrationFailure{
			Code:   m.Command,
			Reason: fmt.Sprintf("no usable nickname after %d attempts, last tried %s", s.cfg.MaxNickRetries, rejected),
		}
		return
	}

	next := s.alternateNick(s.nickAttempts)
	s.nick = next
	r.send(ircmsg.New(ircmsg.NickCmd, next))

	ev := s.event(m, event.Raw, "")
	ev.Command = m.Command
	ev.Text = fmt.Sprintf("nick %s unavailable, trying %s", rejected, next)
	r.emit(ev)
}

// alternateNick returns the nick for the n-th retry (1-based): configured
// alternates first, then the primary nick with n underscores, cut to
// NICKLEN.
func (s *Session) alternateNick(n int) string {
	if n <= len(s.cfg.AltNicks) {
		return s.cfg.AltNicks[n-1]
	}
	suffix := strings.Repeat("_", n-len(s.cfg.AltNicks))
	base := s.cfg.Nick
	if limit := s.isupport.NickLen; limit > 0 && len(base)+len(suffix) > limit {
		cut := limit - len(suffix)
		if cut < 1 {
			cut = 1
		}
		if cut < len(base) {
			base = base[:cut]
		}
	}
	return base + suffix
}

func handleFatalRegistration(s *Session, m *ircmsg.Message, r *Result) {
	if s.registered {
		handleUnknown(s, m, r)
		return
	}
	r.Err = &RegistrationFailure{Code: m.Command, Reason: m.Trailing()}
}

// handleCap runs the minimal negotiation: request what we support from
// what is offered, end negotiation on ACK or NAK.
func handleCap(s *Session, m *ircmsg.Message, r *Result) {
	sub := strings.ToUpper(m.Param(1))
	list := m.Trailing()
	more := len(m.Params) > 3 && m.Params[2] == "*"

	switch sub {
	case "LS":
		for _, c := range ircmsg.ParseCaps(list) {
			s.offered[c.Name] = c.Value
		}
		if more {
			return
		}
		if !s.requestCaps(r) && !s.registered {
			r.send(ircmsg.New(ircmsg.CapCmd, "END"))
		}
	case "ACK":
		var enabled []string
		for _, c := range ircmsg.ParseCaps(list) {
			s.caps[c.Name] = !c.Disable
			if !c.Disable {
				enabled = append(enabled, c.Name)
			}
		}
		if len(enabled) > 0 {
			ev := s.event(m, event.Raw, "")
			ev.Command = ircmsg.CapCmd
			ev.Text = "enabled capabilities: " + strings.Join(enabled, " ")
			r.emit(ev)
		}
		if !s.registered && !more {
			r.send(ircmsg.New(ircmsg.CapCmd, "END"))
		}
	case "NAK":
		if !s.registered {
			r.send(ircmsg.New(ircmsg.CapCmd, "END"))
		}
	case "NEW":
		for _, c := range ircmsg.ParseCaps(list) {
			s.offered[c.Name] = c.Value
		}
		s.requestCaps(r)
	case "DEL":
		for _, c := range ircmsg.ParseCaps(list) {
			delete(s.offered, c.Name)
			delete(s.caps, c.Name)
		}
	default:
		r.Err = violation("unknown CAP subcommand %q", sub)
	}
}

func (s *Session) requestCaps(r *Result) bool {
	var want []string
	for _, name := range SupportedCaps {
		if _, ok := s.offered[name]; ok && !s.caps[name] {
			want = append(want, name)
		}
	}
	if len(want) == 0 {
		return false
	}
	sort.Strings(want)
	r.send(ircmsg.New(ircmsg.CapCmd, "REQ", strings.Join(want, " ")))
	return true
}
