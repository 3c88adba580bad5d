package session

import (
	"fmt"
	"strings"

	"github.com/tehcyx/ircc/pkg/event"
	"github.com/tehcyx/ircc/pkg/ircmsg"
)

// bufferFor resolves where a message addressed to target belongs. Private
// reports whether that is a query buffer.
func (s *Session) bufferFor(m *ircmsg.Message, target string) (buffer string, private bool) {
	name := target
	if !s.isChannel(name) {
		// STATUSMSG, e.g. "@#chan" for ops only.
		var symbols strings.Builder
		for _, p := range s.isupport.Prefix {
			symbols.WriteByte(p.Symbol)
		}
		name = strings.TrimLeft(target, symbols.String())
	}
	if s.isChannel(name) {
		if ch, ok := s.channels[s.fold(name)]; ok {
			return ch.Name, false
		}
		return name, false
	}

	src := m.Source()
	if src.Name == "" || src.IsServer() || !s.registered || target == "*" {
		return "", false
	}
	if s.isSelf(src.Name) {
		// our own message echoed back
		return target, true
	}
	return src.Name, true
}

func (s *Session) touchUser(src ircmsg.Source) {
	if _, ok := s.users[s.fold(src.Name)]; ok {
		s.updateUser(src)
	}
}

func handlePrivmsg(s *Session, m *ircmsg.Message, r *Result) {
	if len(m.Params) < 2 {
		r.Err = violation("%s without target or text", m.Command)
		return
	}
	target, text := m.Params[0], m.Params[1]
	src := m.Source()
	s.touchUser(src)

	command := m.Command
	if ctcp, arg, ok := ircmsg.ParseCTCP(text); ok {
		if ctcp != "ACTION" {
			handleCTCP(s, m, ctcp, arg, r)
			return
		}
		command, text = ctcp, arg
	}

	buffer, private := s.bufferFor(m, target)
	if private {
		if m.Command == ircmsg.NoticeCmd {
			if q, open := s.queries[s.fold(buffer)]; open {
				buffer = q
			} else {
				buffer = ""
			}
		} else {
			buffer = s.openQuery(buffer)
		}
	}

	ev := s.event(m, event.Message, buffer)
	ev.Command = command
	ev.Subject = target
	ev.Text = text
	r.emit(ev)
}

func handleCTCP(s *Session, m *ircmsg.Message, ctcp, arg string, r *Result) {
	src := m.Source()
	ev := s.event(m, event.Raw, "")
	ev.Command = "CTCP"
	ev.Subject = ctcp

	if m.Command == ircmsg.NoticeCmd {
		ev.Text = fmt.Sprintf("CTCP %s reply from %s: %s", ctcp, src.Name, arg)
		r.emit(ev)
		return
	}

	ev.Text = fmt.Sprintf("CTCP %s from %s", ctcp, src.Name)
	r.emit(ev)
	if src.Name == "" || s.isSelf(src.Name) {
		return
	}

	var reply string
	switch ctcp {
	case "VERSION":
		reply = ircmsg.CTCP(ctcp, s.cfg.Version)
	case "PING":
		reply = ircmsg.CTCP(ctcp, arg)
	case "TIME":
		reply = ircmsg.CTCP(ctcp, s.cfg.Now().Format("Mon, 02 Jan 2006 15:04:05 -0700"))
	case "CLIENTINFO":
		reply = ircmsg.CTCP(ctcp, "ACTION CLIENTINFO PING TIME VERSION")
	default:
		return
	}
	r.send(ircmsg.New(ircmsg.NoticeCmd, src.Name, reply))
}

func handleTagmsg(s *Session, m *ircmsg.Message, r *Result) {
	typing, ok := m.Tags["+typing"]
	if !ok || len(m.Params) < 1 {
		return
	}
	buffer, private := s.bufferFor(m, m.Params[0])
	if private {
		q, open := s.queries[s.fold(buffer)]
		if !open {
			return
		}
		buffer = q
	}

	ev := s.event(m, event.Typing, buffer)
	ev.Status = typing
	r.emit(ev)
}
