package engine

import (
	"errors"
	"fmt"

	"github.com/tehcyx/ircc/pkg/connection"
	"github.com/tehcyx/ircc/pkg/event"
	"github.com/tehcyx/ircc/pkg/input"
	"github.com/tehcyx/ircc/pkg/ircmsg"
)

// Input interprets a line typed into f. Every failure is also reported as
// an Error event on f so a display only has to watch Events.
func (e *Engine) Input(f input.Focus, line string) error {
	a, err := input.Interpret(line, f)
	if err == nil {
		err = e.apply(f, a)
	}
	if err != nil {
		kind := event.ErrInput
		if errors.Is(err, input.ErrUnknownCommand) {
			kind = event.ErrUnknownCommand
		}
		e.localError(f, kind, err)
	}
	return err
}

func (e *Engine) apply(f input.Focus, a input.Action) error {
	switch a.Kind {
	case input.Switch, input.Connect, input.Disconnect, input.Reconnect:
		s, err := e.resolve(a.ServerID)
		if err != nil {
			return err
		}
		switch a.Kind {
		case input.Switch:
			return e.SetFocus(input.Focus{ServerID: s.id, Target: a.Target})
		case input.Connect:
			return s.conn.Connect()
		case input.Disconnect:
			s.conn.Disconnect(a.Reason)
			return nil
		default:
			return s.conn.Reconnect("reconnect requested")
		}
	}

	s, err := e.lookup(a.ServerID)
	if err != nil {
		return err
	}
	switch a.Kind {
	case input.OpenQuery:
		name := s.session.OpenQuery(a.Target)
		if err := e.SetFocus(input.Focus{ServerID: s.id, Target: name}); err != nil {
			return err
		}
	case input.Close:
		if s.session.IsChannel(a.Target) {
			a.Messages = []*ircmsg.Message{ircmsg.New(ircmsg.PartCmd, a.Target)}
		} else if !s.session.CloseQuery(a.Target) {
			return fmt.Errorf("%w: no query with %s", input.ErrNoTarget, a.Target)
		}
		if f.ServerID == s.id && s.session.Fold(f.Target) == s.session.Fold(a.Target) {
			if err := e.SetFocus(input.Focus{ServerID: s.id}); err != nil {
				return err
			}
		}
	}
	return e.send(s, a.Messages)
}

func (e *Engine) send(s *server, msgs []*ircmsg.Message) error {
	for _, m := range msgs {
		if m.Command == ircmsg.NickCmd {
			s.session.RequestNick(m.Param(0))
		}
		if err := s.conn.Send(m); err != nil {
			if errors.Is(err, connection.ErrNotConnected) {
				return fmt.Errorf("%s is not connected", s.conn.Config().Name)
			}
			return err
		}
		e.echo(s, m)
	}
	return nil
}

// echo shows our own messages when the server will not relay them back.
func (e *Engine) echo(s *server, m *ircmsg.Message) {
	if m.Command != ircmsg.PrivmsgCmd && m.Command != ircmsg.NoticeCmd {
		return
	}
	if s.session.HasCapability("echo-message") || len(m.Params) < 2 {
		return
	}

	target, text, command := m.Params[0], m.Params[1], m.Command
	if ctcp, arg, ok := ircmsg.ParseCTCP(text); ok {
		if ctcp != "ACTION" {
			return
		}
		command, text = ctcp, arg
	}
	buffer := target
	if !s.session.IsChannel(target) && m.Command == ircmsg.PrivmsgCmd {
		buffer = s.session.OpenQuery(target)
	}
	e.push(event.DisplayEvent{
		ServerID: s.id,
		Target:   buffer,
		Kind:     event.Message,
		Nick:     s.session.Nick(),
		Subject:  target,
		Command:  command,
		Text:     text,
	})
}
