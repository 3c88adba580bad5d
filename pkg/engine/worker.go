package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/tehcyx/ircc/pkg/connection"
	"github.com/tehcyx/ircc/pkg/event"
	"github.com/tehcyx/ircc/pkg/ircmsg"
	"github.com/tehcyx/ircc/pkg/session"
)

// work applies one server's connection events in order until the
// connection is closed.
func (e *Engine) work(s *server) {
	defer close(s.done)
	for ev := range s.conn.Events() {
		switch ev.Kind {
		case connection.StateChanged:
			e.stateChanged(s, ev)
		case connection.ParseFailed:
			if ev.Attempt != s.conn.Attempt() {
				continue
			}
			e.push(event.DisplayEvent{
				ServerID: s.id,
				Kind:     event.Error,
				Severity: event.Low,
				ErrKind:  event.ErrParse,
				Text:     fmt.Sprintf("ignored malformed line %q", ev.Line),
				Err:      ev.Err,
			})
		case connection.MessageReceived:
			if ev.Attempt != s.conn.Attempt() {
				s.log.Debugf("dropping %s from a previous connection", ev.Msg.Command)
				continue
			}
			if ev.Truncated {
				e.push(event.DisplayEvent{
					ServerID: s.id,
					Kind:     event.Error,
					Severity: event.Low,
					ErrKind:  event.ErrParse,
					Text:     fmt.Sprintf("line from server was too long and was truncated: %.40q", ev.Line),
				})
			}
			e.dispatch(s, ev.Msg)
		}
	}
}

func (e *Engine) stateChanged(s *server, ev connection.Event) {
	switch ev.To {
	case connection.Reconnecting:
		s.session.Reset()
	case connection.Disconnected:
		s.session.Destroy()
	}

	status := event.DisplayEvent{
		ServerID: s.id,
		Kind:     event.ConnectionStatus,
		Status:   ev.To.String(),
		Text:     ev.Reason,
	}
	if ev.To == connection.Reconnecting && ev.Delay > 0 {
		status.Text = fmt.Sprintf("%s, retry %d in %s", ev.Reason, ev.Retry, ev.Delay.Round(time.Millisecond))
	}
	e.push(status)

	if ev.Err == nil {
		return
	}
	severity := event.Low
	if ev.To == connection.Disconnected {
		severity = event.High
	}
	e.push(event.DisplayEvent{
		ServerID: s.id,
		Kind:     event.Error,
		Severity: severity,
		ErrKind:  event.ErrTransport,
		Text:     ev.Err.Error(),
		Err:      ev.Err,
	})
}

func (e *Engine) dispatch(s *server, m *ircmsg.Message) {
	start := time.Now()
	res := s.session.Dispatch(m)
	e.metrics.ObserveDispatch(m.Command, time.Since(start))

	for _, out := range res.Outbound {
		if err := s.conn.Send(out); err != nil {
			s.log.Debugf("failed to send %s: %v", out.Command, err)
		}
	}
	if nick := s.session.Nick(); nick != s.conn.Nick() {
		s.conn.SetNick(nick)
	}
	for _, ev := range res.Events {
		e.push(ev)
	}
	if res.Err == nil {
		return
	}

	var failure *session.RegistrationFailure
	switch {
	case errors.As(res.Err, &failure):
		e.push(event.DisplayEvent{
			ServerID: s.id,
			Kind:     event.Error,
			Severity: event.High,
			ErrKind:  event.ErrRegistrationFailed,
			Text:     failure.Error(),
			Err:      failure,
		})
		s.conn.Disconnect(failure.Reason)
	case errors.Is(res.Err, session.ErrProtocolViolation):
		s.log.Debugf("%v", res.Err)
		e.push(event.DisplayEvent{
			ServerID: s.id,
			Kind:     event.Error,
			Severity: event.Low,
			ErrKind:  event.ErrProtocolViolation,
			Text:     res.Err.Error(),
			Err:      res.Err,
		})
	default:
		s.log.Warnf("failed to apply %s: %v", m.Command, res.Err)
	}
}
