package session

import (
	"strings"
	"time"

	"github.com/tehcyx/ircc/pkg/event"
	"github.com/tehcyx/ircc/pkg/ircmsg"
)

// Result is what applying one message produced: events for the display,
// replies for the server and the error condition if any.
type Result struct {
	Events   []event.DisplayEvent
	Outbound []*ircmsg.Message
	Err      error
}

func (r *Result) emit(ev event.DisplayEvent) {
	r.Events = append(r.Events, ev)
}

func (r *Result) send(m *ircmsg.Message) {
	r.Outbound = append(r.Outbound, m)
}

func (r *Result) merge(other Result) {
	r.Events = append(r.Events, other.Events...)
	r.Outbound = append(r.Outbound, other.Outbound...)
	if r.Err == nil {
		r.Err = other.Err
	}
}

type handler func(s *Session, m *ircmsg.Message, r *Result)

var handlers map[string]handler

func init() {
	handlers = map[string]handler{
		ircmsg.PingCmd:    handlePing,
		ircmsg.PongCmd:    func(*Session, *ircmsg.Message, *Result) {},
		ircmsg.ErrorCmd:   handleError,
		ircmsg.CapCmd:     handleCap,
		ircmsg.BatchCmd:   handleBatch,
		ircmsg.JoinCmd:    handleJoin,
		ircmsg.PartCmd:    handlePart,
		ircmsg.KickCmd:    handleKick,
		ircmsg.QuitCmd:    handleQuit,
		ircmsg.NickCmd:    handleNick,
		ircmsg.PrivmsgCmd: handlePrivmsg,
		ircmsg.NoticeCmd:  handlePrivmsg,
		ircmsg.TagmsgCmd:  handleTagmsg,
		ircmsg.TopicCmd:   handleTopic,
		ircmsg.ModeCmd:    handleMode,
		ircmsg.AwayCmd:    handleAway,

		ircmsg.RplWelcome:      handleWelcome,
		ircmsg.RplYourHost:     handleServerText,
		ircmsg.RplCreated:      handleServerText,
		ircmsg.RplMyInfo:       handleServerText,
		ircmsg.RplISupport:     handleISupport,
		ircmsg.RplUModeIs:      handleUModeIs,
		ircmsg.RplAway:         handleRplAway,
		ircmsg.RplUnAway:       handleSelfAway(false),
		ircmsg.RplNowAway:      handleSelfAway(true),
		ircmsg.RplWhoReply:     handleWhoReply,
		ircmsg.RplEndOfWho:     func(*Session, *ircmsg.Message, *Result) {},
		ircmsg.RplChannelModes: handleChannelModes,
		ircmsg.RplNoTopic:      handleNoTopic,
		ircmsg.RplTopic:        handleRplTopic,
		ircmsg.RplTopicWhoTime: handleTopicWhoTime,
		ircmsg.RplNameReply:    handleNameReply,
		ircmsg.RplEndOfNames:   handleEndOfNames,
		ircmsg.RplMotdStart:    handleMotdStart,
		ircmsg.RplMotd:         handleMotd,
		ircmsg.RplEndOfMotd:    handleEndOfMotd,
		ircmsg.ErrNoMotd:       handleServerText,

		ircmsg.ErrNickInUse:        handleNickRejected,
		ircmsg.ErrNickInvalid:      handleNickRejected,
		ircmsg.ErrNickCollision:    handleNickRejected,
		ircmsg.ErrPasswdMismatch:   handleFatalRegistration,
		ircmsg.ErrYoureBannedCreep: handleFatalRegistration,
	}
}

// Dispatch applies m to the session and reports what happened. Messages
// inside an open BATCH are held until the batch ends.
func (s *Session) Dispatch(m *ircmsg.Message) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatch(m)
}

func (s *Session) dispatch(m *ircmsg.Message) Result {
	var r Result

	if id, ok := m.Tags["batch"]; ok && m.Command != ircmsg.BatchCmd {
		if b, open := s.batches[id]; open {
			b.msgs = append(b.msgs, m)
			return r
		}
	}

	h, ok := handlers[m.Command]
	if !ok {
		h = handleUnknown
	}
	h(s, m, &r)
	return r
}

// handleUnknown surfaces anything without a handler as raw text, server
// error numerics as low severity errors.
func handleUnknown(s *Session, m *ircmsg.Message, r *Result) {
	if ircmsg.IsErrorNumeric(m.Command) {
		ev := s.event(m, event.Error, "")
		ev.Command = m.Command
		ev.Subject, _ = ircmsg.NumericName(m.Command)
		ev.Text = numericText(m)
		ev.Severity = event.Low
		ev.ErrKind = event.ErrServer
		if nick := s.pendingNick; nick != "" && m.Param(1) == nick {
			s.pendingNick = ""
		}
		r.emit(ev)
		return
	}
	handleServerText(s, m, r)
}

func handleServerText(s *Session, m *ircmsg.Message, r *Result) {
	ev := s.event(m, event.Raw, "")
	ev.Command = m.Command
	if m.IsNumeric() {
		// Subject carries the symbolic name, "" for codes we do not know.
		ev.Subject, _ = ircmsg.NumericName(m.Command)
		ev.Text = numericText(m)
	} else {
		ev.Text = strings.Join(m.Params, " ")
	}
	r.emit(ev)
}

// numericText drops the leading target nick of a numeric reply.
func numericText(m *ircmsg.Message) string {
	if len(m.Params) < 2 {
		return m.Trailing()
	}
	return strings.Join(m.Params[1:], " ")
}

// eventTime prefers the server-time tag over the local clock.
func (s *Session) eventTime(m *ircmsg.Message) time.Time {
	if t, ok := m.Time(); ok {
		return t
	}
	return s.cfg.Now()
}

func (s *Session) event(m *ircmsg.Message, kind event.Kind, target string) event.DisplayEvent {
	return event.DisplayEvent{
		ServerID: s.cfg.ServerID,
		Target:   target,
		Kind:     kind,
		Time:     s.eventTime(m),
		Nick:     m.Source().Name,
	}
}

func handlePing(s *Session, m *ircmsg.Message, r *Result) {
	r.send(ircmsg.New(ircmsg.PongCmd, m.Params...))
}

func handleError(s *Session, m *ircmsg.Message, r *Result) {
	ev := s.event(m, event.Error, "")
	ev.Command = m.Command
	ev.Text = m.Trailing()
	ev.Severity = event.High
	ev.ErrKind = event.ErrServer
	r.emit(ev)
}

// handleBatch opens and closes IRCv3 batches. Closing replays the held
// messages, or hands them to the enclosing batch when nested.
func handleBatch(s *Session, m *ircmsg.Message, r *Result) {
	ref := m.Param(0)
	if len(ref) < 2 {
		r.Err = violation("BATCH without reference")
		return
	}
	id := ref[1:]

	switch ref[0] {
	case '+':
		s.batches[id] = &batch{kind: m.Param(1), parent: m.Tags["batch"]}
	case '-':
		b, ok := s.batches[id]
		if !ok {
			r.Err = violation("end of unknown batch %s", id)
			return
		}
		delete(s.batches, id)
		if parent, ok := s.batches[b.parent]; ok && b.parent != "" {
			parent.msgs = append(parent.msgs, b.msgs...)
			return
		}
		for _, held := range b.msgs {
			r.merge(s.dispatchHeld(held))
		}
	default:
		r.Err = violation("malformed batch reference %q", ref)
	}
}

// dispatchHeld replays a message from a closed batch.
func (s *Session) dispatchHeld(m *ircmsg.Message) Result {
	var r Result
	h, ok := handlers[m.Command]
	if !ok {
		h = handleUnknown
	}
	h(s, m, &r)
	return r
}
