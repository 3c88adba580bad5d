package connection

import (
	"fmt"
	"time"

	"github.com/tehcyx/ircc/pkg/ircmsg"
)

// State is the lifecycle position of a Connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Registering
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Registering:
		return "registering"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind discriminates Event.
type EventKind int

const (
	StateChanged EventKind = iota
	MessageReceived
	ParseFailed
)

// Event is what a Connection reports to its owner, in order.
type Event struct {
	Kind EventKind
	// Attempt is the transport attempt the event originates from. Messages
	// from an attempt other than Connection.Attempt() are stale.
	Attempt uint64

	// StateChanged
	From, To State
	Reason   string
	Delay    time.Duration
	Retry    int

	// MessageReceived, ParseFailed
	Msg       *ircmsg.Message
	Line      string
	Truncated bool

	Err error
}

// TransportError wraps socket level failures.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
