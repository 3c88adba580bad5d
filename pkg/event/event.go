// Package event defines what the engine hands to a display layer.
package event

import (
	"fmt"
	"time"
)

// Kind tells the display which fields of a DisplayEvent are meaningful.
type Kind int

const (
	Message Kind = iota
	Join
	Part
	Quit
	Nick
	Mode
	Topic
	Error
	ConnectionStatus
	Kick
	Names
	Away
	Typing
	Raw
	Focus
)

var kindNames = [...]string{
	Message:          "message",
	Join:             "join",
	Part:             "part",
	Quit:             "quit",
	Nick:             "nick",
	Mode:             "mode",
	Topic:            "topic",
	Error:            "error",
	ConnectionStatus: "status",
	Kick:             "kick",
	Names:            "names",
	Away:             "away",
	Typing:           "typing",
	Raw:              "raw",
	Focus:            "focus",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalText lets history backends store kinds by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", b)
}

// Severity grades Error events.
type Severity int

const (
	Low Severity = iota
	High
)

func (s Severity) String() string {
	if s == High {
		return "high"
	}
	return "low"
}

// ErrKind classifies the error carried by an Error event.
type ErrKind string

const (
	ErrParse              ErrKind = "parse"
	ErrTransport          ErrKind = "transport"
	ErrProtocolViolation  ErrKind = "protocol"
	ErrRegistrationFailed ErrKind = "registration"
	ErrUnknownCommand     ErrKind = "unknown-command"
	ErrInput              ErrKind = "input"
	ErrServer             ErrKind = "server"
)

// DisplayEvent is one thing that happened, addressed to a buffer. Target is
// "" for the server buffer.
type DisplayEvent struct {
	ServerID string    `json:"server_id"`
	Target   string    `json:"target,omitempty"`
	Kind     Kind      `json:"kind"`
	Time     time.Time `json:"time"`
	Nick     string    `json:"nick,omitempty"`
	Subject  string    `json:"subject,omitempty"`
	Text     string    `json:"text,omitempty"`
	Command  string    `json:"command,omitempty"`
	Modes    []string  `json:"modes,omitempty"`
	Members  []string  `json:"members,omitempty"`
	Status   string    `json:"status,omitempty"`
	Severity Severity  `json:"severity,omitempty"`
	ErrKind  ErrKind   `json:"err_kind,omitempty"`
	Err      error     `json:"-"`
}

func (e DisplayEvent) String() string {
	buf := e.Target
	if buf == "" {
		buf = "*"
	}
	switch e.Kind {
	case Message:
		if e.Command == "ACTION" {
			return fmt.Sprintf("[%s] * %s %s", buf, e.Nick, e.Text)
		}
		if e.Command == "NOTICE" {
			return fmt.Sprintf("[%s] -%s- %s", buf, e.Nick, e.Text)
		}
		return fmt.Sprintf("[%s] <%s> %s", buf, e.Nick, e.Text)
	case Join:
		return fmt.Sprintf("[%s] --> %s joined", buf, e.Nick)
	case Part:
		return fmt.Sprintf("[%s] <-- %s left (%s)", buf, e.Nick, e.Text)
	case Quit:
		return fmt.Sprintf("[%s] <-- %s quit (%s)", buf, e.Nick, e.Text)
	case Kick:
		return fmt.Sprintf("[%s] <-- %s kicked %s (%s)", buf, e.Nick, e.Subject, e.Text)
	case Nick:
		return fmt.Sprintf("[%s] %s is now known as %s", buf, e.Nick, e.Subject)
	case Mode:
		return fmt.Sprintf("[%s] %s sets mode %v", buf, e.Nick, e.Modes)
	case Topic:
		if e.Nick == "" {
			return fmt.Sprintf("[%s] topic: %s", buf, e.Text)
		}
		return fmt.Sprintf("[%s] %s changed the topic to: %s", buf, e.Nick, e.Text)
	case Names:
		return fmt.Sprintf("[%s] names: %v", buf, e.Members)
	case Error:
		return fmt.Sprintf("[%s] error (%s/%s): %s", buf, e.ErrKind, e.Severity, e.Text)
	case ConnectionStatus:
		if e.Text == "" {
			return fmt.Sprintf("[%s] status: %s", buf, e.Status)
		}
		return fmt.Sprintf("[%s] status: %s (%s)", buf, e.Status, e.Text)
	case Away:
		return fmt.Sprintf("[%s] %s is away: %s", buf, e.Nick, e.Text)
	case Typing:
		return fmt.Sprintf("[%s] %s is %s", buf, e.Nick, e.Status)
	case Focus:
		return fmt.Sprintf("[%s] focus", buf)
	case Raw:
		if e.Subject != "" {
			return fmt.Sprintf("[%s] %s %s", buf, e.Subject, e.Text)
		}
		return fmt.Sprintf("[%s] %s %s", buf, e.Command, e.Text)
	default:
		return fmt.Sprintf("[%s] %s %s", buf, e.Command, e.Text)
	}
}
