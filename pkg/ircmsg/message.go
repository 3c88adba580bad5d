// Package ircmsg adapts the ergochat line grammar to the client: framing of
// the byte stream, parsing of lines into messages and serializing messages
// back onto the wire.
package ircmsg

import (
	"errors"
	"fmt"
	"strings"
	"time"

	irc "github.com/ergochat/irc-go/ircmsg"
)

// Message is one parsed IRC line. The trailing parameter, when present, is the
// last element of Params.
type Message struct {
	Tags    map[string]string
	Prefix  string
	Command string
	Params  []string
}

// ParseError reports a line that does not follow the message grammar.
type ParseError struct {
	Line   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed line %q: %s", e.Line, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// New builds an outgoing message without prefix.
func New(command string, params ...string) *Message {
	return &Message{Command: command, Params: params}
}

// WithTag returns a copy of m carrying the given tag.
func (m *Message) WithTag(key, value string) *Message {
	c := *m
	c.Tags = make(map[string]string, len(m.Tags)+1)
	for k, v := range m.Tags {
		c.Tags[k] = v
	}
	c.Tags[key] = value
	return &c
}

// Param returns the i-th parameter or "" when there are fewer parameters.
func (m *Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// Trailing returns the last parameter, "" when there is none.
func (m *Message) Trailing() string {
	return m.Param(len(m.Params) - 1)
}

// Source decomposes the prefix.
func (m *Message) Source() Source {
	return ParseSource(m.Prefix)
}

// IsNumeric reports whether the command is a three digit reply code.
func (m *Message) IsNumeric() bool {
	return isNumeric(m.Command)
}

// Time returns the server-time tag if the server sent a valid one.
func (m *Message) Time() (time.Time, bool) {
	raw, ok := m.Tags["time"]
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Parse converts one line, without its CRLF delimiter, into a Message.
func Parse(line string) (*Message, error) {
	m, _, err := parse(line, 0)
	return m, err
}

// ParseLimited is Parse with everything after the tags held to limit bytes,
// counting the CRLF the way servers do. A longer body is cut to fit and
// reported through truncated instead of failing.
func ParseLimited(line string, limit int) (m *Message, truncated bool, err error) {
	return parse(line, limit)
}

func parse(line string, limit int) (*Message, bool, error) {
	msg, err := irc.ParseLineStrict(line, false, limit)
	truncated := errors.Is(err, irc.ErrorBodyTooLong)
	if err != nil && !truncated {
		return nil, false, &ParseError{Line: line, Reason: strings.ToLower(err.Error()), Err: err}
	}

	if !validCommand(msg.Command) {
		return nil, truncated, &ParseError{Line: line, Reason: fmt.Sprintf("invalid command %q", msg.Command)}
	}
	if msg.Source == "" && strings.HasPrefix(body(line), ":") {
		return nil, truncated, &ParseError{Line: line, Reason: "empty prefix"}
	}

	m := &Message{Prefix: msg.Source, Command: strings.ToUpper(msg.Command)}
	if len(msg.Params) > 0 {
		m.Params = msg.Params
	}
	if tags := msg.AllTags(); len(tags) > 0 {
		m.Tags = tags
	}
	return m, truncated, nil
}

// Bytes serializes the message with its CRLF delimiter. CR, LF and NUL
// inside parameters are replaced by spaces so a message can never smuggle a
// second line onto the wire. A middle parameter that is empty, contains a
// space or starts with ':' cannot be represented and is an error.
func (m *Message) Bytes() ([]byte, error) {
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = lineSafe.Replace(p)
	}
	msg := irc.MakeMessage(m.Tags, m.Prefix, m.Command, params...)
	line, err := msg.LineBytesStrict(true, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", m.Command, err)
	}
	return line, nil
}

// String is the serialized line without CRLF. Messages Bytes rejects are
// rendered as their command and parameters joined by spaces.
func (m *Message) String() string {
	line, err := m.Bytes()
	if err != nil {
		return strings.TrimSpace(m.Command + " " + strings.Join(m.Params, " "))
	}
	return strings.TrimSuffix(string(line), "\r\n")
}

var lineSafe = strings.NewReplacer("\r", " ", "\n", " ", "\x00", " ")

// body skips the tags section.
func body(line string) string {
	if strings.HasPrefix(line, "@") {
		_, line, _ = strings.Cut(line, " ")
	}
	return strings.TrimLeft(line, " ")
}

func isNumeric(cmd string) bool {
	if len(cmd) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if cmd[i] < '0' || cmd[i] > '9' {
			return false
		}
	}
	return true
}

func validCommand(cmd string) bool {
	if cmd == "" {
		return false
	}
	if isNumeric(cmd) {
		return true
	}
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}
