// Package input turns lines typed by the user into protocol messages and
// engine actions.
package input

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tehcyx/ircc/pkg/ircmsg"
)

var (
	ErrUnknownCommand  = errors.New("unknown command")
	ErrMissingArgument = errors.New("missing argument")
	ErrNoTarget        = errors.New("no target")
)

// Focus is the buffer the user is typing into. An empty Target is the
// server buffer.
type Focus struct {
	ServerID string
	Target   string
}

// Kind says what the engine should do with an Action.
type Kind int

const (
	// Send delivers Messages to the server.
	Send Kind = iota
	OpenQuery
	Close
	Switch
	Connect
	Disconnect
	Reconnect
)

func (k Kind) String() string {
	switch k {
	case Send:
		return "send"
	case OpenQuery:
		return "query"
	case Close:
		return "close"
	case Switch:
		return "switch"
	case Connect:
		return "connect"
	case Disconnect:
		return "disconnect"
	case Reconnect:
		return "reconnect"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Action is the outcome of one input line. ServerID names the server it
// applies to, which for /switch and /connect may be a configured name
// rather than an id.
type Action struct {
	Kind     Kind
	ServerID string
	Target   string
	Messages []*ircmsg.Message
	Reason   string
}

// sourceReserve is room left for the ":nick!user@host " the server prepends
// when relaying our messages.
const sourceReserve = 100

type command struct {
	// args caps how many arguments the line is split into; the last one
	// keeps the rest of the line. Zero splits on every space.
	args int
	run  func(f Focus, args []string) (Action, error)
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"join":       {2, join},
		"j":          {2, join},
		"part":       {2, part},
		"leave":      {2, part},
		"quit":       {1, quit},
		"msg":        {2, msg("msg", ircmsg.PrivmsgCmd)},
		"notice":     {2, msg("notice", ircmsg.NoticeCmd)},
		"me":         {1, me},
		"nick":       {1, nick},
		"query":      {2, query},
		"q":          {2, query},
		"close":      {1, closeBuffer},
		"topic":      {2, topic},
		"mode":       {0, mode},
		"kick":       {3, kick},
		"away":       {1, away},
		"back":       {0, back},
		"whois":      {1, whois},
		"names":      {1, names},
		"quote":      {1, quote},
		"raw":        {1, quote},
		"switch":     {2, switchFocus},
		"sw":         {2, switchFocus},
		"connect":    {1, lifecycle(Connect)},
		"disconnect": {1, lifecycle(Disconnect)},
		"reconnect":  {1, lifecycle(Reconnect)},
	}
}

// Interpret maps a line typed into focus to an Action. Lines that start
// with a single '/' are commands; "//" escapes a leading slash. Errors are
// local and nothing reaches the server when one is returned.
func Interpret(line string, f Focus) (Action, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Action{Kind: Send, ServerID: f.ServerID}, nil
	}
	if !strings.HasPrefix(line, "/") || strings.HasPrefix(line, "//") {
		if strings.HasPrefix(line, "//") {
			line = line[1:]
		}
		if f.Target == "" {
			return Action{}, fmt.Errorf("%w: cannot send text to the server buffer", ErrNoTarget)
		}
		return sendText(f, ircmsg.PrivmsgCmd, f.Target, line, false), nil
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	name = strings.ToLower(name)
	cmd, ok := commands[name]
	if !ok {
		return Action{}, fmt.Errorf("%w: /%s", ErrUnknownCommand, name)
	}

	var args []string
	if cmd.args > 0 {
		args = splitArgs(rest, cmd.args)
	} else {
		args = strings.Fields(rest)
	}
	return cmd.run(f, args)
}

// splitArgs splits off up to n-1 words; the n-th element holds the rest of
// the line with its spacing intact.
func splitArgs(s string, n int) []string {
	var out []string
	s = strings.TrimLeft(s, " ")
	for s != "" && len(out) < n-1 {
		i := strings.IndexByte(s, ' ')
		if i < 0 {
			break
		}
		out = append(out, s[:i])
		s = strings.TrimLeft(s[i+1:], " ")
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// looksLikeChannel uses the common channel prefixes; the server's CHANTYPES
// is not known here.
func looksLikeChannel(name string) bool {
	return name != "" && strings.IndexByte("#&!+", name[0]) >= 0
}

func send(f Focus, msgs ...*ircmsg.Message) Action {
	return Action{Kind: Send, ServerID: f.ServerID, Target: f.Target, Messages: msgs}
}

func sendText(f Focus, command, target, text string, action bool) Action {
	limit := ircmsg.MaxBodyLength - 2 - sourceReserve - len(command) - len(target) - 3
	if action {
		limit -= len("\x01ACTION \x01")
	}
	a := Action{Kind: Send, ServerID: f.ServerID, Target: target}
	for _, chunk := range Split(text, limit) {
		if action {
			chunk = ircmsg.CTCP("ACTION", chunk)
		}
		a.Messages = append(a.Messages, ircmsg.New(command, target, chunk))
	}
	return a
}

// Split cuts text into pieces of at most limit bytes, preferring to break at
// spaces and never splitting a UTF-8 sequence.
func Split(text string, limit int) []string {
	if limit < utf8.UTFMax {
		limit = utf8.UTFMax
	}
	var chunks []string
	for len(text) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			cut = limit
		}
		if sp := strings.LastIndexByte(text[:cut], ' '); sp > 0 {
			cut = sp
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimLeft(text[cut:], " ")
	}
	if text != "" || len(chunks) == 0 {
		chunks = append(chunks, text)
	}
	return chunks
}

func missing(usage string) error {
	return fmt.Errorf("%w: usage: %s", ErrMissingArgument, usage)
}

func join(f Focus, args []string) (Action, error) {
	if len(args) == 0 {
		return Action{}, missing("/join <channel>[,<channel>] [key]")
	}
	return send(f, ircmsg.New(ircmsg.JoinCmd, args...)), nil
}

func part(f Focus, args []string) (Action, error) {
	channel := f.Target
	if len(args) > 0 && looksLikeChannel(args[0]) {
		channel, args = args[0], args[1:]
	} else if len(args) > 1 {
		args = []string{args[0] + " " + args[1]}
	}
	if !looksLikeChannel(channel) {
		return Action{}, fmt.Errorf("%w: /part needs a channel", ErrNoTarget)
	}
	params := []string{channel}
	if len(args) > 0 {
		params = append(params, args[0])
	}
	return send(f, ircmsg.New(ircmsg.PartCmd, params...)), nil
}

func quit(f Focus, args []string) (Action, error) {
	a := Action{Kind: Disconnect, ServerID: f.ServerID}
	if len(args) > 0 {
		a.Reason = args[0]
	}
	return a, nil
}

func msg(name, command string) func(Focus, []string) (Action, error) {
	return func(f Focus, args []string) (Action, error) {
		if len(args) < 2 {
			return Action{}, missing("/" + name + " <target> <text>")
		}
		return sendText(f, command, args[0], args[1], false), nil
	}
}

func me(f Focus, args []string) (Action, error) {
	if f.Target == "" {
		return Action{}, fmt.Errorf("%w: /me needs a channel or query", ErrNoTarget)
	}
	if len(args) == 0 {
		return Action{}, missing("/me <action>")
	}
	return sendText(f, ircmsg.PrivmsgCmd, f.Target, args[0], true), nil
}

func nick(f Focus, args []string) (Action, error) {
	if len(args) == 0 || strings.ContainsRune(args[0], ' ') {
		return Action{}, missing("/nick <nickname>")
	}
	return send(f, ircmsg.New(ircmsg.NickCmd, args[0])), nil
}

func query(f Focus, args []string) (Action, error) {
	if len(args) == 0 {
		return Action{}, missing("/query <nick> [text]")
	}
	a := Action{Kind: OpenQuery, ServerID: f.ServerID, Target: args[0]}
	if len(args) > 1 {
		a.Messages = sendText(f, ircmsg.PrivmsgCmd, args[0], args[1], false).Messages
	}
	return a, nil
}

func closeBuffer(f Focus, args []string) (Action, error) {
	target := f.Target
	if len(args) > 0 {
		target = args[0]
	}
	if target == "" {
		return Action{}, fmt.Errorf("%w: the server buffer cannot be closed", ErrNoTarget)
	}
	return Action{Kind: Close, ServerID: f.ServerID, Target: target}, nil
}

func topic(f Focus, args []string) (Action, error) {
	channel := f.Target
	if len(args) > 0 && looksLikeChannel(args[0]) {
		channel, args = args[0], args[1:]
	} else if len(args) > 1 {
		args = []string{args[0] + " " + args[1]}
	}
	if !looksLikeChannel(channel) {
		return Action{}, fmt.Errorf("%w: /topic needs a channel", ErrNoTarget)
	}
	params := []string{channel}
	if len(args) > 0 {
		params = append(params, args[0])
	}
	return send(f, ircmsg.New(ircmsg.TopicCmd, params...)), nil
}

func mode(f Focus, args []string) (Action, error) {
	if len(args) == 0 || strings.HasPrefix(args[0], "+") || strings.HasPrefix(args[0], "-") {
		if f.Target == "" {
			return Action{}, fmt.Errorf("%w: /mode needs a target", ErrNoTarget)
		}
		args = append([]string{f.Target}, args...)
	}
	return send(f, ircmsg.New(ircmsg.ModeCmd, args...)), nil
}

func kick(f Focus, args []string) (Action, error) {
	channel := f.Target
	if len(args) > 0 && looksLikeChannel(args[0]) {
		channel, args = args[0], args[1:]
	} else if len(args) > 2 {
		args = []string{args[0], args[1] + " " + args[2]}
	}
	if !looksLikeChannel(channel) {
		return Action{}, fmt.Errorf("%w: /kick needs a channel", ErrNoTarget)
	}
	if len(args) == 0 {
		return Action{}, missing("/kick [channel] <nick> [reason]")
	}
	return send(f, ircmsg.New(ircmsg.KickCmd, append([]string{channel}, args...)...)), nil
}

func away(f Focus, args []string) (Action, error) {
	text := "Away"
	if len(args) > 0 {
		text = args[0]
	}
	return send(f, ircmsg.New(ircmsg.AwayCmd, text)), nil
}

func back(f Focus, _ []string) (Action, error) {
	return send(f, ircmsg.New(ircmsg.AwayCmd)), nil
}

func whois(f Focus, args []string) (Action, error) {
	target := f.Target
	if len(args) > 0 {
		target = args[0]
	}
	if target == "" || looksLikeChannel(target) {
		return Action{}, missing("/whois <nick>")
	}
	return send(f, ircmsg.New(ircmsg.WhoisCmd, target)), nil
}

func names(f Focus, args []string) (Action, error) {
	channel := f.Target
	if len(args) > 0 {
		channel = args[0]
	}
	if !looksLikeChannel(channel) {
		return Action{}, fmt.Errorf("%w: /names needs a channel", ErrNoTarget)
	}
	return send(f, ircmsg.New(ircmsg.NamesCmd, channel)), nil
}

func quote(f Focus, args []string) (Action, error) {
	if len(args) == 0 {
		return Action{}, missing("/quote <raw line>")
	}
	m, err := ircmsg.Parse(args[0])
	if err != nil {
		return Action{}, fmt.Errorf("failed to parse raw line: %w", err)
	}
	return send(f, m), nil
}

func switchFocus(f Focus, args []string) (Action, error) {
	if len(args) == 0 {
		return Action{}, missing("/switch <server> [target]")
	}
	a := Action{Kind: Switch, ServerID: args[0]}
	if len(args) > 1 {
		a.Target = strings.TrimSpace(args[1])
	}
	return a, nil
}

func lifecycle(kind Kind) func(Focus, []string) (Action, error) {
	return func(f Focus, args []string) (Action, error) {
		a := Action{Kind: kind, ServerID: f.ServerID}
		if len(args) > 0 {
			if kind == Disconnect {
				a.Reason = args[0]
			} else {
				a.ServerID = strings.TrimSpace(args[0])
			}
		}
		if a.ServerID == "" {
			return Action{}, fmt.Errorf("%w: no server selected", ErrNoTarget)
		}
		return a, nil
	}
}
