package ircmsg

import "strings"

const ctcpDelim = "\x01"

// CTCP wraps a client-to-client query into a PRIVMSG/NOTICE body.
func CTCP(command, arg string) string {
	if arg == "" {
		return ctcpDelim + command + ctcpDelim
	}
	return ctcpDelim + command + " " + arg + ctcpDelim
}

// ParseCTCP unwraps a CTCP body. The closing delimiter is optional since
// some clients omit it.
func ParseCTCP(text string) (command, arg string, ok bool) {
	if !strings.HasPrefix(text, ctcpDelim) {
		return "", "", false
	}
	body := strings.TrimSuffix(text[1:], ctcpDelim)
	command, arg, _ = strings.Cut(body, " ")
	if command == "" {
		return "", "", false
	}
	return strings.ToUpper(command), arg, true
}

// Cap is one token of a CAP LS/ACK/NEW/DEL list.
type Cap struct {
	Name    string
	Value   string
	Disable bool
}

// ParseCaps splits a capability list such as "sasl=PLAIN,EXTERNAL -batch".
func ParseCaps(list string) []Cap {
	var caps []Cap
	for _, tok := range strings.Fields(list) {
		var c Cap
		if strings.HasPrefix(tok, "-") {
			c.Disable = true
			tok = tok[1:]
		}
		c.Name, c.Value, _ = strings.Cut(tok, "=")
		if c.Name == "" {
			continue
		}
		caps = append(caps, c)
	}
	return caps
}
