package ircmsg

import "strings"

// Source is a decomposed message prefix: nick!user@host for users, a bare
// name for servers.
type Source struct {
	Name string
	User string
	Host string
}

// ParseSource splits a prefix. A prefix without '!' and '@' is kept whole as
// Name, which covers both server names and servers that send bare nicks.
func ParseSource(prefix string) Source {
	var s Source
	s.Name, s.Host, _ = strings.Cut(prefix, "@")
	s.Name, s.User, _ = strings.Cut(s.Name, "!")
	return s
}

// IsServer reports whether the source looks like a server rather than a user.
func (s Source) IsServer() bool {
	return s.User == "" && s.Host == "" && strings.ContainsRune(s.Name, '.')
}

func (s Source) String() string {
	if s.User == "" && s.Host == "" {
		return s.Name
	}
	return s.Name + "!" + s.User + "@" + s.Host
}
