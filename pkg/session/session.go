// Package session keeps the per-server view of channels, users and the
// client's own identity, and applies server messages to it.
package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tehcyx/ircc/pkg/ircmsg"
)

// DefaultMaxNickRetries bounds alternate nick attempts during registration.
const DefaultMaxNickRetries = 5

// SupportedCaps are requested when the server offers them.
var SupportedCaps = []string{
	"multi-prefix",
	"server-time",
	"message-tags",
	"batch",
	"echo-message",
	"away-notify",
}

// ErrProtocolViolation marks server messages that make no sense for the
// current state. They are ignored.
var ErrProtocolViolation = errors.New("protocol violation")

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...))
}

// RegistrationFailure means the server will not let us in without user
// intervention.
type RegistrationFailure struct {
	Code   string
	Reason string
}

func (e *RegistrationFailure) Error() string {
	if e.Code == "" {
		return "registration failed: " + e.Reason
	}
	return fmt.Sprintf("registration failed (%s): %s", e.Code, e.Reason)
}

type User struct {
	Nick        string
	Username    string
	Hostname    string
	Away        bool
	AwayMessage string
}

// Member is a User's presence in one channel. Modes holds the membership
// mode letters ordered from highest rank.
type Member struct {
	User  *User
	Modes string
}

type Topic struct {
	Text  string
	SetBy string
	SetAt time.Time
}

type Channel struct {
	Name    string
	Topic   Topic
	Members map[string]*Member
	// Modes maps a mode letter to its argument, "" for flags. Letters the
	// client does not know are kept as they came.
	Modes map[byte]string
}

// Config is fixed for the life of a Session.
type Config struct {
	ServerID       string
	Nick           string
	AltNicks       []string
	Autojoin       []string
	MaxNickRetries int
	// Version answers CTCP VERSION.
	Version string
	Now     func() time.Time
}

type batch struct {
	kind   string
	parent string
	msgs   []*ircmsg.Message
}

// Session is safe for concurrent use; every exported method takes the lock.
type Session struct {
	mu  sync.Mutex
	cfg Config

	nick         string
	pendingNick  string
	registered   bool
	nickAttempts int
	away         bool
	userModes    string

	isupport ISupport
	caps     map[string]bool
	offered  map[string]string

	users    map[string]*User
	channels map[string]*Channel
	queries  map[string]string

	names   map[string][]string
	batches map[string]*batch
	motd    []string
	rejoin  []string
}

// New returns an unregistered Session.
func New(cfg Config) *Session {
	if cfg.MaxNickRetries <= 0 {
		cfg.MaxNickRetries = DefaultMaxNickRetries
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Session{cfg: cfg, queries: map[string]string{}}
	s.resetLocked()
	return s
}

func (s *Session) resetLocked() {
	s.nick = s.cfg.Nick
	s.pendingNick = ""
	s.registered = false
	s.nickAttempts = 0
	s.away = false
	s.userModes = ""
	s.isupport = defaultISupport()
	s.caps = map[string]bool{}
	s.offered = map[string]string{}
	s.users = map[string]*User{}
	s.channels = map[string]*Channel{}
	s.names = map[string][]string{}
	s.batches = map[string]*batch{}
	s.motd = nil
}

// Reset drops live state for a new transport. Joined channels are remembered
// and joined again after the next welcome; query buffers survive.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.channels {
		s.rememberChannel(ch.Name)
	}
	s.resetLocked()
}

// Destroy forgets everything, including channels to rejoin and queries.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.rejoin = nil
	s.queries = map[string]string{}
}

func (s *Session) rememberChannel(name string) {
	key := s.fold(name)
	for _, r := range s.rejoin {
		if s.fold(r) == key {
			return
		}
	}
	s.rejoin = append(s.rejoin, name)
}

func (s *Session) forgetChannel(name string) {
	key := s.fold(name)
	kept := s.rejoin[:0]
	for _, r := range s.rejoin {
		if s.fold(r) != key {
			kept = append(kept, r)
		}
	}
	s.rejoin = kept
}

// Fold applies the server's CASEMAPPING to name.
func (s *Session) Fold(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fold(name)
}

func (s *Session) fold(name string) string {
	return Fold(s.isupport.CaseMapping, name)
}

func (s *Session) isSelf(nick string) bool {
	return nick != "" && s.fold(nick) == s.fold(s.nick)
}

// IsChannel reports whether name starts with one of the server's channel
// prefixes.
func (s *Session) IsChannel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isChannel(name)
}

func (s *Session) isChannel(name string) bool {
	return name != "" && strings.IndexByte(s.isupport.ChanTypes, name[0]) >= 0
}

func (s *Session) Nick() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nick
}

func (s *Session) Registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered
}

func (s *Session) HasCapability(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps[name]
}

// RequestNick records a user initiated NICK so a rejection can be reported
// against it. The self nick only changes when the server confirms.
func (s *Session) RequestNick(nick string) {
	s.mu.Lock()
	s.pendingNick = nick
	s.mu.Unlock()
}

// OpenQuery creates a private buffer for nick and returns its display name.
func (s *Session) OpenQuery(nick string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openQuery(nick)
}

func (s *Session) openQuery(nick string) string {
	key := s.fold(nick)
	if name, ok := s.queries[key]; ok {
		return name
	}
	s.queries[key] = nick
	return nick
}

func (s *Session) CloseQuery(nick string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.fold(nick)
	if _, ok := s.queries[key]; !ok {
		return false
	}
	delete(s.queries, key)
	s.collect(key)
	return true
}

// Channel returns a copy of the named channel's state.
func (s *Session) Channel(name string) (ChannelSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[s.fold(name)]
	if !ok {
		return ChannelSnapshot{}, false
	}
	return s.snapshotChannel(ch), true
}

func (s *Session) user(nick string) *User {
	key := s.fold(nick)
	u, ok := s.users[key]
	if !ok {
		u = &User{Nick: nick}
		s.users[key] = u
	}
	return u
}

func (s *Session) updateUser(src ircmsg.Source) *User {
	u := s.user(src.Name)
	if src.User != "" {
		u.Username = src.User
	}
	if src.Host != "" {
		u.Hostname = src.Host
	}
	return u
}

// collect forgets a user nobody refers to any more.
func (s *Session) collect(key string) {
	if key == s.fold(s.nick) {
		return
	}
	if _, ok := s.queries[key]; ok {
		return
	}
	for _, ch := range s.channels {
		if _, ok := ch.Members[key]; ok {
			return
		}
	}
	delete(s.users, key)
}

func (s *Session) removeMember(ch *Channel, nick string) bool {
	key := s.fold(nick)
	if _, ok := ch.Members[key]; !ok {
		return false
	}
	delete(ch.Members, key)
	s.collect(key)
	return true
}

func (s *Session) dropChannel(ch *Channel) {
	chKey := s.fold(ch.Name)
	delete(s.channels, chKey)
	delete(s.names, chKey)
	for key := range ch.Members {
		s.collect(key)
	}
}

// rename rekeys a user in every map that holds it. It runs under the session
// lock, so no reader sees both or neither key.
func (s *Session) rename(oldNick, newNick string) (channels []string, query string) {
	oldKey, newKey := s.fold(oldNick), s.fold(newNick)

	if oldKey != newKey {
		if _, clash := s.users[newKey]; clash {
			s.purge(newKey)
		}
	}

	u, ok := s.users[oldKey]
	if !ok {
		u = &User{}
	}
	u.Nick = newNick
	delete(s.users, oldKey)
	s.users[newKey] = u

	for _, ch := range s.channels {
		m, ok := ch.Members[oldKey]
		if !ok {
			continue
		}
		delete(ch.Members, oldKey)
		ch.Members[newKey] = m
		channels = append(channels, ch.Name)
	}
	sort.Strings(channels)

	if _, ok := s.queries[oldKey]; ok {
		delete(s.queries, oldKey)
		s.queries[newKey] = newNick
		query = newNick
	}

	if len(channels) == 0 && query == "" {
		delete(s.users, newKey)
	}
	return channels, query
}

// purge removes a stale user the server has just handed its nick to someone
// else.
func (s *Session) purge(key string) {
	for _, ch := range s.channels {
		delete(ch.Members, key)
	}
	delete(s.users, key)
}

// Check verifies that every membership refers to the user registered under
// the same key and that the client is a member of every channel it holds.
func (s *Session) Check() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for chKey, ch := range s.channels {
		if s.fold(ch.Name) != chKey {
			return fmt.Errorf("channel %q stored under %q", ch.Name, chKey)
		}
		if _, ok := ch.Members[s.fold(s.nick)]; !ok {
			return fmt.Errorf("channel %s does not list self %q", ch.Name, s.nick)
		}
		for key, m := range ch.Members {
			u, ok := s.users[key]
			if !ok {
				return fmt.Errorf("member %q of %s is not a known user", key, ch.Name)
			}
			if u != m.User {
				return fmt.Errorf("member %q of %s refers to a different user", key, ch.Name)
			}
			if s.fold(u.Nick) != key {
				return fmt.Errorf("user %q stored under %q", u.Nick, key)
			}
		}
	}
	return nil
}
