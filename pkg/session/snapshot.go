package session

import (
	"sort"
	"strings"
	"time"
)

type ChannelSnapshot struct {
	Name    string
	Topic   string
	TopicBy string
	TopicAt time.Time
	Modes   string
	// Members carry their highest prefix symbol, ordered by rank then nick.
	Members []string
}

// Snapshot is a copy of the session for redrawing a display.
type Snapshot struct {
	ServerID     string
	Nick         string
	Network      string
	Registered   bool
	Away         bool
	UserModes    string
	Capabilities []string
	Channels     []ChannelSnapshot
	Queries      []string
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ServerID:   s.cfg.ServerID,
		Nick:       s.nick,
		Network:    s.isupport.Network,
		Registered: s.registered,
		Away:       s.away,
		UserModes:  s.userModes,
	}
	for name, on := range s.caps {
		if on {
			snap.Capabilities = append(snap.Capabilities, name)
		}
	}
	sort.Strings(snap.Capabilities)

	for _, ch := range s.channels {
		snap.Channels = append(snap.Channels, s.snapshotChannel(ch))
	}
	sort.Slice(snap.Channels, func(i, j int) bool {
		return s.fold(snap.Channels[i].Name) < s.fold(snap.Channels[j].Name)
	})

	for _, q := range s.queries {
		snap.Queries = append(snap.Queries, q)
	}
	sort.Slice(snap.Queries, func(i, j int) bool {
		return s.fold(snap.Queries[i]) < s.fold(snap.Queries[j])
	})
	return snap
}

func (s *Session) snapshotChannel(ch *Channel) ChannelSnapshot {
	return ChannelSnapshot{
		Name:    ch.Name,
		Topic:   ch.Topic.Text,
		TopicBy: ch.Topic.SetBy,
		TopicAt: ch.Topic.SetAt,
		Modes:   s.formatModes(ch.Modes),
		Members: s.memberList(ch),
	}
}

func (s *Session) formatModes(modes map[byte]string) string {
	if len(modes) == 0 {
		return ""
	}
	letters := make([]byte, 0, len(modes))
	for l := range modes {
		letters = append(letters, l)
	}
	sort.Slice(letters, func(i, j int) bool { return letters[i] < letters[j] })

	var args []string
	for _, l := range letters {
		if a := modes[l]; a != "" {
			args = append(args, a)
		}
	}
	out := "+" + string(letters)
	if len(args) > 0 {
		out += " " + strings.Join(args, " ")
	}
	return out
}

// memberList renders members as they appear in a nick list.
func (s *Session) memberList(ch *Channel) []string {
	type entry struct {
		rank int
		key  string
		disp string
	}
	entries := make([]entry, 0, len(ch.Members))
	for key, m := range ch.Members {
		rank := len(s.isupport.Prefix)
		disp := m.User.Nick
		if m.Modes != "" {
			rank = s.isupport.prefixRank(m.Modes[0])
			if sym := s.isupport.symbolForMode(m.Modes[0]); sym != 0 {
				disp = string(sym) + disp
			}
		}
		entries = append(entries, entry{rank: rank, key: key, disp: disp})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].rank != entries[j].rank {
			return entries[i].rank < entries[j].rank
		}
		return entries[i].key < entries[j].key
	})

	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.disp
	}
	return out
}
