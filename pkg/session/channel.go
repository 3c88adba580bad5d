package session

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tehcyx/ircc/pkg/event"
	"github.com/tehcyx/ircc/pkg/ircmsg"
)

func handleJoin(s *Session, m *ircmsg.Message, r *Result) {
	name := m.Param(0)
	src := m.Source()
	if name == "" || src.Name == "" {
		r.Err = violation("JOIN without channel or source")
		return
	}

	key := s.fold(name)
	ch, ok := s.channels[key]
	if s.isSelf(src.Name) {
		if !ok {
			ch = &Channel{Name: name, Members: map[string]*Member{}, Modes: map[byte]string{}}
			s.channels[key] = ch
		}
		r.send(ircmsg.New(ircmsg.ModeCmd, name))
	} else if !ok {
		r.Err = violation("JOIN of %s to %s which we are not in", src.Name, name)
		return
	}

	u := s.updateUser(src)
	userKey := s.fold(src.Name)
	if _, member := ch.Members[userKey]; !member {
		ch.Members[userKey] = &Member{User: u}
	}

	r.emit(s.event(m, event.Join, ch.Name))
}

func handlePart(s *Session, m *ircmsg.Message, r *Result) {
	src := m.Source()
	reason := ""
	if len(m.Params) > 1 {
		reason = m.Trailing()
	}

	for _, name := range strings.Split(m.Param(0), ",") {
		ch, ok := s.channels[s.fold(name)]
		if !ok {
			r.Err = violation("PART of %s from unknown channel %s", src.Name, name)
			continue
		}

		ev := s.event(m, event.Part, ch.Name)
		ev.Text = reason

		if s.isSelf(src.Name) {
			s.dropChannel(ch)
			s.forgetChannel(ch.Name)
		} else if !s.removeMember(ch, src.Name) {
			r.Err = violation("PART of %s who is not in %s", src.Name, ch.Name)
			continue
		}
		r.emit(ev)
	}
}

func handleKick(s *Session, m *ircmsg.Message, r *Result) {
	name, victim := m.Param(0), m.Param(1)
	ch, ok := s.channels[s.fold(name)]
	if !ok || victim == "" {
		r.Err = violation("KICK from unknown channel %s", name)
		return
	}

	ev := s.event(m, event.Kick, ch.Name)
	ev.Subject = victim
	if len(m.Params) > 2 {
		ev.Text = m.Trailing()
	}

	if s.isSelf(victim) {
		s.dropChannel(ch)
		s.forgetChannel(ch.Name)
	} else if !s.removeMember(ch, victim) {
		r.Err = violation("KICK of %s who is not in %s", victim, ch.Name)
		return
	}
	r.emit(ev)
}

func handleQuit(s *Session, m *ircmsg.Message, r *Result) {
	src := m.Source()
	key := s.fold(src.Name)
	if s.isSelf(src.Name) {
		return
	}

	for _, name := range s.channelsOf(key) {
		ch := s.channels[s.fold(name)]
		delete(ch.Members, key)
		ev := s.event(m, event.Quit, ch.Name)
		ev.Text = m.Trailing()
		r.emit(ev)
	}
	if q, ok := s.queries[key]; ok {
		ev := s.event(m, event.Quit, q)
		ev.Text = m.Trailing()
		r.emit(ev)
	}
	if _, ok := s.queries[key]; !ok {
		delete(s.users, key)
	}
}

// channelsOf lists the channels a user is in, sorted.
func (s *Session) channelsOf(key string) []string {
	var names []string
	for _, ch := range s.channels {
		if _, ok := ch.Members[key]; ok {
			names = append(names, ch.Name)
		}
	}
	sort.Slice(names, func(i, j int) bool { return s.fold(names[i]) < s.fold(names[j]) })
	return names
}

func handleNick(s *Session, m *ircmsg.Message, r *Result) {
	src := m.Source()
	newNick := m.Param(0)
	if src.Name == "" || newNick == "" {
		r.Err = violation("NICK without source or target")
		return
	}
	self := s.isSelf(src.Name)
	if !self && s.isSelf(newNick) {
		r.Err = violation("%s took our nick %s", src.Name, newNick)
		return
	}

	channels, query := s.rename(src.Name, newNick)

	if self {
		s.nick = newNick
		s.pendingNick = ""
	}

	emit := func(target string) {
		ev := s.event(m, event.Nick, target)
		ev.Subject = newNick
		r.emit(ev)
	}
	if self {
		emit("")
	}
	for _, name := range channels {
		emit(name)
	}
	if query != "" {
		emit(query)
	}
}

func handleTopic(s *Session, m *ircmsg.Message, r *Result) {
	ch, ok := s.channels[s.fold(m.Param(0))]
	if !ok {
		r.Err = violation("TOPIC for unknown channel %s", m.Param(0))
		return
	}
	ch.Topic = Topic{Text: m.Param(1), SetBy: m.Source().Name, SetAt: s.eventTime(m)}
	if ch.Topic.Text == "" {
		ch.Topic.SetBy = ""
	}

	ev := s.event(m, event.Topic, ch.Name)
	ev.Text = ch.Topic.Text
	r.emit(ev)
}

func handleNoTopic(s *Session, m *ircmsg.Message, r *Result) {
	ch, ok := s.channels[s.fold(m.Param(1))]
	if !ok {
		return
	}
	ch.Topic = Topic{}
	ev := s.event(m, event.Topic, ch.Name)
	ev.Nick = ""
	r.emit(ev)
}

func handleRplTopic(s *Session, m *ircmsg.Message, r *Result) {
	ch, ok := s.channels[s.fold(m.Param(1))]
	if !ok {
		handleServerText(s, m, r)
		return
	}
	ch.Topic.Text = m.Param(2)
	ev := s.event(m, event.Topic, ch.Name)
	ev.Nick = ""
	ev.Text = ch.Topic.Text
	r.emit(ev)
}

func handleTopicWhoTime(s *Session, m *ircmsg.Message, r *Result) {
	ch, ok := s.channels[s.fold(m.Param(1))]
	if !ok {
		return
	}
	ch.Topic.SetBy = ircmsg.ParseSource(m.Param(2)).Name
	if sec, err := strconv.ParseInt(m.Param(3), 10, 64); err == nil {
		ch.Topic.SetAt = time.Unix(sec, 0).UTC()
	}
}

func handleMode(s *Session, m *ircmsg.Message, r *Result) {
	target := m.Param(0)
	if len(m.Params) < 2 {
		r.Err = violation("MODE without modes")
		return
	}

	if !s.isChannel(target) {
		if !s.isSelf(target) {
			r.Err = violation("MODE for foreign user %s", target)
			return
		}
		s.userModes = applyUserModes(s.userModes, m.Param(1))
		ev := s.event(m, event.Mode, "")
		ev.Subject = target
		ev.Modes = m.Params[1:]
		r.emit(ev)
		return
	}

	ch, ok := s.channels[s.fold(target)]
	if !ok {
		r.Err = violation("MODE for unknown channel %s", target)
		return
	}
	if err := s.applyChannelModes(ch, m.Param(1), m.Params[2:]); err != nil {
		r.Err = err
	}

	ev := s.event(m, event.Mode, ch.Name)
	ev.Subject = ch.Name
	ev.Modes = m.Params[1:]
	r.emit(ev)
}

func handleChannelModes(s *Session, m *ircmsg.Message, r *Result) {
	ch, ok := s.channels[s.fold(m.Param(1))]
	if !ok || len(m.Params) < 3 {
		handleServerText(s, m, r)
		return
	}
	ch.Modes = map[byte]string{}
	if err := s.applyChannelModes(ch, m.Param(2), m.Params[3:]); err != nil {
		r.Err = err
	}

	ev := s.event(m, event.Mode, ch.Name)
	ev.Nick = ""
	ev.Subject = ch.Name
	ev.Modes = m.Params[2:]
	r.emit(ev)
}

// applyChannelModes interprets a mode string with its arguments. Membership
// modes update members, list modes are not tracked, everything else lands in
// Channel.Modes as given.
func (s *Session) applyChannelModes(ch *Channel, modes string, args []string) error {
	adding := true
	var err error
	for i := 0; i < len(modes); i++ {
		c := modes[i]
		switch c {
		case '+':
			adding = true
			continue
		case '-':
			adding = false
			continue
		}

		arg := ""
		if s.isupport.modeTakesArg(c, adding) {
			if len(args) == 0 {
				err = violation("mode %c on %s is missing its argument", c, ch.Name)
				continue
			}
			arg, args = args[0], args[1:]
		}

		switch {
		case s.isupport.prefixRank(c) >= 0:
			mem, ok := ch.Members[s.fold(arg)]
			if !ok {
				err = violation("mode %c for %s who is not in %s", c, arg, ch.Name)
				continue
			}
			mem.Modes = s.setMemberMode(mem.Modes, c, adding)
		case s.isupport.isListMode(c):
		case adding:
			ch.Modes[c] = arg
		default:
			delete(ch.Modes, c)
		}
	}
	return err
}

// setMemberMode keeps membership modes ordered by rank.
func (s *Session) setMemberMode(current string, mode byte, adding bool) string {
	has := strings.IndexByte(current, mode) >= 0
	if adding == has {
		return current
	}
	if !adding {
		return strings.ReplaceAll(current, string(mode), "")
	}
	var b strings.Builder
	for _, p := range s.isupport.Prefix {
		if p.Mode == mode || strings.IndexByte(current, p.Mode) >= 0 {
			b.WriteByte(p.Mode)
		}
	}
	return b.String()
}

func applyUserModes(current, change string) string {
	adding := true
	for i := 0; i < len(change); i++ {
		c := change[i]
		switch {
		case c == '+':
			adding = true
		case c == '-':
			adding = false
		case adding && strings.IndexByte(current, c) < 0:
			current += string(c)
		case !adding:
			current = strings.ReplaceAll(current, string(c), "")
		}
	}
	return current
}

// handleNameReply buffers one 353 line until 366 completes the list.
func handleNameReply(s *Session, m *ircmsg.Message, r *Result) {
	if len(m.Params) < 4 {
		r.Err = violation("short NAMES reply")
		return
	}
	key := s.fold(m.Params[2])
	s.names[key] = append(s.names[key], strings.Fields(m.Params[3])...)
}

// handleEndOfNames replaces the member set of a joined channel with the
// buffered list. A list that includes us for a channel we did not see the
// JOIN for creates the channel.
func handleEndOfNames(s *Session, m *ircmsg.Message, r *Result) {
	name := m.Param(1)
	key := s.fold(name)
	entries := s.names[key]
	delete(s.names, key)

	type parsed struct {
		src   ircmsg.Source
		modes string
	}
	list := make([]parsed, 0, len(entries))
	includesSelf := false
	for _, entry := range entries {
		modes := ""
		for len(entry) > 0 {
			mode, ok := s.isupport.modeForSymbol(entry[0])
			if !ok {
				break
			}
			modes = s.setMemberMode(modes, mode, true)
			entry = entry[1:]
		}
		if entry == "" {
			continue
		}
		src := ircmsg.ParseSource(entry)
		if s.isSelf(src.Name) {
			includesSelf = true
		}
		list = append(list, parsed{src: src, modes: modes})
	}

	ch, ok := s.channels[key]
	if !ok && includesSelf {
		ch = &Channel{Name: name, Members: map[string]*Member{}, Modes: map[byte]string{}}
		s.channels[key] = ch
		ok = true
	}

	ev := s.event(m, event.Names, name)
	ev.Nick = ""
	if !ok {
		for _, p := range list {
			disp := p.src.Name
			if p.modes != "" {
				disp = string(s.isupport.symbolForMode(p.modes[0])) + disp
			}
			ev.Members = append(ev.Members, disp)
		}
		ev.Target = ""
		ev.Subject = name
		r.emit(ev)
		return
	}

	previous := ch.Members
	ch.Members = make(map[string]*Member, len(list))
	for _, p := range list {
		ch.Members[s.fold(p.src.Name)] = &Member{User: s.updateUser(p.src), Modes: p.modes}
	}
	if !includesSelf {
		selfKey := s.fold(s.nick)
		if mem, ok := previous[selfKey]; ok {
			ch.Members[selfKey] = mem
		}
	}
	for k := range previous {
		s.collect(k)
	}

	ev.Target = ch.Name
	ev.Subject = ch.Name
	ev.Members = s.memberList(ch)
	r.emit(ev)
}
