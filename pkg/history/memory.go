package history

import (
	"context"
	"sync"

	"github.com/tehcyx/ircc/pkg/event"
)

// MemoryStore keeps history in process.
type MemoryStore struct {
	mu      sync.Mutex
	size    int
	servers map[string]map[string]*ring
}

// ring is a fixed capacity buffer of events; next is the slot written next.
type ring struct {
	events []event.DisplayEvent
	next   int
	full   bool
}

func NewMemoryStore(size int) *MemoryStore {
	if size <= 0 {
		size = DefaultSize
	}
	return &MemoryStore{size: size, servers: map[string]map[string]*ring{}}
}

func (s *MemoryStore) Append(_ context.Context, ev event.DisplayEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buffers, ok := s.servers[ev.ServerID]
	if !ok {
		buffers = map[string]*ring{}
		s.servers[ev.ServerID] = buffers
	}
	key := bufferKey(ev.Target)
	r, ok := buffers[key]
	if !ok {
		r = &ring{events: make([]event.DisplayEvent, s.size)}
		buffers[key] = r
	}

	r.events[r.next] = ev
	r.next = (r.next + 1) % len(r.events)
	if r.next == 0 {
		r.full = true
	}
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, serverID, buffer string, limit int) ([]event.DisplayEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.servers[serverID][bufferKey(buffer)]
	if !ok {
		return nil, nil
	}

	var ordered []event.DisplayEvent
	if r.full {
		ordered = append(ordered, r.events[r.next:]...)
	}
	ordered = append(ordered, r.events[:r.next]...)

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered, nil
}

func (s *MemoryStore) Forget(_ context.Context, serverID string) error {
	s.mu.Lock()
	delete(s.servers, serverID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
