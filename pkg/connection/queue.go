package connection

import (
	"sync"

	"github.com/tehcyx/ircc/pkg/ircmsg"
)

// outbox is an unbounded FIFO. Push never blocks.
type outbox struct {
	mu     sync.Mutex
	items  []*ircmsg.Message
	notify chan struct{}
}

func newOutbox() *outbox {
	return &outbox{notify: make(chan struct{}, 1)}
}

func (q *outbox) push(m *ircmsg.Message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *outbox) drain() []*ircmsg.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *outbox) pop() (*ircmsg.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	m := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return m, true
}

func (q *outbox) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
