package engine

import (
	"sync"

	"github.com/tehcyx/ircc/pkg/event"
)

// pump is an unbounded FIFO drained by its own goroutine, so producers never
// wait on whatever deliver does with an event.
type pump struct {
	mu      sync.Mutex
	queue   []event.DisplayEvent
	closing bool

	notify  chan struct{}
	deliver func(event.DisplayEvent)
	done    chan struct{}
}

func newPump(deliver func(event.DisplayEvent)) *pump {
	p := &pump{
		notify:  make(chan struct{}, 1),
		deliver: deliver,
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *pump) push(ev event.DisplayEvent) {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, ev)
	p.mu.Unlock()
	p.signal()
}

// close stops accepting events; done is closed once the queue has drained.
func (p *pump) close() {
	p.mu.Lock()
	p.closing = true
	p.mu.Unlock()
	p.signal()
}

func (p *pump) signal() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *pump) run() {
	defer close(p.done)
	for {
		p.mu.Lock()
		batch, closing := p.queue, p.closing
		p.queue = nil
		p.mu.Unlock()

		for _, ev := range batch {
			p.deliver(ev)
		}
		if len(batch) > 0 {
			continue
		}
		if closing {
			return
		}
		<-p.notify
	}
}
