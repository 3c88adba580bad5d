// Package connection owns one server transport: dialing, registration,
// framing, pacing of outbound lines and reconnecting with backoff.
package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tehcyx/ircc/pkg/ircmsg"
	"github.com/tehcyx/ircc/pkg/metrics"
)

const (
	writeTimeout = 30 * time.Second
	quitTimeout  = time.Second
)

var (
	// ErrClosed is returned by operations on a closed Connection.
	ErrClosed = errors.New("connection closed")
	// ErrNotConnected is returned by Send while no transport is registering
	// or registered.
	ErrNotConnected = errors.New("not connected")
)

// Connection is a reconnecting client transport to a single server. All
// methods are safe for concurrent use and none of them block on the network.
type Connection struct {
	cfg     Config
	dialer  Dialer
	metrics *metrics.Metrics
	log     *log.Entry

	events  chan Event
	closed  chan struct{}
	wake    chan struct{}
	out     *outbox
	limiter *rate.Limiter
	wmu     sync.Mutex

	attempt atomic.Uint64

	mu           sync.Mutex
	state        State
	gen          uint64
	nick         string
	transport    net.Conn
	cancel       context.CancelFunc
	runDone      chan struct{}
	immediate    bool
	quitReason   string
	lastActivity time.Time
	isClosed     bool
}

// Option configures a Connection.
type Option func(*Connection)

// WithDialer replaces the proxy-aware default dialer.
func WithDialer(d Dialer) Option {
	return func(c *Connection) {
		c.dialer = d
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Connection) {
		c.metrics = m
	}
}

func WithLogger(l *log.Entry) Option {
	return func(c *Connection) {
		c.log = l
	}
}

// New creates a Disconnected connection. Nothing happens until Connect.
func New(cfg Config, opts ...Option) *Connection {
	cfg = cfg.withDefaults()
	c := &Connection{
		cfg:    cfg,
		log:    log.WithFields(log.Fields{"server": cfg.Name}),
		events: make(chan Event, 64),
		closed: make(chan struct{}),
		wake:   make(chan struct{}, 1),
		out:    newOutbox(),
		nick:   cfg.Nick,
	}

	limit := rate.Inf
	if cfg.SendRate > 0 {
		limit = rate.Limit(cfg.SendRate)
	}
	c.limiter = rate.NewLimiter(limit, cfg.SendBurst)

	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = environmentDialer(cfg)
	}
	return c
}

func (c *Connection) ID() string { return c.cfg.ID }

func (c *Connection) Config() Config { return c.cfg }

// Events delivers state changes, messages and parse failures in the order
// they happened. The channel is closed by Close.
func (c *Connection) Events() <-chan Event { return c.events }

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Nick is the nickname the server currently knows us by.
func (c *Connection) Nick() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nick
}

func (c *Connection) SetNick(nick string) {
	c.mu.Lock()
	c.nick = nick
	c.mu.Unlock()
}

func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Attempt identifies the current transport attempt. It changes on every
// dial and on Disconnect.
func (c *Connection) Attempt() uint64 {
	return c.attempt.Load()
}

// Connect starts connecting in the background. While Reconnecting it skips
// the remaining backoff delay; in any other live state it does nothing.
func (c *Connection) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return ErrClosed
	}
	if c.cancel != nil {
		if c.state == Reconnecting {
			c.poke()
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.gen++
	r := &runner{c: c, gen: c.gen, ctx: ctx, cancel: cancel, cur: Disconnected}
	c.cancel = cancel
	c.state = Connecting
	c.quitReason = ""

	prev := c.runDone
	done := make(chan struct{})
	c.runDone = done
	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		r.run()
	}()
	return nil
}

// Disconnect sends QUIT when a transport is up, tears it down and cancels any
// pending retry. Messages read before the call are reported under a stale
// attempt.
func (c *Connection) Disconnect(reason string) {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return
	}
	cancel, transport := c.cancel, c.transport
	c.cancel = nil
	c.gen++
	c.state = Disconnected
	c.quitReason = reason
	c.attempt.Add(1)
	c.mu.Unlock()

	if transport != nil {
		c.quit(transport, reason)
	}
	cancel()
}

// Reconnect drops the current transport and dials again without delay.
func (c *Connection) Reconnect(reason string) error {
	c.mu.Lock()
	if c.isClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.cancel == nil {
		c.mu.Unlock()
		return c.Connect()
	}
	c.immediate = true
	transport := c.transport
	c.poke()
	c.mu.Unlock()

	if transport != nil {
		c.quit(transport, reason)
		transport.Close()
	}
	return nil
}

// Send queues m for the writer. It never blocks. Lines are only accepted
// while a transport is registering or registered; anything else is refused
// with ErrNotConnected rather than held for a server that may never see it.
func (c *Connection) Send(m *ircmsg.Message) error {
	c.mu.Lock()
	closed, state := c.isClosed, c.state
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if state != Registering && state != Connected {
		return ErrNotConnected
	}
	if _, err := m.Bytes(); err != nil {
		return err
	}
	c.out.push(m)
	return nil
}

// Queued is the number of lines waiting for the writer.
func (c *Connection) Queued() int {
	return c.out.len()
}

// Close disconnects, waits for the background goroutines and closes Events.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.isClosed {
		c.mu.Unlock()
		return
	}
	c.isClosed = true
	c.mu.Unlock()

	c.Disconnect("")
	close(c.closed)

	c.mu.Lock()
	done := c.runDone
	c.mu.Unlock()
	if done != nil {
		<-done
	}
	close(c.events)
}

func (c *Connection) poke() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Connection) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.closed:
	}
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func (c *Connection) writeMessage(conn net.Conn, m *ircmsg.Message) error {
	line, err := m.Bytes()
	if err != nil {
		c.log.Warnf("dropping %s: %v", m.Command, err)
		return nil
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if _, err := conn.Write(line); err != nil {
		return err
	}
	c.log.Debugf("-> %s", m)
	c.metrics.LineSent(c.cfg.Name)
	return nil
}

func (c *Connection) quit(conn net.Conn, reason string) {
	m := ircmsg.New(ircmsg.QuitCmd)
	if reason != "" {
		m = ircmsg.New(ircmsg.QuitCmd, reason)
	}
	line, err := m.Bytes()
	if err != nil {
		c.log.Debugf("failed to send QUIT: %v", err)
		return
	}

	// Unblocks a writer stuck on a full socket before we take wmu.
	_ = conn.SetWriteDeadline(time.Now().Add(quitTimeout))

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := conn.Write(line); err != nil {
		c.log.Debugf("failed to send QUIT: %v", err)
	}
}

// runner drives one Connect call until it ends in Disconnected.
type runner struct {
	c      *Connection
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	cur    State // guarded by c.mu
}

func (r *runner) transition(to State, ev Event) {
	c := r.c

	c.mu.Lock()
	ev.From = r.cur
	r.cur = to
	if c.gen == r.gen {
		c.state = to
	}
	c.mu.Unlock()

	ev.Kind = StateChanged
	ev.To = to
	ev.Attempt = c.attempt.Load()

	if ev.Err != nil {
		c.log.Infof("%s -> %s: %v", ev.From, to, ev.Err)
	} else {
		c.log.Infof("%s -> %s", ev.From, to)
	}
	c.metrics.SetState(c.cfg.Name, to.String())
	c.emit(ev)
}

func (r *runner) stop(ev Event) {
	c := r.c
	c.mu.Lock()
	if c.gen == r.gen {
		c.cancel = nil
	}
	if ev.Reason == "" {
		ev.Reason = c.quitReason
	}
	c.mu.Unlock()
	r.cancel()
	r.transition(Disconnected, ev)
}

func (r *runner) run() {
	c := r.c
	backoff := c.cfg.Backoff.strategy()
	retries := 0

	r.transition(Connecting, Event{})
	for {
		c.attempt.Add(1)
		c.out.drain()

		welcomed, err := r.attempt()
		if r.ctx.Err() != nil {
			r.stop(Event{})
			return
		}

		c.mu.Lock()
		forced := c.immediate
		c.immediate = false
		c.mu.Unlock()

		if forced || (!welcomed.IsZero() && time.Since(welcomed) >= c.cfg.MinUptime) {
			backoff.Reset()
			retries = 0
		}

		var delay time.Duration
		reason := "connection lost"
		if forced {
			reason = "reconnect requested"
		} else {
			retries++
			if c.cfg.MaxRetries > 0 && retries > c.cfg.MaxRetries {
				r.stop(Event{Reason: fmt.Sprintf("giving up after %d attempts", retries), Err: err})
				return
			}
			delay = backoff.Next()
		}

		c.metrics.Reconnect(c.cfg.Name)
		r.transition(Reconnecting, Event{Reason: reason, Delay: delay, Retry: retries, Err: err})

		select {
		case <-c.wake:
		default:
		}
		timer := time.NewTimer(delay)
		select {
		case <-r.ctx.Done():
			timer.Stop()
			r.stop(Event{})
			return
		case <-c.wake:
			timer.Stop()
			c.mu.Lock()
			c.immediate = false
			c.mu.Unlock()
		case <-timer.C:
		}

		r.transition(Connecting, Event{})
	}
}

// attempt runs one transport from dial to failure and reports when the
// server welcomed us, zero if it never did.
func (r *runner) attempt() (time.Time, error) {
	c := r.c

	conn, err := dial(r.ctx, c.dialer, c.cfg)
	if err != nil {
		return time.Time{}, err
	}

	c.mu.Lock()
	if c.gen != r.gen {
		c.mu.Unlock()
		conn.Close()
		return time.Time{}, r.ctx.Err()
	}
	c.transport = conn
	c.lastActivity = time.Now()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.transport == conn {
			c.transport = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	r.transition(Registering, Event{})
	if err := r.register(conn); err != nil {
		return time.Time{}, &TransportError{Op: "register", Err: err}
	}

	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()

	var (
		welcomed time.Time
		wg       sync.WaitGroup
		errc     = make(chan error, 2)
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errc <- r.read(ctx, conn, &welcomed)
	}()
	go func() {
		defer wg.Done()
		errc <- r.write(ctx, conn)
	}()

	select {
	case err = <-errc:
	case <-ctx.Done():
		err = ctx.Err()
	}
	cancel()
	conn.Close()
	wg.Wait()

	return welcomed, err
}

func (r *runner) register(conn net.Conn) error {
	c := r.c
	lines := []*ircmsg.Message{ircmsg.New(ircmsg.CapCmd, "LS", "302")}
	if c.cfg.Password != "" {
		lines = append(lines, ircmsg.New(ircmsg.PassCmd, c.cfg.Password))
	}
	lines = append(lines,
		ircmsg.New(ircmsg.NickCmd, c.cfg.Nick),
		ircmsg.New(ircmsg.UserCmd, c.cfg.Username, "0", "*", c.cfg.Realname),
	)

	c.SetNick(c.cfg.Nick)
	for _, m := range lines {
		if err := c.writeMessage(conn, m); err != nil {
			return fmt.Errorf("failed to write %s: %w", m.Command, err)
		}
	}
	return nil
}

func (r *runner) read(ctx context.Context, conn net.Conn, welcomed *time.Time) error {
	c := r.c
	attempt := c.attempt.Load()
	framer := ircmsg.NewFramer(conn, ircmsg.WithMaxLineLength(c.cfg.MaxLineLength))
	pinged := false

	for {
		wait := c.cfg.PingInterval
		if pinged {
			wait = c.cfg.ReadTimeout
		}
		if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
			return &TransportError{Op: "read", Err: err}
		}

		line, err := framer.Next()
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() && ctx.Err() == nil {
				if pinged {
					return &TransportError{Op: "read", Err: fmt.Errorf("no data from server for %s: %w", c.cfg.PingInterval+c.cfg.ReadTimeout, err)}
				}
				pinged = true
				c.out.push(ircmsg.New(ircmsg.PingCmd, c.cfg.Host))
				continue
			}
			return &TransportError{Op: "read", Err: err}
		}

		pinged = false
		c.touch()
		c.metrics.LineReceived(c.cfg.Name)
		if line.Text == "" {
			continue
		}
		c.log.Debugf("<- %s", line.Text)

		msg, cut, err := ircmsg.ParseLimited(line.Text, ircmsg.MaxBodyLength)
		truncated := line.Truncated || cut
		if err != nil {
			c.metrics.ParseError(c.cfg.Name)
			c.emit(Event{Kind: ParseFailed, Attempt: attempt, Line: line.Text, Truncated: truncated, Err: err})
			continue
		}
		if truncated {
			c.metrics.ParseError(c.cfg.Name)
		}

		if msg.Command == ircmsg.RplWelcome && welcomed.IsZero() {
			*welcomed = time.Now()
			if nick := msg.Param(0); nick != "" {
				c.SetNick(nick)
			}
			r.transition(Connected, Event{})
		}
		c.emit(Event{Kind: MessageReceived, Attempt: attempt, Msg: msg, Line: line.Text, Truncated: truncated})
	}
}

func (r *runner) write(ctx context.Context, conn net.Conn) error {
	c := r.c
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.out.notify:
		}

		for {
			m, ok := c.out.pop()
			if !ok {
				break
			}
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			if err := c.writeMessage(conn, m); err != nil {
				return &TransportError{Op: "write", Err: err}
			}
		}
	}
}
