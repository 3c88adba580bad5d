// Package engine runs any number of server sessions and turns everything
// that happens on them into one ordered stream of display events.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/tehcyx/ircc/internal/config"
	"github.com/tehcyx/ircc/pkg/connection"
	"github.com/tehcyx/ircc/pkg/event"
	"github.com/tehcyx/ircc/pkg/history"
	"github.com/tehcyx/ircc/pkg/input"
	"github.com/tehcyx/ircc/pkg/metrics"
	"github.com/tehcyx/ircc/pkg/session"
	"github.com/tehcyx/ircc/pkg/version"
)

const historyTimeout = 2 * time.Second

var (
	ErrUnknownServer = errors.New("unknown server")
	ErrClosed        = errors.New("engine closed")
)

// ServerInfo is a summary of one configured server.
type ServerInfo struct {
	ID    string
	Name  string
	State connection.State
	Nick  string
	// Registered is set once the server welcomed the current transport.
	Registered bool
	// Queued counts lines waiting for the send rate limit.
	Queued int
}

type server struct {
	id      string
	cfg     config.Server
	conn    *connection.Connection
	session *session.Session
	log     *log.Entry
	done    chan struct{}
}

// Engine is safe for concurrent use.
type Engine struct {
	history history.Store
	metrics *metrics.Metrics
	dialer  connection.Dialer
	now     func() time.Time

	out      chan event.DisplayEvent
	display  *pump
	recorder *pump
	// recMu orders appends against Forget of a removed server.
	recMu sync.Mutex

	mu      sync.Mutex
	servers map[string]*server
	order   []string
	focus   input.Focus
	closed  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithHistory replaces the in-memory history.
func WithHistory(s history.Store) Option {
	return func(e *Engine) {
		e.history = s
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithDialer is passed on to every connection.
func WithDialer(d connection.Dialer) Option {
	return func(e *Engine) {
		e.dialer = d
	}
}

// New returns an Engine without servers.
func New(opts ...Option) *Engine {
	e := &Engine{
		now:     time.Now,
		out:     make(chan event.DisplayEvent),
		servers: map[string]*server{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.history == nil {
		e.history = history.NewMemoryStore(history.DefaultSize)
	}

	e.display = newPump(func(ev event.DisplayEvent) { e.out <- ev })
	go func() {
		<-e.display.done
		close(e.out)
	}()
	e.recorder = newPump(e.record)
	return e
}

// Events delivers display events in the order they happened. It is closed
// after Close once every queued event was received.
func (e *Engine) Events() <-chan event.DisplayEvent {
	return e.out
}

// AddServer registers a server without connecting it and returns its id.
func (e *Engine) AddServer(cfg config.Server) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", ErrClosed
	}

	id := uuid.NewString()
	name := cfg.Name
	if name == "" {
		name = cfg.Host
	}
	logger := log.WithFields(log.Fields{"server": name, "id": id})

	opts := []connection.Option{connection.WithMetrics(e.metrics), connection.WithLogger(logger)}
	if e.dialer != nil {
		opts = append(opts, connection.WithDialer(e.dialer))
	}

	s := &server{
		id:   id,
		cfg:  cfg,
		conn: connection.New(connectionConfig(id, cfg), opts...),
		session: session.New(session.Config{
			ServerID:       id,
			Nick:           cfg.Nick,
			AltNicks:       cfg.AltNicks,
			Autojoin:       cfg.Autojoin,
			MaxNickRetries: cfg.MaxNickRetries,
			Version:        version.CTCP(),
		}),
		log:  logger,
		done: make(chan struct{}),
	}
	e.servers[id] = s
	e.order = append(e.order, id)
	if e.focus.ServerID == "" {
		e.focus = input.Focus{ServerID: id}
	}
	go e.work(s)

	logger.Debug("server added")
	return id, nil
}

func connectionConfig(id string, cfg config.Server) connection.Config {
	c := connection.Config{
		ID:            id,
		Name:          cfg.Name,
		Host:          cfg.Host,
		Port:          cfg.Port,
		TLS:           cfg.TLS,
		TLSSkipVerify: cfg.TLSSkipVerify,
		Password:      cfg.Password,
		Nick:          cfg.Nick,
		Username:      cfg.Username,
		Realname:      cfg.Realname,
		MinUptime:     cfg.MinUptime.Duration,
		SendRate:      cfg.SendRate,
		SendBurst:     cfg.SendBurst,
		PingInterval:  cfg.PingInterval.Duration,
	}
	if c.Realname == "" {
		c.Realname = version.Realname()
	}
	switch {
	case cfg.MaxRetries == 0:
		c.MaxRetries = connection.DefaultMaxRetries
	case cfg.MaxRetries > 0:
		c.MaxRetries = cfg.MaxRetries
	}
	if cfg.BackoffBase.Duration > 0 || cfg.BackoffMax.Duration > 0 {
		c.Backoff = connection.DefaultBackoff()
		if cfg.BackoffBase.Duration > 0 {
			c.Backoff.Base = cfg.BackoffBase.Duration
		}
		if cfg.BackoffMax.Duration > 0 {
			c.Backoff.Max = cfg.BackoffMax.Duration
		}
	}
	return c
}

// RemoveServer disconnects a server and forgets its state and history.
func (e *Engine) RemoveServer(id string) error {
	e.mu.Lock()
	s, ok := e.servers[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownServer, id)
	}
	delete(e.servers, id)
	for i, other := range e.order {
		if other == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	refocus := e.focus.ServerID == id
	if refocus {
		e.focus = input.Focus{}
		if len(e.order) > 0 {
			e.focus.ServerID = e.order[0]
		}
	}
	focus := e.focus
	e.mu.Unlock()

	s.conn.Close()
	<-s.done

	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	e.recMu.Lock()
	err := e.history.Forget(ctx, id)
	e.recMu.Unlock()
	if err != nil {
		s.log.Warnf("failed to forget history: %v", err)
	}
	e.metrics.Forget(s.conn.Config().Name)
	s.log.Debug("server removed")

	if refocus {
		e.push(event.DisplayEvent{ServerID: focus.ServerID, Target: focus.Target, Kind: event.Focus})
	}
	return nil
}

func (e *Engine) lookup(id string) (*server, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if s, ok := e.servers[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownServer, id)
}

// resolve accepts an id or a configured name.
func (e *Engine) resolve(ref string) (*server, error) {
	if s, err := e.lookup(ref); !errors.Is(err, ErrUnknownServer) {
		return s, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range e.order {
		s := e.servers[id]
		if strings.EqualFold(s.cfg.Name, ref) || strings.EqualFold(s.conn.Config().Name, ref) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownServer, ref)
}

func (e *Engine) Connect(id string) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	return s.conn.Connect()
}

func (e *Engine) Disconnect(id, reason string) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	s.conn.Disconnect(reason)
	return nil
}

func (e *Engine) Reconnect(id string) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	return s.conn.Reconnect("reconnecting")
}

// Servers lists servers in the order they were added.
func (e *Engine) Servers() []ServerInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ServerInfo, 0, len(e.order))
	for _, id := range e.order {
		s := e.servers[id]
		out = append(out, ServerInfo{
			ID:         id,
			Name:       s.conn.Config().Name,
			State:      s.conn.State(),
			Nick:       s.session.Nick(),
			Registered: s.session.Registered(),
			Queued:     s.conn.Queued(),
		})
	}
	return out
}

func (e *Engine) Snapshot(id string) (session.Snapshot, error) {
	s, err := e.lookup(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return s.session.Snapshot(), nil
}

// History returns up to limit recent events of a buffer, oldest first.
func (e *Engine) History(ctx context.Context, id, buffer string, limit int) ([]event.DisplayEvent, error) {
	if _, err := e.lookup(id); err != nil {
		return nil, err
	}
	return e.history.Recent(ctx, id, buffer, limit)
}

func (e *Engine) Focus() input.Focus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.focus
}

// SetFocus moves input to another buffer and announces it.
func (e *Engine) SetFocus(f input.Focus) error {
	if _, err := e.lookup(f.ServerID); err != nil {
		return err
	}
	e.mu.Lock()
	e.focus = f
	e.mu.Unlock()
	e.push(event.DisplayEvent{ServerID: f.ServerID, Target: f.Target, Kind: event.Focus})
	return nil
}

// Close disconnects every server and closes the history store. Events is
// closed once drained.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	servers := make([]*server, 0, len(e.order))
	for _, id := range e.order {
		servers = append(servers, e.servers[id])
	}
	e.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(s *server) {
			defer wg.Done()
			s.conn.Close()
			<-s.done
		}(s)
	}
	wg.Wait()

	e.recorder.close()
	<-e.recorder.done
	e.display.close()
	return e.history.Close()
}

// push stamps ev and queues it for recording and display. It never waits on
// the history store.
func (e *Engine) push(ev event.DisplayEvent) {
	if ev.Time.IsZero() {
		ev.Time = e.now()
	}
	e.metrics.Event(ev.Kind.String())
	e.recorder.push(ev)
}

// record runs on the recorder goroutine. An event reaches the display only
// after it was recorded, so History never lags behind Events.
func (e *Engine) record(ev event.DisplayEvent) {
	if ev.Kind != event.Focus && ev.ServerID != "" {
		e.recMu.Lock()
		e.mu.Lock()
		_, known := e.servers[ev.ServerID]
		e.mu.Unlock()
		if known {
			ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
			if err := e.history.Append(ctx, ev); err != nil {
				log.Warnf("failed to record history: %v", err)
			}
			cancel()
		}
		e.recMu.Unlock()
	}
	e.display.push(ev)
}

// localError reports a failure that never reached a server.
func (e *Engine) localError(f input.Focus, kind event.ErrKind, err error) {
	e.push(event.DisplayEvent{
		ServerID: f.ServerID,
		Target:   f.Target,
		Kind:     event.Error,
		Severity: event.Low,
		ErrKind:  kind,
		Text:     err.Error(),
		Err:      err,
	})
}
