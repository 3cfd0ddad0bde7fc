// Package conn keeps one live connection to the notification endpoint and
// recovers from drops with bounded exponential backoff.
package conn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"

	"laundry-notifier/metrics"
)

// Default retry policy. Both values are configuration, not contract.
const (
	DefaultBaseDelay  = 2 * time.Second
	DefaultMaxRetries = 5
)

// Conn is one open transport to the endpoint.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// TokenSource reports the current session token. An empty token means the
// user is signed out.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Config holds manager configuration.
type Config struct {
	Dialer     Dialer
	Clock      clock.Clock // Defaults to clock.WallClock
	Tokens     TokenSource // Optional; gates Connect on token presence
	Logger     *slog.Logger
	OnFrame    func(raw []byte)
	OnGiveUp   func()
	Endpoint   string
	BaseDelay  time.Duration
	MaxRetries int
}

// Status is a snapshot of a manager for status pages.
type Status struct {
	NextRetry  time.Time `json:"next_retry,omitzero"`
	Endpoint   string    `json:"endpoint"`
	State      State     `json:"state"`
	Retries    int       `json:"retries"`
	MaxRetries int       `json:"max_retries"`
	Refs       int       `json:"refs"`
}

// Manager owns the connection loop. Its hooks (OnFrame, OnGiveUp) run on the
// loop goroutine and must not call Connect, Teardown or release functions.
type Manager struct {
	dialer     Dialer
	clock      clock.Clock
	tokens     TokenSource
	logger     *slog.Logger
	onFrame    func([]byte)
	onGiveUp   func()
	endpoint   string
	baseDelay  time.Duration
	maxRetries int

	// lifecycle serializes Connect, Teardown and reference counting.
	lifecycle sync.Mutex
	refs      atomic.Int64

	mu        sync.Mutex
	state     State
	retries   int
	nextRetry time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a manager in the Idle state.
func New(cfg *Config) *Manager {
	m := &Manager{
		dialer:     cfg.Dialer,
		clock:      cfg.Clock,
		tokens:     cfg.Tokens,
		logger:     cfg.Logger,
		onFrame:    cfg.OnFrame,
		onGiveUp:   cfg.OnGiveUp,
		endpoint:   cfg.Endpoint,
		baseDelay:  cfg.BaseDelay,
		maxRetries: cfg.MaxRetries,
		state:      Idle,
	}
	if m.clock == nil {
		m.clock = clock.WallClock
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.onFrame == nil {
		m.onFrame = func([]byte) {}
	}
	if m.onGiveUp == nil {
		m.onGiveUp = func() {}
	}
	if m.baseDelay <= 0 {
		m.baseDelay = DefaultBaseDelay
	}
	if m.maxRetries <= 0 {
		m.maxRetries = DefaultMaxRetries
	}
	return m
}

// Connect starts the connection loop. It is a no-op while a loop is already
// running, so at most one attempt is ever in flight. Calling it after the
// manager gave up is the manual reconnect path and starts from zero retries.
func (m *Manager) Connect(ctx context.Context) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.connect(ctx)
}

// Teardown cancels any pending reconnect timer, closes the transport and
// waits for the loop to exit. Once it returns no hook will run again.
func (m *Manager) Teardown() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.teardown()
}

// Acquire registers a consumer of the shared connection. A consumer
// connects when no loop is running and the manager is Idle or Closed, so a
// holder that acquired while signed out does not keep later consumers
// offline. A manager that gave up stays down until Connect. The returned
// release tears the connection down once the last consumer is gone. Release
// is safe to call more than once.
func (m *Manager) Acquire(ctx context.Context) (release func()) {
	m.lifecycle.Lock()
	refs := m.refs.Add(1)
	if refs == 1 || m.stopped() {
		m.connect(ctx)
	}
	m.logger.Debug("Connection acquired", "refs", refs)
	m.lifecycle.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.lifecycle.Lock()
			defer m.lifecycle.Unlock()
			refs := m.refs.Add(-1)
			m.logger.Debug("Connection released", "refs", refs)
			if refs == 0 {
				m.teardown()
			}
		})
	}
}

// stopped reports whether no loop is running and none has given up.
func (m *Manager) stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done == nil && (m.state == Idle || m.state == Closed)
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Retries returns the number of consecutive drops since the last open.
func (m *Manager) Retries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries
}

// Status returns a snapshot of the manager.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		Endpoint:   m.endpoint,
		State:      m.state,
		Retries:    m.retries,
		MaxRetries: m.maxRetries,
		Refs:       int(m.refs.Load()),
	}
	if m.state == Reconnecting {
		st.NextRetry = m.nextRetry
	}
	return st
}

func (m *Manager) connect(ctx context.Context) {
	m.mu.Lock()
	running := m.done != nil
	m.mu.Unlock()
	if running {
		m.logger.Debug("Connection attempt already in flight", "endpoint", m.endpoint)
		return
	}

	if m.tokens != nil {
		token, err := m.tokens.Token(ctx)
		if err != nil || token == "" {
			m.logger.Info("No session token, not connecting to notification endpoint",
				"endpoint", m.endpoint,
				"error", err)
			return
		}
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	m.mu.Lock()
	m.cancel = cancel
	m.done = done
	m.retries = 0
	m.setState(Connecting)
	m.mu.Unlock()

	m.logger.Info("Connecting to notification endpoint", "endpoint", m.endpoint)
	go m.run(loopCtx, done)
}

func (m *Manager) teardown() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	m.mu.Lock()
	prev := m.state
	m.setState(Closed)
	m.mu.Unlock()

	m.logger.Info("Notification connection torn down", "endpoint", m.endpoint, "previous_state", prev.String())
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer func() {
		m.mu.Lock()
		if m.done == done {
			m.done = nil
			m.cancel = nil
		}
		m.mu.Unlock()
		close(done)
	}()

	for {
		c, err := m.dialer.Dial(ctx, m.endpoint)
		if err == nil {
			m.opened()
			err = m.serve(ctx, c)
		}
		if ctx.Err() != nil {
			return
		}

		delay, retry := m.dropped(err)
		if !retry {
			metrics.GiveUps.Inc()
			m.logger.Error("Giving up on notification endpoint, real-time updates unavailable",
				"endpoint", m.endpoint,
				"max_retries", m.maxRetries,
				"error", err)
			m.onGiveUp()
			return
		}

		timer := m.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}
		if ctx.Err() != nil {
			return
		}

		m.mu.Lock()
		m.setState(Connecting)
		m.mu.Unlock()
	}
}

func (m *Manager) opened() {
	m.mu.Lock()
	retries := m.retries
	m.retries = 0
	m.setState(Open)
	m.mu.Unlock()

	m.logger.Info("Notification connection open", "endpoint", m.endpoint, "after_retries", retries)
}

// dropped records a drop and returns the delay before the next attempt, or
// false once the retry ceiling is exhausted.
func (m *Manager) dropped(err error) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.retries >= m.maxRetries {
		m.setState(GivenUp)
		return 0, false
	}

	m.retries++
	delay := Backoff(m.baseDelay, m.retries)
	m.nextRetry = m.clock.Now().Add(delay)
	m.setState(Reconnecting)
	metrics.ReconnectAttempts.Inc()

	m.logger.Warn("Notification connection dropped, scheduling reconnect",
		"endpoint", m.endpoint,
		"retry_count", m.retries,
		"max_retries", m.maxRetries,
		"delay", delay.String(),
		"error", err)
	return delay, true
}

func (m *Manager) serve(ctx context.Context, c Conn) error {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			_ = c.Close() // unblocks ReadMessage
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		wg.Wait()
		if err := c.Close(); err != nil {
			m.logger.Debug("Transport close failed", "error", err)
		}
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.onFrame(data)
	}
}

// setState must be called with m.mu held.
func (m *Manager) setState(s State) {
	if m.state == s {
		return
	}
	m.state = s
	reportState(s)
}
