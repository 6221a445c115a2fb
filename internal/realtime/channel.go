// internal/realtime/channel.go
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/velada/internal/metrics"
	"github.com/sirupsen/logrus"
)

// State is the connection state of a Channel.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDisabled     State = "disabled"
)

const (
	DefaultInitialDelay = 1500 * time.Millisecond
	DefaultMaxDelay     = 15 * time.Second

	dialTimeout = 10 * time.Second
)

// Config holds what a channel needs to reach the event endpoint.
type Config struct {
	// BaseURL is the API base address. If relative, it is resolved against Origin.
	BaseURL string
	Origin  string
	Token   string

	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func (c Config) delays() (time.Duration, time.Duration) {
	initial, ceiling := c.InitialDelay, c.MaxDelay
	if initial <= 0 {
		initial = DefaultInitialDelay
	}
	if ceiling <= 0 {
		ceiling = DefaultMaxDelay
	}
	if ceiling < initial {
		ceiling = initial
	}
	return initial, ceiling
}

// Backoff returns min(initial * 2^attempt, ceiling).
func Backoff(initial, ceiling time.Duration, attempt int) time.Duration {
	d := initial
	for i := 0; i < attempt; i++ {
		if d >= ceiling {
			return ceiling
		}
		d *= 2
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

// Option customizes a Channel.
type Option func(*Channel)

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(ch *Channel) { ch.dialer = d }
}

// WithClock replaces the clock used to schedule retries.
func WithClock(c Clock) Option {
	return func(ch *Channel) { ch.clock = c }
}

// WithLogger sets the logger. Defaults to the logrus standard logger.
func WithLogger(l *logrus.Logger) Option {
	return func(ch *Channel) { ch.logger = l }
}

// WithStateHandler registers a callback invoked, in order, on every state transition.
func WithStateHandler(f func(State)) Option {
	return func(ch *Channel) { ch.onState = f }
}

// Channel keeps at most one live push connection for a session and forwards its events.
// All resources are owned by the handle and released by Close or Disable.
type Channel struct {
	sessionID  uuid.UUID
	url        string
	initial    time.Duration
	ceiling    time.Duration
	onEvent    func(Event)
	onFallback func()
	onState    func(State)

	dialer Dialer
	clock  Clock
	logger *logrus.Logger
	log    *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	attempt int
	timer   Timer
	conn    Conn
	closed  bool
	pending []State

	// notifyMu serializes state callbacks so they are delivered in transition order.
	notifyMu sync.Mutex
}

// Open starts a channel for the session. When enabled is false, or the session id or token
// is missing, the channel goes straight to StateDisabled without touching the network.
func Open(cfg Config, sessionID uuid.UUID, enabled bool, onEvent func(Event), onFallback func(), opts ...Option) *Channel {
	ch := &Channel{
		sessionID:  sessionID,
		onEvent:    onEvent,
		onFallback: onFallback,
		dialer:     WebsocketDialer{},
		clock:      systemClock{},
		state:      StateDisconnected,
	}
	for _, opt := range opts {
		opt(ch)
	}
	if ch.logger == nil {
		ch.logger = logrus.StandardLogger()
	}
	if ch.onEvent == nil {
		ch.onEvent = func(Event) {}
	}
	if ch.onFallback == nil {
		ch.onFallback = func() {}
	}
	ch.log = ch.logger.WithField("session", sessionID)
	ch.initial, ch.ceiling = cfg.delays()
	ch.ctx, ch.cancel = context.WithCancel(context.Background())

	if !enabled || sessionID == uuid.Nil || cfg.Token == "" {
		ch.log.Debug("realtime disabled")
		ch.shutdown(StateDisabled)
		return ch
	}

	url, err := EndpointURL(cfg.BaseURL, cfg.Origin, sessionID, cfg.Token)
	if err != nil {
		ch.log.Warnf("realtime disabled: %v", err)
		ch.shutdown(StateDisabled)
		return ch
	}
	ch.url = url

	go ch.connect()
	return ch
}

// State returns the current connection state.
func (ch *Channel) State() State {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// Attempt returns the retry counter: the number of retries scheduled since the last
// successful connection.
func (ch *Channel) Attempt() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.attempt
}

// Close tears the channel down for good. It is safe to call more than once.
func (ch *Channel) Close() {
	ch.shutdown(StateDisconnected)
}

// Disable tears the channel down because its inputs are no longer valid.
func (ch *Channel) Disable() {
	ch.shutdown(StateDisabled)
}

func (ch *Channel) shutdown(final State) {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	if ch.timer != nil {
		ch.timer.Stop()
		ch.timer = nil
	}
	conn := ch.conn
	ch.conn = nil
	ch.transition(final)
	ch.mu.Unlock()

	ch.cancel()
	if conn != nil {
		conn.Close()
	}
	ch.notify()
}

// connect dials once. It runs on its own goroutine, either from Open or from a retry timer.
func (ch *Channel) connect() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.timer = nil
	ch.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ch.ctx, dialTimeout)
	conn, err := ch.dialer.Dial(dialCtx, ch.url)
	cancel()
	if err != nil {
		ch.log.Warnf("realtime dial failed: %v", err)
		ch.scheduleRetry()
		return
	}

	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		conn.Close()
		return
	}
	ch.conn = conn
	ch.attempt = 0
	ch.transition(StateConnected)
	ch.mu.Unlock()
	ch.notify()
	ch.log.Info("realtime connected")

	ch.readLoop(conn)
}

// readLoop delivers messages in transport order until the connection fails.
func (ch *Channel) readLoop(conn Conn) {
	for {
		data, err := conn.Read(ch.ctx)
		if err != nil {
			ch.mu.Lock()
			closed := ch.closed
			if ch.conn == conn {
				ch.conn = nil
			}
			ch.mu.Unlock()
			conn.Close()

			if closed {
				return
			}
			ch.log.Warnf("realtime connection lost: %v", err)
			ch.scheduleRetry()
			return
		}
		ch.handleMessage(data)
	}
}

func (ch *Channel) handleMessage(data []byte) {
	ev, err := Decode(data)
	if err != nil {
		ch.log.Warnf("realtime message dropped, requesting fallback: %v", err)
		metrics.RealtimeFallbacks.Inc()
		if !ch.isClosed() {
			ch.onFallback()
		}
		return
	}
	if ev.Control() {
		ch.log.Tracef("realtime %s", ev.Type)
		return
	}
	if !ch.isClosed() {
		ch.onEvent(ev)
	}
}

func (ch *Channel) scheduleRetry() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	delay := Backoff(ch.initial, ch.ceiling, ch.attempt)
	ch.attempt++
	ch.transition(StateReconnecting)
	ch.timer = ch.clock.AfterFunc(delay, ch.connect)
	attempt := ch.attempt
	ch.mu.Unlock()
	ch.notify()

	metrics.RealtimeReconnects.Inc()
	ch.log.WithFields(logrus.Fields{
		"attempt": attempt,
		"delay":   delay,
	}).Info("realtime reconnect scheduled")
}

func (ch *Channel) isClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

// transition records a state change. Caller holds ch.mu and must call notify after unlocking.
func (ch *Channel) transition(s State) {
	if ch.state == s {
		return
	}
	ch.state = s
	ch.pending = append(ch.pending, s)
}

func (ch *Channel) notify() {
	ch.notifyMu.Lock()
	defer ch.notifyMu.Unlock()

	ch.mu.Lock()
	pending := ch.pending
	ch.pending = nil
	ch.mu.Unlock()

	if ch.onState == nil {
		return
	}
	for _, s := range pending {
		ch.onState(s)
	}
}
