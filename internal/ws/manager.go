package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State describes the connection lifecycle of a Manager.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrReconnectExhausted is surfaced through OnTerminal after the retry
// budget is spent. The owner decides whether to exit the process.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// Conn is the subset of *websocket.Conn the manager needs. Tests swap
// in fakes through the Dialer.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Dialer opens a websocket connection to the given endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type gorillaDialer struct {
	handshakeTimeout time.Duration
}

func (d gorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %s)", url, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

type timer interface {
	Stop() bool
}

type afterFunc func(d time.Duration, fn func()) timer

func stdAfterFunc(d time.Duration, fn func()) timer {
	return time.AfterFunc(d, fn)
}

// Config carries the knobs and callbacks for a Manager. Callbacks are
// invoked from the manager's goroutines; they must not call back into
// the manager synchronously except for Send.
type Config struct {
	URL                  string
	HandshakeTimeout     time.Duration
	ReconnectBase        time.Duration
	MaxReconnectAttempts int

	// Dialer defaults to a gorilla/websocket dialer.
	Dialer Dialer

	OnConnected    func()
	OnFrame        func(data []byte)
	OnDisconnected func(err error)
	OnTerminal     func(err error)
}

const (
	defaultHandshakeTimeout = 15 * time.Second
	defaultReconnectBase    = time.Second
	defaultMaxAttempts      = 10
)

// Manager owns a single persistent websocket connection and the
// reconnect state machine around it. Reconnects use linear backoff:
// the n-th consecutive failure schedules the next dial after
// n * ReconnectBase, and the budget is exhausted once the failure
// count exceeds MaxReconnectAttempts.
type Manager struct {
	cfg    Config
	dialer Dialer
	after  afterFunc
	logger *zap.Logger

	mu         sync.Mutex
	state      State
	conn       Conn
	generation uint64
	attempts   int
	retryTimer timer
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewManager(cfg Config, logger *zap.Logger) *Manager {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = defaultReconnectBase
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxAttempts
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = gorillaDialer{handshakeTimeout: cfg.HandshakeTimeout}
	}
	return &Manager{
		cfg:    cfg,
		dialer: dialer,
		after:  stdAfterFunc,
		logger: logger,
		state:  StateIdle,
	}
}

// Connect dials the endpoint and returns once the connection is usable.
// The initial dial fails fast; the reconnect loop only covers drops
// after a successful connect. Calling Connect while already connecting
// or connected is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnecting, StateConnected, StateReconnecting:
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.ctx = runCtx
	m.cancel = cancel
	m.state = StateConnecting
	m.attempts = 0
	m.mu.Unlock()

	conn, err := m.dialer.Dial(runCtx, m.cfg.URL)
	if err != nil {
		m.mu.Lock()
		m.state = StateIdle
		m.mu.Unlock()
		cancel()
		return fmt.Errorf("connect: %w", err)
	}
	m.adopt(conn)
	return nil
}

// adopt installs a freshly dialed connection and starts its read loop.
func (m *Manager) adopt(conn Conn) {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.state = StateConnected
	m.attempts = 0
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	m.logger.Info("websocket connected", zap.String("url", m.cfg.URL))
	if m.cfg.OnConnected != nil {
		m.cfg.OnConnected()
	}
	go m.readLoop(conn, gen)
}

func (m *Manager) readLoop(conn Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleDrop(gen, err)
			return
		}
		if m.cfg.OnFrame != nil {
			m.cfg.OnFrame(data)
		}
	}
}

func (m *Manager) handleDrop(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.generation || m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.state = StateReconnecting
	m.mu.Unlock()

	m.logger.Warn("websocket connection lost", zap.Error(cause))
	if m.cfg.OnDisconnected != nil {
		m.cfg.OnDisconnected(cause)
	}
	m.scheduleReconnect(cause)
}

// scheduleReconnect counts one failure and either arms the next dial
// timer or, past the budget, surfaces the terminal error exactly once.
func (m *Manager) scheduleReconnect(cause error) {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.attempts++
	if m.attempts > m.cfg.MaxReconnectAttempts {
		m.state = StateFailed
		cancel := m.cancel
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		m.logger.Error("websocket reconnect budget exhausted",
			zap.Int("attempts", m.cfg.MaxReconnectAttempts),
			zap.Error(cause))
		if m.cfg.OnTerminal != nil {
			m.cfg.OnTerminal(fmt.Errorf("%w after %d attempts: %v",
				ErrReconnectExhausted, m.cfg.MaxReconnectAttempts, cause))
		}
		return
	}
	attempt := m.attempts
	delay := time.Duration(attempt) * m.cfg.ReconnectBase
	m.state = StateReconnecting
	m.retryTimer = m.after(delay, m.redial)
	m.mu.Unlock()

	m.logger.Info("websocket reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))
}

func (m *Manager) redial() {
	m.mu.Lock()
	if m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	ctx := m.ctx
	m.mu.Unlock()

	conn, err := m.dialer.Dial(ctx, m.cfg.URL)
	if err != nil {
		m.logger.Warn("websocket reconnect failed", zap.Error(err))
		m.scheduleReconnect(err)
		return
	}
	m.adopt(conn)
}

// Disconnect closes the connection and cancels any pending reconnect
// timer. Safe to call multiple times and from signal handlers; it does
// not block on in-flight reads.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.state = StateClosed
	m.generation++
	conn := m.conn
	m.conn = nil
	retry := m.retryTimer
	m.retryTimer = nil
	cancel := m.cancel
	m.mu.Unlock()

	if retry != nil {
		retry.Stop()
	}
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	if cancel != nil {
		cancel()
	}
	m.logger.Info("websocket disconnected")
}

// Send writes an outbound control message. If the connection is down
// the message is dropped with a warning; subscribe requests are
// re-issued by the owner from its OnConnected callback.
func (m *Manager) Send(data []byte) {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || conn == nil {
		m.logger.Warn("websocket send dropped, not connected",
			zap.Int("bytes", len(data)))
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		m.logger.Warn("websocket send failed", zap.Error(err))
	}
}

// Ping issues a liveness probe. The owner drives this on its own
// cadence, independent of the reconnect timers.
func (m *Manager) Ping() {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || conn == nil {
		return
	}
	deadline := time.Now().Add(5 * time.Second)
	if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		m.logger.Warn("websocket ping failed", zap.Error(err))
	}
}

func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ReconnectAttempts reports the count of consecutive failures since
// the last successful connect.
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}
