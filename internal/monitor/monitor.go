package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rowantis/kura-alert/internal/dex"
	"github.com/rowantis/kura-alert/internal/model"
)

// ErrNoPools is returned by Start when there is nothing to watch.
// An empty pool set is a configuration error, not a retryable state.
var ErrNoPools = errors.New("monitor: empty pool set")

// Transport is the connection surface the monitor drives. *ws.Manager
// satisfies it; tests use fakes.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	Send(data []byte)
	Ping()
	IsConnected() bool
}

// Callbacks receive decoded domain events and transport errors. Nil
// members are skipped.
type Callbacks struct {
	OnSwap            func(model.SwapEvent)
	OnAddLiquidity    func(model.AddLiquidityEvent)
	OnRemoveLiquidity func(model.RemoveLiquidityEvent)
	OnError           func(error)
}

// watchedEvents is the per-pool subscription set: one logs filter per
// event kind.
var watchedEvents = []string{"Swap", "Mint", "Burn"}

// Monitor binds the tracked pool set to transport subscriptions and
// demultiplexes inbound frames back to pools. One instance owns one
// Transport.
type Monitor struct {
	transport Transport
	decoder   *dex.Decoder
	callbacks Callbacks
	logger    *zap.Logger

	mu      sync.Mutex
	started bool
	pools   []model.Pool
	index   map[string]model.Pool
	nextID  uint64
}

func New(transport Transport, decoder *dex.Decoder, callbacks Callbacks, logger *zap.Logger) *Monitor {
	return &Monitor{
		transport: transport,
		decoder:   decoder,
		callbacks: callbacks,
		logger:    logger,
		index:     make(map[string]model.Pool),
	}
}

// Start connects the transport and subscribes to every pool's tracked
// events. Calling Start again while running is a no-op, so duplicate
// subscriptions are never issued.
func (m *Monitor) Start(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return ErrNoPools
	}
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.adoptLocked(pools)
	m.mu.Unlock()

	if err := m.transport.Connect(ctx); err != nil {
		m.mu.Lock()
		m.started = false
		m.mu.Unlock()
		return fmt.Errorf("start monitor: %w", err)
	}
	return nil
}

// Stop disconnects the transport. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.mu.Unlock()

	m.transport.Disconnect()
	m.logger.Info("monitor stopped")
}

// UpdatePools replaces the tracked pool set and re-issues the full
// subscription batch. A new set with the same cardinality as the
// current one is skipped: refresh sources rarely swap pools without
// changing the count, and the skip avoids churning subscriptions on
// every registry tick. Same-size replacements are therefore invisible
// until the count changes.
func (m *Monitor) UpdatePools(pools []model.Pool) {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	if len(pools) == len(m.pools) {
		m.mu.Unlock()
		m.logger.Debug("pool set size unchanged, skipping resubscribe",
			zap.Int("pools", len(pools)))
		return
	}
	prev := len(m.pools)
	m.adoptLocked(pools)
	m.mu.Unlock()

	m.logger.Info("pool set updated",
		zap.Int("previous", prev),
		zap.Int("current", len(pools)))
	m.subscribeAll()
}

func (m *Monitor) adoptLocked(pools []model.Pool) {
	m.pools = pools
	m.index = make(map[string]model.Pool, len(pools))
	for _, pool := range pools {
		m.index[strings.ToLower(pool.Address)] = pool
	}
}

// HandleConnected is wired to the transport's connect callback. It
// issues the subscription batch on every (re)connect, since the event
// source forgets subscriptions across connections.
func (m *Monitor) HandleConnected() {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return
	}
	m.subscribeAll()
}

// HandleDisconnected is wired to the transport's disconnect callback.
func (m *Monitor) HandleDisconnected(err error) {
	m.logger.Warn("transport disconnected", zap.Error(err))
}

// HandleTransportError relays terminal transport errors to the owner
// without interpretation.
func (m *Monitor) HandleTransportError(err error) {
	if m.callbacks.OnError != nil {
		m.callbacks.OnError(err)
	}
}

// Ping forwards a keepalive to the transport. No-op while disconnected.
func (m *Monitor) Ping() {
	if m.transport.IsConnected() {
		m.transport.Ping()
	}
}

type subscribeFilter struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
}

type subscribeRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// subscribeAll sends one eth_subscribe logs request per pool per
// tracked event kind, with sequential request ids.
func (m *Monitor) subscribeAll() {
	m.mu.Lock()
	pools := make([]model.Pool, len(m.pools))
	copy(pools, m.pools)
	m.mu.Unlock()

	sent := 0
	for _, pool := range pools {
		for _, eventName := range watchedEvents {
			topic, err := m.decoder.EventTopic(pool.Key.Dex.Kind, eventName)
			if err != nil {
				m.logger.Error("event topic lookup failed",
					zap.String("pool", pool.Address),
					zap.String("event", eventName),
					zap.Error(err))
				continue
			}
			req := subscribeRequest{
				JSONRPC: "2.0",
				ID:      m.nextRequestID(),
				Method:  "eth_subscribe",
				Params: []any{
					"logs",
					subscribeFilter{Address: pool.Address, Topics: []string{topic.Hex()}},
				},
			}
			payload, err := json.Marshal(req)
			if err != nil {
				m.logger.Error("subscribe request marshal failed", zap.Error(err))
				continue
			}
			m.transport.Send(payload)
			sent++
		}
	}
	m.logger.Info("subscriptions issued",
		zap.Int("pools", len(pools)),
		zap.Int("requests", sent))
}

func (m *Monitor) nextRequestID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type subscriptionParams struct {
	Subscription string         `json:"subscription"`
	Result       model.LogFrame `json:"result"`
}

type inboundFrame struct {
	ID     *uint64             `json:"id"`
	Method string              `json:"method"`
	Params *subscriptionParams `json:"params"`
	Result json.RawMessage     `json:"result"`
	Error  *rpcError           `json:"error"`
}

// HandleFrame is wired to the transport's message callback. Frames are
// either subscribe acknowledgements, correlated by id and otherwise
// ignored, or eth_subscription notifications carrying a log record.
// Per-frame failures are logged and contained; they never propagate.
func (m *Monitor) HandleFrame(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		m.logger.Warn("malformed inbound frame", zap.Error(err))
		return
	}

	if frame.ID != nil {
		if frame.Error != nil {
			m.logger.Warn("subscribe request rejected",
				zap.Uint64("id", *frame.ID),
				zap.Int("code", frame.Error.Code),
				zap.String("message", frame.Error.Message))
		}
		return
	}
	if frame.Method != "eth_subscription" || frame.Params == nil {
		return
	}

	log := frame.Params.Result
	m.mu.Lock()
	pool, ok := m.index[strings.ToLower(log.Address)]
	m.mu.Unlock()
	if !ok {
		// Stale subscription or foreign contract; drop silently.
		return
	}
	m.dispatch(log, pool)
}

// dispatch tries each event kind in turn. At most one decodes for any
// given log.
func (m *Monitor) dispatch(log model.LogFrame, pool model.Pool) {
	swap, err := m.decoder.DecodeSwap(log, pool)
	if err != nil {
		m.logger.Warn("swap decode failed",
			zap.String("pool", pool.Address),
			zap.String("tx", log.TransactionHash),
			zap.Error(err))
	} else if swap != nil {
		if m.callbacks.OnSwap != nil {
			m.callbacks.OnSwap(*swap)
		}
		return
	}

	add, err := m.decoder.DecodeAddLiquidity(log, pool)
	if err != nil {
		m.logger.Warn("add liquidity decode failed",
			zap.String("pool", pool.Address),
			zap.String("tx", log.TransactionHash),
			zap.Error(err))
	} else if add != nil {
		if m.callbacks.OnAddLiquidity != nil {
			m.callbacks.OnAddLiquidity(*add)
		}
		return
	}

	remove, err := m.decoder.DecodeRemoveLiquidity(log, pool)
	if err != nil {
		m.logger.Warn("remove liquidity decode failed",
			zap.String("pool", pool.Address),
			zap.String("tx", log.TransactionHash),
			zap.Error(err))
	} else if remove != nil {
		if m.callbacks.OnRemoveLiquidity != nil {
			m.callbacks.OnRemoveLiquidity(*remove)
		}
	}
}

// Started reports whether Start has completed without a matching Stop.
func (m *Monitor) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}
