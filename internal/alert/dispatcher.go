package alert

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rowantis/kura-alert/internal/model"
)

// PriceOracle reports the last-known USD price for a token address.
// Misses return found = false; the dispatcher values the leg at zero.
type PriceOracle interface {
	Price(tokenAddress string) (value float64, found bool)
}

// SenderResolver looks up the externally owned account that sent the
// transaction carrying an event.
type SenderResolver interface {
	TransactionSender(ctx context.Context, txHash string) (string, error)
}

// Notifier delivers one formatted alert message.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Sink observes every dispatched alert, for persistence. Optional.
type Sink interface {
	Record(ctx context.Context, rec model.AlertRecord) error
}

const (
	DefaultHighThresholdUSD = 10000
	DefaultLowThresholdUSD  = 1000
)

// Dispatcher converts domain events into at most one notification
// each, governed by a two-tier USD threshold. The high tier is checked
// first and suppresses the low tier, so a single event never produces
// two alerts.
type Dispatcher struct {
	prices   PriceOracle
	senders  SenderResolver
	notifier Notifier
	sink     Sink
	logger   *zap.Logger

	highThreshold float64
	lowThreshold  float64
	teamAccounts  map[string]struct{}

	failMu       sync.Mutex
	seenFailures map[string]struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithThresholds(high, low float64) Option {
	return func(d *Dispatcher) {
		d.highThreshold = high
		d.lowThreshold = low
	}
}

func WithTeamAccounts(addrs []string) Option {
	return func(d *Dispatcher) {
		d.teamAccounts = make(map[string]struct{}, len(addrs))
		for _, addr := range addrs {
			d.teamAccounts[strings.ToLower(addr)] = struct{}{}
		}
	}
}

// WithSink records every sent alert to the given store.
func WithSink(sink Sink) Option {
	return func(d *Dispatcher) { d.sink = sink }
}

func NewDispatcher(prices PriceOracle, senders SenderResolver, notifier Notifier, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		prices:        prices,
		senders:       senders,
		notifier:      notifier,
		logger:        logger,
		highThreshold: DefaultHighThresholdUSD,
		lowThreshold:  DefaultLowThresholdUSD,
		seenFailures:  make(map[string]struct{}),
	}
	WithTeamAccounts(DefaultTeamAccounts)(d)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandleSwap values the swap by its input leg and dispatches if a
// threshold is crossed.
func (d *Dispatcher) HandleSwap(ctx context.Context, ev model.SwapEvent) {
	usd := d.tokenNotional(ev.TokenIn, ev.AmountIn)
	d.evaluate(ctx, usd, func(threshold float64, sender string) string {
		return d.swapMessage(ev, threshold, sender)
	}, "Swap", ev.Pool, ev.BlockNumber, ev.TxHash)
}

// HandleAddLiquidity values both legs and dispatches if a threshold is
// crossed.
func (d *Dispatcher) HandleAddLiquidity(ctx context.Context, ev model.AddLiquidityEvent) {
	usd := d.tokenNotional(ev.Token0, ev.Amount0) + d.tokenNotional(ev.Token1, ev.Amount1)
	d.evaluate(ctx, usd, func(threshold float64, sender string) string {
		return d.liquidityMessage("Add Liquidity", ev.Pool, ev.BlockNumber, ev.TxHash, threshold, sender)
	}, "AddLiquidity", ev.Pool, ev.BlockNumber, ev.TxHash)
}

// HandleRemoveLiquidity values both legs and dispatches if a threshold
// is crossed.
func (d *Dispatcher) HandleRemoveLiquidity(ctx context.Context, ev model.RemoveLiquidityEvent) {
	usd := d.tokenNotional(ev.Token0, ev.Amount0) + d.tokenNotional(ev.Token1, ev.Amount1)
	d.evaluate(ctx, usd, func(threshold float64, sender string) string {
		return d.liquidityMessage("Remove Liquidity", ev.Pool, ev.BlockNumber, ev.TxHash, threshold, sender)
	}, "RemoveLiquidity", ev.Pool, ev.BlockNumber, ev.TxHash)
}

// tokenNotional converts a decimal amount string to USD. A missing
// price under-counts the event rather than failing it.
func (d *Dispatcher) tokenNotional(token, amount string) float64 {
	qty, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		d.logger.Warn("unparseable event amount",
			zap.String("token", token),
			zap.String("amount", amount))
		return 0
	}
	price, ok := d.prices.Price(token)
	if !ok {
		d.logger.Debug("no price for token, valuing at zero",
			zap.String("token", token))
		return 0
	}
	return qty * price
}

// evaluate applies the two-tier policy: the high threshold is tried
// first and, when crossed, the low tier is not evaluated.
func (d *Dispatcher) evaluate(ctx context.Context, usd float64, build func(threshold float64, sender string) string, kind string, pool model.Pool, block uint64, txHash string) {
	var threshold float64
	switch {
	case usd >= d.highThreshold:
		threshold = d.highThreshold
	case usd >= d.lowThreshold:
		threshold = d.lowThreshold
	default:
		return
	}

	sender := d.resolveSender(ctx, txHash)
	text := build(threshold, sender)
	if err := d.notifier.Notify(ctx, text); err != nil {
		d.logger.Error("alert delivery failed",
			zap.String("tx", txHash),
			zap.Error(err))
		return
	}
	d.logger.Info("alert sent",
		zap.String("kind", kind),
		zap.String("pool", pool.Description()),
		zap.Float64("usd", usd),
		zap.Float64("threshold", threshold))

	if d.sink != nil {
		rec := model.AlertRecord{
			Kind:         kind,
			Pool:         pool.Address,
			PoolLabel:    pool.Description(),
			USDValue:     usd,
			ThresholdUSD: threshold,
			Sender:       sender,
			TeamAccount:  d.isTeamAccount(sender),
			BlockNumber:  block,
			TxHash:       txHash,
		}
		if err := d.sink.Record(ctx, rec); err != nil {
			d.logger.Warn("alert record not persisted", zap.Error(err))
		}
	}
}

func (d *Dispatcher) resolveSender(ctx context.Context, txHash string) string {
	if d.senders == nil {
		return ""
	}
	sender, err := d.senders.TransactionSender(ctx, txHash)
	if err != nil {
		d.logger.Warn("transaction sender lookup failed",
			zap.String("tx", txHash),
			zap.Error(err))
		return ""
	}
	return sender
}

func (d *Dispatcher) isTeamAccount(sender string) bool {
	_, ok := d.teamAccounts[strings.ToLower(sender)]
	return ok
}

func (d *Dispatcher) header(eventLabel string, threshold float64, sender string) string {
	account := "Non-Team-Account"
	if d.isTeamAccount(sender) {
		account = "Team-Account"
	}
	return fmt.Sprintf("💰 [%s] %s Event over %.0f USD Detected!", account, eventLabel, threshold)
}

var ruler = strings.Repeat("=", 50)

func (d *Dispatcher) swapMessage(ev model.SwapEvent, threshold float64, sender string) string {
	lines := []string{
		d.header("Swap", threshold, sender),
		ruler,
		fmt.Sprintf("🏊 Pool: %s", ev.Pool.Description()),
		fmt.Sprintf("🔄 Direction: %s → %s", model.TokenSymbol(ev.TokenIn), model.TokenSymbol(ev.TokenOut)),
		fmt.Sprintf("📦 Block: %d", ev.BlockNumber),
		fmt.Sprintf("👤 Sender: %s", sender),
		fmt.Sprintf("🔗 TX Hash: %s", ev.TxHash),
		ruler,
	}
	return strings.Join(lines, "\n")
}

func (d *Dispatcher) liquidityMessage(eventLabel string, pool model.Pool, block uint64, txHash string, threshold float64, sender string) string {
	lines := []string{
		d.header(eventLabel, threshold, sender),
		ruler,
		fmt.Sprintf("🏊 Pool: %s", pool.Description()),
		fmt.Sprintf("📦 Block: %d", block),
		fmt.Sprintf("👤 Sender: %s", sender),
		fmt.Sprintf("🔗 TX Hash: %s", txHash),
		ruler,
	}
	return strings.Join(lines, "\n")
}

// ReportFailure notifies an operational error once per distinct
// message text. Recurring failures from scheduled tasks would
// otherwise spam the channel on every tick.
func (d *Dispatcher) ReportFailure(ctx context.Context, message string) {
	d.failMu.Lock()
	if _, seen := d.seenFailures[message]; seen {
		d.failMu.Unlock()
		return
	}
	d.seenFailures[message] = struct{}{}
	d.failMu.Unlock()

	if err := d.notifier.Notify(ctx, message); err != nil {
		d.logger.Error("failure report delivery failed", zap.Error(err))
	}
}
