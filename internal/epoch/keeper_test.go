package epoch

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/rowantis/kura-alert/internal/dex"
	"github.com/rowantis/kura-alert/internal/model"
)

const (
	usdcAddr = "0xe15fC38F6D8c56aF07bbCBe3BAf5708A2Bf42392"
	wseiAddr = "0xE30feDd158A2e3b13e9badaeABaFc5516e95e8C7"
	wbtcAddr = "0x0555E30da8f98308EdB960aa94C0Db47230d2B9c"
)

func TestPeriodStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "last_updated_period.json")

	store := NewPeriodStore(path)
	if err := store.Load(); err != nil {
		t.Fatalf("load missing file: %v", err)
	}
	store.Set("0xPoolA", 42)
	store.Set("0xpoolb", 43)
	if err := store.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	reloaded := NewPeriodStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	// Case-insensitive by lowercased keys.
	if period, ok := reloaded.Get("0xPOOLA"); !ok || period != 42 {
		t.Fatalf("period = %d, %v", period, ok)
	}
	if _, ok := reloaded.Get("0xunknown"); ok {
		t.Fatal("unknown pool should miss")
	}
}

func TestPeriodStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := NewPeriodStore(path).Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func v3Pool(token0, token1 string, spacing int32) model.Pool {
	return model.Pool{
		Key:     model.NewPoolKey(token0, token1, model.DexKey{Kind: model.DexV3, TickSpacing: spacing}),
		Address: "0x7000000000000000000000000000000000000007",
	}
}

type staticPools struct{ pools []model.Pool }

func (s staticPools) CurrentPools() []model.Pool { return s.pools }

type staticPrices struct{ prices map[string]float64 }

func (s staticPrices) Price(token string) (float64, bool) {
	p, ok := s.prices[common.HexToAddress(token).Hex()]
	return p, ok
}

type fakeCaller struct {
	balance   *big.Int
	allowance *big.Int
	sqrtPrice *big.Int
}

func (c *fakeCaller) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	erc20, _ := dex.ERC20ABI()
	poolABI, _ := dex.V3PoolABI()
	switch {
	case bytes.Equal(data[:4], erc20.Methods["balanceOf"].ID):
		return erc20.Methods["balanceOf"].Outputs.Pack(c.balance)
	case bytes.Equal(data[:4], erc20.Methods["allowance"].ID):
		return erc20.Methods["allowance"].Outputs.Pack(c.allowance)
	case bytes.Equal(data[:4], poolABI.Methods["slot0"].ID):
		return poolABI.Methods["slot0"].Outputs.Pack(
			c.sqrtPrice, big.NewInt(0), uint16(0), uint16(0), uint16(0), uint8(0), true)
	}
	return nil, errors.New("unexpected call")
}

type fakeSender struct {
	mu      sync.Mutex
	submits []common.Address
}

func (s *fakeSender) Address() common.Address {
	return common.HexToAddress("0x00000000000000000000000000000000000000ee")
}

func (s *fakeSender) Submit(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits = append(s.submits, to)
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(ctx context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return nil
}

type recordingReporter struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingReporter) ReportFailure(ctx context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func TestEligiblePoolsFiltersVariantAndWhitelist(t *testing.T) {
	pools := []model.Pool{
		v3Pool(usdcAddr, wseiAddr, 50),
		v3Pool(usdcAddr, "0x9999999999999999999999999999999999999999", 50),
		{
			Key:     model.NewPoolKey(usdcAddr, wseiAddr, model.DexKey{Kind: model.DexV2}),
			Address: "0x8000000000000000000000000000000000000008",
		},
	}
	k := NewKeeper(Config{Pools: staticPools{pools: pools}}, zap.NewNop())
	eligible := k.eligiblePools()
	if len(eligible) != 1 {
		t.Fatalf("eligible = %d pools, want 1", len(eligible))
	}
	if eligible[0].Key.Dex.Kind != model.DexV3 {
		t.Fatalf("kept pool: %+v", eligible[0])
	}
}

func TestSwapLegsFollowSpendOrder(t *testing.T) {
	k := NewKeeper(Config{}, zap.NewNop())

	// USDC beats WSEI regardless of canonical pair ordering.
	in, out := k.swapLegs(v3Pool(wseiAddr, usdcAddr, 50))
	if common.HexToAddress(in) != common.HexToAddress(usdcAddr) {
		t.Fatalf("tokenIn = %s, want USDC", in)
	}
	if common.HexToAddress(out) != common.HexToAddress(wseiAddr) {
		t.Fatalf("tokenOut = %s, want WSEI", out)
	}
}

func TestDustAmountIn(t *testing.T) {
	prices := staticPrices{prices: map[string]float64{
		common.HexToAddress(usdcAddr).Hex(): 1.0,
	}}
	k := NewKeeper(Config{Prices: prices}, zap.NewNop())

	// 0.0005 USD of a 6-decimal stablecoin at price 1 is 500 raw units.
	amount, err := k.dustAmountIn(usdcAddr)
	if err != nil {
		t.Fatalf("dust amount: %v", err)
	}
	if amount.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("amount = %s, want 500", amount)
	}

	if _, err := k.dustAmountIn("0x9999999999999999999999999999999999999999"); err == nil {
		t.Fatal("unknown token must error")
	}
	if _, err := k.dustAmountIn(wbtcAddr); err == nil {
		t.Fatal("missing price must error")
	}
}

func newTickKeeper(t *testing.T, caller *fakeCaller, sender *fakeSender) (*Keeper, *recordingNotifier, *recordingReporter, *PeriodStore) {
	t.Helper()
	store := NewPeriodStore(filepath.Join(t.TempDir(), "periods.json"))
	notifier := &recordingNotifier{}
	reporter := &recordingReporter{}
	k := NewKeeper(Config{
		Router: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Pools:  staticPools{pools: []model.Pool{v3Pool(usdcAddr, wseiAddr, 50)}},
		Prices: staticPrices{prices: map[string]float64{
			common.HexToAddress(usdcAddr).Hex(): 1.0,
			common.HexToAddress(wseiAddr).Hex(): 0.35,
		}},
		Caller:   caller,
		Sender:   sender,
		Notifier: notifier,
		Failures: reporter,
		Store:    store,
	}, zap.NewNop())
	return k, notifier, reporter, store
}

func TestTickSwapsOncePerPeriod(t *testing.T) {
	caller := &fakeCaller{
		balance:   big.NewInt(1_000_000),
		allowance: big.NewInt(1_000_000),
		sqrtPrice: new(big.Int).Lsh(big.NewInt(1), 96),
	}
	sender := &fakeSender{}
	k, notifier, reporter, store := newTickKeeper(t, caller, sender)

	k.Tick(context.Background())

	// Sufficient allowance means a single router call, no approve.
	if len(sender.submits) != 1 {
		t.Fatalf("submitted %d transactions, want 1", len(sender.submits))
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("notified %d times, want 1", len(notifier.messages))
	}
	if len(reporter.messages) != 0 {
		t.Fatalf("unexpected failures: %v", reporter.messages)
	}
	if _, ok := store.Get("0x7000000000000000000000000000000000000007"); !ok {
		t.Fatal("period not recorded after success")
	}

	// Same period: the pool is already done.
	k.Tick(context.Background())
	if len(sender.submits) != 1 {
		t.Fatalf("second tick resubmitted: %d transactions", len(sender.submits))
	}
}

func TestTickApprovesWhenAllowanceLow(t *testing.T) {
	caller := &fakeCaller{
		balance:   big.NewInt(1_000_000),
		allowance: big.NewInt(0),
		sqrtPrice: new(big.Int).Lsh(big.NewInt(1), 96),
	}
	sender := &fakeSender{}
	k, _, reporter, _ := newTickKeeper(t, caller, sender)

	k.Tick(context.Background())
	if len(reporter.messages) != 0 {
		t.Fatalf("unexpected failures: %v", reporter.messages)
	}
	// Approve on the token, then the swap on the router.
	if len(sender.submits) != 2 {
		t.Fatalf("submitted %d transactions, want 2", len(sender.submits))
	}
	if sender.submits[0] != common.HexToAddress(usdcAddr) {
		t.Fatalf("first submit to %s, want token", sender.submits[0])
	}
	if sender.submits[1] != common.HexToAddress("0x00000000000000000000000000000000000000aa") {
		t.Fatalf("second submit to %s, want router", sender.submits[1])
	}
}

func TestTickInsufficientBalanceReportsFailure(t *testing.T) {
	caller := &fakeCaller{
		balance:   big.NewInt(1),
		allowance: big.NewInt(0),
		sqrtPrice: new(big.Int).Lsh(big.NewInt(1), 96),
	}
	sender := &fakeSender{}
	k, notifier, reporter, store := newTickKeeper(t, caller, sender)

	k.Tick(context.Background())
	if len(sender.submits) != 0 {
		t.Fatalf("submitted %d transactions, want 0", len(sender.submits))
	}
	if len(notifier.messages) != 0 {
		t.Fatalf("unexpected success notifications: %v", notifier.messages)
	}
	if len(reporter.messages) != 1 {
		t.Fatalf("reported %d failures, want 1", len(reporter.messages))
	}
	if _, ok := store.Get("0x7000000000000000000000000000000000000007"); ok {
		t.Fatal("period recorded despite failure")
	}
}

func TestPinnedPoolIsSkipped(t *testing.T) {
	// tokenIn < tokenOut and price pinned at the minimum bound.
	caller := &fakeCaller{
		balance:   big.NewInt(1_000_000),
		allowance: big.NewInt(1_000_000),
		sqrtPrice: new(big.Int).Set(minSqrtRatioPlusOne),
	}
	sender := &fakeSender{}
	k, _, reporter, _ := newTickKeeper(t, caller, sender)

	k.Tick(context.Background())
	if len(sender.submits) != 0 {
		t.Fatalf("submitted %d transactions into a pinned pool, want 0", len(sender.submits))
	}
	if len(reporter.messages) != 1 {
		t.Fatalf("reported %d failures, want 1", len(reporter.messages))
	}
}
