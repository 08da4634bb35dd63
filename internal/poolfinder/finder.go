// Package poolfinder discovers tradable pools by probing the factory
// contracts for every whitelisted token pair, filters them by TVL, and
// persists the result for the monitor to load.
package poolfinder

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rowantis/kura-alert/internal/dex"
	"github.com/rowantis/kura-alert/internal/model"
)

// Factory contracts on Sei EVM.
var (
	DefaultV2Factory = common.HexToAddress("0xAEbdA18889D6412E237e465cA25F5F346672A2eC")
	DefaultV3Factory = common.HexToAddress("0xd0c54c480fD00DDa4DF1BbE041A6881f2F09111e")
)

// DefaultTokens is the pair-probing universe: every unordered pair of
// these is checked against both factories.
var DefaultTokens = []string{
	"0xE30feDd158A2e3b13e9badaeABaFc5516e95e8C7", // WSEI
	"0x0555E30da8f98308EdB960aa94C0Db47230d2B9c", // WBTC
	"0x5Cf6826140C1C56Ff49C808A1A75407Cd1DF9423", // iSEI
	"0x160345fC359604fC6e70E3c5fAcbdE5F7A9342d8", // WETH
	"0x9151434b16b9763660705744891fA906F660EcC5", // USDT
	"0x3894085Ef7Ff0f0aeDf52E2A2704928d1Ec074F1", // USDC.n
	"0xe15fC38F6D8c56aF07bbCBe3BAf5708A2Bf42392", // USDC
	"0x059A6b0bA116c63191182a0956cF697d0d2213eC", // syUSD
	"0x4b416A45e1f26a53D2ee82a50a4C7D7bE9EdA9E4", // KURA
	"0x8A200a13c1321fdc7F6c7AFba1494E1949426eFD", // K33
}

// probedTickSpacings are the concentrated-liquidity variants checked
// per pair.
var probedTickSpacings = []int32{1, 5, 10, 50, 100}

const factoryABIJSON = `[
  {
    "inputs": [
      {"name": "tokenA", "type": "address"},
      {"name": "tokenB", "type": "address"},
      {"name": "stable", "type": "bool"}
    ],
    "name": "getPair",
    "outputs": [{"name": "pair", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"name": "tokenA", "type": "address"},
      {"name": "tokenB", "type": "address"},
      {"name": "tickSpacing", "type": "int24"}
    ],
    "name": "getPool",
    "outputs": [{"name": "pool", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	factoryABIOnce sync.Once
	factoryABI     abi.ABI
	factoryABIErr  error
)

func poolFactoryABI() (abi.ABI, error) {
	factoryABIOnce.Do(func() {
		factoryABI, factoryABIErr = abi.JSON(strings.NewReader(factoryABIJSON))
	})
	return factoryABI, factoryABIErr
}

// ContractCaller executes read-only contract calls.
type ContractCaller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// PriceSource supplies token prices for the TVL filter.
type PriceSource interface {
	Price(tokenAddress string) (float64, bool)
}

// Finder probes the factories for existing pools.
type Finder struct {
	caller ContractCaller
	prices PriceSource
	logger *zap.Logger

	v2Factory  common.Address
	v3Factory  common.Address
	tokens     []string
	maxRetries int
	retryDelay time.Duration
}

type FinderOption func(*Finder)

func WithFactories(v2, v3 common.Address) FinderOption {
	return func(f *Finder) {
		f.v2Factory = v2
		f.v3Factory = v3
	}
}

func WithTokens(tokens []string) FinderOption {
	return func(f *Finder) { f.tokens = tokens }
}

func WithRetry(maxRetries int, delay time.Duration) FinderOption {
	return func(f *Finder) {
		f.maxRetries = maxRetries
		f.retryDelay = delay
	}
}

func NewFinder(caller ContractCaller, prices PriceSource, logger *zap.Logger, opts ...FinderOption) *Finder {
	f := &Finder{
		caller:     caller,
		prices:     prices,
		logger:     logger,
		v2Factory:  DefaultV2Factory,
		v3Factory:  DefaultV3Factory,
		tokens:     DefaultTokens,
		maxRetries: 5,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// withRetry runs fn up to maxRetries times with a fixed delay between
// attempts. The last error is returned when all attempts fail.
func (f *Finder) withRetry(ctx context.Context, label string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		if err := fn(); err != nil {
			lastErr = err
			f.logger.Warn("pool probe failed",
				zap.String("probe", label),
				zap.Int("attempt", attempt),
				zap.Int("maxRetries", f.maxRetries),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.retryDelay):
			}
			continue
		}
		return nil
	}
	return lastErr
}

func (f *Finder) callAddress(ctx context.Context, to common.Address, method string, args ...any) (common.Address, error) {
	factory, err := poolFactoryABI()
	if err != nil {
		return common.Address{}, err
	}
	data, err := factory.Pack(method, args...)
	if err != nil {
		return common.Address{}, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := f.caller.CallContract(ctx, to, data)
	if err != nil {
		return common.Address{}, err
	}
	values, err := factory.Unpack(method, raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack %s: %w", method, err)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s returned %T", method, values[0])
	}
	return addr, nil
}

func (f *Finder) tokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	erc20, err := dex.ERC20ABI()
	if err != nil {
		return nil, err
	}
	data, err := erc20.Pack("balanceOf", holder)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	raw, err := f.caller.CallContract(ctx, token, data)
	if err != nil {
		return nil, err
	}
	values, err := erc20.Unpack("balanceOf", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf returned %T", values[0])
	}
	return balance, nil
}

// PoolTVL values both token balances in USD using integer math scaled
// by 1e6, matching decimals that vary across the pair.
func PoolTVL(balanceA, balanceB *big.Int, tokenA, tokenB string, prices PriceSource) (float64, error) {
	legValue := func(balance *big.Int, token string) (*big.Int, error) {
		info, ok := model.TokenInfoFor(token)
		if !ok {
			return nil, fmt.Errorf("missing decimals for %s", token)
		}
		price, ok := prices.Price(token)
		if !ok || price <= 0 {
			return nil, fmt.Errorf("missing price for %s", model.TokenSymbol(token))
		}
		scaled := new(big.Int).Mul(balance, big.NewInt(int64(price*1e6)))
		denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(info.Decimals)), nil)
		return scaled.Quo(scaled, denom), nil
	}

	valueA, err := legValue(balanceA, tokenA)
	if err != nil {
		return 0, err
	}
	valueB, err := legValue(balanceB, tokenB)
	if err != nil {
		return 0, err
	}
	total := new(big.Int).Add(valueA, valueB)
	tvl, _ := new(big.Float).Quo(new(big.Float).SetInt(total), big.NewFloat(1e6)).Float64()
	return tvl, nil
}

// CheckV2Pool probes the pair factory for one (tokenA, tokenB, stable)
// combination. Returns nil when the pool does not exist or falls under
// the TVL filter.
func (f *Finder) CheckV2Pool(ctx context.Context, tokenA, tokenB string, stable bool, tvlFilter float64) (*model.Pool, error) {
	label := fmt.Sprintf("%s-%s v2 stable=%t", model.TokenSymbol(tokenA), model.TokenSymbol(tokenB), stable)
	var pool *model.Pool
	err := f.withRetry(ctx, label, func() error {
		addr, err := f.callAddress(ctx, f.v2Factory, "getPair",
			common.HexToAddress(tokenA), common.HexToAddress(tokenB), stable)
		if err != nil {
			return err
		}
		if addr == (common.Address{}) {
			return nil
		}
		found, err := f.inspect(ctx, addr, tokenA, tokenB,
			model.DexKey{Kind: model.DexV2, Stable: stable}, tvlFilter)
		if err != nil {
			return err
		}
		pool = found
		return nil
	})
	return pool, err
}

// CheckV3Pool probes the concentrated-liquidity factory for one
// (tokenA, tokenB, tickSpacing) combination.
func (f *Finder) CheckV3Pool(ctx context.Context, tokenA, tokenB string, tickSpacing int32, tvlFilter float64) (*model.Pool, error) {
	label := fmt.Sprintf("%s-%s v3 spacing=%d", model.TokenSymbol(tokenA), model.TokenSymbol(tokenB), tickSpacing)
	var pool *model.Pool
	err := f.withRetry(ctx, label, func() error {
		addr, err := f.callAddress(ctx, f.v3Factory, "getPool",
			common.HexToAddress(tokenA), common.HexToAddress(tokenB), big.NewInt(int64(tickSpacing)))
		if err != nil {
			return err
		}
		if addr == (common.Address{}) {
			return nil
		}
		found, err := f.inspect(ctx, addr, tokenA, tokenB,
			model.DexKey{Kind: model.DexV3, TickSpacing: tickSpacing}, tvlFilter)
		if err != nil {
			return err
		}
		pool = found
		return nil
	})
	return pool, err
}

func (f *Finder) inspect(ctx context.Context, addr common.Address, tokenA, tokenB string, dexKey model.DexKey, tvlFilter float64) (*model.Pool, error) {
	balanceA, err := f.tokenBalance(ctx, common.HexToAddress(tokenA), addr)
	if err != nil {
		return nil, err
	}
	balanceB, err := f.tokenBalance(ctx, common.HexToAddress(tokenB), addr)
	if err != nil {
		return nil, err
	}
	tvl, err := PoolTVL(balanceA, balanceB, tokenA, tokenB, f.prices)
	if err != nil {
		return nil, err
	}
	if tvlFilter > 0 && tvl < tvlFilter {
		f.logger.Debug("pool below TVL filter",
			zap.String("pool", addr.Hex()),
			zap.Float64("tvl", tvl),
			zap.Float64("filter", tvlFilter))
		return nil, nil
	}
	return &model.Pool{
		Key:     model.NewPoolKey(tokenA, tokenB, dexKey),
		Address: addr.Hex(),
		TVL:     tvl,
	}, nil
}

// Generate probes every token pair against both factories and returns
// the persisted pool set shape.
func (f *Finder) Generate(ctx context.Context, tvlFilter float64) (model.PoolSet, error) {
	var v2Pools, v3Pools []model.Pool

	for _, stable := range []bool{true, false} {
		for i := 0; i < len(f.tokens)-1; i++ {
			for j := i + 1; j < len(f.tokens); j++ {
				if err := ctx.Err(); err != nil {
					return model.PoolSet{}, err
				}
				pool, err := f.CheckV2Pool(ctx, f.tokens[i], f.tokens[j], stable, tvlFilter)
				if err != nil {
					f.logger.Warn("v2 pool check abandoned", zap.Error(err))
					continue
				}
				if pool != nil {
					v2Pools = append(v2Pools, *pool)
					f.logger.Info("found v2 pool",
						zap.String("pool", pool.Description()),
						zap.Float64("tvl", pool.TVL))
				}
			}
		}
	}
	for i := 0; i < len(f.tokens)-1; i++ {
		for j := i + 1; j < len(f.tokens); j++ {
			for _, spacing := range probedTickSpacings {
				if err := ctx.Err(); err != nil {
					return model.PoolSet{}, err
				}
				pool, err := f.CheckV3Pool(ctx, f.tokens[i], f.tokens[j], spacing, tvlFilter)
				if err != nil {
					f.logger.Warn("v3 pool check abandoned", zap.Error(err))
					continue
				}
				if pool != nil {
					v3Pools = append(v3Pools, *pool)
					f.logger.Info("found v3 pool",
						zap.String("pool", pool.Description()),
						zap.Float64("tvl", pool.TVL))
				}
			}
		}
	}

	return model.PoolSet{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		TVLFilter: tvlFilter,
		V2Pools:   v2Pools,
		V3Pools:   v3Pools,
		Summary: model.Summary{
			TotalV2:    len(v2Pools),
			TotalV3:    len(v3Pools),
			TotalPools: len(v2Pools) + len(v3Pools),
		},
	}, nil
}

// WritePoolSet persists the discovery output as indented JSON.
func WritePoolSet(set model.PoolSet, path string) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pool set: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// LoadPoolSet reads a previously persisted pool set.
func LoadPoolSet(path string) (model.PoolSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.PoolSet{}, fmt.Errorf("read %s: %w", path, err)
	}
	var set model.PoolSet
	if err := json.Unmarshal(data, &set); err != nil {
		return model.PoolSet{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return set, nil
}
