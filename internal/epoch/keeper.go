// Package epoch keeps weekly reward epochs alive on low-activity
// pools by pushing a dust-sized swap through each eligible pool once
// per period.
package epoch

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/rowantis/kura-alert/internal/dex"
	"github.com/rowantis/kura-alert/internal/kura"
	"github.com/rowantis/kura-alert/internal/model"
)

// Concentrated-liquidity price bounds. A pool pinned at either bound
// cannot absorb a swap pushing it further in that direction.
var (
	minSqrtRatioPlusOne, _  = new(big.Int).SetString("4295128740", 10)
	maxSqrtRatioMinusOne, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970341", 10)
)

// whitelistedTokens limits epoch keeping to pairs of well-known
// tokens. Lowercase addresses.
var whitelistedTokens = map[string]struct{}{
	"0xe30fedd158a2e3b13e9badaeabafc5516e95e8c7": {}, // WSEI
	"0x0555e30da8f98308edb960aa94c0db47230d2b9c": {}, // WBTC
	"0x5cf6826140c1c56ff49c808a1a75407cd1df9423": {}, // iSEI
	"0x160345fc359604fc6e70e3c5facbde5f7a9342d8": {}, // WETH
	"0x9151434b16b9763660705744891fa906f660ecc5": {}, // USDT
	"0x3894085ef7ff0f0aedf52e2a2704928d1ec074f1": {}, // USDC.n
	"0xe15fc38f6d8c56af07bbcbe3baf5708a2bf42392": {}, // USDC
	"0x059a6b0ba116c63191182a0956cf697d0d2213ec": {}, // syUSD
	"0x4b416a45e1f26a53d2ee82a50a4c7d7be9eda9e4": {}, // KURA
	"0x8a200a13c1321fdc7f6c7afba1494e1949426efd": {}, // K33
}

// spendOrder ranks tokens by preference as the swap input leg. Earlier
// entries are cheaper to hold and spend.
var spendOrder = []string{
	"0xe15fc38f6d8c56af07bbcbe3baf5708a2bf42392", // USDC
	"0xe30fedd158a2e3b13e9badaeabafc5516e95e8c7", // WSEI
	"0x4b416a45e1f26a53d2ee82a50a4c7d7be9eda9e4", // KURA
	"0x8a200a13c1321fdc7f6c7afba1494e1949426efd", // K33
	"0x9151434b16b9763660705744891fa906f660ecc5", // USDT
	"0x3894085ef7ff0f0aedf52e2a2704928d1ec074f1", // USDC.n
	"0x160345fc359604fc6e70e3c5facbde5f7a9342d8", // WETH
	"0x0555e30da8f98308edb960aa94c0db47230d2b9c", // WBTC
	"0x5cf6826140c1c56ff49c808a1a75407cd1df9423", // iSEI
	"0x059a6b0ba116c63191182a0956cf697d0d2213ec", // syUSD
}

func spendOrderIndex(token string) int {
	token = strings.ToLower(token)
	for i, addr := range spendOrder {
		if addr == token {
			return i
		}
	}
	return len(spendOrder)
}

const routerABIJSON = `[
  {
    "type": "function",
    "name": "exactInputSingle",
    "stateMutability": "payable",
    "inputs": [
      {
        "name": "params",
        "type": "tuple",
        "components": [
          {"name": "tokenIn", "type": "address"},
          {"name": "tokenOut", "type": "address"},
          {"name": "tickSpacing", "type": "int24"},
          {"name": "recipient", "type": "address"},
          {"name": "deadline", "type": "uint256"},
          {"name": "amountIn", "type": "uint256"},
          {"name": "amountOutMinimum", "type": "uint256"},
          {"name": "sqrtPriceLimitX96", "type": "uint160"}
        ]
      }
    ],
    "outputs": [{"name": "amountOut", "type": "uint256"}]
  }
]`

var (
	routerABIOnce sync.Once
	routerABI     abi.ABI
	routerABIErr  error
)

func swapRouterABI() (abi.ABI, error) {
	routerABIOnce.Do(func() {
		routerABI, routerABIErr = abi.JSON(strings.NewReader(routerABIJSON))
	})
	return routerABI, routerABIErr
}

type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	TickSpacing       *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// ContractCaller executes read-only contract calls. *chain.Client
// satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// TxSender signs and submits transactions. *chain.Wallet satisfies it.
type TxSender interface {
	Address() common.Address
	Submit(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Receipt, error)
}

// PoolSource supplies the current pool snapshot.
type PoolSource interface {
	CurrentPools() []model.Pool
}

// PriceSource supplies last-known token prices.
type PriceSource interface {
	Price(tokenAddress string) (float64, bool)
}

// Notifier delivers epoch-keeping status messages.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// FailureReporter delivers deduplicated failure messages.
type FailureReporter interface {
	ReportFailure(ctx context.Context, message string)
}

// TargetSwapValueUSD sizes the dust swap: large enough to register,
// small enough to be negligible.
const TargetSwapValueUSD = 0.0005

// Config wires a Keeper's collaborators and knobs.
type Config struct {
	Router   common.Address
	Interval time.Duration

	Pools    PoolSource
	Prices   PriceSource
	Caller   ContractCaller
	Sender   TxSender
	Notifier Notifier
	Failures FailureReporter
	Store    *PeriodStore
}

// Keeper walks the eligible pools once per interval and performs one
// dust swap per pool per weekly period.
type Keeper struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	ticking bool
}

func NewKeeper(cfg Config, logger *zap.Logger) *Keeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Keeper{cfg: cfg, logger: logger}
}

// Run loads persisted state, ticks on the configured cadence until ctx
// is canceled, then flushes state.
func (k *Keeper) Run(ctx context.Context) error {
	if err := k.cfg.Store.Load(); err != nil {
		return fmt.Errorf("load period store: %w", err)
	}

	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := k.cfg.Store.Flush(); err != nil {
				k.logger.Error("period store flush failed", zap.Error(err))
			}
			return nil
		case <-ticker.C:
			k.Tick(ctx)
		}
	}
}

// Tick processes every eligible pool not yet touched in the current
// period. Overlapping ticks are skipped, keeping nonce use sequential.
func (k *Keeper) Tick(ctx context.Context) {
	k.mu.Lock()
	if k.ticking {
		k.mu.Unlock()
		return
	}
	k.ticking = true
	k.mu.Unlock()
	defer func() {
		k.mu.Lock()
		k.ticking = false
		k.mu.Unlock()
	}()

	period := kura.CurrentPeriod(time.Now())
	for _, pool := range k.eligiblePools() {
		if last, ok := k.cfg.Store.Get(pool.Address); ok && last == period {
			continue
		}
		if err := k.updatePool(ctx, pool, period); err != nil {
			message := fmt.Sprintf("[EpochKeeping] roughSwap failed for %s. %v", pool.Description(), err)
			k.logger.Warn("epoch keeping swap failed",
				zap.String("pool", pool.Description()),
				zap.Error(err))
			if k.cfg.Failures != nil {
				k.cfg.Failures.ReportFailure(ctx, message)
			}
		}
	}
}

// eligiblePools keeps concentrated-liquidity pools whose both tokens
// are whitelisted.
func (k *Keeper) eligiblePools() []model.Pool {
	var out []model.Pool
	for _, pool := range k.cfg.Pools.CurrentPools() {
		if pool.Key.Dex.Kind != model.DexV3 {
			continue
		}
		_, ok0 := whitelistedTokens[strings.ToLower(pool.Key.Token0)]
		_, ok1 := whitelistedTokens[strings.ToLower(pool.Key.Token1)]
		if ok0 && ok1 {
			out = append(out, pool)
		}
	}
	return out
}

func (k *Keeper) updatePool(ctx context.Context, pool model.Pool, period int64) error {
	tokenIn, tokenOut := k.swapLegs(pool)
	amountIn, err := k.dustAmountIn(tokenIn)
	if err != nil {
		return err
	}
	if err := k.roughSwap(ctx, pool, tokenIn, tokenOut, amountIn); err != nil {
		return err
	}

	k.cfg.Store.Set(pool.Address, period)
	k.logger.Info("epoch keeping swap succeeded",
		zap.String("pool", pool.Description()),
		zap.Int64("period", period))
	if k.cfg.Notifier != nil {
		text := fmt.Sprintf("[EpochKeeping] roughSwap success for %s", pool.Description())
		if err := k.cfg.Notifier.Notify(ctx, text); err != nil {
			k.logger.Warn("epoch keeping notification failed", zap.Error(err))
		}
	}
	return nil
}

// swapLegs picks the input token by spend preference.
func (k *Keeper) swapLegs(pool model.Pool) (tokenIn, tokenOut string) {
	if spendOrderIndex(pool.Key.Token0) < spendOrderIndex(pool.Key.Token1) {
		return pool.Key.Token0, pool.Key.Token1
	}
	return pool.Key.Token1, pool.Key.Token0
}

// dustAmountIn converts the USD target into raw token units.
func (k *Keeper) dustAmountIn(token string) (*big.Int, error) {
	info, ok := model.TokenInfoFor(token)
	if !ok {
		return nil, fmt.Errorf("decimals not found for token %s", token)
	}
	price, ok := k.cfg.Prices.Price(token)
	if !ok || price <= 0 {
		return nil, fmt.Errorf("no price for %s", model.TokenSymbol(token))
	}

	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(info.Decimals)), nil))
	amount := new(big.Float).Quo(big.NewFloat(TargetSwapValueUSD), big.NewFloat(price))
	amount.Mul(amount, scale)
	out, _ := amount.Int(nil)
	if out.Sign() <= 0 {
		out = big.NewInt(1)
	}
	return out, nil
}

func (k *Keeper) roughSwap(ctx context.Context, pool model.Pool, tokenIn, tokenOut string, amountIn *big.Int) error {
	erc20, err := dex.ERC20ABI()
	if err != nil {
		return err
	}
	inAddr := common.HexToAddress(tokenIn)
	outAddr := common.HexToAddress(tokenOut)
	self := k.cfg.Sender.Address()

	balance, err := k.callUint(ctx, erc20, inAddr, "balanceOf", self)
	if err != nil {
		return fmt.Errorf("balanceOf %s: %w", model.TokenSymbol(tokenIn), err)
	}
	if balance.Cmp(amountIn) < 0 {
		return fmt.Errorf("insufficient balance(%s) of %s for roughSwap while updating pool %s",
			dex.FormatUnits(amountIn, model.TokenDecimals(tokenIn)),
			model.TokenSymbol(tokenIn), pool.Description())
	}

	allowance, err := k.callUint(ctx, erc20, inAddr, "allowance", self, k.cfg.Router)
	if err != nil {
		return fmt.Errorf("allowance %s: %w", model.TokenSymbol(tokenIn), err)
	}
	if allowance.Cmp(amountIn) < 0 {
		approveData, err := erc20.Pack("approve", k.cfg.Router, amountIn)
		if err != nil {
			return fmt.Errorf("pack approve: %w", err)
		}
		if _, err := k.cfg.Sender.Submit(ctx, inAddr, approveData, nil); err != nil {
			return fmt.Errorf("approve %s: %w", model.TokenSymbol(tokenIn), err)
		}
	}

	if err := k.checkPriceBounds(ctx, pool, tokenIn, tokenOut); err != nil {
		return err
	}

	zeroForOne := strings.ToLower(tokenIn) < strings.ToLower(tokenOut)
	limit := maxSqrtRatioMinusOne
	if zeroForOne {
		limit = minSqrtRatioPlusOne
	}
	router, err := swapRouterABI()
	if err != nil {
		return err
	}
	swapData, err := router.Pack("exactInputSingle", exactInputSingleParams{
		TokenIn:           inAddr,
		TokenOut:          outAddr,
		TickSpacing:       big.NewInt(int64(pool.Key.Dex.TickSpacing)),
		Recipient:         self,
		Deadline:          big.NewInt(time.Now().Unix() + 60),
		AmountIn:          amountIn,
		AmountOutMinimum:  big.NewInt(0),
		SqrtPriceLimitX96: limit,
	})
	if err != nil {
		return fmt.Errorf("pack exactInputSingle: %w", err)
	}
	if _, err := k.cfg.Sender.Submit(ctx, k.cfg.Router, swapData, nil); err != nil {
		return fmt.Errorf("swap %s to %s while updating pool %s: %w",
			model.TokenSymbol(tokenIn), model.TokenSymbol(tokenOut), pool.Description(), err)
	}
	return nil
}

// checkPriceBounds skips swaps that would push a pool already pinned
// at a price bound. A failed slot0 read is logged and ignored; the
// swap itself will surface a real problem.
func (k *Keeper) checkPriceBounds(ctx context.Context, pool model.Pool, tokenIn, tokenOut string) error {
	poolABI, err := dex.V3PoolABI()
	if err != nil {
		return err
	}
	data, err := poolABI.Pack("slot0")
	if err != nil {
		return fmt.Errorf("pack slot0: %w", err)
	}
	raw, err := k.cfg.Caller.CallContract(ctx, common.HexToAddress(pool.Address), data)
	if err != nil {
		k.logger.Debug("slot0 read failed",
			zap.String("pool", pool.Description()),
			zap.Error(err))
		return nil
	}
	values, err := poolABI.Unpack("slot0", raw)
	if err != nil || len(values) == 0 {
		k.logger.Debug("slot0 decode failed", zap.String("pool", pool.Description()))
		return nil
	}
	sqrtPrice, ok := values[0].(*big.Int)
	if !ok {
		return nil
	}

	zeroForOne := strings.ToLower(tokenIn) < strings.ToLower(tokenOut)
	if zeroForOne && sqrtPrice.Cmp(minSqrtRatioPlusOne) == 0 {
		return fmt.Errorf("stuck with the minimum price(%s)", minSqrtRatioPlusOne)
	}
	if !zeroForOne && sqrtPrice.Cmp(maxSqrtRatioMinusOne) == 0 {
		return fmt.Errorf("stuck with the maximum price(%s)", maxSqrtRatioMinusOne)
	}
	return nil
}

func (k *Keeper) callUint(ctx context.Context, contractABI abi.ABI, to common.Address, method string, args ...any) (*big.Int, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := k.cfg.Caller.CallContract(ctx, to, data)
	if err != nil {
		return nil, err
	}
	values, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	out, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned %T", method, values[0])
	}
	return out, nil
}
