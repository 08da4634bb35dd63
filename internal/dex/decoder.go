package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/rowantis/kura-alert/internal/model"
)

// Decoder translates raw subscription log frames into typed domain events.
// A nil event with a nil error means "not applicable": the frame is not one
// of the events this decoder handles for the pool's variant. Errors are
// reserved for malformed payloads and never abort the pipeline.
type Decoder struct {
	pairABI abi.ABI
	poolABI abi.ABI
	logger  *zap.Logger
}

// NewDecoder builds a decoder for both protocol variants.
func NewDecoder(logger *zap.Logger) (*Decoder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pairABI, err := V2PairABI()
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	return &Decoder{pairABI: pairABI, poolABI: poolABI, logger: logger}, nil
}

// EventTopic returns the signature topic for an event on a protocol variant.
func (d *Decoder) EventTopic(kind model.DexKind, name string) (common.Hash, error) {
	contractABI, err := d.abiFor(kind)
	if err != nil {
		return common.Hash{}, err
	}
	event, ok := contractABI.Events[name]
	if !ok {
		return common.Hash{}, fmt.Errorf("event %s not found for %s", name, kind)
	}
	return event.ID, nil
}

func (d *Decoder) abiFor(kind model.DexKind) (abi.ABI, error) {
	switch kind {
	case model.DexV2:
		return d.pairABI, nil
	case model.DexV3:
		return d.poolABI, nil
	default:
		return abi.ABI{}, fmt.Errorf("unknown dex kind: %s", kind)
	}
}

// DecodeSwap decodes a Swap log for the pool's protocol variant.
func (d *Decoder) DecodeSwap(frame model.LogFrame, pool model.Pool) (*model.SwapEvent, error) {
	switch pool.Key.Dex.Kind {
	case model.DexV2:
		return d.decodeV2Swap(frame, pool)
	case model.DexV3:
		return d.decodeV3Swap(frame, pool)
	default:
		return nil, fmt.Errorf("unknown dex kind: %s", pool.Key.Dex.Kind)
	}
}

// decodeV2Swap classifies the trade direction from the four amount fields:
// exactly one input amount must be positive with the other zero. Any other
// combination is inconsistent and yields no event.
func (d *Decoder) decodeV2Swap(frame model.LogFrame, pool model.Pool) (*model.SwapEvent, error) {
	event := d.pairABI.Events["Swap"]
	if !topicMatches(frame, event.ID) {
		return nil, nil
	}

	values, err := unpackNonIndexed(event, frame.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected v2 swap values: %d", len(values))
	}

	amount0In, err := asBigInt(values[0])
	if err != nil {
		return nil, err
	}
	amount1In, err := asBigInt(values[1])
	if err != nil {
		return nil, err
	}
	amount0Out, err := asBigInt(values[2])
	if err != nil {
		return nil, err
	}
	amount1Out, err := asBigInt(values[3])
	if err != nil {
		return nil, err
	}

	var tokenIn, tokenOut string
	var rawIn, rawOut *big.Int
	switch {
	case amount0In.Sign() > 0 && amount1In.Sign() == 0:
		tokenIn, tokenOut = pool.Key.Token0, pool.Key.Token1
		rawIn, rawOut = amount0In, amount1Out
	case amount1In.Sign() > 0 && amount0In.Sign() == 0:
		tokenIn, tokenOut = pool.Key.Token1, pool.Key.Token0
		rawIn, rawOut = amount1In, amount0Out
	default:
		d.logger.Debug("v2 swap with inconsistent amounts",
			zap.String("pool", pool.Address),
			zap.String("tx_hash", frame.TransactionHash),
		)
		return nil, nil
	}

	return &model.SwapEvent{
		Pool:        pool,
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		AmountIn:    FormatUnits(rawIn, model.TokenDecimals(tokenIn)),
		AmountOut:   FormatUnits(rawOut, model.TokenDecimals(tokenOut)),
		BlockNumber: frame.BlockNumberUint(),
		TxHash:      frame.TransactionHash,
	}, nil
}

// decodeV3Swap classifies direction from the signed deltas: the positive
// delta is the inflow, the negated other delta the outflow. Both
// non-positive yields no event.
func (d *Decoder) decodeV3Swap(frame model.LogFrame, pool model.Pool) (*model.SwapEvent, error) {
	event := d.poolABI.Events["Swap"]
	if !topicMatches(frame, event.ID) {
		return nil, nil
	}

	values, err := unpackNonIndexed(event, frame.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 5 {
		return nil, fmt.Errorf("unexpected v3 swap values: %d", len(values))
	}

	amount0, err := asBigInt(values[0])
	if err != nil {
		return nil, err
	}
	amount1, err := asBigInt(values[1])
	if err != nil {
		return nil, err
	}

	var tokenIn, tokenOut string
	var rawIn, rawOut *big.Int
	switch {
	case amount0.Sign() > 0:
		tokenIn, tokenOut = pool.Key.Token0, pool.Key.Token1
		rawIn, rawOut = amount0, new(big.Int).Neg(amount1)
	case amount1.Sign() > 0:
		tokenIn, tokenOut = pool.Key.Token1, pool.Key.Token0
		rawIn, rawOut = amount1, new(big.Int).Neg(amount0)
	default:
		d.logger.Debug("v3 swap with non-positive deltas",
			zap.String("pool", pool.Address),
			zap.String("tx_hash", frame.TransactionHash),
		)
		return nil, nil
	}

	return &model.SwapEvent{
		Pool:        pool,
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		AmountIn:    FormatUnits(rawIn, model.TokenDecimals(tokenIn)),
		AmountOut:   FormatUnits(rawOut, model.TokenDecimals(tokenOut)),
		BlockNumber: frame.BlockNumberUint(),
		TxHash:      frame.TransactionHash,
	}, nil
}

// DecodeAddLiquidity decodes a Mint log for the pool's protocol variant.
func (d *Decoder) DecodeAddLiquidity(frame model.LogFrame, pool model.Pool) (*model.AddLiquidityEvent, error) {
	amount0, amount1, ok, err := d.decodeLiquidityAmounts(frame, pool, "Mint")
	if err != nil || !ok {
		return nil, err
	}
	return &model.AddLiquidityEvent{
		Pool:        pool,
		Token0:      pool.Key.Token0,
		Token1:      pool.Key.Token1,
		Amount0:     FormatUnits(amount0, model.TokenDecimals(pool.Key.Token0)),
		Amount1:     FormatUnits(amount1, model.TokenDecimals(pool.Key.Token1)),
		BlockNumber: frame.BlockNumberUint(),
		TxHash:      frame.TransactionHash,
	}, nil
}

// DecodeRemoveLiquidity decodes a Burn log for the pool's protocol variant.
func (d *Decoder) DecodeRemoveLiquidity(frame model.LogFrame, pool model.Pool) (*model.RemoveLiquidityEvent, error) {
	amount0, amount1, ok, err := d.decodeLiquidityAmounts(frame, pool, "Burn")
	if err != nil || !ok {
		return nil, err
	}
	return &model.RemoveLiquidityEvent{
		Pool:        pool,
		Token0:      pool.Key.Token0,
		Token1:      pool.Key.Token1,
		Amount0:     FormatUnits(amount0, model.TokenDecimals(pool.Key.Token0)),
		Amount1:     FormatUnits(amount1, model.TokenDecimals(pool.Key.Token1)),
		BlockNumber: frame.BlockNumberUint(),
		TxHash:      frame.TransactionHash,
	}, nil
}

// decodeLiquidityAmounts extracts the two token magnitudes from a Mint or
// Burn payload. The v2 pair emits (amount0, amount1); the v3 pool prefixes
// them with the position's sender/liquidity fields.
func (d *Decoder) decodeLiquidityAmounts(frame model.LogFrame, pool model.Pool, name string) (*big.Int, *big.Int, bool, error) {
	contractABI, err := d.abiFor(pool.Key.Dex.Kind)
	if err != nil {
		return nil, nil, false, err
	}
	event := contractABI.Events[name]
	if !topicMatches(frame, event.ID) {
		return nil, nil, false, nil
	}

	values, err := unpackNonIndexed(event, frame.Data)
	if err != nil {
		return nil, nil, false, err
	}

	var idx0 int
	switch pool.Key.Dex.Kind {
	case model.DexV2:
		// (amount0, amount1)
		if len(values) != 2 {
			return nil, nil, false, fmt.Errorf("unexpected v2 %s values: %d", name, len(values))
		}
		idx0 = 0
	case model.DexV3:
		// Mint: (sender, amount, amount0, amount1); Burn: (amount, amount0, amount1)
		if len(values) < 3 {
			return nil, nil, false, fmt.Errorf("unexpected v3 %s values: %d", name, len(values))
		}
		idx0 = len(values) - 2
	}

	amount0, err := asBigInt(values[idx0])
	if err != nil {
		return nil, nil, false, err
	}
	amount1, err := asBigInt(values[idx0+1])
	if err != nil {
		return nil, nil, false, err
	}
	return amount0, amount1, true, nil
}

func topicMatches(frame model.LogFrame, id common.Hash) bool {
	topic0 := frame.Topic0()
	if topic0 == "" {
		return false
	}
	return strings.EqualFold(topic0, id.Hex())
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch typed := value.(type) {
	case *big.Int:
		return typed, nil
	default:
		return nil, fmt.Errorf("unexpected value type %T", value)
	}
}
