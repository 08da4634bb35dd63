package dex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/rowantis/kura-alert/internal/model"
)

const (
	usdtAddr = "0x9151434b16b9763660705744891fA906F660EcC5" // 6 decimals
	wseiAddr = "0xE30feDd158A2e3b13e9badaeABaFc5516e95e8C7" // 18 decimals
)

func v2Pool() model.Pool {
	return model.Pool{
		Key:     model.NewPoolKey(usdtAddr, wseiAddr, model.DexKey{Kind: model.DexV2}),
		Address: "0x1111111111111111111111111111111111111111",
	}
}

func v3Pool() model.Pool {
	return model.Pool{
		Key:     model.NewPoolKey(usdtAddr, wseiAddr, model.DexKey{Kind: model.DexV3, TickSpacing: 10}),
		Address: "0x2222222222222222222222222222222222222222",
	}
}

func buildFrame(t *testing.T, pool model.Pool, topic0 common.Hash, data []byte) model.LogFrame {
	t.Helper()
	return model.LogFrame{
		Address:         pool.Address,
		Topics:          []string{topic0.Hex()},
		Data:            hexutil.Encode(data),
		BlockNumber:     "0x1a4",
		TransactionHash: "0xdeadbeef",
	}
}

func mustDecoder(t *testing.T) *Decoder {
	t.Helper()
	decoder, err := NewDecoder(zap.NewNop())
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	return decoder
}

func usdt(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), big.NewInt(1_000_000))
}

func wsei(units int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(units), scale)
}

func TestDecodeV2Swap(t *testing.T) {
	decoder := mustDecoder(t)
	pool := v2Pool()
	pairABI, _ := V2PairABI()
	event := pairABI.Events["Swap"]

	// token0 (USDT) in, token1 (WSEI) out
	data, err := event.Inputs.NonIndexed().Pack(usdt(100), big.NewInt(0), big.NewInt(0), wsei(95))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	frame := buildFrame(t, pool, event.ID, data)

	swap, err := decoder.DecodeSwap(frame, pool)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if swap == nil {
		t.Fatal("expected swap event")
	}
	if swap.TokenIn != pool.Key.Token0 || swap.TokenOut != pool.Key.Token1 {
		t.Fatalf("direction mismatch: %+v", swap)
	}
	if swap.AmountIn != "100.000000" {
		t.Fatalf("amount in %s", swap.AmountIn)
	}
	if swap.AmountOut != "95.000000000000000000" {
		t.Fatalf("amount out %s", swap.AmountOut)
	}
	if swap.BlockNumber != 420 || swap.TxHash != "0xdeadbeef" {
		t.Fatalf("frame fields: %+v", swap)
	}
}

func TestDecodeV2SwapReverseDirection(t *testing.T) {
	decoder := mustDecoder(t)
	pool := v2Pool()
	pairABI, _ := V2PairABI()
	event := pairABI.Events["Swap"]

	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(0), wsei(5), usdt(2), big.NewInt(0))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	frame := buildFrame(t, pool, event.ID, data)

	swap, err := decoder.DecodeSwap(frame, pool)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if swap == nil {
		t.Fatal("expected swap event")
	}
	if swap.TokenIn != pool.Key.Token1 || swap.TokenOut != pool.Key.Token0 {
		t.Fatalf("direction mismatch: %+v", swap)
	}
	if swap.AmountIn != "5.000000000000000000" || swap.AmountOut != "2.000000" {
		t.Fatalf("amounts: %+v", swap)
	}
}

func TestDecodeV2SwapInconsistentAmounts(t *testing.T) {
	decoder := mustDecoder(t)
	pool := v2Pool()
	pairABI, _ := V2PairABI()
	event := pairABI.Events["Swap"]

	cases := []struct {
		name                 string
		in0, in1, out0, out1 *big.Int
	}{
		{"both inputs zero", big.NewInt(0), big.NewInt(0), big.NewInt(0), wsei(1)},
		{"both inputs positive", usdt(1), wsei(1), big.NewInt(0), big.NewInt(0)},
	}
	for _, tc := range cases {
		data, err := event.Inputs.NonIndexed().Pack(tc.in0, tc.in1, tc.out0, tc.out1)
		if err != nil {
			t.Fatalf("%s: pack: %v", tc.name, err)
		}
		swap, err := decoder.DecodeSwap(buildFrame(t, pool, event.ID, data), pool)
		if err != nil {
			t.Fatalf("%s: decode: %v", tc.name, err)
		}
		if swap != nil {
			t.Fatalf("%s: expected no event, got %+v", tc.name, swap)
		}
	}
}

func TestDecodeV3Swap(t *testing.T) {
	decoder := mustDecoder(t)
	pool := v3Pool()
	poolABI, _ := V3PoolABI()
	event := poolABI.Events["Swap"]

	// delta0 = +100 USDT in, delta1 = -95 WSEI out
	data, err := event.Inputs.NonIndexed().Pack(
		usdt(100),
		new(big.Int).Neg(wsei(95)),
		big.NewInt(123456789),
		big.NewInt(987654321),
		big.NewInt(-15),
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	frame := buildFrame(t, pool, event.ID, data)

	swap, err := decoder.DecodeSwap(frame, pool)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if swap == nil {
		t.Fatal("expected swap event")
	}
	if swap.TokenIn != pool.Key.Token0 || swap.TokenOut != pool.Key.Token1 {
		t.Fatalf("direction mismatch: %+v", swap)
	}
	if swap.AmountIn != "100.000000" || swap.AmountOut != "95.000000000000000000" {
		t.Fatalf("amounts: %+v", swap)
	}
}

func TestDecodeV3SwapNonPositiveDeltas(t *testing.T) {
	decoder := mustDecoder(t)
	pool := v3Pool()
	poolABI, _ := V3PoolABI()
	event := poolABI.Events["Swap"]

	data, err := event.Inputs.NonIndexed().Pack(
		new(big.Int).Neg(usdt(1)),
		big.NewInt(0),
		big.NewInt(1),
		big.NewInt(1),
		big.NewInt(0),
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	swap, err := decoder.DecodeSwap(buildFrame(t, pool, event.ID, data), pool)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if swap != nil {
		t.Fatalf("expected no event, got %+v", swap)
	}
}

func TestDecodeLiquidityEvents(t *testing.T) {
	decoder := mustDecoder(t)

	t.Run("v2 mint", func(t *testing.T) {
		pool := v2Pool()
		pairABI, _ := V2PairABI()
		event := pairABI.Events["Mint"]
		data, err := event.Inputs.NonIndexed().Pack(usdt(10), wsei(20))
		if err != nil {
			t.Fatalf("pack: %v", err)
		}
		add, err := decoder.DecodeAddLiquidity(buildFrame(t, pool, event.ID, data), pool)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if add == nil {
			t.Fatal("expected add event")
		}
		if add.Amount0 != "10.000000" || add.Amount1 != "20.000000000000000000" {
			t.Fatalf("amounts: %+v", add)
		}
	})

	t.Run("v2 burn", func(t *testing.T) {
		pool := v2Pool()
		pairABI, _ := V2PairABI()
		event := pairABI.Events["Burn"]
		data, err := event.Inputs.NonIndexed().Pack(usdt(3), wsei(4))
		if err != nil {
			t.Fatalf("pack: %v", err)
		}
		remove, err := decoder.DecodeRemoveLiquidity(buildFrame(t, pool, event.ID, data), pool)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if remove == nil {
			t.Fatal("expected remove event")
		}
		if remove.Amount0 != "3.000000" || remove.Amount1 != "4.000000000000000000" {
			t.Fatalf("amounts: %+v", remove)
		}
	})

	t.Run("v3 mint", func(t *testing.T) {
		pool := v3Pool()
		poolABI, _ := V3PoolABI()
		event := poolABI.Events["Mint"]
		sender := common.HexToAddress("0x3333333333333333333333333333333333333333")
		data, err := event.Inputs.NonIndexed().Pack(sender, big.NewInt(5000), usdt(7), wsei(8))
		if err != nil {
			t.Fatalf("pack: %v", err)
		}
		add, err := decoder.DecodeAddLiquidity(buildFrame(t, pool, event.ID, data), pool)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if add == nil {
			t.Fatal("expected add event")
		}
		if add.Amount0 != "7.000000" || add.Amount1 != "8.000000000000000000" {
			t.Fatalf("amounts: %+v", add)
		}
	})

	t.Run("v3 burn", func(t *testing.T) {
		pool := v3Pool()
		poolABI, _ := V3PoolABI()
		event := poolABI.Events["Burn"]
		data, err := event.Inputs.NonIndexed().Pack(big.NewInt(7000), usdt(1), wsei(2))
		if err != nil {
			t.Fatalf("pack: %v", err)
		}
		remove, err := decoder.DecodeRemoveLiquidity(buildFrame(t, pool, event.ID, data), pool)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if remove == nil {
			t.Fatal("expected remove event")
		}
		if remove.Amount0 != "1.000000" || remove.Amount1 != "2.000000000000000000" {
			t.Fatalf("amounts: %+v", remove)
		}
	})
}

func TestDecodeUnrelatedTopicYieldsNoEvent(t *testing.T) {
	decoder := mustDecoder(t)
	pool := v2Pool()
	frame := buildFrame(t, pool, common.HexToHash("0x01"), nil)

	swap, err := decoder.DecodeSwap(frame, pool)
	if err != nil || swap != nil {
		t.Fatalf("expected no event and no error, got %+v, %v", swap, err)
	}
	add, err := decoder.DecodeAddLiquidity(frame, pool)
	if err != nil || add != nil {
		t.Fatalf("expected no event and no error, got %+v, %v", add, err)
	}
	remove, err := decoder.DecodeRemoveLiquidity(frame, pool)
	if err != nil || remove != nil {
		t.Fatalf("expected no event and no error, got %+v, %v", remove, err)
	}
}

func TestDecodeMalformedDataFails(t *testing.T) {
	decoder := mustDecoder(t)
	pool := v2Pool()
	pairABI, _ := V2PairABI()
	event := pairABI.Events["Swap"]

	frame := buildFrame(t, pool, event.ID, []byte{0x01, 0x02})
	if _, err := decoder.DecodeSwap(frame, pool); err == nil {
		t.Fatal("expected decode error for truncated data")
	}

	frame.Data = "not-hex"
	if _, err := decoder.DecodeSwap(frame, pool); err == nil {
		t.Fatal("expected decode error for invalid hex")
	}
}

func TestEventTopicsDifferAcrossVariants(t *testing.T) {
	decoder := mustDecoder(t)
	v2Topic, err := decoder.EventTopic(model.DexV2, "Swap")
	if err != nil {
		t.Fatalf("v2 topic: %v", err)
	}
	v3Topic, err := decoder.EventTopic(model.DexV3, "Swap")
	if err != nil {
		t.Fatalf("v3 topic: %v", err)
	}
	if v2Topic == (common.Hash{}) || v3Topic == (common.Hash{}) {
		t.Fatal("empty topic")
	}
	if v2Topic == v3Topic {
		t.Fatal("v2 and v3 swap topics should differ")
	}
	if _, err := decoder.EventTopic(model.DexV2, "Collect"); err == nil {
		t.Fatal("expected error for unknown event")
	}
}

func TestFormatUnits(t *testing.T) {
	cases := []struct {
		value    *big.Int
		decimals uint8
		want     string
	}{
		{big.NewInt(100), 0, "100"},
		{usdt(100), 6, "100.000000"},
		{big.NewInt(123456), 6, "0.123456"},
		{new(big.Int).Neg(usdt(1)), 6, "-1.000000"},
		{nil, 18, "0"},
	}
	for _, tc := range cases {
		if got := FormatUnits(tc.value, tc.decimals); got != tc.want {
			t.Fatalf("FormatUnits(%v, %d) = %s, want %s", tc.value, tc.decimals, got, tc.want)
		}
	}
}
