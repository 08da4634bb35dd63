package model

import "testing"

func TestNewPoolKeyOrdersTokens(t *testing.T) {
	a := "0xBBbBBBbbbBbbBBbbBBBbbBBbBbBBbBBbbBBbbBbB"
	b := "0xAaAaaAAaaaAAAaaAAaAaaAaaAAaaAaaaAaAAaAAA"

	key := NewPoolKey(a, b, DexKey{Kind: DexV2})
	if key.Token0 != b || key.Token1 != a {
		t.Fatalf("tokens not ordered: %+v", key)
	}

	same := NewPoolKey(b, a, DexKey{Kind: DexV2})
	if same != key {
		t.Fatalf("ordering not canonical: %+v vs %+v", same, key)
	}
}

func TestDexKeyDescription(t *testing.T) {
	cases := []struct {
		key  DexKey
		want string
	}{
		{DexKey{Kind: DexV2, Stable: true}, "KuraV2_Stable"},
		{DexKey{Kind: DexV2, Stable: false}, "KuraV2_Unstable"},
		{DexKey{Kind: DexV3, TickSpacing: 50}, "KuraV3_50"},
	}
	for _, tc := range cases {
		if got := tc.key.Description(); got != tc.want {
			t.Fatalf("description %q, want %q", got, tc.want)
		}
	}
}

func TestPoolDescriptionUsesSymbols(t *testing.T) {
	pool := Pool{
		Key: NewPoolKey(
			"0xE30feDd158A2e3b13e9badaeABaFc5516e95e8C7",
			"0x9151434b16b9763660705744891fA906F660EcC5",
			DexKey{Kind: DexV3, TickSpacing: 10},
		),
		Address: "0x1111111111111111111111111111111111111111",
	}
	if got := pool.Description(); got != "USDT-WSEI-KuraV3_10" {
		t.Fatalf("pool description: %s", got)
	}
}

func TestLogFrameBlockNumber(t *testing.T) {
	frame := LogFrame{BlockNumber: "0x1a4"}
	if got := frame.BlockNumberUint(); got != 420 {
		t.Fatalf("block number %d", got)
	}
	if got := (LogFrame{BlockNumber: "nonsense"}).BlockNumberUint(); got != 0 {
		t.Fatalf("malformed block number should decode to 0, got %d", got)
	}
	if got := (LogFrame{}).BlockNumberUint(); got != 0 {
		t.Fatalf("empty block number should decode to 0, got %d", got)
	}
}

func TestTokenLookups(t *testing.T) {
	if d := TokenDecimals("0x9151434b16b9763660705744891fA906F660EcC5"); d != 6 {
		t.Fatalf("USDT decimals %d", d)
	}
	if d := TokenDecimals("0x0000000000000000000000000000000000000001"); d != 18 {
		t.Fatalf("unknown token decimals %d, want default 18", d)
	}
	if s := TokenSymbol("0xE30feDd158A2e3b13e9badaeABaFc5516e95e8C7"); s != "WSEI" {
		t.Fatalf("WSEI symbol %s", s)
	}
	if s := TokenSymbol("0x0000000000000000000000000000000000000001"); s != "0x000000..." {
		t.Fatalf("unknown token symbol %s", s)
	}
}
