package kura

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rowantis/kura-alert/internal/model"
)

func TestRefreshPricesMergesAndLowercases(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"0xAAa0000000000000000000000000000000000001":2.5,"0xbbb0000000000000000000000000000000000002":1.0}}`))
	}))
	defer server.Close()

	svc := NewService(Config{PriceFeedURL: server.URL}, zap.NewNop())
	if err := svc.RefreshPrices(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	price, ok := svc.Price("0xAAA0000000000000000000000000000000000001")
	if !ok || price != 2.5 {
		t.Fatalf("price = %v, %v", price, ok)
	}
	if _, ok := svc.Price("0xccc0000000000000000000000000000000000003"); ok {
		t.Fatal("unknown token should miss")
	}
}

func TestRefreshPricesFallbackOnFirstFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	svc := NewService(Config{PriceFeedURL: server.URL}, zap.NewNop())
	if err := svc.RefreshPrices(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}

	// Static fallback must be in place after a failed first refresh.
	price, ok := svc.Price("0x9151434b16b9763660705744891fA906F660EcC5") // USDT
	if !ok || price != 1 {
		t.Fatalf("fallback price = %v, %v", price, ok)
	}
}

func TestRefreshPricesFailureKeepsExistingTable(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"data":{"0xaaa0000000000000000000000000000000000001":3.0}}`))
	}))
	defer server.Close()

	svc := NewService(Config{PriceFeedURL: server.URL}, zap.NewNop())
	if err := svc.RefreshPrices(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	healthy = false
	if err := svc.RefreshPrices(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	price, ok := svc.Price("0xaaa0000000000000000000000000000000000001")
	if !ok || price != 3.0 {
		t.Fatalf("stale price lost: %v, %v", price, ok)
	}
	// Fallback must not clobber a populated table.
	if _, ok := svc.Price("0xE30feDd158A2e3b13e9badaeABaFc5516e95e8C7"); ok {
		t.Fatal("fallback seeded over a non-empty table")
	}
}

const subgraphBody = `{"data":{
  "legacyPools":[
    {"id":"0x1000000000000000000000000000000000000001",
     "token0":{"id":"0xaaa0000000000000000000000000000000000001","decimals":18},
     "token1":{"id":"0xbbb0000000000000000000000000000000000002","decimals":6},
     "isStable":true}
  ],
  "clPools":[
    {"id":"0x2000000000000000000000000000000000000002",
     "token0":{"id":"0xaaa0000000000000000000000000000000000001","decimals":18},
     "token1":{"id":"0xbbb0000000000000000000000000000000000002","decimals":6},
     "feeTier":3000},
    {"id":"0x3000000000000000000000000000000000000003",
     "token0":{"id":"0xaaa0000000000000000000000000000000000001","decimals":18},
     "token1":{"id":"0xbbb0000000000000000000000000000000000002","decimals":6},
     "feeTier":777}
  ]}}`

func TestRefreshPoolsBuildsSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		w.Write([]byte(subgraphBody))
	}))
	defer server.Close()

	var callback []model.Pool
	svc := NewService(Config{
		SubgraphURL: server.URL,
		OnPools:     func(pools []model.Pool) { callback = pools },
	}, zap.NewNop())

	if err := svc.RefreshPools(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	pools := svc.CurrentPools()
	// The unknown fee tier pool is skipped.
	if len(pools) != 2 {
		t.Fatalf("got %d pools, want 2", len(pools))
	}
	if len(callback) != 2 {
		t.Fatalf("callback got %d pools, want 2", len(callback))
	}

	var v2, v3 int
	for _, p := range pools {
		switch p.Key.Dex.Kind {
		case model.DexV2:
			v2++
			if !p.Key.Dex.Stable {
				t.Fatalf("v2 pool lost stable flag: %+v", p)
			}
		case model.DexV3:
			v3++
			if p.Key.Dex.TickSpacing != 50 {
				t.Fatalf("fee tier 3000 should map to tick spacing 50, got %d", p.Key.Dex.TickSpacing)
			}
		}
	}
	if v2 != 1 || v3 != 1 {
		t.Fatalf("v2 = %d, v3 = %d", v2, v3)
	}
}

func TestRefreshPoolsFailureKeepsSnapshot(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		w.Write([]byte(subgraphBody))
	}))
	defer server.Close()

	failures := 0
	svc := NewService(Config{
		SubgraphURL: server.URL,
		OnFailure:   func(ctx context.Context, msg string) { failures++ },
	}, zap.NewNop())

	if err := svc.RefreshPools(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	healthy = false
	if err := svc.RefreshPools(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if got := len(svc.CurrentPools()); got != 2 {
		t.Fatalf("snapshot lost on failed refresh: %d pools", got)
	}
}

func TestTickSpacingMap(t *testing.T) {
	cases := map[int]int{100: 1, 250: 5, 500: 10, 3000: 50, 10000: 100, 20000: 200}
	for tier, want := range cases {
		got, err := TickSpacing(tier)
		if err != nil || got != want {
			t.Fatalf("TickSpacing(%d) = %d, %v; want %d", tier, got, err, want)
		}
	}
	if _, err := TickSpacing(1234); err == nil {
		t.Fatal("unknown fee tier must error")
	}
}

func TestCurrentPeriod(t *testing.T) {
	const week = 7 * 24 * time.Hour
	base := time.UnixMilli(0)
	if got := CurrentPeriod(base.Add(3 * week)); got != 3 {
		t.Fatalf("period = %d, want 3", got)
	}
	// Same week maps to the same period regardless of weekday.
	a := CurrentPeriod(base.Add(10*week + 5*time.Hour))
	b := CurrentPeriod(base.Add(10*week + 6*24*time.Hour))
	if a != b || a != 10 {
		t.Fatalf("periods %d, %d; want both 10", a, b)
	}
}
