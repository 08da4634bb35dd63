// Package kura tracks the exchange's tradable pools and token prices,
// refreshing both from remote sources on independent timers.
package kura

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rowantis/kura-alert/internal/model"
)

const (
	defaultPriceRefresh = time.Minute
	defaultPoolRefresh  = 5 * time.Minute
	priceFetchTimeout   = 10 * time.Second
	poolFetchTimeout    = 15 * time.Second

	weekMillis = 7 * 24 * time.Hour / time.Millisecond
)

// Config points the service at its remote sources.
type Config struct {
	PriceFeedURL string
	SubgraphURL  string

	PriceRefreshInterval time.Duration
	PoolRefreshInterval  time.Duration

	// OnPools is invoked after every successful pool refresh with the
	// new snapshot. Used to drive monitor resubscription.
	OnPools func(pools []model.Pool)

	// OnFailure receives one message per refresh failure. The receiver
	// is expected to deduplicate.
	OnFailure func(ctx context.Context, message string)
}

// Service holds the last-known pool set and price table. Reads are
// non-blocking snapshots; refresh failures keep serving stale data.
type Service struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	mu     sync.RWMutex
	prices map[string]float64
	pools  []model.Pool
}

func NewService(cfg Config, logger *zap.Logger) *Service {
	if cfg.PriceRefreshInterval <= 0 {
		cfg.PriceRefreshInterval = defaultPriceRefresh
	}
	if cfg.PoolRefreshInterval <= 0 {
		cfg.PoolRefreshInterval = defaultPoolRefresh
	}
	return &Service{
		cfg:    cfg,
		client: &http.Client{Timeout: poolFetchTimeout},
		logger: logger,
		prices: make(map[string]float64),
	}
}

// Run performs an initial refresh of both sources, then loops on the
// configured cadences until ctx is canceled.
func (s *Service) Run(ctx context.Context) {
	s.refreshPricesLogged(ctx)
	s.refreshPoolsLogged(ctx)

	priceTicker := time.NewTicker(s.cfg.PriceRefreshInterval)
	poolTicker := time.NewTicker(s.cfg.PoolRefreshInterval)
	defer priceTicker.Stop()
	defer poolTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-priceTicker.C:
			s.refreshPricesLogged(ctx)
		case <-poolTicker.C:
			s.refreshPoolsLogged(ctx)
		}
	}
}

func (s *Service) refreshPricesLogged(ctx context.Context) {
	if err := s.RefreshPrices(ctx); err != nil {
		s.logger.Warn("price refresh failed", zap.Error(err))
		s.reportFailure(ctx, fmt.Sprintf("price refresh failed: %v", err))
	}
}

func (s *Service) refreshPoolsLogged(ctx context.Context) {
	if err := s.RefreshPools(ctx); err != nil {
		s.logger.Warn("pool refresh failed", zap.Error(err))
		s.reportFailure(ctx, fmt.Sprintf("pool refresh failed: %v", err))
	}
}

func (s *Service) reportFailure(ctx context.Context, message string) {
	if s.cfg.OnFailure != nil {
		s.cfg.OnFailure(ctx, message)
	}
}

type priceFeedResponse struct {
	Data map[string]float64 `json:"data"`
}

// RefreshPrices merges the remote price table into the current one.
// If the feed is unreachable and no prices were ever loaded, the
// static fallback table is installed so valuation never starts from an
// empty table.
func (s *Service) RefreshPrices(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, priceFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, s.cfg.PriceFeedURL, nil)
	if err != nil {
		s.seedFallbackIfEmpty()
		return fmt.Errorf("build price request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.seedFallbackIfEmpty()
		return fmt.Errorf("fetch prices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		s.seedFallbackIfEmpty()
		return fmt.Errorf("price feed returned %s", resp.Status)
	}

	var feed priceFeedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		s.seedFallbackIfEmpty()
		return fmt.Errorf("decode price feed: %w", err)
	}

	s.mu.Lock()
	for addr, price := range feed.Data {
		s.prices[strings.ToLower(addr)] = price
	}
	count := len(s.prices)
	s.mu.Unlock()

	s.logger.Info("token prices updated", zap.Int("tokens", count))
	return nil
}

func (s *Service) seedFallbackIfEmpty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prices) > 0 {
		return
	}
	for addr, price := range staticPrices {
		s.prices[addr] = price
	}
	s.logger.Info("seeded static fallback prices", zap.Int("tokens", len(s.prices)))
}

const poolsQuery = `
query {
  legacyPools {
    id
    token0 { id decimals }
    token1 { id decimals }
    isStable
  }
  clPools {
    id
    token0 { id decimals }
    token1 { id decimals }
    feeTier
  }
}`

type subgraphToken struct {
	ID       string `json:"id"`
	Decimals int    `json:"decimals"`
}

type subgraphV2Pool struct {
	ID       string        `json:"id"`
	Token0   subgraphToken `json:"token0"`
	Token1   subgraphToken `json:"token1"`
	IsStable bool          `json:"isStable"`
}

type subgraphV3Pool struct {
	ID      string        `json:"id"`
	Token0  subgraphToken `json:"token0"`
	Token1  subgraphToken `json:"token1"`
	FeeTier int           `json:"feeTier"`
}

type subgraphResponse struct {
	Data struct {
		LegacyPools []subgraphV2Pool `json:"legacyPools"`
		CLPools     []subgraphV3Pool `json:"clPools"`
	} `json:"data"`
}

// RefreshPools replaces the pool snapshot from the subgraph. On
// failure the previous snapshot stays in place.
func (s *Service) RefreshPools(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, poolFetchTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"query": poolsQuery})
	if err != nil {
		return fmt.Errorf("marshal pools query: %w", err)
	}
	req, err := http.NewRequestWithContext(fetchCtx, http.MethodPost, s.cfg.SubgraphURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build pools request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch pools: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("subgraph returned %s", resp.Status)
	}

	var sg subgraphResponse
	if err := json.NewDecoder(resp.Body).Decode(&sg); err != nil {
		return fmt.Errorf("decode subgraph response: %w", err)
	}

	pools := make([]model.Pool, 0, len(sg.Data.LegacyPools)+len(sg.Data.CLPools))
	for _, p := range sg.Data.CLPools {
		spacing, err := TickSpacing(p.FeeTier)
		if err != nil {
			s.logger.Warn("skipping pool with unknown fee tier",
				zap.String("pool", p.ID),
				zap.Int("feeTier", p.FeeTier))
			continue
		}
		pools = append(pools, model.Pool{
			Key: model.NewPoolKey(p.Token0.ID, p.Token1.ID, model.DexKey{
				Kind:        model.DexV3,
				TickSpacing: int32(spacing),
			}),
			Address: p.ID,
		})
	}
	for _, p := range sg.Data.LegacyPools {
		pools = append(pools, model.Pool{
			Key: model.NewPoolKey(p.Token0.ID, p.Token1.ID, model.DexKey{
				Kind:   model.DexV2,
				Stable: p.IsStable,
			}),
			Address: p.ID,
		})
	}

	s.mu.Lock()
	s.pools = pools
	s.mu.Unlock()

	s.logger.Info("pools updated from subgraph", zap.Int("pools", len(pools)))
	if s.cfg.OnPools != nil {
		s.cfg.OnPools(pools)
	}
	return nil
}

// Price reports the last-known USD price for a token address.
func (s *Service) Price(tokenAddress string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[strings.ToLower(tokenAddress)]
	return price, ok
}

// CurrentPools returns the last-known pool snapshot without blocking
// on a refresh.
func (s *Service) CurrentPools() []model.Pool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Pool, len(s.pools))
	copy(out, s.pools)
	return out
}

// CurrentPeriod returns the current weekly epoch number.
func CurrentPeriod(now time.Time) int64 {
	return now.UnixMilli() / int64(weekMillis)
}
