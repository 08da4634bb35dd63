package model

import (
	"fmt"
	"strings"
)

// DexKind identifies the pool protocol variant.
type DexKind string

const (
	// DexV2 is the constant-product (pair) variant.
	DexV2 DexKind = "KuraV2"
	// DexV3 is the concentrated-liquidity variant.
	DexV3 DexKind = "KuraV3"
)

// DexKey tags a pool with its protocol variant. Stable is meaningful only
// for DexV2, TickSpacing only for DexV3.
type DexKey struct {
	Kind        DexKind `json:"type"`
	Stable      bool    `json:"isStable,omitempty"`
	TickSpacing int32   `json:"tickSpacing,omitempty"`
}

// PoolKey identifies a token pair on a dex variant. Token0 < Token1
// lexicographically, assigned at construction and never reordered.
type PoolKey struct {
	Token0 string `json:"token0"`
	Token1 string `json:"token1"`
	Dex    DexKey `json:"dexKey"`
}

// NewPoolKey builds a PoolKey with canonical token ordering.
func NewPoolKey(tokenA, tokenB string, dex DexKey) PoolKey {
	if strings.ToLower(tokenA) > strings.ToLower(tokenB) {
		tokenA, tokenB = tokenB, tokenA
	}
	return PoolKey{Token0: tokenA, Token1: tokenB, Dex: dex}
}

// Pool describes a monitored liquidity pool.
type Pool struct {
	Key     PoolKey `json:"poolKey"`
	Address string  `json:"poolAddress"`
	TVL     float64 `json:"tvl"`
}

// Description renders a short pool label for alert messages.
func (p Pool) Description() string {
	return fmt.Sprintf("%s-%s-%s",
		TokenSymbol(p.Key.Token0),
		TokenSymbol(p.Key.Token1),
		p.Key.Dex.Description(),
	)
}

// Description renders the dex variant label.
func (k DexKey) Description() string {
	if k.Kind == DexV2 {
		if k.Stable {
			return "KuraV2_Stable"
		}
		return "KuraV2_Unstable"
	}
	return fmt.Sprintf("KuraV3_%d", k.TickSpacing)
}

// PoolSet is the persisted pool-discovery output.
type PoolSet struct {
	Timestamp string  `json:"timestamp"`
	TVLFilter float64 `json:"tvlFilter"`
	V2Pools   []Pool  `json:"kuraV2Pools"`
	V3Pools   []Pool  `json:"kuraV3Pools"`
	Summary   Summary `json:"summary"`
}

// Summary holds pool counts for the persisted pool set.
type Summary struct {
	TotalV2    int `json:"totalKuraV2"`
	TotalV3    int `json:"totalKuraV3"`
	TotalPools int `json:"totalPools"`
}

// Pools returns the combined pool list.
func (s PoolSet) Pools() []Pool {
	out := make([]Pool, 0, len(s.V2Pools)+len(s.V3Pools))
	out = append(out, s.V2Pools...)
	out = append(out, s.V3Pools...)
	return out
}
