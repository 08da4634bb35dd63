package kura

import "fmt"

// staticPrices seeds the oracle when the remote price feed is
// unreachable before the first successful refresh. Keyed by lowercase
// token address.
var staticPrices = map[string]float64{
	"0xe30fedd158a2e3b13e9badaeabafc5516e95e8c7": 0.35,   // WSEI
	"0x0555e30da8f98308edb960aa94c0db47230d2b9c": 118967, // WBTC
	"0x5cf6826140c1c56ff49c808a1a75407cd1df9423": 0.37,   // iSEI
	"0x160345fc359604fc6e70e3c5facbde5f7a9342d8": 3891,   // WETH
	"0x9151434b16b9763660705744891fa906f660ecc5": 1,      // USDT
	"0x3894085ef7ff0f0aedf52e2a2704928d1ec074f1": 1,      // USDC.n
	"0x059a6b0ba116c63191182a0956cf697d0d2213ec": 1,      // syUSD
	"0x37a4dd9ced2b19cfe8fac251cd727b5787e45269": 1,      // fastUSD
	"0xe15fc38f6d8c56af07bbcbe3baf5708a2bf42392": 1,      // USDC
}

// feeTierToTickSpacing maps a concentrated-liquidity pool's fee tier
// to its tick spacing.
var feeTierToTickSpacing = map[int]int{
	100:   1,
	250:   5,
	500:   10,
	3000:  50,
	10000: 100,
	20000: 200,
}

// TickSpacing resolves the tick spacing for a fee tier.
func TickSpacing(feeTier int) (int, error) {
	spacing, ok := feeTierToTickSpacing[feeTier]
	if !ok {
		return 0, fmt.Errorf("invalid fee tier: %d", feeTier)
	}
	return spacing, nil
}
