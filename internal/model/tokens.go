package model

import "strings"

// TokenInfo is static metadata for a known token.
type TokenInfo struct {
	Symbol   string
	Decimals uint8
}

// Known Sei EVM tokens, keyed by lowercase address.
var knownTokens = map[string]TokenInfo{
	"0xe30fedd158a2e3b13e9badaeabafc5516e95e8c7": {Symbol: "WSEI", Decimals: 18},
	"0x0555e30da8f98308edb960aa94c0db47230d2b9c": {Symbol: "WBTC", Decimals: 8},
	"0x5cf6826140c1c56ff49c808a1a75407cd1df9423": {Symbol: "iSEI", Decimals: 6},
	"0x160345fc359604fc6e70e3c5facbde5f7a9342d8": {Symbol: "WETH", Decimals: 18},
	"0x9151434b16b9763660705744891fa906f660ecc5": {Symbol: "USDT", Decimals: 6},
	"0x3894085ef7ff0f0aedf52e2a2704928d1ec074f1": {Symbol: "USDC.n", Decimals: 6},
	"0x059a6b0ba116c63191182a0956cf697d0d2213ec": {Symbol: "syUSD", Decimals: 18},
	"0x37a4dd9ced2b19cfe8fac251cd727b5787e45269": {Symbol: "fastUSD", Decimals: 18},
	"0xe15fc38f6d8c56af07bbcbe3baf5708a2bf42392": {Symbol: "USDC", Decimals: 6},
	"0x4b416a45e1f26a53d2ee82a50a4c7d7be9eda9e4": {Symbol: "KURA", Decimals: 18},
	"0x8a200a13c1321fdc7f6c7afba1494e1949426efd": {Symbol: "K33", Decimals: 18},
}

// TokenInfoFor returns the static metadata for a token address when
// it is known.
func TokenInfoFor(address string) (TokenInfo, bool) {
	info, ok := knownTokens[strings.ToLower(address)]
	return info, ok
}

// TokenDecimals returns the decimals for a token address, defaulting to 18
// for unknown tokens so decoding never aborts on a lookup miss.
func TokenDecimals(address string) uint8 {
	if info, ok := knownTokens[strings.ToLower(address)]; ok {
		return info.Decimals
	}
	return 18
}

// TokenSymbol returns the symbol for a token address, or a shortened
// address for unknown tokens.
func TokenSymbol(address string) string {
	if info, ok := knownTokens[strings.ToLower(address)]; ok {
		return info.Symbol
	}
	if len(address) > 8 {
		return address[:8] + "..."
	}
	return address
}
