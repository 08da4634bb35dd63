package model

// SwapEvent is a decoded pool swap. Amounts are decimal-adjusted strings
// produced by exact integer scaling, never floats.
type SwapEvent struct {
	Pool        Pool   `json:"pool"`
	TokenIn     string `json:"tokenIn"`
	TokenOut    string `json:"tokenOut"`
	AmountIn    string `json:"amountIn"`
	AmountOut   string `json:"amountOut"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"transactionHash"`
}

// AddLiquidityEvent is a decoded Mint. Liquidity changes carry no
// direction; both token magnitudes are reported as-is.
type AddLiquidityEvent struct {
	Pool        Pool   `json:"pool"`
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	Amount0     string `json:"amount0"`
	Amount1     string `json:"amount1"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"transactionHash"`
}

// RemoveLiquidityEvent is a decoded Burn.
type RemoveLiquidityEvent struct {
	Pool        Pool   `json:"pool"`
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	Amount0     string `json:"amount0"`
	Amount1     string `json:"amount1"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"transactionHash"`
}
