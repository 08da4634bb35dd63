package model

import "time"

// AlertRecord is the persisted form of a dispatched alert.
type AlertRecord struct {
	Kind         string    `json:"kind"`
	Pool         string    `json:"pool"`
	PoolLabel    string    `json:"poolLabel"`
	USDValue     float64   `json:"usdValue"`
	ThresholdUSD float64   `json:"thresholdUsd"`
	Sender       string    `json:"sender"`
	TeamAccount  bool      `json:"teamAccount"`
	BlockNumber  uint64    `json:"blockNumber"`
	TxHash       string    `json:"txHash"`
	CreatedAt    time.Time `json:"createdAt"`
}
