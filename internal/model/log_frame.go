package model

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// LogFrame is the raw log payload carried by an eth_subscription
// notification. Hex-quantity fields keep their wire encoding; accessors
// decode on demand.
type LogFrame struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     string   `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
	LogIndex        string   `json:"logIndex"`
	Removed         bool     `json:"removed"`
}

// Topic0 returns the event signature topic, or "" when absent.
func (f LogFrame) Topic0() string {
	if len(f.Topics) == 0 {
		return ""
	}
	return f.Topics[0]
}

// BlockNumberUint decodes the hex block number, 0 on malformed input.
func (f LogFrame) BlockNumberUint() uint64 {
	if f.BlockNumber == "" {
		return 0
	}
	n, err := hexutil.DecodeUint64(f.BlockNumber)
	if err != nil {
		return 0
	}
	return n
}
