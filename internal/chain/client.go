package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client wraps go-ethereum RPC and provides the lookups the alert and
// maintenance paths need.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	mu      sync.RWMutex
	chainID *big.Int
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID, cached after the first lookup.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.RLock()
	id := c.chainID
	c.mu.RUnlock()
	if id != nil {
		return id, nil
	}

	id, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.chainID = id
	c.mu.Unlock()
	return id, nil
}

// CallContract executes a read-only contract call.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.ethClient.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// TransactionSender resolves the externally owned account that sent
// the given transaction. Used to tell team activity apart from outside
// traffic in alert headers.
func (c *Client) TransactionSender(ctx context.Context, txHash string) (string, error) {
	hash := common.HexToHash(txHash)
	tx, pending, err := c.ethClient.TransactionByHash(ctx, hash)
	if err != nil {
		return "", fmt.Errorf("transaction %s: %w", txHash, err)
	}
	if pending {
		return "", fmt.Errorf("transaction %s still pending", txHash)
	}

	chainID, err := c.ChainID(ctx)
	if err != nil {
		return "", err
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return "", fmt.Errorf("recover sender of %s: %w", txHash, err)
	}
	return sender.Hex(), nil
}

// SuggestGasPrice returns the node's gas price estimate.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.ethClient.SuggestGasPrice(ctx)
}

// PendingNonceAt returns the next nonce for an account.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.ethClient.PendingNonceAt(ctx, account)
}
