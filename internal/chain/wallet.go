package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Wallet signs and submits transactions for the maintenance account.
type Wallet struct {
	client  *Client
	key     *ecdsa.PrivateKey
	address common.Address
	logger  *zap.Logger
}

func NewWallet(client *Client, privateKeyHex string, logger *zap.Logger) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Wallet{
		client:  client,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		logger:  logger,
	}, nil
}

func (w *Wallet) Address() common.Address {
	return w.address
}

// Submit signs a contract call, sends it, and waits for inclusion.
// Returns an error when the receipt reports a revert.
func (w *Wallet) Submit(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Receipt, error) {
	if value == nil {
		value = big.NewInt(0)
	}
	nonce, err := w.client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	gasLimit, err := w.client.ethClient.EstimateGas(ctx, ethereum.CallMsg{
		From:  w.address,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	chainID, err := w.client.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	if err := w.client.ethClient.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	w.logger.Info("transaction submitted",
		zap.String("hash", signed.Hash().Hex()),
		zap.String("to", to.Hex()))

	receipt, err := bind.WaitMined(ctx, w.client.ethClient, signed)
	if err != nil {
		return nil, fmt.Errorf("wait mined %s: %w", signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("transaction %s reverted", signed.Hash().Hex())
	}
	return receipt, nil
}
