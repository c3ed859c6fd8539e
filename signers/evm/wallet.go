package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	x402evm "github.com/x402-foundation/x402exact/mechanisms/evm"
)

// Wallet implements x402evm.Wallet by signing legacy EIP-155 transactions
// with a private key and broadcasting them through a Backend.
type Wallet struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	backend    Backend

	mu      sync.Mutex
	chainID *big.Int
}

var _ x402evm.Wallet = (*Wallet)(nil)

// NewWallet creates a wallet for privateKeyHex bound to backend.
func NewWallet(privateKeyHex string, backend Backend) (*Wallet, error) {
	if backend == nil {
		return nil, fmt.Errorf("wallet requires a backend")
	}
	privateKey, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	return &Wallet{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		backend:    backend,
	}, nil
}

// Address returns the wallet's Ethereum address.
func (w *Wallet) Address() string {
	return w.address.Hex()
}

// SendTransaction estimates gas, signs and broadcasts a zero-value call
// carrying data to `to`. It returns the transaction hash once the node accepted it.
func (w *Wallet) SendTransaction(ctx context.Context, to string, data []byte) (string, error) {
	if !x402evm.IsValidAddress(to) {
		return "", fmt.Errorf("invalid contract address: %s", to)
	}
	toAddr := common.HexToAddress(to)

	chainID, err := w.getChainID(ctx)
	if err != nil {
		return "", err
	}

	gasLimit, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{From: w.address, To: &toAddr, Data: data})
	if err != nil {
		return "", fmt.Errorf("estimate gas failed: %w", err)
	}

	gasPrice, err := w.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price failed: %w", err)
	}

	nonce, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return "", fmt.Errorf("pending nonce failed: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &toAddr,
		Value:    big.NewInt(0),
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), w.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign tx failed: %w", err)
	}

	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx failed: %w", err)
	}

	return signed.Hash().Hex(), nil
}

func (w *Wallet) getChainID(ctx context.Context) (*big.Int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.chainID != nil {
		return w.chainID, nil
	}
	chainID, err := w.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	w.chainID = chainID
	return chainID, nil
}
