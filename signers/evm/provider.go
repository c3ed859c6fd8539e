package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	x402evm "github.com/x402-foundation/x402exact/mechanisms/evm"
)

// Backend is the subset of *ethclient.Client used by the provider and wallet.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

var _ Backend = (*ethclient.Client)(nil)

// RPCProvider implements x402evm.Provider over a JSON-RPC backend.
type RPCProvider struct {
	backend Backend
	closer  func()
}

var _ x402evm.Provider = (*RPCProvider)(nil)

// NewRPCProvider wraps an existing backend.
func NewRPCProvider(backend Backend) *RPCProvider {
	return &RPCProvider{backend: backend}
}

// DialProvider connects to rawURL.
func DialProvider(ctx context.Context, rawURL string) (*RPCProvider, error) {
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rawURL, err)
	}
	return &RPCProvider{backend: client, closer: client.Close}, nil
}

// Backend returns the underlying backend, used to build a Wallet on the same connection.
func (p *RPCProvider) Backend() Backend {
	return p.backend
}

// GetBalance returns the native balance of address at the latest block.
func (p *RPCProvider) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	if !x402evm.IsValidAddress(address) {
		return nil, fmt.Errorf("invalid address: %s", address)
	}
	balance, err := p.backend.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// Call executes eth_call against `to` at the latest block.
func (p *RPCProvider) Call(ctx context.Context, to string, data []byte) ([]byte, error) {
	if !x402evm.IsValidAddress(to) {
		return nil, fmt.Errorf("invalid contract address: %s", to)
	}
	addr := common.HexToAddress(to)
	result, err := p.backend.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call failed: %w", err)
	}
	return result, nil
}

// Close releases the connection when the provider was created by DialProvider.
func (p *RPCProvider) Close() {
	if p.closer != nil {
		p.closer()
	}
}
