// Package chain provides in-memory implementations of the blockchain
// capability interfaces and a two-network configuration for tests.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/x402-foundation/x402exact/config"
	"github.com/x402-foundation/x402exact/mechanisms/evm"
	"github.com/x402-foundation/x402exact/types"
)

// Anvil development accounts #0 and #1.
const (
	PayerKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	PayerAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	OtherKey     = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

const (
	PayTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"

	BaseSepolia   types.Network = "eip155:84532"
	AvalancheFuji types.Network = "eip155:43113"

	BaseSepoliaUSDC = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	FujiUSDC        = "0x5425890298aed601595a70AB815c96711a31Bc65"

	BaseOptionID = "base-1c"
	FujiOptionID = "fuji-1c"
)

// ============================================================================
// Provider
// ============================================================================

// Provider is a scripted evm.Provider. A nil Balance reads as one ether.
type Provider struct {
	mu         sync.Mutex
	Balance    *big.Int
	BalanceErr error
	CallResult []byte
	CallErr    error
	Calls      []string
}

var _ evm.Provider = (*Provider)(nil)

// GetBalance returns Balance or BalanceErr
func (p *Provider) GetBalance(context.Context, string) (*big.Int, error) {
	if p.BalanceErr != nil {
		return nil, p.BalanceErr
	}
	if p.Balance == nil {
		return big.NewInt(1e18), nil
	}
	return p.Balance, nil
}

// Call records the target contract and returns CallResult or CallErr
func (p *Provider) Call(_ context.Context, to string, _ []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, to)
	if p.CallErr != nil {
		return nil, p.CallErr
	}
	return p.CallResult, nil
}

// ============================================================================
// Wallet
// ============================================================================

// Wallet is a scripted evm.Wallet that numbers its transactions.
type Wallet struct {
	mu      sync.Mutex
	Owner   string
	SendErr error
	Sent    []string
}

var _ evm.Wallet = (*Wallet)(nil)

// Address returns Owner, defaulting to PayTo
func (w *Wallet) Address() string {
	if w.Owner == "" {
		return PayTo
	}
	return w.Owner
}

// SendTransaction records the target contract and returns a fake hash
func (w *Wallet) SendTransaction(_ context.Context, to string, _ []byte) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.SendErr != nil {
		return "", w.SendErr
	}
	w.Sent = append(w.Sent, to)
	return fmt.Sprintf("0x%064x", len(w.Sent)), nil
}

// SendCount returns the number of successful broadcasts
func (w *Wallet) SendCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.Sent)
}

// ============================================================================
// Fixtures
// ============================================================================

// Configuration returns a valid configuration with one USDC option on Base
// Sepolia (payTo given as an alias) and one on Avalanche Fuji, both
// unlocking GET /weather.
func Configuration() config.Configuration {
	return config.Configuration{
		ContractCatalog: map[string]config.ContractDescriptor{
			"usdc-base-sepolia": {
				PaymentNetworkID: string(BaseSepolia),
				Address:          BaseSepoliaUSDC,
				Decimals:         6,
				DomainName:       "USDC",
				DomainVersion:    "2",
			},
			"usdc-fuji": {
				PaymentNetworkID: string(AvalancheFuji),
				Address:          FujiUSDC,
				Decimals:         6,
				DomainName:       "USD Coin",
				DomainVersion:    "2",
			},
		},
		PaymentOptionCatalog: map[string]config.PaymentOption{
			BaseOptionID: {ContractID: "usdc-base-sepolia", Amount: "10000", PayTo: "{{primary}}"},
			FujiOptionID: {ContractID: "usdc-fuji", Amount: "10000", PayTo: PayTo, MaxTimeoutSeconds: 120},
		},
		RestrictedCalls: []config.RestrictedCall{
			{Method: "GET", Name: "/weather", AcceptedPaymentOptionIDList: []string{BaseOptionID, FujiOptionID}},
		},
		ServerPayToAddressMap: map[string]string{"primary": PayTo},
	}
}

// Word ABI-encodes v as a uint256 return value.
func Word(v int64) []byte {
	return common.LeftPadBytes(big.NewInt(v).Bytes(), 32)
}
