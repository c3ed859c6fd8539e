// Package evm implements the EVM side of the x402 exact scheme: EIP-712
// hashing and recovery for EIP-3009 authorizations, transferWithAuthorization
// calldata, and the capability interfaces the client and server consume.
package evm

import (
	"context"
	"math/big"
)

// Provider is the read side of an EVM JSON-RPC endpoint.
type Provider interface {
	// GetBalance returns the native balance of address in wei
	GetBalance(ctx context.Context, address string) (*big.Int, error)

	// Call executes a read-only eth_call against contract `to` and returns the raw result
	Call(ctx context.Context, to string, data []byte) ([]byte, error)
}

// Wallet broadcasts transactions signed by a server-side key.
type Wallet interface {
	// Address returns the wallet's Ethereum address
	Address() string

	// SendTransaction signs and broadcasts a transaction carrying data to `to`
	// and returns its hash. The call returns once the node accepted the transaction.
	SendTransaction(ctx context.Context, to string, data []byte) (string, error)
}

// Signer defines the interface for client-side EIP-712 signing
type Signer interface {
	// Address returns the signer's Ethereum address
	Address() string

	// SignTypedData signs EIP-712 typed data and returns a 65-byte r || s || v signature
	SignTypedData(ctx context.Context, domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]interface{}) ([]byte, error)
}

// TypedDataDomain represents the EIP-712 domain separator
type TypedDataDomain struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	ChainID           *big.Int `json:"chainId"`
	VerifyingContract string   `json:"verifyingContract"`
}

// TypedDataField represents a field in EIP-712 typed data
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// SignatureParts is a 65-byte signature split for transferWithAuthorization.
type SignatureParts struct {
	V uint8
	R [32]byte
	S [32]byte
}
