package types

import (
	"fmt"
	"math/big"
	"strings"
)

// EIP155Prefix is the CAIP-2 namespace prefix of every EVM network id.
const EIP155Prefix = "eip155:"

// Network represents a blockchain network identifier in CAIP-2 format,
// e.g. "eip155:84532" for Base Sepolia.
type Network string

// ParseNetwork extracts the chain id from an "eip155:<chainId>" identifier.
// The reference must be a base-10 non-negative integer.
func ParseNetwork(id string) (*big.Int, error) {
	if !strings.HasPrefix(id, EIP155Prefix) {
		return nil, NewPaymentError(ErrCodeInvalidNetwork,
			fmt.Sprintf("network %q must start with %q", id, EIP155Prefix), nil)
	}
	reference := strings.TrimPrefix(id, EIP155Prefix)
	if reference == "" {
		return nil, NewPaymentError(ErrCodeInvalidNetwork,
			fmt.Sprintf("network %q has no chain id", id), nil)
	}
	for _, r := range reference {
		if r < '0' || r > '9' {
			return nil, NewPaymentError(ErrCodeInvalidNetwork,
				fmt.Sprintf("network %q chain id is not a base-10 integer", id), nil)
		}
	}
	chainID, ok := new(big.Int).SetString(reference, 10)
	if !ok {
		return nil, NewPaymentError(ErrCodeInvalidNetwork,
			fmt.Sprintf("network %q chain id is not a base-10 integer", id), nil)
	}
	return chainID, nil
}

// NewNetwork formats a chain id as "eip155:<chainId>".
func NewNetwork(chainID *big.Int) Network {
	return Network(EIP155Prefix + chainID.String())
}

// NewNetworkFromUint64 formats a numeric chain id as "eip155:<chainId>".
func NewNetworkFromUint64(chainID uint64) Network {
	return NewNetwork(new(big.Int).SetUint64(chainID))
}

// ChainID parses the network's chain id.
func (n Network) ChainID() (*big.Int, error) {
	return ParseNetwork(string(n))
}

// IsEIP155 reports whether the network uses the eip155 namespace.
func (n Network) IsEIP155() bool {
	return strings.HasPrefix(string(n), EIP155Prefix)
}

func (n Network) String() string {
	return string(n)
}
