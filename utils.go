package x402

import (
	"context"
	"fmt"

	"github.com/x402-foundation/x402exact/mechanisms/evm"
	signersevm "github.com/x402-foundation/x402exact/signers/evm"
	"github.com/x402-foundation/x402exact/types"
)

// DefaultNetworkKey is the provider and wallet map key used when a network
// has no entry of its own.
const DefaultNetworkKey = "default"

// lookupByNetwork returns the entry for network, falling back to the
// DefaultNetworkKey entry.
func lookupByNetwork[T any](entries map[string]T, network types.Network) (T, bool) {
	if v, ok := entries[string(network)]; ok {
		return v, true
	}
	v, ok := entries[DefaultNetworkKey]
	return v, ok
}

// ProviderDialer connects to an RPC endpoint.
type ProviderDialer func(ctx context.Context, url string) (evm.Provider, error)

// WalletFactory builds a server wallet that broadcasts through provider.
type WalletFactory func(privateKey string, provider evm.Provider) (evm.Wallet, error)

// SignerFactory builds a client signer from a private key.
type SignerFactory func(privateKey string) (evm.Signer, error)

func defaultDialer(ctx context.Context, url string) (evm.Provider, error) {
	return signersevm.DialProvider(ctx, url)
}

func defaultWalletFactory(privateKey string, provider evm.Provider) (evm.Wallet, error) {
	rpc, ok := provider.(*signersevm.RPCProvider)
	if !ok {
		return nil, fmt.Errorf("default wallet factory requires an RPC provider, got %T", provider)
	}
	return signersevm.NewWallet(privateKey, rpc.Backend())
}

func defaultSignerFactory(privateKey string) (evm.Signer, error) {
	return signersevm.NewClientSignerFromPrivateKey(privateKey)
}

// domainFor builds the EIP-712 domain of requirement's asset.
func domainFor(requirement types.PaymentRequirements) (evm.TypedDataDomain, error) {
	if requirement.Extra == nil || requirement.Extra.Name == "" || requirement.Extra.Version == "" {
		return evm.TypedDataDomain{}, types.NewPaymentError(
			types.ErrCodeInvalidPaymentRequirements,
			"extra.name and extra.version are required for EIP-3009 domain",
			nil,
		)
	}
	chainID, err := types.ParseNetwork(string(requirement.Network))
	if err != nil {
		return evm.TypedDataDomain{}, err
	}
	if !evm.IsValidAddress(requirement.Asset) {
		return evm.TypedDataDomain{}, types.NewPaymentError(
			types.ErrCodeInvalidPaymentRequirements,
			fmt.Sprintf("invalid asset address: %s", requirement.Asset),
			nil,
		)
	}
	return evm.NewDomain(requirement.Extra.Name, requirement.Extra.Version, chainID, requirement.Asset), nil
}
