package x402

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	signersevm "github.com/x402-foundation/x402exact/signers/evm"
	"github.com/x402-foundation/x402exact/test/mocks/chain"
	"github.com/x402-foundation/x402exact/types"
)

const (
	payerKey       = chain.PayerKey
	payerAddress   = chain.PayerAddress
	otherKey       = chain.OtherKey
	payTo          = chain.PayTo
	baseSepolia    = chain.BaseSepolia
	avalancheFuji  = chain.AvalancheFuji
	baseSepoliaUSD = chain.BaseSepoliaUSDC
	fujiUSD        = chain.FujiUSDC

	testResource = "https://api.example.com/weather"
)

var testNow = time.Unix(1_700_000_000, 0)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type serverFixture struct {
	server    *ExactServer
	providers map[types.Network]*chain.Provider
	wallets   map[types.Network]*chain.Wallet
	required  types.PaymentRequired
}

func newServerFixture(t *testing.T, opts ...ServerOption) *serverFixture {
	t.Helper()
	f := &serverFixture{
		providers: map[types.Network]*chain.Provider{baseSepolia: {}, avalancheFuji: {}},
		wallets:   map[types.Network]*chain.Wallet{baseSepolia: {}, avalancheFuji: {}},
	}

	all := []ServerOption{WithServerClock(fixedClock(testNow))}
	for network, p := range f.providers {
		all = append(all, WithProvider(string(network), p))
	}
	for network, w := range f.wallets {
		all = append(all, WithWallet(string(network), w))
	}
	f.server = NewExactServer(append(all, opts...)...)

	cfg := chain.Configuration()
	prepared, err := f.server.PrepareCatalog(cfg)
	require.NoError(t, err)
	f.required, err = f.server.BuildRequiredPayload(testResource, []string{chain.BaseOptionID, chain.FujiOptionID}, prepared, cfg.ContractCatalog)
	require.NoError(t, err)
	return f
}

func newTestClient(t *testing.T, key string, opts ...ClientOption) *ExactClient {
	t.Helper()
	signer, err := signersevm.NewClientSignerFromPrivateKey(key)
	require.NoError(t, err)
	all := []ClientOption{
		WithSigner(signer),
		WithClientProvider(&chain.Provider{}),
		WithClientClock(fixedClock(testNow)),
	}
	return NewExactClient(append(all, opts...)...)
}

// signedPayload has the payer sign the requirement for network.
func signedPayload(t *testing.T, f *serverFixture, network types.Network) *types.PaymentPayload {
	t.Helper()
	client := newTestClient(t, payerKey)
	requirement := requirementFor(t, f.required, network)
	auth, signature, err := client.CreateAuthorization(context.Background(), requirement, Window{})
	require.NoError(t, err)
	payload := client.BuildPaymentPayload(f.required.Resource, requirement, auth, signature)
	return &payload
}

func requirementFor(t *testing.T, required types.PaymentRequired, network types.Network) types.PaymentRequirements {
	t.Helper()
	for _, r := range required.Accepts {
		if r.Network == network {
			return r
		}
	}
	t.Fatalf("no requirement for %s", network)
	return types.PaymentRequirements{}
}
