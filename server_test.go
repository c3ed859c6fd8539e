package x402

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/x402-foundation/x402exact/logger"
	"github.com/x402-foundation/x402exact/mechanisms/evm"
	"github.com/x402-foundation/x402exact/metrics"
	"github.com/x402-foundation/x402exact/nonce"
	"github.com/x402-foundation/x402exact/selection"
	"github.com/x402-foundation/x402exact/test/mocks/chain"
	"github.com/x402-foundation/x402exact/types"
)

func TestExactServer_EndToEnd(t *testing.T) {
	tests := []struct {
		name    string
		network types.Network
		asset   string
		timeout int
	}{
		{name: "base sepolia", network: baseSepolia, asset: baseSepoliaUSD, timeout: 300},
		{name: "avalanche fuji", network: avalancheFuji, asset: fujiUSD, timeout: 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newServerFixture(t)
			client := newTestClient(t, payerKey)

			requiredHeader, err := f.server.EmitRequiredHeader(f.required)
			require.NoError(t, err)

			signatureHeader, sent, err := client.Pay(ctx, requiredHeader, selection.Constraints{
				AllowedNetworks: []types.Network{tt.network},
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.network, sent.Accepted.Network)
			assert.Equal(t, ClientSignatureEmitted, client.State())

			payload, err := f.server.DecodeSignatureHeader(signatureHeader)
			require.NoError(t, err)

			validation := f.server.ValidateSignaturePayload(ctx, payload, f.required)
			require.True(t, validation.OK, validation.Summary())
			require.NotNil(t, validation.Matched)
			assert.Equal(t, tt.network, validation.Matched.Network)
			assert.Equal(t, tt.timeout, validation.Matched.MaxTimeoutSeconds)

			simulation, err := f.server.Simulate(ctx, payload, validation.Matched)
			require.NoError(t, err)
			assert.True(t, simulation.OK)
			assert.Equal(t, []string{tt.asset}, f.providers[tt.network].Calls)

			settlement, err := f.server.Settle(ctx, payload, validation.Matched)
			require.NoError(t, err)
			require.True(t, settlement.OK, settlement.Error)
			assert.Equal(t, []string{tt.asset}, f.wallets[tt.network].Sent)

			responseHeader, err := f.server.EmitResponseHeader(settlement.Response)
			require.NoError(t, err)
			assert.Equal(t, ServerResponseEmitted, f.server.State())

			response, err := client.DecodeResponseHeader(responseHeader)
			require.NoError(t, err)
			assert.True(t, response.Success)
			assert.Equal(t, tt.network, response.Network)
			assert.Equal(t, payerAddress, response.Payer)
			assert.NotEmpty(t, response.Transaction)

			used, err := f.server.Guard().IsUsed(ctx, nonce.Key(payload.Payload.Authorization.From, payload.Payload.Authorization.Nonce))
			require.NoError(t, err)
			assert.True(t, used)
		})
	}
}

func TestValidateSignaturePayload_Failures(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(p *types.PaymentPayload)
		now        time.Time
		wantPath   string
		wantCode   string
		wantNoMore bool
	}{
		{
			name:     "insufficient value",
			mutate:   func(p *types.PaymentPayload) { p.Payload.Authorization.Value = "9999" },
			wantPath: "payload.authorization.value",
			wantCode: types.ErrCodeInvalidExactEvmPayloadValue,
		},
		{
			name:     "expired",
			now:      testNow.Add(time.Hour),
			wantPath: "payload.authorization.validBefore",
			wantCode: types.ErrCodeInvalidExactEvmPayloadTimeout,
		},
		{
			name:     "not yet valid",
			now:      testNow.Add(-time.Hour),
			wantPath: "payload.authorization.validAfter",
			wantCode: types.ErrCodeInvalidExactEvmPayloadTimeout,
		},
		{
			name:     "resource mismatch",
			mutate:   func(p *types.PaymentPayload) { p.Resource = "https://api.example.com/other" },
			wantPath: "resource",
			wantCode: types.ErrCodeInvalidPayload,
		},
		{
			name:     "to does not match payTo",
			mutate:   func(p *types.PaymentPayload) { p.Payload.Authorization.To = payerAddress },
			wantPath: "payload.authorization.to",
			wantCode: types.ErrCodeInvalidPayload,
		},
		{
			name: "tampered signature",
			mutate: func(p *types.PaymentPayload) {
				sig := []byte(p.Payload.Signature)
				if sig[10] == 'a' {
					sig[10] = 'b'
				} else {
					sig[10] = 'a'
				}
				p.Payload.Signature = string(sig)
			},
			wantPath: "payload.signature",
			wantCode: types.ErrCodeInvalidExactEvmPayloadSignature,
		},
		{
			name: "nonce without prefix",
			mutate: func(p *types.PaymentPayload) {
				p.Payload.Authorization.Nonce = strings.TrimPrefix(p.Payload.Authorization.Nonce, "0x")
			},
			wantPath: "payload.authorization.nonce",
			wantCode: types.ErrCodeInvalidExactEvmPayloadNonce,
		},
		{
			name:       "accepted option not offered",
			mutate:     func(p *types.PaymentPayload) { p.Accepted.PayTo = payerAddress },
			wantPath:   "accepted",
			wantCode:   types.ErrCodeInvalidPaymentRequirements,
			wantNoMore: true,
		},
		{
			name:       "missing signature",
			mutate:     func(p *types.PaymentPayload) { p.Payload.Signature = "" },
			wantPath:   "payload.signature",
			wantCode:   types.ErrCodeInvalidExactEvmPayloadSignature,
			wantNoMore: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServerFixture(t)
			payload := signedPayload(t, f, baseSepolia)
			if tt.mutate != nil {
				tt.mutate(payload)
			}
			if !tt.now.IsZero() {
				f.server.now = fixedClock(tt.now)
			}

			result := f.server.ValidateSignaturePayload(context.Background(), payload, f.required)
			assert.False(t, result.OK)

			issue, found := result.Find(tt.wantPath)
			require.True(t, found, "issues: %s", result.Summary())
			assert.Equal(t, tt.wantCode, issue.Code)
			if tt.wantNoMore {
				assert.Len(t, result.Issues, 1)
			}
		})
	}
}

func TestValidateSignaturePayload_SignedByOtherKey(t *testing.T) {
	f := newServerFixture(t)
	other := newTestClient(t, otherKey)
	requirement := requirementFor(t, f.required, baseSepolia)

	auth, signature, err := other.CreateAuthorization(context.Background(), requirement, Window{})
	require.NoError(t, err)
	auth.From = payerAddress
	payload := other.BuildPaymentPayload(f.required.Resource, requirement, auth, signature)

	result := f.server.ValidateSignaturePayload(context.Background(), &payload, f.required)
	require.False(t, result.OK)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "payload.signature", result.Issues[0].Path)
	assert.Equal(t, types.ErrCodeInvalidExactEvmPayloadSignature, result.Issues[0].Code)
	require.NotNil(t, result.Matched)
}

func TestValidateSignaturePayload_NoProviderForNetwork(t *testing.T) {
	f := newServerFixture(t)
	server := NewExactServer(
		WithServerClock(fixedClock(testNow)),
		WithProvider(string(baseSepolia), &chain.Provider{}),
	)
	payload := signedPayload(t, f, avalancheFuji)

	result := server.ValidateSignaturePayload(context.Background(), payload, f.required)
	require.False(t, result.OK)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, types.ErrCodeInvalidNetwork, result.Issues[0].Code)
	require.NotNil(t, result.Matched)
	assert.Equal(t, avalancheFuji, result.Matched.Network)
}

func TestValidateSignaturePayload_DefaultProviderFallback(t *testing.T) {
	f := newServerFixture(t)
	server := NewExactServer(
		WithServerClock(fixedClock(testNow)),
		WithProvider(DefaultNetworkKey, &chain.Provider{}),
	)
	payload := signedPayload(t, f, avalancheFuji)

	result := server.ValidateSignaturePayload(context.Background(), payload, f.required)
	assert.True(t, result.OK, result.Summary())
}

func TestValidateSignaturePayload_Nil(t *testing.T) {
	f := newServerFixture(t)
	result := f.server.ValidateSignaturePayload(context.Background(), nil, f.required)
	assert.False(t, result.OK)
	assert.Nil(t, result.Matched)
}

func TestSettle_Replay(t *testing.T) {
	ctx := context.Background()
	f := newServerFixture(t)
	payload := signedPayload(t, f, baseSepolia)

	first := f.server.ValidateSignaturePayload(ctx, payload, f.required)
	require.True(t, first.OK, first.Summary())
	settled, err := f.server.Settle(ctx, payload, first.Matched)
	require.NoError(t, err)
	require.True(t, settled.OK)

	second := f.server.ValidateSignaturePayload(ctx, payload, f.required)
	require.False(t, second.OK)
	issue, found := second.Find("payload.authorization.nonce")
	require.True(t, found)
	assert.Equal(t, types.ErrCodeInvalidExactEvmPayloadNonce, issue.Code)
	assert.Contains(t, issue.Message, "replay")

	again, err := f.server.Settle(ctx, payload, first.Matched)
	require.NoError(t, err)
	assert.False(t, again.OK)
	assert.Equal(t, types.ErrCodeInvalidExactEvmPayloadNonce, again.ErrorCode)
	assert.False(t, again.Response.Success)
	assert.Equal(t, 1, f.wallets[baseSepolia].SendCount())
}

func TestSettle_ReplayAcrossServers(t *testing.T) {
	ctx := context.Background()
	guard := nonce.NewMemoryGuard()
	a := newServerFixture(t, WithNonceGuard(guard))
	b := newServerFixture(t, WithNonceGuard(guard))
	payload := signedPayload(t, a, baseSepolia)
	matched := requirementFor(t, a.required, baseSepolia)

	first, err := a.server.Settle(ctx, payload, &matched)
	require.NoError(t, err)
	require.True(t, first.OK)

	second, err := b.server.Settle(ctx, payload, &matched)
	require.NoError(t, err)
	assert.False(t, second.OK)
	assert.Equal(t, types.ErrCodeInvalidExactEvmPayloadNonce, second.ErrorCode)
	assert.Equal(t, 0, b.wallets[baseSepolia].SendCount())
}

func TestSettle_ReplayWithRewrittenNonce(t *testing.T) {
	ctx := context.Background()
	f := newServerFixture(t)
	payload := signedPayload(t, f, baseSepolia)
	matched := requirementFor(t, f.required, baseSepolia)

	first, err := f.server.Settle(ctx, payload, &matched)
	require.NoError(t, err)
	require.True(t, first.OK)

	digits := strings.TrimPrefix(payload.Payload.Authorization.Nonce, "0x")
	tests := []struct {
		name   string
		mutate func(a *types.Authorization)
	}{
		{name: "prefix stripped", mutate: func(a *types.Authorization) { a.Nonce = digits }},
		{name: "upper-case prefix", mutate: func(a *types.Authorization) { a.Nonce = "0X" + digits }},
		{name: "doubled prefix", mutate: func(a *types.Authorization) { a.Nonce = "0x0X" + digits }},
		{name: "upper-case digits", mutate: func(a *types.Authorization) { a.Nonce = "0x" + strings.ToUpper(digits) }},
		{name: "upper-case from prefix", mutate: func(a *types.Authorization) { a.From = "0X" + strings.TrimPrefix(a.From, "0x") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replay := *payload
			tt.mutate(&replay.Payload.Authorization)

			check := f.server.ValidateSignaturePayload(ctx, &replay, f.required)
			assert.False(t, check.OK)

			settled, err := f.server.Settle(ctx, &replay, &matched)
			require.NoError(t, err)
			assert.False(t, settled.OK)
			assert.Equal(t, 1, f.wallets[baseSepolia].SendCount())
		})
	}
}

// gatedWallet holds SendTransaction until release is closed.
type gatedWallet struct {
	*chain.Wallet
	entered chan struct{}
	release chan struct{}
}

func (w *gatedWallet) SendTransaction(ctx context.Context, to string, data []byte) (string, error) {
	close(w.entered)
	<-w.release
	return w.Wallet.SendTransaction(ctx, to, data)
}

func TestSettle_ConcurrentAcrossServers(t *testing.T) {
	ctx := context.Background()
	guard := nonce.NewMemoryGuard()
	gated := &gatedWallet{Wallet: &chain.Wallet{}, entered: make(chan struct{}), release: make(chan struct{})}
	a := newServerFixture(t, WithNonceGuard(guard), WithWallet(string(baseSepolia), gated))
	b := newServerFixture(t, WithNonceGuard(guard))
	payload := signedPayload(t, a, baseSepolia)
	matched := requirementFor(t, a.required, baseSepolia)

	done := make(chan SettlementResult, 1)
	go func() {
		result, err := a.server.Settle(ctx, payload, &matched)
		assert.NoError(t, err)
		done <- result
	}()
	<-gated.entered

	// a is mid-broadcast: the nonce is not used yet, but b must not broadcast it
	used, err := guard.IsUsed(ctx, nonce.Key(payload.Payload.Authorization.From, payload.Payload.Authorization.Nonce))
	require.NoError(t, err)
	assert.False(t, used)

	second, err := b.server.Settle(ctx, payload, &matched)
	require.NoError(t, err)
	assert.False(t, second.OK)
	assert.Equal(t, types.ErrCodeInvalidExactEvmPayloadNonce, second.ErrorCode)
	assert.Equal(t, 0, b.wallets[baseSepolia].SendCount())

	close(gated.release)
	first := <-done
	assert.True(t, first.OK)
	assert.Equal(t, 1, gated.SendCount())
	assert.Equal(t, 1, guard.Len())
}

func TestSettle_BroadcastFailureReleasesReservation(t *testing.T) {
	ctx := context.Background()
	guard := nonce.NewMemoryGuard()
	a := newServerFixture(t, WithNonceGuard(guard))
	b := newServerFixture(t, WithNonceGuard(guard))
	payload := signedPayload(t, a, baseSepolia)
	matched := requirementFor(t, a.required, baseSepolia)

	a.wallets[baseSepolia].SendErr = errors.New("insufficient funds for gas")
	failed, err := a.server.Settle(ctx, payload, &matched)
	require.NoError(t, err)
	require.False(t, failed.OK)

	retried, err := b.server.Settle(ctx, payload, &matched)
	require.NoError(t, err)
	assert.True(t, retried.OK)
	assert.Equal(t, 1, b.wallets[baseSepolia].SendCount())
}

func TestSettle_BroadcastFailureKeepsNonce(t *testing.T) {
	ctx := context.Background()
	f := newServerFixture(t)
	payload := signedPayload(t, f, baseSepolia)
	matched := requirementFor(t, f.required, baseSepolia)
	key := nonce.Key(payload.Payload.Authorization.From, payload.Payload.Authorization.Nonce)

	f.wallets[baseSepolia].SendErr = errors.New("insufficient funds for gas")
	failed, err := f.server.Settle(ctx, payload, &matched)
	require.NoError(t, err)
	assert.False(t, failed.OK)
	assert.Equal(t, types.ErrCodeSettlementFailed, failed.ErrorCode)
	assert.False(t, failed.Response.Success)
	assert.Contains(t, failed.Response.ErrorReason, "insufficient funds")

	used, err := f.server.Guard().IsUsed(ctx, key)
	require.NoError(t, err)
	assert.False(t, used)

	f.wallets[baseSepolia].SendErr = nil
	retried, err := f.server.Settle(ctx, payload, &matched)
	require.NoError(t, err)
	assert.True(t, retried.OK)
}

// latencyRecorder keeps the last observed duration per operation.
type latencyRecorder struct {
	mu        sync.Mutex
	latencies map[string]time.Duration
}

func (r *latencyRecorder) IncCounter(string, map[string]string) {}

func (r *latencyRecorder) ObserveLatency(name string, duration time.Duration, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latencies[name] = duration
}

func TestExactServer_LatencyIgnoresInjectedClock(t *testing.T) {
	ctx := context.Background()
	recorder := &latencyRecorder{latencies: map[string]time.Duration{}}
	f := newServerFixture(t, WithMetrics(recorder))
	payload := signedPayload(t, f, baseSepolia)

	validated := f.server.ValidateSignaturePayload(ctx, payload, f.required)
	require.True(t, validated.OK, validated.Summary())
	simulated, err := f.server.Simulate(ctx, payload, validated.Matched)
	require.NoError(t, err)
	require.True(t, simulated.OK)
	settled, err := f.server.Settle(ctx, payload, validated.Matched)
	require.NoError(t, err)
	require.True(t, settled.OK)

	for _, op := range []string{metrics.OperationValidate, metrics.OperationSimulate, metrics.OperationSettle} {
		latency, ok := recorder.latencies[op]
		require.True(t, ok, op)
		assert.GreaterOrEqual(t, latency, time.Duration(0), op)
		assert.Less(t, latency, time.Minute, op)
	}
}

func TestSettle_ConcurrentDuplicates(t *testing.T) {
	f := newServerFixture(t)
	payload := signedPayload(t, f, baseSepolia)
	matched := requirementFor(t, f.required, baseSepolia)

	var succeeded int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.server.Settle(context.Background(), payload, &matched)
			if err == nil && result.OK {
				atomic.AddInt32(&succeeded, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded)
	assert.Equal(t, 1, f.wallets[baseSepolia].SendCount())
}

func TestSettle_WalletNotSet(t *testing.T) {
	f := newServerFixture(t)
	payload := signedPayload(t, f, baseSepolia)
	matched := requirementFor(t, f.required, baseSepolia)

	server := NewExactServer(WithProvider(string(baseSepolia), &chain.Provider{}))
	_, err := server.Settle(context.Background(), payload, &matched)
	assert.ErrorIs(t, err, ErrWalletNotSet)
}

func TestSettle_Hooks(t *testing.T) {
	t.Run("before hook aborts", func(t *testing.T) {
		var failures []SettleFailureContext
		f := newServerFixture(t,
			WithBeforeSettleHook(func(SettleContext) (*BeforeHookResult, error) {
				return &BeforeHookResult{Abort: true, Reason: "payer blocked"}, nil
			}),
			WithOnSettleFailureHook(func(ctx SettleFailureContext) {
				failures = append(failures, ctx)
			}),
		)
		payload := signedPayload(t, f, baseSepolia)
		matched := requirementFor(t, f.required, baseSepolia)

		result, err := f.server.Settle(context.Background(), payload, &matched)
		require.NoError(t, err)
		assert.False(t, result.OK)
		assert.Equal(t, "payer blocked", result.Error)
		assert.Equal(t, 0, f.wallets[baseSepolia].SendCount())
		require.Len(t, failures, 1)
		assert.Equal(t, types.ErrCodeSettlementFailed, failures[0].Code)
	})

	t.Run("after hook sees result", func(t *testing.T) {
		var seen []types.SettlementResponse
		f := newServerFixture(t,
			WithAfterSettleHook(func(ctx SettleResultContext) error {
				seen = append(seen, ctx.Result)
				return errors.New("ignored")
			}),
		)
		payload := signedPayload(t, f, baseSepolia)
		matched := requirementFor(t, f.required, baseSepolia)

		result, err := f.server.Settle(context.Background(), payload, &matched)
		require.NoError(t, err)
		assert.True(t, result.OK)
		require.Len(t, seen, 1)
		assert.Equal(t, result.Response, seen[0])
	})
}

func TestSimulate(t *testing.T) {
	t.Run("revert is reported", func(t *testing.T) {
		f := newServerFixture(t)
		f.providers[baseSepolia].CallErr = errors.New("execution reverted: FiatTokenV2: invalid signature")
		payload := signedPayload(t, f, baseSepolia)
		matched := requirementFor(t, f.required, baseSepolia)

		result, err := f.server.Simulate(context.Background(), payload, &matched)
		require.NoError(t, err)
		assert.False(t, result.OK)
		assert.Equal(t, types.ErrCodeSimulationFailed, result.ErrorCode)
		assert.Contains(t, result.Error, "invalid signature")
	})

	t.Run("no provider", func(t *testing.T) {
		f := newServerFixture(t)
		payload := signedPayload(t, f, baseSepolia)
		matched := requirementFor(t, f.required, baseSepolia)

		_, err := NewExactServer().Simulate(context.Background(), payload, &matched)
		assert.ErrorIs(t, err, ErrNoProviderForNetwork)
	})
}

func TestExactServer_Init(t *testing.T) {
	t.Run("requires a url", func(t *testing.T) {
		err := NewExactServer().Init(context.Background(), ProviderConfig{})
		require.Error(t, err)
		assert.Equal(t, types.ErrCodeInvalidConfiguration, ErrorCode(err))
	})

	t.Run("rejects unknown network keys", func(t *testing.T) {
		server := NewExactServer(WithServerDialer(func(context.Context, string) (evm.Provider, error) {
			return &chain.Provider{}, nil
		}))
		err := server.Init(context.Background(), ProviderConfig{ProviderURLMap: map[string]string{"base": "https://base"}})
		assert.Error(t, err)
		assert.Equal(t, ServerIdle, server.State())
	})

	t.Run("dials in key order", func(t *testing.T) {
		var dialed []string
		server := NewExactServer(WithServerDialer(func(_ context.Context, url string) (evm.Provider, error) {
			dialed = append(dialed, url)
			return &chain.Provider{}, nil
		}))
		err := server.Init(context.Background(), ProviderConfig{
			ProviderURL: "https://fallback",
			ProviderURLMap: map[string]string{
				string(baseSepolia):   "https://base",
				string(avalancheFuji): "https://fuji",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"https://fallback", "https://fuji", "https://base"}, dialed)
		assert.Equal(t, ServerInitialized, server.State())

		_, ok := server.providerFor("eip155:1")
		assert.True(t, ok)
	})

	t.Run("dial failure", func(t *testing.T) {
		server := NewExactServer(WithServerDialer(func(context.Context, string) (evm.Provider, error) {
			return nil, errors.New("connection refused")
		}))
		err := server.Init(context.Background(), ProviderConfig{ProviderURL: "https://down"})
		assert.ErrorContains(t, err, "connection refused")
	})
}

func TestExactServer_SetWallet(t *testing.T) {
	factory := func(_ string, _ evm.Provider) (evm.Wallet, error) {
		return &chain.Wallet{}, nil
	}

	t.Run("not initialized", func(t *testing.T) {
		err := NewExactServer().SetWallet(context.Background(), WalletConfig{PrivateKey: payerKey})
		assert.ErrorIs(t, err, ErrNotInitialized)
	})

	t.Run("requires a key", func(t *testing.T) {
		server := NewExactServer(WithProvider(string(baseSepolia), &chain.Provider{}))
		err := server.SetWallet(context.Background(), WalletConfig{})
		assert.Equal(t, types.ErrCodeInvalidConfiguration, ErrorCode(err))
	})

	t.Run("key for network without provider", func(t *testing.T) {
		server := NewExactServer(WithProvider(string(baseSepolia), &chain.Provider{}), WithWalletFactory(factory))
		err := server.SetWallet(context.Background(), WalletConfig{
			PrivateKeyMap: map[string]string{string(avalancheFuji): payerKey},
		})
		assert.ErrorContains(t, err, "no provider configured for network eip155:43113")
	})

	t.Run("single key covers every provider", func(t *testing.T) {
		server := NewExactServer(
			WithProvider(string(baseSepolia), &chain.Provider{}),
			WithProvider(string(avalancheFuji), &chain.Provider{}),
			WithWalletFactory(factory),
		)
		require.NoError(t, server.SetWallet(context.Background(), WalletConfig{PrivateKey: payerKey}))

		_, ok := server.walletFor(baseSepolia)
		assert.True(t, ok)
		_, ok = server.walletFor(avalancheFuji)
		assert.True(t, ok)
	})

	t.Run("warns on low balance", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		server := NewExactServer(
			WithProvider(string(baseSepolia), &chain.Provider{Balance: big.NewInt(1e15)}),
			WithWalletFactory(factory),
			WithServerLogger(logger.FromZap(zap.New(core))),
		)
		require.NoError(t, server.SetWallet(context.Background(), WalletConfig{PrivateKey: payerKey}))
		assert.Equal(t, 1, logs.FilterMessage("wallet native balance below minimum").Len())
	})

	t.Run("custom minimum", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		server := NewExactServer(
			WithProvider(string(baseSepolia), &chain.Provider{Balance: big.NewInt(1e15)}),
			WithWalletFactory(factory),
			WithServerLogger(logger.FromZap(zap.New(core))),
		)
		require.NoError(t, server.SetWallet(context.Background(), WalletConfig{PrivateKey: payerKey, MinNativeBalance: "0.0001"}))
		assert.Equal(t, 0, logs.FilterMessage("wallet native balance below minimum").Len())
		assert.Equal(t, 1, logs.FilterMessage("wallet set").Len())
	})

	t.Run("balance error", func(t *testing.T) {
		server := NewExactServer(
			WithProvider(string(baseSepolia), &chain.Provider{BalanceErr: errors.New("rpc down")}),
			WithWalletFactory(factory),
		)
		err := server.SetWallet(context.Background(), WalletConfig{PrivateKey: payerKey})
		assert.ErrorContains(t, err, "rpc down")
	})
}

func TestExactServer_StateProgression(t *testing.T) {
	f := newServerFixture(t)
	assert.Equal(t, ServerRequiredPayloadBuilt, f.server.State())

	payload := signedPayload(t, f, baseSepolia)
	header, err := newTestClient(t, payerKey).EmitSignatureHeader(*payload)
	require.NoError(t, err)

	_, err = f.server.DecodeSignatureHeader(header)
	require.NoError(t, err)
	assert.Equal(t, ServerSignatureDecoded, f.server.State())

	result := f.server.ValidateSignaturePayload(context.Background(), payload, f.required)
	require.True(t, result.OK)
	assert.Equal(t, ServerValidated, f.server.State())
}
