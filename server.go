package x402

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/x402-foundation/x402exact/config"
	"github.com/x402-foundation/x402exact/logger"
	"github.com/x402-foundation/x402exact/mechanisms/evm"
	"github.com/x402-foundation/x402exact/metrics"
	"github.com/x402-foundation/x402exact/nonce"
	"github.com/x402-foundation/x402exact/types"
	"github.com/x402-foundation/x402exact/validation"
	"github.com/x402-foundation/x402exact/wire"
)

// DefaultMinNativeBalance is the wallet balance, in ether, below which
// SetWallet logs a warning.
const DefaultMinNativeBalance = "0.01"

// ProviderConfig lists the RPC endpoints the server settles through.
// ProviderURL is stored under DefaultNetworkKey.
type ProviderConfig struct {
	ProviderURL    string            `json:"providerUrl,omitempty"`
	ProviderURLMap map[string]string `json:"providerUrlMap,omitempty"`
}

// WalletConfig holds the settlement keys. PrivateKey is used for every
// configured provider key without an entry in PrivateKeyMap.
type WalletConfig struct {
	PrivateKey       string            `json:"-"`
	PrivateKeyMap    map[string]string `json:"-"`
	MinNativeBalance string            `json:"minNativeBalance,omitempty"`
}

// SignatureValidation is the outcome of ValidateSignaturePayload. Matched is
// set whenever the accepted option matched a server requirement.
type SignatureValidation struct {
	types.Outcome
	Matched *types.PaymentRequirements `json:"matched,omitempty"`
}

// SimulationResult is the outcome of a dry-run of the transfer.
type SimulationResult struct {
	OK        bool   `json:"ok"`
	ErrorCode string `json:"errorCode,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SettlementResult is the outcome of a settlement broadcast. Response is
// always populated and is what the client receives.
type SettlementResult struct {
	OK        bool                     `json:"ok"`
	ErrorCode string                   `json:"errorCode,omitempty"`
	Error     string                   `json:"error,omitempty"`
	Response  types.SettlementResponse `json:"response"`
}

// ExactServer verifies and settles exact scheme payments.
// This is used by servers/APIs that want to charge for access
type ExactServer struct {
	mu        sync.RWMutex
	state     ServerState
	providers map[string]evm.Provider
	wallets   map[string]evm.Wallet

	guard          nonce.Guard
	cache          *SettlementCache
	dialer         ProviderDialer
	walletFactory  WalletFactory
	defaultTimeout int

	logger   logger.Logger
	recorder metrics.Recorder
	now      func() time.Time

	beforeSettleHooks    []BeforeSettleHook
	afterSettleHooks     []AfterSettleHook
	onSettleFailureHooks []OnSettleFailureHook
}

// ServerOption configures the server
type ServerOption func(*ExactServer)

// WithNonceGuard shares guard between servers. The default is a fresh MemoryGuard.
func WithNonceGuard(guard nonce.Guard) ServerOption {
	return func(s *ExactServer) {
		s.guard = guard
	}
}

// WithProvider registers provider for network without dialing.
func WithProvider(network string, provider evm.Provider) ServerOption {
	return func(s *ExactServer) {
		s.providers[network] = provider
	}
}

// WithWallet registers wallet for network without a private key.
func WithWallet(network string, wallet evm.Wallet) ServerOption {
	return func(s *ExactServer) {
		s.wallets[network] = wallet
	}
}

// WithServerDialer replaces the dialer used by Init
func WithServerDialer(dialer ProviderDialer) ServerOption {
	return func(s *ExactServer) {
		s.dialer = dialer
	}
}

// WithWalletFactory replaces how SetWallet turns a private key into a wallet
func WithWalletFactory(factory WalletFactory) ServerOption {
	return func(s *ExactServer) {
		s.walletFactory = factory
	}
}

// WithDefaultTimeout sets the maxTimeoutSeconds applied to options without one
func WithDefaultTimeout(seconds int) ServerOption {
	return func(s *ExactServer) {
		s.defaultTimeout = seconds
	}
}

// WithServerLogger sets the server logger
func WithServerLogger(log logger.Logger) ServerOption {
	return func(s *ExactServer) {
		s.logger = log
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(recorder metrics.Recorder) ServerOption {
	return func(s *ExactServer) {
		s.recorder = recorder
	}
}

// WithServerClock sets the clock used for validity window checks
func WithServerClock(now func() time.Time) ServerOption {
	return func(s *ExactServer) {
		s.now = now
	}
}

// WithSettlementCacheTTL sets how long successful settlements are remembered in-process
func WithSettlementCacheTTL(ttl time.Duration) ServerOption {
	return func(s *ExactServer) {
		s.cache = NewSettlementCache(ttl)
	}
}

// NewExactServer creates a new exact scheme server
func NewExactServer(opts ...ServerOption) *ExactServer {
	s := &ExactServer{
		providers:      make(map[string]evm.Provider),
		wallets:        make(map[string]evm.Wallet),
		guard:          nonce.NewMemoryGuard(),
		cache:          NewSettlementCache(10 * time.Minute),
		dialer:         defaultDialer,
		walletFactory:  defaultWalletFactory,
		defaultTimeout: config.DefaultMaxTimeoutSeconds,
		logger:         logger.NoopLogger{},
		recorder:       metrics.NoopRecorder{},
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if len(s.providers) > 0 {
		s.state = ServerInitialized
	}

	return s
}

// State returns the last completed step.
func (s *ExactServer) State() ServerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Guard returns the replay guard.
func (s *ExactServer) Guard() nonce.Guard {
	return s.guard
}

func (s *ExactServer) advance(state ServerState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Init dials every configured provider. Keys of ProviderURLMap are network ids.
func (s *ExactServer) Init(ctx context.Context, cfg ProviderConfig) error {
	if cfg.ProviderURL == "" && len(cfg.ProviderURLMap) == 0 {
		return types.NewPaymentError(types.ErrCodeInvalidConfiguration, "either providerUrl or providerUrlMap is required", nil)
	}

	urls := make(map[string]string, len(cfg.ProviderURLMap)+1)
	for network, url := range cfg.ProviderURLMap {
		if _, err := types.ParseNetwork(network); err != nil {
			return err
		}
		urls[network] = url
	}
	if cfg.ProviderURL != "" {
		urls[DefaultNetworkKey] = cfg.ProviderURL
	}

	providers := make(map[string]evm.Provider, len(urls))
	for _, key := range sortedKeys(urls) {
		provider, err := s.dialer(ctx, urls[key])
		if err != nil {
			return fmt.Errorf("failed to dial provider for %s: %w", key, err)
		}
		providers[key] = provider
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, provider := range providers {
		s.providers[key] = provider
	}
	s.state = ServerInitialized
	s.logger.Info("server initialized", map[string]any{"networks": sortedKeys(providers)})
	return nil
}

// SetWallet creates one settlement wallet per provider key and warns when a
// wallet's native balance is below the configured minimum.
func (s *ExactServer) SetWallet(ctx context.Context, cfg WalletConfig) error {
	s.mu.RLock()
	providers := make(map[string]evm.Provider, len(s.providers))
	for key, provider := range s.providers {
		providers[key] = provider
	}
	s.mu.RUnlock()

	if len(providers) == 0 {
		return ErrNotInitialized
	}
	if cfg.PrivateKey == "" && len(cfg.PrivateKeyMap) == 0 {
		return types.NewPaymentError(types.ErrCodeInvalidConfiguration, "either privateKey or privateKeyMap is required", nil)
	}

	keys := make(map[string]string, len(cfg.PrivateKeyMap)+len(providers))
	for network, key := range cfg.PrivateKeyMap {
		keys[network] = key
	}
	if cfg.PrivateKey != "" {
		for network := range providers {
			if _, exists := keys[network]; !exists {
				keys[network] = cfg.PrivateKey
			}
		}
	}

	minBalance := cfg.MinNativeBalance
	if minBalance == "" {
		minBalance = DefaultMinNativeBalance
	}

	wallets := make(map[string]evm.Wallet, len(keys))
	for _, network := range sortedKeys(keys) {
		provider, ok := lookupByNetwork(providers, types.Network(network))
		if !ok {
			return fmt.Errorf("no provider configured for network %s", network)
		}
		wallet, err := s.walletFactory(keys[network], provider)
		if err != nil {
			return fmt.Errorf("failed to create wallet for %s: %w", network, err)
		}

		balance, err := provider.GetBalance(ctx, wallet.Address())
		if err != nil {
			return fmt.Errorf("failed to read wallet balance on %s: %w", network, err)
		}
		fields := map[string]any{
			"network": network,
			"address": wallet.Address(),
			"balance": types.FormatWei(balance),
		}
		low, err := types.WeiBelow(balance, minBalance)
		if err != nil {
			return err
		}
		if low {
			fields["minimum"] = minBalance
			s.logger.Warn("wallet native balance below minimum", fields)
		} else {
			s.logger.Info("wallet set", fields)
		}
		wallets[network] = wallet
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for network, wallet := range wallets {
		s.wallets[network] = wallet
	}
	return nil
}

func (s *ExactServer) providerFor(network types.Network) (evm.Provider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookupByNetwork(s.providers, network)
}

func (s *ExactServer) walletFor(network types.Network) (evm.Wallet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookupByNetwork(s.wallets, network)
}

// PrepareCatalog resolves cfg's payment options. cfg should have passed config.Validate.
func (s *ExactServer) PrepareCatalog(cfg config.Configuration) (config.PreparedCatalog, error) {
	prepared, err := config.PrepareCatalog(cfg.PaymentOptionCatalog, cfg.ServerPayToAddressMap, s.defaultTimeout, cfg.ContractCatalog)
	if err != nil {
		return nil, err
	}
	s.advance(ServerCatalogPrepared)
	return prepared, nil
}

// BuildRequiredPayload renders the PaymentRequired payload for resource.
func (s *ExactServer) BuildRequiredPayload(resource string, optionIDs []string, prepared config.PreparedCatalog, contracts map[string]config.ContractDescriptor) (types.PaymentRequired, error) {
	required, err := config.BuildPaymentRequired(resource, optionIDs, prepared, contracts)
	if err != nil {
		return types.PaymentRequired{}, err
	}
	s.advance(ServerRequiredPayloadBuilt)
	return required, nil
}

// EmitRequiredHeader encodes required as a PAYMENT-REQUIRED header value.
func (s *ExactServer) EmitRequiredHeader(required types.PaymentRequired) (string, error) {
	return wire.EncodePaymentRequiredHeader(required)
}

// DecodeSignatureHeader decodes a PAYMENT-SIGNATURE header value.
func (s *ExactServer) DecodeSignatureHeader(header string) (*types.PaymentPayload, error) {
	payload, err := wire.DecodePaymentSignatureHeader(header)
	if err != nil {
		return nil, err
	}
	s.advance(ServerSignatureDecoded)
	return payload, nil
}

// ValidateSignaturePayload checks payload against the PaymentRequired it answers.
// A shape failure, an unmatched accepted option or a network without provider
// stop validation; every other check runs and reports its own issue.
func (s *ExactServer) ValidateSignaturePayload(ctx context.Context, payload *types.PaymentPayload, required types.PaymentRequired) SignatureValidation {
	start := time.Now()
	result := s.validateSignaturePayload(ctx, payload, required)

	labels := map[string]string{}
	if result.Matched != nil {
		labels["network"] = string(result.Matched.Network)
	}
	s.recorder.ObserveLatency(metrics.OperationValidate, time.Since(start), labels)
	if result.OK {
		s.advance(ServerValidated)
	} else {
		labels["code"] = result.Issues[0].Code
		s.recorder.IncCounter(metrics.EventValidationFailed, labels)
		s.logger.Warn("payment signature rejected", map[string]any{"issues": result.Summary()})
	}
	return result
}

func (s *ExactServer) validateSignaturePayload(ctx context.Context, payload *types.PaymentPayload, required types.PaymentRequired) SignatureValidation {
	if payload == nil {
		return SignatureValidation{Outcome: validation.ValidatePaymentPayload(nil)}
	}
	if shape := validation.ValidatePaymentPayload(payload); !shape.OK {
		return SignatureValidation{Outcome: shape}
	}

	var issues []types.Issue
	if payload.Resource != required.Resource {
		issues = append(issues, types.NewIssue("resource", types.ErrCodeInvalidPayload,
			fmt.Sprintf("resource mismatch: expected %q, got %q", required.Resource, payload.Resource)))
	}

	matched := matchAccepted(required.Accepts, payload.Accepted)
	if matched == nil {
		issues = append(issues, types.NewIssue("accepted", types.ErrCodeInvalidPaymentRequirements,
			"accepted payment option does not match any server requirement"))
		return SignatureValidation{Outcome: types.NewOutcome(issues)}
	}

	if _, ok := s.providerFor(matched.Network); !ok {
		issues = append(issues, types.NewIssue("accepted.network", types.ErrCodeInvalidNetwork,
			fmt.Sprintf("no provider configured for network %s", matched.Network)))
		return SignatureValidation{Outcome: types.NewOutcome(issues), Matched: matched}
	}

	auth := payload.Payload.Authorization
	issues = append(issues, checkValue(auth, *matched)...)
	issues = append(issues, checkWindow(auth, s.now())...)

	if !evm.IsCanonicalNonce(auth.Nonce) {
		issues = append(issues, types.NewIssue("payload.authorization.nonce", types.ErrCodeInvalidExactEvmPayloadNonce,
			"nonce must be 0x followed by 64 hex digits"))
	}

	key := nonce.Key(auth.From, auth.Nonce)
	if used, err := s.guard.IsUsed(ctx, key); err != nil {
		issues = append(issues, types.NewIssue("payload.authorization.nonce", types.ErrCodeInvalidExactEvmPayloadNonce,
			fmt.Sprintf("nonce lookup failed: %v", err)))
	} else if used {
		issues = append(issues, types.NewIssue("payload.authorization.nonce", types.ErrCodeInvalidExactEvmPayloadNonce,
			"nonce already used (replay detected)"))
	}

	if !strings.EqualFold(auth.To, matched.PayTo) {
		issues = append(issues, types.NewIssue("payload.authorization.to", types.ErrCodeInvalidPayload,
			`authorization "to" does not match accepted "payTo"`))
	}

	if issue, ok := checkSignature(auth, payload.Payload.Signature, *matched); !ok {
		issues = append(issues, issue)
	}

	return SignatureValidation{Outcome: types.NewOutcome(issues), Matched: matched}
}

// matchAccepted finds the requirement the client claims to have accepted.
func matchAccepted(accepts []types.PaymentRequirements, accepted types.AcceptedRequirement) *types.PaymentRequirements {
	for i := range accepts {
		r := accepts[i]
		if r.Scheme == accepted.Scheme &&
			r.Network == accepted.Network &&
			strings.EqualFold(r.Asset, accepted.Asset) &&
			strings.EqualFold(r.PayTo, accepted.PayTo) {
			return &r
		}
	}
	return nil
}

func checkValue(auth types.Authorization, matched types.PaymentRequirements) []types.Issue {
	const path = "payload.authorization.value"
	value, err := types.ParseAmount(auth.Value)
	if err != nil {
		return []types.Issue{types.NewIssue(path, types.ErrCodeInvalidExactEvmPayloadValue, "authorization value is not a base-10 integer")}
	}
	amount, err := types.ParseAmount(matched.Amount)
	if err != nil {
		return []types.Issue{types.NewIssue(path, types.ErrCodeInvalidExactEvmPayloadValue, "required amount is not a base-10 integer")}
	}
	if value.Lt(amount) {
		return []types.Issue{types.NewIssue(path, types.ErrCodeInvalidExactEvmPayloadValue,
			fmt.Sprintf("insufficient payment amount: required %s, got %s", amount.Dec(), value.Dec()))}
	}
	return nil
}

func checkWindow(auth types.Authorization, at time.Time) []types.Issue {
	const (
		afterPath  = "payload.authorization.validAfter"
		beforePath = "payload.authorization.validBefore"
	)
	now := uint256.NewInt(uint64(at.Unix()))

	var issues []types.Issue
	if validAfter, err := types.ParseAmount(auth.ValidAfter); err != nil {
		issues = append(issues, types.NewIssue(afterPath, types.ErrCodeInvalidExactEvmPayloadTimeout, "validAfter is not a base-10 integer"))
	} else if now.Lt(validAfter) {
		issues = append(issues, types.NewIssue(afterPath, types.ErrCodeInvalidExactEvmPayloadTimeout, "authorization is not yet valid"))
	}
	if validBefore, err := types.ParseAmount(auth.ValidBefore); err != nil {
		issues = append(issues, types.NewIssue(beforePath, types.ErrCodeInvalidExactEvmPayloadTimeout, "validBefore is not a base-10 integer"))
	} else if now.Gt(validBefore) {
		issues = append(issues, types.NewIssue(beforePath, types.ErrCodeInvalidExactEvmPayloadTimeout, "authorization has expired"))
	}
	return issues
}

func checkSignature(auth types.Authorization, signatureHex string, matched types.PaymentRequirements) (types.Issue, bool) {
	const path = "payload.signature"
	fail := func(format string, args ...interface{}) (types.Issue, bool) {
		return types.NewIssue(path, types.ErrCodeInvalidExactEvmPayloadSignature, fmt.Sprintf(format, args...)), false
	}

	domain, err := domainFor(matched)
	if err != nil {
		return fail("cannot build EIP-712 domain: %v", err)
	}
	signature, err := evm.HexToBytes(signatureHex)
	if err != nil {
		return fail("signature is not hex: %v", err)
	}
	recovered, err := evm.RecoverAuthorizationSigner(auth, domain, signature)
	if err != nil {
		return fail("signature recovery failed: %v", err)
	}
	if !strings.EqualFold(recovered, auth.From) {
		return fail("signature was produced by %s, not authorization.from", recovered)
	}
	return types.Issue{}, true
}

// Simulate dry-runs transferWithAuthorization against the network's provider.
// Reverts are reported in the result; the error is reserved for a missing provider.
func (s *ExactServer) Simulate(ctx context.Context, payload *types.PaymentPayload, matched *types.PaymentRequirements) (SimulationResult, error) {
	if payload == nil || matched == nil {
		return SimulationResult{}, fmt.Errorf("simulate requires a payload and a matched requirement")
	}
	provider, ok := s.providerFor(matched.Network)
	if !ok {
		return SimulationResult{}, fmt.Errorf("%w: %s", ErrNoProviderForNetwork, matched.Network)
	}

	labels := map[string]string{"network": string(matched.Network)}
	start := time.Now()
	defer func() {
		s.recorder.ObserveLatency(metrics.OperationSimulate, time.Since(start), labels)
	}()

	fail := func(reason string) (SimulationResult, error) {
		labels["code"] = types.ErrCodeSimulationFailed
		s.recorder.IncCounter(metrics.EventSimulationFailed, labels)
		s.logger.Warn("simulation failed", map[string]any{"network": string(matched.Network), "error": reason})
		return SimulationResult{OK: false, ErrorCode: types.ErrCodeSimulationFailed, Error: reason}, nil
	}

	data, err := evm.PackTransferWithAuthorization(payload.Payload.Authorization, payload.Payload.Signature)
	if err != nil {
		return fail(err.Error())
	}
	if _, err := provider.Call(ctx, matched.Asset, data); err != nil {
		return fail(err.Error())
	}

	s.advance(ServerSimulated)
	s.logger.Debug("simulation succeeded", map[string]any{"network": string(matched.Network)})
	return SimulationResult{OK: true}, nil
}

// Settle broadcasts the transfer through the network's wallet. The nonce is
// reserved in the guard before the broadcast and marked used only after it
// succeeded, so a failed attempt never burns it. The error is reserved for a
// missing wallet.
func (s *ExactServer) Settle(ctx context.Context, payload *types.PaymentPayload, matched *types.PaymentRequirements) (SettlementResult, error) {
	if payload == nil || matched == nil {
		return SettlementResult{}, fmt.Errorf("settle requires a payload and a matched requirement")
	}
	wallet, ok := s.walletFor(matched.Network)
	if !ok {
		return SettlementResult{}, fmt.Errorf("%w: %s", ErrWalletNotSet, matched.Network)
	}

	auth := payload.Payload.Authorization
	key := nonce.Key(auth.From, auth.Nonce)
	settleCtx := SettleContext{Ctx: ctx, Payload: *payload, Requirement: *matched, Timestamp: s.now()}
	start := time.Now()
	labels := map[string]string{"network": string(matched.Network)}
	defer func() {
		s.recorder.ObserveLatency(metrics.OperationSettle, time.Since(start), labels)
	}()

	fail := func(code, reason string) (SettlementResult, error) {
		labels["code"] = code
		s.recorder.IncCounter(metrics.EventSettlementFailed, labels)
		s.logger.Error("settlement failed", map[string]any{"network": string(matched.Network), "code": code, "error": reason})
		for _, hook := range s.onSettleFailureHooks {
			hook(SettleFailureContext{SettleContext: settleCtx, Code: code, Reason: reason, Duration: time.Since(start)})
		}
		return SettlementResult{
			OK:        false,
			ErrorCode: code,
			Error:     reason,
			Response:  types.NewFailureSettlementResponse(reason),
		}, nil
	}

	switch status, _ := s.cache.CheckAndMark(key); status {
	case StatusInFlight:
		return fail(types.ErrCodeInvalidExactEvmPayloadNonce, "settlement already in progress for this authorization")
	case StatusCached:
		return fail(types.ErrCodeInvalidExactEvmPayloadNonce, "nonce already used (replay detected)")
	}

	if used, err := s.guard.IsUsed(ctx, key); err != nil {
		s.cache.Fail(key)
		return fail(types.ErrCodeSettlementFailed, fmt.Sprintf("nonce lookup failed: %v", err))
	} else if used {
		s.cache.Fail(key)
		return fail(types.ErrCodeInvalidExactEvmPayloadNonce, "nonce already used (replay detected)")
	}

	for _, hook := range s.beforeSettleHooks {
		result, err := hook(settleCtx)
		if err != nil {
			s.cache.Fail(key)
			return fail(types.ErrCodeSettlementFailed, err.Error())
		}
		if result != nil && result.Abort {
			s.cache.Fail(key)
			return fail(types.ErrCodeSettlementFailed, result.Reason)
		}
	}

	data, err := evm.PackTransferWithAuthorization(auth, payload.Payload.Signature)
	if err != nil {
		s.cache.Fail(key)
		return fail(types.ErrCodeSettlementFailed, err.Error())
	}

	// The reservation spans every server sharing the guard; it is released
	// when the broadcast fails and becomes the used mark when it succeeds.
	if reserved, err := s.guard.Reserve(ctx, key); err != nil {
		s.cache.Fail(key)
		return fail(types.ErrCodeSettlementFailed, fmt.Sprintf("nonce reservation failed: %v", err))
	} else if !reserved {
		s.cache.Fail(key)
		return fail(types.ErrCodeInvalidExactEvmPayloadNonce, "nonce already claimed by a concurrent settlement")
	}

	txHash, err := wallet.SendTransaction(ctx, matched.Asset, data)
	if err != nil {
		if releaseErr := s.guard.Release(ctx, key); releaseErr != nil {
			s.logger.Warn("failed to release nonce reservation", map[string]any{"error": releaseErr.Error()})
		}
		s.cache.Fail(key)
		return fail(types.ErrCodeSettlementFailed, err.Error())
	}

	if err := s.guard.MarkUsed(ctx, key); err != nil {
		// The transfer is already on its way; the reservation and the
		// in-process cache still refuse a second broadcast of this key.
		s.logger.Error("failed to mark nonce after broadcast", map[string]any{"transaction": txHash, "error": err.Error()})
	}

	response := types.NewSuccessSettlementResponse(txHash, matched.Network, auth.From)
	s.cache.Complete(key, response)
	s.advance(ServerSettled)
	s.recorder.IncCounter(metrics.EventSettlementSuccess, labels)
	s.logger.Info("settlement broadcast", map[string]any{
		"network":     string(matched.Network),
		"transaction": txHash,
		"payer":       auth.From,
	})

	for _, hook := range s.afterSettleHooks {
		if err := hook(SettleResultContext{SettleContext: settleCtx, Result: response, Duration: time.Since(start)}); err != nil {
			s.logger.Warn("after settle hook failed", map[string]any{"error": err.Error()})
		}
	}

	return SettlementResult{OK: true, Response: response}, nil
}

// EmitResponseHeader encodes response as a PAYMENT-RESPONSE header value.
func (s *ExactServer) EmitResponseHeader(response types.SettlementResponse) (string, error) {
	header, err := wire.EncodePaymentResponseHeader(response)
	if err != nil {
		return "", err
	}
	s.advance(ServerResponseEmitted)
	return header, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
