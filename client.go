package x402

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/x402-foundation/x402exact/logger"
	"github.com/x402-foundation/x402exact/mechanisms/evm"
	"github.com/x402-foundation/x402exact/selection"
	"github.com/x402-foundation/x402exact/types"
	"github.com/x402-foundation/x402exact/validation"
	"github.com/x402-foundation/x402exact/wire"
)

const (
	// DefaultValidAfterOffsetSeconds backdates validAfter to tolerate clock skew.
	DefaultValidAfterOffsetSeconds int64 = -30

	// DefaultTimeoutSeconds applies when a requirement carries no maxTimeoutSeconds.
	DefaultTimeoutSeconds int64 = 300
)

// Window overrides the authorization validity window. Nil fields use the defaults.
type Window struct {
	ValidAfterOffsetSeconds  *int64
	ValidBeforeOffsetSeconds *int64
}

// ExactClient pays for resources protected by the exact scheme
// This is used by applications that need to make payments (have wallets/signers)
type ExactClient struct {
	mu    sync.RWMutex
	state ClientState

	provider      evm.Provider
	signer        evm.Signer
	dialer        ProviderDialer
	signerFactory SignerFactory

	logger logger.Logger
	now    func() time.Time
	nonce  func() (string, error)
}

// ClientOption configures the client
type ClientOption func(*ExactClient)

// WithSigner sets the signer used for authorizations
func WithSigner(signer evm.Signer) ClientOption {
	return func(c *ExactClient) {
		c.signer = signer
	}
}

// WithClientProvider sets the provider used for balance checks
func WithClientProvider(provider evm.Provider) ClientOption {
	return func(c *ExactClient) {
		c.provider = provider
	}
}

// WithClientDialer replaces the dialer used by Init
func WithClientDialer(dialer ProviderDialer) ClientOption {
	return func(c *ExactClient) {
		c.dialer = dialer
	}
}

// WithSignerFactory replaces how SetWallet turns a private key into a signer
func WithSignerFactory(factory SignerFactory) ClientOption {
	return func(c *ExactClient) {
		c.signerFactory = factory
	}
}

// WithClientLogger sets the client logger
func WithClientLogger(log logger.Logger) ClientOption {
	return func(c *ExactClient) {
		c.logger = log
	}
}

// WithClientClock sets the clock used for validity windows
func WithClientClock(now func() time.Time) ClientOption {
	return func(c *ExactClient) {
		c.now = now
	}
}

// NewExactClient creates a new exact scheme client
func NewExactClient(opts ...ClientOption) *ExactClient {
	c := &ExactClient{
		dialer:        defaultDialer,
		signerFactory: defaultSignerFactory,
		logger:        logger.NoopLogger{},
		now:           time.Now,
		nonce:         evm.CreateNonce,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.provider != nil && c.signer != nil {
		c.state = ClientInitialized
	}

	return c
}

// State returns the last completed step.
func (c *ExactClient) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *ExactClient) advance(state ClientState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// Init dials the provider at providerURL.
func (c *ExactClient) Init(ctx context.Context, providerURL string) error {
	if providerURL == "" {
		return types.NewPaymentError(types.ErrCodeInvalidConfiguration, "providerUrl is required", nil)
	}
	provider, err := c.dialer(ctx, providerURL)
	if err != nil {
		return fmt.Errorf("failed to dial provider: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.provider = provider
	c.state = ClientInitialized
	c.logger.Info("client initialized", nil)
	return nil
}

// SetWallet sets the signer from a hex private key.
func (c *ExactClient) SetWallet(privateKey string) error {
	signer, err := c.signerFactory(privateKey)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.signer = signer
	c.logger.Info("client wallet set", map[string]any{"address": signer.Address()})
	return nil
}

// Address returns the payer address, or "" when no wallet is set.
func (c *ExactClient) Address() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.signer == nil {
		return ""
	}
	return c.signer.Address()
}

// DecodeRequiredHeader decodes a PAYMENT-REQUIRED header value.
func (c *ExactClient) DecodeRequiredHeader(header string) (*types.PaymentRequired, error) {
	required, err := wire.DecodePaymentRequiredHeader(header)
	if err != nil {
		return nil, err
	}
	c.advance(ClientRequirementsDecoded)
	return required, nil
}

// ValidateRequiredShape checks a decoded PaymentRequired.
func (c *ExactClient) ValidateRequiredShape(v interface{}) types.Outcome {
	return validation.ValidatePaymentRequired(v)
}

// SelectOption picks one requirement from required.Accepts.
func (c *ExactClient) SelectOption(required *types.PaymentRequired, constraints selection.Constraints, policy *selection.Policy) (*types.PaymentRequirements, selection.Diagnostics) {
	var accepts []types.PaymentRequirements
	if required != nil {
		accepts = required.Accepts
	}
	chosen, diagnostics := selection.Select(accepts, constraints, policy)
	if chosen != nil {
		c.advance(ClientOptionSelected)
	} else {
		c.logger.Warn("no matching payment option", map[string]any{
			"totalServerOptions": diagnostics.TotalServerOptions,
			"filteredByScheme":   diagnostics.FilteredByScheme,
			"filteredByNetwork":  diagnostics.FilteredByNetwork,
			"filteredByAsset":    diagnostics.FilteredByAsset,
		})
	}
	return chosen, diagnostics
}

// CreateAuthorization builds and signs an EIP-3009 authorization paying
// requirement. It returns the authorization and its 0x-prefixed signature.
func (c *ExactClient) CreateAuthorization(ctx context.Context, requirement types.PaymentRequirements, window Window) (types.Authorization, string, error) {
	c.mu.RLock()
	signer := c.signer
	c.mu.RUnlock()
	if signer == nil {
		return types.Authorization{}, "", ErrWalletNotSet
	}

	domain, err := domainFor(requirement)
	if err != nil {
		return types.Authorization{}, "", err
	}
	if !evm.IsValidAddress(requirement.PayTo) {
		return types.Authorization{}, "", types.NewPaymentError(types.ErrCodeInvalidPaymentRequirements, fmt.Sprintf("invalid payTo address: %s", requirement.PayTo), nil)
	}
	amount, err := types.ParseAmount(requirement.Amount)
	if err != nil {
		return types.Authorization{}, "", err
	}

	afterOffset := DefaultValidAfterOffsetSeconds
	if window.ValidAfterOffsetSeconds != nil {
		afterOffset = *window.ValidAfterOffsetSeconds
	}
	timeout := DefaultTimeoutSeconds
	if requirement.MaxTimeoutSeconds > 0 {
		timeout = int64(requirement.MaxTimeoutSeconds)
	}
	if window.ValidBeforeOffsetSeconds != nil {
		timeout = *window.ValidBeforeOffsetSeconds
	}

	validAfter := c.now().Unix() + afterOffset
	validBefore := validAfter + timeout - afterOffset
	if validAfter < 0 {
		validAfter = 0
	}
	if validBefore <= validAfter {
		return types.Authorization{}, "", types.NewPaymentError(types.ErrCodeInvalidPaymentRequirements, "authorization window is empty", map[string]interface{}{
			"validAfter":  validAfter,
			"validBefore": validBefore,
		})
	}

	nonce, err := c.nonce()
	if err != nil {
		return types.Authorization{}, "", err
	}

	auth := types.Authorization{
		From:        signer.Address(),
		To:          requirement.PayTo,
		Value:       amount.Dec(),
		ValidAfter:  big.NewInt(validAfter).String(),
		ValidBefore: big.NewInt(validBefore).String(),
		Nonce:       nonce,
	}

	message, err := evm.AuthorizationMessage(auth)
	if err != nil {
		return types.Authorization{}, "", err
	}
	signature, err := signer.SignTypedData(ctx, domain, evm.TransferWithAuthorizationTypes(), evm.PrimaryTypeTransferWithAuthorization, message)
	if err != nil {
		return types.Authorization{}, "", fmt.Errorf("failed to sign authorization: %w", err)
	}

	c.advance(ClientAuthorizationSigned)
	c.logger.Debug("authorization signed", map[string]any{
		"network": string(requirement.Network),
		"from":    auth.From,
		"value":   auth.Value,
	})
	return auth, evm.BytesToHex(signature), nil
}

// BuildPaymentPayload assembles the PAYMENT-SIGNATURE payload.
func (c *ExactClient) BuildPaymentPayload(resource string, requirement types.PaymentRequirements, auth types.Authorization, signature string) types.PaymentPayload {
	return types.PaymentPayload{
		X402Version: types.X402Version,
		Resource:    resource,
		Accepted:    requirement.Accepted(),
		Payload: types.ExactEvmPayload{
			Signature:     signature,
			Authorization: auth,
		},
	}
}

// EmitSignatureHeader encodes payload as a PAYMENT-SIGNATURE header value.
func (c *ExactClient) EmitSignatureHeader(payload types.PaymentPayload) (string, error) {
	header, err := wire.EncodePaymentSignatureHeader(payload)
	if err != nil {
		return "", err
	}
	c.advance(ClientSignatureEmitted)
	return header, nil
}

// DecodeResponseHeader decodes the server's PAYMENT-RESPONSE header value.
func (c *ExactClient) DecodeResponseHeader(header string) (*types.SettlementResponse, error) {
	return wire.DecodePaymentResponseHeader(header)
}

// Pay runs the whole client side for one PAYMENT-REQUIRED header and returns
// the PAYMENT-SIGNATURE header value together with the payload it encodes.
func (c *ExactClient) Pay(ctx context.Context, requiredHeader string, constraints selection.Constraints, policy *selection.Policy) (string, *types.PaymentPayload, error) {
	required, err := c.DecodeRequiredHeader(requiredHeader)
	if err != nil {
		return "", nil, err
	}
	if outcome := c.ValidateRequiredShape(required); !outcome.OK {
		return "", nil, outcome.AsError()
	}

	chosen, diagnostics := c.SelectOption(required, constraints, policy)
	if chosen == nil {
		return "", nil, types.NewPaymentError(diagnostics.ErrorCode, diagnostics.Error, map[string]interface{}{
			"diagnostics": diagnostics,
		})
	}

	auth, signature, err := c.CreateAuthorization(ctx, *chosen, Window{})
	if err != nil {
		return "", nil, err
	}

	payload := c.BuildPaymentPayload(required.Resource, *chosen, auth, signature)
	header, err := c.EmitSignatureHeader(payload)
	if err != nil {
		return "", nil, err
	}
	return header, &payload, nil
}

// CheckBalance returns the signer's balance of the ERC-20 token at asset.
func (c *ExactClient) CheckBalance(ctx context.Context, asset string) (*big.Int, error) {
	c.mu.RLock()
	provider, signer := c.provider, c.signer
	c.mu.RUnlock()
	if provider == nil {
		return nil, ErrNotInitialized
	}
	if signer == nil {
		return nil, ErrWalletNotSet
	}

	data, err := evm.PackBalanceOf(signer.Address())
	if err != nil {
		return nil, err
	}
	result, err := provider.Call(ctx, asset, data)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	return evm.UnpackBalanceOf(result)
}
