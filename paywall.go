package x402

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/x402-foundation/x402exact/config"
	"github.com/x402-foundation/x402exact/logger"
	"github.com/x402-foundation/x402exact/metrics"
	"github.com/x402-foundation/x402exact/types"
)

// PaywallOutcome is the verdict of Paywall.Process.
type PaywallOutcome int

const (
	// PaywallFree means the call is not restricted.
	PaywallFree PaywallOutcome = iota
	// PaywallPaymentRequired means the caller must (re)submit a payment.
	PaywallPaymentRequired
	// PaywallSettled means the payment was settled and the call may proceed.
	PaywallSettled
)

func (o PaywallOutcome) String() string {
	switch o {
	case PaywallFree:
		return "free"
	case PaywallPaymentRequired:
		return "payment_required"
	case PaywallSettled:
		return "settled"
	}
	return "unknown"
}

// Request describes one call to a possibly restricted surface. Method and
// Name select the restricted call; Resource is echoed in PaymentRequired and
// defaults to Name.
type Request struct {
	Method          string
	Name            string
	Resource        string
	SignatureHeader string
}

// PaymentInfo describes a settled payment. Adapters attach it to the request
// context of the protected handler.
type PaymentInfo struct {
	AttemptID   string        `json:"attemptId"`
	Payer       string        `json:"payer"`
	Network     types.Network `json:"network"`
	Asset       string        `json:"asset"`
	Amount      string        `json:"amount"`
	Transaction string        `json:"transaction"`
}

type paymentInfoKey struct{}

// WithPaymentInfo returns a copy of ctx carrying info.
func WithPaymentInfo(ctx context.Context, info *PaymentInfo) context.Context {
	return context.WithValue(ctx, paymentInfoKey{}, info)
}

// PaymentInfoFromContext returns the settled payment attached by a paywall adapter.
func PaymentInfoFromContext(ctx context.Context) (*PaymentInfo, bool) {
	info, ok := ctx.Value(paymentInfoKey{}).(*PaymentInfo)
	return info, ok && info != nil
}

// PaywallResult is what an adapter needs to answer the caller.
type PaywallResult struct {
	Outcome   PaywallOutcome
	AttemptID string

	// Required and RequiredHeader are set for PaywallPaymentRequired.
	Required       *types.PaymentRequired
	RequiredHeader string

	// Settlement and ResponseHeader are set once a settlement was attempted,
	// including a failed one.
	Settlement     *types.SettlementResponse
	ResponseHeader string

	// Payment is set for PaywallSettled.
	Payment *PaymentInfo
}

// StatusCode maps the outcome to an HTTP status.
func (r PaywallResult) StatusCode() int {
	if r.Outcome == PaywallPaymentRequired {
		return http.StatusPaymentRequired
	}
	return http.StatusOK
}

// Paywall runs the server side of the handshake for restricted calls.
type Paywall struct {
	server   *ExactServer
	config   config.Configuration
	prepared config.PreparedCatalog

	simulate  bool
	attemptID func() string
	logger    logger.Logger
	recorder  metrics.Recorder
}

// PaywallOption configures the paywall
type PaywallOption func(*Paywall)

// WithSimulation toggles the dry-run before settlement. It is on by default.
func WithSimulation(enabled bool) PaywallOption {
	return func(p *Paywall) {
		p.simulate = enabled
	}
}

// WithAttemptIDs replaces the settlement attempt id generator
func WithAttemptIDs(next func() string) PaywallOption {
	return func(p *Paywall) {
		p.attemptID = next
	}
}

// WithPaywallLogger sets the paywall logger
func WithPaywallLogger(log logger.Logger) PaywallOption {
	return func(p *Paywall) {
		p.logger = log
	}
}

// WithPaywallMetrics sets the paywall metrics recorder
func WithPaywallMetrics(recorder metrics.Recorder) PaywallOption {
	return func(p *Paywall) {
		p.recorder = recorder
	}
}

// NewPaywall validates cfg and prepares its catalog on server.
func NewPaywall(server *ExactServer, cfg config.Configuration, opts ...PaywallOption) (*Paywall, error) {
	if server == nil {
		return nil, fmt.Errorf("paywall requires a server")
	}
	if outcome := config.Validate(cfg); !outcome.OK {
		return nil, outcome.AsError()
	}
	prepared, err := server.PrepareCatalog(cfg)
	if err != nil {
		return nil, types.WrapPaymentError(types.ErrCodeInvalidConfiguration, "failed to prepare payment options", err)
	}

	p := &Paywall{
		server:    server,
		config:    cfg,
		prepared:  prepared,
		simulate:  true,
		attemptID: uuid.NewString,
		logger:    logger.NoopLogger{},
		recorder:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Server returns the underlying server.
func (p *Paywall) Server() *ExactServer {
	return p.server
}

// Restricted reports whether method and name name a restricted call.
func (p *Paywall) Restricted(method, name string) bool {
	_, ok := p.config.FindRestrictedCall(method, name)
	return ok
}

// Process decides whether req may proceed. Payment problems are reported
// through the result; the error is reserved for configuration and server
// misuse.
func (p *Paywall) Process(ctx context.Context, req Request) (PaywallResult, error) {
	call, ok := p.config.FindRestrictedCall(req.Method, req.Name)
	if !ok {
		return PaywallResult{Outcome: PaywallFree}, nil
	}

	resource := req.Resource
	if resource == "" {
		resource = req.Name
	}
	required, err := p.server.BuildRequiredPayload(resource, call.AcceptedPaymentOptionIDList, p.prepared, p.config.ContractCatalog)
	if err != nil {
		return PaywallResult{}, err
	}

	if req.SignatureHeader == "" {
		return p.requirePayment(required, "", nil)
	}

	attemptID := p.attemptID()
	fields := map[string]any{"attempt": attemptID, "method": req.Method, "name": req.Name}

	payload, err := p.server.DecodeSignatureHeader(req.SignatureHeader)
	if err != nil {
		fields["error"] = err.Error()
		p.logger.Warn("undecodable payment signature", fields)
		return p.requirePayment(required, err.Error(), nil)
	}

	validation := p.server.ValidateSignaturePayload(ctx, payload, required)
	if !validation.OK {
		return p.requirePayment(required, validation.Summary(), nil)
	}
	fields["network"] = string(validation.Matched.Network)
	fields["payer"] = payload.Payload.Authorization.From

	if p.simulate {
		simulation, err := p.server.Simulate(ctx, payload, validation.Matched)
		if err != nil {
			return PaywallResult{}, err
		}
		if !simulation.OK {
			return p.requirePayment(required, simulation.Error, nil)
		}
	}

	settlement, err := p.server.Settle(ctx, payload, validation.Matched)
	if err != nil {
		return PaywallResult{}, err
	}
	responseHeader, err := p.server.EmitResponseHeader(settlement.Response)
	if err != nil {
		return PaywallResult{}, err
	}

	if !settlement.OK {
		fields["error"] = settlement.Error
		p.logger.Warn("payment settlement failed", fields)
		result, err := p.requirePayment(required, settlement.Error, &settlement.Response)
		result.AttemptID = attemptID
		result.ResponseHeader = responseHeader
		return result, err
	}

	p.logger.Info("payment settled", fields)
	return PaywallResult{
		Outcome:        PaywallSettled,
		AttemptID:      attemptID,
		Settlement:     &settlement.Response,
		ResponseHeader: responseHeader,
		Payment: &PaymentInfo{
			AttemptID:   attemptID,
			Payer:       settlement.Response.Payer,
			Network:     validation.Matched.Network,
			Asset:       validation.Matched.Asset,
			Amount:      payload.Payload.Authorization.Value,
			Transaction: settlement.Response.Transaction,
		},
	}, nil
}

func (p *Paywall) requirePayment(required types.PaymentRequired, reason string, settlement *types.SettlementResponse) (PaywallResult, error) {
	if reason == "" {
		reason = "payment required"
	}
	required.Error = reason

	header, err := p.server.EmitRequiredHeader(required)
	if err != nil {
		return PaywallResult{}, err
	}
	p.recorder.IncCounter(metrics.EventPaymentRequired, map[string]string{})

	return PaywallResult{
		Outcome:        PaywallPaymentRequired,
		Required:       &required,
		RequiredHeader: header,
		Settlement:     settlement,
	}, nil
}
