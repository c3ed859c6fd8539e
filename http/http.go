// Package http adapts the x402 paywall and exact client to net/http.
//
// Middleware guards handlers with a Paywall; the PaymentRoundTripper pays
// 402 responses automatically with an ExactClient.
package http

import (
	"encoding/json"
	"net/http"

	x402 "github.com/x402-foundation/x402exact"
	"github.com/x402-foundation/x402exact/logger"
	"github.com/x402-foundation/x402exact/wire"
)

// ============================================================================
// Middleware
// ============================================================================

// MiddlewareOption configures Middleware
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	resourceRootURL string
	logger          logger.Logger
}

// WithResourceRootURL prefixes the request path to form the resource URL
// echoed in PaymentRequired, e.g. "https://api.example.com".
func WithResourceRootURL(root string) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.resourceRootURL = root
	}
}

// WithLogger sets the middleware logger
func WithLogger(log logger.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.logger = log
	}
}

func newMiddlewareConfig(opts []MiddlewareOption) *middlewareConfig {
	cfg := &middlewareConfig{logger: logger.NoopLogger{}}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// NewRequest maps an HTTP request onto a paywall request. The restricted
// call is matched on method and URL path.
func NewRequest(r *http.Request, resourceRootURL string) x402.Request {
	return x402.Request{
		Method:          r.Method,
		Name:            r.URL.Path,
		Resource:        resourceRootURL + r.URL.Path,
		SignatureHeader: r.Header.Get(wire.PaymentSignatureHeader),
	}
}

// SetHeaders copies the PAYMENT-REQUIRED and PAYMENT-RESPONSE values of result onto h.
func SetHeaders(h http.Header, result x402.PaywallResult) {
	if result.RequiredHeader != "" {
		h.Set(wire.PaymentRequiredHeader, result.RequiredHeader)
	}
	if result.ResponseHeader != "" {
		h.Set(wire.PaymentResponseHeader, result.ResponseHeader)
	}
}

// Middleware returns net/http middleware that settles a payment before
// calling next for restricted routes. The settled payment is available to
// next through x402.PaymentInfoFromContext.
func Middleware(paywall *x402.Paywall, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := newMiddlewareConfig(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := paywall.Process(r.Context(), NewRequest(r, cfg.resourceRootURL))
			if err != nil {
				cfg.logger.Error("paywall failed", map[string]any{"path": r.URL.Path, "error": err.Error()})
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}

			SetHeaders(w.Header(), result)
			switch result.Outcome {
			case x402.PaywallPaymentRequired:
				writeJSON(w, http.StatusPaymentRequired, result.Required)
			case x402.PaywallSettled:
				next.ServeHTTP(w, r.WithContext(x402.WithPaymentInfo(r.Context(), result.Payment)))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
