package http

import (
	"context"
	"fmt"
	"io"
	"net/http"

	x402 "github.com/x402-foundation/x402exact"
	"github.com/x402-foundation/x402exact/selection"
	"github.com/x402-foundation/x402exact/types"
	"github.com/x402-foundation/x402exact/wire"
)

// ============================================================================
// Client - HTTP-aware payment client
// ============================================================================

// Client wraps an ExactClient with the selection constraints applied to
// every 402 response.
type Client struct {
	client      *x402.ExactClient
	constraints selection.Constraints
	policy      *selection.Policy
}

// ClientOption configures Client
type ClientOption func(*Client)

// WithConstraints restricts which networks and assets the client pays with
func WithConstraints(constraints selection.Constraints) ClientOption {
	return func(c *Client) {
		c.constraints = constraints
	}
}

// WithPolicy sets the ranking policy for competing options
func WithPolicy(policy *selection.Policy) ClientOption {
	return func(c *Client) {
		c.policy = policy
	}
}

// NewClient creates a new HTTP-aware payment client
func NewClient(client *x402.ExactClient, opts ...ClientOption) *Client {
	c := &Client{client: client}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ============================================================================
// HTTP Client Wrapper
// ============================================================================

// WrapHTTPClientWithPayment wraps a standard HTTP client with x402 payment handling
// This allows transparent payment handling for HTTP requests
func WrapHTTPClientWithPayment(client *http.Client, c *Client) *http.Client {
	if client == nil {
		client = &http.Client{}
	}

	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	wrapped := *client
	wrapped.Transport = &PaymentRoundTripper{
		Transport: transport,
		client:    c,
	}
	return &wrapped
}

// PaymentRoundTripper implements http.RoundTripper with x402 payment handling.
// A 402 response carrying PAYMENT-REQUIRED is paid and the request retried
// once; any other response is returned unchanged.
type PaymentRoundTripper struct {
	Transport http.RoundTripper
	client    *Client
}

// RoundTrip implements http.RoundTripper
func (t *PaymentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	requiredHeader := resp.Header.Get(wire.PaymentRequiredHeader)
	if requiredHeader == "" {
		return resp, nil
	}
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	ctx := req.Context()
	signatureHeader, _, err := t.client.client.Pay(ctx, requiredHeader, t.client.constraints, t.client.policy)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	paymentReq := req.Clone(ctx)
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, fmt.Errorf("cannot retry request with a non-replayable body")
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to replay request body: %w", err)
		}
		paymentReq.Body = body
	}
	paymentReq.Header.Set(wire.PaymentSignatureHeader, signatureHeader)

	return t.Transport.RoundTrip(paymentReq)
}

// ============================================================================
// Convenience Methods
// ============================================================================

// DoWithPayment performs an HTTP request with automatic payment handling
func (c *Client) DoWithPayment(ctx context.Context, req *http.Request) (*http.Response, error) {
	client := WrapHTTPClientWithPayment(nil, c)
	return client.Do(req.WithContext(ctx))
}

// GetWithPayment performs a GET request with automatic payment handling
func (c *Client) GetWithPayment(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.DoWithPayment(ctx, req)
}

// PostWithPayment performs a POST request with automatic payment handling
func (c *Client) PostWithPayment(ctx context.Context, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	return c.DoWithPayment(ctx, req)
}

// SettlementFromResponse decodes the PAYMENT-RESPONSE header of resp.
func SettlementFromResponse(resp *http.Response) (*types.SettlementResponse, error) {
	header := resp.Header.Get(wire.PaymentResponseHeader)
	if header == "" {
		return nil, fmt.Errorf("payment response header not found")
	}
	return wire.DecodePaymentResponseHeader(header)
}
