package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	x402 "github.com/x402-foundation/x402exact"
	"github.com/x402-foundation/x402exact/selection"
	"github.com/x402-foundation/x402exact/types"
	"github.com/x402-foundation/x402exact/wire"
)

// Client calls tools over an MCP session and pays for restricted ones.
type Client struct {
	session     *mcpsdk.ClientSession
	client      *x402.ExactClient
	constraints selection.Constraints
	policy      *selection.Policy

	autoPayment        bool
	onPaymentRequested func(PaymentRequiredContext) (bool, error)
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

// WithAutoPayment toggles paying automatically. It is on by default.
func WithAutoPayment(enabled bool) ClientOption {
	return func(c *Client) {
		c.autoPayment = enabled
	}
}

// WithPaymentApproval installs a callback that approves or denies each payment.
func WithPaymentApproval(approve func(PaymentRequiredContext) (bool, error)) ClientOption {
	return func(c *Client) {
		c.onPaymentRequested = approve
	}
}

// NewClient wraps a connected session.
func NewClient(session *mcpsdk.ClientSession, client *x402.ExactClient, opts ...ClientOption) *Client {
	c := &Client{session: session, client: client, autoPayment: true}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the underlying MCP session.
func (c *Client) Session() *mcpsdk.ClientSession {
	return c.session
}

// CallTool calls a tool, paying and retrying once when it requires payment.
// A PaymentRequired the client declines or cannot satisfy is returned as an
// error.
func (c *Client) CallTool(ctx context.Context, name string, args any) (*ToolCallResult, error) {
	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}

	required := PaymentRequiredFromResult(result)
	if required == nil {
		return toolCallResult(result, false)
	}
	if !c.autoPayment {
		return nil, &PaymentRequiredError{PaymentRequired: *required}
	}
	if c.onPaymentRequested != nil {
		approved, err := c.onPaymentRequested(PaymentRequiredContext{ToolName: name, Arguments: args, PaymentRequired: *required})
		if err != nil {
			return nil, err
		}
		if !approved {
			return nil, &PaymentRequiredError{PaymentRequired: *required}
		}
	}

	header, err := wire.EncodePaymentRequiredHeader(*required)
	if err != nil {
		return nil, err
	}
	_, payload, err := c.client.Pay(ctx, header, c.constraints, c.policy)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	return c.CallToolWithPayment(ctx, name, args, *payload)
}

// CallToolWithPayment calls a tool with an explicit payment payload.
func (c *Client) CallToolWithPayment(ctx context.Context, name string, args any, payload types.PaymentPayload) (*ToolCallResult, error) {
	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
		Meta:      AttachPaymentToMeta(nil, payload),
	})
	if err != nil {
		return nil, err
	}
	if required := PaymentRequiredFromResult(result); required != nil {
		return nil, &PaymentRequiredError{PaymentRequired: *required}
	}
	return toolCallResult(result, true)
}

func toolCallResult(result *mcpsdk.CallToolResult, paid bool) (*ToolCallResult, error) {
	settlement, err := SettlementFromResult(result)
	if err != nil {
		return nil, err
	}
	out := &ToolCallResult{
		IsError:         result.IsError,
		PaymentMade:     paid,
		PaymentResponse: settlement,
	}
	for _, item := range result.Content {
		if text, ok := item.(*mcpsdk.TextContent); ok {
			out.Content = append(out.Content, text.Text)
		}
	}
	return out, nil
}

// PaymentRequiredError reports a tool call that still requires payment.
type PaymentRequiredError struct {
	PaymentRequired types.PaymentRequired
}

func (e *PaymentRequiredError) Error() string {
	if e.PaymentRequired.Error != "" {
		return "payment required: " + e.PaymentRequired.Error
	}
	return "payment required"
}
