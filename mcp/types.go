package mcp

import (
	"github.com/x402-foundation/x402exact/types"
)

// Protocol constants for MCP x402 payment integration.
const (
	// PaymentMetaKey is the _meta key for the payment payload (client to server)
	PaymentMetaKey = "x402/payment"

	// PaymentResponseMetaKey is the _meta key for the settlement response (server to client)
	PaymentResponseMetaKey = "x402/payment-response"

	// MethodToolsCall is the restricted call method matched for tool calls;
	// the call name is the tool name.
	MethodToolsCall = "tools/call"

	// ToolResourcePrefix prefixes the tool name to form the resource URL
	ToolResourcePrefix = "mcp://tool/"
)

// ToolCallResult is the outcome of a paid tool call on the client side.
type ToolCallResult struct {
	Content         []string
	IsError         bool
	PaymentMade     bool
	PaymentResponse *types.SettlementResponse
}

// PaymentRequiredContext is passed to the client's approval callback.
type PaymentRequiredContext struct {
	ToolName        string
	Arguments       any
	PaymentRequired types.PaymentRequired
}
