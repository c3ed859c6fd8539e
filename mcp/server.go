package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	x402 "github.com/x402-foundation/x402exact"
	"github.com/x402-foundation/x402exact/types"
)

// PaidTool wraps handler so that restricted tools settle a payment before
// they run. Restricted calls are configured with method MethodToolsCall and
// the tool name. The settled payment is available to handler through
// x402.PaymentInfoFromContext.
func PaidTool(paywall *x402.Paywall, handler mcpsdk.ToolHandler) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		name := req.Params.Name
		if !paywall.Restricted(MethodToolsCall, name) {
			return handler(ctx, req)
		}

		signature, err := SignatureFromMeta(req.Params.Meta)
		if err != nil {
			// An undecodable payment is answered like a missing one, with the reason.
			return paymentRequiredResult(ctx, paywall, name, err.Error())
		}

		result, err := paywall.Process(ctx, x402.Request{
			Method:          MethodToolsCall,
			Name:            name,
			Resource:        ToolResource(name),
			SignatureHeader: signature,
		})
		if err != nil {
			return nil, err
		}
		if result.Outcome == x402.PaywallPaymentRequired {
			return requiredToResult(*result.Required, result.Settlement)
		}

		toolResult, err := handler(x402.WithPaymentInfo(ctx, result.Payment), req)
		if err != nil || toolResult == nil {
			return toolResult, err
		}
		if result.Settlement != nil {
			if toolResult.Meta == nil {
				toolResult.Meta = mcpsdk.Meta{}
			}
			toolResult.Meta[PaymentResponseMetaKey] = *result.Settlement
		}
		return toolResult, nil
	}
}

func paymentRequiredResult(ctx context.Context, paywall *x402.Paywall, name, reason string) (*mcpsdk.CallToolResult, error) {
	result, err := paywall.Process(ctx, x402.Request{Method: MethodToolsCall, Name: name, Resource: ToolResource(name)})
	if err != nil {
		return nil, err
	}
	required := *result.Required
	required.Error = reason
	return requiredToResult(required, nil)
}

// requiredToResult renders a PaymentRequired as an error result carrying it
// both as structured content and as JSON text.
func requiredToResult(required types.PaymentRequired, settlement *types.SettlementResponse) (*mcpsdk.CallToolResult, error) {
	raw, err := json.Marshal(required)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment required: %w", err)
	}
	var structured map[string]any
	if err := json.Unmarshal(raw, &structured); err != nil {
		return nil, fmt.Errorf("failed to unmarshal structured content: %w", err)
	}

	result := &mcpsdk.CallToolResult{
		IsError:           true,
		StructuredContent: structured,
		Content:           []mcpsdk.Content{&mcpsdk.TextContent{Text: string(raw)}},
	}
	if settlement != nil {
		result.Meta = mcpsdk.Meta{PaymentResponseMetaKey: *settlement}
	}
	return result, nil
}
