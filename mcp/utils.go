package mcp

import (
	"encoding/json"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/x402-foundation/x402exact/types"
	"github.com/x402-foundation/x402exact/wire"
)

// remarshal converts a decoded JSON value into out.
func remarshal(value any, out any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// SignatureFromMeta returns the payment carried in meta as a PAYMENT-SIGNATURE
// header value. The payload may be a JSON object or an already encoded header
// string. It returns "" when meta holds no payment.
func SignatureFromMeta(meta mcpsdk.Meta) (string, error) {
	value, ok := meta[PaymentMetaKey]
	if !ok || value == nil {
		return "", nil
	}
	if header, ok := value.(string); ok {
		return header, nil
	}

	var payload types.PaymentPayload
	if err := remarshal(value, &payload); err != nil {
		return "", fmt.Errorf("invalid %s metadata: %w", PaymentMetaKey, err)
	}
	return wire.EncodePaymentSignatureHeader(payload)
}

// AttachPaymentToMeta returns a copy of meta carrying payload.
func AttachPaymentToMeta(meta mcpsdk.Meta, payload types.PaymentPayload) mcpsdk.Meta {
	out := make(mcpsdk.Meta, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out[PaymentMetaKey] = payload
	return out
}

// SettlementFromResult extracts the settlement response from result _meta.
func SettlementFromResult(result *mcpsdk.CallToolResult) (*types.SettlementResponse, error) {
	if result == nil || result.Meta == nil {
		return nil, nil
	}
	value, ok := result.Meta[PaymentResponseMetaKey]
	if !ok {
		return nil, nil
	}
	if response, ok := value.(types.SettlementResponse); ok {
		return &response, nil
	}

	var response types.SettlementResponse
	if err := remarshal(value, &response); err != nil {
		return nil, fmt.Errorf("failed to decode payment response: %w", err)
	}
	return &response, nil
}

// PaymentRequiredFromResult extracts the PaymentRequired from an error result,
// preferring structured content over the first text item. It returns nil
// when result is not a payment-required result.
func PaymentRequiredFromResult(result *mcpsdk.CallToolResult) *types.PaymentRequired {
	if result == nil || !result.IsError {
		return nil
	}
	if result.StructuredContent != nil {
		if required := paymentRequiredFrom(result.StructuredContent); required != nil {
			return required
		}
	}
	if len(result.Content) > 0 {
		if text, ok := result.Content[0].(*mcpsdk.TextContent); ok {
			var parsed map[string]any
			if err := json.Unmarshal([]byte(text.Text), &parsed); err == nil {
				return paymentRequiredFrom(parsed)
			}
		}
	}
	return nil
}

func paymentRequiredFrom(value any) *types.PaymentRequired {
	var required types.PaymentRequired
	if err := remarshal(value, &required); err != nil {
		return nil
	}
	if required.X402Version == 0 || len(required.Accepts) == 0 {
		return nil
	}
	return &required
}

// ToolResource returns the resource URL of a tool.
func ToolResource(toolName string) string {
	return ToolResourcePrefix + toolName
}
