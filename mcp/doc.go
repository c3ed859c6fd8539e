// Package mcp provides MCP (Model Context Protocol) transport integration for the x402 payment protocol.
//
// Paid tools answer unpaid calls with an error result whose structured
// content is the PaymentRequired. Clients retry with the payment payload in
// _meta["x402/payment"]; the settlement comes back in
// _meta["x402/payment-response"].
//
// # Server Usage
//
//	paywall, _ := x402.NewPaywall(server, cfg) // restricted calls use method "tools/call"
//	mcpServer.AddTool(tool, mcp.PaidTool(paywall, handler))
//
// # Client Usage
//
//	session, _ := mcpClient.Connect(ctx, transport, nil)
//	paying := mcp.NewClient(session, exactClient)
//	result, err := paying.CallTool(ctx, "get_weather", map[string]any{"city": "NYC"})
package mcp
