// Package grpc adapts the x402 paywall to gRPC.
//
// The server interceptor answers unpaid restricted calls with
// codes.ResourceExhausted whose message is the encoded PaymentRequired, and
// reports the settlement in the payment-response trailer. Clients pay with
// UnaryClientInterceptor or by attaching PaymentCredentials.
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	x402 "github.com/x402-foundation/x402exact"
	"github.com/x402-foundation/x402exact/logger"
)

// ServerOption configures UnaryServerInterceptor
type ServerOption func(*serverConfig)

type serverConfig struct {
	logger logger.Logger
}

// WithLogger sets the interceptor logger
func WithLogger(log logger.Logger) ServerOption {
	return func(c *serverConfig) {
		c.logger = log
	}
}

// UnaryServerInterceptor guards restricted methods with paywall. Restricted
// calls are configured with method MethodGRPC and the full method name.
func UnaryServerInterceptor(paywall *x402.Paywall, opts ...ServerOption) grpc.UnaryServerInterceptor {
	cfg := &serverConfig{logger: logger.NoopLogger{}}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !paywall.Restricted(MethodGRPC, info.FullMethod) {
			return handler(ctx, req)
		}

		var signature string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			signature = SignatureFromMetadata(md)
		}

		result, err := paywall.Process(ctx, x402.Request{
			Method:          MethodGRPC,
			Name:            info.FullMethod,
			SignatureHeader: signature,
		})
		if err != nil {
			cfg.logger.Error("paywall failed", map[string]any{"method": info.FullMethod, "error": err.Error()})
			return nil, status.Error(codes.Internal, err.Error())
		}

		if result.ResponseHeader != "" {
			_ = grpc.SetTrailer(ctx, metadata.Pairs(MetadataKeyPaymentResponse, result.ResponseHeader))
		}
		if result.Outcome == x402.PaywallPaymentRequired {
			return nil, paymentRequiredError(result.RequiredHeader)
		}

		return handler(x402.WithPaymentInfo(ctx, result.Payment), req)
	}
}
