package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	x402 "github.com/x402-foundation/x402exact"
	"github.com/x402-foundation/x402exact/selection"
)

// PaymentCredentials sends a fixed payment-signature with every RPC it is
// attached to.
type PaymentCredentials struct {
	SignatureHeader string
	// Secure requires transport security before the signature is sent.
	Secure bool
}

var _ credentials.PerRPCCredentials = PaymentCredentials{}

// GetRequestMetadata implements credentials.PerRPCCredentials
func (c PaymentCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{MetadataKeyPaymentSignature: c.SignatureHeader}, nil
}

// RequireTransportSecurity implements credentials.PerRPCCredentials
func (c PaymentCredentials) RequireTransportSecurity() bool {
	return c.Secure
}

// UnaryClientInterceptor pays a payment-required status with client and
// retries the call once.
func UnaryClientInterceptor(client *x402.ExactClient, constraints selection.Constraints, policy *selection.Policy) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		err := invoker(ctx, method, req, reply, cc, opts...)
		requiredHeader := RequiredHeaderFromError(err)
		if requiredHeader == "" {
			return err
		}

		signatureHeader, _, payErr := client.Pay(ctx, requiredHeader, constraints, policy)
		if payErr != nil {
			return fmt.Errorf("failed to create payment: %w", payErr)
		}
		return invoker(WithPaymentSignature(ctx, signatureHeader), method, req, reply, cc, opts...)
	}
}
