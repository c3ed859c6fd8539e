package grpc

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/x402-foundation/x402exact/types"
	"github.com/x402-foundation/x402exact/wire"
)

// Metadata keys are the lower-cased HTTP header names.
var (
	MetadataKeyPaymentSignature = strings.ToLower(wire.PaymentSignatureHeader)
	MetadataKeyPaymentRequired  = strings.ToLower(wire.PaymentRequiredHeader)
	MetadataKeyPaymentResponse  = strings.ToLower(wire.PaymentResponseHeader)
)

// MethodGRPC is the restricted call method matched for gRPC requests; the
// call name is the full method, e.g. "/weather.v1.Weather/Forecast".
const MethodGRPC = "grpc"

// SignatureFromMetadata returns the payment-signature value of md, if present.
func SignatureFromMetadata(md metadata.MD) string {
	if values := md.Get(MetadataKeyPaymentSignature); len(values) > 0 {
		return values[0]
	}
	return ""
}

// WithPaymentSignature attaches a payment-signature value to the outgoing context.
func WithPaymentSignature(ctx context.Context, signatureHeader string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, MetadataKeyPaymentSignature, signatureHeader)
}

// paymentRequiredError carries the encoded PaymentRequired as the status
// message so that clients and the gateway can recover it.
func paymentRequiredError(requiredHeader string) error {
	return status.Error(codes.ResourceExhausted, requiredHeader)
}

// RequiredHeaderFromError returns the encoded PaymentRequired carried by a
// payment-required status, or "" if err is anything else.
func RequiredHeaderFromError(err error) string {
	s, ok := status.FromError(err)
	if !ok || s.Code() != codes.ResourceExhausted {
		return ""
	}
	if _, decodeErr := wire.DecodePaymentRequiredHeader(s.Message()); decodeErr != nil {
		return ""
	}
	return s.Message()
}

// PaymentRequiredFromError decodes the PaymentRequired carried by err.
func PaymentRequiredFromError(err error) (*types.PaymentRequired, error) {
	header := RequiredHeaderFromError(err)
	if header == "" {
		return nil, fmt.Errorf("error does not carry a payment requirement: %w", err)
	}
	return wire.DecodePaymentRequiredHeader(header)
}

// SettlementFromTrailer decodes the payment-response trailer.
func SettlementFromTrailer(trailer metadata.MD) (*types.SettlementResponse, error) {
	values := trailer.Get(MetadataKeyPaymentResponse)
	if len(values) == 0 {
		return nil, fmt.Errorf("payment response trailer not found")
	}
	return wire.DecodePaymentResponseHeader(values[0])
}
