package grpc

import (
	"context"
	"net/http"
	"net/textproto"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"

	"github.com/x402-foundation/x402exact/wire"
)

// GatewayHeaderMatcher forwards the PAYMENT-SIGNATURE header into gRPC
// metadata and defers to the default matcher for everything else.
func GatewayHeaderMatcher(key string) (string, bool) {
	if textproto.CanonicalMIMEHeaderKey(key) == textproto.CanonicalMIMEHeaderKey(wire.PaymentSignatureHeader) {
		return MetadataKeyPaymentSignature, true
	}
	return runtime.DefaultHeaderMatcher(key)
}

// GatewayTrailerMatcher exposes the payment-response trailer as the
// PAYMENT-RESPONSE HTTP header.
func GatewayTrailerMatcher(key string) (string, bool) {
	if key == MetadataKeyPaymentResponse {
		return wire.PaymentResponseHeader, true
	}
	return runtime.MetadataTrailerPrefix + key, true
}

// GatewayErrorHandler turns a payment-required status into an HTTP 402
// carrying PAYMENT-REQUIRED and the PaymentRequired body.
func GatewayErrorHandler(ctx context.Context, mux *runtime.ServeMux, marshaler runtime.Marshaler, w http.ResponseWriter, r *http.Request, err error) {
	header := RequiredHeaderFromError(err)
	if header == "" {
		runtime.DefaultHTTPErrorHandler(ctx, mux, marshaler, w, r, err)
		return
	}
	required, decodeErr := wire.DecodePaymentRequiredHeader(header)
	if decodeErr != nil {
		runtime.DefaultHTTPErrorHandler(ctx, mux, marshaler, w, r, err)
		return
	}

	body, marshalErr := marshaler.Marshal(required)
	if marshalErr != nil {
		runtime.DefaultHTTPErrorHandler(ctx, mux, marshaler, w, r, err)
		return
	}
	w.Header().Set(wire.PaymentRequiredHeader, header)
	w.Header().Set("Content-Type", marshaler.ContentType(required))
	w.WriteHeader(http.StatusPaymentRequired)
	_, _ = w.Write(body)
}

// GatewayOptions returns the ServeMux options wiring the PAYMENT-* headers
// through a grpc-gateway mux.
func GatewayOptions() []runtime.ServeMuxOption {
	return []runtime.ServeMuxOption{
		runtime.WithIncomingHeaderMatcher(GatewayHeaderMatcher),
		runtime.WithOutgoingTrailerMatcher(GatewayTrailerMatcher),
		runtime.WithErrorHandler(GatewayErrorHandler),
	}
}
