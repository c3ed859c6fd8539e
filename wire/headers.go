package wire

import (
	"fmt"

	"github.com/x402-foundation/x402exact/types"
)

// Header names of the three-phase handshake.
const (
	PaymentRequiredHeader  = "PAYMENT-REQUIRED"
	PaymentSignatureHeader = "PAYMENT-SIGNATURE"
	PaymentResponseHeader  = "PAYMENT-RESPONSE"
)

// HeaderError reports a codec failure at the transport boundary.
type HeaderError struct {
	Header string
	Op     string
	Err    error
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("%s header %s failed: %v", e.Header, e.Op, e.Err)
}

func (e *HeaderError) Unwrap() error {
	return e.Err
}

func encodeHeader(header string, v interface{}) (string, error) {
	s, err := Encode(v)
	if err != nil {
		return "", &HeaderError{Header: header, Op: "encode", Err: err}
	}
	return s, nil
}

func decodeHeader(header, value string, v interface{}) error {
	if err := Decode(value, v); err != nil {
		return &HeaderError{Header: header, Op: "decode", Err: err}
	}
	return nil
}

// EncodePaymentRequiredHeader encodes a PaymentRequired as a PAYMENT-REQUIRED header value.
func EncodePaymentRequiredHeader(required types.PaymentRequired) (string, error) {
	return encodeHeader(PaymentRequiredHeader, required)
}

// DecodePaymentRequiredHeader decodes a PAYMENT-REQUIRED header value.
func DecodePaymentRequiredHeader(value string) (*types.PaymentRequired, error) {
	var required types.PaymentRequired
	if err := decodeHeader(PaymentRequiredHeader, value, &required); err != nil {
		return nil, err
	}
	return &required, nil
}

// EncodePaymentSignatureHeader encodes a PaymentPayload as a PAYMENT-SIGNATURE header value.
func EncodePaymentSignatureHeader(payload types.PaymentPayload) (string, error) {
	return encodeHeader(PaymentSignatureHeader, payload)
}

// DecodePaymentSignatureHeader decodes a PAYMENT-SIGNATURE header value.
func DecodePaymentSignatureHeader(value string) (*types.PaymentPayload, error) {
	var payload types.PaymentPayload
	if err := decodeHeader(PaymentSignatureHeader, value, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// EncodePaymentResponseHeader encodes a SettlementResponse as a PAYMENT-RESPONSE header value.
func EncodePaymentResponseHeader(response types.SettlementResponse) (string, error) {
	return encodeHeader(PaymentResponseHeader, response)
}

// DecodePaymentResponseHeader decodes a PAYMENT-RESPONSE header value.
func DecodePaymentResponseHeader(value string) (*types.SettlementResponse, error) {
	var response types.SettlementResponse
	if err := decodeHeader(PaymentResponseHeader, value, &response); err != nil {
		return nil, err
	}
	return &response, nil
}
