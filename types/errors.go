package types

import "fmt"

// Error codes shared by validation issues, selection diagnostics and
// settlement results.
const (
	ErrCodeInvalidPayload                  = "invalid_payload"
	ErrCodeInvalidPaymentRequirements      = "invalid_payment_requirements"
	ErrCodeInvalidNetwork                  = "invalid_network"
	ErrCodeInvalidExactEvmPayloadSignature = "invalid_exact_evm_payload_signature"
	ErrCodeInvalidExactEvmPayloadValue     = "invalid_exact_evm_payload_value"
	ErrCodeInvalidExactEvmPayloadNonce     = "invalid_exact_evm_payload_nonce"
	ErrCodeInvalidExactEvmPayloadTimeout   = "invalid_exact_evm_payload_timeout"
	ErrCodeInvalidConfiguration            = "invalid_configuration"
	ErrCodeSettlementFailed                = "settlement_failed"
	ErrCodeSimulationFailed                = "simulation_failed"
	ErrCodeNoMatchingPaymentOption         = "no_matching_payment_option"
)

// PaymentError represents a payment-specific error
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	cause   error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *PaymentError) Unwrap() error {
	return e.cause
}

// NewPaymentError creates a new payment error
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// WrapPaymentError creates a payment error that keeps cause reachable via errors.Unwrap.
func WrapPaymentError(code, message string, cause error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: fmt.Sprintf("%s: %v", message, cause),
		cause:   cause,
	}
}
