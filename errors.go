package x402

import (
	"errors"

	"github.com/x402-foundation/x402exact/types"
)

// PaymentError is the coded error shared by every package of the module.
type PaymentError = types.PaymentError

// Sentinel errors returned when an operation is called before the setup it
// depends on.
var (
	ErrNotInitialized       = errors.New("x402: not initialized")
	ErrWalletNotSet         = errors.New("x402: wallet not set")
	ErrNoProviderForNetwork = errors.New("x402: no provider for network")
)

// NewPaymentError creates a new payment error
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return types.NewPaymentError(code, message, details)
}

// ErrorCode returns the code of the first PaymentError in err's chain, or "".
func ErrorCode(err error) string {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
