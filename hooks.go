package x402

import (
	"context"
	"time"

	"github.com/x402-foundation/x402exact/types"
)

// SettleContext contains information passed to settle hooks
type SettleContext struct {
	Ctx         context.Context
	Payload     types.PaymentPayload
	Requirement types.PaymentRequirements
	Timestamp   time.Time
}

// SettleResultContext contains settle operation result and context
type SettleResultContext struct {
	SettleContext
	Result   types.SettlementResponse
	Duration time.Duration
}

// SettleFailureContext contains settle operation failure and context
type SettleFailureContext struct {
	SettleContext
	Code     string
	Reason   string
	Duration time.Duration
}

// BeforeHookResult represents the result of a "before" hook
// If Abort is true, the operation will be aborted with the given Reason
type BeforeHookResult struct {
	Abort  bool
	Reason string
}

// BeforeSettleHook is called before the settlement transaction is broadcast.
// A result with Abort=true turns the settlement into a failure with Reason.
type BeforeSettleHook func(SettleContext) (*BeforeHookResult, error)

// AfterSettleHook is called after a successful settlement
// Any error returned will be logged but will not affect the settlement result
type AfterSettleHook func(SettleResultContext) error

// OnSettleFailureHook is called when settlement fails. It is informational.
type OnSettleFailureHook func(SettleFailureContext)

// WithBeforeSettleHook registers a hook to execute before payment settlement
func WithBeforeSettleHook(hook BeforeSettleHook) ServerOption {
	return func(s *ExactServer) {
		s.beforeSettleHooks = append(s.beforeSettleHooks, hook)
	}
}

// WithAfterSettleHook registers a hook to execute after successful payment settlement
func WithAfterSettleHook(hook AfterSettleHook) ServerOption {
	return func(s *ExactServer) {
		s.afterSettleHooks = append(s.afterSettleHooks, hook)
	}
}

// WithOnSettleFailureHook registers a hook to execute when payment settlement fails
func WithOnSettleFailureHook(hook OnSettleFailureHook) ServerOption {
	return func(s *ExactServer) {
		s.onSettleFailureHooks = append(s.onSettleFailureHooks, hook)
	}
}
