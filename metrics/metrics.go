// Package metrics records protocol events and latencies.
package metrics

import "time"

// Event and operation names recorded by the server and paywall.
const (
	EventPaymentRequired   = "payment_required"
	EventValidationFailed  = "validation_failed"
	EventSimulationFailed  = "simulation_failed"
	EventSettlementFailed  = "settlement_failed"
	EventSettlementSuccess = "settlement_success"

	OperationValidate = "validate"
	OperationSimulate = "simulate"
	OperationSettle   = "settle"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
