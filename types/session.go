// Package types defines core domain types shared across fleetkit packages.
//
//nolint:revive // types is a common Go package naming convention
package types

// SessionState is the lifecycle state of one device operation.
type SessionState string

const (
	// StateIdle is the initial state before any command is published.
	StateIdle SessionState = "idle"
	// StateRequested is entered when the command has been published.
	StateRequested SessionState = "requested"
	// StateTransferring is entered on the first header or chunk event
	// from the target device.
	StateTransferring SessionState = "transferring"
	// StateSucceeded is terminal: the operation completed.
	StateSucceeded SessionState = "succeeded"
	// StateFailed is terminal: the device reported a matching failure.
	StateFailed SessionState = "failed"
	// StateTimedOut is terminal: the deadline passed with no verdict.
	StateTimedOut SessionState = "timed_out"
)

// Terminal returns true for sticky end states. Once terminal, further
// events are audited but never change the state.
func (s SessionState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTimedOut
}

// OutcomeStatus is the final classification of one operation.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates the operation completed.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeDeviceError indicates the device reported a failure.
	OutcomeDeviceError OutcomeStatus = "device_error"
	// OutcomeTimeout indicates the deadline passed with no terminal
	// signal. Distinct from device_error so callers can decide to retry.
	OutcomeTimeout OutcomeStatus = "timeout"
	// OutcomeIncomplete indicates a transfer ended with chunk gaps.
	OutcomeIncomplete OutcomeStatus = "incomplete"
	// OutcomeTransportFailure indicates the messaging layer failed.
	OutcomeTransportFailure OutcomeStatus = "transport_failure"
)

// Outcome is the verdict for one operation.
type Outcome struct {
	// Status is the outcome classification.
	Status OutcomeStatus
	// Message is a human-readable description.
	Message string
	// DeviceText preserves the raw device-reported text for diagnosis.
	DeviceText *string
}

// Capability names a remote operation a device understands.
type Capability string

const (
	// CapabilityCoredump requests a crash dump transfer.
	CapabilityCoredump Capability = "coredump"
	// CapabilityOTA requests a firmware update from a URL.
	CapabilityOTA Capability = "ota"
	// CapabilityRestart requests a graceful device restart.
	CapabilityRestart Capability = "restart"
)
