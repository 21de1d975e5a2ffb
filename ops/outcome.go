package ops

import (
	"github.com/opengrid-io/fleetkit/transport"
	"github.com/opengrid-io/fleetkit/types"
)

// Process exit codes. Scripts branch on these, so the mapping is a
// contract: a device-reported failure, a silent timeout, and broker
// trouble must stay distinguishable.
const (
	ExitSuccess    = 0 // operation reached a success outcome
	ExitFailure    = 1 // device reported failure
	ExitUsage      = 2 // invalid arguments or configuration
	ExitTimeout    = 3 // deadline passed without a verdict
	ExitTransport  = 4 // broker connect, subscribe, or publish failed
	ExitIncomplete = 5 // transfer ended with chunk gaps
)

// ExitCodeFor maps an outcome status to the process exit code.
func ExitCodeFor(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomeSuccess:
		return ExitSuccess
	case types.OutcomeTimeout:
		return ExitTimeout
	case types.OutcomeIncomplete:
		return ExitIncomplete
	case types.OutcomeTransportFailure:
		return ExitTransport
	default:
		return ExitFailure
	}
}

// ExitCodeForError maps an infrastructure error to the process exit
// code. Transport failures get their own code so callers can tell a
// broker problem from a device problem and retry accordingly.
func ExitCodeForError(err error) int {
	if transport.IsTransportError(err) {
		return ExitTransport
	}
	return ExitFailure
}
