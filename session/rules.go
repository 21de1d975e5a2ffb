package session

import (
	"strings"

	"github.com/opengrid-io/fleetkit/types"
)

// Rules decides which free-text device messages carry a verdict for a
// capability. Free-text matching is inherently fragile; keeping it
// behind this interface lets the phrase sets evolve, or be replaced by
// a structured payload, without touching the state machine.
type Rules interface {
	// VacuousSuccess reports status text meaning there is nothing to
	// transfer. The operation succeeds with no artifact.
	VacuousSuccess(status string) bool
	// TransferStarting reports status text announcing the device is
	// about to stream data.
	TransferStarting(status string) bool
	// Success reports status text announcing the operation completed.
	Success(status string) bool
	// Failure reports error text that belongs to this capability.
	Failure(errorText string) bool
}

// phraseRules matches case-insensitive substrings against fixed phrase
// sets. The zero value matches nothing.
type phraseRules struct {
	vacuous  []string
	starting []string
	success  []string
	failure  []string
}

func (r phraseRules) VacuousSuccess(status string) bool {
	return containsAny(status, r.vacuous)
}

func (r phraseRules) TransferStarting(status string) bool {
	return containsAny(status, r.starting)
}

func (r phraseRules) Success(status string) bool {
	return containsAny(status, r.success)
}

func (r phraseRules) Failure(errorText string) bool {
	return containsAny(errorText, r.failure)
}

func containsAny(text string, phrases []string) bool {
	if len(phrases) == 0 {
		return false
	}
	lowered := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}

// RulesFor returns the phrase rules for a capability. Phrases are
// matched lowercased against the firmware's known status and error
// texts. Unknown capabilities get rules that never match; such a
// session resolves only through the chunk stream or the deadline.
func RulesFor(c types.Capability) Rules {
	switch c {
	case types.CapabilityCoredump:
		// Dump success is decided by the chunk stream, not status text;
		// the only status verdict is the nothing-to-send case.
		return phraseRules{
			vacuous:  []string{"no core dump data available"},
			starting: []string{"starting transmission"},
			failure:  []string{"core dump"},
		}
	case types.CapabilityOTA:
		// A restart announcement means the device accepted the image
		// and is booting into it.
		return phraseRules{
			starting: []string{"starting ota", "ota started"},
			success: []string{
				"ota update completed successfully",
				"ota completed",
				"ota finished",
				"restart",
			},
			failure: []string{"ota"},
		}
	case types.CapabilityRestart:
		// "Unknown command: restart" from stale firmware also matches
		// the failure phrase, which is the desired verdict.
		return phraseRules{
			success: []string{"restart"},
			failure: []string{"restart"},
		}
	default:
		return phraseRules{}
	}
}
