package discovery

import (
	"errors"
	"fmt"
)

// Policy names a device selection strategy.
type Policy string

const (
	// PolicyFirstFound selects the first device by arrival order.
	PolicyFirstFound Policy = "first_found"
	// PolicyExplicit uses a caller-supplied identifier, bypassing
	// discovery entirely.
	PolicyExplicit Policy = "explicit"
	// PolicyInteractive delegates the choice to a prompt collaborator.
	PolicyInteractive Policy = "interactive"
)

// PromptFunc presents candidates to a human and returns the chosen
// device identifier. Returning an error aborts selection.
type PromptFunc func(candidates []Sighting) (string, error)

// SelectRequest contains parameters for device selection.
type SelectRequest struct {
	// Policy is the selection strategy.
	Policy Policy
	// Explicit is the device identifier for PolicyExplicit.
	Explicit string
	// Prompt is the collaborator for PolicyInteractive.
	Prompt PromptFunc
}

// Select resolves the target device from the registry contents.
func (r *Registry) Select(req SelectRequest) (string, error) {
	switch req.Policy {
	case PolicyExplicit:
		if req.Explicit == "" {
			return "", errors.New("explicit selection requires a device identifier")
		}
		return req.Explicit, nil

	case PolicyFirstFound:
		devices := r.Devices()
		if len(devices) == 0 {
			return "", errors.New("no devices discovered within the window")
		}
		return devices[0].Device, nil

	case PolicyInteractive:
		if req.Prompt == nil {
			return "", errors.New("interactive selection requires a prompt")
		}
		devices := r.Devices()
		if len(devices) == 0 {
			return "", errors.New("no devices discovered within the window")
		}
		return req.Prompt(devices)

	default:
		return "", fmt.Errorf("unknown policy %q", req.Policy)
	}
}
