package types

import (
	"errors"
	"fmt"
)

// OpMeta identifies one invoked operation. Every log line, report, and
// notification carries these fields.
type OpMeta struct {
	// OpID is the unique operation identifier. Generated per invocation.
	OpID string
	// Op names the operation: coredump, ota, restart, discover, listen, replay.
	Op string
	// Device is the target device identifier. Empty in broadcast mode
	// until a target is adopted, and for discovery/listen operations.
	Device string
}

// Validate checks operation identity rules.
func (m *OpMeta) Validate() error {
	if m.OpID == "" {
		return errors.New("op_id must be non-empty")
	}
	if m.Op == "" {
		return fmt.Errorf("op must be non-empty for op_id %s", m.OpID)
	}
	return nil
}
