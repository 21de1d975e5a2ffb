// Package adapter defines the completion notification boundary.
//
// Adapters publish operation completion events to downstream systems
// (dashboards, alerting, fleet inventory). The operation owns the
// adapter lifecycle; users provide configuration only. Notification
// failures are logged and never change an operation's verdict.
package adapter

import "context"

// OperationCompletedEvent is the payload published when a device
// operation reaches a terminal state.
type OperationCompletedEvent struct {
	SchemaVersion string `json:"schema_version"`
	EventType     string `json:"event_type"` // always "operation_completed"
	OpID          string `json:"op_id"`
	Op            string `json:"op"` // coredump, ota, restart, listen
	Device        string `json:"device"`
	Outcome       string `json:"outcome"` // success, device_error, timeout, ...
	Message       string `json:"message"`
	Timestamp     string `json:"timestamp"` // ISO 8601

	// ArtifactPath is the local path of the primary artifact, if any.
	ArtifactPath string `json:"artifact_path,omitempty"`
	// ArchiveLocation is where artifacts were archived, if anywhere.
	ArchiveLocation string `json:"archive_location,omitempty"`

	ChunksReceived int   `json:"chunks_received"`
	ChunksDeclared int   `json:"chunks_declared"`
	DurationMs     int64 `json:"duration_ms"`
}

// SchemaVersion is the current notification payload version.
const SchemaVersion = "1"

// EventTypeOperationCompleted is the fixed event_type value.
const EventTypeOperationCompleted = "operation_completed"

// Adapter publishes operation completion events to a downstream system.
// Implementations must be safe for single-use per operation.
type Adapter interface {
	// Publish sends a completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *OperationCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
