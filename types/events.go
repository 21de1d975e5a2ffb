package types

import "time"

// EventKind classifies an incoming broker message by topic category.
type EventKind string

// Event kind constants. Deadline is synthetic: it is injected by the
// session timer, never produced by the router.
const (
	EventTelemetry    EventKind = "telemetry"
	EventHeader       EventKind = "header"
	EventChunk        EventKind = "chunk"
	EventComplete     EventKind = "complete"
	EventStatus       EventKind = "status"
	EventError        EventKind = "error"
	EventDeadline     EventKind = "deadline"
	EventUnrecognized EventKind = "unrecognized"
)

// Qualifying returns true if this event kind can adopt a target device
// in broadcast mode. Telemetry sightings never qualify; they identify
// devices, not operations in progress.
func (k EventKind) Qualifying() bool {
	switch k {
	case EventHeader, EventChunk, EventComplete, EventStatus, EventError:
		return true
	default:
		return false
	}
}

// RawMessage is a broker message exactly as received, before
// classification. The delivery path produces these; the router,
// session audit trail, and transcript recorder all consume them.
type RawMessage struct {
	ReceivedAt time.Time
	Topic      string
	Payload    []byte
}

// Event is a classified broker message. Exactly one of the payload
// fields is populated, matching Kind.
type Event struct {
	Kind       EventKind
	Device     string
	Topic      string
	ReceivedAt time.Time

	// Text carries status and error event bodies verbatim.
	Text string
	// Chunk is set for chunk events.
	Chunk *ChunkPayload
	// Header is set for header events; retained verbatim for the
	// sibling metadata file.
	Header map[string]any
	// Complete is set for transfer-complete events.
	Complete *CompletePayload
}

// ChunkPayload is the load-bearing subset of a chunk message.
// Index and Total are the only ordering/completeness signals the
// transport provides.
type ChunkPayload struct {
	Index int
	Total int
	Data  []byte
}

// CompletePayload is the device-asserted end-of-transfer summary.
// Corroborating evidence only; completeness is judged from the chunk map.
type CompletePayload struct {
	TotalChunks int
	TotalSize   int64
}
