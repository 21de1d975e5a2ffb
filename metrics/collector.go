// Package metrics provides per-operation metrics collection.
//
// The Collector accumulates counters during a single operation. It is a
// leaf package with no internal dependencies. Chunk-assembly counters are
// absorbed from the assembler's stats at operation completion rather than
// recorded live, avoiding double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all operation metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Delivery path
	MessagesReceived int64            `json:"messages_received"`
	MessagesDropped  int64            `json:"messages_dropped"`
	ParseErrors      int64            `json:"parse_errors"`
	InvalidChunks    int64            `json:"invalid_chunks"`
	ByKind           map[string]int64 `json:"by_kind,omitempty"`

	// Assembly (absorbed from assembler stats at operation completion)
	ChunksStored    int64 `json:"chunks_stored"`
	ChunkDuplicates int64 `json:"chunk_duplicates"`
	ChunkBytes      int64 `json:"chunk_bytes"`

	// Transport
	PublishSuccess int64 `json:"publish_success"`
	PublishFailure int64 `json:"publish_failure"`

	// Archive (per-call, not per-byte)
	ArchiveWriteSuccess int64 `json:"archive_write_success"`
	ArchiveWriteFailure int64 `json:"archive_write_failure"`

	// Dimensions (informational, set at construction)
	Op     string `json:"op"`
	OpID   string `json:"op_id"`
	Device string `json:"device,omitempty"`
}

// Collector accumulates metrics during a single operation.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe,
// so wiring a collector is always optional.
type Collector struct {
	mu sync.Mutex

	messagesReceived int64
	messagesDropped  int64
	parseErrors      int64
	invalidChunks    int64
	byKind           map[string]int64

	chunksStored    int64
	chunkDuplicates int64
	chunkBytes      int64

	publishSuccess int64
	publishFailure int64

	archiveWriteSuccess int64
	archiveWriteFailure int64

	op     string
	opID   string
	device string
}

// NewCollector creates a Collector with dimension labels.
// device may be empty for broadcast-mode and discovery operations.
func NewCollector(op, opID, device string) *Collector {
	return &Collector{
		byKind: make(map[string]int64),
		op:     op,
		opID:   opID,
		device: device,
	}
}

// --- Delivery path ---

// IncMessageReceived records one raw message enqueued from the transport.
func (c *Collector) IncMessageReceived() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.messagesReceived++
	c.mu.Unlock()
}

// IncMessageDropped records a message discarded because the queue was full.
func (c *Collector) IncMessageDropped() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.messagesDropped++
	c.mu.Unlock()
}

// IncParseError records a malformed payload that was dropped.
func (c *Collector) IncParseError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.parseErrors++
	c.mu.Unlock()
}

// IncInvalidChunk records a chunk rejected by the assembler.
func (c *Collector) IncInvalidChunk() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.invalidChunks++
	c.mu.Unlock()
}

// ObserveKind records one classified event by kind. Kind keys are
// string-typed to keep this package free of dependencies on types.
func (c *Collector) ObserveKind(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.byKind[kind]++
	c.mu.Unlock()
}

// --- Transport ---

// IncPublishSuccess records a successful command publish.
func (c *Collector) IncPublishSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.publishSuccess++
	c.mu.Unlock()
}

// IncPublishFailure records a failed command publish.
func (c *Collector) IncPublishFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.publishFailure++
	c.mu.Unlock()
}

// --- Archive ---
// Archive counters are per-call. A single Put with N bytes counts as 1.

// IncArchiveWriteSuccess records a successful archive write operation.
func (c *Collector) IncArchiveWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.archiveWriteSuccess++
	c.mu.Unlock()
}

// IncArchiveWriteFailure records a failed archive write operation.
func (c *Collector) IncArchiveWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.archiveWriteFailure++
	c.mu.Unlock()
}

// --- Assembly (absorbed from assembler stats) ---

// AbsorbAssemblerStats copies chunk counters from the assembler into the
// collector. Called once when the operation reaches a terminal state.
func (c *Collector) AbsorbAssemblerStats(stored, duplicates, bytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunksStored = stored
	c.chunkDuplicates = duplicates
	c.chunkBytes = bytes
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byKind := make(map[string]int64, len(c.byKind))
	for k, v := range c.byKind {
		byKind[k] = v
	}

	return Snapshot{
		MessagesReceived: c.messagesReceived,
		MessagesDropped:  c.messagesDropped,
		ParseErrors:      c.parseErrors,
		InvalidChunks:    c.invalidChunks,
		ByKind:           byKind,

		ChunksStored:    c.chunksStored,
		ChunkDuplicates: c.chunkDuplicates,
		ChunkBytes:      c.chunkBytes,

		PublishSuccess: c.publishSuccess,
		PublishFailure: c.publishFailure,

		ArchiveWriteSuccess: c.archiveWriteSuccess,
		ArchiveWriteFailure: c.archiveWriteFailure,

		Op:     c.op,
		OpID:   c.opID,
		Device: c.device,
	}
}
