// Package coredump reassembles chunked crash dump transfers.
//
// Devices stream a dump as many small indexed messages over a transport
// that only guarantees at-least-once delivery. The Assembler tolerates
// out-of-order, duplicate, and missing chunks: storage is idempotent per
// index, the declared chunk count is a running maximum (devices may
// under-report early and correct later), and the "done" judgment is
// deferred until every index in [0, total) is accounted for. The
// device's completion message is corroborating evidence, never proof.
package coredump

import (
	"sync"

	"github.com/opengrid-io/fleetkit/types"
)

// MaxDumpSize is the maximum accepted reconstructed dump size (64 MiB).
// Coredump partitions on the supported devices are far smaller; the cap
// bounds memory against a misbehaving publisher.
const MaxDumpSize = 64 * 1024 * 1024

// Assembler accumulates the chunks of one transfer.
// Thread-safe; all mutation normally happens on the session's consumer
// goroutine, while stats may be read from reporting paths.
type Assembler struct {
	mu            sync.RWMutex
	chunks        map[int][]byte
	totalDeclared int
	header        map[string]any
	completion    *types.CompletePayload
	finalized     bool

	duplicates int64
	bytes      int64
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{
		chunks: make(map[int][]byte),
	}
}

// AcceptHeader stores transfer metadata. Idempotent, last value wins.
func (a *Assembler) AcceptHeader(meta map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return
	}
	a.header = meta
}

// AcceptChunk stores one chunk. Duplicate indices overwrite
// (at-least-once redelivery carries identical payloads) and raise the
// declared total to the running maximum. A negative index is rejected
// with a ChunkError; the caller reports it and continues.
func (a *Assembler) AcceptChunk(index, declaredTotal int, payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return nil
	}

	if index < 0 {
		return &ChunkError{Index: index, Reason: "negative index"}
	}

	newBytes := a.bytes + int64(len(payload))
	if prev, exists := a.chunks[index]; exists {
		a.duplicates++
		newBytes -= int64(len(prev))
	}
	if newBytes > MaxDumpSize {
		return &ChunkError{Index: index, Reason: "dump exceeds size cap"}
	}

	a.chunks[index] = payload
	a.bytes = newBytes
	if declaredTotal > a.totalDeclared {
		a.totalDeclared = declaredTotal
	}

	return nil
}

// AcceptComplete records the device-asserted final size. It never gates
// completeness and never lowers the declared chunk count.
func (a *Assembler) AcceptComplete(p *types.CompletePayload) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return
	}
	a.completion = p
}

// Finalize freezes the assembler. Further Accept calls are ignored;
// the owning session keeps auditing late messages elsewhere.
func (a *Assembler) Finalize() {
	a.mu.Lock()
	a.finalized = true
	a.mu.Unlock()
}

// Complete returns true iff at least one chunk count was declared and
// every index in [0, total) is present.
func (a *Assembler) Complete() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.completeLocked()
}

func (a *Assembler) completeLocked() bool {
	if a.totalDeclared == 0 {
		return false
	}
	for i := range a.totalDeclared {
		if _, ok := a.chunks[i]; !ok {
			return false
		}
	}
	return true
}

// Missing returns the ordered indices in [0, total) absent from the
// chunk map. Diagnostic only.
func (a *Assembler) Missing() []int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.missingLocked()
}

func (a *Assembler) missingLocked() []int {
	var missing []int
	for i := range a.totalDeclared {
		if _, ok := a.chunks[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// Materialize concatenates chunks in index order. This is the sole
// place ordering is enforced; arrival order is never assumed. Returns
// an IncompleteError listing missing indices when gaps remain.
func (a *Assembler) Materialize() ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.completeLocked() {
		return nil, &IncompleteError{
			Received: len(a.chunks),
			Declared: a.totalDeclared,
			Missing:  a.missingLocked(),
		}
	}

	out := make([]byte, 0, a.bytes)
	for i := range a.totalDeclared {
		out = append(out, a.chunks[i]...)
	}
	return out, nil
}

// Header returns the stored transfer metadata, or nil if none arrived.
func (a *Assembler) Header() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.header
}

// Completion returns the device-asserted completion summary if one
// arrived.
func (a *Assembler) Completion() (*types.CompletePayload, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.completion, a.completion != nil
}

// TotalDeclared returns the running-max declared chunk count.
func (a *Assembler) TotalDeclared() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.totalDeclared
}

// Received returns the number of distinct chunk indices stored.
func (a *Assembler) Received() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.chunks)
}

// Stats holds chunk accumulation statistics.
type Stats struct {
	ChunksStored int64
	Duplicates   int64
	Bytes        int64
}

// Stats returns accumulation statistics for reporting.
func (a *Assembler) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Stats{
		ChunksStored: int64(len(a.chunks)),
		Duplicates:   a.duplicates,
		Bytes:        a.bytes,
	}
}
