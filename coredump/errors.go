package coredump

import (
	"errors"
	"fmt"
)

// ChunkError reports a chunk the assembler refused to store. The chunk
// is dropped; the transfer continues.
type ChunkError struct {
	// Index is the offending chunk index as received.
	Index int
	// Reason describes why the chunk was rejected.
	Reason string
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("invalid chunk %d: %s", e.Index, e.Reason)
}

// IsChunkError returns true if the error is a rejected chunk.
func IsChunkError(err error) bool {
	var chunkErr *ChunkError
	return errors.As(err, &chunkErr)
}

// IncompleteError reports a materialization attempt on a transfer with
// chunk gaps. Missing lists every absent index in [0, Declared).
type IncompleteError struct {
	// Received is the number of distinct chunk indices stored.
	Received int
	// Declared is the running-max declared chunk count.
	Declared int
	// Missing is the ordered list of absent indices.
	Missing []int
}

func (e *IncompleteError) Error() string {
	if e.Declared == 0 {
		return "incomplete transfer: no chunks declared"
	}
	return fmt.Sprintf("incomplete transfer: %d/%d chunks, missing %s",
		e.Received, e.Declared, FormatIndexRanges(e.Missing))
}

// IsIncompleteError returns true if the error is an incomplete transfer.
func IsIncompleteError(err error) bool {
	var incErr *IncompleteError
	return errors.As(err, &incErr)
}
