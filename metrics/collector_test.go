package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("coredump", "op-001", "a0b1c2d3e4f5")

	c.IncMessageReceived()
	c.IncMessageReceived()
	c.IncMessageDropped()
	c.IncParseError()
	c.IncParseError()
	c.IncParseError()
	c.IncInvalidChunk()
	c.IncPublishSuccess()
	c.IncPublishSuccess()
	c.IncPublishFailure()
	c.IncArchiveWriteSuccess()
	c.IncArchiveWriteFailure()

	s := c.Snapshot()

	if s.MessagesReceived != 2 {
		t.Errorf("MessagesReceived = %d, want 2", s.MessagesReceived)
	}
	if s.MessagesDropped != 1 {
		t.Errorf("MessagesDropped = %d, want 1", s.MessagesDropped)
	}
	if s.ParseErrors != 3 {
		t.Errorf("ParseErrors = %d, want 3", s.ParseErrors)
	}
	if s.InvalidChunks != 1 {
		t.Errorf("InvalidChunks = %d, want 1", s.InvalidChunks)
	}
	if s.PublishSuccess != 2 {
		t.Errorf("PublishSuccess = %d, want 2", s.PublishSuccess)
	}
	if s.PublishFailure != 1 {
		t.Errorf("PublishFailure = %d, want 1", s.PublishFailure)
	}
	if s.ArchiveWriteSuccess != 1 {
		t.Errorf("ArchiveWriteSuccess = %d, want 1", s.ArchiveWriteSuccess)
	}
	if s.ArchiveWriteFailure != 1 {
		t.Errorf("ArchiveWriteFailure = %d, want 1", s.ArchiveWriteFailure)
	}
}

func TestCollector_Dimensions(t *testing.T) {
	c := NewCollector("ota", "op-42", "")
	s := c.Snapshot()

	if s.Op != "ota" {
		t.Errorf("Op = %q, want %q", s.Op, "ota")
	}
	if s.OpID != "op-42" {
		t.Errorf("OpID = %q, want %q", s.OpID, "op-42")
	}
	if s.Device != "" {
		t.Errorf("Device = %q, want empty", s.Device)
	}
}

func TestCollector_ObserveKind(t *testing.T) {
	c := NewCollector("coredump", "op-001", "")

	c.ObserveKind("chunk")
	c.ObserveKind("chunk")
	c.ObserveKind("status")

	s := c.Snapshot()
	if len(s.ByKind) != 2 {
		t.Errorf("ByKind has %d entries, want 2", len(s.ByKind))
	}
	if s.ByKind["chunk"] != 2 {
		t.Errorf("ByKind[chunk] = %d, want 2", s.ByKind["chunk"])
	}
	if s.ByKind["status"] != 1 {
		t.Errorf("ByKind[status] = %d, want 1", s.ByKind["status"])
	}
}

func TestCollector_AbsorbAssemblerStats(t *testing.T) {
	c := NewCollector("coredump", "op-001", "a0b1c2d3e4f5")

	c.AbsorbAssemblerStats(37, 4, 37*1024)

	s := c.Snapshot()
	if s.ChunksStored != 37 {
		t.Errorf("ChunksStored = %d, want 37", s.ChunksStored)
	}
	if s.ChunkDuplicates != 4 {
		t.Errorf("ChunkDuplicates = %d, want 4", s.ChunkDuplicates)
	}
	if s.ChunkBytes != 37*1024 {
		t.Errorf("ChunkBytes = %d, want %d", s.ChunkBytes, 37*1024)
	}
}

func TestCollector_SnapshotImmutability(t *testing.T) {
	c := NewCollector("coredump", "op-001", "")
	c.IncMessageReceived()
	c.ObserveKind("status")

	s1 := c.Snapshot()

	// Mutate collector after snapshot
	c.IncMessageReceived()
	c.ObserveKind("status")
	c.ObserveKind("error")

	// s1 should be unchanged
	if s1.MessagesReceived != 1 {
		t.Errorf("s1.MessagesReceived = %d, want 1 (snapshot should be frozen)", s1.MessagesReceived)
	}
	if s1.ByKind["status"] != 1 {
		t.Errorf("s1.ByKind[status] = %d, want 1 (snapshot should be frozen)", s1.ByKind["status"])
	}

	// New snapshot should reflect mutations
	s2 := c.Snapshot()
	if s2.MessagesReceived != 2 {
		t.Errorf("s2.MessagesReceived = %d, want 2", s2.MessagesReceived)
	}
	if s2.ByKind["error"] != 1 {
		t.Errorf("s2.ByKind[error] = %d, want 1", s2.ByKind["error"])
	}
}

func TestCollector_SnapshotByKindIsolation(t *testing.T) {
	c := NewCollector("coredump", "op-001", "")
	c.ObserveKind("chunk")

	s := c.Snapshot()

	// Mutate the snapshot's map
	s.ByKind["chunk"] = 999
	s.ByKind["injected"] = 1

	// Collector should be unaffected
	s2 := c.Snapshot()
	if s2.ByKind["chunk"] != 1 {
		t.Errorf("ByKind[chunk] = %d, want 1 (collector should be isolated from snapshot mutation)", s2.ByKind["chunk"])
	}
	if _, exists := s2.ByKind["injected"]; exists {
		t.Error("ByKind should not contain injected key from snapshot mutation")
	}
}

func TestCollector_NilReceiverSafety(t *testing.T) {
	var c *Collector

	// None of these should panic
	c.IncMessageReceived()
	c.IncMessageDropped()
	c.IncParseError()
	c.IncInvalidChunk()
	c.ObserveKind("chunk")
	c.IncPublishSuccess()
	c.IncPublishFailure()
	c.IncArchiveWriteSuccess()
	c.IncArchiveWriteFailure()
	c.AbsorbAssemblerStats(10, 2, 1024)

	s := c.Snapshot()
	if s.MessagesReceived != 0 {
		t.Errorf("nil collector snapshot MessagesReceived = %d, want 0", s.MessagesReceived)
	}
	if s.ByKind != nil {
		t.Errorf("nil collector snapshot ByKind should be nil, got %v", s.ByKind)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("coredump", "op-001", "")
	const goroutines = 10
	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				c.IncMessageReceived()
				c.ObserveKind("chunk")
				c.IncPublishSuccess()
			}
		}()
	}

	wg.Wait()

	s := c.Snapshot()
	want := int64(goroutines * iterations)

	if s.MessagesReceived != want {
		t.Errorf("MessagesReceived = %d, want %d", s.MessagesReceived, want)
	}
	if s.ByKind["chunk"] != want {
		t.Errorf("ByKind[chunk] = %d, want %d", s.ByKind["chunk"], want)
	}
	if s.PublishSuccess != want {
		t.Errorf("PublishSuccess = %d, want %d", s.PublishSuccess, want)
	}
}
