package types

// Device-side JSON payload shapes. The router parses leniently into
// maps and coerces fields; these structs are the producing side, used
// by the simulator and by tests synthesizing device traffic.

// WireChunk is one coredump chunk as published by a device.
type WireChunk struct {
	Type        string `json:"type"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	Offset      int64  `json:"offset"`
	Size        int    `json:"size"`
	// Data is the chunk body, base64 encoded.
	Data string `json:"data"`
}

// WireChunkType is the type discriminant carried by chunk messages.
const WireChunkType = "core_dump_chunk"

// WireComplete is the end-of-transfer summary as published by a device.
type WireComplete struct {
	Type        string `json:"type"`
	TotalChunks int    `json:"total_chunks"`
	TotalSize   int64  `json:"total_size"`
}

// WireCompleteType is the type discriminant carried by complete messages.
const WireCompleteType = "core_dump_complete"

// WireHeader is the transfer header as published by a device. Fields
// beyond these are preserved by the router; this is the set the
// simulator produces.
type WireHeader struct {
	Timestamp        int64  `json:"timestamp"`
	Type             string `json:"type"`
	PartitionSize    int64  `json:"partition_size"`
	PartitionAddress string `json:"partition_address"`
	ResetReason      string `json:"reset_reason"`
	FirmwareVersion  string `json:"firmware_version"`
	CompileDate      string `json:"compile_date"`
	CompileTime      string `json:"compile_time"`
}

// WireHeaderType is the type discriminant carried by header messages.
const WireHeaderType = "core_dump_start"
