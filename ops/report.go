package ops

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/opengrid-io/fleetkit/adapter"
	"github.com/opengrid-io/fleetkit/coredump"
	"github.com/opengrid-io/fleetkit/metrics"
	"github.com/opengrid-io/fleetkit/types"
)

// Report is the structured JSON report written by --report. Scripts
// parse it, so field names are a contract.
type Report struct {
	OpID       string              `json:"op_id"`
	Op         string              `json:"op"`
	Device     string              `json:"device,omitempty"`
	Outcome    types.OutcomeStatus `json:"outcome"`
	Message    string              `json:"message"`
	DeviceText string              `json:"device_text,omitempty"`
	State      types.SessionState  `json:"state,omitempty"`
	ExitCode   int                 `json:"exit_code"`
	DurationMs int64               `json:"duration_ms"`
	Messages   int64               `json:"messages"`

	Transfer *ReportTransfer   `json:"transfer,omitempty"`
	Artifact *ReportArtifact   `json:"artifact,omitempty"`
	Progress *ReportProgress   `json:"progress,omitempty"`
	Devices  []ReportSighting  `json:"devices,omitempty"`
	Metrics  *metrics.Snapshot `json:"metrics,omitempty"`
}

// ReportTransfer holds reassembly stats in the report.
type ReportTransfer struct {
	ChunksReceived int   `json:"chunks_received"`
	ChunksDeclared int   `json:"chunks_declared"`
	Bytes          int64 `json:"bytes"`
	Duplicates     int64 `json:"duplicates"`
	// Missing renders absent indices as compact ranges, "none" when
	// nothing is missing.
	Missing string `json:"missing"`
}

// ReportArtifact holds written artifact paths in the report.
type ReportArtifact struct {
	BinPath    string `json:"bin_path"`
	HeaderPath string `json:"header_path,omitempty"`
	Archive    string `json:"archive,omitempty"`
}

// ReportProgress holds firmware transfer estimates in the report.
type ReportProgress struct {
	TotalBytes       int64 `json:"total_bytes"`
	DurationMs       int64 `json:"duration_ms"`
	AvgThroughputBps int64 `json:"avg_throughput_bps"`
	Samples          int   `json:"samples"`
}

// ReportSighting is one discovered device in the report.
type ReportSighting struct {
	Device    string `json:"device"`
	FirstSeen string `json:"first_seen"`
}

// BuildReport composes a Report from a result and a metrics snapshot.
// The exitCode is the process exit code the caller will return.
func BuildReport(result *Result, snap metrics.Snapshot, exitCode int) *Report {
	report := &Report{
		OpID:       result.Meta.OpID,
		Op:         result.Meta.Op,
		Device:     result.Device,
		State:      result.State,
		ExitCode:   exitCode,
		DurationMs: result.Duration.Milliseconds(),
		Messages:   result.Messages,
		Metrics:    &snap,
	}

	if result.Outcome != nil {
		report.Outcome = result.Outcome.Status
		report.Message = result.Outcome.Message
		if result.Outcome.DeviceText != nil {
			report.DeviceText = *result.Outcome.DeviceText
		}
	}
	if t := result.Transfer; t != nil {
		report.Transfer = &ReportTransfer{
			ChunksReceived: t.ChunksReceived,
			ChunksDeclared: t.ChunksDeclared,
			Bytes:          t.Bytes,
			Duplicates:     t.Duplicates,
			Missing:        coredump.FormatIndexRanges(t.Missing),
		}
	}
	if a := result.Artifact; a != nil {
		report.Artifact = &ReportArtifact{
			BinPath:    a.BinPath,
			HeaderPath: a.HeaderPath,
			Archive:    a.Archive,
		}
	}
	if p := result.Progress; p != nil {
		report.Progress = &ReportProgress{
			TotalBytes:       int64(p.TotalBytes),
			DurationMs:       p.Duration.Milliseconds(),
			AvgThroughputBps: int64(p.AvgThroughput),
			Samples:          p.Samples,
		}
	}
	for _, s := range result.Devices {
		report.Devices = append(report.Devices, ReportSighting{
			Device:    s.Device,
			FirstSeen: s.FirstSeen.UTC().Format(time.RFC3339),
		})
	}

	return report
}

// WriteReport writes the report as JSON to the given path. "-" writes
// to stderr so stdout stays clean for rendered output.
func WriteReport(report *Report, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		if _, err := os.Stderr.Write(data); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

// writeReportTo writes report JSON to any writer (for testing).
func writeReportTo(report *Report, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// CompletionEvent converts a result to the downstream notification
// payload.
func CompletionEvent(result *Result) *adapter.OperationCompletedEvent {
	event := &adapter.OperationCompletedEvent{
		SchemaVersion: adapter.SchemaVersion,
		EventType:     adapter.EventTypeOperationCompleted,
		OpID:          result.Meta.OpID,
		Op:            result.Meta.Op,
		Device:        result.Device,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		DurationMs:    result.Duration.Milliseconds(),
	}
	if result.Outcome != nil {
		event.Outcome = string(result.Outcome.Status)
		event.Message = result.Outcome.Message
	}
	if t := result.Transfer; t != nil {
		event.ChunksReceived = t.ChunksReceived
		event.ChunksDeclared = t.ChunksDeclared
	}
	if a := result.Artifact; a != nil {
		event.ArtifactPath = a.BinPath
		event.ArchiveLocation = a.Archive
	}
	return event
}
