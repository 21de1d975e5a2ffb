// Package ops orchestrates device operations over the transport.
//
// Every operation wires the same delivery pipeline: transport callbacks
// enqueue raw messages into a bounded queue, and a single consumer
// classifies them and feeds the session, estimator, registry, and
// transcript recorder. A ticker injects deadline events into the same
// queue, so session state stays single-writer throughout.
//
// Operations return an error only for infrastructure failures (bad
// configuration, transport, local disk). Device-side verdicts,
// including timeouts and reported failures, live in the Result.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/opengrid-io/fleetkit/archive"
	"github.com/opengrid-io/fleetkit/coredump"
	"github.com/opengrid-io/fleetkit/discovery"
	"github.com/opengrid-io/fleetkit/iox"
	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/metrics"
	"github.com/opengrid-io/fleetkit/progress"
	"github.com/opengrid-io/fleetkit/transport"
	"github.com/opengrid-io/fleetkit/types"
)

// Defaults for operation tuning knobs.
const (
	// DefaultQueueSize bounds the delivery queue.
	DefaultQueueSize = 256
	// DefaultTick is the deadline poll interval.
	DefaultTick = time.Second
	// DefaultCoredumpTimeout bounds a dump retrieval.
	DefaultCoredumpTimeout = 120 * time.Second
	// DefaultOTATimeout bounds a firmware push.
	DefaultOTATimeout = 5 * time.Minute
	// DefaultRestartTimeout bounds the wait for restart confirmation.
	DefaultRestartTimeout = 30 * time.Second
	// DefaultDiscoveryWindow bounds a device census.
	DefaultDiscoveryWindow = 3 * time.Second
)

// Result is the outcome of one operation.
type Result struct {
	// Meta is the operation identity.
	Meta *types.OpMeta
	// Device is the concrete device the operation ended up addressing.
	// Differs from Meta.Device for broadcast capture, where the target
	// is adopted mid-operation. Empty when none was adopted.
	Device string
	// Outcome is the verdict.
	Outcome *types.Outcome
	// State is the session's final lifecycle state. Empty for
	// operations that run no session.
	State types.SessionState
	// Duration spans command publish (or capture start) to verdict.
	Duration time.Duration
	// Messages is the number of broker messages consumed.
	Messages int64

	// Transfer reports chunk accumulation when a transfer was observed.
	Transfer *TransferReport
	// Artifact reports persisted output when a dump was written.
	Artifact *ArtifactReport
	// Progress summarizes OTA progress samples when any were observed.
	Progress *progress.Summary
	// Devices is the telemetry census for discovery and capture
	// operations.
	Devices []discovery.Sighting
}

// TransferReport is the chunk accumulation summary for one transfer.
type TransferReport struct {
	ChunksReceived int
	ChunksDeclared int
	Bytes          int64
	Duplicates     int64
	// Missing holds the absent indices at the end, nil when none.
	Missing []int
}

// ArtifactReport locates persisted dump output.
type ArtifactReport struct {
	// BinPath is the reconstructed dump file.
	BinPath string
	// HeaderPath is the sibling metadata file, empty when the device
	// sent no header.
	HeaderPath string
	// Archive is the remote store location, empty when not archived.
	Archive string
}

// DefaultOutputPath derives the dump filename the way the device tools
// name them: by device when one is known, by capture time otherwise.
func DefaultOutputPath(device string, now time.Time) string {
	if device != "" {
		return fmt.Sprintf("coredump_%s.bin", device)
	}
	return fmt.Sprintf("coredump_%d.bin", now.Unix())
}

// headerSiblingPath derives the metadata filename next to the dump.
func headerSiblingPath(binPath string) string {
	if strings.HasSuffix(binPath, ".bin") {
		return strings.TrimSuffix(binPath, ".bin") + "_header.json"
	}
	return binPath + "_header.json"
}

// statusFilters is the subscription set for one device's verdict text.
func statusFilters(namespace, device string) []string {
	return []string{
		namespace + "/" + device + "/status",
		namespace + "/" + device + "/error",
	}
}

// coredumpFilters adds the transfer topics to the verdict set.
func coredumpFilters(namespace, device string) []string {
	return append(statusFilters(namespace, device),
		namespace+"/"+device+"/coredump/#")
}

// commandTopic is where a device listens for requests.
func commandTopic(namespace, device string) string {
	return namespace + "/" + device + "/command"
}

// subscribeAll registers the handler for every filter, failing on the
// first transport error.
func subscribeAll(ctx context.Context, client transport.Client, filters []string, handler transport.Handler) error {
	for _, f := range filters {
		if err := client.Subscribe(ctx, f, handler); err != nil {
			return err
		}
	}
	return nil
}

// unsubscribeQuiet removes subscriptions after the verdict. Runs on a
// detached context: cleanup still happens when the caller was canceled,
// so shared connections do not keep delivering to a dead pump.
func unsubscribeQuiet(ctx context.Context, client transport.Client, filters []string, logger *log.Logger) {
	unsubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := client.Unsubscribe(unsubCtx, filters...); err != nil {
		logger.Warn("unsubscribe failed", map[string]any{
			"error": err.Error(),
		})
	}
}

// publishCommand sends one command at QoS 1 and counts the outcome.
func publishCommand(ctx context.Context, client transport.Client, topic string, payload []byte, logger *log.Logger, collector *metrics.Collector) error {
	if err := client.Publish(ctx, topic, payload); err != nil {
		collector.IncPublishFailure()
		return err
	}
	collector.IncPublishSuccess()
	logger.Info("command published", map[string]any{
		"topic":   topic,
		"payload": string(payload),
	})
	return nil
}

// tickFor scales the deadline poll interval down for short timeouts,
// keeping verdict latency within a quarter of the timeout.
func tickFor(timeout time.Duration) time.Duration {
	if timeout > 0 && timeout < 4*DefaultTick {
		tick := timeout / 4
		if tick < time.Millisecond {
			tick = time.Millisecond
		}
		return tick
	}
	return DefaultTick
}

// transferReport summarizes the assembler, or nil when no transfer
// traffic arrived at all.
func transferReport(a *coredump.Assembler) *TransferReport {
	stats := a.Stats()
	declared := a.TotalDeclared()
	if stats.ChunksStored == 0 && declared == 0 {
		return nil
	}
	return &TransferReport{
		ChunksReceived: int(stats.ChunksStored),
		ChunksDeclared: declared,
		Bytes:          stats.Bytes,
		Duplicates:     stats.Duplicates,
		Missing:        a.Missing(),
	}
}

// persistDump writes the reconstructed dump and its header metadata,
// then uploads both to the archive store when one is configured.
// Archive failures are reported in logs and metrics only; the local
// copy is the primary output and the verdict never depends on the
// upload.
func persistDump(ctx context.Context, a *coredump.Assembler, outPath string, store archive.Store, logger *log.Logger, collector *metrics.Collector) (*ArtifactReport, error) {
	data, err := a.Materialize()
	if err != nil {
		return nil, err
	}
	if err := iox.WriteFileAtomic(outPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write dump: %w", err)
	}
	logger.Info("dump written", map[string]any{
		"path":  outPath,
		"bytes": len(data),
	})

	report := &ArtifactReport{BinPath: outPath}

	var headerData []byte
	if header := a.Header(); header != nil {
		headerData, err = json.MarshalIndent(header, "", "  ")
		if err != nil {
			return report, fmt.Errorf("encode header metadata: %w", err)
		}
		headerPath := headerSiblingPath(outPath)
		if err := iox.WriteFileAtomic(headerPath, headerData, 0o644); err != nil {
			return report, fmt.Errorf("write header metadata: %w", err)
		}
		report.HeaderPath = headerPath
		logger.Info("header metadata written", map[string]any{
			"path": headerPath,
		})
	}

	if store == nil {
		return report, nil
	}

	binArchived := false
	if err := store.Put(ctx, filepath.Base(outPath), "application/octet-stream", data); err != nil {
		collector.IncArchiveWriteFailure()
		logger.Warn("archive upload failed", map[string]any{
			"name":  filepath.Base(outPath),
			"error": err.Error(),
		})
	} else {
		binArchived = true
		collector.IncArchiveWriteSuccess()
	}
	if headerData != nil {
		if err := store.Put(ctx, filepath.Base(report.HeaderPath), "application/json", headerData); err != nil {
			collector.IncArchiveWriteFailure()
			logger.Warn("archive upload failed", map[string]any{
				"name":  filepath.Base(report.HeaderPath),
				"error": err.Error(),
			})
		} else {
			collector.IncArchiveWriteSuccess()
		}
	}
	if binArchived {
		report.Archive = store.Location()
		logger.Info("dump archived", map[string]any{
			"location": report.Archive,
		})
	}
	return report, nil
}
