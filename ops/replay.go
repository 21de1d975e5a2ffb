package ops

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/opengrid-io/fleetkit/archive"
	"github.com/opengrid-io/fleetkit/coredump"
	"github.com/opengrid-io/fleetkit/discovery"
	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/metrics"
	"github.com/opengrid-io/fleetkit/route"
	"github.com/opengrid-io/fleetkit/session"
	"github.com/opengrid-io/fleetkit/transcript"
	"github.com/opengrid-io/fleetkit/types"
)

// ReplayConfig configures a transcript replay.
type ReplayConfig struct {
	// TranscriptPath is the transcript file to replay.
	TranscriptPath string
	// Capability selects the verdict rules. Empty means coredump.
	Capability types.Capability
	// Device narrows the session to one device. Empty replays in
	// broadcast mode, adopting the first device that qualifies.
	Device string
	// Timeout bounds the replayed operation on the recorded clock.
	// Zero means the capability default.
	Timeout time.Duration
	// OutputPath is the dump destination on success. Empty derives a
	// name from the adopted device.
	OutputPath string
	// Store archives a reconstructed dump. Optional.
	Store archive.Store
	// Meta is the operation identity.
	Meta *types.OpMeta
	// Logger receives operation entries. Nil derives one from Meta.
	Logger *log.Logger
	// Collector is optional; nil disables counting.
	Collector *metrics.Collector
}

// Replay feeds a recorded transcript through the same classify and
// session machinery a live operation uses, clocked by the recorded
// timestamps instead of the wall. The same transcript and timeout
// always reach the same verdict. No broker is involved.
func Replay(ctx context.Context, cfg *ReplayConfig) (*Result, error) {
	if err := cfg.Meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid operation metadata: %w", err)
	}

	capability := cfg.Capability
	if capability == "" {
		capability = types.CapabilityCoredump
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeoutFor(capability)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger(cfg.Meta)
	}

	f, err := os.Open(cfg.TranscriptPath)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	reader := transcript.NewReader(f)
	header, err := reader.Header()
	if err != nil {
		return nil, fmt.Errorf("read transcript header: %w", err)
	}

	asm := coredump.NewAssembler()
	registry := discovery.NewRegistry()
	sess := session.New(session.Config{
		Capability: capability,
		Rules:      session.RulesFor(capability),
		Target:     cfg.Device,
		Timeout:    timeout,
		Logger:     logger,
		Assembler:  asm,
		Collector:  cfg.Collector,
	})
	pump := NewPump(PumpConfig{
		Router:    route.NewRouter(header.Namespace),
		Session:   sess,
		Registry:  registry,
		Logger:    logger,
		Collector: cfg.Collector,
	})

	start := header.RecordedAt
	deadline := start.Add(timeout)
	sess.Start(start)
	logger.Info("replay started", map[string]any{
		"path":        cfg.TranscriptPath,
		"namespace":   header.Namespace,
		"recorded_at": start.Format(time.RFC3339),
		"recorded_op": header.OpID,
	})

	end := start
	for !sess.Terminal() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := reader.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			if transcript.IsTruncated(err) {
				logger.Warn("transcript truncated, replaying captured prefix", map[string]any{
					"messages": pump.Processed(),
				})
				break
			}
			return nil, fmt.Errorf("read transcript: %w", err)
		}

		// The live pump polls the deadline between deliveries. A record
		// stamped past it means the deadline fired first; inject it at
		// the recorded instant so the session expires identically.
		if rec.ReceivedAt.After(deadline) {
			sess.Handle(types.Event{Kind: types.EventDeadline, ReceivedAt: deadline})
			continue
		}

		if rec.ReceivedAt.After(end) {
			end = rec.ReceivedAt
		}
		cfg.Collector.IncMessageReceived()
		pump.process(rec.RawMessage())
	}

	// A transcript shorter than the timeout still ends the operation:
	// with no verdict on record the live session would have expired.
	if !sess.Terminal() {
		sess.Handle(types.Event{Kind: types.EventDeadline, ReceivedAt: deadline})
	}

	stats := asm.Stats()
	cfg.Collector.AbsorbAssemblerStats(stats.ChunksStored, stats.Duplicates, stats.Bytes)

	if sess.State() == types.StateTimedOut {
		end = deadline
	}

	outcome, _ := sess.Outcome()
	result := &Result{
		Meta:     cfg.Meta,
		Device:   sess.Target(),
		Outcome:  &outcome,
		State:    sess.State(),
		Duration: end.Sub(start),
		Messages: pump.Processed(),
		Transfer: transferReport(asm),
		Devices:  registry.Devices(),
	}

	if sess.State() == types.StateSucceeded && !sess.Vacuous() {
		outPath := cfg.OutputPath
		if outPath == "" {
			outPath = DefaultOutputPath(sess.Target(), start)
		}
		artifact, err := persistDump(ctx, asm, outPath, cfg.Store, logger, cfg.Collector)
		if err != nil {
			return result, fmt.Errorf("persist dump: %w", err)
		}
		result.Artifact = artifact
	}

	return result, nil
}

// defaultTimeoutFor maps a capability to its operation default.
func defaultTimeoutFor(c types.Capability) time.Duration {
	switch c {
	case types.CapabilityOTA:
		return DefaultOTATimeout
	case types.CapabilityRestart:
		return DefaultRestartTimeout
	default:
		return DefaultCoredumpTimeout
	}
}
