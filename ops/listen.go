package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/opengrid-io/fleetkit/archive"
	"github.com/opengrid-io/fleetkit/coredump"
	"github.com/opengrid-io/fleetkit/discovery"
	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/metrics"
	"github.com/opengrid-io/fleetkit/route"
	"github.com/opengrid-io/fleetkit/session"
	"github.com/opengrid-io/fleetkit/transcript"
	"github.com/opengrid-io/fleetkit/transport"
	"github.com/opengrid-io/fleetkit/types"
)

// ListenConfig configures a passive capture.
type ListenConfig struct {
	// Client is the broker connection. Must already be connected.
	Client transport.Client
	// Namespace is the topic namespace. Empty means
	// route.DefaultNamespace.
	Namespace string
	// Device narrows the capture to one device. Empty watches the
	// whole namespace; the first device that starts a transfer is
	// adopted and others are audited.
	Device string
	// Window bounds the capture. Zero or negative listens until the
	// caller cancels the context.
	Window time.Duration
	// OutputPath is the dump destination when the capture holds a
	// reconstructable transfer. Empty derives a name from the adopted
	// device.
	OutputPath string
	// TranscriptPath captures raw traffic when non-empty.
	TranscriptPath string
	// Store archives a reconstructed dump. Optional.
	Store archive.Store
	// Meta is the operation identity.
	Meta *types.OpMeta
	// Logger receives operation entries. Nil derives one from Meta.
	Logger *log.Logger
	// Collector is optional; nil disables counting.
	Collector *metrics.Collector
	// QueueSize overrides the delivery queue capacity.
	QueueSize int
}

// Listen watches a namespace without publishing anything. Devices act
// on their own schedule; Listen records what they say and, when the
// traffic carries a coredump transfer, reconstructs it under the usual
// verdict rules. Ending a capture is not an error: cancelling the
// context or letting the window lapse resolves to whatever was heard.
func Listen(ctx context.Context, cfg *ListenConfig) (*Result, error) {
	if err := cfg.Meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid operation metadata: %w", err)
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = route.DefaultNamespace
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger(cfg.Meta)
	}

	asm := coredump.NewAssembler()
	registry := discovery.NewRegistry()
	sess := session.New(session.Config{
		Capability: types.CapabilityCoredump,
		Rules:      session.RulesFor(types.CapabilityCoredump),
		Target:     cfg.Device,
		Timeout:    cfg.Window,
		Logger:     logger,
		Assembler:  asm,
		Collector:  cfg.Collector,
	})

	var recorder *transcript.Recorder
	if cfg.TranscriptPath != "" {
		var err error
		recorder, err = transcript.Create(cfg.TranscriptPath, cfg.Meta.OpID, ns)
		if err != nil {
			return nil, fmt.Errorf("create transcript: %w", err)
		}
		defer closeTranscript(recorder, cfg.TranscriptPath, logger)
	}

	pump := NewPump(PumpConfig{
		Router:    route.NewRouter(ns),
		Session:   sess,
		Registry:  registry,
		Recorder:  recorder,
		Logger:    logger,
		Collector: cfg.Collector,
		QueueSize: cfg.QueueSize,
		Tick:      tickFor(cfg.Window),
	})

	filters := []string{captureFilter(ns, cfg.Device)}
	if err := subscribeAll(ctx, cfg.Client, filters, pump.Enqueue); err != nil {
		return nil, err
	}
	defer unsubscribeQuiet(ctx, cfg.Client, filters, logger)

	start := time.Now()
	sess.Start(start)
	logger.Info("capture started", map[string]any{
		"filter": filters[0],
		"window": cfg.Window.String(),
	})

	// The pump ends on a verdict, the window deadline, or context
	// cancellation. For a capture the last is the off switch, not a
	// failure.
	if err := pump.Run(ctx); err != nil {
		logger.Info("capture stopped", map[string]any{"reason": err.Error()})
	}

	stats := asm.Stats()
	cfg.Collector.AbsorbAssemblerStats(stats.ChunksStored, stats.Duplicates, stats.Bytes)

	result := &Result{
		Meta:     cfg.Meta,
		Device:   sess.Target(),
		State:    sess.State(),
		Duration: time.Since(start),
		Messages: pump.Processed(),
		Transfer: transferReport(asm),
		Devices:  registry.Devices(),
	}

	outPath := cfg.OutputPath
	if outPath == "" {
		outPath = DefaultOutputPath(sess.Target(), start)
	}

	switch sess.State() {
	case types.StateSucceeded:
		outcome, _ := sess.Outcome()
		result.Outcome = &outcome
		if !sess.Vacuous() {
			artifact, err := persistDump(ctx, asm, outPath, cfg.Store, logger, cfg.Collector)
			if err != nil {
				return result, fmt.Errorf("persist dump: %w", err)
			}
			result.Artifact = artifact
		}
	case types.StateFailed:
		outcome, _ := sess.Outcome()
		result.Outcome = &outcome
	default:
		// Window lapsed or the caller stopped listening before any
		// verdict. Judge the capture by what it holds.
		switch {
		case asm.Received() == 0 && asm.TotalDeclared() == 0:
			result.Outcome = &types.Outcome{
				Status: types.OutcomeSuccess,
				Message: fmt.Sprintf("capture ended: %d messages from %d devices, no transfer observed",
					pump.Processed(), registry.Count()),
			}
		case asm.Complete():
			result.Outcome = &types.Outcome{
				Status: types.OutcomeSuccess,
				Message: fmt.Sprintf("capture holds a full transfer of %d chunks; no completion notice was heard",
					asm.Received()),
			}
			artifact, err := persistDump(ctx, asm, outPath, cfg.Store, logger, cfg.Collector)
			if err != nil {
				return result, fmt.Errorf("persist dump: %w", err)
			}
			result.Artifact = artifact
		default:
			result.Outcome = &types.Outcome{
				Status: types.OutcomeIncomplete,
				Message: fmt.Sprintf("capture ended mid-transfer: %d/%d chunks, missing %s",
					asm.Received(), asm.TotalDeclared(), coredump.FormatIndexRanges(asm.Missing())),
			}
		}
	}

	return result, nil
}

// captureFilter widens the subscription to everything a device (or the
// namespace) says, commands included, so transcripts replay faithfully.
func captureFilter(ns, device string) string {
	if device == "" {
		return ns + "/#"
	}
	return ns + "/" + device + "/#"
}
