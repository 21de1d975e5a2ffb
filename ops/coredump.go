package ops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opengrid-io/fleetkit/archive"
	"github.com/opengrid-io/fleetkit/coredump"
	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/metrics"
	"github.com/opengrid-io/fleetkit/route"
	"github.com/opengrid-io/fleetkit/session"
	"github.com/opengrid-io/fleetkit/transcript"
	"github.com/opengrid-io/fleetkit/transport"
	"github.com/opengrid-io/fleetkit/types"
)

// CoredumpConfig configures a dump retrieval.
type CoredumpConfig struct {
	// Client is the broker connection. Must already be connected.
	Client transport.Client
	// Namespace is the topic namespace. Empty means
	// route.DefaultNamespace.
	Namespace string
	// Device is the target device identifier. Required: the request
	// command is addressed to one device. Use Listen for passive
	// capture across the namespace.
	Device string
	// Timeout bounds the wait for a verdict. Zero means
	// DefaultCoredumpTimeout.
	Timeout time.Duration
	// OutputPath is the dump destination. Empty derives
	// coredump_<device>.bin.
	OutputPath string
	// TranscriptPath captures raw traffic when non-empty.
	TranscriptPath string
	// Store archives the dump after a successful transfer. Optional.
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

// FetchCoredump requests a crash dump from one device and waits for a
// verdict: a fully reconstructed transfer, a device-reported failure,
// or the deadline.
func FetchCoredump(ctx context.Context, cfg *CoredumpConfig) (*Result, error) {
	if err := cfg.Meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid operation metadata: %w", err)
	}
	if cfg.Device == "" {
		return nil, errors.New("coredump requires a target device")
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = route.DefaultNamespace
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultCoredumpTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger(cfg.Meta)
	}

	asm := coredump.NewAssembler()
	sess := session.New(session.Config{
		Capability: types.CapabilityCoredump,
		Rules:      session.RulesFor(types.CapabilityCoredump),
		Target:     cfg.Device,
		Timeout:    timeout,
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
		Recorder:  recorder,
		Logger:    logger,
		Collector: cfg.Collector,
		QueueSize: cfg.QueueSize,
		Tick:      tickFor(timeout),
	})

	filters := coredumpFilters(ns, cfg.Device)
	if err := subscribeAll(ctx, cfg.Client, filters, pump.Enqueue); err != nil {
		return nil, err
	}
	defer unsubscribeQuiet(ctx, cfg.Client, filters, logger)

	start := time.Now()
	if err := publishCommand(ctx, cfg.Client, commandTopic(ns, cfg.Device), []byte("coredump"), logger, cfg.Collector); err != nil {
		return nil, err
	}
	sess.Start(start)

	if err := pump.Run(ctx); err != nil {
		return nil, fmt.Errorf("operation aborted: %w", err)
	}

	stats := asm.Stats()
	cfg.Collector.AbsorbAssemblerStats(stats.ChunksStored, stats.Duplicates, stats.Bytes)

	outcome, _ := sess.Outcome()
	result := &Result{
		Meta:     cfg.Meta,
		Device:   cfg.Device,
		Outcome:  &outcome,
		State:    sess.State(),
		Duration: time.Since(start),
		Messages: pump.Processed(),
		Transfer: transferReport(asm),
	}

	if sess.State() == types.StateSucceeded && !sess.Vacuous() {
		outPath := cfg.OutputPath
		if outPath == "" {
			outPath = DefaultOutputPath(cfg.Device, start)
		}
		artifact, err := persistDump(ctx, asm, outPath, cfg.Store, logger, cfg.Collector)
		if err != nil {
			return result, fmt.Errorf("persist dump: %w", err)
		}
		result.Artifact = artifact
	}

	return result, nil
}

// closeTranscript flushes the recorder at operation end. Write errors
// surface per-message in the pump; close failures only cost the tail.
func closeTranscript(r *transcript.Recorder, path string, logger *log.Logger) {
	if err := r.Close(); err != nil {
		logger.Warn("transcript close failed", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
		return
	}
	logger.Info("transcript recorded", map[string]any{
		"path":     path,
		"messages": r.Count(),
	})
}
