package ops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opengrid-io/fleetkit/coredump"
	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/metrics"
	"github.com/opengrid-io/fleetkit/route"
	"github.com/opengrid-io/fleetkit/session"
	"github.com/opengrid-io/fleetkit/transport"
	"github.com/opengrid-io/fleetkit/types"
)

// RestartConfig configures a remote restart.
type RestartConfig struct {
	// Client is the broker connection. Must already be connected.
	Client transport.Client
	// Namespace is the topic namespace. Empty means
	// route.DefaultNamespace.
	Namespace string
	// Device is the target device identifier. Required.
	Device string
	// Timeout bounds the wait for confirmation. Zero means
	// DefaultRestartTimeout.
	Timeout time.Duration
	// Meta is the operation identity.
	Meta *types.OpMeta
	// Logger receives operation entries. Nil derives one from Meta.
	Logger *log.Logger
	// Collector is optional; nil disables counting.
	Collector *metrics.Collector
	// QueueSize overrides the delivery queue capacity.
	QueueSize int
}

// Restart sends a restart command to one device and waits for it to
// acknowledge over its status stream.
func Restart(ctx context.Context, cfg *RestartConfig) (*Result, error) {
	if err := cfg.Meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid operation metadata: %w", err)
	}
	if cfg.Device == "" {
		return nil, errors.New("restart requires a target device")
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = route.DefaultNamespace
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRestartTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger(cfg.Meta)
	}

	sess := session.New(session.Config{
		Capability: types.CapabilityRestart,
		Rules:      session.RulesFor(types.CapabilityRestart),
		Target:     cfg.Device,
		Timeout:    timeout,
		Logger:     logger,
		Assembler:  coredump.NewAssembler(),
		Collector:  cfg.Collector,
	})

	pump := NewPump(PumpConfig{
		Router:    route.NewRouter(ns),
		Session:   sess,
		Logger:    logger,
		Collector: cfg.Collector,
		QueueSize: cfg.QueueSize,
		Tick:      tickFor(timeout),
	})

	filters := statusFilters(ns, cfg.Device)
	if err := subscribeAll(ctx, cfg.Client, filters, pump.Enqueue); err != nil {
		return nil, err
	}
	defer unsubscribeQuiet(ctx, cfg.Client, filters, logger)

	start := time.Now()
	if err := publishCommand(ctx, cfg.Client, commandTopic(ns, cfg.Device), []byte("restart"), logger, cfg.Collector); err != nil {
		return nil, err
	}
	sess.Start(start)

	if err := pump.Run(ctx); err != nil {
		return nil, fmt.Errorf("operation aborted: %w", err)
	}

	outcome, _ := sess.Outcome()
	return &Result{
		Meta:     cfg.Meta,
		Device:   cfg.Device,
		Outcome:  &outcome,
		State:    sess.State(),
		Duration: time.Since(start),
		Messages: pump.Processed(),
	}, nil
}
