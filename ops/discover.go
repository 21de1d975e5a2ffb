package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/opengrid-io/fleetkit/discovery"
	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/metrics"
	"github.com/opengrid-io/fleetkit/route"
	"github.com/opengrid-io/fleetkit/transport"
	"github.com/opengrid-io/fleetkit/types"
)

// DiscoverConfig configures a device census.
type DiscoverConfig struct {
	// Client is the broker connection. Must already be connected.
	Client transport.Client
	// Namespace is the topic namespace. Empty means
	// route.DefaultNamespace.
	Namespace string
	// Window bounds the census. Zero means DefaultDiscoveryWindow.
	Window time.Duration
	// StopEarly ends the window at the first sighting.
	StopEarly bool
	// Meta is the operation identity.
	Meta *types.OpMeta
	// Logger receives operation entries. Nil derives one from Meta.
	Logger *log.Logger
	// Collector is optional; nil disables counting.
	Collector *metrics.Collector
	// QueueSize overrides the delivery queue capacity.
	QueueSize int
}

// Discover listens to namespace telemetry for a bounded window and
// returns the devices sighted, in arrival order. Devices identify
// themselves purely by publishing measurements; nothing is sent.
func Discover(ctx context.Context, cfg *DiscoverConfig) (*Result, error) {
	if err := cfg.Meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid operation metadata: %w", err)
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = route.DefaultNamespace
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultDiscoveryWindow
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger(cfg.Meta)
	}

	registry := discovery.NewRegistry()
	pump := NewPump(PumpConfig{
		Router:    route.NewRouter(ns),
		Registry:  registry,
		Logger:    logger,
		Collector: cfg.Collector,
		QueueSize: cfg.QueueSize,
	})

	filters := []string{ns + "/+/measurement"}
	if err := subscribeAll(ctx, cfg.Client, filters, pump.Enqueue); err != nil {
		return nil, err
	}
	defer unsubscribeQuiet(ctx, cfg.Client, filters, logger)

	logger.Info("discovering devices", map[string]any{
		"window":     window.String(),
		"stop_early": cfg.StopEarly,
	})

	start := time.Now()
	pumpCtx, stopPump := context.WithCancel(ctx)
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		_ = pump.Run(pumpCtx)
	}()

	waitErr := registry.Wait(ctx, window, cfg.StopEarly)
	stopPump()
	<-pumpDone

	if waitErr != nil {
		return nil, fmt.Errorf("discovery aborted: %w", waitErr)
	}

	devices := registry.Devices()
	logger.Info("discovery complete", map[string]any{
		"devices": len(devices),
	})

	return &Result{
		Meta: cfg.Meta,
		Outcome: &types.Outcome{
			Status:  types.OutcomeSuccess,
			Message: fmt.Sprintf("%d devices discovered in %s", len(devices), time.Since(start).Round(time.Millisecond)),
		},
		Duration: time.Since(start),
		Messages: pump.Processed(),
		Devices:  devices,
	}, nil
}
