package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opengrid-io/fleetkit/coredump"
	"github.com/opengrid-io/fleetkit/firmware"
	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/metrics"
	"github.com/opengrid-io/fleetkit/progress"
	"github.com/opengrid-io/fleetkit/route"
	"github.com/opengrid-io/fleetkit/session"
	"github.com/opengrid-io/fleetkit/transcript"
	"github.com/opengrid-io/fleetkit/transport"
	"github.com/opengrid-io/fleetkit/types"
)

// OTAConfig configures a firmware push.
type OTAConfig struct {
	// Client is the broker connection. Must already be connected.
	Client transport.Client
	// Namespace is the topic namespace. Empty means
	// route.DefaultNamespace.
	Namespace string
	// Device is the target device identifier. Required.
	Device string
	// Timeout bounds the wait for a verdict. Zero means
	// DefaultOTATimeout.
	Timeout time.Duration
	// FirmwarePath is a local image to host over HTTP for the device
	// to fetch. Exactly one of FirmwarePath and FirmwareURL is set.
	FirmwarePath string
	// FirmwareURL advertises an already-hosted image instead of
	// serving FirmwarePath.
	FirmwareURL string
	// FirmwareSize is the image size in bytes for progress estimation
	// when FirmwareURL is used. Ignored when hosting locally; zero
	// leaves byte estimates at zero.
	FirmwareSize int64
	// Port is the firmware host port. Zero means firmware.DefaultPort;
	// negative binds an ephemeral port.
	Port int
	// TranscriptPath captures raw traffic when non-empty.
	TranscriptPath string
	// Meta is the operation identity.
	Meta *types.OpMeta
	// Logger receives operation entries. Nil derives one from Meta.
	Logger *log.Logger
	// Collector is optional; nil disables counting.
	Collector *metrics.Collector
	// QueueSize overrides the delivery queue capacity.
	QueueSize int
}

// PushFirmware instructs one device to update from a firmware URL and
// monitors its status stream until the device confirms, fails, or the
// deadline passes. When given a local image it hosts the file over
// HTTP for the duration of the operation.
func PushFirmware(ctx context.Context, cfg *OTAConfig) (*Result, error) {
	if err := cfg.Meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid operation metadata: %w", err)
	}
	if cfg.Device == "" {
		return nil, errors.New("ota requires a target device")
	}
	if (cfg.FirmwarePath == "") == (cfg.FirmwareURL == "") {
		return nil, errors.New("ota requires exactly one of a firmware file or a firmware url")
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = route.DefaultNamespace
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultOTATimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger(cfg.Meta)
	}

	url := cfg.FirmwareURL
	size := cfg.FirmwareSize
	if cfg.FirmwarePath != "" {
		host, err := firmware.NewHost(cfg.FirmwarePath, logger)
		if err != nil {
			return nil, err
		}
		port := cfg.Port
		if port == 0 {
			port = firmware.DefaultPort
		}
		if port < 0 {
			port = 0
		}
		if err := host.Start(port); err != nil {
			return nil, err
		}
		defer shutdownHost(ctx, host, logger)
		url = host.URL()
		size = host.Size()
	}

	estimator := progress.NewEstimator(size)
	sess := session.New(session.Config{
		Capability: types.CapabilityOTA,
		Rules:      session.RulesFor(types.CapabilityOTA),
		Target:     cfg.Device,
		Timeout:    timeout,
		Logger:     logger,
		Assembler:  coredump.NewAssembler(),
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
		Estimator: estimator,
		Recorder:  recorder,
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

	command, err := json.Marshal(map[string]string{"ota": url})
	if err != nil {
		return nil, fmt.Errorf("encode ota command: %w", err)
	}

	start := time.Now()
	if err := publishCommand(ctx, cfg.Client, commandTopic(ns, cfg.Device), command, logger, cfg.Collector); err != nil {
		return nil, err
	}
	sess.Start(start)

	if err := pump.Run(ctx); err != nil {
		return nil, fmt.Errorf("operation aborted: %w", err)
	}

	outcome, _ := sess.Outcome()
	result := &Result{
		Meta:     cfg.Meta,
		Device:   cfg.Device,
		Outcome:  &outcome,
		State:    sess.State(),
		Duration: time.Since(start),
		Messages: pump.Processed(),
	}
	if summary, ok := estimator.Summary(time.Now()); ok {
		result.Progress = &summary
	}
	return result, nil
}

// shutdownHost stops the firmware server on a detached context and
// reports how many downloads it served.
func shutdownHost(ctx context.Context, host *firmware.Host, logger *log.Logger) {
	served := host.Served()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := host.Shutdown(shutdownCtx); err != nil {
		logger.Warn("firmware host shutdown failed", map[string]any{
			"error": err.Error(),
		})
	}
	logger.Info("firmware host stopped", map[string]any{
		"downloads_served": served,
	})
}
