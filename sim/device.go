// Package sim implements an in-process device simulator.
//
// The simulator speaks the same topic and payload conventions real
// firmware does: it announces itself on the measurement topic, answers
// coredump requests with a chunked transfer, fetches firmware for ota
// commands while narrating progress, and acknowledges restarts. It
// exists for integration tests and for exercising fleetkit against a
// live broker without hardware on the bench.
package sim

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/route"
	"github.com/opengrid-io/fleetkit/transport"
	"github.com/opengrid-io/fleetkit/types"
)

// DefaultChunkSize is the chunk payload size before base64 encoding.
const DefaultChunkSize = 1024

// DefaultTelemetryInterval paces measurement publishes.
const DefaultTelemetryInterval = 5 * time.Second

// Config configures one simulated device.
type Config struct {
	// Client is the broker connection. Must already be connected.
	Client transport.Client
	// Namespace is the topic namespace. Empty means
	// route.DefaultNamespace.
	Namespace string
	// DeviceID identifies the device. Empty generates a MAC-style
	// lowercase hex identifier, the way firmware derives one.
	DeviceID string
	// Dump is the coredump content served on request. Nil means the
	// device has no dump and reports so.
	Dump []byte
	// ChunkSize splits the dump. Zero means DefaultChunkSize.
	ChunkSize int
	// TelemetryInterval paces measurement publishes. Zero means
	// DefaultTelemetryInterval; negative disables telemetry.
	TelemetryInterval time.Duration
	// FailOTA makes every ota command report a failed update, for
	// exercising the failure path.
	FailOTA bool
	// HTTPClient fetches firmware images. Nil uses a 60s-timeout
	// default.
	HTTPClient *http.Client
	// Logger receives device entries. Nil derives one.
	Logger *log.Logger
}

// Device is one simulated device.
type Device struct {
	cfg    Config
	id     string
	ns     string
	logger *log.Logger
	httpc  *http.Client

	started time.Time
}

// New creates a simulated device from the config.
func New(cfg Config) *Device {
	id := cfg.DeviceID
	if id == "" {
		id = generateDeviceID()
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = route.DefaultNamespace
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger(&types.OpMeta{OpID: uuid.New().String(), Op: "sim", Device: id})
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 60 * time.Second}
	}
	return &Device{cfg: cfg, id: id, ns: ns, logger: logger, httpc: httpc}
}

// generateDeviceID produces a MAC-style identifier: 12 lowercase hex
// characters, no separators.
func generateDeviceID() string {
	u := uuid.New()
	return fmt.Sprintf("%x", u[:6])
}

// ID returns the device identifier.
func (d *Device) ID() string {
	return d.id
}

// Run subscribes to the command topic and publishes telemetry until
// the context is cancelled.
func (d *Device) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}

	interval := d.cfg.TelemetryInterval
	if interval == 0 {
		interval = DefaultTelemetryInterval
	}
	if interval < 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.publishTelemetry(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.publishTelemetry(ctx)
		}
	}
}

// Start subscribes to the command topic without blocking. Commands are
// handled on the transport's delivery path.
func (d *Device) Start(ctx context.Context) error {
	d.started = time.Now()
	filter := d.topic("command")
	return d.cfg.Client.Subscribe(ctx, filter, func(msg types.RawMessage) {
		d.handleCommand(ctx, msg.Payload)
	})
}

func (d *Device) topic(category string) string {
	return d.ns + "/" + d.id + "/" + category
}

func (d *Device) publish(ctx context.Context, category string, payload []byte) {
	if err := d.cfg.Client.Publish(ctx, d.topic(category), payload); err != nil {
		d.logger.Warn("publish failed", map[string]any{
			"category": category,
			"error":    err.Error(),
		})
	}
}

func (d *Device) publishStatus(ctx context.Context, text string) {
	d.publish(ctx, "status", []byte(text))
}

func (d *Device) publishError(ctx context.Context, text string) {
	d.publish(ctx, "error", []byte(text))
}

// publishTelemetry emits one measurement sample.
func (d *Device) publishTelemetry(ctx context.Context) {
	sample := map[string]any{
		"uptime_s":  int64(time.Since(d.started).Seconds()),
		"heap_free": 183500,
		"rssi":      -61,
	}
	data, err := json.Marshal(sample)
	if err != nil {
		return
	}
	d.publish(ctx, "measurement", data)
}

// handleCommand dispatches one command payload. Bare keywords name a
// capability; a JSON object carries a capability with an argument.
func (d *Device) handleCommand(ctx context.Context, payload []byte) {
	text := strings.TrimSpace(string(payload))
	switch {
	case text == "coredump":
		d.handleCoredump(ctx)
	case text == "restart":
		d.publishStatus(ctx, "Restart command received, performing graceful restart")
	case strings.HasPrefix(text, "{"):
		var obj map[string]string
		if err := json.Unmarshal(payload, &obj); err != nil {
			d.publishError(ctx, "Invalid JSON command format")
			return
		}
		if url, ok := obj["ota"]; ok {
			d.handleOTA(ctx, url)
			return
		}
		d.publishError(ctx, "Unknown command: "+text)
	default:
		d.publishError(ctx, "Unknown command: "+text)
	}
}

// handleCoredump streams the configured dump as a chunked transfer.
func (d *Device) handleCoredump(ctx context.Context) {
	if len(d.cfg.Dump) == 0 {
		d.publishStatus(ctx, "No core dump data available")
		return
	}

	dump := d.cfg.Dump
	size := d.cfg.ChunkSize
	total := (len(dump) + size - 1) / size

	d.publishStatus(ctx, fmt.Sprintf("Core dump found, starting transmission (%d bytes)", len(dump)))

	header := types.WireHeader{
		Timestamp:        time.Now().Unix(),
		Type:             types.WireHeaderType,
		PartitionSize:    int64(len(dump)),
		PartitionAddress: "0x110000",
		ResetReason:      "panic",
		FirmwareVersion:  types.Version,
		CompileDate:      "Jan  1 2026",
		CompileTime:      "00:00:00",
	}
	if data, err := json.Marshal(header); err == nil {
		d.publish(ctx, "coredump/header", data)
	}

	for i := 0; i < total; i++ {
		end := (i + 1) * size
		if end > len(dump) {
			end = len(dump)
		}
		body := dump[i*size : end]
		chunk := types.WireChunk{
			Type:        types.WireChunkType,
			ChunkIndex:  i,
			TotalChunks: total,
			Offset:      int64(i * size),
			Size:        len(body),
			Data:        base64.StdEncoding.EncodeToString(body),
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			continue
		}
		d.publish(ctx, fmt.Sprintf("coredump/chunk/%d", i), data)
	}

	complete := types.WireComplete{
		Type:        types.WireCompleteType,
		TotalChunks: total,
		TotalSize:   int64(len(dump)),
	}
	if data, err := json.Marshal(complete); err == nil {
		d.publish(ctx, "coredump/complete", data)
	}
}

// handleOTA fetches the image and narrates progress the way firmware
// does, in 10% steps.
func (d *Device) handleOTA(ctx context.Context, url string) {
	d.publishStatus(ctx, "Starting OTA update from: "+url)

	if d.cfg.FailOTA {
		d.publishError(ctx, "OTA update failed: ESP_ERR_OTA_VALIDATE_FAILED")
		return
	}

	size, err := d.fetchFirmware(ctx, url)
	if err != nil {
		d.publishError(ctx, "OTA update failed: "+err.Error())
		return
	}

	for pct := 10; pct <= 100; pct += 10 {
		done := size * int64(pct) / 100
		d.publishStatus(ctx, fmt.Sprintf("OTA Progress: %d%% (%d/%d bytes)", pct, done, size))
	}
	d.publishStatus(ctx, "OTA update completed successfully")
	d.publishStatus(ctx, "Restart command received, performing graceful restart")
}

// fetchFirmware downloads the image, discarding the body. The byte
// count drives the progress narration.
func (d *Device) fetchFirmware(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := d.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.Copy(io.Discard, resp.Body)
}
