package ops

import (
	"context"
	"time"

	"github.com/opengrid-io/fleetkit/discovery"
	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/metrics"
	"github.com/opengrid-io/fleetkit/progress"
	"github.com/opengrid-io/fleetkit/route"
	"github.com/opengrid-io/fleetkit/session"
	"github.com/opengrid-io/fleetkit/transcript"
	"github.com/opengrid-io/fleetkit/types"
)

// PumpConfig wires the delivery pipeline for one operation.
type PumpConfig struct {
	// Router classifies raw messages.
	Router *route.Router
	// Session consumes classified events. Optional; discovery runs
	// without one.
	Session *session.Session
	// Estimator observes status lines for OTA progress. Optional.
	Estimator *progress.Estimator
	// Registry records telemetry sightings. Optional.
	Registry *discovery.Registry
	// Recorder captures raw messages to a transcript. Optional.
	Recorder *transcript.Recorder
	// Logger receives pipeline entries.
	Logger *log.Logger
	// Collector is optional; nil disables counting.
	Collector *metrics.Collector
	// QueueSize bounds the delivery queue. Zero means DefaultQueueSize.
	QueueSize int
	// Tick is the deadline poll interval. Zero means DefaultTick.
	Tick time.Duration
}

// Pump owns the delivery queue and its single consumer.
//
// Enqueue is safe to call from transport dispatch goroutines and never
// blocks. Run consumes on the caller's goroutine until the session
// reaches a verdict or ctx ends; accessors are read after Run returns.
type Pump struct {
	router    *route.Router
	session   *session.Session
	estimator *progress.Estimator
	registry  *discovery.Registry
	recorder  *transcript.Recorder
	logger    *log.Logger
	collector *metrics.Collector
	tick      time.Duration

	queue     chan types.RawMessage
	processed int64
}

// NewPump creates a pump with defaults applied.
func NewPump(cfg PumpConfig) *Pump {
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	tick := cfg.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Pump{
		router:    cfg.Router,
		session:   cfg.Session,
		estimator: cfg.Estimator,
		registry:  cfg.Registry,
		recorder:  cfg.Recorder,
		logger:    cfg.Logger,
		collector: cfg.Collector,
		tick:      tick,
		queue:     make(chan types.RawMessage, size),
	}
}

// Enqueue hands one raw message to the consumer. A full queue drops
// the message and counts it; blocking here would stall the transport
// dispatch thread.
func (p *Pump) Enqueue(msg types.RawMessage) {
	p.collector.IncMessageReceived()
	select {
	case p.queue <- msg:
	default:
		p.collector.IncMessageDropped()
		p.logger.Warn("delivery queue full, dropping message", map[string]any{
			"topic": msg.Topic,
		})
	}
}

// Run consumes until the session reaches a verdict or ctx ends.
// Returns nil on a verdict, the ctx error otherwise.
func (p *Pump) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-p.queue:
			p.process(msg)
		case now := <-ticker.C:
			if p.session != nil {
				p.session.Handle(types.Event{Kind: types.EventDeadline, ReceivedAt: now})
			}
		}
		if p.session != nil && p.session.Terminal() {
			return nil
		}
	}
}

// Processed returns the number of messages consumed.
func (p *Pump) Processed() int64 {
	return p.processed
}

// process runs one message through record, classify, and the sinks.
func (p *Pump) process(msg types.RawMessage) {
	p.processed++

	if p.recorder != nil {
		if err := p.recorder.Record(msg); err != nil {
			p.logger.Warn("transcript write failed", map[string]any{
				"error": err.Error(),
			})
		}
	}

	ev, err := p.router.Classify(msg)
	if err != nil {
		p.collector.IncParseError()
		p.logger.Warn("dropping malformed payload", map[string]any{
			"topic": msg.Topic,
			"error": err.Error(),
		})
		return
	}
	p.collector.ObserveKind(string(ev.Kind))

	if p.registry != nil && ev.Kind == types.EventTelemetry {
		if p.registry.Record(ev.Device, ev.ReceivedAt) {
			p.logger.Info("device sighted", map[string]any{
				"device": ev.Device,
			})
		}
	}

	if p.estimator != nil && ev.Kind == types.EventStatus {
		sample, err := p.estimator.Observe(ev.Text, ev.ReceivedAt)
		switch {
		case err != nil:
			p.logger.Warn("unreadable progress line", map[string]any{
				"status": ev.Text,
				"error":  err.Error(),
			})
		case sample != nil:
			p.logger.Info("ota progress", map[string]any{
				"percent":        sample.Percent,
				"bytes":          int64(sample.Bytes),
				"throughput_bps": int64(sample.Throughput),
			})
		}
	}

	if p.session != nil {
		p.session.Handle(ev)
	}
}
