// Package progress estimates firmware transfer progress from free-text
// device status lines.
//
// Devices report progress as human-oriented status text, not structured
// payloads. The estimator extracts the percentage after a fixed marker
// and derives byte and throughput estimates from the known firmware
// size. Estimates feed reporting only; they never gate a verdict.
package progress

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Marker introduces a progress percentage in device status text,
// e.g. "OTA Progress: 45% (230400/512000)".
const Marker = "OTA Progress:"

// Sample is one observed progress point.
type Sample struct {
	// At is when the status line arrived.
	At time.Time
	// Percent is the value extracted from the status text.
	Percent float64
	// Bytes is Percent applied to the known firmware size.
	Bytes float64
	// Throughput is bytes per second since the transfer started,
	// zero when no time has elapsed.
	Throughput float64
}

// Summary aggregates a finished progress series.
type Summary struct {
	// TotalBytes is the byte estimate of the last sample.
	TotalBytes float64
	// Duration spans transfer start to the summary point.
	Duration time.Duration
	// AvgThroughput is TotalBytes over Duration, zero when no time
	// has elapsed.
	AvgThroughput float64
	// Samples is the number of progress points observed.
	Samples int
}

// Estimator accumulates progress samples for one firmware push.
//
// Not safe for concurrent use: Observe is called from the operation's
// consumer goroutine, accessors after the loop exits.
type Estimator struct {
	totalSize int64
	startedAt time.Time
	started   bool
	samples   []Sample
}

// NewEstimator creates an estimator for a firmware image of totalSize
// bytes.
func NewEstimator(totalSize int64) *Estimator {
	return &Estimator{totalSize: totalSize}
}

// Observe inspects one status line. A transfer-start announcement
// records startedAt and clears any prior series, so a series never
// spans two attempts. A progress line yields a sample. Lines observed
// before any start announcement, and lines without the marker, yield
// nothing. A malformed percentage yields an error for the caller to
// log; the sample is dropped and nothing else changes.
func (e *Estimator) Observe(status string, at time.Time) (*Sample, error) {
	lowered := strings.ToLower(status)
	if strings.Contains(lowered, "starting ota") || strings.Contains(lowered, "ota started") {
		e.startedAt = at
		e.started = true
		e.samples = e.samples[:0]
		return nil, nil
	}

	idx := strings.Index(status, Marker)
	if idx < 0 || !e.started {
		return nil, nil
	}

	rest := status[idx+len(Marker):]
	pctEnd := strings.Index(rest, "%")
	if pctEnd < 0 {
		return nil, fmt.Errorf("progress text %q has no percent sign", status)
	}
	percent, err := strconv.ParseFloat(strings.TrimSpace(rest[:pctEnd]), 64)
	if err != nil {
		return nil, fmt.Errorf("progress text %q: %w", status, err)
	}

	sample := Sample{
		At:      at,
		Percent: percent,
		Bytes:   percent / 100.0 * float64(e.totalSize),
	}
	if elapsed := at.Sub(e.startedAt).Seconds(); elapsed > 0 {
		sample.Throughput = sample.Bytes / elapsed
	}

	e.samples = append(e.samples, sample)
	return &sample, nil
}

// Started returns true once a transfer-start announcement was seen.
func (e *Estimator) Started() bool {
	return e.started
}

// StartedAt returns when the current attempt began.
func (e *Estimator) StartedAt() time.Time {
	return e.startedAt
}

// Samples returns the series for the current attempt.
func (e *Estimator) Samples() []Sample {
	out := make([]Sample, len(e.samples))
	copy(out, e.samples)
	return out
}

// Summary aggregates the current series as of at. Returns false when
// no transfer was observed or no samples arrived.
func (e *Estimator) Summary(at time.Time) (Summary, bool) {
	if !e.started || len(e.samples) == 0 {
		return Summary{}, false
	}

	last := e.samples[len(e.samples)-1]
	s := Summary{
		TotalBytes: last.Bytes,
		Duration:   at.Sub(e.startedAt),
		Samples:    len(e.samples),
	}
	if secs := s.Duration.Seconds(); secs > 0 {
		s.AvgThroughput = s.TotalBytes / secs
	}
	return s, true
}
