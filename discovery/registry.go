// Package discovery accumulates device sightings from passive telemetry.
//
// Devices announce themselves only implicitly, by publishing measurements.
// The registry listens on the wildcard measurement topic for a bounded
// window and records each distinct device in arrival order. Arrival
// order is meaningful: it is the only ordering devices have.
package discovery

import (
	"context"
	"sync"
	"time"
)

// Sighting is one distinct device observed during discovery.
type Sighting struct {
	// Device is the identifier segment from the telemetry topic.
	Device string
	// FirstSeen is when the first telemetry message arrived.
	FirstSeen time.Time
}

// Registry collects device sightings.
// Thread-safe: Record is called from the transport delivery callback
// while Wait blocks the caller.
type Registry struct {
	mu    sync.Mutex
	order []Sighting
	index map[string]int

	firstOnce sync.Once
	first     chan struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		index: make(map[string]int),
		first: make(chan struct{}),
	}
}

// Record notes a telemetry sighting. Returns true when the device is
// new; repeated sightings keep the original arrival position and
// first-seen timestamp.
func (r *Registry) Record(device string, at time.Time) bool {
	if device == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[device]; ok {
		return false
	}
	r.index[device] = len(r.order)
	r.order = append(r.order, Sighting{Device: device, FirstSeen: at})

	r.firstOnce.Do(func() { close(r.first) })
	return true
}

// Devices returns sightings in arrival order.
func (r *Registry) Devices() []Sighting {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Sighting, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of distinct devices seen.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Wait blocks until the discovery window closes: when window elapses,
// when ctx is cancelled, or, with stopEarly set, as soon as the first
// device is recorded. A device recorded before Wait is called closes
// the window immediately in stopEarly mode.
func (r *Registry) Wait(ctx context.Context, window time.Duration, stopEarly bool) error {
	timer := time.NewTimer(window)
	defer timer.Stop()

	first := r.first
	if !stopEarly {
		first = nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	case <-first:
		return nil
	}
}
