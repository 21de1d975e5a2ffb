package ops

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/types"
)

// DefaultFleetParallel bounds concurrent per-device operations.
const DefaultFleetParallel = 4

// DeviceRunner executes one operation against one device under the
// given identity.
type DeviceRunner func(ctx context.Context, device string, meta *types.OpMeta) (*Result, error)

// FleetConfig configures a fan-out across devices.
type FleetConfig struct {
	// Devices are the targets. Empty entries and repeats are dropped.
	Devices []string
	// Parallel bounds concurrent devices. Zero means
	// DefaultFleetParallel.
	Parallel int
	// Logger receives fan-out entries. Nil derives one.
	Logger *log.Logger
}

// FleetResult aggregates per-device outcomes.
type FleetResult struct {
	// Total is the number of devices dispatched.
	Total int
	// Succeeded counts dispatched devices that reached a success
	// outcome.
	Succeeded int
	// Failed counts every other dispatched device.
	Failed int
	// Results holds per-device results, keyed by device. A device that
	// failed before producing a result is absent here and present in
	// Errors.
	Results map[string]*Result
	// Errors holds infrastructure failure text, keyed by device.
	Errors map[string]string
}

// RunFleet runs one operation against every device, at most Parallel
// at a time. Each device gets its own generated op identity so logs,
// reports, and notifications stay distinguishable. Cancellation stops
// dispatch: running devices wind down through their own context
// handling, devices never dispatched are absent from the result.
func RunFleet(ctx context.Context, cfg *FleetConfig, op string, run DeviceRunner) *FleetResult {
	devices := dedupeDevices(cfg.Devices)
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger(&types.OpMeta{OpID: uuid.New().String(), Op: op})
	}

	parallel := cfg.Parallel
	if parallel <= 0 {
		parallel = DefaultFleetParallel
	}

	fleet := &FleetResult{
		Results: make(map[string]*Result, len(devices)),
		Errors:  make(map[string]string),
	}

	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup
	var mu sync.Mutex

dispatch:
	for _, device := range devices {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			logger.Warn("fleet dispatch stopped", map[string]any{
				"reason":      ctx.Err().Error(),
				"dispatched":  fleet.Total,
				"undelivered": len(devices) - fleet.Total,
			})
			break dispatch
		}

		fleet.Total++
		wg.Add(1)
		go func(device string) {
			defer wg.Done()
			defer func() { <-sem }()

			meta := &types.OpMeta{
				OpID:   uuid.New().String(),
				Op:     op,
				Device: device,
			}
			logger.Info("fleet dispatch", map[string]any{
				"device": device,
				"op_id":  meta.OpID,
			})
			result, err := run(ctx, device, meta)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fleet.Failed++
				fleet.Errors[device] = err.Error()
				if result != nil {
					fleet.Results[device] = result
				}
				return
			}
			fleet.Results[device] = result
			if result != nil && result.Outcome != nil && result.Outcome.Status == types.OutcomeSuccess {
				fleet.Succeeded++
			} else {
				fleet.Failed++
			}
		}(device)
	}

	wg.Wait()
	logger.Info("fleet complete", map[string]any{
		"total":     fleet.Total,
		"succeeded": fleet.Succeeded,
		"failed":    fleet.Failed,
	})
	return fleet
}

// dedupeDevices drops empty entries and repeats, preserving first
// occurrence order.
func dedupeDevices(devices []string) []string {
	seen := make(map[string]struct{}, len(devices))
	out := make([]string, 0, len(devices))
	for _, d := range devices {
		if d == "" {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}
