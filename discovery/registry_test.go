package discovery

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegistry_RecordDedupes(t *testing.T) {
	r := NewRegistry()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if !r.Record("aabbcc", t0) {
		t.Error("first sighting not reported as new")
	}
	if r.Record("aabbcc", t0.Add(time.Second)) {
		t.Error("repeat sighting reported as new")
	}
	if !r.Record("ddeeff", t0.Add(2*time.Second)) {
		t.Error("second device not reported as new")
	}
	if r.Record("", t0) {
		t.Error("empty device identifier recorded")
	}

	devices := r.Devices()
	if len(devices) != 2 {
		t.Fatalf("Count = %d, want 2", len(devices))
	}
	// Arrival order and first-seen timestamps survive repeats.
	if devices[0].Device != "aabbcc" || devices[1].Device != "ddeeff" {
		t.Errorf("arrival order = [%s %s], want [aabbcc ddeeff]", devices[0].Device, devices[1].Device)
	}
	if !devices[0].FirstSeen.Equal(t0) {
		t.Errorf("FirstSeen = %v, want %v", devices[0].FirstSeen, t0)
	}
}

func TestRegistry_ArrivalOrderNotLexicographic(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	r.Record("zz0011", now)
	r.Record("aa0011", now.Add(time.Millisecond))

	devices := r.Devices()
	if devices[0].Device != "zz0011" {
		t.Errorf("first arrival = %q, want zz0011", devices[0].Device)
	}
}

func TestRegistry_WaitStopsEarlyOnFirstSighting(t *testing.T) {
	r := NewRegistry()

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.Record("dev1", time.Now())
		// dev2 shows up only after the early-stopped window has closed.
		time.Sleep(200 * time.Millisecond)
		r.Record("dev2", time.Now())
	}()

	start := time.Now()
	if err := r.Wait(context.Background(), 5*time.Second, true); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("early stop took %v, want well under the 5s window", elapsed)
	}

	devices := r.Devices()
	if len(devices) != 1 || devices[0].Device != "dev1" {
		t.Fatalf("registry after early stop = %+v, want only dev1", devices)
	}

	got, err := r.Select(SelectRequest{Policy: PolicyFirstFound})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if got != "dev1" {
		t.Errorf("FirstFound = %q, want dev1", got)
	}
}

func TestRegistry_WaitFullWindowCollectsAll(t *testing.T) {
	r := NewRegistry()

	go func() {
		r.Record("dev1", time.Now())
		time.Sleep(10 * time.Millisecond)
		r.Record("dev2", time.Now())
	}()

	if err := r.Wait(context.Background(), 150*time.Millisecond, false); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if got := r.Count(); got != 2 {
		t.Errorf("Count = %d, want 2", got)
	}
}

func TestRegistry_WaitSightingBeforeWaitClosesImmediately(t *testing.T) {
	r := NewRegistry()
	r.Record("dev1", time.Now())

	start := time.Now()
	if err := r.Wait(context.Background(), 5*time.Second, true); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Wait took %v with a pre-recorded device", elapsed)
	}
}

func TestRegistry_WaitHonorsContext(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := r.Wait(ctx, 5*time.Second, false)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Wait error = %v, want context.Canceled", err)
	}
}

func TestRegistry_Select(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		devices []string
		req     SelectRequest
		want    string
		wantErr bool
	}{
		{
			name:    "first found uses arrival order",
			devices: []string{"bb1122", "aa1122"},
			req:     SelectRequest{Policy: PolicyFirstFound},
			want:    "bb1122",
		},
		{
			name:    "first found with empty registry",
			devices: nil,
			req:     SelectRequest{Policy: PolicyFirstFound},
			wantErr: true,
		},
		{
			name:    "explicit bypasses discovery",
			devices: nil,
			req:     SelectRequest{Policy: PolicyExplicit, Explicit: "cc3344"},
			want:    "cc3344",
		},
		{
			name:    "explicit requires identifier",
			devices: []string{"aa1122"},
			req:     SelectRequest{Policy: PolicyExplicit},
			wantErr: true,
		},
		{
			name:    "interactive requires prompt",
			devices: []string{"aa1122"},
			req:     SelectRequest{Policy: PolicyInteractive},
			wantErr: true,
		},
		{
			name:    "unknown policy",
			devices: []string{"aa1122"},
			req:     SelectRequest{Policy: Policy("mystery")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			for i, d := range tt.devices {
				r.Record(d, now.Add(time.Duration(i)*time.Millisecond))
			}

			got, err := r.Select(tt.req)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Select failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Select = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegistry_SelectInteractivePrompt(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	r.Record("aa1122", now)
	r.Record("bb3344", now.Add(time.Millisecond))

	var seen []string
	got, err := r.Select(SelectRequest{
		Policy: PolicyInteractive,
		Prompt: func(candidates []Sighting) (string, error) {
			for _, c := range candidates {
				seen = append(seen, c.Device)
			}
			return candidates[1].Device, nil
		},
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if got != "bb3344" {
		t.Errorf("Select = %q, want bb3344", got)
	}
	if len(seen) != 2 || seen[0] != "aa1122" {
		t.Errorf("prompt saw %v, want both devices in arrival order", seen)
	}
}
