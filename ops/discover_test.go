package ops

import (
	"strings"
	"testing"
	"time"

	"github.com/opengrid-io/fleetkit/transport"
)

func TestDiscover_CollectsSightingsInArrivalOrder(t *testing.T) {
	client := transport.NewStubClient()

	// Feed telemetry from two devices for as long as the census runs.
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.Now().Add(2 * time.Second)
		for len(client.Subscribed()) == 0 {
			if time.Now().After(deadline) {
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				client.Deliver("opengrid/aabbcc/measurement", []byte("23.5"))
				client.Deliver("opengrid/ddeeff/measurement", []byte("24.1"))
			}
		}
	}()
	defer func() {
		close(stop)
		<-done
	}()

	result, err := Discover(t.Context(), &DiscoverConfig{
		Client: client,
		Window: 150 * time.Millisecond,
		Meta:   testMeta("discover"),
		Logger: testLogger("discover"),
	})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if len(result.Devices) != 2 {
		t.Fatalf("devices = %+v, want 2 sightings", result.Devices)
	}
	if result.Devices[0].Device != "aabbcc" || result.Devices[1].Device != "ddeeff" {
		t.Errorf("arrival order = [%s %s]", result.Devices[0].Device, result.Devices[1].Device)
	}
	if result.Devices[0].FirstSeen.IsZero() {
		t.Error("first sighting has no timestamp")
	}
	if result.Messages == 0 {
		t.Error("no messages counted")
	}
	if !strings.Contains(result.Outcome.Message, "2 devices discovered") {
		t.Errorf("message = %q", result.Outcome.Message)
	}
	if pubs := client.Published(); len(pubs) != 0 {
		t.Errorf("census published %d messages, want none", len(pubs))
	}
}

func TestDiscover_StopEarly(t *testing.T) {
	client := transport.NewStubClient()
	feedAfterSubscribe(client, func() {
		client.Deliver("opengrid/aabbcc/measurement", []byte("23.5"))
	})

	begin := time.Now()
	result, err := Discover(t.Context(), &DiscoverConfig{
		Client:    client,
		Window:    10 * time.Second,
		StopEarly: true,
		Meta:      testMeta("discover"),
		Logger:    testLogger("discover"),
	})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if elapsed := time.Since(begin); elapsed > 5*time.Second {
		t.Errorf("census ran %s despite an early sighting", elapsed)
	}
	if len(result.Devices) != 1 || result.Devices[0].Device != "aabbcc" {
		t.Errorf("devices = %+v, want just aabbcc", result.Devices)
	}
}

func TestDiscover_EmptyWindow(t *testing.T) {
	client := transport.NewStubClient()

	result, err := Discover(t.Context(), &DiscoverConfig{
		Client: client,
		Window: 50 * time.Millisecond,
		Meta:   testMeta("discover"),
		Logger: testLogger("discover"),
	})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(result.Devices) != 0 {
		t.Errorf("devices = %+v, want none", result.Devices)
	}
	if !strings.Contains(result.Outcome.Message, "0 devices discovered") {
		t.Errorf("message = %q", result.Outcome.Message)
	}
}
