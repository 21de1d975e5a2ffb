package ops

import (
	"strings"
	"testing"
	"time"

	"github.com/opengrid-io/fleetkit/transport"
	"github.com/opengrid-io/fleetkit/types"
)

func TestRestart_Acknowledged(t *testing.T) {
	client := transport.NewStubClient()
	feedAfterCommand(client, func() {
		client.Deliver("opengrid/aabbcc/status", []byte("Restart command received, performing graceful restart"))
	})

	result, err := Restart(t.Context(), &RestartConfig{
		Client:  client,
		Device:  "aabbcc",
		Timeout: 5 * time.Second,
		Meta:    testMeta("restart"),
		Logger:  testLogger("restart"),
	})
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}

	if result.State != types.StateSucceeded {
		t.Errorf("state = %s, want %s", result.State, types.StateSucceeded)
	}
	if result.Outcome.Status != types.OutcomeSuccess {
		t.Errorf("outcome = %s, want %s", result.Outcome.Status, types.OutcomeSuccess)
	}

	pubs := client.Published()
	if len(pubs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pubs))
	}
	if pubs[0].Topic != "opengrid/aabbcc/command" || string(pubs[0].Payload) != "restart" {
		t.Errorf("command = %q on %s", pubs[0].Payload, pubs[0].Topic)
	}
}

func TestRestart_UnknownCommand(t *testing.T) {
	client := transport.NewStubClient()
	feedAfterCommand(client, func() {
		client.Deliver("opengrid/aabbcc/error", []byte("Unknown command: restart"))
	})

	result, err := Restart(t.Context(), &RestartConfig{
		Client:  client,
		Device:  "aabbcc",
		Timeout: 5 * time.Second,
		Meta:    testMeta("restart"),
		Logger:  testLogger("restart"),
	})
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}

	if result.State != types.StateFailed {
		t.Errorf("state = %s, want %s", result.State, types.StateFailed)
	}
	if result.Outcome.DeviceText == nil || !strings.Contains(*result.Outcome.DeviceText, "Unknown command") {
		t.Errorf("device text = %v", result.Outcome.DeviceText)
	}
}

func TestRestart_Timeout(t *testing.T) {
	client := transport.NewStubClient()

	result, err := Restart(t.Context(), &RestartConfig{
		Client:  client,
		Device:  "aabbcc",
		Timeout: 60 * time.Millisecond,
		Meta:    testMeta("restart"),
		Logger:  testLogger("restart"),
	})
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if result.State != types.StateTimedOut {
		t.Errorf("state = %s, want %s", result.State, types.StateTimedOut)
	}
}

func TestRestart_RequiresDevice(t *testing.T) {
	_, err := Restart(t.Context(), &RestartConfig{
		Client: transport.NewStubClient(),
		Meta:   testMeta("restart"),
		Logger: testLogger("restart"),
	})
	if err == nil || !strings.Contains(err.Error(), "target device") {
		t.Fatalf("err = %v, want a target-device error", err)
	}
}
