package ops

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opengrid-io/fleetkit/transport"
	"github.com/opengrid-io/fleetkit/types"
)

func TestPushFirmware_HostedImage(t *testing.T) {
	imagePath := filepath.Join(t.TempDir(), "firmware.bin")
	if err := os.WriteFile(imagePath, bytes.Repeat([]byte{0xEA}, 1000), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	client := transport.NewStubClient()
	feedAfterCommand(client, func() {
		base := "opengrid/aabbcc"
		client.Deliver(base+"/status", []byte("Starting OTA update from: http://192.168.1.10:8000/firmware.bin"))
		client.Deliver(base+"/status", []byte("OTA Progress: 50% (500/1000 bytes)"))
		client.Deliver(base+"/status", []byte("OTA Progress: 100% (1000/1000 bytes)"))
		client.Deliver(base+"/status", []byte("OTA update completed successfully"))
	})

	result, err := PushFirmware(t.Context(), &OTAConfig{
		Client:       client,
		Device:       "aabbcc",
		Timeout:      5 * time.Second,
		FirmwarePath: imagePath,
		Port:         -1,
		Meta:         testMeta("ota"),
		Logger:       testLogger("ota"),
	})
	if err != nil {
		t.Fatalf("PushFirmware: %v", err)
	}

	if result.State != types.StateSucceeded {
		t.Errorf("state = %s, want %s", result.State, types.StateSucceeded)
	}
	if result.Outcome.Status != types.OutcomeSuccess {
		t.Errorf("outcome = %s, want %s", result.Outcome.Status, types.OutcomeSuccess)
	}

	pubs := client.Published()
	if len(pubs) != 1 || pubs[0].Topic != "opengrid/aabbcc/command" {
		t.Fatalf("published = %+v, want one command", pubs)
	}
	var command map[string]string
	if err := json.Unmarshal(pubs[0].Payload, &command); err != nil {
		t.Fatalf("command payload is not JSON: %v", err)
	}
	url := command["ota"]
	if !strings.HasPrefix(url, "http://") || !strings.HasSuffix(url, "/firmware.bin") {
		t.Errorf("advertised url = %q", url)
	}

	if result.Progress == nil {
		t.Fatal("no progress summary")
	}
	if result.Progress.Samples != 2 {
		t.Errorf("samples = %d, want 2", result.Progress.Samples)
	}
	if result.Progress.TotalBytes != 1000 {
		t.Errorf("total bytes = %v, want 1000", result.Progress.TotalBytes)
	}
}

func TestPushFirmware_RemoteURL(t *testing.T) {
	const url = "https://cdn.example.com/fw/esp32-v2.bin"

	client := transport.NewStubClient()
	feedAfterCommand(client, func() {
		base := "opengrid/aabbcc"
		client.Deliver(base+"/status", []byte("Starting OTA update from: "+url))
		client.Deliver(base+"/status", []byte("OTA Progress: 25% (512/2048 bytes)"))
		client.Deliver(base+"/status", []byte("OTA update completed successfully"))
	})

	result, err := PushFirmware(t.Context(), &OTAConfig{
		Client:       client,
		Device:       "aabbcc",
		Timeout:      5 * time.Second,
		FirmwareURL:  url,
		FirmwareSize: 2048,
		Meta:         testMeta("ota"),
		Logger:       testLogger("ota"),
	})
	if err != nil {
		t.Fatalf("PushFirmware: %v", err)
	}

	if result.State != types.StateSucceeded {
		t.Errorf("state = %s, want %s", result.State, types.StateSucceeded)
	}
	pubs := client.Published()
	if len(pubs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pubs))
	}
	var command map[string]string
	if err := json.Unmarshal(pubs[0].Payload, &command); err != nil {
		t.Fatalf("command payload is not JSON: %v", err)
	}
	if command["ota"] != url {
		t.Errorf("advertised url = %q, want %q", command["ota"], url)
	}

	if result.Progress == nil {
		t.Fatal("no progress summary")
	}
	if result.Progress.Samples != 1 {
		t.Errorf("samples = %d, want 1", result.Progress.Samples)
	}
	if result.Progress.TotalBytes != 512 {
		t.Errorf("total bytes = %v, want 512", result.Progress.TotalBytes)
	}
}

func TestPushFirmware_RestartAnnouncementSucceeds(t *testing.T) {
	client := transport.NewStubClient()
	feedAfterCommand(client, func() {
		base := "opengrid/aabbcc"
		client.Deliver(base+"/status", []byte("Starting OTA update from: https://cdn.example.com/fw.bin"))
		client.Deliver(base+"/status", []byte("Update applied, device will restart"))
	})

	result, err := PushFirmware(t.Context(), &OTAConfig{
		Client:      client,
		Device:      "aabbcc",
		Timeout:     5 * time.Second,
		FirmwareURL: "https://cdn.example.com/fw.bin",
		Meta:        testMeta("ota"),
		Logger:      testLogger("ota"),
	})
	if err != nil {
		t.Fatalf("PushFirmware: %v", err)
	}
	if result.State != types.StateSucceeded {
		t.Errorf("state = %s, want %s", result.State, types.StateSucceeded)
	}
}

func TestPushFirmware_DeviceFailure(t *testing.T) {
	client := transport.NewStubClient()
	feedAfterCommand(client, func() {
		client.Deliver("opengrid/aabbcc/error", []byte("OTA update failed: not enough space"))
	})

	result, err := PushFirmware(t.Context(), &OTAConfig{
		Client:      client,
		Device:      "aabbcc",
		Timeout:     5 * time.Second,
		FirmwareURL: "https://cdn.example.com/fw.bin",
		Meta:        testMeta("ota"),
		Logger:      testLogger("ota"),
	})
	if err != nil {
		t.Fatalf("PushFirmware: %v", err)
	}

	if result.State != types.StateFailed {
		t.Errorf("state = %s, want %s", result.State, types.StateFailed)
	}
	if result.Outcome.Status != types.OutcomeDeviceError {
		t.Errorf("outcome = %s, want %s", result.Outcome.Status, types.OutcomeDeviceError)
	}
	if result.Outcome.DeviceText == nil || !strings.Contains(*result.Outcome.DeviceText, "not enough space") {
		t.Errorf("device text = %v", result.Outcome.DeviceText)
	}
}

func TestPushFirmware_Timeout(t *testing.T) {
	client := transport.NewStubClient()

	result, err := PushFirmware(t.Context(), &OTAConfig{
		Client:      client,
		Device:      "aabbcc",
		Timeout:     60 * time.Millisecond,
		FirmwareURL: "https://cdn.example.com/fw.bin",
		Meta:        testMeta("ota"),
		Logger:      testLogger("ota"),
	})
	if err != nil {
		t.Fatalf("PushFirmware: %v", err)
	}
	if result.State != types.StateTimedOut {
		t.Errorf("state = %s, want %s", result.State, types.StateTimedOut)
	}
	if result.Progress != nil {
		t.Errorf("progress = %+v, want none when no transfer started", result.Progress)
	}
}

func TestPushFirmware_Validation(t *testing.T) {
	cases := map[string]*OTAConfig{
		"no device": {
			FirmwareURL: "https://cdn.example.com/fw.bin",
		},
		"no firmware source": {
			Device: "aabbcc",
		},
		"both firmware sources": {
			Device:       "aabbcc",
			FirmwarePath: "fw.bin",
			FirmwareURL:  "https://cdn.example.com/fw.bin",
		},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			cfg.Client = transport.NewStubClient()
			cfg.Meta = testMeta("ota")
			cfg.Logger = testLogger("ota")
			if _, err := PushFirmware(t.Context(), cfg); err == nil {
				t.Error("no error from invalid config")
			}
		})
	}
}
