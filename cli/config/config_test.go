package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `broker:
  url: tcp://broker.lan:1883
  username: fleet
  password: hunter2
  client_id: fleetkit-bench
  connect_timeout: 15s

namespace: plantfloor
output_dir: ./dumps

timeouts:
  coredump: 90s
  ota: 10m
  restart: 45s
  discovery: 5s

firmware:
  port: 8080

archive:
  backend: s3
  path: my-bucket/dumps
  region: us-east-1
  endpoint: https://example.com
  s3_path_style: true

adapter:
  type: webhook
  url: https://hooks.example.com/fleetkit
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Broker
	assertEqual(t, "broker.url", cfg.Broker.URL, "tcp://broker.lan:1883")
	assertEqual(t, "broker.username", cfg.Broker.Username, "fleet")
	assertEqual(t, "broker.password", cfg.Broker.Password, "hunter2")
	assertEqual(t, "broker.client_id", cfg.Broker.ClientID, "fleetkit-bench")
	if cfg.Broker.ConnectTimeout.Duration != 15*time.Second {
		t.Errorf("expected broker.connect_timeout=15s, got %v", cfg.Broker.ConnectTimeout.Duration)
	}

	// Top-level fields
	assertEqual(t, "namespace", cfg.Namespace, "plantfloor")
	assertEqual(t, "output_dir", cfg.OutputDir, "./dumps")

	// Timeouts
	if cfg.Timeouts.Coredump.Duration != 90*time.Second {
		t.Errorf("expected timeouts.coredump=90s, got %v", cfg.Timeouts.Coredump.Duration)
	}
	if cfg.Timeouts.OTA.Duration != 10*time.Minute {
		t.Errorf("expected timeouts.ota=10m, got %v", cfg.Timeouts.OTA.Duration)
	}
	if cfg.Timeouts.Restart.Duration != 45*time.Second {
		t.Errorf("expected timeouts.restart=45s, got %v", cfg.Timeouts.Restart.Duration)
	}
	if cfg.Timeouts.Discovery.Duration != 5*time.Second {
		t.Errorf("expected timeouts.discovery=5s, got %v", cfg.Timeouts.Discovery.Duration)
	}

	// Firmware
	if cfg.Firmware.Port != 8080 {
		t.Errorf("expected firmware.port=8080, got %d", cfg.Firmware.Port)
	}

	// Archive
	assertEqual(t, "archive.backend", cfg.Archive.Backend, "s3")
	assertEqual(t, "archive.path", cfg.Archive.Path, "my-bucket/dumps")
	assertEqual(t, "archive.region", cfg.Archive.Region, "us-east-1")
	assertEqual(t, "archive.endpoint", cfg.Archive.Endpoint, "https://example.com")
	if !cfg.Archive.S3PathStyle {
		t.Error("expected archive.s3_path_style=true")
	}

	// Adapter
	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/fleetkit")
	if cfg.Adapter.Timeout.Duration != 10*time.Second {
		t.Errorf("expected adapter.timeout=10s, got %v", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Errorf("expected adapter.retries=3")
	}
	if cfg.Adapter.Headers["Authorization"] != "Bearer token123" {
		t.Errorf("expected Authorization header")
	}
}

func TestLoad_EmptyConfig(t *testing.T) {
	path := writeTemp(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Broker.URL != "" {
		t.Errorf("expected empty broker url, got %q", cfg.Broker.URL)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/fleetkit.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "{{invalid yaml")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_BROKER", "tcp://expanded.lan:1883")

	yaml := `broker:
  url: ${TEST_BROKER}
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "broker.url", cfg.Broker.URL, "tcp://expanded.lan:1883")
}

func TestLoad_InvalidDuration(t *testing.T) {
	yaml := `timeouts:
  coredump: soonish
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unparseable duration")
	}
	if !strings.Contains(err.Error(), "soonish") {
		t.Errorf("error should mention the bad value, got: %v", err)
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	yaml := `namespace: plantfloor
bogus_key: should_fail
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "bogus_key") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_UnknownNestedKeyRejected(t *testing.T) {
	yaml := `archive:
  backend: fs
  path: ./data
  unknown_field: bad
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown nested key, got nil")
	}
	if !strings.Contains(err.Error(), "unknown_field") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_WhitespaceOnlyConfig(t *testing.T) {
	path := writeTemp(t, "   \n  \n  \n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed for whitespace-only config: %v", err)
	}
	if cfg.Namespace != "" {
		t.Errorf("expected empty namespace, got %q", cfg.Namespace)
	}
}

func TestLoad_CommentsOnlyConfig(t *testing.T) {
	path := writeTemp(t, "# This is a comment\n# Another comment\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed for comments-only config: %v", err)
	}
	if cfg.Namespace != "" {
		t.Errorf("expected empty namespace, got %q", cfg.Namespace)
	}
}

func TestLoad_RetriesZeroDistinctFromNil(t *testing.T) {
	// retries: 0 should parse as *int(0), not nil.
	yaml := `adapter:
  type: webhook
  url: https://example.com
  retries: 0
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries == nil {
		t.Fatal("expected retries to be non-nil (*int(0)), got nil")
	}
	if *cfg.Adapter.Retries != 0 {
		t.Errorf("expected retries=0, got %d", *cfg.Adapter.Retries)
	}
}

func TestLoad_RetriesOmittedIsNil(t *testing.T) {
	// Omitting retries should leave the pointer nil.
	yaml := `adapter:
  type: webhook
  url: https://example.com
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries != nil {
		t.Errorf("expected nil retries, got %d", *cfg.Adapter.Retries)
	}
}

func TestTimeoutFor(t *testing.T) {
	cfg := &Config{
		Timeouts: TimeoutsConfig{
			Coredump:  Duration{90 * time.Second},
			OTA:       Duration{10 * time.Minute},
			Restart:   Duration{45 * time.Second},
			Discovery: Duration{5 * time.Second},
		},
	}

	cases := map[string]time.Duration{
		"coredump": 90 * time.Second,
		"listen":   90 * time.Second,
		"replay":   90 * time.Second,
		"ota":      10 * time.Minute,
		"restart":  45 * time.Second,
		"discover": 5 * time.Second,
		"unknown":  0,
	}
	for op, want := range cases {
		if got := cfg.TimeoutFor(op); got != want {
			t.Errorf("TimeoutFor(%q): got %v, want %v", op, got, want)
		}
	}
}

func TestTimeoutFor_Unset(t *testing.T) {
	cfg := &Config{}
	if got := cfg.TimeoutFor("coredump"); got != 0 {
		t.Errorf("expected zero for unset timeout, got %v", got)
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fleetkit.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
