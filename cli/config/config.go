package config

import (
	"fmt"
	"time"
)

// Config represents a fleetkit.yaml configuration file.
// All values are optional and act as defaults for fleetkit flags.
// CLI flags always override config values.
type Config struct {
	Broker    BrokerConfig   `yaml:"broker"`
	Namespace string         `yaml:"namespace"`
	OutputDir string         `yaml:"output_dir"`
	Timeouts  TimeoutsConfig `yaml:"timeouts"`
	Firmware  FirmwareConfig `yaml:"firmware"`
	Archive   ArchiveConfig  `yaml:"archive"`
	Adapter   AdapterConfig  `yaml:"adapter"`
}

// BrokerConfig holds MQTT connection defaults from the config file.
type BrokerConfig struct {
	URL            string   `yaml:"url"`
	Username       string   `yaml:"username,omitempty"`
	Password       string   `yaml:"password,omitempty"`
	ClientID       string   `yaml:"client_id,omitempty"`
	ConnectTimeout Duration `yaml:"connect_timeout,omitempty"`
}

// TimeoutsConfig holds per-operation verdict deadlines.
// A zero value falls back to the operation's built-in default.
type TimeoutsConfig struct {
	Coredump  Duration `yaml:"coredump,omitempty"`
	OTA       Duration `yaml:"ota,omitempty"`
	Restart   Duration `yaml:"restart,omitempty"`
	Discovery Duration `yaml:"discovery,omitempty"`
}

// FirmwareConfig holds defaults for the embedded firmware host.
type FirmwareConfig struct {
	Port int `yaml:"port,omitempty"`
}

// ArchiveConfig holds artifact archive defaults from the config file.
// Backend selects "fs" or "s3"; for s3 the path is "bucket/prefix".
type ArchiveConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	S3PathStyle bool   `yaml:"s3_path_style,omitempty"`
}

// AdapterConfig holds completion notification defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// TimeoutFor returns the configured verdict deadline for the named
// operation, or zero when the config file leaves it unset. Zero tells
// the operation to use its built-in default.
func (c *Config) TimeoutFor(op string) time.Duration {
	switch op {
	case "coredump", "listen", "replay":
		return c.Timeouts.Coredump.Duration
	case "ota":
		return c.Timeouts.OTA.Duration
	case "restart":
		return c.Timeouts.Restart.Duration
	case "discover":
		return c.Timeouts.Discovery.Duration
	}
	return 0
}
