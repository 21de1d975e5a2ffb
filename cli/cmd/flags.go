// Package cmd provides CLI commands for the fleetkit binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags for output rendering.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}
)

// ConnectionFlags returns the flags every broker-facing command takes.
// Flag values override the config file; the config file overrides
// built-in defaults.
func ConnectionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to fleetkit.yaml config file",
		},
		&cli.StringFlag{
			Name:  "broker",
			Usage: "Broker URL (e.g. tcp://10.0.0.5:1883)",
		},
		&cli.StringFlag{
			Name:  "username",
			Usage: "Broker username",
		},
		&cli.StringFlag{
			Name:  "password",
			Usage: "Broker password",
		},
		&cli.StringFlag{
			Name:  "client-id",
			Usage: "Broker client identifier (default: generated)",
		},
		&cli.StringFlag{
			Name:  "namespace",
			Usage: "Topic namespace devices publish under",
		},
	}
}

// VerdictFlags returns the flags shared by commands that wait for an
// operation verdict.
func VerdictFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Verdict deadline (default: per-operation)",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write a JSON operation report to this path (\"-\" for stderr)",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress the result summary",
		},
	}
}

// TargetFlags returns the device addressing flags for single-device
// commands that can also fan out across a fleet.
func TargetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"d"},
			Usage:   "Target device identifier (default: discover one)",
		},
		&cli.StringSliceFlag{
			Name:  "devices",
			Usage: "Fan out across these devices instead of one target",
		},
		&cli.BoolFlag{
			Name:  "all",
			Usage: "Fan out across every discovered device",
		},
		&cli.IntFlag{
			Name:  "parallel",
			Usage: "Concurrent devices during fan-out",
		},
		&cli.BoolFlag{
			Name:  "pick",
			Usage: "Pick the target interactively after discovery",
		},
		&cli.DurationFlag{
			Name:  "window",
			Usage: "Discovery window when no device is given",
		},
	}
}

// ArchiveFlags returns the artifact archive flags.
func ArchiveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "archive-backend",
			Usage: "Artifact archive backend: fs or s3",
		},
		&cli.StringFlag{
			Name:  "archive-path",
			Usage: "Archive path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "archive-region",
			Usage: "AWS region for the s3 backend (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "archive-endpoint",
			Usage: "Custom S3 endpoint for the s3 backend",
		},
	}
}

// NotifyFlags returns the completion notification flags.
func NotifyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "notify",
			Usage: "Completion notification adapter: redis or webhook",
		},
		&cli.StringFlag{
			Name:  "notify-url",
			Usage: "Adapter target (redis address or webhook URL)",
		},
		&cli.StringFlag{
			Name:  "notify-channel",
			Usage: "Redis channel for the redis adapter",
		},
	}
}

// joinFlags concatenates flag groups for a command definition.
func joinFlags(groups ...[]cli.Flag) []cli.Flag {
	var flags []cli.Flag
	for _, g := range groups {
		flags = append(flags, g...)
	}
	return flags
}
