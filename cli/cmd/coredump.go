package cmd

import (
	"context"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/metrics"
	"github.com/opengrid-io/fleetkit/ops"
	"github.com/opengrid-io/fleetkit/types"
)

// CoredumpCommand returns the coredump command.
func CoredumpCommand() *cli.Command {
	return &cli.Command{
		Name:  "coredump",
		Usage: "Request a crash dump from a device and reassemble it",
		Flags: joinFlags(
			ConnectionFlags(),
			TargetFlags(),
			VerdictFlags(),
			ArchiveFlags(),
			NotifyFlags(),
			[]cli.Flag{
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "Dump output path (default: coredump_<device>.bin)",
				},
				&cli.StringFlag{
					Name:  "transcript",
					Usage: "Record raw broker traffic to this file",
				},
			},
		),
		Action: coredumpAction,
	}
}

func coredumpAction(c *cli.Context) error {
	s, err := loadSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), ops.ExitUsage)
	}

	ctx, cancel := signalContext()
	defer cancel()

	meta := newMeta("coredump", c.String("device"))
	logger := log.NewLogger(meta)

	client, err := s.connect(ctx, logger)
	if err != nil {
		return cli.Exit(err.Error(), ops.ExitTransport)
	}
	defer client.Disconnect()

	store, err := buildStore(ctx, resolveStore(c, s.cfg))
	if err != nil {
		return cli.Exit(err.Error(), ops.ExitUsage)
	}

	timeout := resolveTimeout(c.Duration("timeout"), s.cfg, "coredump")

	devices, err := resolveFleet(ctx, c, client, s, logger)
	if err != nil {
		return cli.Exit(err.Error(), ops.ExitUsage)
	}
	if len(devices) > 0 {
		fr := ops.RunFleet(ctx, &ops.FleetConfig{
			Devices:  devices,
			Parallel: c.Int("parallel"),
			Logger:   logger,
		}, "coredump", func(ctx context.Context, device string, meta *types.OpMeta) (*ops.Result, error) {
			return ops.FetchCoredump(ctx, &ops.CoredumpConfig{
				Client:     client,
				Namespace:  s.namespace,
				Device:     device,
				Timeout:    timeout,
				OutputPath: dumpPath(s, device),
				Store:      store,
				Meta:       meta,
				Collector:  metrics.NewCollector(meta.Op, meta.OpID, device),
			})
		})
		return finishFleet(c, fr)
	}

	device, err := resolveTarget(ctx, c, client, s, logger)
	if err != nil {
		return cli.Exit(err.Error(), ops.ExitUsage)
	}
	meta.Device = device
	logger = logger.WithDevice(device)

	output := c.String("output")
	if output == "" {
		output = dumpPath(s, device)
	}

	collector := metrics.NewCollector(meta.Op, meta.OpID, device)
	result, runErr := ops.FetchCoredump(ctx, &ops.CoredumpConfig{
		Client:         client,
		Namespace:      s.namespace,
		Device:         device,
		Timeout:        timeout,
		OutputPath:     output,
		TranscriptPath: c.String("transcript"),
		Store:          store,
		Meta:           meta,
		Logger:         logger,
		Collector:      collector,
	})
	return finishOperation(ctx, c, s, result, collector, logger, runErr)
}

// dumpPath derives a dump filename inside the configured output
// directory.
func dumpPath(s *settings, device string) string {
	name := ops.DefaultOutputPath(device, time.Now())
	if s.outputDir == "" {
		return name
	}
	return filepath.Join(s.outputDir, name)
}
