package cmd

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/metrics"
	"github.com/opengrid-io/fleetkit/ops"
	"github.com/opengrid-io/fleetkit/types"
)

// RestartCommand returns the restart command.
func RestartCommand() *cli.Command {
	return &cli.Command{
		Name:  "restart",
		Usage: "Restart a device and wait for its acknowledgement",
		Flags: joinFlags(
			ConnectionFlags(),
			TargetFlags(),
			VerdictFlags(),
			NotifyFlags(),
		),
		Action: restartAction,
	}
}

func restartAction(c *cli.Context) error {
	s, err := loadSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), ops.ExitUsage)
	}

	ctx, cancel := signalContext()
	defer cancel()

	meta := newMeta("restart", c.String("device"))
	logger := log.NewLogger(meta)

	client, err := s.connect(ctx, logger)
	if err != nil {
		return cli.Exit(err.Error(), ops.ExitTransport)
	}
	defer client.Disconnect()

	timeout := resolveTimeout(c.Duration("timeout"), s.cfg, "restart")

	devices, err := resolveFleet(ctx, c, client, s, logger)
	if err != nil {
		return cli.Exit(err.Error(), ops.ExitUsage)
	}
	if len(devices) > 0 {
		fr := ops.RunFleet(ctx, &ops.FleetConfig{
			Devices:  devices,
			Parallel: c.Int("parallel"),
			Logger:   logger,
		}, "restart", func(ctx context.Context, device string, meta *types.OpMeta) (*ops.Result, error) {
			return ops.Restart(ctx, &ops.RestartConfig{
				Client:    client,
				Namespace: s.namespace,
				Device:    device,
				Timeout:   timeout,
				Meta:      meta,
				Collector: metrics.NewCollector(meta.Op, meta.OpID, device),
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

	collector := metrics.NewCollector(meta.Op, meta.OpID, device)
	result, runErr := ops.Restart(ctx, &ops.RestartConfig{
		Client:    client,
		Namespace: s.namespace,
		Device:    device,
		Timeout:   timeout,
		Meta:      meta,
		Logger:    logger,
		Collector: collector,
	})
	return finishOperation(ctx, c, s, result, collector, logger, runErr)
}
