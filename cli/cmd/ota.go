package cmd

import (
	"context"
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/metrics"
	"github.com/opengrid-io/fleetkit/ops"
	"github.com/opengrid-io/fleetkit/types"
)

// OTACommand returns the ota command.
func OTACommand() *cli.Command {
	return &cli.Command{
		Name:  "ota",
		Usage: "Push a firmware update to a device and monitor it",
		Flags: joinFlags(
			ConnectionFlags(),
			TargetFlags(),
			VerdictFlags(),
			NotifyFlags(),
			[]cli.Flag{
				&cli.StringFlag{
					Name:  "firmware",
					Usage: "Local firmware image to host over HTTP",
				},
				&cli.StringFlag{
					Name:  "url",
					Usage: "Already-hosted firmware URL instead of --firmware",
				},
				&cli.Int64Flag{
					Name:  "size",
					Usage: "Image size in bytes for progress estimation with --url",
				},
				&cli.IntFlag{
					Name:  "port",
					Usage: "Firmware host port with --firmware",
				},
				&cli.StringFlag{
					Name:  "transcript",
					Usage: "Record raw broker traffic to this file",
				},
			},
		),
		Action: otaAction,
	}
}

// validateOTASource enforces exactly one firmware source.
func validateOTASource(firmwarePath, firmwareURL string) error {
	if firmwarePath == "" && firmwareURL == "" {
		return errors.New("one of --firmware or --url is required")
	}
	if firmwarePath != "" && firmwareURL != "" {
		return errors.New("--firmware and --url are mutually exclusive")
	}
	return nil
}

func otaAction(c *cli.Context) error {
	if err := validateOTASource(c.String("firmware"), c.String("url")); err != nil {
		return cli.Exit(err.Error(), ops.ExitUsage)
	}

	s, err := loadSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), ops.ExitUsage)
	}

	ctx, cancel := signalContext()
	defer cancel()

	meta := newMeta("ota", c.String("device"))
	logger := log.NewLogger(meta)

	client, err := s.connect(ctx, logger)
	if err != nil {
		return cli.Exit(err.Error(), ops.ExitTransport)
	}
	defer client.Disconnect()

	timeout := resolveTimeout(c.Duration("timeout"), s.cfg, "ota")
	port := c.Int("port")
	if port == 0 {
		port = s.cfg.Firmware.Port
	}

	devices, err := resolveFleet(ctx, c, client, s, logger)
	if err != nil {
		return cli.Exit(err.Error(), ops.ExitUsage)
	}
	if len(devices) > 0 {
		// Each fan-out device hosts its own copy of the image, so
		// fixed ports would collide. Ephemeral ports avoid that.
		fleetPort := port
		if c.String("firmware") != "" {
			fleetPort = -1
		}
		fr := ops.RunFleet(ctx, &ops.FleetConfig{
			Devices:  devices,
			Parallel: c.Int("parallel"),
			Logger:   logger,
		}, "ota", func(ctx context.Context, device string, meta *types.OpMeta) (*ops.Result, error) {
			return ops.PushFirmware(ctx, &ops.OTAConfig{
				Client:       client,
				Namespace:    s.namespace,
				Device:       device,
				Timeout:      timeout,
				FirmwarePath: c.String("firmware"),
				FirmwareURL:  c.String("url"),
				FirmwareSize: c.Int64("size"),
				Port:         fleetPort,
				Meta:         meta,
				Collector:    metrics.NewCollector(meta.Op, meta.OpID, device),
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
	result, runErr := ops.PushFirmware(ctx, &ops.OTAConfig{
		Client:         client,
		Namespace:      s.namespace,
		Device:         device,
		Timeout:        timeout,
		FirmwarePath:   c.String("firmware"),
		FirmwareURL:    c.String("url"),
		FirmwareSize:   c.Int64("size"),
		Port:           port,
		TranscriptPath: c.String("transcript"),
		Meta:           meta,
		Logger:         logger,
		Collector:      collector,
	})
	return finishOperation(ctx, c, s, result, collector, logger, runErr)
}
