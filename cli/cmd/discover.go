package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/opengrid-io/fleetkit/cli/render"
	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/metrics"
	"github.com/opengrid-io/fleetkit/ops"
)

// DiscoveredDevice is one row of discover output.
type DiscoveredDevice struct {
	Device    string `json:"device"`
	FirstSeen string `json:"first_seen"`
}

// DiscoverCommand returns the discover command.
func DiscoverCommand() *cli.Command {
	return &cli.Command{
		Name:  "discover",
		Usage: "List devices publishing telemetry in the namespace",
		Flags: joinFlags(
			ConnectionFlags(),
			[]cli.Flag{
				&cli.DurationFlag{
					Name:  "window",
					Usage: "Listening window",
				},
				&cli.BoolFlag{
					Name:  "first",
					Usage: "Stop at the first device sighted",
				},
				&cli.StringFlag{
					Name:  "report",
					Usage: "Write a JSON operation report to this path (\"-\" for stderr)",
				},
				FormatFlag,
				NoColorFlag,
			},
		),
		Action: discoverAction,
	}
}

func discoverAction(c *cli.Context) error {
	s, err := loadSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), ops.ExitUsage)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), ops.ExitUsage)
	}

	ctx, cancel := signalContext()
	defer cancel()

	meta := newMeta("discover", "")
	logger := log.NewLogger(meta)

	client, err := s.connect(ctx, logger)
	if err != nil {
		return cli.Exit(err.Error(), ops.ExitTransport)
	}
	defer client.Disconnect()

	collector := metrics.NewCollector(meta.Op, meta.OpID, "")
	result, err := ops.Discover(ctx, &ops.DiscoverConfig{
		Client:    client,
		Namespace: s.namespace,
		Window:    resolveTimeout(c.Duration("window"), s.cfg, "discover"),
		StopEarly: c.Bool("first"),
		Meta:      meta,
		Logger:    logger,
		Collector: collector,
	})
	if err != nil {
		return cli.Exit(err.Error(), ops.ExitCodeForError(err))
	}

	if path := c.String("report"); path != "" {
		report := ops.BuildReport(result, collector.Snapshot(), ops.ExitSuccess)
		if err := ops.WriteReport(report, path); err != nil {
			return cli.Exit(err.Error(), ops.ExitFailure)
		}
	}

	rows := make([]DiscoveredDevice, 0, len(result.Devices))
	for _, sighting := range result.Devices {
		rows = append(rows, DiscoveredDevice{
			Device:    sighting.Device,
			FirstSeen: sighting.FirstSeen.UTC().Format(time.RFC3339),
		})
	}
	if err := r.Render(rows); err != nil {
		return cli.Exit(err.Error(), ops.ExitFailure)
	}

	if len(rows) == 0 {
		return cli.Exit("", ops.ExitFailure)
	}
	return nil
}
