package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/metrics"
	"github.com/opengrid-io/fleetkit/ops"
)

// ListenCommand returns the listen command.
func ListenCommand() *cli.Command {
	return &cli.Command{
		Name:  "listen",
		Usage: "Passively capture device traffic, reconstructing any coredump heard",
		Flags: joinFlags(
			ConnectionFlags(),
			VerdictFlags(),
			ArchiveFlags(),
			NotifyFlags(),
			[]cli.Flag{
				&cli.StringFlag{
					Name:    "device",
					Aliases: []string{"d"},
					Usage:   "Narrow the capture to one device (default: whole namespace)",
				},
				&cli.DurationFlag{
					Name:  "window",
					Usage: "Capture window (default: until interrupted)",
				},
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "Dump output path when a transfer is captured",
				},
				&cli.StringFlag{
					Name:  "transcript",
					Usage: "Record raw broker traffic to this file",
				},
			},
		),
		Action: listenAction,
	}
}

func listenAction(c *cli.Context) error {
	s, err := loadSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), ops.ExitUsage)
	}

	ctx, cancel := signalContext()
	defer cancel()

	meta := newMeta("listen", c.String("device"))
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

	collector := metrics.NewCollector(meta.Op, meta.OpID, meta.Device)
	result, runErr := ops.Listen(ctx, &ops.ListenConfig{
		Client:         client,
		Namespace:      s.namespace,
		Device:         c.String("device"),
		Window:         c.Duration("window"),
		OutputPath:     c.String("output"),
		TranscriptPath: c.String("transcript"),
		Store:          store,
		Meta:           meta,
		Logger:         logger,
		Collector:      collector,
	})
	return finishOperation(ctx, c, s, result, collector, logger, runErr)
}
