package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/opengrid-io/fleetkit/cli/config"
	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/metrics"
	"github.com/opengrid-io/fleetkit/ops"
	"github.com/opengrid-io/fleetkit/types"
)

// ReplayCommand returns the replay command.
func ReplayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "Re-run a recorded transcript through the verdict machinery",
		ArgsUsage: "<transcript>",
		Flags: joinFlags(
			VerdictFlags(),
			ArchiveFlags(),
			[]cli.Flag{
				&cli.StringFlag{
					Name:    "config",
					Aliases: []string{"c"},
					Usage:   "Path to fleetkit.yaml config file",
				},
				&cli.StringFlag{
					Name:  "capability",
					Usage: "Verdict rules to apply: coredump, ota, restart",
					Value: string(types.CapabilityCoredump),
				},
				&cli.StringFlag{
					Name:    "device",
					Aliases: []string{"d"},
					Usage:   "Narrow the session to one device",
				},
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "Dump output path when the transcript holds a transfer",
				},
			},
		),
		Action: replayAction,
	}
}

func replayAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: fleetkit replay <transcript>", ops.ExitUsage)
	}

	// No broker involved; the config file only contributes archive
	// and timeout defaults here.
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(err.Error(), ops.ExitUsage)
		}
		cfg = loaded
	}
	s := &settings{cfg: cfg, outputDir: cfg.OutputDir}

	ctx, cancel := signalContext()
	defer cancel()

	meta := newMeta("replay", c.String("device"))
	logger := log.NewLogger(meta)

	store, err := buildStore(ctx, resolveStore(c, cfg))
	if err != nil {
		return cli.Exit(err.Error(), ops.ExitUsage)
	}

	collector := metrics.NewCollector(meta.Op, meta.OpID, meta.Device)
	result, runErr := ops.Replay(ctx, &ops.ReplayConfig{
		TranscriptPath: c.Args().First(),
		Capability:     types.Capability(c.String("capability")),
		Device:         c.String("device"),
		Timeout:        resolveTimeout(c.Duration("timeout"), cfg, "replay"),
		OutputPath:     c.String("output"),
		Store:          store,
		Meta:           meta,
		Logger:         logger,
		Collector:      collector,
	})
	return finishOperation(ctx, c, s, result, collector, logger, runErr)
}
