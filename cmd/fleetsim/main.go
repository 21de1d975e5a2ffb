// Package main provides the fleetsim CLI entrypoint, a simulated
// device for exercising fleetkit without hardware.
//
// Usage:
//
//	fleetsim run --broker tcp://localhost:1883 [options]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/sim"
	"github.com/opengrid-io/fleetkit/transport"
	"github.com/opengrid-io/fleetkit/types"
)

func main() {
	app := &cli.App{
		Name:    "fleetsim",
		Usage:   "Simulated device: answers coredump, ota, and restart commands",
		Version: types.Version,
		Commands: []*cli.Command{
			runCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Connect to a broker and behave like a device",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "broker",
				Usage:    "Broker URL (e.g. tcp://localhost:1883)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "namespace",
				Usage: "Topic namespace",
			},
			&cli.StringFlag{
				Name:  "device",
				Usage: "Device identifier (default: generated)",
			},
			&cli.StringFlag{
				Name:  "dump",
				Usage: "File served as the coredump (default: no dump available)",
			},
			&cli.IntFlag{
				Name:  "chunk-size",
				Usage: "Coredump chunk size in bytes",
				Value: sim.DefaultChunkSize,
			},
			&cli.DurationFlag{
				Name:  "telemetry-interval",
				Usage: "Measurement publish interval",
				Value: sim.DefaultTelemetryInterval,
			},
			&cli.BoolFlag{
				Name:  "fail-ota",
				Usage: "Report every OTA attempt as failed",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	var dump []byte
	if path := c.String("dump"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read dump file: %w", err)
		}
		dump = data
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	logger := log.NewLogger(&types.OpMeta{OpID: "fleetsim", Op: "sim", Device: c.String("device")})

	clientID := c.String("device")
	if clientID == "" {
		clientID = uuid.New().String()[:8]
	}
	client := transport.NewMQTTClient(transport.Config{
		BrokerURL: c.String("broker"),
		ClientID:  "fleetsim-" + clientID,
	}, logger)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("broker connect: %w", err)
	}
	defer client.Disconnect()

	device := sim.New(sim.Config{
		Client:            client,
		Namespace:         c.String("namespace"),
		DeviceID:          c.String("device"),
		Dump:              dump,
		ChunkSize:         c.Int("chunk-size"),
		TelemetryInterval: c.Duration("telemetry-interval"),
		FailOTA:           c.Bool("fail-ota"),
		Logger:            logger,
	})

	logger.Info("device online", map[string]any{
		"device": device.ID(),
	})

	if err := device.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
