package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/opengrid-io/fleetkit/coredump"
	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/metrics"
	"github.com/opengrid-io/fleetkit/ops"
)

// finishOperation handles the common tail of every verdict-bearing
// command: report file, completion notification, result summary, and
// the process exit code.
func finishOperation(ctx context.Context, c *cli.Context, s *settings, result *ops.Result, collector *metrics.Collector, logger *log.Logger, runErr error) error {
	if runErr != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", runErr), ops.ExitCodeForError(runErr))
	}

	exitCode := ops.ExitCodeFor(result.Outcome.Status)

	if path := c.String("report"); path != "" {
		report := ops.BuildReport(result, collector.Snapshot(), exitCode)
		if err := ops.WriteReport(report, path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	notify(ctx, c, s, result, logger)

	if !c.Bool("quiet") {
		printResult(result)
	}

	return cli.Exit("", exitCode)
}

// notify publishes the completion event when an adapter is configured.
// Notification failures never change the verdict; the operation
// already concluded.
func notify(ctx context.Context, c *cli.Context, s *settings, result *ops.Result, logger *log.Logger) {
	notifier, err := buildNotifier(resolveNotify(c, s.cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		return
	}
	if notifier == nil {
		return
	}
	defer func() { _ = notifier.Close() }()

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := notifier.Publish(notifyCtx, ops.CompletionEvent(result)); err != nil {
		logger.Warn("completion notification failed", map[string]any{
			"error": err.Error(),
		})
	}
}

// printResult writes the human-readable summary to stdout.
func printResult(result *ops.Result) {
	fmt.Printf("\n=== Operation Result ===\n")
	fmt.Printf("Op ID:        %s\n", result.Meta.OpID)
	fmt.Printf("Operation:    %s\n", result.Meta.Op)
	if result.Device != "" {
		fmt.Printf("Device:       %s\n", result.Device)
	}
	fmt.Printf("Outcome:      %s\n", result.Outcome.Status)
	fmt.Printf("Message:      %s\n", result.Outcome.Message)
	if result.Outcome.DeviceText != nil {
		fmt.Printf("Device said:  %s\n", *result.Outcome.DeviceText)
	}
	fmt.Printf("Duration:     %s\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("Messages:     %d\n", result.Messages)

	if t := result.Transfer; t != nil {
		fmt.Printf("\n=== Transfer ===\n")
		fmt.Printf("Chunks:       %d/%d\n", t.ChunksReceived, t.ChunksDeclared)
		fmt.Printf("Bytes:        %d\n", t.Bytes)
		if t.Duplicates > 0 {
			fmt.Printf("Duplicates:   %d\n", t.Duplicates)
		}
		fmt.Printf("Missing:      %s\n", coredump.FormatIndexRanges(t.Missing))
	}

	if a := result.Artifact; a != nil {
		fmt.Printf("\n=== Artifact ===\n")
		fmt.Printf("Dump:         %s\n", a.BinPath)
		if a.HeaderPath != "" {
			fmt.Printf("Header:       %s\n", a.HeaderPath)
		}
		if a.Archive != "" {
			fmt.Printf("Archive:      %s\n", a.Archive)
		}
	}

	if p := result.Progress; p != nil {
		fmt.Printf("\n=== Progress ===\n")
		fmt.Printf("Transferred:  %.0f bytes\n", p.TotalBytes)
		fmt.Printf("Avg speed:    %.1f KB/s\n", p.AvgThroughput/1024)
		fmt.Printf("Samples:      %d\n", p.Samples)
	}
}

// finishFleet prints the fan-out summary and maps it to an exit code:
// success only when every device succeeded.
func finishFleet(c *cli.Context, fr *ops.FleetResult) error {
	if !c.Bool("quiet") {
		printFleetResult(fr)
	}
	if fr.Failed > 0 {
		return cli.Exit("", ops.ExitFailure)
	}
	return cli.Exit("", ops.ExitSuccess)
}

// printFleetResult writes the per-device fan-out summary to stdout.
func printFleetResult(fr *ops.FleetResult) {
	fmt.Printf("\n=== Fleet Result ===\n")
	fmt.Printf("Devices:      %d\n", fr.Total)
	fmt.Printf("Succeeded:    %d\n", fr.Succeeded)
	fmt.Printf("Failed:       %d\n", fr.Failed)
	for device, result := range fr.Results {
		fmt.Printf("  %-24s %s: %s\n", device, result.Outcome.Status, result.Outcome.Message)
	}
	for device, errText := range fr.Errors {
		fmt.Printf("  %-24s error: %s\n", device, errText)
	}
}
