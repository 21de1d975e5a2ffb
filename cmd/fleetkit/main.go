// Package main provides the fleetkit CLI entrypoint.
//
// Usage:
//
//	fleetkit <command> [options]
//
// Exit codes for operation commands:
//   - 0: success
//   - 1: device reported failure
//   - 2: invalid arguments or configuration
//   - 3: deadline passed without a verdict
//   - 4: broker connect, subscribe, or publish failed
//   - 5: transfer ended with chunk gaps
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/opengrid-io/fleetkit/cli/cmd"
	"github.com/opengrid-io/fleetkit/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "fleetkit",
		Usage:          "Operate remote devices over MQTT: coredumps, firmware, restarts",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.CoredumpCommand(),
			cmd.OTACommand(),
			cmd.RestartCommand(),
			cmd.DiscoverCommand(),
			cmd.ListenCommand(),
			cmd.ReplayCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder
		// errors. This branch handles unexpected errors that weren't
		// wrapped.
		os.Exit(1)
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes
// from cli.Exit() so scripts can branch on the documented contract.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N"; skip those
		// so clean exits stay silent.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
