package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/opengrid-io/fleetkit/cli/config"
)

func flagNames(flags []cli.Flag) map[string]bool {
	names := make(map[string]bool)
	for _, f := range flags {
		for _, n := range f.Names() {
			names[n] = true
		}
	}
	return names
}

func TestCommands_FlagWiring(t *testing.T) {
	tests := []struct {
		command *cli.Command
		want    []string
	}{
		{CoredumpCommand(), []string{"broker", "device", "devices", "timeout", "output", "transcript", "report", "archive-backend", "notify"}},
		{OTACommand(), []string{"broker", "device", "firmware", "url", "size", "port", "timeout", "report"}},
		{RestartCommand(), []string{"broker", "device", "devices", "timeout"}},
		{DiscoverCommand(), []string{"broker", "window", "first", "format"}},
		{ListenCommand(), []string{"broker", "device", "window", "output", "transcript"}},
		{ReplayCommand(), []string{"capability", "device", "timeout", "output"}},
		{VersionCommand("abc"), []string{"format", "no-color"}},
	}

	for _, tt := range tests {
		t.Run(tt.command.Name, func(t *testing.T) {
			names := flagNames(tt.command.Flags)
			for _, want := range tt.want {
				if !names[want] {
					t.Errorf("%s is missing flag --%s", tt.command.Name, want)
				}
			}
		})
	}
}

func TestResolve_FlagWinsOverConfig(t *testing.T) {
	if got := resolve("flag", "config"); got != "flag" {
		t.Errorf("resolve = %q, want flag value", got)
	}
	if got := resolve("", "config"); got != "config" {
		t.Errorf("resolve = %q, want config value", got)
	}
	if got := resolve("", ""); got != "" {
		t.Errorf("resolve = %q, want empty", got)
	}
}

func TestResolveTimeout_Precedence(t *testing.T) {
	cfg := &config.Config{}
	cfg.Timeouts.OTA.Duration = 10 * time.Minute

	if got := resolveTimeout(time.Minute, cfg, "ota"); got != time.Minute {
		t.Errorf("flag should win, got %s", got)
	}
	if got := resolveTimeout(0, cfg, "ota"); got != 10*time.Minute {
		t.Errorf("config should apply, got %s", got)
	}
	// Zero means the operation default applies downstream.
	if got := resolveTimeout(0, cfg, "coredump"); got != 0 {
		t.Errorf("unset config timeout should stay zero, got %s", got)
	}
	if got := resolveTimeout(0, nil, "ota"); got != 0 {
		t.Errorf("nil config should yield zero, got %s", got)
	}
}

func TestValidateOTASource(t *testing.T) {
	if err := validateOTASource("", ""); err == nil {
		t.Error("no source should be rejected")
	}
	if err := validateOTASource("fw.bin", "http://host/fw.bin"); err == nil {
		t.Error("two sources should be rejected")
	}
	if err := validateOTASource("fw.bin", ""); err != nil {
		t.Errorf("local image rejected: %v", err)
	}
	if err := validateOTASource("", "http://host/fw.bin"); err != nil {
		t.Errorf("URL rejected: %v", err)
	}
}

func TestBuildStore(t *testing.T) {
	ctx := context.Background()

	store, err := buildStore(ctx, storeChoice{})
	if err != nil || store != nil {
		t.Errorf("empty choice should disable archiving, got %v, %v", store, err)
	}

	store, err = buildStore(ctx, storeChoice{backend: "fs", path: t.TempDir()})
	if err != nil || store == nil {
		t.Errorf("fs store: %v, %v", store, err)
	}

	// Backend defaults to fs when only a path is set.
	store, err = buildStore(ctx, storeChoice{path: t.TempDir()})
	if err != nil || store == nil {
		t.Errorf("default backend: %v, %v", store, err)
	}

	if _, err := buildStore(ctx, storeChoice{backend: "ftp", path: "somewhere"}); err == nil {
		t.Error("unknown backend should be rejected")
	}
}

func TestBuildNotifier(t *testing.T) {
	notifier, err := buildNotifier(notifyChoice{})
	if err != nil || notifier != nil {
		t.Errorf("empty choice should disable notification, got %v, %v", notifier, err)
	}

	notifier, err = buildNotifier(notifyChoice{kind: "webhook", url: "http://hooks.local/fleet"})
	if err != nil || notifier == nil {
		t.Errorf("webhook notifier: %v, %v", notifier, err)
	}

	if _, err := buildNotifier(notifyChoice{kind: "webhook"}); err == nil {
		t.Error("webhook without URL should be rejected")
	}
	if _, err := buildNotifier(notifyChoice{kind: "carrier-pigeon"}); err == nil {
		t.Error("unknown adapter should be rejected")
	}
}

func TestNewMeta_Identity(t *testing.T) {
	a := newMeta("coredump", "dev1")
	b := newMeta("coredump", "dev1")
	if a.OpID == b.OpID {
		t.Error("op IDs must be unique per invocation")
	}
	if a.Op != "coredump" || a.Device != "dev1" {
		t.Errorf("meta = %+v", a)
	}
	if err := a.Validate(); err != nil {
		t.Errorf("generated meta should validate: %v", err)
	}
}

func TestJoinFlags(t *testing.T) {
	got := joinFlags(ConnectionFlags(), VerdictFlags())
	if len(got) != len(ConnectionFlags())+len(VerdictFlags()) {
		t.Errorf("joinFlags lost flags: %d", len(got))
	}
}
