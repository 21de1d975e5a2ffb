package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/opengrid-io/fleetkit/adapter"
	redisadapter "github.com/opengrid-io/fleetkit/adapter/redis"
	"github.com/opengrid-io/fleetkit/adapter/webhook"
	"github.com/opengrid-io/fleetkit/archive"
	"github.com/opengrid-io/fleetkit/cli/config"
	"github.com/opengrid-io/fleetkit/cli/tui"
	"github.com/opengrid-io/fleetkit/discovery"
	"github.com/opengrid-io/fleetkit/log"
	"github.com/opengrid-io/fleetkit/ops"
	"github.com/opengrid-io/fleetkit/transport"
	"github.com/opengrid-io/fleetkit/types"
)

// settings holds connection parameters resolved from flags and the
// optional config file. Flags win over the file, the file wins over
// built-in defaults.
type settings struct {
	cfg       *config.Config
	broker    transport.Config
	namespace string
	outputDir string
}

// loadSettings resolves connection settings from the CLI context.
func loadSettings(c *cli.Context) (*settings, error) {
	var cfg *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = &config.Config{}
	}

	s := &settings{
		cfg: cfg,
		broker: transport.Config{
			BrokerURL:      resolve(c.String("broker"), cfg.Broker.URL),
			Username:       resolve(c.String("username"), cfg.Broker.Username),
			Password:       resolve(c.String("password"), cfg.Broker.Password),
			ClientID:       resolve(c.String("client-id"), cfg.Broker.ClientID),
			ConnectTimeout: cfg.Broker.ConnectTimeout.Duration,
		},
		namespace: resolve(c.String("namespace"), cfg.Namespace),
		outputDir: cfg.OutputDir,
	}

	if s.broker.BrokerURL == "" {
		return nil, errors.New("broker URL required (--broker or config file)")
	}
	if s.broker.ClientID == "" {
		s.broker.ClientID = "fleetkit-" + uuid.New().String()[:8]
	}
	return s, nil
}

// resolve applies flag-over-config precedence for one string value.
func resolve(flagVal, cfgVal string) string {
	if flagVal != "" {
		return flagVal
	}
	return cfgVal
}

// resolveTimeout applies flag-over-config precedence for the verdict
// deadline. Zero means the operation's built-in default.
func resolveTimeout(flagVal time.Duration, cfg *config.Config, op string) time.Duration {
	if flagVal > 0 {
		return flagVal
	}
	if cfg != nil {
		return cfg.TimeoutFor(op)
	}
	return 0
}

// connect dials the broker. The returned client is connected; callers
// own Disconnect.
func (s *settings) connect(ctx context.Context, logger *log.Logger) (transport.Client, error) {
	client := transport.NewMQTTClient(s.broker, logger)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// newMeta creates the operation identity for one invocation.
func newMeta(op, device string) *types.OpMeta {
	return &types.OpMeta{
		OpID:   uuid.New().String(),
		Op:     op,
		Device: device,
	}
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

// storeChoice holds resolved archive configuration.
type storeChoice struct {
	backend   string
	path      string
	region    string
	endpoint  string
	pathStyle bool
}

// resolveStore applies flag-over-config precedence for the archive.
func resolveStore(c *cli.Context, cfg *config.Config) storeChoice {
	choice := storeChoice{
		backend:  resolve(c.String("archive-backend"), cfg.Archive.Backend),
		path:     resolve(c.String("archive-path"), cfg.Archive.Path),
		region:   resolve(c.String("archive-region"), cfg.Archive.Region),
		endpoint: resolve(c.String("archive-endpoint"), cfg.Archive.Endpoint),
	}
	choice.pathStyle = cfg.Archive.S3PathStyle || choice.endpoint != ""
	return choice
}

// buildStore creates the archive store from a resolved choice. A
// choice without a path means no archiving; (nil, nil) is returned.
func buildStore(ctx context.Context, choice storeChoice) (archive.Store, error) {
	if choice.path == "" {
		return nil, nil
	}
	switch choice.backend {
	case "fs", "":
		return archive.NewFSStore(choice.path), nil
	case "s3":
		bucket, prefix := archive.ParseS3Path(choice.path)
		return archive.NewS3Store(ctx, archive.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       choice.region,
			Endpoint:     choice.endpoint,
			UsePathStyle: choice.pathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown archive-backend: %s (must be fs or s3)", choice.backend)
	}
}

// notifyChoice holds resolved completion notification configuration.
type notifyChoice struct {
	kind    string
	url     string
	channel string
	headers map[string]string
	timeout time.Duration
	retries int
}

// resolveNotify applies flag-over-config precedence for notifications.
func resolveNotify(c *cli.Context, cfg *config.Config) notifyChoice {
	choice := notifyChoice{
		kind:    resolve(c.String("notify"), cfg.Adapter.Type),
		url:     resolve(c.String("notify-url"), cfg.Adapter.URL),
		channel: resolve(c.String("notify-channel"), cfg.Adapter.Channel),
		headers: cfg.Adapter.Headers,
		timeout: cfg.Adapter.Timeout.Duration,
	}
	if cfg.Adapter.Retries != nil {
		choice.retries = *cfg.Adapter.Retries
	}
	return choice
}

// buildNotifier creates the completion notification adapter. A choice
// without a kind means no notification; (nil, nil) is returned.
func buildNotifier(choice notifyChoice) (adapter.Adapter, error) {
	switch choice.kind {
	case "":
		return nil, nil
	case "redis":
		return redisadapter.New(redisadapter.Config{
			URL:     choice.url,
			Channel: choice.channel,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     choice.url,
			Headers: choice.headers,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
	default:
		return nil, fmt.Errorf("unknown notify adapter: %s (must be redis or webhook)", choice.kind)
	}
}

// resolveFleet returns the fan-out device list: --devices verbatim, or
// every device a full discovery window sighted when --all is set. An
// empty list means the command addresses a single target instead.
func resolveFleet(ctx context.Context, c *cli.Context, client transport.Client, s *settings, logger *log.Logger) ([]string, error) {
	if devices := c.StringSlice("devices"); len(devices) > 0 {
		return devices, nil
	}
	if !c.Bool("all") {
		return nil, nil
	}

	result, err := ops.Discover(ctx, &ops.DiscoverConfig{
		Client:    client,
		Namespace: s.namespace,
		Window:    resolveTimeout(c.Duration("window"), s.cfg, "discover"),
		Meta:      newMeta("discover", ""),
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("device discovery failed: %w", err)
	}
	if len(result.Devices) == 0 {
		return nil, errors.New("no devices discovered within the window")
	}

	devices := make([]string, 0, len(result.Devices))
	for _, sighting := range result.Devices {
		devices = append(devices, sighting.Device)
	}
	return devices, nil
}

// resolveTarget determines the device an operation addresses. An
// explicit --device wins; otherwise a discovery census runs and the
// target is picked by arrival order, or interactively with --pick.
func resolveTarget(ctx context.Context, c *cli.Context, client transport.Client, s *settings, logger *log.Logger) (string, error) {
	if device := c.String("device"); device != "" {
		return device, nil
	}

	pick := c.Bool("pick")
	if pick && !tui.IsInteractive() {
		return "", errors.New("--pick requires an interactive terminal")
	}

	result, err := ops.Discover(ctx, &ops.DiscoverConfig{
		Client:    client,
		Namespace: s.namespace,
		Window:    resolveTimeout(c.Duration("window"), s.cfg, "discover"),
		StopEarly: !pick,
		Meta:      newMeta("discover", ""),
		Logger:    logger,
	})
	if err != nil {
		return "", fmt.Errorf("device discovery failed: %w", err)
	}

	registry := discovery.NewRegistry()
	for _, sighting := range result.Devices {
		registry.Record(sighting.Device, sighting.FirstSeen)
	}

	req := discovery.SelectRequest{Policy: discovery.PolicyFirstFound}
	if pick {
		req = discovery.SelectRequest{
			Policy: discovery.PolicyInteractive,
			Prompt: func(candidates []discovery.Sighting) (string, error) {
				return tui.RunPicker(candidates)
			},
		}
	}
	return registry.Select(req)
}
