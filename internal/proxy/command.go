package proxy

import (
	"context"
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/drksbr/xmlabridge/internal/config"
	"github.com/drksbr/xmlabridge/internal/discovery"
	"github.com/drksbr/xmlabridge/internal/events"
	"github.com/drksbr/xmlabridge/internal/observability"
	"github.com/drksbr/xmlabridge/internal/runtime"
	"github.com/drksbr/xmlabridge/internal/settings"
	"github.com/drksbr/xmlabridge/internal/statusapi"
	"github.com/drksbr/xmlabridge/internal/util"
)

type serveOptions struct {
	listenPort    int
	targetPort    int
	database      string
	allowRemote   bool
	workspaceRoot string
	settingsPath  string
	statusListen  string
	maxPending    int
	connIDMode    string

	traceEnabled  bool
	traceExporter string
	traceEndpoint string
	traceInsecure bool
}

// NewCommand returns the "serve" subcommand that runs the bridge until
// interrupted.
func NewCommand(globals *runtime.Options) *cobra.Command {
	opts := &serveOptions{
		connIDMode:    "uuid",
		traceExporter: "stdout",
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the stable-port rewriting bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			if globals.Logger() == nil {
				if err := globals.SetupLogger(); err != nil {
					return err
				}
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runServe(ctx, globals, opts)
		},
	}

	cmd.Flags().IntVar(&opts.listenPort, "listen-port", 0, "fixed port to expose (default: persisted settings)")
	cmd.Flags().IntVar(&opts.targetPort, "target-port", 0, "target instance port (default: autodiscover)")
	cmd.Flags().StringVar(&opts.database, "database", "", "target database name substituted into requests (default: autodiscover)")
	cmd.Flags().BoolVar(&opts.allowRemote, "allow-remote", false, "accept connections from other machines, not only loopback")
	cmd.Flags().StringVar(&opts.workspaceRoot, "workspace-root", "", "workspace root to scan for instances (default: autodetect)")
	cmd.Flags().StringVar(&opts.settingsPath, "settings", "", "settings file path (default: user config dir)")
	cmd.Flags().StringVar(&opts.statusListen, "status-listen", "", "optional listen address for the status API (e.g. 127.0.0.1:9185)")
	cmd.Flags().IntVar(&opts.maxPending, "max-pending", 0, "cap in bytes on buffered rewrite data across connections (0 = unlimited)")
	cmd.Flags().StringVar(&opts.connIDMode, "conn-id-mode", opts.connIDMode, "connection identifier generator (uuid or cuid)")
	cmd.Flags().BoolVar(&opts.traceEnabled, "trace", false, "enable OpenTelemetry tracing")
	cmd.Flags().StringVar(&opts.traceExporter, "trace-exporter", opts.traceExporter, "trace exporter (stdout, otlp-grpc, otlp-http)")
	cmd.Flags().StringVar(&opts.traceEndpoint, "trace-endpoint", "", "OTLP collector endpoint")
	cmd.Flags().BoolVar(&opts.traceInsecure, "trace-insecure", false, "disable TLS on the OTLP exporter")

	return cmd
}

func runServe(ctx context.Context, globals *runtime.Options, opts *serveOptions) error {
	logger := globals.Logger().With("component", "serve")

	// .env overrides shell variables so a bridge dropped next to a report
	// folder picks up its local configuration first.
	if err := godotenv.Overload(".env"); err != nil {
		logger.Debug("no .env file found, using process environment")
	}

	settingsPath := opts.settingsPath
	if settingsPath == "" {
		detected, err := settings.DefaultPath()
		if err != nil {
			return fmt.Errorf("resolve settings path: %w", err)
		}
		settingsPath = detected
	}
	stored, err := settings.Load(settingsPath)
	if err != nil {
		return err
	}

	listenPort := opts.listenPort
	if listenPort == 0 {
		listenPort = config.GetIntEnv("XMLABRIDGE_LISTEN_PORT", stored.FixedPort)
	}
	allowRemote := opts.allowRemote || config.GetBoolEnv("XMLABRIDGE_ALLOW_REMOTE", stored.AllowNetworkAccess)
	if allowRemote && stored.NetworkPort != 0 && opts.listenPort == 0 {
		listenPort = stored.NetworkPort
	}

	targetPort := opts.targetPort
	database := opts.database
	if targetPort == 0 || database == "" {
		port, db, err := autodiscover(opts.workspaceRoot, stored.LastTargetDatabase)
		if err != nil {
			return err
		}
		if targetPort == 0 {
			targetPort = port
		}
		if database == "" {
			database = db
		}
	}
	if database == "" {
		return errors.New("no target database: pass --database or open a report first")
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:  opts.traceEnabled,
		Exporter: opts.traceExporter,
		Endpoint: opts.traceEndpoint,
		Insecure: opts.traceInsecure,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	bus := events.NewBus()
	p, err := New(Options{
		Logger:     globals.Logger(),
		Bus:        bus,
		MaxPending: opts.maxPending,
		ConnIDMode: opts.connIDMode,
	})
	if err != nil {
		return err
	}

	ctx, cancel := util.WithSignalContext(ctx)
	defer cancel()

	if opts.statusListen != "" {
		api := statusapi.New(globals.Logger(), bus, p, opts.statusListen)
		go func() {
			if err := api.Run(ctx); err != nil {
				logger.Warn("status api stopped", "error", err)
			}
		}()
	}

	if err := p.Start(ctx, listenPort, targetPort, database, allowRemote); err != nil {
		return err
	}
	defer p.Stop()

	stored.FixedPort = listenPort
	stored.AllowNetworkAccess = allowRemote
	if allowRemote {
		stored.NetworkPort = listenPort
	}
	stored.LastTargetDatabase = database
	if err := stored.Save(settingsPath); err != nil {
		logger.Warn("settings save failed", "path", settingsPath, "error", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// autodiscover picks the most recently modified workspace instance. When the
// previously selected database is still running it wins over recency, so a
// restart reattaches to the same model.
func autodiscover(root, lastDatabase string) (int, string, error) {
	if root == "" {
		detected, err := discovery.DefaultRoot()
		if err != nil {
			return 0, "", fmt.Errorf("no workspace root: %w", err)
		}
		root = detected
	}
	instances, err := discovery.Scan(root)
	if err != nil {
		return 0, "", err
	}
	if len(instances) == 0 {
		return 0, "", errors.New("no running instances found; open a report or pass --target-port")
	}
	if lastDatabase != "" {
		for _, inst := range instances {
			if inst.Database == lastDatabase {
				return inst.Port, inst.Database, nil
			}
		}
	}
	return instances[0].Port, instances[0].Database, nil
}
