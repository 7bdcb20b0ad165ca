// Command playbookd is the playbook daemon: it serves the context
// ranker and feedback API over HTTP so coding-agent harnesses can pull
// and update procedural memory without linking Go (spec.md §1, §4.G,
// §4.L).
//
// Configuration is loaded from a YAML file and environment variables.
// See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	playbookd
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9191 playbookd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/playbookd/internal/config"
	"github.com/fyrsmithlabs/playbookd/internal/history"
	"github.com/fyrsmithlabs/playbookd/internal/httpapi"
	"github.com/fyrsmithlabs/playbookd/internal/logging"
	"github.com/fyrsmithlabs/playbookd/internal/playbook"
	"github.com/fyrsmithlabs/playbookd/internal/ranker"
	"github.com/fyrsmithlabs/playbookd/internal/scoring"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  playbookd           Start the playbookd daemon\n")
			fmt.Fprintf(os.Stderr, "  playbookd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}

	log.Println("server shutdown complete")
}

func printVersion() {
	fmt.Printf("playbookd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run initializes configuration, dependencies, and the HTTP server,
// then blocks until ctx is cancelled.
func run(ctx context.Context) error {
	cfg, err := config.LoadWithFile("")
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "starting playbookd",
		zap.Int("port", cfg.Server.Port),
		zap.String("service", cfg.Observability.ServiceName),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	deps, err := initDependencies(cfg, logger.Underlying())
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	logger.Info(ctx, "dependencies initialized",
		zap.String("history_backend", cfg.History.Backend),
		zap.Bool("searcher_ready", deps.searcher != nil))

	srv, err := httpapi.NewServer(
		deps.store,
		deps.searcher,
		ranker.DefaultConfig(),
		scoringConfigFrom(cfg),
		logger.Underlying(),
		&httpapi.Config{Host: "0.0.0.0", Port: cfg.Server.Port},
	)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	}
}

// dependencies holds infrastructure wired from configuration.
type dependencies struct {
	store    *playbook.Store
	searcher history.Searcher
	natsConn *nats.Conn
}

// Close releases infrastructure resources.
func (d *dependencies) Close() {
	if d.natsConn != nil {
		d.natsConn.Close()
	}
}

// initLogger builds the structured logger from the logging package's
// own config surface (spec.md's ambient logging stack, not a config
// knob of the domain itself).
func initLogger(cfg *config.Config) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	logCfg.Fields["service"] = cfg.Observability.ServiceName
	if !cfg.Observability.EnableTelemetry {
		logCfg.Output.OTEL = false
	}
	return logging.NewLogger(logCfg, nil)
}

// initDependencies wires the playbook store and, if configured, a
// history.Searcher backend. An unconfigured or unreachable history
// backend degrades to a nil searcher rather than failing startup
// (spec.md §7, external unavailability must fail soft).
func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	globalPath := fmt.Sprintf("%s/playbook.yaml", cfg.Storage.DataRoot)
	store := playbook.NewStore(globalPath, logger)

	deps := &dependencies{store: store}

	switch cfg.History.Backend {
	case "cass":
		if cfg.History.CASSBinaryPath == "" {
			logger.Warn("history backend is cass but no binary path configured, disabling history search")
			return deps, nil
		}
		deps.searcher = history.NewCASSClient(cfg.History.CASSBinaryPath, logger)
	case "nats":
		nc, err := nats.Connect(cfg.History.NATSURL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats at %s: %w", cfg.History.NATSURL, err)
		}
		deps.natsConn = nc
		deps.searcher = history.NewNATSClient(nc, logger)
	case "none":
		// no history search configured; ranker proceeds without historical evidence.
	}

	return deps, nil
}

func scoringConfigFrom(cfg *config.Config) scoring.Config {
	return scoring.Config{
		DecayHalfLifeDays:        cfg.Scoring.DecayHalfLifeDays,
		HarmfulMultiplier:        cfg.Scoring.HarmfulMultiplier,
		MinFeedbackForActive:     cfg.Scoring.MinFeedbackForActive,
		MinHelpfulForProven:      cfg.Scoring.MinHelpfulForProven,
		MaxHarmfulRatioForProven: cfg.Scoring.MaxHarmfulRatioForProven,
		PruneHarmfulThreshold:    cfg.Scoring.PruneHarmfulThreshold,
		StaleDays:                cfg.Scoring.StaleDays,
	}
}
