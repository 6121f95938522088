// Command indexer follows the Trading contracts of every configured chain,
// maintains positions, trades and aggregates, and serves them over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"perp-stats/internal/api"
	"perp-stats/internal/app"
	"perp-stats/internal/config"
	"perp-stats/internal/ingestion"
	"perp-stats/internal/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("PERP_STATS_CONFIG"), "Path to the YAML config file (empty for built-in defaults)")
	backend := flag.String("backend", "", "Override storage backend: memory, postgres or mongo")
	apiAddr := flag.String("api-addr", "", "Override API listen address")
	logLevel := flag.String("log-level", "", "Override log level")
	migrate := flag.Bool("migrate", false, "Apply migrations and indexes on startup")
	maxRestarts := flag.Int("max-restarts", 3, "Restarts of a chain worker after source failures")
	restartDelay := flag.Duration("restart-delay", 5*time.Second, "Delay before restarting a chain worker")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
	}
	if *apiAddr != "" {
		cfg.API.Addr = *apiAddr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *migrate {
		cfg.Storage.Migrate = true
	}
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("invalid config")
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("init logger")
	}
	log := logging.Component(logger, "indexer")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Info("shutting down")
			cancel()
		case <-done:
			return
		}
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Error("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Error("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger, *maxRestarts, *restartDelay)
	close(done)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("indexer stopped")
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger, maxRestarts int, restartDelay time.Duration) error {
	stores, closeStores, err := app.OpenStores(ctx, cfg.Storage, logging.Component(logger, "storage"))
	if err != nil {
		return err
	}
	defer closeStores()

	oracle := app.NewOracle(cfg.Gecko, stores, logging.Component(logger, "pricing"))

	chains, closeChains, err := app.BuildChains(ctx, cfg, stores, oracle, logger)
	if err != nil {
		return err
	}
	defer closeChains()

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Chains:       chains,
		MaxRestarts:  maxRestarts,
		RestartDelay: restartDelay,
		Logger:       logging.Component(logger, "ingestion"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(gctx)
	})
	if cfg.API.Addr != "" {
		server := api.NewServer(api.Config{Addr: cfg.API.Addr}, stores, logging.Component(logger, "api"))
		g.Go(func() error {
			return server.Run(gctx)
		})
	}
	return g.Wait()
}
