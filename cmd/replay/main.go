// Command replay feeds a JSONL file of decoded Trading events through the
// engine, for backfills and for reproducing aggregates offline.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"perp-stats/internal/app"
	"perp-stats/internal/config"
	"perp-stats/internal/domain"
	"perp-stats/internal/ingestion"
	"perp-stats/internal/logging"
	"perp-stats/internal/storage"
)

func main() {
	configPath := flag.String("config", os.Getenv("PERP_STATS_CONFIG"), "Path to the YAML config file (empty for built-in defaults)")
	file := flag.String("file", "", "JSONL event file to replay (required)")
	chainID := flag.Int64("chain-id", 0, "Chain whose events are replayed (required)")
	backend := flag.String("backend", "", "Override storage backend: memory, postgres or mongo")
	printProducts := flag.Bool("print", false, "Print product aggregates as JSON when done")

	flag.Parse()

	if *file == "" || *chainID == 0 {
		logrus.Fatal("--file and --chain-id are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
		if err := cfg.Validate(); err != nil {
			logrus.WithError(err).Fatal("invalid config")
		}
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("init logger")
	}
	log := logging.Component(logger, "replay").WithField("chain_id", *chainID)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stores, closeStores, err := app.OpenStores(ctx, cfg.Storage, logging.Component(logger, "storage"))
	if err != nil {
		log.WithError(err).Fatal("open stores")
	}
	defer closeStores()

	oracle := app.NewOracle(cfg.Gecko, stores, logging.Component(logger, "pricing"))
	chain := app.Replay(*file, *chainID, stores, oracle, log)

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Chains: []ingestion.Chain{chain},
		Logger: log,
	})
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("replay failed")
		closeStores()
		os.Exit(1)
	}

	if *printProducts {
		products, err := stores.Aggregates.List(ctx, storage.AggregateFilter{Kind: domain.KindProduct, ChainID: *chainID})
		if err != nil {
			log.WithError(err).Fatal("list products")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(products); err != nil {
			log.WithError(err).Fatal("write products")
		}
	}
	log.Info("replay complete")
}
