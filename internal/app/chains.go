package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"perp-stats/internal/config"
	"perp-stats/internal/domain"
	"perp-stats/internal/engine"
	"perp-stats/internal/evm"
	"perp-stats/internal/ingestion"
	"perp-stats/internal/pricing"
	"perp-stats/internal/pricing/gecko"
	"perp-stats/internal/storage"
)

// NewOracle builds the price oracle over the GeckoTerminal client.
// One oracle is shared by every chain so the provider rate limit is global.
func NewOracle(cfg config.GeckoConfig, stores *storage.Stores, log *logrus.Entry) *pricing.Oracle {
	client := gecko.NewClient(cfg.ClientOptions()...)
	return pricing.NewOracle(stores.HourPrices, stores.TokenInfos, client, pricing.Options{
		Networks:      cfg.Networks,
		WrappedNative: cfg.WrappedNative,
		Logger:        log,
	})
}

// BuildChains creates the source, engine and handler of every configured
// chain. The returned cleanup closes sockets, consumers and publishers.
func BuildChains(ctx context.Context, cfg *config.Config, stores *storage.Stores, prices engine.PriceOracle, logger *logrus.Logger) ([]ingestion.Chain, func(), error) {
	var cleanup closers
	chains := make([]ingestion.Chain, 0, len(cfg.Chains))

	for _, c := range cfg.Chains {
		log := logger.WithFields(logrus.Fields{"component": "chain", "chain_id": c.ChainID, "chain": c.Name})

		var (
			source   ingestion.EventSource
			resolver engine.ChainResolver
		)
		switch c.Source {
		case config.SourceRPC, "":
			rpc := evm.NewHTTPClient(c.RPCURL)
			resolver = evm.NewResolver(rpc, cfg.Retry, log)

			var heads evm.HeadSubscriber
			if c.WSURL != "" {
				wsCfg := evm.DefaultWSConfig()
				wsCfg.Logger = log
				ws, err := evm.NewWSClient(ctx, c.WSURL, &wsCfg)
				if err != nil {
					log.WithError(err).Warn("websocket unavailable, polling only")
				} else {
					heads = ws
					cleanup = append(cleanup, func() { _ = ws.Close() })
				}
			}

			source = evm.NewLogSource(rpc, stores.Progress, evm.LogSourceOptions{
				ChainID:       c.ChainID,
				Contracts:     c.EVMContracts(),
				BlockRange:    c.BlockRange,
				PollInterval:  c.PollInterval,
				Confirmations: c.Confirmations,
				Heads:         heads,
				Logger:        log,
			})

		case config.SourceKafka:
			consumer := ingestion.NewKafkaSource(ingestion.KafkaConfig{
				Brokers:       cfg.Kafka.Brokers,
				Topic:         c.KafkaTopic,
				ConsumerGroup: cfg.Kafka.ConsumerGroup,
			}, c.ChainID, log)
			cleanup = append(cleanup, func() { _ = consumer.Close() })
			source = consumer
			resolver = evm.FixedChain{ID: c.ChainID}

		default:
			cleanup.close()
			return nil, nil, fmt.Errorf("chain %d: unknown source %q", c.ChainID, c.Source)
		}

		eng := engine.New(resolver, prices, stores, engine.Options{Logger: log})
		var handler domain.EventHandler = eng.Handle
		if c.PublishTopic != "" {
			pub := ingestion.NewKafkaPublisher(ingestion.KafkaConfig{
				Brokers: cfg.Kafka.Brokers,
				Topic:   c.PublishTopic,
			}, c.ChainID, log)
			cleanup = append(cleanup, func() { _ = pub.Close() })
			handler = pub.Wrap(handler)
		}

		chains = append(chains, ingestion.Chain{ID: c.ChainID, Source: source, Handler: handler})
		log.WithField("source", sourceName(c.Source)).Info("chain configured")
	}

	return chains, cleanup.close, nil
}

// Replay builds a single chain that reads a JSONL event file. Events carry
// their own timestamps, so no node is needed.
func Replay(path string, chainID int64, stores *storage.Stores, prices engine.PriceOracle, log *logrus.Entry) ingestion.Chain {
	eng := engine.New(evm.FixedChain{ID: chainID}, prices, stores, engine.Options{Logger: log})
	return ingestion.Chain{
		ID:      chainID,
		Source:  ingestion.NewFileSource(path, chainID, log),
		Handler: eng.Handle,
	}
}

func sourceName(s string) string {
	if s == "" {
		return config.SourceRPC
	}
	return s
}
