// Package app assembles the indexer from configuration: storage backends,
// the price oracle and one engine per chain.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"perp-stats/internal/config"
	"perp-stats/internal/storage"
	chstore "perp-stats/internal/storage/clickhouse"
	"perp-stats/internal/storage/memory"
	"perp-stats/internal/storage/migrations"
	mongostore "perp-stats/internal/storage/mongo"
	pgstore "perp-stats/internal/storage/postgres"
	"perp-stats/internal/storage/rediscache"
)

// closers runs cleanup functions in reverse order of registration.
type closers []func()

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// OpenStores opens the primary backend named by cfg.Backend and layers the
// optional ClickHouse mirror and Redis price cache on top. The returned
// cleanup closes every connection.
func OpenStores(ctx context.Context, cfg config.StorageConfig, log *logrus.Entry) (*storage.Stores, func(), error) {
	var cleanup closers
	fail := func(err error) (*storage.Stores, func(), error) {
		cleanup.close()
		return nil, nil, err
	}

	var stores *storage.Stores
	switch cfg.Backend {
	case config.BackendMemory, "":
		stores = memory.NewStores()

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fail(err)
		}
		cleanup = append(cleanup, pool.Close)
		if cfg.Migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool, log); err != nil {
				return fail(err)
			}
		}
		stores = pgstore.NewStores(pool)

	case config.BackendMongo:
		client, err := mongostore.NewClient(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return fail(err)
		}
		cleanup = append(cleanup, func() { _ = client.Close(context.Background()) })
		if cfg.Migrate {
			if err := mongostore.EnsureIndexes(ctx, client.Database()); err != nil {
				return fail(err)
			}
		}
		stores = mongostore.NewStores(client.Database())

	default:
		return fail(fmt.Errorf("unknown storage backend %q", cfg.Backend))
	}

	if cfg.ClickHouseDSN != "" {
		var (
			conn *chstore.Conn
			err  error
		)
		if cfg.Migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN, log)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.ClickHouseDSN)
		}
		if err != nil {
			return fail(err)
		}
		cleanup = append(cleanup, func() { _ = conn.Close() })
		stores = chstore.Mirror(stores, conn, log)
	}

	if cfg.RedisAddr != "" {
		client, err := rediscache.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fail(err)
		}
		cleanup = append(cleanup, func() { _ = client.Close() })
		stores.HourPrices = rediscache.New(stores.HourPrices, client, cfg.RedisTTL, log)
	}

	log.WithFields(logrus.Fields{
		"backend":    cfg.Backend,
		"clickhouse": cfg.ClickHouseDSN != "",
		"redis":      cfg.RedisAddr != "",
	}).Info("storage ready")
	return stores, cleanup.close, nil
}
