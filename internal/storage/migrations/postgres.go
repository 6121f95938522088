package migrations

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"perp-stats/internal/logging"
	"perp-stats/internal/storage/postgres"
)

// RunPostgresMigrations applies all embedded SQL files in lexical order.
// Every file uses IF NOT EXISTS, so reruns are no-ops.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool, logger *logrus.Entry) error {
	log := logging.OrDefault(logger, "migrations")

	files, err := load(PostgresFS, "postgres")
	if err != nil {
		return err
	}
	for _, m := range files {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		log.WithField("file", m.name).Debug("postgres migration applied")
	}
	return nil
}
