// Package ingestion feeds decoded Trading events from their sources into
// the aggregation engine, one sequential worker per chain.
package ingestion

import (
	"context"

	"perp-stats/internal/domain"
)

// EventSource delivers one chain's events in chain order.
// Run calls handle for each event and returns the first handler error
// unchanged (wrapped), so the event is delivered again after a restart.
// evm.LogSource, KafkaSource and FileSource implement it.
type EventSource interface {
	Run(ctx context.Context, handle domain.EventHandler) error
}
