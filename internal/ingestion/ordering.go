package ingestion

import (
	"errors"

	"perp-stats/internal/domain"
)

// ErrInvalidOrdering is returned when a source yields events out of chain order.
var ErrInvalidOrdering = errors.New("events are not in chain order")

// CompareMeta orders events by (block_number ASC, log_index ASC).
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func CompareMeta(a, b domain.EventMeta) int {
	if a.BlockNumber != b.BlockNumber {
		if a.BlockNumber < b.BlockNumber {
			return -1
		}
		return 1
	}
	if a.LogIndex != b.LogIndex {
		if a.LogIndex < b.LogIndex {
			return -1
		}
		return 1
	}
	return 0
}

// cursor tracks the position of the last event handled by a source.
type cursor struct {
	last domain.EventMeta
	seen bool
}

// after reports whether m comes strictly after the last accepted event.
func (c *cursor) after(m domain.EventMeta) bool {
	return !c.seen || CompareMeta(c.last, m) < 0
}

func (c *cursor) advance(m domain.EventMeta) {
	c.last = m
	c.seen = true
}
