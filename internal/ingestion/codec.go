package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"

	"perp-stats/internal/domain"
)

// ErrUnknownEvent is returned when a record names an event this service does not handle.
var ErrUnknownEvent = errors.New("unknown event")

// Record is one decoded event on the wire: a JSON object with the event
// name, the chain id and the event fields flattened beside them.
// Amounts are JSON integers in 8-decimal fixed point.
type Record struct {
	ChainID int64
	Event   domain.TradingEvent
}

type header struct {
	Event   string `json:"event"`
	ChainID int64  `json:"chainId"`
}

type positionUpdatedRecord struct {
	header
	*domain.PositionUpdated
}

type closePositionRecord struct {
	header
	*domain.ClosePosition
}

// EncodeEvent renders ev as a JSON record.
func EncodeEvent(chainID int64, ev domain.TradingEvent) ([]byte, error) {
	h := header{Event: ev.Name(), ChainID: chainID}
	switch e := ev.(type) {
	case *domain.PositionUpdated:
		return json.Marshal(positionUpdatedRecord{header: h, PositionUpdated: e})
	case *domain.ClosePosition:
		return json.Marshal(closePositionRecord{header: h, ClosePosition: e})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Name())
	}
}

// DecodeEvent parses a JSON record.
func DecodeEvent(data []byte) (Record, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return Record{}, fmt.Errorf("decode event header: %w", err)
	}

	switch h.Event {
	case domain.EventPositionUpdated:
		r := positionUpdatedRecord{PositionUpdated: &domain.PositionUpdated{}}
		if err := json.Unmarshal(data, &r); err != nil {
			return Record{}, fmt.Errorf("decode %s: %w", h.Event, err)
		}
		return Record{ChainID: h.ChainID, Event: r.PositionUpdated}, nil
	case domain.EventClosePosition:
		r := closePositionRecord{ClosePosition: &domain.ClosePosition{}}
		if err := json.Unmarshal(data, &r); err != nil {
			return Record{}, fmt.Errorf("decode %s: %w", h.Event, err)
		}
		return Record{ChainID: h.ChainID, Event: r.ClosePosition}, nil
	default:
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownEvent, h.Event)
	}
}
