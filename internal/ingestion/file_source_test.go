package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-stats/internal/domain"
	"perp-stats/internal/logging"
)

func record(t *testing.T, chainID int64, block uint64, logIndex uint) string {
	t.Helper()
	ev := &domain.PositionUpdated{EventMeta: domain.EventMeta{BlockNumber: block, LogIndex: logIndex, TxHash: "0xtx"}}
	data, err := EncodeEvent(chainID, ev)
	require.NoError(t, err)
	return string(data)
}

func TestFileSource_FiltersChainAndSkipsBlankLines(t *testing.T) {
	lines := []string{
		record(t, 1, 10, 0),
		"",
		record(t, 2, 5, 0),
		record(t, 1, 10, 1),
		record(t, 1, 11, 0),
	}
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	rec := &recorder{}
	src := NewFileSource(path, 1, logging.Discard())
	require.NoError(t, src.Run(context.Background(), rec.handle))
	assert.Equal(t, []uint64{10, 10, 11}, rec.blocks)
}

func TestFileSource_RejectsOutOfOrder(t *testing.T) {
	input := record(t, 1, 10, 1) + "\n" + record(t, 1, 10, 0) + "\n"
	src := NewReaderSource(strings.NewReader(input), 1, logging.Discard())

	rec := &recorder{}
	err := src.Run(context.Background(), rec.handle)
	assert.ErrorIs(t, err, ErrInvalidOrdering)
	assert.Equal(t, []uint64{10}, rec.blocks)
}

func TestFileSource_StopsAtHandlerError(t *testing.T) {
	input := record(t, 1, 1, 0) + "\n" + record(t, 1, 2, 0) + "\n" + record(t, 1, 3, 0) + "\n"
	src := NewReaderSource(strings.NewReader(input), 1, logging.Discard())

	rec := &recorder{failAt: 2}
	err := src.Run(context.Background(), rec.handle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reader:2")
	assert.Equal(t, []uint64{1}, rec.blocks)
}

func TestFileSource_MissingFile(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "nope.jsonl"), 1, logging.Discard())
	err := src.Run(context.Background(), (&recorder{}).handle)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
