package ingestion

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-stats/internal/domain"
)

func TestDecodeEvent_PositionUpdated(t *testing.T) {
	line := `{"event":"PositionUpdated","chainId":42161,"contract":"0x7d9c","blockNumber":105901400,"txHash":"0xaa","logIndex":3,"timestamp":1700000000,` +
		`"key":"0xkey","user":"0xuser","productId":"ETH-USD","currency":"0xusdc","isLong":true,` +
		`"price":5000000000000,"margin":10000000000,"size":100000000000,"fee":100000000}`

	rec, err := DecodeEvent([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, int64(42161), rec.ChainID)

	ev, ok := rec.Event.(*domain.PositionUpdated)
	require.True(t, ok)
	assert.Equal(t, uint64(105901400), ev.BlockNumber)
	assert.Equal(t, uint(3), ev.LogIndex)
	assert.Equal(t, int64(1700000000), ev.Timestamp)
	assert.Equal(t, "ETH-USD", ev.ProductID)
	assert.True(t, ev.IsLong)
	assert.Equal(t, 0, ev.Price.Cmp(big.NewInt(5_000_000_000_000)))
	assert.Equal(t, 0, ev.Fee.Cmp(big.NewInt(100_000_000)))
}

func TestEncodeDecode_ClosePositionKeepsSignedPnl(t *testing.T) {
	pnl, ok := new(big.Int).SetString("-123456789012345678901234567890", 10)
	require.True(t, ok)
	in := &domain.ClosePosition{
		EventMeta:     domain.EventMeta{BlockNumber: 9, TxHash: "0xbb", LogIndex: 1},
		Key:           "0xkey",
		Currency:      "0xusdc",
		Price:         big.NewInt(1),
		Margin:        big.NewInt(2),
		Size:          big.NewInt(3),
		Fee:           big.NewInt(4),
		Pnl:           pnl,
		WasLiquidated: true,
	}

	data, err := EncodeEvent(10, in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event":"ClosePosition"`)
	assert.Contains(t, string(data), `"pnl":-123456789012345678901234567890`)

	rec, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.ChainID)
	assert.Equal(t, in, rec.Event)
}

func TestDecodeEvent_Errors(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"event":"NewOrder","chainId":1}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = DecodeEvent([]byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeEvent([]byte(`{"event":"ClosePosition","price":"abc"}`))
	assert.Error(t, err)
}
