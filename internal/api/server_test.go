package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-stats/internal/domain"
	"perp-stats/internal/logging"
	"perp-stats/internal/storage"
	"perp-stats/internal/storage/memory"
)

func newTestServer(t *testing.T) (*storage.Stores, *httptest.Server) {
	t.Helper()
	stores := memory.NewStores()
	ts := httptest.NewServer(NewServer(Config{}, stores, logging.Discard()).Router())
	t.Cleanup(ts.Close)
	return stores, ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func dayProduct(chainID, day int64) *domain.Aggregate {
	return domain.NewAggregate(domain.AggregateKey{
		Kind: domain.KindDayProduct, Currency: "0xusdc", ChainID: chainID, ProductID: "ETH-USD", DayID: day,
	})
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)

	var body HealthResponse
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &body))
	assert.Equal(t, "ok", body.Status)
}

func TestMetrics(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDayProducts(t *testing.T) {
	stores, ts := newTestServer(t)
	ctx := context.Background()
	for _, a := range []*domain.Aggregate{dayProduct(42161, 10), dayProduct(42161, 11), dayProduct(42161, 12), dayProduct(10, 11)} {
		require.NoError(t, stores.Aggregates.Upsert(ctx, a))
	}

	var all []domain.Aggregate
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/day-products", &all))
	assert.Len(t, all, 4)

	var ranged []domain.Aggregate
	url := ts.URL + "/api/v1/day-products?chainId=42161&from=" + itoa(11*domain.SecondsPerDay) + "&to=" + itoa(12*domain.SecondsPerDay)
	assert.Equal(t, http.StatusOK, getJSON(t, url, &ranged))
	require.Len(t, ranged, 2)
	assert.Equal(t, int64(11*domain.SecondsPerDay), ranged[0].Date)
	assert.Equal(t, "ETH-USD", ranged[0].ProductID)

	var errBody ErrorResponse
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/v1/day-products?from=abc", &errBody))
	assert.Contains(t, errBody.Message, "from")

	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/v1/day-products?from=10&to=5", nil))
}

func TestProducts_EmptyIsArray(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/products")
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.JSONEq(t, "[]", string(raw))
}

func TestTokenInfosAndUsers(t *testing.T) {
	stores, ts := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, stores.TokenInfos.Insert(ctx, &domain.TokenInfo{
		ID: domain.TokenInfoID("0xusdc", 42161), Currency: "0xusdc", ChainID: 42161, NetworkID: "arbitrum", Symbol: "USDC",
	}))
	require.NoError(t, stores.Users.Upsert(ctx, "0xa", 1))
	require.NoError(t, stores.Users.Upsert(ctx, "0xA", 2))
	require.NoError(t, stores.Users.Upsert(ctx, "0xb", 3))

	var infos []map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/token-infos", &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "arbitrum", infos[0]["coingeckoChainId"])

	var count CountResponse
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/users/count", &count))
	assert.Equal(t, int64(2), count.Count)
}

func TestPositionTrades(t *testing.T) {
	stores, ts := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, stores.Trades.Insert(ctx, &domain.Trade{ID: "t2", ChainID: 42161, PositionKey: "0xkey", Timestamp: 20}))
	require.NoError(t, stores.Trades.Insert(ctx, &domain.Trade{ID: "t1", ChainID: 42161, PositionKey: "0xkey", Timestamp: 10}))

	var trades []domain.Trade
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/chains/42161/positions/0xkey/trades", &trades))
	require.Len(t, trades, 2)
	assert.Equal(t, "t1", trades[0].ID)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/v1/chains/arb/positions/0xkey/trades", nil))
}

type brokenUsers struct{}

func (brokenUsers) Upsert(context.Context, string, int64) error { return nil }
func (brokenUsers) Count(context.Context) (int64, error)       { return 0, errors.New("db down") }

func TestStoreErrorIs500(t *testing.T) {
	stores := memory.NewStores()
	stores.Users = brokenUsers{}
	ts := httptest.NewServer(NewServer(Config{}, stores, logging.Discard()).Router())
	defer ts.Close()

	var body ErrorResponse
	assert.Equal(t, http.StatusInternalServerError, getJSON(t, ts.URL+"/api/v1/users/count", &body))
	assert.Equal(t, "internal error", body.Message)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
