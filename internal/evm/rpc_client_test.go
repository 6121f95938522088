package evm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcServer answers each method with a canned result.
func rpcServer(t *testing.T, results map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req rpcRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		result, ok := results[req.Method]
		if !ok {
			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]any{"code": -32601, "message": "method not found"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
}

func TestHTTPClient_ChainIDAndBlockNumber(t *testing.T) {
	srv := rpcServer(t, map[string]any{
		"eth_chainId":     "0xa4b1",
		"eth_blockNumber": "0x64fc2e0",
	})
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	id, err := c.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42161), id)

	n, err := c.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0x64fc2e0), n)
}

func TestHTTPClient_BlockTimestamp(t *testing.T) {
	srv := rpcServer(t, map[string]any{
		"eth_getBlockByNumber": map[string]any{"number": "0x10", "hash": "0xh", "timestamp": "0x65f0a000"},
	})
	defer srv.Close()

	ts, err := NewHTTPClient(srv.URL).BlockTimestamp(context.Background(), 16)
	require.NoError(t, err)
	assert.Equal(t, int64(0x65f0a000), ts)
}

func TestHTTPClient_BlockNotFound(t *testing.T) {
	srv := rpcServer(t, map[string]any{"eth_getBlockByNumber": nil})
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).BlockTimestamp(context.Background(), 16)
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestHTTPClient_GetLogs(t *testing.T) {
	var params []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64           `json:"id"`
			Params []map[string]any `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		params = req.Params
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": req.ID,
			"result": []map[string]any{{
				"address":         "0xc",
				"topics":          []string{"0xt"},
				"data":            "0x",
				"blockNumber":     "0x1f",
				"transactionHash": "0xtx",
				"logIndex":        "0x2",
			}},
		})
	}))
	defer srv.Close()

	logs, err := NewHTTPClient(srv.URL).GetLogs(context.Background(), FilterQuery{
		FromBlock: 16, ToBlock: 31, Addresses: []string{"0xc"}, Topics: [][]string{{"0xt"}},
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, uint64(31), logs[0].BlockNumber)
	assert.Equal(t, uint(2), logs[0].LogIndex)
	assert.Equal(t, "0xtx", logs[0].TxHash)

	require.Len(t, params, 1)
	assert.Equal(t, "0x10", params[0]["fromBlock"])
	assert.Equal(t, "0x1f", params[0]["toBlock"])
}

func TestHTTPClient_RetriesTransportFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": "0x1"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, WithRetryDelay(time.Millisecond), WithMaxDelay(5*time.Millisecond))
	n, err := c.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_RPCErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": 1,
			"error": map[string]any{"code": -32000, "message": "header not found"},
		})
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, WithRetryDelay(time.Millisecond)).ChainID(context.Background())
	var rpcErr *rpcError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32000, rpcErr.Code)
	assert.Equal(t, int32(1), calls.Load())
}
