// Package evm reads Trading contract events from EVM chains over JSON-RPC.
package evm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBlockNotFound is returned when a node does not (yet) know a block.
var ErrBlockNotFound = errors.New("block not found")

// RPCClient defines the JSON-RPC calls the indexer needs.
type RPCClient interface {
	// ChainID returns the chain id (eth_chainId).
	ChainID(ctx context.Context) (int64, error)

	// BlockNumber returns the latest block number (eth_blockNumber).
	BlockNumber(ctx context.Context) (uint64, error)

	// BlockTimestamp returns a block's unix timestamp in seconds.
	// Returns ErrBlockNotFound if the node does not know the block.
	BlockTimestamp(ctx context.Context, number uint64) (int64, error)

	// GetLogs returns logs matching q (eth_getLogs).
	GetLogs(ctx context.Context, q FilterQuery) ([]Log, error)
}

// FilterQuery selects logs in an inclusive block range.
type FilterQuery struct {
	FromBlock uint64
	ToBlock   uint64
	Addresses []string
	Topics    [][]string // per position; nil matches anything
}

// Log is one emitted event log.
type Log struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber uint64   `json:"-"`
	TxHash      string   `json:"transactionHash"`
	LogIndex    uint     `json:"-"`
	Removed     bool     `json:"removed"`
}

// Head is a new block header announcement.
type Head struct {
	Number    uint64
	Hash      string
	Timestamp int64
}

// encodeQuantity renders n as a 0x-prefixed hex quantity.
func encodeQuantity(n uint64) string {
	return "0x" + strconv.FormatUint(n, 16)
}

// decodeQuantity parses a 0x-prefixed hex quantity.
func decodeQuantity(s string) (uint64, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return 0, fmt.Errorf("quantity %q: missing 0x prefix", s)
	}
	v, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("quantity %q: %w", s, err)
	}
	return v, nil
}
