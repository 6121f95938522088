package evm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"perp-stats/internal/domain"
	"perp-stats/internal/logging"
	"perp-stats/internal/observability"
	"perp-stats/internal/storage"
)

// Log source defaults.
const (
	DefaultBlockRange   = 2000
	DefaultPollInterval = 15 * time.Second
)

// Contract is one Trading contract and the block it was deployed at.
type Contract struct {
	Address    string
	StartBlock uint64
}

// HeadSubscriber announces new blocks. WSClient implements it.
type HeadSubscriber interface {
	SubscribeNewHeads(ctx context.Context) (<-chan Head, error)
}

// LogSourceOptions configures a LogSource.
type LogSourceOptions struct {
	ChainID       int64
	Contracts     []Contract
	BlockRange    uint64        // 0 = DefaultBlockRange
	PollInterval  time.Duration // 0 = DefaultPollInterval
	Confirmations uint64        // blocks behind head considered final
	Heads         HeadSubscriber
	Logger        *logrus.Entry
}

// LogSource delivers Trading events from eth_getLogs in (block, index)
// order. Progress is recorded per contract after every applied event, so a
// restart in the middle of a block resumes after the last applied log.
type LogSource struct {
	rpc      RPCClient
	progress storage.ProgressStore
	opts     LogSourceOptions
	log      *logrus.Entry

	// next block to read per lowercased contract address
	next map[string]uint64
	// last applied log index within block next, when that block is partly done
	partial map[string]uint
}

// NewLogSource creates a log source.
func NewLogSource(rpc RPCClient, progress storage.ProgressStore, opts LogSourceOptions) *LogSource {
	if opts.BlockRange == 0 {
		opts.BlockRange = DefaultBlockRange
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &LogSource{
		rpc:      rpc,
		progress: progress,
		opts:     opts,
		log: logging.OrDefault(opts.Logger, "evm.logs").
			WithField("chain_id", opts.ChainID),
		next:    make(map[string]uint64),
		partial: make(map[string]uint),
	}
}

// Run reads logs until ctx is done or handle fails. Node errors are
// logged and retried on the next poll.
func (s *LogSource) Run(ctx context.Context, handle domain.EventHandler) error {
	if len(s.opts.Contracts) == 0 {
		return fmt.Errorf("chain %d: no contracts configured", s.opts.ChainID)
	}
	if err := s.loadProgress(ctx); err != nil {
		return err
	}

	var heads <-chan Head
	if s.opts.Heads != nil {
		ch, err := s.opts.Heads.SubscribeNewHeads(ctx)
		if err != nil {
			s.log.WithError(err).Warn("newHeads subscription failed, polling only")
		} else {
			heads = ch
		}
	}

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		if err := s.catchUp(ctx, handle); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case _, ok := <-heads:
			if !ok {
				heads = nil
			}
		}
	}
}

func (s *LogSource) loadProgress(ctx context.Context) error {
	for _, c := range s.opts.Contracts {
		addr := strings.ToLower(c.Address)
		s.next[addr] = c.StartBlock

		p, err := s.progress.Get(ctx, s.opts.ChainID, addr)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("load progress %s: %w", addr, err)
		}
		if p.LastBlock+1 > c.StartBlock {
			s.next[addr] = p.LastBlock + 1
		}
		if p.PartialBlock != 0 && p.PartialBlock == s.next[addr] {
			s.partial[addr] = p.PartialLogIndex
		}
	}
	return nil
}

// catchUp processes ranges until the safe head is reached. Only handler
// and progress errors are returned.
func (s *LogSource) catchUp(ctx context.Context, handle domain.EventHandler) error {
	head, err := s.rpc.BlockNumber(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.WithError(err).Warn("eth_blockNumber failed")
		}
		return nil
	}
	observability.UpdateHighestBlock(s.opts.ChainID, head)
	if head < s.opts.Confirmations {
		return nil
	}
	safe := head - s.opts.Confirmations

	for {
		from := s.lowest()
		if from > safe {
			return nil
		}
		to := from + s.opts.BlockRange - 1
		if to > safe {
			to = safe
		}

		logs, err := s.rpc.GetLogs(ctx, FilterQuery{
			FromBlock: from,
			ToBlock:   to,
			Addresses: s.addresses(),
			Topics:    TradingTopics(),
		})
		if err != nil {
			if ctx.Err() == nil {
				s.log.WithError(err).WithFields(logrus.Fields{"from": from, "to": to}).Warn("eth_getLogs failed")
			}
			return nil
		}

		if err := s.process(ctx, logs, to, handle); err != nil {
			return err
		}
	}
}

// process hands logs to handle in (block, index) order, then advances every
// contract to to.
func (s *LogSource) process(ctx context.Context, logs []Log, to uint64, handle domain.EventHandler) error {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].LogIndex < logs[j].LogIndex
	})

	for i, l := range logs {
		addr := strings.ToLower(l.Address)
		next, ok := s.next[addr]
		if !ok || l.Removed || l.BlockNumber < next {
			continue
		}
		if done, partial := s.partial[addr]; partial && l.BlockNumber == next && l.LogIndex <= done {
			continue
		}

		ev, err := DecodeLog(l)
		if err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"block": l.BlockNumber,
				"tx":    l.TxHash,
				"index": l.LogIndex,
			}).Error("skipping undecodable log")
			observability.RecordEventSkipped("unknown", "undecodable")
			continue
		}

		if err := handle(ctx, ev); err != nil {
			return fmt.Errorf("chain %d block %d tx %s: %w", s.opts.ChainID, l.BlockNumber, l.TxHash, err)
		}

		last := i == len(logs)-1 || logs[i+1].BlockNumber != l.BlockNumber
		if !last {
			if err := s.markApplied(ctx, addr, l); err != nil {
				return err
			}
			continue
		}
		if err := s.advance(ctx, l.BlockNumber); err != nil {
			return err
		}
	}

	return s.advance(ctx, to)
}

// advance marks every contract at or behind block as done through block.
func (s *LogSource) advance(ctx context.Context, block uint64) error {
	now := time.Now().Unix()
	for addr, next := range s.next {
		if next > block {
			continue
		}
		err := s.progress.Upsert(ctx, &domain.SyncProgress{
			ChainID:   s.opts.ChainID,
			Contract:  addr,
			LastBlock: block,
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("save progress %s at %d: %w", addr, block, err)
		}
		s.next[addr] = block + 1
		delete(s.partial, addr)
	}
	observability.UpdateLastProcessedBlock(s.opts.ChainID, block)
	return nil
}

// markApplied records that l was applied while the rest of its block is
// still pending. Blocks before l are done for addr, since logs arrive in order.
func (s *LogSource) markApplied(ctx context.Context, addr string, l Log) error {
	var lastBlock uint64
	if l.BlockNumber > 0 {
		lastBlock = l.BlockNumber - 1
	}
	err := s.progress.Upsert(ctx, &domain.SyncProgress{
		ChainID:         s.opts.ChainID,
		Contract:        addr,
		LastBlock:       lastBlock,
		PartialBlock:    l.BlockNumber,
		PartialLogIndex: l.LogIndex,
		UpdatedAt:       time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("save progress %s at %d/%d: %w", addr, l.BlockNumber, l.LogIndex, err)
	}
	s.next[addr] = l.BlockNumber
	s.partial[addr] = l.LogIndex
	return nil
}

func (s *LogSource) lowest() uint64 {
	first := true
	var low uint64
	for _, n := range s.next {
		if first || n < low {
			low, first = n, false
		}
	}
	return low
}

// addresses lists configured contracts in a stable order.
func (s *LogSource) addresses() []string {
	out := make([]string, 0, len(s.next))
	for addr := range s.next {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}
