package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"perp-stats/internal/domain"
	"perp-stats/internal/logging"
	"perp-stats/internal/observability"
)

// ErrAllChainsHalted is returned by Run when no chain worker is left running.
var ErrAllChainsHalted = errors.New("all chain workers halted")

// Chain binds one chain's source to the handler that applies its events.
type Chain struct {
	ID      int64
	Source  EventSource
	Handler domain.EventHandler
}

// Runner drives one sequential worker per chain. A worker that fails
// stops alone; the other chains keep running.
type Runner struct {
	chains       []Chain
	restartDelay time.Duration
	maxRestarts  int
	logger       *logrus.Entry
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Chains []Chain

	// MaxRestarts is how many times a worker whose source failed without
	// a handler error (node or broker outage) is restarted. Default: 0.
	MaxRestarts  int
	RestartDelay time.Duration // Default: 5s
	Logger       *logrus.Entry
}

// NewRunner creates a runner.
func NewRunner(opts RunnerOptions) *Runner {
	restartDelay := opts.RestartDelay
	if restartDelay == 0 {
		restartDelay = 5 * time.Second
	}

	return &Runner{
		chains:       opts.Chains,
		restartDelay: restartDelay,
		maxRestarts:  opts.MaxRestarts,
		logger:       logging.OrDefault(opts.Logger, "ingestion"),
	}
}

// HandlerError marks a failure raised by the event handler rather than
// by the source itself. Workers never restart after one.
type HandlerError struct {
	Err error
}

func (e *HandlerError) Error() string { return e.Err.Error() }
func (e *HandlerError) Unwrap() error { return e.Err }

// Run blocks until every worker has stopped. It returns nil when ctx was
// cancelled or every source was exhausted, and an error joining the
// worker failures when every worker stopped with one.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.chains) == 0 {
		return errors.New("no chains configured")
	}
	r.logger.WithField("chains", len(r.chains)).Info("starting chain workers")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, c := range r.chains {
		wg.Add(1)
		go func(c Chain) {
			defer wg.Done()
			if err := r.runChain(ctx, c); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("chain %d: %w", c.ID, err))
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	if len(errs) == len(r.chains) {
		return fmt.Errorf("%w: %w", ErrAllChainsHalted, errors.Join(errs...))
	}
	if len(errs) > 0 {
		r.logger.WithField("halted", len(errs)).Warn("runner stopped with halted chains")
	}
	return nil
}

func (r *Runner) runChain(ctx context.Context, c Chain) error {
	log := r.logger.WithField("chain_id", c.ID)
	observability.AddChainWorkers(1)
	defer observability.AddChainWorkers(-1)

	handle := func(ctx context.Context, ev domain.TradingEvent) error {
		if err := c.Handler(ctx, ev); err != nil {
			return &HandlerError{Err: err}
		}
		return nil
	}

	restarts := 0
	for {
		log.Info("chain worker started")
		err := c.Source.Run(ctx, handle)
		switch {
		case err == nil:
			log.Info("chain source exhausted")
			return nil
		case ctx.Err() != nil:
			log.Info("chain worker stopping")
			return nil
		}

		var herr *HandlerError
		if errors.As(err, &herr) || restarts >= r.maxRestarts {
			log.WithError(err).Error("chain worker halted")
			return err
		}

		restarts++
		log.WithError(err).WithField("restart", restarts).Warn("chain source failed, restarting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.restartDelay):
		}
	}
}
