package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/logging"
	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/resilience"
	"github.com/jmoiron/sqlx"
)

// Opener dials and pings a fresh connection pool.
type Opener func(ctx context.Context) (*sqlx.DB, error)

// DefaultReconnectTiers is a short tier followed by a patient one.
func DefaultReconnectTiers() []resilience.RetryPolicy {
	return []resilience.RetryPolicy{
		{Name: "db_reconnect_fast", MaxAttempts: 3, Delay: 2 * time.Second, Strategy: resilience.BackoffFixed},
		{Name: "db_reconnect_slow", MaxAttempts: 3, Delay: 15 * time.Second, Strategy: resilience.BackoffFixed},
	}
}

type PoolConfig struct {
	Tiers  []resilience.RetryPolicy
	Logger *logging.Logger
}

// Pool owns the process database handle and swaps it on connection loss.
type Pool struct {
	open   Opener
	tiers  []resilience.RetryPolicy
	logger *logging.Logger

	mu     sync.RWMutex
	db     *sqlx.DB
	closed bool
	group  resilience.SingleFlight[*sqlx.DB]
}

func NewPool(ctx context.Context, open Opener, cfg PoolConfig) (*Pool, error) {
	if open == nil {
		return nil, fmt.Errorf("pool opener is required")
	}
	p := newPool(open, cfg)
	db, err := open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	p.db = db
	return p, nil
}

// NewPoolFromDB wraps an already opened handle. Without an opener the pool
// cannot reconnect.
func NewPoolFromDB(db *sqlx.DB, open Opener, cfg PoolConfig) *Pool {
	p := newPool(open, cfg)
	p.db = db
	return p
}

func newPool(open Opener, cfg PoolConfig) *Pool {
	tiers := cfg.Tiers
	if len(tiers) == 0 {
		tiers = DefaultReconnectTiers()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Pool{open: open, tiers: tiers, logger: logger.Named("postgres.pool")}
}

func (p *Pool) DB() *sqlx.DB {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.db
}

// Do runs fn against the current handle. A connection-class failure
// reconnects and retries fn once on the new handle.
func (p *Pool) Do(ctx context.Context, fn func(db *sqlx.DB) error) error {
	db := p.DB()
	if db == nil {
		return ErrDatabaseUnavailable
	}

	err := fn(db)
	switch {
	case err == nil:
		return nil
	case isUnnamedPreparedStatementMissing(err) || isBindParameterMismatch(err):
		return fn(db)
	case !IsReconnectable(err):
		return err
	}

	p.logger.WarnContext(ctx, "database connection lost, reconnecting", "error", err)
	fresh, rerr := p.Reconnect(ctx, db)
	if rerr != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseUnavailable, errors.Join(err, rerr))
	}
	return fn(fresh)
}

// Reconnect replaces stale with a new handle. Concurrent callers share one
// attempt, and a caller holding an already replaced handle gets the current
// one without dialing.
func (p *Pool) Reconnect(ctx context.Context, stale *sqlx.DB) (*sqlx.DB, error) {
	if p.open == nil {
		return nil, fmt.Errorf("reconnect: no opener configured")
	}

	db, err, _ := p.group.Do("reconnect", func() (*sqlx.DB, error) {
		p.mu.RLock()
		current, closed := p.db, p.closed
		p.mu.RUnlock()
		if closed {
			return nil, fmt.Errorf("reconnect: pool closed")
		}
		if current != nil && current != stale {
			return current, nil
		}

		fresh, err := p.dial(ctx)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		old := p.db
		p.db = fresh
		p.mu.Unlock()
		if old != nil {
			_ = old.Close()
		}
		p.logger.InfoContext(ctx, "database reconnected")
		return fresh, nil
	})
	return db, err
}

func (p *Pool) dial(ctx context.Context) (*sqlx.DB, error) {
	var lastErr error
	for _, tier := range p.tiers {
		var fresh *sqlx.DB
		err := tier.Do(ctx, func(ctx context.Context, attempt int) (bool, error) {
			db, err := p.open(ctx)
			if err != nil {
				p.logger.WarnContext(ctx, "database reconnect attempt failed",
					"tier", tier.Name,
					"attempt", attempt,
					"error", err,
				)
				return true, err
			}
			fresh = db
			return false, nil
		})
		if err == nil {
			return fresh, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = err
	}
	return nil, fmt.Errorf("reconnect tiers exhausted: %w", lastErr)
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}
