package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/snapshot"
	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/logging"
	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/resilience"
	"github.com/jmoiron/sqlx"
)

func noSleep(context.Context, time.Duration) error { return nil }

func testTiers(attempts int) []resilience.RetryPolicy {
	return []resilience.RetryPolicy{
		resilience.RetryPolicy{Name: "fast", MaxAttempts: attempts}.WithSleep(noSleep),
		resilience.RetryPolicy{Name: "slow", MaxAttempts: attempts}.WithSleep(noSleep),
	}
}

// unconnectedDB never dials; sql.Open is lazy.
func unconnectedDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sql.Open("postgres", "postgres://invalid.test:5432/none?sslmode=disable")
	if err != nil {
		t.Fatalf("sql open: %v", err)
	}
	return sqlx.NewDb(db, "postgres")
}

func TestPool_DoReconnectsOnceOnConnectionLoss(t *testing.T) {
	t.Parallel()

	initial := unconnectedDB(t)
	replacement := unconnectedDB(t)
	defer replacement.Close()

	var opens atomic.Int32
	open := func(context.Context) (*sqlx.DB, error) {
		opens.Add(1)
		return replacement, nil
	}
	pool := NewPoolFromDB(initial, open, PoolConfig{Tiers: testTiers(3), Logger: logging.NewNop()})

	var seen []*sqlx.DB
	err := pool.Do(context.Background(), func(db *sqlx.DB) error {
		seen = append(seen, db)
		if len(seen) == 1 {
			return driver.ErrBadConn
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if len(seen) != 2 || seen[0] != initial || seen[1] != replacement {
		t.Fatalf("expected retry on replacement handle, got %d calls", len(seen))
	}
	if opens.Load() != 1 {
		t.Fatalf("expected 1 open, got=%d", opens.Load())
	}
	if pool.DB() != replacement {
		t.Fatalf("pool did not swap handle")
	}
}

func TestPool_DoDoesNotReconnectOnQueryError(t *testing.T) {
	t.Parallel()

	db := unconnectedDB(t)
	defer db.Close()

	var opens atomic.Int32
	pool := NewPoolFromDB(db, func(context.Context) (*sqlx.DB, error) {
		opens.Add(1)
		return nil, errors.New("unexpected")
	}, PoolConfig{Tiers: testTiers(1), Logger: logging.NewNop()})

	calls := 0
	wantErr := errors.New("syntax error")
	err := pool.Do(context.Background(), func(*sqlx.DB) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected query error, got=%v", err)
	}
	if calls != 1 || opens.Load() != 0 {
		t.Fatalf("expected one call and no reconnect, calls=%d opens=%d", calls, opens.Load())
	}
}

func TestPool_ExhaustedTiersReportUnavailable(t *testing.T) {
	t.Parallel()

	db := unconnectedDB(t)
	defer db.Close()

	var opens atomic.Int32
	pool := NewPoolFromDB(db, func(context.Context) (*sqlx.DB, error) {
		opens.Add(1)
		return nil, errors.New("connection refused")
	}, PoolConfig{Tiers: testTiers(3), Logger: logging.NewNop()})

	err := pool.Do(context.Background(), func(*sqlx.DB) error {
		return driver.ErrBadConn
	})
	if !errors.Is(err, ErrDatabaseUnavailable) {
		t.Fatalf("expected ErrDatabaseUnavailable, got=%v", err)
	}
	if !errors.Is(err, snapshot.ErrUnavailable) {
		t.Fatalf("unavailable database must match the store sentinel, got=%v", err)
	}
	if opens.Load() != 6 {
		t.Fatalf("expected 3+3 open attempts, got=%d", opens.Load())
	}
	if pool.DB() != db {
		t.Fatalf("failed reconnect must keep the old handle")
	}
}

func TestPool_ReconnectWithReplacedHandleSkipsDial(t *testing.T) {
	t.Parallel()

	stale := unconnectedDB(t)
	current := unconnectedDB(t)
	defer stale.Close()
	defer current.Close()

	var opens atomic.Int32
	pool := NewPoolFromDB(current, func(context.Context) (*sqlx.DB, error) {
		opens.Add(1)
		return nil, errors.New("should not dial")
	}, PoolConfig{Tiers: testTiers(1), Logger: logging.NewNop()})

	got, err := pool.Reconnect(context.Background(), stale)
	if err != nil {
		t.Fatalf("Reconnect returned error: %v", err)
	}
	if got != current || opens.Load() != 0 {
		t.Fatalf("expected current handle without dialing, opens=%d", opens.Load())
	}
}

func TestPool_ClosedPoolRefusesReconnect(t *testing.T) {
	t.Parallel()

	db := unconnectedDB(t)
	pool := NewPoolFromDB(db, func(context.Context) (*sqlx.DB, error) {
		return unconnectedDB(t), nil
	}, PoolConfig{Tiers: testTiers(1), Logger: logging.NewNop()})

	if err := pool.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("second close must be a no-op: %v", err)
	}
	if _, err := pool.Reconnect(context.Background(), db); err == nil {
		t.Fatalf("expected reconnect to fail on a closed pool")
	}
}
