package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/alliance"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/history"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/snapshot"
	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/logging"
	"github.com/sourcegraph/conc/pool"
)

const (
	defaultMetricChunkSize   = 4000
	defaultMetricConcurrency = 4
)

type HistoryWriterConfig struct {
	ChunkSize      int
	MaxConcurrency int
}

type HistoryWriter struct {
	metrics  history.MetricStore
	cfg      HistoryWriterConfig
	alliance *AllianceRegistry
	logger   *logging.Logger
}

func NewHistoryWriter(metrics history.MetricStore, registry *AllianceRegistry, cfg HistoryWriterConfig, logger *logging.Logger) *HistoryWriter {
	if logger == nil {
		logger = logging.Default()
	}
	if registry == nil {
		registry = NewAllianceRegistry()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultMetricChunkSize
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMetricConcurrency
	}
	return &HistoryWriter{
		metrics:  metrics,
		cfg:      cfg,
		alliance: registry,
		logger:   logger,
	}
}

// MetricPoints turns one category's rows into points stamped with the pass
// start time.
func MetricPoints(kind history.MetricKind, scores map[int64]int64, at time.Time) []history.MetricPoint {
	ids := make([]int64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sortIDs(ids)

	points := make([]history.MetricPoint, 0, len(ids))
	for _, id := range ids {
		points = append(points, history.MetricPoint{PlayerID: id, Kind: kind, Score: scores[id], At: at})
	}
	return points
}

// AppendMetrics writes points in chunks, several chunks at a time. It returns
// the number of chunks that failed; failures are not fatal to the pass.
func (w *HistoryWriter) AppendMetrics(ctx context.Context, kind history.MetricKind, points []history.MetricPoint) (int, error) {
	ctx, span := startSpan(ctx, "usecase.HistoryWriter.AppendMetrics")
	defer span.End()

	if len(points) == 0 {
		return 0, nil
	}

	var failed atomic.Int64
	p := pool.New().WithMaxGoroutines(w.cfg.MaxConcurrency).WithErrors().WithContext(ctx)
	for start := 0; start < len(points); start += w.cfg.ChunkSize {
		end := min(start+w.cfg.ChunkSize, len(points))
		chunk := points[start:end]
		p.Go(func(ctx context.Context) error {
			if err := w.metrics.AppendMetricPoints(ctx, chunk); err != nil {
				failed.Add(1)
				return fmt.Errorf("append %s metric chunk offset=%d size=%d: %w", kind, start, len(chunk), err)
			}
			return nil
		})
	}

	err := p.Wait()
	if err != nil {
		w.logger.WarnContext(ctx, "metric history chunks failed",
			"kind", string(kind),
			"points", len(points),
			"failed_chunks", failed.Load(),
			"error", err,
		)
	}
	return int(failed.Load()), err
}

type TransitionStats struct {
	Movements      int
	Renames        int
	Transfers      int
	CriticalErrors int
}

// AppendTransitions writes derived history inside the snapshot transaction.
// Movements and renames go in bulk; a bulk failure aborts the write. A
// transfer that still fails after its alliance is created is counted and
// skipped.
func (w *HistoryWriter) AppendTransitions(ctx context.Context, tx snapshot.Tx, recs []Reconciliation) (TransitionStats, error) {
	ctx, span := startSpan(ctx, "usecase.HistoryWriter.AppendTransitions")
	defer span.End()

	var (
		stats     TransitionStats
		movements []history.Movement
		renames   []history.Rename
	)
	for _, rec := range recs {
		movements = append(movements, rec.Movements...)
		renames = append(renames, rec.Renames...)
	}

	if len(movements) > 0 {
		if err := tx.AppendMovements(ctx, movements); err != nil {
			return stats, fmt.Errorf("append movements: %w", err)
		}
		stats.Movements = len(movements)
	}
	if len(renames) > 0 {
		if err := tx.AppendRenames(ctx, renames); err != nil {
			return stats, fmt.Errorf("append renames: %w", err)
		}
		stats.Renames = len(renames)
	}

	for _, rec := range recs {
		if rec.Transfer == nil {
			continue
		}
		if err := w.appendTransfer(ctx, tx, *rec.Transfer); err != nil {
			stats.CriticalErrors++
			w.logger.ErrorContext(ctx, "append alliance transfer failed",
				"player_id", rec.Transfer.PlayerID,
				"error", err,
			)
			continue
		}
		stats.Transfers++
	}
	return stats, nil
}

func (w *HistoryWriter) appendTransfer(ctx context.Context, tx snapshot.Tx, item history.AllianceTransfer) error {
	err := tx.AppendTransfer(ctx, item)
	if err == nil || !errors.Is(err, ErrMissingAlliance) || item.NewAllianceID == nil {
		return err
	}

	target := alliance.Alliance{ID: *item.NewAllianceID, Name: item.NewAllianceName}
	if ensureErr := w.alliance.ensure(ctx, tx, target); ensureErr != nil {
		return fmt.Errorf("create alliance id=%d: %w", target.ID, ensureErr)
	}
	if err := tx.AppendTransfer(ctx, item); err != nil {
		return fmt.Errorf("retry transfer player_id=%d: %w", item.PlayerID, err)
	}
	return nil
}
