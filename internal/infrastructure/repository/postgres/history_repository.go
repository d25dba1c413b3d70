package postgres

import (
	"context"

	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/history"
	"github.com/jmoiron/sqlx"
)

type HistoryRepository struct {
	pool *Pool
}

var _ history.MetricStore = (*HistoryRepository)(nil)

func NewHistoryRepository(pool *Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

// AppendMetricPoints ignores points already recorded for the same
// (kind, player, instant), so a re-submitted chunk is harmless.
func (r *HistoryRepository) AppendMetricPoints(ctx context.Context, points []history.MetricPoint) error {
	if len(points) == 0 {
		return nil
	}
	models := make([]metricTableModel, 0, len(points))
	for _, p := range points {
		models = append(models, metricTableModel{
			Kind:      string(p.Kind),
			PlayerID:  p.PlayerID,
			Score:     p.Score,
			CreatedAt: p.At.UTC(),
		})
	}

	return r.pool.Do(ctx, func(db *sqlx.DB) error {
		return insertChunkedSuffix(ctx, db, "metric_history", models, "ON CONFLICT (kind, player_id, created_at) DO NOTHING")
	})
}
