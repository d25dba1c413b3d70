package postgres

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/statistics"
	qb "github.com/gge-tracker/gge-tracker-sub001/internal/platform/querybuilder"
	"github.com/jmoiron/sqlx"
)

var statisticsSelectColumns = []string{
	"pass_id",
	"population",
	"alliance_count",
	"avg_might",
	"avg_loot",
	"avg_honor",
	"avg_level",
	"total_might",
	"total_loot",
	"total_honor",
	"max_might",
	"max_loot",
	"protected_count",
	"variation_might",
	"variation_loot",
	"variation_honor",
	"events",
	"created_at",
}

type StatisticsRepository struct {
	pool *Pool
}

var _ statistics.Store = (*StatisticsRepository)(nil)

func NewStatisticsRepository(pool *Pool) *StatisticsRepository {
	return &StatisticsRepository{pool: pool}
}

func (r *StatisticsRepository) Latest(ctx context.Context) (statistics.Snapshot, bool, error) {
	query, args, err := qb.Select(statisticsSelectColumns...).
		From("server_statistics").
		OrderBy("created_at DESC").
		Limit(1).
		ToSQL()
	if err != nil {
		return statistics.Snapshot{}, false, fmt.Errorf("build select latest statistics query: %w", err)
	}

	var row statisticsTableModel
	err = r.pool.Do(ctx, func(db *sqlx.DB) error {
		return db.GetContext(ctx, &row, query, args...)
	})
	if err != nil {
		if isNotFound(err) {
			return statistics.Snapshot{}, false, nil
		}
		return statistics.Snapshot{}, false, fmt.Errorf("select latest statistics: %w", err)
	}

	var events []statistics.EventStats
	if len(row.Events) > 0 {
		if err := sonic.ConfigStd.Unmarshal(row.Events, &events); err != nil {
			return statistics.Snapshot{}, false, fmt.Errorf("decode statistics events: %w", err)
		}
	}

	return statistics.Snapshot{
		PassID:         row.PassID,
		Population:     row.Population,
		AllianceCount:  row.AllianceCount,
		AvgMight:       row.AvgMight,
		AvgLoot:        row.AvgLoot,
		AvgHonor:       row.AvgHonor,
		AvgLevel:       row.AvgLevel,
		TotalMight:     row.TotalMight,
		TotalLoot:      row.TotalLoot,
		TotalHonor:     row.TotalHonor,
		MaxMight:       row.MaxMight,
		MaxLoot:        row.MaxLoot,
		ProtectedCount: row.ProtectedCount,
		VariationMight: row.VariationMight,
		VariationLoot:  row.VariationLoot,
		VariationHonor: row.VariationHonor,
		Events:         events,
		CreatedAt:      row.CreatedAt,
	}, true, nil
}

func (r *StatisticsRepository) Append(ctx context.Context, s statistics.Snapshot) error {
	events, err := encodeJSONB(s.Events)
	if err != nil {
		return fmt.Errorf("encode statistics events: %w", err)
	}
	model := statisticsTableModel{
		PassID:         s.PassID,
		Population:     s.Population,
		AllianceCount:  s.AllianceCount,
		AvgMight:       s.AvgMight,
		AvgLoot:        s.AvgLoot,
		AvgHonor:       s.AvgHonor,
		AvgLevel:       s.AvgLevel,
		TotalMight:     s.TotalMight,
		TotalLoot:      s.TotalLoot,
		TotalHonor:     s.TotalHonor,
		MaxMight:       s.MaxMight,
		MaxLoot:        s.MaxLoot,
		ProtectedCount: s.ProtectedCount,
		VariationMight: s.VariationMight,
		VariationLoot:  s.VariationLoot,
		VariationHonor: s.VariationHonor,
		Events:         events,
		CreatedAt:      s.CreatedAt.UTC(),
	}

	query, args, err := qb.InsertModel("server_statistics", model, "")
	if err != nil {
		return fmt.Errorf("build insert statistics query: %w", err)
	}
	return r.pool.Do(ctx, func(db *sqlx.DB) error {
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert statistics: %w", err)
		}
		return nil
	})
}
