package postgres

import (
	"context"
	"fmt"

	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/pass"
	qb "github.com/gge-tracker/gge-tracker-sub001/internal/platform/querybuilder"
	"github.com/jmoiron/sqlx"
)

type PassRepository struct {
	pool *Pool
}

var _ pass.Store = (*PassRepository)(nil)

func NewPassRepository(pool *Pool) *PassRepository {
	return &PassRepository{pool: pool}
}

func (r *PassRepository) Save(ctx context.Context, report pass.Report) error {
	categories, err := encodeJSONB(report.Categories)
	if err != nil {
		return fmt.Errorf("encode pass categories: %w", err)
	}
	model := passTableModel{
		PassID:           report.PassID,
		Server:           report.Server,
		StartedAt:        report.StartedAt.UTC(),
		FinishedAt:       report.FinishedAt.UTC(),
		Created:          report.Created,
		Updated:          report.Updated,
		Cleared:          report.Cleared,
		Movements:        report.Movements,
		Renames:          report.Renames,
		Transfers:        report.Transfers,
		CriticalErrors:   report.CriticalErrors,
		NonFatal:         report.NonFatal,
		AggregateWritten: report.AggregateWritten,
		Version:          report.Version,
		Categories:       categories,
	}

	query, args, err := qb.InsertModel("scrape_passes", model, `ON CONFLICT (pass_id) DO UPDATE SET
		finished_at = EXCLUDED.finished_at,
		created = EXCLUDED.created,
		updated = EXCLUDED.updated,
		cleared = EXCLUDED.cleared,
		movements = EXCLUDED.movements,
		renames = EXCLUDED.renames,
		transfers = EXCLUDED.transfers,
		critical_errors = EXCLUDED.critical_errors,
		non_fatal = EXCLUDED.non_fatal,
		aggregate_written = EXCLUDED.aggregate_written,
		version = EXCLUDED.version,
		categories = EXCLUDED.categories`)
	if err != nil {
		return fmt.Errorf("build insert pass query: %w", err)
	}
	return r.pool.Do(ctx, func(db *sqlx.DB) error {
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert pass id=%s: %w", report.PassID, err)
		}
		return nil
	})
}
