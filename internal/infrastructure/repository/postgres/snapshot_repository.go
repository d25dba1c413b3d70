package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/alliance"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/history"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/player"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/snapshot"
	qb "github.com/gge-tracker/gge-tracker-sub001/internal/platform/querybuilder"
	"github.com/jmoiron/sqlx"
)

// insertChunkSize keeps multi-row inserts under the 65535 bind parameter
// limit for every table written here.
const insertChunkSize = 4000

const stagingTable = "player_staging"

var playerSnapshotColumns = []string{
	"p.id",
	"p.name",
	"p.alliance_id",
	"p.might",
	"p.might_all_time",
	"p.loot",
	"p.loot_all_time",
	"p.honor",
	"p.fame",
	"p.level",
	"p.legendary_level",
	"p.castles",
	"p.peace_seconds",
	"p.updated_at",
	"a.name AS alliance_name",
}

type SnapshotRepository struct {
	pool *Pool
	now  func() time.Time
}

var (
	_ player.SnapshotReader = (*SnapshotRepository)(nil)
	_ snapshot.Writer       = (*SnapshotRepository)(nil)
)

func NewSnapshotRepository(pool *Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool, now: time.Now}
}

func (r *SnapshotRepository) LoadSnapshot(ctx context.Context) (player.Snapshot, error) {
	playerQuery, playerArgs, err := qb.Select(playerSnapshotColumns...).
		From("players p LEFT JOIN alliances a ON a.id = p.alliance_id").
		OrderBy("p.id").
		ToSQL()
	if err != nil {
		return player.Snapshot{}, fmt.Errorf("build select snapshot players query: %w", err)
	}
	allianceQuery, allianceArgs, err := qb.Select("id", "name").From("alliances").OrderBy("id").ToSQL()
	if err != nil {
		return player.Snapshot{}, fmt.Errorf("build select snapshot alliances query: %w", err)
	}

	var (
		players   []playerSnapshotRow
		alliances []allianceTableModel
	)
	err = r.pool.Do(ctx, func(db *sqlx.DB) error {
		players, alliances = nil, nil
		if err := db.SelectContext(ctx, &players, playerQuery, playerArgs...); err != nil {
			return fmt.Errorf("select snapshot players: %w", err)
		}
		if err := db.SelectContext(ctx, &alliances, allianceQuery, allianceArgs...); err != nil {
			return fmt.Errorf("select snapshot alliances: %w", err)
		}
		return nil
	})
	if err != nil {
		return player.Snapshot{}, err
	}

	out := player.EmptySnapshot()
	for _, row := range players {
		out.Players[row.ID] = row.toDomain(row.AllianceName.String)
	}
	for _, row := range alliances {
		out.AllianceNames[row.ID] = row.Name
	}
	return out, nil
}

func (r *SnapshotRepository) BeginSnapshot(ctx context.Context) (snapshot.Tx, error) {
	var tx *sqlx.Tx
	err := r.pool.Do(ctx, func(db *sqlx.DB) error {
		var err error
		tx, err = db.BeginTxx(ctx, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot tx: %w", err)
	}
	return &snapshotTx{tx: tx, now: r.now}, nil
}

type snapshotTx struct {
	tx        *sqlx.Tx
	now       func() time.Time
	savepoint int
}

// withSavepoint scopes fn so a failed statement does not abort the enclosing
// transaction.
func (t *snapshotTx) withSavepoint(ctx context.Context, fn func() error) error {
	t.savepoint++
	name := fmt.Sprintf("sp_%d", t.savepoint)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		return err
	}
	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func (t *snapshotTx) EnsureAlliance(ctx context.Context, a alliance.Alliance) error {
	return t.withSavepoint(ctx, func() error {
		return t.upsertAlliances(ctx, []alliance.Alliance{a})
	})
}

func (t *snapshotTx) EnsureAlliances(ctx context.Context, items []alliance.Alliance) error {
	if len(items) == 0 {
		return nil
	}
	return t.upsertAlliances(ctx, items)
}

func (t *snapshotTx) upsertAlliances(ctx context.Context, items []alliance.Alliance) error {
	byID := make(map[int64]string, len(items))
	for _, item := range items {
		if item.ID <= 0 {
			continue
		}
		byID[item.ID] = item.Name
	}
	models := make([]allianceTableModel, 0, len(byID))
	for id, name := range byID {
		models = append(models, allianceTableModel{ID: id, Name: name})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	for start := 0; start < len(models); start += insertChunkSize {
		end := min(start+insertChunkSize, len(models))
		query, args, err := qb.InsertModels("alliances", models[start:end], "ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name")
		if err != nil {
			return fmt.Errorf("build upsert alliances query: %w", err)
		}
		if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert alliances: %w", err)
		}
	}
	return nil
}

func (t *snapshotTx) PrepareStaging(ctx context.Context) error {
	query := "CREATE TEMP TABLE " + stagingTable + " (LIKE players INCLUDING DEFAULTS) ON COMMIT DROP"
	if _, err := t.tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}
	return nil
}

func (t *snapshotTx) StageChunk(ctx context.Context, rows []player.Player) error {
	if len(rows) == 0 {
		return nil
	}
	at := t.now().UTC()
	models := make([]playerTableModel, 0, len(rows))
	for _, row := range rows {
		models = append(models, toPlayerTableModel(row, at))
	}

	query, args, err := qb.InsertModels(stagingTable, models, "")
	if err != nil {
		return fmt.Errorf("build stage players query: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("stage players: %w", err)
	}
	return nil
}

func mergeStagedQuery() (string, []any, error) {
	return qb.Update("players p").
		SetExpr("name", "s.name").
		SetExpr("alliance_id", "s.alliance_id").
		SetExpr("might", "s.might").
		SetExpr("might_all_time", "GREATEST(p.might_all_time, s.might_all_time)").
		SetExpr("loot", "s.loot").
		SetExpr("loot_all_time", "GREATEST(p.loot_all_time, s.loot_all_time)").
		SetExpr("honor", "s.honor").
		SetExpr("fame", "s.fame").
		SetExpr("level", "s.level").
		SetExpr("legendary_level", "s.legendary_level").
		SetExpr("castles", "s.castles").
		SetExpr("peace_seconds", "s.peace_seconds").
		SetExpr("updated_at", "NOW()").
		From(stagingTable + " s").
		Where(qb.Expr("p.id = s.id")).
		ToSQL()
}

func (t *snapshotTx) MergeStaged(ctx context.Context) (int64, error) {
	query, args, err := mergeStagedQuery()
	if err != nil {
		return 0, fmt.Errorf("build merge staged players query: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapWriteError("merge staged players", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("merge staged players rows affected: %w", err)
	}
	return n, nil
}

func (t *snapshotTx) InsertPlayer(ctx context.Context, row player.Player) error {
	model := toPlayerTableModel(row, t.now().UTC())
	query, args, err := qb.InsertModel("players", model, "ON CONFLICT (id) DO NOTHING")
	if err != nil {
		return fmt.Errorf("build insert player query: %w", err)
	}
	return t.withSavepoint(ctx, func() error {
		_, err := t.tx.ExecContext(ctx, query, args...)
		return mapWriteError(fmt.Sprintf("insert player id=%d", row.ID), err)
	})
}

func (t *snapshotTx) ClearPlayer(ctx context.Context, playerID int64) error {
	query, args, err := qb.Update("players").
		Set("alliance_id", nil).
		SetExpr("castles", "'[]'::jsonb").
		SetExpr("updated_at", "NOW()").
		Where(qb.Eq("id", playerID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build clear player query: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear player id=%d: %w", playerID, err)
	}
	return nil
}

func (t *snapshotTx) AppendMovements(ctx context.Context, items []history.Movement) error {
	if len(items) == 0 {
		return nil
	}
	models := make([]movementTableModel, 0, len(items))
	for _, item := range items {
		m := movementTableModel{
			PlayerID:   item.PlayerID,
			Kind:       string(item.Kind),
			CastleType: int(item.CastleType),
			CreatedAt:  item.At.UTC(),
		}
		if item.Old != nil {
			m.OldKingdom, m.OldX, m.OldY = nullInt(item.Old.Kingdom), nullInt(item.Old.X), nullInt(item.Old.Y)
		}
		if item.New != nil {
			m.NewKingdom, m.NewX, m.NewY = nullInt(item.New.Kingdom), nullInt(item.New.X), nullInt(item.New.Y)
		}
		models = append(models, m)
	}
	return insertChunked(ctx, t.tx, "player_movements", models)
}

func (t *snapshotTx) AppendRenames(ctx context.Context, items []history.Rename) error {
	var (
		players   []playerRenameTableModel
		alliances []allianceRenameTableModel
	)
	for _, item := range items {
		switch item.Subject {
		case history.SubjectPlayer:
			players = append(players, playerRenameTableModel{
				PlayerID:  item.SubjectID,
				OldName:   item.OldName,
				NewName:   item.NewName,
				CreatedAt: item.At.UTC(),
			})
		case history.SubjectAlliance:
			alliances = append(alliances, allianceRenameTableModel{
				AllianceID: item.SubjectID,
				OldName:    item.OldName,
				NewName:    item.NewName,
				CreatedAt:  item.At.UTC(),
			})
		default:
			return fmt.Errorf("append renames: unknown subject %q", item.Subject)
		}
	}

	if err := insertChunked(ctx, t.tx, "player_renames", players); err != nil {
		return err
	}
	return insertChunked(ctx, t.tx, "alliance_renames", alliances)
}

func (t *snapshotTx) AppendTransfer(ctx context.Context, item history.AllianceTransfer) error {
	model := transferTableModel{
		PlayerID:      item.PlayerID,
		OldAllianceID: nullableID(item.OldAllianceID),
		NewAllianceID: nullableID(item.NewAllianceID),
		CreatedAt:     item.At.UTC(),
	}
	query, args, err := qb.InsertModel("alliance_transfers", model, "")
	if err != nil {
		return fmt.Errorf("build insert alliance transfer query: %w", err)
	}
	return t.withSavepoint(ctx, func() error {
		_, err := t.tx.ExecContext(ctx, query, args...)
		return mapWriteError(fmt.Sprintf("insert alliance transfer player=%d", item.PlayerID), err)
	})
}

func (t *snapshotTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}

func (t *snapshotTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback snapshot tx: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertChunked[T any](ctx context.Context, exec execer, table string, models []T) error {
	return insertChunkedSuffix(ctx, exec, table, models, "")
}

func insertChunkedSuffix[T any](ctx context.Context, exec execer, table string, models []T, suffix string) error {
	for start := 0; start < len(models); start += insertChunkSize {
		end := min(start+insertChunkSize, len(models))
		query, args, err := qb.InsertModels(table, models[start:end], suffix)
		if err != nil {
			return fmt.Errorf("build insert %s query: %w", table, err)
		}
		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			return mapWriteError("insert "+table, err)
		}
	}
	return nil
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: true}
}
