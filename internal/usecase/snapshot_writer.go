package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/alliance"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/player"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/snapshot"
	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/logging"
)

const defaultStagingChunkSize = 4000

type SnapshotWriterConfig struct {
	StagingChunkSize int
}

type WriteStats struct {
	Created        int
	Updated        int
	Cleared        int
	Alliances      int
	CriticalErrors int
}

type SnapshotWriter struct {
	alliance *AllianceRegistry
	cfg      SnapshotWriterConfig
	logger   *logging.Logger
}

func NewSnapshotWriter(registry *AllianceRegistry, cfg SnapshotWriterConfig, logger *logging.Logger) *SnapshotWriter {
	if logger == nil {
		logger = logging.Default()
	}
	if registry == nil {
		registry = NewAllianceRegistry()
	}
	if cfg.StagingChunkSize <= 0 {
		cfg.StagingChunkSize = defaultStagingChunkSize
	}
	return &SnapshotWriter{alliance: registry, cfg: cfg, logger: logger}
}

// Write persists fresh rows against the previous snapshot inside tx.
// Referenced alliances are upserted first, known players are merged through
// the staging table in one statement, new players are inserted one by one
// and cleared players lose their alliance and castles. A returned error means
// the transaction must be rolled back.
func (w *SnapshotWriter) Write(ctx context.Context, tx snapshot.Tx, rows []player.Player, known player.Snapshot, cleared []int64) (WriteStats, error) {
	ctx, span := startSpan(ctx, "usecase.SnapshotWriter.Write")
	defer span.End()

	var stats WriteStats

	alliances := referencedAlliances(rows, known)
	if len(alliances) > 0 {
		if err := tx.EnsureAlliances(ctx, alliances); err != nil {
			return stats, fmt.Errorf("ensure alliances: %w", err)
		}
		ids := make([]int64, 0, len(alliances))
		for _, a := range alliances {
			ids = append(ids, a.ID)
		}
		w.alliance.markKnown(ctx, ids...)
		stats.Alliances = len(alliances)
	}

	existing := make([]player.Player, 0, len(rows))
	fresh := make([]player.Player, 0)
	for _, row := range rows {
		if _, ok := known.Players[row.ID]; ok {
			existing = append(existing, row)
			continue
		}
		fresh = append(fresh, row)
	}

	if len(existing) > 0 {
		updated, err := w.merge(ctx, tx, existing)
		if err != nil {
			return stats, err
		}
		stats.Updated = int(updated)
	}

	for _, row := range fresh {
		if err := w.insert(ctx, tx, row); err != nil {
			stats.CriticalErrors++
			w.logger.ErrorContext(ctx, "insert new player failed", "player_id", row.ID, "error", err)
			continue
		}
		stats.Created++
	}

	for _, id := range cleared {
		if err := tx.ClearPlayer(ctx, id); err != nil {
			return stats, fmt.Errorf("clear player id=%d: %w", id, err)
		}
		stats.Cleared++
	}

	return stats, nil
}

func (w *SnapshotWriter) merge(ctx context.Context, tx snapshot.Tx, rows []player.Player) (int64, error) {
	if err := tx.PrepareStaging(ctx); err != nil {
		return 0, fmt.Errorf("prepare staging: %w", err)
	}
	for start := 0; start < len(rows); start += w.cfg.StagingChunkSize {
		end := min(start+w.cfg.StagingChunkSize, len(rows))
		if err := tx.StageChunk(ctx, rows[start:end]); err != nil {
			return 0, fmt.Errorf("stage players offset=%d: %w", start, err)
		}
	}
	updated, err := tx.MergeStaged(ctx)
	if err != nil {
		return 0, fmt.Errorf("merge staged players: %w", err)
	}
	return updated, nil
}

func (w *SnapshotWriter) insert(ctx context.Context, tx snapshot.Tx, row player.Player) error {
	err := tx.InsertPlayer(ctx, row)
	if err == nil || !errors.Is(err, ErrMissingAlliance) || row.AllianceID == nil {
		return err
	}

	target := alliance.Alliance{ID: *row.AllianceID, Name: row.AllianceName}
	if ensureErr := w.alliance.ensure(ctx, tx, target); ensureErr != nil {
		return fmt.Errorf("create alliance id=%d: %w", target.ID, ensureErr)
	}
	if err := tx.InsertPlayer(ctx, row); err != nil {
		return fmt.Errorf("retry insert player id=%d: %w", row.ID, err)
	}
	return nil
}

// referencedAlliances returns alliances that are new to the snapshot or whose
// name changed, ordered by id.
func referencedAlliances(rows []player.Player, known player.Snapshot) []alliance.Alliance {
	byID := make(map[int64]string)
	for _, row := range rows {
		if !row.InAlliance() {
			continue
		}
		id := *row.AllianceID
		if name, ok := known.AllianceNames[id]; ok && (name == row.AllianceName || row.AllianceName == "") {
			continue
		}
		byID[id] = row.AllianceName
	}

	out := make([]alliance.Alliance, 0, len(byID))
	for id, name := range byID {
		out = append(out, alliance.Alliance{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
