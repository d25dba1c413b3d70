package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/history"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/statistics"
	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/logging"
)

const (
	defaultProtectionWindow   = 14 * 24 * time.Hour
	defaultProtectionMinLevel = 13
	topEntries                = 3
)

type AggregateConfig struct {
	ProtectionWindow   time.Duration
	ProtectionMinLevel int
}

type AggregateRefresher struct {
	store  statistics.Store
	cfg    AggregateConfig
	logger *logging.Logger
}

func NewAggregateRefresher(store statistics.Store, cfg AggregateConfig, logger *logging.Logger) *AggregateRefresher {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.ProtectionWindow <= 0 {
		cfg.ProtectionWindow = defaultProtectionWindow
	}
	if cfg.ProtectionMinLevel <= 0 {
		cfg.ProtectionMinLevel = defaultProtectionMinLevel
	}
	return &AggregateRefresher{store: store, cfg: cfg, logger: logger}
}

// Refresh appends one aggregate row for the pass. It refuses to run once the
// pass has counted any error, and skips an empty population.
func (r *AggregateRefresher) Refresh(ctx context.Context, state *PassState, prev *statistics.Snapshot, at time.Time) (statistics.Snapshot, bool, error) {
	ctx, span := startSpan(ctx, "usecase.AggregateRefresher.Refresh")
	defer span.End()

	row, err := r.Compute(state, prev, at)
	if err != nil {
		return statistics.Snapshot{}, false, err
	}
	if err := r.store.Append(ctx, row); err != nil {
		return row, false, fmt.Errorf("append server statistics: %w", err)
	}
	return row, true, nil
}

// Compute builds the aggregate row without writing it.
func (r *AggregateRefresher) Compute(state *PassState, prev *statistics.Snapshot, at time.Time) (statistics.Snapshot, error) {
	if n := state.Errors(); n > 0 {
		return statistics.Snapshot{}, fmt.Errorf("%w: errors=%d", ErrAggregateGated, n)
	}

	row := statistics.Snapshot{PassID: state.ID, CreatedAt: at}
	alliances := make(map[int64]struct{})
	members := make(map[int64]string)
	var levelSum int64

	for _, b := range state.Acc.Bundles() {
		if !b.HasProfile || len(b.Castles) <= 1 {
			continue
		}

		members[b.PlayerID] = b.Name
		row.Population++
		row.TotalMight += b.Might
		row.TotalLoot += b.Loot
		row.TotalHonor += b.Honor
		row.MaxMight = max(row.MaxMight, b.Might)
		row.MaxLoot = max(row.MaxLoot, b.Loot)
		levelSum += int64(b.Level)
		if b.AllianceID != nil {
			alliances[*b.AllianceID] = struct{}{}
		}
		if r.protected(b) {
			row.ProtectedCount++
		}
	}

	if row.Population == 0 {
		return statistics.Snapshot{}, ErrEmptyPopulation
	}

	population := float64(row.Population)
	row.AllianceCount = len(alliances)
	row.AvgMight = float64(row.TotalMight) / population
	row.AvgLoot = float64(row.TotalLoot) / population
	row.AvgHonor = float64(row.TotalHonor) / population
	row.AvgLevel = float64(levelSum) / population

	if prev != nil {
		row.VariationMight = row.TotalMight - prev.TotalMight
		row.VariationLoot = row.TotalLoot - prev.TotalLoot
		row.VariationHonor = row.TotalHonor - prev.TotalHonor
	}

	for _, kind := range history.EventKinds {
		row.Events = append(row.Events, eventStats(kind, state.Acc.EventScores(kind), members, population))
	}
	return row, nil
}

func (r *AggregateRefresher) protected(b Bundle) bool {
	return b.PeaceRemaining > 0 &&
		b.PeaceRemaining <= r.cfg.ProtectionWindow &&
		b.Level >= r.cfg.ProtectionMinLevel
}

// eventStats only counts population members, so the participation rate
// stays within [0, 1].
func eventStats(kind history.MetricKind, scores map[int64]int64, members map[int64]string, population float64) statistics.EventStats {
	entries := make([]statistics.TopEntry, 0, len(scores))
	for id, score := range scores {
		name, ok := members[id]
		if !ok {
			continue
		}
		entries = append(entries, statistics.TopEntry{PlayerID: id, Name: name, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})

	stats := statistics.EventStats{
		Kind:              kind,
		Participants:      len(entries),
		ParticipationRate: float64(len(entries)) / population,
	}
	if len(entries) > topEntries {
		entries = entries[:topEntries]
	}
	stats.Top3 = entries
	return stats
}
