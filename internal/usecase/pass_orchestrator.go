package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/external/gge"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/history"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/pass"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/player"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/snapshot"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/statistics"
	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/id"
	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/logging"
	"github.com/panjf2000/ants/v2"
)

const (
	defaultHistoryWorkers   = 4
	defaultMaxDetailFetches = 2000
	finalizeTimeout         = 30 * time.Second
)

type PassOrchestratorConfig struct {
	Server           string
	Categories       []Category
	MaxDetailFetches int
	HistoryWorkers   int
	DryRun           bool
}

// PassDependencies groups the collaborators of one orchestrator.
type PassDependencies struct {
	Snapshots  player.SnapshotReader
	Writer     snapshot.Writer
	Statistics statistics.Store
	Passes     pass.Store
	Version    pass.VersionCounter
	Progress   pass.ProgressStore
	Categories *CategoryFetcher
	Details    *DetailFetcher
	History    *HistoryWriter
	Snapshot   *SnapshotWriter
	Aggregates *AggregateRefresher
	Registry   *AllianceRegistry
	IDs        id.Generator
	Metrics    PassMetrics
}

type PassOrchestrator struct {
	deps    PassDependencies
	cfg     PassOrchestratorConfig
	logger  *logging.Logger
	now     func() time.Time
	running atomic.Bool
}

func NewPassOrchestrator(deps PassDependencies, cfg PassOrchestratorConfig, logger *logging.Logger) *PassOrchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewNoopPassMetrics()
	}
	if deps.Registry == nil {
		deps.Registry = NewAllianceRegistry()
	}
	if deps.IDs == nil {
		deps.IDs = id.NewPassIDGenerator(cfg.Server)
	}
	if cfg.HistoryWorkers <= 0 {
		cfg.HistoryWorkers = defaultHistoryWorkers
	}
	if cfg.MaxDetailFetches < 0 {
		cfg.MaxDetailFetches = 0
	} else if cfg.MaxDetailFetches == 0 {
		cfg.MaxDetailFetches = defaultMaxDetailFetches
	}
	return &PassOrchestrator{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// historyQueue runs metric writes in the background while later categories
// are fetched.
type historyQueue struct {
	pool     *ants.Pool
	wg       sync.WaitGroup
	failures atomic.Int64
}

// Run executes one full pass. Per-category and per-player failures are
// counted, never fatal; the pass always reaches Done and its report is
// persisted. The returned error is only set when the pass could not start or
// ctx was cancelled.
func (o *PassOrchestrator) Run(ctx context.Context) (pass.Report, error) {
	if !o.running.CompareAndSwap(false, true) {
		return pass.Report{}, ErrPassInProgress
	}
	defer o.running.Store(false)

	ctx, span := startPassSpan(ctx, o.cfg.Server)
	defer span.End()

	passID, err := o.deps.IDs.NewID()
	if err != nil {
		return pass.Report{}, fmt.Errorf("generate pass id: %w", err)
	}
	startedAt := o.now().UTC()
	report := pass.Report{PassID: passID, Server: o.cfg.Server, StartedAt: startedAt}
	logger := o.logger.With("server", o.cfg.Server, "pass_id", passID)
	o.enter(ctx, logger, &report, pass.StateIdle)
	logger.InfoContext(ctx, "pass started",
		"categories", len(o.cfg.Categories),
		"dry_run", o.cfg.DryRun,
	)

	o.enter(ctx, logger, &report, pass.StateClearingPriorFlags)
	o.deps.Registry.Reset()
	previous, loadErr := o.loadPrevious(ctx, logger)
	snapshotLoaded := loadErr == nil
	state := NewPassState(passID, o.cfg.Server, startedAt, previous)
	if !snapshotLoaded {
		state.AddError(1)
	}
	// nothing fetched could be persisted
	storeDown := errors.Is(loadErr, ErrDependencyUnavailable)

	queue := &historyQueue{}
	if pool, poolErr := ants.NewPool(o.cfg.HistoryWorkers); poolErr != nil {
		logger.WarnContext(ctx, "history pool unavailable, writing metrics inline", "error", poolErr)
	} else {
		queue.pool = pool
		defer pool.Release()
	}

	for _, category := range o.cfg.Categories {
		if ctx.Err() != nil || storeDown {
			break
		}
		o.enter(ctx, logger, &report, pass.StateFetchingCategory, "category", string(category.Kind))
		report.Categories = append(report.Categories, o.fetchCategory(ctx, logger, state, queue, category))
	}

	o.enter(ctx, logger, &report, pass.StateReconciling)
	if ctx.Err() == nil && !storeDown {
		o.sweepInactive(ctx, logger, state)
	}
	state.Acc.CarryForward(state.Previous)
	rows, recs := o.reconcile(state)

	o.enter(ctx, logger, &report, pass.StateWritingSnapshot)
	if snapshotLoaded && !o.cfg.DryRun && ctx.Err() == nil {
		o.writeSnapshot(ctx, logger, state, rows, recs, &report)
	}

	o.enter(ctx, logger, &report, pass.StateWritingAggregates)
	queue.wg.Wait()
	if failed := queue.failures.Load(); failed > 0 {
		state.AddError(int(failed))
	}
	if !o.cfg.DryRun && ctx.Err() == nil {
		report.AggregateWritten = o.refreshAggregates(ctx, logger, state, &report, startedAt)
	}

	o.finish(ctx, logger, state, &report)
	return report, ctx.Err()
}

func (o *PassOrchestrator) enter(ctx context.Context, logger *logging.Logger, report *pass.Report, state pass.State, args ...any) {
	report.States = append(report.States, state)
	logger.DebugContext(ctx, "pass state", append([]any{"state", string(state)}, args...)...)
}

func (o *PassOrchestrator) loadPrevious(ctx context.Context, logger *logging.Logger) (player.Snapshot, error) {
	previous, err := o.deps.Snapshots.LoadSnapshot(ctx)
	switch {
	case err == nil:
		return previous, nil
	case errors.Is(err, ErrDependencyUnavailable):
		logger.ErrorContext(ctx, "store unavailable, skipping fetch", "error", err)
	default:
		logger.ErrorContext(ctx, "load previous snapshot failed, snapshot writes disabled", "error", err)
	}
	return player.EmptySnapshot(), err
}

func (o *PassOrchestrator) fetchCategory(ctx context.Context, logger *logging.Logger, state *PassState, queue *historyQueue, category Category) pass.CategoryResult {
	scores := make(map[int64]int64)
	result, err := o.deps.Categories.FetchCategory(ctx, category, func(rows []gge.RankingRow) {
		for _, row := range rows {
			switch category.Kind {
			case history.MetricMight:
				state.Acc.ObserveProfile(row.Player)
			case history.MetricLoot:
				state.Acc.ObserveLoot(row.Player)
			default:
				state.Acc.ObserveEvent(row.Player.ID, category.Kind, row.Score)
			}
			scores[row.Player.ID] = row.Score
		}
	})
	if err != nil {
		state.AddError(1)
		logger.WarnContext(ctx, "category fetch stopped",
			"category", string(category.Kind),
			"rows", result.Rows,
			"requests", result.Requests,
			"error", err,
		)
	}

	if len(scores) > 0 && !o.cfg.DryRun {
		o.submitHistory(ctx, logger, queue, category.Kind, MetricPoints(category.Kind, scores, state.StartedAt))
	}
	return result
}

func (o *PassOrchestrator) submitHistory(ctx context.Context, logger *logging.Logger, queue *historyQueue, kind history.MetricKind, points []history.MetricPoint) {
	write := func() {
		defer queue.wg.Done()
		failed, _ := o.deps.History.AppendMetrics(ctx, kind, points)
		queue.failures.Add(int64(failed))
	}

	queue.wg.Add(1)
	if queue.pool == nil {
		write()
		return
	}
	if err := queue.pool.Submit(write); err != nil {
		logger.WarnContext(ctx, "submit metric history failed, writing inline", "kind", string(kind), "error", err)
		write()
	}
}

// sweepInactive detail-fetches previously known players with castles that no
// listing returned this pass.
func (o *PassOrchestrator) sweepInactive(ctx context.Context, logger *logging.Logger, state *PassState) {
	if o.deps.Details == nil || o.cfg.MaxDetailFetches == 0 {
		return
	}

	ids := make([]int64, 0)
	for playerID, prev := range state.Previous.Players {
		if len(prev.Castles) == 0 || state.Acc.Profiled(playerID) {
			continue
		}
		ids = append(ids, playerID)
	}
	sortIDs(ids)
	if len(ids) > o.cfg.MaxDetailFetches {
		logger.WarnContext(ctx, "inactivity sweep capped", "candidates", len(ids), "limit", o.cfg.MaxDetailFetches)
		ids = ids[:o.cfg.MaxDetailFetches]
	}

	var resolved, cleared, failed int
	for _, playerID := range ids {
		info, ok, err := o.deps.Details.FetchPlayer(ctx, playerID)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			failed++
			state.AddError(1)
			logger.WarnContext(ctx, "player detail failed", "player_id", playerID, "error", err)
			continue
		}
		if !ok {
			state.MarkCleared(playerID)
			cleared++
			continue
		}
		state.Acc.ObserveDetail(info)
		resolved++
	}
	logger.InfoContext(ctx, "inactivity sweep finished",
		"candidates", len(ids),
		"resolved", resolved,
		"cleared", cleared,
		"failed", failed,
	)
}

func (o *PassOrchestrator) reconcile(state *PassState) ([]player.Player, []Reconciliation) {
	reconciler := NewReconciler(state)
	at := state.StartedAt

	var (
		rows []player.Player
		recs []Reconciliation
	)
	for _, b := range state.Acc.Bundles() {
		if !b.HasProfile {
			continue
		}
		rows = append(rows, b.Player(at))
		var known *player.Player
		if prev, ok := state.Previous.Players[b.PlayerID]; ok {
			known = &prev
		}
		if rec := reconciler.Reconcile(known, &b, at); !rec.Empty() {
			recs = append(recs, rec)
		}
	}
	for _, playerID := range state.Cleared() {
		prev, ok := state.Previous.Players[playerID]
		if !ok {
			continue
		}
		if rec := reconciler.ReconcileCleared(prev, at); !rec.Empty() {
			recs = append(recs, rec)
		}
	}
	return rows, recs
}

func (o *PassOrchestrator) writeSnapshot(ctx context.Context, logger *logging.Logger, state *PassState, rows []player.Player, recs []Reconciliation, report *pass.Report) {
	trans, stats, err := o.commitSnapshot(ctx, state, rows, recs)
	if err != nil {
		o.deps.Registry.Reset()
		state.AddError(1)
		logger.ErrorContext(ctx, "snapshot write failed", "error", err)
		return
	}

	state.AddError(trans.CriticalErrors + stats.CriticalErrors)
	report.Created = stats.Created
	report.Updated = stats.Updated
	report.Cleared = stats.Cleared
	report.Movements = trans.Movements
	report.Renames = trans.Renames
	report.Transfers = trans.Transfers
}

// commitSnapshot writes transitions then the snapshot in one transaction.
func (o *PassOrchestrator) commitSnapshot(ctx context.Context, state *PassState, rows []player.Player, recs []Reconciliation) (TransitionStats, WriteStats, error) {
	tx, err := o.deps.Writer.BeginSnapshot(ctx)
	if err != nil {
		return TransitionStats{}, WriteStats{}, fmt.Errorf("begin snapshot tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	trans, err := o.deps.History.AppendTransitions(ctx, tx, recs)
	if err != nil {
		return trans, WriteStats{}, err
	}
	stats, err := o.deps.Snapshot.Write(ctx, tx, rows, state.Previous, state.Cleared())
	if err != nil {
		return trans, stats, err
	}
	if err := tx.Commit(); err != nil {
		return trans, stats, fmt.Errorf("commit snapshot tx: %w", err)
	}
	committed = true
	return trans, stats, nil
}

func (o *PassOrchestrator) refreshAggregates(ctx context.Context, logger *logging.Logger, state *PassState, report *pass.Report, at time.Time) bool {
	if o.deps.Aggregates == nil || o.deps.Statistics == nil {
		return false
	}

	var prev *statistics.Snapshot
	latest, ok, err := o.deps.Statistics.Latest(ctx)
	if err != nil {
		state.AddError(1)
		logger.ErrorContext(ctx, "load previous statistics failed", "error", err)
	} else if ok {
		prev = &latest
	}

	row, written, err := o.deps.Aggregates.Refresh(ctx, state, prev, at)
	switch {
	case err == nil:
		logger.InfoContext(ctx, "server statistics written", "population", row.Population, "alliances", row.AllianceCount)
	case errors.Is(err, ErrAggregateGated):
		logger.WarnContext(ctx, "server statistics skipped", "errors", state.Errors())
	case errors.Is(err, ErrEmptyPopulation):
		report.NonFatal++
		logger.WarnContext(ctx, "server statistics skipped: empty population")
	default:
		state.AddError(1)
		logger.ErrorContext(ctx, "server statistics failed", "error", err)
	}
	return written
}

func (o *PassOrchestrator) finish(ctx context.Context, logger *logging.Logger, state *PassState, report *pass.Report) {
	o.enter(ctx, logger, report, pass.StateDone)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if o.deps.Progress != nil && !o.cfg.DryRun {
		for _, category := range report.Categories {
			if err := o.deps.Progress.MarkFetched(ctx, o.cfg.Server, string(category.Kind), state.StartedAt); err != nil {
				logger.WarnContext(ctx, "mark category progress failed", "category", string(category.Kind), "error", err)
			}
		}
	}

	report.CriticalErrors = state.Errors()
	if report.CriticalErrors == 0 && o.deps.Version != nil && !o.cfg.DryRun {
		version, err := o.deps.Version.Increment(ctx, o.cfg.Server)
		if err != nil {
			logger.ErrorContext(ctx, "increment version counter failed", "error", err)
		} else {
			report.Version = version
		}
	}

	report.FinishedAt = o.now().UTC()
	if o.deps.Passes != nil && !o.cfg.DryRun {
		if err := o.deps.Passes.Save(ctx, *report); err != nil {
			logger.ErrorContext(ctx, "save pass report failed", "error", err)
		}
	}

	o.deps.Metrics.ObservePass(o.cfg.Server, report.Duration(), report.CriticalErrors)
	o.deps.Metrics.AddPlayers("created", report.Created)
	o.deps.Metrics.AddPlayers("updated", report.Updated)
	o.deps.Metrics.AddPlayers("cleared", report.Cleared)
	if err := o.deps.Metrics.Flush(ctx); err != nil {
		logger.WarnContext(ctx, "push pass metrics failed", "error", err)
	}

	logger.InfoContext(ctx, "pass finished",
		"duration", report.Duration(),
		"created", report.Created,
		"updated", report.Updated,
		"cleared", report.Cleared,
		"movements", report.Movements,
		"renames", report.Renames,
		"transfers", report.Transfers,
		"critical_errors", report.CriticalErrors,
		"non_fatal", report.NonFatal,
		"aggregate_written", report.AggregateWritten,
		"version", report.Version,
	)
}
