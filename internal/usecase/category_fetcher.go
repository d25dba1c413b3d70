package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/external/gge"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/history"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/pass"
	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/logging"
	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/resilience"
)

const defaultMaxPagesPerBracket = 5000

// Category is one ranked list walked during a pass. Brackets are the level
// league ids to paginate; StopAtOrBelow ends a bracket at the first row whose
// score is at or below the threshold.
type Category struct {
	Kind          history.MetricKind
	ListType      int
	Brackets      []int
	StopAtOrBelow *int64
}

func (c Category) brackets() []int {
	if len(c.Brackets) == 0 {
		return []int{1}
	}
	return c.Brackets
}

// Threshold is a helper for building StopAtOrBelow literals.
func Threshold(v int64) *int64 {
	return &v
}

// DefaultThreshold is the early-exit score for a kind the server catalog
// leaves unset. Berimond scores go negative, so it stops below zero.
func DefaultThreshold(kind history.MetricKind) *int64 {
	switch kind {
	case history.MetricMight:
		return nil
	case history.MetricBerimond:
		return Threshold(-1)
	default:
		return Threshold(0)
	}
}

func ListingRetryPolicy() resilience.RetryPolicy {
	return resilience.RetryPolicy{Name: "listing", MaxAttempts: 3, Delay: 2 * time.Second, Strategy: resilience.BackoffFixed}
}

func DetailRetryPolicy() resilience.RetryPolicy {
	return resilience.RetryPolicy{Name: "detail", MaxAttempts: 5, Delay: 3 * time.Second, Strategy: resilience.BackoffFixed}
}

// PageFunc receives the rows of one page that passed the category threshold.
type PageFunc func(rows []gge.RankingRow)

type CategoryFetcher struct {
	source   RankingSource
	pacer    *resilience.Pacer
	policy   resilience.RetryPolicy
	maxPages int
	logger   *logging.Logger
}

func NewCategoryFetcher(source RankingSource, pacer *resilience.Pacer, policy resilience.RetryPolicy, logger *logging.Logger) *CategoryFetcher {
	if logger == nil {
		logger = logging.Default()
	}
	if pacer == nil {
		pacer = resilience.NewPacer(resilience.DefaultPacerConfig())
	}
	return &CategoryFetcher{
		source:   source,
		pacer:    pacer,
		policy:   policy,
		maxPages: defaultMaxPagesPerBracket,
		logger:   logger,
	}
}

// FetchCategory walks every bracket of a category. Exhausted retries on any
// page stop the category with ErrCategoryExhausted; rows seen before that
// have already been handed to onPage.
func (f *CategoryFetcher) FetchCategory(ctx context.Context, category Category, onPage PageFunc) (pass.CategoryResult, error) {
	ctx, span := startSpan(ctx, "usecase.CategoryFetcher.FetchCategory")
	defer span.End()

	result := pass.CategoryResult{Kind: category.Kind, Outcome: pass.OutcomeFetched}
	for bi, bracket := range category.brackets() {
		searchValue := int64(1)
		for page := 0; page < f.maxPages; page++ {
			query := gge.RankingQuery{ListType: category.ListType, LeagueID: bracket, SearchValue: searchValue}
			res, err := f.fetchPage(ctx, query, &result)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					result.Outcome = pass.OutcomeFailed
					return result, ctxErr
				}
				result.Outcome = pass.OutcomeExhausted
				result.Errors++
				return result, fmt.Errorf("%w: %s bracket=%d sv=%d: %w", ErrCategoryExhausted, category.Kind, bracket, searchValue, err)
			}

			rows := res.Payload.Rows
			if res.NoActiveEvent() || len(rows) == 0 {
				if bi == 0 && page == 0 {
					result.Outcome = pass.OutcomeNoActiveEvent
					f.logger.InfoContext(ctx, "category has no active event", "category", string(category.Kind))
					return result, nil
				}
				break
			}

			kept, stop := applyThreshold(rows, category.StopAtOrBelow)
			if len(kept) > 0 {
				onPage(kept)
				result.Rows += len(kept)
			}
			if stop {
				break
			}

			last := res.Payload.LastRank()
			if last < searchValue {
				break
			}
			if total := res.Payload.Total; total > 0 && last >= total {
				break
			}
			searchValue = last + 1
		}
	}
	return result, nil
}

func (f *CategoryFetcher) fetchPage(ctx context.Context, query gge.RankingQuery, result *pass.CategoryResult) (gge.Result[gge.RankingPage], error) {
	var res gge.Result[gge.RankingPage]
	err := f.policy.Do(ctx, func(ctx context.Context, attempt int) (bool, error) {
		if err := f.pacer.Wait(ctx); err != nil {
			return false, err
		}
		result.Requests++
		res = f.source.Ranking(ctx, query)
		if res.Retryable() {
			f.logger.DebugContext(ctx, "ranking page failed",
				"list_type", query.ListType,
				"league_id", query.LeagueID,
				"search_value", query.SearchValue,
				"attempt", attempt,
				"failure", string(res.Failure),
			)
			return true, res.Err
		}
		return false, nil
	})
	return res, err
}

// applyThreshold returns the rows strictly above the threshold and whether
// the bracket should stop.
func applyThreshold(rows []gge.RankingRow, threshold *int64) ([]gge.RankingRow, bool) {
	if threshold == nil {
		return rows, false
	}
	for i, row := range rows {
		if row.Score <= *threshold {
			return rows[:i], true
		}
	}
	return rows, false
}

// DetailFetcher resolves single players for the inactivity sweep. Unlike
// listings a failure here is reported for the one player only.
type DetailFetcher struct {
	source PlayerSource
	pacer  *resilience.Pacer
	policy resilience.RetryPolicy
}

func NewDetailFetcher(source PlayerSource, pacer *resilience.Pacer, policy resilience.RetryPolicy) *DetailFetcher {
	if pacer == nil {
		pacer = resilience.NewPacer(resilience.DefaultPacerConfig())
	}
	return &DetailFetcher{source: source, pacer: pacer, policy: policy}
}

// FetchPlayer returns resolved=false when the remote no longer knows the id.
func (f *DetailFetcher) FetchPlayer(ctx context.Context, playerID int64) (gge.PlayerInfo, bool, error) {
	var res gge.Result[gge.PlayerInfo]
	err := f.policy.Do(ctx, func(ctx context.Context, _ int) (bool, error) {
		if err := f.pacer.Wait(ctx); err != nil {
			return false, err
		}
		res = f.source.PlayerDetail(ctx, playerID)
		if res.Retryable() {
			return true, res.Err
		}
		return false, nil
	})
	if err != nil {
		return gge.PlayerInfo{}, false, fmt.Errorf("fetch player detail id=%d: %w", playerID, err)
	}
	if res.NoActiveEvent() {
		return gge.PlayerInfo{}, false, nil
	}
	return res.Payload, true, nil
}
