package pass

import (
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/history"
)

type State string

const (
	StateIdle               State = "idle"
	StateClearingPriorFlags State = "clearing_prior_flags"
	StateFetchingCategory   State = "fetching_category"
	StateReconciling        State = "reconciling"
	StateWritingSnapshot    State = "writing_snapshot"
	StateWritingAggregates  State = "writing_aggregates"
	StateDone               State = "done"
)

type Outcome string

const (
	OutcomeFetched       Outcome = "fetched"
	OutcomeNoActiveEvent Outcome = "no_active_event"
	OutcomeExhausted     Outcome = "exhausted"
	OutcomeFailed        Outcome = "failed"
)

type CategoryResult struct {
	Kind     history.MetricKind `json:"kind"`
	Outcome  Outcome            `json:"outcome"`
	Rows     int                `json:"rows"`
	Requests int                `json:"requests"`
	Errors   int                `json:"errors"`
}

// Report summarises one pass. It is persisted even when the pass had
// critical errors. NonFatal counts skipped work that does not fail the pass,
// such as an empty population.
type Report struct {
	PassID           string           `json:"pass_id"`
	Server           string           `json:"server"`
	StartedAt        time.Time        `json:"started_at"`
	FinishedAt       time.Time        `json:"finished_at"`
	Created          int              `json:"created"`
	Updated          int              `json:"updated"`
	Cleared          int              `json:"cleared"`
	Movements        int              `json:"movements"`
	Renames          int              `json:"renames"`
	Transfers        int              `json:"transfers"`
	CriticalErrors   int              `json:"critical_errors"`
	NonFatal         int              `json:"non_fatal"`
	AggregateWritten bool             `json:"aggregate_written"`
	Version          int64            `json:"version"`
	Categories       []CategoryResult `json:"categories"`
	States           []State          `json:"states"`
}

func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r Report) Succeeded() bool {
	return r.CriticalErrors == 0
}
