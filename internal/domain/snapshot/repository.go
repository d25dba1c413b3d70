package snapshot

import (
	"context"
	"errors"

	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/alliance"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/history"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/player"
)

// ErrUnavailable marks a store that stays unreachable after every reconnect
// attempt.
var ErrUnavailable = errors.New("store unavailable")

// Writer opens the unit of work that carries one pass's transition history
// and snapshot merge.
type Writer interface {
	BeginSnapshot(ctx context.Context) (Tx, error)
}

// Tx is a single database transaction. Methods that may hit a missing
// alliance return alliance.ErrMissing and leave the transaction usable.
type Tx interface {
	EnsureAlliance(ctx context.Context, a alliance.Alliance) error
	EnsureAlliances(ctx context.Context, items []alliance.Alliance) error

	PrepareStaging(ctx context.Context) error
	StageChunk(ctx context.Context, rows []player.Player) error
	MergeStaged(ctx context.Context) (int64, error)
	InsertPlayer(ctx context.Context, row player.Player) error
	ClearPlayer(ctx context.Context, playerID int64) error

	AppendMovements(ctx context.Context, items []history.Movement) error
	AppendRenames(ctx context.Context, items []history.Rename) error
	AppendTransfer(ctx context.Context, item history.AllianceTransfer) error

	Commit() error
	Rollback() error
}
