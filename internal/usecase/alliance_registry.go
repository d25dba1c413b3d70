package usecase

import (
	"context"
	"strconv"

	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/alliance"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/snapshot"
	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/cache"
)

// AllianceRegistry creates each missing alliance at most once per pass, no
// matter how many writes trip over it. The history and snapshot writers of
// one pass share a registry.
type AllianceRegistry struct {
	created *cache.Store[bool]
}

func NewAllianceRegistry() *AllianceRegistry {
	return &AllianceRegistry{created: cache.NewStore[bool](0)}
}

func (e *AllianceRegistry) ensure(ctx context.Context, tx snapshot.Tx, a alliance.Alliance) error {
	_, err := e.created.GetOrLoad(ctx, strconv.FormatInt(a.ID, 10), func(ctx context.Context) (bool, error) {
		if err := tx.EnsureAlliance(ctx, a); err != nil {
			return false, err
		}
		return true, nil
	})
	return err
}

func (e *AllianceRegistry) markKnown(ctx context.Context, ids ...int64) {
	for _, id := range ids {
		e.created.Set(ctx, strconv.FormatInt(id, 10), true)
	}
}

func (e *AllianceRegistry) Reset() {
	e.created.Reset()
}
