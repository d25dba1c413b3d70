package usecase

import (
	"context"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/external/gge"
)

// RankingSource is one page of a ranked list. *gge.Client satisfies it.
type RankingSource interface {
	Ranking(ctx context.Context, q gge.RankingQuery) gge.Result[gge.RankingPage]
}

// PlayerSource resolves a single player by id. *gge.Client satisfies it.
type PlayerSource interface {
	PlayerDetail(ctx context.Context, playerID int64) gge.Result[gge.PlayerInfo]
}

// PassMetrics receives pass level measurements. The prometheus pusher in
// observability implements it.
type PassMetrics interface {
	ObservePass(server string, duration time.Duration, criticalErrors int)
	AddPlayers(mode string, n int)
	Flush(ctx context.Context) error
}

type noopPassMetrics struct{}

func (noopPassMetrics) ObservePass(string, time.Duration, int) {}
func (noopPassMetrics) AddPlayers(string, int)                 {}
func (noopPassMetrics) Flush(context.Context) error            { return nil }

func NewNoopPassMetrics() PassMetrics {
	return noopPassMetrics{}
}
