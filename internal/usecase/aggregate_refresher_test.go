package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/external/gge"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/castle"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/history"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/statistics"
	"github.com/stretchr/testify/require"
)

func twoCastles() []castle.Castle {
	return []castle.Castle{{X: 1, Y: 1, Type: castle.Primary}, {X: 2, Y: 2, Type: castle.Outpost}}
}

func TestAggregateRefresher_GatedOnErrors(t *testing.T) {
	t.Parallel()

	store := &stubStatistics{}
	state := newTestState()
	state.Acc.ObserveProfile(gge.PlayerInfo{ID: 1, Name: "a", Castles: twoCastles()})
	state.AddError(1)

	_, written, err := NewAggregateRefresher(store, AggregateConfig{}, nil).Refresh(context.Background(), state, nil, testPassStart)
	require.ErrorIs(t, err, ErrAggregateGated)
	require.False(t, written)
	require.Empty(t, store.appended)
}

func TestAggregateRefresher_EmptyPopulation(t *testing.T) {
	t.Parallel()

	store := &stubStatistics{}
	state := newTestState()
	state.Acc.ObserveProfile(gge.PlayerInfo{ID: 1, Name: "single castle", Castles: twoCastles()[:1]})

	_, written, err := NewAggregateRefresher(store, AggregateConfig{}, nil).Refresh(context.Background(), state, nil, testPassStart)
	require.True(t, errors.Is(err, ErrEmptyPopulation))
	require.False(t, written)
	require.Empty(t, store.appended)
}

func TestAggregateRefresher_ComputesRow(t *testing.T) {
	t.Parallel()

	state := newTestState()
	state.Acc.ObserveProfile(gge.PlayerInfo{ID: 1, Name: "a", AllianceID: 5, Might: 100, Honor: 10, Level: 20, PeaceSeconds: int64((24 * time.Hour).Seconds()), Castles: twoCastles()})
	state.Acc.ObserveProfile(gge.PlayerInfo{ID: 2, Name: "b", AllianceID: 5, Might: 300, Honor: 30, Level: 10, PeaceSeconds: 60, Castles: twoCastles()})
	state.Acc.ObserveProfile(gge.PlayerInfo{ID: 3, Name: "c", Might: 200, Level: 30, PeaceSeconds: int64((20 * 24 * time.Hour).Seconds()), Castles: twoCastles()})
	state.Acc.ObserveProfile(gge.PlayerInfo{ID: 4, Name: "excluded", Might: 9999, Castles: twoCastles()[:1]})
	state.Acc.ObserveLoot(gge.PlayerInfo{ID: 1, Loot: 40})
	state.Acc.ObserveEvent(1, history.MetricNomad, 5)
	state.Acc.ObserveEvent(2, history.MetricNomad, 50)
	state.Acc.ObserveEvent(3, history.MetricNomad, 7)
	state.Acc.ObserveEvent(4, history.MetricNomad, 6)

	prev := &statistics.Snapshot{TotalMight: 500, TotalLoot: 50, TotalHonor: 40}
	store := &stubStatistics{}
	got, written, err := NewAggregateRefresher(store, AggregateConfig{}, nil).Refresh(context.Background(), state, prev, testPassStart)
	require.NoError(t, err)
	require.True(t, written)
	require.Len(t, store.appended, 1)

	require.Equal(t, 3, got.Population)
	require.Equal(t, 1, got.AllianceCount)
	require.Equal(t, int64(600), got.TotalMight)
	require.InDelta(t, 200.0, got.AvgMight, 0.001)
	require.InDelta(t, 20.0, got.AvgLevel, 0.001)
	require.Equal(t, int64(300), got.MaxMight)
	require.Equal(t, int64(40), got.MaxLoot)
	require.Equal(t, 1, got.ProtectedCount, "only player 1 is protected, in window and level")
	require.Equal(t, int64(100), got.VariationMight)
	require.Equal(t, int64(-10), got.VariationLoot)
	require.Equal(t, int64(0), got.VariationHonor)

	nomad, ok := got.Event(history.MetricNomad)
	require.True(t, ok)
	require.Equal(t, 3, nomad.Participants, "player 4 is outside the population")
	require.InDelta(t, 1.0, nomad.ParticipationRate, 0.001)
	require.Equal(t, []statistics.TopEntry{
		{PlayerID: 2, Name: "b", Score: 50},
		{PlayerID: 3, Name: "c", Score: 7},
		{PlayerID: 1, Name: "a", Score: 5},
	}, nomad.Top3)

	samurai, ok := got.Event(history.MetricSamurai)
	require.True(t, ok)
	require.Zero(t, samurai.Participants)
}

func TestAggregateRefresher_NoPreviousRowHasZeroVariation(t *testing.T) {
	t.Parallel()

	state := newTestState()
	state.Acc.ObserveProfile(gge.PlayerInfo{ID: 1, Name: "a", Might: 100, Castles: twoCastles()})

	got, err := NewAggregateRefresher(&stubStatistics{}, AggregateConfig{}, nil).Compute(state, nil, testPassStart)
	require.NoError(t, err)
	require.Zero(t, got.VariationMight)
	require.Equal(t, "pass-1", got.PassID)
}

func TestAggregateRefresher_ParticipationNeverExceedsPopulation(t *testing.T) {
	t.Parallel()

	state := newTestState()
	state.Acc.ObserveProfile(gge.PlayerInfo{ID: 1, Name: "a", Castles: twoCastles()})
	for id := int64(2); id <= 5; id++ {
		state.Acc.ObserveProfile(gge.PlayerInfo{ID: id, Name: "small", Castles: twoCastles()[:1]})
	}
	for id := int64(1); id <= 5; id++ {
		state.Acc.ObserveEvent(id, history.MetricBerimond, 10*id)
	}
	state.Acc.ObserveEvent(99, history.MetricBerimond, 1000)

	got, err := NewAggregateRefresher(&stubStatistics{}, AggregateConfig{}, nil).Compute(state, nil, testPassStart)
	require.NoError(t, err)
	berimond, ok := got.Event(history.MetricBerimond)
	require.True(t, ok)
	require.Equal(t, 1, berimond.Participants)
	require.LessOrEqual(t, berimond.ParticipationRate, 1.0)
	require.Equal(t, []statistics.TopEntry{{PlayerID: 1, Name: "a", Score: 10}}, berimond.Top3)
}
