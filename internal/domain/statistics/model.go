package statistics

import (
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/history"
)

type TopEntry struct {
	PlayerID int64  `json:"player_id"`
	Name     string `json:"name"`
	Score    int64  `json:"score"`
}

type EventStats struct {
	Kind              history.MetricKind `json:"kind"`
	Participants      int                `json:"participants"`
	ParticipationRate float64            `json:"participation_rate"`
	Top3              []TopEntry         `json:"top3"`
}

// Snapshot is one server-wide aggregate row, appended once per clean pass.
type Snapshot struct {
	PassID         string
	Population     int
	AllianceCount  int
	AvgMight       float64
	AvgLoot        float64
	AvgHonor       float64
	AvgLevel       float64
	TotalMight     int64
	TotalLoot      int64
	TotalHonor     int64
	MaxMight       int64
	MaxLoot        int64
	ProtectedCount int
	VariationMight int64
	VariationLoot  int64
	VariationHonor int64
	Events         []EventStats
	CreatedAt      time.Time
}

func (s Snapshot) Event(kind history.MetricKind) (EventStats, bool) {
	for _, e := range s.Events {
		if e.Kind == kind {
			return e, true
		}
	}
	return EventStats{}, false
}
