package player

import (
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/castle"
)

// Player is the persisted snapshot of one remote account as of the last
// successful pass.
type Player struct {
	ID             int64
	Name           string
	AllianceID     *int64
	AllianceName   string
	Might          int64
	MightAllTime   int64
	Loot           int64
	LootAllTime    int64
	Honor          int64
	Fame           int64
	Level          int
	LegendaryLevel int
	Castles        []castle.Castle
	PeaceRemaining time.Duration
	UpdatedAt      time.Time
}

func (p Player) InAlliance() bool {
	return p.AllianceID != nil && *p.AllianceID > 0
}

// SameAlliance compares two nullable alliance references.
func SameAlliance(a, b *int64) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return *a == *b
	}
}

// ApplyAllTime folds fresh counters into the all-time maxima so they never
// decrease.
func (p *Player) ApplyAllTime() {
	if p.Might > p.MightAllTime {
		p.MightAllTime = p.Might
	}
	if p.Loot > p.LootAllTime {
		p.LootAllTime = p.Loot
	}
}
