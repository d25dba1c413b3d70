package history

import (
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/castle"
)

// MetricKind names one ranked series fetched from the remote.
type MetricKind string

const (
	MetricMight     MetricKind = "might"
	MetricLoot      MetricKind = "loot"
	MetricNomad     MetricKind = "nomad"
	MetricSamurai   MetricKind = "samurai"
	MetricBloodcrow MetricKind = "bloodcrow"
	MetricWarRealms MetricKind = "war_realms"
	MetricBerimond  MetricKind = "berimond"
)

// EventKinds lists the event series in fetch order.
var EventKinds = []MetricKind{MetricNomad, MetricSamurai, MetricBloodcrow, MetricWarRealms, MetricBerimond}

func (k MetricKind) IsEvent() bool {
	for _, e := range EventKinds {
		if e == k {
			return true
		}
	}
	return false
}

type MetricPoint struct {
	PlayerID int64
	Kind     MetricKind
	Score    int64
	At       time.Time
}

type MovementKind string

const (
	MovementAdd    MovementKind = "add"
	MovementRemove MovementKind = "remove"
	MovementMove   MovementKind = "move"
)

// Movement is derived by diffing two castle layouts. Old is nil for adds and
// New is nil for removes.
type Movement struct {
	PlayerID   int64
	Kind       MovementKind
	CastleType castle.Type
	Old        *castle.Position
	New        *castle.Position
	At         time.Time
}

type RenameSubject string

const (
	SubjectPlayer   RenameSubject = "player"
	SubjectAlliance RenameSubject = "alliance"
)

type Rename struct {
	Subject   RenameSubject
	SubjectID int64
	OldName   string
	NewName   string
	At        time.Time
}

// AllianceTransfer records a change of alliance. NewAllianceName lets the
// writer create the alliance row on demand.
type AllianceTransfer struct {
	PlayerID        int64
	OldAllianceID   *int64
	NewAllianceID   *int64
	NewAllianceName string
	At              time.Time
}
