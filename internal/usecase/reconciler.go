package usecase

import (
	"sort"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/castle"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/history"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/player"
)

// Reconciliation is the history derived from one player's previous and
// fresh state.
type Reconciliation struct {
	PlayerID  int64
	Renames   []history.Rename
	Transfer  *history.AllianceTransfer
	Movements []history.Movement
}

func (r Reconciliation) Empty() bool {
	return len(r.Renames) == 0 && r.Transfer == nil && len(r.Movements) == 0
}

type Reconciler struct {
	state *PassState
}

func NewReconciler(state *PassState) *Reconciler {
	return &Reconciler{state: state}
}

// Reconcile diffs a known player against its fresh bundle. A nil prev is a
// create and only yields an alliance rename seen through the new member.
func (r *Reconciler) Reconcile(prev *player.Player, fresh *Bundle, at time.Time) Reconciliation {
	if fresh == nil || !fresh.HasProfile {
		return Reconciliation{}
	}

	out := Reconciliation{PlayerID: fresh.PlayerID}
	allianceRename, allianceRenamed := r.allianceRename(fresh, at)
	if prev == nil {
		if allianceRenamed {
			out.Renames = append(out.Renames, allianceRename)
		}
		return out
	}

	if fresh.Name != "" && fresh.Name != prev.Name && r.state.markRenamed(history.SubjectPlayer, prev.ID) {
		out.Renames = append(out.Renames, history.Rename{
			Subject:   history.SubjectPlayer,
			SubjectID: prev.ID,
			OldName:   prev.Name,
			NewName:   fresh.Name,
			At:        at,
		})
	}

	if allianceRenamed {
		out.Renames = append(out.Renames, allianceRename)
	}

	if !player.SameAlliance(prev.AllianceID, fresh.AllianceID) {
		out.Transfer = &history.AllianceTransfer{
			PlayerID:        prev.ID,
			OldAllianceID:   cloneID(prev.AllianceID),
			NewAllianceID:   cloneID(fresh.AllianceID),
			NewAllianceName: fresh.AllianceName,
			At:              at,
		}
	}

	out.Movements = DiffCastles(prev.ID, prev.Castles, fresh.Castles, at)
	return out
}

// allianceRename compares the alliance name a member reports against the
// stored one. It fires once per alliance per pass, whichever member sees it.
func (r *Reconciler) allianceRename(fresh *Bundle, at time.Time) (history.Rename, bool) {
	if fresh.AllianceID == nil || fresh.AllianceName == "" {
		return history.Rename{}, false
	}
	id := *fresh.AllianceID
	oldName, known := r.state.Previous.AllianceNames[id]
	if !known || oldName == fresh.AllianceName || !r.state.markRenamed(history.SubjectAlliance, id) {
		return history.Rename{}, false
	}
	return history.Rename{
		Subject:   history.SubjectAlliance,
		SubjectID: id,
		OldName:   oldName,
		NewName:   fresh.AllianceName,
		At:        at,
	}, true
}

// ReconcileCleared records a player the remote no longer resolves: every
// castle is removed and any alliance membership ends.
func (r *Reconciler) ReconcileCleared(prev player.Player, at time.Time) Reconciliation {
	out := Reconciliation{PlayerID: prev.ID}
	out.Movements = DiffCastles(prev.ID, prev.Castles, nil, at)
	if prev.InAlliance() {
		out.Transfer = &history.AllianceTransfer{
			PlayerID:      prev.ID,
			OldAllianceID: cloneID(prev.AllianceID),
			At:            at,
		}
	}
	return out
}

// DiffCastles compares two layouts. When both sides hold a primary castle,
// a relocation is one move and primaries stay out of the set diff.
func DiffCastles(playerID int64, prev, fresh []castle.Castle, at time.Time) []history.Movement {
	var out []history.Movement

	prevPrimary, prevOK := castle.FindPrimary(prev)
	freshPrimary, freshOK := castle.FindPrimary(fresh)
	skipPrimary := prevOK && freshOK
	if skipPrimary && prevPrimary.Position() != freshPrimary.Position() {
		oldPos, newPos := prevPrimary.Position(), freshPrimary.Position()
		out = append(out, history.Movement{
			PlayerID:   playerID,
			Kind:       history.MovementMove,
			CastleType: castle.Primary,
			Old:        &oldPos,
			New:        &newPos,
			At:         at,
		})
	}

	prevSet := castleSet(prev, skipPrimary)
	freshSet := castleSet(fresh, skipPrimary)
	for key, c := range prevSet {
		if _, ok := freshSet[key]; ok {
			continue
		}
		pos := c.Position()
		out = append(out, history.Movement{PlayerID: playerID, Kind: history.MovementRemove, CastleType: c.Type, Old: &pos, At: at})
	}
	for key, c := range freshSet {
		if _, ok := prevSet[key]; ok {
			continue
		}
		pos := c.Position()
		out = append(out, history.Movement{PlayerID: playerID, Kind: history.MovementAdd, CastleType: c.Type, New: &pos, At: at})
	}

	sortMovements(out)
	return out
}

func castleSet(castles []castle.Castle, skipPrimary bool) map[castle.Key]castle.Castle {
	set := make(map[castle.Key]castle.Castle, len(castles))
	for _, c := range castles {
		if skipPrimary && c.Type == castle.Primary {
			continue
		}
		set[c.Key()] = c
	}
	return set
}

func movementPosition(m history.Movement) castle.Position {
	if m.New != nil {
		return *m.New
	}
	if m.Old != nil {
		return *m.Old
	}
	return castle.Position{}
}

func sortMovements(items []history.Movement) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.CastleType != b.CastleType {
			return a.CastleType < b.CastleType
		}
		pa, pb := movementPosition(a), movementPosition(b)
		if pa.X != pb.X {
			return pa.X < pb.X
		}
		if pa.Y != pb.Y {
			return pa.Y < pb.Y
		}
		return a.Kind < b.Kind
	})
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
