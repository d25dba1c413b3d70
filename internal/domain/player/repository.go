package player

import "context"

// SnapshotReader loads the last persisted state once per pass.
type SnapshotReader interface {
	LoadSnapshot(ctx context.Context) (Snapshot, error)
}

type Snapshot struct {
	Players       map[int64]Player
	AllianceNames map[int64]string
}

func EmptySnapshot() Snapshot {
	return Snapshot{
		Players:       make(map[int64]Player),
		AllianceNames: make(map[int64]string),
	}
}

func (s Snapshot) Get(id int64) (Player, bool) {
	p, ok := s.Players[id]
	return p, ok
}

func (s Snapshot) AllianceKnown(id int64) bool {
	_, ok := s.AllianceNames[id]
	return ok
}
