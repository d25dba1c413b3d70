package usecase

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/history"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/player"
)

// PassState is everything one pass remembers. It is discarded when the pass
// ends and never shared between passes.
type PassState struct {
	ID        string
	Server    string
	StartedAt time.Time
	Previous  player.Snapshot
	Acc       *Accumulator

	mu               sync.Mutex
	renamedPlayers   map[int64]struct{}
	renamedAlliances map[int64]struct{}
	cleared          map[int64]struct{}

	errs atomic.Int64
}

func NewPassState(id, server string, startedAt time.Time, previous player.Snapshot) *PassState {
	if previous.Players == nil {
		previous = player.EmptySnapshot()
	}
	return &PassState{
		ID:               id,
		Server:           server,
		StartedAt:        startedAt,
		Previous:         previous,
		Acc:              NewAccumulator(),
		renamedPlayers:   make(map[int64]struct{}),
		renamedAlliances: make(map[int64]struct{}),
		cleared:          make(map[int64]struct{}),
	}
}

// markRenamed returns true the first time a subject is flagged in this pass.
func (s *PassState) markRenamed(subject history.RenameSubject, id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.renamedPlayers
	if subject == history.SubjectAlliance {
		set = s.renamedAlliances
	}
	if _, ok := set[id]; ok {
		return false
	}
	set[id] = struct{}{}
	return true
}

func (s *PassState) MarkCleared(playerID int64) {
	s.mu.Lock()
	s.cleared[playerID] = struct{}{}
	s.mu.Unlock()
}

// Cleared returns the ids of players reported unresolvable this pass.
func (s *PassState) Cleared() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]int64, 0, len(s.cleared))
	for id := range s.cleared {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

func (s *PassState) AddError(n int) {
	if n > 0 {
		s.errs.Add(int64(n))
	}
}

func (s *PassState) Errors() int {
	return int(s.errs.Load())
}
