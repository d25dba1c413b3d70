package usecase

import (
	"sort"
	"sync"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/external/gge"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/castle"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/history"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/player"
)

// Bundle is the latest observed state of one player within a pass. Field-sets
// are replaced wholesale by the listing that owns them; all-time maxima are
// combined across every observation.
type Bundle struct {
	PlayerID int64

	HasProfile     bool
	Name           string
	AllianceID     *int64
	AllianceName   string
	Level          int
	LegendaryLevel int
	Honor          int64
	Fame           int64
	Castles        []castle.Castle
	PeaceRemaining time.Duration
	Might          int64

	HasLoot bool
	Loot    int64

	MightAllTime int64
	LootAllTime  int64
}

// Player converts the bundle into a snapshot row stamped with at.
func (b Bundle) Player(at time.Time) player.Player {
	p := player.Player{
		ID:             b.PlayerID,
		Name:           b.Name,
		AllianceID:     cloneID(b.AllianceID),
		AllianceName:   b.AllianceName,
		Might:          b.Might,
		MightAllTime:   b.MightAllTime,
		Loot:           b.Loot,
		LootAllTime:    b.LootAllTime,
		Honor:          b.Honor,
		Fame:           b.Fame,
		Level:          b.Level,
		LegendaryLevel: b.LegendaryLevel,
		Castles:        append([]castle.Castle(nil), b.Castles...),
		PeaceRemaining: b.PeaceRemaining,
		UpdatedAt:      at,
	}
	p.ApplyAllTime()
	return p
}

type Accumulator struct {
	mu      sync.RWMutex
	bundles map[int64]*Bundle
	scores  map[int64]map[history.MetricKind]int64
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		bundles: make(map[int64]*Bundle),
		scores:  make(map[int64]map[history.MetricKind]int64),
	}
}

func (a *Accumulator) bundle(id int64) *Bundle {
	b, ok := a.bundles[id]
	if !ok {
		b = &Bundle{PlayerID: id}
		a.bundles[id] = b
	}
	return b
}

// ObserveProfile replaces the profile and might field-sets. It is fed by the
// might listing and by detail fetches.
func (a *Accumulator) ObserveProfile(info gge.PlayerInfo) {
	if info.ID <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	b := a.bundle(info.ID)
	b.HasProfile = true
	b.Name = info.Name
	b.AllianceID = info.AllianceRef()
	b.AllianceName = allianceName(info)
	b.Level = info.Level
	b.LegendaryLevel = info.LegendaryLevel
	b.Honor = info.Honor
	b.Fame = info.Fame
	b.Castles = append([]castle.Castle(nil), info.Castles...)
	b.PeaceRemaining = info.PeaceRemaining()
	b.Might = info.Might
	a.combineAllTime(b, info)
}

// ObserveDetail records a detail fetch. The payload carries loot as well, so
// the loot field-set is filled when no loot listing row was seen.
func (a *Accumulator) ObserveDetail(info gge.PlayerInfo) {
	a.ObserveProfile(info)
	if info.ID <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	b := a.bundle(info.ID)
	if !b.HasLoot {
		b.HasLoot = true
		b.Loot = info.Loot
	}
}

// CarryForward fills field-sets the pass did not observe from the previous
// snapshot, so a profiled player never has loot reset to zero. All-time
// maxima never drop below the stored values.
func (a *Accumulator) CarryForward(previous player.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, b := range a.bundles {
		prev, ok := previous.Players[id]
		if !ok || !b.HasProfile {
			continue
		}
		if !b.HasLoot {
			b.Loot = prev.Loot
		}
		b.MightAllTime = max(b.MightAllTime, prev.MightAllTime)
		b.LootAllTime = max(b.LootAllTime, prev.LootAllTime)
	}
}

// ObserveLoot replaces the loot field-set. Name and alliance are only taken
// when no profile has been observed for the player yet.
func (a *Accumulator) ObserveLoot(info gge.PlayerInfo) {
	if info.ID <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	b := a.bundle(info.ID)
	b.HasLoot = true
	b.Loot = info.Loot
	if !b.HasProfile {
		b.Name = info.Name
		b.AllianceID = info.AllianceRef()
		b.AllianceName = allianceName(info)
	}
	a.combineAllTime(b, info)
}

func (a *Accumulator) combineAllTime(b *Bundle, info gge.PlayerInfo) {
	b.MightAllTime = max(b.MightAllTime, info.MightAllTime, info.Might)
	b.LootAllTime = max(b.LootAllTime, info.LootAllTime, info.Loot)
}

func (a *Accumulator) ObserveEvent(playerID int64, kind history.MetricKind, score int64) {
	if playerID <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	byKind, ok := a.scores[playerID]
	if !ok {
		byKind = make(map[history.MetricKind]int64, 2)
		a.scores[playerID] = byKind
	}
	byKind[kind] = score
}

func (a *Accumulator) Get(playerID int64) (Bundle, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	b, ok := a.bundles[playerID]
	if !ok {
		return Bundle{}, false
	}
	return *b, true
}

// Profiled reports whether the player was seen by a profile-bearing source.
func (a *Accumulator) Profiled(playerID int64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	b, ok := a.bundles[playerID]
	return ok && b.HasProfile
}

// Bundles returns copies ordered by player id.
func (a *Accumulator) Bundles() []Bundle {
	a.mu.RLock()
	out := make([]Bundle, 0, len(a.bundles))
	for _, b := range a.bundles {
		out = append(out, *b)
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

func (a *Accumulator) EventScores(kind history.MetricKind) map[int64]int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[int64]int64)
	for id, byKind := range a.scores {
		if score, ok := byKind[kind]; ok {
			out[id] = score
		}
	}
	return out
}

func (a *Accumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.bundles)
}

func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bundles = make(map[int64]*Bundle)
	a.scores = make(map[int64]map[history.MetricKind]int64)
}

func allianceName(info gge.PlayerInfo) string {
	if info.AllianceRef() == nil {
		return ""
	}
	return info.AllianceName
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
