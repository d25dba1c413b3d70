package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/external/gge"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/alliance"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/castle"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/history"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/pass"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/player"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/snapshot"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/statistics"
	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/resilience"
)

var testPassStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func testPacer() *resilience.Pacer {
	return resilience.NewPacer(resilience.PacerConfig{Every: 50, Pause: 0})
}

func int64Ptr(v int64) *int64 { return &v }

func playerInfo(id int64, name string, allianceID int64, castles ...castle.Castle) gge.PlayerInfo {
	return gge.PlayerInfo{ID: id, Name: name, AllianceID: allianceID, AllianceName: fmt.Sprintf("alliance-%d", allianceID), Castles: castles}
}

func rankRow(rank, score int64, p gge.PlayerInfo) gge.RankingRow {
	return gge.RankingRow{Rank: rank, Score: score, Player: p}
}

func okPage(total int64, rows ...gge.RankingRow) gge.Result[gge.RankingPage] {
	return gge.Result[gge.RankingPage]{Status: gge.StatusOK, Payload: gge.RankingPage{Rows: rows, Total: total}}
}

func failedPage() gge.Result[gge.RankingPage] {
	return gge.Result[gge.RankingPage]{Status: gge.StatusFailure, Failure: gge.FailureTransport, Err: fmt.Errorf("dial timeout")}
}

type pageKey struct {
	listType    int
	leagueID    int
	searchValue int64
}

// stubRanking replays scripted replies per page; the last reply of a script
// repeats. Unscripted pages are empty.
type stubRanking struct {
	mu      sync.Mutex
	scripts map[pageKey][]gge.Result[gge.RankingPage]
	calls   []pageKey
}

func newStubRanking() *stubRanking {
	return &stubRanking{scripts: make(map[pageKey][]gge.Result[gge.RankingPage])}
}

func (s *stubRanking) on(listType, leagueID int, sv int64, replies ...gge.Result[gge.RankingPage]) *stubRanking {
	s.scripts[pageKey{listType, leagueID, sv}] = replies
	return s
}

func (s *stubRanking) Ranking(_ context.Context, q gge.RankingQuery) gge.Result[gge.RankingPage] {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pageKey{q.ListType, q.LeagueID, q.SearchValue}
	s.calls = append(s.calls, key)
	script := s.scripts[key]
	if len(script) == 0 {
		return gge.Result[gge.RankingPage]{Status: gge.StatusNoActiveEvent}
	}
	res := script[0]
	if len(script) > 1 {
		s.scripts[key] = script[1:]
	}
	return res
}

type stubDetails struct {
	mu      sync.Mutex
	replies map[int64]gge.Result[gge.PlayerInfo]
	calls   []int64
}

func (s *stubDetails) PlayerDetail(_ context.Context, playerID int64) gge.Result[gge.PlayerInfo] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, playerID)
	if res, ok := s.replies[playerID]; ok {
		return res
	}
	return gge.Result[gge.PlayerInfo]{Status: gge.StatusNoActiveEvent}
}

// fakeTx records every call in order and simulates the alliance foreign key.
type fakeTx struct {
	mu        sync.Mutex
	ops       []string
	alliances map[int64]string
	players   map[int64]player.Player
	staged    []player.Player
	movements []history.Movement
	renames   []history.Rename
	transfers []history.AllianceTransfer
	failMerge error
	committed bool
	rolled    bool
}

func newFakeTx(known ...int64) *fakeTx {
	tx := &fakeTx{alliances: make(map[int64]string), players: make(map[int64]player.Player)}
	for _, id := range known {
		tx.alliances[id] = ""
	}
	return tx
}

func (t *fakeTx) record(op string) {
	t.ops = append(t.ops, op)
}

func (t *fakeTx) EnsureAlliance(_ context.Context, a alliance.Alliance) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(fmt.Sprintf("ensure_alliance:%d", a.ID))
	t.alliances[a.ID] = a.Name
	return nil
}

func (t *fakeTx) EnsureAlliances(_ context.Context, items []alliance.Alliance) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(fmt.Sprintf("ensure_alliances:%d", len(items)))
	for _, a := range items {
		t.alliances[a.ID] = a.Name
	}
	return nil
}

func (t *fakeTx) PrepareStaging(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("prepare_staging")
	return nil
}

func (t *fakeTx) StageChunk(_ context.Context, rows []player.Player) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(fmt.Sprintf("stage:%d", len(rows)))
	t.staged = append(t.staged, rows...)
	return nil
}

func (t *fakeTx) MergeStaged(context.Context) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("merge")
	if t.failMerge != nil {
		return 0, t.failMerge
	}
	return int64(len(t.staged)), nil
}

func (t *fakeTx) missing(id *int64) bool {
	if id == nil {
		return false
	}
	_, ok := t.alliances[*id]
	return !ok
}

func (t *fakeTx) InsertPlayer(_ context.Context, row player.Player) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(fmt.Sprintf("insert:%d", row.ID))
	if t.missing(row.AllianceID) {
		return fmt.Errorf("insert player: %w", alliance.ErrMissing)
	}
	t.players[row.ID] = row
	return nil
}

func (t *fakeTx) ClearPlayer(_ context.Context, playerID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(fmt.Sprintf("clear:%d", playerID))
	return nil
}

func (t *fakeTx) AppendMovements(_ context.Context, items []history.Movement) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("movements")
	t.movements = append(t.movements, items...)
	return nil
}

func (t *fakeTx) AppendRenames(_ context.Context, items []history.Rename) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("renames")
	t.renames = append(t.renames, items...)
	return nil
}

func (t *fakeTx) AppendTransfer(_ context.Context, item history.AllianceTransfer) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(fmt.Sprintf("transfer:%d", item.PlayerID))
	if t.missing(item.NewAllianceID) {
		return fmt.Errorf("append transfer: %w", alliance.ErrMissing)
	}
	t.transfers = append(t.transfers, item)
	return nil
}

func (t *fakeTx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("commit")
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.committed {
		t.record("rollback")
		t.rolled = true
	}
	return nil
}

type fakeWriter struct {
	tx *fakeTx
}

func (w fakeWriter) BeginSnapshot(context.Context) (snapshot.Tx, error) {
	return w.tx, nil
}

type stubSnapshotReader struct {
	snapshot player.Snapshot
	err      error
}

func (s stubSnapshotReader) LoadSnapshot(context.Context) (player.Snapshot, error) {
	return s.snapshot, s.err
}

type stubMetricStore struct {
	mu     sync.Mutex
	chunks [][]history.MetricPoint
	failOn map[int]error
	calls  int
}

func (s *stubMetricStore) AppendMetricPoints(_ context.Context, points []history.MetricPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err, ok := s.failOn[len(points)]; ok {
		return err
	}
	s.chunks = append(s.chunks, points)
	return nil
}

func (s *stubMetricStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.chunks {
		n += len(c)
	}
	return n
}

type stubStatistics struct {
	mu       sync.Mutex
	latest   *statistics.Snapshot
	appended []statistics.Snapshot
}

func (s *stubStatistics) Latest(context.Context) (statistics.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return statistics.Snapshot{}, false, nil
	}
	return *s.latest, true, nil
}

func (s *stubStatistics) Append(_ context.Context, row statistics.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, row)
	return nil
}

type stubPassStore struct {
	reports []pass.Report
}

func (s *stubPassStore) Save(_ context.Context, report pass.Report) error {
	s.reports = append(s.reports, report)
	return nil
}

type stubVersion struct {
	increments int
}

func (s *stubVersion) Increment(context.Context, string) (int64, error) {
	s.increments++
	return int64(s.increments), nil
}

type stubProgress struct {
	marked []string
}

func (s *stubProgress) MarkFetched(_ context.Context, _ string, category string, _ time.Time) error {
	s.marked = append(s.marked, category)
	return nil
}

type fixedID string

func (f fixedID) NewID() (string, error) { return string(f), nil }

func allianceWithID(id int64) alliance.Alliance {
	return alliance.Alliance{ID: id}
}

func countOps(ops []string, op string) int {
	n := 0
	for _, o := range ops {
		if o == op {
			n++
		}
	}
	return n
}
