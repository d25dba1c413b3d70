package postgres

import (
	"testing"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/castle"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/player"
)

func TestCastlesColumn_ScanJSONB(t *testing.T) {
	t.Parallel()

	var col castlesColumn
	if err := col.Scan([]byte(`[{"k":0,"x":10,"y":20,"t":1},{"k":2,"x":5,"y":6,"t":12}]`)); err != nil {
		t.Fatalf("scan castles: %v", err)
	}
	if len(col) != 2 || col[0].Type != castle.Primary || col[1].Kingdom != 2 {
		t.Fatalf("unexpected castles: %+v", col)
	}

	if err := col.Scan(nil); err != nil || col != nil {
		t.Fatalf("NULL must scan to nil layout, got=%+v err=%v", col, err)
	}
	if err := col.Scan(42); err == nil {
		t.Fatalf("expected error for unsupported source")
	}
}

func TestCastlesColumn_EmptyValueIsArray(t *testing.T) {
	t.Parallel()

	v, err := castlesColumn(nil).Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if v != "[]" {
		t.Fatalf("expected empty jsonb array, got=%v", v)
	}
}

func TestPlayerTableModel_PeaceSeconds(t *testing.T) {
	t.Parallel()

	aid := int64(3)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := player.Player{ID: 9, Name: "Lord", AllianceID: &aid, PeaceRemaining: 90 * time.Second}

	model := toPlayerTableModel(in, at)
	if model.PeaceSeconds != 90 || !model.AllianceID.Valid || model.AllianceID.Int64 != 3 {
		t.Fatalf("unexpected model: %+v", model)
	}

	out := model.toDomain("Knights")
	if out.PeaceRemaining != 90*time.Second || out.AllianceName != "Knights" || out.UpdatedAt != at {
		t.Fatalf("unexpected domain player: %+v", out)
	}
	if out.AllianceID == nil || *out.AllianceID != 3 {
		t.Fatalf("unexpected alliance id: %v", out.AllianceID)
	}
}

func TestMergeStagedQuery_KeepsAllTimeMaxima(t *testing.T) {
	t.Parallel()

	query, args, err := mergeStagedQuery()
	if err != nil {
		t.Fatalf("build merge query: %v", err)
	}
	want := "UPDATE players p SET name = s.name, alliance_id = s.alliance_id, might = s.might, " +
		"might_all_time = GREATEST(p.might_all_time, s.might_all_time), loot = s.loot, " +
		"loot_all_time = GREATEST(p.loot_all_time, s.loot_all_time), honor = s.honor, fame = s.fame, " +
		"level = s.level, legendary_level = s.legendary_level, castles = s.castles, " +
		"peace_seconds = s.peace_seconds, updated_at = NOW() FROM player_staging s WHERE p.id = s.id"
	if query != want {
		t.Fatalf("unexpected merge query:\nwant: %s\ngot:  %s", want, query)
	}
	if len(args) != 0 {
		t.Fatalf("expected no args, got=%v", args)
	}
}
