package querybuilder

import "testing"

func TestSelectBuilder(t *testing.T) {
	query, args, err := Select("id", "name", "alliance_id").
		From("players").
		Where(Expr("castles <> '[]'::jsonb"), Eq("alliance_id", int64(12))).
		OrderBy("id").
		Limit(10).
		ToSQL()
	if err != nil {
		t.Fatalf("build select query: %v", err)
	}

	wantQuery := "SELECT id, name, alliance_id FROM players WHERE castles <> '[]'::jsonb AND alliance_id = $1 ORDER BY id LIMIT 10"
	if query != wantQuery {
		t.Fatalf("unexpected query:\nwant: %s\ngot:  %s", wantQuery, query)
	}
	if len(args) != 1 || args[0] != int64(12) {
		t.Fatalf("unexpected args: %+v", args)
	}
}

func TestInsertBuilder_MultiRow(t *testing.T) {
	query, args, err := InsertInto("metric_history").
		Columns("player_id", "kind", "score").
		Values(int64(1), "might", int64(100)).
		Values(int64(2), "might", int64(80)).
		Suffix("ON CONFLICT DO NOTHING").
		ToSQL()
	if err != nil {
		t.Fatalf("build insert query: %v", err)
	}

	wantQuery := "INSERT INTO metric_history (player_id, kind, score) VALUES ($1, $2, $3), ($4, $5, $6) ON CONFLICT DO NOTHING"
	if query != wantQuery {
		t.Fatalf("unexpected query:\nwant: %s\ngot:  %s", wantQuery, query)
	}
	if len(args) != 6 || args[3] != int64(2) {
		t.Fatalf("unexpected args: %+v", args)
	}
}

func TestInsertBuilder_RowArityMismatch(t *testing.T) {
	_, _, err := InsertInto("alliances").Columns("id", "name").Values(int64(1)).ToSQL()
	if err == nil {
		t.Fatalf("expected arity error")
	}
}

func TestUpdateBuilder_FromStaging(t *testing.T) {
	query, args, err := Update("players p").
		SetExpr("might", "s.might").
		SetExpr("might_all_time", "GREATEST(p.might_all_time, s.might_all_time)").
		SetExpr("updated_at", "?", "now").
		From("player_staging s").
		Where(Expr("p.id = s.id")).
		ToSQL()
	if err != nil {
		t.Fatalf("build update query: %v", err)
	}

	wantQuery := "UPDATE players p SET might = s.might, might_all_time = GREATEST(p.might_all_time, s.might_all_time), updated_at = $1 FROM player_staging s WHERE p.id = s.id"
	if query != wantQuery {
		t.Fatalf("unexpected query:\nwant: %s\ngot:  %s", wantQuery, query)
	}
	if len(args) != 1 || args[0] != "now" {
		t.Fatalf("unexpected args: %+v", args)
	}
}

func TestUpdateBuilder_SetAndWhere(t *testing.T) {
	query, args, err := Update("players").
		Set("alliance_id", nil).
		SetExpr("castles", "'[]'::jsonb").
		Where(Eq("id", int64(9))).
		ToSQL()
	if err != nil {
		t.Fatalf("build update query: %v", err)
	}

	wantQuery := "UPDATE players SET alliance_id = $1, castles = '[]'::jsonb WHERE id = $2"
	if query != wantQuery {
		t.Fatalf("unexpected query:\nwant: %s\ngot:  %s", wantQuery, query)
	}
	if len(args) != 2 || args[0] != nil || args[1] != int64(9) {
		t.Fatalf("unexpected args: %+v", args)
	}
}

func TestInsertModels(t *testing.T) {
	type row struct {
		ID      int64  `db:"id"`
		Name    string `db:"name"`
		Ignored string `db:"-"`
		hidden  int
	}

	query, args, err := InsertModels("alliances", []row{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}}, "ON CONFLICT (id) DO NOTHING")
	if err != nil {
		t.Fatalf("build insert models: %v", err)
	}

	wantQuery := "INSERT INTO alliances (id, name) VALUES ($1, $2), ($3, $4) ON CONFLICT (id) DO NOTHING"
	if query != wantQuery {
		t.Fatalf("unexpected query:\nwant: %s\ngot:  %s", wantQuery, query)
	}
	if len(args) != 4 || args[2] != int64(2) || args[3] != "B" {
		t.Fatalf("unexpected args: %+v", args)
	}

	cols, err := Columns(row{})
	if err != nil || len(cols) != 2 {
		t.Fatalf("unexpected columns: %v err=%v", cols, err)
	}
}

func TestExpr_BindsInOrderAndKeepsSurplusMarks(t *testing.T) {
	query, args, err := Select("id").
		From("metric_history").
		Where(Eq("kind", "might"), Expr("created_at >= ? AND player_id <> ?", "t0")).
		ToSQL()
	if err != nil {
		t.Fatalf("build select query: %v", err)
	}

	wantQuery := "SELECT id FROM metric_history WHERE kind = $1 AND created_at >= $2 AND player_id <> ?"
	if query != wantQuery {
		t.Fatalf("unexpected query:\nwant: %s\ngot:  %s", wantQuery, query)
	}
	if len(args) != 2 || args[1] != "t0" {
		t.Fatalf("unexpected args: %+v", args)
	}
}

func TestSelectBuilder_RequiresTable(t *testing.T) {
	if _, _, err := Select("id").ToSQL(); err == nil {
		t.Fatalf("expected missing table error")
	}
}
