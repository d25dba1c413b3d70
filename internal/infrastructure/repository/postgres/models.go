package postgres

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/castle"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/player"
)

type playerTableModel struct {
	ID             int64         `db:"id"`
	Name           string        `db:"name"`
	AllianceID     sql.NullInt64 `db:"alliance_id"`
	Might          int64         `db:"might"`
	MightAllTime   int64         `db:"might_all_time"`
	Loot           int64         `db:"loot"`
	LootAllTime    int64         `db:"loot_all_time"`
	Honor          int64         `db:"honor"`
	Fame           int64         `db:"fame"`
	Level          int           `db:"level"`
	LegendaryLevel int           `db:"legendary_level"`
	Castles        castlesColumn `db:"castles"`
	PeaceSeconds   int64         `db:"peace_seconds"`
	UpdatedAt      time.Time     `db:"updated_at"`
}

type playerSnapshotRow struct {
	playerTableModel
	AllianceName sql.NullString `db:"alliance_name"`
}

type allianceTableModel struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

type movementTableModel struct {
	PlayerID   int64         `db:"player_id"`
	Kind       string        `db:"kind"`
	CastleType int           `db:"castle_type"`
	OldKingdom sql.NullInt64 `db:"old_kingdom"`
	OldX       sql.NullInt64 `db:"old_x"`
	OldY       sql.NullInt64 `db:"old_y"`
	NewKingdom sql.NullInt64 `db:"new_kingdom"`
	NewX       sql.NullInt64 `db:"new_x"`
	NewY       sql.NullInt64 `db:"new_y"`
	CreatedAt  time.Time     `db:"created_at"`
}

type playerRenameTableModel struct {
	PlayerID  int64     `db:"player_id"`
	OldName   string    `db:"old_name"`
	NewName   string    `db:"new_name"`
	CreatedAt time.Time `db:"created_at"`
}

type allianceRenameTableModel struct {
	AllianceID int64     `db:"alliance_id"`
	OldName    string    `db:"old_name"`
	NewName    string    `db:"new_name"`
	CreatedAt  time.Time `db:"created_at"`
}

type transferTableModel struct {
	PlayerID      int64         `db:"player_id"`
	OldAllianceID sql.NullInt64 `db:"old_alliance_id"`
	NewAllianceID sql.NullInt64 `db:"new_alliance_id"`
	CreatedAt     time.Time     `db:"created_at"`
}

type metricTableModel struct {
	Kind      string    `db:"kind"`
	PlayerID  int64     `db:"player_id"`
	Score     int64     `db:"score"`
	CreatedAt time.Time `db:"created_at"`
}

type statisticsTableModel struct {
	PassID         string      `db:"pass_id"`
	Population     int         `db:"population"`
	AllianceCount  int         `db:"alliance_count"`
	AvgMight       float64     `db:"avg_might"`
	AvgLoot        float64     `db:"avg_loot"`
	AvgHonor       float64     `db:"avg_honor"`
	AvgLevel       float64     `db:"avg_level"`
	TotalMight     int64       `db:"total_might"`
	TotalLoot      int64       `db:"total_loot"`
	TotalHonor     int64       `db:"total_honor"`
	MaxMight       int64       `db:"max_might"`
	MaxLoot        int64       `db:"max_loot"`
	ProtectedCount int         `db:"protected_count"`
	VariationMight int64       `db:"variation_might"`
	VariationLoot  int64       `db:"variation_loot"`
	VariationHonor int64       `db:"variation_honor"`
	Events         jsonbColumn `db:"events"`
	CreatedAt      time.Time   `db:"created_at"`
}

type passTableModel struct {
	PassID           string      `db:"pass_id"`
	Server           string      `db:"server"`
	StartedAt        time.Time   `db:"started_at"`
	FinishedAt       time.Time   `db:"finished_at"`
	Created          int         `db:"created"`
	Updated          int         `db:"updated"`
	Cleared          int         `db:"cleared"`
	Movements        int         `db:"movements"`
	Renames          int         `db:"renames"`
	Transfers        int         `db:"transfers"`
	CriticalErrors   int         `db:"critical_errors"`
	NonFatal         int         `db:"non_fatal"`
	AggregateWritten bool        `db:"aggregate_written"`
	Version          int64       `db:"version"`
	Categories       jsonbColumn `db:"categories"`
}

// castlesColumn is a castle layout stored as a jsonb array.
type castlesColumn []castle.Castle

func (c castlesColumn) Value() (driver.Value, error) {
	if len(c) == 0 {
		return "[]", nil
	}
	raw, err := sonic.ConfigStd.MarshalToString([]castle.Castle(c))
	if err != nil {
		return nil, fmt.Errorf("encode castles: %w", err)
	}
	return raw, nil
}

func (c *castlesColumn) Scan(src any) error {
	raw, err := scanBytes(src)
	if err != nil {
		return fmt.Errorf("scan castles: %w", err)
	}
	if len(raw) == 0 {
		*c = nil
		return nil
	}
	var out []castle.Castle
	if err := sonic.ConfigStd.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode castles: %w", err)
	}
	*c = out
	return nil
}

// jsonbColumn carries pre-encoded jsonb text.
type jsonbColumn []byte

func encodeJSONB(v any) (jsonbColumn, error) {
	raw, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonbColumn(raw), nil
}

func (j jsonbColumn) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "null", nil
	}
	return string(j), nil
}

func (j *jsonbColumn) Scan(src any) error {
	raw, err := scanBytes(src)
	if err != nil {
		return fmt.Errorf("scan jsonb: %w", err)
	}
	*j = append((*j)[:0], raw...)
	return nil
}

func scanBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported source type %T", src)
	}
}

func toPlayerTableModel(p player.Player, at time.Time) playerTableModel {
	return playerTableModel{
		ID:             p.ID,
		Name:           p.Name,
		AllianceID:     nullableID(p.AllianceID),
		Might:          p.Might,
		MightAllTime:   p.MightAllTime,
		Loot:           p.Loot,
		LootAllTime:    p.LootAllTime,
		Honor:          p.Honor,
		Fame:           p.Fame,
		Level:          p.Level,
		LegendaryLevel: p.LegendaryLevel,
		Castles:        castlesColumn(p.Castles),
		PeaceSeconds:   int64(p.PeaceRemaining / time.Second),
		UpdatedAt:      at,
	}
}

func (m playerTableModel) toDomain(allianceName string) player.Player {
	return player.Player{
		ID:             m.ID,
		Name:           m.Name,
		AllianceID:     idFromNull(m.AllianceID),
		AllianceName:   allianceName,
		Might:          m.Might,
		MightAllTime:   m.MightAllTime,
		Loot:           m.Loot,
		LootAllTime:    m.LootAllTime,
		Honor:          m.Honor,
		Fame:           m.Fame,
		Level:          m.Level,
		LegendaryLevel: m.LegendaryLevel,
		Castles:        []castle.Castle(m.Castles),
		PeaceRemaining: time.Duration(m.PeaceSeconds) * time.Second,
		UpdatedAt:      m.UpdatedAt,
	}
}
