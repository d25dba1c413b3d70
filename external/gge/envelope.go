package gge

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/castle"
)

const returnCodeOK = "0"

// Envelope is the outer shape of every response. The remote answers HTTP 200
// for logical failures, so ReturnCode is the only reliable status.
type Envelope struct {
	ReturnCode ReturnCode      `json:"return_code"`
	Content    json.RawMessage `json:"content"`
}

// ReturnCode accepts both "0" and 0; older servers send a number.
type ReturnCode string

func (r *ReturnCode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := sonic.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = ReturnCode(s)
		return nil
	}
	if _, err := strconv.ParseInt(string(data), 10, 64); err != nil {
		return crerr.Newf("invalid return_code %s", abbreviateBody(data))
	}
	*r = ReturnCode(data)
	return nil
}

func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if len(bytes.TrimSpace(body)) == 0 {
		return Envelope{}, crerr.New("empty body")
	}
	if err := sonic.Unmarshal(body, &env); err != nil {
		return Envelope{}, crerr.Wrapf(err, "body=%s", abbreviateBody(body))
	}
	if env.ReturnCode == "" {
		return Envelope{}, crerr.New("missing return_code")
	}
	return env, nil
}

func (e Envelope) OK() bool {
	return e.ReturnCode == returnCodeOK
}

func (e Envelope) EmptyContent() bool {
	c := bytes.TrimSpace(e.Content)
	return len(c) == 0 || bytes.Equal(c, []byte("null")) || bytes.Equal(c, []byte("{}")) || bytes.Equal(c, []byte("[]"))
}

// PlayerInfo is the named form of the remote owner object.
type PlayerInfo struct {
	ID             int64           `json:"OID"`
	Name           string          `json:"N"`
	AllianceID     int64           `json:"AID"`
	AllianceName   string          `json:"AN"`
	Might          int64           `json:"MP"`
	MightAllTime   int64           `json:"AMP"`
	Loot           int64           `json:"LP"`
	LootAllTime    int64           `json:"ALP"`
	Honor          int64           `json:"H"`
	Fame           int64           `json:"CF"`
	Level          int             `json:"L"`
	LegendaryLevel int             `json:"LL"`
	PeaceSeconds   int64           `json:"RPT"`
	Castles        []castle.Castle `json:"-"`

	RawCastles [][]int64 `json:"AP"`
}

// PeaceRemaining converts the remote protection timer.
func (p PlayerInfo) PeaceRemaining() time.Duration {
	if p.PeaceSeconds <= 0 {
		return 0
	}
	return time.Duration(p.PeaceSeconds) * time.Second
}

// AllianceRef returns nil when the player has no alliance. The remote uses
// -1 and 0 interchangeably for that.
func (p PlayerInfo) AllianceRef() *int64 {
	if p.AllianceID <= 0 {
		return nil
	}
	id := p.AllianceID
	return &id
}

// castle tuple: [kingdom, areaID, x, y, type]
func decodeCastles(raw [][]int64) ([]castle.Castle, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]castle.Castle, 0, len(raw))
	for i, item := range raw {
		if len(item) < 5 {
			return nil, crerr.Newf("castle %d has %d fields, want 5", i, len(item))
		}
		out = append(out, castle.Castle{
			Kingdom: int(item[0]),
			X:       int(item[2]),
			Y:       int(item[3]),
			Type:    castle.Type(item[4]),
		})
	}
	return castle.Normalize(out), nil
}

func (p *PlayerInfo) normalize() error {
	castles, err := decodeCastles(p.RawCastles)
	if err != nil {
		return crerr.Wrapf(err, "player %d", p.ID)
	}
	p.Castles = castles
	p.RawCastles = nil
	return nil
}

// RankingRow is one entry of the L list: [rank, score, owner].
type RankingRow struct {
	Rank   int64
	Score  int64
	Player PlayerInfo
}

func (r *RankingRow) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := sonic.Unmarshal(data, &parts); err != nil {
		return crerr.Wrap(err, "ranking row is not an array")
	}
	if len(parts) < 3 {
		return crerr.Newf("ranking row has %d fields, want 3", len(parts))
	}
	if err := sonic.Unmarshal(parts[0], &r.Rank); err != nil {
		return crerr.Wrap(err, "ranking row rank")
	}
	if err := sonic.Unmarshal(parts[1], &r.Score); err != nil {
		return crerr.Wrap(err, "ranking row score")
	}
	if err := sonic.Unmarshal(parts[2], &r.Player); err != nil {
		return crerr.Wrap(err, "ranking row owner")
	}
	return r.Player.normalize()
}

type RankingPage struct {
	Rows  []RankingRow `json:"L"`
	Total int64        `json:"LR"`
}

// LastRank is the rank of the final row, or 0 on an empty page.
func (p RankingPage) LastRank() int64 {
	if len(p.Rows) == 0 {
		return 0
	}
	return p.Rows[len(p.Rows)-1].Rank
}

type PlayerDetail struct {
	Owner *PlayerInfo `json:"O"`
}

func decodeRanking(content []byte) (RankingPage, bool, error) {
	var page RankingPage
	if err := sonic.Unmarshal(content, &page); err != nil {
		return RankingPage{}, false, err
	}
	return page, len(page.Rows) == 0, nil
}

func decodeDetail(content []byte) (PlayerInfo, bool, error) {
	var detail PlayerDetail
	if err := sonic.Unmarshal(content, &detail); err != nil {
		return PlayerInfo{}, false, err
	}
	if detail.Owner == nil || detail.Owner.ID <= 0 {
		return PlayerInfo{}, true, nil
	}
	if err := detail.Owner.normalize(); err != nil {
		return PlayerInfo{}, false, err
	}
	return *detail.Owner, false, nil
}
