package castle

import (
	"fmt"
	"sort"
)

// Type is the remote area type code of an owned structure.
type Type int

const (
	Primary     Type = 1
	Outpost     Type = 4
	RealmCastle Type = 12
	Capital     Type = 22
	Metropolis  Type = 23
	KingsTower  Type = 26
	Monument    Type = 27
	Laboratory  Type = 28
)

var typeNames = map[Type]string{
	Primary:     "primary",
	Outpost:     "outpost",
	RealmCastle: "realm_castle",
	Capital:     "capital",
	Metropolis:  "metropolis",
	KingsTower:  "kings_tower",
	Monument:    "monument",
	Laboratory:  "laboratory",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type_%d", int(t))
}

// SingleInstance reports monument-like kinds an owner can hold at most once
// per kingdom.
func (t Type) SingleInstance() bool {
	switch t {
	case Capital, Metropolis, KingsTower, Monument, Laboratory:
		return true
	default:
		return false
	}
}

type Position struct {
	Kingdom int `json:"k"`
	X       int `json:"x"`
	Y       int `json:"y"`
}

// Castle is one structure in an owner's layout. Identity within a layout is
// (X, Y, Type); Kingdom only disambiguates realm castles on display.
type Castle struct {
	Kingdom int  `json:"k"`
	X       int  `json:"x"`
	Y       int  `json:"y"`
	Type    Type `json:"t"`
}

type Key struct {
	X    int
	Y    int
	Type Type
}

func (c Castle) Key() Key {
	return Key{X: c.X, Y: c.Y, Type: c.Type}
}

func (c Castle) Position() Position {
	return Position{Kingdom: c.Kingdom, X: c.X, Y: c.Y}
}

// FindPrimary returns the first primary castle in the layout.
func FindPrimary(castles []Castle) (Castle, bool) {
	for _, c := range castles {
		if c.Type == Primary {
			return c, true
		}
	}
	return Castle{}, false
}

// Sort orders a layout by type, then x, then y, in place.
func Sort(castles []Castle) {
	sort.SliceStable(castles, func(i, j int) bool {
		return Less(castles[i], castles[j])
	})
}

func Less(a, b Castle) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	if a.X != b.X {
		return a.X < b.X
	}
	return a.Y < b.Y
}

// Normalize sorts a layout and drops repeated entries: exact duplicates of a
// Key, and every single-instance kind past the first in a kingdom.
func Normalize(castles []Castle) []Castle {
	Sort(castles)
	type slot struct {
		kingdom int
		kind    Type
	}
	seen := make(map[Key]struct{}, len(castles))
	held := make(map[slot]struct{})
	out := castles[:0]
	for _, c := range castles {
		if _, dup := seen[c.Key()]; dup {
			continue
		}
		if c.Type.SingleInstance() {
			s := slot{kingdom: c.Kingdom, kind: c.Type}
			if _, dup := held[s]; dup {
				continue
			}
			held[s] = struct{}{}
		}
		seen[c.Key()] = struct{}{}
		out = append(out, c)
	}
	return out
}
