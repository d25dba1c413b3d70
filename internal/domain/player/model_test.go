package player

import "testing"

func TestApplyAllTime_NeverDecreases(t *testing.T) {
	t.Parallel()

	p := Player{Might: 80, MightAllTime: 100, Loot: 500, LootAllTime: 300}
	p.ApplyAllTime()

	if p.MightAllTime != 100 {
		t.Fatalf("expected all-time might to stay 100, got %d", p.MightAllTime)
	}
	if p.Might != 80 {
		t.Fatalf("expected current might 80, got %d", p.Might)
	}
	if p.LootAllTime != 500 {
		t.Fatalf("expected all-time loot to rise to 500, got %d", p.LootAllTime)
	}
}

func TestSameAlliance(t *testing.T) {
	t.Parallel()

	one, two, otherOne := int64(1), int64(2), int64(1)
	cases := []struct {
		name string
		a, b *int64
		want bool
	}{
		{"both nil", nil, nil, true},
		{"nil vs set", nil, &one, false},
		{"equal values", &one, &otherOne, true},
		{"different values", &one, &two, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SameAlliance(tc.a, tc.b); got != tc.want {
				t.Fatalf("SameAlliance=%t want %t", got, tc.want)
			}
		})
	}
}
