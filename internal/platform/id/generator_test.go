package id

import (
	"strings"
	"testing"
	"time"
)

func TestPassIDGenerator_NewID(t *testing.T) {
	t.Parallel()

	g := NewPassIDGenerator(" DE 1 ")
	g.now = func() time.Time { return time.Date(2026, 3, 2, 4, 5, 6, 0, time.UTC) }

	got, err := g.NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if !strings.HasPrefix(got, "de-1-20260302T040506-") {
		t.Fatalf("unexpected id prefix: %s", got)
	}
	if len(got) != len("de-1-20260302T040506-")+8 {
		t.Fatalf("unexpected id length: %s", got)
	}
}
