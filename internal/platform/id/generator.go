package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Generator creates opaque IDs suitable for correlating a pass across logs,
// metrics and the pass log table.
type Generator interface {
	NewID() (string, error)
}

// PassIDGenerator yields "<server>-<yyyymmddThhmmss>-<8 hex>".
type PassIDGenerator struct {
	server string
	now    func() time.Time
}

func NewPassIDGenerator(server string) *PassIDGenerator {
	return &PassIDGenerator{server: sanitize(server), now: time.Now}
}

func (g *PassIDGenerator) NewID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	stamp := g.now().UTC().Format("20060102T150405")
	if g.server == "" {
		return stamp + "-" + hex.EncodeToString(buf), nil
	}
	return g.server + "-" + stamp + "-" + hex.EncodeToString(buf), nil
}

func sanitize(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteByte('-')
		}
	}
	return b.String()
}
