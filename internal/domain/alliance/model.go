package alliance

import (
	"errors"
	"strings"
)

// ErrMissing is returned by stores when a write references an alliance row
// that does not exist yet.
var ErrMissing = errors.New("referenced alliance does not exist")

type Alliance struct {
	ID   int64  `validate:"gt=0"`
	Name string `validate:"max=64"`
}

func (a Alliance) DisplayName() string {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return "#unnamed"
	}
	return name
}
