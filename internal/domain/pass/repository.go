package pass

import (
	"context"
	"time"
)

type Store interface {
	Save(ctx context.Context, report Report) error
}

// VersionCounter is polled by consumers to learn that a new pass has landed.
type VersionCounter interface {
	Increment(ctx context.Context, server string) (int64, error)
}

// ProgressStore records the last time each category was fetched.
type ProgressStore interface {
	MarkFetched(ctx context.Context, server, category string, at time.Time) error
}
