package statistics

import "context"

// Store is append-only; Latest feeds the variation columns of the next row.
type Store interface {
	Latest(ctx context.Context) (Snapshot, bool, error)
	Append(ctx context.Context, snapshot Snapshot) error
}
