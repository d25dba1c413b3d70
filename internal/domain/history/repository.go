package history

import "context"

// MetricStore appends time-series points. Points are never updated.
type MetricStore interface {
	AppendMetricPoints(ctx context.Context, points []MetricPoint) error
}
