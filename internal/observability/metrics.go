package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const metricsJobName = "gge_scraper"

type PushConfig struct {
	URL     string
	Server  string
	Timeout time.Duration
	Client  *http.Client
}

// PassMetrics collects one process's pass measurements on a private registry
// and pushes them to a Pushgateway on Flush. Without a URL Flush is a no-op.
type PassMetrics struct {
	registry *prometheus.Registry
	pusher   *push.Pusher
	logger   *logging.Logger

	passDuration   prometheus.Gauge
	criticalErrors prometheus.Gauge
	players        *prometheus.CounterVec
	requests       *prometheus.CounterVec
}

func NewPassMetrics(cfg PushConfig, logger *logging.Logger) *PassMetrics {
	if logger == nil {
		logger = logging.Default()
	}

	registry := prometheus.NewRegistry()
	m := &PassMetrics{
		registry: registry,
		logger:   logger.Named("metrics"),
		passDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gge_pass_duration_seconds",
			Help: "Wall time of the last scrape pass.",
		}),
		criticalErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gge_pass_critical_errors",
			Help: "Critical errors counted during the last scrape pass.",
		}),
		players: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gge_players_upserted_total",
			Help: "Players written to the snapshot, partitioned by mode.",
		}, []string{"mode"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gge_remote_requests_total",
			Help: "Remote API calls, partitioned by outcome.",
		}, []string{"outcome"}),
	}
	registry.MustRegister(m.passDuration, m.criticalErrors, m.players, m.requests)

	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return m
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	m.pusher = push.New(url, metricsJobName).
		Gatherer(registry).
		Grouping("server", cfg.Server).
		Client(client)
	return m
}

func (m *PassMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PassMetrics) ObservePass(_ string, duration time.Duration, criticalErrors int) {
	m.passDuration.Set(duration.Seconds())
	m.criticalErrors.Set(float64(criticalErrors))
}

func (m *PassMetrics) AddPlayers(mode string, n int) {
	if n <= 0 {
		return
	}
	m.players.WithLabelValues(mode).Add(float64(n))
}

// ObserveRequest matches the remote client's observer hook.
func (m *PassMetrics) ObserveRequest(_ string, outcome string) {
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *PassMetrics) Flush(ctx context.Context) error {
	if m.pusher == nil {
		return nil
	}
	if err := m.pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	m.logger.DebugContext(ctx, "metrics pushed")
	return nil
}
