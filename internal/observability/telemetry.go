package observability

import (
	"context"
	"errors"
	"strings"

	"github.com/gge-tracker/gge-tracker-sub001/internal/config"
	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/logging"
	"github.com/grafana/pyroscope-go"
	"github.com/uptrace/uptrace-go/uptrace"
	"go.opentelemetry.io/otel/attribute"
)

// Telemetry holds the process-wide tracing and profiling exporters started
// for one server pass.
type Telemetry struct {
	tracing   bool
	profiler  *pyroscope.Profiler
	shutdowns []func(context.Context) error
}

// StartTelemetry configures Uptrace tracing and Pyroscope profiling. Either
// half is skipped when disabled in cfg; the returned value is always
// usable.
func StartTelemetry(cfg config.Config, server string, logger *logging.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.Named("telemetry")
	t := &Telemetry{}

	if reason := tracingDisabled(cfg); reason != "" {
		logger.Info("uptrace disabled", "reason", reason)
	} else {
		uptrace.ConfigureOpentelemetry(
			uptrace.WithDSN(cfg.UptraceDSN),
			uptrace.WithServiceName(cfg.ServiceName),
			uptrace.WithServiceVersion(cfg.ServiceVersion),
			uptrace.WithDeploymentEnvironment(cfg.AppEnv),
			uptrace.WithResourceAttributes(attribute.String("gge.server", server)),
		)
		t.tracing = true
		t.shutdowns = append(t.shutdowns, uptrace.Shutdown)
		logger.Info("uptrace enabled", "service_name", cfg.ServiceName, "environment", cfg.AppEnv)
	}

	if !cfg.PyroscopeEnabled {
		logger.Info("pyroscope disabled", "reason", "PYROSCOPE_ENABLED=false")
		return t, nil
	}

	// Passes are short, so only the cheap profile types are collected.
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.PyroscopeAppName,
		ServerAddress:   cfg.PyroscopeServerAddress,
		AuthToken:       cfg.PyroscopeAuthToken,
		UploadRate:      cfg.PyroscopeUploadRate,
		Tags:            map[string]string{"env": cfg.AppEnv, "server": server},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		_ = t.Shutdown(context.Background())
		return nil, err
	}
	t.profiler = profiler
	t.shutdowns = append(t.shutdowns, func(context.Context) error { return profiler.Stop() })
	logger.Info("pyroscope enabled", "server_address", cfg.PyroscopeServerAddress, "application", cfg.PyroscopeAppName)

	return t, nil
}

func tracingDisabled(cfg config.Config) string {
	switch {
	case !cfg.UptraceEnabled:
		return "UPTRACE_ENABLED=false"
	case strings.TrimSpace(cfg.UptraceDSN) == "":
		return "UPTRACE_DSN empty"
	default:
		return ""
	}
}

func (t *Telemetry) Tracing() bool   { return t != nil && t.tracing }
func (t *Telemetry) Profiling() bool { return t != nil && t.profiler != nil }

// Shutdown flushes pending spans and stops the profiler. It is safe to call
// more than once.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	for i := len(t.shutdowns) - 1; i >= 0; i-- {
		if err := t.shutdowns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	t.shutdowns = nil
	return errors.Join(errs...)
}
