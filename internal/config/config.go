package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/logging"
	"github.com/go-playground/validator/v10"
)

// Config stores runtime configuration for one scraper process.
type Config struct {
	AppEnv                  string `validate:"oneof=dev stage prod"`
	ServiceName             string `validate:"required"`
	ServiceVersion          string
	LogLevel                logging.Level
	LogFormat               logging.Format
	Server                  string
	ServersFile             string `validate:"required"`
	DBURL                   string `validate:"required"`
	DBDisablePreparedBinary bool
	DBMaxOpenConns          int `validate:"gt=0"`
	DBMaxIdleConns          int `validate:"gte=0"`
	DBConnMaxLifetime       time.Duration
	RedisEnabled            bool
	RedisAddr               string `validate:"required_if=RedisEnabled true"`
	RedisPassword           string
	RedisDB                 int           `validate:"gte=0"`
	RequestTimeout          time.Duration `validate:"gt=0"`
	UserAgent               string
	PacerEvery              int `validate:"gt=0"`
	PacerPause              time.Duration
	PacerRatePerSecond      float64 `validate:"gte=0"`
	CircuitEnabled          bool
	CircuitFailureCount     int
	CircuitOpenTimeout      time.Duration
	CircuitHalfOpenMaxReq   int
	MaxDetailFetches        int
	HistoryWorkers          int           `validate:"gt=0"`
	HistoryChunkSize        int           `validate:"gt=0,lte=16000"`
	HistoryMaxConcurrency   int           `validate:"gt=0"`
	StagingChunkSize        int           `validate:"gt=0,lte=4000"`
	ProtectionWindow        time.Duration `validate:"gt=0"`
	ProtectionMinLevel      int           `validate:"gte=0"`
	ForceExitAfter          time.Duration `validate:"gt=0"`
	DryRun                  bool
	UptraceEnabled          bool
	UptraceDSN              string
	PyroscopeEnabled        bool
	PyroscopeServerAddress  string
	PyroscopeAppName        string
	PyroscopeAuthToken      string
	PyroscopeUploadRate     time.Duration
	PushgatewayURL          string        `validate:"omitempty,url"`
	PushTimeout             time.Duration `validate:"gt=0"`
}

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

var validate = validator.New()

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:                 appEnv,
		ServiceName:            strings.TrimSpace(getEnv("SERVICE_NAME", "gge-scraper")),
		ServiceVersion:         strings.TrimSpace(getEnv("SERVICE_VERSION", "dev")),
		LogLevel:               parseLogLevel(getEnv("LOG_LEVEL", "info")),
		LogFormat:              logging.ParseFormat(getEnv("LOG_FORMAT", string(logging.FormatJSON))),
		Server:                 strings.ToLower(strings.TrimSpace(getEnv("GGE_SERVER", ""))),
		ServersFile:            strings.TrimSpace(getEnv("GGE_SERVERS_FILE", "./config/servers.yaml")),
		DBURL:                  strings.TrimSpace(getEnv("DB_URL", "")),
		RedisAddr:              strings.TrimSpace(getEnv("REDIS_ADDR", "")),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		UserAgent:              strings.TrimSpace(getEnv("GGE_USER_AGENT", "gge-tracker-scraper/1.0")),
		UptraceDSN:             strings.TrimSpace(getEnv("UPTRACE_DSN", "")),
		PyroscopeServerAddress: strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", "")),
		PyroscopeAppName:       strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", "gge-scraper")),
		PyroscopeAuthToken:     getEnv("PYROSCOPE_AUTH_TOKEN", ""),
		PushgatewayURL:         strings.TrimSpace(getEnv("PUSHGATEWAY_URL", "")),
	}

	bools := []struct {
		key      string
		fallback string
		dst      *bool
	}{
		{"DB_DISABLE_PREPARED_BINARY_RESULT", "false", &cfg.DBDisablePreparedBinary},
		{"REDIS_ENABLED", "false", &cfg.RedisEnabled},
		{"GGE_CIRCUIT_ENABLED", "true", &cfg.CircuitEnabled},
		{"DRY_RUN", "false", &cfg.DryRun},
		{"UPTRACE_ENABLED", "false", &cfg.UptraceEnabled},
		{"PYROSCOPE_ENABLED", "false", &cfg.PyroscopeEnabled},
	}
	for _, b := range bools {
		v, err := strconv.ParseBool(getEnv(b.key, b.fallback))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", b.key, err)
		}
		*b.dst = v
	}

	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"DB_MAX_OPEN_CONNS", 10, &cfg.DBMaxOpenConns},
		{"DB_MAX_IDLE_CONNS", 5, &cfg.DBMaxIdleConns},
		{"REDIS_DB", 0, &cfg.RedisDB},
		{"GGE_PACER_EVERY", 50, &cfg.PacerEvery},
		{"GGE_CIRCUIT_FAILURE_COUNT", 10, &cfg.CircuitFailureCount},
		{"GGE_CIRCUIT_HALF_OPEN_MAX_REQ", 1, &cfg.CircuitHalfOpenMaxReq},
		{"MAX_DETAIL_FETCHES", 2000, &cfg.MaxDetailFetches},
		{"HISTORY_WORKERS", 4, &cfg.HistoryWorkers},
		{"HISTORY_CHUNK_SIZE", 4000, &cfg.HistoryChunkSize},
		{"HISTORY_MAX_CONCURRENCY", 4, &cfg.HistoryMaxConcurrency},
		{"STAGING_CHUNK_SIZE", 4000, &cfg.StagingChunkSize},
		{"PROTECTION_MIN_LEVEL", 13, &cfg.ProtectionMinLevel},
	}
	for _, i := range ints {
		v, err := getEnvAsInt(i.key, i.fallback)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", i.key, err)
		}
		*i.dst = v
	}

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"DB_CONN_MAX_LIFETIME", 30 * time.Minute, &cfg.DBConnMaxLifetime},
		{"GGE_REQUEST_TIMEOUT", 15 * time.Second, &cfg.RequestTimeout},
		{"GGE_PACER_PAUSE", 120 * time.Millisecond, &cfg.PacerPause},
		{"GGE_CIRCUIT_OPEN_TIMEOUT", 30 * time.Second, &cfg.CircuitOpenTimeout},
		{"PROTECTION_WINDOW", 14 * 24 * time.Hour, &cfg.ProtectionWindow},
		{"FORCE_EXIT_AFTER", 25 * time.Minute, &cfg.ForceExitAfter},
		{"PYROSCOPE_UPLOAD_RATE", 15 * time.Second, &cfg.PyroscopeUploadRate},
		{"PUSH_TIMEOUT", 5 * time.Second, &cfg.PushTimeout},
	}
	for _, d := range durations {
		v, err := getEnvAsDuration(d.key, d.fallback)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	rate, err := strconv.ParseFloat(getEnv("GGE_PACER_RATE_PER_SECOND", "0"), 64)
	if err != nil {
		return Config{}, fmt.Errorf("parse GGE_PACER_RATE_PER_SECOND: %w", err)
	}
	cfg.PacerRatePerSecond = rate

	if cfg.UptraceEnabled && cfg.UptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}
	if cfg.PyroscopeEnabled && cfg.PyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	if cfg.CircuitEnabled && cfg.CircuitFailureCount <= 0 {
		return Config{}, fmt.Errorf("GGE_CIRCUIT_FAILURE_COUNT must be > 0")
	}
	if cfg.PacerPause < 0 {
		return Config{}, fmt.Errorf("GGE_PACER_PAUSE must be >= 0")
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	return time.ParseDuration(value)
}

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}
