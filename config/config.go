package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	WorkerCount int    `env:"WORKER_COUNT" envDefault:"5" validate:"min=1,max=100"`

	TickIntervalMS          int `env:"TICK_INTERVAL_MS" envDefault:"5000" validate:"min=100"`
	PollIntervalMS          int `env:"POLL_INTERVAL_MS" envDefault:"500" validate:"min=50"`
	DispatchHorizonSec      int `env:"DISPATCH_HORIZON_SEC" envDefault:"30" validate:"min=1,max=600"`
	MissedFireThresholdSec  int `env:"MISSED_FIRE_THRESHOLD_SEC" envDefault:"120" validate:"min=1"`
	StuckRunningThresholdSec int `env:"STUCK_RUNNING_THRESHOLD_SEC" envDefault:"900" validate:"min=1"`
	MaxResponseCaptureBytes int `env:"MAX_RESPONSE_CAPTURE" envDefault:"65536" validate:"min=0"`

	SSRFAllowlist []string `env:"SSRF_ALLOWLIST" envSeparator:","`

	IdempotencyWaitMS int `env:"IDEMPOTENCY_WAIT_MS" envDefault:"5000" validate:"min=0"`
	ThrottleWindowSec int `env:"THROTTLE_WINDOW_SEC" envDefault:"300" validate:"min=1"`

	// RedisURL is optional and only backs the API-key cache's shared tier.
	// Unset means that cache falls back to an in-process map over Postgres.
	// Idempotency never uses Redis.
	RedisURL string `env:"REDIS_URL"`

	// OTELExporterEndpoint is optional. Unset means tracing is a no-op.
	OTELExporterEndpoint string `env:"OTEL_EXPORTER_ENDPOINT"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	JWTSecret   string `env:"JWT_SECRET,required" validate:"required"`
	InviteBaseURL string `env:"INVITE_BASE_URL" envDefault:"http://localhost:8080"`

	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string `env:"RESEND_FROM" validate:"required_if=Env production,required_if=Env staging"`

	OrgConcurrencyCapFree int `env:"ORG_CONCURRENCY_CAP_FREE" envDefault:"4" validate:"min=1"`
	OrgConcurrencyCapPro  int `env:"ORG_CONCURRENCY_CAP_PRO" envDefault:"32" validate:"min=1"`

	QuotaMonthlyFree int `env:"QUOTA_MONTHLY_FREE" envDefault:"1000" validate:"min=0"`
	QuotaMonthlyPro  int `env:"QUOTA_MONTHLY_PRO" envDefault:"100000" validate:"min=0"`

	// AdmissionRateLimitPerSec/Burst parameterize the per-org token bucket
	// fronting the quota counter on ingress (C11).
	AdmissionRateLimitPerSec float64 `env:"ADMISSION_RATE_LIMIT_PER_SEC" envDefault:"20"`
	AdmissionRateLimitBurst  int     `env:"ADMISSION_RATE_LIMIT_BURST" envDefault:"40"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
