package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Store selects and locates the schedule and content store. The operator CLI
// loads only this part.
type Store struct {
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres" validate:"oneof=postgres sqlite"`
	DatabaseURL string `env:"DATABASE_URL" validate:"required_if=StoreDriver postgres"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"data/scheduler.db"`
}

// Worker is what the background poller needs. It carries no HTTP listener
// settings and no token secret.
type Worker struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	Store

	PollSchedule  string `env:"POLL_SCHEDULE" envDefault:"@every 1m" validate:"required,cronspec"`
	PollBatchSize int    `env:"POLL_BATCH_SIZE" envDefault:"100" validate:"min=1,max=1000"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string `env:"RESEND_FROM"    validate:"required_if=Env production,required_if=Env staging"`
	AlertEmail   string `env:"ALERT_EMAIL"    validate:"omitempty,email"`

	OtelExporter string `env:"OTEL_EXPORTER" envDefault:"none" validate:"oneof=none stdout"`
}

// Config is the API server configuration.
type Config struct {
	Worker

	Port      string `env:"PORT" envDefault:"8080" validate:"required"`
	JWTSecret string `env:"JWT_SECRET,required" validate:"required,min=32"`
}

func Load() (*Config, error) {
	return load[Config]()
}

func LoadWorker() (*Worker, error) {
	return load[Worker]()
}

func LoadStore() (*Store, error) {
	return load[Store]()
}

func load[T any]() (*T, error) {
	cfg := new(T)

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := newValidator().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("cronspec", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
	return v
}

func (c *Worker) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
