// Package config loads the spsd process configuration from the
// environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/zephraph/sps"
)

// Config is the process configuration.
type Config struct {
	Environment string `validate:"required"`
	LogLevel    string `validate:"oneof=debug info warn error"`

	Store       string `validate:"oneof=memory postgres redis"`
	DatabaseURL string `validate:"required_if=Store postgres"`
	RedisURL    string `validate:"required_if=Store redis"`

	MailProvider       string `validate:"oneof=ses noop"`
	MailFrom           string
	AWSRegion          string `validate:"required_if=MailProvider ses"`
	AWSAccessKeyID     string `validate:"required_if=MailProvider ses"`
	AWSSecretAccessKey string `validate:"required_if=MailProvider ses"`

	SwitchBotToken    string
	SwitchBotSecret   string `validate:"required_with=SwitchBotToken"`
	SwitchBotDeviceID string `validate:"required_with=SwitchBotToken"`

	LocationTag  string        `validate:"required"`
	GuestLimit   int           `validate:"gt=0"`
	BaseURL      string        `validate:"required,url"`
	Concurrency  int           `validate:"gt=0"`
	PollInterval time.Duration `validate:"gt=0"`
}

// Load reads the configuration. Outside production a .env file in the
// working directory is loaded first; variables already set win.
func Load() (*Config, error) {
	env := getenv("GO_ENV", "development")
	if env != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load .env: %w", err)
		}
	}

	defaults := sps.DefaultConfig()
	cfg := &Config{
		Environment:        env,
		LogLevel:           strings.ToLower(getenv("LOG_LEVEL", "info")),
		Store:              getenv("SPS_STORE", "memory"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		MailProvider:       getenv("MAIL_PROVIDER", "noop"),
		MailFrom:           os.Getenv("MAIL_FROM"),
		AWSRegion:          getenv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SwitchBotToken:     os.Getenv("SWITCHBOT_TOKEN"),
		SwitchBotSecret:    os.Getenv("SWITCHBOT_SECRET"),
		SwitchBotDeviceID:  os.Getenv("SWITCHBOT_DEVICE_ID"),
		LocationTag:        getenv("SPS_LOCATION_TAG", defaults.LocationTag),
		BaseURL:            getenv("SPS_BASE_URL", defaults.BaseURL),
	}

	var err error
	if cfg.GuestLimit, err = intEnv("SPS_GUEST_LIMIT", defaults.GuestLimit); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = intEnv("SPS_WORKER_CONCURRENCY", defaults.Concurrency); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = durationEnv("SPS_POLL_INTERVAL", defaults.PollInterval); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return sps.Invalid("config", err)
	}
	return nil
}

// Production reports whether GO_ENV is production.
func (c *Config) Production() bool { return c.Environment == "production" }

// HostConfig maps c onto the host configuration.
func (c *Config) HostConfig() sps.Config {
	hc := sps.DefaultConfig()
	hc.Concurrency = c.Concurrency
	hc.PollInterval = c.PollInterval
	hc.LocationTag = c.LocationTag
	hc.GuestLimit = c.GuestLimit
	hc.BaseURL = c.BaseURL
	return hc
}

// NewLogger returns a JSON logger in production and a text logger
// otherwise. Unknown levels fall back to info.
func NewLogger(env, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, sps.Invalid("config", fmt.Errorf("%s: %w", key, err))
	}
	return n, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, sps.Invalid("config", fmt.Errorf("%s: %w", key, err))
	}
	return d, nil
}
