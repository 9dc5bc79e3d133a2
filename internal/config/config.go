package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the appointment call service.
type Config struct {
	BindAddr              string
	ShutdownTimeout       time.Duration
	CallInactivityTimeout time.Duration
	MetricsNamespace      string

	AllowAnyOrigin bool

	SchedulingAPIURL     string
	SchedulingAPITimeout time.Duration

	AppointmentDurationHours int

	DatabaseURL string

	NATSURL     string
	NATSSubject string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "doorline"),
		AllowAnyOrigin:   false,
		SchedulingAPIURL: envOrDefault("SCHEDULING_API_URL", "http://localhost:3000"),
		NATSSubject:      envOrDefault("NATS_SUBJECT", "doorline.call.outcomes"),
		NATSURL:          stringsTrimSpace("NATS_URL"),
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),

		AppointmentDurationHours: 2,
		SchedulingAPITimeout:     10 * time.Second,
		ShutdownTimeout:          15 * time.Second,
		CallInactivityTimeout:    3 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CallInactivityTimeout, err = durationFromEnv("CALL_INACTIVITY_TIMEOUT", cfg.CallInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SchedulingAPITimeout, err = durationFromEnv("SCHEDULING_API_TIMEOUT", cfg.SchedulingAPITimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AppointmentDurationHours, err = intFromEnv("APPOINTMENT_DURATION_HOURS", cfg.AppointmentDurationHours)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.SchedulingAPIURL) == "" {
		return Config{}, fmt.Errorf("SCHEDULING_API_URL must not be empty")
	}
	if cfg.CallInactivityTimeout < 10*time.Second {
		return Config{}, fmt.Errorf("CALL_INACTIVITY_TIMEOUT must be at least 10s")
	}
	if cfg.SchedulingAPITimeout <= 0 {
		return Config{}, fmt.Errorf("SCHEDULING_API_TIMEOUT must be positive")
	}
	if cfg.AppointmentDurationHours <= 0 {
		return Config{}, fmt.Errorf("APPOINTMENT_DURATION_HOURS must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
