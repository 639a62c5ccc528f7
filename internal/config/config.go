// Package config loads and validates environment variables at startup.
// Fail-fast: if a variable is malformed, the process exits with an error.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"jobmate/autoapply-service/internal/pacing"
)

// Config holds all runtime configuration for the auto-apply service.
type Config struct {
	Port     string
	GRPCPort string
	// DatabaseURL and RedisURL are optional; without them the journal and
	// the event stream are disabled.
	DatabaseURL string
	RedisURL    string
	SQLitePath  string // local journal used when DatabaseURL is empty
	UserID      string
	Location    *time.Location

	// Pace is the default pacing used when a plan request omits fields.
	Pace        pacing.PaceConfig
	KeywordTopN int

	DispatchInterval    time.Duration
	DispatchConcurrency int
	SubmitRatePerMinute int
	SubmitFailureRate   float64
	SubmitMaxAttempts   int
	// PlanSeed makes schedules reproducible when set.
	PlanSeed *uint64
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getenv("AUTOAPPLY_PORT", "8083"),
		GRPCPort:    getenv("AUTOAPPLY_GRPC_PORT", "9093"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		SQLitePath:  os.Getenv("JOURNAL_SQLITE_PATH"),
		UserID:      getenv("AUTOAPPLY_USER_ID", "local"),
	}

	loc, err := time.LoadLocation(getenv("AUTOAPPLY_TIMEZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("AUTOAPPLY_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	p := pacing.PaceConfig{Boards: splitList(getenv("DEFAULT_BOARDS", "linkedin"))}
	for _, v := range []struct {
		key string
		def int
		dst *int
	}{
		{"DEFAULT_MIN_SCORE", 70, &p.MinScore},
		{"DEFAULT_DAILY_CAP", 10, &p.DailyCap},
		{"DEFAULT_MIN_DELAY_SECONDS", 60, &p.MinDelaySeconds},
		{"DEFAULT_MAX_DELAY_SECONDS", 900, &p.MaxDelaySeconds},
		{"DEFAULT_PARAPHRASE_LEVEL", 1, &p.ParaphraseLevel},
		{"KEYWORD_TOP_N", 25, &cfg.KeywordTopN},
		{"DISPATCH_CONCURRENCY", 2, &cfg.DispatchConcurrency},
		{"SUBMIT_RATE_PER_MINUTE", 6, &cfg.SubmitRatePerMinute},
		{"SUBMIT_MAX_ATTEMPTS", 3, &cfg.SubmitMaxAttempts},
	} {
		if *v.dst, err = intEnv(v.key, v.def); err != nil {
			return nil, err
		}
	}
	if p.WindowStart, err = pacing.ParseTimeOfDay(getenv("DEFAULT_WINDOW_START", "09:00")); err != nil {
		return nil, fmt.Errorf("DEFAULT_WINDOW_START: %w", err)
	}
	if p.WindowEnd, err = pacing.ParseTimeOfDay(getenv("DEFAULT_WINDOW_END", "18:00")); err != nil {
		return nil, fmt.Errorf("DEFAULT_WINDOW_END: %w", err)
	}
	if s := os.Getenv("DEFAULT_RED_FLAGS"); s != "" {
		p.RedFlags = splitList(s)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("default pacing: %w", err)
	}
	cfg.Pace = p

	if cfg.KeywordTopN < 1 {
		return nil, fmt.Errorf("KEYWORD_TOP_N must be positive, got %d", cfg.KeywordTopN)
	}
	if cfg.DispatchConcurrency < 1 {
		return nil, fmt.Errorf("DISPATCH_CONCURRENCY must be positive, got %d", cfg.DispatchConcurrency)
	}
	if cfg.SubmitRatePerMinute < 0 {
		return nil, fmt.Errorf("SUBMIT_RATE_PER_MINUTE must not be negative, got %d", cfg.SubmitRatePerMinute)
	}
	if cfg.SubmitMaxAttempts < 1 {
		return nil, fmt.Errorf("SUBMIT_MAX_ATTEMPTS must be positive, got %d", cfg.SubmitMaxAttempts)
	}

	cfg.DispatchInterval = time.Minute
	if s := os.Getenv("DISPATCH_INTERVAL"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < time.Second {
			return nil, fmt.Errorf("DISPATCH_INTERVAL must be a duration of at least 1s, got %q", s)
		}
		cfg.DispatchInterval = d
	}

	cfg.SubmitFailureRate = 0.1
	if s := os.Getenv("SUBMIT_FAILURE_RATE"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 0 || f > 1 {
			return nil, fmt.Errorf("SUBMIT_FAILURE_RATE must be between 0 and 1, got %q", s)
		}
		cfg.SubmitFailureRate = f
	}

	if s := os.Getenv("PLAN_SEED"); s != "" {
		seed, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("PLAN_SEED must be an unsigned integer, got %q", s)
		}
		cfg.PlanSeed = &seed
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, s)
	}
	return v, nil
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
