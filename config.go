package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// tuning holds the engine constants that are product decisions rather than
// derived rules. Loaded from an optional YAML file; omitted keys keep defaults.
type tuning struct {
	// IntakeBlendWeight is the share of observed intake in the final TDEE blend.
	IntakeBlendWeight   float64
	ActivityThresholds  []int
	MinBaselineDays     int
	FallbackDailyBudget int
	RolloverWorkers     int
}

func defaultTuning() tuning {
	return tuning{
		IntakeBlendWeight:   0.5,
		ActivityThresholds:  []int{500, 1200, 2000},
		MinBaselineDays:     3,
		FallbackDailyBudget: 2000,
		RolloverWorkers:     4,
	}
}

// validate rejects tunings that would break the engine's invariants.
func (t tuning) validate() error {
	if t.IntakeBlendWeight < 0 || t.IntakeBlendWeight > 1 {
		return fmt.Errorf("intake_blend_weight must be within [0, 1], got %v", t.IntakeBlendWeight)
	}
	if len(t.ActivityThresholds) != len(activityTiers)-1 {
		return fmt.Errorf("activity_thresholds needs %d values, got %d", len(activityTiers)-1, len(t.ActivityThresholds))
	}
	for i := 1; i < len(t.ActivityThresholds); i++ {
		if t.ActivityThresholds[i] <= t.ActivityThresholds[i-1] {
			return fmt.Errorf("activity_thresholds must be strictly ascending")
		}
	}
	if t.MinBaselineDays < 1 || t.MinBaselineDays > 7 {
		return fmt.Errorf("min_baseline_days must be within [1, 7], got %d", t.MinBaselineDays)
	}
	if t.FallbackDailyBudget <= 0 {
		return fmt.Errorf("fallback_daily_budget must be positive")
	}
	if t.RolloverWorkers < 1 {
		return fmt.Errorf("rollover_workers must be at least 1")
	}
	return nil
}

// tuningFile is the YAML shape of tuning. Pointers tell an omitted key apart
// from an explicit zero, which is a valid intake_blend_weight.
type tuningFile struct {
	IntakeBlendWeight   *float64 `yaml:"intake_blend_weight"`
	ActivityThresholds  []int    `yaml:"activity_thresholds"`
	MinBaselineDays     *int     `yaml:"min_baseline_days"`
	FallbackDailyBudget *int     `yaml:"fallback_daily_budget"`
	RolloverWorkers     *int     `yaml:"rollover_workers"`
}

// parseTuning overlays the keys present in YAML data on the defaults.
func parseTuning(data []byte) (tuning, error) {
	t := defaultTuning()
	var raw tuningFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return t, fmt.Errorf("parse tuning: %w", err)
	}
	if raw.IntakeBlendWeight != nil {
		t.IntakeBlendWeight = *raw.IntakeBlendWeight
	}
	if raw.ActivityThresholds != nil {
		t.ActivityThresholds = raw.ActivityThresholds
	}
	if raw.MinBaselineDays != nil {
		t.MinBaselineDays = *raw.MinBaselineDays
	}
	if raw.FallbackDailyBudget != nil {
		t.FallbackDailyBudget = *raw.FallbackDailyBudget
	}
	if raw.RolloverWorkers != nil {
		t.RolloverWorkers = *raw.RolloverWorkers
	}
	if err := t.validate(); err != nil {
		return t, err
	}
	return t, nil
}

// config is the server's runtime configuration, read from the environment.
type config struct {
	DBURL            string
	Addr             string
	AllowedOrigins   []string
	RolloverInterval time.Duration
	Tuning           tuning
}

// loadConfig reads .env (if present) and the process environment. A missing
// .env is fine in deployed environments where vars are injected directly.
func loadConfig() (config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("[loadConfig] no .env loaded: %v", err)
	}

	cfg := config{
		DBURL:            os.Getenv("DB_URL"),
		Addr:             envOr("ADDR", "localhost:3000"),
		AllowedOrigins:   splitList(envOr("CORS_ALLOWED_ORIGINS", "*")),
		RolloverInterval: time.Hour,
		Tuning:           defaultTuning(),
	}
	if cfg.DBURL == "" {
		return cfg, fmt.Errorf("DB_URL not set")
	}

	if s := os.Getenv("ROLLOVER_INTERVAL"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid ROLLOVER_INTERVAL %q", s)
		}
		cfg.RolloverInterval = d
	}

	if path := os.Getenv("TUNING_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read tuning file: %w", err)
		}
		t, err := parseTuning(data)
		if err != nil {
			return cfg, err
		}
		cfg.Tuning = t
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
