package config

import (
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// FeatureFlags gate the pipeline's side effects. They are read from the
// environment so individual effects can be toggled per deployment without
// touching the YAML config.
type FeatureFlags struct {
	SaveLivescoreEvents bool `env:"SAVE_LIVESCORE_EVENTS" envDefault:"false"`
	SaveToSheet         bool `env:"SAVE_TO_SHEET" envDefault:"false"`
	EnableGoalMedia     bool `env:"ENABLE_GOAL_MEDIA" envDefault:"false"`
	EnableCardMedia     bool `env:"ENABLE_CARD_MEDIA" envDefault:"false"`
	SaveEnrichedParquet bool `env:"SAVE_ENRICHED_PARQUET" envDefault:"false"`
	DebugMode           bool `env:"DEBUG_MODE" envDefault:"false"`
}

// LoadFlags reads feature flags from environment variables. A .env file is
// honored for local development.
func LoadFlags() (*FeatureFlags, error) {
	_ = godotenv.Load()

	flags := &FeatureFlags{}
	if err := env.Parse(flags); err != nil {
		return nil, err
	}
	return flags, nil
}
