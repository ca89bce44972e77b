package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the bot
type Config struct {
	// Discord
	DiscordToken string

	// Optional role id gating management commands; falls back to the
	// Manage Server permission when unset.
	LeadRoleID string

	// Database
	DatabasePath string

	// Sweep
	SweepIntervalMinutes int

	// Keep-alive HTTP probe; disabled when empty.
	Port string

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken: os.Getenv("DISCORD_TOKEN"),
		LeadRoleID:   os.Getenv("LEAD_ROLE_ID"),
		DatabasePath: getEnvOrDefault("DATABASE_PATH", "./data/trials.db"),
		Port:         os.Getenv("PORT"),
		LogLevel:     getEnvOrDefault("LOG_LEVEL", "info"),
	}

	intervalStr := getEnvOrDefault("SWEEP_INTERVAL_MINUTES", "5")
	interval, err := strconv.Atoi(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL_MINUTES: %w", err)
	}
	cfg.SweepIntervalMinutes = interval

	// Validate required fields
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is required")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
