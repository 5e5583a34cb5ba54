package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"perpsim/internal/ledger"
)

// Config holds all configuration for the simulator
type Config struct {
	// Instruments
	Symbols []string

	// Account
	InitialBalance decimal.Decimal

	// Mode
	Debug bool

	// Risk monitor
	MonitorInterval time.Duration

	// Persistence
	DatabasePath       string
	CheckpointInterval time.Duration

	// Telegram (optional; empty token disables the bot)
	TelegramToken  string
	TelegramChatID int64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Symbols:        splitSymbols(getEnv("SYMBOLS", strings.Join(ledger.DefaultSymbols, ","))),
		InitialBalance: getEnvDecimal("INITIAL_BALANCE", ledger.InitialBalance),

		Debug: getEnvBool("DEBUG", false),

		MonitorInterval: getEnvDuration("MONITOR_INTERVAL", 500*time.Millisecond),

		DatabasePath:       getEnv("DATABASE_PATH", "data/perpsim.db"),
		CheckpointInterval: getEnvDuration("CHECKPOINT_INTERVAL", 30*time.Second),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("SYMBOLS must name at least one instrument")
	}
	if !cfg.InitialBalance.IsPositive() {
		return nil, fmt.Errorf("INITIAL_BALANCE must be positive")
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	return cfg, nil
}

func splitSymbols(csv string) []string {
	var out []string
	for _, s := range strings.Split(csv, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
