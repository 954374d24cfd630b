package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration, loaded once at startup and immutable
// afterward.
type Config struct {
	TelegramToken    string
	MercadoPagoToken string
	GroupID          int64
	DBPath           string // empty selects the in-memory store
	LogLevel         string
	PollInterval     time.Duration
	WatchCeiling     time.Duration
}

// Load reads configuration from the environment (and an optional .env file).
// A missing Telegram token, payment token, or group id is a startup error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	cfg := &Config{
		TelegramToken:    os.Getenv("GATEKEEP_TELEGRAM_TOKEN"),
		MercadoPagoToken: os.Getenv("GATEKEEP_MP_ACCESS_TOKEN"),
		DBPath:           os.Getenv("GATEKEEP_DB_PATH"),
		LogLevel:         os.Getenv("GATEKEEP_LOG_LEVEL"),
		PollInterval:     10 * time.Second,
		WatchCeiling:     30 * time.Minute,
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("GATEKEEP_TELEGRAM_TOKEN is required")
	}
	if cfg.MercadoPagoToken == "" {
		return nil, fmt.Errorf("GATEKEEP_MP_ACCESS_TOKEN is required")
	}

	groupID := os.Getenv("GATEKEEP_GROUP_ID")
	if groupID == "" {
		return nil, fmt.Errorf("GATEKEEP_GROUP_ID is required")
	}
	id, err := strconv.ParseInt(groupID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("GATEKEEP_GROUP_ID: %w", err)
	}
	cfg.GroupID = id

	if v := os.Getenv("GATEKEEP_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("GATEKEEP_POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}
	if v := os.Getenv("GATEKEEP_WATCH_CEILING"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("GATEKEEP_WATCH_CEILING: %w", err)
		}
		cfg.WatchCeiling = d
	}

	return cfg, nil
}
