package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Storage backends
const (
	BackendAzure  = "azure"
	BackendRedis  = "redis"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Schedule configuration
	PollSchedule     string // cron expression with seconds
	ReminderSchedule string
	TimeZone         string

	// Mail source configuration
	EmailSubjectFilter string
	SearchHours        int
	SearchMaxResults   int
	GmailUserID        string
	GmailAccessToken   string
	GmailClientID      string
	GmailClientSecret  string
	GmailRefreshToken  string

	// Notification configuration
	DiscordWebhookURL     string
	DiscordUserID         string
	ReminderMinutesBefore int

	// Storage configuration
	StorageBackend   string
	StorageAccount   string
	StorageContainer string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisKeyPrefix   string
	DataDir          string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		PollSchedule:     getEnv("POLL_SCHEDULE", "0 */5 * * * *"),
		ReminderSchedule: getEnv("REMINDER_SCHEDULE", "0 * * * * *"),
		TimeZone:         getEnv("TIMEZONE", "Asia/Tokyo"),

		EmailSubjectFilter: getEnv("EMAIL_SUBJECT_FILTER", "You have a new booking"),
		SearchHours:        getIntEnv("SEARCH_HOURS", 24),
		SearchMaxResults:   getIntEnv("SEARCH_MAX_RESULTS", 20),
		GmailUserID:        getEnv("GMAIL_USER_ID", "me"),
		GmailAccessToken:   getEnv("GMAIL_ACCESS_TOKEN", ""),
		GmailClientID:      getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret:  getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRefreshToken:  getEnv("GMAIL_REFRESH_TOKEN", ""),

		DiscordWebhookURL:     getEnv("DISCORD_WEBHOOK_URL", ""),
		DiscordUserID:         getEnv("DISCORD_USER_ID", ""),
		ReminderMinutesBefore: getIntEnv("REMINDER_MINUTES_BEFORE", 10),

		StorageBackend:   getEnv("STORAGE_BACKEND", BackendFile),
		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "review-notifier"),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getIntEnv("REDIS_DB", 0),
		RedisKeyPrefix:   getEnv("REDIS_KEY_PREFIX", "review-notifier:"),
		DataDir:          getEnv("DATA_DIR", "./data"),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DiscordWebhookURL == "" {
		return fmt.Errorf("DISCORD_WEBHOOK_URL is required")
	}

	if c.DiscordUserID == "" {
		return fmt.Errorf("DISCORD_USER_ID is required")
	}

	if c.ReminderMinutesBefore <= 0 {
		return fmt.Errorf("REMINDER_MINUTES_BEFORE must be positive")
	}

	if c.SearchHours <= 0 {
		return fmt.Errorf("SEARCH_HOURS must be positive")
	}

	if c.SearchMaxResults <= 0 {
		return fmt.Errorf("SEARCH_MAX_RESULTS must be positive")
	}

	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("TIMEZONE %q is invalid: %w", c.TimeZone, err)
	}

	switch c.StorageBackend {
	case BackendAzure:
		if c.StorageAccount == "" {
			return fmt.Errorf("AZURE_STORAGE_ACCOUNT is required for the azure storage backend")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis storage backend")
		}
	case BackendFile:
		if c.DataDir == "" {
			return fmt.Errorf("DATA_DIR is required for the file storage backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of azure, redis, file, memory")
	}

	return nil
}

// Location returns the configured time zone, falling back to UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LeadTime is how long before an appointment its reminder fires
func (c *Config) LeadTime() time.Duration {
	return time.Duration(c.ReminderMinutesBefore) * time.Minute
}

// SearchWindow is how far back the mail source is queried
func (c *Config) SearchWindow() time.Duration {
	return time.Duration(c.SearchHours) * time.Hour
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
