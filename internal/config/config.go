// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

type Config struct {
	MongoDBURI   string
	DatabaseName string

	// Scheduler collections live apart from the bot's own state
	SchedulerDatabaseName string

	// JSON secret document (credentials, feed URIs, run sizes)
	SecretsFile string
	Timezone    string

	BskyHost       string
	APIRateLimit   float64
	RequestTimeout time.Duration

	ClassifierURL string

	GitHubAPIURL     string
	GitHubBranch     string
	LogFileFollow    string
	LogFilePrune     string
	LogFileAggregate string
	LogFileStatus    string

	ServerPort  string
	MetricsAddr string

	// Authentication configuration (required)
	WebAuthUser     string
	WebAuthPassword string

	// Task configuration
	FollowSchedule    string
	AggregateSchedule string
	PruneSchedule     string
	StatusSchedule    string

	LogLevel  string
	LogFormat string
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		MongoDBURI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		DatabaseName:          getEnv("DATABASE_NAME", "rickybot"),
		SchedulerDatabaseName: getEnv("SCHEDULER_DATABASE_NAME", "rickybot_scheduler"),
		SecretsFile:           getEnv("SECRETS_FILE", "secrets.json"),
		Timezone:              getEnv("TIMEZONE", "US/Eastern"),
		BskyHost:              getEnv("BSKY_HOST", "https://bsky.social"),
		APIRateLimit:          getEnvFloat("API_RATE_LIMIT", 5),
		RequestTimeout:        getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		ClassifierURL:         getEnv("CLASSIFIER_URL", "http://localhost:8501/v1/models/vit:predict"),
		GitHubAPIURL:          getEnv("GITHUB_API_URL", "https://api.github.com"),
		GitHubBranch:          getEnv("GITHUB_BRANCH", "main"),
		LogFileFollow:         getEnv("LOG_FILE_FOLLOW", "LOGGING_ADD.txt"),
		LogFilePrune:          getEnv("LOG_FILE_PRUNE", "LOGGING_DEL.txt"),
		LogFileAggregate:      getEnv("LOG_FILE_AGGREGATE", "LOGGING_AGG.txt"),
		LogFileStatus:         getEnv("LOG_FILE_STATUS", "LOGGING_STATUS.txt"),
		ServerPort:            getEnv("SERVER_PORT", "8080"),
		MetricsAddr:           getEnv("METRICS_ADDR", ":9090"),
		WebAuthUser:           getEnv("WEB_AUTH_USER", "admin"),
		WebAuthPassword:       getEnv("WEB_AUTH_PASSWORD", "password"),
		FollowSchedule:        getEnv("FOLLOW_SCHEDULE", "0 * * * *"),
		AggregateSchedule:     getEnv("AGGREGATE_SCHEDULE", "0 1 * * *"),
		PruneSchedule:         getEnv("PRUNE_SCHEDULE", "30 */2 * * *"),
		StatusSchedule:        getEnv("STATUS_SCHEDULE", "0 3 * * 0"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "text"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and that every schedule parses
func (c *Config) Validate() error {
	if c.MongoDBURI == "" {
		return fmt.Errorf("MONGODB_URI is required")
	}
	if c.SchedulerDatabaseName == "" || c.SchedulerDatabaseName == c.DatabaseName {
		return fmt.Errorf("SCHEDULER_DATABASE_NAME must be set and differ from DATABASE_NAME")
	}
	if c.SecretsFile == "" {
		return fmt.Errorf("SECRETS_FILE is required")
	}
	if c.BskyHost == "" {
		return fmt.Errorf("BSKY_HOST is required")
	}
	if c.WebAuthUser == "" || c.WebAuthPassword == "" {
		return fmt.Errorf("WEB_AUTH_USER and WEB_AUTH_PASSWORD are required")
	}
	if c.APIRateLimit <= 0 {
		return fmt.Errorf("API_RATE_LIMIT must be positive, got %v", c.APIRateLimit)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}

	schedules := map[string]string{
		"FOLLOW_SCHEDULE":    c.FollowSchedule,
		"AGGREGATE_SCHEDULE": c.AggregateSchedule,
		"PRUNE_SCHEDULE":     c.PruneSchedule,
		"STATUS_SCHEDULE":    c.StatusSchedule,
	}
	for key, spec := range schedules {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, spec, err)
		}
	}

	return nil
}

// Location returns the timezone the day buckets are computed in
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
