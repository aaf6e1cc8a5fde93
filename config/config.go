package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL string
	Port        string
	GoEnv       string
	LogLevel    string

	// Session and moderation settings
	SessionTTL            time.Duration
	DeleteConfirmationTTL time.Duration
	MaxBookingNotesLength int

	// Login throttling; RedisURL switches the limiter from in-memory to Redis
	LoginRateLimit  int
	LoginRateWindow time.Duration
	RedisURL        string

	// Domain events are published to NATS when NATSURL is set
	NATSURL string

	CORSAllowedOrigins []string

	// Bootstrap administrator created on startup when both are set
	AdminEmail    string
	AdminPassword string
	AdminName     string

	AWSRegion          string
	AWSS3Bucket        string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
}

// Load loads the configuration from environment variables
// It automatically determines which .env file to load based on GO_ENV
func Load() (*Config, error) {
	// Determine which environment file to load
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	// Try to load environment-specific file first
	envFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envFile); err != nil {
		// If environment-specific file doesn't exist, try .env
		if err := godotenv.Load(); err != nil {
			// In production environment variables are set directly
			log.Printf("No .env file found, using system environment variables")
		}
	} else {
		log.Printf("Loaded configuration from %s", envFile)
	}

	config := &Config{
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		Port:                  getEnv("PORT", "8080"),
		GoEnv:                 getEnv("GO_ENV", "development"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		SessionTTL:            getDuration("SESSION_TTL", 24*time.Hour),
		DeleteConfirmationTTL: getDuration("DELETE_CONFIRMATION_TTL", 10*time.Minute),
		MaxBookingNotesLength: getInt("MAX_BOOKING_NOTES_LENGTH", 1000),
		LoginRateLimit:        getInt("LOGIN_RATE_LIMIT", 10),
		LoginRateWindow:       getDuration("LOGIN_RATE_WINDOW", 15*time.Minute),
		RedisURL:              getEnv("REDIS_URL", ""),
		NATSURL:               getEnv("NATS_URL", ""),
		CORSAllowedOrigins:    getList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		AdminEmail:            getEnv("ADMIN_EMAIL", ""),
		AdminPassword:         getEnv("ADMIN_PASSWORD", ""),
		AdminName:             getEnv("ADMIN_NAME", "Administrator"),
		AWSRegion:             getEnv("AWS_REGION", "us-east-1"),
		AWSS3Bucket:           getEnv("AWS_S3_BUCKET", ""),
		AWSAccessKeyID:        getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.DeleteConfirmationTTL <= 0 {
		return fmt.Errorf("DELETE_CONFIRMATION_TTL must be positive")
	}
	if c.MaxBookingNotesLength <= 0 {
		return fmt.Errorf("MAX_BOOKING_NOTES_LENGTH must be positive")
	}
	return nil
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// HasS3 reports whether offering images can be stored in S3
func (c *Config) HasS3() bool {
	return c.AWSS3Bucket != ""
}

// HasAdminSeed reports whether a bootstrap administrator is configured
func (c *Config) HasAdminSeed() bool {
	return c.AdminEmail != "" && c.AdminPassword != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getList splits a comma separated variable, dropping empty entries
func getList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
