// Package config loads server settings from the environment (and an optional .env file).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Chat limits.
const (
	MaxRoomNameLength      = 100
	DefaultMessagePageSize = 50
	MaxMessagePageSize     = 200
)

// Room password storage modes. PasswordModePlaintext keeps the anonymous
// variant's direct string comparison for compatibility with existing rooms.
const (
	PasswordModeHashed    = "hashed"
	PasswordModePlaintext = "plaintext"
)

type Config struct {
	Port   string
	AppEnv string

	LogLevel string

	DBDriver    string // postgres | sqlite
	DatabaseURL string
	SQLitePath  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret      string
	JWTExpiryHours int

	CORSAllowedOrigin string

	RoomPasswordMode string
	MaxMessageLength int
	MaxRoomCapacity  int

	RateLimitMax    int
	RateLimitWindow time.Duration

	TelegramBotToken string
	TelegramChatID   int64
}

// Production reports whether the server runs with production defaults.
func (c *Config) Production() bool {
	return c.AppEnv == "production"
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		AppEnv:            getEnv("APP_ENV", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DBDriver:          strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		SQLitePath:        getEnv("SQLITE_PATH", "groupouting.db"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getEnvAsInt("REDIS_DB", 0),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		JWTExpiryHours:    getEnvAsInt("JWT_EXPIRY_HOURS", 24),
		CORSAllowedOrigin: getEnv("CORS_ALLOWED_ORIGIN", "http://localhost:5173"),
		RoomPasswordMode:  strings.ToLower(getEnv("ROOM_PASSWORD_MODE", PasswordModeHashed)),
		MaxMessageLength:  getEnvAsInt("MAX_MESSAGE_LENGTH", 2000),
		MaxRoomCapacity:   getEnvAsInt("MAX_ROOM_CAPACITY", 50),
		RateLimitMax:      getEnvAsInt("RATE_LIMIT_MAX", 120),
		RateLimitWindow:   getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	if cfg.DatabaseURL == "" && cfg.DBDriver == "postgres" {
		cfg.DatabaseURL = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_USER", "user"),
			getEnv("DB_PASSWORD", "password"),
			getEnv("DB_NAME", "groupoutingdb"),
			getEnv("DB_PORT", "5432"),
		)
	}

	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", raw, err)
		}
		cfg.TelegramChatID = id
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late, and fills the
// development signing secret.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.RoomPasswordMode {
	case PasswordModeHashed, PasswordModePlaintext:
	default:
		return fmt.Errorf("unsupported ROOM_PASSWORD_MODE %q", c.RoomPasswordMode)
	}
	if c.JWTSecret == "" {
		if c.Production() {
			return fmt.Errorf("environment variable JWT_SECRET must be set")
		}
		c.JWTSecret = "dev-secret-change-me"
	}
	if c.JWTExpiryHours <= 0 {
		return fmt.Errorf("JWT_EXPIRY_HOURS must be positive, got %d", c.JWTExpiryHours)
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be positive, got %d", c.MaxMessageLength)
	}
	if c.MaxRoomCapacity < 1 {
		return fmt.Errorf("MAX_ROOM_CAPACITY must be at least 1, got %d", c.MaxRoomCapacity)
	}
	if c.TelegramBotToken != "" && c.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID must be set when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}

// DSN is the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == "sqlite" {
		return c.SQLitePath
	}
	return c.DatabaseURL
}

// NewLogger builds the process logger: JSON in production, text otherwise.
// An unparseable LOG_LEVEL falls back to info.
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	if c.Production() {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
	return log
}

// JWTExpiry is the session token lifetime.
func (c *Config) JWTExpiry() time.Duration {
	return time.Duration(c.JWTExpiryHours) * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
