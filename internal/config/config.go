package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Create a new instance of the logger
// Configure it to log at the desired level
// and format it as JSON for structured logging
var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.JSONFormatter{})
	environment := GetEnvWithDefault("APP_ENV", "development")
	switch environment {
	case "development":
		log.SetLevel(logrus.DebugLevel)
	case "production":
		log.SetLevel(logrus.ErrorLevel)
	default:
		// Default to info level for other environments
		log.SetLevel(logrus.InfoLevel)
	}
}

// Config used for the application configuration, loading the input from environment variables
type Config struct {
	// Server Configuration
	Port        int    `json:"port"`
	Host        string `json:"host"`
	DatabaseURL string `json:"database_url"`

	// Public identity. APIHost is the host the API is served on; PublicHost is
	// the canonical issuer host advertised in OIDC metadata and ID tokens.
	APIHost    string `json:"api_host"`
	PublicHost string `json:"public_host"`

	// Database configuration
	DBName     string `json:"db_name"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"db_password"`

	// Logging configuration
	LogLevel string `json:"log_level"`

	// Security Configuration
	JWTSecret string `json:"jwt_secret"`

	// OIDCSigningJWK holds the JSON of the private JWK (or a full {"keys":[...]}
	// document) used to sign ID tokens. Empty disables ID token issuance.
	OIDCSigningJWK string `json:"oidc_signing_jwk"`

	// Session lifetime for browser cookies
	SessionTTL time.Duration `json:"session_ttl"`

	// Interval between stale-client sweeps
	SweepInterval time.Duration `json:"sweep_interval"`
}

// String returns a string representation of Config with sensitive data masked
func (c *Config) String() string {
	return fmt.Sprintf("Config{Port: %d, Host: %s, APIHost: %s, PublicHost: %s, DatabaseURL: %s, DBName: %s, DBUser: %s, DBPassword: [REDACTED], LogLevel: %s, JWTSecret: [REDACTED], OIDCSigningJWK: [REDACTED], SessionTTL: %s, SweepInterval: %s}",
		c.Port, c.Host, c.APIHost, c.PublicHost, maskDatabaseURL(c.DatabaseURL), c.DBName, c.DBUser, c.LogLevel, c.SessionTTL, c.SweepInterval)
}

// maskDatabaseURL masks password in database URL
func maskDatabaseURL(dbURL string) string {
	if dbURL == "" {
		return ""
	}

	parsed, err := url.Parse(dbURL)
	if err != nil {
		return "[REDACTED_INVALID_URL]"
	}

	if parsed.User != nil {
		// Replace password with [REDACTED]
		parsed.User = url.UserPassword(parsed.User.Username(), "[REDACTED]")
	}

	return parsed.String()
}

// Issuer returns the canonical public issuer URL
func (c *Config) Issuer() string {
	return "https://" + c.PublicHost
}

// IssuerForHost maps a request host to the canonical issuer. Requests hitting
// the API host are rewritten to the public host; anything else is kept as-is.
func (c *Config) IssuerForHost(host string) string {
	if host == "" || host == c.APIHost {
		return c.Issuer()
	}
	return "https://" + host
}

// LoadConfig read the proper configuration from environment variables and returns a Config struct
// It also validates formats like DatabaseURL and durations
// Returns an error if any required environment variable is missing or invalid
func LoadConfig() (*Config, error) {
	log.Info("Loading configuration from environment variables")
	port, err := strconv.Atoi(GetEnvWithDefault("APP_PORT", "8080"))
	if err != nil {
		return nil, err
	}

	dbURL := GetEnvWithDefault("DATABASE_URL", "")
	if dbURL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	// validate URL with net/url
	if _, err = url.ParseRequestURI(dbURL); err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL format: %s", dbURL)
	}

	sessionTTL, err := time.ParseDuration(GetEnvWithDefault("SESSION_TTL", "720h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}

	sweepInterval, err := time.ParseDuration(GetEnvWithDefault("SWEEP_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}

	config := &Config{
		Port:           port,
		Host:           GetEnvWithDefault("APP_HOST", "localhost"),
		APIHost:        GetEnvWithDefault("API_HOST", "api.gather.example"),
		PublicHost:     GetEnvWithDefault("PUBLIC_HOST", "gather.example"),
		DatabaseURL:    dbURL,
		DBName:         GetEnvWithDefault("DB_NAME", "gather"),
		DBUser:         GetEnvWithDefault("DB_USER", "gather"),
		DBPassword:     GetEnvWithDefault("DB_PASSWORD", "password"),
		LogLevel:       GetEnvWithDefault("LOG_LEVEL", "info"),
		JWTSecret:      GetEnvWithDefault("JWT_SECRET", "secret"),
		OIDCSigningJWK: GetEnvWithDefault("OIDC_SIGNING_JWK", ""),
		SessionTTL:     sessionTTL,
		SweepInterval:  sweepInterval,
	}
	log.Infof("Configuration loaded: %s", config.String())
	return config, nil
}

// Helper to get environment with default values
func GetEnvWithDefault(key, defaultValue string) string {
	log.Tracef("Getting environment variable: %s", key)
	value := os.Getenv(key)
	if value == "" {
		log.Warnf("Environment variable %s not set, using default value: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

// GetEnvAsType retrieves an environment variable and converts it to the specified type
// using generic type handling.
func GetEnvAsType[T any](key string, defaultValue T) T {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result T
	switch any(result).(type) {
	case int:
		intValue, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return any(intValue).(T)
	case string:
		return any(value).(T)
	case bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return any(boolValue).(T)
	default:
		return defaultValue // Fallback for unsupported types
	}
}
