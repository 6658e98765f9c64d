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

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (cache, retry queue, rate limiting)
	Redis RedisConfig

	// JWT configuration
	JWT JWTConfig

	// MTN Mobile Money collection API configuration
	MTN MTNConfig

	// Orange Money WebPay configuration
	Orange OrangeConfig

	// Push notification (FCM) configuration
	Push PushConfig

	// Payment polling configuration
	Polling PollingConfig

	// Notification delivery configuration
	Notify NotifyConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration // TTL for cached booking lookups
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret             string
	RefreshSecret      string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// MTNConfig holds MTN MoMo collection API credentials
type MTNConfig struct {
	Environment     string // "sandbox" or "mtncameroon"
	BaseURL         string
	SubscriptionKey string
	APIUser         string
	APIKey          string
	CallbackURL     string
}

// OrangeConfig holds Orange Money WebPay credentials
type OrangeConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	MerchantKey  string
	PIN          string // Merchant USSD PIN, required by the cashin API
}

// PushConfig holds FCM push delivery configuration
type PushConfig struct {
	Enabled   bool
	ServerKey string
	Endpoint  string
}

// PollingConfig controls the payment status poller
type PollingConfig struct {
	Interval    time.Duration // Delay between gateway status checks
	MaxDuration time.Duration // Give up and report unknown after this long
}

// NotifyConfig controls notification delivery and retry behaviour
type NotifyConfig struct {
	DedupeCapacity int           // Max remembered notification keys before eviction
	RetryInterval  time.Duration // Delay between retry queue drains
	RetryMaxAge    time.Duration // Entries older than this are dropped
	RetryMaxSize   int           // Queue is trimmed to this length
	MaxAttempts    int
	// How long the confirmation screen tells clients to show the
	// success state before navigating away
	ConfirmationDisplay time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PaymentRequests int // Payment creations allowed per window per user
	WindowSeconds   int
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			CacheTTL: time.Duration(getEnvAsInt("REDIS_CACHE_TTL_SECONDS", 60)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:             getEnv("JWT_SECRET", ""),
			RefreshSecret:      getEnv("JWT_REFRESH_SECRET", ""),
			AccessTokenExpiry:  time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
			RefreshTokenExpiry: time.Duration(getEnvAsInt("JWT_REFRESH_TOKEN_EXPIRY", 604800)) * time.Second,
		},
		MTN: MTNConfig{
			Environment:     getEnv("MTN_ENVIRONMENT", "sandbox"),
			BaseURL:         getEnv("MTN_BASE_URL", "https://sandbox.momodeveloper.mtn.com"),
			SubscriptionKey: getEnv("MTN_SUBSCRIPTION_KEY", ""),
			APIUser:         getEnv("MTN_API_USER", ""),
			APIKey:          getEnv("MTN_API_KEY", ""),
			CallbackURL:     getEnv("MTN_CALLBACK_URL", ""),
		},
		Orange: OrangeConfig{
			BaseURL:      getEnv("ORANGE_BASE_URL", "https://api-s1.orange.cm"),
			ClientID:     getEnv("ORANGE_CLIENT_ID", ""),
			ClientSecret: getEnv("ORANGE_CLIENT_SECRET", ""),
			MerchantKey:  getEnv("ORANGE_MERCHANT_KEY", ""),
			PIN:          getEnv("ORANGE_MERCHANT_PIN", ""),
		},
		Push: PushConfig{
			Enabled:   getEnvAsBool("PUSH_ENABLED", false),
			ServerKey: getEnv("FCM_SERVER_KEY", ""),
			Endpoint:  getEnv("FCM_ENDPOINT", "https://fcm.googleapis.com/fcm/send"),
		},
		Polling: PollingConfig{
			Interval:    time.Duration(getEnvAsInt("PAYMENT_POLL_INTERVAL_SECONDS", 5)) * time.Second,
			MaxDuration: time.Duration(getEnvAsInt("PAYMENT_POLL_MAX_SECONDS", 600)) * time.Second,
		},
		Notify: NotifyConfig{
			DedupeCapacity:      getEnvAsInt("NOTIFY_DEDUPE_CAPACITY", 200),
			RetryInterval:       time.Duration(getEnvAsInt("NOTIFY_RETRY_INTERVAL_SECONDS", 30)) * time.Second,
			RetryMaxAge:         time.Duration(getEnvAsInt("NOTIFY_RETRY_MAX_AGE_SECONDS", 86400)) * time.Second,
			RetryMaxSize:        getEnvAsInt("NOTIFY_RETRY_MAX_SIZE", 500),
			MaxAttempts:         getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 5),
			ConfirmationDisplay: time.Duration(getEnvAsInt("CONFIRMATION_DISPLAY_SECONDS", 5)) * time.Second,
		},
		RateLimit: RateLimitConfig{
			PaymentRequests: getEnvAsInt("PAYMENT_RATE_LIMIT_REQUESTS", 5),
			WindowSeconds:   getEnvAsInt("PAYMENT_RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "Idempotency-Key"}),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.JWT.RefreshSecret == "" {
		return fmt.Errorf("JWT_REFRESH_SECRET is required")
	}

	if c.Server.Environment == "production" {
		if c.MTN.SubscriptionKey == "" || c.MTN.APIUser == "" || c.MTN.APIKey == "" {
			return fmt.Errorf("MTN_SUBSCRIPTION_KEY, MTN_API_USER and MTN_API_KEY are required in production")
		}
		if c.Orange.ClientID == "" || c.Orange.ClientSecret == "" {
			return fmt.Errorf("ORANGE_CLIENT_ID and ORANGE_CLIENT_SECRET are required in production")
		}
	}

	if c.Push.Enabled && c.Push.ServerKey == "" {
		return fmt.Errorf("FCM_SERVER_KEY is required when PUSH_ENABLED is true")
	}

	if c.Polling.Interval <= 0 || c.Polling.MaxDuration <= 0 {
		return fmt.Errorf("payment polling interval and max duration must be positive")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
