package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Development fallbacks only. Release mode refuses to start without real values.
const (
	devJWTSecret     = "default_super_secret_key"
	devEncryptionKey = "default_encryption_key"
	devEncryptionIV  = "default_encryption_iv"
)

// Secrets is the process-wide secret store. It is read-only after Load returns.
type Secrets struct {
	EncryptionAlgorithm string
	EncryptionKey       string
	EncryptionIV        string
	JWTSecret           string
	BcryptCost          int
	CodeLength          int
	CodeTTL             time.Duration
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration
}

// Get returns a secret by its environment name.
func (s Secrets) Get(name string) (string, bool) {
	switch name {
	case "ENCRYPTION_ALGORITHM":
		return s.EncryptionAlgorithm, true
	case "ENCRYPTION_KEY":
		return s.EncryptionKey, true
	case "ENCRYPTION_IV":
		return s.EncryptionIV, true
	case "JWT_SECRET":
		return s.JWTSecret, true
	case "BCRYPT_COST":
		return strconv.Itoa(s.BcryptCost), true
	case "CODE_LENGTH":
		return strconv.Itoa(s.CodeLength), true
	case "EXPIRE_TIME_FOR_CODES":
		return s.CodeTTL.String(), true
	case "JWT_ACCESS_EXPIRATION":
		return s.AccessTokenTTL.String(), true
	case "JWT_REFRESH_EXPIRATION":
		return s.RefreshTokenTTL.String(), true
	}
	return "", false
}

// RateLimit holds the limits applied to credential endpoints.
type RateLimit struct {
	Requests int
	Window   time.Duration
	Burst    int
}

// SMTP is optional; an empty Host means notifications are only logged.
type SMTP struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

type Config struct {
	Port                 string
	GinMode              string
	Env                  string
	PublicURL            string
	CORSOrigins          []string
	ShutdownGracePeriod  time.Duration
	HousekeepingInterval time.Duration

	DatabaseDSN string

	LogLevel  string
	LogFormat string

	RedisAddr string
	AuthLimit RateLimit

	SMTP    SMTP
	Secrets Secrets
}

// Release reports whether the service runs in production mode.
func (c Config) Release() bool {
	return c.GinMode == "release"
}

// Load reads configs/.env (if present) and the environment once.
func Load() (Config, error) {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	cfg := Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		GinMode:              os.Getenv("GIN_MODE"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		PublicURL:            strings.TrimRight(getEnvOrDefault("PUBLIC_URL", "http://localhost:5173"), "/"),
		CORSOrigins:          splitList(getEnvOrDefault("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
		DatabaseDSN:          databaseDSN(),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		AuthLimit: RateLimit{
			Requests: getEnvIntOrDefault("RATELIMIT_AUTH_REQUESTS", 10),
			Window:   time.Duration(getEnvIntOrDefault("RATELIMIT_AUTH_WINDOW_SEC", 60)) * time.Second,
			Burst:    getEnvIntOrDefault("RATELIMIT_AUTH_BURST", 10),
		},
		SMTP: SMTP{
			Host: os.Getenv("SMTP_HOST"),
			Port: getEnvIntOrDefault("SMTP_PORT", 587),
			User: os.Getenv("SMTP_USER"),
			Pass: os.Getenv("SMTP_PASS"),
			From: getEnvOrDefault("SMTP_FROM", "no-reply@storefront.local"),
		},
		Secrets: Secrets{
			EncryptionAlgorithm: strings.ToLower(getEnvOrDefault("ENCRYPTION_ALGORITHM", "aes-256-cbc")),
			EncryptionKey:       os.Getenv("ENCRYPTION_KEY"),
			EncryptionIV:        os.Getenv("ENCRYPTION_IV"),
			JWTSecret:           os.Getenv("JWT_SECRET"),
			BcryptCost:          getEnvIntOrDefault("BCRYPT_COST", 12),
			CodeLength:          getEnvIntOrDefault("CODE_LENGTH", 6),
			CodeTTL:             getEnvDurationOrDefault("EXPIRE_TIME_FOR_CODES", 10*time.Minute),
			AccessTokenTTL:      getEnvDurationOrDefault("JWT_ACCESS_EXPIRATION", 15*time.Minute),
			RefreshTokenTTL:     getEnvDurationOrDefault("JWT_REFRESH_EXPIRATION", 7*24*time.Hour),
		},
	}

	if err := cfg.applySecretFallbacks(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applySecretFallbacks() error {
	missing := make([]string, 0, 3)
	if c.Secrets.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
		c.Secrets.JWTSecret = devJWTSecret
	}
	if c.Secrets.EncryptionKey == "" {
		missing = append(missing, "ENCRYPTION_KEY")
		c.Secrets.EncryptionKey = devEncryptionKey
	}
	if c.Secrets.EncryptionIV == "" {
		missing = append(missing, "ENCRYPTION_IV")
		c.Secrets.EncryptionIV = devEncryptionIV
	}
	if len(missing) > 0 && c.Release() {
		return fmt.Errorf("config: %s required in release mode", strings.Join(missing, ", "))
	}
	return nil
}

// Validate checks values that would otherwise fail deep inside a request.
func (c Config) Validate() error {
	switch c.Secrets.EncryptionAlgorithm {
	case "aes-128-cbc", "aes-192-cbc", "aes-256-cbc":
	default:
		return fmt.Errorf("config: unsupported ENCRYPTION_ALGORITHM %q", c.Secrets.EncryptionAlgorithm)
	}
	if c.Secrets.BcryptCost < bcrypt.MinCost || c.Secrets.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("config: BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Secrets.CodeLength < 4 {
		return errors.New("config: CODE_LENGTH must be at least 4")
	}
	if c.Secrets.CodeTTL <= 0 || c.Secrets.AccessTokenTTL <= 0 || c.Secrets.RefreshTokenTTL <= 0 {
		return errors.New("config: token and code lifetimes must be positive")
	}
	if c.AuthLimit.Requests <= 0 || c.AuthLimit.Window <= 0 || c.AuthLimit.Burst <= 0 {
		return errors.New("config: rate limit values must be positive")
	}
	return nil
}

func databaseDSN() string {
	dbHost := getEnvOrDefault("DB_HOST", "localhost")
	dbPort := getEnvOrDefault("DB_PORT", "5432")
	dbUser := getEnvOrDefault("DB_USER", "postgres")
	dbPassword := getEnvOrDefault("DB_PASSWORD", "postgres")
	dbName := getEnvOrDefault("DB_NAME", "postgres")
	dbSslMode := getEnvOrDefault("DB_SSLMODE", "disable")

	return "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName + "?sslmode=" + dbSslMode
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go durations ("15m") or a bare number of seconds.
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
