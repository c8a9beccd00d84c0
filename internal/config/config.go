// Package config reads service configuration from the environment. A .env
// file in the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const pricePrefix = "STRIPE_PRICE_"

type Config struct {
	Port            string
	BaseURL         string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// StoreDriver is "sqlite" or "memory".
	StoreDriver string
	DBPath      string
	PlansFile   string

	StripeSecretKey     string
	StripeWebhookSecret string
	// StripePrices maps plan ids to Stripe price ids, read from
	// STRIPE_PRICE_<PLAN> variables (STRIPE_PRICE_PRO_ANNUAL -> pro_annual).
	StripePrices map[string]string

	AuthJWTSecret string
	AuthIssuer    string
	AdminToken    string

	// Generator is "openai" or "static".
	Generator    string
	OpenAIAPIKey string
	OpenAIModel  string

	RateLimit       int
	RateLimitWindow time.Duration

	Backup Backup
}

// Backup holds the S3-compatible target for ledger snapshots. It is only
// read by prospectctl.
type Backup struct {
	Endpoint   string
	Bucket     string
	Region     string
	AccessKey  string
	SecretKey  string
	Prefix     string
	Passphrase string
}

// Load reads the configuration and fails when a required secret is missing.
// All missing keys are reported at once.
func Load() (*Config, error) {
	cfg := Read()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Read loads the environment without validating it. The admin CLI uses it
// since it needs the store settings but none of the service secrets.
func Read() *Config {
	_ = godotenv.Load()

	port := getEnv("PORT", "8080")
	cfg := &Config{
		Port:            port,
		BaseURL:         getEnv("BASE_URL", "http://localhost:"+port),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 5*time.Second),

		StoreDriver: getEnv("STORE_DRIVER", "sqlite"),
		DBPath:      getEnv("DB_PATH", "prospector.db"),
		PlansFile:   os.Getenv("PLANS_FILE"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripePrices:        stripePrices(os.Environ()),

		AuthJWTSecret: os.Getenv("AUTH_JWT_SECRET"),
		AuthIssuer:    os.Getenv("AUTH_ISSUER"),
		AdminToken:    os.Getenv("ADMIN_TOKEN"),

		Generator:    getEnv("GENERATOR", "openai"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		RateLimit:       getEnvAsInt("RATE_LIMIT", 30),
		RateLimitWindow: getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),

		Backup: Backup{
			Endpoint:   os.Getenv("BACKUP_S3_ENDPOINT"),
			Bucket:     os.Getenv("BACKUP_S3_BUCKET"),
			Region:     getEnv("BACKUP_S3_REGION", "us-east-1"),
			AccessKey:  os.Getenv("BACKUP_S3_ACCESS_KEY"),
			SecretKey:  os.Getenv("BACKUP_S3_SECRET_KEY"),
			Prefix:     getEnv("BACKUP_PREFIX", "prospector"),
			Passphrase: os.Getenv("BACKUP_PASSPHRASE"),
		},
	}
	return cfg
}

func (c *Config) Validate() error {
	var missing []string
	require := func(key, value string) {
		if value == "" {
			missing = append(missing, key)
		}
	}
	require("STRIPE_SECRET_KEY", c.StripeSecretKey)
	require("STRIPE_WEBHOOK_SECRET", c.StripeWebhookSecret)
	require("AUTH_JWT_SECRET", c.AuthJWTSecret)
	if c.Generator == "openai" {
		require("OPENAI_API_KEY", c.OpenAIAPIKey)
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", ")))
	}
	switch c.StoreDriver {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver))
	}
	switch c.Generator {
	case "openai", "static":
	default:
		errs = append(errs, fmt.Errorf("unsupported GENERATOR %q", c.Generator))
	}
	if n, err := strconv.Atoi(c.Port); err != nil || n < 1 || n > 65535 {
		errs = append(errs, fmt.Errorf("invalid PORT %q", c.Port))
	}
	return errors.Join(errs...)
}

func stripePrices(environ []string) map[string]string {
	prices := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" || !strings.HasPrefix(key, pricePrefix) {
			continue
		}
		plan := strings.ToLower(strings.TrimPrefix(key, pricePrefix))
		if plan != "" {
			prices[plan] = value
		}
	}
	return prices
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
