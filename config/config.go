package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	aws_pkg "discount-service/pkg/aws"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the discount service.
type Config struct {
	Port string
	Env  string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	RedisURL       string
	ProductNameTTL time.Duration
	ProductsTable  string

	// SNS topic and Kafka topic for discount policy events; either may be empty.
	DiscountSNSTopicARN string
	KafkaBrokers        []string
	KafkaTopic          string

	// Queue carrying product_updated / product_deleted events.
	ProductEventsQueueURL string

	AllowedOrigins     []string
	RateLimitPerMinute int
}

// SecretGetter is the part of the Secrets Manager client LoadConfig uses.
type SecretGetter interface {
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

// LoadConfig reads configuration from the environment, after loading a .env
// file when one exists.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", "8092"),
		Env:                   getEnv("ENV", "development"),
		PostgresUser:          os.Getenv("POSTGRES_USER"),
		PostgresPassword:      os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:            os.Getenv("POSTGRES_DB"),
		PostgresHost:          getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:          getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:       getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone:      getEnv("POSTGRES_TIMEZONE", "Asia/Kolkata"),
		RedisURL:              os.Getenv("REDIS_URL"),
		ProductNameTTL:        getDuration("PRODUCT_NAME_TTL", 10*time.Minute),
		ProductsTable:         getEnv("PRODUCTS_TABLE", "products"),
		DiscountSNSTopicARN:   os.Getenv("DISCOUNT_SNS_TOPIC_ARN"),
		KafkaBrokers:          splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:            getEnv("KAFKA_TOPIC", "discount.policy.changed"),
		ProductEventsQueueURL: os.Getenv("PRODUCT_EVENTS_QUEUE_URL"),
		AllowedOrigins:        splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		RateLimitPerMinute:    getInt("RATE_LIMIT_PER_MINUTE", 120),
	}
	return cfg, nil
}

// ApplySecrets overrides DB credentials from the "discount/DB_CREDENTIALS"
// secret. Only non-empty values override.
func (c *Config) ApplySecrets(ctx context.Context, sm SecretGetter) error {
	m, err := sm.GetSecretMap(ctx, "discount/DB_CREDENTIALS")
	if err != nil {
		return err
	}
	override := func(dst *string, key string) {
		if v, ok := m[key]; ok && v != "" {
			*dst = v
		}
	}
	override(&c.PostgresUser, "POSTGRES_USER")
	override(&c.PostgresPassword, "POSTGRES_PASSWORD")
	override(&c.PostgresDB, "POSTGRES_DB")
	override(&c.PostgresHost, "POSTGRES_HOST")
	override(&c.PostgresPort, "POSTGRES_PORT")
	return nil
}

// Validate reports missing required settings.
func (c *Config) Validate() error {
	if c.PostgresUser == "" || c.PostgresPassword == "" || c.PostgresDB == "" || c.PostgresHost == "" {
		return fmt.Errorf("database config incomplete")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	return nil
}

// UseSecrets reports whether DB credentials should come from Secrets Manager.
func UseSecrets() bool {
	return os.Getenv("AWS_USE_SECRETS") == "true"
}

// Load reads the environment, applies Secrets Manager overrides when
// enabled and validates the result.
func Load(ctx context.Context) (*Config, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if UseSecrets() {
		awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		if err := cfg.ApplySecrets(ctx, aws_pkg.NewSecretsClient(awsCfg)); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PostgresDSN formats the connection string for the gorm postgres driver.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB,
		c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone,
	)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
