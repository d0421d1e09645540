// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	DeliveryDirect = "direct"
	DeliveryQueue  = "queue"

	ReceiptDirect  = "direct"
	ReceiptBatched = "batched"
	ReceiptAMQP    = "amqp"
)

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// DSN returns DATABASE_URL when set, otherwise builds one from the parts.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type VendorConfig struct {
	SuccessRate float64
	MinDelay    time.Duration
	MaxDelay    time.Duration
}

type AIConfig struct {
	APIURL   string
	APIKey   string
	Model    string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type Config struct {
	HTTPAddr string
	Store    string
	Database DatabaseConfig
	Redis    RedisConfig

	AMQPURL      string
	ReceiptQueue string

	DeliveryMode        string
	ReceiptMode         string
	DeliveryConcurrency int
	Vendor              VendorConfig

	DrainInterval        time.Duration
	DrainProcessingDelay time.Duration
	ReceiptFlushInterval time.Duration
	ReceiptBatchSize     int
	SegmentStaleAfter    time.Duration
	// StrictRules rejects malformed rule trees on segment writes and AI output.
	StrictRules bool

	AI AIConfig

	Log struct {
		Level  string
		Format string
	}
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.Store = getEnv("STORE", StorePostgres)

	cfg.Database.URL = getEnv("DATABASE_URL", "")
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnv("DB_NAME", "crm")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.AMQPURL = getEnv("AMQP_URL", "")
	cfg.ReceiptQueue = getEnv("RECEIPT_QUEUE", "delivery_receipts")

	cfg.DeliveryMode = getEnv("DELIVERY_MODE", DeliveryQueue)
	cfg.ReceiptMode = getEnv("RECEIPT_MODE", ReceiptBatched)
	cfg.DeliveryConcurrency = getEnvInt("DELIVERY_CONCURRENCY", 4)

	cfg.Vendor.SuccessRate = getEnvFloat("VENDOR_SUCCESS_RATE", 0.9)
	cfg.Vendor.MinDelay = getEnvDuration("VENDOR_MIN_DELAY", time.Second)
	cfg.Vendor.MaxDelay = getEnvDuration("VENDOR_MAX_DELAY", 7*time.Second)

	cfg.DrainInterval = getEnvDuration("DRAIN_INTERVAL", 2*time.Second)
	cfg.DrainProcessingDelay = getEnvDuration("DRAIN_PROCESSING_DELAY", time.Second)
	cfg.ReceiptFlushInterval = getEnvDuration("RECEIPT_FLUSH_INTERVAL", 5*time.Second)
	cfg.ReceiptBatchSize = getEnvInt("RECEIPT_BATCH_SIZE", 50)
	cfg.SegmentStaleAfter = getEnvDuration("SEGMENT_STALE_AFTER", 5*time.Minute)
	cfg.StrictRules = getEnvBool("STRICT_RULES", false)

	cfg.AI.APIURL = getEnv("AI_API_URL", "https://generativelanguage.googleapis.com/v1beta")
	cfg.AI.APIKey = getEnv("AI_API_KEY", "")
	cfg.AI.Model = getEnv("AI_MODEL", "gemini-1.5-flash")
	cfg.AI.Timeout = getEnvDuration("AI_TIMEOUT", 15*time.Second)
	cfg.AI.CacheTTL = getEnvDuration("AI_CACHE_TTL", time.Hour)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("config: STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	switch c.DeliveryMode {
	case DeliveryDirect, DeliveryQueue:
	default:
		return fmt.Errorf("config: DELIVERY_MODE must be %q or %q, got %q", DeliveryDirect, DeliveryQueue, c.DeliveryMode)
	}
	switch c.ReceiptMode {
	case ReceiptDirect, ReceiptBatched:
	case ReceiptAMQP:
		if c.AMQPURL == "" {
			return fmt.Errorf("config: RECEIPT_MODE=amqp requires AMQP_URL")
		}
	default:
		return fmt.Errorf("config: RECEIPT_MODE must be direct, batched or amqp, got %q", c.ReceiptMode)
	}
	if c.Vendor.SuccessRate < 0 || c.Vendor.SuccessRate > 1 {
		return fmt.Errorf("config: VENDOR_SUCCESS_RATE must be within [0,1]")
	}
	if c.Vendor.MaxDelay < c.Vendor.MinDelay {
		return fmt.Errorf("config: VENDOR_MAX_DELAY must be >= VENDOR_MIN_DELAY")
	}
	if c.DeliveryConcurrency < 1 {
		c.DeliveryConcurrency = 1
	}
	if c.ReceiptBatchSize < 1 {
		c.ReceiptBatchSize = 1
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v >= 0 {
		return v
	}
	return def
}
