package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string

	Server    ServerConfig
	Logging   LoggingConfig
	Redis     RedisConfig
	Promo     PromoConfig
	Kafka     KafkaConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	DB       int
	PoolSize int
}

type PromoConfig struct {
	// FilePath backs the local file store used when no Redis URL is set.
	FilePath string
}

type KafkaConfig struct {
	Brokers         []string
	RedemptionTopic string
}

type RateLimitConfig struct {
	AllowList []string
	DenyList  []string
}

// LoadConfig reads configuration from the environment. A .env file is
// honored in development; its absence is not an error.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnvInt("PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		Promo: PromoConfig{
			FilePath: getEnv("PROMO_FILE_PATH", "data/promo_codes.json"),
		},
		Kafka: KafkaConfig{
			Brokers:         getEnvList("KAFKA_BROKERS"),
			RedemptionTopic: getEnv("KAFKA_REDEMPTION_TOPIC", "promo-redemptions"),
		},
		RateLimit: RateLimitConfig{
			AllowList: getEnvList("RATE_LIMIT_ALLOWLIST"),
			DenyList:  getEnvList("RATE_LIMIT_DENYLIST"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// HasRedis reports whether a remote backend is configured. When false the
// service degrades to the in-process counter and the file-backed store.
func (c *Config) HasRedis() bool {
	return c.Redis.URL != ""
}

func (c *Config) HasKafka() bool {
	return len(c.Kafka.Brokers) > 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var items []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
