// Package config loads runtime configuration from the environment (and an
// optional .env file).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go-inventory-predict/pkg/validator"

	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig
	Server     ServerConfig
	Partitions PartitionConfig
	Store      StoreConfig
	Dispatcher DispatcherConfig
	Prediction PredictionConfig
	Scorer     ScorerConfig
	RPC        RPCConfig
	Auth       AuthConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Consul     ConsulConfig
	RateLimit  RateLimitConfig
	Wire       WireConfig
}

type AppConfig struct {
	Name        string `validate:"required"`
	Environment string `validate:"oneof=development staging production test"`
}

type ServerConfig struct {
	Port            string        `validate:"required,numeric"`
	PublicHost      string        `validate:"required"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// PartitionConfig describes how the productId space is split. Partition i
// owns a contiguous range of the [ProductIDLow, ProductIDHigh] interval.
type PartitionConfig struct {
	Count         int `validate:"gte=1"`
	ProductIDLow  int `validate:"gte=0"`
	ProductIDHigh int `validate:"gtefield=ProductIDLow"`
}

type StoreConfig struct {
	// DSN of the postgres mirror; empty keeps partition state in memory only.
	DSN         string
	LockTimeout time.Duration `validate:"gt=0"`
}

type DispatcherConfig struct {
	Interval time.Duration `validate:"gt=0"`
}

type PredictionConfig struct {
	Window               time.Duration `validate:"gt=0"`
	TimerStartDelay      time.Duration `validate:"gte=0"`
	TimerInterval        time.Duration `validate:"gt=0"`
	NotificationAttempts int           `validate:"gte=0"`
}

type ScorerConfig struct {
	Client  string        `validate:"oneof=mock azure"`
	URL     string        `validate:"required_if=Client azure"`
	APIKey  string        `validate:"required_if=Client azure"`
	Timeout time.Duration `validate:"gt=0"`
}

type RPCConfig struct {
	RetryDelay time.Duration `validate:"gte=0"`
	MaxRetries int           `validate:"gte=0"`
	Resolver   string        `validate:"oneof=static consul"`
}

type AuthConfig struct {
	JWTSecret string        `validate:"required"`
	TokenTTL  time.Duration `validate:"gt=0"`
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string `validate:"required"`
}

type ConsulConfig struct {
	Addr        string
	ServiceName string
}

type RateLimitConfig struct {
	// Rate in ulule/limiter format, e.g. "100-S".
	Rate string `validate:"required,limiter_rate"`
}

type WireConfig struct {
	Codec          string `validate:"oneof=protobuf json gob"`
	MaxMessageSize int    `validate:"gt=0"`
}

// Load reads .env (when present) and the process environment. Unparseable
// values are reported instead of silently replaced by defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	l := &loader{}
	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "go-inventory-predict"),
			Environment: getEnv("APP_ENV", "development"),
		},
		Server: ServerConfig{
			Port:            getEnv("PORT", "3000"),
			PublicHost:      getEnv("PUBLIC_HOST", "localhost"),
			ShutdownTimeout: l.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Partitions: PartitionConfig{
			Count:         l.int("PARTITION_COUNT", 2),
			ProductIDLow:  l.int("PRODUCT_ID_LOW", 680),
			ProductIDHigh: l.int("PRODUCT_ID_HIGH", 1000),
		},
		Store: StoreConfig{
			DSN:         getEnv("STORE_DSN", ""),
			LockTimeout: l.duration("STORE_LOCK_TIMEOUT", 4*time.Second),
		},
		Dispatcher: DispatcherConfig{
			Interval: l.duration("PROCESS_ORDERS_INTERVAL", 3*time.Second),
		},
		Prediction: PredictionConfig{
			Window:               l.duration("PREDICTION_WINDOW", 30*24*time.Hour),
			TimerStartDelay:      l.duration("PREDICTION_TIMER_START_DELAY", 5*time.Second),
			TimerInterval:        l.duration("PREDICTION_TIMER_INTERVAL", 5*time.Second),
			NotificationAttempts: l.int("PREDICTION_NOTIFICATION_ATTEMPTS", 10),
		},
		Scorer: ScorerConfig{
			Client:  getEnv("SCORER_CLIENT", "mock"),
			URL:     getEnv("SCORER_URL", ""),
			APIKey:  getEnv("SCORER_API_KEY", ""),
			Timeout: l.duration("SCORER_TIMEOUT", 10*time.Second),
		},
		RPC: RPCConfig{
			RetryDelay: l.duration("RPC_RETRY_DELAY", 3*time.Second),
			MaxRetries: l.int("RPC_MAX_RETRIES", 5),
			Resolver:   getEnv("RPC_RESOLVER", "static"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "change-me-in-production"),
			TokenTTL:  l.duration("JWT_TTL", 24*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       l.int("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "low-stock-predictions"),
		},
		Consul: ConsulConfig{
			Addr:        getEnv("CONSUL_ADDR", "localhost:8500"),
			ServiceName: getEnv("CONSUL_SERVICE", "stock-service"),
		},
		RateLimit: RateLimitConfig{
			Rate: getEnv("RATE_LIMIT", "100-S"),
		},
		Wire: WireConfig{
			Codec:          getEnv("CODEC", "protobuf"),
			MaxMessageSize: l.int("WS_MAX_MESSAGE_SIZE", 100*1024),
		},
	}

	if l.err != nil {
		return nil, l.err
	}
	if err := validator.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loader remembers the first parse failure so Load can report it.
type loader struct {
	err error
}

func (l *loader) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.fail(key, v, err)
		return def
	}
	return n
}

func (l *loader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.fail(key, v, err)
		return def
	}
	return d
}

func (l *loader) fail(key, val string, err error) {
	if l.err == nil {
		l.err = fmt.Errorf("config %s=%q: %w", key, val, err)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
