package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Gateways GatewayConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	DSN           string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	AutoMigrate   bool
	MigrationsDir string
}

type RedisConfig struct {
	Addr string
	// FinalizeLockTTL bounds how long a finalize lock can outlive a crashed
	// holder before another instance may take over.
	FinalizeLockTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	OrderFinalized  string
	OrderCancelled  string
	LedgerShortfall string
}

type GatewayConfig struct {
	Razorpay RazorpayConfig
	PhonePe  PhonePeConfig
	// VerifyTimeout bounds every server-to-server verification call. On
	// timeout the event is treated as unverified, never as success.
	VerifyTimeout time.Duration
}

type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string
}

type PhonePeConfig struct {
	MerchantID string
	SaltKey    string
	SaltIndex  string
	BaseURL    string
}

type WorkerConfig struct {
	Enabled      bool
	PollInterval time.Duration
	// PendingAge is how long an order may sit pending before the poll
	// fallback reconciles it against the gateway.
	PendingAge time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8086"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:          getEnv("POSTGRES_DSN", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,

			AutoMigrate:   getEnvBool("AUTO_MIGRATE", false),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
		},
		Redis: RedisConfig{
			Addr:            getEnv("REDIS_ADDR", "localhost:6379"),
			FinalizeLockTTL: time.Duration(getEnvInt("FINALIZE_LOCK_TTL_SECONDS", 30)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_ADDR", "localhost:9092")},
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				OrderFinalized:  getEnv("KAFKA_TOPIC_FINALIZED", "shoply.order.finalized"),
				OrderCancelled:  getEnv("KAFKA_TOPIC_CANCELLED", "shoply.order.cancelled"),
				LedgerShortfall: getEnv("KAFKA_TOPIC_SHORTFALL", "shoply.ledger.shortfall"),
			},
		},
		Gateways: GatewayConfig{
			Razorpay: RazorpayConfig{
				KeyID:     getEnv("RAZORPAY_KEY_ID", ""),
				KeySecret: getEnv("RAZORPAY_KEY_SECRET", ""),
				BaseURL:   getEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com"),
			},
			PhonePe: PhonePeConfig{
				MerchantID: getEnv("PHONEPE_MERCHANT_ID", ""),
				SaltKey:    getEnv("PHONEPE_SALT_KEY", ""),
				SaltIndex:  getEnv("PHONEPE_SALT_INDEX", "1"),
				BaseURL:    getEnv("PHONEPE_BASE_URL", "https://api.phonepe.com/apis/hermes"),
			},
			VerifyTimeout: time.Duration(getEnvInt("GATEWAY_VERIFY_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Worker: WorkerConfig{
			Enabled:      getEnvBool("WORKER_ENABLED", true),
			PollInterval: time.Duration(getEnvInt("WORKER_POLL_INTERVAL_SECONDS", 60)) * time.Second,
			PendingAge:   time.Duration(getEnvInt("WORKER_PENDING_AGE_MINUTES", 15)) * time.Minute,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
