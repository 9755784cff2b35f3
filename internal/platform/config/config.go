package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server captures process level configuration.
type Server struct {
	Addr            string
	Environment     string
	LogLevel        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	JWTSigningKey string
	JWTIssuer     string
	// AdminRole is the role claim required on every /admin route.
	AdminRole string

	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig
	Chain       ChainConfig

	// ChainRateLimit caps manual chain requests per admin per ChainRateWindow.
	// Zero disables the limit.
	ChainRateLimit  int
	ChainRateWindow time.Duration
}

// RedisConfig configures the optional config cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures event consumption and the audit outbox relay.
// Kafka is disabled when Brokers is empty.
type KafkaConfig struct {
	Brokers          []string
	ConsumerGroup    string
	SealEarnedTopic  string
	AuditTopic       string
	OutboxInterval   time.Duration
	OutboxBatchSize  int
	TopicPartitions  int32
	TopicReplication int16
}

// ChainConfig configures where chain.* settings are read from and how
// remote notarization backends are called.
type ChainConfig struct {
	// Source is one of env, yaml, postgres.
	Source     string
	ConfigFile string
	CacheTTL   time.Duration

	// GatewayEnabled wires the HTTP anchoring gateway for providers with
	// complete credentials. When false they report not_integrated.
	GatewayEnabled   bool
	BackendTimeout   time.Duration
	FailureThreshold int
	CoolDown         time.Duration
}

func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// Load reads optional .env files and then builds the config from the environment.
// Variables already set in the environment win over .env values.
func Load(envFiles ...string) (Server, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Server{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:            getEnv("CITYWALK_ADDR", ":8080"),
		Environment:     getEnv("CITYWALK_ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RequestTimeout:  getDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		// Use a default for development - should be overridden in production
		JWTSigningKey: getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     getEnv("JWT_ISSUER", "citywalk-admin"),
		AdminRole:     getEnv("ADMIN_ROLE", "admin"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:          splitList(os.Getenv("KAFKA_BROKERS")),
			ConsumerGroup:    getEnv("KAFKA_CONSUMER_GROUP", "citywalk-certification"),
			SealEarnedTopic:  getEnv("KAFKA_SEAL_EARNED_TOPIC", "seal.earned"),
			AuditTopic:       getEnv("KAFKA_AUDIT_TOPIC", "citywalk.audit"),
			OutboxInterval:   getDuration("OUTBOX_POLL_INTERVAL", time.Second),
			OutboxBatchSize:  getInt("OUTBOX_BATCH_SIZE", 100),
			TopicPartitions:  int32(getInt("KAFKA_TOPIC_PARTITIONS", 3)),
			TopicReplication: int16(getInt("KAFKA_TOPIC_REPLICATION", 1)),
		},
		Chain: ChainConfig{
			Source:           getEnv("CHAIN_CONFIG_SOURCE", "env"),
			ConfigFile:       os.Getenv("CHAIN_CONFIG_FILE"),
			CacheTTL:         getDuration("CHAIN_CONFIG_CACHE_TTL", 5*time.Minute),
			GatewayEnabled:   getEnv("CHAIN_GATEWAY_ENABLED", "false") == "true",
			BackendTimeout:   getDuration("CHAIN_BACKEND_TIMEOUT", 10*time.Second),
			FailureThreshold: getInt("CHAIN_BREAKER_FAILURES", 5),
			CoolDown:         getDuration("CHAIN_BREAKER_COOLDOWN", 30*time.Second),
		},
		ChainRateLimit:  getInt("CHAIN_RATE_LIMIT", 30),
		ChainRateWindow: getDuration("CHAIN_RATE_WINDOW", time.Minute),
	}
}

// Validate rejects combinations that cannot start.
func (s Server) Validate() error {
	switch s.Chain.Source {
	case "env":
	case "yaml":
		if s.Chain.ConfigFile == "" {
			return errors.New("CHAIN_CONFIG_FILE is required when CHAIN_CONFIG_SOURCE=yaml")
		}
	case "postgres":
		if s.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when CHAIN_CONFIG_SOURCE=postgres")
		}
	default:
		return fmt.Errorf("unknown CHAIN_CONFIG_SOURCE %q", s.Chain.Source)
	}
	if s.IsProduction() && s.JWTSigningKey == "dev-secret-key-change-in-production" {
		return errors.New("JWT_SIGNING_KEY must be set in production")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
