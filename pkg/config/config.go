package config

import (
	"fmt"
	"time"

	"tourly-backend/pkg/env"
)

// Config holds all configuration for the messaging service
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cassandra CassandraConfig
	MinIO     MinIOConfig
	Kafka     KafkaConfig
	JWT       JWTConfig
	Log       LogConfig
	Chat      ChatConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	Environment    string // development, staging, production
	ServiceName    string
	AllowedOrigins []string
}

// DatabaseConfig holds CockroachDB configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// CassandraConfig holds Cassandra configuration
type CassandraConfig struct {
	Hosts    []string
	Keyspace string
	Username string
	Password string
	Timeout  time.Duration
}

// MinIOConfig holds MinIO configuration for avatar objects
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// KafkaConfig holds the domain event producer configuration.
// An empty broker list disables event publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// ChatConfig holds messaging limits and timings
type ChatConfig struct {
	PageSize            int
	InboxLimit          int
	PreviewLength       int
	MaxMessageLength    int
	ReadDebounce        time.Duration
	ParticipantCacheTTL time.Duration
	AvatarURLExpiry     time.Duration
	SideEffectTimeout   time.Duration
	SendRateLimit       int // messages per participant per minute
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           env.GetString("PORT", "8082"),
			Environment:    env.GetString("ENV", "development"),
			ServiceName:    env.GetString("SERVICE_NAME", "messaging-service"),
			AllowedOrigins: env.GetSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:     env.GetString("COCKROACH_HOST", "localhost"),
			Port:     env.GetInt("COCKROACH_PORT", 26257),
			User:     env.GetString("COCKROACH_USER", "root"),
			Password: env.GetStringFromFile("COCKROACH_PASSWORD", ""),
			Database: env.GetString("COCKROACH_DATABASE", "tourly"),
			SSLMode:  env.GetString("COCKROACH_SSLMODE", "disable"),
			MaxConns: env.GetInt("DB_MAX_CONNS", 25),
			MinConns: env.GetInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},
		Cassandra: CassandraConfig{
			Hosts:    env.GetSlice("CASSANDRA_HOSTS", []string{"localhost"}),
			Keyspace: env.GetString("CASSANDRA_KEYSPACE", "tourly_ks"),
			Username: env.GetStringFromFile("CASSANDRA_USER", ""),
			Password: env.GetStringFromFile("CASSANDRA_PASSWORD", ""),
			Timeout:  env.GetDuration("CASSANDRA_TIMEOUT", 10*time.Second),
		},
		MinIO: MinIOConfig{
			Endpoint:  env.GetString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env.GetStringFromFile("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env.GetStringFromFile("MINIO_SECRET_KEY", "minioadmin"),
			UseSSL:    env.GetBool("MINIO_USE_SSL", false),
			Bucket:    env.GetString("MINIO_AVATAR_BUCKET", "tourly-avatars"),
		},
		Kafka: KafkaConfig{
			Brokers: env.GetSlice("KAFKA_BROKERS", nil),
			Topic:   env.GetString("KAFKA_MESSAGES_TOPIC", "tourly.messages"),
		},
		JWT: JWTConfig{
			Secret:            env.GetStringFromFile("JWT_SECRET", ""),
			AccessTokenExpiry: env.GetDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "/logs/messaging.log"),
		},
		Chat: ChatConfig{
			PageSize:            env.GetInt("CHAT_PAGE_SIZE", 50),
			InboxLimit:          env.GetInt("CHAT_INBOX_LIMIT", 50),
			PreviewLength:       env.GetInt("CHAT_PREVIEW_LENGTH", 200),
			MaxMessageLength:    env.GetInt("CHAT_MAX_MESSAGE_LENGTH", 2000),
			ReadDebounce:        env.GetDuration("CHAT_READ_DEBOUNCE", 500*time.Millisecond),
			ParticipantCacheTTL: env.GetDuration("CHAT_PARTICIPANT_CACHE_TTL", 5*time.Minute),
			AvatarURLExpiry:     env.GetDuration("CHAT_AVATAR_URL_EXPIRY", time.Hour),
			SideEffectTimeout:   env.GetDuration("CHAT_SIDE_EFFECT_TIMEOUT", 5*time.Second),
			SendRateLimit:       env.GetInt("CHAT_SEND_RATE_LIMIT", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.Server.Environment == "production" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	if c.Chat.PageSize <= 0 || c.Chat.InboxLimit <= 0 {
		return fmt.Errorf("CHAT_PAGE_SIZE and CHAT_INBOX_LIMIT must be positive")
	}
	if c.Chat.PreviewLength <= 0 || c.Chat.MaxMessageLength <= 0 {
		return fmt.Errorf("CHAT_PREVIEW_LENGTH and CHAT_MAX_MESSAGE_LENGTH must be positive")
	}
	if len(c.Cassandra.Hosts) == 0 {
		return fmt.Errorf("CASSANDRA_HOSTS must not be empty")
	}
	return nil
}

// KafkaEnabled reports whether domain events should be produced
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}
