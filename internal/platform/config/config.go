package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	liststrings "docflow/pkg/platform/strings"
)

// Server captures process-level configuration read from the environment.
// Pipeline tuning lives in the TOML policy file (see Policy).
type Server struct {
	Addr          string
	LogLevel      string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	PolicyFile    string

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Storage  StorageConfig
	AI       AIConfig
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

type StorageConfig struct {
	GCSBucket string
}

// AIConfig holds provider credentials. Which providers run, and in what
// precedence, is policy.
type AIConfig struct {
	OpenAIAPIKey   string
	GLMAPIKey      string
	VertexProject  string
	VertexLocation string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// development default; production must override
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          getEnv("DOCFLOW_ADDR", ":8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     getEnv("JWT_ISSUER", "docflow-auth"),
		JWTAudience:   getEnv("JWT_AUDIENCE", "docflow-api"),
		PolicyFile:    getEnv("POLICY_FILE", "configs/policy.toml"),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    liststrings.SplitList(os.Getenv("KAFKA_BROKERS"), false),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "docflow.audit"),
		},
		Storage: StorageConfig{
			GCSBucket: os.Getenv("GCS_BUCKET"),
		},
		AI: AIConfig{
			OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
			GLMAPIKey:      os.Getenv("GLM_API_KEY"),
			VertexProject:  os.Getenv("VERTEX_PROJECT"),
			VertexLocation: getEnv("VERTEX_LOCATION", "us-central1"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
