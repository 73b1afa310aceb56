package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppName                       string `mapstructure:"APP_NAME"`
	Version                       string `mapstructure:"APP_VERSION"`
	Port                          int    `mapstructure:"PORT"`
	LogLevel                      string `mapstructure:"LOG_LEVEL"`
	PrettyLogs                    bool   `mapstructure:"PRETTY_LOGS"`
	HttpServerWriteTimeoutSeconds int    `mapstructure:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS"`
	HttpServerReadTimeoutSeconds  int    `mapstructure:"HTTP_SERVER_READ_TIMEOUT_SECONDS"`
	HttpServerIdleTimeoutSeconds  int    `mapstructure:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS"`
	StartupMaxAttempts            int    `mapstructure:"STARTUP_MAX_ATTEMPTS"`

	// Record store: postgres, sqlite or memory
	Store                         string        `mapstructure:"STORE"`
	DatabaseHost                  string        `mapstructure:"DB_HOST"`
	DatabasePort                  string        `mapstructure:"DB_PORT"`
	DatabaseUserName              string        `mapstructure:"DB_USER_NAME"`
	DatabasePassword              string        `mapstructure:"DB_PASSWORD"`
	DatabaseName                  string        `mapstructure:"DB_NAME"`
	DatabaseSSLMode               string        `mapstructure:"DB_SSL_MODE"`
	DatabaseSQLitePath            string        `mapstructure:"DB_SQLITE_PATH"`
	DatabaseMaxOpenConns          int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DatabaseMaxIdleConns          int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DatabaseConnMaxLifetime       time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	DatabaseMigrationFolderPath   string        `mapstructure:"DB_MIGRATION_FOLDER_PATH"`
	DatabaseMigrationVersion      int           `mapstructure:"DB_MIGRATION_VERSION"`
	DatabaseMigrationForce        int           `mapstructure:"DB_MIGRATION_FORCE"`
	DatabaseMigrationAutoRollback bool          `mapstructure:"DB_MIGRATION_AUTO_ROLLBACK"`
	DatabaseAutoMigrate           bool          `mapstructure:"DB_AUTO_MIGRATE"`

	// Keeper lock: local or redis
	LockBackend   string        `mapstructure:"LOCK_BACKEND"`
	LockTTL       time.Duration `mapstructure:"LOCK_TTL"`
	RedisHost     string        `mapstructure:"REDIS_HOST"`
	RedisPort     int           `mapstructure:"REDIS_PORT"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`

	// Kafka producer for merge events. No brokers disables publishing.
	// An input topic also starts the person record consumer.
	KafkaBrokers       []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaOutputTopic   string        `mapstructure:"KAFKA_OUTPUT_TOPIC"`
	KafkaInputTopic    string        `mapstructure:"KAFKA_INPUT_TOPIC"`
	KafkaConsumerGroup string        `mapstructure:"KAFKA_CONSUMER_GROUP"`
	KafkaBatchSize     int           `mapstructure:"KAFKA_BATCH_SIZE"`
	KafkaBatchTimeout  time.Duration `mapstructure:"KAFKA_BATCH_TIMEOUT"`
	KafkaRequiredAcks  int           `mapstructure:"KAFKA_REQUIRED_ACKS"`
	KafkaCompression   string        `mapstructure:"KAFKA_COMPRESSION"`

	// Lineage graph (Neo4j/Memgraph). No host disables lineage.
	GraphDBHost     string `mapstructure:"GRAPH_DB_HOST"`
	GraphDBPort     int    `mapstructure:"GRAPH_DB_PORT"`
	GraphDBUser     string `mapstructure:"GRAPH_DB_USER"`
	GraphDBPassword string `mapstructure:"GRAPH_DB_PASSWORD"`

	// Suggestion provider: openai, ollama, anthropic, gemini, rules or none
	AIProvider        string        `mapstructure:"AI_PROVIDER"`
	AIModel           string        `mapstructure:"AI_MODEL"`
	AIAPIKey          string        `mapstructure:"AI_API_KEY"`
	AIBaseURL         string        `mapstructure:"AI_BASE_URL"`
	AIMaxTokens       int           `mapstructure:"AI_MAX_TOKENS"`
	SuggestionTimeout time.Duration `mapstructure:"SUGGESTION_TIMEOUT"`

	// Matching and auto-merge
	MatchThreshold    int    `mapstructure:"MATCH_THRESHOLD"`
	MergeWorkerCount  int    `mapstructure:"MERGE_WORKER_COUNT"`
	ScorerWeightsFile string `mapstructure:"SCORER_WEIGHTS_FILE"`

	// Tracing
	TracingEndpoint string `mapstructure:"TRACING_ENDPOINT"`
	TracingProtocol string `mapstructure:"TRACING_PROTOCOL"`
	TracingInsecure bool   `mapstructure:"TRACING_INSECURE"`
}

var defaults = map[string]any{
	"APP_NAME":                          "clover",
	"APP_VERSION":                       "dev",
	"PORT":                              3010,
	"LOG_LEVEL":                         "info",
	"PRETTY_LOGS":                       false,
	"HTTP_SERVER_WRITE_TIMEOUT_SECONDS": 120,
	"HTTP_SERVER_READ_TIMEOUT_SECONDS":  10,
	"HTTP_SERVER_IDLE_TIMEOUT_SECONDS":  60,
	"STARTUP_MAX_ATTEMPTS":              5,

	"STORE":                      "postgres",
	"DB_HOST":                    "localhost",
	"DB_PORT":                    "5432",
	"DB_USER_NAME":               "",
	"DB_PASSWORD":                "",
	"DB_NAME":                    "clover",
	"DB_SSL_MODE":                "disable",
	"DB_SQLITE_PATH":             "clover.db",
	"DB_MAX_OPEN_CONNS":          25,
	"DB_MAX_IDLE_CONNS":          10,
	"DB_CONN_MAX_LIFETIME":       "5m",
	"DB_MIGRATION_FOLDER_PATH":   "",
	"DB_MIGRATION_VERSION":       0,
	"DB_MIGRATION_FORCE":         0,
	"DB_MIGRATION_AUTO_ROLLBACK": true,
	"DB_AUTO_MIGRATE":            false,

	"LOCK_BACKEND":   "local",
	"LOCK_TTL":       "2m",
	"REDIS_HOST":     "localhost",
	"REDIS_PORT":     6379,
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,

	"KAFKA_BROKERS":        "",
	"KAFKA_OUTPUT_TOPIC":   "clover.merge-events",
	"KAFKA_INPUT_TOPIC":    "",
	"KAFKA_CONSUMER_GROUP": "clover",
	"KAFKA_BATCH_SIZE":     100,
	"KAFKA_BATCH_TIMEOUT":  "100ms",
	"KAFKA_REQUIRED_ACKS":  1,
	"KAFKA_COMPRESSION":    "snappy",

	"GRAPH_DB_HOST":     "",
	"GRAPH_DB_PORT":     7687,
	"GRAPH_DB_USER":     "",
	"GRAPH_DB_PASSWORD": "",

	"AI_PROVIDER":        "rules",
	"AI_MODEL":           "",
	"AI_API_KEY":         "",
	"AI_BASE_URL":        "",
	"AI_MAX_TOKENS":      1024,
	"SUGGESTION_TIMEOUT": "30s",

	"MATCH_THRESHOLD":     40,
	"MERGE_WORKER_COUNT":  4,
	"SCORER_WEIGHTS_FILE": "",

	"TRACING_ENDPOINT": "",
	"TRACING_PROTOCOL": "grpc",
	"TRACING_INSECURE": true,
}

// Load reads .env files (if present) and the environment into a Config
func Load() (*Config, error) {
	for _, file := range []string{".env", ".env.local"} {
		_ = godotenv.Load(file)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// viper reads a comma separated env var as a single string
	if len(cfg.KafkaBrokers) == 1 && strings.Contains(cfg.KafkaBrokers[0], ",") {
		cfg.KafkaBrokers = strings.Split(cfg.KafkaBrokers[0], ",")
	}
	brokers := cfg.KafkaBrokers[:0]
	for _, b := range cfg.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	cfg.KafkaBrokers = brokers

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("STORE must be postgres, sqlite or memory, got %q", c.Store)
	}
	switch c.LockBackend {
	case "local", "redis":
	default:
		return fmt.Errorf("LOCK_BACKEND must be local or redis, got %q", c.LockBackend)
	}
	if c.MatchThreshold < 0 || c.MatchThreshold > 100 {
		return fmt.Errorf("MATCH_THRESHOLD must be between 0 and 100, got %d", c.MatchThreshold)
	}
	return nil
}

// MigrationFolder defaults to the folder matching the store's SQL flavor
func (c *Config) MigrationFolder() string {
	if c.DatabaseMigrationFolderPath != "" {
		return c.DatabaseMigrationFolderPath
	}
	if c.Store == "sqlite" {
		return "db/sqlite"
	}
	return "db/pg"
}

// DSN is the connection string for the configured SQL store
func (c *Config) DSN() string {
	if c.Store == "sqlite" {
		return c.DatabaseSQLitePath + "?_busy_timeout=5000&_foreign_keys=on"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DatabaseHost, c.DatabasePort, c.DatabaseUserName, c.DatabasePassword, c.DatabaseName, c.DatabaseSSLMode)
}
