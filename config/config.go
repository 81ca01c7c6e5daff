// Package config loads service configuration from the environment
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppName                       string `mapstructure:"app_name"`
	Port                          int    `mapstructure:"port"`
	LogLevel                      string `mapstructure:"log_level"`
	PrettyLogs                    bool   `mapstructure:"pretty_logs"`
	HttpServerWriteTimeoutSeconds int    `mapstructure:"http_server_write_timeout_seconds"`
	HttpServerReadTimeoutSeconds  int    `mapstructure:"http_server_read_timeout_seconds"`
	HttpServerIdleTimeoutSeconds  int    `mapstructure:"http_server_idle_timeout_seconds"`
	StartupMaxAttempts            int    `mapstructure:"startup_max_attempts"`

	// PostgreSQL
	DatabaseDriver                string        `mapstructure:"db_driver"`
	DatabaseHost                  string        `mapstructure:"db_host"`
	DatabasePort                  string        `mapstructure:"db_port"`
	DatabaseUserName              string        `mapstructure:"db_user_name"`
	DatabasePassword              string        `mapstructure:"db_password"`
	DatabaseName                  string        `mapstructure:"db_name"`
	DatabaseSSLMode               string        `mapstructure:"db_ssl_mode"`
	DatabaseMaxOpenConns          int           `mapstructure:"db_max_open_conns"`
	DatabaseMaxIdleConns          int           `mapstructure:"db_max_idle_conns"`
	DatabaseConnMaxLifetime       time.Duration `mapstructure:"db_conn_max_lifetime"`
	DatabaseMigrationFolderPath   string        `mapstructure:"db_migration_folder_path"`
	DatabaseMigrationVersion      int           `mapstructure:"db_migration_version"`
	DatabaseMigrationForce        int           `mapstructure:"db_migration_force"`
	DatabaseMigrationAutoRollback bool          `mapstructure:"db_migration_auto_rollback"`

	// Redis (per-project dedup locks)
	RedisHost     string `mapstructure:"redis_host"`
	RedisPort     int    `mapstructure:"redis_port"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	// Kafka producer
	KafkaEnabled      bool     `mapstructure:"kafka_enabled"`
	KafkaBrokers      []string `mapstructure:"kafka_brokers"`
	KafkaOutputTopic  string   `mapstructure:"kafka_output_topic"`
	KafkaBatchSize    int      `mapstructure:"kafka_batch_size"`
	KafkaBatchTimeout int      `mapstructure:"kafka_batch_timeout_ms"`
	KafkaRequiredAcks int      `mapstructure:"kafka_required_acks"`
	KafkaCompression  string   `mapstructure:"kafka_compression"`

	// Dedup and grouping. The hard threshold gates persisted suppression;
	// the soft threshold is the display-grouping default. They are
	// separate knobs on purpose and must stay apart.
	HardDedupThreshold      float64       `mapstructure:"hard_dedup_threshold"`
	SoftSimilarityThreshold float64       `mapstructure:"soft_similarity_threshold"`
	GroupLimit              int           `mapstructure:"group_limit"`
	DedupLockTTL            time.Duration `mapstructure:"dedup_lock_ttl"`

	// Text-generation collaborator
	GeneratorBaseURL string        `mapstructure:"generator_base_url"`
	GeneratorTimeout time.Duration `mapstructure:"generator_timeout"`
}

// Load reads configuration from environment variables with defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.HardDedupThreshold <= cfg.SoftSimilarityThreshold {
		return nil, fmt.Errorf("hard_dedup_threshold (%v) must be above soft_similarity_threshold (%v)",
			cfg.HardDedupThreshold, cfg.SoftSimilarityThreshold)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "fern-api")
	v.SetDefault("port", 3004)
	v.SetDefault("log_level", "info")
	v.SetDefault("pretty_logs", false)
	v.SetDefault("http_server_write_timeout_seconds", 10)
	v.SetDefault("http_server_read_timeout_seconds", 10)
	v.SetDefault("http_server_idle_timeout_seconds", 10)
	v.SetDefault("startup_max_attempts", 5)

	v.SetDefault("db_driver", "postgres")
	v.SetDefault("db_host", "")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user_name", "")
	v.SetDefault("db_password", "")
	v.SetDefault("db_name", "fern")
	v.SetDefault("db_ssl_mode", "disable")
	v.SetDefault("db_max_open_conns", 25)
	v.SetDefault("db_max_idle_conns", 10)
	v.SetDefault("db_conn_max_lifetime", "10s")
	v.SetDefault("db_migration_folder_path", "db/pg")
	v.SetDefault("db_migration_version", 0)
	v.SetDefault("db_migration_force", 0)
	v.SetDefault("db_migration_auto_rollback", true)

	v.SetDefault("redis_host", "localhost")
	v.SetDefault("redis_port", 6379)
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("kafka_enabled", true)
	v.SetDefault("kafka_brokers", []string{"localhost:9092"})
	v.SetDefault("kafka_output_topic", "fern-events")
	v.SetDefault("kafka_batch_size", 100)
	v.SetDefault("kafka_batch_timeout_ms", 100)
	v.SetDefault("kafka_required_acks", 1)
	v.SetDefault("kafka_compression", "snappy")

	v.SetDefault("hard_dedup_threshold", 0.92)
	v.SetDefault("soft_similarity_threshold", 0.88)
	v.SetDefault("group_limit", 2000)
	v.SetDefault("dedup_lock_ttl", "2m")

	v.SetDefault("generator_base_url", "http://localhost:8090")
	v.SetDefault("generator_timeout", "120s")
}
