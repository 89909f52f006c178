package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/mateer-t1/music-moments-api/pkg/clips"
	"github.com/mateer-t1/music-moments-api/pkg/clips/reconcile"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults. WithEnv resets unset variables to their defaults, so it
// should come before programmatic options.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:              "8080",
		Environment:       "development",
		LogLevel:          "info",
		DatabaseType:      "memory",
		DBSchema:          "public",
		StorageType:       "memory",
		StorageContainer:  "music-moments",
		FSBaseDir:         "./data/storage",
		BlobBaseURL:       "http://localhost:8080",
		WriteGrantTTL:     clips.DefaultWriteGrantTTL,
		ReadGrantTTL:      clips.DefaultReadGrantTTL,
		MaxMutateAttempts: clips.DefaultMaxMutateAttempts,
		EventsType:        "log",
		DynamoDB: DynamoDBConfig{
			Region:     "us-east-1",
			ClipsTable: "clips",
			UsersTable: "users",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		AMQP: AMQPConfig{
			Exchange: "clips.events",
		},
		Kafka: KafkaConfig{
			Topic: "clips.events",
		},
		Reconcile: ReconcileConfig{
			PendingDeadline: reconcile.DefaultPendingDeadline,
			OrphanGrace:     reconcile.DefaultOrphanGrace,
		},
	}
}

// ServerConfig represents configuration for the clips service. Field tags
// are read by WithEnv.
type ServerConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"` // development, production, testing
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`

	// Record store
	DatabaseType string `env:"DATABASE_TYPE" env-default:"memory"` // memory, postgres, dynamodb, redis
	DatabaseURL  string `env:"DATABASE_URL"`
	DBSchema     string `env:"DB_SCHEMA" env-default:"public"`
	AutoMigrate  bool   `env:"DB_AUTO_MIGRATE" env-default:"false"`
	DynamoDB     DynamoDBConfig
	Redis        RedisConfig

	// Object store
	StorageType      string `env:"STORAGE_TYPE" env-default:"memory"` // memory, fs, s3, minio
	StorageContainer string `env:"STORAGE_CONTAINER" env-default:"music-moments"`
	FSBaseDir        string `env:"FS_BASE_DIR" env-default:"./data/storage"`
	BlobBaseURL      string `env:"BLOB_BASE_URL" env-default:"http://localhost:8080"`
	BlobSigningKey   string `env:"BLOB_SIGNING_KEY"`
	S3               S3Config
	MinIO            MinIOConfig

	// Lifecycle
	WriteGrantTTL     time.Duration `env:"WRITE_GRANT_TTL" env-default:"15m"`
	ReadGrantTTL      time.Duration `env:"READ_GRANT_TTL" env-default:"60m"`
	MaxMutateAttempts int           `env:"MAX_MUTATE_ATTEMPTS" env-default:"5"`

	// Events
	EventsType string `env:"EVENTS_TYPE" env-default:"log"` // none, log, amqp, kafka
	AMQP       AMQPConfig
	Kafka      KafkaConfig

	Reconcile ReconcileConfig
}

type DynamoDBConfig struct {
	Region     string `env:"DYNAMODB_REGION" env-default:"us-east-1"`
	Endpoint   string `env:"DYNAMODB_ENDPOINT"`
	ClipsTable string `env:"DYNAMODB_CLIPS_TABLE" env-default:"clips"`
	UsersTable string `env:"DYNAMODB_USERS_TABLE" env-default:"users"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

type S3Config struct {
	Region          string `env:"S3_REGION" env-default:"us-east-1"`
	Endpoint        string `env:"S3_ENDPOINT"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	SSEAlgorithm    string `env:"S3_SSE_ALGORITHM"` // empty disables SSE; AES256 or aws:kms
	SSEKMSKeyID     string `env:"S3_SSE_KMS_KEY_ID"`
}

type MinIOConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	UseSSL    bool   `env:"MINIO_USE_SSL" env-default:"false"`
}

type AMQPConfig struct {
	URL      string `env:"AMQP_URL"`
	Exchange string `env:"AMQP_EXCHANGE" env-default:"clips.events"`
}

type KafkaConfig struct {
	Brokers string `env:"KAFKA_BROKERS"` // comma separated
	Topic   string `env:"KAFKA_TOPIC" env-default:"clips.events"`
}

type ReconcileConfig struct {
	Interval        time.Duration `env:"RECONCILE_INTERVAL" env-default:"0s"` // zero disables the background loop
	PendingDeadline time.Duration `env:"RECONCILE_PENDING_DEADLINE" env-default:"1h"`
	OrphanGrace     time.Duration `env:"RECONCILE_ORPHAN_GRACE" env-default:"24h"`
	DryRun          bool          `env:"RECONCILE_DRY_RUN" env-default:"false"`
}

var (
	databaseTypes = []string{"memory", "postgres", "dynamodb", "redis"}
	storageTypes  = []string{"memory", "fs", "s3", "minio"}
	eventsTypes   = []string{"none", "log", "amqp", "kafka"}
)

// Validate validates the server configuration. Every failure wraps
// clips.ErrConfiguration.
func (c *ServerConfig) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{clips.ErrConfiguration}, args...)...))
	}

	if c.Port == "" {
		add("port is required")
	}

	if !slices.Contains(databaseTypes, c.DatabaseType) {
		add("DATABASE_TYPE must be one of %v, got %q", databaseTypes, c.DatabaseType)
	}
	switch c.DatabaseType {
	case "postgres":
		if c.DatabaseURL == "" {
			add("DATABASE_URL is required when using postgres")
		}
	case "dynamodb":
		if c.DynamoDB.ClipsTable == "" || c.DynamoDB.UsersTable == "" {
			add("DYNAMODB_CLIPS_TABLE and DYNAMODB_USERS_TABLE are required when using dynamodb")
		}
	case "redis":
		if c.Redis.Addr == "" {
			add("REDIS_ADDR is required when using redis")
		}
	}

	if !slices.Contains(storageTypes, c.StorageType) {
		add("STORAGE_TYPE must be one of %v, got %q", storageTypes, c.StorageType)
	}
	if c.StorageContainer == "" {
		add("STORAGE_CONTAINER is required")
	}
	switch c.StorageType {
	case "memory", "fs":
		if c.StorageType == "fs" && c.FSBaseDir == "" {
			add("FS_BASE_DIR is required when using fs storage")
		}
		if c.BlobBaseURL == "" {
			add("BLOB_BASE_URL is required for %s storage", c.StorageType)
		}
		if c.BlobSigningKey == "" && c.Environment == "production" {
			add("BLOB_SIGNING_KEY is required for %s storage in production", c.StorageType)
		}
	case "minio":
		if c.MinIO.Endpoint == "" {
			add("MINIO_ENDPOINT is required when using minio storage")
		}
	}

	if c.WriteGrantTTL <= 0 || c.ReadGrantTTL <= 0 {
		add("grant TTLs must be positive")
	}
	if c.MaxMutateAttempts < 1 {
		add("MAX_MUTATE_ATTEMPTS must be at least 1")
	}

	if !slices.Contains(eventsTypes, c.EventsType) {
		add("EVENTS_TYPE must be one of %v, got %q", eventsTypes, c.EventsType)
	}
	switch c.EventsType {
	case "amqp":
		if c.AMQP.URL == "" {
			add("AMQP_URL is required when EVENTS_TYPE=amqp")
		}
	case "kafka":
		if c.Kafka.Brokers == "" {
			add("KAFKA_BROKERS is required when EVENTS_TYPE=kafka")
		}
	}

	if c.Reconcile.Interval < 0 {
		add("RECONCILE_INTERVAL must not be negative")
	}

	return errors.Join(errs...)
}

// UsesLocalBlobs reports whether grants are served by this process's /blobs handlers
func (c *ServerConfig) UsesLocalBlobs() bool {
	return c.StorageType == "memory" || c.StorageType == "fs"
}

// ReconcileOptions converts the reconciliation settings
func (c *ServerConfig) ReconcileOptions() reconcile.Options {
	return reconcile.Options{
		PendingDeadline: c.Reconcile.PendingDeadline,
		OrphanGrace:     c.Reconcile.OrphanGrace,
		DryRun:          c.Reconcile.DryRun,
	}
}
