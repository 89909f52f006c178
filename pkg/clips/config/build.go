package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mateer-t1/music-moments-api/pkg/clips"
	"github.com/mateer-t1/music-moments-api/pkg/clips/events"
	amqpevents "github.com/mateer-t1/music-moments-api/pkg/clips/events/amqp"
	kafkaevents "github.com/mateer-t1/music-moments-api/pkg/clips/events/kafka"
	"github.com/mateer-t1/music-moments-api/pkg/clips/presigned"
	"github.com/mateer-t1/music-moments-api/pkg/clips/reconcile"
	repodynamo "github.com/mateer-t1/music-moments-api/pkg/clips/repo/dynamo"
	"github.com/mateer-t1/music-moments-api/pkg/clips/repo/memory"
	repopg "github.com/mateer-t1/music-moments-api/pkg/clips/repo/postgres"
	reporedis "github.com/mateer-t1/music-moments-api/pkg/clips/repo/redis"
	fsstorage "github.com/mateer-t1/music-moments-api/pkg/clips/storage/fs"
	memorystorage "github.com/mateer-t1/music-moments-api/pkg/clips/storage/memory"
	miniostorage "github.com/mateer-t1/music-moments-api/pkg/clips/storage/minio"
	s3storage "github.com/mateer-t1/music-moments-api/pkg/clips/storage/s3"
	"github.com/redis/go-redis/v9"
)

// Components holds everything BuildComponents wired together
type Components struct {
	Service    clips.Service
	Repository clips.Repository
	Store      clips.BlobStore
	EventSink  clips.EventSink

	// Signer is set when grants are served by the local /blobs handlers
	Signer *presigned.Signer

	Logger  *slog.Logger
	closers []func() error
}

// Reconciler returns a reconciler over the built components
func (c *Components) Reconciler() *reconcile.Reconciler {
	return reconcile.New(c.Service, c.Repository, c.Store, reconcile.WithLogger(c.Logger))
}

// Close releases connections opened by BuildComponents, most recent first
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// BuildService creates a Service instance from the server configuration.
// The returned close func releases the backend connections behind it.
func (c *ServerConfig) BuildService(ctx context.Context) (clips.Service, func() error, error) {
	comps, err := c.BuildComponents(ctx, NewLogger(c.Environment, c.LogLevel))
	if err != nil {
		return nil, nil, err
	}
	return comps.Service, comps.Close, nil
}

// BuildComponents creates the record store, object store, event sink and
// service. On error anything already opened is closed.
func (c *ServerConfig) BuildComponents(ctx context.Context, logger *slog.Logger) (_ *Components, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	comps := &Components{Logger: logger}
	defer func() {
		if err != nil {
			comps.Close()
		}
	}()

	repo, err := c.buildRepository(ctx, comps)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	comps.Repository = repo

	store, err := c.buildStorageBackend(comps)
	if err != nil {
		return nil, fmt.Errorf("failed to build storage backend %s: %w", c.StorageType, err)
	}
	comps.Store = store

	sink, err := c.buildEventSink(comps)
	if err != nil {
		return nil, fmt.Errorf("failed to build event sink %s: %w", c.EventsType, err)
	}
	comps.EventSink = sink

	svc, err := clips.New(
		clips.WithRepository(repo),
		clips.WithBlobStore(store),
		clips.WithEventSink(sink),
		clips.WithGrantTTLs(c.WriteGrantTTL, c.ReadGrantTTL),
		clips.WithMaxMutateAttempts(c.MaxMutateAttempts),
		clips.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	comps.Service = svc
	return comps, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context, comps *Components) (clips.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil

	case "postgres":
		pool, err := newPgxPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, err
		}
		comps.closers = append(comps.closers, func() error { pool.Close(); return nil })
		if err := pingPostgres(ctx, pool); err != nil {
			return nil, err
		}
		repo := repopg.NewWithPool(pool)
		if c.AutoMigrate {
			if err := repo.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		return repo, nil

	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.DynamoDB.Region))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load AWS config: %v", clips.ErrConfiguration, err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if c.DynamoDB.Endpoint != "" {
				o.BaseEndpoint = aws.String(c.DynamoDB.Endpoint)
			}
		})
		repo := repodynamo.New(client, c.DynamoDB.ClipsTable, c.DynamoDB.UsersTable)
		if c.AutoMigrate {
			if err := repo.EnsureTables(ctx); err != nil {
				return nil, err
			}
		}
		return repo, nil

	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{c.Redis.Addr},
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		comps.closers = append(comps.closers, client.Close)
		return reporedis.New(client), nil

	default:
		return nil, fmt.Errorf("%w: unsupported database type: %s", clips.ErrConfiguration, c.DatabaseType)
	}
}

func newPgxPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse DATABASE_URL: %v", clips.ErrConfiguration, err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// pingPostgres verifies connectivity with the configured search_path, so an
// unreachable database or a missing schema fails at start
func pingPostgres(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return clips.ClassifyBackendError("postgres", "database", "ping", fmt.Errorf("database ping failed: %w", err))
	}
	return nil
}

// buildStorageBackend creates a BlobStore based on the configuration
func (c *ServerConfig) buildStorageBackend(comps *Components) (clips.BlobStore, error) {
	switch c.StorageType {
	case "memory":
		comps.Signer = c.localSigner(comps.Logger)
		return memorystorage.New(memorystorage.Config{
			Container: c.StorageContainer,
			BaseURL:   c.BlobBaseURL,
			Signer:    comps.Signer,
		}), nil

	case "fs":
		comps.Signer = c.localSigner(comps.Logger)
		return fsstorage.New(fsstorage.Config{
			BaseDir:   c.FSBaseDir,
			Container: c.StorageContainer,
			BaseURL:   c.BlobBaseURL,
			Signer:    comps.Signer,
		})

	case "s3":
		cfg := s3storage.Config{
			Region:          c.S3.Region,
			Bucket:          c.StorageContainer,
			AccessKeyID:     c.S3.AccessKeyID,
			SecretAccessKey: c.S3.SecretAccessKey,
			Endpoint:        c.S3.Endpoint,
			UsePathStyle:    c.S3.UsePathStyle,
		}
		if c.S3.SSEAlgorithm != "" {
			cfg.EnableSSE = true
			cfg.SSEAlgorithm = c.S3.SSEAlgorithm
			cfg.SSEKMSKeyID = c.S3.SSEKMSKeyID
		}
		return s3storage.New(cfg)

	case "minio":
		return miniostorage.New(miniostorage.Config{
			Endpoint:  c.MinIO.Endpoint,
			AccessKey: c.MinIO.AccessKey,
			SecretKey: c.MinIO.SecretKey,
			Bucket:    c.StorageContainer,
			Region:    c.S3.Region,
			UseSSL:    c.MinIO.UseSSL,
		})

	default:
		return nil, fmt.Errorf("%w: unsupported storage backend type: %s", clips.ErrConfiguration, c.StorageType)
	}
}

// localSigner returns the signer for /blobs grants. Without a configured key
// a random one is used, so grants do not survive a restart.
func (c *ServerConfig) localSigner(logger *slog.Logger) *presigned.Signer {
	key := c.BlobSigningKey
	if key == "" {
		key = uuid.NewString()
		logger.Warn("BLOB_SIGNING_KEY not set, using a random key for this process")
	}
	return presigned.New(presigned.WithSecretKey(key))
}

// buildEventSink creates the EventSink for EventsType
func (c *ServerConfig) buildEventSink(comps *Components) (clips.EventSink, error) {
	switch c.EventsType {
	case "none":
		return clips.NewNoopEventSink(), nil

	case "log":
		return clips.NewLoggingEventSink(comps.Logger), nil

	case "amqp":
		pub, err := amqpevents.Dial(c.AMQP.URL, c.AMQP.Exchange)
		if err != nil {
			return nil, clips.ClassifyBackendError("amqp", c.AMQP.Exchange, "dial", err)
		}
		sink := events.NewSink(pub, events.DefaultSource)
		comps.closers = append(comps.closers, sink.Close)
		return sink, nil

	case "kafka":
		sink := events.NewSink(kafkaevents.NewPublisher(c.Kafka.Brokers, c.Kafka.Topic), events.DefaultSource)
		comps.closers = append(comps.closers, sink.Close)
		return sink, nil

	default:
		return nil, fmt.Errorf("%w: unsupported events type: %s", clips.ErrConfiguration, c.EventsType)
	}
}
