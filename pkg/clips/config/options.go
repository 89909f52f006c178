package config

import (
	"fmt"
	"slices"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the record store backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if !slices.Contains(databaseTypes, dbType) {
			return fmt.Errorf("database type must be one of %v, got: %s", databaseTypes, dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithMemoryStorage selects the in-memory object store
func WithMemoryStorage(container string) Option {
	return func(c *ServerConfig) error {
		c.StorageType = "memory"
		if container != "" {
			c.StorageContainer = container
		}
		return nil
	}
}

// WithFilesystemStorage selects the filesystem object store
func WithFilesystemStorage(baseDir, container string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.StorageType = "fs"
		c.FSBaseDir = baseDir
		if container != "" {
			c.StorageContainer = container
		}
		return nil
	}
}

// WithS3Storage selects the S3 object store with the given bucket
func WithS3Storage(bucket string, s3 S3Config) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		c.StorageType = "s3"
		c.StorageContainer = bucket
		c.S3 = s3
		return nil
	}
}

// WithMinIOStorage selects the MinIO object store with the given bucket
func WithMinIOStorage(bucket string, minio MinIOConfig) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("MinIO bucket cannot be empty")
		}
		if minio.Endpoint == "" {
			return fmt.Errorf("MinIO endpoint cannot be empty")
		}
		c.StorageType = "minio"
		c.StorageContainer = bucket
		c.MinIO = minio
		return nil
	}
}

// WithBlobSigning sets the base URL and key for locally served grants
func WithBlobSigning(baseURL, key string) Option {
	return func(c *ServerConfig) error {
		if baseURL != "" {
			c.BlobBaseURL = baseURL
		}
		c.BlobSigningKey = key
		return nil
	}
}

// WithGrantTTLs sets the write-create and read grant lifetimes
func WithGrantTTLs(write, read time.Duration) Option {
	return func(c *ServerConfig) error {
		if write <= 0 || read <= 0 {
			return fmt.Errorf("grant TTLs must be positive")
		}
		c.WriteGrantTTL = write
		c.ReadGrantTTL = read
		return nil
	}
}

// WithEvents selects the event transport: none, log, amqp or kafka
func WithEvents(eventsType string) Option {
	return func(c *ServerConfig) error {
		if !slices.Contains(eventsTypes, eventsType) {
			return fmt.Errorf("events type must be one of %v, got: %s", eventsTypes, eventsType)
		}
		c.EventsType = eventsType
		return nil
	}
}
