package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mateer-t1/music-moments-api/pkg/clips"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// maxPresignExpiry is the largest expiry minio-go accepts
const maxPresignExpiry = 7 * 24 * time.Hour

// Config options for the MinIO backend
type Config struct {
	Endpoint  string // host:port, no scheme
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string // set to skip the bucket-location lookup before presigning
	UseSSL    bool
}

// Backend is a MinIO implementation of the clips.BlobStore interface
type Backend struct {
	client    *minio.Client
	bucket    string
	region    string
	hasSigner bool
	now       func() time.Time

	mu      sync.Mutex
	ensured bool
}

// New creates a MinIO client. No request is sent until the first operation.
func New(config Config) (*Backend, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("%w: minio endpoint is required", clips.ErrConfiguration)
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket name is required", clips.ErrConfiguration)
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize MinIO client: %v", clips.ErrConfiguration, err)
	}

	return &Backend{
		client:    client,
		bucket:    config.Bucket,
		region:    config.Region,
		hasSigner: config.AccessKey != "" && config.SecretKey != "",
		now:       time.Now,
	}, nil
}

// EnsureContainer creates the bucket if it doesn't exist. Success is memoized.
func (b *Backend) EnsureContainer(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ensured {
		return nil
	}

	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return clips.ClassifyBackendError("minio", b.bucket, "ensure-container", fmt.Errorf("failed to check bucket existence: %w", err))
	}
	if !exists {
		err = b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{Region: b.region})
		if err != nil {
			code := minio.ToErrorResponse(err).Code
			if code != "BucketAlreadyOwnedByYou" && code != "BucketAlreadyExists" {
				return clips.ClassifyBackendError("minio", b.bucket, "ensure-container", fmt.Errorf("failed to create bucket: %w", err))
			}
		}
	}

	b.ensured = true
	return nil
}

// IssueGrant presigns a PUT or GET URL. minio-go always signs at the
// current time, so ValidFrom is the issue time rather than backdated.
func (b *Backend) IssueGrant(ctx context.Context, objectName string, perm clips.Permission, ttl time.Duration) (*clips.Grant, error) {
	if !b.hasSigner {
		return nil, fmt.Errorf("%w: minio access key and secret are required to presign", clips.ErrConfiguration)
	}
	if ttl < time.Second || ttl > maxPresignExpiry {
		return nil, clips.NewValidationError("ttl", fmt.Sprintf("grant ttl must be between 1s and %s", maxPresignExpiry))
	}

	now := b.now().UTC()
	var signed string
	switch perm {
	case clips.PermissionWriteCreate:
		u, err := b.client.PresignedPutObject(ctx, b.bucket, objectName, ttl)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to presign upload: %v", clips.ErrConfiguration, err)
		}
		signed = u.String()
	case clips.PermissionRead:
		u, err := b.client.PresignedGetObject(ctx, b.bucket, objectName, ttl, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to presign download: %v", clips.ErrConfiguration, err)
		}
		signed = u.String()
	default:
		return nil, clips.NewValidationError("permission", "unknown permission "+string(perm))
	}

	return &clips.Grant{
		URL:        signed,
		ObjectName: objectName,
		Permission: perm,
		ValidFrom:  now,
		ValidUntil: now.Add(ttl),
	}, nil
}

// Put uploads an object of unknown size
func (b *Backend) Put(ctx context.Context, objectName string, reader io.Reader, contentType string) error {
	_, err := b.client.PutObject(ctx, b.bucket, objectName, reader, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return clips.ClassifyBackendError("minio", objectName, "put", fmt.Errorf("failed to upload object: %w", err))
	}
	return nil
}

// Get opens an object; the stat call surfaces a missing key before streaming
func (b *Backend) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, b.classify(objectName, "get", err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, b.classify(objectName, "get", err)
	}
	return obj, nil
}

// Stat retrieves object metadata
func (b *Backend) Stat(ctx context.Context, objectName string) (*clips.ObjectInfo, error) {
	stat, err := b.client.StatObject(ctx, b.bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		return nil, b.classify(objectName, "stat", err)
	}
	return &clips.ObjectInfo{
		Name:         stat.Key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		LastModified: stat.LastModified,
	}, nil
}

// DeleteIfExists stats then removes; RemoveObject alone succeeds for missing keys
func (b *Backend) DeleteIfExists(ctx context.Context, objectName string) (bool, error) {
	existed := true
	if _, err := b.Stat(ctx, objectName); err != nil {
		if !errors.Is(err, clips.ErrNotFound) {
			return false, err
		}
		existed = false
	}

	if err := b.client.RemoveObject(ctx, b.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return false, b.classify(objectName, "delete", err)
	}
	return existed, nil
}

// List returns every object under prefix
func (b *Backend) List(ctx context.Context, prefix string) ([]clips.ObjectInfo, error) {
	var infos []clips.ObjectInfo
	for object := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, b.classify(prefix, "list", object.Err)
		}
		infos = append(infos, clips.ObjectInfo{
			Name:         object.Key,
			Size:         object.Size,
			ContentType:  object.ContentType,
			LastModified: object.LastModified,
		})
	}
	return infos, nil
}

func (b *Backend) classify(name, op string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return &clips.StorageError{Backend: "minio", Name: name, Op: op, Err: clips.ErrNotFound}
	}
	return clips.ClassifyBackendError("minio", name, op, err)
}
