package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/mateer-t1/music-moments-api/pkg/clips"
)

// maxPresignExpiry is the SigV4 ceiling on X-Amz-Expires
const maxPresignExpiry = 7 * 24 * time.Hour

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm
}

// Backend is an S3-compatible implementation of the clips.BlobStore interface
type Backend struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	config        Config
	now           func() time.Time

	mu      sync.Mutex
	ensured bool
}

// New creates a new S3-compatible storage backend. No request is sent to
// S3 until the first storage operation.
func New(config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket name is required", clips.ErrConfiguration)
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		// Use provided credentials
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			config.AccessKeyID,
			config.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load AWS config: %v", clips.ErrConfiguration, err)
	}

	return NewFromConfig(awsCfg, config), nil
}

// NewFromConfig creates a backend from an already loaded AWS config
func NewFromConfig(awsCfg aws.Config, config Config) *Backend {
	var s3Options []func(*s3.Options)

	// Custom endpoint for S3-compatible services (MinIO, etc.)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)
	presignClient := s3.NewPresignClient(client, func(o *s3.PresignOptions) {
		o.Presigner = newSkewPresigner(clips.GrantClockSkew)
	})

	return &Backend{
		client:        client,
		presignClient: presignClient,
		bucket:        config.Bucket,
		config:        config,
		now:           time.Now,
	}
}

// skewPresigner backdates the SigV4 signing time so a grant becomes valid
// before it is issued. Callers extend Expires by the same amount.
type skewPresigner struct {
	signer *v4.Signer
	skew   time.Duration
}

func newSkewPresigner(skew time.Duration) *skewPresigner {
	return &skewPresigner{
		signer: v4.NewSigner(func(so *v4.SignerOptions) {
			so.DisableURIPathEscaping = true
		}),
		skew: skew,
	}
}

func (p *skewPresigner) PresignHTTP(
	ctx context.Context, credentials aws.Credentials, r *http.Request,
	payloadHash string, service string, region string, signingTime time.Time,
	optFns ...func(*v4.SignerOptions),
) (string, http.Header, error) {
	return p.signer.PresignHTTP(ctx, credentials, r, payloadHash, service, region, signingTime.Add(-p.skew), optFns...)
}

// EnsureContainer creates the bucket if it doesn't exist. Success is memoized.
func (b *Backend) EnsureContainer(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ensured {
		return nil
	}
	if err := b.createBucketIfNotExists(ctx); err != nil {
		return clips.ClassifyBackendError("s3", b.bucket, "ensure-container", err)
	}
	b.ensured = true
	return nil
}

// createBucketIfNotExists creates the bucket if it doesn't exist
func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err == nil {
		return nil
	}

	// Check if error indicates bucket doesn't exist (handle multiple error types for MinIO compatibility)
	if !isNotFound(err) && !strings.Contains(err.Error(), "BadRequest") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	}

	// Add location constraint for regions other than us-east-1
	if b.config.Region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}

	_, err = b.client.CreateBucket(ctx, createInput)
	if err != nil {
		// Racing creators are fine
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}

// IssueGrant presigns a PutObject (write-create) or GetObject (read) request.
// The URL is valid from GrantClockSkew before now until ttl after now.
func (b *Backend) IssueGrant(ctx context.Context, objectName string, perm clips.Permission, ttl time.Duration) (*clips.Grant, error) {
	expires := ttl + clips.GrantClockSkew
	if ttl <= 0 || expires > maxPresignExpiry {
		return nil, clips.NewValidationError("ttl", fmt.Sprintf("grant ttl must be between 1s and %s", maxPresignExpiry-clips.GrantClockSkew))
	}

	withExpiry := func(opts *s3.PresignOptions) {
		opts.Expires = expires
	}

	now := b.now().UTC()
	var (
		req *v4.PresignedHTTPRequest
		err error
	)
	switch perm {
	case clips.PermissionWriteCreate:
		input := &s3.PutObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(objectName),
		}
		b.applyEncryption(input)
		req, err = b.presignClient.PresignPutObject(ctx, input, withExpiry)
	case clips.PermissionRead:
		req, err = b.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(objectName),
		}, withExpiry)
	default:
		return nil, clips.NewValidationError("permission", "unknown permission "+string(perm))
	}
	if err != nil {
		// presigning is local; failures here are missing credentials or region
		return nil, fmt.Errorf("%w: failed to presign %s grant: %v", clips.ErrConfiguration, perm, err)
	}

	from, until := clips.GrantWindow(now, ttl)
	return &clips.Grant{
		URL:        req.URL,
		ObjectName: objectName,
		Permission: perm,
		ValidFrom:  from,
		ValidUntil: until,
	}, nil
}

// Put uploads content directly to S3
func (b *Backend) Put(ctx context.Context, objectName string, reader io.Reader, contentType string) error {
	uploader := manager.NewUploader(b.client)

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectName),
		Body:   reader,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	b.applyEncryption(input)

	if _, err := uploader.Upload(ctx, input); err != nil {
		return clips.ClassifyBackendError("s3", objectName, "put", fmt.Errorf("failed to upload to S3: %w", err))
	}
	return nil
}

// Get downloads content directly from S3
func (b *Backend) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectName),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, notFound(objectName, "get")
		}
		return nil, clips.ClassifyBackendError("s3", objectName, "get", err)
	}
	return result.Body, nil
}

// Stat retrieves metadata for an object in S3
func (b *Backend) Stat(ctx context.Context, objectName string) (*clips.ObjectInfo, error) {
	result, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectName),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, notFound(objectName, "stat")
		}
		return nil, clips.ClassifyBackendError("s3", objectName, "stat", err)
	}

	return &clips.ObjectInfo{
		Name:         objectName,
		Size:         aws.ToInt64(result.ContentLength),
		ContentType:  aws.ToString(result.ContentType),
		LastModified: aws.ToTime(result.LastModified),
	}, nil
}

// DeleteIfExists removes an object. S3 deletes are idempotent, so a HEAD
// first tells whether anything was there.
func (b *Backend) DeleteIfExists(ctx context.Context, objectName string) (bool, error) {
	existed := true
	if _, err := b.Stat(ctx, objectName); err != nil {
		if !errors.Is(err, clips.ErrNotFound) {
			return false, err
		}
		existed = false
	}

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectName),
	})
	if err != nil && !isNotFound(err) {
		return false, clips.ClassifyBackendError("s3", objectName, "delete", fmt.Errorf("failed to delete from S3: %w", err))
	}
	return existed, nil
}

// List pages through every object under prefix
func (b *Backend) List(ctx context.Context, prefix string) ([]clips.ObjectInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})

	var infos []clips.ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, clips.ClassifyBackendError("s3", prefix, "list", err)
		}
		for _, obj := range page.Contents {
			infos = append(infos, clips.ObjectInfo{
				Name:         aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return infos, nil
}

func (b *Backend) applyEncryption(input *s3.PutObjectInput) {
	if !b.config.EnableSSE {
		return
	}
	switch b.config.SSEAlgorithm {
	case "AES256":
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	case "aws:kms":
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if b.config.SSEKMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
		}
	}
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}

func notFound(objectName, op string) error {
	return &clips.StorageError{Backend: "s3", Name: objectName, Op: op, Err: clips.ErrNotFound}
}
