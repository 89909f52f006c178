package s3

import (
	"context"
	"net/url"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/mateer-t1/music-moments-api/pkg/clips"
	"github.com/mateer-t1/music-moments-api/pkg/clips/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOfflineBackend(t *testing.T, config Config) *Backend {
	t.Helper()
	config.Region = "us-east-1"
	config.AccessKeyID = "test-key"
	config.SecretAccessKey = "test-secret"
	if config.Bucket == "" {
		config.Bucket = "videos"
	}
	backend, err := New(config)
	require.NoError(t, err)
	return backend
}

func TestS3Backend_BasicConfiguration(t *testing.T) {
	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, clips.ErrConfiguration)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("DefaultRegion", func(t *testing.T) {
		backend, err := New(Config{Bucket: "videos", AccessKeyID: "k", SecretAccessKey: "s"})
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", backend.config.Region)
	})
}

func TestS3Backend_IssueGrantWindow(t *testing.T) {
	backend := newOfflineBackend(t, Config{})
	ctx := context.Background()

	before := time.Now().UTC()
	grant, err := backend.IssueGrant(ctx, "alice/c1-video-clip.mp4", clips.PermissionWriteCreate, 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(grant.URL)
	require.NoError(t, err)
	q := u.Query()

	// SigV4 validity is [X-Amz-Date, X-Amz-Date+X-Amz-Expires]
	signedAt, err := time.Parse("20060102T150405Z", q.Get("X-Amz-Date"))
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(-clips.GrantClockSkew), signedAt, 2*time.Second)

	expires, err := strconv.Atoi(q.Get("X-Amz-Expires"))
	require.NoError(t, err)
	assert.Equal(t, int((15*time.Minute+clips.GrantClockSkew)/time.Second), expires)

	assert.Contains(t, u.Path, "alice/c1-video-clip.mp4")
	assert.Equal(t, grant.ValidFrom.Add(clips.GrantClockSkew+15*time.Minute), grant.ValidUntil)
	assert.Equal(t, clips.PermissionWriteCreate, grant.Permission)
}

func TestS3Backend_IssueGrantRead(t *testing.T) {
	backend := newOfflineBackend(t, Config{Endpoint: "http://localhost:9000", UsePathStyle: true})

	grant, err := backend.IssueGrant(context.Background(), "alice/c1-video-clip.mp4", clips.PermissionRead, time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(grant.URL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/videos/alice/c1-video-clip.mp4", u.Path)
	assert.Equal(t, "3660", u.Query().Get("X-Amz-Expires"))
}

func TestS3Backend_IssueGrantRejects(t *testing.T) {
	backend := newOfflineBackend(t, Config{})
	ctx := context.Background()

	_, err := backend.IssueGrant(ctx, "a/b", clips.PermissionRead, 0)
	assert.ErrorIs(t, err, clips.ErrValidation)

	_, err = backend.IssueGrant(ctx, "a/b", clips.PermissionRead, 7*24*time.Hour)
	assert.ErrorIs(t, err, clips.ErrValidation)

	_, err = backend.IssueGrant(ctx, "a/b", clips.Permission("x"), time.Hour)
	assert.ErrorIs(t, err, clips.ErrValidation)
}

func TestS3Backend_ServerSideEncryption(t *testing.T) {
	backend := newOfflineBackend(t, Config{EnableSSE: true, SSEAlgorithm: "aws:kms", SSEKMSKeyID: "key-1"})

	grant, err := backend.IssueGrant(context.Background(), "a/b-video-c.mp4", clips.PermissionWriteCreate, time.Minute)
	require.NoError(t, err)
	assert.Contains(t, grant.URL, "X-Amz-SignedHeaders")
}

// Requires TEST_S3_ENDPOINT pointing at an S3-compatible service such as MinIO
func TestS3Backend_Contract(t *testing.T) {
	endpoint := os.Getenv("TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_S3_ENDPOINT not set")
	}

	backend, err := New(Config{
		Region:          "us-east-1",
		Bucket:          "clips-test",
		AccessKeyID:     os.Getenv("TEST_S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("TEST_S3_SECRET_ACCESS_KEY"),
		Endpoint:        endpoint,
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	storagetest.Run(t, backend)
}
