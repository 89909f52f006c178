package minio

import (
	"context"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/mateer-t1/music-moments-api/pkg/clips"
	"github.com/mateer-t1/music-moments-api/pkg/clips/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinioBackend_New(t *testing.T) {
	_, err := New(Config{Bucket: "videos"})
	assert.ErrorIs(t, err, clips.ErrConfiguration)

	_, err = New(Config{Endpoint: "localhost:9000"})
	assert.ErrorIs(t, err, clips.ErrConfiguration)
}

func TestMinioBackend_IssueGrant(t *testing.T) {
	backend, err := New(Config{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "videos",
	})
	require.NoError(t, err)
	ctx := context.Background()

	grant, err := backend.IssueGrant(ctx, "alice/c1-video-clip.mp4", clips.PermissionWriteCreate, 15*time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(grant.URL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.Equal(t, 15*time.Minute, grant.ValidUntil.Sub(grant.ValidFrom))

	_, err = backend.IssueGrant(ctx, "a/b", clips.PermissionRead, 8*24*time.Hour)
	assert.ErrorIs(t, err, clips.ErrValidation)
}

func TestMinioBackend_IssueGrantWithoutKeys(t *testing.T) {
	backend, err := New(Config{Endpoint: "localhost:9000", Bucket: "videos"})
	require.NoError(t, err)
	_, err = backend.IssueGrant(context.Background(), "a/b", clips.PermissionRead, time.Hour)
	assert.ErrorIs(t, err, clips.ErrConfiguration)
}

// Requires TEST_MINIO_ENDPOINT (host:port) of a disposable MinIO server
func TestMinioBackend_Contract(t *testing.T) {
	endpoint := os.Getenv("TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_MINIO_ENDPOINT not set")
	}

	backend, err := New(Config{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("TEST_MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("TEST_MINIO_SECRET_KEY"),
		Bucket:    "clips-test",
	})
	require.NoError(t, err)
	storagetest.Run(t, backend)
}
