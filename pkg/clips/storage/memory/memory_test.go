package memory_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/mateer-t1/music-moments-api/pkg/clips"
	"github.com/mateer-t1/music-moments-api/pkg/clips/presigned"
	"github.com/mateer-t1/music-moments-api/pkg/clips/storage/memory"
	"github.com/mateer-t1/music-moments-api/pkg/clips/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_Contract(t *testing.T) {
	storagetest.Run(t, memory.New(memory.Config{Container: "videos"}))
}

func TestMemoryBackend_EnsureContainerRequiresName(t *testing.T) {
	err := memory.New(memory.Config{}).EnsureContainer(context.Background())
	assert.ErrorIs(t, err, clips.ErrConfiguration)
}

func TestMemoryBackend_IssueGrant(t *testing.T) {
	ctx := context.Background()

	t.Run("WithoutSigner", func(t *testing.T) {
		_, err := memory.New(memory.Config{Container: "videos"}).IssueGrant(ctx, "a/b-video-c.mp4", clips.PermissionRead, time.Hour)
		assert.ErrorIs(t, err, clips.ErrConfiguration)
	})

	t.Run("Signed", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		signer := presigned.New(presigned.WithSecretKey("k"), presigned.WithClock(func() time.Time { return now }))
		store := memory.New(memory.Config{Container: "videos", BaseURL: "http://localhost:8080", Signer: signer})

		grant, err := store.IssueGrant(ctx, "a/b-video-c.mp4", clips.PermissionRead, time.Hour)
		require.NoError(t, err)
		assert.Contains(t, grant.URL, "http://localhost:8080/blobs/videos/a/b-video-c.mp4?")
		assert.Equal(t, now.Add(-clips.GrantClockSkew), grant.ValidFrom)
		assert.Equal(t, now.Add(time.Hour), grant.ValidUntil)
	})
}

func TestMemoryBackend_DefaultContentType(t *testing.T) {
	ctx := context.Background()
	store := memory.New(memory.Config{Container: "videos"})
	require.NoError(t, store.Put(ctx, "a/x", bytes.NewReader([]byte("abc")), ""))

	info, err := store.Stat(ctx, "a/x")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", info.ContentType)
}
