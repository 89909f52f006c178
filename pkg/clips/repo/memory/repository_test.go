package memory_test

import (
	"context"
	"testing"

	"github.com/mateer-t1/music-moments-api/pkg/clips"
	"github.com/mateer-t1/music-moments-api/pkg/clips/repo/memory"
	"github.com/mateer-t1/music-moments-api/pkg/clips/repo/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_Contract(t *testing.T) {
	repotest.Run(t, memory.New())
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	clip := repotest.NewClip("alice")
	require.NoError(t, repo.CreateClip(ctx, clip))

	// Mutating the caller's value must not reach the stored record
	clip.Title = "changed"
	clip.Likes = append(clip.Likes, "mallory")

	got, err := repo.GetClip(ctx, clip.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Test Clip", got.Title)
	assert.Empty(t, got.Likes)

	got.Views = 42
	again, err := repo.GetClip(ctx, clip.ID, "alice")
	require.NoError(t, err)
	assert.Zero(t, again.Views)
}

func TestMemoryRepository_ScanOrdered(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	first := repotest.NewClip("alice")
	second := repotest.NewClip("alice")
	second.CreatedAt = first.CreatedAt.Add(1)
	require.NoError(t, repo.CreateClip(ctx, second))
	require.NoError(t, repo.CreateClip(ctx, first))

	got, err := repo.ScanClips(ctx, clips.ClipFilter{OwnerID: "alice"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)
}
