// Package repotest holds the behavioural checks every clips.Repository
// implementation must pass.
package repotest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mateer-t1/music-moments-api/pkg/clips"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewClip returns a pending clip owned by ownerID with a fresh id
func NewClip(ownerID string) *clips.Clip {
	id := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &clips.Clip{
		ID:              id,
		OwnerID:         ownerID,
		Title:           "Test Clip",
		Genre:           clips.DefaultGenre,
		Status:          clips.ClipStatusPendingUpload,
		VideoObjectName: ownerID + "/" + id + "-video-clip.mp4",
		Likes:           []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Run exercises repo against the clips.Repository contract. Owner ids are
// randomised so the suite can run against shared databases.
func Run(t *testing.T, repo clips.Repository) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		clip := NewClip(uuid.NewString())
		thumb := clip.OwnerID + "/" + clip.ID + "-thumbnail-thumbnail.jpg"
		clip.ThumbnailObjectName = &thumb
		require.NoError(t, repo.CreateClip(ctx, clip))

		got, err := repo.GetClip(ctx, clip.ID, clip.OwnerID)
		require.NoError(t, err)
		assert.Equal(t, clip.ID, got.ID)
		assert.Equal(t, clip.OwnerID, got.OwnerID)
		assert.Equal(t, clip.VideoObjectName, got.VideoObjectName)
		require.NotNil(t, got.ThumbnailObjectName)
		assert.Equal(t, thumb, *got.ThumbnailObjectName)
		assert.NotNil(t, got.Likes)
		assert.Empty(t, got.Likes)
		assert.True(t, clip.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		clip := NewClip(uuid.NewString())
		require.NoError(t, repo.CreateClip(ctx, clip))
		err := repo.CreateClip(ctx, clip)
		assert.ErrorIs(t, err, clips.ErrConflict)
	})

	t.Run("GetWrongOwner", func(t *testing.T) {
		clip := NewClip(uuid.NewString())
		require.NoError(t, repo.CreateClip(ctx, clip))
		_, err := repo.GetClip(ctx, clip.ID, uuid.NewString())
		assert.ErrorIs(t, err, clips.ErrNotFound)
	})

	t.Run("SeparatorInOwnerOrID", func(t *testing.T) {
		prefix := uuid.NewString()
		clip := NewClip(prefix + ":b")
		clip.ID = "c"
		require.NoError(t, repo.CreateClip(ctx, clip))

		_, err := repo.GetClip(ctx, "b:c", prefix)
		assert.ErrorIs(t, err, clips.ErrNotFound)

		alias := clip.Clone()
		alias.ID = "b:c"
		alias.OwnerID = prefix
		err = repo.ReplaceClip(ctx, alias, clip.Version)
		assert.ErrorIs(t, err, clips.ErrNotFound)

		err = repo.DeleteClip(ctx, "b:c", prefix)
		assert.ErrorIs(t, err, clips.ErrNotFound)

		got, err := repo.GetClip(ctx, "c", prefix+":b")
		require.NoError(t, err)
		assert.Equal(t, prefix+":b", got.OwnerID)
	})

	t.Run("ReplaceBumpsVersion", func(t *testing.T) {
		clip := NewClip(uuid.NewString())
		require.NoError(t, repo.CreateClip(ctx, clip))

		stored, err := repo.GetClip(ctx, clip.ID, clip.OwnerID)
		require.NoError(t, err)
		stored.Views++
		stored.Likes = append(stored.Likes, "carol")
		require.NoError(t, repo.ReplaceClip(ctx, stored, stored.Version))
		assert.Equal(t, clip.Version+1, stored.Version)

		got, err := repo.GetClip(ctx, clip.ID, clip.OwnerID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Views)
		assert.Equal(t, []string{"carol"}, got.Likes)
		assert.Equal(t, stored.Version, got.Version)
	})

	t.Run("ReplaceStaleVersion", func(t *testing.T) {
		clip := NewClip(uuid.NewString())
		require.NoError(t, repo.CreateClip(ctx, clip))

		first, err := repo.GetClip(ctx, clip.ID, clip.OwnerID)
		require.NoError(t, err)
		second := first.Clone()

		first.Views = 1
		require.NoError(t, repo.ReplaceClip(ctx, first, first.Version))

		second.Views = 100
		err = repo.ReplaceClip(ctx, second, second.Version)
		assert.ErrorIs(t, err, clips.ErrConflict)

		got, err := repo.GetClip(ctx, clip.ID, clip.OwnerID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Views)
	})

	t.Run("ReplaceMissing", func(t *testing.T) {
		clip := NewClip(uuid.NewString())
		err := repo.ReplaceClip(ctx, clip, 0)
		assert.ErrorIs(t, err, clips.ErrNotFound)
	})

	t.Run("ConcurrentReplaceOnlyOneWins", func(t *testing.T) {
		clip := NewClip(uuid.NewString())
		require.NoError(t, repo.CreateClip(ctx, clip))
		base, err := repo.GetClip(ctx, clip.ID, clip.OwnerID)
		require.NoError(t, err)

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c := base.Clone()
				c.Views++
				if err := repo.ReplaceClip(ctx, c, base.Version); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, succeeded)
	})

	t.Run("Delete", func(t *testing.T) {
		clip := NewClip(uuid.NewString())
		require.NoError(t, repo.CreateClip(ctx, clip))
		require.NoError(t, repo.DeleteClip(ctx, clip.ID, clip.OwnerID))

		_, err := repo.GetClip(ctx, clip.ID, clip.OwnerID)
		assert.ErrorIs(t, err, clips.ErrNotFound)

		err = repo.DeleteClip(ctx, clip.ID, clip.OwnerID)
		assert.ErrorIs(t, err, clips.ErrNotFound)
	})

	t.Run("ScanByOwnerAndStatus", func(t *testing.T) {
		owner := uuid.NewString()
		a := NewClip(owner)
		b := NewClip(owner)
		b.Status = clips.ClipStatusReady
		other := NewClip(uuid.NewString())
		for _, c := range []*clips.Clip{a, b, other} {
			require.NoError(t, repo.CreateClip(ctx, c))
		}

		mine, err := repo.ScanClips(ctx, clips.ClipFilter{OwnerID: owner})
		require.NoError(t, err)
		assert.Len(t, mine, 2)

		ready, err := repo.ScanClips(ctx, clips.ClipFilter{OwnerID: owner, Status: clips.ClipStatusReady})
		require.NoError(t, err)
		require.Len(t, ready, 1)
		assert.Equal(t, b.ID, ready[0].ID)

		all, err := repo.ScanClips(ctx, clips.ClipFilter{})
		require.NoError(t, err)
		ids := make(map[string]bool, len(all))
		for _, c := range all {
			ids[c.ID] = true
		}
		assert.True(t, ids[a.ID])
		assert.True(t, ids[other.ID])
	})

	t.Run("ScanCreatedBefore", func(t *testing.T) {
		owner := uuid.NewString()
		old := NewClip(owner)
		old.CreatedAt = old.CreatedAt.Add(-2 * time.Hour)
		fresh := NewClip(owner)
		require.NoError(t, repo.CreateClip(ctx, old))
		require.NoError(t, repo.CreateClip(ctx, fresh))

		got, err := repo.ScanClips(ctx, clips.ClipFilter{OwnerID: owner, CreatedBefore: time.Now().Add(-time.Hour)})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, old.ID, got[0].ID)
	})

	t.Run("Users", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Millisecond)
		user := &clips.User{ID: uuid.NewString(), Username: "bob", CreatedAt: now, LastLoginAt: now}
		require.NoError(t, repo.CreateUser(ctx, user))
		assert.ErrorIs(t, repo.CreateUser(ctx, user), clips.ErrConflict)

		got, err := repo.GetUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "bob", got.Username)

		got.LastLoginAt = now.Add(time.Minute)
		require.NoError(t, repo.ReplaceUser(ctx, got, got.Version))
		assert.Equal(t, user.Version+1, got.Version)

		stale := user.Clone()
		assert.ErrorIs(t, repo.ReplaceUser(ctx, stale, stale.Version), clips.ErrConflict)

		_, err = repo.GetUser(ctx, uuid.NewString())
		assert.ErrorIs(t, err, clips.ErrNotFound)
	})
}
