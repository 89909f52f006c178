// Package storagetest holds the behavioural checks every clips.BlobStore
// implementation must pass.
package storagetest

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/mateer-t1/music-moments-api/pkg/clips"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises store against the clips.BlobStore contract. Object names are
// placed under a random owner prefix.
func Run(t *testing.T, store clips.BlobStore) {
	ctx := context.Background()
	require.NoError(t, store.EnsureContainer(ctx))
	// idempotent
	require.NoError(t, store.EnsureContainer(ctx))

	owner := uuid.NewString()
	video := owner + "/c1-video-clip.mp4"
	thumb := owner + "/c1-thumbnail-thumbnail.jpg"

	t.Run("PutGetStat", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, video, bytes.NewReader([]byte("video bytes")), "video/mp4"))

		rc, err := store.Get(ctx, video)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, rc.Close())
		require.NoError(t, err)
		assert.Equal(t, "video bytes", string(data))

		info, err := store.Stat(ctx, video)
		require.NoError(t, err)
		assert.Equal(t, video, info.Name)
		assert.Equal(t, int64(len("video bytes")), info.Size)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, video, bytes.NewReader([]byte("v2")), "video/mp4"))
		info, err := store.Stat(ctx, video)
		require.NoError(t, err)
		assert.Equal(t, int64(2), info.Size)
	})

	t.Run("MissingObject", func(t *testing.T) {
		_, err := store.Get(ctx, owner+"/nope-video-x.mp4")
		assert.ErrorIs(t, err, clips.ErrNotFound)
		_, err = store.Stat(ctx, owner+"/nope-video-x.mp4")
		assert.ErrorIs(t, err, clips.ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, thumb, bytes.NewReader([]byte("jpg")), "image/jpeg"))

		infos, err := store.List(ctx, owner+"/")
		require.NoError(t, err)
		names := make([]string, 0, len(infos))
		for _, info := range infos {
			names = append(names, info.Name)
		}
		assert.ElementsMatch(t, []string{video, thumb}, names)

		none, err := store.List(ctx, uuid.NewString()+"/")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("DeleteIfExists", func(t *testing.T) {
		existed, err := store.DeleteIfExists(ctx, video)
		require.NoError(t, err)
		assert.True(t, existed)

		existed, err = store.DeleteIfExists(ctx, video)
		require.NoError(t, err)
		assert.False(t, existed)

		_, err = store.Stat(ctx, video)
		assert.ErrorIs(t, err, clips.ErrNotFound)

		_, err = store.DeleteIfExists(ctx, thumb)
		require.NoError(t, err)
	})
}
