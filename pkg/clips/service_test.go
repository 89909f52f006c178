package clips_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mateer-t1/music-moments-api/pkg/clips"
	"github.com/mateer-t1/music-moments-api/pkg/clips/presigned"
	"github.com/mateer-t1/music-moments-api/pkg/clips/repo/memory"
	memorystorage "github.com/mateer-t1/music-moments-api/pkg/clips/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records every call made against a BlobStore
type countingStore struct {
	clips.BlobStore
	calls     atomic.Int64
	deleteErr map[string]error
}

func (c *countingStore) EnsureContainer(ctx context.Context) error {
	c.calls.Add(1)
	return c.BlobStore.EnsureContainer(ctx)
}

func (c *countingStore) IssueGrant(ctx context.Context, name string, perm clips.Permission, ttl time.Duration) (*clips.Grant, error) {
	c.calls.Add(1)
	return c.BlobStore.IssueGrant(ctx, name, perm, ttl)
}

func (c *countingStore) Put(ctx context.Context, name string, r io.Reader, contentType string) error {
	c.calls.Add(1)
	return c.BlobStore.Put(ctx, name, r, contentType)
}

func (c *countingStore) Stat(ctx context.Context, name string) (*clips.ObjectInfo, error) {
	c.calls.Add(1)
	return c.BlobStore.Stat(ctx, name)
}

func (c *countingStore) DeleteIfExists(ctx context.Context, name string) (bool, error) {
	c.calls.Add(1)
	if err := c.deleteErr[name]; err != nil {
		return false, err
	}
	return c.BlobStore.DeleteIfExists(ctx, name)
}

// conflictRepo fails the first n clip replaces with ErrConflict
type conflictRepo struct {
	clips.Repository
	mu        sync.Mutex
	conflicts int
	replaces  int
}

func (r *conflictRepo) ReplaceClip(ctx context.Context, clip *clips.Clip, expected int64) error {
	r.mu.Lock()
	r.replaces++
	if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return &clips.ClipError{ClipID: clip.ID, OwnerID: clip.OwnerID, Op: "replace", Err: clips.ErrConflict}
	}
	r.mu.Unlock()
	return r.Repository.ReplaceClip(ctx, clip, expected)
}

type recordingSink struct {
	clips.NoopEventSink
	mu            sync.Mutex
	created       []string
	deleted       []string
	deleteFailure []string
}

func (s *recordingSink) ClipCreated(ctx context.Context, clip *clips.Clip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, clip.ID)
	return nil
}

func (s *recordingSink) ClipDeleted(ctx context.Context, clip *clips.Clip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, clip.ID)
	return nil
}

func (s *recordingSink) ObjectDeleteFailed(ctx context.Context, clip *clips.Clip, name string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteFailure = append(s.deleteFailure, name)
	return nil
}

type fixture struct {
	svc   clips.Service
	repo  *memory.Repository
	store *countingStore
	sink  *recordingSink
}

func newFixture(t *testing.T, opts ...clips.Option) *fixture {
	t.Helper()
	signer := presigned.New(presigned.WithSecretKey("test-secret-key"))
	f := &fixture{
		repo: memory.New(),
		store: &countingStore{BlobStore: memorystorage.New(memorystorage.Config{
			Container: "videos",
			BaseURL:   "http://localhost:8080",
			Signer:    signer,
		})},
		sink: &recordingSink{},
	}
	base := []clips.Option{
		clips.WithRepository(f.repo),
		clips.WithBlobStore(f.store),
		clips.WithEventSink(f.sink),
	}
	svc, err := clips.New(append(base, opts...)...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) create(t *testing.T, owner string, thumbnail string) *clips.CreateClipResult {
	t.Helper()
	res, err := f.svc.CreateClip(context.Background(), clips.CreateClipRequest{
		Title:             "Demo",
		OwnerID:           owner,
		VideoFileName:     "clip.mp4",
		ThumbnailFileName: thumbnail,
	})
	require.NoError(t, err)
	return res
}

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []clips.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			expectError: true,
		},
		{
			name:        "repository without blob store should fail",
			options:     []clips.Option{clips.WithRepository(memory.New())},
			expectError: true,
		},
		{
			name: "with repository and blob store should succeed",
			options: []clips.Option{
				clips.WithRepository(memory.New()),
				clips.WithBlobStore(memorystorage.New(memorystorage.Config{Container: "videos"})),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := clips.New(tt.options...)
			if tt.expectError {
				assert.ErrorIs(t, err, clips.ErrConfiguration)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestCreateClip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.create(t, "alice", "")
	clip := res.Clip
	assert.Equal(t, "alice/"+clip.ID+"-video-clip.mp4", clip.VideoObjectName)
	assert.Nil(t, clip.ThumbnailObjectName)
	assert.Equal(t, clips.ClipStatusPendingUpload, clip.Status)
	assert.Equal(t, clips.DefaultGenre, clip.Genre)
	require.NotNil(t, res.VideoUpload)
	assert.Equal(t, clips.PermissionWriteCreate, res.VideoUpload.Permission)
	assert.Equal(t, clips.DefaultWriteGrantTTL+clips.GrantClockSkew, res.VideoUpload.ValidUntil.Sub(res.VideoUpload.ValidFrom))
	assert.Nil(t, res.ThumbnailUpload)
	assert.Equal(t, []string{clip.ID}, f.sink.created)

	got, err := f.svc.GetClip(ctx, clip.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, clips.ClipStatusPendingUpload, got.Status)
	assert.NotEmpty(t, got.VideoObjectName)
	assert.Zero(t, got.Views)
	assert.Equal(t, []string{}, got.Likes)
}

func TestCreateClip_WithThumbnail(t *testing.T) {
	f := newFixture(t)

	res := f.create(t, "alice", "cover art.png")
	require.NotNil(t, res.Clip.ThumbnailObjectName)
	assert.Equal(t, "alice/"+res.Clip.ID+"-thumbnail-cover_art.png", *res.Clip.ThumbnailObjectName)
	require.NotNil(t, res.ThumbnailUpload)
	assert.Equal(t, *res.Clip.ThumbnailObjectName, res.ThumbnailUpload.ObjectName)

	// a thumbnail name that sanitizes to nothing falls back to the placeholder
	res = f.create(t, "alice", "!!!")
	require.NotNil(t, res.Clip.ThumbnailObjectName)
	assert.Equal(t, "alice/"+res.Clip.ID+"-thumbnail-thumbnail.jpg", *res.Clip.ThumbnailObjectName)
}

func TestCreateClip_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name  string
		req   clips.CreateClipRequest
		field string
	}{
		{"MissingTitle", clips.CreateClipRequest{OwnerID: "alice", VideoFileName: "a.mp4"}, "title"},
		{"BlankTitle", clips.CreateClipRequest{Title: "  ", OwnerID: "alice", VideoFileName: "a.mp4"}, "title"},
		{"MissingOwner", clips.CreateClipRequest{Title: "t", VideoFileName: "a.mp4"}, "userId"},
		{"OwnerWithSlash", clips.CreateClipRequest{Title: "t", OwnerID: "a/b", VideoFileName: "a.mp4"}, "userId"},
		{"MissingVideo", clips.CreateClipRequest{Title: "t", OwnerID: "alice"}, "videoFileName"},
		{"VideoSanitizesEmpty", clips.CreateClipRequest{Title: "t", OwnerID: "alice", VideoFileName: "!!!"}, "videoFileName"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateClip(context.Background(), tt.req)
			require.ErrorIs(t, err, clips.ErrValidation)
			var verr *clips.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Zero(t, f.store.calls.Load())
}

func TestCreateClip_GrantFailureLeavesPendingRecord(t *testing.T) {
	repo := memory.New()
	// no signer: persistence succeeds, grant issuance fails
	svc, err := clips.New(
		clips.WithRepository(repo),
		clips.WithBlobStore(memorystorage.New(memorystorage.Config{Container: "videos"})),
	)
	require.NoError(t, err)

	_, err = svc.CreateClip(context.Background(), clips.CreateClipRequest{Title: "t", OwnerID: "alice", VideoFileName: "a.mp4"})
	require.ErrorIs(t, err, clips.ErrConfiguration)

	left, err := repo.ScanClips(context.Background(), clips.ClipFilter{OwnerID: "alice"})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, clips.ClipStatusPendingUpload, left[0].Status)
}

func TestGetPlayback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plain := f.create(t, "alice", "")
	pb, err := f.svc.GetPlayback(ctx, plain.Clip.ID, "alice")
	require.NoError(t, err)
	require.NotNil(t, pb.Video)
	assert.Equal(t, clips.PermissionRead, pb.Video.Permission)
	assert.Nil(t, pb.Thumbnail)

	withThumb := f.create(t, "alice", "t.jpg")
	pb, err = f.svc.GetPlayback(ctx, withThumb.Clip.ID, "alice")
	require.NoError(t, err)
	require.NotNil(t, pb.Thumbnail)
	assert.Equal(t, *withThumb.Clip.ThumbnailObjectName, pb.Thumbnail.ObjectName)

	_, err = f.svc.GetPlayback(ctx, plain.Clip.ID, "bob")
	assert.ErrorIs(t, err, clips.ErrNotFound)
}

func TestListClips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "alice", "")
	f.create(t, "alice", "")
	f.create(t, "bob", "")

	mine, err := f.svc.ListClips(ctx, clips.ListClipsRequest{OwnerID: "alice"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := f.svc.ListClips(ctx, clips.ListClipsRequest{All: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = f.svc.ListClips(ctx, clips.ListClipsRequest{})
	assert.ErrorIs(t, err, clips.ErrValidation)
}

func TestUpdateClip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.create(t, "alice", "")
	id := res.Clip.ID

	title := "Renamed"
	uploaded := clips.ClipStatusUploaded
	updated, err := f.svc.UpdateClip(ctx, clips.UpdateClipRequest{
		ID: id, OwnerID: "alice",
		Patch: clips.ClipPatch{Title: &title, Status: &uploaded},
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, clips.ClipStatusUploaded, updated.Status)
	assert.Equal(t, res.Clip.VideoObjectName, updated.VideoObjectName)
	assert.Equal(t, res.Clip.Version+1, updated.Version)
	assert.False(t, updated.UpdatedAt.Before(res.Clip.UpdatedAt))

	t.Run("InvalidTransition", func(t *testing.T) {
		pending := clips.ClipStatusPendingUpload
		_, err := f.svc.UpdateClip(ctx, clips.UpdateClipRequest{ID: id, OwnerID: "alice", Patch: clips.ClipPatch{Status: &pending}})
		assert.ErrorIs(t, err, clips.ErrInvalidStatusTransition)
	})

	t.Run("UnknownStatus", func(t *testing.T) {
		bogus := clips.ClipStatus("published")
		_, err := f.svc.UpdateClip(ctx, clips.UpdateClipRequest{ID: id, OwnerID: "alice", Patch: clips.ClipPatch{Status: &bogus}})
		assert.ErrorIs(t, err, clips.ErrValidation)
	})

	t.Run("VideoNameImmutable", func(t *testing.T) {
		other := "alice/other-video-x.mp4"
		_, err := f.svc.UpdateClip(ctx, clips.UpdateClipRequest{ID: id, OwnerID: "alice", Patch: clips.ClipPatch{VideoObjectName: &other}})
		assert.ErrorIs(t, err, clips.ErrValidation)
	})

	t.Run("ForeignThumbnail", func(t *testing.T) {
		foreign := "bob/" + id + "-thumbnail-x.jpg"
		_, err := f.svc.UpdateClip(ctx, clips.UpdateClipRequest{ID: id, OwnerID: "alice", Patch: clips.ClipPatch{ThumbnailObjectName: &foreign}})
		assert.ErrorIs(t, err, clips.ErrValidation)
	})

	t.Run("SetAndClearThumbnail", func(t *testing.T) {
		thumb := "alice/" + id + "-thumbnail-cover.jpg"
		got, err := f.svc.UpdateClip(ctx, clips.UpdateClipRequest{ID: id, OwnerID: "alice", Patch: clips.ClipPatch{ThumbnailObjectName: &thumb}})
		require.NoError(t, err)
		require.NotNil(t, got.ThumbnailObjectName)
		assert.Equal(t, thumb, *got.ThumbnailObjectName)

		empty := ""
		got, err = f.svc.UpdateClip(ctx, clips.UpdateClipRequest{ID: id, OwnerID: "alice", Patch: clips.ClipPatch{ThumbnailObjectName: &empty}})
		require.NoError(t, err)
		assert.Nil(t, got.ThumbnailObjectName)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := f.svc.UpdateClip(ctx, clips.UpdateClipRequest{ID: "nope", OwnerID: "alice", Patch: clips.ClipPatch{Title: &title}})
		assert.ErrorIs(t, err, clips.ErrNotFound)
	})
}

func TestDeleteClip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.create(t, "alice", "t.jpg")
	clip := res.Clip
	require.NoError(t, f.store.Put(ctx, clip.VideoObjectName, bytes.NewReader([]byte("v")), "video/mp4"))

	out, err := f.svc.DeleteClip(ctx, clip.ID, "alice")
	require.NoError(t, err)
	assert.True(t, out.Deleted)
	// the thumbnail was never uploaded; deleting it is still a success
	assert.ElementsMatch(t, []string{clip.VideoObjectName, *clip.ThumbnailObjectName}, out.DeletedBlobs)
	assert.Empty(t, out.FailedBlobs)

	_, err = f.store.Stat(ctx, clip.VideoObjectName)
	assert.ErrorIs(t, err, clips.ErrNotFound)
	_, err = f.svc.GetClip(ctx, clip.ID, "alice")
	assert.ErrorIs(t, err, clips.ErrNotFound)
	assert.Equal(t, []string{clip.ID}, f.sink.deleted)
}

func TestDeleteClip_MissingMakesNoStoreCalls(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.DeleteClip(context.Background(), "does-not-exist", "alice")
	assert.ErrorIs(t, err, clips.ErrNotFound)
	assert.Zero(t, f.store.calls.Load())
}

func TestDeleteClip_PartialBlobFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.create(t, "alice", "t.jpg")
	clip := res.Clip
	f.store.deleteErr = map[string]error{*clip.ThumbnailObjectName: errors.New("storage down")}

	out, err := f.svc.DeleteClip(ctx, clip.ID, "alice")
	require.NoError(t, err)
	assert.True(t, out.Deleted)
	assert.Equal(t, []string{clip.VideoObjectName}, out.DeletedBlobs)
	assert.Equal(t, []string{*clip.ThumbnailObjectName}, out.FailedBlobs)
	assert.Equal(t, []string{*clip.ThumbnailObjectName}, f.sink.deleteFailure)

	_, err = f.svc.GetClip(ctx, clip.ID, "alice")
	assert.ErrorIs(t, err, clips.ErrNotFound)
}

func TestClipOperations_OwnerWhitespace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clip := f.create(t, " alice ", "").Clip
	require.Equal(t, "alice", clip.OwnerID)

	got, err := f.svc.GetClip(ctx, clip.ID, " alice ")
	require.NoError(t, err)
	assert.Equal(t, clip.ID, got.ID)

	title := "Renamed"
	updated, err := f.svc.UpdateClip(ctx, clips.UpdateClipRequest{
		ID:      " " + clip.ID,
		OwnerID: "alice ",
		Patch:   clips.ClipPatch{Title: &title},
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)

	views, err := f.svc.RecordView(ctx, clip.ID, "alice ")
	require.NoError(t, err)
	assert.Equal(t, int64(1), views)

	liked, err := f.svc.ToggleLike(ctx, clip.ID, " alice", "bob")
	require.NoError(t, err)
	assert.True(t, liked.Liked)

	out, err := f.svc.DeleteClip(ctx, clip.ID, "alice ")
	require.NoError(t, err)
	assert.True(t, out.Deleted)
	_, err = f.svc.GetClip(ctx, clip.ID, "alice")
	assert.ErrorIs(t, err, clips.ErrNotFound)
}

func TestRecordView_Sequential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clip := f.create(t, "alice", "").Clip

	const n = 7
	var views int64
	var err error
	for range n {
		views, err = f.svc.RecordView(ctx, clip.ID, "alice")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(n), views)

	got, err := f.svc.GetClip(ctx, clip.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.Views)
	assert.Equal(t, clip.UpdatedAt, got.UpdatedAt)
}

func TestRecordView_ConcurrentNoLostUpdates(t *testing.T) {
	f := newFixture(t, clips.WithMaxMutateAttempts(1000))
	ctx := context.Background()
	clip := f.create(t, "alice", "").Clip

	const n = 50
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RecordView(ctx, clip.ID, "alice")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := f.svc.GetClip(ctx, clip.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.Views)
}

func TestMutate_RetriesThenGivesUp(t *testing.T) {
	ctx := context.Background()
	store := memorystorage.New(memorystorage.Config{
		Container: "videos",
		Signer:    presigned.New(presigned.WithSecretKey("k")),
	})

	t.Run("RecoversWithinBudget", func(t *testing.T) {
		repo := &conflictRepo{Repository: memory.New(), conflicts: 2}
		svc, err := clips.New(clips.WithRepository(repo), clips.WithBlobStore(store), clips.WithMaxMutateAttempts(3))
		require.NoError(t, err)
		res, err := svc.CreateClip(ctx, clips.CreateClipRequest{Title: "t", OwnerID: "alice", VideoFileName: "a.mp4"})
		require.NoError(t, err)

		views, err := svc.RecordView(ctx, res.Clip.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(1), views)
		assert.Equal(t, 3, repo.replaces)
	})

	t.Run("ExhaustedReturnsConflict", func(t *testing.T) {
		repo := &conflictRepo{Repository: memory.New(), conflicts: 10}
		svc, err := clips.New(clips.WithRepository(repo), clips.WithBlobStore(store), clips.WithMaxMutateAttempts(3))
		require.NoError(t, err)
		res, err := svc.CreateClip(ctx, clips.CreateClipRequest{Title: "t", OwnerID: "alice", VideoFileName: "a.mp4"})
		require.NoError(t, err)

		_, err = svc.ToggleLike(ctx, res.Clip.ID, "alice", "carol")
		assert.ErrorIs(t, err, clips.ErrConflict)
		assert.Equal(t, 3, repo.replaces)
	})
}

func TestToggleLike_Involution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clip := f.create(t, "alice", "").Clip

	other, err := f.svc.ToggleLike(ctx, clip.ID, "alice", "dave")
	require.NoError(t, err)
	assert.Equal(t, 1, other.Likes)

	first, err := f.svc.ToggleLike(ctx, clip.ID, "alice", "carol")
	require.NoError(t, err)
	assert.True(t, first.Liked)
	assert.Equal(t, 2, first.Likes)

	second, err := f.svc.ToggleLike(ctx, clip.ID, "alice", "carol")
	require.NoError(t, err)
	assert.False(t, second.Liked)
	assert.Equal(t, 1, second.Likes)

	got, err := f.svc.GetClip(ctx, clip.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"dave"}, got.Likes)

	_, err = f.svc.ToggleLike(ctx, clip.ID, "alice", " ")
	assert.ErrorIs(t, err, clips.ErrValidation)
}

func TestLogin(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	clock := now
	f := newFixture(t, clips.WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	first, err := f.svc.Login(ctx, "  Bob!  ")
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, "bob", first.User.ID)
	assert.Equal(t, "bob", first.User.Username)
	assert.Equal(t, now, first.User.LastLoginAt)

	clock = now.Add(time.Hour)
	second, err := f.svc.Login(ctx, "BOB")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, now, second.User.CreatedAt)
	assert.Equal(t, now.Add(time.Hour), second.User.LastLoginAt)

	_, err = f.svc.Login(ctx, "!!!")
	assert.ErrorIs(t, err, clips.ErrValidation)
}

// createRaceRepo reports a conflict on the first user create, as if a
// concurrent login had just inserted the same handle
type createRaceRepo struct {
	clips.Repository
	raced bool
}

func (r *createRaceRepo) CreateUser(ctx context.Context, user *clips.User) error {
	if !r.raced {
		r.raced = true
		if err := r.Repository.CreateUser(ctx, user.Clone()); err != nil {
			return err
		}
		return clips.ErrConflict
	}
	return r.Repository.CreateUser(ctx, user)
}

func TestLogin_CreateRaceFallsBackToUpdate(t *testing.T) {
	repo := &createRaceRepo{Repository: memory.New()}
	svc, err := clips.New(
		clips.WithRepository(repo),
		clips.WithBlobStore(memorystorage.New(memorystorage.Config{Container: "videos"})),
	)
	require.NoError(t, err)

	res, err := svc.Login(context.Background(), "eve")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "eve", res.User.ID)
}
