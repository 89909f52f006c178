package clips

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mateer-t1/music-moments-api/pkg/clips/metrics"
	"github.com/mateer-t1/music-moments-api/pkg/clips/objectkey"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxMutateAttempts bounds the read-modify-write loop on version conflicts
const DefaultMaxMutateAttempts = 5

// service implements the Service interface
type service struct {
	repository        Repository
	blobStore         BlobStore
	eventSink         EventSink
	deriver           *objectkey.Deriver
	writeGrantTTL     time.Duration
	readGrantTTL      time.Duration
	maxMutateAttempts int
	now               func() time.Time
	logger            *slog.Logger
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the record store for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the object store grants are issued against
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithGrantTTLs overrides the write-create and read grant lifetimes. Zero keeps the default.
func WithGrantTTLs(write, read time.Duration) Option {
	return func(s *service) {
		if write > 0 {
			s.writeGrantTTL = write
		}
		if read > 0 {
			s.readGrantTTL = read
		}
	}
}

// WithMaxMutateAttempts sets how many times a conflicting write is retried
func WithMaxMutateAttempts(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.maxMutateAttempts = n
		}
	}
}

// WithDeriver replaces the object name deriver
func WithDeriver(d *objectkey.Deriver) Option {
	return func(s *service) {
		s.deriver = d
	}
}

// WithClock overrides the time source, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// WithLogger sets the logger used for failures the caller cannot act on
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		eventSink:         NewNoopEventSink(),
		deriver:           objectkey.NewDeriver(),
		writeGrantTTL:     DefaultWriteGrantTTL,
		readGrantTTL:      DefaultReadGrantTTL,
		maxMutateAttempts: DefaultMaxMutateAttempts,
		now:               time.Now,
		logger:            slog.Default(),
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("%w: repository is required", ErrConfiguration)
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("%w: blob store is required", ErrConfiguration)
	}

	return s, nil
}

// Clip operations

func (s *service) CreateClip(ctx context.Context, req CreateClipRequest) (result *CreateClipResult, err error) {
	defer func() { metrics.RecordOperation("create", err) }()

	title := strings.TrimSpace(req.Title)
	ownerID := strings.TrimSpace(req.OwnerID)
	if title == "" {
		return nil, NewValidationError("title", "title is required")
	}
	if ownerID == "" {
		return nil, NewValidationError("userId", "userId is required")
	}
	if strings.TrimSpace(req.VideoFileName) == "" {
		return nil, NewValidationError("videoFileName", "videoFileName is required")
	}
	genre := strings.TrimSpace(req.Genre)
	if genre == "" {
		genre = DefaultGenre
	}

	id := uuid.NewString()
	videoName, err := s.deriver.Derive(ownerID, id, objectkey.RoleVideo, req.VideoFileName)
	if err != nil {
		return nil, deriveError("videoFileName", err)
	}
	var thumbnailName *string
	if strings.TrimSpace(req.ThumbnailFileName) != "" {
		name, err := s.deriver.Derive(ownerID, id, objectkey.RoleThumbnail, req.ThumbnailFileName)
		if err != nil {
			return nil, deriveError("thumbnailFileName", err)
		}
		thumbnailName = &name
	}

	if err := s.blobStore.EnsureContainer(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure container: %w", err)
	}

	now := s.now().UTC()
	clip := &Clip{
		ID:                  id,
		OwnerID:             ownerID,
		Title:               title,
		Genre:               genre,
		Status:              ClipStatusPendingUpload,
		VideoObjectName:     videoName,
		ThumbnailObjectName: thumbnailName,
		Views:               0,
		Likes:               []string{},
		CreatedAt:           now,
		UpdatedAt:           now,
		Version:             1,
	}

	if err := s.repository.CreateClip(ctx, clip); err != nil {
		return nil, &ClipError{ClipID: id, OwnerID: ownerID, Op: "create", Err: err}
	}

	if err := s.eventSink.ClipCreated(ctx, clip.Clone()); err != nil {
		s.logger.Warn("Event sink rejected clip created", "clip_id", id, "err", err)
	}

	result = &CreateClipResult{Clip: clip}
	result.VideoUpload, err = s.blobStore.IssueGrant(ctx, videoName, PermissionWriteCreate, s.writeGrantTTL)
	if err != nil {
		s.logger.Error("Clip persisted without upload grant", "clip_id", id, "owner_id", ownerID, "err", err)
		return nil, &ClipError{ClipID: id, OwnerID: ownerID, Op: "issue_upload_grant", Err: err}
	}
	if thumbnailName != nil {
		result.ThumbnailUpload, err = s.blobStore.IssueGrant(ctx, *thumbnailName, PermissionWriteCreate, s.writeGrantTTL)
		if err != nil {
			s.logger.Error("Clip persisted without thumbnail upload grant", "clip_id", id, "owner_id", ownerID, "err", err)
			return nil, &ClipError{ClipID: id, OwnerID: ownerID, Op: "issue_upload_grant", Err: err}
		}
	}

	return result, nil
}

func (s *service) GetClip(ctx context.Context, id, ownerID string) (*Clip, error) {
	id, ownerID, err := requireKey(id, ownerID)
	if err != nil {
		return nil, err
	}
	clip, err := s.repository.GetClip(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	clip.normalizeLikes()
	return clip, nil
}

func (s *service) GetPlayback(ctx context.Context, id, ownerID string) (*Playback, error) {
	clip, err := s.GetClip(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	playback := &Playback{ClipID: clip.ID, OwnerID: clip.OwnerID}
	playback.Video, err = s.blobStore.IssueGrant(ctx, clip.VideoObjectName, PermissionRead, s.readGrantTTL)
	if err != nil {
		return nil, &ClipError{ClipID: id, OwnerID: ownerID, Op: "issue_read_grant", Err: err}
	}
	if clip.ThumbnailObjectName != nil && *clip.ThumbnailObjectName != "" {
		playback.Thumbnail, err = s.blobStore.IssueGrant(ctx, *clip.ThumbnailObjectName, PermissionRead, s.readGrantTTL)
		if err != nil {
			return nil, &ClipError{ClipID: id, OwnerID: ownerID, Op: "issue_read_grant", Err: err}
		}
	}
	return playback, nil
}

func (s *service) ListClips(ctx context.Context, req ListClipsRequest) ([]*Clip, error) {
	filter := ClipFilter{}
	if !req.All {
		filter.OwnerID = strings.TrimSpace(req.OwnerID)
		if filter.OwnerID == "" {
			return nil, NewValidationError("userId", "userId is required unless all=true")
		}
	}

	result, err := s.repository.ScanClips(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list clips: %w", err)
	}
	for _, clip := range result {
		clip.normalizeLikes()
	}
	slices.SortFunc(result, func(a, b *Clip) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *service) UpdateClip(ctx context.Context, req UpdateClipRequest) (clip *Clip, err error) {
	defer func() { metrics.RecordOperation("update", err) }()

	req.ID, req.OwnerID, err = requireKey(req.ID, req.OwnerID)
	if err != nil {
		return nil, err
	}
	patch := req.Patch
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, NewValidationError("title", "title must not be empty")
	}
	if patch.Status != nil && !patch.Status.IsValid() {
		return nil, NewValidationError("status", "unknown status "+string(*patch.Status))
	}
	if patch.ThumbnailObjectName != nil && *patch.ThumbnailObjectName != "" {
		parts, ok := s.deriver.Parse(*patch.ThumbnailObjectName)
		if !ok || parts.OwnerID != req.OwnerID || parts.ClipID != req.ID || parts.Role != objectkey.RoleThumbnail {
			return nil, NewValidationError("thumbnailObjectName", "thumbnailObjectName must be a thumbnail name derived for this clip")
		}
	}

	clip, err = s.mutate(ctx, "update", req.ID, req.OwnerID, true, func(c *Clip) error {
		return applyPatch(c, patch)
	})
	if err != nil {
		return nil, err
	}

	if err := s.eventSink.ClipUpdated(ctx, clip.Clone()); err != nil {
		s.logger.Warn("Event sink rejected clip updated", "clip_id", clip.ID, "err", err)
	}
	return clip, nil
}

func applyPatch(c *Clip, patch ClipPatch) error {
	if patch.VideoObjectName != nil && *patch.VideoObjectName != c.VideoObjectName {
		return NewValidationError("videoObjectName", "videoObjectName cannot be changed")
	}
	if patch.Status != nil {
		if _, err := CanTransition(c.Status, *patch.Status); err != nil {
			return err
		}
		c.Status = *patch.Status
	}
	if patch.Title != nil {
		c.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Genre != nil {
		c.Genre = strings.TrimSpace(*patch.Genre)
		if c.Genre == "" {
			c.Genre = DefaultGenre
		}
	}
	if patch.ThumbnailObjectName != nil {
		if *patch.ThumbnailObjectName == "" {
			c.ThumbnailObjectName = nil
		} else {
			name := *patch.ThumbnailObjectName
			c.ThumbnailObjectName = &name
		}
	}
	return nil
}

// DeleteClip removes object bytes before the record, so a crash part-way
// leaves at worst an orphaned object for the reconciler.
func (s *service) DeleteClip(ctx context.Context, id, ownerID string) (result *DeleteResult, err error) {
	defer func() { metrics.RecordOperation("delete", err) }()

	clip, err := s.GetClip(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	id, ownerID = clip.ID, clip.OwnerID

	names := clip.ObjectNames()
	deleted := make([]bool, len(names))
	failures := make([]error, len(names))

	// Siblings never cancel each other: every deletion is attempted
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			if _, err := s.blobStore.DeleteIfExists(ctx, name); err != nil {
				failures[i] = err
				return nil
			}
			deleted[i] = true
			return nil
		})
	}
	_ = g.Wait()

	result = &DeleteResult{DeletedBlobs: []string{}}
	for i, name := range names {
		if deleted[i] {
			result.DeletedBlobs = append(result.DeletedBlobs, name)
			continue
		}
		result.FailedBlobs = append(result.FailedBlobs, name)
		metrics.BlobDeleteFailures.Inc()
		s.logger.Error("Failed to delete clip object", "clip_id", id, "owner_id", ownerID, "object_name", name, "err", failures[i])
		if err := s.eventSink.ObjectDeleteFailed(ctx, clip, name, failures[i]); err != nil {
			s.logger.Warn("Event sink rejected object delete failure", "clip_id", id, "err", err)
		}
	}

	if err := s.repository.DeleteClip(ctx, id, ownerID); err != nil {
		return nil, &ClipError{ClipID: id, OwnerID: ownerID, Op: "delete", Err: err}
	}
	result.Deleted = true

	if err := s.eventSink.ClipDeleted(ctx, clip); err != nil {
		s.logger.Warn("Event sink rejected clip deleted", "clip_id", id, "err", err)
	}
	return result, nil
}

// mutate runs a read-modify-write against the stored version and retries on
// ErrConflict up to maxMutateAttempts. touch refreshes UpdatedAt.
func (s *service) mutate(ctx context.Context, op, id, ownerID string, touch bool, apply func(*Clip) error) (*Clip, error) {
	for attempt := 1; ; attempt++ {
		clip, err := s.repository.GetClip(ctx, id, ownerID)
		if err != nil {
			return nil, err
		}
		clip.normalizeLikes()
		expected := clip.Version

		if err := apply(clip); err != nil {
			return nil, &ClipError{ClipID: id, OwnerID: ownerID, Op: op, Err: err}
		}
		if touch {
			// UpdatedAt never moves backwards, even if clocks do
			if now := s.now().UTC(); now.After(clip.UpdatedAt) {
				clip.UpdatedAt = now
			}
		}

		err = s.repository.ReplaceClip(ctx, clip, expected)
		if err == nil {
			return clip, nil
		}
		if !errors.Is(err, ErrConflict) || attempt >= s.maxMutateAttempts {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		metrics.ConflictRetries.WithLabelValues(op).Inc()
		s.logger.Debug("Retrying after version conflict", "op", op, "clip_id", id, "attempt", attempt)
	}
}

// requireKey trims id and ownerID the same way CreateClip does
func requireKey(id, ownerID string) (string, string, error) {
	id, ownerID = strings.TrimSpace(id), strings.TrimSpace(ownerID)
	if id == "" {
		return "", "", NewValidationError("id", "clip id is required")
	}
	if ownerID == "" {
		return "", "", NewValidationError("userId", "userId is required")
	}
	return id, ownerID, nil
}

// deriveError maps objectkey failures onto ValidationError
func deriveError(field string, err error) error {
	if errors.Is(err, objectkey.ErrMissingOwner) || errors.Is(err, objectkey.ErrInvalidOwner) {
		return NewValidationError("userId", err.Error())
	}
	return NewValidationError(field, err.Error())
}
