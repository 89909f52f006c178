package clips

import (
	"context"
	"io"
	"time"
)

// BlobStore defines the interface for object storage backends.
// Object names are produced by the objectkey package; a BlobStore is scoped
// to exactly one container or bucket.
type BlobStore interface {
	// EnsureContainer creates the container if it is absent. Safe to call concurrently.
	EnsureContainer(ctx context.Context) error

	// IssueGrant derives a capability URL for one operation on objectName.
	// It performs no network call and fails with ErrConfiguration when the
	// signing credential or container is missing.
	IssueGrant(ctx context.Context, objectName string, perm Permission, ttl time.Duration) (*Grant, error)

	// Put stores bytes server-side
	Put(ctx context.Context, objectName string, reader io.Reader, contentType string) error

	// Get opens an object for reading; ErrNotFound if absent
	Get(ctx context.Context, objectName string) (io.ReadCloser, error)

	// Stat returns object metadata; ErrNotFound if absent
	Stat(ctx context.Context, objectName string) (*ObjectInfo, error)

	// DeleteIfExists removes an object. Absence is not an error; the bool
	// reports whether an object was present.
	DeleteIfExists(ctx context.Context, objectName string) (bool, error)

	// List returns every object whose name starts with prefix
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ClipFilter narrows a clip scan. Zero value scans everything.
type ClipFilter struct {
	OwnerID       string
	Status        ClipStatus
	CreatedBefore time.Time
}

// Matches reports whether clip satisfies the filter
func (f ClipFilter) Matches(clip *Clip) bool {
	if f.OwnerID != "" && clip.OwnerID != f.OwnerID {
		return false
	}
	if f.Status != "" && clip.Status != f.Status {
		return false
	}
	if !f.CreatedBefore.IsZero() && !clip.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	return true
}

// ClipRepository persists clip records partitioned by owner
type ClipRepository interface {
	// CreateClip inserts a new record; ErrConflict if (ID, OwnerID) exists
	CreateClip(ctx context.Context, clip *Clip) error

	// GetClip reads one record; ErrNotFound if absent
	GetClip(ctx context.Context, id, ownerID string) (*Clip, error)

	// ReplaceClip stores clip only if the stored version equals expectedVersion.
	// On success clip.Version is advanced. ErrNotFound if absent, ErrConflict on mismatch.
	ReplaceClip(ctx context.Context, clip *Clip, expectedVersion int64) error

	// DeleteClip removes one record; ErrNotFound if absent
	DeleteClip(ctx context.Context, id, ownerID string) error

	// ScanClips returns every record matching filter, unordered
	ScanClips(ctx context.Context, filter ClipFilter) ([]*Clip, error)
}

// UserRepository persists login handles
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	ReplaceUser(ctx context.Context, user *User, expectedVersion int64) error
}

// Repository defines the interface for clip and user persistence
type Repository interface {
	ClipRepository
	UserRepository
}

// EventSink defines the interface for lifecycle event handling
type EventSink interface {
	// ClipCreated is fired after the record is persisted
	ClipCreated(ctx context.Context, clip *Clip) error

	// ClipUpdated is fired after a patch or status change
	ClipUpdated(ctx context.Context, clip *Clip) error

	// ClipDeleted is fired after the record is removed
	ClipDeleted(ctx context.Context, clip *Clip) error

	// ObjectDeleteFailed is fired for each object that could not be removed
	ObjectDeleteFailed(ctx context.Context, clip *Clip, objectName string, cause error) error
}
