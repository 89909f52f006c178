package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mateer-t1/music-moments-api/pkg/clips"
)

type clipKey struct {
	ownerID string
	id      string
}

// Repository implements clips.Repository using in-memory storage
type Repository struct {
	mu    sync.RWMutex
	clips map[clipKey]*clips.Clip
	users map[string]*clips.User
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		clips: make(map[clipKey]*clips.Clip),
		users: make(map[string]*clips.User),
	}
}

// Clip operations

func (r *Repository) CreateClip(ctx context.Context, clip *clips.Clip) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := clipKey{ownerID: clip.OwnerID, id: clip.ID}
	if _, exists := r.clips[key]; exists {
		return &clips.ClipError{ClipID: clip.ID, OwnerID: clip.OwnerID, Op: "create", Err: clips.ErrConflict}
	}

	// Store a copy to avoid external modifications
	r.clips[key] = clip.Clone()
	return nil
}

func (r *Repository) GetClip(ctx context.Context, id, ownerID string) (*clips.Clip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clip, exists := r.clips[clipKey{ownerID: ownerID, id: id}]
	if !exists {
		return nil, &clips.ClipError{ClipID: id, OwnerID: ownerID, Op: "get", Err: clips.ErrNotFound}
	}
	return clip.Clone(), nil
}

func (r *Repository) ReplaceClip(ctx context.Context, clip *clips.Clip, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := clipKey{ownerID: clip.OwnerID, id: clip.ID}
	current, exists := r.clips[key]
	if !exists {
		return &clips.ClipError{ClipID: clip.ID, OwnerID: clip.OwnerID, Op: "replace", Err: clips.ErrNotFound}
	}
	if current.Version != expectedVersion {
		return &clips.ClipError{ClipID: clip.ID, OwnerID: clip.OwnerID, Op: "replace", Err: clips.ErrConflict}
	}

	clip.Version = expectedVersion + 1
	r.clips[key] = clip.Clone()
	return nil
}

func (r *Repository) DeleteClip(ctx context.Context, id, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := clipKey{ownerID: ownerID, id: id}
	if _, exists := r.clips[key]; !exists {
		return &clips.ClipError{ClipID: id, OwnerID: ownerID, Op: "delete", Err: clips.ErrNotFound}
	}
	delete(r.clips, key)
	return nil
}

func (r *Repository) ScanClips(ctx context.Context, filter clips.ClipFilter) ([]*clips.Clip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*clips.Clip, 0)
	for _, clip := range r.clips {
		if filter.Matches(clip) {
			result = append(result, clip.Clone())
		}
	}

	// Map iteration is random; keep results stable for callers and tests
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// User operations

func (r *Repository) CreateUser(ctx context.Context, user *clips.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.ID]; exists {
		return clips.ErrConflict
	}
	r.users[user.ID] = user.Clone()
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (*clips.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return nil, clips.ErrNotFound
	}
	return user.Clone(), nil
}

func (r *Repository) ReplaceUser(ctx context.Context, user *clips.User, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.users[user.ID]
	if !exists {
		return clips.ErrNotFound
	}
	if current.Version != expectedVersion {
		return clips.ErrConflict
	}

	user.Version = expectedVersion + 1
	r.users[user.ID] = user.Clone()
	return nil
}
