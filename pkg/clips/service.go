package clips

import "context"

// Service defines the main interface for clip lifecycle coordination
type Service interface {
	// Clip operations
	CreateClip(ctx context.Context, req CreateClipRequest) (*CreateClipResult, error)
	GetClip(ctx context.Context, id, ownerID string) (*Clip, error)
	GetPlayback(ctx context.Context, id, ownerID string) (*Playback, error)
	ListClips(ctx context.Context, req ListClipsRequest) ([]*Clip, error)
	UpdateClip(ctx context.Context, req UpdateClipRequest) (*Clip, error)
	DeleteClip(ctx context.Context, id, ownerID string) (*DeleteResult, error)

	// Engagement operations
	RecordView(ctx context.Context, id, ownerID string) (int64, error)
	ToggleLike(ctx context.Context, id, ownerID, likerID string) (*LikeResult, error)

	// User operations
	Login(ctx context.Context, rawUsername string) (*LoginResult, error)
}
