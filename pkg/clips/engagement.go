package clips

import (
	"context"
	"strings"

	"github.com/mateer-t1/music-moments-api/pkg/clips/metrics"
)

// RecordView increments the view counter and returns the new value.
// Views do not refresh UpdatedAt.
func (s *service) RecordView(ctx context.Context, id, ownerID string) (views int64, err error) {
	defer func() { metrics.RecordOperation("view", err) }()

	id, ownerID, err = requireKey(id, ownerID)
	if err != nil {
		return 0, err
	}
	clip, err := s.mutate(ctx, "view", id, ownerID, false, func(c *Clip) error {
		c.Views++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return clip.Views, nil
}

// ToggleLike adds likerID to the likes set, or removes it if already present
func (s *service) ToggleLike(ctx context.Context, id, ownerID, likerID string) (result *LikeResult, err error) {
	defer func() { metrics.RecordOperation("like", err) }()

	id, ownerID, err = requireKey(id, ownerID)
	if err != nil {
		return nil, err
	}
	likerID = strings.TrimSpace(likerID)
	if likerID == "" {
		return nil, NewValidationError("userId", "liker userId is required")
	}

	var liked bool
	clip, err := s.mutate(ctx, "like", id, ownerID, false, func(c *Clip) error {
		liked = c.ToggleLike(likerID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &LikeResult{Likes: len(clip.Likes), Liked: liked}, nil
}
