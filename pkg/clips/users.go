package clips

import (
	"context"
	"errors"
	"fmt"

	"github.com/mateer-t1/music-moments-api/pkg/clips/metrics"
)

// Login reads the user by normalized handle and refreshes LastLoginAt, or
// creates the user on first login. A concurrent first login that wins the
// create race is treated as an existing user.
func (s *service) Login(ctx context.Context, rawUsername string) (result *LoginResult, err error) {
	defer func() { metrics.RecordOperation("login", err) }()

	id := NormalizeUsername(rawUsername)
	if id == "" {
		return nil, NewValidationError("username", "username is required")
	}

	for attempt := 1; ; attempt++ {
		user, err := s.repository.GetUser(ctx, id)
		switch {
		case err == nil:
			expected := user.Version
			if now := s.now().UTC(); now.After(user.LastLoginAt) {
				user.LastLoginAt = now
			}
			err = s.repository.ReplaceUser(ctx, user, expected)
			if err == nil {
				return &LoginResult{User: user}, nil
			}
		case errors.Is(err, ErrNotFound):
			now := s.now().UTC()
			user = &User{ID: id, Username: id, CreatedAt: now, LastLoginAt: now, Version: 1}
			err = s.repository.CreateUser(ctx, user)
			if err == nil {
				return &LoginResult{User: user, Created: true}, nil
			}
		}

		if !errors.Is(err, ErrConflict) || attempt >= s.maxMutateAttempts {
			return nil, fmt.Errorf("login %s: %w", id, err)
		}
		metrics.ConflictRetries.WithLabelValues("login").Inc()
	}
}
