package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/mateer-t1/music-moments-api/pkg/clips"
	"github.com/redis/go-redis/v9"
)

const (
	clipKeyPrefix  = "clip:"
	ownerSetPrefix = "clips:owner:"
	userKeyPrefix  = "user:"
	scanBatchSize  = 100
)

// Repository implements clips.Repository on Redis. Each record is one JSON
// string key; a per-owner set indexes clip ids.
type Repository struct {
	client redis.UniversalClient
}

// New creates a Redis-backed repository
func New(client redis.UniversalClient) *Repository {
	return &Repository{client: client}
}

// clipKey length-prefixes the owner so no (owner, id) pair can alias another
func clipKey(ownerID, id string) string {
	return clipKeyPrefix + strconv.Itoa(len(ownerID)) + ":" + ownerID + ":" + id
}

func ownerSetKey(ownerID string) string {
	return ownerSetPrefix + ownerID
}

func userKey(id string) string {
	return userKeyPrefix + id
}

// Clip operations

func (r *Repository) CreateClip(ctx context.Context, clip *clips.Clip) error {
	data, err := json.Marshal(clip)
	if err != nil {
		return fmt.Errorf("failed to marshal clip: %w", err)
	}

	// record and owner index land together; SADD of an existing id is a no-op
	var set *redis.BoolCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		set = pipe.SetNX(ctx, clipKey(clip.OwnerID, clip.ID), data, 0)
		pipe.SAdd(ctx, ownerSetKey(clip.OwnerID), clip.ID)
		return nil
	})
	if err != nil {
		return &clips.ClipError{ClipID: clip.ID, OwnerID: clip.OwnerID, Op: "create", Err: handleError("setnx", err)}
	}
	if !set.Val() {
		return &clips.ClipError{ClipID: clip.ID, OwnerID: clip.OwnerID, Op: "create", Err: clips.ErrConflict}
	}
	return nil
}

func (r *Repository) GetClip(ctx context.Context, id, ownerID string) (*clips.Clip, error) {
	data, err := r.client.Get(ctx, clipKey(ownerID, id)).Bytes()
	if err != nil {
		return nil, &clips.ClipError{ClipID: id, OwnerID: ownerID, Op: "get", Err: handleError("get", err)}
	}
	clip, err := decodeClip(data)
	if err != nil {
		return nil, err
	}
	if clip.ID != id || clip.OwnerID != ownerID {
		return nil, &clips.ClipError{ClipID: id, OwnerID: ownerID, Op: "get", Err: clips.ErrNotFound}
	}
	return clip, nil
}

// ReplaceClip runs the version check and the write inside one WATCH transaction
func (r *Repository) ReplaceClip(ctx context.Context, clip *clips.Clip, expectedVersion int64) error {
	key := clipKey(clip.OwnerID, clip.ID)
	next := clip.Clone()
	next.Version = expectedVersion + 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal clip: %w", err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return handleError("get", err)
		}
		current, err := decodeClip(raw)
		if err != nil {
			return err
		}
		if current.ID != clip.ID || current.OwnerID != clip.OwnerID {
			return clips.ErrNotFound
		}
		if current.Version != expectedVersion {
			return clips.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			err = clips.ErrConflict
		}
		return &clips.ClipError{ClipID: clip.ID, OwnerID: clip.OwnerID, Op: "replace", Err: err}
	}

	clip.Version = next.Version
	return nil
}

func (r *Repository) DeleteClip(ctx context.Context, id, ownerID string) error {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, clipKey(ownerID, id))
		pipe.SRem(ctx, ownerSetKey(ownerID), id)
		return nil
	})
	if err != nil {
		return &clips.ClipError{ClipID: id, OwnerID: ownerID, Op: "delete", Err: handleError("del", err)}
	}
	if del.Val() == 0 {
		return &clips.ClipError{ClipID: id, OwnerID: ownerID, Op: "delete", Err: clips.ErrNotFound}
	}
	return nil
}

// ScanClips reads the owner index when an owner is given, otherwise walks the
// keyspace with SCAN.
func (r *Repository) ScanClips(ctx context.Context, filter clips.ClipFilter) ([]*clips.Clip, error) {
	var keys []string

	if filter.OwnerID != "" {
		ids, err := r.client.SMembers(ctx, ownerSetKey(filter.OwnerID)).Result()
		if err != nil {
			return nil, handleError("smembers", err)
		}
		for _, id := range ids {
			keys = append(keys, clipKey(filter.OwnerID, id))
		}
	} else {
		iter := r.client.Scan(ctx, 0, clipKeyPrefix+"*", scanBatchSize).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return nil, handleError("scan", err)
		}
	}

	result := make([]*clips.Clip, 0, len(keys))
	for start := 0; start < len(keys); start += scanBatchSize {
		end := min(start+scanBatchSize, len(keys))
		values, err := r.client.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return nil, handleError("mget", err)
		}
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				// removed between index read and fetch
				continue
			}
			clip, err := decodeClip([]byte(s))
			if err != nil {
				return nil, err
			}
			if filter.Matches(clip) {
				result = append(result, clip)
			}
		}
	}
	return result, nil
}

// User operations

func (r *Repository) CreateUser(ctx context.Context, user *clips.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	ok, err := r.client.SetNX(ctx, userKey(user.ID), data, 0).Result()
	if err != nil {
		return handleError("setnx", err)
	}
	if !ok {
		return fmt.Errorf("create user %s: %w", user.ID, clips.ErrConflict)
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (*clips.User, error) {
	data, err := r.client.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", id, handleError("get", err))
	}
	var user clips.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &user, nil
}

func (r *Repository) ReplaceUser(ctx context.Context, user *clips.User, expectedVersion int64) error {
	key := userKey(user.ID)
	next := user.Clone()
	next.Version = expectedVersion + 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return handleError("get", err)
		}
		var current clips.User
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("failed to unmarshal user: %w", err)
		}
		if current.Version != expectedVersion {
			return clips.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			err = clips.ErrConflict
		}
		return fmt.Errorf("user %s: %w", user.ID, err)
	}

	user.Version = next.Version
	return nil
}

func handleError(op string, err error) error {
	if errors.Is(err, redis.Nil) {
		return clips.ErrNotFound
	}
	return clips.ClassifyBackendError("redis", "keyspace", op, err)
}

func decodeClip(data []byte) (*clips.Clip, error) {
	var clip clips.Clip
	if err := json.Unmarshal(data, &clip); err != nil {
		return nil, fmt.Errorf("failed to unmarshal clip: %w", err)
	}
	if clip.Likes == nil {
		clip.Likes = []string{}
	}
	return &clip, nil
}
