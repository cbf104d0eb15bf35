package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/lgulliver/stockpile/internal/common"
	"github.com/lgulliver/stockpile/pkg/types"
)

const (
	redisKeyPrefix = "stockpile:upload:"
	// maxTxRetries bounds optimistic retries when a watched key changes underneath us
	maxTxRetries = 10
)

// RedisSessionStore keeps sessions as JSON values. Conditional updates use
// WATCH/MULTI so they are safe across processes.
type RedisSessionStore struct {
	cache  *common.Cache
	keyTTL time.Duration
}

// NewRedisSessionStore creates a store. Keys outlive the sweeper's longest
// threshold so the sweeper still sees a session before Redis drops it.
func NewRedisSessionStore(cache *common.Cache, sessionTTL time.Duration) *RedisSessionStore {
	return &RedisSessionStore{
		cache:  cache,
		keyTTL: 3 * sessionTTL,
	}
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func (r *RedisSessionStore) Create(ctx context.Context, session *types.UploadSession) error {
	ok, err := r.cache.SetNX(ctx, redisKey(session.ID), session, r.keyTTL)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if !ok {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	return nil
}

func (r *RedisSessionStore) Get(ctx context.Context, id string) (*types.UploadSession, error) {
	var session types.UploadSession
	if err := r.cache.Get(ctx, redisKey(id), &session); err != nil {
		if errors.Is(err, common.ErrCacheMiss) {
			return nil, ErrUnknownUpload
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// mutate applies fn under WATCH and writes the result in a MULTI block
func (r *RedisSessionStore) mutate(ctx context.Context, id string, fn func(*types.UploadSession) error) (*types.UploadSession, error) {
	key := redisKey(id)
	client := r.cache.Client()

	var result *types.UploadSession
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrUnknownUpload
			}
			return fmt.Errorf("failed to get session: %w", err)
		}

		var session types.UploadSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		if err := fn(&session); err != nil {
			return err
		}

		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.keyTTL)
			return nil
		})
		if err != nil {
			return err
		}
		result = &session
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			log.Debug().Str("upload_id", id).Int("attempt", i+1).Msg("session changed during update, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("failed to update session %s: too much contention", id)
}

func (r *RedisSessionStore) Transition(ctx context.Context, id string, from, to types.UploadState) (*types.UploadSession, error) {
	return r.mutate(ctx, id, func(s *types.UploadSession) error {
		return applyTransition(s, from, to, time.Now().UTC())
	})
}

func (r *RedisSessionStore) RecordChunk(ctx context.Context, id string, index int, nonce string, totalChunks int) (string, error) {
	var previous string
	_, err := r.mutate(ctx, id, func(s *types.UploadSession) error {
		var err error
		previous, err = applyRecordChunk(s, index, nonce, totalChunks, time.Now().UTC())
		return err
	})
	return previous, err
}

func (r *RedisSessionStore) Touch(ctx context.Context, id string, state types.UploadState) error {
	_, err := r.mutate(ctx, id, func(s *types.UploadSession) error {
		return applyTouch(s, state, time.Now().UTC())
	})
	return err
}

func (r *RedisSessionStore) Complete(ctx context.Context, id string, artifact *types.Artifact) error {
	_, err := r.mutate(ctx, id, func(s *types.UploadSession) error {
		return applyComplete(s, artifact, time.Now().UTC())
	})
	return err
}

func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := r.cache.Delete(ctx, redisKey(id)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) ListExpired(ctx context.Context, before time.Time) ([]*types.UploadSession, error) {
	var expired []*types.UploadSession

	iter := r.cache.Client().Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		id := iter.Val()[len(redisKeyPrefix):]
		session, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrUnknownUpload) {
				continue
			}
			return nil, err
		}
		if session.UpdatedAt.Before(before) {
			expired = append(expired, session)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return expired, nil
}
