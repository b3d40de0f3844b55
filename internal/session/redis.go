package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

const (
	sessionKeyPrefix = "session:"
	subjectKeyPrefix = "session_subject:"
)

// RedisStore persists sessions in Redis so multiple provider instances can
// share the session table.
type RedisStore struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

func (r *RedisStore) Put(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return ErrExpired
	}
	// Replace the subject's prior session before storing the new one.
	prior, err := r.rdb.GetSet(ctx, subjectKeyPrefix+s.Subject, s.ID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if prior != "" && prior != s.ID {
		if err := r.rdb.Del(ctx, sessionKeyPrefix+prior).Err(); err != nil {
			return err
		}
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+s.ID, data, ttl)
	pipe.Expire(ctx, subjectKeyPrefix+s.Subject, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.rdb.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, ErrInvalid
	}
	return &s, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+id)
	pipe.Del(ctx, subjectKeyPrefix+s.Subject)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) DeleteBySubject(ctx context.Context, subject string) error {
	id, err := r.rdb.Get(ctx, subjectKeyPrefix+subject).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+id)
	pipe.Del(ctx, subjectKeyPrefix+subject)
	_, err = pipe.Exec(ctx)
	return err
}
