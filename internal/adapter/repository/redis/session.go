package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	sessionDomain "trustline-credit/internal/domain/session"

	goredis "github.com/redis/go-redis/v9"
)

type SessionRepository struct {
	rdb goredis.Cmdable
	ttl time.Duration
}

func NewSessionRepository(rdb goredis.Cmdable, ttl time.Duration) *SessionRepository {
	return &SessionRepository{rdb: rdb, ttl: ttl}
}

func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*sessionDomain.Session, error) {
	v, err := r.rdb.Get(ctx, sessionDomain.Key(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, sessionDomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s sessionDomain.Session
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) Save(ctx context.Context, s *sessionDomain.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, sessionDomain.Key(s.ID), payload, r.ttl).Err()
}

func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	return r.rdb.Del(ctx, sessionDomain.Key(sessionID)).Err()
}
