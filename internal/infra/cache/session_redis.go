package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/repository"

	"github.com/redis/go-redis/v9"
)

var _ repository.SessionRepository = (*RedisSessionRepository)(nil)

const keyPrefix = "storefront:session:"

// RedisSessionRepository はログイン中セッションをredisに置く。
// TTLはトークンの残り時間に合わせる。
type RedisSessionRepository struct {
	client *redis.Client
}

func NewRedisSessionRepository(client *redis.Client) *RedisSessionRepository {
	return &RedisSessionRepository{client: client}
}

func (r *RedisSessionRepository) Save(ctx context.Context, rec repository.SessionRecord, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("redis session save: non-positive ttl %s", ttl)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session failed: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(rec.SessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) Find(ctx context.Context, sessionID string) (repository.SessionRecord, error) {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return repository.SessionRecord{}, repository.ErrNotFound
	}
	if err != nil {
		return repository.SessionRecord{}, fmt.Errorf("redis get failed: %w", err)
	}

	var rec repository.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return repository.SessionRecord{}, fmt.Errorf("unmarshal session failed: %w", err)
	}
	return rec, nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

func sessionKey(sessionID string) string {
	return keyPrefix + sessionID
}
