package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
)

// RedisBlockStore persists blocklist records with their escalation TTL; Redis
// expiry is the unblock mechanism, no sweeper needed.
type RedisBlockStore struct {
	client *redis.Client
}

func NewRedisBlockStore(client *redis.Client) *RedisBlockStore {
	return &RedisBlockStore{client: client}
}

func (s *RedisBlockStore) Put(ctx context.Context, key string, rec domain.BlockRecord, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, raw, ttl).Err()
}

func (s *RedisBlockStore) Get(ctx context.Context, key string) (*domain.BlockRecord, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var out domain.BlockRecord
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
