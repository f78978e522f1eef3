package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Jamolkhon5/aistudio/internal/ai/gateway"
)

var ErrCacheMiss = errors.New("parameters are not cached")

const keyPrefix = "aistudio:parameters:"

// ParametersStorage хранит схемы параметров приложений шлюза в Redis.
type ParametersStorage struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewParametersStorage(rdb *redis.Client, ttl time.Duration) *ParametersStorage {
	return &ParametersStorage{
		rdb: rdb,
		ttl: ttl,
	}
}

func key(toolID string) string {
	return keyPrefix + toolID
}

func (s *ParametersStorage) Get(ctx context.Context, toolID string) (*gateway.Parameters, error) {
	data, err := s.rdb.Get(ctx, key(toolID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get parameters of %s: %w", toolID, err)
	}

	var p gateway.Parameters
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parameters of %s: %w", toolID, err)
	}
	return &p, nil
}

func (s *ParametersStorage) Set(ctx context.Context, toolID string, p *gateway.Parameters) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters of %s: %w", toolID, err)
	}
	if err := s.rdb.Set(ctx, key(toolID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set parameters of %s: %w", toolID, err)
	}
	return nil
}

func (s *ParametersStorage) Invalidate(ctx context.Context, toolID string) error {
	if err := s.rdb.Del(ctx, key(toolID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate parameters of %s: %w", toolID, err)
	}
	return nil
}

func (s *ParametersStorage) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
