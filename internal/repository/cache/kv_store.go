package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/location-engine/internal/domain/repository"
	apperrors "github.com/location-engine/internal/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type kvStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewKVStore - долговременное хранилище в Redis. Ключи пишутся без TTL
func NewKVStore(r *Redis) repository.KeyValueStore {
	return &kvStore{
		client: r.Client(),
		logger: r.logger,
	}
}

func (s *kvStore) Load(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("Failed to load key", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("%w: load %s: %v", apperrors.ErrCacheError, key, err)
	}

	return val, nil
}

func (s *kvStore) Save(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		s.logger.Error("Failed to save key", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("%w: save %s: %v", apperrors.ErrCacheError, key, err)
	}

	s.logger.Debug("Key saved", zap.String("key", key), zap.Int("bytes", len(value)))
	return nil
}
