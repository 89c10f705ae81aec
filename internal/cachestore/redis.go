package cachestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/feral-file/ff-splits/internal/adapter"
	"github.com/feral-file/ff-splits/internal/domain"
	"github.com/feral-file/ff-splits/internal/logger"
)

// redisStore keeps caches in Redis so that several processes can share them
type redisStore struct {
	client adapter.RedisClient
	json   adapter.JSON
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store backed by Redis. A zero ttl keeps caches forever.
func NewRedisStore(client adapter.RedisClient, json adapter.JSON, prefix string, ttl time.Duration) Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &redisStore{
		client: client,
		json:   json,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *redisStore) Load(ctx context.Context, chain domain.Chain, address common.Address) (*domain.ScanCache, error) {
	key := Key(s.prefix, chain, address)
	raw, err := s.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get scan cache: %w", err)
	}

	var cache domain.ScanCache
	if err := s.json.Unmarshal(raw, &cache); err != nil {
		// Corrupt entries are treated as missing
		logger.WarnCtx(ctx, "Ignoring unreadable scan cache",
			zap.String("key", key),
			zap.Error(err))
		return nil, nil
	}
	return &cache, nil
}

func (s *redisStore) Save(ctx context.Context, chain domain.Chain, address common.Address, cache *domain.ScanCache) error {
	raw, err := s.json.Marshal(cache)
	if err != nil {
		return fmt.Errorf("failed to marshal scan cache: %w", err)
	}
	if err := s.client.Set(ctx, Key(s.prefix, chain, address), raw, s.ttl); err != nil {
		return fmt.Errorf("failed to set scan cache: %w", err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, chain domain.Chain, address common.Address) error {
	if err := s.client.Del(ctx, Key(s.prefix, chain, address)); err != nil {
		return fmt.Errorf("failed to delete scan cache: %w", err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
