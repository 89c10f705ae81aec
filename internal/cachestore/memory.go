package cachestore

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-splits/internal/domain"
)

// memoryStore keeps caches for the lifetime of the process
type memoryStore struct {
	mu     sync.RWMutex
	caches map[string]*domain.ScanCache
}

// NewMemoryStore creates a process-local store
func NewMemoryStore() Store {
	return &memoryStore{caches: make(map[string]*domain.ScanCache)}
}

func (s *memoryStore) Load(_ context.Context, chain domain.Chain, address common.Address) (*domain.ScanCache, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caches[Key(DefaultKeyPrefix, chain, address)].Clone(), nil
}

func (s *memoryStore) Save(_ context.Context, chain domain.Chain, address common.Address, cache *domain.ScanCache) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caches[Key(DefaultKeyPrefix, chain, address)] = cache.Clone()
	return nil
}

func (s *memoryStore) Delete(_ context.Context, chain domain.Chain, address common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.caches, Key(DefaultKeyPrefix, chain, address))
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}
