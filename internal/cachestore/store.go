// Package cachestore persists scan caches between resolutions on the caller's
// side. The resolver itself never reads or writes a store.
package cachestore

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-splits/internal/domain"
)

// DefaultKeyPrefix prefixes every cache key
const DefaultKeyPrefix = "ff:splits:cache:"

// Store defines the interface for scan cache persistence
type Store interface {
	// Load returns the cache saved for the split, nil when there is none
	Load(ctx context.Context, chain domain.Chain, address common.Address) (*domain.ScanCache, error)

	// Save replaces the cache saved for the split
	Save(ctx context.Context, chain domain.Chain, address common.Address, cache *domain.ScanCache) error

	// Delete removes the cache saved for the split
	Delete(ctx context.Context, chain domain.Chain, address common.Address) error

	// Close releases the resources held by the store
	Close() error
}

// Key returns the storage key of a split's cache
func Key(prefix string, chain domain.Chain, address common.Address) string {
	return fmt.Sprintf("%s%s:%s", prefix, strings.ToLower(string(chain)), strings.ToLower(address.Hex()))
}
