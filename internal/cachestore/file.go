package cachestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/feral-file/ff-splits/internal/adapter"
	"github.com/feral-file/ff-splits/internal/domain"
	"github.com/feral-file/ff-splits/internal/logger"
)

// fileData is the on-disk layout of a file store
type fileData struct {
	Version int                          `json:"version"`
	Caches  map[string]*domain.ScanCache `json:"caches"`
}

const fileDataVersion = 1

// fileStore keeps every cache in a single JSON file
type fileStore struct {
	mu   sync.Mutex
	fs   adapter.FileSystem
	json adapter.JSON
	path string
}

// NewFileStore creates a store backed by the JSON file at path
func NewFileStore(fs adapter.FileSystem, json adapter.JSON, path string) Store {
	return &fileStore{
		fs:   fs,
		json: json,
		path: path,
	}
}

func (s *fileStore) Load(_ context.Context, chain domain.Chain, address common.Address) (*domain.ScanCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return nil, err
	}
	return data.Caches[Key("", chain, address)], nil
}

func (s *fileStore) Save(_ context.Context, chain domain.Chain, address common.Address, cache *domain.ScanCache) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	data.Caches[Key("", chain, address)] = cache.Clone()
	return s.write(data)
}

func (s *fileStore) Delete(_ context.Context, chain domain.Chain, address common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	key := Key("", chain, address)
	if _, ok := data.Caches[key]; !ok {
		return nil
	}
	delete(data.Caches, key)
	if len(data.Caches) == 0 {
		if err := s.fs.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove cache file: %w", err)
		}
		return nil
	}
	return s.write(data)
}

func (s *fileStore) Close() error {
	return nil
}

// read loads the file, a missing file is an empty store
func (s *fileStore) read() (*fileData, error) {
	data := &fileData{Version: fileDataVersion, Caches: make(map[string]*domain.ScanCache)}

	raw, err := s.fs.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return data, nil
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	if err := s.json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}
	if data.Version != fileDataVersion {
		logger.Warn("Discarding cache file with unknown version",
			zap.String("path", s.path),
			zap.Int("version", data.Version))
		return &fileData{Version: fileDataVersion, Caches: make(map[string]*domain.ScanCache)}, nil
	}
	if data.Caches == nil {
		data.Caches = make(map[string]*domain.ScanCache)
	}
	return data, nil
}

func (s *fileStore) write(data *fileData) error {
	raw, err := s.json.MarshalIndent(data)
	if err != nil {
		return fmt.Errorf("failed to marshal cache file: %w", err)
	}
	if err := s.fs.WriteFile(s.path, raw); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}
