// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobs

import (
	"context"
	"sync"
)

var _ Store = (*MemStore)(nil)

// MemStore keeps blobs in memory until the process exits. Hashing
// happens outside the lock; only index updates are serialized.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[Hash][]byte
	size  int64
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[Hash][]byte)}
}

func (s *MemStore) Put(ctx context.Context, data []byte) (Hash, error) {
	if err := ctx.Err(); err != nil {
		return Hash{}, err
	}
	hash := Sum(data)

	s.mu.RLock()
	_, exists := s.blobs[hash]
	s.mu.RUnlock()
	if exists {
		return hash, nil
	}

	stored := append([]byte(nil), data...)
	s.mu.Lock()
	if _, exists := s.blobs[hash]; !exists {
		s.blobs[hash] = stored
		s.size += int64(len(stored))
	}
	s.mu.Unlock()
	return hash, nil
}

func (s *MemStore) Get(ctx context.Context, hash Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.blobs[hash]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemStore) Has(ctx context.Context, hash Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[hash]
	return ok, nil
}

// Len returns the number of stored blobs.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Size returns the total stored bytes.
func (s *MemStore) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}
