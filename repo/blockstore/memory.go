// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockstore

import (
	"context"
	"sync"

	"github.com/project-illium/ilxevm/types"
)

var _ ContentStore = (*MemoryStore)(nil)

type memoryEntry struct {
	value  []byte
	expiry uint64
}

// MemoryStore is an in-memory ContentStore used by tests and by the
// regtest daemon when no datastore is configured.
type MemoryStore struct {
	mtx     sync.RWMutex
	entries map[types.Digest]memoryEntry
	inserts int
	err     error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[types.Digest]memoryEntry)}
}

func (m *MemoryStore) Get(ctx context.Context, digest types.Digest) ([]byte, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	if m.err != nil {
		return nil, m.err
	}
	e, ok := m.entries[digest]
	if !ok {
		return nil, ErrNotFound
	}
	ret := make([]byte, len(e.value))
	copy(ret, e.value)
	return ret, nil
}

func (m *MemoryStore) Insert(ctx context.Context, value []byte, expiry uint64) (types.Digest, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.err != nil {
		return types.Digest{}, m.err
	}
	digest := types.NewDigestFromData(value)
	m.inserts++
	if e, ok := m.entries[digest]; ok {
		if expiry > e.expiry {
			e.expiry = expiry
			m.entries[digest] = e
		}
		return digest, nil
	}
	v := make([]byte, len(value))
	copy(v, value)
	m.entries[digest] = memoryEntry{value: v, expiry: expiry}
	return digest, nil
}

// Len returns the number of distinct values stored.
func (m *MemoryStore) Len() int {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return len(m.entries)
}

// Inserts returns the number of Insert calls that reached the store.
func (m *MemoryStore) Inserts() int {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return m.inserts
}

// Expiry returns the expiry recorded for a digest.
func (m *MemoryStore) Expiry(digest types.Digest) (uint64, bool) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	e, ok := m.entries[digest]
	return e.expiry, ok
}

// SetError makes every subsequent call fail with err. A nil err restores
// normal operation.
func (m *MemoryStore) SetError(err error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.err = err
}
