// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/project-illium/ilxevm/params/hash"
	"github.com/project-illium/ilxevm/repo/blockstore"
	"github.com/project-illium/ilxevm/repo/kvstore"
	"github.com/project-illium/ilxevm/types"
)

type itemKind uint8

const (
	// contentItem is a value stored under its own keccak-256 digest.
	contentItem itemKind = iota
	// keyedItem is a value stored under an arbitrary key.
	keyedItem
)

func (k itemKind) String() string {
	if k == contentItem {
		return "content"
	}
	return "keyed"
}

// pendingItem is an uncommitted insert or removal. The count goes up on
// every insert and down on every removal. Only a positive count is
// written on commit.
type pendingItem struct {
	kind  itemKind
	count int64
	value []byte
}

// HashDB is the content-store adapter the state trie persists through.
// Writes are buffered in a reference-counted overlay for the lifetime of
// a batch. Commit flushes content items to the content store and keyed
// items to the nil column of the key/value service. Discard drops the
// overlay without touching either backing store.
type HashDB struct {
	cas blockstore.ContentStore
	kv  kvstore.Service

	pending map[string]*pendingItem
	mtx     sync.RWMutex
}

// NewHashDB returns an adapter with an empty overlay.
func NewHashDB(cas blockstore.ContentStore, kv kvstore.Service) *HashDB {
	return &HashDB{
		cas:     cas,
		kv:      kv,
		pending: make(map[string]*pendingItem),
	}
}

// Get returns the value for key. The overlay is consulted first. Keys the
// overlay does not hold with a positive count are looked up in the content
// store, for digest sized keys, and then in the key/value service.
func (db *HashDB) Get(key []byte) ([]byte, error) {
	if bytes.Equal(key, hash.EmptyTrieDigest[:]) {
		return copyBytes(hash.EmptyNode), nil
	}

	db.mtx.RLock()
	item, ok := db.pending[string(key)]
	if ok && item.count > 0 {
		v := copyBytes(item.value)
		db.mtx.RUnlock()
		return v, nil
	}
	db.mtx.RUnlock()

	ctx := context.Background()
	if len(key) == hash.HashSize {
		v, err := db.cas.Get(ctx, types.NewDigest(key))
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, blockstore.ErrNotFound) {
			return nil, fmt.Errorf("content store get %x: %w", key, err)
		}
	}
	v, err := db.kv.Get(ctx, kvstore.ColumnKey(nil, key))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, fmt.Errorf("state item %x: %w", key, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("kvstore get %x: %w", key, err)
	}
	return v, nil
}

// Has reports whether Get would return a value for key.
func (db *HashDB) Has(key []byte) (bool, error) {
	_, err := db.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Insert adds a content item and returns its digest. Inserting the empty
// trie node is a no-op returning the empty trie digest.
func (db *HashDB) Insert(value []byte) types.Digest {
	if bytes.Equal(value, hash.EmptyNode) {
		return types.Digest(hash.EmptyTrieDigest)
	}
	digest := types.NewDigestFromData(value)

	db.mtx.Lock()
	defer db.mtx.Unlock()

	db.insertContent(digest[:], value)
	return digest
}

func (db *HashDB) insertContent(key, value []byte) {
	item, ok := db.pending[string(key)]
	if !ok {
		db.pending[string(key)] = &pendingItem{kind: contentItem, count: 1, value: copyBytes(value)}
		return
	}
	if item.kind != contentItem {
		panic(AssertError(fmt.Sprintf("hashdb: content insert over keyed item %x", key)))
	}
	item.count++
	item.value = copyBytes(value)
}

// Emplace stores value under key. If the key is the value's digest this is
// an Insert. Otherwise the value becomes a keyed item. Emplacing a keyed
// value over a pending content item is an invariant violation and panics.
func (db *HashDB) Emplace(key, value []byte) {
	db.mtx.Lock()
	defer db.mtx.Unlock()

	if bytes.Equal(key, hash.HashFunc(value)) {
		if bytes.Equal(value, hash.EmptyNode) {
			return
		}
		db.insertContent(key, value)
		return
	}

	item, ok := db.pending[string(key)]
	if !ok {
		db.pending[string(key)] = &pendingItem{kind: keyedItem, count: 1, value: copyBytes(value)}
		return
	}
	if item.kind != keyedItem {
		panic(AssertError(fmt.Sprintf("hashdb: keyed emplace over content item %x", key)))
	}
	item.count++
	item.value = copyBytes(value)
}

// Remove decrements the reference count of the item under key. Removing
// a digest the overlay does not hold records a content item with a count
// of -1. Any other key is flagged as a keyed item with a count of 0 and
// is deleted from the columnar store on Commit.
func (db *HashDB) Remove(key []byte) {
	db.mtx.Lock()
	defer db.mtx.Unlock()

	item, ok := db.pending[string(key)]
	if !ok {
		if len(key) != hash.HashSize {
			db.pending[string(key)] = &pendingItem{kind: keyedItem}
			return
		}
		db.pending[string(key)] = &pendingItem{kind: contentItem, count: -1}
		return
	}
	item.count--
}

// Commit flushes the overlay. Content items with a positive count are
// inserted into the content store with MaxExpiry. Keyed items become one
// batched write of puts and deletes in the nil column. The overlay is
// cleared only once both backing writes succeed.
func (db *HashDB) Commit(ctx context.Context) error {
	db.mtx.Lock()
	defer db.mtx.Unlock()

	keys := make([]string, 0, len(db.pending))
	for k := range db.pending {
		keys = append(keys, k)
	}
	// Ops are written in key order so every replica computes the
	// same store root.
	sort.Strings(keys)

	var (
		ops      []kvstore.Op
		inserted int
	)
	for _, k := range keys {
		item := db.pending[k]
		switch item.kind {
		case contentItem:
			if item.count <= 0 {
				continue
			}
			digest, err := db.cas.Insert(ctx, item.value, blockstore.MaxExpiry)
			if err != nil {
				return fmt.Errorf("content store insert: %w", err)
			}
			if !bytes.Equal(digest[:], []byte(k)) {
				panic(AssertError(fmt.Sprintf("hashdb: content store returned digest %s for key %x", digest, k)))
			}
			inserted++
		case keyedItem:
			key := kvstore.ColumnKey(nil, []byte(k))
			if item.count > 0 {
				ops = append(ops, kvstore.Put(key, item.value))
			} else {
				ops = append(ops, kvstore.Delete(key))
			}
		}
	}
	if len(ops) > 0 {
		if err := db.kv.Write(ctx, ops); err != nil {
			return fmt.Errorf("kvstore write: %w", err)
		}
	}
	log.Debugf("Hashdb committed %d content items and %d keyed ops", inserted, len(ops))

	db.pending = make(map[string]*pendingItem)
	return nil
}

// Discard drops every pending item.
func (db *HashDB) Discard() {
	db.mtx.Lock()
	defer db.mtx.Unlock()

	db.pending = make(map[string]*pendingItem)
}

// PendingLen returns the number of items in the overlay.
func (db *HashDB) PendingLen() int {
	db.mtx.RLock()
	defer db.mtx.RUnlock()

	return len(db.pending)
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	ret := make([]byte, len(b))
	copy(ret, b)
	return ret
}
