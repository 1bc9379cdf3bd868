// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/ethereum/go-ethereum/ethdb"
)

var _ ethdb.KeyValueStore = (*HashDB)(nil)

// Put stores value under key in the overlay.
func (db *HashDB) Put(key []byte, value []byte) error {
	db.Emplace(key, value)
	return nil
}

// Delete removes one reference to key from the overlay.
func (db *HashDB) Delete(key []byte) error {
	db.Remove(key)
	return nil
}

func (db *HashDB) Stat(property string) (string, error) {
	return "", nil
}

func (db *HashDB) Compact(start []byte, limit []byte) error {
	return nil
}

func (db *HashDB) Close() error {
	return nil
}

// NewBatch returns a write batch that replays into the overlay on Write.
func (db *HashDB) NewBatch() ethdb.Batch {
	return &hashDBBatch{db: db}
}

func (db *HashDB) NewBatchWithSize(size int) ethdb.Batch {
	return &hashDBBatch{db: db, ops: make([]batchOp, 0, size)}
}

// NewIterator returns an empty iterator. The content store cannot be
// enumerated so the iterator's Error reports ErrIterationUnsupported.
func (db *HashDB) NewIterator(prefix []byte, start []byte) ethdb.Iterator {
	return emptyIterator{}
}

// NewSnapshot returns a read view over the adapter. Content items are
// immutable so the view reads through to the adapter itself.
func (db *HashDB) NewSnapshot() (ethdb.Snapshot, error) {
	return &hashDBSnapshot{db: db}, nil
}

type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

type hashDBBatch struct {
	db   *HashDB
	ops  []batchOp
	size int
}

func (b *hashDBBatch) Put(key []byte, value []byte) error {
	b.ops = append(b.ops, batchOp{key: copyBytes(key), value: copyBytes(value)})
	b.size += len(key) + len(value)
	return nil
}

func (b *hashDBBatch) Delete(key []byte) error {
	b.ops = append(b.ops, batchOp{key: copyBytes(key), delete: true})
	b.size += len(key)
	return nil
}

func (b *hashDBBatch) ValueSize() int {
	return b.size
}

func (b *hashDBBatch) Write() error {
	return b.Replay(b.db)
}

func (b *hashDBBatch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}

func (b *hashDBBatch) Replay(w ethdb.KeyValueWriter) error {
	for _, op := range b.ops {
		if op.delete {
			if err := w.Delete(op.key); err != nil {
				return err
			}
			continue
		}
		if err := w.Put(op.key, op.value); err != nil {
			return err
		}
	}
	return nil
}

type hashDBSnapshot struct {
	db *HashDB
}

func (s *hashDBSnapshot) Has(key []byte) (bool, error) {
	return s.db.Has(key)
}

func (s *hashDBSnapshot) Get(key []byte) ([]byte, error) {
	return s.db.Get(key)
}

func (s *hashDBSnapshot) Release() {}

type emptyIterator struct{}

func (emptyIterator) Next() bool    { return false }
func (emptyIterator) Error() error  { return ErrIterationUnsupported }
func (emptyIterator) Key() []byte   { return nil }
func (emptyIterator) Value() []byte { return nil }
func (emptyIterator) Release()      {}
