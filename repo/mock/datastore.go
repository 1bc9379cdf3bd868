// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package mock

import (
	"context"
	"errors"
	"sync"

	datastore "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	"github.com/project-illium/ilxevm/repo"
)

var _ repo.Datastore = (*MapDatastore)(nil)

// MapDatastore is an in-memory repo.Datastore. Writes can be made to
// fail with SetWriteError to exercise backing-service failures.
type MapDatastore struct {
	mtx      sync.RWMutex
	values   *datastore.MapDatastore
	writeErr error
}

func NewMapDatastore() *MapDatastore {
	return &MapDatastore{values: datastore.NewMapDatastore()}
}

// SetWriteError makes every subsequent Put, Delete and batch commit
// return err. A nil err restores normal operation.
func (ds *MapDatastore) SetWriteError(err error) {
	ds.mtx.Lock()
	defer ds.mtx.Unlock()
	ds.writeErr = err
}

// Dump returns a copy of every key/value pair in the datastore.
func (ds *MapDatastore) Dump() map[string][]byte {
	ds.mtx.RLock()
	defer ds.mtx.RUnlock()

	out := make(map[string][]byte)
	results, err := ds.values.Query(context.Background(), query.Query{})
	if err != nil {
		return out
	}
	entries, err := results.Rest()
	if err != nil {
		return out
	}
	for _, e := range entries {
		v := make([]byte, len(e.Value))
		copy(v, e.Value)
		out[e.Key] = v
	}
	return out
}

func (ds *MapDatastore) Get(ctx context.Context, key datastore.Key) ([]byte, error) {
	ds.mtx.RLock()
	defer ds.mtx.RUnlock()
	return ds.values.Get(ctx, key)
}

func (ds *MapDatastore) Has(ctx context.Context, key datastore.Key) (bool, error) {
	ds.mtx.RLock()
	defer ds.mtx.RUnlock()
	return ds.values.Has(ctx, key)
}

func (ds *MapDatastore) GetSize(ctx context.Context, key datastore.Key) (int, error) {
	ds.mtx.RLock()
	defer ds.mtx.RUnlock()
	return ds.values.GetSize(ctx, key)
}

func (ds *MapDatastore) Query(ctx context.Context, q query.Query) (query.Results, error) {
	ds.mtx.RLock()
	defer ds.mtx.RUnlock()
	results, err := ds.values.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	entries, err := results.Rest()
	if err != nil {
		return nil, err
	}
	return query.ResultsWithEntries(q, entries), nil
}

func (ds *MapDatastore) Put(ctx context.Context, key datastore.Key, value []byte) error {
	ds.mtx.Lock()
	defer ds.mtx.Unlock()
	if ds.writeErr != nil {
		return ds.writeErr
	}
	return ds.values.Put(ctx, key, value)
}

func (ds *MapDatastore) Delete(ctx context.Context, key datastore.Key) error {
	ds.mtx.Lock()
	defer ds.mtx.Unlock()
	if ds.writeErr != nil {
		return ds.writeErr
	}
	return ds.values.Delete(ctx, key)
}

func (ds *MapDatastore) Sync(ctx context.Context, prefix datastore.Key) error {
	return nil
}

func (ds *MapDatastore) Close() error {
	return nil
}

func (ds *MapDatastore) DiskUsage(ctx context.Context) (uint64, error) {
	return 0, nil
}

func (ds *MapDatastore) Batch(ctx context.Context) (datastore.Batch, error) {
	return ds.NewTransaction(ctx, false)
}

func (ds *MapDatastore) NewTransaction(ctx context.Context, readOnly bool) (datastore.Txn, error) {
	return &txn{
		readOnly: readOnly,
		ds:       ds,
		puts:     make(map[datastore.Key][]byte),
		deletes:  make(map[datastore.Key]struct{}),
	}, nil
}

type txn struct {
	readOnly bool
	ds       *MapDatastore
	puts     map[datastore.Key][]byte
	deletes  map[datastore.Key]struct{}
}

func (t *txn) Get(ctx context.Context, key datastore.Key) (value []byte, err error) {
	if v, ok := t.puts[key]; ok {
		return v, nil
	}
	if _, ok := t.deletes[key]; ok {
		return nil, datastore.ErrNotFound
	}
	return t.ds.Get(ctx, key)
}

func (t *txn) Has(ctx context.Context, key datastore.Key) (exists bool, err error) {
	if _, ok := t.puts[key]; ok {
		return true, nil
	}
	if _, ok := t.deletes[key]; ok {
		return false, nil
	}
	return t.ds.Has(ctx, key)
}

func (t *txn) GetSize(ctx context.Context, key datastore.Key) (size int, err error) {
	return t.ds.GetSize(ctx, key)
}

func (t *txn) Query(ctx context.Context, q query.Query) (query.Results, error) {
	return t.ds.Query(ctx, q)
}

func (t *txn) Put(ctx context.Context, key datastore.Key, value []byte) error {
	if t.readOnly {
		return errors.New("transaction is read only")
	}
	delete(t.deletes, key)
	t.puts[key] = value
	return nil
}

func (t *txn) Delete(ctx context.Context, key datastore.Key) error {
	if t.readOnly {
		return errors.New("transaction is read only")
	}
	delete(t.puts, key)
	t.deletes[key] = struct{}{}
	return nil
}

// Commit applies the transaction atomically with respect to the
// injected write error: either every write lands or none does.
func (t *txn) Commit(ctx context.Context) error {
	t.ds.mtx.Lock()
	defer t.ds.mtx.Unlock()
	if t.ds.writeErr != nil {
		return t.ds.writeErr
	}
	for k, v := range t.puts {
		if err := t.ds.values.Put(ctx, k, v); err != nil {
			return err
		}
	}
	for k := range t.deletes {
		if err := t.ds.values.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (t *txn) Discard(ctx context.Context) {
	t.puts = make(map[datastore.Key][]byte)
	t.deletes = make(map[datastore.Key]struct{})
}
