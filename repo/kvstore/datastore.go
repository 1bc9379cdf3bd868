// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package kvstore

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ipfs/go-datastore"
	"github.com/project-illium/ilxevm/repo"
	"github.com/project-illium/ilxevm/types"
)

var _ Service = (*DatastoreService)(nil)

// DatastoreService implements Service on top of a local datastore. The
// root hash is a hash chain over every applied batch:
//
//	root' = keccak256(root || op_0 || ... || op_n)
//
// with each op encoded as kind || len(key) || key || len(value) || value
// using 8-byte little-endian lengths. The root is stored in the same
// datastore batch as the operations.
type DatastoreService struct {
	ds  datastore.Batching
	mtx sync.Mutex
}

func NewDatastoreService(ds datastore.Batching) *DatastoreService {
	return &DatastoreService{ds: ds}
}

func dsKey(key []byte) datastore.Key {
	return datastore.NewKey(repo.KVStorePrefix + hex.EncodeToString(key))
}

func (s *DatastoreService) Get(ctx context.Context, key []byte) ([]byte, error) {
	val, err := s.ds.Get(ctx, dsKey(key))
	if err == datastore.ErrNotFound {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("kvstore get: %w", err)
	}
	return val, nil
}

func (s *DatastoreService) RootHash(ctx context.Context) (types.Digest, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.fetchRoot(ctx)
}

func (s *DatastoreService) fetchRoot(ctx context.Context) (types.Digest, error) {
	val, err := s.ds.Get(ctx, datastore.NewKey(repo.KVStoreRootKey))
	if err == datastore.ErrNotFound {
		return types.Digest{}, nil
	} else if err != nil {
		return types.Digest{}, fmt.Errorf("kvstore root: %w", err)
	}
	return types.NewDigest(val), nil
}

func (s *DatastoreService) Write(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	root, err := s.fetchRoot(ctx)
	if err != nil {
		return err
	}

	batch, err := s.ds.Batch(ctx)
	if err != nil {
		return err
	}

	h := crypto.NewKeccakState()
	h.Write(root[:])
	for _, op := range ops {
		switch op.Kind {
		case OpPut:
			if err := batch.Put(ctx, dsKey(op.Key), op.Value); err != nil {
				return err
			}
		case OpDelete:
			if err := batch.Delete(ctx, dsKey(op.Key)); err != nil {
				return err
			}
		default:
			return fmt.Errorf("kvstore: unknown op kind %d", op.Kind)
		}
		h.Write(encodeOp(op))
	}

	var newRoot types.Digest
	h.Read(newRoot[:])
	if err := batch.Put(ctx, datastore.NewKey(repo.KVStoreRootKey), newRoot[:]); err != nil {
		return err
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("kvstore commit: %w", err)
	}
	return nil
}

func encodeOp(op Op) []byte {
	b := make([]byte, 0, 1+8+len(op.Key)+8+len(op.Value))
	b = append(b, byte(op.Kind))
	b = binary.LittleEndian.AppendUint64(b, uint64(len(op.Key)))
	b = append(b, op.Key...)
	b = binary.LittleEndian.AppendUint64(b, uint64(len(op.Value)))
	b = append(b, op.Value...)
	return b
}
