// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package kvstore

import (
	"context"
	"encoding/binary"
	"errors"

	"github.com/project-illium/ilxevm/types"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("key not found")

// OpKind is the kind of a write operation.
type OpKind uint8

const (
	OpPut OpKind = iota
	OpDelete
)

// Op is a single mutation in a batched write.
type Op struct {
	Kind  OpKind
	Key   []byte
	Value []byte
}

func Put(key, value []byte) Op {
	return Op{Kind: OpPut, Key: key, Value: value}
}

func Delete(key []byte) Op {
	return Op{Kind: OpDelete, Key: key}
}

// Service is a mutable, replicated key/value store. Every batched write
// is applied atomically and advances the store's root hash.
type Service interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Write applies the operations in order as one atomic batch.
	Write(ctx context.Context, ops []Op) error

	// RootHash returns the digest committing to the store's contents.
	RootHash(ctx context.Context) (types.Digest, error)
}

// Column returns a pointer to the column id for use with ColumnKey.
func Column(col uint32) *uint32 {
	return &col
}

// ColumnKey namespaces key under the column. The prefix is the 4-byte
// little-endian encoding of col+1, or four zero bytes for a nil column.
func ColumnKey(col *uint32, key []byte) []byte {
	ret := make([]byte, 4+len(key))
	if col != nil {
		binary.LittleEndian.PutUint32(ret[:4], *col+1)
	}
	copy(ret[4:], key)
	return ret
}
