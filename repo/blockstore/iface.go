// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockstore

import (
	"context"
	"errors"
	"math"

	"github.com/project-illium/ilxevm/types"
)

// MaxExpiry is the expiry used for values that must outlive every
// state that references them.
const MaxExpiry = math.MaxUint64 / 2

// ErrNotFound is returned when the content store has no value for a
// digest.
var ErrNotFound = errors.New("content not found")

// ContentStore is an append-only, content-addressed store. A value's
// key is the keccak-256 digest of the value. There is no delete; values
// live until their expiry.
type ContentStore interface {
	// Get returns the value stored under the digest or ErrNotFound.
	Get(ctx context.Context, digest types.Digest) ([]byte, error)

	// Insert stores the value and returns its digest. Inserting a
	// value that is already present is a no-op.
	Insert(ctx context.Context, value []byte, expiry uint64) (types.Digest, error)
}
