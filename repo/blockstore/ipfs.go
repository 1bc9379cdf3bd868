// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockstore

import (
	"context"
	"fmt"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	bstore "github.com/ipfs/go-ipfs-blockstore"
	ipld "github.com/ipfs/go-ipld-format"
	"github.com/multiformats/go-multihash"
	"github.com/project-illium/ilxevm/repo"
	"github.com/project-illium/ilxevm/types"
)

var _ ContentStore = (*IPFSStore)(nil)

// IPFSStore is a ContentStore backed by an IPFS blockstore. Values are
// stored as raw blocks addressed by a CIDv1 carrying the keccak-256
// multihash of the value. The blockstore has no expiry so values are
// kept forever, which satisfies any requested expiry.
type IPFSStore struct {
	bs bstore.Blockstore
}

// NewIPFSStore returns a content store living under its own namespace
// of the given datastore.
func NewIPFSStore(ds datastore.Batching) *IPFSStore {
	nds := namespace.Wrap(ds, datastore.NewKey(repo.ContentStorePrefix))
	return &IPFSStore{bs: bstore.NewBlockstore(nds)}
}

// DigestToCid converts a keccak-256 digest into the CID used to store
// the value.
func DigestToCid(digest types.Digest) (cid.Cid, error) {
	mh, err := multihash.Encode(digest.Bytes(), multihash.KECCAK_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, multihash.Multihash(mh)), nil
}

func (s *IPFSStore) Get(ctx context.Context, digest types.Digest) ([]byte, error) {
	c, err := DigestToCid(digest)
	if err != nil {
		return nil, err
	}
	blk, err := s.bs.Get(ctx, c)
	if ipld.IsNotFound(err) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("blockstore get %s: %w", digest, err)
	}
	return blk.RawData(), nil
}

func (s *IPFSStore) Insert(ctx context.Context, value []byte, expiry uint64) (types.Digest, error) {
	digest := types.NewDigestFromData(value)
	c, err := DigestToCid(digest)
	if err != nil {
		return types.Digest{}, err
	}
	blk, err := blocks.NewBlockWithCid(value, c)
	if err != nil {
		return types.Digest{}, err
	}
	if err := s.bs.Put(ctx, blk); err != nil {
		return types.Digest{}, fmt.Errorf("blockstore put %s: %w", digest, err)
	}
	return digest, nil
}
