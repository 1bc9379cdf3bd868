// Copyright (c) 2022 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/project-illium/ilxevm/repo/kvstore"
)

// lastHashesLen is the number of ancestor hashes the EVM can see.
const lastHashesLen = 256

// blockNode represents a block in the chain. It stores the hash, the
// number and the header as well as a link to the parent making it
// possible to traverse the chain back from this blocknode.
type blockNode struct {
	hash   common.Hash
	number uint64
	header *types.Header
	parent *blockNode
}

// Hash returns the block hash of this blocknode.
func (bn *blockNode) Hash() common.Hash {
	return bn.hash
}

// Number returns the block number of this blocknode.
func (bn *blockNode) Number() uint64 {
	return bn.number
}

// Header returns the header for this blocknode.
func (bn *blockNode) Header() *types.Header {
	return types.CopyHeader(bn.header)
}

// Parent returns the parent blocknode or nil for genesis.
func (bn *blockNode) Parent() *blockNode {
	return bn.parent
}

// blockIndex is the in-memory chain index. The chain never forks so the
// index is a single list ordered by block number. Each node carries its
// header which doubles as the bloom index for log queries.
type blockIndex struct {
	byHash   map[common.Hash]*blockNode
	byNumber []*blockNode
}

func newBlockIndex() *blockIndex {
	return &blockIndex{
		byHash: make(map[common.Hash]*blockNode),
	}
}

// loadBlockIndex rebuilds the index from the persisted best block
// pointer walking parent links back to genesis.
func loadBlockIndex(ctx context.Context, kv kvstore.Service) (*blockIndex, error) {
	best, err := kvFetchBestHash(ctx, kv)
	if err != nil {
		return nil, err
	}
	var headers []*types.Header
	h := best
	for {
		header, err := kvFetchHeader(ctx, kv, h)
		if err != nil {
			return nil, err
		}
		headers = append(headers, header)
		if header.Number.Uint64() == 0 {
			break
		}
		h = header.ParentHash
	}

	bi := newBlockIndex()
	for i := len(headers) - 1; i >= 0; i-- {
		if err := bi.ExtendIndex(headers[i]); err != nil {
			return nil, err
		}
	}
	return bi, nil
}

// Tip returns the blocknode at the tip of the chain.
func (bi *blockIndex) Tip() *blockNode {
	if len(bi.byNumber) == 0 {
		return nil
	}
	return bi.byNumber[len(bi.byNumber)-1]
}

// ExtendIndex appends the header to the index and makes it the tip.
func (bi *blockIndex) ExtendIndex(header *types.Header) error {
	node := &blockNode{
		hash:   header.Hash(),
		number: header.Number.Uint64(),
		header: header,
		parent: bi.Tip(),
	}
	if node.number != uint64(len(bi.byNumber)) {
		return AssertError(fmt.Sprintf("block index: extending height %d with block number %d", len(bi.byNumber), node.number))
	}
	if node.parent != nil && node.parent.hash != header.ParentHash {
		return AssertError(fmt.Sprintf("block index: block %s does not connect to tip %s", node.hash, node.parent.hash))
	}
	bi.byHash[node.hash] = node
	bi.byNumber = append(bi.byNumber, node)
	return nil
}

// Truncate removes every node above number. It is used to roll back an
// extension whose persistence failed.
func (bi *blockIndex) Truncate(number uint64) {
	for uint64(len(bi.byNumber)) > number+1 {
		tip := bi.byNumber[len(bi.byNumber)-1]
		delete(bi.byHash, tip.hash)
		bi.byNumber = bi.byNumber[:len(bi.byNumber)-1]
	}
}

// GetNodeByNumber returns the blocknode at the provided number.
func (bi *blockIndex) GetNodeByNumber(number uint64) (*blockNode, error) {
	if number >= uint64(len(bi.byNumber)) {
		return nil, fmt.Errorf("block number %d: %w", number, ErrNotFound)
	}
	return bi.byNumber[number], nil
}

// GetNodeByHash returns the blocknode for the provided hash.
func (bi *blockIndex) GetNodeByHash(h common.Hash) (*blockNode, error) {
	node, ok := bi.byHash[h]
	if !ok {
		return nil, fmt.Errorf("block %s: %w", h, ErrNotFound)
	}
	return node, nil
}

// LastHashes returns the hashes of the block and up to 255 of its
// ancestors, newest first. Slots past genesis are the zero hash.
func (bi *blockIndex) LastHashes(h common.Hash) ([lastHashesLen]common.Hash, error) {
	var hashes [lastHashesLen]common.Hash
	node, err := bi.GetNodeByHash(h)
	if err != nil {
		return hashes, err
	}
	for i := 0; i < lastHashesLen && node != nil; i++ {
		hashes[i] = node.hash
		node = node.parent
	}
	return hashes, nil
}
