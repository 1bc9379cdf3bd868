// Copyright (c) 2022 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/project-illium/ilxevm/repo/kvstore"
	"github.com/project-illium/ilxevm/repo/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBlockHeader(number uint64, parent common.Hash) *types.Header {
	return &types.Header{
		ParentHash: parent,
		UncleHash:  types.EmptyUncleHash,
		Root:       types.EmptyRootHash,
		TxHash:     types.EmptyTxsHash,
		Difficulty: new(big.Int),
		Number:     new(big.Int).SetUint64(number),
		GasLimit:   1_000_000,
		Time:       number * 5,
	}
}

func populateDatabase(t *testing.T, kv kvstore.Service, n uint64) []*types.Header {
	headers := make([]*types.Header, 0, n)
	var parent common.Hash
	for i := uint64(0); i < n; i++ {
		header := randomBlockHeader(i, parent)
		block := types.NewBlockWithHeader(header)
		ops, err := blockOps(block, nil, nil)
		require.NoError(t, err)
		require.NoError(t, kv.Write(context.Background(), ops))
		headers = append(headers, header)
		parent = header.Hash()
	}
	return headers
}

func TestBlockIndex(t *testing.T) {
	// Create a new memory datastore and populate it with
	// 2000 block headers.
	kv := kvstore.NewDatastoreService(mock.NewMapDatastore())
	headers := populateDatabase(t, kv, 2000)

	// Initialize the index
	index, err := loadBlockIndex(context.Background(), kv)
	require.NoError(t, err)
	require.NotNil(t, index.Tip())
	assert.Equal(t, uint64(1999), index.Tip().Number())
	assert.Equal(t, headers[1999].Hash(), index.Tip().Hash())

	// Traverse the index backwards from the tip to genesis
	node := index.Tip()
	for i := 0; i < 1999; i++ {
		node = node.Parent()
		require.NotNil(t, node)
	}
	assert.Equal(t, uint64(0), node.Number())
	assert.Nil(t, node.Parent())

	// Test get by number
	node, err = index.GetNodeByNumber(1500)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1500), node.Number())
	assert.Equal(t, headers[1500].Hash(), node.Hash())

	_, err = index.GetNodeByNumber(2000)
	assert.ErrorIs(t, err, ErrNotFound)

	// Test get by hash
	node2, err := index.GetNodeByHash(node.Hash())
	assert.NoError(t, err)
	assert.Equal(t, node, node2)

	_, err = index.GetNodeByHash(common.Hash{0x01})
	assert.ErrorIs(t, err, ErrNotFound)

	// Extend the index with a new header
	newHeader := randomBlockHeader(2000, index.Tip().Hash())
	assert.NoError(t, index.ExtendIndex(newHeader))
	assert.Equal(t, newHeader.Hash(), index.Tip().Hash())

	// Headers that do not extend the tip are rejected
	assert.Error(t, index.ExtendIndex(randomBlockHeader(2002, index.Tip().Hash())))
	assert.Error(t, index.ExtendIndex(randomBlockHeader(2001, common.Hash{0x01})))

	// Roll the extension back
	index.Truncate(1999)
	assert.Equal(t, headers[1999].Hash(), index.Tip().Hash())
	_, err = index.GetNodeByHash(newHeader.Hash())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlockIndexLastHashes(t *testing.T) {
	kv := kvstore.NewDatastoreService(mock.NewMapDatastore())
	headers := populateDatabase(t, kv, 300)

	index, err := loadBlockIndex(context.Background(), kv)
	require.NoError(t, err)

	hashes, err := index.LastHashes(headers[299].Hash())
	require.NoError(t, err)
	for i := 0; i < lastHashesLen; i++ {
		assert.Equal(t, headers[299-i].Hash(), hashes[i])
	}

	hashes, err = index.LastHashes(headers[10].Hash())
	require.NoError(t, err)
	for i := 0; i <= 10; i++ {
		assert.Equal(t, headers[10-i].Hash(), hashes[i])
	}
	for i := 11; i < lastHashesLen; i++ {
		assert.Equal(t, common.Hash{}, hashes[i])
	}

	_, err = index.LastHashes(common.Hash{0x01})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadBlockIndexEmpty(t *testing.T) {
	kv := kvstore.NewDatastoreService(mock.NewMapDatastore())
	_, err := loadBlockIndex(context.Background(), kv)
	assert.ErrorIs(t, err, ErrNotFound)
}
