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
	"github.com/ethereum/go-ethereum/trie"
	"github.com/go-test/deep"
	"github.com/project-illium/ilxevm/params"
	"github.com/project-illium/ilxevm/repo/kvstore"
	"github.com/project-illium/ilxevm/repo/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBlock(t *testing.T, header *types.Header, nTxs int) (*types.Block, []*Receipt, []common.Address) {
	key := devKey(t)
	signer := types.LatestSigner(params.RegtestParams.ChainConfig)
	var (
		txs      []*types.Transaction
		receipts []*Receipt
		senders  []common.Address
	)
	for i := 0; i < nTxs; i++ {
		tx, err := types.SignTx(types.NewTransaction(uint64(i), common.Address{0x02}, big.NewInt(1), 21000, big.NewInt(1), []byte{byte(i)}), signer, key)
		require.NoError(t, err)
		txs = append(txs, tx)
		senders = append(senders, common.Address{0x01})
		r := &types.Receipt{
			Status:            types.ReceiptStatusSuccessful,
			CumulativeGasUsed: uint64(i+1) * 21000,
			GasUsed:           21000,
			Logs: []*types.Log{{
				Address: common.Address{0x03},
				Topics:  []common.Hash{{byte(i)}},
				Data:    []byte{0xaa, byte(i)},
			}},
		}
		r.Bloom = types.CreateBloom(types.Receipts{r})
		receipts = append(receipts, &Receipt{Receipt: r, ExecStatus: StatusSuccess, Output: []byte{byte(i)}})
	}
	block := types.NewBlock(header, txs, nil, gethReceipts(receipts), trie.NewStackTrie(nil))
	return block, receipts, senders
}

func TestPutGetHeaderAndBody(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewDatastoreService(mock.NewMapDatastore())
	block, receipts, senders := randomBlock(t, randomBlockHeader(5, common.Hash{0x05}), 3)

	ops, err := blockOps(block, receipts, senders)
	require.NoError(t, err)
	require.NoError(t, kv.Write(ctx, ops))

	header, err := kvFetchHeader(ctx, kv, block.Hash())
	assert.NoError(t, err)
	assert.Equal(t, block.Hash(), header.Hash())

	body, err := kvFetchBody(ctx, kv, block.Hash())
	assert.NoError(t, err)
	require.Len(t, body.Transactions, 3)
	for i, tx := range body.Transactions {
		assert.Equal(t, block.Transactions()[i].Hash(), tx.Hash())
	}

	h, err := kvFetchBlockHash(ctx, kv, 5)
	assert.NoError(t, err)
	assert.Equal(t, block.Hash(), h)

	best, err := kvFetchBestHash(ctx, kv)
	assert.NoError(t, err)
	assert.Equal(t, block.Hash(), best)

	details, err := kvFetchDetails(ctx, kv, block.Hash())
	assert.NoError(t, err)
	assert.Empty(t, deep.Equal(&blockDetails{Number: 5, Parent: common.Hash{0x05}}, details))

	_, err = kvFetchHeader(ctx, kv, common.Hash{0x09})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = kvFetchBlockHash(ctx, kv, 6)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutGetReceipts(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewDatastoreService(mock.NewMapDatastore())
	block, receipts, senders := randomBlock(t, randomBlockHeader(7, common.Hash{0x07}), 2)

	ops, err := blockOps(block, receipts, senders)
	require.NoError(t, err)
	require.NoError(t, kv.Write(ctx, ops))

	fetched, err := kvFetchReceipts(ctx, kv, block.Hash())
	require.NoError(t, err)
	require.NoError(t, deriveReceiptFields(fetched, block))
	require.NoError(t, deriveReceiptFields(receipts, block))
	require.Len(t, fetched, 2)
	for i := range receipts {
		assert.Equal(t, receipts[i].Bloom, fetched[i].Bloom)
		assert.Equal(t, receipts[i].Output, fetched[i].Output)
		assert.Equal(t, receipts[i].ExecStatus, fetched[i].ExecStatus)
		assert.Empty(t, deep.Equal(receipts[i].Logs, fetched[i].Logs))
		assert.Equal(t, uint(i), fetched[i].Logs[0].Index)
	}

	lookup, err := kvFetchTxLookup(ctx, kv, block.Transactions()[1].Hash())
	require.NoError(t, err)
	assert.Empty(t, deep.Equal(&txLookup{BlockHash: block.Hash(), Index: 1, From: common.Address{0x01}}, lookup))
}

func TestDeriveReceiptFieldsMismatch(t *testing.T) {
	block, receipts, _ := randomBlock(t, randomBlockHeader(1, common.Hash{}), 2)
	assert.Error(t, deriveReceiptFields(receipts[:1], block))
}
