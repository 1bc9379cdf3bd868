// Copyright (c) 2022 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-test/deep"
	"github.com/project-illium/ilxevm/keymanager"
	"github.com/project-illium/ilxevm/params"
	"github.com/project-illium/ilxevm/repo/blockstore"
	"github.com/project-illium/ilxevm/repo/kvstore"
	"github.com/project-illium/ilxevm/repo/mock"
	itypes "github.com/project-illium/ilxevm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testStores struct {
	cas *blockstore.MemoryStore
	ds  *mock.MapDatastore
	kv  *kvstore.DatastoreService
}

func newTestStores() *testStores {
	ds := mock.NewMapDatastore()
	return &testStores{
		cas: blockstore.NewMemoryStore(),
		ds:  ds,
		kv:  kvstore.NewDatastoreService(ds),
	}
}

func newTestCache(t *testing.T, stores *testStores, opts ...Option) *Cache {
	opts = append([]Option{DefaultOptions(), ContentStore(stores.cas), KVStore(stores.kv)}, opts...)
	c, err := NewCache(opts...)
	require.NoError(t, err)
	return c
}

func initCache(t *testing.T, c *Cache, stores *testStores) {
	root, err := stores.kv.RootHash(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Init(context.Background(), root))
}

func devKey(t *testing.T) *ecdsa.PrivateKey {
	key, err := crypto.HexToECDSA(params.RegtestDevKey)
	require.NoError(t, err)
	return key
}

// pushTransfer pushes a one wei transfer from key into the block and
// emits logs as if the transfer had run code.
func pushTransfer(t *testing.T, ob *OpenBlock, key *ecdsa.PrivateKey, logs ...*types.Log) *types.Transaction {
	sv := ob.State()
	from := crypto.PubkeyToAddress(key.PublicKey)
	nonce := sv.GetNonce(from)

	signer := types.LatestSigner(ob.ChainConfig())
	tx, err := types.SignTx(types.NewTransaction(nonce, common.Address{0x01}, big.NewInt(1), 21000, big.NewInt(1), nil), signer, key)
	require.NoError(t, err)

	sender, err := ob.CheckTransaction(tx)
	require.NoError(t, err)
	assert.Equal(t, from, sender)

	ob.Prepare(tx)
	sv.SetNonce(from, nonce+1)
	sv.SubBalance(from, big.NewInt(21001))
	sv.AddBalance(common.Address{0x01}, big.NewInt(1))
	for _, l := range logs {
		sv.AddLog(l)
	}
	sv.Finalise(true)
	require.NoError(t, ob.GasPool().SubGas(21000))
	_, err = ob.Push(tx, sender, &ExecOutcome{UsedGas: 21000})
	require.NoError(t, err)
	return tx
}

func mineBlock(t *testing.T, c *Cache, fn func(ob *OpenBlock)) *SealedBlock {
	ob, err := c.NewBlock(nil)
	require.NoError(t, err)
	if fn != nil {
		fn(ob)
	}
	sealed, err := ob.Seal()
	require.NoError(t, err)
	require.NoError(t, c.AddBlock(context.Background(), sealed))
	return sealed
}

func TestCacheNotInitialized(t *testing.T) {
	c := newTestCache(t, newTestStores())
	ctx := context.Background()

	_, err := c.LatestBlockNumber()
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.BestBlockHeader()
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.BlockHash(0)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.BlockByNumber(0)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.BlockByHash(common.Hash{})
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.Block(itypes.LatestBlock())
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.Transaction(common.Hash{})
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.Receipt(common.Hash{})
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.Logs(&itypes.LogFilter{})
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.LastHashes(common.Hash{})
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.GetState(nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.NewBlock(nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.AccountBalance(common.Address{}, itypes.LatestBlock())
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.PublicKey(ctx, common.Address{})
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.LastRoot()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, c.FinalizeRoot(itypes.Digest{}), ErrNotInitialized)
	assert.ErrorIs(t, c.AddBlock(ctx, &SealedBlock{}), ErrNotInitialized)
}

func TestCacheGenesis(t *testing.T) {
	stores := newTestStores()
	c := newTestCache(t, stores)
	initCache(t, c, stores)

	n, err := c.LatestBlockNumber()
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	genesis, err := c.BlockByNumber(0)
	require.NoError(t, err)
	h, err := c.BlockHash(0)
	assert.NoError(t, err)
	assert.Equal(t, genesis.Hash(), h)

	header, err := c.BestBlockHeader()
	assert.NoError(t, err)
	assert.Equal(t, genesis.Hash(), header.Hash())
	assert.Equal(t, uint64(params.DefaultGasLimit), header.GasLimit)

	earliest, err := c.Block(itypes.EarliestBlock())
	assert.NoError(t, err)
	assert.Empty(t, deep.Equal(genesis.Header(), earliest.Header()))

	devAddr := crypto.PubkeyToAddress(devKey(t).PublicKey)
	for addr, account := range params.RegtestGenesis.Alloc {
		balance, err := c.AccountBalance(addr, itypes.LatestBlock())
		assert.NoError(t, err)
		assert.Equal(t, 0, account.Balance.Cmp(balance))
	}
	balance, err := c.AccountBalance(devAddr, itypes.EarliestBlock())
	assert.NoError(t, err)
	assert.True(t, balance.Sign() > 0)

	nonce, err := c.AccountNonce(params.ConfidentialRegistry, itypes.LatestBlock())
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)

	// A second cache over the same stores finds the same genesis.
	c2 := newTestCache(t, stores)
	initCache(t, c2, stores)
	h2, err := c2.BlockHash(0)
	assert.NoError(t, err)
	assert.Equal(t, h, h2)
}

func TestCacheInitRebuild(t *testing.T) {
	stores := newTestStores()
	ctx := context.Background()

	a := newTestCache(t, stores)
	root0, err := stores.kv.RootHash(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Init(ctx, root0))
	assert.Equal(t, 1, a.rebuilds)

	require.NoError(t, a.Init(ctx, root0))
	assert.Equal(t, 1, a.rebuilds)

	// Another writer appends a block.
	b := newTestCache(t, stores)
	initCache(t, b, stores)
	sealed := mineBlock(t, b, func(ob *OpenBlock) {
		pushTransfer(t, ob, devKey(t))
	})
	root2, err := stores.kv.RootHash(ctx)
	require.NoError(t, err)

	// Same root, stale view.
	require.NoError(t, a.Init(ctx, root0))
	n, err := a.LatestBlockNumber()
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	require.NoError(t, a.Init(ctx, root2))
	assert.Equal(t, 2, a.rebuilds)
	n, err = a.LatestBlockNumber()
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	blk, err := a.BlockByHash(sealed.Hash())
	assert.NoError(t, err)
	assert.Equal(t, sealed.Hash(), blk.Hash())

	last, err := a.LastRoot()
	assert.NoError(t, err)
	assert.Equal(t, root2, last)

	// FinalizeRoot moves the last root without a rebuild.
	require.NoError(t, a.FinalizeRoot(root0))
	require.NoError(t, a.Init(ctx, root0))
	assert.Equal(t, 2, a.rebuilds)
}

func TestCacheAddBlockRollback(t *testing.T) {
	stores := newTestStores()
	c := newTestCache(t, stores)
	initCache(t, c, stores)
	ctx := context.Background()

	ob, err := c.NewBlock(nil)
	require.NoError(t, err)
	tx := pushTransfer(t, ob, devKey(t))
	sealed, err := ob.Seal()
	require.NoError(t, err)

	stores.cas.SetError(errors.New("content store down"))
	assert.Error(t, c.AddBlock(ctx, sealed))
	n, err := c.LatestBlockNumber()
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	stores.cas.SetError(nil)
	stores.ds.SetWriteError(errors.New("disk full"))
	assert.Error(t, c.AddBlock(ctx, sealed))
	n, err = c.LatestBlockNumber()
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), n)
	_, err = c.BlockByHash(sealed.Hash())
	assert.ErrorIs(t, err, ErrNotFound)

	stores.ds.SetWriteError(nil)
	require.NoError(t, c.AddBlock(ctx, sealed))
	n, err = c.LatestBlockNumber()
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	ltx, err := c.Transaction(tx.Hash())
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), ltx.BlockNumber)

	assert.True(t, ErrorIs(c.AddBlock(ctx, sealed), ErrDuplicateBlock))
}

func TestCacheAbandonedBlock(t *testing.T) {
	stores := newTestStores()
	c := newTestCache(t, stores)
	initCache(t, c, stores)

	before := stores.ds.Dump()
	casLen := stores.cas.Len()

	ob, err := c.NewBlock(nil)
	require.NoError(t, err)
	pushTransfer(t, ob, devKey(t))
	_, err = ob.Seal()
	require.NoError(t, err)
	assert.Greater(t, c.hashdb.PendingLen(), 0)

	c.Discard()
	assert.Equal(t, 0, c.hashdb.PendingLen())
	assert.Equal(t, before, stores.ds.Dump())
	assert.Equal(t, casLen, stores.cas.Len())

	// The next block is built on the unchanged head.
	sealed := mineBlock(t, c, func(ob *OpenBlock) {
		pushTransfer(t, ob, devKey(t))
	})
	assert.Equal(t, uint64(1), sealed.Block.NumberU64())
	nonce, err := c.AccountNonce(crypto.PubkeyToAddress(devKey(t).PublicKey), itypes.LatestBlock())
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)
}

func TestCacheLastHashes(t *testing.T) {
	stores := newTestStores()
	c := newTestCache(t, stores)
	initCache(t, c, stores)

	genesis, err := c.BlockHash(0)
	require.NoError(t, err)
	b1 := mineBlock(t, c, nil)
	b2 := mineBlock(t, c, nil)

	hashes, err := c.LastHashes(b2.Hash())
	require.NoError(t, err)
	assert.Equal(t, b2.Hash(), hashes[0])
	assert.Equal(t, b1.Hash(), hashes[1])
	assert.Equal(t, genesis, hashes[2])
	for i := 3; i < len(hashes); i++ {
		assert.Equal(t, common.Hash{}, hashes[i])
	}

	_, err = c.LastHashes(common.Hash{0xff})
	assert.ErrorIs(t, err, ErrNotFound)

	ob, err := c.NewBlock(nil)
	require.NoError(t, err)
	assert.Equal(t, b2.Hash(), ob.GetHash(2))
	assert.Equal(t, genesis, ob.GetHash(0))
	assert.Equal(t, common.Hash{}, ob.GetHash(3))
	ob.Discard()
}

func TestCacheTransactionAndReceipt(t *testing.T) {
	stores := newTestStores()
	c := newTestCache(t, stores)
	initCache(t, c, stores)

	emitter := common.HexToAddress("0xe1")
	topic := common.HexToHash("0x01")
	var tx1, tx2 *types.Transaction
	sealed := mineBlock(t, c, func(ob *OpenBlock) {
		tx1 = pushTransfer(t, ob, devKey(t))
		tx2 = pushTransfer(t, ob, devKey(t), &types.Log{Address: emitter, Topics: []common.Hash{topic}, Data: []byte{1}})
	})

	ltx, err := c.Transaction(tx2.Hash())
	require.NoError(t, err)
	assert.Equal(t, tx2.Hash(), ltx.Tx.Hash())
	assert.Equal(t, sealed.Hash(), ltx.BlockHash)
	assert.Equal(t, uint64(1), ltx.Index)
	assert.Equal(t, crypto.PubkeyToAddress(devKey(t).PublicKey), ltx.From)

	r, err := c.Receipt(tx2.Hash())
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, r.Status)
	assert.Equal(t, uint64(42000), r.CumulativeGasUsed)
	assert.Equal(t, uint(1), r.TransactionIndex)
	require.Len(t, r.Logs, 1)
	assert.Equal(t, emitter, r.Logs[0].Address)
	assert.Equal(t, sealed.Hash(), r.Logs[0].BlockHash)
	assert.Equal(t, tx2.Hash(), r.Logs[0].TxHash)

	r1, err := c.Receipt(tx1.Hash())
	require.NoError(t, err)
	assert.Equal(t, uint64(21000), r1.GasUsed)

	// Receipts read back from the store match the ones sealed.
	c2 := newTestCache(t, stores)
	initCache(t, c2, stores)
	r2, err := c2.Receipt(tx2.Hash())
	require.NoError(t, err)
	assert.Equal(t, r.Logs[0].Index, r2.Logs[0].Index)
	assert.Equal(t, r.Bloom, r2.Bloom)
	assert.Equal(t, r.BlockHash, r2.BlockHash)

	_, err = c.Transaction(common.Hash{0x01})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCacheLogs(t *testing.T) {
	stores := newTestStores()
	c := newTestCache(t, stores)
	initCache(t, c, stores)

	addrA := common.HexToAddress("0xaa")
	addrB := common.HexToAddress("0xbb")
	t1 := common.HexToHash("0x01")
	t2 := common.HexToHash("0x02")

	for i := 1; i <= 10; i++ {
		var logs []*types.Log
		switch i {
		case 3, 7:
			logs = []*types.Log{{Address: addrA, Topics: []common.Hash{t1}, Data: []byte{byte(i)}}}
		case 5:
			// Bloom possible for (addrA, t1) but no single log matches.
			logs = []*types.Log{
				{Address: addrA, Topics: []common.Hash{t2}},
				{Address: addrB, Topics: []common.Hash{t1}},
			}
		}
		mineBlock(t, c, func(ob *OpenBlock) {
			pushTransfer(t, ob, devKey(t), logs...)
		})
	}

	header5, err := c.BlockByNumber(5)
	require.NoError(t, err)
	filter := &itypes.LogFilter{
		FromBlock: itypes.EarliestBlock(),
		ToBlock:   itypes.LatestBlock(),
		Addresses: []common.Address{addrA},
		Topics:    [][]common.Hash{{t1}},
	}
	for _, possibility := range filter.BloomPossibilities() {
		assert.True(t, itypes.BloomContains(header5.Bloom(), possibility))
	}

	logs, err := c.Logs(filter)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, uint64(3), logs[0].BlockNumber)
	assert.Equal(t, uint64(7), logs[1].BlockNumber)

	filter.Limit = 1
	logs, err = c.Logs(filter)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, uint64(7), logs[0].BlockNumber)

	filter.Limit = 0
	filter.FromBlock = itypes.BlockNumber(4)
	filter.ToBlock = itypes.BlockNumber(6)
	logs, err = c.Logs(filter)
	require.NoError(t, err)
	assert.Len(t, logs, 0)

	// Any address, topic t1 in first position.
	logs, err = c.Logs(&itypes.LogFilter{
		FromBlock: itypes.EarliestBlock(),
		ToBlock:   itypes.LatestBlock(),
		Topics:    [][]common.Hash{{t1}},
	})
	require.NoError(t, err)
	assert.Len(t, logs, 3)

	// Unresolvable bounds yield no logs and no error.
	logs, err = c.Logs(&itypes.LogFilter{
		FromBlock: itypes.BlockNumber(100),
		ToBlock:   itypes.LatestBlock(),
	})
	assert.NoError(t, err)
	assert.Len(t, logs, 0)
	logs, err = c.Logs(&itypes.LogFilter{
		FromBlock: itypes.EarliestBlock(),
		ToBlock:   itypes.BlockHash(common.Hash{0x01}),
	})
	assert.NoError(t, err)
	assert.Len(t, logs, 0)
}

func TestStateViewConfidentialStorage(t *testing.T) {
	stores := newTestStores()
	km := keymanager.NewMockKeyManager([32]byte{0x07})
	c := newTestCache(t, stores, KeyManager(km))
	initCache(t, c, stores)

	contract := common.HexToAddress("0xc0")
	plain := common.HexToAddress("0xd0")
	slot := common.HexToHash("0x01")
	value := common.HexToHash("0x2a")

	sealed := mineBlock(t, c, func(ob *OpenBlock) {
		sv := ob.State()
		sv.SetNonce(contract, 1)
		sv.SetNonce(plain, 1)
		sv.MarkConfidential(contract)
		assert.True(t, sv.IsConfidential(contract))
		assert.False(t, sv.IsConfidential(plain))

		sv.SetState(contract, slot, value)
		sv.SetState(plain, slot, value)
		sv.SetState(contract, common.HexToHash("0x02"), common.Hash{})
		assert.Equal(t, value, sv.GetState(contract, slot))
		assert.NotEqual(t, value, sv.RawState(contract, slot))
		assert.Equal(t, value, sv.RawState(plain, slot))
		assert.NoError(t, sv.Error())
	})
	require.NotNil(t, sealed)

	got, err := c.AccountStorage(contract, slot, itypes.LatestBlock())
	assert.NoError(t, err)
	assert.Equal(t, value, got)

	raw, err := c.RawAccountStorage(contract, slot, itypes.LatestBlock())
	assert.NoError(t, err)
	assert.NotEqual(t, value, raw)
	blob, err := stores.cas.Get(context.Background(), itypes.NewDigest(raw.Bytes()))
	assert.NoError(t, err)
	assert.Len(t, blob, 63)
	assert.NotContains(t, string(blob), string(value.Bytes()))

	confidential, err := c.IsConfidential(contract, itypes.LatestBlock())
	assert.NoError(t, err)
	assert.True(t, confidential)

	// Without a key manager confidential storage cannot be read.
	c2 := newTestCache(t, stores)
	initCache(t, c2, stores)
	_, err = c2.AccountStorage(contract, slot, itypes.LatestBlock())
	assert.ErrorIs(t, err, ErrNoKeyManager)
	got, err = c2.AccountStorage(plain, slot, itypes.LatestBlock())
	assert.NoError(t, err)
	assert.Equal(t, value, got)

	payload, err := c.PublicKey(context.Background(), contract)
	assert.NoError(t, err)
	valid, err := payload.Verify(km.SigningKey())
	assert.NoError(t, err)
	assert.True(t, valid)
}

func TestCacheNotifications(t *testing.T) {
	stores := newTestStores()
	c := newTestCache(t, stores)

	ch := make(chan *Notification, 4)
	c.Subscribe(func(n *Notification) {
		ch <- n
	})
	initCache(t, c, stores)
	sealed := mineBlock(t, c, nil)

	var connected *SealedBlock
	timeout := time.After(time.Second * 5)
	for connected == nil {
		select {
		case n := <-ch:
			if n.Type == NTBlockConnected {
				connected = n.Data.(*SealedBlock)
			}
		case <-timeout:
			t.Fatal("timed out waiting for block connected notification")
		}
	}
	assert.Equal(t, sealed.Hash(), connected.Hash())
}

func TestOpenBlockAdmission(t *testing.T) {
	stores := newTestStores()
	p := params.RegtestParams
	p.MinGasPrice = big.NewInt(10)
	c := newTestCache(t, stores, Params(&p))
	initCache(t, c, stores)

	ob, err := c.NewBlock(nil)
	require.NoError(t, err)
	signer := types.LatestSigner(ob.ChainConfig())
	key := devKey(t)

	cheap, err := types.SignTx(types.NewTransaction(0, common.Address{}, big.NewInt(0), 21000, big.NewInt(1), nil), signer, key)
	require.NoError(t, err)
	_, err = ob.CheckTransaction(cheap)
	assert.True(t, ErrorIs(err, ErrGasPriceTooLow))

	huge, err := types.SignTx(types.NewTransaction(0, common.Address{}, big.NewInt(0), params.DefaultGasLimit+1, big.NewInt(10), nil), signer, key)
	require.NoError(t, err)
	_, err = ob.CheckTransaction(huge)
	assert.True(t, ErrorIs(err, ErrInvalidTx))

	wrongChain, err := types.SignTx(types.NewTransaction(0, common.Address{}, big.NewInt(0), 21000, big.NewInt(10), nil), types.NewEIP155Signer(big.NewInt(99)), key)
	require.NoError(t, err)
	_, err = ob.CheckTransaction(wrongChain)
	assert.True(t, ErrorIs(err, ErrInvalidTx))

	ok, err := types.SignTx(types.NewTransaction(0, common.Address{}, big.NewInt(0), 21000, big.NewInt(10), nil), signer, key)
	require.NoError(t, err)
	from, err := ob.CheckTransaction(ok)
	require.NoError(t, err)
	ob.Prepare(ok)
	require.NoError(t, ob.GasPool().SubGas(params.DefaultGasLimit-10000))
	_, err = ob.Push(ok, from, &ExecOutcome{UsedGas: 21000})
	require.NoError(t, err)

	_, err = ob.CheckTransaction(ok)
	assert.True(t, ErrorIs(err, ErrDuplicateTx))

	next, err := types.SignTx(types.NewTransaction(1, common.Address{}, big.NewInt(0), 21000, big.NewInt(10), nil), signer, key)
	require.NoError(t, err)
	_, err = ob.CheckTransaction(next)
	assert.True(t, ErrorIs(err, ErrBlockGasLimit))
	ob.Discard()
}
