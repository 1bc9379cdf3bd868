// Copyright (c) 2022 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/project-illium/ilxevm/confidential"
	"github.com/project-illium/ilxevm/keymanager"
	"github.com/project-illium/ilxevm/params"
	"github.com/project-illium/ilxevm/repo/kvstore"
	itypes "github.com/project-illium/ilxevm/types"
)

// Cache is the node's view of the chain. It keeps an in-memory index of
// every block, serves block, transaction, receipt, log and state queries,
// opens new blocks on the head and appends sealed ones.
//
// The chain data lives in the key/value service which other processes may
// write to. Init must be called with the store's current root before each
// batch. The index is rebuilt whenever the root differs from the last one
// the cache saw.
type Cache struct {
	params *params.NetworkParams
	kv     kvstore.Service
	km     keymanager.KeyManager
	hashdb *HashDB
	sdb    state.Database

	index    *blockIndex
	bodies   *lru.Cache[common.Hash, *types.Body]
	receipts *lru.Cache[common.Hash, []*Receipt]
	lastRoot itypes.Digest
	rebuilds int
	tracing  bool

	// mtx guards the index and the HashDB for each logical operation
	mtx sync.Mutex

	notifications     []NotificationCallback
	notificationsLock sync.RWMutex
}

// NewCache returns an uninitialized cache. Every operation other than
// Init returns ErrNotInitialized until Init succeeds.
func NewCache(opts ...Option) (*Cache, error) {
	var cfg config
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	bodies, err := lru.New[common.Hash, *types.Body](cfg.cacheSize)
	if err != nil {
		return nil, err
	}
	receipts, err := lru.New[common.Hash, []*Receipt](cfg.cacheSize)
	if err != nil {
		return nil, err
	}

	hashdb := NewHashDB(cfg.contentStore, cfg.kvstore)
	return &Cache{
		params:   cfg.params,
		kv:       cfg.kvstore,
		km:       cfg.keyManager,
		hashdb:   hashdb,
		sdb:      state.NewDatabase(rawdb.NewDatabase(hashdb)),
		bodies:   bodies,
		receipts: receipts,
		tracing:  cfg.tracing,
	}, nil
}

// Init makes the cache valid for the store root. It is a no-op if the
// index exists and root is the last root seen. Otherwise genesis is
// written if missing and the index is rebuilt from the store.
func (c *Cache) Init(ctx context.Context, root itypes.Digest) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.index != nil && c.lastRoot == root {
		return nil
	}
	if err := c.ensureGenesis(ctx); err != nil {
		return err
	}
	index, err := loadBlockIndex(ctx, c.kv)
	if err != nil {
		return fmt.Errorf("rebuild block index: %w", err)
	}
	c.index = index
	c.lastRoot = root
	c.rebuilds++
	c.bodies.Purge()
	c.receipts.Purge()

	log.Debugw("Block index rebuilt", "root", root.String(), "height", index.Tip().Number())
	c.sendNotification(NTIndexRebuilt, root)
	return nil
}

// ensureGenesis writes the genesis block and state unless the store
// already holds block zero.
func (c *Cache) ensureGenesis(ctx context.Context) error {
	_, err := kvFetchBlockHash(ctx, c.kv, 0)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	block, err := commitGenesisState(c.sdb, c.params.Genesis)
	if err != nil {
		c.hashdb.Discard()
		return ruleError(ErrInvalidGenesis, err.Error())
	}
	ops, err := blockOps(block, nil, nil)
	if err != nil {
		c.hashdb.Discard()
		return err
	}
	if err := c.hashdb.Commit(ctx); err != nil {
		c.hashdb.Discard()
		return err
	}
	if err := c.kv.Write(ctx, ops); err != nil {
		return fmt.Errorf("write genesis: %w", err)
	}
	log.Infow("Wrote genesis block", "hash", block.Hash().String(), "root", block.Root().String())
	return nil
}

// FinalizeRoot records root as the latest committed root without
// rebuilding the index. The batch controller calls it after a block it
// appended has been written.
func (c *Cache) FinalizeRoot(root itypes.Digest) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.index == nil {
		return ErrNotInitialized
	}
	c.lastRoot = root
	return nil
}

// LastRoot returns the last store root the cache was made valid for.
func (c *Cache) LastRoot() (itypes.Digest, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.index == nil {
		return itypes.Digest{}, ErrNotInitialized
	}
	return c.lastRoot, nil
}

// Params returns the network parameters of the cache.
func (c *Cache) Params() *params.NetworkParams {
	return c.params
}

// GetState returns a state view at the best block wired to cctx.
func (c *Cache) GetState(cctx *confidential.Context) (*StateView, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.index == nil {
		return nil, ErrNotInitialized
	}
	return c.stateAt(c.index.Tip().header.Root, cctx)
}

func (c *Cache) stateAt(root common.Hash, cctx *confidential.Context) (*StateView, error) {
	sdb, err := state.New(root, c.sdb, nil)
	if err != nil {
		return nil, fmt.Errorf("open state at %s: %w", root, err)
	}
	return newStateView(sdb, c.hashdb, c.km, cctx), nil
}

// NewBlock opens a block on top of the best block.
func (c *Cache) NewBlock(cctx *confidential.Context) (*OpenBlock, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.index == nil {
		return nil, ErrNotInitialized
	}
	tip := c.index.Tip()
	sv, err := c.stateAt(tip.header.Root, cctx)
	if err != nil {
		return nil, err
	}
	lastHashes, err := c.index.LastHashes(tip.hash)
	if err != nil {
		return nil, err
	}
	header := &types.Header{
		ParentHash: tip.hash,
		UncleHash:  types.EmptyUncleHash,
		Coinbase:   common.Address{},
		Difficulty: new(big.Int),
		Number:     new(big.Int).SetUint64(tip.number + 1),
		GasLimit:   c.params.Genesis.GasLimit,
		Time:       tip.header.Time,
	}
	return &OpenBlock{
		header:      header,
		state:       sv,
		chainConfig: c.params.ChainConfig,
		signer:      types.LatestSigner(c.params.ChainConfig),
		minGasPrice: c.params.MinGasPrice,
		lastHashes:  lastHashes,
		tracing:     c.tracing,
		gasPool:     new(core.GasPool).AddGas(header.GasLimit),
		seen:        make(map[common.Hash]struct{}),
	}, nil
}

// Discard drops the HashDB overlay. It is used when a batch is abandoned.
func (c *Cache) Discard() {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.hashdb.Discard()
}

// AddBlock appends a sealed block to the chain. The in-memory index is
// extended first, then the HashDB is flushed and finally the columnar
// delta is written. If either write fails the index extension is rolled
// back.
func (c *Cache) AddBlock(ctx context.Context, sealed *SealedBlock) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.index == nil {
		return ErrNotInitialized
	}
	block := sealed.Block
	tip := c.index.Tip()
	if _, err := c.index.GetNodeByHash(block.Hash()); err == nil {
		return ruleError(ErrDuplicateBlock, fmt.Sprintf("block %s already in chain", block.Hash()))
	}
	if block.ParentHash() != tip.hash {
		return ruleError(ErrDoesNotConnect, fmt.Sprintf("block parent %s is not the best block %s", block.ParentHash(), tip.hash))
	}
	if block.NumberU64() != tip.number+1 {
		return ruleError(ErrInvalidHeight, fmt.Sprintf("block number %d does not follow %d", block.NumberU64(), tip.number))
	}

	ops, err := blockOps(block, sealed.Receipts, sealed.Senders)
	if err != nil {
		return err
	}
	if err := c.index.ExtendIndex(block.Header()); err != nil {
		return err
	}
	if err := c.hashdb.Commit(ctx); err != nil {
		c.index.Truncate(tip.number)
		return err
	}
	if err := c.kv.Write(ctx, ops); err != nil {
		c.index.Truncate(tip.number)
		return fmt.Errorf("write block %d: %w", block.NumberU64(), err)
	}
	c.bodies.Add(block.Hash(), block.Body())
	c.receipts.Add(block.Hash(), sealed.Receipts)

	log.Debugw("Block appended", "number", block.NumberU64(), "hash", block.Hash().String(), "txs", len(block.Transactions()))
	c.sendNotification(NTBlockConnected, sealed)
	return nil
}
