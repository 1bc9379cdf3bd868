// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/project-illium/ilxevm/blockchain"
	"github.com/project-illium/ilxevm/evm"
	"github.com/project-illium/ilxevm/repo/kvstore"
	itypes "github.com/project-illium/ilxevm/types"
)

var (
	// ErrNoBatch is returned by Execute and End outside of a batch.
	ErrNoBatch = errors.New("no batch in progress")

	// ErrBatchInProgress is returned by Start while a batch is open.
	ErrBatchInProgress = errors.New("batch already in progress")
)

// Controller turns a batch of raw transactions into one block. A batch
// is opened with Start, fed with Execute and either committed with End
// or rolled back with Abort. The controller owns the chain cache.
type Controller struct {
	cache  *blockchain.Cache
	kv     kvstore.Service
	engine *evm.Engine

	block *blockchain.OpenBlock
	mtx   sync.Mutex
}

// NewController returns a controller with no batch in progress.
func NewController(opts ...Option) (*Controller, error) {
	var cfg config
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cache, err := blockchain.NewCache(cfg.cacheOptions()...)
	if err != nil {
		return nil, err
	}
	return &Controller{
		cache:  cache,
		kv:     cfg.kvstore,
		engine: evm.NewEngine(cfg.keyManager),
	}, nil
}

// Cache returns the chain cache for queries. It is valid for the root
// of the last batch.
func (c *Controller) Cache() *blockchain.Cache {
	return c.cache
}

// Start reads the current root of the key/value service, makes the cache
// valid for it and opens a block on the best block. The block timestamp
// is set to timestamp unless that is before the parent's.
func (c *Controller) Start(ctx context.Context, timestamp uint64) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.block != nil {
		return ErrBatchInProgress
	}
	root, err := c.kv.RootHash(ctx)
	if err != nil {
		return fmt.Errorf("read store root: %w", err)
	}
	if err := c.cache.Init(ctx, root); err != nil {
		return err
	}
	block, err := c.cache.NewBlock(nil)
	if err != nil {
		return err
	}
	block.SetTimestamp(timestamp)
	c.block = block

	log.Debugw("Batch started", "root", root.String(), "number", block.Header().Number)
	return nil
}

// Execute decodes a raw transaction and applies it to the open block.
//
// An error means the transaction was not included. Rule violations are
// blockchain.RuleErrors: ErrInvalidTx for undecodable or invalid
// transactions, ErrDuplicateTx, ErrGasPriceTooLow and ErrBlockGasLimit
// when the block has no room left. A transaction whose code reverted or
// whose confidential payload was rejected is included and reported in
// the result.
func (c *Controller) Execute(ctx context.Context, rawTx []byte) (*evm.Result, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.block == nil {
		return nil, ErrNoBatch
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(rawTx); err != nil {
		return nil, blockchain.NewRuleError(blockchain.ErrInvalidTx, fmt.Sprintf("decode transaction: %s", err))
	}
	res, err := c.engine.Apply(ctx, c.block, tx)
	if err != nil {
		var ruleErr blockchain.RuleError
		if !errors.As(err, &ruleErr) {
			log.Errorw("Transaction execution failed", "tx", tx.Hash().String(), "err", err)
		}
		return nil, err
	}
	return res, nil
}

// End seals the open block, appends it to the chain and records the new
// store root. On failure the batch is rolled back.
func (c *Controller) End(ctx context.Context) (*blockchain.SealedBlock, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.block == nil {
		return nil, ErrNoBatch
	}
	sealed, err := c.block.Seal()
	if err != nil {
		c.abort()
		return nil, err
	}
	if err := c.cache.AddBlock(ctx, sealed); err != nil {
		c.abort()
		return nil, err
	}
	c.block = nil

	root, err := c.kv.RootHash(ctx)
	if err != nil {
		return nil, fmt.Errorf("read store root: %w", err)
	}
	if err := c.cache.FinalizeRoot(root); err != nil {
		return nil, err
	}

	log.Infow("Batch committed", "number", sealed.Block.NumberU64(), "hash", sealed.Hash().String(),
		"txs", len(sealed.Block.Transactions()), "gas", sealed.Block.GasUsed(), "root", root.String())
	return sealed, nil
}

// Abort discards the open block and every state change of the batch.
func (c *Controller) Abort() {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.abort()
}

func (c *Controller) abort() {
	if c.block == nil {
		return
	}
	c.block.Discard()
	c.cache.Discard()
	c.block = nil
	log.Debug("Batch aborted")
}

// InProgress reports whether a batch is open.
func (c *Controller) InProgress() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.block != nil
}

// Root returns the store root of the last batch.
func (c *Controller) Root() (itypes.Digest, error) {
	return c.cache.LastRoot()
}
