// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/project-illium/ilxevm/keymanager"
	itypes "github.com/project-illium/ilxevm/types"
)

// Transaction is a transaction together with its location in the chain.
type Transaction struct {
	Tx          *types.Transaction
	From        common.Address
	BlockHash   common.Hash
	BlockNumber uint64
	Index       uint64
}

// LatestBlockNumber returns the number of the best block.
func (c *Cache) LatestBlockNumber() (uint64, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.index == nil {
		return 0, ErrNotInitialized
	}
	return c.index.Tip().number, nil
}

// BestBlockHeader returns the header of the best block.
func (c *Cache) BestBlockHeader() (*types.Header, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.index == nil {
		return nil, ErrNotInitialized
	}
	return c.index.Tip().Header(), nil
}

// BlockHash returns the hash of the block at number.
func (c *Cache) BlockHash(number uint64) (common.Hash, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.index == nil {
		return common.Hash{}, ErrNotInitialized
	}
	node, err := c.index.GetNodeByNumber(number)
	if err != nil {
		return common.Hash{}, err
	}
	return node.hash, nil
}

// LastHashes returns the hash of parent followed by up to 255 of its
// ancestors. Remaining slots are the zero hash.
func (c *Cache) LastHashes(parent common.Hash) ([lastHashesLen]common.Hash, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.index == nil {
		return [lastHashesLen]common.Hash{}, ErrNotInitialized
	}
	return c.index.LastHashes(parent)
}

// BlockByHash returns the block with the hash.
func (c *Cache) BlockByHash(h common.Hash) (*types.Block, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.index == nil {
		return nil, ErrNotInitialized
	}
	node, err := c.index.GetNodeByHash(h)
	if err != nil {
		return nil, err
	}
	return c.block(node)
}

// BlockByNumber returns the block at number.
func (c *Cache) BlockByNumber(number uint64) (*types.Block, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.index == nil {
		return nil, ErrNotInitialized
	}
	node, err := c.index.GetNodeByNumber(number)
	if err != nil {
		return nil, err
	}
	return c.block(node)
}

// Block returns the block identified by id.
func (c *Cache) Block(id itypes.BlockID) (*types.Block, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.index == nil {
		return nil, ErrNotInitialized
	}
	node, err := c.resolve(id)
	if err != nil {
		return nil, err
	}
	return c.block(node)
}

// Transaction returns the transaction with the hash and its location.
func (c *Cache) Transaction(txHash common.Hash) (*Transaction, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.index == nil {
		return nil, ErrNotInitialized
	}
	lookup, node, err := c.lookupTx(txHash)
	if err != nil {
		return nil, err
	}
	body, err := c.body(node.hash)
	if err != nil {
		return nil, err
	}
	if lookup.Index >= uint64(len(body.Transactions)) {
		return nil, AssertError(fmt.Sprintf("tx lookup index %d out of range for block %s", lookup.Index, node.hash))
	}
	return &Transaction{
		Tx:          body.Transactions[lookup.Index],
		From:        lookup.From,
		BlockHash:   node.hash,
		BlockNumber: node.number,
		Index:       lookup.Index,
	}, nil
}

// Receipt returns the receipt of the transaction with the hash.
func (c *Cache) Receipt(txHash common.Hash) (*Receipt, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.index == nil {
		return nil, ErrNotInitialized
	}
	lookup, node, err := c.lookupTx(txHash)
	if err != nil {
		return nil, err
	}
	receipts, err := c.blockReceipts(node)
	if err != nil {
		return nil, err
	}
	if lookup.Index >= uint64(len(receipts)) {
		return nil, AssertError(fmt.Sprintf("tx lookup index %d out of range for block %s", lookup.Index, node.hash))
	}
	r := *receipts[lookup.Index]
	r.From = lookup.From
	return &r, nil
}

// AccountNonce returns the nonce of addr at the block.
func (c *Cache) AccountNonce(addr common.Address, id itypes.BlockID) (uint64, error) {
	sv, err := c.stateAtBlock(id)
	if err != nil {
		return 0, err
	}
	defer sv.Close()
	return sv.GetNonce(addr), sv.Error()
}

// AccountBalance returns the balance of addr at the block.
func (c *Cache) AccountBalance(addr common.Address, id itypes.BlockID) (*big.Int, error) {
	sv, err := c.stateAtBlock(id)
	if err != nil {
		return nil, err
	}
	defer sv.Close()
	return sv.GetBalance(addr), sv.Error()
}

// AccountCode returns the code of addr at the block.
func (c *Cache) AccountCode(addr common.Address, id itypes.BlockID) ([]byte, error) {
	sv, err := c.stateAtBlock(id)
	if err != nil {
		return nil, err
	}
	defer sv.Close()
	return sv.GetCode(addr), sv.Error()
}

// AccountStorage returns the plaintext value of a storage cell of addr at
// the block. Reading the storage of a confidential contract requires the
// cache to have a key manager.
func (c *Cache) AccountStorage(addr common.Address, key common.Hash, id itypes.BlockID) (common.Hash, error) {
	sv, err := c.stateAtBlock(id)
	if err != nil {
		return common.Hash{}, err
	}
	defer sv.Close()
	value := sv.GetState(addr, key)
	return value, sv.Error()
}

// RawAccountStorage returns the value the trie holds for a storage cell.
// For a confidential contract it is the digest of the sealed cell in the
// content store.
func (c *Cache) RawAccountStorage(addr common.Address, key common.Hash, id itypes.BlockID) (common.Hash, error) {
	sv, err := c.stateAtBlock(id)
	if err != nil {
		return common.Hash{}, err
	}
	defer sv.Close()
	value := sv.RawState(addr, key)
	return value, sv.Error()
}

// IsConfidential reports whether the contract at addr is confidential at
// the block.
func (c *Cache) IsConfidential(addr common.Address, id itypes.BlockID) (bool, error) {
	sv, err := c.stateAtBlock(id)
	if err != nil {
		return false, err
	}
	defer sv.Close()
	return sv.IsConfidential(addr), sv.Error()
}

// PublicKey returns the signed public key of the contract at addr.
// Callers encrypt confidential transactions to this key.
func (c *Cache) PublicKey(ctx context.Context, addr common.Address) (*keymanager.PublicKeyPayload, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.index == nil {
		return nil, ErrNotInitialized
	}
	if c.km == nil {
		return nil, ErrNoKeyManager
	}
	return c.km.GetPublicKey(ctx, itypes.NewContractID(addr))
}

func (c *Cache) stateAtBlock(id itypes.BlockID) (*StateView, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.index == nil {
		return nil, ErrNotInitialized
	}
	node, err := c.resolve(id)
	if err != nil {
		return nil, err
	}
	return c.stateAt(node.header.Root, nil)
}

// resolve returns the node for a block id.
func (c *Cache) resolve(id itypes.BlockID) (*blockNode, error) {
	switch id.Kind {
	case itypes.BlockIDLatest:
		return c.index.Tip(), nil
	case itypes.BlockIDEarliest:
		return c.index.GetNodeByNumber(0)
	case itypes.BlockIDNumber:
		return c.index.GetNodeByNumber(id.Number)
	case itypes.BlockIDHash:
		return c.index.GetNodeByHash(id.Hash)
	}
	return nil, fmt.Errorf("block id %s: %w", id, ErrNotFound)
}

func (c *Cache) lookupTx(txHash common.Hash) (*txLookup, *blockNode, error) {
	lookup, err := kvFetchTxLookup(context.Background(), c.kv, txHash)
	if err != nil {
		return nil, nil, err
	}
	node, err := c.index.GetNodeByHash(lookup.BlockHash)
	if err != nil {
		return nil, nil, err
	}
	return lookup, node, nil
}

func (c *Cache) body(h common.Hash) (*types.Body, error) {
	if body, ok := c.bodies.Get(h); ok {
		return body, nil
	}
	body, err := kvFetchBody(context.Background(), c.kv, h)
	if err != nil {
		return nil, err
	}
	c.bodies.Add(h, body)
	return body, nil
}

func (c *Cache) block(node *blockNode) (*types.Block, error) {
	body, err := c.body(node.hash)
	if err != nil {
		return nil, err
	}
	return types.NewBlockWithHeader(node.header).WithBody(body.Transactions, body.Uncles), nil
}

// blockReceipts returns the receipts of the block with every derived
// field filled in.
func (c *Cache) blockReceipts(node *blockNode) ([]*Receipt, error) {
	if receipts, ok := c.receipts.Get(node.hash); ok {
		return receipts, nil
	}
	receipts, err := kvFetchReceipts(context.Background(), c.kv, node.hash)
	if err != nil {
		return nil, err
	}
	block, err := c.block(node)
	if err != nil {
		return nil, err
	}
	if err := deriveReceiptFields(receipts, block); err != nil {
		return nil, err
	}
	c.receipts.Add(node.hash, receipts)
	return receipts, nil
}
