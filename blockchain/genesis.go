// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/project-illium/ilxevm/params"
)

// commitGenesisState writes the genesis allocation into the state
// database and returns the genesis block. The confidential registry is
// created with a nonce of one so it is never removed as an empty account.
func commitGenesisState(db state.Database, genesis *params.Genesis) (*types.Block, error) {
	sdb, err := state.New(types.EmptyRootHash, db, nil)
	if err != nil {
		return nil, err
	}
	for addr, account := range genesis.Alloc {
		if account.Balance != nil {
			sdb.AddBalance(addr, account.Balance)
		}
		sdb.SetNonce(addr, account.Nonce)
		if len(account.Code) > 0 {
			sdb.SetCode(addr, account.Code)
		}
		for key, value := range account.Storage {
			sdb.SetState(addr, key, value)
		}
	}
	if sdb.GetNonce(params.ConfidentialRegistry) == 0 {
		sdb.SetNonce(params.ConfidentialRegistry, 1)
	}

	root, err := sdb.Commit(0, false)
	if err != nil {
		return nil, fmt.Errorf("commit genesis state: %w", err)
	}
	if err := db.TrieDB().Commit(root, false); err != nil {
		return nil, fmt.Errorf("commit genesis trie: %w", err)
	}

	header := &types.Header{
		ParentHash:  common.Hash{},
		UncleHash:   types.EmptyUncleHash,
		Coinbase:    common.Address{},
		Root:        root,
		TxHash:      types.EmptyTxsHash,
		ReceiptHash: types.EmptyReceiptsHash,
		Difficulty:  new(big.Int),
		Number:      new(big.Int),
		GasLimit:    genesis.GasLimit,
		Time:        genesis.Timestamp,
		Extra:       genesis.ExtraData,
	}
	return types.NewBlockWithHeader(header), nil
}
