// Copyright (c) 2022 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/project-illium/ilxevm/repo/kvstore"
)

// Column layout of the chain data. Trie nodes and code live in the nil
// column written by the HashDB.
var (
	colHeaders = kvstore.Column(0)
	colBodies  = kvstore.Column(1)
	colExtra   = kvstore.Column(2)
)

// Key prefixes within the extras column.
const (
	extraBlockHashPrefix = "h"
	extraDetailsPrefix   = "d"
	extraReceiptsPrefix  = "r"
	extraTxLookupPrefix  = "l"
	extraBestBlockKey    = "best"
)

// blockDetails links a block to its parent.
type blockDetails struct {
	Number uint64
	Parent common.Hash
}

func numberKey(number uint64) []byte {
	key := make([]byte, len(extraBlockHashPrefix)+8)
	copy(key, extraBlockHashPrefix)
	binary.BigEndian.PutUint64(key[len(extraBlockHashPrefix):], number)
	return kvstore.ColumnKey(colExtra, key)
}

func extraKey(prefix string, h common.Hash) []byte {
	return kvstore.ColumnKey(colExtra, append([]byte(prefix), h.Bytes()...))
}

func headerKey(h common.Hash) []byte {
	return kvstore.ColumnKey(colHeaders, h.Bytes())
}

func bodyKey(h common.Hash) []byte {
	return kvstore.ColumnKey(colBodies, h.Bytes())
}

func bestBlockKey() []byte {
	return kvstore.ColumnKey(colExtra, []byte(extraBestBlockKey))
}

// blockOps returns the columnar delta that appends the block to the
// chain and makes it the best block.
func blockOps(block *types.Block, receipts []*Receipt, senders []common.Address) ([]kvstore.Op, error) {
	hash := block.Hash()

	ser, err := rlp.EncodeToBytes(block.Header())
	if err != nil {
		return nil, err
	}
	ops := []kvstore.Op{kvstore.Put(headerKey(hash), ser)}

	ser, err = rlp.EncodeToBytes(block.Body())
	if err != nil {
		return nil, err
	}
	ops = append(ops, kvstore.Put(bodyKey(hash), ser))

	ser, err = encodeReceipts(receipts)
	if err != nil {
		return nil, err
	}
	ops = append(ops, kvstore.Put(extraKey(extraReceiptsPrefix, hash), ser))

	for i, tx := range block.Transactions() {
		ser, err := rlp.EncodeToBytes(&txLookup{BlockHash: hash, Index: uint64(i), From: senders[i]})
		if err != nil {
			return nil, err
		}
		ops = append(ops, kvstore.Put(extraKey(extraTxLookupPrefix, tx.Hash()), ser))
	}

	ser, err = rlp.EncodeToBytes(&blockDetails{Number: block.NumberU64(), Parent: block.ParentHash()})
	if err != nil {
		return nil, err
	}
	ops = append(ops,
		kvstore.Put(extraKey(extraDetailsPrefix, hash), ser),
		kvstore.Put(numberKey(block.NumberU64()), hash.Bytes()),
		kvstore.Put(bestBlockKey(), hash.Bytes()),
	)
	return ops, nil
}

func kvGet(ctx context.Context, kv kvstore.Service, key []byte, what string) ([]byte, error) {
	ser, err := kv.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", what, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", what, err)
	}
	return ser, nil
}

func kvFetchHeader(ctx context.Context, kv kvstore.Service, h common.Hash) (*types.Header, error) {
	ser, err := kvGet(ctx, kv, headerKey(h), "header "+h.String())
	if err != nil {
		return nil, err
	}
	header := new(types.Header)
	if err := rlp.DecodeBytes(ser, header); err != nil {
		return nil, fmt.Errorf("decode header %s: %w", h, err)
	}
	return header, nil
}

func kvFetchBody(ctx context.Context, kv kvstore.Service, h common.Hash) (*types.Body, error) {
	ser, err := kvGet(ctx, kv, bodyKey(h), "body "+h.String())
	if err != nil {
		return nil, err
	}
	body := new(types.Body)
	if err := rlp.DecodeBytes(ser, body); err != nil {
		return nil, fmt.Errorf("decode body %s: %w", h, err)
	}
	return body, nil
}

func kvFetchReceipts(ctx context.Context, kv kvstore.Service, h common.Hash) ([]*Receipt, error) {
	ser, err := kvGet(ctx, kv, extraKey(extraReceiptsPrefix, h), "receipts "+h.String())
	if err != nil {
		return nil, err
	}
	receipts, err := decodeReceipts(ser)
	if err != nil {
		return nil, fmt.Errorf("decode receipts %s: %w", h, err)
	}
	return receipts, nil
}

func kvFetchTxLookup(ctx context.Context, kv kvstore.Service, txHash common.Hash) (*txLookup, error) {
	ser, err := kvGet(ctx, kv, extraKey(extraTxLookupPrefix, txHash), "transaction "+txHash.String())
	if err != nil {
		return nil, err
	}
	lookup := new(txLookup)
	if err := rlp.DecodeBytes(ser, lookup); err != nil {
		return nil, fmt.Errorf("decode tx lookup %s: %w", txHash, err)
	}
	return lookup, nil
}

func kvFetchDetails(ctx context.Context, kv kvstore.Service, h common.Hash) (*blockDetails, error) {
	ser, err := kvGet(ctx, kv, extraKey(extraDetailsPrefix, h), "block details "+h.String())
	if err != nil {
		return nil, err
	}
	details := new(blockDetails)
	if err := rlp.DecodeBytes(ser, details); err != nil {
		return nil, fmt.Errorf("decode block details %s: %w", h, err)
	}
	return details, nil
}

func kvFetchBlockHash(ctx context.Context, kv kvstore.Service, number uint64) (common.Hash, error) {
	ser, err := kvGet(ctx, kv, numberKey(number), fmt.Sprintf("block number %d", number))
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(ser), nil
}

func kvFetchBestHash(ctx context.Context, kv kvstore.Service) (common.Hash, error) {
	ser, err := kvGet(ctx, kv, bestBlockKey(), "best block")
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(ser), nil
}
