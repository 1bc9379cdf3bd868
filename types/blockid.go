// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// BlockIDKind selects how a BlockID refers to a block.
type BlockIDKind uint8

const (
	BlockIDLatest BlockIDKind = iota
	BlockIDEarliest
	BlockIDNumber
	BlockIDHash
)

// BlockID refers to a block by number, by hash, or by one of the
// symbolic names earliest and latest. The zero value is latest.
type BlockID struct {
	Kind   BlockIDKind
	Number uint64
	Hash   common.Hash
}

func LatestBlock() BlockID {
	return BlockID{Kind: BlockIDLatest}
}

func EarliestBlock() BlockID {
	return BlockID{Kind: BlockIDEarliest}
}

func BlockNumber(n uint64) BlockID {
	return BlockID{Kind: BlockIDNumber, Number: n}
}

func BlockHash(h common.Hash) BlockID {
	return BlockID{Kind: BlockIDHash, Hash: h}
}

func (id BlockID) String() string {
	switch id.Kind {
	case BlockIDEarliest:
		return "earliest"
	case BlockIDNumber:
		return fmt.Sprintf("%d", id.Number)
	case BlockIDHash:
		return id.Hash.Hex()
	default:
		return "latest"
	}
}
