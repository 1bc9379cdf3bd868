// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// LogFilter selects logs in an inclusive block range.
//
// Addresses restricts the emitting contract; an empty list matches any
// address. Topics is positional: Topics[i] lists the accepted values for
// the i'th topic and an empty entry matches anything at that position.
// A non-zero Limit keeps only the last Limit matching logs.
type LogFilter struct {
	FromBlock BlockID
	ToBlock   BlockID
	Addresses []common.Address
	Topics    [][]common.Hash
	Limit     int
}

// BloomPossibilities returns every bloom a block must contain to possibly
// hold a matching log. It is the product of the address set and each
// non-empty topic position. A filter with no constraints yields a single
// empty bloom, which every block contains.
func (f *LogFilter) BloomPossibilities() []types.Bloom {
	var blooms []types.Bloom
	if len(f.Addresses) == 0 {
		blooms = []types.Bloom{{}}
	} else {
		for _, addr := range f.Addresses {
			var b types.Bloom
			b.Add(addr.Bytes())
			blooms = append(blooms, b)
		}
	}
	for _, position := range f.Topics {
		if len(position) == 0 {
			continue
		}
		next := make([]types.Bloom, 0, len(blooms)*len(position))
		for _, b := range blooms {
			for _, topic := range position {
				nb := b
				nb.Add(topic.Bytes())
				next = append(next, nb)
			}
		}
		blooms = next
	}
	return blooms
}

// Matches reports whether the log satisfies the address and topic
// constraints. The block range is not checked.
func (f *LogFilter) Matches(log *types.Log) bool {
	if len(f.Addresses) > 0 {
		found := false
		for _, addr := range f.Addresses {
			if addr == log.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for i, position := range f.Topics {
		if len(position) == 0 {
			continue
		}
		if i >= len(log.Topics) {
			return false
		}
		found := false
		for _, topic := range position {
			if topic == log.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// BloomContains reports whether every bit set in possibility is also set
// in bloom.
func BloomContains(bloom, possibility types.Bloom) bool {
	for i := range possibility {
		if bloom[i]&possibility[i] != possibility[i] {
			return false
		}
	}
	return true
}
