// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
)

func TestLogFilterMatches(t *testing.T) {
	addr := common.HexToAddress("0x01")
	other := common.HexToAddress("0x02")
	t1 := common.HexToHash("0xaa")
	t2 := common.HexToHash("0xbb")

	tests := []struct {
		name   string
		filter LogFilter
		log    types.Log
		match  bool
	}{
		{
			name:   "empty filter",
			filter: LogFilter{},
			log:    types.Log{Address: addr},
			match:  true,
		},
		{
			name:   "address mismatch",
			filter: LogFilter{Addresses: []common.Address{other}},
			log:    types.Log{Address: addr},
			match:  false,
		},
		{
			name:   "topic at position",
			filter: LogFilter{Topics: [][]common.Hash{{t1}}},
			log:    types.Log{Address: addr, Topics: []common.Hash{t1, t2}},
			match:  true,
		},
		{
			name:   "topic at wrong position",
			filter: LogFilter{Topics: [][]common.Hash{{t2}}},
			log:    types.Log{Address: addr, Topics: []common.Hash{t1, t2}},
			match:  false,
		},
		{
			name:   "wildcard position",
			filter: LogFilter{Topics: [][]common.Hash{nil, {t2}}},
			log:    types.Log{Address: addr, Topics: []common.Hash{t1, t2}},
			match:  true,
		},
		{
			name:   "too few topics",
			filter: LogFilter{Topics: [][]common.Hash{nil, nil, {t1}}},
			log:    types.Log{Address: addr, Topics: []common.Hash{t1}},
			match:  false,
		},
	}
	for _, test := range tests {
		assert.Equal(t, test.match, test.filter.Matches(&test.log), test.name)
	}
}

func TestBloomPossibilities(t *testing.T) {
	a1 := common.HexToAddress("0x01")
	a2 := common.HexToAddress("0x02")
	t1 := common.HexToHash("0xaa")
	t2 := common.HexToHash("0xbb")

	f := LogFilter{}
	assert.Len(t, f.BloomPossibilities(), 1)

	f = LogFilter{
		Addresses: []common.Address{a1, a2},
		Topics:    [][]common.Hash{{t1, t2}, nil},
	}
	possibilities := f.BloomPossibilities()
	assert.Len(t, possibilities, 4)

	var header types.Bloom
	header.Add(a2.Bytes())
	header.Add(t2.Bytes())

	matched := 0
	for _, p := range possibilities {
		if BloomContains(header, p) {
			matched++
		}
	}
	assert.Equal(t, 1, matched)
}
