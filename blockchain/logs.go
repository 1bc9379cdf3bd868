// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/ethereum/go-ethereum/core/types"
	itypes "github.com/project-illium/ilxevm/types"
)

// Logs returns the logs matching the filter in block order. A range
// whose bounds do not resolve to known blocks yields no logs.
func (c *Cache) Logs(filter *itypes.LogFilter) ([]*types.Log, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.index == nil {
		return nil, ErrNotInitialized
	}
	from, err := c.resolve(filter.FromBlock)
	if err != nil {
		return nil, nil
	}
	to, err := c.resolve(filter.ToBlock)
	if err != nil {
		return nil, nil
	}
	if from.number > to.number {
		return nil, nil
	}

	candidates := c.bloomCandidates(filter.BloomPossibilities(), from.number, to.number)

	var logs []*types.Log
	for _, node := range candidates {
		receipts, err := c.blockReceipts(node)
		if err != nil {
			return nil, err
		}
		for _, r := range receipts {
			for _, l := range r.Logs {
				if filter.Matches(l) {
					logs = append(logs, l)
				}
			}
		}
	}
	if filter.Limit > 0 && len(logs) > filter.Limit {
		logs = logs[len(logs)-filter.Limit:]
	}
	return logs, nil
}

// bloomCandidates returns, in block order and without duplicates, the
// blocks in the range whose header bloom contains any of the blooms.
func (c *Cache) bloomCandidates(possibilities []types.Bloom, from, to uint64) []*blockNode {
	var (
		candidates []*blockNode
		seen       = make(map[*blockNode]struct{})
	)
	for n := from; n <= to; n++ {
		node := c.index.byNumber[n]
		for _, possibility := range possibilities {
			if !itypes.BloomContains(node.header.Bloom, possibility) {
				continue
			}
			if _, ok := seen[node]; !ok {
				seen[node] = struct{}{}
				candidates = append(candidates, node)
			}
			break
		}
	}
	return candidates
}
