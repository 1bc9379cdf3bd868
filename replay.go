// Copyright (c) 2024 Project Illium
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/project-illium/ilxevm/blockchain"
)

const maxReplayLine = 4 << 20

// ReplayStats summarizes a replay run.
type ReplayStats struct {
	Blocks   int
	Included int
	Rejected int
}

// ReplayFile applies the transactions in the file at path.
func (s *Server) ReplayFile(path string) (*ReplayStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return s.Replay(s.ctx, f)
}

// Replay reads hex encoded raw transactions, one per line, and applies
// them in batches of at most BatchSize transactions. Blank lines and
// lines starting with '#' are skipped. A transaction that does not fit
// in the open block closes it and is retried in the next one. Transactions
// that break any other rule are logged and left out. Any other failure aborts the open batch and
// stops the replay.
func (s *Server) Replay(ctx context.Context, r io.Reader) (*ReplayStats, error) {
	stats := new(ReplayStats)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxReplayLine)

	var (
		lineNum int
		inBatch int
	)
	if err := s.controller.Start(ctx, uint64(s.now().Unix())); err != nil {
		return stats, err
	}
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !s.controller.InProgress() {
			if err := s.controller.Start(ctx, uint64(s.now().Unix())); err != nil {
				return stats, err
			}
		}

		rawTx := common.FromHex(line)
		res, err := s.controller.Execute(ctx, rawTx)
		if blockchain.ErrorIs(err, blockchain.ErrBlockGasLimit) && inBatch > 0 {
			// The block is full. Commit it and retry in a fresh one.
			if err := s.endBatch(ctx, stats); err != nil {
				return stats, err
			}
			inBatch = 0
			if err := s.controller.Start(ctx, uint64(s.now().Unix())); err != nil {
				return stats, err
			}
			res, err = s.controller.Execute(ctx, rawTx)
		}
		var ruleErr blockchain.RuleError
		if errors.As(err, &ruleErr) {
			log.Warnw("Transaction rejected", "line", lineNum, "code", ruleErr.ErrorCode, "reason", ruleErr.Description)
			stats.Rejected++
			continue
		} else if err != nil {
			s.controller.Abort()
			return stats, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if res.Failed() {
			log.Debugw("Transaction failed", "line", lineNum, "tx", res.Receipt.TxHash.String(), "status", res.Receipt.ExecStatus)
		}
		stats.Included++
		inBatch++

		if inBatch >= s.config.BatchSize {
			if err := s.endBatch(ctx, stats); err != nil {
				return stats, err
			}
			inBatch = 0
		}
	}
	if err := scanner.Err(); err != nil {
		s.controller.Abort()
		return stats, err
	}
	if inBatch > 0 {
		if err := s.endBatch(ctx, stats); err != nil {
			return stats, err
		}
	} else {
		s.controller.Abort()
	}

	header, err := s.controller.Cache().BestBlockHeader()
	if err != nil {
		return stats, err
	}
	root, err := s.controller.Root()
	if err != nil {
		return stats, err
	}
	log.Infow("Replay finished", "best", header.Number, "hash", header.Hash().String(), "root", root.String())
	return stats, nil
}

func (s *Server) endBatch(ctx context.Context, stats *ReplayStats) error {
	if _, err := s.controller.End(ctx); err != nil {
		return err
	}
	stats.Blocks++
	return nil
}
