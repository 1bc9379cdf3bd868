// Copyright (c) 2024 Project Illium
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/project-illium/ilxevm/batch"
	"github.com/project-illium/ilxevm/params"
	"github.com/project-illium/ilxevm/repo"
	itypes "github.com/project-illium/ilxevm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReplayServer(t *testing.T, batchSize int, opts ...batch.Option) *Server {
	ctrl, err := batch.NewController(append([]batch.Option{batch.DefaultOptions()}, opts...)...)
	require.NoError(t, err)
	return &Server{
		ctx:        context.Background(),
		config:     &repo.Config{BatchSize: batchSize},
		params:     &params.RegtestParams,
		controller: ctrl,
		now:        func() time.Time { return time.Unix(1700000000, 0) },
	}
}

func signedTransfer(t *testing.T, nonce uint64) string {
	key, err := crypto.HexToECDSA(params.RegtestDevKey)
	require.NoError(t, err)
	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	tx, err := types.SignNewTx(key, types.LatestSigner(params.RegtestParams.ChainConfig), &types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(7),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return "0x" + hex.EncodeToString(raw)
}

func TestReplay(t *testing.T) {
	s := newReplayServer(t, 2)

	lines := []string{
		"# regtest transfers",
		signedTransfer(t, 0),
		signedTransfer(t, 1),
		"",
		"0xdeadbeef",
		signedTransfer(t, 2),
		signedTransfer(t, 2),
		signedTransfer(t, 3),
		signedTransfer(t, 4),
	}
	stats, err := s.Replay(context.Background(), strings.NewReader(strings.Join(lines, "\n")))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Blocks)
	assert.Equal(t, 5, stats.Included)
	assert.Equal(t, 2, stats.Rejected)
	assert.False(t, s.controller.InProgress())

	cache := s.controller.Cache()
	n, err := cache.LatestBlockNumber()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	header, err := cache.BestBlockHeader()
	require.NoError(t, err)
	assert.Equal(t, uint64(1700000000), header.Time)

	bal, err := cache.AccountBalance(common.HexToAddress("0x00000000000000000000000000000000000000bb"), itypes.LatestBlock())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(35), bal)
}

func TestReplayEmpty(t *testing.T) {
	s := newReplayServer(t, 2)

	stats, err := s.Replay(context.Background(), strings.NewReader("# nothing\n\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Blocks)
	assert.False(t, s.controller.InProgress())
}

func TestReplayFullBlock(t *testing.T) {
	p := params.RegtestParams
	p.Genesis = params.RegtestGenesis.Copy()
	p.Genesis.GasLimit = 50000
	s := newReplayServer(t, 100, batch.Params(&p))

	lines := make([]string, 0, 5)
	for i := uint64(0); i < 5; i++ {
		lines = append(lines, signedTransfer(t, i))
	}
	stats, err := s.Replay(context.Background(), strings.NewReader(strings.Join(lines, "\n")))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Blocks)
	assert.Equal(t, 5, stats.Included)
	assert.Equal(t, 0, stats.Rejected)

	cache := s.controller.Cache()
	for number, want := range []int{0, 2, 2, 1} {
		blk, err := cache.BlockByNumber(uint64(number))
		require.NoError(t, err)
		assert.Len(t, blk.Transactions(), want)
	}
	bal, err := cache.AccountBalance(common.HexToAddress("0x00000000000000000000000000000000000000bb"), itypes.LatestBlock())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(35), bal)
}
