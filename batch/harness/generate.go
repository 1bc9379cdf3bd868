// Copyright (c) 2022 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package harness

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/project-illium/ilxevm/evm"
)

// Recipient returns the address the i'th transfer of a block pays.
func Recipient(i int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0x1000 + i)))
}

// GenerateBlocks appends nBlocks blocks of value transfers to the chain.
// The i'th transfer of each block pays one wei to Recipient(i).
func (h *TestHarness) GenerateBlocks(nBlocks int) error {
	for n := 0; n < nBlocks; n++ {
		txs := make([][]byte, 0, h.txsPerBlk)
		for i := 0; i < h.txsPerBlk; i++ {
			to := Recipient(i)
			raw, err := h.SignTx(&to, big.NewInt(1), params.TxGas, nil)
			if err != nil {
				return err
			}
			txs = append(txs, raw)
		}
		_, results, err := h.ProcessBlock(txs...)
		if err != nil {
			return err
		}
		for i, res := range results {
			if res.Failed() {
				return fmt.Errorf("transfer %d of block %d failed: %s", i, n, res.Receipt.Failure)
			}
		}
	}
	return nil
}

// Call sends data to the contract at to in its own block.
func (h *TestHarness) Call(to common.Address, data []byte) (*evm.Result, error) {
	raw, err := h.SignTx(&to, new(big.Int), deployGas, data)
	if err != nil {
		return nil, err
	}
	_, results, err := h.ProcessBlock(raw)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}
