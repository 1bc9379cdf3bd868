// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// ExecStatus is the outcome of executing a transaction.
type ExecStatus uint8

const (
	StatusSuccess ExecStatus = iota
	StatusReverted
	StatusFailed
	// StatusConfidentialFailure is a failure of the confidential
	// layer (key resolution, payload decoding or decryption) as
	// opposed to a failure of the contract code.
	StatusConfidentialFailure
)

var execStatusStrings = map[ExecStatus]string{
	StatusSuccess:             "success",
	StatusReverted:            "reverted",
	StatusFailed:              "failed",
	StatusConfidentialFailure: "confidential failure",
}

func (s ExecStatus) String() string {
	if str, ok := execStatusStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown status (%d)", int(s))
}

// Receipt is a go-ethereum receipt extended with the sender, the
// execution outcome and the return data. For confidential transactions
// Output holds the encrypted return data.
type Receipt struct {
	*types.Receipt

	From       common.Address
	To         *common.Address
	ExecStatus ExecStatus
	Output     []byte
	Failure    string
}

// storedLog is the persisted form of a log. Context fields are derived
// from the block on load.
type storedLog struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

type storedReceipt struct {
	Type              uint8
	Status            uint64
	CumulativeGasUsed uint64
	GasUsed           uint64
	ContractAddress   common.Address
	Logs              []storedLog
	ExecStatus        uint8
	Output            []byte
	Failure           string
}

// txLookup locates a transaction in the chain.
type txLookup struct {
	BlockHash common.Hash
	Index     uint64
	From      common.Address
}

func encodeReceipts(receipts []*Receipt) ([]byte, error) {
	stored := make([]storedReceipt, 0, len(receipts))
	for _, r := range receipts {
		sr := storedReceipt{
			Type:              r.Type,
			Status:            r.Status,
			CumulativeGasUsed: r.CumulativeGasUsed,
			GasUsed:           r.GasUsed,
			ContractAddress:   r.ContractAddress,
			Logs:              make([]storedLog, 0, len(r.Logs)),
			ExecStatus:        uint8(r.ExecStatus),
			Output:            r.Output,
			Failure:           r.Failure,
		}
		for _, l := range r.Logs {
			sr.Logs = append(sr.Logs, storedLog{Address: l.Address, Topics: l.Topics, Data: l.Data})
		}
		stored = append(stored, sr)
	}
	return rlp.EncodeToBytes(stored)
}

func decodeReceipts(ser []byte) ([]*Receipt, error) {
	var stored []storedReceipt
	if err := rlp.DecodeBytes(ser, &stored); err != nil {
		return nil, err
	}
	receipts := make([]*Receipt, 0, len(stored))
	for _, sr := range stored {
		r := &Receipt{
			Receipt: &types.Receipt{
				Type:              sr.Type,
				Status:            sr.Status,
				CumulativeGasUsed: sr.CumulativeGasUsed,
				GasUsed:           sr.GasUsed,
				ContractAddress:   sr.ContractAddress,
				Logs:              make([]*types.Log, 0, len(sr.Logs)),
			},
			ExecStatus: ExecStatus(sr.ExecStatus),
			Output:     sr.Output,
			Failure:    sr.Failure,
		}
		for _, l := range sr.Logs {
			r.Logs = append(r.Logs, &types.Log{Address: l.Address, Topics: l.Topics, Data: l.Data})
		}
		r.Bloom = types.CreateBloom(types.Receipts{r.Receipt})
		receipts = append(receipts, r)
	}
	return receipts, nil
}

// deriveReceiptFields fills in the fields of the receipts and their logs
// that are implied by the block they were included in.
func deriveReceiptFields(receipts []*Receipt, block *types.Block) error {
	txs := block.Transactions()
	if len(txs) != len(receipts) {
		return AssertError(fmt.Sprintf("block %s has %d transactions and %d receipts", block.Hash(), len(txs), len(receipts)))
	}
	var logIndex uint
	for i, r := range receipts {
		r.TxHash = txs[i].Hash()
		r.BlockHash = block.Hash()
		r.BlockNumber = block.Number()
		r.TransactionIndex = uint(i)
		r.To = txs[i].To()
		for _, l := range r.Logs {
			l.BlockNumber = block.NumberU64()
			l.BlockHash = block.Hash()
			l.TxHash = r.TxHash
			l.TxIndex = uint(i)
			l.Index = logIndex
			logIndex++
		}
	}
	return nil
}

// gethReceipts returns the embedded go-ethereum receipts.
func gethReceipts(receipts []*Receipt) types.Receipts {
	ret := make(types.Receipts, 0, len(receipts))
	for _, r := range receipts {
		ret = append(ret, r.Receipt)
	}
	return ret
}
