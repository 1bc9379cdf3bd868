// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	ethparams "github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie"
)

// ExecOutcome is the result of executing a transaction that the open
// block turns into a receipt.
type ExecOutcome struct {
	UsedGas         uint64
	Status          ExecStatus
	ContractAddress common.Address
	Output          []byte
	Failure         string
}

// OpenBlock is a block under construction. Transactions are executed
// against its state view and pushed in order. Seal commits the state
// and produces the final block.
type OpenBlock struct {
	header      *types.Header
	state       *StateView
	chainConfig *ethparams.ChainConfig
	signer      types.Signer
	minGasPrice *big.Int
	lastHashes  [lastHashesLen]common.Hash
	tracing     bool

	gasPool  *core.GasPool
	txs      []*types.Transaction
	senders  []common.Address
	receipts []*Receipt
	seen     map[common.Hash]struct{}
	sealed   bool
}

// Header returns a copy of the header of the block being built.
func (b *OpenBlock) Header() *types.Header {
	return types.CopyHeader(b.header)
}

// State returns the state view transactions execute against.
func (b *OpenBlock) State() *StateView {
	return b.state
}

// ChainConfig returns the chain configuration the block executes under.
func (b *OpenBlock) ChainConfig() *ethparams.ChainConfig {
	return b.chainConfig
}

// GasPool returns the gas left in the block.
func (b *OpenBlock) GasPool() *core.GasPool {
	return b.gasPool
}

// Tracing reports whether execution should be traced.
func (b *OpenBlock) Tracing() bool {
	return b.tracing
}

// TxCount returns the number of transactions pushed so far.
func (b *OpenBlock) TxCount() int {
	return len(b.txs)
}

// SetTimestamp sets the block timestamp. It never moves the timestamp
// before the parent's.
func (b *OpenBlock) SetTimestamp(t uint64) {
	if t > b.header.Time {
		b.header.Time = t
	}
}

// GetHash returns the hash of an ancestor for the BLOCKHASH opcode. Only
// the 256 most recent ancestors are visible.
func (b *OpenBlock) GetHash(n uint64) common.Hash {
	number := b.header.Number.Uint64()
	if n >= number || number-n > lastHashesLen {
		return common.Hash{}
	}
	return b.lastHashes[number-1-n]
}

// BlockContext returns the EVM block context of the block.
func (b *OpenBlock) BlockContext() vm.BlockContext {
	return vm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		GetHash:     b.GetHash,
		Coinbase:    b.header.Coinbase,
		GasLimit:    b.header.GasLimit,
		BlockNumber: new(big.Int).Set(b.header.Number),
		Time:        b.header.Time,
		Difficulty:  new(big.Int).Set(b.header.Difficulty),
	}
}

// CheckTransaction applies the admission rules for the block and returns
// the transaction's sender.
func (b *OpenBlock) CheckTransaction(tx *types.Transaction) (common.Address, error) {
	if b.sealed {
		return common.Address{}, ErrBlockSealed
	}
	if _, ok := b.seen[tx.Hash()]; ok {
		return common.Address{}, ruleError(ErrDuplicateTx, fmt.Sprintf("transaction %s already in block", tx.Hash()))
	}
	if tx.Gas() > b.header.GasLimit {
		return common.Address{}, ruleError(ErrInvalidTx, fmt.Sprintf("transaction gas %d exceeds block gas limit %d", tx.Gas(), b.header.GasLimit))
	}
	if tx.Gas() > b.gasPool.Gas() {
		return common.Address{}, ruleError(ErrBlockGasLimit, fmt.Sprintf("transaction gas %d exceeds remaining block gas %d", tx.Gas(), b.gasPool.Gas()))
	}
	if b.minGasPrice != nil && tx.GasPrice().Cmp(b.minGasPrice) < 0 {
		return common.Address{}, ruleError(ErrGasPriceTooLow, fmt.Sprintf("gas price %s below minimum %s", tx.GasPrice(), b.minGasPrice))
	}
	from, err := types.Sender(b.signer, tx)
	if err != nil {
		return common.Address{}, ruleError(ErrInvalidTx, fmt.Sprintf("invalid signature: %s", err))
	}
	return from, nil
}

// Prepare sets the state's transaction context so logs are attributed to
// tx. It must be called before executing tx.
func (b *OpenBlock) Prepare(tx *types.Transaction) {
	b.state.SetTxContext(tx.Hash(), len(b.txs))
}

// Push records an executed transaction and returns its receipt.
func (b *OpenBlock) Push(tx *types.Transaction, from common.Address, outcome *ExecOutcome) (*Receipt, error) {
	if b.sealed {
		return nil, ErrBlockSealed
	}
	b.header.GasUsed += outcome.UsedGas

	r := &types.Receipt{
		Type:              tx.Type(),
		CumulativeGasUsed: b.header.GasUsed,
		TxHash:            tx.Hash(),
		GasUsed:           outcome.UsedGas,
		ContractAddress:   outcome.ContractAddress,
		BlockNumber:       new(big.Int).Set(b.header.Number),
		TransactionIndex:  uint(len(b.txs)),
	}
	if outcome.Status == StatusSuccess {
		r.Status = types.ReceiptStatusSuccessful
	} else {
		r.Status = types.ReceiptStatusFailed
	}
	r.Logs = b.state.GetLogs(tx.Hash(), b.header.Number.Uint64(), common.Hash{})
	r.Bloom = types.CreateBloom(types.Receipts{r})

	receipt := &Receipt{
		Receipt:    r,
		From:       from,
		To:         tx.To(),
		ExecStatus: outcome.Status,
		Output:     outcome.Output,
		Failure:    outcome.Failure,
	}
	b.txs = append(b.txs, tx)
	b.senders = append(b.senders, from)
	b.receipts = append(b.receipts, receipt)
	b.seen[tx.Hash()] = struct{}{}
	return receipt, nil
}

// Seal commits the state changes of the block into the HashDB overlay and
// returns the sealed block. The overlay is flushed by Cache.AddBlock.
func (b *OpenBlock) Seal() (*SealedBlock, error) {
	if b.sealed {
		return nil, ErrBlockSealed
	}
	if err := b.state.Error(); err != nil {
		return nil, err
	}
	number := b.header.Number.Uint64()
	root, err := b.state.Commit(number, true)
	if err != nil {
		return nil, fmt.Errorf("commit state of block %d: %w", number, err)
	}
	if err := b.state.Database().TrieDB().Commit(root, false); err != nil {
		return nil, fmt.Errorf("commit trie of block %d: %w", number, err)
	}
	b.header.Root = root
	b.sealed = true
	b.state.Close()

	block := types.NewBlock(b.header, b.txs, nil, gethReceipts(b.receipts), trie.NewStackTrie(nil))
	if err := deriveReceiptFields(b.receipts, block); err != nil {
		return nil, err
	}
	return &SealedBlock{
		Block:    block,
		Receipts: b.receipts,
		Senders:  b.senders,
	}, nil
}

// Discard abandons the block. The cache's HashDB overlay must also be
// discarded for the rollback to be complete.
func (b *OpenBlock) Discard() {
	b.sealed = true
	b.state.Close()
}

// SealedBlock is a block ready to be appended to the chain.
type SealedBlock struct {
	Block    *types.Block
	Receipts []*Receipt
	Senders  []common.Address
}

// Hash returns the hash of the block.
func (s *SealedBlock) Hash() common.Hash {
	return s.Block.Hash()
}
