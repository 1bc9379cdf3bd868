// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package evm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/eth/tracers/logger"
	"github.com/project-illium/ilxevm/blockchain"
	"github.com/project-illium/ilxevm/confidential"
	"github.com/project-illium/ilxevm/keymanager"
	itypes "github.com/project-illium/ilxevm/types"
)

// ConfidentialPrefix marks the data of a confidential transaction. It is
// followed by a wire encoded payload addressed to the contract key.
const ConfidentialPrefix = "\x00enc"

// IsConfidential reports whether transaction data carries an encrypted
// payload.
func IsConfidential(data []byte) bool {
	return bytes.HasPrefix(data, []byte(ConfidentialPrefix))
}

// Result is the outcome of applying a transaction to a block.
type Result struct {
	Receipt *blockchain.Receipt

	// ReturnData is the data returned by the call. It is encrypted to
	// the sender for confidential transactions.
	ReturnData []byte

	// Err is the execution error of the contract code, if any.
	Err error

	// ConfidentialErr is set when the confidential layer failed. The
	// transaction is still included and its nonce consumed.
	ConfidentialErr *ConfidentialError
}

// Failed reports whether the transaction did not execute successfully.
func (r *Result) Failed() bool {
	return r.Err != nil || r.ConfidentialErr != nil
}

// Engine executes transactions with the go-ethereum interpreter against
// the state of an open block.
type Engine struct {
	km keymanager.KeyManager
}

// NewEngine returns an engine that resolves contract keys through km.
// An engine without a key manager rejects confidential transactions.
func NewEngine(km keymanager.KeyManager) *Engine {
	return &Engine{km: km}
}

// Apply executes tx on top of the block and pushes its receipt.
//
// A non-nil error means the transaction was not included: it broke an
// admission rule (a blockchain.RuleError) or a backing store failed. A
// failure of the contract code or of the confidential layer is reported
// in the Result and the transaction is included.
func (e *Engine) Apply(ctx context.Context, block *blockchain.OpenBlock, tx *types.Transaction) (*Result, error) {
	from, err := block.CheckTransaction(tx)
	if err != nil {
		return nil, err
	}
	header := block.Header()
	chainConfig := block.ChainConfig()
	msg, err := core.TransactionToMessage(tx, types.LatestSigner(chainConfig), header.BaseFee)
	if err != nil {
		return nil, blockchain.NewRuleError(blockchain.ErrInvalidTx, err.Error())
	}

	sv := block.State()
	block.Prepare(tx)
	sv.ResetError()

	var (
		create = tx.To() == nil
		target common.Address
	)
	if create {
		target = crypto.CreateAddress(from, tx.Nonce())
	} else {
		target = *tx.To()
	}

	var cctx *confidential.Context
	if IsConfidential(tx.Data()) {
		if e.km == nil {
			return e.confidentialFailure(block, tx, from, ErrNoKeyManager)
		}
		if !create && !sv.IsConfidential(target) {
			return e.confidentialFailure(block, tx, from, ErrNotConfidential)
		}
		cctx = confidential.NewContext(e.km)
		defer cctx.Close()

		plaintext, err := cctx.Open(ctx, itypes.NewContractID(target), tx.Data()[len(ConfidentialPrefix):])
		if err != nil {
			return e.confidentialFailure(block, tx, from, err)
		}
		msg.Data = plaintext
		sv.SetConfidentialContext(cctx)
		defer sv.SetConfidentialContext(nil)
	} else if !create && sv.IsConfidential(target) {
		return e.confidentialFailure(block, tx, from, ErrPlaintextCall)
	}

	var (
		snap    = sv.Snapshot()
		gp      = block.GasPool()
		gasLeft = gp.Gas()
	)
	if cctx != nil && create {
		sv.MarkConfidential(target)
	}

	vmConfig := vm.Config{}
	var tracer *logger.StructLogger
	if block.Tracing() {
		tracer = logger.NewStructLogger(nil)
		vmConfig.Tracer = tracer
	}
	evm := vm.NewEVM(block.BlockContext(), core.NewEVMTxContext(msg), sv, chainConfig, vmConfig)

	res, err := core.ApplyMessage(evm, msg, gp)
	if err != nil {
		sv.RevertToSnapshot(snap)
		gp.SetGas(gasLeft)
		if errors.Is(err, core.ErrGasLimitReached) {
			return nil, blockchain.NewRuleError(blockchain.ErrBlockGasLimit, err.Error())
		}
		return nil, blockchain.NewRuleError(blockchain.ErrInvalidTx, err.Error())
	}
	if tracer != nil {
		log.Debugw("Execution trace", "tx", tx.Hash().String(), "steps", len(tracer.StructLogs()), "gas", res.UsedGas, "err", tracer.Error())
	}

	if serr := sv.Error(); serr != nil {
		sv.RevertToSnapshot(snap)
		gp.SetGas(gasLeft)
		sv.ResetError()
		if isConfidentialFault(serr) {
			return e.confidentialFailure(block, tx, from, serr)
		}
		return nil, fmt.Errorf("execute transaction %s: %w", tx.Hash(), serr)
	}

	output := res.ReturnData
	if cctx != nil {
		output, err = cctx.Encrypt(res.ReturnData)
		if err != nil {
			sv.RevertToSnapshot(snap)
			gp.SetGas(gasLeft)
			return e.confidentialFailure(block, tx, from, err)
		}
	}
	if cctx != nil && create && res.Failed() {
		sv.UnmarkConfidential(target)
	}
	sv.Finalise(true)

	outcome := &blockchain.ExecOutcome{
		UsedGas: res.UsedGas,
		Status:  blockchain.StatusSuccess,
		Output:  output,
	}
	switch {
	case res.Err == nil:
		if create {
			outcome.ContractAddress = target
		}
	case errors.Is(res.Err, vm.ErrExecutionReverted):
		outcome.Status = blockchain.StatusReverted
		outcome.Failure = res.Err.Error()
	default:
		outcome.Status = blockchain.StatusFailed
		outcome.Failure = res.Err.Error()
	}
	receipt, err := block.Push(tx, from, outcome)
	if err != nil {
		return nil, err
	}
	return &Result{
		Receipt:    receipt,
		ReturnData: output,
		Err:        res.Err,
	}, nil
}

// confidentialFailure includes tx with a failed status after a failure of
// the confidential layer. The sender pays for the intrinsic gas and the
// nonce is consumed so the transaction cannot be replayed.
func (e *Engine) confidentialFailure(block *blockchain.OpenBlock, tx *types.Transaction, from common.Address, cause error) (*Result, error) {
	sv := block.State()
	if nonce := sv.GetNonce(from); nonce != tx.Nonce() {
		return nil, blockchain.NewRuleError(blockchain.ErrInvalidTx, fmt.Sprintf("nonce mismatch: account %d, transaction %d", nonce, tx.Nonce()))
	}
	gas, err := core.IntrinsicGas(tx.Data(), tx.AccessList(), tx.To() == nil, true, true, false)
	if err != nil {
		return nil, blockchain.NewRuleError(blockchain.ErrInvalidTx, err.Error())
	}
	if gas > tx.Gas() {
		return nil, blockchain.NewRuleError(blockchain.ErrInvalidTx, fmt.Sprintf("intrinsic gas too low: have %d, want %d", tx.Gas(), gas))
	}
	fee := new(big.Int).Mul(new(big.Int).SetUint64(gas), tx.GasPrice())
	if sv.GetBalance(from).Cmp(fee) < 0 {
		return nil, blockchain.NewRuleError(blockchain.ErrInvalidTx, fmt.Sprintf("insufficient funds for gas: %s", from))
	}
	if err := block.GasPool().SubGas(gas); err != nil {
		return nil, blockchain.NewRuleError(blockchain.ErrBlockGasLimit, err.Error())
	}

	sv.SubBalance(from, fee)
	sv.AddBalance(block.Header().Coinbase, fee)
	sv.SetNonce(from, tx.Nonce()+1)
	sv.Finalise(true)

	cerr := &ConfidentialError{Err: cause}
	log.Debugw("Confidential transaction failed", "tx", tx.Hash().String(), "err", cerr)

	receipt, err := block.Push(tx, from, &blockchain.ExecOutcome{
		UsedGas: gas,
		Status:  blockchain.StatusConfidentialFailure,
		Failure: cerr.Error(),
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		Receipt:         receipt,
		ConfidentialErr: cerr,
	}, nil
}
