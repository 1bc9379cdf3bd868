// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package evm

import (
	"errors"

	"github.com/project-illium/ilxevm/blockchain"
	"github.com/project-illium/ilxevm/confidential"
	"github.com/project-illium/ilxevm/crypto"
)

var (
	// ErrNotConfidential is the cause of a confidential failure when an
	// encrypted call targets a contract that is not confidential.
	ErrNotConfidential = errors.New("target contract is not confidential")

	// ErrPlaintextCall is the cause of a confidential failure when an
	// unencrypted call targets a confidential contract.
	ErrPlaintextCall = errors.New("plaintext call to confidential contract")

	// ErrNoKeyManager is returned when a confidential transaction is
	// applied by an engine without a key manager.
	ErrNoKeyManager = errors.New("engine has no key manager")
)

// ConfidentialError is a failure of the confidential layer: the key of
// the contract could not be resolved, the payload was malformed or it
// did not decrypt. It is distinct from a revert of the contract code.
type ConfidentialError struct {
	Err error
}

func (e *ConfidentialError) Error() string {
	return "confidential: " + e.Err.Error()
}

func (e *ConfidentialError) Unwrap() error {
	return e.Err
}

// isConfidentialFault reports whether a storage or context failure was
// caused by the confidential layer rather than by the backing stores.
func isConfidentialFault(err error) bool {
	return errors.Is(err, crypto.ErrBoxDecryption) ||
		errors.Is(err, crypto.ErrMalformedPayload) ||
		errors.Is(err, crypto.ErrNonceOverflow) ||
		errors.Is(err, confidential.ErrNoContractKey) ||
		errors.Is(err, confidential.ErrNotOpen) ||
		errors.Is(err, confidential.ErrNoPeer) ||
		errors.Is(err, blockchain.ErrNoKeyManager) ||
		errors.Is(err, ErrNoKeyManager)
}
