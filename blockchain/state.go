// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/project-illium/ilxevm/confidential"
	"github.com/project-illium/ilxevm/keymanager"
	"github.com/project-illium/ilxevm/params"
	"github.com/project-illium/ilxevm/types"
)

// ErrNoKeyManager is returned when confidential storage is touched by a
// state view that has no way to resolve contract keys.
var ErrNoKeyManager = errors.New("no key manager configured for confidential storage")

// confidentialMarker is the registry value for a confidential contract.
var confidentialMarker = common.BigToHash(common.Big1)

// registrySlot returns the slot of the confidential registry that
// records whether addr is confidential.
func registrySlot(addr common.Address) common.Hash {
	return crypto.Keccak256Hash(addr.Bytes())
}

// StateView is the world state at a block wrapped with the confidential
// storage layer. Storage of a confidential contract is never written in
// the clear: each non-zero cell is sealed with the contract's state key,
// the sealed bytes are inserted into the HashDB and the trie holds only
// their digest. Reads reverse the process. Zero stays zero so cleared
// slots are still removed from the trie.
//
// The first storage failure is recorded and reported by Error. The EVM
// reads storage through methods without an error return so callers must
// check Error after each execution.
type StateView struct {
	*state.StateDB

	hashdb *HashDB
	km     keymanager.KeyManager

	cctx     *confidential.Context
	contexts map[common.Address]*confidential.Context
	err      error
}

func newStateView(sdb *state.StateDB, hashdb *HashDB, km keymanager.KeyManager, cctx *confidential.Context) *StateView {
	return &StateView{
		StateDB:  sdb,
		hashdb:   hashdb,
		km:       km,
		cctx:     cctx,
		contexts: make(map[common.Address]*confidential.Context),
	}
}

// SetConfidentialContext sets the context of the call in progress. Storage
// of the contract it was opened for is sealed with it.
func (s *StateView) SetConfidentialContext(cctx *confidential.Context) {
	s.cctx = cctx
}

// ConfidentialContext returns the context of the call in progress.
func (s *StateView) ConfidentialContext() *confidential.Context {
	return s.cctx
}

// IsConfidential reports whether the contract at addr is confidential.
func (s *StateView) IsConfidential(addr common.Address) bool {
	return s.StateDB.GetState(params.ConfidentialRegistry, registrySlot(addr)) != (common.Hash{})
}

// MarkConfidential records addr as a confidential contract.
func (s *StateView) MarkConfidential(addr common.Address) {
	if s.StateDB.GetNonce(params.ConfidentialRegistry) == 0 {
		s.StateDB.SetNonce(params.ConfidentialRegistry, 1)
	}
	s.StateDB.SetState(params.ConfidentialRegistry, registrySlot(addr), confidentialMarker)
}

// UnmarkConfidential clears the confidential marker for addr.
func (s *StateView) UnmarkConfidential(addr common.Address) {
	s.StateDB.SetState(params.ConfidentialRegistry, registrySlot(addr), common.Hash{})
}

// GetState returns the plaintext value of a storage cell.
func (s *StateView) GetState(addr common.Address, key common.Hash) common.Hash {
	return s.openCell(addr, s.StateDB.GetState(addr, key))
}

// GetCommittedState returns the plaintext value of a storage cell as of
// the start of the transaction.
func (s *StateView) GetCommittedState(addr common.Address, key common.Hash) common.Hash {
	return s.openCell(addr, s.StateDB.GetCommittedState(addr, key))
}

// SetState writes a storage cell, sealing it first if the contract is
// confidential.
func (s *StateView) SetState(addr common.Address, key common.Hash, value common.Hash) {
	if value == (common.Hash{}) || !s.IsConfidential(addr) {
		s.StateDB.SetState(addr, key, value)
		return
	}
	cctx, err := s.storageContext(addr)
	if err != nil {
		s.setError(err)
		return
	}
	sealed, err := cctx.EncryptStorage(value.Bytes())
	if err != nil {
		s.setError(fmt.Errorf("seal storage of %s: %w", addr, err))
		return
	}
	digest := s.hashdb.Insert(sealed)
	s.StateDB.SetState(addr, key, digest.Hash())
}

// RawState returns the value the trie holds for a storage cell. For a
// confidential contract this is the digest of the sealed cell.
func (s *StateView) RawState(addr common.Address, key common.Hash) common.Hash {
	return s.StateDB.GetState(addr, key)
}

func (s *StateView) openCell(addr common.Address, stored common.Hash) common.Hash {
	if stored == (common.Hash{}) || !s.IsConfidential(addr) {
		return stored
	}
	sealed, err := s.hashdb.Get(stored.Bytes())
	if err != nil {
		s.setError(fmt.Errorf("load sealed storage of %s: %w", addr, err))
		return common.Hash{}
	}
	cctx, err := s.storageContext(addr)
	if err != nil {
		s.setError(err)
		return common.Hash{}
	}
	plaintext, err := cctx.DecryptStorage(sealed)
	if err != nil {
		s.setError(fmt.Errorf("open storage of %s: %w", addr, err))
		return common.Hash{}
	}
	return common.BytesToHash(plaintext)
}

// storageContext returns an open context for the contract at addr. The
// context of the call in progress is used when it belongs to the
// contract. Otherwise one is opened through the key manager and kept for
// the lifetime of the view.
func (s *StateView) storageContext(addr common.Address) (*confidential.Context, error) {
	id := types.NewContractID(addr)
	if s.cctx != nil && s.cctx.IsOpen() {
		if cid, err := s.cctx.ContractID(); err == nil && cid == id {
			return s.cctx, nil
		}
	}
	if cctx, ok := s.contexts[addr]; ok {
		return cctx, nil
	}
	if s.km == nil {
		return nil, ErrNoKeyManager
	}
	cctx := confidential.NewContext(s.km)
	if _, err := cctx.Open(context.Background(), id, nil); err != nil {
		return nil, fmt.Errorf("open storage context for %s: %w", addr, err)
	}
	s.contexts[addr] = cctx
	return cctx, nil
}

func (s *StateView) setError(err error) {
	if s.err == nil {
		s.err = err
	}
}

// Error returns the first storage failure or the first database error
// of the underlying state.
func (s *StateView) Error() error {
	if s.err != nil {
		return s.err
	}
	return s.StateDB.Error()
}

// ResetError clears a recorded storage failure. It is called between
// transactions once the failure has been handled.
func (s *StateView) ResetError() {
	s.err = nil
}

// Close closes every context the view opened for storage access.
func (s *StateView) Close() {
	for addr, cctx := range s.contexts {
		cctx.Close()
		delete(s.contexts, addr)
	}
}
