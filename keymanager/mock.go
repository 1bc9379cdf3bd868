// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package keymanager

import (
	"context"
	"sync"

	lcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/project-illium/ilxevm/crypto"
	"github.com/project-illium/ilxevm/types"
)

var _ KeyManager = (*MockKeyManager)(nil)

// MockKeyManager is an in-memory key manager for tests. Keys are a
// deterministic function of the seed and the contract ID. Calls can be
// made to fail with SetError.
type MockKeyManager struct {
	seed   [32]byte
	signer lcrypto.PrivKey
	issued map[types.ContractID]uint64
	clock  uint64
	err    error
	calls  int
	mtx    sync.Mutex
}

func NewMockKeyManager(seed [32]byte) *MockKeyManager {
	signer, _, err := lcrypto.GenerateEd25519Key(crypto.NewSeededReader(seed))
	if err != nil {
		panic(err)
	}
	return &MockKeyManager{
		seed:   seed,
		signer: signer,
		issued: make(map[types.ContractID]uint64),
	}
}

// SetError makes every subsequent call fail with err. A nil err restores
// normal operation.
func (km *MockKeyManager) SetError(err error) {
	km.mtx.Lock()
	defer km.mtx.Unlock()
	km.err = err
}

// Calls returns how many GetOrCreateContractKey calls were made.
func (km *MockKeyManager) Calls() int {
	km.mtx.Lock()
	defer km.mtx.Unlock()
	return km.calls
}

func (km *MockKeyManager) SigningKey() lcrypto.PubKey {
	return km.signer.GetPublic()
}

func (km *MockKeyManager) GetOrCreateContractKey(ctx context.Context, id types.ContractID) (*ContractKey, error) {
	km.mtx.Lock()
	defer km.mtx.Unlock()

	km.calls++
	if km.err != nil {
		return nil, km.err
	}
	if _, ok := km.issued[id]; !ok {
		km.clock++
		km.issued[id] = km.clock
	}
	return deriveContractKey(km.seed, id)
}

func (km *MockKeyManager) GetPublicKey(ctx context.Context, id types.ContractID) (*PublicKeyPayload, error) {
	km.mtx.Lock()
	defer km.mtx.Unlock()

	if km.err != nil {
		return nil, km.err
	}
	ts, ok := km.issued[id]
	if !ok {
		return nil, ErrKeyNotFound
	}
	ck, err := deriveContractKey(km.seed, id)
	if err != nil {
		return nil, err
	}
	return signPayload(km.signer, ck.PublicKey, ts)
}
