// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package keymanager

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/ipfs/go-datastore"
	lcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/project-illium/ilxevm/crypto"
	"github.com/project-illium/ilxevm/params/hash"
	"github.com/project-illium/ilxevm/repo"
	"github.com/project-illium/ilxevm/types"
	"golang.org/x/crypto/sha3"
)

const (
	sessionKeyDomain = "ilxevm/keymanager/session"
	stateKeyDomain   = "ilxevm/keymanager/state"
)

var _ KeyManager = (*LocalKeyManager)(nil)

// LocalKeyManager derives contract keys from a master secret. The keys
// themselves are never stored; the datastore only records when each
// contract key was first issued so the signed public key payload is
// stable across restarts.
type LocalKeyManager struct {
	ds     datastore.Datastore
	master [32]byte
	signer lcrypto.PrivKey
	now    func() time.Time
	mtx    sync.Mutex
}

func NewLocalKeyManager(ds datastore.Datastore, master [32]byte, signer lcrypto.PrivKey) *LocalKeyManager {
	return &LocalKeyManager{
		ds:     ds,
		master: master,
		signer: signer,
		now:    time.Now,
	}
}

// SigningKey returns the public key payload signatures verify against.
func (km *LocalKeyManager) SigningKey() lcrypto.PubKey {
	return km.signer.GetPublic()
}

func (km *LocalKeyManager) GetOrCreateContractKey(ctx context.Context, id types.ContractID) (*ContractKey, error) {
	km.mtx.Lock()
	defer km.mtx.Unlock()

	key := issuanceKey(id)
	has, err := km.ds.Has(ctx, key)
	if err != nil {
		return nil, err
	}
	if !has {
		ts := make([]byte, 8)
		binary.LittleEndian.PutUint64(ts, uint64(km.now().Unix()))
		if err := km.ds.Put(ctx, key, ts); err != nil {
			return nil, err
		}
		log.Debugf("Issued contract key for %s", id)
	}
	return deriveContractKey(km.master, id)
}

func (km *LocalKeyManager) GetPublicKey(ctx context.Context, id types.ContractID) (*PublicKeyPayload, error) {
	km.mtx.Lock()
	defer km.mtx.Unlock()

	ts, err := km.ds.Get(ctx, issuanceKey(id))
	if err == datastore.ErrNotFound {
		return nil, ErrKeyNotFound
	} else if err != nil {
		return nil, err
	}
	ck, err := deriveContractKey(km.master, id)
	if err != nil {
		return nil, err
	}
	return signPayload(km.signer, ck.PublicKey, binary.LittleEndian.Uint64(ts))
}

func issuanceKey(id types.ContractID) datastore.Key {
	return datastore.NewKey(repo.ContractKeyPrefix + id.String())
}

// deriveContractKey computes the contract keys from the master secret.
// The session key pair comes from a ChaCha20 stream seeded with
// keccak(domain || master || id); the state key is 64 bytes of
// SHAKE-256 over a separate domain.
func deriveContractKey(master [32]byte, id types.ContractID) (*ContractKey, error) {
	var seed [32]byte
	copy(seed[:], hash.HashWithPrefix(sessionKeyDomain, master[:], id.Bytes()))
	priv, pub, err := crypto.NewCurve25519KeyFromSeed(seed)
	if err != nil {
		return nil, err
	}

	ck := &ContractKey{
		PublicKey: pub.Array(),
		SecretKey: priv.Scalar(),
	}
	shake := sha3.NewShake256()
	shake.Write([]byte(stateKeyDomain))
	shake.Write(master[:])
	shake.Write(id.Bytes())
	shake.Read(ck.StateKey[:])
	return ck, nil
}
