// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package keymanager

import (
	"context"
	"encoding/binary"
	"errors"

	lcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/project-illium/ilxevm/crypto"
	"github.com/project-illium/ilxevm/types"
)

// ErrKeyNotFound is returned by GetPublicKey for a contract that has
// never been issued a key.
var ErrKeyNotFound = errors.New("contract key not found")

// KeyManager issues per-contract key material.
type KeyManager interface {
	// GetOrCreateContractKey returns the contract's keys, issuing them
	// on first request.
	GetOrCreateContractKey(ctx context.Context, id types.ContractID) (*ContractKey, error)

	// GetPublicKey returns the signed public key of an issued contract
	// key or ErrKeyNotFound.
	GetPublicKey(ctx context.Context, id types.ContractID) (*PublicKeyPayload, error)
}

// ContractKey is the key material for one contract. PublicKey and
// SecretKey are an X25519 pair used for session encryption. StateKey
// encrypts the contract's storage.
type ContractKey struct {
	PublicKey [crypto.Curve25519PublicKeySize]byte
	SecretKey [crypto.Curve25519PrivateKeySize]byte
	StateKey  [crypto.StateKeySize]byte
}

// PrivateKey returns the session secret key.
func (k *ContractKey) PrivateKey() (*crypto.Curve25519PrivateKey, error) {
	priv, err := crypto.UnmarshalCurve25519PrivateKey(k.SecretKey[:])
	if err != nil {
		return nil, err
	}
	return priv.(*crypto.Curve25519PrivateKey), nil
}

// PublicKeyPayload is a contract public key signed by the key manager
// so third parties can check where it came from.
type PublicKeyPayload struct {
	PublicKey [crypto.Curve25519PublicKeySize]byte
	Timestamp uint64
	Signature []byte
}

// SigHash returns the bytes covered by the signature:
// PublicKey || LE64(Timestamp).
func (p *PublicKeyPayload) SigHash() []byte {
	b := make([]byte, 0, len(p.PublicKey)+8)
	b = append(b, p.PublicKey[:]...)
	return binary.LittleEndian.AppendUint64(b, p.Timestamp)
}

// Verify checks the payload signature against the key manager's
// signing key.
func (p *PublicKeyPayload) Verify(signer lcrypto.PubKey) (bool, error) {
	return signer.Verify(p.SigHash(), p.Signature)
}

func signPayload(signer lcrypto.PrivKey, pub [32]byte, timestamp uint64) (*PublicKeyPayload, error) {
	p := &PublicKeyPayload{
		PublicKey: pub,
		Timestamp: timestamp,
	}
	sig, err := signer.Sign(p.SigHash())
	if err != nil {
		return nil, err
	}
	p.Signature = sig
	return p, nil
}
