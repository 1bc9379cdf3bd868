// Copyright (c) 2022 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package repo

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/ipfs/go-datastore"
	"github.com/libp2p/go-libp2p/core/crypto"
)

// HasSigningKey reports whether the key manager signing key has been
// persisted.
func HasSigningKey(ds datastore.Datastore) (bool, error) {
	return ds.Has(context.Background(), datastore.NewKey(KeyManagerSigningKey))
}

func LoadSigningKey(ds datastore.Datastore) (crypto.PrivKey, error) {
	keyBytes, err := ds.Get(context.Background(), datastore.NewKey(KeyManagerSigningKey))
	if err != nil {
		return nil, err
	}
	return crypto.UnmarshalPrivateKey(keyBytes)
}

func PutSigningKey(ds datastore.Datastore, key crypto.PrivKey) error {
	keyBytes, err := crypto.MarshalPrivateKey(key)
	if err != nil {
		return err
	}
	return ds.Put(context.Background(), datastore.NewKey(KeyManagerSigningKey), keyBytes)
}

func GenerateSigningKeypair() (crypto.PrivKey, crypto.PubKey, error) {
	return crypto.GenerateEd25519Key(rand.Reader)
}

// LoadOrCreateSigningKey returns the persisted signing key, generating
// and persisting a new one on first use.
func LoadOrCreateSigningKey(ds datastore.Datastore) (crypto.PrivKey, error) {
	has, err := HasSigningKey(ds)
	if err != nil {
		return nil, err
	}
	if has {
		return LoadSigningKey(ds)
	}
	priv, _, err := GenerateSigningKeypair()
	if err != nil {
		return nil, err
	}
	if err := PutSigningKey(ds, priv); err != nil {
		return nil, err
	}
	log.Info("Generated new key manager signing key")
	return priv, nil
}

// LoadOrCreateMasterSecret returns the local key manager's master secret.
// If override is non-empty it is decoded from hex and persisted in place
// of any stored secret. Otherwise the stored secret is returned or, on
// first use, a random one is generated and persisted.
func LoadOrCreateMasterSecret(ds datastore.Datastore, override string) ([32]byte, error) {
	var secret [32]byte
	key := datastore.NewKey(KeyManagerMasterSecret)
	if override != "" {
		b, err := hex.DecodeString(override)
		if err != nil {
			return secret, err
		}
		if len(b) != len(secret) {
			return secret, errors.New("master secret must be 32 bytes")
		}
		copy(secret[:], b)
		return secret, ds.Put(context.Background(), key, secret[:])
	}

	b, err := ds.Get(context.Background(), key)
	if err == nil {
		if len(b) != len(secret) {
			return secret, errors.New("stored master secret is malformed")
		}
		copy(secret[:], b)
		return secret, nil
	}
	if !errors.Is(err, datastore.ErrNotFound) {
		return secret, err
	}
	if _, err := rand.Read(secret[:]); err != nil {
		return secret, err
	}
	if err := ds.Put(context.Background(), key, secret[:]); err != nil {
		return secret, err
	}
	log.Info("Generated new key manager master secret")
	return secret, nil
}
