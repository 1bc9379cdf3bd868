// Copyright (c) 2022 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package harness

import (
	"crypto/ecdsa"
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/project-illium/ilxevm/keymanager"
	"github.com/project-illium/ilxevm/params"
	"github.com/project-illium/ilxevm/repo/blockstore"
	"github.com/project-illium/ilxevm/repo/kvstore"
	"github.com/project-illium/ilxevm/repo/mock"
)

func DefaultOptions() Option {
	return func(cfg *config) error {
		key, err := crypto.HexToECDSA(params.RegtestDevKey)
		if err != nil {
			return err
		}
		cfg.params = &params.RegtestParams
		cfg.contentStore = blockstore.NewMemoryStore()
		cfg.kvstore = kvstore.NewDatastoreService(mock.NewMapDatastore())
		cfg.spendKey = key
		cfg.nTxsPerBlock = 1
		cfg.blockInterval = 5
		return nil
	}
}

// Option is configuration option function for the harness
type Option func(cfg *config) error

func Params(params *params.NetworkParams) Option {
	return func(cfg *config) error {
		cfg.params = params
		return nil
	}
}

func ContentStore(cas blockstore.ContentStore) Option {
	return func(cfg *config) error {
		cfg.contentStore = cas
		return nil
	}
}

func KVStore(kv kvstore.Service) Option {
	return func(cfg *config) error {
		cfg.kvstore = kv
		return nil
	}
}

func KeyManager(km keymanager.KeyManager) Option {
	return func(cfg *config) error {
		cfg.keyManager = km
		return nil
	}
}

// SpendKey is the key that signs every generated transaction. It must
// be funded in the genesis allocation.
func SpendKey(key *ecdsa.PrivateKey) Option {
	return func(cfg *config) error {
		cfg.spendKey = key
		return nil
	}
}

func Pregenerate(n int) Option {
	return func(cfg *config) error {
		cfg.nBlocks = n
		return nil
	}
}

func NTxsPerBlock(n int) Option {
	return func(cfg *config) error {
		cfg.nTxsPerBlock = n
		return nil
	}
}

// BlockInterval is the number of seconds between generated blocks.
func BlockInterval(seconds uint64) Option {
	return func(cfg *config) error {
		cfg.blockInterval = seconds
		return nil
	}
}

type config struct {
	params        *params.NetworkParams
	contentStore  blockstore.ContentStore
	kvstore       kvstore.Service
	keyManager    keymanager.KeyManager
	spendKey      *ecdsa.PrivateKey
	nBlocks       int
	nTxsPerBlock  int
	blockInterval uint64
}

func (cfg *config) validate() error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.params == nil {
		return errors.New("params is nil")
	}
	if cfg.contentStore == nil {
		return errors.New("content store is nil")
	}
	if cfg.kvstore == nil {
		return errors.New("kvstore is nil")
	}
	if cfg.spendKey == nil {
		return errors.New("spend key is nil")
	}
	if cfg.nTxsPerBlock < 0 {
		return errors.New("txs per block is negative")
	}
	return nil
}
