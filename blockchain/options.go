// Copyright (c) 2022 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/project-illium/ilxevm/keymanager"
	"github.com/project-illium/ilxevm/params"
	"github.com/project-illium/ilxevm/repo/blockstore"
	"github.com/project-illium/ilxevm/repo/kvstore"
	"github.com/project-illium/ilxevm/repo/mock"
)

const DefaultCacheSize = 512

// DefaultOptions returns a cache configure option that fills in the
// default settings. The stores are in-memory. You will almost certainly
// want to override some of the defaults, such as parameters and stores.
func DefaultOptions() Option {
	return func(cfg *config) error {
		cfg.params = &params.RegtestParams
		cfg.contentStore = blockstore.NewMemoryStore()
		cfg.kvstore = kvstore.NewDatastoreService(mock.NewMapDatastore())
		cfg.cacheSize = DefaultCacheSize
		return nil
	}
}

// Option is configuration option function for the cache
type Option func(cfg *config) error

// Params identifies which chain parameters the cache is associated
// with.
//
// This option is required.
func Params(params *params.NetworkParams) Option {
	return func(cfg *config) error {
		cfg.params = params
		return nil
	}
}

// ContentStore is the content-addressed store trie nodes and encrypted
// storage cells are written to.
//
// This option is required.
func ContentStore(cas blockstore.ContentStore) Option {
	return func(cfg *config) error {
		cfg.contentStore = cas
		return nil
	}
}

// KVStore is the columnar key/value service that holds the chain data.
//
// This option is required.
func KVStore(kv kvstore.Service) Option {
	return func(cfg *config) error {
		cfg.kvstore = kv
		return nil
	}
}

// KeyManager resolves contract keys for state queries against
// confidential contracts. Without it such queries fail.
func KeyManager(km keymanager.KeyManager) Option {
	return func(cfg *config) error {
		cfg.keyManager = km
		return nil
	}
}

// CacheSize is the number of block bodies and receipt lists to hold in
// memory for fast access.
func CacheSize(size int) Option {
	return func(cfg *config) error {
		cfg.cacheSize = size
		return nil
	}
}

// Tracing turns on EVM execution tracing for blocks opened by the cache.
func Tracing(tracing bool) Option {
	return func(cfg *config) error {
		cfg.tracing = tracing
		return nil
	}
}

// config specifies the cache configuration.
type config struct {
	params       *params.NetworkParams
	contentStore blockstore.ContentStore
	kvstore      kvstore.Service
	keyManager   keymanager.KeyManager
	cacheSize    int
	tracing      bool
}

func (cfg *config) validate() error {
	if cfg == nil {
		return AssertError("NewCache: cache config cannot be nil")
	}
	if cfg.params == nil {
		return AssertError("NewCache: params cannot be nil")
	}
	if cfg.params.Genesis == nil {
		return AssertError("NewCache: genesis cannot be nil")
	}
	if cfg.contentStore == nil {
		return AssertError("NewCache: content store cannot be nil")
	}
	if cfg.kvstore == nil {
		return AssertError("NewCache: kvstore cannot be nil")
	}
	if cfg.cacheSize <= 0 {
		return AssertError("NewCache: cache size must be positive")
	}
	return nil
}
