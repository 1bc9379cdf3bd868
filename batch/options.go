// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package batch

import (
	"errors"

	"github.com/project-illium/ilxevm/blockchain"
	"github.com/project-illium/ilxevm/keymanager"
	"github.com/project-illium/ilxevm/params"
	"github.com/project-illium/ilxevm/repo/blockstore"
	"github.com/project-illium/ilxevm/repo/kvstore"
	"github.com/project-illium/ilxevm/repo/mock"
)

// DefaultOptions returns a controller configure option that fills in
// the default settings. The stores are in-memory and there is no key
// manager so confidential transactions fail.
func DefaultOptions() Option {
	return func(cfg *config) error {
		cfg.params = &params.RegtestParams
		cfg.contentStore = blockstore.NewMemoryStore()
		cfg.kvstore = kvstore.NewDatastoreService(mock.NewMapDatastore())
		cfg.cacheSize = blockchain.DefaultCacheSize
		return nil
	}
}

// Option is configuration option function for the controller
type Option func(cfg *config) error

// Params identifies which chain parameters the controller is associated
// with.
//
// This option is required.
func Params(params *params.NetworkParams) Option {
	return func(cfg *config) error {
		cfg.params = params
		return nil
	}
}

// ContentStore is the content-addressed store the state is written to.
//
// This option is required.
func ContentStore(cas blockstore.ContentStore) Option {
	return func(cfg *config) error {
		cfg.contentStore = cas
		return nil
	}
}

// KVStore is the columnar key/value service holding the chain. Its root
// is read at the start of every batch.
//
// This option is required.
func KVStore(kv kvstore.Service) Option {
	return func(cfg *config) error {
		cfg.kvstore = kv
		return nil
	}
}

// KeyManager issues contract keys for confidential execution.
func KeyManager(km keymanager.KeyManager) Option {
	return func(cfg *config) error {
		cfg.keyManager = km
		return nil
	}
}

// CacheSize is the number of block bodies and receipt lists the chain
// cache holds in memory.
func CacheSize(size int) Option {
	return func(cfg *config) error {
		cfg.cacheSize = size
		return nil
	}
}

// Tracing turns on EVM execution tracing.
func Tracing(tracing bool) Option {
	return func(cfg *config) error {
		cfg.tracing = tracing
		return nil
	}
}

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
	return nil
}

func (cfg *config) cacheOptions() []blockchain.Option {
	opts := []blockchain.Option{
		blockchain.Params(cfg.params),
		blockchain.ContentStore(cfg.contentStore),
		blockchain.KVStore(cfg.kvstore),
		blockchain.CacheSize(cfg.cacheSize),
		blockchain.Tracing(cfg.tracing),
	}
	if cfg.keyManager != nil {
		opts = append(opts, blockchain.KeyManager(cfg.keyManager))
	}
	return opts
}
