// Copyright (c) 2022 Project Illium
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/project-illium/ilxevm/batch"
	"github.com/project-illium/ilxevm/blockchain"
	"github.com/project-illium/ilxevm/keymanager"
	"github.com/project-illium/ilxevm/params"
	"github.com/project-illium/ilxevm/repo"
	"github.com/project-illium/ilxevm/repo/blockstore"
	"github.com/project-illium/ilxevm/repo/datastore"
	"github.com/project-illium/ilxevm/repo/kvstore"
	itypes "github.com/project-illium/ilxevm/types"
	"go.uber.org/zap"
)

const keyManagerPath = "/rpc"

var log = zap.S()

// Server is the main class that brings all the constituent parts together
// into a full node.
type Server struct {
	cancelFunc context.CancelFunc
	ctx        context.Context
	config     *repo.Config
	params     *params.NetworkParams
	ds         repo.Datastore
	km         keymanager.KeyManager
	controller *batch.Controller
	httpServer *http.Server
	now        func() time.Time
}

// BuildServer is the constructor for the server. We pass in the config file here
// and use it to configure all the various parts of the Server.
func BuildServer(config *repo.Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	// Logging
	if err := setupLogging(config.LogDir, config.LogLevel, config.Testnet || config.Regtest); err != nil {
		cancel()
		return nil, err
	}

	// Parameter selection
	var netParams *params.NetworkParams
	if config.Testnet {
		netParams = &params.TestnetParams
	} else if config.Regtest {
		netParams = &params.RegtestParams
	} else {
		netParams = &params.MainnetParams
	}

	// Setup up badger datastore
	ds, err := datastore.NewBadgerDatastore(config.DataDir)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Server{
		cancelFunc: cancel,
		ctx:        ctx,
		config:     config,
		params:     netParams,
		ds:         ds,
		now:        time.Now,
	}

	// Key manager
	if config.KeyManager.URL != "" {
		s.km = keymanager.NewRemoteKeyManager(config.KeyManager.URL)
		log.Infow("Using remote key manager", "url", config.KeyManager.URL)
	} else {
		signer, err := repo.LoadOrCreateSigningKey(ds)
		if err != nil {
			s.Close()
			return nil, err
		}
		master, err := repo.LoadOrCreateMasterSecret(ds, config.KeyManager.MasterSecret)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.km = keymanager.NewLocalKeyManager(ds, master, signer)

		if config.KeyManager.Listen != "" {
			if err := s.serveKeyManager(config.KeyManager.Listen); err != nil {
				s.Close()
				return nil, err
			}
		}
	}

	// Batch controller and chain cache
	s.controller, err = batch.NewController(
		batch.DefaultOptions(),
		batch.Params(netParams),
		batch.ContentStore(blockstore.NewIPFSStore(ds)),
		batch.KVStore(kvstore.NewDatastoreService(ds)),
		batch.KeyManager(s.km),
		batch.CacheSize(config.CacheSize),
		batch.Tracing(config.Debug),
	)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.controller.Cache().Subscribe(s.handleBlockchainNotification)

	// Open and drop an empty batch so genesis is written and the chain
	// index is loaded before the first real batch.
	if err := s.controller.Start(ctx, uint64(s.now().Unix())); err != nil {
		s.Close()
		return nil, err
	}
	s.controller.Abort()

	header, err := s.controller.Cache().BestBlockHeader()
	if err != nil {
		s.Close()
		return nil, err
	}
	log.Infow("Chain loaded", "network", netParams.Name, "height", header.Number, "hash", header.Hash().String(), "version", repo.VersionString())
	return s, nil
}

// serveKeyManager exposes the local key manager over JSON-RPC.
func (s *Server) serveKeyManager(addr string) error {
	handler, err := keymanager.NewHandler(s.km)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle(keyManagerPath, handler)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("Key manager server stopped", "error", err)
		}
	}()
	log.Infow("Key manager listening", "addr", addr, "path", keyManagerPath)
	return nil
}

func (s *Server) handleBlockchainNotification(ntf *blockchain.Notification) {
	switch ntf.Type {
	case blockchain.NTBlockConnected:
		if sealed, ok := ntf.Data.(*blockchain.SealedBlock); ok {
			log.Debugw("New block", "number", sealed.Block.NumberU64(), "hash", sealed.Hash().String(),
				"txs", len(sealed.Block.Transactions()))
		}
	case blockchain.NTIndexRebuilt:
		if root, ok := ntf.Data.(itypes.Digest); ok {
			log.Debugw("Chain index rebuilt", "root", root.String())
		}
	}
}

// Close shuts down all the parts of the server and blocks until
// they finish closing.
func (s *Server) Close() error {
	if s.controller != nil && s.controller.InProgress() {
		s.controller.Abort()
	}
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Errorw("Key manager server shutdown error", "error", err)
		}
		cancel()
	}
	s.cancelFunc()
	if s.ds != nil {
		return s.ds.Close()
	}
	return nil
}
