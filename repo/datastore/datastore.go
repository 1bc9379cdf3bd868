// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package datastore

import (
	"os"

	badger "github.com/ipfs/go-ds-badger"
	"github.com/project-illium/ilxevm/repo"
)

var _ repo.Datastore = (*badger.Datastore)(nil)

// NewBadgerDatastore opens (creating if needed) a badger datastore in
// dataDir.
func NewBadgerDatastore(dataDir string) (repo.Datastore, error) {
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return nil, err
		}
	}

	badgerOpts := badger.DefaultOptions
	badgerOpts.MaxTableSize = 256 << 20
	return badger.NewDatastore(dataDir, &badgerOpts)
}
