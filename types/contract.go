// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/project-illium/ilxevm/params/hash"
)

// ContractID identifies a contract to the key manager. It is the
// keccak-256 digest of the contract address.
type ContractID Digest

func (id ContractID) String() string {
	return Digest(id).String()
}

func (id ContractID) Bytes() []byte {
	return id[:]
}

// NewContractID returns the contract ID for the given address.
func NewContractID(addr common.Address) ContractID {
	return ContractID(NewDigest(hash.HashFunc(addr.Bytes())))
}
