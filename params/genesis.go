// Copyright (c) 2022 Project Illium
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package params

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
)

// RegtestDevKey is the private key of the account funded in the regtest
// genesis. It is public knowledge and must never hold real value.
const RegtestDevKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

// Genesis describes the first block and the state it commits to.
type Genesis struct {
	Timestamp uint64
	GasLimit  uint64
	ExtraData []byte
	Alloc     core.GenesisAlloc
}

// Copy returns a deep enough copy of the genesis for callers that want
// to extend the allocation.
func (g *Genesis) Copy() *Genesis {
	alloc := make(core.GenesisAlloc, len(g.Alloc))
	for addr, acct := range g.Alloc {
		alloc[addr] = acct
	}
	extra := make([]byte, len(g.ExtraData))
	copy(extra, g.ExtraData)
	return &Genesis{
		Timestamp: g.Timestamp,
		GasLimit:  g.GasLimit,
		ExtraData: extra,
		Alloc:     alloc,
	}
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// MainnetGenesis is the genesis for the mainnet.
var MainnetGenesis = &Genesis{
	Timestamp: 0,
	GasLimit:  DefaultGasLimit,
	Alloc: core.GenesisAlloc{
		common.HexToAddress("0x7110316b618d20d0c44728ac2a3d683536ea682b"): {Balance: tokens(1_000_000_000)},
	},
}

// TestnetGenesis is the genesis for the test network.
var TestnetGenesis = &Genesis{
	Timestamp: 0,
	GasLimit:  DefaultGasLimit,
	Alloc: core.GenesisAlloc{
		common.HexToAddress("0x7110316b618d20d0c44728ac2a3d683536ea682b"): {Balance: tokens(1_000_000_000)},
	},
}

// RegtestGenesis funds the address controlled by RegtestDevKey.
var RegtestGenesis = &Genesis{
	Timestamp: 0,
	GasLimit:  DefaultGasLimit,
	Alloc: core.GenesisAlloc{
		common.HexToAddress("0x71562b71999873DB5b286dF957af199Ec94617F7"): {Balance: tokens(1_000_000)},
	},
}
