// Copyright (c) 2022 Project Illium
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package params

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

const (
	networkMainnet = "mainnet"
	networkTestnet = "testnet"
	networkRegtest = "regtest"

	// DefaultGasLimit is the block gas limit set in the genesis block.
	DefaultGasLimit = 16_000_000
)

// ConfidentialRegistry is the system account whose storage records which
// contracts are confidential. The slot for a contract is the keccak-256
// digest of its address and holds a non-zero value when confidential.
var ConfidentialRegistry = common.HexToAddress("0x000000000000000000000000000000000c0f1d00")

type NetworkParams struct {
	// Name is a human-readable string to identify the params
	Name string

	// ChainConfig holds the fork schedule and chain ID passed to
	// the EVM. Transactions must be signed for ChainConfig.ChainID.
	ChainConfig *params.ChainConfig

	// Genesis defines the first block and the initial state.
	Genesis *Genesis

	// MinGasPrice is the lowest gas price the batch controller
	// admits into a block.
	MinGasPrice *big.Int
}

// newChainConfig returns a config with every fork up to Berlin active
// from block zero. London is left off so blocks carry no base fee.
func newChainConfig(chainID int64) *params.ChainConfig {
	return &params.ChainConfig{
		ChainID:             big.NewInt(chainID),
		HomesteadBlock:      big.NewInt(0),
		EIP150Block:         big.NewInt(0),
		EIP155Block:         big.NewInt(0),
		EIP158Block:         big.NewInt(0),
		ByzantiumBlock:      big.NewInt(0),
		ConstantinopleBlock: big.NewInt(0),
		PetersburgBlock:     big.NewInt(0),
		IstanbulBlock:       big.NewInt(0),
		MuirGlacierBlock:    big.NewInt(0),
		BerlinBlock:         big.NewInt(0),
	}
}

var MainnetParams = NetworkParams{
	Name:        networkMainnet,
	ChainConfig: newChainConfig(0xa515),
	Genesis:     MainnetGenesis,
	MinGasPrice: big.NewInt(params.GWei),
}

var TestnetParams = NetworkParams{
	Name:        networkTestnet,
	ChainConfig: newChainConfig(0x2a),
	Genesis:     TestnetGenesis,
	MinGasPrice: big.NewInt(params.GWei),
}

var RegtestParams = NetworkParams{
	Name:        networkRegtest,
	ChainConfig: newChainConfig(1337),
	Genesis:     RegtestGenesis,
	MinGasPrice: big.NewInt(0),
}
