// Copyright (c) 2022 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package harness

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/project-illium/ilxevm/batch"
	"github.com/project-illium/ilxevm/blockchain"
	"github.com/project-illium/ilxevm/crypto"
	"github.com/project-illium/ilxevm/evm"
	"github.com/project-illium/ilxevm/keymanager"
	itypes "github.com/project-illium/ilxevm/types"
)

// deployGas is enough for the small contracts tests deploy.
const deployGas = 1_000_000

// TestHarness builds chains through a batch controller for tests. All
// transactions are signed by the spend key and the harness tracks its
// nonce.
type TestHarness struct {
	ctrl      *batch.Controller
	km        keymanager.KeyManager
	signer    types.Signer
	key       *ecdsa.PrivateKey
	nonce     uint64
	timestamp uint64
	interval  uint64
	txsPerBlk int
}

func NewTestHarness(opts ...Option) (*TestHarness, error) {
	var cfg config
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	ctrlOpts := []batch.Option{
		batch.DefaultOptions(),
		batch.Params(cfg.params),
		batch.ContentStore(cfg.contentStore),
		batch.KVStore(cfg.kvstore),
	}
	if cfg.keyManager != nil {
		ctrlOpts = append(ctrlOpts, batch.KeyManager(cfg.keyManager))
	}
	ctrl, err := batch.NewController(ctrlOpts...)
	if err != nil {
		return nil, err
	}

	h := &TestHarness{
		ctrl:      ctrl,
		km:        cfg.keyManager,
		signer:    types.LatestSigner(cfg.params.ChainConfig),
		key:       cfg.spendKey,
		timestamp: cfg.params.Genesis.Timestamp,
		interval:  cfg.blockInterval,
		txsPerBlk: cfg.nTxsPerBlock,
	}

	// Pick up the nonce if the stores already hold a chain.
	ctx := context.Background()
	if err := ctrl.Start(ctx, h.timestamp); err != nil {
		return nil, err
	}
	ctrl.Abort()
	h.nonce, err = ctrl.Cache().AccountNonce(h.Address(), itypes.LatestBlock())
	if err != nil {
		return nil, err
	}
	if header, err := ctrl.Cache().BestBlockHeader(); err == nil {
		h.timestamp = header.Time
	}

	if cfg.nBlocks > 0 {
		if err := h.GenerateBlocks(cfg.nBlocks); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Controller returns the batch controller the harness drives.
func (h *TestHarness) Controller() *batch.Controller {
	return h.ctrl
}

// Cache returns the chain cache.
func (h *TestHarness) Cache() *blockchain.Cache {
	return h.ctrl.Cache()
}

// Address returns the address of the spend key.
func (h *TestHarness) Address() common.Address {
	return ethcrypto.PubkeyToAddress(h.key.PublicKey)
}

// SignTx signs a legacy transaction from the spend key with the next
// nonce and returns its binary encoding.
func (h *TestHarness) SignTx(to *common.Address, value *big.Int, gas uint64, data []byte) ([]byte, error) {
	tx, err := types.SignNewTx(h.key, h.signer, &types.LegacyTx{
		Nonce:    h.nonce,
		To:       to,
		Value:    value,
		Gas:      gas,
		GasPrice: big.NewInt(1),
		Data:     data,
	})
	if err != nil {
		return nil, err
	}
	h.nonce++
	return tx.MarshalBinary()
}

// ProcessBlock runs the raw transactions in one batch and commits it.
// Transactions rejected by a rule fail the whole batch.
func (h *TestHarness) ProcessBlock(rawTxs ...[]byte) (*blockchain.SealedBlock, []*evm.Result, error) {
	ctx := context.Background()
	h.timestamp += h.interval
	if err := h.ctrl.Start(ctx, h.timestamp); err != nil {
		return nil, nil, err
	}
	results := make([]*evm.Result, 0, len(rawTxs))
	for _, raw := range rawTxs {
		res, err := h.ctrl.Execute(ctx, raw)
		if err != nil {
			h.ctrl.Abort()
			return nil, nil, err
		}
		results = append(results, res)
	}
	sealed, err := h.ctrl.End(ctx)
	if err != nil {
		return nil, nil, err
	}
	return sealed, results, nil
}

// Deploy deploys initcode in its own block and returns the contract
// address.
func (h *TestHarness) Deploy(initcode []byte) (common.Address, *evm.Result, error) {
	addr := ethcrypto.CreateAddress(h.Address(), h.nonce)
	raw, err := h.SignTx(nil, new(big.Int), deployGas, initcode)
	if err != nil {
		return common.Address{}, nil, err
	}
	_, results, err := h.ProcessBlock(raw)
	if err != nil {
		return common.Address{}, nil, err
	}
	return addr, results[0], nil
}

// DeployConfidential deploys initcode as a confidential contract. The
// initcode is encrypted from client to the key the key manager issues
// for the future contract address.
func (h *TestHarness) DeployConfidential(client *crypto.Curve25519PrivateKey, initcode []byte) (common.Address, *evm.Result, error) {
	addr := ethcrypto.CreateAddress(h.Address(), h.nonce)
	data, err := h.Seal(client, addr, crypto.Nonce{}, initcode)
	if err != nil {
		return common.Address{}, nil, err
	}
	raw, err := h.SignTx(nil, new(big.Int), deployGas, data)
	if err != nil {
		return common.Address{}, nil, err
	}
	_, results, err := h.ProcessBlock(raw)
	if err != nil {
		return common.Address{}, nil, err
	}
	return addr, results[0], nil
}

// Seal encrypts plaintext from client to the contract key of addr and
// returns confidential transaction data.
func (h *TestHarness) Seal(client *crypto.Curve25519PrivateKey, addr common.Address, nonce crypto.Nonce, plaintext []byte) ([]byte, error) {
	if h.km == nil {
		return nil, errors.New("harness has no key manager")
	}
	ck, err := h.km.GetOrCreateContractKey(context.Background(), itypes.NewContractID(addr))
	if err != nil {
		return nil, err
	}
	payload, err := crypto.SealPayload(client, crypto.NewCurve25519PublicKey(ck.PublicKey), nonce, plaintext, nil)
	if err != nil {
		return nil, err
	}
	return append([]byte(evm.ConfidentialPrefix), payload...), nil
}
