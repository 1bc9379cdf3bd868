// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package confidential

import (
	"context"
	"errors"
	"fmt"

	"github.com/project-illium/ilxevm/crypto"
	"github.com/project-illium/ilxevm/keymanager"
	"github.com/project-illium/ilxevm/types"
)

var (
	// ErrNotOpen is returned by operations that need an open context.
	ErrNotOpen = errors.New("confidential context is not open")

	// ErrAlreadyOpen is returned when opening an open context.
	ErrAlreadyOpen = errors.New("confidential context is already open")

	// ErrNoContractKey is returned when the key manager cannot supply
	// a contract key.
	ErrNoContractKey = errors.New("unable to resolve contract key")

	// ErrNoPeer is returned by Encrypt when the context was opened
	// without an inbound payload and so has no peer to encrypt to.
	ErrNoPeer = errors.New("confidential context has no peer")
)

// Context is the cryptographic session of a single confidential call.
// It is created Closed, moves to Open on a successful Open and back to
// Closed on Close or on any Open failure. A Context must not be shared
// between calls.
type Context struct {
	km keymanager.KeyManager

	open       bool
	contractID types.ContractID
	key        *keymanager.ContractKey
	secret     *crypto.Curve25519PrivateKey
	storage    *crypto.StorageCipher
	peer       *crypto.Curve25519PublicKey
	nextNonce  *crypto.Nonce
}

// NewContext returns a closed context that resolves keys through km.
func NewContext(km keymanager.KeyManager) *Context {
	return &Context{km: km}
}

// IsOpen reports whether the context is open.
func (c *Context) IsOpen() bool {
	return c.open
}

// ContractID returns the contract the context was opened for.
func (c *Context) ContractID() (types.ContractID, error) {
	if !c.open {
		return types.ContractID{}, ErrNotOpen
	}
	return c.contractID, nil
}

// Peer returns the public key of the client that sent the inbound
// payload, or nil if the context was opened without one.
func (c *Context) Peer() (*crypto.Curve25519PublicKey, error) {
	if !c.open {
		return nil, ErrNotOpen
	}
	return c.peer, nil
}

// PublicKey returns the contract's session public key.
func (c *Context) PublicKey() (*crypto.Curve25519PublicKey, error) {
	if !c.open {
		return nil, ErrNotOpen
	}
	return c.secret.Public(), nil
}

// NextNonce returns the nonce the next Encrypt call will use.
func (c *Context) NextNonce() (crypto.Nonce, error) {
	if !c.open {
		return crypto.Nonce{}, ErrNotOpen
	}
	if c.nextNonce == nil {
		return crypto.Nonce{}, ErrNoPeer
	}
	return *c.nextNonce, nil
}

// Open resolves the contract key and, if inbound is non-empty, decodes
// and decrypts it. The inbound sender becomes the peer and the next
// outbound nonce is the inbound nonce plus one. The plaintext of
// inbound is returned. On any error the context is left closed.
func (c *Context) Open(ctx context.Context, id types.ContractID, inbound []byte) ([]byte, error) {
	if c.open {
		return nil, ErrAlreadyOpen
	}

	ck, err := c.km.GetOrCreateContractKey(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoContractKey, err)
	}
	if ck == nil {
		return nil, ErrNoContractKey
	}
	secret, err := ck.PrivateKey()
	if err != nil {
		return nil, err
	}
	storage, err := crypto.NewStorageCipher(ck.StateKey)
	if err != nil {
		return nil, err
	}

	c.open = true
	c.contractID = id
	c.key = ck
	c.secret = secret
	c.storage = storage

	if len(inbound) == 0 {
		return nil, nil
	}

	plaintext, payload, err := crypto.OpenPayload(c.secret, inbound)
	if err != nil {
		c.Close()
		return nil, err
	}
	nonce := payload.Nonce
	if err := nonce.Increment(); err != nil {
		c.Close()
		return nil, err
	}
	c.peer = crypto.NewCurve25519PublicKey(payload.PublicKey)
	c.nextNonce = &nonce
	return plaintext, nil
}

// Close drops all key material. Closing a closed context is a no-op.
func (c *Context) Close() {
	c.open = false
	c.contractID = types.ContractID{}
	c.key = nil
	c.secret = nil
	c.storage = nil
	c.peer = nil
	c.nextNonce = nil
}

// Encrypt seals plaintext to the peer under the next nonce and returns
// the wire encoded payload. The nonce advances only on success.
func (c *Context) Encrypt(plaintext []byte) ([]byte, error) {
	if !c.open {
		return nil, ErrNotOpen
	}
	if c.peer == nil || c.nextNonce == nil {
		return nil, ErrNoPeer
	}
	out, err := crypto.SealPayload(c.secret, c.peer, *c.nextNonce, plaintext, nil)
	if err != nil {
		return nil, err
	}
	next := *c.nextNonce
	if err := next.Increment(); err != nil {
		return nil, err
	}
	c.nextNonce = &next
	return out, nil
}

// Decrypt decodes and opens a wire payload addressed to the contract.
// It does not change the session nonce or peer.
func (c *Context) Decrypt(ciphertext []byte) ([]byte, error) {
	if !c.open {
		return nil, ErrNotOpen
	}
	plaintext, _, err := crypto.OpenPayload(c.secret, ciphertext)
	return plaintext, err
}

// EncryptStorage encrypts a storage cell under the contract's state key.
func (c *Context) EncryptStorage(plaintext []byte) ([]byte, error) {
	if !c.open {
		return nil, ErrNotOpen
	}
	return c.storage.Seal(plaintext), nil
}

// DecryptStorage reverses EncryptStorage.
func (c *Context) DecryptStorage(ciphertext []byte) ([]byte, error) {
	if !c.open {
		return nil, ErrNotOpen
	}
	return c.storage.Open(ciphertext)
}
