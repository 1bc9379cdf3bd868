// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package crypto

import (
	"bytes"
	"crypto/cipher"
	"fmt"

	"github.com/oasisprotocol/deoxysii"
)

// StateKeySize is the size of a contract's storage key material.
const StateKeySize = 64

// StorageCipher encrypts contract storage cells. The key and nonce are
// both sliced from the contract's state key and are the same for every
// cell, which is only acceptable because Deoxys-II is nonce-misuse
// resistant. Equal plaintexts produce equal ciphertexts.
type StorageCipher struct {
	aead  cipher.AEAD
	nonce Nonce
}

// NewStorageCipher builds the cipher from a state key. The first
// KeySize bytes are the key, the next NonceSize bytes the nonce.
func NewStorageCipher(stateKey [StateKeySize]byte) (*StorageCipher, error) {
	aead, err := deoxysii.New(stateKey[:KeySize])
	if err != nil {
		return nil, err
	}
	sc := &StorageCipher{aead: aead}
	copy(sc.nonce[:], stateKey[KeySize:KeySize+NonceSize])
	return sc, nil
}

// Seal returns sealed(plaintext) || tag || nonce.
func (sc *StorageCipher) Seal(plaintext []byte) []byte {
	out := sc.aead.Seal(nil, sc.nonce[:], plaintext, nil)
	return append(out, sc.nonce[:]...)
}

// Open reverses Seal.
func (sc *StorageCipher) Open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < TagSize+NonceSize {
		return nil, fmt.Errorf("%w: storage ciphertext too short", ErrMalformedPayload)
	}
	split := len(ciphertext) - NonceSize
	if !bytes.Equal(ciphertext[split:], sc.nonce[:]) {
		return nil, fmt.Errorf("%w: storage nonce mismatch", ErrBoxDecryption)
	}
	plaintext, err := sc.aead.Open(nil, sc.nonce[:], ciphertext[:split], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBoxDecryption, err)
	}
	return plaintext, nil
}
