// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package crypto

import (
	"crypto/hmac"
	"crypto/sha512"
	"errors"
	"fmt"

	"github.com/oasisprotocol/deoxysii"
)

const (
	// NonceSize is the length of a Deoxys-II nonce.
	NonceSize = deoxysii.NonceSize

	// TagSize is the length of the authentication tag appended to
	// every sealed message.
	TagSize = deoxysii.TagSize

	// KeySize is the length of a Deoxys-II key.
	KeySize = deoxysii.KeySize

	boxKDFDomain = "MRAE_Box_Deoxys-II-256-128"
)

var (
	// ErrBoxDecryption is returned when a box fails to authenticate.
	ErrBoxDecryption = errors.New("failed to decrypt deoxys-ii box")

	// ErrNonceOverflow is returned when incrementing the largest nonce.
	ErrNonceOverflow = errors.New("nonce overflow")
)

// Nonce is a Deoxys-II nonce.
type Nonce [NonceSize]byte

// Increment adds one to the nonce treating it as a big-endian integer.
func (n *Nonce) Increment() error {
	for i := len(n) - 1; i >= 0; i-- {
		n[i]++
		if n[i] != 0 {
			return nil
		}
	}
	// Every byte wrapped, restore and fail.
	for i := range n {
		n[i] = 0xff
	}
	return ErrNonceOverflow
}

// DeriveSymmetricKey derives the box key shared between priv and peer.
// The X25519 shared secret is passed through HMAC-SHA512/256 keyed with
// a fixed domain string.
func DeriveSymmetricKey(priv *Curve25519PrivateKey, peer *Curve25519PublicKey) ([]byte, error) {
	shared, err := priv.SharedSecret(peer)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha512.New512_256, []byte(boxKDFDomain))
	mac.Write(shared)
	return mac.Sum(nil), nil
}

// BoxSeal encrypts and authenticates plaintext and aad for the peer.
func BoxSeal(nonce Nonce, plaintext, aad []byte, peer *Curve25519PublicKey, priv *Curve25519PrivateKey) ([]byte, error) {
	key, err := DeriveSymmetricKey(priv, peer)
	if err != nil {
		return nil, err
	}
	aead, err := deoxysii.New(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce[:], plaintext, aad), nil
}

// BoxOpen authenticates and decrypts a box sealed by the peer.
func BoxOpen(nonce Nonce, ciphertext, aad []byte, peer *Curve25519PublicKey, priv *Curve25519PrivateKey) ([]byte, error) {
	key, err := DeriveSymmetricKey(priv, peer)
	if err != nil {
		return nil, err
	}
	aead, err := deoxysii.New(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBoxDecryption, err)
	}
	return plaintext, nil
}
