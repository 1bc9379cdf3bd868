// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	lenFieldSize = 8

	// PayloadOverhead is the size of the fixed fields of an encoded
	// payload: public key, two length fields and the nonce.
	PayloadOverhead = Curve25519PublicKeySize + 2*lenFieldSize + NonceSize
)

// ErrMalformedPayload is returned when a wire payload cannot be decoded.
var ErrMalformedPayload = errors.New("malformed encrypted payload")

// Payload is an encrypted message exchanged with a confidential
// contract. It encodes as
//
//	PUBLIC_KEY(32) || CIPHER_LEN(8) || AAD_LEN(8) || CIPHER || AAD || NONCE(15)
//
// with little-endian lengths. PublicKey is the sender's key.
type Payload struct {
	PublicKey  [Curve25519PublicKeySize]byte
	Ciphertext []byte
	AAD        []byte
	Nonce      Nonce
}

// Encode serializes the payload to its wire format.
func (p *Payload) Encode() []byte {
	out := make([]byte, 0, PayloadOverhead+len(p.Ciphertext)+len(p.AAD))
	out = append(out, p.PublicKey[:]...)
	out = binary.LittleEndian.AppendUint64(out, uint64(len(p.Ciphertext)))
	out = binary.LittleEndian.AppendUint64(out, uint64(len(p.AAD)))
	out = append(out, p.Ciphertext...)
	out = append(out, p.AAD...)
	out = append(out, p.Nonce[:]...)
	return out
}

// DecodePayload parses a wire payload. The buffer must be exactly the
// size its length fields declare.
func DecodePayload(data []byte) (*Payload, error) {
	if len(data) < PayloadOverhead {
		return nil, fmt.Errorf("%w: %d bytes is below the %d byte minimum", ErrMalformedPayload, len(data), PayloadOverhead)
	}

	p := new(Payload)
	cursor := copy(p.PublicKey[:], data)
	cipherLen := binary.LittleEndian.Uint64(data[cursor:])
	cursor += lenFieldSize
	aadLen := binary.LittleEndian.Uint64(data[cursor:])
	cursor += lenFieldSize

	remaining := uint64(len(data) - PayloadOverhead)
	if cipherLen > remaining || aadLen > remaining-cipherLen || cipherLen+aadLen != remaining {
		return nil, fmt.Errorf("%w: declared lengths %d+%d do not match %d remaining bytes", ErrMalformedPayload, cipherLen, aadLen, remaining)
	}

	p.Ciphertext = make([]byte, cipherLen)
	cursor += copy(p.Ciphertext, data[cursor:cursor+int(cipherLen)])
	p.AAD = make([]byte, aadLen)
	cursor += copy(p.AAD, data[cursor:cursor+int(aadLen)])
	copy(p.Nonce[:], data[cursor:])
	return p, nil
}

// SealPayload encrypts plaintext from priv to peer and returns the
// encoded payload.
func SealPayload(priv *Curve25519PrivateKey, peer *Curve25519PublicKey, nonce Nonce, plaintext, aad []byte) ([]byte, error) {
	ciphertext, err := BoxSeal(nonce, plaintext, aad, peer, priv)
	if err != nil {
		return nil, err
	}
	p := &Payload{
		PublicKey:  priv.Public().Array(),
		Ciphertext: ciphertext,
		AAD:        aad,
		Nonce:      nonce,
	}
	return p.Encode(), nil
}

// OpenPayload decodes and decrypts a payload addressed to priv.
func OpenPayload(priv *Curve25519PrivateKey, data []byte) ([]byte, *Payload, error) {
	p, err := DecodePayload(data)
	if err != nil {
		return nil, nil, err
	}
	plaintext, err := BoxOpen(p.Nonce, p.Ciphertext, p.AAD, NewCurve25519PublicKey(p.PublicKey), priv)
	if err != nil {
		return nil, nil, err
	}
	return plaintext, p, nil
}
