// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStorageCipher(t *testing.T) {
	var stateKey [StateKeySize]byte
	rand.Read(stateKey[:])

	sc, err := NewStorageCipher(stateKey)
	assert.NoError(t, err)

	cell := make([]byte, 32)
	cell[31] = 0x2a
	sealed := sc.Seal(cell)
	assert.Len(t, sealed, 63)
	assert.Equal(t, stateKey[KeySize:KeySize+NonceSize], sealed[48:])

	// Sealing other cells does not change how this one round trips.
	for i := 0; i < 10; i++ {
		other := make([]byte, 32)
		rand.Read(other)
		sc.Seal(other)
	}
	opened, err := sc.Open(sealed)
	assert.NoError(t, err)
	assert.Equal(t, cell, opened)

	// Deterministic.
	assert.Equal(t, sealed, sc.Seal(cell))

	_, err = sc.Open(sealed[:10])
	assert.ErrorIs(t, err, ErrMalformedPayload)

	tampered := append([]byte{}, sealed...)
	tampered[0] ^= 0xff
	_, err = sc.Open(tampered)
	assert.ErrorIs(t, err, ErrBoxDecryption)

	var otherKey [StateKeySize]byte
	rand.Read(otherKey[:])
	sc2, err := NewStorageCipher(otherKey)
	assert.NoError(t, err)
	_, err = sc2.Open(sealed)
	assert.ErrorIs(t, err, ErrBoxDecryption)
}
