// Copyright (c) 2022 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBox(t *testing.T) {
	contract, contractPub, err := GenerateCurve25519Key(rand.Reader)
	assert.NoError(t, err)
	client, clientPub, err := GenerateCurve25519Key(rand.Reader)
	assert.NoError(t, err)

	var nonce Nonce
	message := []byte("message")
	aad := []byte("aad")

	sealed, err := BoxSeal(nonce, message, aad, contractPub, client)
	assert.NoError(t, err)
	assert.Len(t, sealed, len(message)+TagSize)

	opened, err := BoxOpen(nonce, sealed, aad, clientPub, contract)
	assert.NoError(t, err)
	assert.Equal(t, message, opened)

	_, err = BoxOpen(nonce, sealed, []byte("other"), clientPub, contract)
	assert.ErrorIs(t, err, ErrBoxDecryption)

	sealed[0] ^= 0x01
	_, err = BoxOpen(nonce, sealed, aad, clientPub, contract)
	assert.ErrorIs(t, err, ErrBoxDecryption)
}

func TestNonceIncrement(t *testing.T) {
	var n Nonce
	assert.NoError(t, n.Increment())
	assert.Equal(t, byte(1), n[NonceSize-1])

	n[NonceSize-1] = 0xff
	assert.NoError(t, n.Increment())
	assert.Equal(t, byte(0), n[NonceSize-1])
	assert.Equal(t, byte(1), n[NonceSize-2])

	var max Nonce
	for i := range max {
		max[i] = 0xff
	}
	assert.ErrorIs(t, max.Increment(), ErrNonceOverflow)
	assert.True(t, bytes.Equal(max[:], bytes.Repeat([]byte{0xff}, NonceSize)))
}
