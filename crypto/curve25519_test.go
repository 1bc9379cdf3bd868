// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/go-test/deep"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/stretchr/testify/assert"
)

func TestCurve25519(t *testing.T) {
	priv, pub, err := GenerateCurve25519Key(rand.Reader)
	assert.NoError(t, err)

	privBytes, err := crypto.MarshalPrivateKey(priv)
	assert.NoError(t, err)

	pubBytes, err := crypto.MarshalPublicKey(pub)
	assert.NoError(t, err)

	priv2, err := crypto.UnmarshalPrivateKey(privBytes)
	assert.NoError(t, err)

	pub2, err := crypto.UnmarshalPublicKey(pubBytes)
	assert.NoError(t, err)

	assert.Empty(t, deep.Equal(crypto.PrivKey(priv), priv2))
	assert.Empty(t, deep.Equal(crypto.PubKey(pub), pub2))
	assert.True(t, priv.GetPublic().Equals(pub))

	var seed [32]byte
	rand.Read(seed[:])

	priv4, _, err := NewCurve25519KeyFromSeed(seed)
	assert.NoError(t, err)

	priv5, _, err := NewCurve25519KeyFromSeed(seed)
	assert.NoError(t, err)

	assert.True(t, priv4.Equals(priv5))
	assert.False(t, priv4.Equals(priv))
}

func TestSharedSecret(t *testing.T) {
	a, aPub, err := GenerateCurve25519Key(rand.Reader)
	assert.NoError(t, err)
	b, bPub, err := GenerateCurve25519Key(rand.Reader)
	assert.NoError(t, err)

	s1, err := a.SharedSecret(bPub)
	assert.NoError(t, err)
	s2, err := b.SharedSecret(aPub)
	assert.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestSeededReaderPartialWord(t *testing.T) {
	var seed [32]byte
	buf := make([]byte, 13)
	n, err := NewSeededReader(seed).Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, 13, n)

	buf2 := make([]byte, 13)
	_, err = NewSeededReader(seed).Read(buf2)
	assert.NoError(t, err)
	assert.Equal(t, buf, buf2)
}
