// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package keymanager

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-test/deep"
	"github.com/ipfs/go-datastore"
	"github.com/project-illium/ilxevm/crypto"
	"github.com/project-illium/ilxevm/repo"
	"github.com/project-illium/ilxevm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *LocalKeyManager {
	signer, _, err := repo.GenerateSigningKeypair()
	require.NoError(t, err)
	var master [32]byte
	master[0] = 0x01
	km := NewLocalKeyManager(datastore.NewMapDatastore(), master, signer)
	km.now = func() time.Time { return time.Unix(1700000000, 0) }
	return km
}

func TestLocalKeyManager(t *testing.T) {
	ctx := context.Background()
	km := newLocal(t)
	id := types.NewContractID(common.HexToAddress("0x01"))
	other := types.NewContractID(common.HexToAddress("0x02"))

	_, err := km.GetPublicKey(ctx, id)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	ck, err := km.GetOrCreateContractKey(ctx, id)
	require.NoError(t, err)

	ck2, err := km.GetOrCreateContractKey(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, deep.Equal(ck, ck2))

	ck3, err := km.GetOrCreateContractKey(ctx, other)
	require.NoError(t, err)
	assert.NotEqual(t, ck.PublicKey, ck3.PublicKey)
	assert.NotEqual(t, ck.StateKey, ck3.StateKey)

	priv, err := ck.PrivateKey()
	require.NoError(t, err)
	assert.Equal(t, ck.PublicKey, priv.Public().Array())

	payload, err := km.GetPublicKey(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ck.PublicKey, payload.PublicKey)
	assert.Equal(t, uint64(1700000000), payload.Timestamp)

	valid, err := payload.Verify(km.SigningKey())
	require.NoError(t, err)
	assert.True(t, valid)

	payload.Timestamp++
	valid, err = payload.Verify(km.SigningKey())
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestMockKeyManager(t *testing.T) {
	ctx := context.Background()
	var seed [32]byte
	km := NewMockKeyManager(seed)
	km2 := NewMockKeyManager(seed)
	id := types.NewContractID(common.HexToAddress("0x01"))

	ck, err := km.GetOrCreateContractKey(ctx, id)
	require.NoError(t, err)
	ck2, err := km2.GetOrCreateContractKey(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ck, ck2)
	assert.Equal(t, 1, km.Calls())

	payload, err := km.GetPublicKey(ctx, id)
	require.NoError(t, err)
	valid, err := payload.Verify(km.SigningKey())
	require.NoError(t, err)
	assert.True(t, valid)

	boom := errors.New("unavailable")
	km.SetError(boom)
	_, err = km.GetOrCreateContractKey(ctx, id)
	assert.ErrorIs(t, err, boom)
}

func TestRemoteKeyManager(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	handler, err := NewHandler(local)
	require.NoError(t, err)
	server := httptest.NewServer(handler)
	defer server.Close()

	remote := NewRemoteKeyManager(server.URL, WithMaxRetries(1))
	id := types.NewContractID(common.HexToAddress("0x01"))

	_, err = remote.GetPublicKey(ctx, id)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	ck, err := remote.GetOrCreateContractKey(ctx, id)
	require.NoError(t, err)

	expected, err := local.GetOrCreateContractKey(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, expected, ck)

	payload, err := remote.GetPublicKey(ctx, id)
	require.NoError(t, err)
	valid, err := payload.Verify(local.SigningKey())
	require.NoError(t, err)
	assert.True(t, valid)

	// The returned keys work for a session with a client.
	priv, err := ck.PrivateKey()
	require.NoError(t, err)
	client, clientPub, err := crypto.GenerateCurve25519Key(crypto.NewSeededReader([32]byte{0x02}))
	require.NoError(t, err)
	var nonce crypto.Nonce
	sealed, err := crypto.BoxSeal(nonce, []byte("hi"), nil, crypto.NewCurve25519PublicKey(ck.PublicKey), client)
	require.NoError(t, err)
	opened, err := crypto.BoxOpen(nonce, sealed, nil, clientPub, priv)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), opened)
}

func TestRemoteKeyManagerRetries(t *testing.T) {
	var attempts int32
	local := newLocal(t)
	handler, err := NewHandler(local)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		handler.ServeHTTP(w, r)
	}))
	defer server.Close()

	remote := NewRemoteKeyManager(server.URL, WithMaxRetries(2))
	_, err = remote.GetOrCreateContractKey(context.Background(), types.NewContractID(common.HexToAddress("0x01")))
	assert.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}
