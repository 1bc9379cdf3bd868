// Copyright (c) 2024 Project Illium
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package repo

const (
	// KeyManagerSigningKey is the datastore key for the key manager's ed25519 signing key.
	KeyManagerSigningKey = "/ilxevm/keymanager/signingkey/"
	// KeyManagerMasterSecret is the datastore key for the local key manager's master secret.
	KeyManagerMasterSecret = "/ilxevm/keymanager/mastersecret/"
	// ContractKeyPrefix is the datastore key prefix for issued contract keys.
	ContractKeyPrefix = "/ilxevm/keymanager/contract/"
	// KVStorePrefix is the datastore namespace holding the columnar key/value service.
	KVStorePrefix = "/ilxevm/kv/"
	// KVStoreRootKey is the datastore key for the columnar service root hash.
	KVStoreRootKey = "/ilxevm/kvroot/"
	// ContentStorePrefix is the datastore namespace holding the content store blocks.
	ContentStorePrefix = "/ilxevm/cas"
)
