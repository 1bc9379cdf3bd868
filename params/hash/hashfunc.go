// Copyright (c) 2022 Project Illium
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package hash

import (
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

const HashSize = 32

var (
	// EmptyTrieDigest is the root of a trie with no entries. Every empty
	// account storage trie shares it.
	EmptyTrieDigest = types.EmptyRootHash

	// EmptyNode is the encoded form of the empty trie node. It hashes
	// to EmptyTrieDigest.
	EmptyNode = rlp.EmptyString
)

// HashFunc returns the keccak-256 digest of data.
func HashFunc(data []byte) []byte {
	return crypto.Keccak256(data)
}

// HashWithPrefix hashes the concatenation of a domain prefix and data.
func HashWithPrefix(prefix string, data ...[]byte) []byte {
	parts := make([][]byte, 0, len(data)+1)
	parts = append(parts, []byte(prefix))
	parts = append(parts, data...)
	return crypto.Keccak256(parts...)
}
