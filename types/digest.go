// Copyright (c) 2022 Project Illium
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/project-illium/ilxevm/params/hash"
)

var ErrDigestStrSize = fmt.Errorf("max digest string length is %v bytes", hash.HashSize*2)

// Digest is a keccak-256 content hash. For content-addressed values
// the digest is the key under which the value is stored.
type Digest [hash.HashSize]byte

// Compare returns 1 if d > target, -1 if d < target and
// 0 if d == target.
func (d Digest) Compare(target Digest) int {
	for i := 0; i < len(d); i++ {
		a := d[i]
		b := target[i]
		if a > b {
			return 1
		}
		if a < b {
			return -1
		}
	}
	return 0
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) Bytes() []byte {
	return d[:]
}

// Hash returns the digest as a go-ethereum hash.
func (d Digest) Hash() common.Hash {
	return common.Hash(d)
}

func (d *Digest) SetBytes(data []byte) {
	copy(d[:], data)
}

func (d Digest) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(d[:]))
}

func (d *Digest) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	nd, err := NewDigestFromString(s)
	if err != nil {
		return err
	}
	*d = nd
	return nil
}

func NewDigest(digest []byte) Digest {
	var d Digest
	d.SetBytes(digest)
	return d
}

func NewDigestFromString(s string) (Digest, error) {
	// Return error if hash string is too long.
	if len(s) > hash.HashSize*2 {
		return Digest{}, ErrDigestStrSize
	}
	ret, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, err
	}
	var d Digest
	d.SetBytes(ret)
	return d, nil
}

// NewDigestFromData hashes data and returns the digest.
func NewDigestFromData(data []byte) Digest {
	return NewDigest(hash.HashFunc(data))
}
