// Copyright (c) 2024 Project Illium
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package crypto

import (
	"bytes"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/libp2p/go-libp2p/core/crypto"
	pb "github.com/libp2p/go-libp2p/core/crypto/pb"
	"github.com/nixberg/chacha-rng-go"
	"golang.org/x/crypto/curve25519"
)

const (
	Libp2pKeyTypeCurve25519  = pb.KeyType(4)
	Curve25519PrivateKeySize = 32
	Curve25519PublicKeySize  = 32
)

func init() {
	crypto.PubKeyUnmarshallers[Libp2pKeyTypeCurve25519] = UnmarshalCurve25519PublicKey
	crypto.PrivKeyUnmarshallers[Libp2pKeyTypeCurve25519] = UnmarshalCurve25519PrivateKey
}

var ErrSigNoop = errors.New("curve25519 keys cannot do signing or verification")

// Curve25519PrivateKey is a Curve25519 private key. The public key is
// kept alongside the scalar so it does not need to be recomputed.
type Curve25519PrivateKey struct {
	k *[64]byte
}

// Curve25519PublicKey is a Curve25519 public key.
type Curve25519PublicKey struct {
	k *[32]byte
}

// GenerateCurve25519Key generates a new Curve25519 private and public key pair.
func GenerateCurve25519Key(src io.Reader) (*Curve25519PrivateKey, *Curve25519PublicKey, error) {
	var scalar [32]byte
	if _, err := io.ReadFull(src, scalar[:]); err != nil {
		return nil, nil, err
	}
	return newCurve25519Key(scalar)
}

func newCurve25519Key(scalar [32]byte) (*Curve25519PrivateKey, *Curve25519PublicKey, error) {
	pub, err := curve25519.X25519(scalar[:], curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}

	var (
		combined [64]byte
		pubkey   [32]byte
	)
	copy(combined[:32], scalar[:])
	copy(combined[32:], pub)
	copy(pubkey[:], pub)

	return &Curve25519PrivateKey{k: &combined}, &Curve25519PublicKey{k: &pubkey}, nil
}

type chachaRrng struct {
	rng *chacha.ChaCha
}

func (c *chachaRrng) Read(p []byte) (n int, err error) {
	remaining := len(p)
	cursor := 0

	for remaining > 0 {
		val := c.rng.Uint64()
		if remaining < 8 {
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], val)
			copy(p[cursor:], buf[:remaining])
			cursor += remaining
			break
		} else {
			binary.LittleEndian.PutUint64(p[cursor:], val)
			cursor += 8
			remaining -= 8
		}
	}

	if cursor == 0 {
		return 0, errors.New("unable to fill byte slice")
	}

	return cursor, nil
}

// NewSeededReader returns a deterministic stream of bytes from a ChaCha20
// generator seeded with seed.
func NewSeededReader(seed [32]byte) io.Reader {
	var s [8]uint32
	for i := 0; i < 8; i++ {
		s[i] = binary.LittleEndian.Uint32(seed[i*4 : (i+1)*4])
	}
	return &chachaRrng{chacha.Seeded20(s, 0)}
}

// NewCurve25519KeyFromSeed deterministically derives a key pair from seed.
func NewCurve25519KeyFromSeed(seed [32]byte) (*Curve25519PrivateKey, *Curve25519PublicKey, error) {
	return GenerateCurve25519Key(NewSeededReader(seed))
}

// Type of the private key (Curve25519).
func (k *Curve25519PrivateKey) Type() pb.KeyType {
	return Libp2pKeyTypeCurve25519
}

// Raw private key bytes.
func (k *Curve25519PrivateKey) Raw() ([]byte, error) {
	buf := make([]byte, len(k.k))
	copy(buf, k.k[:])

	return buf, nil
}

func (k *Curve25519PrivateKey) pubKeyBytes() []byte {
	return k.k[Curve25519PrivateKeySize:]
}

func (k *Curve25519PrivateKey) privKeyBytes() []byte {
	return k.k[:Curve25519PrivateKeySize]
}

// Scalar returns the 32 byte secret scalar.
func (k *Curve25519PrivateKey) Scalar() [32]byte {
	var s [32]byte
	copy(s[:], k.privKeyBytes())
	return s
}

// Equals compares two Curve25519 private keys.
func (k *Curve25519PrivateKey) Equals(o crypto.Key) bool {
	cdk, ok := o.(*Curve25519PrivateKey)
	if !ok {
		return basicEquals(k, o)
	}

	return subtle.ConstantTimeCompare(k.k[:], cdk.k[:]) == 1
}

// GetPublic returns an Curve25519 public key from a private key.
func (k *Curve25519PrivateKey) GetPublic() crypto.PubKey {
	return k.Public()
}

// Public returns the concrete public key.
func (k *Curve25519PrivateKey) Public() *Curve25519PublicKey {
	var pubkey [32]byte
	copy(pubkey[:], k.pubKeyBytes())

	return &Curve25519PublicKey{k: &pubkey}
}

// Sign returns a signature from an input message.
// This is a noop.
func (k *Curve25519PrivateKey) Sign(msg []byte) ([]byte, error) {
	return nil, ErrSigNoop
}

// SharedSecret computes the X25519 shared secret with the peer.
func (k *Curve25519PrivateKey) SharedSecret(peer *Curve25519PublicKey) ([]byte, error) {
	return curve25519.X25519(k.privKeyBytes(), peer.k[:])
}

// Type of the public key (Curve25519).
func (k *Curve25519PublicKey) Type() pb.KeyType {
	return Libp2pKeyTypeCurve25519
}

// Raw public key bytes.
func (k *Curve25519PublicKey) Raw() ([]byte, error) {
	return k.k[:], nil
}

// Array returns the public key as a fixed size array.
func (k *Curve25519PublicKey) Array() [32]byte {
	return *k.k
}

// Equals compares two Curve25519 public keys.
func (k *Curve25519PublicKey) Equals(o crypto.Key) bool {
	edk, ok := o.(*Curve25519PublicKey)
	if !ok {
		return basicEquals(k, o)
	}

	return bytes.Equal(k.k[:], edk.k[:])
}

// Verify checks a signature agains the input data.
// This is a noop.
func (k *Curve25519PublicKey) Verify(data []byte, sig []byte) (bool, error) {
	return false, ErrSigNoop
}

// NewCurve25519PublicKey wraps a raw 32 byte public key.
func NewCurve25519PublicKey(pub [32]byte) *Curve25519PublicKey {
	return &Curve25519PublicKey{k: &pub}
}

// UnmarshalCurve25519PublicKey returns a public key from input bytes.
func UnmarshalCurve25519PublicKey(data []byte) (crypto.PubKey, error) {
	if len(data) != 32 {
		return nil, errors.New("expect Curve25519 public key data size to be 32")
	}

	var pubkey [32]byte
	copy(pubkey[:], data)

	return &Curve25519PublicKey{
		k: &pubkey,
	}, nil
}

// UnmarshalCurve25519PrivateKey returns a private key from input bytes.
func UnmarshalCurve25519PrivateKey(data []byte) (crypto.PrivKey, error) {
	switch len(data) {
	case Curve25519PrivateKeySize + Curve25519PublicKeySize:
		var scalar [32]byte
		copy(scalar[:], data[:Curve25519PrivateKeySize])
		priv, pub, err := newCurve25519Key(scalar)
		if err != nil {
			return nil, err
		}
		if subtle.ConstantTimeCompare(pub.k[:], data[Curve25519PrivateKeySize:]) == 0 {
			return nil, errors.New("expected redundant Curve25519 public key to be redundant")
		}
		return priv, nil
	case Curve25519PrivateKeySize:
		var scalar [32]byte
		copy(scalar[:], data)
		priv, _, err := newCurve25519Key(scalar)
		if err != nil {
			return nil, err
		}
		return priv, nil
	default:
		return nil, fmt.Errorf(
			"expected Curve25519 data size to be %d or %d, got %d",
			Curve25519PrivateKeySize,
			Curve25519PrivateKeySize+Curve25519PublicKeySize,
			len(data),
		)
	}
}

func basicEquals(k1, k2 crypto.Key) bool {
	if k1.Type() != k2.Type() {
		return false
	}

	a, err := k1.Raw()
	if err != nil {
		return false
	}
	b, err := k2.Raw()
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
