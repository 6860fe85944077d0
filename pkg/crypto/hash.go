// Package crypto provides the hashing and signature primitives used to
// verify remote chain headers and to protect stored records.
package crypto

import (
	"bytes"
	"sort"

	"github.com/Klingon-tech/klingbridge/pkg/types"
	sha256 "github.com/minio/sha256-simd"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"
)

// Sha256 computes the SHA-256 digest of data.
func Sha256(data []byte) types.Hash {
	return sha256.Sum256(data)
}

// DoubleSha256 computes Sha256(Sha256(data)), the remote chain's block
// hash function.
func DoubleSha256(data []byte) types.Hash {
	first := Sha256(data)
	return Sha256(first[:])
}

// Checksum computes a BLAKE3-256 digest used to detect corruption of
// locally stored records. It is never part of any wire format.
func Checksum(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// Keccak256 computes the legacy Keccak-256 digest of data.
func Keccak256(data []byte) types.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var out types.Hash
	h.Sum(out[:0])
	return out
}

// CommitteeAddress derives the 20-byte address that identifies a
// committee: the last 20 bytes of Keccak-256 over the sorted key encodings.
func CommitteeAddress(keys []PublicKey) types.Address {
	encoded := make([][]byte, len(keys))
	for i, k := range keys {
		encoded[i] = k.Bytes()
	}
	sort.Slice(encoded, func(i, j int) bool {
		return bytes.Compare(encoded[i], encoded[j]) < 0
	})
	h := Keccak256(bytes.Join(encoded, nil))
	var addr types.Address
	copy(addr[:], h[types.HashSize-types.AddressSize:])
	return addr
}
