package crypto

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

// Scheme identifies the signature algorithm of a key or signature. It is
// the first byte of their wire encoding.
type Scheme uint8

const (
	SchemeEcdsaSecp256k1   Scheme = 0x01
	SchemeSchnorrSecp256k1 Scheme = 0x02
	SchemeEd25519          Scheme = 0x03
)

// String returns the scheme name.
func (s Scheme) String() string {
	switch s {
	case SchemeEcdsaSecp256k1:
		return "ecdsa-secp256k1"
	case SchemeSchnorrSecp256k1:
		return "schnorr-secp256k1"
	case SchemeEd25519:
		return "ed25519"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(s))
	}
}

// Supported reports whether Verify can check signatures of this scheme.
func (s Scheme) Supported() bool {
	switch s {
	case SchemeEcdsaSecp256k1, SchemeSchnorrSecp256k1, SchemeEd25519:
		return true
	}
	return false
}

// ParseScheme maps a scheme name back to its Scheme.
func ParseScheme(name string) (Scheme, error) {
	for _, s := range []Scheme{SchemeEcdsaSecp256k1, SchemeSchnorrSecp256k1, SchemeEd25519} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown signature scheme %q", name)
}

// ErrEmptyEncoding is returned when a key or signature encoding has no
// scheme byte.
var ErrEmptyEncoding = errors.New("empty key or signature encoding")

// PublicKey is a scheme-tagged public key. Keys with an unknown scheme
// are kept as opaque bytes and never verify.
type PublicKey struct {
	Scheme Scheme
	Key    []byte
}

// ParsePublicKey decodes the scheme byte followed by raw key bytes.
func ParsePublicKey(b []byte) (PublicKey, error) {
	if len(b) == 0 {
		return PublicKey{}, ErrEmptyEncoding
	}
	key := make([]byte, len(b)-1)
	copy(key, b[1:])
	return PublicKey{Scheme: Scheme(b[0]), Key: key}, nil
}

// Bytes returns the wire encoding: scheme byte then raw key bytes.
func (pk PublicKey) Bytes() []byte {
	out := make([]byte, 0, 1+len(pk.Key))
	out = append(out, byte(pk.Scheme))
	return append(out, pk.Key...)
}

// Hex returns the lowercase hex of Bytes. Committee members are
// identified by this string.
func (pk PublicKey) Hex() string {
	return hex.EncodeToString(pk.Bytes())
}

// Equal reports byte-exact equality.
func (pk PublicKey) Equal(other PublicKey) bool {
	return pk.Scheme == other.Scheme && bytes.Equal(pk.Key, other.Key)
}

// Signature is a scheme-tagged signature.
type Signature struct {
	Scheme Scheme
	Sig    []byte
}

// ParseSignature decodes the scheme byte followed by raw signature bytes.
func ParseSignature(b []byte) (Signature, error) {
	if len(b) == 0 {
		return Signature{}, ErrEmptyEncoding
	}
	sig := make([]byte, len(b)-1)
	copy(sig, b[1:])
	return Signature{Scheme: Scheme(b[0]), Sig: sig}, nil
}

// Bytes returns the wire encoding: scheme byte then raw signature bytes.
func (s Signature) Bytes() []byte {
	out := make([]byte, 0, 1+len(s.Sig))
	out = append(out, byte(s.Scheme))
	return append(out, s.Sig...)
}

// Verify checks sig over message with pub. Secp256k1 schemes sign the
// SHA-256 digest of message, Ed25519 signs message itself. Mismatched or
// unsupported schemes and malformed inputs return false.
func Verify(pub PublicKey, message []byte, sig Signature) bool {
	if pub.Scheme != sig.Scheme {
		return false
	}
	switch pub.Scheme {
	case SchemeEcdsaSecp256k1:
		key, err := secp256k1.ParsePubKey(pub.Key)
		if err != nil {
			return false
		}
		s, err := ecdsa.ParseDERSignature(sig.Sig)
		if err != nil {
			return false
		}
		digest := Sha256(message)
		return s.Verify(digest[:], key)
	case SchemeSchnorrSecp256k1:
		key, err := secp256k1.ParsePubKey(pub.Key)
		if err != nil {
			return false
		}
		s, err := schnorr.ParseSignature(sig.Sig)
		if err != nil {
			return false
		}
		digest := Sha256(message)
		return s.Verify(digest[:], key)
	case SchemeEd25519:
		if len(pub.Key) != ed25519.PublicKeySize || len(sig.Sig) != ed25519.SignatureSize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(pub.Key), message, sig.Sig)
	default:
		return false
	}
}
