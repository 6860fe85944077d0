package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

// Signer produces scheme-tagged signatures that Verify accepts.
type Signer interface {
	Sign(message []byte) (Signature, error)
	PublicKey() PublicKey
}

// Secp256k1Signer signs with a secp256k1 key using ECDSA or Schnorr.
type Secp256k1Signer struct {
	scheme Scheme
	key    *secp256k1.PrivateKey
}

// NewSecp256k1Signer wraps a 32-byte secret for the given secp256k1 scheme.
func NewSecp256k1Signer(scheme Scheme, secret []byte) (*Secp256k1Signer, error) {
	if scheme != SchemeEcdsaSecp256k1 && scheme != SchemeSchnorrSecp256k1 {
		return nil, fmt.Errorf("scheme %s is not a secp256k1 scheme", scheme)
	}
	if len(secret) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(secret))
	}
	return &Secp256k1Signer{scheme: scheme, key: secp256k1.PrivKeyFromBytes(secret)}, nil
}

// Sign signs the SHA-256 digest of message.
func (s *Secp256k1Signer) Sign(message []byte) (Signature, error) {
	digest := Sha256(message)
	switch s.scheme {
	case SchemeEcdsaSecp256k1:
		return Signature{Scheme: s.scheme, Sig: ecdsa.Sign(s.key, digest[:]).Serialize()}, nil
	default:
		sig, err := schnorr.Sign(s.key, digest[:])
		if err != nil {
			return Signature{}, fmt.Errorf("schnorr sign: %w", err)
		}
		return Signature{Scheme: s.scheme, Sig: sig.Serialize()}, nil
	}
}

// PublicKey returns the compressed 33-byte key tagged with the scheme.
func (s *Secp256k1Signer) PublicKey() PublicKey {
	return PublicKey{Scheme: s.scheme, Key: s.key.PubKey().SerializeCompressed()}
}

// Serialize returns the 32-byte private key scalar.
func (s *Secp256k1Signer) Serialize() []byte {
	return s.key.Serialize()
}

// Zero securely zeroes the private key memory.
func (s *Secp256k1Signer) Zero() {
	s.key.Zero()
}

// Ed25519Signer signs with an Ed25519 key.
type Ed25519Signer struct {
	key ed25519.PrivateKey
}

// NewEd25519Signer derives a signer from a 32-byte seed.
func NewEd25519Signer(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Ed25519Signer{key: ed25519.NewKeyFromSeed(seed)}, nil
}

func (s *Ed25519Signer) Sign(message []byte) (Signature, error) {
	return Signature{Scheme: SchemeEd25519, Sig: ed25519.Sign(s.key, message)}, nil
}

func (s *Ed25519Signer) PublicKey() PublicKey {
	pub := s.key.Public().(ed25519.PublicKey)
	key := make([]byte, len(pub))
	copy(key, pub)
	return PublicKey{Scheme: SchemeEd25519, Key: key}
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner(scheme Scheme) (Signer, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return NewSigner(scheme, secret)
}

// NewSigner builds a signer for scheme from 32 bytes of key material.
func NewSigner(scheme Scheme, secret []byte) (Signer, error) {
	switch scheme {
	case SchemeEcdsaSecp256k1, SchemeSchnorrSecp256k1:
		return NewSecp256k1Signer(scheme, secret)
	case SchemeEd25519:
		return NewEd25519Signer(secret)
	default:
		return nil, fmt.Errorf("unsupported signature scheme %s", scheme)
	}
}
