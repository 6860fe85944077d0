package keystore

import (
	"fmt"

	"github.com/Klingon-tech/klingbridge/pkg/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// Committee keys live at m/44'/1024'/0'/0/<member>.
const (
	purposeBIP44 = bip32.FirstHardenedChild + 44
	coinTypePoly = bip32.FirstHardenedChild + 1024
	account      = bip32.FirstHardenedChild
	chainMembers = 0
)

// SeedSize is the BIP-39 seed length in bytes.
const SeedSize = 64

// MnemonicEntropyBits gives 24-word mnemonics.
const MnemonicEntropyBits = 256

// GenerateMnemonic creates a new 24-word BIP-39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// SeedFromMnemonic derives the BIP-39 seed of mnemonic and passphrase.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return seed, nil
}

// MemberSecret returns the 32-byte BIP-32 private key of committee member
// index.
func MemberSecret(seed []byte, index uint32) ([]byte, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	if index >= bip32.FirstHardenedChild {
		return nil, fmt.Errorf("member index %d out of range", index)
	}
	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	for _, i := range []uint32{purposeBIP44, coinTypePoly, account, chainMembers, index} {
		if key, err = key.NewChildKey(i); err != nil {
			return nil, fmt.Errorf("derive child %d: %w", i, err)
		}
	}
	// bip32 pads private keys to 33 bytes with a leading zero.
	raw := key.Key
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// MemberSigner derives the signer of committee member index for scheme.
// Ed25519 members use the derived secret as their seed.
func MemberSigner(seed []byte, index uint32, scheme crypto.Scheme) (crypto.Signer, error) {
	secret, err := MemberSecret(seed, index)
	if err != nil {
		return nil, err
	}
	defer zero(secret)
	return crypto.NewSigner(scheme, secret)
}

// CommitteeSigners derives the signers of members 0..len(schemes)-1, member
// i using schemes[i].
func CommitteeSigners(seed []byte, schemes []crypto.Scheme) ([]crypto.Signer, error) {
	out := make([]crypto.Signer, len(schemes))
	for i, scheme := range schemes {
		s, err := MemberSigner(seed, uint32(i), scheme)
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}
