// Package keystore derives committee signing keys from a BIP-39 mnemonic
// and keeps the seed encrypted on disk.
package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	klog "github.com/Klingon-tech/klingbridge/internal/log"
	"github.com/Klingon-tech/klingbridge/pkg/crypto"
)

const (
	fileVersion = 1
	fileExt     = ".committee"
)

// ErrNotFound is returned for a committee name with no key file.
var ErrNotFound = errors.New("committee not found")

// Member is the public record of one committee member.
type Member struct {
	Index  uint32 `json:"index"`
	Scheme string `json:"scheme"`
	PubKey string `json:"pubkey"` // hex of the scheme-tagged key
}

// committeeFile is the on-disk JSON layout of a committee.
type committeeFile struct {
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	EncryptedSeed []byte    `json:"encrypted_seed"`
	Members       []Member  `json:"members"`
	Address       string    `json:"address"`
}

// Keystore stores committee key files in a directory.
type Keystore struct {
	dir string
}

// New opens the keystore at dir, creating the directory when missing.
func New(dir string) (*Keystore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{dir: dir}, nil
}

func (ks *Keystore) path(name string) string {
	return filepath.Join(ks.dir, name+fileExt)
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid committee name %q", name)
	}
	return nil
}

// Create encrypts seed under password and records the public keys of the
// members derived for schemes. It refuses to overwrite a committee.
func (ks *Keystore) Create(name string, seed, password []byte, schemes []crypto.Scheme, params EncryptionParams) ([]Member, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if len(schemes) == 0 {
		return nil, fmt.Errorf("committee needs at least one member")
	}
	path := ks.path(name)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("committee %q already exists", name)
	}

	signers, err := CommitteeSigners(seed, schemes)
	if err != nil {
		return nil, err
	}
	members := make([]Member, len(signers))
	keys := make([]crypto.PublicKey, len(signers))
	for i, s := range signers {
		keys[i] = s.PublicKey()
		members[i] = Member{Index: uint32(i), Scheme: schemes[i].String(), PubKey: keys[i].Hex()}
	}

	encrypted, err := Encrypt(seed, password, params)
	if err != nil {
		return nil, fmt.Errorf("encrypt seed: %w", err)
	}
	cf := committeeFile{
		Version:       fileVersion,
		CreatedAt:     time.Now().UTC(),
		EncryptedSeed: encrypted,
		Members:       members,
		Address:       crypto.CommitteeAddress(keys).String(),
	}
	if err := writeFile(path, &cf); err != nil {
		return nil, err
	}

	klog.Keystore.Info().
		Str("committee", name).
		Int("members", len(members)).
		Str("address", cf.Address).
		Msg("Committee key file created")
	return members, nil
}

// Members returns the public member records of a committee. No password
// is needed.
func (ks *Keystore) Members(name string) ([]Member, error) {
	cf, err := ks.read(name)
	if err != nil {
		return nil, err
	}
	return cf.Members, nil
}

// Address returns the committee address recorded for name.
func (ks *Keystore) Address(name string) (string, error) {
	cf, err := ks.read(name)
	if err != nil {
		return "", err
	}
	return cf.Address, nil
}

// Seed decrypts the committee seed.
func (ks *Keystore) Seed(name string, password []byte) ([]byte, error) {
	cf, err := ks.read(name)
	if err != nil {
		return nil, err
	}
	seed, err := Decrypt(cf.EncryptedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("committee %q: %w", name, err)
	}
	return seed, nil
}

// Signers decrypts the seed and rebuilds every member's signer. It fails
// if a derived key no longer matches the recorded public key.
func (ks *Keystore) Signers(name string, password []byte) ([]crypto.Signer, error) {
	cf, err := ks.read(name)
	if err != nil {
		return nil, err
	}
	seed, err := Decrypt(cf.EncryptedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("committee %q: %w", name, err)
	}
	defer zero(seed)

	out := make([]crypto.Signer, len(cf.Members))
	for i, m := range cf.Members {
		scheme, err := crypto.ParseScheme(m.Scheme)
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", m.Index, err)
		}
		s, err := MemberSigner(seed, m.Index, scheme)
		if err != nil {
			return nil, err
		}
		if got := s.PublicKey().Hex(); got != m.PubKey {
			return nil, fmt.Errorf("member %d: derived key %s does not match %s", m.Index, got, m.PubKey)
		}
		out[i] = s
	}
	return out, nil
}

// List returns the committee names in the keystore, sorted.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.dir)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), fileExt))
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a committee key file.
func (ks *Keystore) Delete(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	err := os.Remove(ks.path(name))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return err
}

func (ks *Keystore) read(name string) (*committeeFile, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(ks.path(name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read committee file: %w", err)
	}
	var cf committeeFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse committee file: %w", err)
	}
	if cf.Version != fileVersion {
		return nil, fmt.Errorf("unsupported committee file version: %d", cf.Version)
	}
	return &cf, nil
}

func writeFile(path string, cf *committeeFile) error {
	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal committee file: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write committee file: %w", err)
	}
	return nil
}
