package keystore

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/klingbridge/pkg/crypto"
)

var testSchemes = []crypto.Scheme{
	crypto.SchemeEcdsaSecp256k1,
	crypto.SchemeEcdsaSecp256k1,
	crypto.SchemeEd25519,
	crypto.SchemeSchnorrSecp256k1,
}

func newTestKeystore(t *testing.T) *Keystore {
	t.Helper()
	ks, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ks
}

func TestKeystore_CreateAndSigners(t *testing.T) {
	ks := newTestKeystore(t)
	seed := testSeed(t)

	members, err := ks.Create("devnet", seed, []byte("pw"), testSchemes, LightParams())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(members) != len(testSchemes) {
		t.Fatalf("got %d members, want %d", len(members), len(testSchemes))
	}

	stored, err := ks.Members("devnet")
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	signers, err := ks.Signers("devnet", []byte("pw"))
	if err != nil {
		t.Fatalf("Signers: %v", err)
	}
	keys := make([]crypto.PublicKey, len(signers))
	for i, s := range signers {
		keys[i] = s.PublicKey()
		if stored[i].PubKey != keys[i].Hex() {
			t.Errorf("member %d pubkey mismatch", i)
		}
		if stored[i].Scheme != testSchemes[i].String() {
			t.Errorf("member %d scheme = %s", i, stored[i].Scheme)
		}
	}

	addr, err := ks.Address("devnet")
	if err != nil {
		t.Fatalf("Address: %v", err)
	}
	if want := crypto.CommitteeAddress(keys).String(); addr != want {
		t.Errorf("Address = %s, want %s", addr, want)
	}

	got, err := ks.Seed("devnet", []byte("pw"))
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if string(got) != string(seed) {
		t.Error("Seed does not round trip")
	}
}

func TestKeystore_WrongPassword(t *testing.T) {
	ks := newTestKeystore(t)
	if _, err := ks.Create("c", testSeed(t), []byte("pw"), testSchemes, LightParams()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := ks.Signers("c", []byte("bad")); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Signers err = %v, want ErrWrongPassword", err)
	}
	// Public data stays readable.
	if _, err := ks.Members("c"); err != nil {
		t.Errorf("Members: %v", err)
	}
}

func TestKeystore_CreateRejects(t *testing.T) {
	ks := newTestKeystore(t)
	seed := testSeed(t)
	if _, err := ks.Create("c", seed, []byte("pw"), testSchemes, LightParams()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	tests := []struct {
		name    string
		file    string
		seed    []byte
		schemes []crypto.Scheme
	}{
		{"duplicate", "c", seed, testSchemes},
		{"no members", "d", seed, nil},
		{"bad seed", "e", seed[:10], testSchemes},
		{"path in name", "../x", seed, testSchemes},
		{"empty name", "", seed, testSchemes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ks.Create(tt.file, tt.seed, []byte("pw"), tt.schemes, LightParams()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestKeystore_ListDelete(t *testing.T) {
	ks := newTestKeystore(t)
	seed := testSeed(t)
	for _, name := range []string{"beta", "alpha"} {
		if _, err := ks.Create(name, seed, []byte("pw"), testSchemes[:1], LightParams()); err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
	}

	names, err := ks.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List = %v", names)
	}

	if err := ks.Delete("alpha"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := ks.Delete("alpha"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete err = %v, want ErrNotFound", err)
	}
	if _, err := ks.Members("alpha"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Members err = %v, want ErrNotFound", err)
	}
}
