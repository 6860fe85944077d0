package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/Klingon-tech/klingbridge/pkg/crypto"
	"github.com/Klingon-tech/klingbridge/pkg/header"
)

func genesisHeader(t *testing.T, chainID uint64, withCommittee bool) *header.Header {
	t.Helper()
	s, err := crypto.GenerateSigner(crypto.SchemeEd25519)
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}
	h := &header.Header{ChainID: chainID, Height: 0, Timestamp: 1_700_000_000}
	info := &header.BlockInfo{Proposer: 1}
	if withCommittee {
		info.NewChainConfig = &header.ChainConfig{
			Version:     1,
			NetworkSize: 1,
			Peers:       []header.PeerConfig{header.PeerFromPublicKey(0, s.PublicKey())},
		}
	}
	if err := h.SetBlockInfo(header.TaggedFormat{}, info); err != nil {
		t.Fatalf("SetBlockInfo: %v", err)
	}
	return h
}

func TestGenesis_SaveLoadValidate(t *testing.T) {
	g := &Genesis{}
	g.AddHeader("alpha", genesisHeader(t, 3, true))
	g.AddHeader("beta", genesisHeader(t, 9, true))

	path := filepath.Join(t.TempDir(), "genesis.json")
	if err := g.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := LoadGenesis(path)
	if err != nil {
		t.Fatalf("LoadGenesis: %v", err)
	}
	if err := loaded.Validate(header.TaggedFormat{}); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(loaded.Chains) != 2 || loaded.Chains[1].Name != "beta" || loaded.Chains[1].ChainID != 9 {
		t.Fatalf("chains = %+v", loaded.Chains)
	}
	raw, err := loaded.Chains[0].Raw()
	if err != nil {
		t.Fatalf("Raw: %v", err)
	}
	orig, _ := g.Chains[0].Raw()
	if string(raw) != string(orig) {
		t.Error("header bytes changed through save/load")
	}
}

func TestGenesis_Validate_Rejects(t *testing.T) {
	good := genesisHeader(t, 3, true)

	tests := []struct {
		name string
		g    *Genesis
		want string
	}{
		{"empty", &Genesis{}, "no chains"},
		{"duplicate", func() *Genesis {
			g := &Genesis{}
			g.AddHeader("a", good)
			g.AddHeader("b", good)
			return g
		}(), "duplicate"},
		{"not hex", &Genesis{Chains: []GenesisChain{{ChainID: 3, Header: "zz"}}}, "not hex"},
		{"truncated", &Genesis{Chains: []GenesisChain{{ChainID: 3, Header: "0102"}}}, "chain 3"},
		{"wrong chain", &Genesis{Chains: []GenesisChain{{ChainID: 4, Header: func() string {
			g := &Genesis{}
			g.AddHeader("", good)
			return g.Chains[0].Header
		}()}}}, "belongs to chain 3"},
		{"no committee", func() *Genesis {
			g := &Genesis{}
			g.AddHeader("", genesisHeader(t, 5, false))
			return g
		}(), "no committee"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.g.Validate(header.TaggedFormat{})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestGenesisChain_RawAcceptsPrefix(t *testing.T) {
	c := GenesisChain{ChainID: 1, Header: "0xabcd"}
	raw, err := c.Raw()
	if err != nil {
		t.Fatalf("Raw: %v", err)
	}
	if len(raw) != 2 || raw[0] != 0xab {
		t.Errorf("raw = %x", raw)
	}
}
