package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/klingbridge/pkg/header"
)

// Genesis lists the trusted genesis header of every chain the bridge
// follows. A chain's entry is applied once; after that the stored genesis
// wins and the file entry is ignored.
type Genesis struct {
	Chains []GenesisChain `json:"chains"`
}

// GenesisChain is one trusted genesis header.
type GenesisChain struct {
	ChainID uint64 `json:"chain_id"`
	Name    string `json:"name,omitempty"`
	Header  string `json:"header"` // hex-encoded raw header
}

// Raw returns the decoded header bytes.
func (c *GenesisChain) Raw() ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(c.Header, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain %d: header is not hex: %w", c.ChainID, err)
	}
	return raw, nil
}

// LoadGenesis reads a bridge genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis: %w", err)
	}
	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis: %w", err)
	}
	return &g, nil
}

// Save writes the genesis as indented JSON.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// Validate checks that every entry decodes under format, carries a
// committee, and names the chain it is listed under. Chain ids must be
// unique.
func (g *Genesis) Validate(format header.PayloadFormat) error {
	if len(g.Chains) == 0 {
		return fmt.Errorf("genesis lists no chains")
	}
	seen := make(map[uint64]struct{}, len(g.Chains))
	for i := range g.Chains {
		c := &g.Chains[i]
		if _, ok := seen[c.ChainID]; ok {
			return fmt.Errorf("duplicate chain id %d", c.ChainID)
		}
		seen[c.ChainID] = struct{}{}

		raw, err := c.Raw()
		if err != nil {
			return err
		}
		h, err := header.Decode(raw, format)
		if err != nil {
			return fmt.Errorf("chain %d: %w", c.ChainID, err)
		}
		if h.ChainID != c.ChainID {
			return fmt.Errorf("chain %d: header belongs to chain %d", c.ChainID, h.ChainID)
		}
		if h.Rotation() == nil {
			return fmt.Errorf("chain %d: genesis header carries no committee", c.ChainID)
		}
	}
	return nil
}

// AddHeader appends a chain entry for h.
func (g *Genesis) AddHeader(name string, h *header.Header) {
	g.Chains = append(g.Chains, GenesisChain{
		ChainID: h.ChainID,
		Name:    name,
		Header:  hex.EncodeToString(h.Bytes()),
	})
}
