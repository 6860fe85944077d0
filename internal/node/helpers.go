package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/klingbridge/config"
	"github.com/Klingon-tech/klingbridge/internal/headersync"
	"github.com/rs/zerolog"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// bootstrapGenesis syncs the genesis header of every chain in the genesis
// file that is not initialized yet. Chains already bootstrapped keep
// their stored state.
func bootstrapGenesis(syncer *headersync.Syncer, path string, logger zerolog.Logger) error {
	g, err := config.LoadGenesis(path)
	if err != nil {
		return err
	}
	if err := g.Validate(syncer.Format()); err != nil {
		return fmt.Errorf("genesis file %s: %w", path, err)
	}

	for i := range g.Chains {
		c := &g.Chains[i]
		ok, err := syncer.Initialized(c.ChainID)
		if err != nil {
			return fmt.Errorf("chain %d: %w", c.ChainID, err)
		}
		if ok {
			continue
		}
		raw, err := c.Raw()
		if err != nil {
			return fmt.Errorf("chain %d: %w", c.ChainID, err)
		}
		res, err := syncer.SyncGenesisHeader(raw)
		if err != nil && !errors.Is(err, headersync.ErrGenesisAlreadySet) {
			return fmt.Errorf("bootstrap chain %d: %w", c.ChainID, err)
		}
		if res != nil {
			logger.Info().
				Uint64("chain_id", c.ChainID).
				Str("name", c.Name).
				Uint32("height", res.Header.Height).
				Int("committee", len(res.Header.Rotation().Peers)).
				Msg("Chain bootstrapped from genesis file")
		}
	}
	return nil
}

// provideHeaders serves stored headers to relay peers.
func (n *Node) provideHeaders(chainID uint64, from, max uint32) [][]byte {
	headers, err := n.syncer.HeadersFrom(chainID, from, int(max))
	if err != nil {
		n.logger.Debug().Err(err).Uint64("chain_id", chainID).Msg("Serve headers failed")
		return nil
	}
	return headers
}

// provideHeight reports the synced height of chainID to relay peers.
func (n *Node) provideHeight(chainID uint64) (uint32, string, bool) {
	height, err := n.syncer.CurrentHeight(chainID)
	if err != nil {
		return 0, "", false
	}
	h, err := n.syncer.HeaderByHeight(chainID, height)
	if err != nil {
		return 0, "", false
	}
	return height, h.Hash().String(), true
}
