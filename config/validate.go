package config

import (
	"fmt"
	"strings"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.P2P.Port < 0 || cfg.P2P.Port > 65535 {
		return fmt.Errorf("p2p.port must be in range [0, 65535]")
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.P2P.MaxPeers < 0 {
		return fmt.Errorf("p2p.maxpeers must not be negative")
	}
	if strings.ContainsAny(cfg.P2P.NetworkID, " \t/") {
		return fmt.Errorf("p2p.networkid must not contain spaces or slashes")
	}

	cfg.Bridge.Payload = strings.ToLower(cfg.Bridge.Payload)
	if _, err := cfg.Bridge.PayloadFormat(); err != nil {
		return fmt.Errorf("bridge.payload: %w", err)
	}
	if cfg.Bridge.Payload != "epoch" && cfg.Bridge.EpochLength != 0 {
		return fmt.Errorf("bridge.epochlength is only used with bridge.payload = epoch")
	}
	if _, err := cfg.Bridge.QuorumPolicy(); err != nil {
		return fmt.Errorf("bridge.quorum: %w", err)
	}

	seen := make(map[uint64]struct{}, len(cfg.Bridge.Chains))
	for _, id := range cfg.Bridge.Chains {
		if _, ok := seen[id]; ok {
			return fmt.Errorf("bridge.chains has duplicate chain id %d", id)
		}
		seen[id] = struct{}{}
	}

	return nil
}
