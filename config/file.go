package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadFile loads node configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a node config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	case "datadir":
		cfg.DataDir = value

	// P2P
	case "p2p.enabled", "p2p":
		cfg.P2P.Enabled = parseBool(value)
	case "p2p.listen":
		cfg.P2P.ListenAddr = value
	case "p2p.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.P2P.Port = port
	case "p2p.seeds":
		cfg.P2P.Seeds = parseStringList(value)
	case "p2p.maxpeers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.P2P.MaxPeers = n
	case "p2p.nodiscover":
		cfg.P2P.NoDiscover = parseBool(value)
	case "p2p.dhtserver":
		cfg.P2P.DHTServer = parseBool(value)
	case "p2p.dht.mode":
		switch strings.ToLower(value) {
		case "server":
			cfg.P2P.DHTServer = true
		case "client", "":
			cfg.P2P.DHTServer = false
		default:
			return fmt.Errorf("dht mode must be server or client")
		}
	case "p2p.networkid":
		cfg.P2P.NetworkID = value

	// RPC
	case "rpc.enabled", "rpc":
		cfg.RPC.Enabled = parseBool(value)
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.RPC.Port = port
	case "rpc.allowed":
		cfg.RPC.AllowedIPs = parseStringList(value)
	case "rpc.cors":
		cfg.RPC.CORSOrigins = parseStringList(value)

	// Bridge
	case "bridge.ownchainid":
		id, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Bridge.OwnChainID = id
	case "bridge.payload":
		cfg.Bridge.Payload = strings.ToLower(value)
	case "bridge.epochlength":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return err
		}
		cfg.Bridge.EpochLength = uint32(n)
	case "bridge.quorum":
		cfg.Bridge.Quorum = strings.ToLower(value)
	case "bridge.genesis":
		cfg.Bridge.Genesis = value
	case "bridge.chains":
		ids, err := parseChainIDs(value)
		if err != nil {
			return err
		}
		cfg.Bridge.Chains = ids

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// parseChainIDs parses a comma-separated list of decimal chain ids.
func parseChainIDs(s string) ([]uint64, error) {
	parts := parseStringList(s)
	if len(parts) == 0 {
		return nil, nil
	}
	ids := make([]uint64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("chain id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// WriteDefaultConfig writes a default node configuration file.
func WriteDefaultConfig(path string) error {
	content := `# Klingbridge Header Sync Node Configuration
#
# Trusted genesis headers live in the bridge genesis file, not here.
# Once a chain is initialized its genesis can no longer change.

# Data directory (default: ~/.klingbridge)
# datadir = ~/.klingbridge

# ============================================================================
# P2P Header Relay
# ============================================================================

p2p.enabled = true
p2p.listen = 0.0.0.0
p2p.port = ` + strconv.Itoa(DefaultP2PPort) + `
p2p.maxpeers = 50
p2p.networkid = ` + DefaultNetworkID + `

# Seed nodes (comma-separated libp2p multiaddrs)
# p2p.seeds = /ip4/203.0.113.1/tcp/30404/p2p/12D3KooW...

# Disable peer discovery (for private networks)
# p2p.nodiscover = false

# DHT mode: server (seed nodes) or client
# p2p.dht.mode = client

# ============================================================================
# RPC Server
# ============================================================================

rpc.enabled = true
rpc.addr = 127.0.0.1
rpc.port = ` + strconv.Itoa(DefaultRPCPort) + `
rpc.allowed = 127.0.0.1
# CORS allowed origins ("*" for all)
# rpc.cors = http://localhost:3000

# ============================================================================
# Bridge
# ============================================================================

# Id of the chain this bridge delivers cross-chain transactions to
# bridge.ownchainid = 0

# Consensus payload format: tagged or epoch
bridge.payload = tagged
# Epoch length in blocks (required when bridge.payload = epoch)
# bridge.epochlength = 60000

# Quorum policy: strict (more than 2/3) or poly (at least 2/3)
bridge.quorum = strict

# Bridge genesis file bootstrapped at startup
# bridge.genesis = ~/.klingbridge/genesis.json

# Extra chain ids to relay (comma-separated)
# bridge.chains =

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
