// Package config handles bridge node configuration.
//
// Configuration is split into two categories:
//   - Trust roots: the genesis headers of every followed chain, kept in a
//     separate genesis file and only applied while a chain is uninitialized
//   - Node settings: runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/Klingon-tech/klingbridge/internal/headersync"
	"github.com/Klingon-tech/klingbridge/pkg/header"
)

// Config holds node-specific runtime configuration.
type Config struct {
	// Core
	DataDir string `conf:"datadir"`

	// P2P header relay
	P2P P2PConfig

	// RPC server
	RPC RPCConfig

	// Header sync and cross-chain settings
	Bridge BridgeConfig

	// Logging
	Log LogConfig
}

// P2PConfig holds header relay network settings.
type P2PConfig struct {
	Enabled    bool     `conf:"p2p.enabled"`
	ListenAddr string   `conf:"p2p.listen"`
	Port       int      `conf:"p2p.port"`
	Seeds      []string `conf:"p2p.seeds"`
	MaxPeers   int      `conf:"p2p.maxpeers"`
	NoDiscover bool     `conf:"p2p.nodiscover"`
	DHTServer  bool     `conf:"p2p.dhtserver"` // also settable as p2p.dht.mode = server
	NetworkID  string   `conf:"p2p.networkid"` // peers with a different id are refused
	ClearBans  bool     // Clear all peer bans on startup (not persisted in config file).
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// BridgeConfig holds the header sync trust settings.
type BridgeConfig struct {
	// OwnChainID is the id of the chain this bridge delivers to. Inbound
	// cross-chain transactions must name it as destination.
	OwnChainID uint64 `conf:"bridge.ownchainid"`

	// Payload selects how a header's committee rotation is encoded:
	// "tagged" (discriminant byte) or "epoch" (height % EpochLength == 0).
	Payload     string `conf:"bridge.payload"`
	EpochLength uint32 `conf:"bridge.epochlength"`

	// Quorum is "strict" (more than two thirds) or "poly" (at least two
	// thirds).
	Quorum string `conf:"bridge.quorum"`

	// Genesis is an optional bridge genesis file bootstrapped at startup.
	Genesis string `conf:"bridge.genesis"`

	// Chains are extra chain ids whose gossip topics are joined even
	// before a genesis header is known.
	Chains []uint64 `conf:"bridge.chains"`
}

// PayloadFormat returns the header payload format named by the config.
func (b *BridgeConfig) PayloadFormat() (header.PayloadFormat, error) {
	return header.ParsePayloadFormat(b.Payload, b.EpochLength)
}

// QuorumPolicy returns the committee quorum policy named by the config.
func (b *BridgeConfig) QuorumPolicy() (headersync.Quorum, error) {
	return headersync.ParseQuorum(b.Quorum)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingbridge
//	macOS:   ~/Library/Application Support/Klingbridge
//	Windows: %APPDATA%\Klingbridge
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingbridge"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Klingbridge")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Klingbridge")
		}
		return filepath.Join(home, "AppData", "Roaming", "Klingbridge")
	default:
		return filepath.Join(home, ".klingbridge")
	}
}

// HeadersDir returns the consensus store directory.
func (c *Config) HeadersDir() string {
	return filepath.Join(c.DataDir, "headers")
}

// KeystoreDir returns the committee keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.DataDir, "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "klingbridge.conf")
}
