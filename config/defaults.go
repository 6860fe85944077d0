package config

// Default ports.
const (
	DefaultP2PPort = 30404
	DefaultRPCPort = 18545
)

// DefaultNetworkID is the relay network joined when none is configured.
const DefaultNetworkID = "klingbridge-mainnet"

// Default returns the default node configuration.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		P2P: P2PConfig{
			Enabled:    true,
			ListenAddr: "0.0.0.0",
			Port:       DefaultP2PPort,
			MaxPeers:   50,
			NetworkID:  DefaultNetworkID,
			// Format: multiaddr strings, e.g.:
			//   "/ip4/203.0.113.1/tcp/30404/p2p/12D3KooW..."
			Seeds: []string{},
		},
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       DefaultRPCPort,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Bridge: BridgeConfig{
			Payload: "tagged",
			Quorum:  "strict",
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
