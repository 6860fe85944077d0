package relay

import (
	"testing"
	"time"
)

func TestNode_ValidateHandshake(t *testing.T) {
	n := New(Config{NetworkID: "bridge-testnet-1"})
	tests := []struct {
		name string
		msg  HandshakeMessage
		ok   bool
	}{
		{"compatible", HandshakeMessage{ProtocolVersion: ProtocolVersion, NetworkID: "bridge-testnet-1"}, true},
		{"other network", HandshakeMessage{ProtocolVersion: ProtocolVersion, NetworkID: "bridge-mainnet-1"}, false},
		{"no network", HandshakeMessage{ProtocolVersion: ProtocolVersion}, false},
		{"version too low", HandshakeMessage{ProtocolVersion: 0, NetworkID: "bridge-testnet-1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := n.validateHandshake(tt.msg)
			if (reason == "") != tt.ok {
				t.Errorf("validateHandshake reason = %q, want ok=%v", reason, tt.ok)
			}
		})
	}
}

func TestNode_HandshakeEnabled(t *testing.T) {
	if New(Config{}).handshakeEnabled() {
		t.Error("handshake should be disabled without a network ID")
	}
	if !New(Config{NetworkID: "x"}).handshakeEnabled() {
		t.Error("handshake should be enabled with a network ID")
	}
}

func startNetworkNode(t *testing.T, networkID string, chains ...uint64) *Node {
	t.Helper()
	n := New(Config{ListenAddr: "127.0.0.1", NoDiscover: true, NetworkID: networkID})
	if err := n.Start(); err != nil {
		t.Fatalf("start node: %v", err)
	}
	t.Cleanup(func() { n.Stop() })
	for _, id := range chains {
		if err := n.JoinChain(id); err != nil {
			t.Fatalf("JoinChain: %v", err)
		}
	}
	return n
}

func TestNode_BuildHandshakeMessage(t *testing.T) {
	n := startNetworkNode(t, "bridge-testnet-1", 7, 2)
	msg := n.buildHandshakeMessage()
	if msg.ProtocolVersion != ProtocolVersion || msg.NetworkID != "bridge-testnet-1" {
		t.Errorf("message = %+v", msg)
	}
	if len(msg.Chains) != 2 || msg.Chains[0] != 2 || msg.Chains[1] != 7 {
		t.Errorf("Chains = %v, want [2 7]", msg.Chains)
	}
}

func TestTwoNodes_Handshake_Success(t *testing.T) {
	nodeA := startNetworkNode(t, "test", 7)
	nodeB := startNetworkNode(t, "test", 7, 9)
	connectNodes(t, nodeA, nodeB)

	waitFor(t, "peer chains", func() bool {
		for _, p := range nodeA.PeerList() {
			if p.ID == nodeB.ID() && len(p.Chains) == 2 {
				return true
			}
		}
		return false
	})
	if nodeB.PeerCount() < 1 {
		t.Errorf("nodeB should still have a peer, got %d", nodeB.PeerCount())
	}
	if nodeA.BanManager.IsBanned(nodeB.ID()) {
		t.Error("compatible peer banned")
	}
}

func TestTwoNodes_Handshake_NetworkMismatch(t *testing.T) {
	nodeA := startNetworkNode(t, "test-a")
	nodeB := startNetworkNode(t, "test-b")
	connectNodes(t, nodeA, nodeB)

	time.Sleep(time.Second)

	if nodeA.PeerCount() > 0 && nodeB.PeerCount() > 0 {
		t.Errorf("expected at least one side to disconnect: A=%d B=%d",
			nodeA.PeerCount(), nodeB.PeerCount())
	}
	if !nodeA.BanManager.IsBanned(nodeB.ID()) && !nodeB.BanManager.IsBanned(nodeA.ID()) {
		t.Error("expected the mismatched peer to be banned")
	}
}
