package relay

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/protocol"
)

// Stream protocols spoken between bridge relays.
const (
	// HandshakeProtocol checks that both ends relay for the same network.
	HandshakeProtocol = protocol.ID("/klingbridge/handshake/1.0.0")

	// SyncProtocol serves stored raw headers of a chain by height range.
	SyncProtocol = protocol.ID("/klingbridge/headers/sync/1.0.0")

	// HeightProtocol reports the synced height of a chain.
	HeightProtocol = protocol.ID("/klingbridge/headers/height/1.0.0")

	// ProtocolVersion is the current protocol version advertised during handshake.
	ProtocolVersion uint32 = 1

	// MinProtocolVersion is the minimum protocol version we accept from peers.
	MinProtocolVersion uint32 = 1
)

// MaxHeaderSize bounds a gossiped raw header. Headers carrying a large
// committee rotation are the biggest messages relayed.
const MaxHeaderSize = 1 << 20

// HeaderTopic returns the GossipSub topic carrying raw headers of chainID.
func HeaderTopic(chainID uint64) string {
	return fmt.Sprintf("/klingbridge/headers/%d", chainID)
}
