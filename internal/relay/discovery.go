package relay

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"
)

// discoveryNotifee connects to relays found over mDNS.
type discoveryNotifee struct {
	node *Node
}

func (d *discoveryNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == d.node.host.ID() {
		return
	}
	if d.node.config.MaxPeers > 0 && d.node.PeerCount() >= d.node.config.MaxPeers {
		return
	}
	ctx, cancel := context.WithTimeout(d.node.ctx, peerConnectTimeout)
	defer cancel()
	if err := d.node.host.Connect(ctx, pi); err == nil {
		d.node.addPeer(pi.ID, "mdns")
	}
}
