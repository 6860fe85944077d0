package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingbridge/internal/headersync"
	klog "github.com/Klingon-tech/klingbridge/internal/log"
	"github.com/Klingon-tech/klingbridge/internal/relay"
	"github.com/Klingon-tech/klingbridge/pkg/header"
	"github.com/Klingon-tech/klingbridge/pkg/multisig"
	"github.com/libp2p/go-libp2p/core/peer"
)

const (
	heightRequestTimeout = 5 * time.Second
	headerRequestTimeout = 30 * time.Second
	// syncPeers is how many peers each sync round asks for their height.
	syncPeers = 3
)

// untrusted are verification failures caused by the header itself. A peer
// relaying one is penalized.
var untrusted = []error{
	headersync.ErrInsufficientBookkeepers,
	headersync.ErrInvalidPubkey,
	headersync.ErrEmptyConsensusPeerList,
	multisig.ErrInsufficientSignatures,
	multisig.ErrSignatureVerificationFailed,
}

// classify wraps header sync errors with the relay penalty they deserve.
// Errors caused by local state (unknown chain, corrupt store) are returned
// unchanged.
func classify(err error) error {
	for _, target := range untrusted {
		if errors.Is(err, target) {
			return fmt.Errorf("%w: %w", relay.ErrInvalidHeader, err)
		}
	}
	return err
}

// HandleHeader verifies and stores a header gossiped on the topic of
// chainID. It implements relay.HeaderSink.
func (n *Node) HandleHeader(from peer.ID, chainID uint64, raw []byte) error {
	h, err := header.Decode(raw, n.syncer.Format())
	if err != nil {
		return fmt.Errorf("%w: %w", relay.ErrMalformedHeader, err)
	}
	if h.ChainID != chainID {
		return fmt.Errorf("%w: header of chain %d on topic of chain %d", relay.ErrInvalidHeader, h.ChainID, chainID)
	}
	res, err := n.syncer.SyncHeader(raw)
	if err != nil {
		return classify(err)
	}
	if !res.Existing {
		klog.Sync.Debug().
			Str("peer", from.String()).
			Uint64("chain_id", chainID).
			Uint32("height", h.Height).
			Msg("Header accepted from gossip")
	}
	return nil
}

// announce publishes a header accepted over RPC to the relay network. A
// newly bootstrapped chain gets its topic joined first.
func (n *Node) announce(res *headersync.Result, raw []byte) {
	if n.relayNode == nil {
		return
	}
	chainID := res.Header.ChainID
	if err := n.relayNode.JoinChain(chainID); err != nil {
		n.logger.Warn().Err(err).Uint64("chain_id", chainID).Msg("Failed to join header topic")
		return
	}
	if err := n.relayNode.PublishHeader(chainID, raw); err != nil {
		n.logger.Debug().Err(err).Uint64("chain_id", chainID).Msg("Failed to publish header")
	}
}

// ── Sync ────────────────────────────────────────────────────────────

// headerFetcher is the part of the relay used for pulling headers from a
// peer.
type headerFetcher interface {
	RequestHeight(ctx context.Context, id peer.ID, chainID uint64) (*relay.HeightResponse, error)
	RequestHeaders(ctx context.Context, id peer.ID, chainID uint64, fromHeight, maxHeaders uint32) ([][]byte, error)
}

func (n *Node) runSyncLoop() {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.syncAll()
		}
	}
}

// syncAll pulls missing headers from the first few connected peers.
func (n *Node) syncAll() {
	peers := n.relayNode.PeerList()
	if len(peers) > syncPeers {
		peers = peers[:syncPeers]
	}
	for _, p := range peers {
		n.syncFromPeer(p.ID)
	}
}

// syncFromPeer catches every initialized chain up with peer id. Only one
// catch-up runs at a time.
func (n *Node) syncFromPeer(id peer.ID) {
	if n.relayNode == nil || !n.syncing.CompareAndSwap(false, true) {
		return
	}
	defer n.syncing.Store(false)

	chains, err := n.syncer.Chains()
	if err != nil {
		n.logger.Warn().Err(err).Msg("List synced chains")
		return
	}
	for _, chainID := range chains {
		if n.ctx.Err() != nil {
			return
		}
		synced, err := n.syncChain(n.ctx, n.relayNode, id, chainID)
		if err != nil {
			switch {
			case errors.Is(err, relay.ErrInvalidHeader):
				n.relayNode.BanManager.RecordOffense(id, relay.PenaltyInvalidHeader, err.Error())
			case errors.Is(err, relay.ErrMalformedHeader):
				n.relayNode.BanManager.RecordOffense(id, relay.PenaltyMalformedHeader, err.Error())
			}
			klog.Sync.Warn().
				Err(err).
				Str("peer", id.String()).
				Uint64("chain_id", chainID).
				Int("synced", synced).
				Msg("Catch-up stopped")
			continue
		}
		if synced > 0 {
			klog.Sync.Info().
				Str("peer", id.String()).
				Uint64("chain_id", chainID).
				Int("synced", synced).
				Msg("Caught up with peer")
		}
	}
}

// syncChain requests the headers of chainID above the local height from
// peer id and syncs them in ascending order. It returns the number of
// newly stored headers.
func (n *Node) syncChain(ctx context.Context, src headerFetcher, id peer.ID, chainID uint64) (int, error) {
	local, err := n.syncer.CurrentHeight(chainID)
	if err != nil {
		return 0, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, heightRequestTimeout)
	remote, err := src.RequestHeight(reqCtx, id, chainID)
	cancel()
	if err != nil {
		return 0, err
	}
	if !remote.Known || remote.Height <= local {
		return 0, nil
	}

	synced := 0
	for from := local + 1; from <= remote.Height; {
		reqCtx, cancel := context.WithTimeout(ctx, headerRequestTimeout)
		batch, err := src.RequestHeaders(reqCtx, id, chainID, from, relay.MaxHeadersPerRequest)
		cancel()
		if err != nil {
			return synced, err
		}
		if len(batch) == 0 {
			break
		}

		last := from
		for _, raw := range batch {
			h, err := header.Decode(raw, n.syncer.Format())
			if err != nil {
				return synced, fmt.Errorf("%w: %w", relay.ErrMalformedHeader, err)
			}
			if h.ChainID != chainID || h.Height < last {
				return synced, fmt.Errorf("%w: peer served chain %d height %d after height %d",
					relay.ErrInvalidHeader, h.ChainID, h.Height, last)
			}
			res, err := n.syncer.SyncHeader(raw)
			if err != nil {
				return synced, classify(err)
			}
			if !res.Existing {
				synced++
			}
			last = h.Height
		}
		if last == ^uint32(0) {
			break
		}
		from = last + 1
	}
	return synced, nil
}
