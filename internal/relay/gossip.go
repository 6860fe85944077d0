package relay

import (
	"errors"
	"fmt"
	"sort"

	klog "github.com/Klingon-tech/klingbridge/internal/log"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Errors a HeaderSink wraps to have the sending peer penalized.
var (
	// ErrMalformedHeader marks header bytes that do not decode.
	ErrMalformedHeader = errors.New("malformed header")
	// ErrInvalidHeader marks a header that decodes but fails verification.
	ErrInvalidHeader = errors.New("invalid header")
)

// HeaderSink consumes raw headers received from the network.
type HeaderSink interface {
	HandleHeader(from peer.ID, chainID uint64, raw []byte) error
}

// SetHeaderSink registers the consumer of gossiped headers. Call it
// before JoinChain.
func (n *Node) SetHeaderSink(sink HeaderSink) {
	n.chainsMu.Lock()
	n.sink = sink
	n.chainsMu.Unlock()
}

// JoinChain subscribes to the header topic of chainID. Joining a chain
// twice is a no-op.
func (n *Node) JoinChain(chainID uint64) error {
	if n.pubsub == nil {
		return fmt.Errorf("relay node not started")
	}

	n.chainsMu.Lock()
	defer n.chainsMu.Unlock()

	if _, ok := n.topics[chainID]; ok {
		return nil
	}
	topic, err := n.pubsub.Join(HeaderTopic(chainID))
	if err != nil {
		return fmt.Errorf("join header topic %d: %w", chainID, err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		topic.Close()
		return fmt.Errorf("subscribe header topic %d: %w", chainID, err)
	}
	n.topics[chainID] = topic
	n.subs[chainID] = sub

	go n.readLoop(chainID, sub)

	klog.Relay.Info().Uint64("chain_id", chainID).Msg("Joined header topic")
	return nil
}

// LeaveChain unsubscribes from the header topic of chainID.
func (n *Node) LeaveChain(chainID uint64) {
	n.chainsMu.Lock()
	defer n.chainsMu.Unlock()

	if sub, ok := n.subs[chainID]; ok {
		sub.Cancel()
		delete(n.subs, chainID)
	}
	if t, ok := n.topics[chainID]; ok {
		t.Close()
		delete(n.topics, chainID)
	}
}

// Chains returns the joined chain IDs in ascending order.
func (n *Node) Chains() []uint64 {
	n.chainsMu.RLock()
	out := make([]uint64, 0, len(n.topics))
	for id := range n.topics {
		out = append(out, id)
	}
	n.chainsMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PublishHeader gossips a raw header on the topic of chainID.
func (n *Node) PublishHeader(chainID uint64, raw []byte) error {
	if len(raw) > MaxHeaderSize {
		return fmt.Errorf("header too large: %d bytes", len(raw))
	}
	n.chainsMu.RLock()
	topic, ok := n.topics[chainID]
	n.chainsMu.RUnlock()
	if !ok {
		return fmt.Errorf("chain %d not joined", chainID)
	}
	return topic.Publish(n.ctx, raw)
}

func (n *Node) readLoop(chainID uint64, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(n.ctx)
		if err != nil {
			return // Cancelled.
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue
		}
		n.handleHeaderMessage(chainID, msg)
	}
}

func (n *Node) handleHeaderMessage(chainID uint64, msg *pubsub.Message) {
	from := msg.ReceivedFrom
	defer func() {
		if r := recover(); r != nil {
			klog.Relay.Error().
				Str("peer", shortID(from)).
				Uint64("chain_id", chainID).
				Interface("panic", r).
				Msg("Header handler panicked")
		}
	}()

	n.addPeer(from, "gossip")

	n.chainsMu.RLock()
	sink := n.sink
	n.chainsMu.RUnlock()
	if sink == nil {
		return
	}

	err := sink.HandleHeader(from, chainID, msg.Data)
	switch {
	case err == nil:
	case errors.Is(err, ErrMalformedHeader):
		n.BanManager.RecordOffense(from, PenaltyMalformedHeader, err.Error())
	case errors.Is(err, ErrInvalidHeader):
		n.BanManager.RecordOffense(from, PenaltyInvalidHeader, err.Error())
	default:
		klog.Relay.Debug().
			Err(err).
			Str("peer", shortID(from)).
			Uint64("chain_id", chainID).
			Msg("Header not applied")
	}
}
