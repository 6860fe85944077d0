package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
)

const heightReadTimeout = 5 * time.Second

// HeightRequest asks a peer for its synced height of a chain.
type HeightRequest struct {
	ChainID uint64 `json:"chain_id"`
}

// HeightResponse reports a peer's synced height of a chain. Known is false
// when the peer holds no genesis for it.
type HeightResponse struct {
	ChainID uint64 `json:"chain_id"`
	Height  uint32 `json:"height"`
	Hash    string `json:"hash"`
	Known   bool   `json:"known"`
}

// HeightFunc reports the synced height and the hex hash at that height.
type HeightFunc func(chainID uint64) (height uint32, hash string, ok bool)

// ServeHeight registers the height stream handler.
func (n *Node) ServeHeight(heightFn HeightFunc) {
	n.host.SetStreamHandler(HeightProtocol, func(stream network.Stream) {
		defer stream.Close()

		_ = stream.SetReadDeadline(time.Now().Add(heightReadTimeout))

		var req HeightRequest
		if err := json.NewDecoder(io.LimitReader(stream, 256)).Decode(&req); err != nil {
			return
		}
		resp := HeightResponse{ChainID: req.ChainID}
		resp.Height, resp.Hash, resp.Known = heightFn(req.ChainID)
		json.NewEncoder(stream).Encode(&resp)
	})
}

// RequestHeight queries a peer for its synced height of chainID.
func (n *Node) RequestHeight(ctx context.Context, id peer.ID, chainID uint64) (*HeightResponse, error) {
	stream, err := n.host.NewStream(ctx, id, HeightProtocol)
	if err != nil {
		return nil, fmt.Errorf("open height stream: %w", err)
	}
	defer stream.Close()

	req := HeightRequest{ChainID: chainID}
	if err := json.NewEncoder(stream).Encode(&req); err != nil {
		return nil, fmt.Errorf("send height request: %w", err)
	}
	stream.CloseWrite()

	_ = stream.SetReadDeadline(time.Now().Add(heightReadTimeout))

	var resp HeightResponse
	if err := json.NewDecoder(io.LimitReader(stream, 1024)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read height response: %w", err)
	}
	if resp.ChainID != chainID {
		return nil, fmt.Errorf("height response for chain %d, asked %d", resp.ChainID, chainID)
	}
	return &resp, nil
}
