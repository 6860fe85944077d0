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

const (
	// MaxHeadersPerRequest caps the headers served for one range request.
	MaxHeadersPerRequest = 500

	syncReadTimeout      = 30 * time.Second
	maxSyncRequestBytes  = 1024
	maxSyncResponseBytes = 64 * 1024 * 1024
)

// SyncRequest asks a peer for stored headers of a chain, in ascending
// height order, starting at FromHeight.
type SyncRequest struct {
	ChainID    uint64 `json:"chain_id"`
	FromHeight uint32 `json:"from_height"`
	MaxHeaders uint32 `json:"max_headers"`
}

// SyncResponse carries raw headers exactly as they were synced.
type SyncResponse struct {
	Headers [][]byte `json:"headers"`
}

// HeaderProvider returns up to max raw headers of chainID starting at
// height from.
type HeaderProvider func(chainID uint64, from uint32, max uint32) [][]byte

// ServeHeaders registers the header range stream handler.
func (n *Node) ServeHeaders(provider HeaderProvider) {
	n.host.SetStreamHandler(SyncProtocol, func(stream network.Stream) {
		defer stream.Close()

		_ = stream.SetReadDeadline(time.Now().Add(syncReadTimeout))

		var req SyncRequest
		if err := json.NewDecoder(io.LimitReader(stream, maxSyncRequestBytes)).Decode(&req); err != nil {
			return
		}
		if req.MaxHeaders == 0 || req.MaxHeaders > MaxHeadersPerRequest {
			req.MaxHeaders = MaxHeadersPerRequest
		}
		resp := SyncResponse{Headers: provider(req.ChainID, req.FromHeight, req.MaxHeaders)}
		json.NewEncoder(stream).Encode(&resp)
	})
}

// RequestHeaders asks a peer for headers of chainID starting at fromHeight.
func (n *Node) RequestHeaders(ctx context.Context, id peer.ID, chainID uint64, fromHeight, maxHeaders uint32) ([][]byte, error) {
	stream, err := n.host.NewStream(ctx, id, SyncProtocol)
	if err != nil {
		return nil, fmt.Errorf("open sync stream: %w", err)
	}
	defer stream.Close()

	req := SyncRequest{ChainID: chainID, FromHeight: fromHeight, MaxHeaders: maxHeaders}
	if err := json.NewEncoder(stream).Encode(&req); err != nil {
		return nil, fmt.Errorf("send sync request: %w", err)
	}
	stream.CloseWrite()

	_ = stream.SetReadDeadline(time.Now().Add(syncReadTimeout))

	var resp SyncResponse
	if err := json.NewDecoder(io.LimitReader(stream, maxSyncResponseBytes)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read sync response: %w", err)
	}
	if len(resp.Headers) > MaxHeadersPerRequest {
		return nil, fmt.Errorf("peer returned %d headers, max %d", len(resp.Headers), MaxHeadersPerRequest)
	}
	return resp.Headers, nil
}
