package rpc

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingbridge/internal/crosschain"
	"github.com/Klingon-tech/klingbridge/internal/headersync"
	"github.com/Klingon-tech/klingbridge/internal/storage"
	"github.com/Klingon-tech/klingbridge/pkg/codec"
	"github.com/Klingon-tech/klingbridge/pkg/crypto"
	"github.com/Klingon-tech/klingbridge/pkg/header"
	"github.com/Klingon-tech/klingbridge/pkg/merkle"
	"github.com/Klingon-tech/klingbridge/pkg/multisig"
	"github.com/Klingon-tech/klingbridge/pkg/types"
)

// rejections are errors caused by the trust rules or the sync state rather
// than by a malformed request.
var rejections = []error{
	headersync.ErrGenesisAlreadySet,
	headersync.ErrInvalidGenesisHeader,
	headersync.ErrChainNotInitialized,
	headersync.ErrKeyHeightNotFound,
	headersync.ErrInsufficientBookkeepers,
	headersync.ErrInvalidPubkey,
	headersync.ErrEmptyConsensusPeerList,
	multisig.ErrInsufficientSignatures,
	multisig.ErrSignatureVerificationFailed,
	merkle.ErrProofRootMismatch,
	crosschain.ErrWrongDestination,
	crosschain.ErrSourceMismatch,
	crosschain.ErrAlreadyProcessed,
}

// formatErrors are decode failures of caller-supplied bytes.
var formatErrors = []error{
	codec.ErrInputTooShort,
	codec.ErrInputTooLong,
	codec.ErrInvalidValue,
	header.ErrPayloadMismatch,
	crypto.ErrEmptyEncoding,
}

// toError maps a component error to a JSON-RPC error.
func toError(err error) *Error {
	if errors.Is(err, headersync.ErrStoreCorrupt) {
		return &Error{Code: CodeInternalError, Message: err.Error()}
	}
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, crosschain.ErrHeaderNotSynced) {
		return &Error{Code: CodeNotFound, Message: err.Error()}
	}
	for _, target := range formatErrors {
		if errors.Is(err, target) {
			return &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
	}
	for _, target := range rejections {
		if errors.Is(err, target) {
			return &Error{Code: CodeRejected, Message: err.Error()}
		}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

// decodeHex decodes a hex param, with or without 0x prefix.
func decodeHex(field, s string) ([]byte, *Error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid %s: must be hex", field)}
	}
	return b, nil
}

func decodeHash(field, s string) (types.Hash, *Error) {
	h, err := types.HexToHash(s)
	if err != nil {
		return types.Hash{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid %s: must be 32-byte hex", field)}
	}
	return h, nil
}

// ── Header sync endpoints ───────────────────────────────────────────────

func (s *Server) parseRawHeader(req *Request) ([]byte, *Error) {
	var params RawHeaderParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Header == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "header is required"}
	}
	return decodeHex("header", params.Header)
}

func (s *Server) handleSyncGenesisHeader(req *Request) (interface{}, *Error) {
	raw, rpcErr := s.parseRawHeader(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	res, err := s.syncer.SyncGenesisHeader(raw)
	if err != nil {
		return nil, toError(err)
	}
	return s.accepted(res, raw), nil
}

func (s *Server) handleSyncHeader(req *Request) (interface{}, *Error) {
	raw, rpcErr := s.parseRawHeader(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	res, err := s.syncer.SyncHeader(raw)
	if err != nil {
		return nil, toError(err)
	}
	return s.accepted(res, raw), nil
}

// accepted notifies the accepted handler of a newly stored header and
// builds the RPC result.
func (s *Server) accepted(res *headersync.Result, raw []byte) *SyncResult {
	if !res.Existing && s.onAccepted != nil {
		s.onAccepted(res, raw)
	}
	return &SyncResult{
		ChainID:  res.Header.ChainID,
		Height:   res.Header.Height,
		Hash:     res.Hash.String(),
		Existing: res.Existing,
		Rotation: res.Rotation,
	}
}

func (s *Server) headerResult(chainID uint64, h *header.Header) (*HeaderResult, *Error) {
	raw, err := s.syncer.RawHeader(chainID, h.Hash())
	if err != nil {
		return nil, toError(err)
	}
	return &HeaderResult{Header: h, Raw: hex.EncodeToString(raw)}, nil
}

func (s *Server) handleGetHeaderByHeight(req *Request) (interface{}, *Error) {
	var params HeightParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	h, err := s.syncer.HeaderByHeight(params.ChainID, params.Height)
	if err != nil {
		return nil, toError(err)
	}
	return s.headerResult(params.ChainID, h)
}

func (s *Server) handleGetHeaderByHash(req *Request) (interface{}, *Error) {
	var params HashParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	hash, rpcErr := decodeHash("hash", params.Hash)
	if rpcErr != nil {
		return nil, rpcErr
	}
	h, err := s.syncer.HeaderByHash(params.ChainID, hash)
	if err != nil {
		return nil, toError(err)
	}
	return s.headerResult(params.ChainID, h)
}

func (s *Server) handleGetCurrentHeight(req *Request) (interface{}, *Error) {
	var params ChainParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	height, err := s.syncer.CurrentHeight(params.ChainID)
	if err != nil {
		return nil, toError(err)
	}
	genesis, err := s.syncer.GenesisHeight(params.ChainID)
	if err != nil {
		return nil, toError(err)
	}
	return &HeightResult{ChainID: params.ChainID, Height: height, GenesisHeight: genesis}, nil
}

func (s *Server) handleGetChains(_ *Request) (interface{}, *Error) {
	ids, err := s.syncer.Chains()
	if err != nil {
		return nil, toError(err)
	}
	chains := make([]ChainInfo, 0, len(ids))
	for _, id := range ids {
		info := ChainInfo{ChainID: id}
		if info.GenesisHeight, err = s.syncer.GenesisHeight(id); err != nil {
			return nil, toError(err)
		}
		if info.CurrentHeight, err = s.syncer.CurrentHeight(id); err != nil {
			return nil, toError(err)
		}
		heights, err := s.syncer.KeyHeights(id)
		if err != nil {
			return nil, toError(err)
		}
		info.Epochs = len(heights)
		chains = append(chains, info)
	}
	return &ChainsResult{Count: len(chains), Chains: chains}, nil
}

func (s *Server) handleGetCommittee(req *Request) (interface{}, *Error) {
	var params CommitteeParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}

	var keyHeight uint32
	if params.KeyHeight != nil {
		keyHeight = *params.KeyHeight
	} else {
		heights, err := s.syncer.KeyHeights(params.ChainID)
		if err != nil {
			return nil, toError(err)
		}
		if len(heights) == 0 {
			return nil, toError(fmt.Errorf("chain %d: %w", params.ChainID, headersync.ErrChainNotInitialized))
		}
		keyHeight = heights[len(heights)-1]
	}

	peers, err := s.syncer.Committee(params.ChainID, keyHeight)
	if err != nil {
		return nil, toError(err)
	}
	return &CommitteeResult{
		ChainID:   params.ChainID,
		KeyHeight: keyHeight,
		Address:   crypto.CommitteeAddress(headersync.CommitteeKeys(peers)).String(),
		Threshold: s.syncer.Quorum().Threshold(len(peers)),
		Peers:     peers,
	}, nil
}

func (s *Server) handleGetKeyHeights(req *Request) (interface{}, *Error) {
	var params ChainParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	heights, err := s.syncer.KeyHeights(params.ChainID)
	if err != nil {
		return nil, toError(err)
	}
	if heights == nil {
		heights = []uint32{}
	}
	return &KeyHeightsResult{ChainID: params.ChainID, KeyHeights: heights}, nil
}

// ── Merkle and cross-chain endpoints ────────────────────────────────────

func (s *Server) handleResolveMerkleProof(req *Request) (interface{}, *Error) {
	var params MerkleProofParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	proof, rpcErr := decodeHex("proof", params.Proof)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var root types.Hash
	if params.Root != "" {
		if root, rpcErr = decodeHash("root", params.Root); rpcErr != nil {
			return nil, rpcErr
		}
	} else {
		h, err := s.syncer.HeaderByHeight(params.ChainID, params.Height)
		if err != nil {
			return nil, toError(err)
		}
		root = h.CrossStateRoot
	}

	value, err := merkle.Resolve(proof, root)
	if err != nil {
		return nil, toError(err)
	}
	return &MerkleResult{Root: root.String(), Value: hex.EncodeToString(value)}, nil
}

func (s *Server) handleProcessCrossChainTx(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.xchain == nil {
		return nil, &Error{Code: CodeNotFound, Message: "cross-chain processing not enabled"}
	}
	var params CrossChainTxParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	proof, rpcErr := decodeHex("proof", params.Proof)
	if rpcErr != nil {
		return nil, rpcErr
	}
	value, err := s.xchain.ProcessInbound(ctx, params.FromChainID, params.Height, proof)
	if err != nil {
		return nil, toError(err)
	}
	return &ProcessedTxResult{TxHash: value.Tx.Hash().String(), Value: value}, nil
}

func (s *Server) handleCreateCrossChainTx(req *Request) (interface{}, *Error) {
	if s.xchain == nil {
		return nil, &Error{Code: CodeNotFound, Message: "cross-chain processing not enabled"}
	}
	var params CreateCrossChainTxParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}

	out := crosschain.OutboundRequest{ToChainID: params.ToChainID, Method: params.Method}
	var rpcErr *Error
	if params.SourceTxHash != "" {
		if out.SourceTxHash, rpcErr = decodeHash("source_tx_hash", params.SourceTxHash); rpcErr != nil {
			return nil, rpcErr
		}
	}
	if out.FromContract, rpcErr = decodeHex("from_contract", params.FromContract); rpcErr != nil {
		return nil, rpcErr
	}
	if out.ToContract, rpcErr = decodeHex("to_contract", params.ToContract); rpcErr != nil {
		return nil, rpcErr
	}
	if out.Args, rpcErr = decodeHex("args", params.Args); rpcErr != nil {
		return nil, rpcErr
	}

	tx, err := s.xchain.CreateOutbound(out)
	if err != nil {
		return nil, toError(err)
	}
	return &OutboundTxResult{Hash: tx.Hash().String(), Tx: tx}, nil
}

func (s *Server) handleGetCrossChainTx(req *Request) (interface{}, *Error) {
	if s.xchain == nil {
		return nil, &Error{Code: CodeNotFound, Message: "cross-chain processing not enabled"}
	}
	var params TxHashParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	hash, rpcErr := decodeHash("hash", params.Hash)
	if rpcErr != nil {
		return nil, rpcErr
	}
	tx, err := s.xchain.Outbound(hash)
	if err != nil {
		return nil, toError(err)
	}
	return &OutboundTxResult{Hash: hash.String(), Tx: tx}, nil
}

func (s *Server) handleGetStats(req *Request) (interface{}, *Error) {
	var params StatsParam
	if req.Params != nil {
		if err := parseParams(req, &params); err != nil {
			return nil, err
		}
	}

	tracker := s.syncer.Stats()
	result := &StatsResult{Signers: tracker.GetAllSignerStats()}
	if params.ChainID != nil {
		result.Chains = []*headersync.ChainStats{}
		if cs := tracker.GetChainStats(*params.ChainID); cs != nil {
			result.Chains = append(result.Chains, cs)
		}
	} else {
		result.Chains = tracker.GetAllChainStats()
	}
	return result, nil
}

// ── Network endpoints ───────────────────────────────────────────────────

func (s *Server) handleNetGetPeerInfo(_ *Request) (interface{}, *Error) {
	if s.relayNode == nil {
		return &PeerInfoResult{Count: 0, Peers: []PeerInfo{}}, nil
	}

	peers := s.relayNode.PeerList()
	infos := make([]PeerInfo, len(peers))
	for i, p := range peers {
		infos[i] = PeerInfo{
			ID:          p.ID.String(),
			ConnectedAt: p.ConnectedAt.UTC().Format("2006-01-02T15:04:05Z"),
			Source:      p.Source,
			Chains:      p.Chains,
		}
	}

	return &PeerInfoResult{
		Count: len(infos),
		Peers: infos,
	}, nil
}

func (s *Server) handleNetGetNodeInfo(_ *Request) (interface{}, *Error) {
	if s.relayNode == nil {
		return &NodeInfoResult{ID: "", Addrs: []string{}, Chains: []uint64{}}, nil
	}

	return &NodeInfoResult{
		ID:     s.relayNode.ID().String(),
		Addrs:  s.relayNode.Addrs(),
		Chains: s.relayNode.Chains(),
	}, nil
}

func (s *Server) handleNetGetBanList(_ *Request) (interface{}, *Error) {
	if s.relayNode == nil || s.relayNode.BanManager == nil {
		return &BanListResult{Count: 0, Bans: []BanEntry{}}, nil
	}

	records := s.relayNode.BanManager.BanList()
	entries := make([]BanEntry, len(records))
	for i, r := range records {
		entries[i] = BanEntry{
			ID:        r.ID,
			Reason:    r.Reason,
			Score:     r.Score,
			BannedAt:  r.BannedAt,
			ExpiresAt: r.ExpiresAt,
		}
	}

	return &BanListResult{
		Count: len(entries),
		Bans:  entries,
	}, nil
}
