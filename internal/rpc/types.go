package rpc

import (
	"github.com/Klingon-tech/klingbridge/internal/headersync"
	"github.com/Klingon-tech/klingbridge/pkg/crosstx"
	"github.com/Klingon-tech/klingbridge/pkg/header"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	// CodeRejected reports a header, proof or transaction refused by the
	// trust rules or by the current sync state.
	CodeRejected = -32001
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// RawHeaderParam is used by bridge_syncGenesisHeader and bridge_syncHeader.
type RawHeaderParam struct {
	Header string `json:"header"` // hex-encoded raw header
}

// ChainParam is used by endpoints that take only a chain id.
type ChainParam struct {
	ChainID uint64 `json:"chain_id"`
}

// HeightParam is used by bridge_getHeaderByHeight.
type HeightParam struct {
	ChainID uint64 `json:"chain_id"`
	Height  uint32 `json:"height"`
}

// HashParam is used by bridge_getHeaderByHash.
type HashParam struct {
	ChainID uint64 `json:"chain_id"`
	Hash    string `json:"hash"`
}

// CommitteeParam is used by bridge_getCommittee. When KeyHeight is nil the
// committee in force at the current height is returned.
type CommitteeParam struct {
	ChainID   uint64  `json:"chain_id"`
	KeyHeight *uint32 `json:"key_height,omitempty"`
}

// MerkleProofParam is used by bridge_resolveMerkleProof. The proof is
// checked against Root when set, otherwise against the cross-state root of
// the synced header at (ChainID, Height).
type MerkleProofParam struct {
	Proof   string `json:"proof"`
	Root    string `json:"root,omitempty"`
	ChainID uint64 `json:"chain_id,omitempty"`
	Height  uint32 `json:"height,omitempty"`
}

// CrossChainTxParam is used by bridge_processCrossChainTx.
type CrossChainTxParam struct {
	FromChainID uint64 `json:"from_chain_id"`
	Height      uint32 `json:"height"`
	Proof       string `json:"proof"`
}

// CreateCrossChainTxParam is used by bridge_createCrossChainTx. Byte
// fields are hex.
type CreateCrossChainTxParam struct {
	SourceTxHash string `json:"source_tx_hash"`
	FromContract string `json:"from_contract"`
	ToChainID    uint64 `json:"to_chain_id"`
	ToContract   string `json:"to_contract"`
	Method       string `json:"method"`
	Args         string `json:"args"`
}

// TxHashParam is used by bridge_getCrossChainTx.
type TxHashParam struct {
	Hash string `json:"hash"`
}

// StatsParam is used by bridge_getStats. A nil ChainID returns every chain.
type StatsParam struct {
	ChainID *uint64 `json:"chain_id,omitempty"`
}

// ── Result types ────────────────────────────────────────────────────────

// SyncResult is returned by the header sync endpoints.
type SyncResult struct {
	ChainID  uint64 `json:"chain_id"`
	Height   uint32 `json:"height"`
	Hash     string `json:"hash"`
	Existing bool   `json:"existing"`
	Rotation bool   `json:"rotation"`
}

// HeaderResult wraps a synced header with its raw encoding.
type HeaderResult struct {
	Header *header.Header `json:"header"`
	Raw    string         `json:"raw"`
}

// HeightResult is returned by bridge_getCurrentHeight.
type HeightResult struct {
	ChainID       uint64 `json:"chain_id"`
	Height        uint32 `json:"height"`
	GenesisHeight uint32 `json:"genesis_height"`
}

// ChainInfo describes one initialized chain.
type ChainInfo struct {
	ChainID       uint64 `json:"chain_id"`
	GenesisHeight uint32 `json:"genesis_height"`
	CurrentHeight uint32 `json:"current_height"`
	Epochs        int    `json:"epochs"`
}

// ChainsResult is returned by bridge_getChains.
type ChainsResult struct {
	Count  int         `json:"count"`
	Chains []ChainInfo `json:"chains"`
}

// CommitteeResult is returned by bridge_getCommittee.
type CommitteeResult struct {
	ChainID   uint64              `json:"chain_id"`
	KeyHeight uint32              `json:"key_height"`
	Address   string              `json:"address"` // committee address of the member keys
	Threshold int                 `json:"threshold"`
	Peers     []header.PeerConfig `json:"peers"`
}

// KeyHeightsResult is returned by bridge_getKeyHeights.
type KeyHeightsResult struct {
	ChainID    uint64   `json:"chain_id"`
	KeyHeights []uint32 `json:"key_heights"`
}

// MerkleResult is returned by bridge_resolveMerkleProof.
type MerkleResult struct {
	Root  string `json:"root"`
	Value string `json:"value"` // hex leaf
}

// ProcessedTxResult is returned by bridge_processCrossChainTx.
type ProcessedTxResult struct {
	TxHash string                 `json:"tx_hash"`
	Value  *crosstx.ToMerkleValue `json:"value"`
}

// OutboundTxResult is returned by bridge_createCrossChainTx and
// bridge_getCrossChainTx.
type OutboundTxResult struct {
	Hash string               `json:"hash"`
	Tx   *crosstx.Transaction `json:"tx"`
}

// StatsResult is returned by bridge_getStats.
type StatsResult struct {
	Chains  []*headersync.ChainStats  `json:"chains"`
	Signers []*headersync.SignerStats `json:"signers"`
}

// ── Network result types ────────────────────────────────────────────────

// PeerInfoResult is returned by net_getPeerInfo.
type PeerInfoResult struct {
	Count int        `json:"count"`
	Peers []PeerInfo `json:"peers"`
}

// PeerInfo describes a connected relay peer.
type PeerInfo struct {
	ID          string   `json:"id"`
	ConnectedAt string   `json:"connected_at"`
	Source      string   `json:"source,omitempty"`
	Chains      []uint64 `json:"chains,omitempty"`
}

// NodeInfoResult is returned by net_getNodeInfo.
type NodeInfoResult struct {
	ID     string   `json:"id"`
	Addrs  []string `json:"addrs"`
	Chains []uint64 `json:"chains"`
}

// BanListResult is returned by net_getBanList.
type BanListResult struct {
	Count int        `json:"count"`
	Bans  []BanEntry `json:"bans"`
}

// BanEntry is one banned peer.
type BanEntry struct {
	ID        string `json:"id"`
	Reason    string `json:"reason"`
	Score     int    `json:"score"`
	BannedAt  int64  `json:"banned_at"`
	ExpiresAt int64  `json:"expires_at"`
}
