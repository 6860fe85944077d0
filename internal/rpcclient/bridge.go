package rpcclient

import (
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/Klingon-tech/klingbridge/internal/rpc"
)

// IsRejected reports whether err is a JSON-RPC error for a header, proof or
// transaction refused by the node's trust rules.
func IsRejected(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == rpc.CodeRejected
}

// IsNotFound reports whether err is a JSON-RPC not-found error.
func IsNotFound(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == rpc.CodeNotFound
}

// SyncGenesisHeader submits a trusted genesis header.
func (c *Client) SyncGenesisHeader(raw []byte) (*rpc.SyncResult, error) {
	var res rpc.SyncResult
	if err := c.Call("bridge_syncGenesisHeader", rpc.RawHeaderParam{Header: hex.EncodeToString(raw)}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SyncHeader submits a signed header.
func (c *Client) SyncHeader(raw []byte) (*rpc.SyncResult, error) {
	var res rpc.SyncResult
	if err := c.Call("bridge_syncHeader", rpc.RawHeaderParam{Header: hex.EncodeToString(raw)}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RawHeaderByHeight returns the stored wire bytes of a synced header.
func (c *Client) RawHeaderByHeight(chainID uint64, height uint32) ([]byte, error) {
	var res struct {
		Raw string `json:"raw"`
	}
	if err := c.Call("bridge_getHeaderByHeight", rpc.HeightParam{ChainID: chainID, Height: height}, &res); err != nil {
		return nil, err
	}
	return hex.DecodeString(res.Raw)
}

// HeaderByHeight returns the JSON rendering of a synced header.
func (c *Client) HeaderByHeight(chainID uint64, height uint32) (json.RawMessage, error) {
	var res struct {
		Header json.RawMessage `json:"header"`
	}
	if err := c.Call("bridge_getHeaderByHeight", rpc.HeightParam{ChainID: chainID, Height: height}, &res); err != nil {
		return nil, err
	}
	return res.Header, nil
}

// HeaderByHash returns the JSON rendering of a synced header.
func (c *Client) HeaderByHash(chainID uint64, hash string) (json.RawMessage, error) {
	var res struct {
		Header json.RawMessage `json:"header"`
	}
	if err := c.Call("bridge_getHeaderByHash", rpc.HashParam{ChainID: chainID, Hash: hash}, &res); err != nil {
		return nil, err
	}
	return res.Header, nil
}

// CurrentHeight returns the highest synced height of chainID.
func (c *Client) CurrentHeight(chainID uint64) (*rpc.HeightResult, error) {
	var res rpc.HeightResult
	if err := c.Call("bridge_getCurrentHeight", rpc.ChainParam{ChainID: chainID}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Chains lists the initialized chains.
func (c *Client) Chains() (*rpc.ChainsResult, error) {
	var res rpc.ChainsResult
	if err := c.Call("bridge_getChains", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Committee returns the committee installed at keyHeight, or the current
// committee when keyHeight is nil.
func (c *Client) Committee(chainID uint64, keyHeight *uint32) (*rpc.CommitteeResult, error) {
	var res rpc.CommitteeResult
	if err := c.Call("bridge_getCommittee", rpc.CommitteeParam{ChainID: chainID, KeyHeight: keyHeight}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// KeyHeights returns the committee rotation heights of chainID.
func (c *Client) KeyHeights(chainID uint64) ([]uint32, error) {
	var res rpc.KeyHeightsResult
	if err := c.Call("bridge_getKeyHeights", rpc.ChainParam{ChainID: chainID}, &res); err != nil {
		return nil, err
	}
	return res.KeyHeights, nil
}

// ResolveMerkleProof verifies proof and returns the committed leaf.
func (c *Client) ResolveMerkleProof(params rpc.MerkleProofParam) ([]byte, error) {
	var res rpc.MerkleResult
	if err := c.Call("bridge_resolveMerkleProof", params, &res); err != nil {
		return nil, err
	}
	return hex.DecodeString(res.Value)
}

// ProcessedTx is the result of ProcessCrossChainTx. Value is the JSON
// rendering of the accepted Merkle value.
type ProcessedTx struct {
	TxHash string          `json:"tx_hash"`
	Value  json.RawMessage `json:"value"`
}

// ProcessCrossChainTx submits an inbound cross-chain proof.
func (c *Client) ProcessCrossChainTx(fromChainID uint64, height uint32, proof []byte) (*ProcessedTx, error) {
	params := rpc.CrossChainTxParam{
		FromChainID: fromChainID,
		Height:      height,
		Proof:       hex.EncodeToString(proof),
	}
	var res ProcessedTx
	if err := c.Call("bridge_processCrossChainTx", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// OutboundTx is an outbound transaction as returned by the node.
type OutboundTx struct {
	Hash string          `json:"hash"`
	Tx   json.RawMessage `json:"tx"`
}

// CreateCrossChainTx records an outbound transaction.
func (c *Client) CreateCrossChainTx(params rpc.CreateCrossChainTxParam) (*OutboundTx, error) {
	var res OutboundTx
	if err := c.Call("bridge_createCrossChainTx", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CrossChainTx looks up an outbound transaction by hash.
func (c *Client) CrossChainTx(hash string) (*OutboundTx, error) {
	var res OutboundTx
	if err := c.Call("bridge_getCrossChainTx", rpc.TxHashParam{Hash: hash}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
