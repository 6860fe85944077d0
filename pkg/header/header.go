// Package header implements the remote chain's block header and the
// consensus records embedded in it, in the exact byte layout the remote
// chain signs.
package header

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingbridge/pkg/codec"
	"github.com/Klingon-tech/klingbridge/pkg/crypto"
	"github.com/Klingon-tech/klingbridge/pkg/types"
)

// Header is a remote chain block header plus the book-keeper keys and
// signatures attached to it. Only the fields up to NextBookkeeper are
// hashed and signed.
type Header struct {
	Version          uint32
	ChainID          uint64
	PrevBlockHash    types.Hash
	TransactionsRoot types.Hash
	CrossStateRoot   types.Hash
	BlockRoot        types.Hash
	Timestamp        uint32
	Height           uint32
	ConsensusData    uint64
	ConsensusPayload []byte
	NextBookkeeper   types.Address

	Bookkeepers []crypto.PublicKey
	SigData     []crypto.Signature

	// BlockInfo is ConsensusPayload decoded under the header's payload
	// format. Nil when the payload is empty and the format expects no
	// rotation at this height.
	BlockInfo *BlockInfo
}

// Decode parses a raw header. format decides how the consensus payload's
// optional committee rotation is recognised.
func Decode(raw []byte, format PayloadFormat) (*Header, error) {
	src := codec.NewSource(raw)
	h := new(Header)
	if err := h.decodePartial(src); err != nil {
		return nil, err
	}
	if err := h.decodeProof(src); err != nil {
		return nil, err
	}
	if err := src.Finish(); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	info, err := format.DecodePayload(h.Height, h.ConsensusPayload)
	if err != nil {
		return nil, fmt.Errorf("consensus payload: %w", err)
	}
	h.BlockInfo = info
	return h, nil
}

func (h *Header) decodePartial(s *codec.Source) error {
	var err error
	if h.Version, err = s.ReadU32(); err != nil {
		return fmt.Errorf("header version: %w", err)
	}
	if h.ChainID, err = s.ReadU64(); err != nil {
		return fmt.Errorf("header chain id: %w", err)
	}
	if h.PrevBlockHash, err = s.ReadHash(); err != nil {
		return fmt.Errorf("header prev hash: %w", err)
	}
	if h.TransactionsRoot, err = s.ReadHash(); err != nil {
		return fmt.Errorf("header transactions root: %w", err)
	}
	if h.CrossStateRoot, err = s.ReadHash(); err != nil {
		return fmt.Errorf("header cross state root: %w", err)
	}
	if h.BlockRoot, err = s.ReadHash(); err != nil {
		return fmt.Errorf("header block root: %w", err)
	}
	if h.Timestamp, err = s.ReadU32(); err != nil {
		return fmt.Errorf("header timestamp: %w", err)
	}
	if h.Height, err = s.ReadU32(); err != nil {
		return fmt.Errorf("header height: %w", err)
	}
	if h.ConsensusData, err = s.ReadU64(); err != nil {
		return fmt.Errorf("header consensus data: %w", err)
	}
	if h.ConsensusPayload, err = s.ReadVarBytes(); err != nil {
		return fmt.Errorf("header consensus payload: %w", err)
	}
	if h.NextBookkeeper, err = s.ReadAddress(); err != nil {
		return fmt.Errorf("header next bookkeeper: %w", err)
	}
	return nil
}

func (h *Header) decodeProof(s *codec.Source) error {
	n, err := s.ReadCount(2)
	if err != nil {
		return fmt.Errorf("bookkeeper count: %w", err)
	}
	h.Bookkeepers = make([]crypto.PublicKey, n)
	for i := range h.Bookkeepers {
		raw, err := s.ReadVarBytes()
		if err != nil {
			return fmt.Errorf("bookkeeper %d: %w", i, err)
		}
		if h.Bookkeepers[i], err = crypto.ParsePublicKey(raw); err != nil {
			return fmt.Errorf("%w: bookkeeper %d: %v", codec.ErrInvalidValue, i, err)
		}
	}

	if n, err = s.ReadCount(2); err != nil {
		return fmt.Errorf("signature count: %w", err)
	}
	h.SigData = make([]crypto.Signature, n)
	for i := range h.SigData {
		raw, err := s.ReadVarBytes()
		if err != nil {
			return fmt.Errorf("signature %d: %w", i, err)
		}
		if h.SigData[i], err = crypto.ParseSignature(raw); err != nil {
			return fmt.Errorf("%w: signature %d: %v", codec.ErrInvalidValue, i, err)
		}
	}
	return nil
}

func (h *Header) encodePartial(s *codec.Sink) {
	s.WriteU32(h.Version)
	s.WriteU64(h.ChainID)
	s.WriteHash(h.PrevBlockHash)
	s.WriteHash(h.TransactionsRoot)
	s.WriteHash(h.CrossStateRoot)
	s.WriteHash(h.BlockRoot)
	s.WriteU32(h.Timestamp)
	s.WriteU32(h.Height)
	s.WriteU64(h.ConsensusData)
	s.WriteVarBytes(h.ConsensusPayload)
	s.WriteAddress(h.NextBookkeeper)
}

// Encode writes the full wire form: partial body, book-keepers, signatures.
func (h *Header) Encode(s *codec.Sink) {
	h.encodePartial(s)
	s.WriteVarUint(uint64(len(h.Bookkeepers)))
	for _, pk := range h.Bookkeepers {
		s.WriteVarBytes(pk.Bytes())
	}
	s.WriteVarUint(uint64(len(h.SigData)))
	for _, sig := range h.SigData {
		s.WriteVarBytes(sig.Bytes())
	}
}

// Bytes returns the full wire encoding.
func (h *Header) Bytes() []byte {
	return codec.Encode(h)
}

// PartialBytes returns the signed body without book-keepers and signatures.
func (h *Header) PartialBytes() []byte {
	s := codec.NewSink(256)
	h.encodePartial(s)
	return s.Bytes()
}

// Hash returns the block hash: SHA-256 applied twice to PartialBytes.
func (h *Header) Hash() types.Hash {
	return crypto.DoubleSha256(h.PartialBytes())
}

// SetBlockInfo encodes info into ConsensusPayload under format.
func (h *Header) SetBlockInfo(format PayloadFormat, info *BlockInfo) error {
	payload, err := format.EncodePayload(h.Height, info)
	if err != nil {
		return err
	}
	h.ConsensusPayload = payload
	h.BlockInfo = info
	return nil
}

// Sign appends the signer's key and its signature over Hash. The body
// must not change afterwards.
func (h *Header) Sign(signer crypto.Signer) error {
	digest := h.Hash()
	sig, err := signer.Sign(digest[:])
	if err != nil {
		return fmt.Errorf("sign header %d: %w", h.Height, err)
	}
	h.Bookkeepers = append(h.Bookkeepers, signer.PublicKey())
	h.SigData = append(h.SigData, sig)
	return nil
}

// Rotation returns the committee rotation carried by the header, if any.
func (h *Header) Rotation() *ChainConfig {
	if h.BlockInfo == nil {
		return nil
	}
	return h.BlockInfo.NewChainConfig
}

type headerJSON struct {
	Hash             types.Hash    `json:"hash"`
	Version          uint32        `json:"version"`
	ChainID          uint64        `json:"chain_id"`
	PrevBlockHash    types.Hash    `json:"prev_block_hash"`
	TransactionsRoot types.Hash    `json:"transactions_root"`
	CrossStateRoot   types.Hash    `json:"cross_state_root"`
	BlockRoot        types.Hash    `json:"block_root"`
	Timestamp        uint32        `json:"timestamp"`
	Height           uint32        `json:"height"`
	ConsensusData    uint64        `json:"consensus_data"`
	ConsensusPayload string        `json:"consensus_payload"`
	BlockInfo        *BlockInfo    `json:"block_info,omitempty"`
	NextBookkeeper   types.Address `json:"next_bookkeeper"`
	Bookkeepers      []string      `json:"bookkeepers"`
	SigData          []string      `json:"sig_data"`
}

// MarshalJSON renders the header with hex byte fields and its hash.
func (h *Header) MarshalJSON() ([]byte, error) {
	v := headerJSON{
		Hash:             h.Hash(),
		Version:          h.Version,
		ChainID:          h.ChainID,
		PrevBlockHash:    h.PrevBlockHash,
		TransactionsRoot: h.TransactionsRoot,
		CrossStateRoot:   h.CrossStateRoot,
		BlockRoot:        h.BlockRoot,
		Timestamp:        h.Timestamp,
		Height:           h.Height,
		ConsensusData:    h.ConsensusData,
		ConsensusPayload: hex.EncodeToString(h.ConsensusPayload),
		BlockInfo:        h.BlockInfo,
		NextBookkeeper:   h.NextBookkeeper,
		Bookkeepers:      make([]string, len(h.Bookkeepers)),
		SigData:          make([]string, len(h.SigData)),
	}
	for i, pk := range h.Bookkeepers {
		v.Bookkeepers[i] = pk.Hex()
	}
	for i, sig := range h.SigData {
		v.SigData[i] = hex.EncodeToString(sig.Bytes())
	}
	return json.Marshal(v)
}
