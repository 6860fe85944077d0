package header

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingbridge/pkg/codec"
	"github.com/Klingon-tech/klingbridge/pkg/crypto"
)

// PeerConfig is one committee member. ID is the member's identity as the
// remote chain publishes it, normally the hex of its public key encoding.
type PeerConfig struct {
	Index uint32
	ID    []byte
}

// PeerFromPublicKey builds the committee entry for pub.
func PeerFromPublicKey(index uint32, pub crypto.PublicKey) PeerConfig {
	return PeerConfig{Index: index, ID: []byte(pub.Hex())}
}

// PublicKey decodes ID as a hex public key encoding.
func (p PeerConfig) PublicKey() (crypto.PublicKey, error) {
	raw, err := hex.DecodeString(string(p.ID))
	if err != nil {
		return crypto.PublicKey{}, fmt.Errorf("peer %d id is not hex: %w", p.Index, err)
	}
	return crypto.ParsePublicKey(raw)
}

func (p *PeerConfig) Encode(s *codec.Sink) {
	s.WriteU32(p.Index)
	s.WriteVarBytes(p.ID)
}

func (p *PeerConfig) Decode(s *codec.Source) error {
	var err error
	if p.Index, err = s.ReadU32(); err != nil {
		return fmt.Errorf("peer index: %w", err)
	}
	if p.ID, err = s.ReadVarBytes(); err != nil {
		return fmt.Errorf("peer id: %w", err)
	}
	return nil
}

type peerJSON struct {
	Index uint32 `json:"index"`
	ID    string `json:"id"`
}

// MarshalJSON renders ID as a string.
func (p PeerConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(peerJSON{Index: p.Index, ID: string(p.ID)})
}

func (p *PeerConfig) UnmarshalJSON(data []byte) error {
	var v peerJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	p.Index = v.Index
	p.ID = []byte(v.ID)
	return nil
}

// ChainConfig is a full committee rotation record. It is only carried by
// epoch-boundary headers.
type ChainConfig struct {
	Version              uint32       `json:"version"`
	View                 uint32       `json:"view"`
	NetworkSize          uint32       `json:"network_size"`
	ConsensusQuorum      uint32       `json:"consensus_quorum"`
	BlockMsgDelay        uint64       `json:"block_msg_delay"`
	HashMsgDelay         uint64       `json:"hash_msg_delay"`
	PeerHandshakeTimeout uint64       `json:"peer_handshake_timeout"`
	Peers                []PeerConfig `json:"peers"`
	PosTable             []uint32     `json:"pos_table"`
	MaxBlockChangeView   uint32       `json:"max_block_change_view"`
}

func (c *ChainConfig) Encode(s *codec.Sink) {
	s.WriteU32(c.Version)
	s.WriteU32(c.View)
	s.WriteU32(c.NetworkSize)
	s.WriteU32(c.ConsensusQuorum)
	s.WriteU64(c.BlockMsgDelay)
	s.WriteU64(c.HashMsgDelay)
	s.WriteU64(c.PeerHandshakeTimeout)
	EncodePeers(s, c.Peers)
	s.WriteVarUint(uint64(len(c.PosTable)))
	for _, pos := range c.PosTable {
		s.WriteU32(pos)
	}
	s.WriteU32(c.MaxBlockChangeView)
}

func (c *ChainConfig) Decode(s *codec.Source) error {
	var err error
	if c.Version, err = s.ReadU32(); err != nil {
		return fmt.Errorf("config version: %w", err)
	}
	if c.View, err = s.ReadU32(); err != nil {
		return fmt.Errorf("config view: %w", err)
	}
	if c.NetworkSize, err = s.ReadU32(); err != nil {
		return fmt.Errorf("config network size: %w", err)
	}
	if c.ConsensusQuorum, err = s.ReadU32(); err != nil {
		return fmt.Errorf("config quorum: %w", err)
	}
	if c.BlockMsgDelay, err = s.ReadU64(); err != nil {
		return fmt.Errorf("config block msg delay: %w", err)
	}
	if c.HashMsgDelay, err = s.ReadU64(); err != nil {
		return fmt.Errorf("config hash msg delay: %w", err)
	}
	if c.PeerHandshakeTimeout, err = s.ReadU64(); err != nil {
		return fmt.Errorf("config handshake timeout: %w", err)
	}
	if c.Peers, err = DecodePeers(s); err != nil {
		return err
	}
	n, err := s.ReadCount(4)
	if err != nil {
		return fmt.Errorf("config pos table: %w", err)
	}
	c.PosTable = make([]uint32, n)
	for i := range c.PosTable {
		if c.PosTable[i], err = s.ReadU32(); err != nil {
			return fmt.Errorf("config pos table: %w", err)
		}
	}
	if c.MaxBlockChangeView, err = s.ReadU32(); err != nil {
		return fmt.Errorf("config max block change view: %w", err)
	}
	return nil
}

// EncodePeers writes a var-uint count followed by each peer.
func EncodePeers(s *codec.Sink, peers []PeerConfig) {
	s.WriteVarUint(uint64(len(peers)))
	for i := range peers {
		peers[i].Encode(s)
	}
}

// DecodePeers reads a list written by EncodePeers.
func DecodePeers(s *codec.Source) ([]PeerConfig, error) {
	// index (4) + empty id length (1)
	n, err := s.ReadCount(5)
	if err != nil {
		return nil, fmt.Errorf("peer count: %w", err)
	}
	peers := make([]PeerConfig, n)
	for i := range peers {
		if err := peers[i].Decode(s); err != nil {
			return nil, err
		}
	}
	return peers, nil
}
