package header

import (
	"fmt"

	"github.com/Klingon-tech/klingbridge/pkg/codec"
)

// BlockInfo is the remote chain's consensus metadata carried in a header's
// consensus payload. NewChainConfig is set exactly on epoch-boundary blocks.
type BlockInfo struct {
	Proposer           uint32       `json:"proposer"`
	VrfValue           []byte       `json:"vrf_value"`
	VrfProof           []byte       `json:"vrf_proof"`
	LastConfigBlockNum uint32       `json:"last_config_block_num"`
	NewChainConfig     *ChainConfig `json:"new_chain_config,omitempty"`
}

// DecodeBlockInfo reads a BlockInfo. The optional ChainConfig is read
// only when hasNewChainConfig is true; the encoding itself carries no
// marker, so the caller must know.
func DecodeBlockInfo(s *codec.Source, hasNewChainConfig bool) (*BlockInfo, error) {
	info, err := decodeBlockInfoFields(s)
	if err != nil {
		return nil, err
	}
	if hasNewChainConfig {
		info.NewChainConfig = new(ChainConfig)
		if err := info.NewChainConfig.Decode(s); err != nil {
			return nil, err
		}
	}
	return info, nil
}

func decodeBlockInfoFields(s *codec.Source) (*BlockInfo, error) {
	info := new(BlockInfo)
	var err error
	if info.Proposer, err = s.ReadU32(); err != nil {
		return nil, fmt.Errorf("block info proposer: %w", err)
	}
	if info.VrfValue, err = s.ReadVarBytes(); err != nil {
		return nil, fmt.Errorf("block info vrf value: %w", err)
	}
	if info.VrfProof, err = s.ReadVarBytes(); err != nil {
		return nil, fmt.Errorf("block info vrf proof: %w", err)
	}
	if info.LastConfigBlockNum, err = s.ReadU32(); err != nil {
		return nil, fmt.Errorf("block info last config block: %w", err)
	}
	return info, nil
}

func (b *BlockInfo) encodeFields(s *codec.Sink) {
	s.WriteU32(b.Proposer)
	s.WriteVarBytes(b.VrfValue)
	s.WriteVarBytes(b.VrfProof)
	s.WriteU32(b.LastConfigBlockNum)
}

// Encode writes the BlockInfo with no presence marker. The ChainConfig is
// appended when set.
func (b *BlockInfo) Encode(s *codec.Sink) {
	b.encodeFields(s)
	if b.NewChainConfig != nil {
		b.NewChainConfig.Encode(s)
	}
}

// HasRotation reports whether the block carries a committee rotation.
func (b *BlockInfo) HasRotation() bool {
	return b != nil && b.NewChainConfig != nil
}
