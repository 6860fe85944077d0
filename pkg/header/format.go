package header

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Klingon-tech/klingbridge/pkg/codec"
)

// ErrPayloadMismatch is returned when encoding a BlockInfo whose rotation
// presence disagrees with what the format implies for its height.
var ErrPayloadMismatch = errors.New("block info rotation does not match payload format")

// PayloadFormat decides how the presence of BlockInfo.NewChainConfig is
// signalled inside a header's consensus payload. Formats are not
// interchangeable: the same bytes decode differently under each.
// DecodePayload sees every payload, including empty ones.
type PayloadFormat interface {
	DecodePayload(height uint32, payload []byte) (*BlockInfo, error)
	EncodePayload(height uint32, info *BlockInfo) ([]byte, error)
	String() string
}

// TaggedFormat writes a 0/1 byte after LastConfigBlockNum announcing the
// optional ChainConfig.
type TaggedFormat struct{}

func (TaggedFormat) DecodePayload(_ uint32, payload []byte) (*BlockInfo, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	src := codec.NewSource(payload)
	info, err := decodeBlockInfoFields(src)
	if err != nil {
		return nil, err
	}
	present, err := src.ReadBool()
	if err != nil {
		return nil, fmt.Errorf("block info config flag: %w", err)
	}
	if present {
		info.NewChainConfig = new(ChainConfig)
		if err := info.NewChainConfig.Decode(src); err != nil {
			return nil, err
		}
	}
	if err := src.Finish(); err != nil {
		return nil, fmt.Errorf("consensus payload: %w", err)
	}
	return info, nil
}

func (TaggedFormat) EncodePayload(_ uint32, info *BlockInfo) ([]byte, error) {
	s := codec.NewSink(64)
	info.encodeFields(s)
	s.WriteBool(info.NewChainConfig != nil)
	if info.NewChainConfig != nil {
		info.NewChainConfig.Encode(s)
	}
	return s.Bytes(), nil
}

func (TaggedFormat) String() string { return "tagged" }

// EpochFormat carries no marker: heights divisible by Length are epoch
// boundaries and always carry a ChainConfig. An empty payload is only
// valid off a boundary.
type EpochFormat struct {
	Length uint32
}

func (f EpochFormat) isBoundary(height uint32) bool {
	return f.Length > 0 && height%f.Length == 0
}

func (f EpochFormat) DecodePayload(height uint32, payload []byte) (*BlockInfo, error) {
	boundary := f.isBoundary(height)
	if len(payload) == 0 && !boundary {
		return nil, nil
	}
	src := codec.NewSource(payload)
	info, err := DecodeBlockInfo(src, boundary)
	if err != nil {
		return nil, err
	}
	if err := src.Finish(); err != nil {
		return nil, fmt.Errorf("consensus payload: %w", err)
	}
	return info, nil
}

func (f EpochFormat) EncodePayload(height uint32, info *BlockInfo) ([]byte, error) {
	if info.HasRotation() != f.isBoundary(height) {
		return nil, fmt.Errorf("%w: height %d, epoch length %d", ErrPayloadMismatch, height, f.Length)
	}
	return codec.Encode(info), nil
}

func (f EpochFormat) String() string { return "epoch:" + strconv.FormatUint(uint64(f.Length), 10) }

// ParsePayloadFormat maps a configuration name to a format. "epoch"
// requires a non-zero epoch length.
func ParsePayloadFormat(name string, epochLength uint32) (PayloadFormat, error) {
	switch strings.ToLower(name) {
	case "", "tagged":
		return TaggedFormat{}, nil
	case "epoch":
		if epochLength == 0 {
			return nil, fmt.Errorf("epoch payload format needs a non-zero epoch length")
		}
		return EpochFormat{Length: epochLength}, nil
	default:
		return nil, fmt.Errorf("unknown payload format %q", name)
	}
}
