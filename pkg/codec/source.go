package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/klingbridge/pkg/types"
)

// Source reads an encoding front to back. Slices returned by the read
// methods are copies and never alias the input.
type Source struct {
	buf []byte
	off int
}

// NewSource returns a source positioned at the start of data.
func NewSource(data []byte) *Source {
	return &Source{buf: data}
}

// Remaining returns the number of unread bytes.
func (s *Source) Remaining() int {
	return len(s.buf) - s.off
}

// Empty reports whether every byte has been consumed.
func (s *Source) Empty() bool {
	return s.Remaining() == 0
}

// Offset returns the number of bytes consumed so far.
func (s *Source) Offset() int {
	return s.off
}

// Finish returns ErrInputTooLong if unread bytes remain.
func (s *Source) Finish() error {
	if n := s.Remaining(); n > 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrInputTooLong, n)
	}
	return nil
}

// next returns the next n bytes without copying.
func (s *Source) next(n int) ([]byte, error) {
	if n < 0 || s.Remaining() < n {
		return nil, ErrInputTooShort
	}
	b := s.buf[s.off : s.off+n]
	s.off += n
	return b, nil
}

func (s *Source) ReadU8() (uint8, error) {
	b, err := s.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBool reads a single 0/1 byte. Any other value is ErrInvalidValue.
func (s *Source) ReadBool() (bool, error) {
	v, err := s.ReadU8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: bool byte 0x%02x", ErrInvalidValue, v)
	}
}

func (s *Source) ReadU16() (uint16, error) {
	b, err := s.next(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (s *Source) ReadU32() (uint32, error) {
	b, err := s.next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (s *Source) ReadU64() (uint64, error) {
	b, err := s.next(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadVarUint reads a var-uint. Non-minimal encodings are accepted.
func (s *Source) ReadVarUint() (uint64, error) {
	tag, err := s.ReadU8()
	if err != nil {
		return 0, err
	}
	switch tag {
	case tagU16:
		v, err := s.ReadU16()
		return uint64(v), err
	case tagU32:
		v, err := s.ReadU32()
		return uint64(v), err
	case tagU64:
		return s.ReadU64()
	default:
		return uint64(tag), nil
	}
}

// ReadBytes reads exactly n raw bytes.
func (s *Source) ReadBytes(n int) ([]byte, error) {
	b, err := s.next(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadVarBytes reads a var-uint length and that many bytes. A length
// larger than the remaining input is ErrInputTooShort.
func (s *Source) ReadVarBytes() ([]byte, error) {
	n, err := s.ReadVarUint()
	if err != nil {
		return nil, err
	}
	if n > uint64(s.Remaining()) {
		return nil, ErrInputTooShort
	}
	return s.ReadBytes(int(n))
}

func (s *Source) ReadHash() (types.Hash, error) {
	var h types.Hash
	b, err := s.next(types.HashSize)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

func (s *Source) ReadAddress() (types.Address, error) {
	var a types.Address
	b, err := s.next(types.AddressSize)
	if err != nil {
		return a, err
	}
	copy(a[:], b)
	return a, nil
}

// ReadCount reads a var-uint element count for a list whose elements each
// occupy at least minSize bytes. Counts that cannot fit in the remaining
// input are rejected before any allocation.
func (s *Source) ReadCount(minSize int) (int, error) {
	n, err := s.ReadVarUint()
	if err != nil {
		return 0, err
	}
	if minSize < 1 {
		minSize = 1
	}
	if n > uint64(s.Remaining()/minSize) {
		return 0, ErrInputTooShort
	}
	return int(n), nil
}
