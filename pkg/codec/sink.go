package codec

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingbridge/pkg/types"
)

// Sink accumulates an encoding. The zero value is ready to use.
type Sink struct {
	buf []byte
}

// NewSink returns a sink with capacity for size bytes.
func NewSink(size int) *Sink {
	return &Sink{buf: make([]byte, 0, size)}
}

// Bytes returns the encoded bytes. The slice aliases the sink's buffer.
func (s *Sink) Bytes() []byte {
	return s.buf
}

// Len returns the number of bytes written so far.
func (s *Sink) Len() int {
	return len(s.buf)
}

func (s *Sink) WriteU8(v uint8) {
	s.buf = append(s.buf, v)
}

func (s *Sink) WriteBool(v bool) {
	if v {
		s.WriteU8(1)
		return
	}
	s.WriteU8(0)
}

func (s *Sink) WriteU16(v uint16) {
	s.buf = binary.LittleEndian.AppendUint16(s.buf, v)
}

func (s *Sink) WriteU32(v uint32) {
	s.buf = binary.LittleEndian.AppendUint32(s.buf, v)
}

func (s *Sink) WriteU64(v uint64) {
	s.buf = binary.LittleEndian.AppendUint64(s.buf, v)
}

// WriteVarUint writes v in the shortest var-uint form.
func (s *Sink) WriteVarUint(v uint64) {
	switch {
	case v < tagU16:
		s.WriteU8(uint8(v))
	case v <= 0xffff:
		s.WriteU8(tagU16)
		s.WriteU16(uint16(v))
	case v <= 0xffffffff:
		s.WriteU8(tagU32)
		s.WriteU32(uint32(v))
	default:
		s.WriteU8(tagU64)
		s.WriteU64(v)
	}
}

// WriteBytes appends b verbatim, without a length prefix.
func (s *Sink) WriteBytes(b []byte) {
	s.buf = append(s.buf, b...)
}

// WriteVarBytes writes a var-uint length followed by b.
func (s *Sink) WriteVarBytes(b []byte) {
	s.WriteVarUint(uint64(len(b)))
	s.WriteBytes(b)
}

func (s *Sink) WriteHash(h types.Hash) {
	s.WriteBytes(h[:])
}

func (s *Sink) WriteAddress(a types.Address) {
	s.WriteBytes(a[:])
}
