// Package codec implements the little-endian binary format shared with
// remote chain headers: fixed-width integers, compact var-uints, length
// prefixed byte strings and fixed-size hashes and addresses.
package codec

import "errors"

// Decode failures. Every decoder in this module reports one of these,
// possibly wrapped with the name of the field being read.
var (
	ErrInputTooShort = errors.New("input too short")
	ErrInputTooLong  = errors.New("input too long")
	ErrInvalidValue  = errors.New("invalid value")
)

// Var-uint tag bytes.
const (
	tagU16 = 0xfd
	tagU32 = 0xfe
	tagU64 = 0xff
)

// Encoder is a record that can append its canonical encoding to a sink.
type Encoder interface {
	Encode(s *Sink)
}

// Decoder is a record that can populate itself from a source.
type Decoder interface {
	Decode(s *Source) error
}

// Encode returns the canonical encoding of v.
func Encode(v Encoder) []byte {
	s := NewSink(0)
	v.Encode(s)
	return s.Bytes()
}

// Decode decodes data into v as a top-level record. Bytes left over after
// v has consumed its fields are reported as ErrInputTooLong.
func Decode(data []byte, v Decoder) error {
	src := NewSource(data)
	if err := v.Decode(src); err != nil {
		return err
	}
	return src.Finish()
}
