// Package merkle verifies inclusion proofs against a committed root and
// builds the matching trees. Leaves and internal nodes are hashed with
// distinct one-byte prefixes.
package merkle

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingbridge/pkg/codec"
	"github.com/Klingon-tech/klingbridge/pkg/crypto"
	"github.com/Klingon-tech/klingbridge/pkg/types"
)

// ErrProofRootMismatch is returned when a proof does not lead to the
// expected root.
var ErrProofRootMismatch = errors.New("merkle proof root mismatch")

const (
	leafPrefix = 0x00
	nodePrefix = 0x01
)

// Position says on which side of the running hash a sibling sits.
type Position uint8

const (
	Left  Position = 0
	Right Position = 1
)

func (p Position) String() string {
	if p == Left {
		return "left"
	}
	return "right"
}

// ProofNode is one sibling on the path from leaf to root.
type ProofNode struct {
	Position Position
	Hash     types.Hash
}

// Proof is a raw leaf and its sibling path in leaf-to-root order.
type Proof struct {
	Leaf  []byte
	Nodes []ProofNode
}

// DecodeProof parses a var-bytes leaf followed by (position, hash) pairs
// until the input is exhausted.
func DecodeProof(data []byte) (*Proof, error) {
	src := codec.NewSource(data)
	leaf, err := src.ReadVarBytes()
	if err != nil {
		return nil, fmt.Errorf("proof leaf: %w", err)
	}
	p := &Proof{Leaf: leaf}
	for !src.Empty() {
		pos, err := src.ReadU8()
		if err != nil {
			return nil, err
		}
		if pos != uint8(Left) && pos != uint8(Right) {
			return nil, fmt.Errorf("%w: proof node %d position 0x%02x", codec.ErrInvalidValue, len(p.Nodes), pos)
		}
		h, err := src.ReadHash()
		if err != nil {
			return nil, fmt.Errorf("proof node %d hash: %w", len(p.Nodes), err)
		}
		p.Nodes = append(p.Nodes, ProofNode{Position: Position(pos), Hash: h})
	}
	return p, nil
}

// Encode writes the proof in the form DecodeProof reads.
func (p *Proof) Encode(s *codec.Sink) {
	s.WriteVarBytes(p.Leaf)
	for _, n := range p.Nodes {
		s.WriteU8(uint8(n.Position))
		s.WriteHash(n.Hash)
	}
}

// Bytes returns the encoded proof.
func (p *Proof) Bytes() []byte {
	return codec.Encode(p)
}

// Root recomputes the root the proof commits to.
func (p *Proof) Root() types.Hash {
	current := LeafHash(p.Leaf)
	for _, n := range p.Nodes {
		if n.Position == Left {
			current = NodeHash(n.Hash, current)
		} else {
			current = NodeHash(current, n.Hash)
		}
	}
	return current
}

// Resolve decodes proofBytes, checks it against expectedRoot and returns
// the raw leaf. The leaf is not interpreted.
func Resolve(proofBytes []byte, expectedRoot types.Hash) ([]byte, error) {
	p, err := DecodeProof(proofBytes)
	if err != nil {
		return nil, err
	}
	if got := p.Root(); got != expectedRoot {
		return nil, fmt.Errorf("%w: computed %s, expected %s", ErrProofRootMismatch, got, expectedRoot)
	}
	return p.Leaf, nil
}

// LeafHash hashes a raw leaf: sha256(0x00 || leaf).
func LeafHash(leaf []byte) types.Hash {
	buf := make([]byte, 0, 1+len(leaf))
	buf = append(buf, leafPrefix)
	buf = append(buf, leaf...)
	return crypto.Sha256(buf)
}

// NodeHash hashes two children: sha256(0x01 || left || right).
func NodeHash(left, right types.Hash) types.Hash {
	var buf [1 + 2*types.HashSize]byte
	buf[0] = nodePrefix
	copy(buf[1:], left[:])
	copy(buf[1+types.HashSize:], right[:])
	return crypto.Sha256(buf[:])
}
