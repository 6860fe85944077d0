package merkle

import (
	"fmt"

	"github.com/Klingon-tech/klingbridge/pkg/types"
)

// ComputeRoot returns the root over raw leaves.
//
// Algorithm:
//   - 0 leaves: zero hash
//   - 1 leaf: its leaf hash
//   - n leaves: split at the largest power of two below n and hash the
//     two subtree roots
func ComputeRoot(leaves [][]byte) types.Hash {
	if len(leaves) == 0 {
		return types.Hash{}
	}
	return subtreeRoot(leaves)
}

func subtreeRoot(leaves [][]byte) types.Hash {
	if len(leaves) == 1 {
		return LeafHash(leaves[0])
	}
	k := splitPoint(len(leaves))
	return NodeHash(subtreeRoot(leaves[:k]), subtreeRoot(leaves[k:]))
}

// Prove builds the inclusion proof for leaves[index].
func Prove(leaves [][]byte, index int) (*Proof, error) {
	if index < 0 || index >= len(leaves) {
		return nil, fmt.Errorf("leaf index %d out of range [0, %d)", index, len(leaves))
	}
	leaf := make([]byte, len(leaves[index]))
	copy(leaf, leaves[index])
	return &Proof{Leaf: leaf, Nodes: auditPath(leaves, index)}, nil
}

// auditPath returns siblings from the leaf level up.
func auditPath(leaves [][]byte, index int) []ProofNode {
	if len(leaves) <= 1 {
		return nil
	}
	k := splitPoint(len(leaves))
	if index < k {
		path := auditPath(leaves[:k], index)
		return append(path, ProofNode{Position: Right, Hash: subtreeRoot(leaves[k:])})
	}
	path := auditPath(leaves[k:], index-k)
	return append(path, ProofNode{Position: Left, Hash: subtreeRoot(leaves[:k])})
}

// splitPoint returns the largest power of two strictly less than n (n > 1).
func splitPoint(n int) int {
	k := 1
	for k<<1 < n {
		k <<= 1
	}
	return k
}
