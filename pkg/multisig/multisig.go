// Package multisig checks that a set of signatures reaches a threshold
// of distinct signers from a trusted key set.
package multisig

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingbridge/pkg/crypto"
)

var (
	ErrInsufficientSignatures      = errors.New("insufficient signatures")
	ErrSignatureVerificationFailed = errors.New("signature verification failed")
)

// VerifyThreshold requires at least threshold signatures over message and
// that every signature verifies against a distinct key in trusted. Each
// signature is matched to the first unused key that accepts it; a key is
// consumed by at most one signature.
func VerifyThreshold(message []byte, trusted []crypto.PublicKey, threshold int, signatures []crypto.Signature) error {
	if len(signatures) < threshold {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientSignatures, len(signatures), threshold)
	}

	used := make([]bool, len(trusted))
	for i, sig := range signatures {
		matched := false
		for j, key := range trusted {
			if used[j] {
				continue
			}
			if crypto.Verify(key, message, sig) {
				used[j] = true
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Errorf("%w: signature %d", ErrSignatureVerificationFailed, i)
		}
	}
	return nil
}
