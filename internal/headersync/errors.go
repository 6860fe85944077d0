package headersync

import "errors"

// State-precondition errors.
var (
	ErrGenesisAlreadySet    = errors.New("genesis header already set")
	ErrInvalidGenesisHeader = errors.New("genesis header carries no committee")
	ErrChainNotInitialized  = errors.New("chain has no genesis header")
	ErrKeyHeightNotFound    = errors.New("no key height at or below header height")
)

// Trust-validation errors.
var (
	ErrInsufficientBookkeepers = errors.New("not enough book-keepers for committee quorum")
	ErrInvalidPubkey           = errors.New("book-keeper is not a committee member")
	ErrEmptyConsensusPeerList  = errors.New("committee rotation has no peers")
)

// ErrStoreCorrupt reports a stored record that violates the store's own
// invariants. It is never the caller's fault.
var ErrStoreCorrupt = errors.New("consensus store corrupt")
