package headersync

import (
	"sort"
	"sync"
	"time"
)

// ChainStats holds in-memory sync statistics for one remote chain.
// Stats reset on node restart.
type ChainStats struct {
	ChainID      uint64    `json:"chain_id"`
	Accepted     uint64    `json:"accepted"`
	Duplicates   uint64    `json:"duplicates"`
	Rejected     uint64    `json:"rejected"`
	Rotations    uint64    `json:"rotations"`
	LastAccepted time.Time `json:"last_accepted"` // zero if never accepted
	LastRejected time.Time `json:"last_rejected"` // zero if never rejected
	LastError    string    `json:"last_error,omitempty"`
}

// SignerStats counts the headers a book-keeper signed.
type SignerStats struct {
	PubKey     string    `json:"pubkey"` // hex of the scheme-tagged key
	Signed     uint64    `json:"signed"`
	LastSigned time.Time `json:"last_signed"`
}

// Tracker records sync outcomes per chain and per book-keeper.
// It has no effect on verification.
type Tracker struct {
	mu      sync.RWMutex
	chains  map[uint64]*ChainStats
	signers map[string]*SignerStats // hex(pubkey) -> stats
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		chains:  make(map[uint64]*ChainStats),
		signers: make(map[string]*SignerStats),
	}
}

// RecordAccepted records a newly stored header and the book-keepers that
// signed it.
func (t *Tracker) RecordAccepted(chainID uint64, rotation bool, signers []string) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.getOrCreate(chainID)
	s.Accepted++
	s.LastAccepted = now
	if rotation {
		s.Rotations++
	}
	for _, key := range signers {
		ss, ok := t.signers[key]
		if !ok {
			ss = &SignerStats{PubKey: key}
			t.signers[key] = ss
		}
		ss.Signed++
		ss.LastSigned = now
	}
}

// RecordDuplicate records a header that was already stored.
func (t *Tracker) RecordDuplicate(chainID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.getOrCreate(chainID).Duplicates++
}

// RecordRejected records a header that failed verification.
func (t *Tracker) RecordRejected(chainID uint64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.getOrCreate(chainID)
	s.Rejected++
	s.LastRejected = time.Now()
	if err != nil {
		s.LastError = err.Error()
	}
}

// GetChainStats returns a copy of the stats for chainID, or nil if not tracked.
func (t *Tracker) GetChainStats(chainID uint64) *ChainStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.chains[chainID]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// GetAllChainStats returns copies of all chain stats ordered by chain id.
func (t *Tracker) GetAllChainStats() []*ChainStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*ChainStats, 0, len(t.chains))
	for _, s := range t.chains {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// GetSignerStats returns a copy of the stats for the hex key, or nil.
func (t *Tracker) GetSignerStats(pubKey string) *SignerStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.signers[pubKey]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// GetAllSignerStats returns copies of all signer stats ordered by key.
func (t *Tracker) GetAllSignerStats() []*SignerStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*SignerStats, 0, len(t.signers))
	for _, s := range t.signers {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PubKey < out[j].PubKey })
	return out
}

func (t *Tracker) getOrCreate(chainID uint64) *ChainStats {
	s, ok := t.chains[chainID]
	if !ok {
		s = &ChainStats{ChainID: chainID}
		t.chains[chainID] = s
	}
	return s
}
