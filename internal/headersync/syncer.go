// Package headersync keeps the trusted view of remote chains: the
// committee of every epoch, the headers it signed, and the current
// height. Every mutation goes through SyncGenesisHeader or SyncHeader,
// serialized per chain and committed atomically.
package headersync

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	klog "github.com/Klingon-tech/klingbridge/internal/log"
	"github.com/Klingon-tech/klingbridge/internal/storage"
	"github.com/Klingon-tech/klingbridge/pkg/crypto"
	"github.com/Klingon-tech/klingbridge/pkg/header"
	"github.com/Klingon-tech/klingbridge/pkg/multisig"
	"github.com/Klingon-tech/klingbridge/pkg/types"
)

// Config selects the wire format and trust policy of a Syncer.
type Config struct {
	Format header.PayloadFormat // nil means header.TaggedFormat
	Quorum Quorum
}

// Result describes a header handed to the Syncer.
type Result struct {
	Header *header.Header
	Hash   types.Hash
	// Existing is set when a header was already stored at this height and
	// nothing changed.
	Existing bool
	// Rotation is set when the header installed a new committee.
	Rotation bool
}

// Syncer is the header sync state machine over a storage.DB.
type Syncer struct {
	db     storage.DB
	format header.PayloadFormat
	quorum Quorum
	stats  *Tracker

	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

// New creates a Syncer storing its state in db.
func New(db storage.DB, cfg Config) *Syncer {
	format := cfg.Format
	if format == nil {
		format = header.TaggedFormat{}
	}
	return &Syncer{
		db:     db,
		format: format,
		quorum: cfg.Quorum,
		stats:  NewTracker(),
		locks:  make(map[uint64]*sync.Mutex),
	}
}

// Format returns the payload format headers are decoded with.
func (s *Syncer) Format() header.PayloadFormat { return s.format }

// Quorum returns the committee quorum policy.
func (s *Syncer) Quorum() Quorum { return s.quorum }

// Stats returns the sync statistics tracker.
func (s *Syncer) Stats() *Tracker { return s.stats }

func (s *Syncer) lockChain(id uint64) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = new(sync.Mutex)
		s.locks[id] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *Syncer) chain(id uint64) *chainStore {
	return newChainStore(s.db, id, s.format)
}

// SyncGenesisHeader bootstraps a chain from a trusted header carrying the
// first committee. The header's signatures are not checked.
func (s *Syncer) SyncGenesisHeader(raw []byte) (*Result, error) {
	h, err := header.Decode(raw, s.format)
	if err != nil {
		return nil, fmt.Errorf("decode genesis header: %w", err)
	}
	unlock := s.lockChain(h.ChainID)
	defer unlock()

	cs := s.chain(h.ChainID)
	ok, err := cs.initialized()
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, fmt.Errorf("chain %d: %w", h.ChainID, ErrGenesisAlreadySet)
	}

	cfg := h.Rotation()
	if cfg == nil {
		return nil, fmt.Errorf("chain %d height %d: %w", h.ChainID, h.Height, ErrInvalidGenesisHeader)
	}
	if len(cfg.Peers) == 0 {
		return nil, fmt.Errorf("chain %d: %w: %w", h.ChainID, ErrInvalidGenesisHeader, ErrEmptyConsensusPeerList)
	}

	hash := h.Hash()
	b := cs.newBatch()
	defer b.discard()
	if err := b.putGenesis(h.Height); err != nil {
		return nil, err
	}
	if err := b.putCommittee(h.Height, cfg.Peers); err != nil {
		return nil, err
	}
	if err := b.putKeyHeights([]uint32{h.Height}); err != nil {
		return nil, err
	}
	if err := b.putHeader(hash, h.Height, raw); err != nil {
		return nil, err
	}
	if err := b.putCurrentHeight(h.Height); err != nil {
		return nil, err
	}
	if err := b.commit(); err != nil {
		return nil, fmt.Errorf("commit genesis: %w", err)
	}

	s.stats.RecordAccepted(h.ChainID, true, nil)
	logger := klog.WithChainID(h.ChainID)
	logger.Info().
		Str("component", "headersync").
		Uint32("height", h.Height).
		Str("hash", hash.String()).
		Int("committee", len(cfg.Peers)).
		Msg("Genesis header stored")

	return &Result{Header: h, Hash: hash, Rotation: true}, nil
}

// SyncHeader verifies a header against the chain's latest committee and
// stores it. A header at an already synced height is a no-op. On any
// error the stored state is unchanged.
func (s *Syncer) SyncHeader(raw []byte) (*Result, error) {
	h, err := header.Decode(raw, s.format)
	if err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	unlock := s.lockChain(h.ChainID)
	defer unlock()

	res, err := s.syncHeader(h, raw)
	logger := klog.WithChainID(h.ChainID).With().
		Str("component", "headersync").
		Uint32("height", h.Height).
		Logger()
	switch {
	case errors.Is(err, ErrStoreCorrupt):
		s.stats.RecordRejected(h.ChainID, err)
		logger.Error().Err(err).Msg("Consensus store corrupt")
	case err != nil:
		s.stats.RecordRejected(h.ChainID, err)
		logger.Warn().Err(err).Msg("Header rejected")
	case res.Existing:
		s.stats.RecordDuplicate(h.ChainID)
		logger.Debug().Str("hash", res.Hash.String()).Msg("Header already synced")
	default:
		signers := make([]string, len(h.Bookkeepers))
		for i, pk := range h.Bookkeepers {
			signers[i] = pk.Hex()
		}
		s.stats.RecordAccepted(h.ChainID, res.Rotation, signers)
		logger.Info().
			Str("hash", res.Hash.String()).
			Bool("rotation", res.Rotation).
			Int("signers", len(signers)).
			Msg("Header synced")
	}
	return res, err
}

func (s *Syncer) syncHeader(h *header.Header, raw []byte) (*Result, error) {
	cs := s.chain(h.ChainID)
	ok, err := cs.initialized()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("chain %d: %w", h.ChainID, ErrChainNotInitialized)
	}

	hash := h.Hash()
	exists, err := cs.hasHeight(h.Height)
	if err != nil {
		return nil, err
	}
	if exists {
		stored, err := cs.hashAt(h.Height)
		if err != nil {
			return nil, err
		}
		if stored != hash {
			logger := klog.WithChainID(h.ChainID)
			logger.Warn().
				Uint32("height", h.Height).
				Str("stored", stored.String()).
				Str("received", hash.String()).
				Msg("Conflicting header at synced height ignored")
		}
		return &Result{Header: h, Hash: stored, Existing: true}, nil
	}

	heights, err := cs.keyHeights()
	if err != nil {
		return nil, err
	}
	if len(heights) == 0 || heights[len(heights)-1] > h.Height {
		return nil, fmt.Errorf("chain %d height %d: %w", h.ChainID, h.Height, ErrKeyHeightNotFound)
	}
	keyHeight := heights[len(heights)-1]

	committee, err := cs.committee(keyHeight)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: no committee at key height %d", ErrStoreCorrupt, keyHeight)
		}
		return nil, err
	}
	if err := s.verifyHeader(h, hash, committee); err != nil {
		return nil, fmt.Errorf("chain %d height %d: %w", h.ChainID, h.Height, err)
	}

	rotation := h.Rotation()
	if rotation != nil {
		if len(rotation.Peers) == 0 {
			return nil, fmt.Errorf("chain %d height %d: %w", h.ChainID, h.Height, ErrEmptyConsensusPeerList)
		}
		if h.Height <= keyHeight {
			return nil, fmt.Errorf("%w: rotation at %d does not follow key height %d", ErrStoreCorrupt, h.Height, keyHeight)
		}
	}
	current, err := cs.currentHeight()
	if err != nil {
		return nil, err
	}

	b := cs.newBatch()
	defer b.discard()
	if rotation != nil {
		if err := b.putCommittee(h.Height, rotation.Peers); err != nil {
			return nil, err
		}
		if err := b.putKeyHeights(append(heights, h.Height)); err != nil {
			return nil, err
		}
	}

	if err := b.putHeader(hash, h.Height, raw); err != nil {
		return nil, err
	}
	if h.Height > current {
		if err := b.putCurrentHeight(h.Height); err != nil {
			return nil, err
		}
	}
	if err := b.commit(); err != nil {
		return nil, fmt.Errorf("commit header: %w", err)
	}
	return &Result{Header: h, Hash: hash, Rotation: rotation != nil}, nil
}

// verifyHeader checks the attached book-keepers against the committee and
// requires every one of them to have signed the header hash.
func (s *Syncer) verifyHeader(h *header.Header, hash types.Hash, committee []header.PeerConfig) error {
	if !s.quorum.Satisfied(len(h.Bookkeepers), len(committee)) {
		return fmt.Errorf("%w: %d of %d (%s)", ErrInsufficientBookkeepers,
			len(h.Bookkeepers), len(committee), s.quorum)
	}

	members := make(map[string]struct{}, len(committee))
	for _, p := range committee {
		members[strings.ToLower(string(p.ID))] = struct{}{}
	}
	seen := make(map[string]struct{}, len(h.Bookkeepers))
	for _, pk := range h.Bookkeepers {
		id := pk.Hex()
		if _, ok := members[id]; !ok {
			return fmt.Errorf("%w: %s", ErrInvalidPubkey, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate book-keeper %s", ErrInvalidPubkey, id)
		}
		seen[id] = struct{}{}
	}

	return multisig.VerifyThreshold(hash[:], h.Bookkeepers, len(h.Bookkeepers), h.SigData)
}

// Initialized reports whether chainID has a genesis header.
func (s *Syncer) Initialized(chainID uint64) (bool, error) {
	return s.chain(chainID).initialized()
}

// Chains lists the ids of all initialized chains in ascending order.
func (s *Syncer) Chains() ([]uint64, error) {
	return chainIDs(s.db)
}

// GenesisHeight returns the height of the chain's genesis header.
func (s *Syncer) GenesisHeight(chainID uint64) (uint32, error) {
	height, err := s.chain(chainID).genesisHeight()
	if errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("chain %d: %w", chainID, ErrChainNotInitialized)
	}
	return height, err
}

// HeaderByHeight returns the header synced at height. It returns an error
// wrapping storage.ErrNotFound when there is none.
func (s *Syncer) HeaderByHeight(chainID uint64, height uint32) (*header.Header, error) {
	cs := s.chain(chainID)
	hash, err := cs.hashAt(height)
	if err != nil {
		return nil, fmt.Errorf("chain %d header at %d: %w", chainID, height, err)
	}
	return s.headerByHash(cs, hash)
}

// HeaderByHash returns the synced header with hash.
func (s *Syncer) HeaderByHash(chainID uint64, hash types.Hash) (*header.Header, error) {
	return s.headerByHash(s.chain(chainID), hash)
}

func (s *Syncer) headerByHash(cs *chainStore, hash types.Hash) (*header.Header, error) {
	h, err := cs.header(hash)
	if err != nil {
		return nil, fmt.Errorf("chain %d header %s: %w", cs.id, hash, err)
	}
	return h, nil
}

// RawHeader returns the stored wire encoding of the header with hash.
func (s *Syncer) RawHeader(chainID uint64, hash types.Hash) ([]byte, error) {
	raw, err := s.chain(chainID).rawHeader(hash)
	if err != nil {
		return nil, fmt.Errorf("chain %d header %s: %w", chainID, hash, err)
	}
	return raw, nil
}

// HeadersFrom returns up to max stored raw headers of chainID at heights
// >= from, in ascending height order. Synced heights need not be
// contiguous.
func (s *Syncer) HeadersFrom(chainID uint64, from uint32, max int) ([][]byte, error) {
	if max <= 0 {
		return nil, nil
	}
	cs := s.chain(chainID)
	var hashes []types.Hash
	err := storage.ForEachFrom(cs.db, prefixHeight, heightKey(prefixHeight, from), func(key, value []byte) error {
		if len(key) != len(prefixHeight)+4 {
			return nil
		}
		payload, err := unseal(key, value)
		if err != nil {
			return err
		}
		if len(payload) != types.HashSize {
			return fmt.Errorf("%w: height index %x has %d bytes", ErrStoreCorrupt, key, len(payload))
		}
		var hash types.Hash
		copy(hash[:], payload)
		hashes = append(hashes, hash)
		if len(hashes) == max {
			return errStopIteration
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, fmt.Errorf("chain %d headers from %d: %w", chainID, from, err)
	}

	out := make([][]byte, 0, len(hashes))
	for _, hash := range hashes {
		raw, err := cs.rawHeader(hash)
		if err != nil {
			return nil, fmt.Errorf("chain %d header %s: %w", chainID, hash, err)
		}
		out = append(out, raw)
	}
	return out, nil
}

// CurrentHeight returns the highest synced height of chainID.
func (s *Syncer) CurrentHeight(chainID uint64) (uint32, error) {
	height, err := s.chain(chainID).currentHeight()
	if errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("chain %d: %w", chainID, ErrChainNotInitialized)
	}
	return height, err
}

// Committee returns the committee that took over at keyHeight.
func (s *Syncer) Committee(chainID uint64, keyHeight uint32) ([]header.PeerConfig, error) {
	peers, err := s.chain(chainID).committee(keyHeight)
	if err != nil {
		return nil, fmt.Errorf("chain %d committee at %d: %w", chainID, keyHeight, err)
	}
	return peers, nil
}

// KeyHeights returns the heights at which chainID's committee changed,
// oldest first.
func (s *Syncer) KeyHeights(chainID uint64) ([]uint32, error) {
	return s.chain(chainID).keyHeights()
}

// CommitteeKeys decodes the public keys of a committee. Members whose id
// is not a key encoding are skipped.
func CommitteeKeys(peers []header.PeerConfig) []crypto.PublicKey {
	keys := make([]crypto.PublicKey, 0, len(peers))
	for _, p := range peers {
		pk, err := p.PublicKey()
		if err != nil {
			continue
		}
		keys = append(keys, pk)
	}
	return keys
}
