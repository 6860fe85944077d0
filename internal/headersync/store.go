package headersync

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingbridge/internal/storage"
	"github.com/Klingon-tech/klingbridge/pkg/codec"
	"github.com/Klingon-tech/klingbridge/pkg/crypto"
	"github.com/Klingon-tech/klingbridge/pkg/header"
	"github.com/Klingon-tech/klingbridge/pkg/types"
)

// Root keys, shared by every chain.
var (
	prefixChain   = []byte("c/") // c/<chainid(8)>/ -> per-chain namespace
	prefixGenesis = []byte("g/") // g/<chainid(8)> -> genesis height(4)
)

// Per-chain keys, relative to the chain namespace.
var (
	prefixHeader     = []byte("b/") // b/<hash(32)> -> raw header
	prefixHeight     = []byte("h/") // h/<height(4)> -> hash(32)
	prefixCommittee  = []byte("k/") // k/<height(4)> -> encoded peers
	keyKeyHeights    = []byte("s/keyheights")
	keyCurrentHeight = []byte("s/height")
)

// chainStore reads and stages writes for one remote chain. Every value is
// sealed with a checksum so that silent corruption surfaces as
// ErrStoreCorrupt instead of a misparse.
type chainStore struct {
	id     uint64
	root   storage.DB
	db     *storage.PrefixDB
	format header.PayloadFormat
}

func newChainStore(root storage.DB, id uint64, format header.PayloadFormat) *chainStore {
	return &chainStore{
		id:     id,
		root:   root,
		db:     storage.NewPrefixDB(root, chainPrefix(id)),
		format: format,
	}
}

func chainPrefix(id uint64) []byte {
	p := make([]byte, len(prefixChain)+8+1)
	copy(p, prefixChain)
	binary.BigEndian.PutUint64(p[len(prefixChain):], id)
	p[len(p)-1] = '/'
	return p
}

func genesisKey(id uint64) []byte {
	k := make([]byte, len(prefixGenesis)+8)
	copy(k, prefixGenesis)
	binary.BigEndian.PutUint64(k[len(prefixGenesis):], id)
	return k
}

func headerKey(hash types.Hash) []byte {
	k := make([]byte, len(prefixHeader)+types.HashSize)
	copy(k, prefixHeader)
	copy(k[len(prefixHeader):], hash[:])
	return k
}

func heightKey(prefix []byte, height uint32) []byte {
	k := make([]byte, len(prefix)+4)
	copy(k, prefix)
	binary.BigEndian.PutUint32(k[len(prefix):], height)
	return k
}

func seal(payload []byte) []byte {
	sum := crypto.Checksum(payload)
	out := make([]byte, types.HashSize+len(payload))
	copy(out, sum[:])
	copy(out[types.HashSize:], payload)
	return out
}

func unseal(key, data []byte) ([]byte, error) {
	if len(data) < types.HashSize {
		return nil, fmt.Errorf("%w: record %x truncated", ErrStoreCorrupt, key)
	}
	payload := data[types.HashSize:]
	sum := crypto.Checksum(payload)
	if !bytes.Equal(sum[:], data[:types.HashSize]) {
		return nil, fmt.Errorf("%w: record %x checksum mismatch", ErrStoreCorrupt, key)
	}
	return payload, nil
}

func (cs *chainStore) get(key []byte) ([]byte, error) {
	data, err := cs.db.Get(key)
	if err != nil {
		return nil, err
	}
	return unseal(key, data)
}

// initialized reports whether the chain has a genesis header.
func (cs *chainStore) initialized() (bool, error) {
	return cs.root.Has(genesisKey(cs.id))
}

// genesisHeight returns the height of the chain's genesis header.
func (cs *chainStore) genesisHeight() (uint32, error) {
	data, err := cs.root.Get(genesisKey(cs.id))
	if err != nil {
		return 0, err
	}
	payload, err := unseal(genesisKey(cs.id), data)
	if err != nil {
		return 0, err
	}
	if len(payload) != 4 {
		return 0, fmt.Errorf("%w: genesis marker has %d bytes", ErrStoreCorrupt, len(payload))
	}
	return binary.BigEndian.Uint32(payload), nil
}

// rawHeader returns the stored wire bytes of the header with hash.
func (cs *chainStore) rawHeader(hash types.Hash) ([]byte, error) {
	return cs.get(headerKey(hash))
}

func (cs *chainStore) header(hash types.Hash) (*header.Header, error) {
	raw, err := cs.rawHeader(hash)
	if err != nil {
		return nil, err
	}
	h, err := header.Decode(raw, cs.format)
	if err != nil {
		return nil, fmt.Errorf("%w: stored header %s: %v", ErrStoreCorrupt, hash, err)
	}
	return h, nil
}

// hashAt returns the hash of the header synced at height.
func (cs *chainStore) hashAt(height uint32) (types.Hash, error) {
	key := heightKey(prefixHeight, height)
	payload, err := cs.get(key)
	if err != nil {
		return types.Hash{}, err
	}
	if len(payload) != types.HashSize {
		return types.Hash{}, fmt.Errorf("%w: height index %d has %d bytes", ErrStoreCorrupt, height, len(payload))
	}
	var hash types.Hash
	copy(hash[:], payload)
	return hash, nil
}

func (cs *chainStore) hasHeight(height uint32) (bool, error) {
	return cs.db.Has(heightKey(prefixHeight, height))
}

func (cs *chainStore) committee(keyHeight uint32) ([]header.PeerConfig, error) {
	payload, err := cs.get(heightKey(prefixCommittee, keyHeight))
	if err != nil {
		return nil, err
	}
	src := codec.NewSource(payload)
	peers, err := header.DecodePeers(src)
	if err == nil {
		err = src.Finish()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: committee at %d: %v", ErrStoreCorrupt, keyHeight, err)
	}
	return peers, nil
}

// keyHeights returns the committee rotation heights in insertion order.
// A missing list is empty. A list that is not strictly increasing is
// reported as corrupt.
func (cs *chainStore) keyHeights() ([]uint32, error) {
	payload, err := cs.get(keyKeyHeights)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	src := codec.NewSource(payload)
	n, err := src.ReadCount(4)
	if err != nil {
		return nil, fmt.Errorf("%w: key heights: %v", ErrStoreCorrupt, err)
	}
	heights := make([]uint32, n)
	for i := range heights {
		if heights[i], err = src.ReadU32(); err != nil {
			return nil, fmt.Errorf("%w: key heights: %v", ErrStoreCorrupt, err)
		}
		if i > 0 && heights[i] <= heights[i-1] {
			return nil, fmt.Errorf("%w: key heights not increasing at %d (%d after %d)",
				ErrStoreCorrupt, i, heights[i], heights[i-1])
		}
	}
	if err := src.Finish(); err != nil {
		return nil, fmt.Errorf("%w: key heights: %v", ErrStoreCorrupt, err)
	}
	return heights, nil
}

func (cs *chainStore) currentHeight() (uint32, error) {
	payload, err := cs.get(keyCurrentHeight)
	if err != nil {
		return 0, err
	}
	if len(payload) != 4 {
		return 0, fmt.Errorf("%w: current height has %d bytes", ErrStoreCorrupt, len(payload))
	}
	return binary.BigEndian.Uint32(payload), nil
}

// chainBatch stages one atomic update to a chain's state.
type chainBatch struct {
	cs    *chainStore
	root  storage.Batch
	chain storage.Batch
}

func (cs *chainStore) newBatch() *chainBatch {
	root := storage.NewBatch(cs.root)
	return &chainBatch{cs: cs, root: root, chain: cs.db.WrapBatch(root)}
}

func (b *chainBatch) putGenesis(height uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], height)
	return b.root.Put(genesisKey(b.cs.id), seal(buf[:]))
}

func (b *chainBatch) putHeader(hash types.Hash, height uint32, raw []byte) error {
	if err := b.chain.Put(headerKey(hash), seal(raw)); err != nil {
		return fmt.Errorf("header put: %w", err)
	}
	if err := b.chain.Put(heightKey(prefixHeight, height), seal(hash[:])); err != nil {
		return fmt.Errorf("height index put: %w", err)
	}
	return nil
}

func (b *chainBatch) putCommittee(keyHeight uint32, peers []header.PeerConfig) error {
	s := codec.NewSink(64)
	header.EncodePeers(s, peers)
	if err := b.chain.Put(heightKey(prefixCommittee, keyHeight), seal(s.Bytes())); err != nil {
		return fmt.Errorf("committee put: %w", err)
	}
	return nil
}

func (b *chainBatch) putKeyHeights(heights []uint32) error {
	s := codec.NewSink(1 + 4*len(heights))
	s.WriteVarUint(uint64(len(heights)))
	for _, h := range heights {
		s.WriteU32(h)
	}
	if err := b.chain.Put(keyKeyHeights, seal(s.Bytes())); err != nil {
		return fmt.Errorf("key heights put: %w", err)
	}
	return nil
}

func (b *chainBatch) putCurrentHeight(height uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], height)
	if err := b.chain.Put(keyCurrentHeight, seal(buf[:])); err != nil {
		return fmt.Errorf("current height put: %w", err)
	}
	return nil
}

func (b *chainBatch) commit() error {
	return b.root.Commit()
}

func (b *chainBatch) discard() {
	b.root.Discard()
}

// chainIDs lists every chain with a genesis header, in ascending order.
// errStopIteration ends a ForEach early.
var errStopIteration = errors.New("stop iteration")

func chainIDs(root storage.DB) ([]uint64, error) {
	var ids []uint64
	err := root.ForEach(prefixGenesis, func(key, _ []byte) error {
		if len(key) != len(prefixGenesis)+8 {
			return fmt.Errorf("%w: genesis key %x", ErrStoreCorrupt, key)
		}
		ids = append(ids, binary.BigEndian.Uint64(key[len(prefixGenesis):]))
		return nil
	})
	return ids, err
}
