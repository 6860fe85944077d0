package headersync

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Klingon-tech/klingbridge/internal/storage"
	"github.com/Klingon-tech/klingbridge/pkg/codec"
	"github.com/Klingon-tech/klingbridge/pkg/crosstx"
	"github.com/Klingon-tech/klingbridge/pkg/crypto"
	"github.com/Klingon-tech/klingbridge/pkg/header"
	"github.com/Klingon-tech/klingbridge/pkg/merkle"
	"github.com/Klingon-tech/klingbridge/pkg/multisig"
	"github.com/Klingon-tech/klingbridge/pkg/types"
)

func TestSyncGenesisHeader(t *testing.T) {
	s, _ := newTestSyncer(t, QuorumStrict)
	committee := newSigners(t, 3)
	g := bootstrap(t, s, 7, 0, committee)

	if ok, _ := s.Initialized(7); !ok {
		t.Fatal("chain 7 not initialized")
	}
	if ok, _ := s.Initialized(8); ok {
		t.Fatal("chain 8 initialized")
	}
	height, err := s.CurrentHeight(7)
	if err != nil || height != 0 {
		t.Fatalf("CurrentHeight = %d, %v; want 0", height, err)
	}
	heights, err := s.KeyHeights(7)
	if err != nil || len(heights) != 1 || heights[0] != 0 {
		t.Fatalf("KeyHeights = %v, %v; want [0]", heights, err)
	}
	peers, err := s.Committee(7, 0)
	if err != nil {
		t.Fatalf("Committee: %v", err)
	}
	if len(peers) != 3 || string(peers[1].ID) != committee[1].PublicKey().Hex() {
		t.Fatalf("Committee = %+v", peers)
	}
	if keys := CommitteeKeys(peers); len(keys) != 3 || !keys[2].Equal(committee[2].PublicKey()) {
		t.Fatalf("CommitteeKeys = %v", keys)
	}

	got, err := s.HeaderByHeight(7, 0)
	if err != nil {
		t.Fatalf("HeaderByHeight: %v", err)
	}
	if got.Hash() != g.Hash() {
		t.Fatalf("HeaderByHeight hash = %s, want %s", got.Hash(), g.Hash())
	}
	byHash, err := s.HeaderByHash(7, g.Hash())
	if err != nil || byHash.Height != 0 {
		t.Fatalf("HeaderByHash = %v, %v", byHash, err)
	}
	raw, err := s.RawHeader(7, g.Hash())
	if err != nil || !bytes.Equal(raw, g.Bytes()) {
		t.Fatalf("RawHeader mismatch: %v", err)
	}
	gh, err := s.GenesisHeight(7)
	if err != nil || gh != 0 {
		t.Fatalf("GenesisHeight = %d, %v", gh, err)
	}
	chains, err := s.Chains()
	if err != nil || len(chains) != 1 || chains[0] != 7 {
		t.Fatalf("Chains = %v, %v", chains, err)
	}
}

func TestSyncGenesisHeader_Twice(t *testing.T) {
	s, db := newTestSyncer(t, QuorumStrict)
	bootstrap(t, s, 7, 0, newSigners(t, 3))
	before := snapshot(t, db)

	other := makeHeader(t, testHeader{chainID: 7, height: 5, rotation: rotationTo(newSigners(t, 2))})
	_, err := s.SyncGenesisHeader(other.Bytes())
	if !errors.Is(err, ErrGenesisAlreadySet) {
		t.Fatalf("second genesis err = %v, want ErrGenesisAlreadySet", err)
	}
	assertUnchanged(t, before, snapshot(t, db))
}

func TestSyncGenesisHeader_Invalid(t *testing.T) {
	s, db := newTestSyncer(t, QuorumStrict)

	noRotation := makeHeader(t, testHeader{chainID: 7, height: 0})
	if _, err := s.SyncGenesisHeader(noRotation.Bytes()); !errors.Is(err, ErrInvalidGenesisHeader) {
		t.Fatalf("no rotation err = %v, want ErrInvalidGenesisHeader", err)
	}

	empty := makeHeader(t, testHeader{chainID: 7, height: 0, rotation: &header.ChainConfig{}})
	_, err := s.SyncGenesisHeader(empty.Bytes())
	if !errors.Is(err, ErrInvalidGenesisHeader) || !errors.Is(err, ErrEmptyConsensusPeerList) {
		t.Fatalf("empty rotation err = %v", err)
	}

	if _, err := s.SyncGenesisHeader([]byte{1, 2, 3}); !errors.Is(err, codec.ErrInputTooShort) {
		t.Fatalf("truncated genesis err = %v, want ErrInputTooShort", err)
	}
	if n := len(snapshot(t, db)); n != 0 {
		t.Fatalf("store has %d keys after failed genesis", n)
	}
}

func TestSyncHeader_NotInitialized(t *testing.T) {
	s, _ := newTestSyncer(t, QuorumStrict)
	signers := newSigners(t, 1)
	h := makeHeader(t, testHeader{chainID: 9, height: 1}, signers...)
	if _, err := s.SyncHeader(h.Bytes()); !errors.Is(err, ErrChainNotInitialized) {
		t.Fatalf("err = %v, want ErrChainNotInitialized", err)
	}
	if _, err := s.CurrentHeight(9); !errors.Is(err, ErrChainNotInitialized) {
		t.Fatalf("CurrentHeight err = %v, want ErrChainNotInitialized", err)
	}
	if _, err := s.GenesisHeight(9); !errors.Is(err, ErrChainNotInitialized) {
		t.Fatalf("GenesisHeight err = %v, want ErrChainNotInitialized", err)
	}
}

func TestSyncHeader_Accepted(t *testing.T) {
	s, _ := newTestSyncer(t, QuorumStrict)
	committee := newSigners(t, 4)
	bootstrap(t, s, 1, 10, committee)

	// 3 of 4 is more than two thirds.
	h := makeHeader(t, testHeader{chainID: 1, height: 11}, committee[3], committee[0], committee[2])
	res, err := s.SyncHeader(h.Bytes())
	if err != nil {
		t.Fatalf("SyncHeader: %v", err)
	}
	if res.Existing || res.Rotation || res.Hash != h.Hash() {
		t.Fatalf("unexpected result %+v", res)
	}
	if height, _ := s.CurrentHeight(1); height != 11 {
		t.Fatalf("CurrentHeight = %d, want 11", height)
	}

	st := s.Stats().GetChainStats(1)
	if st.Accepted != 2 || st.Rejected != 0 {
		t.Fatalf("stats = %+v", st)
	}
	if ss := s.Stats().GetSignerStats(committee[3].PublicKey().Hex()); ss == nil || ss.Signed != 1 {
		t.Fatalf("signer stats = %+v", ss)
	}
}

func TestSyncHeader_Idempotent(t *testing.T) {
	s, db := newTestSyncer(t, QuorumStrict)
	committee := newSigners(t, 3)
	bootstrap(t, s, 1, 0, committee)

	h := makeHeader(t, testHeader{chainID: 1, height: 5}, committee...)
	if _, err := s.SyncHeader(h.Bytes()); err != nil {
		t.Fatalf("SyncHeader: %v", err)
	}
	before := snapshot(t, db)

	res, err := s.SyncHeader(h.Bytes())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !res.Existing || res.Hash != h.Hash() {
		t.Fatalf("replay result %+v", res)
	}

	// A different header at a synced height is ignored, even unsigned.
	other := makeHeader(t, testHeader{chainID: 1, height: 5, crossStateRoot: types.Hash{9}})
	res, err = s.SyncHeader(other.Bytes())
	if err != nil || !res.Existing || res.Hash != h.Hash() {
		t.Fatalf("conflicting replay = %+v, %v", res, err)
	}
	assertUnchanged(t, before, snapshot(t, db))

	if d := s.Stats().GetChainStats(1).Duplicates; d != 2 {
		t.Fatalf("Duplicates = %d, want 2", d)
	}
}

func TestSyncHeader_TrustRejections(t *testing.T) {
	committee := newSigners(t, 3)
	outsider := newSigners(t, 1)[0]

	wrongMessage := func(t *testing.T) *header.Header {
		h := makeHeader(t, testHeader{chainID: 1, height: 7}, committee...)
		other := makeHeader(t, testHeader{chainID: 1, height: 8}, committee...)
		h.SigData[1] = other.SigData[1]
		return h
	}
	unknownScheme := func(t *testing.T) *header.Header {
		h := makeHeader(t, testHeader{chainID: 1, height: 7}, committee...)
		h.SigData[2] = crypto.Signature{Scheme: 0x7f, Sig: h.SigData[2].Sig}
		return h
	}
	missingSig := func(t *testing.T) *header.Header {
		h := makeHeader(t, testHeader{chainID: 1, height: 7}, committee...)
		h.SigData = h.SigData[:2]
		return h
	}
	duplicate := func(t *testing.T) *header.Header {
		return makeHeader(t, testHeader{chainID: 1, height: 7}, committee[0], committee[0], committee[1])
	}

	tests := []struct {
		name  string
		build func(t *testing.T) *header.Header
		want  error
	}{
		{"too few book-keepers", func(t *testing.T) *header.Header {
			return makeHeader(t, testHeader{chainID: 1, height: 7}, committee[0], committee[1])
		}, ErrInsufficientBookkeepers},
		{"outsider", func(t *testing.T) *header.Header {
			return makeHeader(t, testHeader{chainID: 1, height: 7}, committee[0], committee[1], outsider)
		}, ErrInvalidPubkey},
		{"duplicate book-keeper", duplicate, ErrInvalidPubkey},
		{"signature over another header", wrongMessage, multisig.ErrSignatureVerificationFailed},
		{"unknown signature scheme", unknownScheme, multisig.ErrSignatureVerificationFailed},
		{"missing signature", missingSig, multisig.ErrInsufficientSignatures},
		{"empty rotation", func(t *testing.T) *header.Header {
			return makeHeader(t, testHeader{chainID: 1, height: 7, rotation: &header.ChainConfig{}}, committee...)
		}, ErrEmptyConsensusPeerList},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, db := newTestSyncer(t, QuorumStrict)
			bootstrap(t, s, 1, 0, committee)
			before := snapshot(t, db)

			_, err := s.SyncHeader(tt.build(t).Bytes())
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			assertUnchanged(t, before, snapshot(t, db))
			if st := s.Stats().GetChainStats(1); st.Rejected != 1 || st.LastError == "" {
				t.Fatalf("stats = %+v", st)
			}
		})
	}
}

func TestSyncHeader_DecodeError(t *testing.T) {
	s, _ := newTestSyncer(t, QuorumStrict)
	committee := newSigners(t, 1)
	bootstrap(t, s, 1, 0, committee)

	raw := makeHeader(t, testHeader{chainID: 1, height: 1}, committee...).Bytes()
	if _, err := s.SyncHeader(append(raw, 0)); !errors.Is(err, codec.ErrInputTooLong) {
		t.Fatalf("trailing byte err = %v, want ErrInputTooLong", err)
	}
	if _, err := s.SyncHeader(raw[:len(raw)-3]); !errors.Is(err, codec.ErrInputTooShort) {
		t.Fatalf("truncated err = %v, want ErrInputTooShort", err)
	}
}

func TestSyncHeader_EpochMonotonicity(t *testing.T) {
	s, _ := newTestSyncer(t, QuorumStrict)
	old := newSigners(t, 3)
	next := newSigners(t, 3)
	bootstrap(t, s, 2, 100, old)

	below := makeHeader(t, testHeader{chainID: 2, height: 99}, old...)
	if _, err := s.SyncHeader(below.Bytes()); !errors.Is(err, ErrKeyHeightNotFound) {
		t.Fatalf("below genesis err = %v, want ErrKeyHeightNotFound", err)
	}

	rot := makeHeader(t, testHeader{chainID: 2, height: 300, rotation: rotationTo(next)}, old...)
	res, err := s.SyncHeader(rot.Bytes())
	if err != nil || !res.Rotation {
		t.Fatalf("rotation = %+v, %v", res, err)
	}

	// Between the two epochs the old committee is no longer consulted.
	mid := makeHeader(t, testHeader{chainID: 2, height: 200}, old...)
	if _, err := s.SyncHeader(mid.Bytes()); !errors.Is(err, ErrKeyHeightNotFound) {
		t.Fatalf("backward header err = %v, want ErrKeyHeightNotFound", err)
	}

	stale := makeHeader(t, testHeader{chainID: 2, height: 301}, old...)
	if _, err := s.SyncHeader(stale.Bytes()); !errors.Is(err, ErrInvalidPubkey) {
		t.Fatalf("old committee after rotation err = %v, want ErrInvalidPubkey", err)
	}
	fresh := makeHeader(t, testHeader{chainID: 2, height: 301}, next...)
	if _, err := s.SyncHeader(fresh.Bytes()); err != nil {
		t.Fatalf("new committee: %v", err)
	}
}

func TestSyncHeader_CurrentHeightNeverDecreases(t *testing.T) {
	s, _ := newTestSyncer(t, QuorumStrict)
	committee := newSigners(t, 2)
	bootstrap(t, s, 3, 0, committee)

	for _, height := range []uint32{50, 20, 40} {
		h := makeHeader(t, testHeader{chainID: 3, height: height}, committee...)
		if _, err := s.SyncHeader(h.Bytes()); err != nil {
			t.Fatalf("SyncHeader(%d): %v", height, err)
		}
	}
	if height, _ := s.CurrentHeight(3); height != 50 {
		t.Fatalf("CurrentHeight = %d, want 50", height)
	}
	if _, err := s.HeaderByHeight(3, 20); err != nil {
		t.Fatalf("HeaderByHeight(20): %v", err)
	}
}

func TestSyncer_ChainsAreIsolated(t *testing.T) {
	s, _ := newTestSyncer(t, QuorumStrict)
	a := newSigners(t, 1)
	b := newSigners(t, 1)
	bootstrap(t, s, 1, 0, a)
	bootstrap(t, s, 2, 0, b)

	cross := makeHeader(t, testHeader{chainID: 2, height: 1}, a...)
	if _, err := s.SyncHeader(cross.Bytes()); !errors.Is(err, ErrInvalidPubkey) {
		t.Fatalf("chain 1 committee on chain 2 err = %v, want ErrInvalidPubkey", err)
	}
	own := makeHeader(t, testHeader{chainID: 2, height: 1}, b...)
	if _, err := s.SyncHeader(own.Bytes()); err != nil {
		t.Fatalf("chain 2: %v", err)
	}
	if height, _ := s.CurrentHeight(1); height != 0 {
		t.Fatalf("chain 1 height = %d, want 0", height)
	}
	chains, _ := s.Chains()
	if len(chains) != 2 || chains[0] != 1 || chains[1] != 2 {
		t.Fatalf("Chains = %v", chains)
	}
}

func TestSyncer_NotFound(t *testing.T) {
	s, _ := newTestSyncer(t, QuorumStrict)
	bootstrap(t, s, 1, 0, newSigners(t, 1))

	if _, err := s.HeaderByHeight(1, 42); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("HeaderByHeight err = %v, want ErrNotFound", err)
	}
	if _, err := s.HeaderByHash(1, types.Hash{1}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("HeaderByHash err = %v, want ErrNotFound", err)
	}
	if _, err := s.Committee(1, 42); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Committee err = %v, want ErrNotFound", err)
	}
	if heights, err := s.KeyHeights(5); err != nil || len(heights) != 0 {
		t.Fatalf("KeyHeights(unknown) = %v, %v", heights, err)
	}
}

func TestSyncer_StoreCorruption(t *testing.T) {
	t.Run("checksum", func(t *testing.T) {
		s, db := newTestSyncer(t, QuorumStrict)
		g := bootstrap(t, s, 1, 0, newSigners(t, 1))

		key := append(chainPrefix(1), headerKey(g.Hash())...)
		data, _ := db.Get(key)
		data[len(data)-1] ^= 0xff
		db.Put(key, data)

		if _, err := s.HeaderByHash(1, g.Hash()); !errors.Is(err, ErrStoreCorrupt) {
			t.Fatalf("err = %v, want ErrStoreCorrupt", err)
		}
	})

	t.Run("key heights not increasing", func(t *testing.T) {
		s, db := newTestSyncer(t, QuorumStrict)
		committee := newSigners(t, 1)
		bootstrap(t, s, 1, 0, committee)

		b := newChainStore(db, 1, s.Format()).newBatch()
		b.putKeyHeights([]uint32{0, 10, 10})
		if err := b.commit(); err != nil {
			t.Fatal(err)
		}

		h := makeHeader(t, testHeader{chainID: 1, height: 20}, committee...)
		_, err := s.SyncHeader(h.Bytes())
		if !errors.Is(err, ErrStoreCorrupt) {
			t.Fatalf("err = %v, want ErrStoreCorrupt", err)
		}
		if _, err := s.KeyHeights(1); !errors.Is(err, ErrStoreCorrupt) {
			t.Fatalf("KeyHeights err = %v, want ErrStoreCorrupt", err)
		}
	})

	t.Run("missing committee", func(t *testing.T) {
		s, db := newTestSyncer(t, QuorumStrict)
		committee := newSigners(t, 1)
		bootstrap(t, s, 1, 0, committee)
		db.Delete(append(chainPrefix(1), heightKey(prefixCommittee, 0)...))

		h := makeHeader(t, testHeader{chainID: 1, height: 3}, committee...)
		if _, err := s.SyncHeader(h.Bytes()); !errors.Is(err, ErrStoreCorrupt) {
			t.Fatalf("err = %v, want ErrStoreCorrupt", err)
		}
	})
}

func TestSyncer_EpochFormat(t *testing.T) {
	format := header.EpochFormat{Length: 100}
	s := New(storage.NewMemory(), Config{Format: format, Quorum: QuorumPoly})
	old := newSigners(t, 3)
	next := newSigners(t, 4)
	bootstrap(t, s, 5, 0, old)

	inner := makeHeader(t, testHeader{chainID: 5, height: 50, format: format}, old[0], old[1])
	if _, err := s.SyncHeader(inner.Bytes()); err != nil {
		t.Fatalf("height 50: %v", err)
	}
	boundary := makeHeader(t, testHeader{chainID: 5, height: 100, rotation: rotationTo(next), format: format}, old...)
	if _, err := s.SyncHeader(boundary.Bytes()); err != nil {
		t.Fatalf("height 100: %v", err)
	}
	heights, _ := s.KeyHeights(5)
	if len(heights) != 2 || heights[1] != 100 {
		t.Fatalf("KeyHeights = %v, want [0 100]", heights)
	}

	// Read back under the same format.
	got, err := s.HeaderByHeight(5, 100)
	if err != nil || got.Rotation() == nil || len(got.Rotation().Peers) != 4 {
		t.Fatalf("HeaderByHeight(100) = %v, %v", got, err)
	}

	// The tagged encoding of a boundary header is not valid here.
	tagged := makeHeader(t, testHeader{chainID: 5, height: 200, rotation: rotationTo(next)}, next...)
	if _, err := s.SyncHeader(tagged.Bytes()); err == nil {
		t.Fatal("tagged payload accepted under epoch format")
	}
}

func TestSyncer_Badger(t *testing.T) {
	db, err := storage.NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	defer db.Close()

	s := New(db, Config{})
	committee := newSigners(t, 3)
	bootstrap(t, s, 7, 0, committee)
	h := makeHeader(t, testHeader{chainID: 7, height: 1}, committee...)
	if _, err := s.SyncHeader(h.Bytes()); err != nil {
		t.Fatalf("SyncHeader: %v", err)
	}

	reopened := New(db, Config{})
	got, err := reopened.HeaderByHeight(7, 1)
	if err != nil || got.Hash() != h.Hash() {
		t.Fatalf("HeaderByHeight = %v, %v", got, err)
	}
}

func TestSyncHeader_ConcurrentRotations(t *testing.T) {
	s, _ := newTestSyncer(t, QuorumStrict)
	committee := newSigners(t, 3)
	bootstrap(t, s, 1, 0, committee)

	headers := make([][]byte, 0, 40)
	for height := uint32(1); height <= 20; height++ {
		rot := makeHeader(t, testHeader{chainID: 1, height: height * 10, rotation: rotationTo(committee)}, committee...)
		plain := makeHeader(t, testHeader{chainID: 1, height: height*10 + 1}, committee...)
		headers = append(headers, rot.Bytes(), plain.Bytes())
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(headers)*2)
	for i := 0; i < 2; i++ {
		for _, raw := range headers {
			wg.Add(1)
			go func(raw []byte) {
				defer wg.Done()
				if _, err := s.SyncHeader(raw); err != nil && !errors.Is(err, ErrKeyHeightNotFound) {
					errs <- err
				}
			}(raw)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}

	heights, err := s.KeyHeights(1)
	if err != nil {
		t.Fatalf("KeyHeights: %v", err)
	}
	if len(heights) < 2 {
		t.Fatalf("no rotation applied: %v", heights)
	}
	for _, kh := range heights {
		if _, err := s.Committee(1, kh); err != nil {
			t.Fatalf("committee at %d: %v", kh, err)
		}
	}
}

// End to end: bootstrap, a partially signed header, a rotation, a header
// behind the rotation, and a Merkle proof against the rotation header.
func TestSyncer_Scenario(t *testing.T) {
	abc := newSigners(t, 3)
	def := newSigners(t, 3)

	leaves := make([][]byte, 5)
	for i := range leaves {
		v := &crosstx.ToMerkleValue{
			PolyTxHash:  []byte(fmt.Sprintf("poly-%d", i)),
			FromChainID: 7,
			Tx: crosstx.Transaction{
				SourceTxHash:   types.Hash{byte(i)},
				CrossChainTxID: []byte{byte(i)},
				FromContract:   []byte("lock-proxy"),
				ToChainID:      2,
				ToContract:     []byte("unlock-proxy"),
				Method:         "unlock",
				Args:           []byte{0xaa, byte(i)},
			},
		}
		leaves[i] = codec.Encode(v)
	}
	root := merkle.ComputeRoot(leaves)

	for _, tt := range []struct {
		quorum      Quorum
		acceptTwoOf bool
	}{
		{QuorumStrict, false},
		{QuorumPoly, true},
	} {
		t.Run(tt.quorum.String(), func(t *testing.T) {
			s, _ := newTestSyncer(t, tt.quorum)
			bootstrap(t, s, 7, 0, abc)

			h100 := makeHeader(t, testHeader{chainID: 7, height: 100}, abc[0], abc[1])
			_, err := s.SyncHeader(h100.Bytes())
			if tt.acceptTwoOf {
				if err != nil {
					t.Fatalf("height 100: %v", err)
				}
				if height, _ := s.CurrentHeight(7); height != 100 {
					t.Fatalf("CurrentHeight = %d, want 100", height)
				}
			} else if !errors.Is(err, ErrInsufficientBookkeepers) {
				t.Fatalf("height 100 err = %v, want ErrInsufficientBookkeepers", err)
			}

			h200 := makeHeader(t, testHeader{chainID: 7, height: 200, rotation: rotationTo(def), crossStateRoot: root}, abc...)
			if _, err := s.SyncHeader(h200.Bytes()); err != nil {
				t.Fatalf("height 200: %v", err)
			}
			heights, _ := s.KeyHeights(7)
			if len(heights) != 2 || heights[0] != 0 || heights[1] != 200 {
				t.Fatalf("KeyHeights = %v, want [0 200]", heights)
			}

			h150 := makeHeader(t, testHeader{chainID: 7, height: 150}, abc...)
			if _, err := s.SyncHeader(h150.Bytes()); !errors.Is(err, ErrKeyHeightNotFound) {
				t.Fatalf("height 150 err = %v, want ErrKeyHeightNotFound", err)
			}

			stored, err := s.HeaderByHeight(7, 200)
			if err != nil {
				t.Fatalf("HeaderByHeight(200): %v", err)
			}
			proof, err := merkle.Prove(leaves, 3)
			if err != nil {
				t.Fatalf("Prove: %v", err)
			}
			leaf, err := merkle.Resolve(proof.Bytes(), stored.CrossStateRoot)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if !bytes.Equal(leaf, leaves[3]) {
				t.Fatal("resolved leaf differs from committed transaction")
			}
			v, err := crosstx.DecodeToMerkleValue(leaf)
			if err != nil || string(v.PolyTxHash) != "poly-3" {
				t.Fatalf("DecodeToMerkleValue = %+v, %v", v, err)
			}
		})
	}
}

func TestSyncer_HeadersFrom(t *testing.T) {
	s, _ := newTestSyncer(t, QuorumStrict)
	committee := newSigners(t, 3)
	g := bootstrap(t, s, 1, 10, committee)

	var synced [][]byte
	for _, height := range []uint32{12, 15, 300} {
		h := makeHeader(t, testHeader{chainID: 1, height: height}, committee...)
		if _, err := s.SyncHeader(h.Bytes()); err != nil {
			t.Fatalf("SyncHeader(%d): %v", height, err)
		}
		synced = append(synced, h.Bytes())
	}

	tests := []struct {
		name string
		from uint32
		max  int
		want [][]byte
	}{
		{"from genesis", 0, 10, append([][]byte{g.Bytes()}, synced...)},
		{"skips gaps", 11, 10, synced},
		{"limited", 11, 2, synced[:2]},
		{"past the tip", 301, 10, nil},
		{"zero max", 0, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.HeadersFrom(1, tt.from, tt.max)
			if err != nil {
				t.Fatalf("HeadersFrom: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d headers, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if string(got[i]) != string(tt.want[i]) {
					t.Errorf("header %d differs", i)
				}
			}
		})
	}

	if got, err := s.HeadersFrom(2, 0, 10); err != nil || len(got) != 0 {
		t.Errorf("unknown chain: %d headers, err %v", len(got), err)
	}
}

func TestSyncer_EpochBoundaryEmptyPayload(t *testing.T) {
	format := header.EpochFormat{Length: 100}
	db := storage.NewMemory()
	s := New(db, Config{Format: format, Quorum: QuorumPoly})
	committee := newSigners(t, 3)
	bootstrap(t, s, 5, 0, committee)
	before := snapshot(t, db)

	h := &header.Header{ChainID: 5, Height: 100, Timestamp: 1_700_000_100}
	for _, signer := range committee {
		if err := h.Sign(signer); err != nil {
			t.Fatalf("Sign: %v", err)
		}
	}
	if _, err := s.SyncHeader(h.Bytes()); !errors.Is(err, codec.ErrInputTooShort) {
		t.Fatalf("err = %v, want ErrInputTooShort", err)
	}
	assertUnchanged(t, before, snapshot(t, db))

	heights, err := s.KeyHeights(5)
	if err != nil || len(heights) != 1 || heights[0] != 0 {
		t.Fatalf("KeyHeights = %v, %v, want [0]", heights, err)
	}
}

func TestSyncer_BadgerRejectedRotation(t *testing.T) {
	db, err := storage.NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	defer db.Close()

	s := New(db, Config{})
	committee := newSigners(t, 3)
	bootstrap(t, s, 7, 0, committee)

	for i := 0; i < 3; i++ {
		bad := makeHeader(t, testHeader{chainID: 7, height: 1, rotation: &header.ChainConfig{}}, committee...)
		if _, err := s.SyncHeader(bad.Bytes()); !errors.Is(err, ErrEmptyConsensusPeerList) {
			t.Fatalf("attempt %d: err = %v, want ErrEmptyConsensusPeerList", i, err)
		}
	}

	h := makeHeader(t, testHeader{chainID: 7, height: 1}, committee...)
	if _, err := s.SyncHeader(h.Bytes()); err != nil {
		t.Fatalf("SyncHeader: %v", err)
	}
	if height, err := s.CurrentHeight(7); err != nil || height != 1 {
		t.Fatalf("CurrentHeight = %d, %v", height, err)
	}
}

func TestSyncer_HeadersFromBadger(t *testing.T) {
	db, err := storage.NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	defer db.Close()

	s := New(db, Config{})
	committee := newSigners(t, 3)
	bootstrap(t, s, 3, 0, committee)

	byHeight := make(map[uint32][]byte)
	for _, height := range []uint32{1, 255, 256, 70000} {
		h := makeHeader(t, testHeader{chainID: 3, height: height}, committee...)
		if _, err := s.SyncHeader(h.Bytes()); err != nil {
			t.Fatalf("SyncHeader(%d): %v", height, err)
		}
		byHeight[height] = h.Bytes()
	}

	tests := []struct {
		from uint32
		max  int
		want []uint32
	}{
		{2, 10, []uint32{255, 256, 70000}},
		{256, 1, []uint32{256}},
		{257, 10, []uint32{70000}},
		{70001, 10, nil},
	}
	for _, tt := range tests {
		got, err := s.HeadersFrom(3, tt.from, tt.max)
		if err != nil {
			t.Fatalf("HeadersFrom(%d): %v", tt.from, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("HeadersFrom(%d) returned %d headers, want %d", tt.from, len(got), len(tt.want))
		}
		for i, height := range tt.want {
			if string(got[i]) != string(byHeight[height]) {
				t.Errorf("HeadersFrom(%d)[%d] is not height %d", tt.from, i, height)
			}
		}
	}
}
