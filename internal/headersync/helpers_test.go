package headersync

import (
	"testing"

	"github.com/Klingon-tech/klingbridge/internal/storage"
	"github.com/Klingon-tech/klingbridge/pkg/crypto"
	"github.com/Klingon-tech/klingbridge/pkg/header"
	"github.com/Klingon-tech/klingbridge/pkg/types"
)

var testSchemes = []crypto.Scheme{
	crypto.SchemeEcdsaSecp256k1,
	crypto.SchemeSchnorrSecp256k1,
	crypto.SchemeEd25519,
}

// newSigners creates n signers cycling through every supported scheme.
func newSigners(t *testing.T, n int) []crypto.Signer {
	t.Helper()
	out := make([]crypto.Signer, n)
	for i := range out {
		s, err := crypto.GenerateSigner(testSchemes[i%len(testSchemes)])
		if err != nil {
			t.Fatalf("GenerateSigner: %v", err)
		}
		out[i] = s
	}
	return out
}

func peersOf(signers []crypto.Signer) []header.PeerConfig {
	peers := make([]header.PeerConfig, len(signers))
	for i, s := range signers {
		peers[i] = header.PeerFromPublicKey(uint32(i), s.PublicKey())
	}
	return peers
}

func rotationTo(signers []crypto.Signer) *header.ChainConfig {
	return &header.ChainConfig{
		Version:         1,
		NetworkSize:     uint32(len(signers)),
		ConsensusQuorum: uint32(len(signers)),
		Peers:           peersOf(signers),
	}
}

// testHeader describes a header to build with makeHeader.
type testHeader struct {
	chainID        uint64
	height         uint32
	rotation       *header.ChainConfig
	crossStateRoot types.Hash
	format         header.PayloadFormat
}

// makeHeader builds a header and signs it with signers, in order.
func makeHeader(t *testing.T, th testHeader, signers ...crypto.Signer) *header.Header {
	t.Helper()
	format := th.format
	if format == nil {
		format = header.TaggedFormat{}
	}
	h := &header.Header{
		Version:        0,
		ChainID:        th.chainID,
		PrevBlockHash:  types.Hash{byte(th.height)},
		CrossStateRoot: th.crossStateRoot,
		Timestamp:      1_700_000_000 + th.height,
		Height:         th.height,
		ConsensusData:  uint64(th.height) * 31,
	}
	info := &header.BlockInfo{
		Proposer:           1,
		VrfValue:           []byte("vrf"),
		VrfProof:           []byte("proof"),
		LastConfigBlockNum: 0,
		NewChainConfig:     th.rotation,
	}
	if err := h.SetBlockInfo(format, info); err != nil {
		t.Fatalf("SetBlockInfo: %v", err)
	}
	for _, s := range signers {
		if err := h.Sign(s); err != nil {
			t.Fatalf("Sign: %v", err)
		}
	}
	return h
}

func newTestSyncer(t *testing.T, quorum Quorum) (*Syncer, *storage.MemoryDB) {
	t.Helper()
	db := storage.NewMemory()
	return New(db, Config{Quorum: quorum}), db
}

// bootstrap syncs a genesis header for chainID at height with committee.
func bootstrap(t *testing.T, s *Syncer, chainID uint64, height uint32, committee []crypto.Signer) *header.Header {
	t.Helper()
	g := makeHeader(t, testHeader{chainID: chainID, height: height, rotation: rotationTo(committee), format: s.Format()})
	if _, err := s.SyncGenesisHeader(g.Bytes()); err != nil {
		t.Fatalf("SyncGenesisHeader: %v", err)
	}
	return g
}

// snapshot captures every key and value in db.
func snapshot(t *testing.T, db storage.DB) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := db.ForEach(nil, func(k, v []byte) error {
		out[string(k)] = string(v)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	return out
}

func assertUnchanged(t *testing.T, before, after map[string]string) {
	t.Helper()
	if len(before) != len(after) {
		t.Fatalf("store changed: %d keys before, %d after", len(before), len(after))
	}
	for k, v := range before {
		if after[k] != v {
			t.Fatalf("store changed at key %x", k)
		}
	}
}
