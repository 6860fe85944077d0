package relay

import (
	"fmt"
	"testing"
	"time"

	"github.com/Klingon-tech/klingbridge/internal/storage"
)

func TestPeerStore_SaveLoad(t *testing.T) {
	ps := NewPeerStore(storage.NewMemory())
	rec := PeerRecord{
		ID:       "peer-1",
		Addrs:    []string{"/ip4/192.168.1.1/tcp/30404"},
		LastSeen: time.Now().Unix(),
		Source:   "dht",
		Chains:   []uint64{2, 7},
	}
	if err := ps.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := ps.Load("peer-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ID != rec.ID || got.Source != rec.Source || got.LastSeen != rec.LastSeen {
		t.Errorf("Load = %+v, want %+v", got, rec)
	}
	if len(got.Addrs) != 1 || got.Addrs[0] != rec.Addrs[0] {
		t.Errorf("Addrs = %v", got.Addrs)
	}
	if len(got.Chains) != 2 || got.Chains[1] != 7 {
		t.Errorf("Chains = %v", got.Chains)
	}
}

func TestPeerStore_LoadMissing(t *testing.T) {
	ps := NewPeerStore(storage.NewMemory())
	if _, err := ps.Load("nobody"); err == nil {
		t.Error("expected error for missing peer")
	}
}

func TestPeerStore_LoadAllSkipsCorrupt(t *testing.T) {
	db := storage.NewMemory()
	ps := NewPeerStore(db)
	now := time.Now().Unix()
	ps.Save(PeerRecord{ID: "a", LastSeen: now})
	ps.Save(PeerRecord{ID: "b", LastSeen: now})
	db.Put(peerKey("c"), []byte("not json"))

	records, err := ps.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("LoadAll returned %d records, want 2", len(records))
	}
}

func TestPeerStore_PruneStale(t *testing.T) {
	db := storage.NewMemory()
	ps := NewPeerStore(db)
	now := time.Now()
	ps.Save(PeerRecord{ID: "fresh", LastSeen: now.Unix()})
	ps.Save(PeerRecord{ID: "old", LastSeen: now.Add(-48 * time.Hour).Unix()})
	db.Put(peerKey("corrupt"), []byte("{"))

	removed, err := ps.PruneStale(staleThreshold)
	if err != nil {
		t.Fatalf("PruneStale: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed %d, want 2", removed)
	}
	if n, _ := ps.Count(); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
	if _, err := ps.Load("fresh"); err != nil {
		t.Errorf("fresh peer pruned: %v", err)
	}
}

func TestPeerStore_Cap(t *testing.T) {
	ps := NewPeerStore(storage.NewMemory())
	now := time.Now().Unix()
	for i := 0; i < maxPersistedPeers; i++ {
		if err := ps.Save(PeerRecord{ID: fmt.Sprintf("peer-%04d", i), LastSeen: now}); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	ps.Save(PeerRecord{ID: "one-too-many", LastSeen: now})
	if n, _ := ps.Count(); n != maxPersistedPeers {
		t.Errorf("Count = %d, want %d", n, maxPersistedPeers)
	}

	// Known peers still update at the cap.
	ps.Save(PeerRecord{ID: "peer-0000", LastSeen: now, Source: "seed"})
	got, err := ps.Load("peer-0000")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Source != "seed" {
		t.Errorf("Source = %q, want seed", got.Source)
	}
}
