package relay

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	klog "github.com/Klingon-tech/klingbridge/internal/log"
	"github.com/Klingon-tech/klingbridge/internal/storage"
	"github.com/libp2p/go-libp2p/core/control"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// Ban thresholds and durations.
const (
	BanThreshold = 100 // Score at which a peer gets banned.
	BanDuration  = 24 * time.Hour
)

// Penalty values for different offenses.
const (
	PenaltyMalformedHeader = 20  // Header bytes do not decode.
	PenaltyInvalidHeader   = 50  // Header fails committee or signature checks.
	PenaltyHandshakeFail   = 100 // Instant ban (network mismatch).
)

const banKeyPrefix = "ban/"

// BanRecord is a persisted ban entry.
type BanRecord struct {
	ID        string `json:"id"`         // base58 peer ID
	Reason    string `json:"reason"`     // last offense before the ban
	Score     int    `json:"score"`      // accumulated score at ban time
	BannedAt  int64  `json:"banned_at"`  // unix timestamp
	ExpiresAt int64  `json:"expires_at"` // unix timestamp, 0 = permanent
}

// IsExpired returns true if the ban has a non-zero expiry that has passed.
func (r *BanRecord) IsExpired() bool {
	return r.ExpiresAt > 0 && time.Now().Unix() >= r.ExpiresAt
}

// disconnecter drops connections to a peer. Node implements it.
type disconnecter interface {
	DisconnectPeer(id peer.ID) error
}

// BanManager scores peer offenses and bans peers whose score reaches
// BanThreshold. Bans survive restarts when a DB is configured.
type BanManager struct {
	mu     sync.RWMutex
	scores map[peer.ID]int
	bans   map[peer.ID]*BanRecord
	db     storage.DB   // nil disables persistence
	conns  disconnecter // nil disables disconnect-on-ban
}

// NewBanManager creates a BanManager. db and conns may be nil.
func NewBanManager(db storage.DB, conns disconnecter) *BanManager {
	return &BanManager{
		scores: make(map[peer.ID]int),
		bans:   make(map[peer.ID]*BanRecord),
		db:     db,
		conns:  conns,
	}
}

func banKey(id string) []byte {
	return []byte(banKeyPrefix + id)
}

// LoadBans restores unexpired persisted bans and drops expired ones.
func (bm *BanManager) LoadBans() error {
	if bm.db == nil {
		return nil
	}
	var expired [][]byte

	bm.mu.Lock()
	err := bm.db.ForEach([]byte(banKeyPrefix), func(key, value []byte) error {
		var rec BanRecord
		if err := json.Unmarshal(value, &rec); err != nil || rec.IsExpired() {
			expired = append(expired, key)
			return nil
		}
		id, err := peer.Decode(rec.ID)
		if err != nil {
			expired = append(expired, key)
			return nil
		}
		bm.bans[id] = &rec
		return nil
	})
	bm.mu.Unlock()
	if err != nil {
		return fmt.Errorf("load bans: %w", err)
	}

	for _, k := range expired {
		if err := bm.db.Delete(k); err != nil {
			return fmt.Errorf("delete expired ban: %w", err)
		}
	}
	return nil
}

// RecordOffense adds penalty to the peer's score and bans it once the
// score reaches BanThreshold.
func (bm *BanManager) RecordOffense(id peer.ID, penalty int, reason string) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if rec, ok := bm.bans[id]; ok && !rec.IsExpired() {
		return
	}

	bm.scores[id] += penalty
	if bm.scores[id] < BanThreshold {
		return
	}

	now := time.Now()
	rec := &BanRecord{
		ID:        id.String(),
		Reason:    reason,
		Score:     bm.scores[id],
		BannedAt:  now.Unix(),
		ExpiresAt: now.Add(BanDuration).Unix(),
	}
	bm.bans[id] = rec
	delete(bm.scores, id)

	logger := klog.WithComponent("relay")
	if bm.db != nil {
		if data, err := json.Marshal(rec); err == nil {
			if err := bm.db.Put(banKey(rec.ID), data); err != nil {
				logger.Warn().Err(err).Msg("Failed to persist ban")
			}
		}
	}
	logger.Warn().
		Str("peer", shortID(id)).
		Str("reason", reason).
		Int("score", rec.Score).
		Msg("Peer banned")

	if bm.conns != nil {
		go bm.conns.DisconnectPeer(id)
	}
}

// Score returns the peer's current offense score.
func (bm *BanManager) Score(id peer.ID) int {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	return bm.scores[id]
}

// IsBanned returns true if the peer is currently banned. Expired bans are
// dropped on lookup.
func (bm *BanManager) IsBanned(id peer.ID) bool {
	bm.mu.RLock()
	rec, ok := bm.bans[id]
	bm.mu.RUnlock()
	if !ok {
		return false
	}
	if rec.IsExpired() {
		bm.Unban(id)
		return false
	}
	return true
}

// Unban removes a ban and resets the peer's score.
func (bm *BanManager) Unban(id peer.ID) {
	bm.mu.Lock()
	delete(bm.bans, id)
	delete(bm.scores, id)
	bm.mu.Unlock()

	if bm.db != nil {
		bm.db.Delete(banKey(id.String()))
	}
}

// ClearAll removes every ban, persisted ones included, and returns how
// many were removed.
func (bm *BanManager) ClearAll() int {
	bm.mu.Lock()
	ids := make([]peer.ID, 0, len(bm.bans))
	for id := range bm.bans {
		ids = append(ids, id)
	}
	bm.bans = make(map[peer.ID]*BanRecord)
	bm.scores = make(map[peer.ID]int)
	bm.mu.Unlock()

	if bm.db != nil {
		for _, id := range ids {
			bm.db.Delete(banKey(id.String()))
		}
	}
	return len(ids)
}

// BanList returns a snapshot of all active bans.
func (bm *BanManager) BanList() []BanRecord {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	var list []BanRecord
	for _, rec := range bm.bans {
		if !rec.IsExpired() {
			list = append(list, *rec)
		}
	}
	return list
}

// banGater rejects connections to and from banned peers.
type banGater struct {
	bans *BanManager
}

func (g *banGater) InterceptPeerDial(p peer.ID) bool {
	return !g.bans.IsBanned(p)
}

func (g *banGater) InterceptAddrDial(peer.ID, ma.Multiaddr) bool {
	return true
}

// InterceptAccept allows every inbound connection; the peer is not known yet.
func (g *banGater) InterceptAccept(network.ConnMultiaddrs) bool {
	return true
}

func (g *banGater) InterceptSecured(_ network.Direction, p peer.ID, _ network.ConnMultiaddrs) bool {
	return !g.bans.IsBanned(p)
}

func (g *banGater) InterceptUpgraded(network.Conn) (bool, control.DisconnectReason) {
	return true, 0
}

func shortID(id peer.ID) string {
	s := id.String()
	if len(s) > 16 {
		return s[:16]
	}
	return s
}
