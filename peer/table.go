/*
File Name:  table.go

Peer table (spec §3 "Peer", §4.9). Grounded on the teacher's Peer
ID.go PeerlistAdd/PeerlistRemove/PeerlistGet/PeerlistLookup: a
mutex-guarded map keyed by a fixed-size id, generalized from a
secp256k1 compressed public key to an 8-byte peer id, and extended
with nickname/rssi/last-seen/key-material fields plus a timer-driven
eviction the teacher never needed (it only evicted explicitly).
*/

package peer

import (
	"sync"
	"time"
)

// EvictionWindow is how long a peer may go unseen before it is
// dropped from the table (spec §3 "default 5 min of no sightings").
const EvictionWindow = 5 * time.Minute

// Info describes one known peer.
type Info struct {
	ID       string
	Nickname string
	RSSI     int
	LastSeen time.Time
	Online   bool
	Favorite bool

	// HasSession is set once a handshake has completed for this peer
	// (the derived symmetric key itself lives in crypto.KeyStore, kept
	// separate so the peer table has no crypto package dependency).
	HasSession bool
}

// Table is a mutex-guarded peer directory.
type Table struct {
	mu     sync.RWMutex
	peers  map[string]*Info
	window time.Duration
}

// NewTable creates an empty peer table using the default eviction
// window (spec §3 default 5 min).
func NewTable() *Table {
	return NewTableWithWindow(EvictionWindow)
}

// NewTableWithWindow creates an empty peer table with a configurable
// eviction window (node/config.go PeerEvictionWindow).
func NewTableWithWindow(window time.Duration) *Table {
	if window <= 0 {
		window = EvictionWindow
	}
	return &Table{peers: make(map[string]*Info), window: window}
}

// Sighting inserts a peer on first contact or refreshes LastSeen/RSSI
// for an existing one (spec §4.9 "Insert or update peer on any
// sighting").
func (t *Table) Sighting(id string, rssi int) (info *Info, isNew bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.peers[id]
	if !ok {
		p = &Info{ID: id, RSSI: rssi, LastSeen: time.Now(), Online: true}
		t.peers[id] = p
		return p, true
	}

	p.RSSI = rssi
	p.LastSeen = time.Now()
	p.Online = true
	return p, false
}

// SetNickname updates a peer's nickname (spec §4.7 ANNOUNCE handling).
func (t *Table) SetNickname(id, nickname string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[id]; ok {
		p.Nickname = nickname
	}
}

// MarkSession records that a handshake completed with id.
func (t *Table) MarkSession(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[id]; ok {
		p.HasSession = true
	}
}

// MarkOffline marks a peer offline without evicting it from the table.
// node's LEAVE/peer-lost handling uses Remove instead (spec §4.9
// eviction triggers); this stays available for callers that want to
// record a transient absence without losing nickname/key bookkeeping.
func (t *Table) MarkOffline(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[id]; ok {
		p.Online = false
	}
}

// SetFavorite marks/unmarks a peer as a favorite (SPEC_FULL.md §20).
func (t *Table) SetFavorite(id string, favorite bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[id]; ok {
		p.Favorite = favorite
	}
}

// Get looks up a peer by id.
func (t *Table) Get(id string) (*Info, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[id]
	return p, ok
}

// Remove deletes a peer immediately (LEAVE eviction path).
func (t *Table) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, id)
}

// All returns a snapshot of every known peer.
func (t *Table) All() []*Info {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Info, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	return out
}

// EvictStale removes peers unseen for longer than the table's eviction
// window (EvictionWindow unless set by NewTableWithWindow; spec
// §4.5 "timer gc ... drop peers not seen in 5 min") and returns their ids.
func (t *Table) EvictStale(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-t.window)
	var evicted []string
	for id, p := range t.peers {
		if p.LastSeen.Before(cutoff) {
			delete(t.peers, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Count returns the number of known peers.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}
