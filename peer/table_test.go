package peer

import (
	"testing"
	"time"
)

// TestSightingInsertsThenUpdates checks the first Sighting of an id
// reports isNew=true and later sightings report isNew=false while
// refreshing RSSI/LastSeen (spec §4.9).
func TestSightingInsertsThenUpdates(t *testing.T) {
	tbl := NewTable()

	p, isNew := tbl.Sighting("peer0001", -40)
	if !isNew {
		t.Fatalf("first Sighting reported isNew=false")
	}
	if p.RSSI != -40 || !p.Online {
		t.Fatalf("unexpected peer state after first sighting: %+v", p)
	}

	p2, isNew := tbl.Sighting("peer0001", -55)
	if isNew {
		t.Fatalf("second Sighting of the same id reported isNew=true")
	}
	if p2.RSSI != -55 {
		t.Fatalf("RSSI not refreshed: got %d, want -55", p2.RSSI)
	}
	if tbl.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", tbl.Count())
	}
}

// TestSetNicknameAndMarkSession checks the mutators only affect
// existing peers and are silent no-ops for unknown ids.
func TestSetNicknameAndMarkSession(t *testing.T) {
	tbl := NewTable()
	tbl.Sighting("peer0001", -40)

	tbl.SetNickname("peer0001", "alice")
	tbl.MarkSession("peer0001")

	p, _ := tbl.Get("peer0001")
	if p.Nickname != "alice" || !p.HasSession {
		t.Fatalf("nickname/session not recorded: %+v", p)
	}

	// Unknown peer: must not panic or create an entry.
	tbl.SetNickname("ghost", "x")
	tbl.MarkSession("ghost")
	if _, ok := tbl.Get("ghost"); ok {
		t.Fatalf("SetNickname/MarkSession created an entry for an unknown peer")
	}
}

// TestMarkOfflineAndRemove checks LEAVE handling (spec §4.7).
func TestMarkOfflineAndRemove(t *testing.T) {
	tbl := NewTable()
	tbl.Sighting("peer0001", -40)

	tbl.MarkOffline("peer0001")
	p, _ := tbl.Get("peer0001")
	if p.Online {
		t.Fatalf("MarkOffline did not clear Online")
	}

	tbl.Remove("peer0001")
	if _, ok := tbl.Get("peer0001"); ok {
		t.Fatalf("Remove did not delete the peer")
	}
}

// TestEvictStaleDropsPeersPastWindow checks EvictStale removes every
// peer unseen for longer than the table's eviction window (spec §4.5
// "timer gc ... drop peers not seen in 5 min").
func TestEvictStaleDropsPeersPastWindow(t *testing.T) {
	tbl := NewTableWithWindow(time.Minute)
	tbl.Sighting("stale", -40)
	tbl.Sighting("fresh", -40)

	evicted := tbl.EvictStale(time.Now().Add(2 * time.Minute))
	if len(evicted) != 2 {
		// Both were inserted at ~now, so both are older than the 1-minute
		// window once we fast-forward 2 minutes.
		t.Fatalf("EvictStale evicted %d peers, want 2", len(evicted))
	}
	if tbl.Count() != 0 {
		t.Fatalf("Count() = %d after EvictStale, want 0", tbl.Count())
	}
}

// TestEvictStaleKeepsFreshSighting checks a re-sighted peer whose last
// sighting is still inside the eviction window is not evicted.
func TestEvictStaleKeepsFreshSighting(t *testing.T) {
	tbl := NewTableWithWindow(time.Minute)
	tbl.Sighting("peer0001", -40)

	// Re-sight close to "now" so LastSeen is fresh relative to a cutoff
	// only 30s in the future.
	tbl.Sighting("peer0001", -41)
	evicted := tbl.EvictStale(time.Now().Add(30 * time.Second))
	if len(evicted) != 0 {
		t.Fatalf("EvictStale evicted a freshly-sighted peer: %v", evicted)
	}
}

// TestSetFavorite checks the favorites flag mutator.
func TestSetFavorite(t *testing.T) {
	tbl := NewTable()
	tbl.Sighting("peer0001", -40)

	tbl.SetFavorite("peer0001", true)
	p, _ := tbl.Get("peer0001")
	if !p.Favorite {
		t.Fatalf("SetFavorite(true) did not set Favorite")
	}

	tbl.SetFavorite("peer0001", false)
	p, _ = tbl.Get("peer0001")
	if p.Favorite {
		t.Fatalf("SetFavorite(false) did not clear Favorite")
	}
}
