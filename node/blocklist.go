/*
File Name:  blocklist.go

Persisted peer blocklist (SPEC_FULL.md §20, supplemented feature: the
distilled spec.md is silent on blocking, but bitchat's original_source
concept of muting/blocking is too ordinary a chat feature to drop).
Adapted from the teacher's Blacklist.go key-presence-in-a-Store idiom,
generalized from a hash blacklist for search results to a peer-id
blocklist enforced at the dispatch layer.
*/

package node

import "github.com/meshchat/core/store"

var blockedMarker = []byte{1}

// Blocklist is a persisted set of peer ids whose packets are dropped
// before dispatch.
type Blocklist struct {
	backing store.Store
}

func newBlocklist(backing store.Store) *Blocklist {
	return &Blocklist{backing: backing}
}

// Add blocks peerID.
func (b *Blocklist) Add(peerID string) error {
	return b.backing.Set([]byte(peerID), blockedMarker)
}

// Remove unblocks peerID.
func (b *Blocklist) Remove(peerID string) {
	b.backing.Delete([]byte(peerID))
}

// Contains reports whether peerID is blocked.
func (b *Blocklist) Contains(peerID string) bool {
	_, found := b.backing.Get([]byte(peerID))
	return found
}

// List returns every blocked peer id.
func (b *Blocklist) List() []string {
	var out []string
	b.backing.Iterate(func(key, _ []byte) {
		out = append(out, string(key))
	})
	return out
}
