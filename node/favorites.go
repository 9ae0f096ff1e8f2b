/*
File Name:  favorites.go

Persisted favorites set (SPEC_FULL.md §20; spec.md §3 "Favorites
queue" already names the retention class this backs). Same Store-
presence idiom as blocklist.go. Node.SetFavorite also flips
peer.Table's Favorite bit; the forward buffer's retention class is
chosen by the favorite argument passed to QueueForDelivery, not read
from this set or from the peer table.
*/

package node

import "github.com/meshchat/core/store"

var favoriteMarker = []byte{1}

// Favorites is a persisted set of peer ids marked favorite.
type Favorites struct {
	backing store.Store
}

func newFavorites(backing store.Store) *Favorites {
	return &Favorites{backing: backing}
}

func (f *Favorites) Add(peerID string) error {
	return f.backing.Set([]byte("fav/"+peerID), favoriteMarker)
}

func (f *Favorites) Remove(peerID string) {
	f.backing.Delete([]byte("fav/" + peerID))
}

func (f *Favorites) Contains(peerID string) bool {
	_, found := f.backing.Get([]byte("fav/" + peerID))
	return found
}

func (f *Favorites) List() []string {
	var out []string
	const prefix = "fav/"
	f.backing.Iterate(func(key, _ []byte) {
		k := string(key)
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k[len(prefix):])
		}
	})
	return out
}
