/*
File Name:  store.go

Small key-value store interface, adapted near-verbatim from the
teacher's store/Store.go (there it fronted the DHT; here it backs the
store-and-forward buffer's retention classes and the persisted
blocklist/favorites sets).
*/

package store

import "time"

// Store is the interface every backing key-value engine implements.
type Store interface {
	// Set stores the key/value pair.
	Set(key []byte, data []byte) error

	// StoreExpire stores the key/value pair and deletes it after the
	// expiration time. If the key already exists it is overwritten
	// and the new expiration applies.
	StoreExpire(key []byte, data []byte, expiration time.Time) error

	// Get returns the value for the key if present.
	Get(key []byte) (data []byte, found bool)

	// Delete deletes a key/value pair.
	Delete(key []byte)

	// ExpireKeys deletes all keys past their expiration.
	ExpireKeys()

	// Iterate calls fn for every stored key/value pair. Order is not
	// guaranteed except by MemoryStore, which preserves insertion
	// order; the forward buffer keeps its own FIFO order and does not
	// iterate its backing stores.
	Iterate(fn func(key, value []byte))
}
