/*
File Name:  pogreb.go

Pogreb-backed Store, adapted from the teacher's store/Pogreb.go. The
teacher used Pogreb for blockchain key/value data; here it backs the
persisted peer blocklist and favorites set (SPEC_FULL.md §20) so a
block or favorite marking survives a process restart. Expiration is
not implemented, same as the teacher: StoreExpire stores the pair
without a deadline. forward.Buffer does write its favorites queue
through StoreExpire to the favorites store, but it keeps, expires and
drains its queues from its own in-memory index; records it writes to a
PogrebStore and later expires in memory are not removed from disk.
*/

package store

import (
	"io"
	"log"
	"sync"
	"time"

	"github.com/akrylysov/pogreb"
)

// PogrebStore is a disk-backed Store using akrylysov/pogreb.
type PogrebStore struct {
	mu sync.Mutex
	db *pogreb.DB
}

// NewPogrebStore opens (or creates) a Pogreb database at filename.
func NewPogrebStore(filename string) (*PogrebStore, error) {
	pogreb.SetLogger(log.New(io.Discard, "", 0))

	db, err := pogreb.Open(filename, nil)
	if err != nil {
		return nil, err
	}

	return &PogrebStore{db: db}, nil
}

func (s *PogrebStore) Set(key []byte, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put(key, data)
}

func (s *PogrebStore) StoreExpire(key []byte, data []byte, expiration time.Time) error {
	// Not implemented: see file header.
	return s.Set(key, data)
}

func (s *PogrebStore) Get(key []byte) (data []byte, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, err := s.db.Get(key)
	if err != nil || value == nil {
		return nil, false
	}
	return value, true
}

func (s *PogrebStore) Delete(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.Delete(key)
}

func (s *PogrebStore) ExpireKeys() {
	// Not implemented: see file header.
}

// Iterate walks every key/value pair. Pogreb does not preserve
// insertion order.
func (s *PogrebStore) Iterate(fn func(key, value []byte)) {
	s.mu.Lock()
	it := s.db.Items()
	s.mu.Unlock()

	for {
		key, value, err := it.Next()
		if err != nil {
			return
		}
		fn(key, value)
	}
}

// Close releases the underlying database file.
func (s *PogrebStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
