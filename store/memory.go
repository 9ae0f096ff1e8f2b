/*
File Name:  memory.go

In-memory Store, adapted from the teacher's store/Memory.go (added:
Iterate, in insertion order).
*/

package store

import (
	"sync"
	"time"
)

// MemoryStore is a map-backed Store. Safe for concurrent use.
type MemoryStore struct {
	mu        sync.Mutex
	data      map[string][]byte
	expireMap map[string]time.Time
	order     []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:      make(map[string][]byte),
		expireMap: make(map[string]time.Time),
	}
}

func (ms *MemoryStore) Set(key []byte, data []byte) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	k := string(key)
	if _, exists := ms.data[k]; !exists {
		ms.order = append(ms.order, k)
	}
	ms.data[k] = data
	return nil
}

func (ms *MemoryStore) StoreExpire(key []byte, data []byte, expiration time.Time) error {
	if err := ms.Set(key, data); err != nil {
		return err
	}
	ms.mu.Lock()
	ms.expireMap[string(key)] = expiration
	ms.mu.Unlock()
	return nil
}

func (ms *MemoryStore) Get(key []byte) (data []byte, found bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	data, found = ms.data[string(key)]
	return data, found
}

func (ms *MemoryStore) Delete(key []byte) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	k := string(key)
	delete(ms.data, k)
	delete(ms.expireMap, k)
	for i, existing := range ms.order {
		if existing == k {
			ms.order = append(ms.order[:i], ms.order[i+1:]...)
			break
		}
	}
}

// ExpireKeys deletes all keys whose expiration has passed.
func (ms *MemoryStore) ExpireKeys() {
	ms.mu.Lock()
	now := time.Now()
	var expired []string
	for k, exp := range ms.expireMap {
		if now.After(exp) {
			expired = append(expired, k)
		}
	}
	ms.mu.Unlock()

	for _, k := range expired {
		ms.Delete([]byte(k))
	}
}

// Iterate calls fn for every pair, in insertion order.
func (ms *MemoryStore) Iterate(fn func(key, value []byte)) {
	ms.mu.Lock()
	keys := append([]string(nil), ms.order...)
	ms.mu.Unlock()

	for _, k := range keys {
		ms.mu.Lock()
		v, ok := ms.data[k]
		ms.mu.Unlock()
		if ok {
			fn([]byte(k), v)
		}
	}
}

// Count returns the number of records stored.
func (ms *MemoryStore) Count() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.data)
}
