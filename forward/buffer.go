/*
File Name:  buffer.go

Store-and-forward buffer (spec §3 "Stored message", §4.8). Two
retention classes, regular (12h) and favorites (168h), each a
per-recipient FIFO queue. Grounded on the teacher's store.Store
interface (its StoreExpire operation already models "value with a
retention deadline"); the FIFO ordering itself is kept in an in-memory
index independent of the backing Store's iteration order, since only
MemoryStore (not Pogreb) happens to preserve insertion order -- a
buffer backed by Pogreb must still drain in the order messages were
enqueued.
*/

package forward

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/meshchat/core/store"
)

const (
	RegularRetention   = 12 * time.Hour
	FavoritesRetention = 168 * time.Hour
)

// StoredMessage is one buffered message (spec §3).
type StoredMessage struct {
	ID            string
	SenderID      string
	RecipientID   string
	Channel       string
	Content       []byte
	TimestampMs   uint64
	IsPrivate     bool
	IsSigned      bool
	storedAt      time.Time
}

type queue struct {
	messages []StoredMessage
}

// Buffer holds the regular and favorites store-and-forward queues.
type Buffer struct {
	mu sync.Mutex

	regularBacking   store.Store
	favoritesBacking store.Store

	regular   map[string]*queue
	favorites map[string]*queue
}

// NewBuffer creates a buffer. Passing nil for either backing store
// uses an in-memory store.NewMemoryStore() (the common case: only
// favorites typically warrant a persisted backing).
func NewBuffer(regularBacking, favoritesBacking store.Store) *Buffer {
	if regularBacking == nil {
		regularBacking = store.NewMemoryStore()
	}
	if favoritesBacking == nil {
		favoritesBacking = store.NewMemoryStore()
	}
	return &Buffer{
		regularBacking:   regularBacking,
		favoritesBacking: favoritesBacking,
		regular:          make(map[string]*queue),
		favorites:        make(map[string]*queue),
	}
}

// Enqueue stores msg for recipientID in the given retention class.
func (b *Buffer) Enqueue(recipientID string, msg StoredMessage, favorite bool) {
	msg.storedAt = time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	queues, backing, retention := b.classFor(favorite)
	q, ok := queues[recipientID]
	if !ok {
		q = &queue{}
		queues[recipientID] = q
	}
	q.messages = append(q.messages, msg)

	if data, err := json.Marshal(msg); err == nil {
		backing.StoreExpire([]byte(recipientID+"/"+msg.ID), data, msg.storedAt.Add(retention))
	}
}

// Drain removes and returns all queued messages for recipientID from
// both retention classes, for delivery on the peer's ANNOUNCE (spec
// §4.7/§4.8): the regular queue first, then the favorites queue, each
// in FIFO (insertion) order.
func (b *Buffer) Drain(recipientID string) []StoredMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []StoredMessage
	for _, queues := range []map[string]*queue{b.regular, b.favorites} {
		if q, ok := queues[recipientID]; ok {
			out = append(out, q.messages...)
			delete(queues, recipientID)
		}
	}

	for _, msg := range out {
		b.regularBacking.Delete([]byte(recipientID + "/" + msg.ID))
		b.favoritesBacking.Delete([]byte(recipientID + "/" + msg.ID))
	}

	return out
}

// GC enforces retention: messages older than their class's window are
// dropped even if never drained (spec §4.5 "enforce store-and-forward
// retention").
func (b *Buffer) GC(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.gcClass(b.regular, now, RegularRetention)
	b.gcClass(b.favorites, now, FavoritesRetention)

	b.regularBacking.ExpireKeys()
	b.favoritesBacking.ExpireKeys()
}

func (b *Buffer) gcClass(queues map[string]*queue, now time.Time, retention time.Duration) {
	cutoff := now.Add(-retention)
	for recipientID, q := range queues {
		kept := q.messages[:0]
		for _, msg := range q.messages {
			if msg.storedAt.After(cutoff) {
				kept = append(kept, msg)
			}
		}
		if len(kept) == 0 {
			delete(queues, recipientID)
		} else {
			q.messages = kept
		}
	}
}

// Pending reports whether recipientID has anything queued in either class.
func (b *Buffer) Pending(recipientID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.regular[recipientID]; ok && len(q.messages) > 0 {
		return true
	}
	if q, ok := b.favorites[recipientID]; ok && len(q.messages) > 0 {
		return true
	}
	return false
}

func (b *Buffer) classFor(favorite bool) (map[string]*queue, store.Store, time.Duration) {
	if favorite {
		return b.favorites, b.favoritesBacking, FavoritesRetention
	}
	return b.regular, b.regularBacking, RegularRetention
}
