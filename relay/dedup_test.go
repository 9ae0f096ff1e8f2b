package relay

import (
	"testing"
	"time"
)

func sampleSenderID() [8]byte {
	var id [8]byte
	copy(id[:], []byte("sender01"))
	return id
}

// TestComputeDedupIDDeterministic checks the same tuple always hashes
// to the same id, and that changing any field changes the id
// (spec Glossary "dedup id").
func TestComputeDedupIDDeterministic(t *testing.T) {
	sender := sampleSenderID()
	payload := []byte("hello mesh")

	a := ComputeDedupID(sender, payload, 1000)
	b := ComputeDedupID(sender, payload, 1000)
	if a != b {
		t.Fatalf("ComputeDedupID is not deterministic: %d != %d", a, b)
	}

	if c := ComputeDedupID(sender, payload, 1001); c == a {
		t.Fatalf("changing the timestamp did not change the dedup id")
	}
	if c := ComputeDedupID(sender, []byte("different"), 1000); c == a {
		t.Fatalf("changing the payload did not change the dedup id")
	}
}

// TestAdmitSuppressesDuplicates checks the first Admit of an id
// returns false (not seen) and every subsequent Admit of the same id
// returns true (spec §4.7 Admit / §8 property 7).
func TestAdmitSuppressesDuplicates(t *testing.T) {
	d := NewDedupSet(DefaultCapacity, DefaultRetention)
	id := ComputeDedupID(sampleSenderID(), []byte("x"), 1)

	if seen := d.Admit(id); seen {
		t.Fatalf("first Admit reported seen=true")
	}
	for i := 0; i < 5; i++ {
		if seen := d.Admit(id); !seen {
			t.Fatalf("repeat Admit #%d reported seen=false", i)
		}
	}
}

// TestAdmitEvictsOverCapacity checks the oldest entry is dropped once
// the set exceeds its capacity (spec §5 "bounded set with LRU eviction").
func TestAdmitEvictsOverCapacity(t *testing.T) {
	d := NewDedupSet(3, DefaultRetention)
	sender := sampleSenderID()

	ids := make([]DedupID, 4)
	for i := range ids {
		ids[i] = ComputeDedupID(sender, []byte{byte(i)}, uint64(i))
		d.Admit(ids[i])
	}

	if d.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", d.Len())
	}
	if seen := d.Admit(ids[0]); seen {
		t.Fatalf("the oldest id was not evicted: Admit reported seen=true")
	}
}

// TestGCDropsExpiredEntries checks GC removes every entry once the
// retention window has fully elapsed for all of them.
func TestGCDropsExpiredEntries(t *testing.T) {
	d := NewDedupSet(DefaultCapacity, time.Minute)
	sender := sampleSenderID()
	old := ComputeDedupID(sender, []byte("old"), 1)
	fresh := ComputeDedupID(sender, []byte("fresh"), 2)

	d.Admit(old)
	d.Admit(fresh)

	d.GC(time.Now().Add(2 * time.Minute))

	if d.Len() != 0 {
		t.Fatalf("GC left %d entries after the full retention window elapsed", d.Len())
	}
}

// TestClearEmptiesSet checks Clear wipes every entry (spec §5 "stop()
// ... dedup set clear").
func TestClearEmptiesSet(t *testing.T) {
	d := NewDedupSet(DefaultCapacity, DefaultRetention)
	d.Admit(ComputeDedupID(sampleSenderID(), []byte("a"), 1))
	d.Admit(ComputeDedupID(sampleSenderID(), []byte("b"), 2))

	d.Clear()
	if d.Len() != 0 {
		t.Fatalf("Len() = %d after Clear, want 0", d.Len())
	}
}
