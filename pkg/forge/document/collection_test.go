package document

import (
	"fmt"
	"sync"
	"testing"
)

func TestCollectionSnapshotOrder(t *testing.T) {
	c := NewCollection()
	for _, ord := range []int64{3, 1, 2} {
		c.Add(New(ord, fmt.Sprintf("doc %d", ord), "test"))
	}

	snap := c.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot length = %d", len(snap))
	}
	for i, d := range snap {
		if d.Ordinal != int64(i+1) {
			t.Errorf("snapshot[%d].Ordinal = %d", i, d.Ordinal)
		}
	}
}

func TestCollectionAlive(t *testing.T) {
	c := NewCollection()
	for ord := int64(1); ord <= 4; ord++ {
		c.Add(New(ord, fmt.Sprintf("doc %d", ord), "test"))
	}
	c.Snapshot()[1].MarkFiltered("length", "too short")
	c.Snapshot()[3].MarkDropped(1)

	alive := c.Alive()
	if len(alive) != 2 {
		t.Fatalf("alive = %d, want 2", len(alive))
	}
	if alive[0].Ordinal != 1 || alive[1].Ordinal != 3 {
		t.Errorf("alive ordinals = %d, %d", alive[0].Ordinal, alive[1].Ordinal)
	}
}

func TestCollectionReplace(t *testing.T) {
	c := NewCollection()
	d := New(1, "original", "test")
	c.Add(d)

	c.Replace(d.Derive("rewritten"))
	if c.Len() != 1 {
		t.Fatalf("replace appended instead of swapping: len = %d", c.Len())
	}
	if got := c.Snapshot()[0].Text; got != "rewritten" {
		t.Errorf("text = %q", got)
	}

	// Unknown ordinals are appended.
	c.Replace(New(9, "late arrival", "test"))
	if c.Len() != 2 {
		t.Fatalf("len = %d", c.Len())
	}
}

func TestCollectionConcurrentAdd(t *testing.T) {
	c := NewCollection()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(ord int64) {
			defer wg.Done()
			c.Add(New(ord, fmt.Sprintf("doc %d", ord), "test"))
		}(int64(i + 1))
	}
	wg.Wait()

	if c.Len() != 100 {
		t.Fatalf("len = %d", c.Len())
	}
	snap := c.Snapshot()
	for i, d := range snap {
		if d.Ordinal != int64(i+1) {
			t.Fatalf("snapshot not in ordinal order at %d", i)
		}
	}
}
