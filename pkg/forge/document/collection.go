package document

import (
	"sort"
	"sync"
)

// Collection holds the documents owned by one pipeline run. Appends are
// safe for concurrent use; Snapshot returns documents in ingestion order
// regardless of insertion interleaving.
type Collection struct {
	mu   sync.RWMutex
	docs []*Document
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{}
}

// Add appends a document to the collection.
func (c *Collection) Add(d *Document) {
	c.mu.Lock()
	c.docs = append(c.docs, d)
	c.mu.Unlock()
}

// Len returns the number of documents held.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// Snapshot returns all documents sorted by ingestion ordinal.
func (c *Collection) Snapshot() []*Document {
	c.mu.RLock()
	out := make([]*Document, len(c.docs))
	copy(out, c.docs)
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

// Alive returns the documents still eligible for downstream stages,
// in ingestion order.
func (c *Collection) Alive() []*Document {
	var out []*Document
	for _, d := range c.Snapshot() {
		if d.Alive() {
			out = append(out, d)
		}
	}
	return out
}

// Replace swaps the document with the same ordinal for its derived form.
// Ordinals not present are appended.
func (c *Collection) Replace(d *Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.docs {
		if existing.Ordinal == d.Ordinal {
			c.docs[i] = d
			return
		}
	}
	c.docs = append(c.docs, d)
}
