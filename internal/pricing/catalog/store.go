package catalog

import (
	"sync"
	"sync/atomic"
)

// Store publishes built catalogs as immutable snapshots. Readers never take
// a lock; writers copy the index and swap it in, so an in-flight read keeps
// the catalog it started with.
type Store struct {
	mu    sync.Mutex
	index atomic.Pointer[map[string]*Catalog]
}

func NewStore() *Store {
	s := &Store{}
	empty := make(map[string]*Catalog)
	s.index.Store(&empty)
	return s
}

// Get returns the current snapshot for productID.
func (s *Store) Get(productID string) (*Catalog, bool) {
	cat, ok := (*s.index.Load())[productID]
	return cat, ok
}

// Publish replaces the snapshot for the catalog's product.
func (s *Store) Publish(cat *Catalog) {
	s.swap(func(next map[string]*Catalog) {
		next[cat.ProductID] = cat
	})
}

// Invalidate drops the snapshot so the next read rebuilds it.
func (s *Store) Invalidate(productID string) {
	s.swap(func(next map[string]*Catalog) {
		delete(next, productID)
	})
}

func (s *Store) Len() int {
	return len(*s.index.Load())
}

func (s *Store) swap(mutate func(map[string]*Catalog)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := *s.index.Load()
	next := make(map[string]*Catalog, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	mutate(next)
	s.index.Store(&next)
}
