package audit

import (
	"bytes"
	"sort"
	"sync"

	"github.com/openuhs/go-sentinel/entities"
)

// SnapshotMap is an ordered map from UHS id to UHS element supporting
// consistent point-in-time views. Snapshot freezes the current contents
// without blocking writers: the first write after a snapshot copies the
// underlying map, so outstanding views never observe later mutations.
type SnapshotMap struct {
	mu     sync.Mutex
	elems  map[entities.Hash]entities.UhsElement
	frozen bool
}

func NewSnapshotMap() *SnapshotMap {
	return &SnapshotMap{elems: make(map[entities.Hash]entities.UhsElement)}
}

// Put inserts or replaces an element.
func (m *SnapshotMap) Put(key entities.Hash, elem entities.UhsElement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detach()
	m.elems[key] = elem
}

// Delete removes an element if present.
func (m *SnapshotMap) Delete(key entities.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detach()
	delete(m.elems, key)
}

// Get returns the element stored under key.
func (m *SnapshotMap) Get(key entities.Hash) (entities.UhsElement, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	elem, ok := m.elems[key]
	return elem, ok
}

// Len returns the number of stored elements.
func (m *SnapshotMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.elems)
}

// Snapshot returns an immutable view of the current contents. The caller
// must Release it when done.
func (m *SnapshotMap) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frozen = true
	return &Snapshot{elems: m.elems}
}

// detach copies the map if a snapshot still references it. Callers hold the
// lock.
func (m *SnapshotMap) detach() {
	if !m.frozen {
		return
	}
	clone := make(map[entities.Hash]entities.UhsElement, len(m.elems))
	for k, v := range m.elems {
		clone[k] = v
	}
	m.elems = clone
	m.frozen = false
}

// Snapshot is a frozen view of a SnapshotMap. Iteration order is ascending
// by key.
type Snapshot struct {
	elems map[entities.Hash]entities.UhsElement
	done  bool
}

// Ascend calls fn for every element in key order until fn returns false.
func (s *Snapshot) Ascend(fn func(entities.Hash, entities.UhsElement) bool) {
	keys := make([]entities.Hash, 0, len(s.elems))
	for k := range s.elems {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})
	for _, k := range keys {
		if !fn(k, s.elems[k]) {
			return
		}
	}
}

// Len returns the number of elements in the view.
func (s *Snapshot) Len() int {
	return len(s.elems)
}

// Release marks the view as no longer in use. The view must not be read
// afterwards.
func (s *Snapshot) Release() {
	s.done = true
	s.elems = nil
}
