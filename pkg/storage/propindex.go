package storage

import (
	"sort"
	"sync"

	"github.com/jsoref/memgraph/pkg/graph"
)

// propertyIndex is an in-memory ordered index over one label+property
// pair, kept sorted by value (insert binary-searches the position);
// lookupEqual and lookupRange scan every entry. It is not versioned:
// lookups return candidate vertex IDs which callers must re-validate against the caller's
// MVCC snapshot (the index itself has no notion of transaction
// visibility, so a matching ID may point at a version the caller
// cannot actually see yet).
type propertyIndex struct {
	mu      sync.RWMutex
	entries []indexEntry
}

type indexEntry struct {
	value graph.Value
	id    graph.ID
}

func newPropertyIndex() *propertyIndex {
	return &propertyIndex{}
}

func (idx *propertyIndex) insert(value graph.Value, id graph.ID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	pos := sort.Search(len(idx.entries), func(i int) bool {
		c, ok := graph.Compare(idx.entries[i].value, value)
		return !ok || c >= 0
	})
	idx.entries = append(idx.entries, indexEntry{})
	copy(idx.entries[pos+1:], idx.entries[pos:])
	idx.entries[pos] = indexEntry{value: value, id: id}
}

func (idx *propertyIndex) remove(value graph.Value, id graph.ID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i, e := range idx.entries {
		if e.id == id && graph.Equal(e.value, value) == graph.TriTrue {
			idx.entries = append(idx.entries[:i], idx.entries[i+1:]...)
			return
		}
	}
}

func (idx *propertyIndex) lookupEqual(value graph.Value) []graph.ID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []graph.ID
	for _, e := range idx.entries {
		if eq := graph.Equal(e.value, value); eq == graph.TriTrue {
			out = append(out, e.id)
		}
	}
	return out
}

func (idx *propertyIndex) lookupRange(rng *graph.PropertyRange) []graph.ID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []graph.ID
	for _, e := range idx.entries {
		if rng.Lower != nil {
			c, ok := graph.Compare(e.value, *rng.Lower)
			if !ok {
				continue
			}
			if c < 0 || (c == 0 && !rng.LowerInclusive) {
				continue
			}
		}
		if rng.Upper != nil {
			c, ok := graph.Compare(e.value, *rng.Upper)
			if !ok {
				continue
			}
			if c > 0 || (c == 0 && !rng.UpperInclusive) {
				continue
			}
		}
		out = append(out, e.id)
	}
	return out
}
