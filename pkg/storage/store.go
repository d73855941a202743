// Package storage implements the Graph Accessor Contract on top of an
// in-memory, MVCC-versioned vertex/edge store. Durability to disk is
// out of scope: vertices and edges live entirely in version chains
// keyed by graph.ID, with label buckets and adjacency lists for scans
// and traversal, and optional property indexes for index-scan queries.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/jsoref/memgraph/pkg/graph"
	"github.com/jsoref/memgraph/pkg/lock"
	"github.com/jsoref/memgraph/pkg/txn"
)

// vertexVersion is one MVCC version of a vertex. older points to the
// previous version so a transaction with an earlier snapshot can walk
// back to the version it is allowed to see.
type vertexVersion struct {
	header txn.MVCCHeader
	vertex *graph.Vertex
	older  *vertexVersion
}

type edgeVersion struct {
	header txn.MVCCHeader
	edge   *graph.Edge
	older  *edgeVersion
}

type indexKey struct {
	label    string
	property string
}

// Store is the in-memory graph: vertex/edge version chains keyed by
// ID, label buckets for ScanAllByLabel, adjacency lists for Expand,
// and optional property indexes for the index-scan operators.
type Store struct {
	mu sync.RWMutex

	vertices map[graph.ID]*vertexVersion
	edges    map[graph.ID]*edgeVersion

	labelIndex map[string]map[graph.ID]struct{}
	adjOut     map[graph.ID][]graph.ID // vertex ID -> edge IDs where it is the source
	adjIn      map[graph.ID][]graph.ID // vertex ID -> edge IDs where it is the target

	indexes map[indexKey]*propertyIndex

	txnMgr  *txn.Manager
	lockMgr *lock.Manager

	idSeq atomic.Uint64
}

// NewStore creates an empty graph store bound to the given transaction
// and lock managers.
func NewStore(txnMgr *txn.Manager, lockMgr *lock.Manager) *Store {
	return &Store{
		vertices:   make(map[graph.ID]*vertexVersion),
		edges:      make(map[graph.ID]*edgeVersion),
		labelIndex: make(map[string]map[graph.ID]struct{}),
		adjOut:     make(map[graph.ID][]graph.ID),
		adjIn:      make(map[graph.ID][]graph.ID),
		indexes:    make(map[indexKey]*propertyIndex),
		txnMgr:     txnMgr,
		lockMgr:    lockMgr,
	}
}

func (s *Store) nextID() graph.ID {
	return graph.ID(s.idSeq.Add(1))
}

// Begin starts a new transaction-scoped Session over this store.
func (s *Store) Begin() *Session {
	tx := s.txnMgr.Begin()
	return &Session{store: s, tx: tx}
}

// LabelCounts returns the number of vertices currently indexed under
// each label, read directly off the label buckets without opening a
// transaction. It does not apply MVCC visibility, and entries are never
// removed from the label buckets, so a deleted or relabeled vertex is
// still counted; pkg/observability uses it for coarse label cardinality
// metrics, not query results.
func (s *Store) LabelCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(s.labelIndex))
	for label, ids := range s.labelIndex {
		counts[label] = len(ids)
	}
	return counts
}

// VertexCount returns the number of vertex version chains currently
// tracked, including those whose newest version is a tombstone
// (chains are never removed).
func (s *Store) VertexCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vertices)
}

// EdgeCount returns the number of edge version chains currently
// tracked, with the same tombstone caveat as VertexCount.
func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// Session implements graph.Accessor for one transaction's lifetime.
type Session struct {
	store *Store
	tx    *txn.Transaction
}

// Tx exposes the underlying transaction, e.g. for explicit-transaction
// session management (spec §7).
func (a *Session) Tx() *txn.Transaction { return a.tx }

func (a *Session) visible(h txn.MVCCHeader) bool {
	return txn.IsVisible(&h, a.tx.Snapshot, a.store.txnMgr, a.tx.ID, a.tx.Command())
}

func (a *Session) visibleVertex(head *vertexVersion) *graph.Vertex {
	for v := head; v != nil; v = v.older {
		if a.visible(v.header) {
			return v.vertex
		}
	}
	return nil
}

func (a *Session) visibleEdge(head *edgeVersion) *graph.Edge {
	for v := head; v != nil; v = v.older {
		if a.visible(v.header) {
			return v.edge
		}
	}
	return nil
}

// sliceVertexIterator implements graph.VertexIterator over a
// pre-materialized candidate ID list, filtering to the visible
// version of each ID lazily.
type sliceVertexIterator struct {
	sess *Session
	ids  []graph.ID
	pos  int
}

func (it *sliceVertexIterator) Next() (*graph.Vertex, bool) {
	it.sess.store.mu.RLock()
	defer it.sess.store.mu.RUnlock()
	for it.pos < len(it.ids) {
		id := it.ids[it.pos]
		it.pos++
		head, ok := it.sess.store.vertices[id]
		if !ok {
			continue
		}
		if v := it.sess.visibleVertex(head); v != nil {
			return v, true
		}
	}
	return nil, false
}

type sliceEdgeIterator struct {
	sess *Session
	ids  []graph.ID
	pos  int
}

func (it *sliceEdgeIterator) Next() (*graph.Edge, bool) {
	it.sess.store.mu.RLock()
	defer it.sess.store.mu.RUnlock()
	for it.pos < len(it.ids) {
		id := it.ids[it.pos]
		it.pos++
		head, ok := it.sess.store.edges[id]
		if !ok {
			continue
		}
		if e := it.sess.visibleEdge(head); e != nil {
			return e, true
		}
	}
	return nil, false
}

// Vertices implements graph.Accessor.
func (a *Session) Vertices(label string) graph.VertexIterator {
	s := a.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []graph.ID
	if label == "" {
		ids = make([]graph.ID, 0, len(s.vertices))
		for id := range s.vertices {
			ids = append(ids, id)
		}
	} else {
		bucket := s.labelIndex[label]
		ids = make([]graph.ID, 0, len(bucket))
		for id := range bucket {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return &sliceVertexIterator{sess: a, ids: ids}
}

// IsIndexed implements graph.Accessor.
func (a *Session) IsIndexed(label, property string) bool {
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()
	_, ok := a.store.indexes[indexKey{label, property}]
	return ok
}

// IndexLookup implements graph.Accessor.
func (a *Session) IndexLookup(label, property string, value *graph.Value, rng *graph.PropertyRange) (graph.VertexIterator, error) {
	a.store.mu.RLock()
	idx, ok := a.store.indexes[indexKey{label, property}]
	a.store.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: no index on :%s(%s)", label, property)
	}

	var ids []graph.ID
	if value != nil {
		ids = idx.lookupEqual(*value)
	} else {
		ids = idx.lookupRange(rng)
	}
	return &sliceVertexIterator{sess: a, ids: ids}, nil
}

// Edges implements graph.Accessor.
func (a *Session) Edges(v *graph.Vertex, dir graph.Direction, types []string) graph.EdgeIterator {
	s := a.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []graph.ID
	switch dir {
	case graph.DirOut:
		candidates = append(candidates, s.adjOut[v.ID]...)
	case graph.DirIn:
		candidates = append(candidates, s.adjIn[v.ID]...)
	default:
		candidates = append(candidates, s.adjOut[v.ID]...)
		candidates = append(candidates, s.adjIn[v.ID]...)
	}

	if len(types) == 0 {
		return &sliceEdgeIterator{sess: a, ids: candidates}
	}

	typeSet := make(map[string]struct{}, len(types))
	for _, t := range types {
		typeSet[t] = struct{}{}
	}
	filtered := make([]graph.ID, 0, len(candidates))
	for _, id := range candidates {
		head, ok := s.edges[id]
		if !ok {
			continue
		}
		if e := a.visibleEdge(head); e != nil {
			if _, want := typeSet[e.Type()]; want {
				filtered = append(filtered, id)
			}
		}
	}
	return &sliceEdgeIterator{sess: a, ids: filtered}
}

// VertexByID implements graph.Accessor.
func (a *Session) VertexByID(id graph.ID) (*graph.Vertex, bool) {
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()
	head, ok := a.store.vertices[id]
	if !ok {
		return nil, false
	}
	v := a.visibleVertex(head)
	return v, v != nil
}

// CreateVertex implements graph.Accessor.
func (a *Session) CreateVertex(labels []string, props map[string]graph.Value) (*graph.Vertex, error) {
	s := a.store
	id := s.nextID()
	v := graph.NewVertex(id, labels, props)
	header := txn.MVCCHeader{XMin: a.tx.ID, XMax: txn.InvalidTxID, CMin: a.tx.Command()}

	s.mu.Lock()
	s.vertices[id] = &vertexVersion{header: header, vertex: v}
	for _, l := range labels {
		if s.labelIndex[l] == nil {
			s.labelIndex[l] = make(map[graph.ID]struct{})
		}
		s.labelIndex[l][id] = struct{}{}
	}
	s.mu.Unlock()

	s.indexInsert(v)
	return v, nil
}

// indexInsert adds v's indexed properties to every matching property index.
func (a *Store) indexInsert(v *graph.Vertex) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, l := range v.Labels() {
		for key, idx := range a.indexes {
			if key.label != l {
				continue
			}
			if val, ok := v.Properties()[key.property]; ok {
				idx.insert(val, v.ID)
			}
		}
	}
}

func (a *Store) indexRemove(v *graph.Vertex) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, l := range v.Labels() {
		for key, idx := range a.indexes {
			if key.label != l {
				continue
			}
			if val, ok := v.Properties()[key.property]; ok {
				idx.remove(val, v.ID)
			}
		}
	}
}

// CreateEdge implements graph.Accessor.
func (a *Session) CreateEdge(from, to graph.ID, edgeType string, props map[string]graph.Value) (*graph.Edge, error) {
	s := a.store
	id := s.nextID()
	e := graph.NewEdge(id, edgeType, from, to, props)
	header := txn.MVCCHeader{XMin: a.tx.ID, XMax: txn.InvalidTxID, CMin: a.tx.Command()}

	s.mu.Lock()
	s.edges[id] = &edgeVersion{header: header, edge: e}
	s.adjOut[from] = append(s.adjOut[from], id)
	s.adjIn[to] = append(s.adjIn[to], id)
	s.mu.Unlock()
	return e, nil
}

func (a *Session) lockElement(id graph.ID) error {
	return a.store.lockMgr.Acquire(a.tx.ID, lock.ElementResource(id), lock.ModeExclusive)
}

// SetProperty implements graph.Accessor.
func (a *Session) SetProperty(target graph.Value, key string, val graph.Value) error {
	return a.SetProperties(target, map[string]graph.Value{key: val}, false)
}

// SetProperties implements graph.Accessor. When replace is true the
// element's whole property map is replaced (Cypher `SET n = {...}`);
// otherwise props are merged in (`SET n += {...}`).
func (a *Session) SetProperties(target graph.Value, props map[string]graph.Value, replace bool) error {
	switch target.Kind() {
	case graph.KindVertex:
		old := target.AsVertex()
		if err := a.lockElement(old.ID); err != nil {
			return err
		}
		merged := mergeProps(old.Properties(), props, replace)
		nv := graph.NewVertex(old.ID, old.Labels(), merged)
		return a.replaceVertex(old, nv)
	case graph.KindEdge:
		old := target.AsEdge()
		if err := a.lockElement(old.ID); err != nil {
			return err
		}
		merged := mergeProps(old.Properties(), props, replace)
		ne := graph.NewEdge(old.ID, old.Type(), old.From(), old.To(), merged)
		return a.replaceEdge(old, ne)
	default:
		return fmt.Errorf("storage: SetProperties target must be a vertex or edge")
	}
}

func mergeProps(base map[string]graph.Value, delta map[string]graph.Value, replace bool) map[string]graph.Value {
	out := make(map[string]graph.Value)
	if !replace {
		for k, v := range base {
			out[k] = v
		}
	}
	for k, v := range delta {
		out[k] = v
	}
	return out
}

// RemoveProperty implements graph.Accessor.
func (a *Session) RemoveProperty(target graph.Value, key string) error {
	switch target.Kind() {
	case graph.KindVertex:
		old := target.AsVertex()
		if err := a.lockElement(old.ID); err != nil {
			return err
		}
		props := make(map[string]graph.Value)
		for k, v := range old.Properties() {
			if k != key {
				props[k] = v
			}
		}
		nv := graph.NewVertex(old.ID, old.Labels(), props)
		return a.replaceVertex(old, nv)
	case graph.KindEdge:
		old := target.AsEdge()
		if err := a.lockElement(old.ID); err != nil {
			return err
		}
		props := make(map[string]graph.Value)
		for k, v := range old.Properties() {
			if k != key {
				props[k] = v
			}
		}
		ne := graph.NewEdge(old.ID, old.Type(), old.From(), old.To(), props)
		return a.replaceEdge(old, ne)
	default:
		return fmt.Errorf("storage: RemoveProperty target must be a vertex or edge")
	}
}

// AddLabel implements graph.Accessor.
func (a *Session) AddLabel(v *graph.Vertex, label string) error {
	if err := a.lockElement(v.ID); err != nil {
		return err
	}
	if v.HasLabel(label) {
		return nil
	}
	labels := append(append([]string{}, v.Labels()...), label)
	nv := graph.NewVertex(v.ID, labels, v.Properties())
	if err := a.replaceVertex(v, nv); err != nil {
		return err
	}
	a.store.mu.Lock()
	if a.store.labelIndex[label] == nil {
		a.store.labelIndex[label] = make(map[graph.ID]struct{})
	}
	a.store.labelIndex[label][v.ID] = struct{}{}
	a.store.mu.Unlock()
	return nil
}

// RemoveLabel implements graph.Accessor.
func (a *Session) RemoveLabel(v *graph.Vertex, label string) error {
	if err := a.lockElement(v.ID); err != nil {
		return err
	}
	if !v.HasLabel(label) {
		return nil
	}
	labels := make([]string, 0, len(v.Labels()))
	for _, l := range v.Labels() {
		if l != label {
			labels = append(labels, l)
		}
	}
	nv := graph.NewVertex(v.ID, labels, v.Properties())
	return a.replaceVertex(v, nv)
}

// replaceVertex retires the old version and installs a new one under
// the same ID, both stamped with the current command counter.
func (a *Session) replaceVertex(old, next *graph.Vertex) error {
	s := a.store
	s.mu.Lock()
	head, ok := s.vertices[old.ID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("storage: vertex %d not found", old.ID)
	}
	if ok, err := txn.CanModify(&head.header, a.tx.ID, s.txnMgr); err != nil {
		s.mu.Unlock()
		return err
	} else if !ok {
		s.mu.Unlock()
		return txn.ErrSerializationFailure
	}
	head.header.XMax = a.tx.ID
	head.header.CMax = a.tx.Command()
	newHeader := txn.MVCCHeader{XMin: a.tx.ID, XMax: txn.InvalidTxID, CMin: a.tx.Command()}
	s.vertices[old.ID] = &vertexVersion{header: newHeader, vertex: next, older: head}
	s.mu.Unlock()

	s.indexRemove(old)
	s.indexInsert(next)
	return nil
}

func (a *Session) replaceEdge(old, next *graph.Edge) error {
	s := a.store
	s.mu.Lock()
	head, ok := s.edges[old.ID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("storage: edge %d not found", old.ID)
	}
	if ok, err := txn.CanModify(&head.header, a.tx.ID, s.txnMgr); err != nil {
		s.mu.Unlock()
		return err
	} else if !ok {
		s.mu.Unlock()
		return txn.ErrSerializationFailure
	}
	head.header.XMax = a.tx.ID
	head.header.CMax = a.tx.Command()
	newHeader := txn.MVCCHeader{XMin: a.tx.ID, XMax: txn.InvalidTxID, CMin: a.tx.Command()}
	s.edges[old.ID] = &edgeVersion{header: newHeader, edge: next, older: head}
	s.mu.Unlock()
	return nil
}

// DeleteVertex implements graph.Accessor. Deleting a vertex with
// incident edges still visible to this transaction is rejected; use
// DetachDeleteVertex instead (spec §4.5 Delete/DetachDelete split).
func (a *Session) DeleteVertex(v *graph.Vertex) error {
	if it := a.Edges(v, graph.DirBoth, nil); it != nil {
		if _, ok := it.Next(); ok {
			return fmt.Errorf("storage: cannot delete vertex %d with incident edges", v.ID)
		}
	}
	return a.deleteVertexRecord(v)
}

func (a *Session) deleteVertexRecord(v *graph.Vertex) error {
	if err := a.lockElement(v.ID); err != nil {
		return err
	}
	s := a.store
	s.mu.Lock()
	head, ok := s.vertices[v.ID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("storage: vertex %d not found", v.ID)
	}
	if ok, err := txn.CanModify(&head.header, a.tx.ID, s.txnMgr); err != nil {
		s.mu.Unlock()
		return err
	} else if !ok {
		s.mu.Unlock()
		return txn.ErrSerializationFailure
	}
	head.header.XMax = a.tx.ID
	head.header.CMax = a.tx.Command()
	s.mu.Unlock()
	s.indexRemove(v)
	return nil
}

// DeleteEdge implements graph.Accessor.
func (a *Session) DeleteEdge(e *graph.Edge) error {
	if err := a.lockElement(e.ID); err != nil {
		return err
	}
	s := a.store
	s.mu.Lock()
	head, ok := s.edges[e.ID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("storage: edge %d not found", e.ID)
	}
	if ok, err := txn.CanModify(&head.header, a.tx.ID, s.txnMgr); err != nil {
		s.mu.Unlock()
		return err
	} else if !ok {
		s.mu.Unlock()
		return txn.ErrSerializationFailure
	}
	head.header.XMax = a.tx.ID
	head.header.CMax = a.tx.Command()
	s.mu.Unlock()
	return nil
}

// DetachDeleteVertex implements graph.Accessor.
func (a *Session) DetachDeleteVertex(v *graph.Vertex) error {
	it := a.Edges(v, graph.DirBoth, nil)
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		if err := a.DeleteEdge(e); err != nil {
			return err
		}
	}
	return a.deleteVertexRecord(v)
}

// AdvanceCommand implements graph.Accessor.
func (a *Session) AdvanceCommand() { a.tx.AdvanceCommand() }

// Commit implements graph.Accessor.
func (a *Session) Commit(ctx context.Context) error {
	if err := a.store.txnMgr.Commit(a.tx.ID); err != nil {
		return err
	}
	a.store.lockMgr.ReleaseAll(a.tx.ID)
	return nil
}

// Abort implements graph.Accessor.
func (a *Session) Abort(ctx context.Context) error {
	if err := a.store.txnMgr.Abort(a.tx.ID); err != nil {
		return err
	}
	a.store.lockMgr.ReleaseAll(a.tx.ID)
	return nil
}

// CreateIndex implements graph.Accessor. It takes an exclusive label
// lock while building so concurrent label-wide scans see either the
// fully built index or none of it.
func (a *Session) CreateIndex(label, property string) (bool, error) {
	if err := a.store.lockMgr.Acquire(a.tx.ID, lock.LabelResource(label), lock.ModeExclusive); err != nil {
		return false, err
	}
	defer a.store.lockMgr.Release(a.tx.ID, lock.LabelResource(label))

	key := indexKey{label, property}
	a.store.mu.Lock()
	if _, exists := a.store.indexes[key]; exists {
		a.store.mu.Unlock()
		return false, nil
	}
	idx := newPropertyIndex()
	a.store.indexes[key] = idx
	ids := make([]graph.ID, 0, len(a.store.labelIndex[label]))
	for id := range a.store.labelIndex[label] {
		ids = append(ids, id)
	}
	a.store.mu.Unlock()

	for _, id := range ids {
		if v, ok := a.VertexByID(id); ok {
			if val, ok := v.Properties()[property]; ok {
				idx.insert(val, id)
			}
		}
	}
	return true, nil
}

// IsIndexCreated implements graph.Accessor.
func (a *Session) IsIndexCreated(label, property string) bool {
	return a.IsIndexed(label, property)
}
