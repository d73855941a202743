package graph

import "context"

// PropertyRange bounds a range scan (§4.5 ScanAllByLabelPropertyRange).
// A nil Lower or Upper bound means that side is unbounded, matching
// spec.md §4.5: "null bound on either side treats that side as
// unbounded."
type PropertyRange struct {
	Lower          *Value
	LowerInclusive bool
	Upper          *Value
	UpperInclusive bool
}

// VertexIterator yields vertex handles lazily; operators pull from it
// one at a time rather than materializing a slice, so a ScanAll over a
// large graph does not allocate the whole vertex set up front.
type VertexIterator interface {
	Next() (*Vertex, bool)
}

// EdgeIterator yields edge handles lazily.
type EdgeIterator interface {
	Next() (*Edge, bool)
}

// Accessor is the Graph Accessor Contract (§4.8) consumed by the
// operator library. It is scoped to one transaction: every method
// observes that transaction's MVCC snapshot plus any writes already
// made visible by AdvanceCommand.
type Accessor interface {
	// Vertices iterates all vertices visible in the transaction,
	// optionally restricted to one label (ScanAll / ScanAllByLabel).
	Vertices(label string) VertexIterator

	// IndexLookup probes a label+property index for equality
	// (ScanAllByLabelPropertyValue) or a range (ScanAllByLabelPropertyRange).
	IndexLookup(label, property string, value *Value, rng *PropertyRange) (VertexIterator, error)

	// IsIndexed reports whether an index exists for label+property, so
	// the planner can choose an index scan operator.
	IsIndexed(label, property string) bool

	// Edges iterates edges incident to v in the given direction,
	// optionally restricted to a set of edge types.
	Edges(v *Vertex, dir Direction, types []string) EdgeIterator

	// VertexByID looks up a single vertex by identity, honoring the
	// transaction's snapshot.
	VertexByID(id ID) (*Vertex, bool)

	// Mutations.
	CreateVertex(labels []string, props map[string]Value) (*Vertex, error)
	CreateEdge(from, to ID, edgeType string, props map[string]Value) (*Edge, error)
	SetProperty(target Value, key string, val Value) error
	SetProperties(target Value, props map[string]Value, replace bool) error
	AddLabel(v *Vertex, label string) error
	RemoveLabel(v *Vertex, label string) error
	RemoveProperty(target Value, key string) error
	DeleteVertex(v *Vertex) error
	DeleteEdge(e *Edge) error
	// DetachDeleteVertex deletes v and every edge incident to it.
	DetachDeleteVertex(v *Vertex) error

	// AdvanceCommand makes prior writes in this transaction visible to
	// subsequent reads in the same transaction (MVCC command-counter
	// discipline referenced throughout §4.5/§4.8).
	AdvanceCommand()

	Commit(ctx context.Context) error
	Abort(ctx context.Context) error

	// CreateIndex materializes a label+property index; its created
	// result reports whether this call actually created a new index
	// (used to decide whether to invalidate the plan cache, §4.6/§4.7).
	// IsIndexCreated reports whether the index exists.
	CreateIndex(label, property string) (created bool, err error)
	IsIndexCreated(label, property string) bool
}
