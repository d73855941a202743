package graph

import (
	"fmt"
	"strings"
)

// Direction is the traversal direction for an edge pattern or an
// Expand operator (§4.5 Expand/ExpandVariable).
type Direction int

const (
	DirOut Direction = iota
	DirIn
	DirBoth
)

func (d Direction) String() string {
	switch d {
	case DirOut:
		return "OUT"
	case DirIn:
		return "IN"
	default:
		return "BOTH"
	}
}

// ID identifies a vertex or edge within the transactional store. IDs
// are only meaningful within the transaction that produced the handle
// carrying them (§3 invariant: "A handle read through cursor C in
// transaction T is only valid while T is live").
type ID uint64

// Vertex is a handle into the transactional store carrying identity,
// labels, and properties as observed through one transaction's
// snapshot. Vertex is populated by the storage engine on scan/lookup;
// operators never mutate it directly, they call back into the Graph
// Accessor Contract.
type Vertex struct {
	ID         ID
	labels     []string
	properties map[string]Value
}

// NewVertex constructs a Vertex snapshot view. Called by pkg/storage
// when materializing a handle for a transaction.
func NewVertex(id ID, labels []string, props map[string]Value) *Vertex {
	return &Vertex{ID: id, labels: labels, properties: props}
}

func (v *Vertex) Labels() []string { return v.labels }
func (v *Vertex) HasLabel(label string) bool {
	for _, l := range v.labels {
		if l == label {
			return true
		}
	}
	return false
}
func (v *Vertex) Properties() map[string]Value { return v.properties }
func (v *Vertex) Property(key string) Value {
	if val, ok := v.properties[key]; ok {
		return val
	}
	return Null
}

func (v *Vertex) String() string {
	labels := ""
	if len(v.labels) > 0 {
		labels = ":" + strings.Join(v.labels, ":")
	}
	return fmt.Sprintf("(v%d%s)", v.ID, labels)
}

// Edge is a handle into the transactional store carrying identity,
// type, endpoints, and properties as observed through one
// transaction's snapshot.
type Edge struct {
	ID         ID
	edgeType   string
	from       ID
	to         ID
	properties map[string]Value
}

func NewEdge(id ID, edgeType string, from, to ID, props map[string]Value) *Edge {
	return &Edge{ID: id, edgeType: edgeType, from: from, to: to, properties: props}
}

func (e *Edge) Type() string { return e.edgeType }
func (e *Edge) From() ID     { return e.from }
func (e *Edge) To() ID       { return e.to }
func (e *Edge) Properties() map[string]Value { return e.properties }
func (e *Edge) Property(key string) Value {
	if val, ok := e.properties[key]; ok {
		return val
	}
	return Null
}

// OtherEndpoint returns the endpoint of e that is not `from`. Used by
// Expand when walking edges incident to a vertex regardless of the
// direction the edge was created in.
func (e *Edge) OtherEndpoint(from ID) ID {
	if e.from == from {
		return e.to
	}
	return e.from
}

func (e *Edge) String() string {
	return fmt.Sprintf("[e%d:%s]", e.ID, e.edgeType)
}

// Path is an alternating sequence of vertex/edge handles, always
// beginning and ending with a vertex: v0 e0 v1 e1 v2 ... vn. Built by
// the ConstructNamedPath operator (§4.5).
type Path struct {
	vertices []*Vertex
	edges    []*Edge
}

// NewPath builds a path from its first vertex.
func NewPath(start *Vertex) *Path {
	return &Path{vertices: []*Vertex{start}}
}

// Extend appends one edge and its far-end vertex to the path.
func (p *Path) Extend(e *Edge, v *Vertex) *Path {
	np := &Path{
		vertices: append(append([]*Vertex{}, p.vertices...), v),
		edges:    append(append([]*Edge{}, p.edges...), e),
	}
	return np
}

func (p *Path) Vertices() []*Vertex { return p.vertices }
func (p *Path) Edges() []*Edge      { return p.edges }
func (p *Path) Length() int         { return len(p.edges) }

// ContainsEdge reports whether an edge with the given ID already
// appears on the path.
func (p *Path) ContainsEdge(id ID) bool {
	for _, e := range p.edges {
		if e.ID == id {
			return true
		}
	}
	return false
}

func (p *Path) String() string {
	var b strings.Builder
	for i, v := range p.vertices {
		b.WriteString(v.String())
		if i < len(p.edges) {
			b.WriteString("-")
			b.WriteString(p.edges[i].String())
			b.WriteString("->")
		}
	}
	return b.String()
}
