// Package graph provides the property-graph data model shared by the
// query pipeline: typed values with Cypher's three-valued logic, vertex
// and edge handles, and paths.
package graph

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDouble
	KindString
	KindList
	KindMap
	KindVertex
	KindEdge
	KindPath
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindBool:
		return "BOOL"
	case KindInt:
		return "INT"
	case KindDouble:
		return "DOUBLE"
	case KindString:
		return "STRING"
	case KindList:
		return "LIST"
	case KindMap:
		return "MAP"
	case KindVertex:
		return "VERTEX"
	case KindEdge:
		return "EDGE"
	case KindPath:
		return "PATH"
	default:
		return "UNKNOWN"
	}
}

// Value is a tagged union over Cypher's runtime value domain: null,
// boolean, integer, double, string, list, map, vertex handle, edge
// handle, and path. The zero Value is null.
type Value struct {
	kind   Kind
	b      bool
	i      int64
	d      float64
	s      string
	list   []Value
	m      map[string]Value
	vertex *Vertex
	edge   *Edge
	path   *Path
}

// Null is the null value.
var Null = Value{kind: KindNull}

func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Int(i int64) Value      { return Value{kind: KindInt, i: i} }
func Double(d float64) Value { return Value{kind: KindDouble, d: d} }
func Str(s string) Value     { return Value{kind: KindString, s: s} }
func List(vs []Value) Value  { return Value{kind: KindList, list: vs} }
func Map(m map[string]Value) Value {
	return Value{kind: KindMap, m: m}
}
func VertexVal(v *Vertex) Value { return Value{kind: KindVertex, vertex: v} }
func EdgeVal(e *Edge) Value     { return Value{kind: KindEdge, edge: e} }
func PathVal(p *Path) Value     { return Value{kind: KindPath, path: p} }

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }
func (v Value) AsBool() bool    { return v.b }
func (v Value) AsInt() int64    { return v.i }
func (v Value) AsDouble() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.d
}
func (v Value) AsString() string      { return v.s }
func (v Value) AsList() []Value       { return v.list }
func (v Value) AsMap() map[string]Value { return v.m }
func (v Value) AsVertex() *Vertex     { return v.vertex }
func (v Value) AsEdge() *Edge         { return v.edge }
func (v Value) AsPath() *Path         { return v.path }

func (v Value) IsNumeric() bool { return v.kind == KindInt || v.kind == KindDouble }

// String renders a value the way a result printer would.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindDouble:
		return fmt.Sprintf("%g", v.d)
	case KindString:
		return v.s
	case KindList:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %s", k, v.m[k].String())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindVertex:
		return v.vertex.String()
	case KindEdge:
		return v.edge.String()
	case KindPath:
		return v.path.String()
	default:
		return "?"
	}
}

// Tribool is Cypher's three-valued logic domain.
type Tribool int

const (
	TriFalse Tribool = iota
	TriTrue
	TriNull
)

func triFromBool(b bool) Tribool {
	if b {
		return TriTrue
	}
	return TriFalse
}

// AsBoolValue lifts a Tribool into a null/true/false Value, the
// operation Filter (§4.5) applies before testing for boolean true.
func (t Tribool) AsBoolValue() Value {
	switch t {
	case TriTrue:
		return Bool(true)
	case TriFalse:
		return Bool(false)
	default:
		return Null
	}
}

// Equal implements Cypher equality: any null operand yields TriNull;
// comparisons across unrelated types yield TriNull rather than false.
func Equal(a, b Value) Tribool {
	if a.IsNull() || b.IsNull() {
		return TriNull
	}
	if a.IsNumeric() && b.IsNumeric() {
		return triFromBool(a.AsDouble() == b.AsDouble())
	}
	if a.kind != b.kind {
		return TriNull
	}
	switch a.kind {
	case KindBool:
		return triFromBool(a.b == b.b)
	case KindString:
		return triFromBool(a.s == b.s)
	case KindList:
		if len(a.list) != len(b.list) {
			return TriFalse
		}
		for i := range a.list {
			if Equal(a.list[i], b.list[i]) != TriTrue {
				return TriFalse
			}
		}
		return TriTrue
	case KindVertex:
		return triFromBool(a.vertex.ID == b.vertex.ID)
	case KindEdge:
		return triFromBool(a.edge.ID == b.edge.ID)
	default:
		return TriNull
	}
}

// Compare implements Cypher ordering; ok is false when the two values
// are not order-comparable (unrelated types), in which case callers
// must treat the result as null.
func Compare(a, b Value) (result int, ok bool) {
	if a.IsNull() || b.IsNull() {
		return 0, false
	}
	if a.IsNumeric() && b.IsNumeric() {
		da, db := a.AsDouble(), b.AsDouble()
		switch {
		case da < db:
			return -1, true
		case da > db:
			return 1, true
		default:
			return 0, true
		}
	}
	if a.kind != b.kind {
		return 0, false
	}
	switch a.kind {
	case KindString:
		return strings.Compare(a.s, b.s), true
	case KindBool:
		if a.b == b.b {
			return 0, true
		}
		if !a.b && b.b {
			return -1, true
		}
		return 1, true
	default:
		return 0, false
	}
}

// Add implements Cypher '+': arithmetic on null returns null; string
// concatenation and list concatenation are also supported.
func Add(a, b Value) Value {
	if a.IsNull() || b.IsNull() {
		return Null
	}
	if a.kind == KindString || b.kind == KindString {
		return Str(a.String() + b.String())
	}
	if a.kind == KindList {
		out := append(append([]Value{}, a.list...), b.list...)
		return List(out)
	}
	if a.IsNumeric() && b.IsNumeric() {
		if a.kind == KindInt && b.kind == KindInt {
			return Int(a.i + b.i)
		}
		return Double(a.AsDouble() + b.AsDouble())
	}
	return Null
}

func arith(a, b Value, iop func(int64, int64) int64, dop func(float64, float64) float64) Value {
	if a.IsNull() || b.IsNull() || !a.IsNumeric() || !b.IsNumeric() {
		return Null
	}
	if a.kind == KindInt && b.kind == KindInt {
		return Int(iop(a.i, b.i))
	}
	return Double(dop(a.AsDouble(), b.AsDouble()))
}

func Sub(a, b Value) Value {
	return arith(a, b, func(x, y int64) int64 { return x - y }, func(x, y float64) float64 { return x - y })
}
func Mul(a, b Value) Value {
	return arith(a, b, func(x, y int64) int64 { return x * y }, func(x, y float64) float64 { return x * y })
}
func Div(a, b Value) Value {
	if a.IsNull() || b.IsNull() || !a.IsNumeric() || !b.IsNumeric() {
		return Null
	}
	if a.kind == KindInt && b.kind == KindInt {
		if b.i == 0 {
			return Null
		}
		return Int(a.i / b.i)
	}
	db := b.AsDouble()
	if db == 0 {
		return Double(math.NaN())
	}
	return Double(a.AsDouble() / db)
}
func Mod(a, b Value) Value {
	if a.IsNull() || b.IsNull() || !a.IsNumeric() || !b.IsNumeric() {
		return Null
	}
	if a.kind == KindInt && b.kind == KindInt {
		if b.i == 0 {
			return Null
		}
		return Int(a.i % b.i)
	}
	return Double(math.Mod(a.AsDouble(), b.AsDouble()))
}

// And/Or implement Kleene three-valued logic.
func And(a, b Tribool) Tribool {
	if a == TriFalse || b == TriFalse {
		return TriFalse
	}
	if a == TriNull || b == TriNull {
		return TriNull
	}
	return TriTrue
}

func Or(a, b Tribool) Tribool {
	if a == TriTrue || b == TriTrue {
		return TriTrue
	}
	if a == TriNull || b == TriNull {
		return TriNull
	}
	return TriFalse
}

func Not(a Tribool) Tribool {
	switch a {
	case TriTrue:
		return TriFalse
	case TriFalse:
		return TriTrue
	default:
		return TriNull
	}
}

// ToTribool lifts a boolean Value into Tribool; non-boolean, non-null
// values are treated as null per Cypher predicate evaluation.
func ToTribool(v Value) Tribool {
	switch v.kind {
	case KindNull:
		return TriNull
	case KindBool:
		return triFromBool(v.b)
	default:
		return TriNull
	}
}
