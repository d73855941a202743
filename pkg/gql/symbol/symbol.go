// Package symbol implements the query pipeline's single-pass name
// resolver: it walks a parsed query, assigns each bound name a frame
// slot, and rejects references to names that are not in scope.
package symbol

import (
	"fmt"

	"github.com/jsoref/memgraph/pkg/gql/ast"
)

// SemanticError reports a resolution failure: an undefined reference,
// a pattern name rebound as an incompatible element kind, or an
// aggregation given more than one argument. The resolver does not
// reject aggregations by position (for example inside WHERE).
type SemanticError struct {
	Msg string
}

func (e *SemanticError) Error() string { return "semantic error: " + e.Msg }

// Kind classifies what a symbol's slot holds.
type Kind int

const (
	KindScalar Kind = iota
	KindVertex
	KindEdge
	KindPath
)

// Symbol is one bound name: a frame slot plus the kind of value it
// carries, tracked so the resolver can reject pattern re-references
// (e.g. a name bound to an edge cannot recur as a node).
type Symbol struct {
	Name string
	Slot int
	Kind Kind
}

// Table is the resolved symbol table for one query: name -> Symbol,
// plus max_position, the frame length every cursor chain allocates.
type Table struct {
	byName      map[string]*Symbol
	order       []*Symbol
	maxPosition int
}

// NewTable creates an empty symbol table.
func NewTable() *Table {
	return &Table{byName: make(map[string]*Symbol)}
}

// Lookup returns the symbol bound to name, if any.
func (t *Table) Lookup(name string) (*Symbol, bool) {
	s, ok := t.byName[name]
	return s, ok
}

// MaxPosition is the next free frame slot; also the frame's length.
func (t *Table) MaxPosition() int { return t.maxPosition }

// Symbols returns every declared symbol in declaration order.
func (t *Table) Symbols() []*Symbol { return t.order }

func (t *Table) declare(name string, kind Kind) *Symbol {
	if s, ok := t.byName[name]; ok {
		return s
	}
	s := &Symbol{Name: name, Slot: t.maxPosition, Kind: kind}
	t.maxPosition++
	t.byName[name] = s
	t.order = append(t.order, s)
	return s
}

// resolver carries the state needed across one Resolve pass: the
// table under construction and the current WITH-narrowed visible
// scope (nil means everything declared so far is visible).
type resolver struct {
	table   *Table
	visible map[string]bool // nil = unrestricted
}

// Resolve walks q's clauses in order, declaring a symbol for each
// newly bound name and validating every reference against what's
// currently in scope. It returns the finished, immutable table.
func Resolve(q *ast.Query) (*Table, error) {
	r := &resolver{table: NewTable()}
	for _, clause := range q.Clauses {
		if err := r.clause(clause); err != nil {
			return nil, err
		}
	}
	return r.table, nil
}

func (r *resolver) inScope(name string) bool {
	if r.visible == nil {
		_, ok := r.table.byName[name]
		return ok
	}
	return r.visible[name]
}

func (r *resolver) clause(c ast.Clause) error {
	switch cl := c.(type) {
	case *ast.MatchClause:
		return r.matchClause(cl)
	case *ast.CreateClause:
		for _, part := range cl.Patterns {
			if err := r.pattern(part); err != nil {
				return err
			}
		}
		return nil
	case *ast.MergeClause:
		if err := r.pattern(cl.Pattern); err != nil {
			return err
		}
		for _, item := range cl.OnCreate {
			if err := r.setItem(item); err != nil {
				return err
			}
		}
		for _, item := range cl.OnMatch {
			if err := r.setItem(item); err != nil {
				return err
			}
		}
		return nil
	case *ast.SetClause:
		for _, item := range cl.Items {
			if err := r.setItem(item); err != nil {
				return err
			}
		}
		return nil
	case *ast.RemoveClause:
		for _, item := range cl.Items {
			if err := r.expr(item.Target); err != nil {
				return err
			}
		}
		return nil
	case *ast.DeleteClause:
		for _, e := range cl.Exprs {
			if err := r.expr(e); err != nil {
				return err
			}
		}
		return nil
	case *ast.UnwindClause:
		if err := r.expr(cl.Expr); err != nil {
			return err
		}
		r.table.declare(cl.As, KindScalar)
		r.widenVisible(cl.As)
		return nil
	case *ast.CallClause:
		for _, a := range cl.Args {
			if err := r.expr(a); err != nil {
				return err
			}
		}
		for _, y := range cl.Yield {
			r.table.declare(y, KindScalar)
			r.widenVisible(y)
		}
		return nil
	case *ast.WithClause:
		return r.projection(cl.Items, cl.Star, cl.OrderBy, cl.Where)
	case *ast.ReturnClause:
		return r.projection(cl.Items, cl.Star, cl.OrderBy, nil)
	case *ast.CreateIndexClause:
		return nil
	default:
		return &SemanticError{Msg: fmt.Sprintf("unknown clause type %T", c)}
	}
}

func (r *resolver) widenVisible(name string) {
	if r.visible != nil {
		r.visible[name] = true
	}
}

func (r *resolver) matchClause(cl *ast.MatchClause) error {
	for _, part := range cl.Patterns {
		if err := r.pattern(part); err != nil {
			return err
		}
	}
	if cl.Where != nil {
		if err := r.expr(cl.Where); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) pattern(part ast.PatternPart) error {
	if part.PathVariable != "" {
		r.table.declare(part.PathVariable, KindPath)
		r.widenVisible(part.PathVariable)
	}
	for _, el := range part.Elements {
		switch {
		case el.Node != nil:
			if el.Node.Variable != "" {
				if s, ok := r.table.Lookup(el.Node.Variable); ok && r.inScope(s.Name) && (s.Kind == KindEdge || s.Kind == KindPath) {
					return &SemanticError{Msg: fmt.Sprintf("%q is already bound to an edge or path and cannot be a node", s.Name)}
				}
				r.table.declare(el.Node.Variable, KindVertex)
				r.widenVisible(el.Node.Variable)
			}
			for _, e := range el.Node.Props {
				if err := r.expr(e); err != nil {
					return err
				}
			}
		case el.Rel != nil:
			if el.Rel.Variable != "" {
				if s, ok := r.table.Lookup(el.Rel.Variable); ok && r.inScope(s.Name) && (s.Kind == KindVertex || s.Kind == KindPath) {
					return &SemanticError{Msg: fmt.Sprintf("%q is already bound to a node or path and cannot be a relationship", s.Name)}
				}
				r.table.declare(el.Rel.Variable, KindEdge)
				r.widenVisible(el.Rel.Variable)
			}
			for _, e := range el.Rel.Props {
				if err := r.expr(e); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (r *resolver) setItem(item ast.SetItem) error {
	if err := r.expr(item.Target); err != nil {
		return err
	}
	if item.Value != nil {
		return r.expr(item.Value)
	}
	return nil
}

// projection resolves a RETURN/WITH item list, then (for WITH) narrows
// the visible scope to exactly the projected names, per the spec's
// "names imported by WITH are the only names visible after" rule.
func (r *resolver) projection(items []ast.ReturnItem, star bool, order []ast.OrderItem, where ast.Expression) error {
	if !star {
		for _, it := range items {
			if err := r.expr(it.Expr); err != nil {
				return err
			}
		}
	}

	next := make(map[string]bool)
	if star {
		for name := range r.table.byName {
			if r.inScope(name) {
				next[name] = true
			}
		}
	} else {
		for _, it := range items {
			name := it.Alias
			if name == "" {
				if id, ok := it.Expr.(*ast.Identifier); ok {
					name = id.Name
				}
			}
			if name == "" {
				continue
			}
			r.table.declare(name, KindScalar)
			next[name] = true
		}
	}
	r.visible = next

	for _, o := range order {
		if err := r.expr(o.Expr); err != nil {
			return err
		}
	}
	if where != nil {
		if err := r.expr(where); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) expr(e ast.Expression) error {
	if e == nil {
		return nil
	}
	switch ex := e.(type) {
	case *ast.Literal, *ast.Parameter:
		return nil
	case *ast.Identifier:
		if !r.inScope(ex.Name) {
			return &SemanticError{Msg: fmt.Sprintf("undefined reference to %q", ex.Name)}
		}
		return nil
	case *ast.PathExpr:
		if !r.inScope(ex.Variable) {
			return &SemanticError{Msg: fmt.Sprintf("undefined path reference to %q", ex.Variable)}
		}
		return nil
	case *ast.PropertyLookup:
		return r.expr(ex.Base)
	case *ast.ListLiteral:
		for _, it := range ex.Items {
			if err := r.expr(it); err != nil {
				return err
			}
		}
		return nil
	case *ast.MapLiteral:
		for _, k := range ex.Order {
			if err := r.expr(ex.Entries[k]); err != nil {
				return err
			}
		}
		return nil
	case *ast.FunctionCall:
		if isAggregate(ex.Name) && len(ex.Args) > 1 {
			return &SemanticError{Msg: fmt.Sprintf("aggregation %s takes at most one argument", ex.Name)}
		}
		for _, a := range ex.Args {
			if err := r.expr(a); err != nil {
				return err
			}
		}
		return nil
	case *ast.BinaryExpr:
		if err := r.expr(ex.Left); err != nil {
			return err
		}
		return r.expr(ex.Right)
	case *ast.UnaryExpr:
		return r.expr(ex.Expr)
	case *ast.IsNullExpr:
		return r.expr(ex.Expr)
	case *ast.ListComprehension:
		if err := r.expr(ex.List); err != nil {
			return err
		}
		// the comprehension variable is local: temporarily widen scope
		saved := r.visible
		local := make(map[string]bool)
		for k := range r.snapshotVisible() {
			local[k] = true
		}
		r.table.declare(ex.Variable, KindScalar)
		local[ex.Variable] = true
		r.visible = local
		defer func() { r.visible = saved }()
		if ex.Filter != nil {
			if err := r.expr(ex.Filter); err != nil {
				return err
			}
		}
		if ex.Project != nil {
			return r.expr(ex.Project)
		}
		return nil
	case *ast.CaseExpr:
		if ex.Test != nil {
			if err := r.expr(ex.Test); err != nil {
				return err
			}
		}
		for _, w := range ex.Whens {
			if err := r.expr(w.Cond); err != nil {
				return err
			}
			if err := r.expr(w.Result); err != nil {
				return err
			}
		}
		if ex.Default != nil {
			return r.expr(ex.Default)
		}
		return nil
	default:
		return &SemanticError{Msg: fmt.Sprintf("unknown expression type %T", e)}
	}
}

func (r *resolver) snapshotVisible() map[string]bool {
	if r.visible != nil {
		return r.visible
	}
	all := make(map[string]bool, len(r.table.byName))
	for k := range r.table.byName {
		all[k] = true
	}
	return all
}

var aggregateNames = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true, "collect": true,
}

// IsAggregate reports whether name is one of the closed set of
// aggregation functions the planner recognizes when deciding whether
// a projection needs an Aggregate operator.
func IsAggregate(name string) bool { return isAggregate(name) }

func isAggregate(name string) bool {
	return aggregateNames[lower(name)]
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
