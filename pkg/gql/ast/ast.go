// Package ast defines the abstract syntax tree produced by pkg/gql/parser:
// a query is a sequence of clauses, each built from graph patterns and
// expressions.
package ast

import "github.com/jsoref/memgraph/pkg/graph"

// Query is the root node: a sequence of clauses executed in order,
// each one's bound variables flowing into the next (Cypher's WITH
// pipeline model).
type Query struct {
	Clauses []Clause
}

// Clause is any top-level query clause (MATCH, CREATE, RETURN, ...).
type Clause interface {
	clauseNode()
}

// Expression is any scalar or aggregate expression.
type Expression interface {
	exprNode()
}

// ---- Patterns ----

// NodePattern matches or creates one vertex: (n:Label {prop: val}).
type NodePattern struct {
	Variable string // "" if anonymous
	Labels   []string
	Props    map[string]Expression
}

// RelPattern matches or creates one edge: -[r:TYPE]->.
type RelPattern struct {
	Variable string
	Types    []string
	Props    map[string]Expression
	Dir      graph.Direction

	// Variable-length bounds. Both nil means a single-hop edge.
	MinHops *int
	MaxHops *int
	// BFS requests breadth-first traversal order (Cypher's
	// shortestPath-adjacent BFS ALL form); false means depth-first.
	BFS bool
}

// IsVariableLength reports whether this pattern spans a range of hop
// counts rather than exactly one edge.
func (r *RelPattern) IsVariableLength() bool {
	return r.MinHops != nil || r.MaxHops != nil
}

// PatternElement alternates NodePattern/RelPattern along one path.
type PatternElement struct {
	Node *NodePattern // set when this element is a node
	Rel  *RelPattern  // set when this element is a relationship
}

// PatternPart is one comma-separated pattern in a MATCH/CREATE/MERGE,
// optionally bound to a path variable: p = (a)-[r]->(b).
type PatternPart struct {
	PathVariable string
	Elements     []PatternElement
}

// ---- Clauses ----

type MatchClause struct {
	Optional bool
	Patterns []PatternPart
	Where    Expression
}

func (*MatchClause) clauseNode() {}

type CreateClause struct {
	Patterns []PatternPart
}

func (*CreateClause) clauseNode() {}

// SetItem is one assignment in a SET clause or MERGE ON CREATE/MATCH.
type SetItem struct {
	// Exactly one of Property/Labels/ReplaceAll/MergeMap is set.
	Target   Expression // variable or property-lookup base
	Property string     // set when assigning target.Property = Value
	Value    Expression
	Labels   []string // set when this item is `n:Label1:Label2`
	Replace  bool      // true for `n = {...}`, false for `n += {...}`
	IsMap    bool      // true when Value replaces/merges the whole property map
}

type SetClause struct {
	Items []SetItem
}

func (*SetClause) clauseNode() {}

type RemoveItem struct {
	Target   Expression
	Property string   // set when removing target.Property
	Labels   []string // set when removing labels from target
}

type RemoveClause struct {
	Items []RemoveItem
}

func (*RemoveClause) clauseNode() {}

type DeleteClause struct {
	Detach bool
	Exprs  []Expression
}

func (*DeleteClause) clauseNode() {}

type MergeClause struct {
	Pattern  PatternPart
	OnCreate []SetItem
	OnMatch  []SetItem
}

func (*MergeClause) clauseNode() {}

// ReturnItem is one projected expression, optionally aliased.
type ReturnItem struct {
	Expr  Expression
	Alias string // "" means derive from the expression's text
}

type OrderItem struct {
	Expr       Expression
	Descending bool
}

type ReturnClause struct {
	Items    []ReturnItem
	Star     bool // RETURN * projects every bound variable
	Distinct bool
	OrderBy  []OrderItem
	Skip     Expression
	Limit    Expression
}

func (*ReturnClause) clauseNode() {}

// WithClause behaves like ReturnClause but pipes bound variables into
// the next clause instead of terminating the query.
type WithClause struct {
	Items    []ReturnItem
	Star     bool
	Distinct bool
	Where    Expression
	OrderBy  []OrderItem
	Skip     Expression
	Limit    Expression
}

func (*WithClause) clauseNode() {}

type UnwindClause struct {
	Expr Expression
	As   string
}

func (*UnwindClause) clauseNode() {}

type CreateIndexClause struct {
	Label    string
	Property string
}

func (*CreateIndexClause) clauseNode() {}

// CallClause invokes a registered procedure by name (spec's minimal
// Call control operator) with positional argument expressions and an
// optional YIELD list naming the result columns to bind.
type CallClause struct {
	Procedure string
	Args      []Expression
	Yield     []string
}

func (*CallClause) clauseNode() {}

// ---- Expressions ----

type Literal struct {
	Value graph.Value
}

func (*Literal) exprNode() {}

// Parameter references a named query parameter: $name.
type Parameter struct {
	Name string
}

func (*Parameter) exprNode() {}

// Identifier references a bound variable by name.
type Identifier struct {
	Name string
}

func (*Identifier) exprNode() {}

// PropertyLookup accesses Base.Key (n.name, r.since, ...).
type PropertyLookup struct {
	Base Expression
	Key  string
}

func (*PropertyLookup) exprNode() {}

type ListLiteral struct {
	Items []Expression
}

func (*ListLiteral) exprNode() {}

type MapLiteral struct {
	Entries map[string]Expression
	Order   []string // preserves source order for deterministic rendering
}

func (*MapLiteral) exprNode() {}

// FunctionCall covers both scalar functions (toUpper, coalesce) and
// aggregate functions (count, sum, avg, min, max, collect).
type FunctionCall struct {
	Name     string
	Args     []Expression
	Distinct bool
	Star     bool // count(*)
}

func (*FunctionCall) exprNode() {}

// BinaryExpr covers arithmetic, comparison, and boolean binary ops.
// Op is one of: +, -, *, /, %, =, <>, <, <=, >, >=, AND, OR, XOR,
// STARTS WITH, ENDS WITH, CONTAINS, IN.
type BinaryExpr struct {
	Left  Expression
	Op    string
	Right Expression
}

func (*BinaryExpr) exprNode() {}

// UnaryExpr covers NOT and unary minus.
type UnaryExpr struct {
	Op   string
	Expr Expression
}

func (*UnaryExpr) exprNode() {}

type IsNullExpr struct {
	Expr Expression
	Not  bool
}

func (*IsNullExpr) exprNode() {}

// ListComprehension evaluates Expr once per element of List bound to
// Variable, keeping elements where Filter (if set) is true.
type ListComprehension struct {
	Variable string
	List     Expression
	Filter   Expression
	Project  Expression // nil means project Variable itself
}

func (*ListComprehension) exprNode() {}

// CaseExpr implements CASE [Test] WHEN cond THEN result ... ELSE default END.
type CaseExpr struct {
	Test    Expression // nil for the generic form
	Whens   []CaseWhen
	Default Expression
}

type CaseWhen struct {
	Cond   Expression
	Result Expression
}

func (*CaseExpr) exprNode() {}

// PathExpr references the path variable bound by a PatternPart.
type PathExpr struct {
	Variable string
}

func (*PathExpr) exprNode() {}
