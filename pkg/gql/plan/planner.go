package plan

import (
	"sort"
	"strings"

	"github.com/jsoref/memgraph/pkg/gql/ast"
	"github.com/jsoref/memgraph/pkg/gql/symbol"
	"github.com/jsoref/memgraph/pkg/graph"
)

// Options configures planning choices that don't change query
// semantics, only the shape of the resulting operator tree.
type Options struct {
	// CostBased enables the cardinality-guided ordering heuristic for
	// disjoint pattern parts within one MATCH; disabled, patterns are
	// scanned in source order.
	CostBased bool
}

// OutputColumn is one entry in a plan's result header: which frame
// slot to read, and how to name it (alias wins; else, for a bare
// identifier projection, the identifier's own name; otherwise the
// interpreter falls back to the stripper's named-expression text).
type OutputColumn struct {
	Slot       int
	Alias      string
	Identifier string
	Expr       ast.Expression
}

// Plan is a compiled query: a cursor tree ready to be driven, the
// frame width it requires, and its output header (empty for a pure
// mutation with no projection).
type Plan struct {
	Root      Cursor
	Outputs   []OutputColumn
	FrameSize int
	Mutation  bool
}

// Build lowers a resolved AST into a Plan. accessor is consulted at
// plan time to decide between an index scan and a full/label scan
// (§4.4); since that decision is baked into the cached plan,
// CreateIndex must invalidate the whole cache so a later compile can
// see the new index (wired by the interpreter via invalidate).
func Build(q *ast.Query, table *symbol.Table, accessor graph.Accessor, opts Options, invalidate func()) (*Plan, error) {
	p := &planner{
		table:      table,
		accessor:   accessor,
		opts:       opts,
		boundSlots: make(map[int]bool),
		nextSlot:   table.MaxPosition(),
		invalidate: invalidate,
	}
	cur := Cursor(NewOnce())
	var outputs []OutputColumn
	prevMutation := false

	for _, clause := range q.Clauses {
		var err error
		switch c := clause.(type) {
		case *ast.MatchClause:
			cur, err = p.matchClause(c, cur)
			prevMutation = false
		case *ast.CreateClause:
			for _, part := range c.Patterns {
				cur, err = p.createPatternPart(part, cur)
				if err != nil {
					break
				}
			}
			prevMutation = true
		case *ast.MergeClause:
			cur, err = p.mergeClause(c, cur)
			prevMutation = true
		case *ast.SetClause:
			for _, item := range c.Items {
				cur, err = p.applySetItem(item, cur)
				if err != nil {
					break
				}
			}
			prevMutation = true
		case *ast.RemoveClause:
			cur, err = p.removeClause(c, cur)
			prevMutation = true
		case *ast.DeleteClause:
			cur, err = p.deleteClause(c, cur)
			prevMutation = true
		case *ast.UnwindClause:
			cur, err = p.unwindClause(c, cur)
			prevMutation = false
		case *ast.CallClause:
			cur, err = p.callClause(c, cur)
			prevMutation = false
		case *ast.WithClause:
			if prevMutation {
				cur = p.accumulate(cur, true)
			}
			cur, err = p.withClause(c, cur)
			outputs = nil
			prevMutation = false
		case *ast.ReturnClause:
			if prevMutation {
				cur = p.accumulate(cur, true)
			}
			var outs []OutputColumn
			cur, outs, err = p.returnClause(c, cur)
			outputs = outs
			prevMutation = false
		case *ast.CreateIndexClause:
			cur = &CreateIndexOp{Label: c.Label, Property: c.Property, Invalidate: p.invalidate}
			prevMutation = true
		default:
			err = runtimeErrorf("unknown clause type %T", clause)
		}
		if err != nil {
			return nil, err
		}
	}

	return &Plan{Root: cur, Outputs: outputs, FrameSize: p.nextSlot, Mutation: outputs == nil}, nil
}

// planner carries the compile-time state threaded through one Build
// call: symbol table, index-existence oracle, slot bookkeeping for
// names the resolver never declared (anonymous pattern elements,
// unaliased projected expressions), and which slots already hold a
// value at the current point in the pipeline.
type planner struct {
	table      *symbol.Table
	accessor   graph.Accessor
	opts       Options
	boundSlots map[int]bool
	boundOrder []int
	nextSlot   int
	invalidate func()
}

func (p *planner) allocSlot() int {
	s := p.nextSlot
	p.nextSlot++
	return s
}

func (p *planner) resolveSlot(name string) int {
	if name == "" {
		return p.allocSlot()
	}
	if sym, ok := p.table.Lookup(name); ok {
		return sym.Slot
	}
	return p.allocSlot()
}

func (p *planner) itemSlot(it ast.ReturnItem) int {
	name := it.Alias
	if name == "" {
		if id, ok := it.Expr.(*ast.Identifier); ok {
			name = id.Name
		}
	}
	if name != "" {
		if sym, ok := p.table.Lookup(name); ok {
			return sym.Slot
		}
	}
	return p.allocSlot()
}

func (p *planner) markBound(slot int) {
	if !p.boundSlots[slot] {
		p.boundSlots[slot] = true
		p.boundOrder = append(p.boundOrder, slot)
	}
}

func (p *planner) compileProps(props map[string]ast.Expression) (map[string]Expr, error) {
	if len(props) == 0 {
		return nil, nil
	}
	out := make(map[string]Expr, len(props))
	for k, e := range props {
		ce, err := Compile(e, p.table)
		if err != nil {
			return nil, err
		}
		out[k] = ce
	}
	return out, nil
}

func (p *planner) accumulate(cur Cursor, advanceCommand bool) Cursor {
	slots := append([]int{}, p.boundOrder...)
	return &Accumulate{Input: cur, Slots: slots, AdvanceCommand: advanceCommand}
}

// isTrivialDriver reports whether c is a cursor that produces exactly
// one content-free row per activation (Once, a gate) rather than real
// bound data, so a fresh scan can be plugged straight into it without
// a Cartesian join.
func isTrivialDriver(c Cursor) bool {
	switch c.(type) {
	case *Once, *gate:
		return true
	default:
		return false
	}
}

// ---- MATCH / OPTIONAL MATCH ----

func (p *planner) matchClause(c *ast.MatchClause, cur Cursor) (Cursor, error) {
	if c.Optional {
		return p.optionalMatch(c, cur)
	}
	parts := p.orderPatterns(c.Patterns, c.Where)
	var err error
	var edgeSlots []int
	for _, part := range parts {
		cur, err = p.applyPattern(part, cur, c.Where, &edgeSlots)
		if err != nil {
			return nil, err
		}
	}
	pred, err := p.patternPredicate(c.Patterns, c.Where)
	if err != nil {
		return nil, err
	}
	if pred != nil {
		cur = &Filter{Input: cur, Predicate: pred}
	}
	return cur, nil
}

func (p *planner) optionalMatch(c *ast.MatchClause, cur Cursor) (Cursor, error) {
	g := &gate{}
	before := make(map[int]bool, len(p.boundSlots))
	for k := range p.boundSlots {
		before[k] = true
	}

	branch := Cursor(g)
	var err error
	var edgeSlots []int
	for _, part := range c.Patterns {
		branch, err = p.applyPattern(part, branch, c.Where, &edgeSlots)
		if err != nil {
			return nil, err
		}
	}
	pred, err := p.patternPredicate(c.Patterns, c.Where)
	if err != nil {
		return nil, err
	}
	if pred != nil {
		branch = &Filter{Input: branch, Predicate: pred}
	}

	var newSlots []int
	for _, s := range p.boundOrder {
		if !before[s] {
			newSlots = append(newSlots, s)
		}
	}
	return &Optional{Input: cur, Gate: g, Branch: branch, NullSlots: newSlots}, nil
}

// patternPredicate combines the clause's WHERE with every pattern
// element's inline property map into one expression, so a single
// Filter after all Expand/ExpandUniquenessFilter operators covers
// everything §4.4 calls "remaining predicates".
func (p *planner) patternPredicate(parts []ast.PatternPart, where ast.Expression) (Expr, error) {
	var conjuncts []ast.Expression
	if where != nil {
		conjuncts = append(conjuncts, collectConjuncts(where)...)
	}
	for _, part := range parts {
		conjuncts = append(conjuncts, collectPatternPropConjuncts(part)...)
	}
	if len(conjuncts) == 0 {
		return nil, nil
	}
	return Compile(andAll(conjuncts), p.table)
}

// orderPatterns applies the cost-planner ordering heuristic (§4.4)
// when enabled: disjoint pattern parts are scanned smallest-expected-
// cardinality first, approximated by preferring index scans over
// label scans over full scans. Ties keep source order (SliceStable).
func (p *planner) orderPatterns(parts []ast.PatternPart, where ast.Expression) []ast.PatternPart {
	if !p.opts.CostBased || len(parts) < 2 {
		return parts
	}
	scores := make([]int, len(parts))
	for i, part := range parts {
		scores[i] = p.estimateScanKind(part, where)
	}
	out := append([]ast.PatternPart{}, parts...)
	sort.SliceStable(out, func(i, j int) bool { return scores[i] < scores[j] })
	return out
}

func (p *planner) estimateScanKind(part ast.PatternPart, where ast.Expression) int {
	if len(part.Elements) == 0 || part.Elements[0].Node == nil {
		return 3
	}
	return p.scanKind(part.Elements[0].Node, where)
}

// scanKind ranks the scan strategy buildScan would choose for node,
// lowest first: 0 equality index, 1 range index, 2 label scan, 3 full
// scan. Used both to pick the actual operator and, under the cost
// planner, to order disjoint pattern parts.
func (p *planner) scanKind(node *ast.NodePattern, where ast.Expression) int {
	label := ""
	if len(node.Labels) > 0 {
		label = node.Labels[0]
	}
	if node.Variable != "" && label != "" && p.accessor != nil {
		conjuncts := scanConjuncts(node, where)
		if prop, _, ok := findEquality(conjuncts, node.Variable); ok && p.accessor.IsIndexed(label, prop) {
			return 0
		}
		if prop, _, _, _, _, ok := findRange(conjuncts, node.Variable); ok && p.accessor.IsIndexed(label, prop) {
			return 1
		}
	}
	if label != "" {
		return 2
	}
	return 3
}

func scanConjuncts(node *ast.NodePattern, where ast.Expression) []ast.Expression {
	var conjuncts []ast.Expression
	if where != nil {
		conjuncts = append(conjuncts, collectConjuncts(where)...)
	}
	conjuncts = append(conjuncts, propsAsConjuncts(node.Variable, node.Props)...)
	return conjuncts
}

// buildScan picks ScanAll/ScanAllByLabel/ScanAllByLabelPropertyValue/
// ScanAllByLabelPropertyRange for a pattern's first node, per §4.4's
// rule 1, and returns a constructor that wires in whatever cursor
// feeds it.
func (p *planner) buildScan(node *ast.NodePattern, slot int, where ast.Expression) (func(Cursor) Cursor, error) {
	label := ""
	if len(node.Labels) > 0 {
		label = node.Labels[0]
	}
	if node.Variable != "" && label != "" && p.accessor != nil {
		conjuncts := scanConjuncts(node, where)
		if prop, valExpr, ok := findEquality(conjuncts, node.Variable); ok && p.accessor.IsIndexed(label, prop) {
			ce, err := Compile(valExpr, p.table)
			if err != nil {
				return nil, err
			}
			return func(in Cursor) Cursor {
				return &ScanAllByLabelPropertyValue{Input: in, Slot: slot, Label: label, Property: prop, Value: ce}
			}, nil
		}
		if prop, lower, upper, lowerIncl, upperIncl, ok := findRange(conjuncts, node.Variable); ok && p.accessor.IsIndexed(label, prop) {
			var lowerE, upperE Expr
			var err error
			if lower != nil {
				if lowerE, err = Compile(lower, p.table); err != nil {
					return nil, err
				}
			}
			if upper != nil {
				if upperE, err = Compile(upper, p.table); err != nil {
					return nil, err
				}
			}
			return func(in Cursor) Cursor {
				return &ScanAllByLabelPropertyRange{
					Input: in, Slot: slot, Label: label, Property: prop,
					Lower: lowerE, Upper: upperE, LowerInclusive: lowerIncl, UpperInclusive: upperIncl,
				}
			}, nil
		}
	}
	if label != "" {
		return func(in Cursor) Cursor { return &ScanAllByLabel{Input: in, Slot: slot, Label: label} }, nil
	}
	return func(in Cursor) Cursor { return &ScanAll{Input: in, Slot: slot} }, nil
}

// applyPattern lowers one pattern part into Scan/Expand/
// ExpandVariable/ExpandUniquenessFilter operators chained onto cur,
// per §4.4 rule 1. A first node already bound by an earlier clause or
// pattern part skips scanning; a middle/end node that closes a cycle
// (its variable already bound) is checked for equality instead of
// being rebound. edgeSlots accumulates every relationship slot bound
// so far in the enclosing MATCH/OPTIONAL MATCH clause: callers with
// more than one comma-separated pattern part share a single slice
// across calls so ExpandUniquenessFilter enforces edge-isomorphism
// over the whole clause, not just the part currently being lowered.
func (p *planner) applyPattern(part ast.PatternPart, cur Cursor, where ast.Expression, edgeSlots *[]int) (Cursor, error) {
	elements := part.Elements
	if len(elements) == 0 {
		return cur, nil
	}
	firstNode := elements[0].Node
	firstSlot := p.resolveSlot(firstNode.Variable)
	if !p.boundSlots[firstSlot] {
		ctor, err := p.buildScan(firstNode, firstSlot, where)
		if err != nil {
			return nil, err
		}
		if isTrivialDriver(cur) {
			cur = ctor(cur)
		} else {
			cur = &Cartesian{Left: cur, Right: ctor(NewOnce())}
		}
		p.markBound(firstSlot)
	}

	prevSlot := firstSlot
	pathElems := []int{firstSlot}

	for i := 1; i+1 < len(elements); i += 2 {
		relEl := elements[i].Rel
		nodeEl := elements[i+1].Node
		relSlot := p.resolveSlot(relEl.Variable)
		rawNodeSlot := p.resolveSlot(nodeEl.Variable)
		cyclic := p.boundSlots[rawNodeSlot]
		targetSlot := rawNodeSlot
		if cyclic {
			targetSlot = p.allocSlot()
		}

		if relEl.IsVariableLength() {
			lo, hi := computeHopBounds(relEl)
			cur = &ExpandVariable{
				Input: cur, InputSlot: prevSlot, EdgeSlot: relSlot, NodeSlot: targetSlot,
				Dir: relEl.Dir, Types: relEl.Types, Lo: lo, Hi: hi, BFS: relEl.BFS,
			}
		} else {
			cur = &Expand{Input: cur, InputSlot: prevSlot, EdgeSlot: relSlot, NodeSlot: targetSlot, Dir: relEl.Dir, Types: relEl.Types}
		}
		p.markBound(relSlot)

		if len(*edgeSlots) > 0 {
			cur = &ExpandUniquenessFilter{Input: cur, PreviousSlot: append([]int{}, *edgeSlots...), CurrentSlot: relSlot}
		}
		*edgeSlots = append(*edgeSlots, relSlot)

		if cyclic {
			cur = &Filter{Input: cur, Predicate: slotEquality(targetSlot, rawNodeSlot)}
		} else {
			p.markBound(rawNodeSlot)
		}
		pathElems = append(pathElems, relSlot, rawNodeSlot)
		prevSlot = rawNodeSlot
	}

	if part.PathVariable != "" {
		pathSlot := p.resolveSlot(part.PathVariable)
		cur = &ConstructNamedPath{Input: cur, PathSlot: pathSlot, Elements: pathElems}
		p.markBound(pathSlot)
	}
	return cur, nil
}

func slotEquality(a, b int) Expr {
	return func(f Frame, ctx *Context) (graph.Value, error) {
		return graph.Equal(f[a], f[b]).AsBoolValue(), nil
	}
}

func computeHopBounds(rel *ast.RelPattern) (lo, hi int) {
	lo, hi = 1, 15
	if rel.MinHops != nil {
		lo = *rel.MinHops
	}
	if rel.MaxHops != nil {
		hi = *rel.MaxHops
	}
	return
}

// ---- CREATE / MERGE ----

func (p *planner) createPatternPart(part ast.PatternPart, cur Cursor) (Cursor, error) {
	elements := part.Elements
	if len(elements) == 0 {
		return cur, nil
	}
	firstNode := elements[0].Node
	firstSlot := p.resolveSlot(firstNode.Variable)
	if !p.boundSlots[firstSlot] {
		props, err := p.compileProps(firstNode.Props)
		if err != nil {
			return nil, err
		}
		cur = &CreateNode{Input: cur, Slot: firstSlot, Labels: firstNode.Labels, Props: props}
		p.markBound(firstSlot)
	}

	prevSlot := firstSlot
	pathElems := []int{firstSlot}

	for i := 1; i+1 < len(elements); i += 2 {
		relEl := elements[i].Rel
		nodeEl := elements[i+1].Node
		nodeSlot := p.resolveSlot(nodeEl.Variable)
		if !p.boundSlots[nodeSlot] {
			props, err := p.compileProps(nodeEl.Props)
			if err != nil {
				return nil, err
			}
			cur = &CreateNode{Input: cur, Slot: nodeSlot, Labels: nodeEl.Labels, Props: props}
			p.markBound(nodeSlot)
		}
		relSlot := p.resolveSlot(relEl.Variable)
		fromSlot, toSlot := prevSlot, nodeSlot
		if relEl.Dir == graph.DirIn {
			fromSlot, toSlot = nodeSlot, prevSlot
		}
		typ := ""
		if len(relEl.Types) > 0 {
			typ = relEl.Types[0]
		}
		relProps, err := p.compileProps(relEl.Props)
		if err != nil {
			return nil, err
		}
		cur = &CreateExpand{Input: cur, EdgeSlot: relSlot, FromSlot: fromSlot, ToSlot: toSlot, Type: typ, Props: relProps}
		p.markBound(relSlot)
		pathElems = append(pathElems, relSlot, nodeSlot)
		prevSlot = nodeSlot
	}

	if part.PathVariable != "" {
		pathSlot := p.resolveSlot(part.PathVariable)
		cur = &ConstructNamedPath{Input: cur, PathSlot: pathSlot, Elements: pathElems}
		p.markBound(pathSlot)
	}
	return cur, nil
}

func (p *planner) mergeClause(c *ast.MergeClause, cur Cursor) (Cursor, error) {
	matchGate := &gate{}
	boundBefore := len(p.boundOrder)
	var mergeEdgeSlots []int
	matchBranch, err := p.applyPattern(c.Pattern, matchGate, nil, &mergeEdgeSlots)
	if err != nil {
		return nil, err
	}
	if propConjuncts := collectPatternPropConjuncts(c.Pattern); len(propConjuncts) > 0 {
		pred, err := Compile(andAll(propConjuncts), p.table)
		if err != nil {
			return nil, err
		}
		matchBranch = &Filter{Input: matchBranch, Predicate: pred}
	}

	// The create branch runs instead of the match branch, so the slots
	// the match branch just bound must be materialized afresh there.
	for _, s := range p.boundOrder[boundBefore:] {
		delete(p.boundSlots, s)
	}
	p.boundOrder = p.boundOrder[:boundBefore]

	createGate := &gate{}
	createBranch, err := p.createPatternPart(c.Pattern, createGate)
	if err != nil {
		return nil, err
	}

	for _, item := range c.OnMatch {
		matchBranch, err = p.applySetItem(item, matchBranch)
		if err != nil {
			return nil, err
		}
	}
	for _, item := range c.OnCreate {
		createBranch, err = p.applySetItem(item, createBranch)
		if err != nil {
			return nil, err
		}
	}

	return &Merge{Input: cur, MatchGate: matchGate, MatchBranch: matchBranch, CreateGate: createGate, CreateBranch: createBranch}, nil
}

// ---- SET / REMOVE / DELETE ----

func (p *planner) applySetItem(item ast.SetItem, cur Cursor) (Cursor, error) {
	if len(item.Labels) > 0 {
		id, ok := item.Target.(*ast.Identifier)
		if !ok {
			return nil, runtimeErrorf("SET label target must be a variable")
		}
		sym, ok := p.table.Lookup(id.Name)
		if !ok {
			return nil, runtimeErrorf("unresolved SET target %q", id.Name)
		}
		return &SetLabels{Input: cur, Slot: sym.Slot, Labels: item.Labels}, nil
	}
	targetExpr, err := Compile(item.Target, p.table)
	if err != nil {
		return nil, err
	}
	valExpr, err := Compile(item.Value, p.table)
	if err != nil {
		return nil, err
	}
	if item.IsMap {
		return &SetProperties{Input: cur, Target: targetExpr, Value: valExpr, Replace: item.Replace}, nil
	}
	return &SetProperty{Input: cur, Target: targetExpr, Key: item.Property, Value: valExpr}, nil
}

func (p *planner) removeClause(c *ast.RemoveClause, cur Cursor) (Cursor, error) {
	for _, item := range c.Items {
		if len(item.Labels) > 0 {
			id, ok := item.Target.(*ast.Identifier)
			if !ok {
				return nil, runtimeErrorf("REMOVE label target must be a variable")
			}
			sym, ok := p.table.Lookup(id.Name)
			if !ok {
				return nil, runtimeErrorf("unresolved REMOVE target %q", id.Name)
			}
			cur = &RemoveLabels{Input: cur, Slot: sym.Slot, Labels: item.Labels}
			continue
		}
		targetExpr, err := Compile(item.Target, p.table)
		if err != nil {
			return nil, err
		}
		cur = &RemoveProperty{Input: cur, Target: targetExpr, Key: item.Property}
	}
	return cur, nil
}

func (p *planner) deleteClause(c *ast.DeleteClause, cur Cursor) (Cursor, error) {
	exprs := make([]Expr, len(c.Exprs))
	for i, e := range c.Exprs {
		ce, err := Compile(e, p.table)
		if err != nil {
			return nil, err
		}
		exprs[i] = ce
	}
	return &Delete{Input: cur, Exprs: exprs, Detach: c.Detach}, nil
}

// ---- UNWIND / CALL ----

func (p *planner) unwindClause(c *ast.UnwindClause, cur Cursor) (Cursor, error) {
	e, err := Compile(c.Expr, p.table)
	if err != nil {
		return nil, err
	}
	slot := p.resolveSlot(c.As)
	p.markBound(slot)
	return &Unwind{Input: cur, Expr: e, Slot: slot}, nil
}

// controlOpCtors maps a CALL procedure's namespace prefix to the
// single-shot control operator constructor named for it in the
// operator library (§4.5); a call with no YIELD and a known prefix
// compiles to that leaf instead of the generic per-row Call operator,
// since there is no preceding row stream worth threading through an
// admin statement.
var controlOpCtors = map[string]func(args []Expr, run func(ctx *Context) error) Cursor{
	"auth":       NewAuthOp,
	"stream":     NewStreamOp,
	"system":     NewInfoOp,
	"constraint": NewConstraintOp,
}

func (p *planner) callClause(c *ast.CallClause, cur Cursor) (Cursor, error) {
	slots := make([]int, len(c.Yield))
	for i, name := range c.Yield {
		slots[i] = p.resolveSlot(name)
		p.markBound(slots[i])
	}
	args := make([]Expr, len(c.Args))
	for i, a := range c.Args {
		e, err := Compile(a, p.table)
		if err != nil {
			return nil, err
		}
		args[i] = e
	}

	if len(c.Yield) == 0 && isTrivialDriver(cur) {
		if ns, _, ok := strings.Cut(c.Procedure, "."); ok {
			if ctor, ok := controlOpCtors[ns]; ok {
				name := c.Procedure
				return ctor(args, func(ctx *Context) error {
					proc, ok := ctx.Procedures[name]
					if !ok {
						return runtimeErrorf("unknown procedure %q", name)
					}
					_, err := proc(ctx)
					return err
				}), nil
			}
		}
	}

	return &Call{Input: cur, Name: c.Procedure, Args: args, YieldSlots: slots, YieldNames: c.Yield}, nil
}

// ---- WITH / RETURN ----

func (p *planner) withClause(c *ast.WithClause, cur Cursor) (Cursor, error) {
	cur, outputs, err := p.projection(c.Items, c.Star, cur)
	if err != nil {
		return nil, err
	}
	if c.Where != nil {
		pred, err := Compile(c.Where, p.table)
		if err != nil {
			return nil, err
		}
		cur = &Filter{Input: cur, Predicate: pred}
	}
	if c.Distinct {
		cur = &Distinct{Input: cur, Slots: outputSlots(outputs)}
	}
	if len(c.OrderBy) > 0 {
		keys, err := p.compileOrderKeys(c.OrderBy)
		if err != nil {
			return nil, err
		}
		cur = &OrderBy{Input: cur, Keys: keys}
	}
	if c.Skip != nil {
		e, err := Compile(c.Skip, p.table)
		if err != nil {
			return nil, err
		}
		cur = &Skip{Input: cur, N: e}
	}
	if c.Limit != nil {
		e, err := Compile(c.Limit, p.table)
		if err != nil {
			return nil, err
		}
		cur = &Limit{Input: cur, N: e}
	}
	return cur, nil
}

func (p *planner) returnClause(c *ast.ReturnClause, cur Cursor) (Cursor, []OutputColumn, error) {
	cur, outputs, err := p.projection(c.Items, c.Star, cur)
	if err != nil {
		return nil, nil, err
	}
	if c.Distinct {
		cur = &Distinct{Input: cur, Slots: outputSlots(outputs)}
	}
	if len(c.OrderBy) > 0 {
		keys, err := p.compileOrderKeys(c.OrderBy)
		if err != nil {
			return nil, nil, err
		}
		cur = &OrderBy{Input: cur, Keys: keys}
	}
	if c.Skip != nil {
		e, err := Compile(c.Skip, p.table)
		if err != nil {
			return nil, nil, err
		}
		cur = &Skip{Input: cur, N: e}
	}
	if c.Limit != nil {
		e, err := Compile(c.Limit, p.table)
		if err != nil {
			return nil, nil, err
		}
		cur = &Limit{Input: cur, N: e}
	}
	return cur, outputs, nil
}

func outputSlots(outputs []OutputColumn) []int {
	out := make([]int, len(outputs))
	for i, o := range outputs {
		out[i] = o.Slot
	}
	return out
}

func (p *planner) compileOrderKeys(items []ast.OrderItem) ([]OrderKey, error) {
	keys := make([]OrderKey, len(items))
	for i, o := range items {
		e, err := Compile(o.Expr, p.table)
		if err != nil {
			return nil, err
		}
		keys[i] = OrderKey{Eval: e, Descending: o.Descending}
	}
	return keys, nil
}

// projection builds Produce (or Aggregate, when an aggregation
// function appears in the item list) for a WITH/RETURN clause.
func (p *planner) projection(items []ast.ReturnItem, star bool, cur Cursor) (Cursor, []OutputColumn, error) {
	if star {
		var outputs []OutputColumn
		for _, sym := range p.table.Symbols() {
			if !p.boundSlots[sym.Slot] {
				continue
			}
			outputs = append(outputs, OutputColumn{Slot: sym.Slot, Identifier: sym.Name})
		}
		return cur, outputs, nil
	}

	hasAgg := false
	for _, it := range items {
		if fc, ok := it.Expr.(*ast.FunctionCall); ok && symbol.IsAggregate(fc.Name) {
			hasAgg = true
			break
		}
	}
	if hasAgg {
		return p.aggregateProjection(items, cur)
	}

	var namedExprs []NamedExpr
	var outputs []OutputColumn
	for _, it := range items {
		ce, err := Compile(it.Expr, p.table)
		if err != nil {
			return nil, nil, err
		}
		slot := p.itemSlot(it)
		namedExprs = append(namedExprs, NamedExpr{Slot: slot, Value: ce})
		p.markBound(slot)
		oc := OutputColumn{Slot: slot, Alias: it.Alias, Expr: it.Expr}
		if it.Alias == "" {
			if id, ok := it.Expr.(*ast.Identifier); ok {
				oc.Identifier = id.Name
			}
		}
		outputs = append(outputs, oc)
	}
	return &Produce{Input: cur, Exprs: namedExprs}, outputs, nil
}

func (p *planner) aggregateProjection(items []ast.ReturnItem, cur Cursor) (Cursor, []OutputColumn, error) {
	var groupBy []Expr
	var groupSlots []int
	var aggs []Aggregation
	var outputs []OutputColumn

	for _, it := range items {
		if fc, ok := it.Expr.(*ast.FunctionCall); ok && symbol.IsAggregate(fc.Name) {
			slot := p.itemSlot(it)
			var argExpr Expr
			if len(fc.Args) > 0 && !fc.Star {
				ae, err := Compile(fc.Args[0], p.table)
				if err != nil {
					return nil, nil, err
				}
				argExpr = ae
			}
			aggs = append(aggs, Aggregation{Func: strings.ToLower(fc.Name), Arg: argExpr, Distinct: fc.Distinct, Slot: slot})
			p.markBound(slot)
			outputs = append(outputs, OutputColumn{Slot: slot, Alias: it.Alias, Expr: it.Expr})
			continue
		}
		ce, err := Compile(it.Expr, p.table)
		if err != nil {
			return nil, nil, err
		}
		slot := p.itemSlot(it)
		groupBy = append(groupBy, ce)
		groupSlots = append(groupSlots, slot)
		p.markBound(slot)
		oc := OutputColumn{Slot: slot, Alias: it.Alias, Expr: it.Expr}
		if it.Alias == "" {
			if id, ok := it.Expr.(*ast.Identifier); ok {
				oc.Identifier = id.Name
			}
		}
		outputs = append(outputs, oc)
	}
	return &Aggregate{Input: cur, GroupBy: groupBy, GroupSlots: groupSlots, Aggregations: aggs}, outputs, nil
}

// ---- shared predicate helpers ----

func collectConjuncts(e ast.Expression) []ast.Expression {
	if e == nil {
		return nil
	}
	if b, ok := e.(*ast.BinaryExpr); ok && b.Op == "AND" {
		return append(collectConjuncts(b.Left), collectConjuncts(b.Right)...)
	}
	return []ast.Expression{e}
}

func andAll(exprs []ast.Expression) ast.Expression {
	if len(exprs) == 0 {
		return nil
	}
	result := exprs[0]
	for _, e := range exprs[1:] {
		result = &ast.BinaryExpr{Left: result, Op: "AND", Right: e}
	}
	return result
}

func collectPatternPropConjuncts(part ast.PatternPart) []ast.Expression {
	var out []ast.Expression
	for _, el := range part.Elements {
		if el.Node != nil {
			out = append(out, propsAsConjuncts(el.Node.Variable, el.Node.Props)...)
		}
		if el.Rel != nil {
			out = append(out, propsAsConjuncts(el.Rel.Variable, el.Rel.Props)...)
		}
	}
	return out
}

func propsAsConjuncts(varName string, props map[string]ast.Expression) []ast.Expression {
	if varName == "" || len(props) == 0 {
		return nil
	}
	var out []ast.Expression
	for k, v := range props {
		out = append(out, &ast.BinaryExpr{
			Left:  &ast.PropertyLookup{Base: &ast.Identifier{Name: varName}, Key: k},
			Op:    "=",
			Right: v,
		})
	}
	return out
}

func findEquality(conjuncts []ast.Expression, varName string) (prop string, valueExpr ast.Expression, ok bool) {
	for _, c := range conjuncts {
		b, isBin := c.(*ast.BinaryExpr)
		if !isBin || b.Op != "=" {
			continue
		}
		if pl, ok2 := b.Left.(*ast.PropertyLookup); ok2 {
			if id, ok3 := pl.Base.(*ast.Identifier); ok3 && id.Name == varName {
				return pl.Key, b.Right, true
			}
		}
		if pl, ok2 := b.Right.(*ast.PropertyLookup); ok2 {
			if id, ok3 := pl.Base.(*ast.Identifier); ok3 && id.Name == varName {
				return pl.Key, b.Left, true
			}
		}
	}
	return "", nil, false
}

// findRange looks for inequality comparisons against one property of
// varName and folds them into a lower/upper bound pair. Constraints
// on more than one property are not disambiguated; the first property
// seen wins, matching the single-property nature of a range index.
func findRange(conjuncts []ast.Expression, varName string) (prop string, lower, upper ast.Expression, lowerIncl, upperIncl bool, ok bool) {
	for _, c := range conjuncts {
		b, isBin := c.(*ast.BinaryExpr)
		if !isBin {
			continue
		}
		var pl *ast.PropertyLookup
		var lit ast.Expression
		op := b.Op
		flip := false
		if p2, ok2 := b.Left.(*ast.PropertyLookup); ok2 {
			pl, lit = p2, b.Right
		} else if p2, ok2 := b.Right.(*ast.PropertyLookup); ok2 {
			pl, lit = p2, b.Left
			flip = true
		} else {
			continue
		}
		id, ok3 := pl.Base.(*ast.Identifier)
		if !ok3 || id.Name != varName {
			continue
		}
		if prop != "" && prop != pl.Key {
			continue
		}
		effOp := op
		if flip {
			switch op {
			case "<":
				effOp = ">"
			case "<=":
				effOp = ">="
			case ">":
				effOp = "<"
			case ">=":
				effOp = "<="
			}
		}
		switch effOp {
		case ">":
			prop, lower, lowerIncl, ok = pl.Key, lit, false, true
		case ">=":
			prop, lower, lowerIncl, ok = pl.Key, lit, true, true
		case "<":
			prop, upper, upperIncl, ok = pl.Key, lit, false, true
		case "<=":
			prop, upper, upperIncl, ok = pl.Key, lit, true, true
		}
	}
	return
}
