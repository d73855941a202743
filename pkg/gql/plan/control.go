package plan

import "github.com/jsoref/memgraph/pkg/graph"

// gate is a single-row leaf cursor armed by an enclosing Optional or
// Merge before each drive of its branch subtree. It yields exactly one
// row per arming, letting a branch built from ordinary operators
// (Scan, Expand, Filter, ...) run its full sub-pipeline once per outer
// row without the branch needing to know it is being driven this way;
// the branch reads the outer row's bound variables straight out of the
// shared Frame.
type gate struct {
	armed bool
	fired bool
}

func (g *gate) arm() {
	g.armed = true
	g.fired = false
}

func (g *gate) Pull(f Frame, ctx *Context) (bool, error) {
	if err := checkAbort(ctx); err != nil {
		return false, err
	}
	if !g.armed || g.fired {
		return false, nil
	}
	g.fired = true
	return true, nil
}

func (g *gate) Reset() { g.fired = false }

// Optional pulls one input row, drives Branch (rooted at Gate) with
// that row's bindings already sitting in the frame, and forwards every
// row the branch produces. If the branch produces nothing, it emits
// exactly one row with NullSlots set to null instead.
type Optional struct {
	Input     Cursor
	Gate      *gate
	Branch    Cursor
	NullSlots []int

	haveInput  bool
	yieldedAny bool
}

func (c *Optional) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		if err := checkAbort(ctx); err != nil {
			return false, err
		}
		if !c.haveInput {
			ok, err := c.Input.Pull(f, ctx)
			if err != nil || !ok {
				return false, err
			}
			c.haveInput = true
			c.yieldedAny = false
			c.Branch.Reset()
			c.Gate.arm()
		}
		ok, err := c.Branch.Pull(f, ctx)
		if err != nil {
			return false, err
		}
		if ok {
			c.yieldedAny = true
			return true, nil
		}
		c.haveInput = false
		if !c.yieldedAny {
			for _, s := range c.NullSlots {
				f[s] = graph.Null
			}
			return true, nil
		}
	}
}

func (c *Optional) Reset() {
	c.Input.Reset()
	c.Branch.Reset()
	c.haveInput = false
	c.yieldedAny = false
}

// Merge runs MatchBranch first for each input row; if it yields at
// least one row, those are forwarded. Otherwise CreateBranch runs
// exactly once (materializing the pattern) and its single row is
// forwarded, then OnCreate mutations apply; OnMatch mutations apply to
// rows the match branch produced. The planner wires OnMatch/OnCreate
// as Set* operators layered on top of the respective branch, so Merge
// itself only implements the match-or-create fork.
type Merge struct {
	Input        Cursor
	MatchGate    *gate
	MatchBranch  Cursor
	CreateGate   *gate
	CreateBranch Cursor

	haveInput    bool
	inMatch      bool
	matchYielded bool
	createDone   bool
}

func (c *Merge) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		if err := checkAbort(ctx); err != nil {
			return false, err
		}
		if !c.haveInput {
			ok, err := c.Input.Pull(f, ctx)
			if err != nil || !ok {
				return false, err
			}
			c.haveInput = true
			c.inMatch = true
			c.matchYielded = false
			c.createDone = false
			c.MatchBranch.Reset()
			c.MatchGate.arm()
		}
		if c.inMatch {
			ok, err := c.MatchBranch.Pull(f, ctx)
			if err != nil {
				return false, err
			}
			if ok {
				c.matchYielded = true
				return true, nil
			}
			c.inMatch = false
			if c.matchYielded {
				c.haveInput = false
				continue
			}
			c.CreateBranch.Reset()
			c.CreateGate.arm()
		}
		if !c.createDone {
			c.createDone = true
			ok, err := c.CreateBranch.Pull(f, ctx)
			if err != nil {
				return false, err
			}
			c.haveInput = false
			if ok {
				return true, nil
			}
			continue
		}
		c.haveInput = false
	}
}

func (c *Merge) Reset() {
	c.Input.Reset()
	c.MatchBranch.Reset()
	c.CreateBranch.Reset()
	c.haveInput = false
	c.inMatch = false
	c.matchYielded = false
	c.createDone = false
}

// Aggregation identifies one accumulator slot in an Aggregate operator.
type Aggregation struct {
	Func   string // count, sum, avg, min, max, collect
	Arg    Expr   // nil for count(*)
	Distinct bool
	Slot   int // output frame slot for the accumulated value
}

type aggAccumulator struct {
	count   int64
	sum     float64
	sumSet  bool
	min     graph.Value
	max     graph.Value
	haveMin bool
	haveMax bool
	collect []graph.Value
	seen    map[string]bool
}

// Aggregate consumes the whole upstream input into hash groups keyed
// by GroupBy, computing one accumulator per Aggregation per group.
// With no GroupBy and no input rows it still emits a single row of
// identity values (count=0, everything else null).
type Aggregate struct {
	Input        Cursor
	GroupBy      []Expr
	GroupSlots   []int
	Remember     []int
	Aggregations []Aggregation

	rows []Frame
	pos  int
	done bool
}

func (c *Aggregate) Pull(f Frame, ctx *Context) (bool, error) {
	if !c.done {
		if err := c.materialize(f, ctx); err != nil {
			return false, err
		}
		c.done = true
	}
	if c.pos >= len(c.rows) {
		return false, nil
	}
	copy(f, c.rows[c.pos])
	c.pos++
	return true, nil
}

func (c *Aggregate) materialize(f Frame, ctx *Context) error {
	type group struct {
		key      string
		keyVals  []graph.Value
		rowExample Frame
		accs     []*aggAccumulator
	}
	order := make([]string, 0)
	groups := make(map[string]*group)
	sawRow := false

	for {
		if err := checkAbort(ctx); err != nil {
			return err
		}
		ok, err := c.Input.Pull(f, ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		sawRow = true
		keyVals := make([]graph.Value, len(c.GroupBy))
		for i, g := range c.GroupBy {
			v, err := g(f, ctx)
			if err != nil {
				return err
			}
			keyVals[i] = v
		}
		key := distinctKey(sliceFrame(keyVals), allIndices(len(keyVals)))
		grp, ok := groups[key]
		if !ok {
			grp = &group{key: key, keyVals: keyVals, rowExample: f.Clone(), accs: make([]*aggAccumulator, len(c.Aggregations))}
			for i := range grp.accs {
				grp.accs[i] = &aggAccumulator{min: graph.Null, max: graph.Null, seen: make(map[string]bool)}
			}
			groups[key] = grp
			order = append(order, key)
		}
		for i, agg := range c.Aggregations {
			var v graph.Value
			if agg.Arg != nil {
				val, err := agg.Arg(f, ctx)
				if err != nil {
					return err
				}
				v = val
			}
			applyAggregation(grp.accs[i], agg, v)
		}
	}

	if !sawRow && len(c.GroupBy) == 0 {
		width := len(f)
		row := NewFrame(width)
		for _, agg := range c.Aggregations {
			var v graph.Value
			if agg.Func == "count" {
				v = graph.Int(0)
			} else {
				v = graph.Null
			}
			row[agg.Slot] = v
		}
		c.rows = []Frame{row}
		return nil
	}

	c.rows = make([]Frame, 0, len(order))
	for _, key := range order {
		grp := groups[key]
		row := grp.rowExample.Clone()
		for i, s := range c.GroupSlots {
			row[s] = grp.keyVals[i]
		}
		for i, agg := range c.Aggregations {
			row[agg.Slot] = finalizeAggregation(grp.accs[i], agg.Func)
		}
		c.rows = append(c.rows, row)
	}
	return nil
}

func (c *Aggregate) Reset() {
	c.Input.Reset()
	c.rows = nil
	c.pos = 0
	c.done = false
}

func sliceFrame(vs []graph.Value) Frame { return Frame(vs) }

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func applyAggregation(acc *aggAccumulator, agg Aggregation, v graph.Value) {
	if agg.Distinct {
		key := v.String()
		if acc.seen[key] {
			return
		}
		acc.seen[key] = true
	}
	switch agg.Func {
	case "count":
		if agg.Arg == nil || !v.IsNull() {
			acc.count++
		}
	case "sum":
		if !v.IsNull() && v.IsNumeric() {
			acc.sum += v.AsDouble()
			acc.sumSet = true
			acc.count++
		}
	case "avg":
		if !v.IsNull() && v.IsNumeric() {
			acc.sum += v.AsDouble()
			acc.sumSet = true
			acc.count++
		}
	case "min":
		if !v.IsNull() {
			if !acc.haveMin {
				acc.min, acc.haveMin = v, true
			} else if cmp, ok := graph.Compare(v, acc.min); ok && cmp < 0 {
				acc.min = v
			}
		}
	case "max":
		if !v.IsNull() {
			if !acc.haveMax {
				acc.max, acc.haveMax = v, true
			} else if cmp, ok := graph.Compare(v, acc.max); ok && cmp > 0 {
				acc.max = v
			}
		}
	case "collect":
		if !v.IsNull() {
			acc.collect = append(acc.collect, v)
		}
	}
}

func finalizeAggregation(acc *aggAccumulator, fn string) graph.Value {
	switch fn {
	case "count":
		return graph.Int(acc.count)
	case "sum":
		if !acc.sumSet {
			return graph.Int(0)
		}
		return graph.Double(acc.sum)
	case "avg":
		if acc.count == 0 {
			return graph.Null
		}
		return graph.Double(acc.sum / float64(acc.count))
	case "min":
		return acc.min
	case "max":
		return acc.max
	case "collect":
		return graph.List(acc.collect)
	default:
		return graph.Null
	}
}

// Call invokes a registered procedure once per input row, binding its
// named results to YieldSlots. Unknown procedure names fail at pull
// time rather than at compile time, since the registry is supplied by
// the interpreter's Context, not visible to the planner.
type Call struct {
	Input      Cursor
	Name       string
	Args       []Expr
	YieldSlots []int
	YieldNames []string
}

func (c *Call) Pull(f Frame, ctx *Context) (bool, error) {
	ok, err := c.Input.Pull(f, ctx)
	if err != nil || !ok {
		return false, err
	}
	proc, ok := ctx.Procedures[c.Name]
	if !ok {
		return false, runtimeErrorf("unknown procedure %q", c.Name)
	}
	args, err := evalArgs(c.Args, f, ctx)
	if err != nil {
		return false, err
	}
	ctx.Args = args
	result, err := proc(ctx)
	if err != nil {
		return false, err
	}
	for i, name := range c.YieldNames {
		if v, ok := result[name]; ok {
			f[c.YieldSlots[i]] = v
		} else {
			f[c.YieldSlots[i]] = graph.Null
		}
	}
	return true, nil
}

func (c *Call) Reset() { c.Input.Reset() }

func evalArgs(exprs []Expr, f Frame, ctx *Context) ([]graph.Value, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	vals := make([]graph.Value, len(exprs))
	for i, e := range exprs {
		v, err := e(f, ctx)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// controlOp is a single-shot leaf: it evaluates Args against the
// current frame, sets ctx.Args, and runs Run on the first pull, then
// exhausts, matching Auth/Stream/Info/Constraint's contract of a
// single-shot control operation with no per-row input.
type controlOp struct {
	Args []Expr
	Run  func(ctx *Context) error
	done bool
}

func (c *controlOp) Pull(f Frame, ctx *Context) (bool, error) {
	if c.done {
		return false, nil
	}
	c.done = true
	args, err := evalArgs(c.Args, f, ctx)
	if err != nil {
		return false, err
	}
	ctx.Args = args
	if err := c.Run(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (c *controlOp) Reset() { c.done = false }

// NewAuthOp, NewStreamOp, NewInfoOp, and NewConstraintOp build the
// remaining single-shot control operators as thin controlOp wrappers;
// their bodies live in pkg/auth and pkg/observability, which the
// interpreter wires in when compiling CALL clauses that name them.
func NewAuthOp(args []Expr, run func(ctx *Context) error) Cursor {
	return &controlOp{Args: args, Run: run}
}
func NewStreamOp(args []Expr, run func(ctx *Context) error) Cursor {
	return &controlOp{Args: args, Run: run}
}
func NewInfoOp(args []Expr, run func(ctx *Context) error) Cursor {
	return &controlOp{Args: args, Run: run}
}
func NewConstraintOp(args []Expr, run func(ctx *Context) error) Cursor {
	return &controlOp{Args: args, Run: run}
}
