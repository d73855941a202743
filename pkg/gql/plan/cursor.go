package plan

import (
	"sort"

	"github.com/jsoref/memgraph/pkg/graph"
)

// Cursor is the pull-based iterator contract every operator implements.
// Pull returns true and fills frame slots when it produces a row; false
// means exhausted and frame must not be trusted. Reset returns the
// cursor (and its whole input chain) to the Fresh state.
type Cursor interface {
	Pull(f Frame, ctx *Context) (bool, error)
	Reset()
}

func checkAbort(ctx *Context) error {
	if ctx.aborted() {
		return &AbortError{}
	}
	return nil
}

// Once yields a single empty row, then reports exhaustion forever
// until Reset. It roots every pipeline that has no upstream pattern,
// e.g. a bare CREATE or a literal-only RETURN.
type Once struct {
	done bool
}

func NewOnce() *Once { return &Once{} }

func (c *Once) Pull(f Frame, ctx *Context) (bool, error) {
	if c.done {
		return false, nil
	}
	if err := checkAbort(ctx); err != nil {
		return false, err
	}
	c.done = true
	return true, nil
}

func (c *Once) Reset() { c.done = false }

// ScanAll pulls one row from Input per outer iteration, then yields
// every vertex visible in the transaction bound to Slot, one per Pull.
type ScanAll struct {
	Input Cursor
	Slot  int

	it graph.VertexIterator
}

func (c *ScanAll) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		if err := checkAbort(ctx); err != nil {
			return false, err
		}
		if c.it == nil {
			ok, err := c.Input.Pull(f, ctx)
			if err != nil || !ok {
				return false, err
			}
			c.it = ctx.Accessor.Vertices("")
		}
		v, ok := c.it.Next()
		if !ok {
			c.it = nil
			continue
		}
		f[c.Slot] = graph.VertexVal(v)
		return true, nil
	}
}

func (c *ScanAll) Reset() {
	c.Input.Reset()
	c.it = nil
}

// ScanAllByLabel restricts ScanAll to vertices carrying Label, served
// from the label index rather than a full vertex scan.
type ScanAllByLabel struct {
	Input Cursor
	Slot  int
	Label string

	it graph.VertexIterator
}

func (c *ScanAllByLabel) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		if err := checkAbort(ctx); err != nil {
			return false, err
		}
		if c.it == nil {
			ok, err := c.Input.Pull(f, ctx)
			if err != nil || !ok {
				return false, err
			}
			c.it = ctx.Accessor.Vertices(c.Label)
		}
		v, ok := c.it.Next()
		if !ok {
			c.it = nil
			continue
		}
		f[c.Slot] = graph.VertexVal(v)
		return true, nil
	}
}

func (c *ScanAllByLabel) Reset() {
	c.Input.Reset()
	c.it = nil
}

// ScanAllByLabelPropertyValue probes a label+property index for
// equality; Value is (re-)evaluated once per input row since it may
// reference symbols bound earlier in the same pipeline.
type ScanAllByLabelPropertyValue struct {
	Input    Cursor
	Slot     int
	Label    string
	Property string
	Value    Expr

	it graph.VertexIterator
}

func (c *ScanAllByLabelPropertyValue) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		if err := checkAbort(ctx); err != nil {
			return false, err
		}
		if c.it == nil {
			ok, err := c.Input.Pull(f, ctx)
			if err != nil || !ok {
				return false, err
			}
			val, err := c.Value(f, ctx)
			if err != nil {
				return false, err
			}
			it, err := ctx.Accessor.IndexLookup(c.Label, c.Property, &val, nil)
			if err != nil {
				return false, err
			}
			c.it = it
		}
		v, ok := c.it.Next()
		if !ok {
			c.it = nil
			continue
		}
		f[c.Slot] = graph.VertexVal(v)
		return true, nil
	}
}

func (c *ScanAllByLabelPropertyValue) Reset() {
	c.Input.Reset()
	c.it = nil
}

// ScanAllByLabelPropertyRange probes a label+property index for a
// range; either bound may be nil, meaning that side is unbounded.
type ScanAllByLabelPropertyRange struct {
	Input          Cursor
	Slot           int
	Label          string
	Property       string
	Lower, Upper   Expr
	LowerInclusive bool
	UpperInclusive bool

	it graph.VertexIterator
}

func (c *ScanAllByLabelPropertyRange) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		if err := checkAbort(ctx); err != nil {
			return false, err
		}
		if c.it == nil {
			ok, err := c.Input.Pull(f, ctx)
			if err != nil || !ok {
				return false, err
			}
			rng := graph.PropertyRange{LowerInclusive: c.LowerInclusive, UpperInclusive: c.UpperInclusive}
			if c.Lower != nil {
				lv, err := c.Lower(f, ctx)
				if err != nil {
					return false, err
				}
				if !lv.IsNull() {
					rng.Lower = &lv
				}
			}
			if c.Upper != nil {
				uv, err := c.Upper(f, ctx)
				if err != nil {
					return false, err
				}
				if !uv.IsNull() {
					rng.Upper = &uv
				}
			}
			it, err := ctx.Accessor.IndexLookup(c.Label, c.Property, nil, &rng)
			if err != nil {
				return false, err
			}
			c.it = it
		}
		v, ok := c.it.Next()
		if !ok {
			c.it = nil
			continue
		}
		f[c.Slot] = graph.VertexVal(v)
		return true, nil
	}
}

func (c *ScanAllByLabelPropertyRange) Reset() {
	c.Input.Reset()
	c.it = nil
}

// Expand walks edges incident to the vertex bound at InputSlot,
// binding EdgeSlot/NodeSlot per matching edge. A null InputSlot has no
// edges to walk, same as a vertex with none: the row is dropped and
// the next input row is pulled. Substituting an all-null row for an
// unmatched optional pattern is the enclosing Optional operator's job;
// Expand never fabricates one itself, so a symbol bound null by an
// earlier OPTIONAL MATCH and expanded from in a later, unrelated
// clause correctly yields nothing rather than another all-null row.
type Expand struct {
	Input     Cursor
	InputSlot int
	EdgeSlot  int
	NodeSlot  int
	Dir       graph.Direction
	Types     []string

	it graph.EdgeIterator
}

func (c *Expand) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		if err := checkAbort(ctx); err != nil {
			return false, err
		}
		if c.it == nil {
			ok, err := c.Input.Pull(f, ctx)
			if err != nil || !ok {
				return false, err
			}
			in := f[c.InputSlot]
			if in.IsNull() {
				continue
			}
			c.it = ctx.Accessor.Edges(in.AsVertex(), c.Dir, c.Types)
		}
		e, ok := c.it.Next()
		if !ok {
			c.it = nil
			continue
		}
		other := e.OtherEndpoint(f[c.InputSlot].AsVertex().ID)
		nv, ok := ctx.Accessor.VertexByID(other)
		if !ok {
			continue
		}
		f[c.EdgeSlot] = graph.EdgeVal(e)
		f[c.NodeSlot] = graph.VertexVal(nv)
		return true, nil
	}
}

func (c *Expand) Reset() {
	c.Input.Reset()
	c.it = nil
}

// Filter passes a row iff Predicate evaluates to boolean true under
// three-valued logic; both false and null drop the row.
type Filter struct {
	Input     Cursor
	Predicate Expr
}

func (c *Filter) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		if err := checkAbort(ctx); err != nil {
			return false, err
		}
		ok, err := c.Input.Pull(f, ctx)
		if err != nil || !ok {
			return false, err
		}
		v, err := c.Predicate(f, ctx)
		if err != nil {
			return false, err
		}
		if graph.ToTribool(v) == graph.TriTrue {
			return true, nil
		}
	}
}

func (c *Filter) Reset() { c.Input.Reset() }

// ExpandUniquenessFilter drops a row when CurrentSlot's vertex/edge ID
// equals any of PreviousSlots, enforcing Cypher's per-pattern
// edge/vertex distinctness rule. A null current value never matches.
type ExpandUniquenessFilter struct {
	Input        Cursor
	PreviousSlot []int
	CurrentSlot  int
}

func (c *ExpandUniquenessFilter) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		if err := checkAbort(ctx); err != nil {
			return false, err
		}
		ok, err := c.Input.Pull(f, ctx)
		if err != nil || !ok {
			return false, err
		}
		cur := f[c.CurrentSlot]
		if cur.IsNull() {
			return true, nil
		}
		dup := false
		for _, s := range c.PreviousSlot {
			if graph.Equal(cur, f[s]) == graph.TriTrue {
				dup = true
				break
			}
		}
		if !dup {
			return true, nil
		}
	}
}

func (c *ExpandUniquenessFilter) Reset() { c.Input.Reset() }

// ConstructNamedPath folds a sequence of previously bound vertex/edge
// slots (node, edge, node, edge, node, ...) into a single Path value.
type ConstructNamedPath struct {
	Input    Cursor
	PathSlot int
	Elements []int
}

func (c *ConstructNamedPath) Pull(f Frame, ctx *Context) (bool, error) {
	ok, err := c.Input.Pull(f, ctx)
	if err != nil || !ok {
		return false, err
	}
	if len(c.Elements) == 0 {
		f[c.PathSlot] = graph.Null
		return true, nil
	}
	start := f[c.Elements[0]]
	if start.IsNull() {
		f[c.PathSlot] = graph.Null
		return true, nil
	}
	p := graph.NewPath(start.AsVertex())
	for i := 1; i+1 < len(c.Elements); i += 2 {
		ev := f[c.Elements[i]]
		nv := f[c.Elements[i+1]]
		if ev.IsNull() || nv.IsNull() {
			f[c.PathSlot] = graph.Null
			return true, nil
		}
		p = p.Extend(ev.AsEdge(), nv.AsVertex())
	}
	f[c.PathSlot] = graph.PathVal(p)
	return true, nil
}

func (c *ConstructNamedPath) Reset() { c.Input.Reset() }

// Skip drops the first N rows; N is evaluated once, at the first
// Pull, and must not be negative.
type Skip struct {
	Input Cursor
	N     Expr

	resolved bool
	remain   int64
}

func (c *Skip) Pull(f Frame, ctx *Context) (bool, error) {
	if !c.resolved {
		v, err := c.N(f, ctx)
		if err != nil {
			return false, err
		}
		n := v.AsInt()
		if n < 0 {
			return false, runtimeErrorf("SKIP must not be negative, got %d", n)
		}
		c.remain = n
		c.resolved = true
	}
	for c.remain > 0 {
		ok, err := c.Input.Pull(f, ctx)
		if err != nil || !ok {
			return false, err
		}
		c.remain--
	}
	return c.Input.Pull(f, ctx)
}

func (c *Skip) Reset() {
	c.Input.Reset()
	c.resolved = false
}

// Limit yields at most N rows; N is evaluated once, at the first
// Pull, and must not be negative.
type Limit struct {
	Input Cursor
	N     Expr

	resolved bool
	yielded  int64
	limit    int64
}

func (c *Limit) Pull(f Frame, ctx *Context) (bool, error) {
	if !c.resolved {
		v, err := c.N(f, ctx)
		if err != nil {
			return false, err
		}
		n := v.AsInt()
		if n < 0 {
			return false, runtimeErrorf("LIMIT must not be negative, got %d", n)
		}
		c.limit = n
		c.resolved = true
	}
	if c.yielded >= c.limit {
		return false, nil
	}
	ok, err := c.Input.Pull(f, ctx)
	if err != nil || !ok {
		return false, err
	}
	c.yielded++
	return true, nil
}

func (c *Limit) Reset() {
	c.Input.Reset()
	c.resolved = false
	c.yielded = 0
}

// OrderKey is one ORDER BY term.
type OrderKey struct {
	Eval       Expr
	Descending bool
}

// OrderBy materializes the whole input, sorts it stably, then replays
// rows one at a time. Nulls sort last on ASC and first on DESC.
type OrderBy struct {
	Input Cursor
	Keys  []OrderKey
	Width int

	rows [][]graph.Value
	pos  int
	done bool
}

func (c *OrderBy) Pull(f Frame, ctx *Context) (bool, error) {
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

func (c *OrderBy) materialize(f Frame, ctx *Context) error {
	type row struct {
		vals []graph.Value
		keys []graph.Value
	}
	var rows []row
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
		keys := make([]graph.Value, len(c.Keys))
		for i, k := range c.Keys {
			kv, err := k.Eval(f, ctx)
			if err != nil {
				return err
			}
			keys[i] = kv
		}
		rows = append(rows, row{vals: f.Clone(), keys: keys})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for k, key := range c.Keys {
			a, b := rows[i].keys[k], rows[j].keys[k]
			switch {
			case a.IsNull() && b.IsNull():
				continue
			case a.IsNull():
				return key.Descending
			case b.IsNull():
				return !key.Descending
			}
			cmp, ok := graph.Compare(a, b)
			if !ok || cmp == 0 {
				continue
			}
			if key.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	c.rows = make([][]graph.Value, len(rows))
	for i, r := range rows {
		c.rows[i] = r.vals
	}
	return nil
}

func (c *OrderBy) Reset() {
	c.Input.Reset()
	c.rows = nil
	c.pos = 0
	c.done = false
}

// Distinct deduplicates rows by the value tuple at Slots, preserving
// first-seen order.
type Distinct struct {
	Input Cursor
	Slots []int

	seen map[string]bool
}

func (c *Distinct) Pull(f Frame, ctx *Context) (bool, error) {
	if c.seen == nil {
		c.seen = make(map[string]bool)
	}
	for {
		if err := checkAbort(ctx); err != nil {
			return false, err
		}
		ok, err := c.Input.Pull(f, ctx)
		if err != nil || !ok {
			return false, err
		}
		key := distinctKey(f, c.Slots)
		if !c.seen[key] {
			c.seen[key] = true
			return true, nil
		}
	}
}

func distinctKey(f Frame, slots []int) string {
	var b []byte
	for _, s := range slots {
		b = append(b, []byte(f[s].String())...)
		b = append(b, 0)
	}
	return string(b)
}

func (c *Distinct) Reset() {
	c.Input.Reset()
	c.seen = nil
}

// Unwind evaluates Expr expecting a list per input row and emits one
// row per element bound to Slot; a null list yields zero rows.
type Unwind struct {
	Input Cursor
	Expr  Expr
	Slot  int

	items []graph.Value
	idx   int
}

func (c *Unwind) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		if err := checkAbort(ctx); err != nil {
			return false, err
		}
		if c.items == nil || c.idx >= len(c.items) {
			ok, err := c.Input.Pull(f, ctx)
			if err != nil || !ok {
				return false, err
			}
			v, err := c.Expr(f, ctx)
			if err != nil {
				return false, err
			}
			if v.IsNull() || v.Kind() != graph.KindList {
				c.items = nil
				continue
			}
			c.items = v.AsList()
			c.idx = 0
			if len(c.items) == 0 {
				c.items = nil
				continue
			}
		}
		f[c.Slot] = c.items[c.idx]
		c.idx++
		return true, nil
	}
}

func (c *Unwind) Reset() {
	c.Input.Reset()
	c.items = nil
	c.idx = 0
}

// NamedExpr is one Produce output: evaluate Value and bind it to Slot.
type NamedExpr struct {
	Slot  int
	Value Expr
}

// Produce evaluates and binds every projection expression, the final
// stage of a WITH/RETURN clause before the header is read off Outputs.
type Produce struct {
	Input Cursor
	Exprs []NamedExpr
}

func (c *Produce) Pull(f Frame, ctx *Context) (bool, error) {
	ok, err := c.Input.Pull(f, ctx)
	if err != nil || !ok {
		return false, err
	}
	for _, e := range c.Exprs {
		v, err := e.Value(f, ctx)
		if err != nil {
			return false, err
		}
		f[e.Slot] = v
	}
	return true, nil
}

func (c *Produce) Reset() { c.Input.Reset() }

// Cartesian is a nested-loop join: Right is fully re-opened per Left
// row. Left and Right must bind disjoint symbol sets.
type Cartesian struct {
	Left, Right Cursor

	haveLeft bool
}

func (c *Cartesian) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		if err := checkAbort(ctx); err != nil {
			return false, err
		}
		if !c.haveLeft {
			ok, err := c.Left.Pull(f, ctx)
			if err != nil || !ok {
				return false, err
			}
			c.haveLeft = true
			c.Right.Reset()
		}
		ok, err := c.Right.Pull(f, ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			c.haveLeft = false
			continue
		}
		return true, nil
	}
}

func (c *Cartesian) Reset() {
	c.Left.Reset()
	c.Right.Reset()
	c.haveLeft = false
}

// Accumulate fully drains its child before yielding any row, so
// downstream operators see a stable, complete input set (e.g. a WITH
// following a SET must not observe partially-applied writes).
type Accumulate struct {
	Input          Cursor
	Slots          []int
	AdvanceCommand bool

	rows [][]graph.Value
	pos  int
	done bool
}

func (c *Accumulate) Pull(f Frame, ctx *Context) (bool, error) {
	if !c.done {
		for {
			if err := checkAbort(ctx); err != nil {
				return false, err
			}
			ok, err := c.Input.Pull(f, ctx)
			if err != nil {
				return false, err
			}
			if !ok {
				break
			}
			row := make([]graph.Value, len(c.Slots))
			for i, s := range c.Slots {
				row[i] = f[s]
			}
			c.rows = append(c.rows, row)
		}
		if c.AdvanceCommand {
			ctx.Accessor.AdvanceCommand()
		}
		c.done = true
	}
	if c.pos >= len(c.rows) {
		return false, nil
	}
	for i, s := range c.Slots {
		f[s] = c.rows[c.pos][i]
	}
	c.pos++
	return true, nil
}

func (c *Accumulate) Reset() {
	c.Input.Reset()
	c.rows = nil
	c.pos = 0
	c.done = false
}
