package plan

import "github.com/jsoref/memgraph/pkg/graph"

// CreateNode materializes one vertex per input row and binds it to
// Slot. Label and property expressions are evaluated fresh per row so
// CREATE inside a preceding UNWIND produces one vertex per element.
type CreateNode struct {
	Input  Cursor
	Slot   int
	Labels []string
	Props  map[string]Expr
}

func (c *CreateNode) Pull(f Frame, ctx *Context) (bool, error) {
	ok, err := c.Input.Pull(f, ctx)
	if err != nil || !ok {
		return false, err
	}
	props, err := evalProps(c.Props, f, ctx)
	if err != nil {
		return false, err
	}
	v, err := ctx.Accessor.CreateVertex(c.Labels, props)
	if err != nil {
		return false, err
	}
	f[c.Slot] = graph.VertexVal(v)
	return true, nil
}

func (c *CreateNode) Reset() { c.Input.Reset() }

// CreateExpand materializes one edge per input row between two
// already-bound endpoints. Direction follows the pattern that
// produced it: FromSlot is the tail, ToSlot the head.
type CreateExpand struct {
	Input    Cursor
	EdgeSlot int
	FromSlot int
	ToSlot   int
	Type     string
	Props    map[string]Expr
}

func (c *CreateExpand) Pull(f Frame, ctx *Context) (bool, error) {
	ok, err := c.Input.Pull(f, ctx)
	if err != nil || !ok {
		return false, err
	}
	from := f[c.FromSlot]
	to := f[c.ToSlot]
	if from.IsNull() || to.IsNull() {
		return false, runtimeErrorf("CREATE requires both endpoints of a relationship to be bound")
	}
	props, err := evalProps(c.Props, f, ctx)
	if err != nil {
		return false, err
	}
	e, err := ctx.Accessor.CreateEdge(from.AsVertex().ID, to.AsVertex().ID, c.Type, props)
	if err != nil {
		return false, err
	}
	f[c.EdgeSlot] = graph.EdgeVal(e)
	return true, nil
}

func (c *CreateExpand) Reset() { c.Input.Reset() }

func evalProps(props map[string]Expr, f Frame, ctx *Context) (map[string]graph.Value, error) {
	if len(props) == 0 {
		return nil, nil
	}
	out := make(map[string]graph.Value, len(props))
	for k, e := range props {
		v, err := e(f, ctx)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// SetProperty assigns Target.Key := Value; a null target is a no-op.
type SetProperty struct {
	Input  Cursor
	Target Expr
	Key    string
	Value  Expr
}

func (c *SetProperty) Pull(f Frame, ctx *Context) (bool, error) {
	ok, err := c.Input.Pull(f, ctx)
	if err != nil || !ok {
		return false, err
	}
	tv, err := c.Target(f, ctx)
	if err != nil {
		return false, err
	}
	if tv.IsNull() {
		return true, nil
	}
	vv, err := c.Value(f, ctx)
	if err != nil {
		return false, err
	}
	if err := ctx.Accessor.SetProperty(tv, c.Key, vv); err != nil {
		return false, err
	}
	return true, nil
}

func (c *SetProperty) Reset() { c.Input.Reset() }

// SetProperties assigns a whole property map onto Target, either
// replacing it (Target = {...}) or merging into it (Target += {...}).
type SetProperties struct {
	Input   Cursor
	Target  Expr
	Value   Expr
	Replace bool
}

func (c *SetProperties) Pull(f Frame, ctx *Context) (bool, error) {
	ok, err := c.Input.Pull(f, ctx)
	if err != nil || !ok {
		return false, err
	}
	tv, err := c.Target(f, ctx)
	if err != nil {
		return false, err
	}
	if tv.IsNull() {
		return true, nil
	}
	vv, err := c.Value(f, ctx)
	if err != nil {
		return false, err
	}
	if vv.IsNull() || vv.Kind() != graph.KindMap {
		return false, runtimeErrorf("property map assignment requires a map value")
	}
	if err := ctx.Accessor.SetProperties(tv, vv.AsMap(), c.Replace); err != nil {
		return false, err
	}
	return true, nil
}

func (c *SetProperties) Reset() { c.Input.Reset() }

// SetLabels adds Labels to the vertex bound at Slot; a null slot is a
// no-op.
type SetLabels struct {
	Input  Cursor
	Slot   int
	Labels []string
}

func (c *SetLabels) Pull(f Frame, ctx *Context) (bool, error) {
	ok, err := c.Input.Pull(f, ctx)
	if err != nil || !ok {
		return false, err
	}
	v := f[c.Slot]
	if v.IsNull() {
		return true, nil
	}
	for _, l := range c.Labels {
		if err := ctx.Accessor.AddLabel(v.AsVertex(), l); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (c *SetLabels) Reset() { c.Input.Reset() }

// RemoveProperty removes Key from Target; a null target is a no-op.
type RemoveProperty struct {
	Input  Cursor
	Target Expr
	Key    string
}

func (c *RemoveProperty) Pull(f Frame, ctx *Context) (bool, error) {
	ok, err := c.Input.Pull(f, ctx)
	if err != nil || !ok {
		return false, err
	}
	tv, err := c.Target(f, ctx)
	if err != nil {
		return false, err
	}
	if tv.IsNull() {
		return true, nil
	}
	if err := ctx.Accessor.RemoveProperty(tv, c.Key); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RemoveProperty) Reset() { c.Input.Reset() }

// RemoveLabels removes Labels from the vertex bound at Slot; a null
// slot is a no-op.
type RemoveLabels struct {
	Input  Cursor
	Slot   int
	Labels []string
}

func (c *RemoveLabels) Pull(f Frame, ctx *Context) (bool, error) {
	ok, err := c.Input.Pull(f, ctx)
	if err != nil || !ok {
		return false, err
	}
	v := f[c.Slot]
	if v.IsNull() {
		return true, nil
	}
	for _, l := range c.Labels {
		if err := ctx.Accessor.RemoveLabel(v.AsVertex(), l); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (c *RemoveLabels) Reset() { c.Input.Reset() }

// Delete removes each resolved vertex/edge. Deleting a vertex with
// incident edges fails unless Detach is set, in which case the
// accessor detaches (deletes incident edges) before deleting it.
type Delete struct {
	Input  Cursor
	Exprs  []Expr
	Detach bool
}

func (c *Delete) Pull(f Frame, ctx *Context) (bool, error) {
	ok, err := c.Input.Pull(f, ctx)
	if err != nil || !ok {
		return false, err
	}
	for _, e := range c.Exprs {
		v, err := e(f, ctx)
		if err != nil {
			return false, err
		}
		if v.IsNull() {
			continue
		}
		switch v.Kind() {
		case graph.KindVertex:
			vertex := v.AsVertex()
			if c.Detach {
				if err := ctx.Accessor.DetachDeleteVertex(vertex); err != nil {
					return false, err
				}
			} else if err := ctx.Accessor.DeleteVertex(vertex); err != nil {
				return false, err
			}
		case graph.KindEdge:
			if err := ctx.Accessor.DeleteEdge(v.AsEdge()); err != nil {
				return false, err
			}
		default:
			return false, runtimeErrorf("DELETE requires a vertex or relationship, got %s", v.Kind())
		}
	}
	return true, nil
}

func (c *Delete) Reset() { c.Input.Reset() }

// CreateIndexOp is the single-shot control operator for CREATE INDEX:
// it runs once on the first pull and then reports exhaustion.
type CreateIndexOp struct {
	Label      string
	Property   string
	Invalidate func()

	done bool
}

func (c *CreateIndexOp) Pull(f Frame, ctx *Context) (bool, error) {
	if c.done {
		return false, nil
	}
	c.done = true
	created, err := ctx.Accessor.CreateIndex(c.Label, c.Property)
	if err != nil {
		return false, err
	}
	if created && c.Invalidate != nil {
		c.Invalidate()
	}
	return true, nil
}

func (c *CreateIndexOp) Reset() { c.done = false }
