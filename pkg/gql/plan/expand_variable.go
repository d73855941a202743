package plan

import "github.com/jsoref/memgraph/pkg/graph"

// variablePath is one candidate enumerated by ExpandVariable: the
// sequence of edges traversed and the vertex reached at the end.
type variablePath struct {
	edges []*graph.Edge
	end   *graph.Vertex
}

// ExpandVariable walks a hop range [Lo, Hi] from the vertex bound at
// InputSlot, binding EdgeSlot to the list of traversed edges and
// NodeSlot to the final vertex. BFS restricts results to the single
// shortest path found (Cypher's shortestPath form); otherwise every
// simple path (no repeated edge) in range is enumerated depth-first.
// A null InputSlot has no paths to enumerate, same as a vertex with no
// matching edges: the row is dropped and the next input row is pulled.
// Any all-null substitution for an unmatched optional pattern is the
// enclosing Optional operator's job, not this cursor's.
type ExpandVariable struct {
	Input     Cursor
	InputSlot int
	EdgeSlot  int
	NodeSlot  int
	Dir       graph.Direction
	Types     []string
	Lo, Hi    int
	BFS       bool

	paths  []variablePath
	idx    int
	primed bool
}

func (c *ExpandVariable) Pull(f Frame, ctx *Context) (bool, error) {
	for {
		if err := checkAbort(ctx); err != nil {
			return false, err
		}
		if !c.primed {
			ok, err := c.Input.Pull(f, ctx)
			if err != nil || !ok {
				return false, err
			}
			c.primed = true
			c.idx = 0
			in := f[c.InputSlot]
			if in.IsNull() {
				c.paths = nil
			} else if c.BFS {
				c.paths = bfsShortest(ctx, in.AsVertex(), c.Dir, c.Types, c.Lo, c.Hi)
			} else {
				c.paths = dfsAllPaths(ctx, in.AsVertex(), c.Dir, c.Types, c.Lo, c.Hi)
			}
		}
		if c.idx >= len(c.paths) {
			c.primed = false
			continue
		}
		p := c.paths[c.idx]
		c.idx++
		edgeVals := make([]graph.Value, len(p.edges))
		for i, e := range p.edges {
			edgeVals[i] = graph.EdgeVal(e)
		}
		f[c.EdgeSlot] = graph.List(edgeVals)
		f[c.NodeSlot] = graph.VertexVal(p.end)
		return true, nil
	}
}

func (c *ExpandVariable) Reset() {
	c.Input.Reset()
	c.paths = nil
	c.idx = 0
	c.primed = false
}

// dfsAllPaths enumerates every simple path (no repeated edge) from
// start of length in [lo, hi] hops.
func dfsAllPaths(ctx *Context, start *graph.Vertex, dir graph.Direction, types []string, lo, hi int) []variablePath {
	var out []variablePath
	var walk func(v *graph.Vertex, used map[graph.ID]bool, edges []*graph.Edge)
	walk = func(v *graph.Vertex, used map[graph.ID]bool, edges []*graph.Edge) {
		depth := len(edges)
		if depth >= lo && depth > 0 {
			out = append(out, variablePath{edges: append([]*graph.Edge{}, edges...), end: v})
		}
		if depth >= hi {
			return
		}
		it := ctx.Accessor.Edges(v, dir, types)
		for {
			e, ok := it.Next()
			if !ok {
				break
			}
			if used[e.ID] {
				continue
			}
			other := e.OtherEndpoint(v.ID)
			nv, ok := ctx.Accessor.VertexByID(other)
			if !ok {
				continue
			}
			used[e.ID] = true
			walk(nv, used, append(edges, e))
			delete(used, e.ID)
		}
	}
	walk(start, make(map[graph.ID]bool), nil)
	return out
}

// bfsShortest finds the shortest simple path within [lo, hi] hops,
// returning it as the sole element of the result (or none if
// unreachable within the range).
func bfsShortest(ctx *Context, start *graph.Vertex, dir graph.Direction, types []string, lo, hi int) []variablePath {
	type node struct {
		v     *graph.Vertex
		edges []*graph.Edge
	}
	queue := []node{{v: start}}
	visited := map[graph.ID]bool{start.ID: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		depth := len(cur.edges)
		if depth >= lo && depth > 0 {
			return []variablePath{{edges: cur.edges, end: cur.v}}
		}
		if depth >= hi {
			continue
		}
		it := ctx.Accessor.Edges(cur.v, dir, types)
		for {
			e, ok := it.Next()
			if !ok {
				break
			}
			other := e.OtherEndpoint(cur.v.ID)
			if visited[other] {
				continue
			}
			nv, ok := ctx.Accessor.VertexByID(other)
			if !ok {
				continue
			}
			visited[other] = true
			edges := append(append([]*graph.Edge{}, cur.edges...), e)
			queue = append(queue, node{v: nv, edges: edges})
		}
	}
	return nil
}
