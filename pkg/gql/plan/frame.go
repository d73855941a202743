package plan

import "github.com/jsoref/memgraph/pkg/graph"

// Frame is the fixed-size vector of typed values every cursor chain
// shares for the duration of one query. It is indexed by symbol slot
// and mutated in place as operators assign their outputs.
type Frame []graph.Value

// NewFrame allocates a Frame of length n, every slot null.
func NewFrame(n int) Frame {
	f := make(Frame, n)
	for i := range f {
		f[i] = graph.Null
	}
	return f
}

// Clone returns an independent copy, used by operators that must
// materialize rows (OrderBy, Accumulate, Aggregate) before continuing
// to pull further rows into the shared frame.
func (f Frame) Clone() Frame {
	out := make(Frame, len(f))
	copy(out, f)
	return out
}
