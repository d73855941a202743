package plan

import "github.com/jsoref/memgraph/pkg/graph"

// Context carries everything a cursor needs beyond the frame it is
// filling: the graph accessor for this transaction, resolved
// parameter/literal values, and a cooperative cancellation flag.
type Context struct {
	Accessor graph.Accessor

	// Values holds every placeholder the stripper produced (both
	// literal placeholders and user $-parameters), keyed by the name
	// an ast.Parameter or a compiled literal expression carries.
	Values map[string]graph.Value

	// ShouldAbort is polled between pulls; when it reports true the
	// interpreter aborts the transaction and surfaces a HintedAbortError.
	ShouldAbort func() bool

	// Procedures backs CALL clauses; each entry runs once per Call
	// operator pull and returns its YIELD-able fields by name. Auth,
	// stream, info, and constraint procedures are registered here by
	// the interpreter rather than known to the plan package itself.
	Procedures map[string]func(ctx *Context) (map[string]graph.Value, error)

	// Args holds the current CALL clause's evaluated argument list, set
	// by Call/controlOp just before invoking a Procedures entry. It is
	// scratch space, not a stable field: a procedure must read it before
	// returning, since the next CALL pull overwrites it.
	Args []graph.Value
}

func (c *Context) aborted() bool {
	return c.ShouldAbort != nil && c.ShouldAbort()
}
