package interpret

import (
	"github.com/jsoref/memgraph/pkg/auth"
	"github.com/jsoref/memgraph/pkg/gql/plan"
	"github.com/jsoref/memgraph/pkg/graph"
)

// EnableAuth registers the auth.* CALL procedures against catalog,
// backing the Auth control operator (§4.5) with pkg/auth.UserCatalog.
// A query with no YIELD against a trivial driver, e.g.
//
//	CALL auth.createUser("alice", "hunter2", false)
//
// compiles to a controlOp (planner.callClause) that evaluates its
// argument expressions into ctx.Args and runs this procedure once.
func (i *Interpreter) EnableAuth(catalog *auth.UserCatalog) {
	i.RegisterProcedure("auth.createUser", func(ctx *plan.Context) (map[string]graph.Value, error) {
		username, err := argString(ctx, 0)
		if err != nil {
			return nil, err
		}
		password, err := argString(ctx, 1)
		if err != nil {
			return nil, err
		}
		superuser := argBool(ctx, 2, false)
		return nil, catalog.CreateUser(username, password, superuser)
	})

	i.RegisterProcedure("auth.dropUser", func(ctx *plan.Context) (map[string]graph.Value, error) {
		username, err := argString(ctx, 0)
		if err != nil {
			return nil, err
		}
		ifExists := argBool(ctx, 1, false)
		return nil, catalog.DropUser(username, ifExists)
	})

	i.RegisterProcedure("auth.alterPassword", func(ctx *plan.Context) (map[string]graph.Value, error) {
		username, err := argString(ctx, 0)
		if err != nil {
			return nil, err
		}
		password, err := argString(ctx, 1)
		if err != nil {
			return nil, err
		}
		return nil, catalog.AlterPassword(username, password)
	})

	i.RegisterProcedure("auth.setSuperuser", func(ctx *plan.Context) (map[string]graph.Value, error) {
		username, err := argString(ctx, 0)
		if err != nil {
			return nil, err
		}
		superuser := argBool(ctx, 1, true)
		return nil, catalog.SetSuperuser(username, superuser)
	})

	i.RegisterProcedure("auth.grant", func(ctx *plan.Context) (map[string]graph.Value, error) {
		username, err := argString(ctx, 0)
		if err != nil {
			return nil, err
		}
		label, err := argString(ctx, 1)
		if err != nil {
			return nil, err
		}
		priv, err := argString(ctx, 2)
		if err != nil {
			return nil, err
		}
		return nil, catalog.Grant(username, label, auth.Priv(priv))
	})

	i.RegisterProcedure("auth.revoke", func(ctx *plan.Context) (map[string]graph.Value, error) {
		username, err := argString(ctx, 0)
		if err != nil {
			return nil, err
		}
		label, err := argString(ctx, 1)
		if err != nil {
			return nil, err
		}
		priv, err := argString(ctx, 2)
		if err != nil {
			return nil, err
		}
		return nil, catalog.Revoke(username, label, auth.Priv(priv))
	})

	i.RegisterProcedure("auth.listUsers", func(ctx *plan.Context) (map[string]graph.Value, error) {
		names := catalog.ListUsers()
		vals := make([]graph.Value, len(names))
		for j, n := range names {
			vals[j] = graph.Str(n)
		}
		return map[string]graph.Value{"username": graph.List(vals)}, nil
	})

	i.RegisterProcedure("auth.authenticate", func(ctx *plan.Context) (map[string]graph.Value, error) {
		username, err := argString(ctx, 0)
		if err != nil {
			return nil, err
		}
		password, err := argString(ctx, 1)
		if err != nil {
			return nil, err
		}
		user, err := catalog.Authenticate(username, password)
		if err != nil {
			return nil, err
		}
		return map[string]graph.Value{
			"username":  graph.Str(user.Username),
			"superuser": graph.Bool(user.Superuser),
		}, nil
	})
}

// argString reads ctx.Args[n] as a string, grounded on the same
// positional-argument contract func-call expressions already use in
// pkg/gql/plan's builtin function table.
func argString(ctx *plan.Context, n int) (string, error) {
	if n >= len(ctx.Args) {
		return "", newError(KindQueryRuntime, "missing procedure argument", nil)
	}
	v := ctx.Args[n]
	if v.Kind() != graph.KindString {
		return "", newError(KindQueryRuntime, "procedure argument must be a string", nil)
	}
	return v.AsString(), nil
}

// argBool reads ctx.Args[n] as a bool, falling back to def when the
// argument was omitted (most auth procedures treat a trailing flag as
// optional).
func argBool(ctx *plan.Context, n int, def bool) bool {
	if n >= len(ctx.Args) {
		return def
	}
	v := ctx.Args[n]
	if v.Kind() != graph.KindBool {
		return def
	}
	return v.AsBool()
}
