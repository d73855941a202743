package plan

import (
	"math"
	"strconv"
	"strings"

	"github.com/jsoref/memgraph/pkg/gql/ast"
	"github.com/jsoref/memgraph/pkg/gql/symbol"
	"github.com/jsoref/memgraph/pkg/graph"
)

// Expr is a compiled expression: a closure over resolved frame slots
// that evaluates against a live Frame and Context, avoiding a second
// name-lookup pass at every row like the AST would require.
type Expr func(Frame, *Context) (graph.Value, error)

// Compile lowers an ast.Expression into an Expr against table, the
// symbol table produced during resolution. Every ast.Identifier is
// resolved to a frame slot once, at compile time.
func Compile(e ast.Expression, table *symbol.Table) (Expr, error) {
	switch ex := e.(type) {
	case *ast.Literal:
		v := ex.Value
		return func(Frame, *Context) (graph.Value, error) { return v, nil }, nil

	case *ast.Parameter:
		name := ex.Name
		return func(_ Frame, ctx *Context) (graph.Value, error) {
			val, ok := ctx.Values[name]
			if !ok {
				return graph.Null, &UnprovidedParameterError{Name: name}
			}
			return val, nil
		}, nil

	case *ast.Identifier:
		sym, ok := table.Lookup(ex.Name)
		if !ok {
			return nil, runtimeErrorf("unresolved identifier %q", ex.Name)
		}
		slot := sym.Slot
		return func(f Frame, _ *Context) (graph.Value, error) { return f[slot], nil }, nil

	case *ast.PathExpr:
		sym, ok := table.Lookup(ex.Variable)
		if !ok {
			return nil, runtimeErrorf("unresolved path variable %q", ex.Variable)
		}
		slot := sym.Slot
		return func(f Frame, _ *Context) (graph.Value, error) { return f[slot], nil }, nil

	case *ast.PropertyLookup:
		base, err := Compile(ex.Base, table)
		if err != nil {
			return nil, err
		}
		key := ex.Key
		return func(f Frame, ctx *Context) (graph.Value, error) {
			bv, err := base(f, ctx)
			if err != nil {
				return graph.Null, err
			}
			return propertyOf(bv, key), nil
		}, nil

	case *ast.ListLiteral:
		items := make([]Expr, len(ex.Items))
		for i, it := range ex.Items {
			ce, err := Compile(it, table)
			if err != nil {
				return nil, err
			}
			items[i] = ce
		}
		return func(f Frame, ctx *Context) (graph.Value, error) {
			out := make([]graph.Value, len(items))
			for i, it := range items {
				v, err := it(f, ctx)
				if err != nil {
					return graph.Null, err
				}
				out[i] = v
			}
			return graph.List(out), nil
		}, nil

	case *ast.MapLiteral:
		type kv struct {
			key string
			val Expr
		}
		entries := make([]kv, 0, len(ex.Order))
		for _, k := range ex.Order {
			ce, err := Compile(ex.Entries[k], table)
			if err != nil {
				return nil, err
			}
			entries = append(entries, kv{k, ce})
		}
		return func(f Frame, ctx *Context) (graph.Value, error) {
			m := make(map[string]graph.Value, len(entries))
			for _, e := range entries {
				v, err := e.val(f, ctx)
				if err != nil {
					return graph.Null, err
				}
				m[e.key] = v
			}
			return graph.Map(m), nil
		}, nil

	case *ast.FunctionCall:
		return compileFunctionCall(ex, table)

	case *ast.BinaryExpr:
		return compileBinary(ex, table)

	case *ast.UnaryExpr:
		return compileUnary(ex, table)

	case *ast.IsNullExpr:
		inner, err := Compile(ex.Expr, table)
		if err != nil {
			return nil, err
		}
		not := ex.Not
		return func(f Frame, ctx *Context) (graph.Value, error) {
			v, err := inner(f, ctx)
			if err != nil {
				return graph.Null, err
			}
			isNull := v.IsNull()
			if not {
				isNull = !isNull
			}
			return graph.Bool(isNull), nil
		}, nil

	case *ast.CaseExpr:
		return compileCase(ex, table)

	case *ast.ListComprehension:
		return compileListComprehension(ex, table)

	default:
		return nil, runtimeErrorf("unsupported expression type %T", e)
	}
}

// UnprovidedParameterError is raised when a stripped placeholder was
// never supplied by the caller's parameter map.
type UnprovidedParameterError struct{ Name string }

func (e *UnprovidedParameterError) Error() string {
	return "parameter not provided: $" + e.Name
}

func propertyOf(v graph.Value, key string) graph.Value {
	switch v.Kind() {
	case graph.KindVertex:
		return v.AsVertex().Property(key)
	case graph.KindEdge:
		return v.AsEdge().Property(key)
	case graph.KindMap:
		if val, ok := v.AsMap()[key]; ok {
			return val
		}
		return graph.Null
	default:
		return graph.Null
	}
}

func compileBinary(ex *ast.BinaryExpr, table *symbol.Table) (Expr, error) {
	left, err := Compile(ex.Left, table)
	if err != nil {
		return nil, err
	}
	right, err := Compile(ex.Right, table)
	if err != nil {
		return nil, err
	}
	op := ex.Op

	return func(f Frame, ctx *Context) (graph.Value, error) {
		// AND/OR short-circuit per Kleene logic but still need the
		// right side's tribool when the left doesn't decide the result.
		if op == "AND" || op == "OR" {
			lv, err := left(f, ctx)
			if err != nil {
				return graph.Null, err
			}
			lt := graph.ToTribool(lv)
			if op == "AND" && lt == graph.TriFalse {
				return graph.Bool(false), nil
			}
			if op == "OR" && lt == graph.TriTrue {
				return graph.Bool(true), nil
			}
			rv, err := right(f, ctx)
			if err != nil {
				return graph.Null, err
			}
			rt := graph.ToTribool(rv)
			var result graph.Tribool
			if op == "AND" {
				result = graph.And(lt, rt)
			} else {
				result = graph.Or(lt, rt)
			}
			return result.AsBoolValue(), nil
		}

		lv, err := left(f, ctx)
		if err != nil {
			return graph.Null, err
		}
		rv, err := right(f, ctx)
		if err != nil {
			return graph.Null, err
		}

		switch op {
		case "XOR":
			lt, rt := graph.ToTribool(lv), graph.ToTribool(rv)
			if lt == graph.TriNull || rt == graph.TriNull {
				return graph.Null, nil
			}
			return graph.Bool((lt == graph.TriTrue) != (rt == graph.TriTrue)), nil
		case "+":
			return graph.Add(lv, rv), nil
		case "-":
			return graph.Sub(lv, rv), nil
		case "*":
			return graph.Mul(lv, rv), nil
		case "/":
			return graph.Div(lv, rv), nil
		case "%":
			return graph.Mod(lv, rv), nil
		case "=":
			return graph.Equal(lv, rv).AsBoolValue(), nil
		case "<>":
			return graph.Not(graph.Equal(lv, rv)).AsBoolValue(), nil
		case "<", "<=", ">", ">=":
			return compareOp(lv, rv, op), nil
		case "IN":
			return inOp(lv, rv), nil
		case "STARTS WITH":
			return stringOp(lv, rv, strings.HasPrefix), nil
		case "ENDS WITH":
			return stringOp(lv, rv, strings.HasSuffix), nil
		case "CONTAINS":
			return stringOp(lv, rv, strings.Contains), nil
		default:
			return graph.Null, runtimeErrorf("unknown operator %q", op)
		}
	}, nil
}

func compareOp(a, b graph.Value, op string) graph.Value {
	result, ok := graph.Compare(a, b)
	if !ok {
		return graph.Null
	}
	switch op {
	case "<":
		return graph.Bool(result < 0)
	case "<=":
		return graph.Bool(result <= 0)
	case ">":
		return graph.Bool(result > 0)
	default:
		return graph.Bool(result >= 0)
	}
}

func inOp(item, list graph.Value) graph.Value {
	if item.IsNull() || list.IsNull() {
		return graph.Null
	}
	if list.Kind() != graph.KindList {
		return graph.Null
	}
	sawNull := false
	for _, v := range list.AsList() {
		t := graph.Equal(item, v)
		if t == graph.TriTrue {
			return graph.Bool(true)
		}
		if t == graph.TriNull {
			sawNull = true
		}
	}
	if sawNull {
		return graph.Null
	}
	return graph.Bool(false)
}

func stringOp(a, b graph.Value, f func(string, string) bool) graph.Value {
	if a.IsNull() || b.IsNull() || a.Kind() != graph.KindString || b.Kind() != graph.KindString {
		return graph.Null
	}
	return graph.Bool(f(a.AsString(), b.AsString()))
}

func compileUnary(ex *ast.UnaryExpr, table *symbol.Table) (Expr, error) {
	inner, err := Compile(ex.Expr, table)
	if err != nil {
		return nil, err
	}
	switch ex.Op {
	case "NOT":
		return func(f Frame, ctx *Context) (graph.Value, error) {
			v, err := inner(f, ctx)
			if err != nil {
				return graph.Null, err
			}
			return graph.Not(graph.ToTribool(v)).AsBoolValue(), nil
		}, nil
	case "-":
		return func(f Frame, ctx *Context) (graph.Value, error) {
			v, err := inner(f, ctx)
			if err != nil {
				return graph.Null, err
			}
			if v.IsNull() || !v.IsNumeric() {
				return graph.Null, nil
			}
			if v.Kind() == graph.KindInt {
				return graph.Int(-v.AsInt()), nil
			}
			return graph.Double(-v.AsDouble()), nil
		}, nil
	default:
		return nil, runtimeErrorf("unknown unary operator %q", ex.Op)
	}
}

func compileCase(ex *ast.CaseExpr, table *symbol.Table) (Expr, error) {
	var test Expr
	if ex.Test != nil {
		var err error
		test, err = Compile(ex.Test, table)
		if err != nil {
			return nil, err
		}
	}
	type branch struct{ cond, result Expr }
	branches := make([]branch, len(ex.Whens))
	for i, w := range ex.Whens {
		cond, err := Compile(w.Cond, table)
		if err != nil {
			return nil, err
		}
		result, err := Compile(w.Result, table)
		if err != nil {
			return nil, err
		}
		branches[i] = branch{cond, result}
	}
	var def Expr
	if ex.Default != nil {
		var err error
		def, err = Compile(ex.Default, table)
		if err != nil {
			return nil, err
		}
	}

	return func(f Frame, ctx *Context) (graph.Value, error) {
		var testVal graph.Value
		if test != nil {
			v, err := test(f, ctx)
			if err != nil {
				return graph.Null, err
			}
			testVal = v
		}
		for _, b := range branches {
			cv, err := b.cond(f, ctx)
			if err != nil {
				return graph.Null, err
			}
			var matched bool
			if test != nil {
				matched = graph.Equal(testVal, cv) == graph.TriTrue
			} else {
				matched = graph.ToTribool(cv) == graph.TriTrue
			}
			if matched {
				return b.result(f, ctx)
			}
		}
		if def != nil {
			return def(f, ctx)
		}
		return graph.Null, nil
	}, nil
}

func compileListComprehension(ex *ast.ListComprehension, table *symbol.Table) (Expr, error) {
	list, err := Compile(ex.List, table)
	if err != nil {
		return nil, err
	}
	localSym, ok := table.Lookup(ex.Variable)
	if !ok {
		return nil, runtimeErrorf("unresolved comprehension variable %q", ex.Variable)
	}
	var filter, project Expr
	if ex.Filter != nil {
		filter, err = Compile(ex.Filter, table)
		if err != nil {
			return nil, err
		}
	}
	if ex.Project != nil {
		project, err = Compile(ex.Project, table)
		if err != nil {
			return nil, err
		}
	}
	slot := localSym.Slot

	return func(f Frame, ctx *Context) (graph.Value, error) {
		lv, err := list(f, ctx)
		if err != nil {
			return graph.Null, err
		}
		if lv.IsNull() || lv.Kind() != graph.KindList {
			return graph.List(nil), nil
		}
		saved := f[slot]
		defer func() { f[slot] = saved }()

		var out []graph.Value
		for _, item := range lv.AsList() {
			f[slot] = item
			if filter != nil {
				fv, err := filter(f, ctx)
				if err != nil {
					return graph.Null, err
				}
				if graph.ToTribool(fv) != graph.TriTrue {
					continue
				}
			}
			if project != nil {
				pv, err := project(f, ctx)
				if err != nil {
					return graph.Null, err
				}
				out = append(out, pv)
			} else {
				out = append(out, item)
			}
		}
		return graph.List(out), nil
	}, nil
}

func compileFunctionCall(ex *ast.FunctionCall, table *symbol.Table) (Expr, error) {
	args := make([]Expr, len(ex.Args))
	for i, a := range ex.Args {
		ce, err := Compile(a, table)
		if err != nil {
			return nil, err
		}
		args[i] = ce
	}
	fn := strings.ToLower(ex.Name)

	return func(f Frame, ctx *Context) (graph.Value, error) {
		vals := make([]graph.Value, len(args))
		for i, a := range args {
			v, err := a(f, ctx)
			if err != nil {
				return graph.Null, err
			}
			vals[i] = v
		}
		return callBuiltin(fn, vals)
	}, nil
}

func callBuiltin(name string, args []graph.Value) (graph.Value, error) {
	arg0 := func() graph.Value {
		if len(args) == 0 {
			return graph.Null
		}
		return args[0]
	}
	switch name {
	case "coalesce":
		for _, a := range args {
			if !a.IsNull() {
				return a, nil
			}
		}
		return graph.Null, nil
	case "id":
		v := arg0()
		switch v.Kind() {
		case graph.KindVertex:
			return graph.Int(int64(v.AsVertex().ID)), nil
		case graph.KindEdge:
			return graph.Int(int64(v.AsEdge().ID)), nil
		default:
			return graph.Null, nil
		}
	case "labels":
		v := arg0()
		if v.Kind() != graph.KindVertex {
			return graph.Null, nil
		}
		labels := v.AsVertex().Labels()
		out := make([]graph.Value, len(labels))
		for i, l := range labels {
			out[i] = graph.Str(l)
		}
		return graph.List(out), nil
	case "type":
		v := arg0()
		if v.Kind() != graph.KindEdge {
			return graph.Null, nil
		}
		return graph.Str(v.AsEdge().Type()), nil
	case "keys":
		v := arg0()
		var props map[string]graph.Value
		switch v.Kind() {
		case graph.KindVertex:
			props = v.AsVertex().Properties()
		case graph.KindEdge:
			props = v.AsEdge().Properties()
		case graph.KindMap:
			props = v.AsMap()
		default:
			return graph.Null, nil
		}
		out := make([]graph.Value, 0, len(props))
		for k := range props {
			out = append(out, graph.Str(k))
		}
		return graph.List(out), nil
	case "size":
		v := arg0()
		switch v.Kind() {
		case graph.KindList:
			return graph.Int(int64(len(v.AsList()))), nil
		case graph.KindString:
			return graph.Int(int64(len(v.AsString()))), nil
		default:
			return graph.Null, nil
		}
	case "toupper":
		v := arg0()
		if v.Kind() != graph.KindString {
			return graph.Null, nil
		}
		return graph.Str(strings.ToUpper(v.AsString())), nil
	case "tolower":
		v := arg0()
		if v.Kind() != graph.KindString {
			return graph.Null, nil
		}
		return graph.Str(strings.ToLower(v.AsString())), nil
	case "tostring":
		v := arg0()
		if v.IsNull() {
			return graph.Null, nil
		}
		return graph.Str(v.String()), nil
	case "tointeger":
		v := arg0()
		switch v.Kind() {
		case graph.KindInt:
			return v, nil
		case graph.KindDouble:
			return graph.Int(int64(v.AsDouble())), nil
		case graph.KindString:
			n, err := strconv.ParseInt(strings.TrimSpace(v.AsString()), 10, 64)
			if err != nil {
				return graph.Null, nil
			}
			return graph.Int(n), nil
		default:
			return graph.Null, nil
		}
	case "tofloat":
		v := arg0()
		switch v.Kind() {
		case graph.KindInt, graph.KindDouble:
			return graph.Double(v.AsDouble()), nil
		case graph.KindString:
			d, err := strconv.ParseFloat(strings.TrimSpace(v.AsString()), 64)
			if err != nil {
				return graph.Null, nil
			}
			return graph.Double(d), nil
		default:
			return graph.Null, nil
		}
	case "abs":
		v := arg0()
		if !v.IsNumeric() {
			return graph.Null, nil
		}
		if v.Kind() == graph.KindInt {
			n := v.AsInt()
			if n < 0 {
				n = -n
			}
			return graph.Int(n), nil
		}
		return graph.Double(math.Abs(v.AsDouble())), nil
	case "sqrt":
		v := arg0()
		if !v.IsNumeric() {
			return graph.Null, nil
		}
		return graph.Double(math.Sqrt(v.AsDouble())), nil
	case "exists":
		v := arg0()
		return graph.Bool(!v.IsNull()), nil
	default:
		return graph.Null, runtimeErrorf("unknown function %q", name)
	}
}
