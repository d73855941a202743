package interpret

import (
	"fmt"
	"strings"

	"github.com/jsoref/memgraph/pkg/gql/ast"
)

// exprText renders an expression back to a short source-like string,
// used only as the last-resort result-column name for a RETURN/WITH
// item with neither an alias nor a bare-identifier form (e.g.
// `RETURN 1 + 2`). spec.md §4.6 calls for recovering the original
// source slice by token position; the stripper records those
// positions in its Named map keyed by RETURN/WITH item offset, but the
// planner does not currently thread AST source spans through to
// OutputColumn, so this renders the expression from its parsed shape
// instead of re-slicing the original text (documented in DESIGN.md).
func exprText(e ast.Expression) string {
	switch v := e.(type) {
	case *ast.Literal:
		return v.Value.String()
	case *ast.Parameter:
		return "$" + v.Name
	case *ast.Identifier:
		return v.Name
	case *ast.PathExpr:
		return v.Variable
	case *ast.PropertyLookup:
		return exprText(v.Base) + "." + v.Key
	case *ast.ListLiteral:
		parts := make([]string, len(v.Items))
		for i, it := range v.Items {
			parts[i] = exprText(it)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *ast.MapLiteral:
		parts := make([]string, 0, len(v.Order))
		for _, k := range v.Order {
			parts = append(parts, fmt.Sprintf("%s: %s", k, exprText(v.Entries[k])))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *ast.FunctionCall:
		args := make([]string, len(v.Args))
		for i, a := range v.Args {
			args[i] = exprText(a)
		}
		star := ""
		if v.Star {
			star = "*"
		}
		return fmt.Sprintf("%s(%s%s)", v.Name, star, strings.Join(args, ", "))
	case *ast.BinaryExpr:
		return exprText(v.Left) + " " + v.Op + " " + exprText(v.Right)
	case *ast.UnaryExpr:
		return v.Op + exprText(v.Expr)
	case *ast.IsNullExpr:
		if v.Not {
			return exprText(v.Expr) + " IS NOT NULL"
		}
		return exprText(v.Expr) + " IS NULL"
	default:
		return "expr"
	}
}
