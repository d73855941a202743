package interpret

import (
	"fmt"
	"reflect"

	"github.com/jsoref/memgraph/pkg/gql/plan"
	"github.com/jsoref/memgraph/pkg/graph"
	"github.com/jsoref/memgraph/pkg/observability"
)

// EnableObservability wires catalog into the interpreter: every
// Session.Execute call and explicit-transaction boundary reports to
// catalog's Statistics, and system.* CALL procedures expose its
// introspection tables, backing pkg/gql/plan's NewInfoOp control-op
// path (system is one of controlOpCtors' recognized namespaces).
func (i *Interpreter) EnableObservability(catalog *observability.SystemCatalog) {
	i.sysCatalog = catalog

	i.RegisterProcedure("system.statistics", func(ctx *plan.Context) (map[string]graph.Value, error) {
		return rowsToValue(catalog.GetStatistics()), nil
	})
	i.RegisterProcedure("system.labels", func(ctx *plan.Context) (map[string]graph.Value, error) {
		return rowsToValue(catalog.GetLabels()), nil
	})
	i.RegisterProcedure("system.transactions", func(ctx *plan.Context) (map[string]graph.Value, error) {
		rows := catalog.GetActiveTransactions()
		txns := make([]graph.Value, len(rows))
		for i, row := range rows {
			m := make(map[string]graph.Value, len(row.Columns))
			for c, name := range row.Columns {
				m[name] = toGraphValue(row.Values[c])
			}
			txns[i] = graph.Map(m)
		}
		return map[string]graph.Value{"transactions": graph.List(txns)}, nil
	})
	i.RegisterProcedure("system.locks", func(ctx *plan.Context) (map[string]graph.Value, error) {
		return rowsToValue(catalog.GetLockStats()), nil
	})
	i.RegisterProcedure("system.memory", func(ctx *plan.Context) (map[string]graph.Value, error) {
		return rowsToValue(catalog.GetMemoryStats()), nil
	})
	i.RegisterProcedure("system.prometheus", func(ctx *plan.Context) (map[string]graph.Value, error) {
		return map[string]graph.Value{"metrics": graph.Str(catalog.PrometheusMetrics())}, nil
	})
}

// rowsToValue flattens a SystemTableRow slice into one YIELD-able map
// per metric name; every row observability.go emits carries a
// {metric, value} or {label, vertex_count}-shaped Columns/Values pair,
// so the first column becomes the key and the second the value.
func rowsToValue(rows []observability.SystemTableRow) map[string]graph.Value {
	out := make(map[string]graph.Value, len(rows))
	for _, row := range rows {
		if len(row.Values) < 2 {
			continue
		}
		key, ok := row.Values[0].(string)
		if !ok {
			continue
		}
		out[key] = toGraphValue(row.Values[1])
	}
	return out
}

// toGraphValue converts one SystemTableRow value into a graph.Value.
// observability.go's rows carry a mix of string/bool/float64 and
// several distinct sized/named integer types (int, txn.TxID, the
// uint64/uint32 fields runtime.MemStats reports), so this dispatches
// on reflect.Kind rather than an exhaustive type switch.
func toGraphValue(v interface{}) graph.Value {
	switch t := v.(type) {
	case string:
		return graph.Str(t)
	case bool:
		return graph.Bool(t)
	case float64:
		return graph.Double(t)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return graph.Int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return graph.Int(int64(rv.Uint()))
	default:
		return graph.Str(fmt.Sprint(v))
	}
}
