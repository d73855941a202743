package interpret

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/jsoref/memgraph/internal/logger"
	"github.com/jsoref/memgraph/pkg/gql/cache"
	"github.com/jsoref/memgraph/pkg/gql/parser"
	"github.com/jsoref/memgraph/pkg/gql/plan"
	"github.com/jsoref/memgraph/pkg/gql/stripper"
	"github.com/jsoref/memgraph/pkg/gql/symbol"
	"github.com/jsoref/memgraph/pkg/graph"
	"github.com/jsoref/memgraph/pkg/observability"
	"github.com/jsoref/memgraph/pkg/storage"
	"github.com/jsoref/memgraph/pkg/txn"
)

// Config recognizes the options spec.md §6 names.
type Config struct {
	CostPlanner     bool
	PlanCache       bool
	PlanCacheTTLSec int
}

// DefaultConfig matches internal/config's viper defaults for the query
// section.
func DefaultConfig() Config {
	return Config{CostPlanner: true, PlanCache: true, PlanCacheTTLSec: 60}
}

// Interpreter owns the store, the plan cache, and the procedure
// registry CALL clauses dispatch into. One Interpreter is shared by
// every session against a store.
type Interpreter struct {
	store      *storage.Store
	cache      *cache.Cache
	planOpts   plan.Options
	cacheOn    bool
	procedures map[string]func(ctx *plan.Context) (map[string]graph.Value, error)
	log        *logger.Logger

	// sysCatalog is nil until EnableObservability is called; run/Session
	// only report to it when set, so observability stays fully optional.
	sysCatalog *observability.SystemCatalog
}

// New builds an Interpreter over store using cfg. Passing PlanCache:
// false disables caching entirely (§4.7: "caching is a configurable
// opt-in; when disabled, the compiled plan is used directly without
// being stored").
func New(store *storage.Store, cfg Config) *Interpreter {
	ttl := time.Duration(cfg.PlanCacheTTLSec) * time.Second
	i := &Interpreter{
		store:      store,
		cache:      cache.New(ttl),
		planOpts:   plan.Options{CostBased: cfg.CostPlanner},
		cacheOn:    cfg.PlanCache,
		procedures: map[string]func(ctx *plan.Context) (map[string]graph.Value, error){},
		log:        logger.NewNop(),
	}
	i.registerBuiltinProcedures()
	return i
}

// SetLogger swaps in l (or a no-op logger, if l is nil) for the
// interpreter's plan compilation, transaction, and index logging, and
// propagates it to the plan cache.
func (i *Interpreter) SetLogger(l *logger.Logger) {
	if l == nil {
		l = logger.NewNop()
	}
	i.log = l
	i.cache.SetLogger(l)
}

// RegisterProcedure adds a CALL-clause target under name. pkg/auth and
// pkg/observability call this to install the Auth/Stream/Info/
// Constraint control operators' bodies without pkg/gql/plan or
// pkg/gql/interpret importing either package.
func (i *Interpreter) RegisterProcedure(name string, fn func(ctx *plan.Context) (map[string]graph.Value, error)) {
	i.procedures[name] = fn
}

func (i *Interpreter) registerBuiltinProcedures() {
	i.procedures["db.labels"] = func(ctx *plan.Context) (map[string]graph.Value, error) {
		seen := map[string]bool{}
		var labels []graph.Value
		it := ctx.Accessor.Vertices("")
		for {
			v, ok := it.Next()
			if !ok {
				break
			}
			for _, l := range v.Labels() {
				if !seen[l] {
					seen[l] = true
					labels = append(labels, graph.Str(l))
				}
			}
		}
		return map[string]graph.Value{"label": graph.List(labels)}, nil
	}
}

// Result is the materialized result stream (§6): exactly one header,
// zero or more rows, and exactly one summary.
type Result struct {
	Header  []string
	Rows    [][]graph.Value
	Summary map[string]graph.Value
}

// Session is one client's interpreter handle. It starts in autocommit
// mode (every Execute call owns its own transaction) and switches to
// explicit-transaction mode on Begin, matching pkg/sql/session.go's
// autocommit/currentTx split.
type Session struct {
	interp *Interpreter

	explicit  bool
	tx        *storage.Session
	failed    bool
	failedErr error
}

// NewSession opens a session against interp in autocommit mode.
func (i *Interpreter) NewSession() *Session {
	return &Session{interp: i}
}

// Begin opens an explicit transaction. Statements run against it until
// Commit or Rollback.
func (s *Session) Begin() error {
	if s.explicit {
		return newError(KindQueryRuntime, "transaction already in progress", nil)
	}
	s.explicit = true
	s.tx = s.interp.store.Begin()
	s.failed = false
	s.failedErr = nil
	s.interp.log.Info("transaction begin")
	if s.interp.sysCatalog != nil {
		s.interp.sysCatalog.Stats().RecordTransaction("start")
	}
	return nil
}

// Commit ends the current explicit transaction. Committing a failed
// transaction is rejected; Rollback is the only way out of one.
func (s *Session) Commit() error {
	if !s.explicit {
		return newError(KindQueryRuntime, "no transaction in progress", nil)
	}
	if s.failed {
		return newError(KindQueryRuntime, "current transaction is aborted, commands ignored until rollback", s.failedErr)
	}
	err := s.tx.Commit(context.Background())
	s.explicit = false
	s.tx = nil
	if err != nil {
		s.interp.log.Error("transaction abort", "reason", err)
	} else {
		s.interp.log.Info("transaction commit")
	}
	if s.interp.sysCatalog != nil {
		if err != nil {
			s.interp.sysCatalog.Stats().RecordTransaction("abort")
		} else {
			s.interp.sysCatalog.Stats().RecordTransaction("commit")
		}
	}
	if err != nil {
		return mapAccessorError(err)
	}
	return nil
}

// Rollback aborts the current explicit transaction, clearing the
// failed flag.
func (s *Session) Rollback() error {
	if !s.explicit {
		return newError(KindQueryRuntime, "no transaction in progress", nil)
	}
	err := s.tx.Abort(context.Background())
	s.explicit = false
	s.tx = nil
	if s.failed {
		s.interp.log.Error("transaction abort", "reason", s.failedErr)
	} else {
		s.interp.log.Info("transaction abort")
	}
	s.failed = false
	s.failedErr = nil
	if s.interp.sysCatalog != nil {
		s.interp.sysCatalog.Stats().RecordTransaction("abort")
	}
	if err != nil {
		return mapAccessorError(err)
	}
	return nil
}

// Failed reports whether the current explicit transaction has been
// marked failed by a prior statement's error.
func (s *Session) Failed() bool { return s.failed }

// InTransaction reports whether the session currently has an explicit
// transaction open (started by Begin, not yet Commit/Rollback).
func (s *Session) InTransaction() bool { return s.explicit }

// Execute strips, plans (via cache when enabled), and drives text
// against params, per §4.6. In autocommit mode it opens and closes
// its own transaction; in explicit-transaction mode it runs against
// the session's open transaction and, on error, marks the session
// failed without aborting the transaction itself, so a later Rollback
// is the one call that tears it down.
func (s *Session) Execute(text string, params map[string]graph.Value) (*Result, error) {
	if s.explicit && s.failed {
		return nil, newError(KindQueryRuntime, "current transaction is aborted, commands ignored until rollback", s.failedErr)
	}

	accessorSession := s.tx
	ownTx := false
	if accessorSession == nil {
		accessorSession = s.interp.store.Begin()
		ownTx = true
		if s.interp.sysCatalog != nil {
			s.interp.sysCatalog.Stats().RecordTransaction("start")
		}
	}

	execStart := time.Now()
	result, err := s.interp.run(text, params, accessorSession)
	if s.interp.sysCatalog != nil {
		s.interp.sysCatalog.Stats().RecordQuery(err == nil, time.Since(execStart).Nanoseconds())
	}
	if err != nil {
		if s.explicit {
			// Leave the transaction open but poisoned: Postgres-style,
			// only an explicit ROLLBACK actually tears it down.
			s.failed = true
			s.failedErr = err
		} else {
			accessorSession.Abort(context.Background())
			s.interp.log.Error("transaction abort", "reason", err)
			if s.interp.sysCatalog != nil {
				s.interp.sysCatalog.Stats().RecordTransaction("abort")
			}
		}
		return nil, err
	}

	if ownTx {
		if cerr := accessorSession.Commit(context.Background()); cerr != nil {
			s.interp.log.Error("transaction abort", "reason", cerr)
			if s.interp.sysCatalog != nil {
				s.interp.sysCatalog.Stats().RecordTransaction("abort")
			}
			return nil, mapAccessorError(cerr)
		}
		if s.interp.sysCatalog != nil {
			s.interp.sysCatalog.Stats().RecordTransaction("commit")
		}
	}
	return result, nil
}

// run implements the strip -> cache -> compile -> drive pipeline
// shared by autocommit and explicit-transaction execution.
func (i *Interpreter) run(text string, params map[string]graph.Value, accessor *storage.Session) (*Result, error) {
	parseStart := time.Now()
	stripped := stripper.Strip(text)

	var p *plan.Plan
	var costEstimate int
	if i.cacheOn {
		p = i.cache.Get(stripped.Hash)
	}
	parsingTime := time.Since(parseStart)

	planningStart := time.Now()
	if p == nil {
		compiled, err := i.compile(stripped, accessor)
		if err != nil {
			return nil, err
		}
		if i.cacheOn {
			p = i.cache.PutIfAbsent(stripped.Hash, compiled)
		} else {
			p = compiled
		}
		i.log.WithQueryHash(stripped.Hash).Debug("plan compiled")
	}
	planningTime := time.Since(planningStart)
	// No numeric per-plan cost is tracked by the planner; approximate it
	// with the line count of the explained tree: one line per operator
	// plus one per "|\" branch marker (documented simplification, see
	// DESIGN.md).
	costEstimate = strings.Count(plan.Explain(p.Root), "\n")

	values := make(map[string]graph.Value, len(stripped.Literals)+len(params))
	for k, v := range stripped.Literals {
		values[strings.TrimPrefix(k, "$")] = v
	}
	for name := range stripped.Parameters {
		v, ok := params[name]
		if !ok {
			return nil, newError(KindUnprovidedParameter, name, nil)
		}
		values[name] = v
	}

	ctx := &plan.Context{Accessor: accessor, Values: values, Procedures: i.procedures}

	execStart := time.Now()
	rows, err := drive(p, ctx)
	execTime := time.Since(execStart)
	if err != nil {
		return nil, mapPlanError(err)
	}
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(stripped.Text)), "CREATE INDEX") {
		i.log.Info("index created", "query", stripped.Text)
	}

	sum := summary(parsingTime, planningTime, execTime, costEstimate, p.Mutation)
	if p.Mutation {
		return &Result{Header: nil, Rows: nil, Summary: sum}, nil
	}

	header := headerFor(p.Outputs, stripped.Named)
	out := make([][]graph.Value, len(rows))
	for r, row := range rows {
		vals := make([]graph.Value, len(p.Outputs))
		for c, oc := range p.Outputs {
			vals[c] = row[oc.Slot]
		}
		out[r] = vals
	}
	return &Result{Header: header, Rows: out, Summary: sum}, nil
}

func (i *Interpreter) compile(stripped *stripper.Result, accessor *storage.Session) (*plan.Plan, error) {
	q, err := parser.Parse(stripped.Text)
	if err != nil {
		return nil, newError(KindSyntax, err.Error(), err)
	}
	table, err := symbol.Resolve(q)
	if err != nil {
		return nil, newError(KindSemantic, err.Error(), err)
	}
	p, err := plan.Build(q, table, accessor, i.planOpts, i.cache.InvalidateAll)
	if err != nil {
		return nil, newError(KindSemantic, err.Error(), err)
	}
	return p, nil
}

// headerFor names each output column: alias, else bare identifier,
// else the original RETURN/WITH source text recovered from named (the
// stripper's start-offset-to-source-slice map, per §4.6), else an
// AST-rerendered approximation when named's item order and the
// no-alias/no-identifier column order don't line up one-to-one (star
// expansion changes the effective item count between stripping and
// planning).
func headerFor(outputs []plan.OutputColumn, named map[int]string) []string {
	var recovered []string
	if len(named) > 0 {
		offsets := make([]int, 0, len(named))
		for off := range named {
			offsets = append(offsets, off)
		}
		sort.Ints(offsets)
		recovered = make([]string, len(offsets))
		for i, off := range offsets {
			recovered[i] = named[off]
		}
	}

	needFallback := 0
	for _, oc := range outputs {
		if oc.Alias == "" && oc.Identifier == "" {
			needFallback++
		}
	}
	useRecovered := len(recovered) == needFallback

	header := make([]string, len(outputs))
	next := 0
	for i, oc := range outputs {
		switch {
		case oc.Alias != "":
			header[i] = oc.Alias
		case oc.Identifier != "":
			header[i] = oc.Identifier
		case useRecovered:
			header[i] = recovered[next]
			next++
		case oc.Expr != nil:
			header[i] = exprText(oc.Expr)
		default:
			header[i] = "column"
		}
	}
	return header
}

func drive(p *plan.Plan, ctx *plan.Context) ([]plan.Frame, error) {
	var rows []plan.Frame
	f := plan.NewFrame(p.FrameSize)
	for {
		ok, err := p.Root.Pull(f, ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, f.Clone())
	}
}

// summary builds the per-query metadata trailer (§6), grounded on the
// original interpreter's frontend/planning/execution timers.
func summary(parsing, planning, execution time.Duration, costEstimate int, mutation bool) map[string]graph.Value {
	typ := "r"
	if mutation {
		typ = "rw"
	}
	return map[string]graph.Value{
		"parsing_time":        graph.Double(parsing.Seconds()),
		"planning_time":       graph.Double(planning.Seconds()),
		"plan_execution_time": graph.Double(execution.Seconds()),
		"cost_estimate":       graph.Int(int64(costEstimate)),
		"type":                graph.Str(typ),
	}
}

func mapPlanError(err error) error {
	var rt *plan.RuntimeError
	if errors.As(err, &rt) {
		return newError(KindQueryRuntime, rt.Msg, err)
	}
	var ab *plan.AbortError
	if errors.As(err, &ab) {
		return newError(KindHintedAbort, "query aborted", err)
	}
	var up *plan.UnprovidedParameterError
	if errors.As(err, &up) {
		return newError(KindUnprovidedParameter, up.Name, err)
	}
	return mapAccessorError(err)
}

func mapAccessorError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, txn.ErrSerializationFailure) {
		return newError(KindTransactionConflict, "serialization failure", err)
	}
	return newError(KindQueryRuntime, err.Error(), err)
}
