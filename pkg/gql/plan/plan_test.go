package plan

import (
	"context"
	"testing"

	"github.com/jsoref/memgraph/pkg/gql/parser"
	"github.com/jsoref/memgraph/pkg/gql/symbol"
	"github.com/jsoref/memgraph/pkg/graph"
	"github.com/jsoref/memgraph/pkg/lock"
	"github.com/jsoref/memgraph/pkg/storage"
	"github.com/jsoref/memgraph/pkg/txn"
)

func newTestStore() *storage.Store {
	return storage.NewStore(txn.NewManager(), lock.NewManager())
}

func compileQuery(t *testing.T, text string, accessor graph.Accessor) *Plan {
	t.Helper()
	q, err := parser.Parse(text)
	if err != nil {
		t.Fatalf("Parse(%q): %v", text, err)
	}
	table, err := symbol.Resolve(q)
	if err != nil {
		t.Fatalf("Resolve(%q): %v", text, err)
	}
	p, err := Build(q, table, accessor, Options{}, func() {})
	if err != nil {
		t.Fatalf("Build(%q): %v", text, err)
	}
	return p
}

func drive(t *testing.T, p *Plan, ctx *Context) [][]graph.Value {
	t.Helper()
	var rows [][]graph.Value
	f := NewFrame(p.FrameSize)
	for {
		ok, err := p.Root.Pull(f, ctx)
		if err != nil {
			t.Fatalf("Pull: %v", err)
		}
		if !ok {
			break
		}
		row := make([]graph.Value, len(p.Outputs))
		for i, oc := range p.Outputs {
			row[i] = f[oc.Slot]
		}
		rows = append(rows, row)
	}
	return rows
}

func TestCreateAndMatchRoundTrip(t *testing.T) {
	store := newTestStore()
	sess := store.Begin()
	ctx := &Context{Accessor: sess, Values: map[string]graph.Value{}}

	createPlan := compileQuery(t, `CREATE (a:Person {name: "Ada"})`, sess)
	if !createPlan.Mutation {
		t.Fatal("expected a bare CREATE to have no projection")
	}
	if _, err := createPlan.Root.Pull(NewFrame(createPlan.FrameSize), ctx); err != nil {
		t.Fatalf("Pull CREATE: %v", err)
	}
	if err := sess.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	reader := store.Begin()
	rctx := &Context{Accessor: reader, Values: map[string]graph.Value{}}
	matchPlan := compileQuery(t, `MATCH (p:Person) RETURN p.name AS name`, reader)
	rows := drive(t, matchPlan, rctx)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if got := rows[0][0].AsString(); got != "Ada" {
		t.Errorf("expected name Ada, got %q", got)
	}
}

func TestExpandFollowsRelationship(t *testing.T) {
	store := newTestStore()
	sess := store.Begin()
	ctx := &Context{Accessor: sess, Values: map[string]graph.Value{}}

	create := compileQuery(t, `CREATE (a:Person {name: "Ada"})-[:KNOWS]->(b:Person {name: "Bob"})`, sess)
	if _, err := create.Root.Pull(NewFrame(create.FrameSize), ctx); err != nil {
		t.Fatalf("Pull CREATE: %v", err)
	}
	sess.AdvanceCommand()

	match := compileQuery(t, `MATCH (a:Person {name: "Ada"})-[:KNOWS]->(b:Person) RETURN b.name AS name`, sess)
	rows := drive(t, match, ctx)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if got := rows[0][0].AsString(); got != "Bob" {
		t.Errorf("expected Bob, got %q", got)
	}
}

func TestOptionalMatchYieldsNullOnMiss(t *testing.T) {
	store := newTestStore()
	sess := store.Begin()
	ctx := &Context{Accessor: sess, Values: map[string]graph.Value{}}

	create := compileQuery(t, `CREATE (a:Person {name: "Ada"})`, sess)
	if _, err := create.Root.Pull(NewFrame(create.FrameSize), ctx); err != nil {
		t.Fatalf("Pull CREATE: %v", err)
	}
	sess.AdvanceCommand()

	q := compileQuery(t, `MATCH (a:Person) OPTIONAL MATCH (a)-[:KNOWS]->(b) RETURN b`, sess)
	rows := drive(t, q, ctx)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if !rows[0][0].IsNull() {
		t.Errorf("expected null b, got %v", rows[0][0])
	}
}

func TestMergeCreatesOnceThenMatches(t *testing.T) {
	store := newTestStore()
	sess := store.Begin()
	ctx := &Context{Accessor: sess, Values: map[string]graph.Value{}}

	q1 := compileQuery(t, `MERGE (a:Person {name: "Ada"}) RETURN a.name AS name`, sess)
	rows1 := drive(t, q1, ctx)
	if len(rows1) != 1 || rows1[0][0].AsString() != "Ada" {
		t.Fatalf("expected one Ada row from first MERGE, got %v", rows1)
	}
	sess.AdvanceCommand()

	q2 := compileQuery(t, `MERGE (a:Person {name: "Ada"}) RETURN a.name AS name`, sess)
	rows2 := drive(t, q2, ctx)
	if len(rows2) != 1 {
		t.Fatalf("expected MERGE to match the existing node once, got %d rows", len(rows2))
	}

	scanAll := compileQuery(t, `MATCH (p:Person) RETURN p.name AS name`, sess)
	all := drive(t, scanAll, ctx)
	if len(all) != 1 {
		t.Fatalf("expected MERGE not to have duplicated the node, got %d vertices", len(all))
	}
}

func TestAggregateCountGroupsByLabel(t *testing.T) {
	store := newTestStore()
	sess := store.Begin()
	ctx := &Context{Accessor: sess, Values: map[string]graph.Value{}}

	for _, name := range []string{"Ada", "Bob", "Cy"} {
		q := compileQuery(t, `CREATE (:Person {name: $name})`, sess)
		ctx.Values["name"] = graph.Str(name)
		if _, err := q.Root.Pull(NewFrame(q.FrameSize), ctx); err != nil {
			t.Fatalf("Pull CREATE: %v", err)
		}
	}
	delete(ctx.Values, "name")
	sess.AdvanceCommand()

	q := compileQuery(t, `MATCH (p:Person) RETURN count(p) AS total`, sess)
	rows := drive(t, q, ctx)
	if len(rows) != 1 {
		t.Fatalf("expected 1 aggregate row, got %d", len(rows))
	}
	if got := rows[0][0].AsInt(); got != 3 {
		t.Errorf("expected count 3, got %d", got)
	}
}

func TestAggregateWithNoInputRowsEmitsIdentityRow(t *testing.T) {
	store := newTestStore()
	sess := store.Begin()
	ctx := &Context{Accessor: sess, Values: map[string]graph.Value{}}

	q := compileQuery(t, `MATCH (p:Person) RETURN count(p) AS total`, sess)
	rows := drive(t, q, ctx)
	if len(rows) != 1 {
		t.Fatalf("expected 1 identity row, got %d", len(rows))
	}
	if got := rows[0][0].AsInt(); got != 0 {
		t.Errorf("expected identity count 0, got %d", got)
	}
}

func TestOrderBySkipLimit(t *testing.T) {
	store := newTestStore()
	sess := store.Begin()
	ctx := &Context{Accessor: sess, Values: map[string]graph.Value{}}

	for _, n := range []int64{3, 1, 2} {
		q := compileQuery(t, `CREATE (:Item {n: $n})`, sess)
		ctx.Values["n"] = graph.Int(n)
		if _, err := q.Root.Pull(NewFrame(q.FrameSize), ctx); err != nil {
			t.Fatalf("Pull CREATE: %v", err)
		}
	}
	delete(ctx.Values, "n")
	sess.AdvanceCommand()

	q := compileQuery(t, `MATCH (i:Item) RETURN i.n AS n ORDER BY n SKIP 1 LIMIT 1`, sess)
	rows := drive(t, q, ctx)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if got := rows[0][0].AsInt(); got != 2 {
		t.Errorf("expected n=2 after skipping the smallest, got %d", got)
	}
}

func TestDeleteRequiresDetachWhenEdgesExist(t *testing.T) {
	store := newTestStore()
	sess := store.Begin()
	ctx := &Context{Accessor: sess, Values: map[string]graph.Value{}}

	create := compileQuery(t, `CREATE (a:Person {name: "Ada"})-[:KNOWS]->(b:Person {name: "Bob"})`, sess)
	if _, err := create.Root.Pull(NewFrame(create.FrameSize), ctx); err != nil {
		t.Fatalf("Pull CREATE: %v", err)
	}
	sess.AdvanceCommand()

	del := compileQuery(t, `MATCH (a:Person {name: "Ada"}) DELETE a`, sess)
	if _, err := del.Root.Pull(NewFrame(del.FrameSize), ctx); err == nil {
		t.Fatal("expected DELETE without DETACH to fail on a vertex with edges")
	}
	sess.AdvanceCommand()

	detach := compileQuery(t, `MATCH (a:Person {name: "Ada"}) DETACH DELETE a`, sess)
	if _, err := detach.Root.Pull(NewFrame(detach.FrameSize), ctx); err != nil {
		t.Fatalf("expected DETACH DELETE to succeed, got %v", err)
	}
}

func TestOptionalMatchNullDoesNotPropagateIntoLaterMatch(t *testing.T) {
	store := newTestStore()
	sess := store.Begin()
	ctx := &Context{Accessor: sess, Values: map[string]graph.Value{}}

	create := compileQuery(t, `CREATE (:Person {name: "Ada"})`, sess)
	if _, err := create.Root.Pull(NewFrame(create.FrameSize), ctx); err != nil {
		t.Fatalf("Pull CREATE: %v", err)
	}
	sess.AdvanceCommand()

	create2 := compileQuery(t, `CREATE (:Person {name: "Bob"})-[:HAS_PET]->(:Dog {name: "Rex"})-[:EATS]->(:Food {name: "Kibble"})`, sess)
	if _, err := create2.Root.Pull(NewFrame(create2.FrameSize), ctx); err != nil {
		t.Fatalf("Pull CREATE: %v", err)
	}
	sess.AdvanceCommand()

	// Ada has no dog, so d is bound null by the OPTIONAL MATCH. The
	// later plain MATCH expands from that null d and must drop the row
	// entirely rather than surfacing it as a second all-null result.
	q := compileQuery(t, `MATCH (p:Person) OPTIONAL MATCH (p)-[:HAS_PET]->(d:Dog) WITH p, d MATCH (d)-[:EATS]->(f:Food) RETURN p.name AS person, f.name AS food`, sess)
	rows := drive(t, q, ctx)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d: %v", len(rows), rows)
	}
	if got := rows[0][0].AsString(); got != "Bob" {
		t.Errorf("expected surviving row to belong to Bob, got %q", got)
	}
	if got := rows[0][1].AsString(); got != "Kibble" {
		t.Errorf("expected food Kibble, got %q", got)
	}
}

func TestOptionalMatchEdgeUniquenessAcrossPatternParts(t *testing.T) {
	store := newTestStore()
	sess := store.Begin()
	ctx := &Context{Accessor: sess, Values: map[string]graph.Value{}}

	create := compileQuery(t, `CREATE (a:Person {name: "Ada"})-[:KNOWS]->(:Person {name: "Bob"})`, sess)
	if _, err := create.Root.Pull(NewFrame(create.FrameSize), ctx); err != nil {
		t.Fatalf("Pull CREATE: %v", err)
	}
	sess.AdvanceCommand()

	// Ada has exactly one outgoing edge. The two comma-separated parts
	// of the OPTIONAL MATCH each want a distinct outgoing edge from
	// Ada, which is unsatisfiable with only one edge available, so the
	// whole OPTIONAL MATCH must fail to match: r1 and r2 both come back
	// null rather than both binding to the same edge.
	q := compileQuery(t, `MATCH (a:Person {name: "Ada"}) OPTIONAL MATCH (a)-[r1]->(), (a)-[r2]->() RETURN r1, r2`, sess)
	rows := drive(t, q, ctx)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d: %v", len(rows), rows)
	}
	if !rows[0][0].IsNull() {
		t.Errorf("expected r1 null since the two-distinct-edge pattern is unsatisfiable, got %v", rows[0][0])
	}
	if !rows[0][1].IsNull() {
		t.Errorf("expected r2 null since the two-distinct-edge pattern is unsatisfiable, got %v", rows[0][1])
	}
}

func TestUnwindProducesOneRowPerElement(t *testing.T) {
	store := newTestStore()
	sess := store.Begin()
	ctx := &Context{Accessor: sess, Values: map[string]graph.Value{}}

	q := compileQuery(t, `UNWIND [1, 2, 3] AS x RETURN x`, sess)
	rows := drive(t, q, ctx)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if row[0].AsInt() != int64(i+1) {
			t.Errorf("row %d: expected %d, got %v", i, i+1, row[0])
		}
	}
}
