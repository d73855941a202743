package interpret

import (
	"testing"

	"github.com/jsoref/memgraph/pkg/graph"
	"github.com/jsoref/memgraph/pkg/lock"
	"github.com/jsoref/memgraph/pkg/storage"
	"github.com/jsoref/memgraph/pkg/txn"
)

func newTestInterpreter() *Interpreter {
	store := storage.NewStore(txn.NewManager(), lock.NewManager())
	return New(store, Config{CostPlanner: true, PlanCache: true, PlanCacheTTLSec: 60})
}

func TestAutocommitCreateThenMatch(t *testing.T) {
	interp := newTestInterpreter()
	s := interp.NewSession()

	if _, err := s.Execute(`CREATE (:Person {name: "Ada"})`, nil); err != nil {
		t.Fatalf("CREATE: %v", err)
	}
	res, err := s.Execute(`MATCH (p:Person) RETURN p.name`, nil)
	if err != nil {
		t.Fatalf("MATCH: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(res.Rows))
	}
	if res.Header[0] != "p.name" {
		t.Fatalf("expected header %q, got %q", "p.name", res.Header[0])
	}
	if res.Rows[0][0].String() != "Ada" {
		t.Fatalf("expected Ada, got %v", res.Rows[0][0])
	}
}

func TestExplicitTransactionRollbackDiscardsWrites(t *testing.T) {
	interp := newTestInterpreter()
	s := interp.NewSession()

	if err := s.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := s.Execute(`CREATE (:Person {name: "Grace"})`, nil); err != nil {
		t.Fatalf("CREATE: %v", err)
	}
	if err := s.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	res, err := s.Execute(`MATCH (p:Person) RETURN p.name`, nil)
	if err != nil {
		t.Fatalf("MATCH: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Fatalf("expected rollback to discard the write, got %d rows", len(res.Rows))
	}
}

func TestExplicitTransactionFailureBlocksSubsequentStatements(t *testing.T) {
	interp := newTestInterpreter()
	s := interp.NewSession()

	if err := s.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := s.Execute(`RETURN $missing`, nil); err == nil {
		t.Fatal("expected UnprovidedParameterError")
	}
	if !s.Failed() {
		t.Fatal("expected session to be marked failed after a runtime error")
	}
	if _, err := s.Execute(`RETURN 1`, nil); err == nil {
		t.Fatal("expected subsequent statement to be rejected while failed")
	}
	if err := s.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if s.Failed() {
		t.Fatal("expected Rollback to clear the failed flag")
	}
}

func TestUnprovidedParameterSurfacesCorrectKind(t *testing.T) {
	interp := newTestInterpreter()
	s := interp.NewSession()

	_, err := s.Execute(`RETURN $name`, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	ge, ok := err.(GraphError)
	if !ok {
		t.Fatalf("expected a GraphError, got %T", err)
	}
	if ge.Kind() != KindUnprovidedParameter {
		t.Fatalf("expected KindUnprovidedParameter, got %v", ge.Kind())
	}
}

func TestParameterIsSubstituted(t *testing.T) {
	interp := newTestInterpreter()
	s := interp.NewSession()

	res, err := s.Execute(`RETURN $name AS n`, map[string]graph.Value{"name": graph.Str("Turing")})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Rows[0][0].String() != "Turing" {
		t.Fatalf("expected Turing, got %v", res.Rows[0][0])
	}
}

func TestSyntaxErrorHasSyntaxKind(t *testing.T) {
	interp := newTestInterpreter()
	s := interp.NewSession()

	_, err := s.Execute(`MATCH (`, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	ge, ok := err.(GraphError)
	if !ok {
		t.Fatalf("expected a GraphError, got %T", err)
	}
	if ge.Kind() != KindSyntax {
		t.Fatalf("expected KindSyntax, got %v", ge.Kind())
	}
}

func TestCreateIndexInvalidatesCache(t *testing.T) {
	interp := newTestInterpreter()
	s := interp.NewSession()

	if _, err := s.Execute(`MATCH (p:Person) RETURN p`, nil); err != nil {
		t.Fatalf("warm the cache: %v", err)
	}
	if _, err := s.Execute(`CREATE INDEX ON :Person(name)`, nil); err != nil {
		t.Fatalf("CREATE INDEX: %v", err)
	}
	if _, err := s.Execute(`CREATE (:Person {name: "Hopper"})`, nil); err != nil {
		t.Fatalf("CREATE: %v", err)
	}
	res, err := s.Execute(`MATCH (p:Person {name: "Hopper"}) RETURN p.name`, nil)
	if err != nil {
		t.Fatalf("MATCH: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row after index-backed match, got %d", len(res.Rows))
	}
}

func TestDbLabelsProcedure(t *testing.T) {
	interp := newTestInterpreter()
	s := interp.NewSession()

	if _, err := s.Execute(`CREATE (:Person {name: "Ada"})`, nil); err != nil {
		t.Fatalf("CREATE: %v", err)
	}
	res, err := s.Execute(`CALL db.labels() YIELD label RETURN label`, nil)
	if err != nil {
		t.Fatalf("CALL: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0][0].String() != "Person" {
		t.Fatalf("expected one row with label Person, got %v", res.Rows)
	}
}

func TestSummaryReportsMutationType(t *testing.T) {
	interp := newTestInterpreter()
	s := interp.NewSession()

	res, err := s.Execute(`CREATE (:Person {name: "Lovelace"})`, nil)
	if err != nil {
		t.Fatalf("CREATE: %v", err)
	}
	if res.Summary["type"].String() != "rw" {
		t.Fatalf("expected type rw, got %v", res.Summary["type"])
	}

	res, err = s.Execute(`MATCH (p:Person) RETURN p`, nil)
	if err != nil {
		t.Fatalf("MATCH: %v", err)
	}
	if res.Summary["type"].String() != "r" {
		t.Fatalf("expected type r, got %v", res.Summary["type"])
	}
}
