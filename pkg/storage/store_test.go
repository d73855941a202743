package storage

import (
	"context"
	"testing"

	"github.com/jsoref/memgraph/pkg/graph"
	"github.com/jsoref/memgraph/pkg/lock"
	"github.com/jsoref/memgraph/pkg/txn"
)

func newTestStore() *Store {
	return NewStore(txn.NewManager(), lock.NewManager())
}

func TestCreateVertexAndReadBack(t *testing.T) {
	s := newTestStore()
	sess := s.Begin()

	v, err := sess.CreateVertex([]string{"Person"}, map[string]graph.Value{"name": graph.Str("Ada")})
	if err != nil {
		t.Fatalf("CreateVertex: %v", err)
	}

	got, ok := sess.VertexByID(v.ID)
	if !ok {
		t.Fatal("expected vertex to be visible in same transaction")
	}
	if got.Property("name").AsString() != "Ada" {
		t.Errorf("expected name Ada, got %v", got.Property("name"))
	}
}

func TestVertexNotVisibleUntilCommit(t *testing.T) {
	s := newTestStore()
	writer := s.Begin()
	v, _ := writer.CreateVertex([]string{"Person"}, nil)

	reader := s.Begin()
	if _, ok := reader.VertexByID(v.ID); ok {
		t.Error("expected uncommitted vertex to be invisible to a concurrent snapshot")
	}

	if err := writer.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	after := s.Begin()
	if _, ok := after.VertexByID(v.ID); !ok {
		t.Error("expected vertex to be visible after commit to a later transaction")
	}
}

func TestScanAllByLabel(t *testing.T) {
	s := newTestStore()
	sess := s.Begin()
	sess.CreateVertex([]string{"Person"}, nil)
	sess.CreateVertex([]string{"Person"}, nil)
	sess.CreateVertex([]string{"Company"}, nil)

	it := sess.Vertices("Person")
	count := 0
	for {
		if _, ok := it.Next(); !ok {
			break
		}
		count++
	}
	if count != 2 {
		t.Errorf("expected 2 Person vertices, got %d", count)
	}
}

func TestCreateEdgeAndExpand(t *testing.T) {
	s := newTestStore()
	sess := s.Begin()
	a, _ := sess.CreateVertex([]string{"Person"}, nil)
	b, _ := sess.CreateVertex([]string{"Person"}, nil)
	_, err := sess.CreateEdge(a.ID, b.ID, "KNOWS", nil)
	if err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}

	out := sess.Edges(a, graph.DirOut, nil)
	e, ok := out.Next()
	if !ok {
		t.Fatal("expected one outgoing edge")
	}
	if e.Type() != "KNOWS" || e.From() != a.ID || e.To() != b.ID {
		t.Errorf("unexpected edge: %s", e)
	}

	in := sess.Edges(b, graph.DirIn, nil)
	if _, ok := in.Next(); !ok {
		t.Error("expected one incoming edge on b")
	}
}

func TestSetPropertyCreatesNewVersion(t *testing.T) {
	s := newTestStore()
	sess := s.Begin()
	v, _ := sess.CreateVertex([]string{"Person"}, map[string]graph.Value{"age": graph.Int(30)})

	if err := sess.SetProperty(graph.VertexVal(v), "age", graph.Int(31)); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}

	got, _ := sess.VertexByID(v.ID)
	if got.Property("age").AsInt() != 31 {
		t.Errorf("expected age 31, got %v", got.Property("age"))
	}
}

func TestDeleteVertexRejectsWithIncidentEdges(t *testing.T) {
	s := newTestStore()
	sess := s.Begin()
	a, _ := sess.CreateVertex([]string{"Person"}, nil)
	b, _ := sess.CreateVertex([]string{"Person"}, nil)
	sess.CreateEdge(a.ID, b.ID, "KNOWS", nil)

	if err := sess.DeleteVertex(a); err == nil {
		t.Error("expected DeleteVertex to fail on a vertex with incident edges")
	}

	if err := sess.DetachDeleteVertex(a); err != nil {
		t.Fatalf("DetachDeleteVertex: %v", err)
	}
	if _, ok := sess.VertexByID(a.ID); ok {
		t.Error("expected vertex to be gone after detach delete")
	}
}

func TestCreateIndexAndLookup(t *testing.T) {
	s := newTestStore()
	sess := s.Begin()
	sess.CreateVertex([]string{"Person"}, map[string]graph.Value{"name": graph.Str("Ada")})
	sess.CreateVertex([]string{"Person"}, map[string]graph.Value{"name": graph.Str("Bob")})
	sess.Commit(context.Background())

	idxSess := s.Begin()
	created, err := idxSess.CreateIndex("Person", "name")
	if err != nil || !created {
		t.Fatalf("CreateIndex: created=%v err=%v", created, err)
	}
	if !idxSess.IsIndexed("Person", "name") {
		t.Error("expected index to be reported as created")
	}

	name := graph.Str("Ada")
	it, err := idxSess.IndexLookup("Person", "name", &name, nil)
	if err != nil {
		t.Fatalf("IndexLookup: %v", err)
	}
	v, ok := it.Next()
	if !ok || v.Property("name").AsString() != "Ada" {
		t.Errorf("expected to find Ada via index, got %v ok=%v", v, ok)
	}
}

func TestAbortRollsBackWrites(t *testing.T) {
	s := newTestStore()
	sess := s.Begin()
	v, _ := sess.CreateVertex([]string{"Person"}, nil)
	if err := sess.Abort(context.Background()); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	reader := s.Begin()
	if _, ok := reader.VertexByID(v.ID); ok {
		t.Error("expected aborted vertex creation to stay invisible")
	}
}
