package stripper

import "testing"

func TestStripLiterals(t *testing.T) {
	res := Strip("MATCH (n:Person) WHERE n.age > 18 RETURN n.name")
	if _, ok := res.Literals["$L0"]; !ok {
		t.Fatalf("expected literal placeholder $L0, got %v", res.Literals)
	}
	if got := res.Literals["$L0"].AsInt(); got != 18 {
		t.Errorf("expected literal value 18, got %v", got)
	}
}

func TestStripSameHashForDifferentLiterals(t *testing.T) {
	a := Strip("RETURN 1")
	b := Strip("RETURN 2")
	if a.Hash != b.Hash {
		t.Errorf("expected identical hash for structurally identical queries, got %d vs %d", a.Hash, b.Hash)
	}
	if a.Text != b.Text {
		t.Errorf("expected identical stripped text, got %q vs %q", a.Text, b.Text)
	}
}

func TestStripDifferentHashForDifferentStructure(t *testing.T) {
	a := Strip("MATCH (n) RETURN n")
	b := Strip("MATCH (n)-[r]->(m) RETURN n")
	if a.Hash == b.Hash {
		t.Error("expected different structure to produce different hash")
	}
}

func TestStripPreservesUserParameters(t *testing.T) {
	res := Strip("MATCH (n:Person) WHERE n.age >= $minAge RETURN n")
	if _, ok := res.Parameters["minAge"]; !ok {
		t.Errorf("expected $minAge to be recorded as a user parameter, got %v", res.Parameters)
	}
	if _, ok := res.Literals["$L0"]; ok {
		t.Error("expected $minAge not to be treated as a stripped literal")
	}
}

func TestStripNamedExpressionWithoutAlias(t *testing.T) {
	res := Strip("MATCH (n:Person) RETURN n.name")
	found := false
	for _, v := range res.Named {
		if v == "n.name" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected n.name to be recorded as a named expression, got %v", res.Named)
	}
}

func TestStripNamedExpressionSkippedWhenAliased(t *testing.T) {
	res := Strip("MATCH (n:Person) RETURN n.name AS fullName")
	for _, v := range res.Named {
		if v == "n.name" {
			t.Errorf("expected aliased projection not to be recorded, got %v", res.Named)
		}
	}
}
