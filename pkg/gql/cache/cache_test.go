package cache

import (
	"testing"
	"time"

	"github.com/jsoref/memgraph/pkg/gql/plan"
)

func TestPutIfAbsentReturnsWinner(t *testing.T) {
	c := New(time.Minute)
	first := &plan.Plan{FrameSize: 1}
	second := &plan.Plan{FrameSize: 2}

	got1 := c.PutIfAbsent(42, first)
	if got1 != first {
		t.Fatal("expected the first insert to win")
	}
	got2 := c.PutIfAbsent(42, second)
	if got2 != first {
		t.Fatal("expected a losing concurrent compile to return the winner's plan")
	}
}

func TestGetExpiresByTTL(t *testing.T) {
	c := New(time.Millisecond)
	p := &plan.Plan{FrameSize: 1}
	c.PutIfAbsent(7, p)
	time.Sleep(5 * time.Millisecond)
	if got := c.Get(7); got != nil {
		t.Fatal("expected expired entry to be treated as a miss")
	}
}

func TestInvalidateAllClearsEverything(t *testing.T) {
	c := New(time.Minute)
	c.PutIfAbsent(1, &plan.Plan{})
	c.PutIfAbsent(2, &plan.Plan{})
	c.InvalidateAll()
	if c.Get(1) != nil || c.Get(2) != nil {
		t.Fatal("expected InvalidateAll to drop every entry")
	}
}

func TestGetMissReturnsNil(t *testing.T) {
	c := New(time.Minute)
	if got := c.Get(999); got != nil {
		t.Fatal("expected miss on unknown hash")
	}
}
