package cli

import (
	"testing"

	"github.com/jsoref/memgraph/internal/config"
	"github.com/jsoref/memgraph/internal/logger"
	"github.com/jsoref/memgraph/pkg/gql/interpret"
	"github.com/jsoref/memgraph/pkg/lock"
	"github.com/jsoref/memgraph/pkg/storage"
	"github.com/jsoref/memgraph/pkg/txn"
)

func newTestREPL() *REPL {
	store := storage.NewStore(txn.NewManager(), lock.NewManager())
	interp := interpret.New(store, interpret.DefaultConfig())
	cfg, _ := config.Load("")
	return NewREPL(cfg, logger.NewNop(), interp.NewSession())
}

func TestProcessCommandRunsQuery(t *testing.T) {
	r := newTestREPL()

	if result := r.processCommand(`CREATE (:Person {name: "Ada"})`); result != commandOK {
		t.Fatalf("CREATE: got result %v, want commandOK", result)
	}
	if result := r.processCommand(`MATCH (p:Person) RETURN p.name`); result != commandOK {
		t.Fatalf("MATCH: got result %v, want commandOK", result)
	}
}

func TestProcessCommandReportsRuntimeError(t *testing.T) {
	r := newTestREPL()

	if result := r.processCommand(`RETURN $missing`); result != commandError {
		t.Fatalf("unprovided parameter: got result %v, want commandError", result)
	}
}

func TestProcessCommandTransactionLifecycle(t *testing.T) {
	r := newTestREPL()

	if result := r.processCommand("BEGIN"); result != commandOK {
		t.Fatalf("BEGIN: got result %v, want commandOK", result)
	}
	if result := r.processCommand(`CREATE (:Person {name: "Bob"})`); result != commandOK {
		t.Fatalf("CREATE inside transaction: got result %v, want commandOK", result)
	}
	if result := r.processCommand("COMMIT"); result != commandOK {
		t.Fatalf("COMMIT: got result %v, want commandOK", result)
	}
	if result := r.processCommand("ROLLBACK"); result != commandError {
		t.Fatalf("ROLLBACK with no open transaction: got result %v, want commandError", result)
	}
}

func TestProcessCommandExitAndHelp(t *testing.T) {
	r := newTestREPL()

	if result := r.processCommand("HELP"); result != commandOK {
		t.Fatalf("HELP: got result %v, want commandOK", result)
	}
	if result := r.processCommand("exit"); result != commandExit {
		t.Fatalf("exit: got result %v, want commandExit", result)
	}
}

func TestHandleBackslashCommands(t *testing.T) {
	r := newTestREPL()

	if result := r.processCommand("\\status"); result != commandOK {
		t.Fatalf("\\status: got result %v, want commandOK", result)
	}
	if result := r.processCommand("\\config"); result != commandOK {
		t.Fatalf("\\config: got result %v, want commandOK", result)
	}
	if result := r.processCommand("\\bogus"); result != commandError {
		t.Fatalf("\\bogus: got result %v, want commandError", result)
	}
}
