package observability

import (
	"context"
	"strings"
	"testing"

	"github.com/jsoref/memgraph/pkg/graph"
	"github.com/jsoref/memgraph/pkg/lock"
	"github.com/jsoref/memgraph/pkg/storage"
	"github.com/jsoref/memgraph/pkg/txn"
)

func newTestStore() (*storage.Store, *txn.Manager, *lock.Manager) {
	txnMgr := txn.NewManager()
	lockMgr := lock.NewManager()
	return storage.NewStore(txnMgr, lockMgr), txnMgr, lockMgr
}

func TestNewSystemCatalog(t *testing.T) {
	store, txnMgr, lockMgr := newTestStore()

	sc := NewSystemCatalog(txnMgr, lockMgr, store)
	if sc == nil {
		t.Fatal("NewSystemCatalog returned nil")
	}
	if sc.txnMgr != txnMgr {
		t.Error("txnMgr not set correctly")
	}
	if sc.lockMgr != lockMgr {
		t.Error("lockMgr not set correctly")
	}
	if sc.store != store {
		t.Error("store not set correctly")
	}
	if sc.stats == nil {
		t.Error("stats not initialized")
	}
}

func TestStatistics(t *testing.T) {
	stats := NewStatistics()

	if stats.StartTime.IsZero() {
		t.Error("StartTime not set")
	}

	stats.RecordQuery(true, 1000000)
	stats.RecordQuery(true, 2000000)
	stats.RecordQuery(false, 500000)

	snapshot := stats.Snapshot()
	if snapshot.QueriesExecuted != 3 {
		t.Errorf("QueriesExecuted: got %d, want 3", snapshot.QueriesExecuted)
	}
	if snapshot.QueriesSucceeded != 2 {
		t.Errorf("QueriesSucceeded: got %d, want 2", snapshot.QueriesSucceeded)
	}
	if snapshot.QueriesFailed != 1 {
		t.Errorf("QueriesFailed: got %d, want 1", snapshot.QueriesFailed)
	}
	if snapshot.TotalQueryTimeNs != 3500000 {
		t.Errorf("TotalQueryTimeNs: got %d, want 3500000", snapshot.TotalQueryTimeNs)
	}
}

func TestStatisticsTransactions(t *testing.T) {
	stats := NewStatistics()

	stats.RecordTransaction("start")
	stats.RecordTransaction("start")
	stats.RecordTransaction("commit")
	stats.RecordTransaction("abort")

	snapshot := stats.Snapshot()
	if snapshot.TransactionsStarted != 2 {
		t.Errorf("TransactionsStarted: got %d, want 2", snapshot.TransactionsStarted)
	}
	if snapshot.TransactionsCommitted != 1 {
		t.Errorf("TransactionsCommitted: got %d, want 1", snapshot.TransactionsCommitted)
	}
	if snapshot.TransactionsAborted != 1 {
		t.Errorf("TransactionsAborted: got %d, want 1", snapshot.TransactionsAborted)
	}
}

func TestStatisticsGraphOps(t *testing.T) {
	stats := NewStatistics()

	stats.RecordGraphOp("vertex_create", 10)
	stats.RecordGraphOp("edge_create", 5)
	stats.RecordGraphOp("vertex_delete", 2)
	stats.RecordGraphOp("scan", 100)

	snapshot := stats.Snapshot()
	if snapshot.VerticesCreated != 10 {
		t.Errorf("VerticesCreated: got %d, want 10", snapshot.VerticesCreated)
	}
	if snapshot.EdgesCreated != 5 {
		t.Errorf("EdgesCreated: got %d, want 5", snapshot.EdgesCreated)
	}
	if snapshot.VerticesDeleted != 2 {
		t.Errorf("VerticesDeleted: got %d, want 2", snapshot.VerticesDeleted)
	}
	if snapshot.VerticesScanned != 100 {
		t.Errorf("VerticesScanned: got %d, want 100", snapshot.VerticesScanned)
	}
}

func TestStatisticsIndexOps(t *testing.T) {
	stats := NewStatistics()

	stats.RecordIndexOp(true)
	stats.RecordIndexOp(true)
	stats.RecordIndexOp(false)

	snapshot := stats.Snapshot()
	if snapshot.IndexScans != 3 {
		t.Errorf("IndexScans: got %d, want 3", snapshot.IndexScans)
	}
	if snapshot.IndexHits != 2 {
		t.Errorf("IndexHits: got %d, want 2", snapshot.IndexHits)
	}
	if snapshot.IndexMisses != 1 {
		t.Errorf("IndexMisses: got %d, want 1", snapshot.IndexMisses)
	}
}

func TestGetActiveTransactions(t *testing.T) {
	store, txnMgr, lockMgr := newTestStore()
	sc := NewSystemCatalog(txnMgr, lockMgr, store)

	tx1 := txnMgr.Begin()
	tx2 := txnMgr.Begin()

	rows := sc.GetActiveTransactions()
	if len(rows) != 2 {
		t.Errorf("GetActiveTransactions: got %d rows, want 2", len(rows))
	}

	_ = txnMgr.Commit(tx1.ID)

	rows = sc.GetActiveTransactions()
	if len(rows) != 1 {
		t.Errorf("After commit: got %d rows, want 1", len(rows))
	}
	if len(rows) > 0 && rows[0].Values[0] != tx2.ID {
		t.Errorf("Wrong transaction ID: got %v, want %v", rows[0].Values[0], tx2.ID)
	}
}

func TestGetLockStats(t *testing.T) {
	store, txnMgr, lockMgr := newTestStore()
	sc := NewSystemCatalog(txnMgr, lockMgr, store)

	tx := txnMgr.Begin()
	resource := lock.ElementResource(graph.ID(1))
	_ = lockMgr.Acquire(tx.ID, resource, lock.ModeExclusive)

	rows := sc.GetLockStats()
	if len(rows) != 2 {
		t.Fatalf("GetLockStats: got %d rows, want 2", len(rows))
	}
	if rows[0].Values[1] != 1 {
		t.Errorf("active_locks: got %v, want 1", rows[0].Values[1])
	}

	_ = lockMgr.Release(tx.ID, resource)

	rows = sc.GetLockStats()
	if rows[0].Values[1] != 0 {
		t.Errorf("active_locks after release: got %v, want 0", rows[0].Values[1])
	}
}

func TestGetLabels(t *testing.T) {
	store, txnMgr, lockMgr := newTestStore()

	s := store.Begin()
	if _, err := s.CreateVertex([]string{"Person"}, map[string]graph.Value{"name": graph.Str("Ada")}); err != nil {
		t.Fatalf("CreateVertex: %v", err)
	}
	if _, err := s.CreateVertex([]string{"Person"}, nil); err != nil {
		t.Fatalf("CreateVertex: %v", err)
	}
	if err := s.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	sc := NewSystemCatalog(txnMgr, lockMgr, store)
	rows := sc.GetLabels()
	if len(rows) != 1 {
		t.Fatalf("GetLabels: got %d rows, want 1", len(rows))
	}
	if rows[0].Values[0] != "Person" || rows[0].Values[1] != 2 {
		t.Errorf("unexpected label row: %v", rows[0].Values)
	}
}

func TestGetStatisticsIncludesGraphCounts(t *testing.T) {
	store, txnMgr, lockMgr := newTestStore()
	sc := NewSystemCatalog(txnMgr, lockMgr, store)

	sc.Stats().RecordQuery(true, 1000000)
	sc.Stats().RecordTransaction("start")
	sc.Stats().RecordGraphOp("vertex_create", 5)

	rows := sc.GetStatistics()
	found := false
	for _, row := range rows {
		if row.Values[0] == "uptime_seconds" {
			found = true
		}
	}
	if !found {
		t.Error("uptime_seconds metric not found")
	}
}

func TestGetMemoryStats(t *testing.T) {
	sc := NewSystemCatalog(nil, nil, nil)

	rows := sc.GetMemoryStats()
	if len(rows) != 5 {
		t.Errorf("GetMemoryStats: got %d rows, want 5", len(rows))
	}

	expectedMetrics := []string{"heap_alloc_mb", "heap_sys_mb", "heap_objects", "goroutines", "gc_cycles"}
	for i, expected := range expectedMetrics {
		if rows[i].Values[0] != expected {
			t.Errorf("Metric %d: got %v, want %v", i, rows[i].Values[0], expected)
		}
	}
}

func TestPrometheusMetrics(t *testing.T) {
	store, txnMgr, lockMgr := newTestStore()
	sc := NewSystemCatalog(txnMgr, lockMgr, store)

	sc.Stats().RecordQuery(true, 1000000)
	sc.Stats().RecordQuery(false, 500000)
	sc.Stats().RecordTransaction("commit")
	sc.Stats().RecordGraphOp("vertex_create", 10)

	metrics := sc.PrometheusMetrics()

	expectedLines := []string{
		"graphd_queries_total",
		"graphd_transactions_total",
		"graphd_graph_ops_total",
		"graphd_heap_bytes",
		"graphd_goroutines",
		"graphd_uptime_seconds",
	}

	for _, expected := range expectedLines {
		if !strings.Contains(metrics, expected) {
			t.Errorf("Missing metric: %s", expected)
		}
	}
}

func TestNilComponents(t *testing.T) {
	sc := NewSystemCatalog(nil, nil, nil)

	if rows := sc.GetActiveTransactions(); rows != nil {
		t.Error("GetActiveTransactions should return nil with nil txnMgr")
	}
	if rows := sc.GetLockStats(); rows != nil {
		t.Error("GetLockStats should return nil with nil lockMgr")
	}
	if rows := sc.GetLabels(); rows != nil {
		t.Error("GetLabels should return nil with nil store")
	}
}
