// Package observability provides system introspection tables and
// monitoring for the graph store.
package observability

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/jsoref/memgraph/pkg/lock"
	"github.com/jsoref/memgraph/pkg/storage"
	"github.com/jsoref/memgraph/pkg/txn"
)

// SystemCatalog provides access to system tables.
type SystemCatalog struct {
	mu sync.RWMutex

	// References to core components
	txnMgr  *txn.Manager
	lockMgr *lock.Manager
	store   *storage.Store

	// Statistics
	stats *Statistics
}

// Statistics tracks database performance metrics.
type Statistics struct {
	mu sync.RWMutex

	// Query statistics
	QueriesExecuted  int64
	QueriesSucceeded int64
	QueriesFailed    int64
	TotalQueryTimeNs int64

	// Transaction statistics
	TransactionsStarted   int64
	TransactionsCommitted int64
	TransactionsAborted   int64

	// Graph write statistics
	VerticesCreated int64
	EdgesCreated    int64
	VerticesDeleted int64
	EdgesDeleted    int64
	PropertiesSet   int64
	VerticesScanned int64

	// Index statistics
	IndexScans  int64
	IndexHits   int64
	IndexMisses int64

	// Start time
	StartTime time.Time
}

// NewSystemCatalog creates a new system catalog.
func NewSystemCatalog(txnMgr *txn.Manager, lockMgr *lock.Manager, store *storage.Store) *SystemCatalog {
	return &SystemCatalog{
		txnMgr:  txnMgr,
		lockMgr: lockMgr,
		store:   store,
		stats:   NewStatistics(),
	}
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime: time.Now(),
	}
}

// RecordQuery records a query execution.
func (s *Statistics) RecordQuery(success bool, durationNs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.QueriesExecuted++
	s.TotalQueryTimeNs += durationNs

	if success {
		s.QueriesSucceeded++
	} else {
		s.QueriesFailed++
	}
}

// RecordTransaction records transaction activity.
func (s *Statistics) RecordTransaction(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event {
	case "start":
		s.TransactionsStarted++
	case "commit":
		s.TransactionsCommitted++
	case "abort":
		s.TransactionsAborted++
	}
}

// RecordGraphOp records a graph write or scan.
func (s *Statistics) RecordGraphOp(op string, count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch op {
	case "vertex_create":
		s.VerticesCreated += count
	case "edge_create":
		s.EdgesCreated += count
	case "vertex_delete":
		s.VerticesDeleted += count
	case "edge_delete":
		s.EdgesDeleted += count
	case "property_set":
		s.PropertiesSet += count
	case "scan":
		s.VerticesScanned += count
	}
}

// RecordIndexOp records an index operation.
func (s *Statistics) RecordIndexOp(hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.IndexScans++
	if hit {
		s.IndexHits++
	} else {
		s.IndexMisses++
	}
}

// Snapshot returns a copy of current statistics.
func (s *Statistics) Snapshot() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Statistics{
		QueriesExecuted:       s.QueriesExecuted,
		QueriesSucceeded:      s.QueriesSucceeded,
		QueriesFailed:         s.QueriesFailed,
		TotalQueryTimeNs:      s.TotalQueryTimeNs,
		TransactionsStarted:   s.TransactionsStarted,
		TransactionsCommitted: s.TransactionsCommitted,
		TransactionsAborted:   s.TransactionsAborted,
		VerticesCreated:       s.VerticesCreated,
		EdgesCreated:          s.EdgesCreated,
		VerticesDeleted:       s.VerticesDeleted,
		EdgesDeleted:          s.EdgesDeleted,
		PropertiesSet:         s.PropertiesSet,
		VerticesScanned:       s.VerticesScanned,
		IndexScans:            s.IndexScans,
		IndexHits:             s.IndexHits,
		IndexMisses:           s.IndexMisses,
		StartTime:             s.StartTime,
	}
}

// SystemTableRow represents a row in a system table.
type SystemTableRow struct {
	Columns []string
	Values  []interface{}
}

// GetActiveTransactions returns information about active transactions.
func (sc *SystemCatalog) GetActiveTransactions() []SystemTableRow {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	if sc.txnMgr == nil {
		return nil
	}

	var rows []SystemTableRow
	for _, tx := range sc.txnMgr.GetActiveTransactions() {
		rows = append(rows, SystemTableRow{
			Columns: []string{"txn_id", "state", "snapshot_xmin"},
			Values:  []interface{}{tx.ID, tx.State.String(), tx.Snapshot.XMin},
		})
	}
	return rows
}

// GetLockStats returns aggregate lock manager occupancy.
func (sc *SystemCatalog) GetLockStats() []SystemTableRow {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	if sc.lockMgr == nil {
		return nil
	}

	active, waiting := sc.lockMgr.Stats()
	return []SystemTableRow{
		{Columns: []string{"metric", "value"}, Values: []interface{}{"active_locks", active}},
		{Columns: []string{"metric", "value"}, Values: []interface{}{"waiting_requests", waiting}},
	}
}

// GetLabels returns vertex counts per label.
func (sc *SystemCatalog) GetLabels() []SystemTableRow {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	if sc.store == nil {
		return nil
	}

	var rows []SystemTableRow
	for label, count := range sc.store.LabelCounts() {
		rows = append(rows, SystemTableRow{
			Columns: []string{"label", "vertex_count"},
			Values:  []interface{}{label, count},
		})
	}
	return rows
}

// GetStatistics returns database statistics.
func (sc *SystemCatalog) GetStatistics() []SystemTableRow {
	stats := sc.stats.Snapshot()
	uptime := time.Since(stats.StartTime)

	rows := []SystemTableRow{
		{Columns: []string{"metric", "value"}, Values: []interface{}{"uptime_seconds", int64(uptime.Seconds())}},
		{Columns: []string{"metric", "value"}, Values: []interface{}{"queries_executed", stats.QueriesExecuted}},
		{Columns: []string{"metric", "value"}, Values: []interface{}{"queries_succeeded", stats.QueriesSucceeded}},
		{Columns: []string{"metric", "value"}, Values: []interface{}{"queries_failed", stats.QueriesFailed}},
		{Columns: []string{"metric", "value"}, Values: []interface{}{"avg_query_time_ms", avgQueryTime(&stats)}},
		{Columns: []string{"metric", "value"}, Values: []interface{}{"transactions_started", stats.TransactionsStarted}},
		{Columns: []string{"metric", "value"}, Values: []interface{}{"transactions_committed", stats.TransactionsCommitted}},
		{Columns: []string{"metric", "value"}, Values: []interface{}{"transactions_aborted", stats.TransactionsAborted}},
		{Columns: []string{"metric", "value"}, Values: []interface{}{"vertices_created", stats.VerticesCreated}},
		{Columns: []string{"metric", "value"}, Values: []interface{}{"edges_created", stats.EdgesCreated}},
		{Columns: []string{"metric", "value"}, Values: []interface{}{"vertices_deleted", stats.VerticesDeleted}},
		{Columns: []string{"metric", "value"}, Values: []interface{}{"edges_deleted", stats.EdgesDeleted}},
		{Columns: []string{"metric", "value"}, Values: []interface{}{"vertices_scanned", stats.VerticesScanned}},
		{Columns: []string{"metric", "value"}, Values: []interface{}{"index_scans", stats.IndexScans}},
		{Columns: []string{"metric", "value"}, Values: []interface{}{"index_hit_rate", indexHitRate(&stats)}},
	}
	if sc.store != nil {
		rows = append(rows,
			SystemTableRow{Columns: []string{"metric", "value"}, Values: []interface{}{"vertex_count", sc.store.VertexCount()}},
			SystemTableRow{Columns: []string{"metric", "value"}, Values: []interface{}{"edge_count", sc.store.EdgeCount()}},
		)
	}
	return rows
}

func avgQueryTime(stats *Statistics) float64 {
	if stats.QueriesExecuted == 0 {
		return 0
	}
	return float64(stats.TotalQueryTimeNs) / float64(stats.QueriesExecuted) / 1e6
}

func indexHitRate(stats *Statistics) float64 {
	if stats.IndexScans == 0 {
		return 0
	}
	return float64(stats.IndexHits) / float64(stats.IndexScans) * 100
}

// GetMemoryStats returns memory statistics.
func (sc *SystemCatalog) GetMemoryStats() []SystemTableRow {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return []SystemTableRow{
		{Columns: []string{"metric", "value"}, Values: []interface{}{"heap_alloc_mb", m.HeapAlloc / 1024 / 1024}},
		{Columns: []string{"metric", "value"}, Values: []interface{}{"heap_sys_mb", m.HeapSys / 1024 / 1024}},
		{Columns: []string{"metric", "value"}, Values: []interface{}{"heap_objects", m.HeapObjects}},
		{Columns: []string{"metric", "value"}, Values: []interface{}{"goroutines", runtime.NumGoroutine()}},
		{Columns: []string{"metric", "value"}, Values: []interface{}{"gc_cycles", m.NumGC}},
	}
}

// Stats returns the statistics tracker.
func (sc *SystemCatalog) Stats() *Statistics {
	return sc.stats
}

// PrometheusMetrics returns metrics in Prometheus text exposition format.
func (sc *SystemCatalog) PrometheusMetrics() string {
	stats := sc.stats.Snapshot()
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return fmt.Sprintf(`# HELP graphd_queries_total Total number of queries executed
# TYPE graphd_queries_total counter
graphd_queries_total{status="success"} %d
graphd_queries_total{status="failed"} %d

# HELP graphd_transactions_total Total number of transactions
# TYPE graphd_transactions_total counter
graphd_transactions_total{status="committed"} %d
graphd_transactions_total{status="aborted"} %d

# HELP graphd_graph_ops_total Total number of graph write operations
# TYPE graphd_graph_ops_total counter
graphd_graph_ops_total{op="vertex_create"} %d
graphd_graph_ops_total{op="edge_create"} %d
graphd_graph_ops_total{op="vertex_delete"} %d
graphd_graph_ops_total{op="edge_delete"} %d

# HELP graphd_heap_bytes Current heap memory usage in bytes
# TYPE graphd_heap_bytes gauge
graphd_heap_bytes %d

# HELP graphd_goroutines Current number of goroutines
# TYPE graphd_goroutines gauge
graphd_goroutines %d

# HELP graphd_uptime_seconds Server uptime in seconds
# TYPE graphd_uptime_seconds gauge
graphd_uptime_seconds %d
`,
		stats.QueriesSucceeded, stats.QueriesFailed,
		stats.TransactionsCommitted, stats.TransactionsAborted,
		stats.VerticesCreated, stats.EdgesCreated, stats.VerticesDeleted, stats.EdgesDeleted,
		m.HeapAlloc,
		runtime.NumGoroutine(),
		int64(time.Since(stats.StartTime).Seconds()),
	)
}
