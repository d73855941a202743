// Package txn provides transaction management and MVCC support for the
// graph store: transaction lifecycle, snapshots, and the MVCC header
// carried by every vertex/edge version.
package txn

import (
	"sync"
	"sync/atomic"
)

// TxID is a unique transaction identifier.
// TxID 0 is reserved as "invalid/none".
// TxID values increase monotonically.
type TxID uint64

const (
	// InvalidTxID represents no transaction or an invalid transaction.
	InvalidTxID TxID = 0

	// FrozenTxID is a special TxID for records that are always visible
	// (e.g., bootstrapped/frozen vertices and edges).
	FrozenTxID TxID = 1
)

// TxState represents the state of a transaction.
type TxState uint8

const (
	// TxInProgress indicates the transaction is still running.
	TxInProgress TxState = iota

	// TxCommitted indicates the transaction has committed successfully.
	TxCommitted

	// TxAborted indicates the transaction has been rolled back.
	TxAborted
)

func (s TxState) String() string {
	switch s {
	case TxInProgress:
		return "IN_PROGRESS"
	case TxCommitted:
		return "COMMITTED"
	case TxAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Transaction represents an active database transaction. Cypher's
// explicit-transaction mode (spec §4.6, §7) keeps one Transaction open
// across several interpreted queries; autocommit mode begins and
// commits/aborts one per query.
type Transaction struct {
	ID       TxID
	State    TxState
	Snapshot *Snapshot

	// Failed marks a transaction that hit an error while running under
	// explicit-transaction mode: per spec §7, the transaction stays
	// open but every subsequent statement fails until rolled back.
	Failed bool

	// CommandID is the MVCC command counter within this transaction;
	// AdvanceCommand increments it so that writes made earlier in the
	// same transaction become visible to later reads.
	CommandID uint32

	mu sync.RWMutex
}

// IsActive returns true if the transaction is still in progress.
func (tx *Transaction) IsActive() bool {
	tx.mu.RLock()
	defer tx.mu.RUnlock()
	return tx.State == TxInProgress
}

// IsCommitted returns true if the transaction has committed.
func (tx *Transaction) IsCommitted() bool {
	tx.mu.RLock()
	defer tx.mu.RUnlock()
	return tx.State == TxCommitted
}

// IsAborted returns true if the transaction has been aborted.
func (tx *Transaction) IsAborted() bool {
	tx.mu.RLock()
	defer tx.mu.RUnlock()
	return tx.State == TxAborted
}

// MarkFailed flags the transaction as failed without changing its
// State: it remains open (so ROLLBACK can still be issued) but every
// subsequent statement must be rejected.
func (tx *Transaction) MarkFailed() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.Failed = true
}

// IsFailed reports whether the transaction has been marked failed.
func (tx *Transaction) IsFailed() bool {
	tx.mu.RLock()
	defer tx.mu.RUnlock()
	return tx.Failed
}

// AdvanceCommand bumps the command counter, implementing the
// within-transaction write-visibility discipline described in §4.8.
func (tx *Transaction) AdvanceCommand() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.CommandID++
}

// Command returns the current command counter.
func (tx *Transaction) Command() uint32 {
	tx.mu.RLock()
	defer tx.mu.RUnlock()
	return tx.CommandID
}

// Snapshot captures the state of the database at a point in time for MVCC reads.
// A snapshot determines which vertex/edge versions are visible to a transaction.
type Snapshot struct {
	// XMin is the lowest transaction ID that was active when this snapshot was taken.
	// Transactions with ID < XMin are guaranteed to be finished (committed or aborted).
	XMin TxID

	// XMax is the first transaction ID that was not yet assigned when this snapshot was taken.
	// Transactions with ID >= XMax are guaranteed to have started after this snapshot.
	XMax TxID

	// InProgress is the set of transaction IDs that were in progress when this snapshot was taken.
	// These transactions' changes should not be visible regardless of their current state.
	InProgress map[TxID]struct{}
}

// NewSnapshot creates a new snapshot with the given parameters.
func NewSnapshot(xmin, xmax TxID, inProgress []TxID) *Snapshot {
	s := &Snapshot{
		XMin:       xmin,
		XMax:       xmax,
		InProgress: make(map[TxID]struct{}, len(inProgress)),
	}
	for _, txid := range inProgress {
		s.InProgress[txid] = struct{}{}
	}
	return s
}

// IsInProgress checks if a transaction was in progress when this snapshot was taken.
func (s *Snapshot) IsInProgress(txid TxID) bool {
	_, ok := s.InProgress[txid]
	return ok
}

// MVCCHeader contains the MVCC metadata for a vertex or edge version.
type MVCCHeader struct {
	// XMin is the TxID of the transaction that created this version.
	XMin TxID

	// XMax is the TxID of the transaction that deleted/updated this
	// version. InvalidTxID (0) means it has not been deleted.
	XMax TxID

	// CMin/CMax are the command counters within XMin/XMax, so a
	// transaction that both creates and later mutates the same
	// vertex/edge sees its own writes only after AdvanceCommand.
	CMin uint32
	CMax uint32
}

// IsDeleted returns true if this version has been marked for deletion.
func (h *MVCCHeader) IsDeleted() bool {
	return h.XMax != InvalidTxID
}

// Manager handles transaction lifecycle and provides MVCC support.
type Manager struct {
	// nextTxID is the next transaction ID to assign (atomic).
	nextTxID atomic.Uint64

	// transactions tracks every transaction begun by this manager,
	// including committed and aborted ones (GetState reads their state).
	transactions map[TxID]*Transaction

	// mu protects the transactions map.
	mu sync.RWMutex

	// oldestActive is the oldest transaction ID that might still be active.
	// Used for garbage collection decisions.
	oldestActive TxID
}

// NewManager creates a new transaction manager.
func NewManager() *Manager {
	m := &Manager{
		transactions: make(map[TxID]*Transaction),
		oldestActive: InvalidTxID,
	}
	// Start TxID counter at 2 (0=invalid, 1=frozen)
	m.nextTxID.Store(2)
	return m
}

// Begin starts a new transaction and returns it.
func (m *Manager) Begin() *Transaction {
	txid := TxID(m.nextTxID.Add(1) - 1)

	m.mu.Lock()
	defer m.mu.Unlock()

	// Build snapshot: collect all in-progress transactions
	inProgress := make([]TxID, 0, len(m.transactions))
	xmin := txid // Will be updated to oldest active
	for id, tx := range m.transactions {
		if tx.State == TxInProgress {
			inProgress = append(inProgress, id)
			if id < xmin {
				xmin = id
			}
		}
	}

	// If no active transactions, xmin = txid
	if len(inProgress) == 0 {
		xmin = txid
	}

	snapshot := NewSnapshot(xmin, txid+1, inProgress)

	tx := &Transaction{
		ID:       txid,
		State:    TxInProgress,
		Snapshot: snapshot,
	}

	m.transactions[txid] = tx

	// Update oldest active
	if m.oldestActive == InvalidTxID || txid < m.oldestActive {
		m.oldestActive = txid
	}

	return tx
}

// Commit commits a transaction.
func (m *Manager) Commit(txid TxID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[txid]
	if !ok {
		return ErrTxNotFound
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.State != TxInProgress {
		return ErrTxNotActive
	}

	tx.State = TxCommitted
	m.updateOldestActive()

	return nil
}

// Abort aborts a transaction.
func (m *Manager) Abort(txid TxID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[txid]
	if !ok {
		return ErrTxNotFound
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.State != TxInProgress {
		return ErrTxNotActive
	}

	tx.State = TxAborted
	m.updateOldestActive()

	return nil
}

// GetTransaction returns a transaction by ID.
func (m *Manager) GetTransaction(txid TxID) (*Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.transactions[txid]
	return tx, ok
}

// GetState returns the state of a transaction.
func (m *Manager) GetState(txid TxID) TxState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Special cases
	if txid == InvalidTxID {
		return TxAborted
	}
	if txid == FrozenTxID {
		return TxCommitted
	}

	tx, ok := m.transactions[txid]
	if !ok {
		// Unknown transaction - treat as aborted for visibility purposes
		return TxAborted
	}
	tx.mu.RLock()
	defer tx.mu.RUnlock()
	return tx.State
}

// updateOldestActive recalculates the oldest active transaction.
// Must be called with m.mu held.
func (m *Manager) updateOldestActive() {
	m.oldestActive = InvalidTxID
	for id, tx := range m.transactions {
		if tx.State == TxInProgress {
			if m.oldestActive == InvalidTxID || id < m.oldestActive {
				m.oldestActive = id
			}
		}
	}
}

// OldestActiveTxID returns the oldest active transaction ID.
// Returns InvalidTxID if no transactions are active.
func (m *Manager) OldestActiveTxID() TxID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.oldestActive
}

// ActiveCount returns the number of active transactions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, tx := range m.transactions {
		if tx.State == TxInProgress {
			count++
		}
	}
	return count
}

// GetActiveTransactions returns every transaction still in progress,
// for pkg/observability's system.transactions procedure.
func (m *Manager) GetActiveTransactions() []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Transaction
	for _, tx := range m.transactions {
		if tx.State == TxInProgress {
			out = append(out, tx)
		}
	}
	return out
}
