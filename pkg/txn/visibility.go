package txn

// Visibility implements MVCC visibility rules.
// A vertex/edge version is visible to a snapshot if:
// 1. The creating transaction (xmin) is committed and visible to this snapshot
// 2. The vertex/edge version has not been deleted (xmax = 0), OR
//    the deleting transaction (xmax) is not visible to this snapshot

// IsVisible determines if a vertex/edge version with the given MVCC header is visible
// to the specified snapshot, transaction manager, and the reading transaction's own
// command counter.
//
// Visibility rules (PostgreSQL-style), extended with the within-transaction
// command-counter check described by MVCCHeader.CMin/CMax:
// - If xmin is the current transaction: visible only once CMin has been
//   reached by currentCommand (a statement doesn't see rows a later
//   statement in the same transaction is about to insert)
// - If xmin was in progress when snapshot taken: not visible
// - If xmin >= snapshot.XMax: not visible (started after snapshot)
// - If xmin committed: check xmax
//   - If xmax = 0: visible
//   - If xmax is current transaction: not visible once CMax has been
//     reached by currentCommand (a statement sees its own prior deletes)
//   - If xmax was in progress when snapshot taken: visible (delete not committed)
//   - If xmax >= snapshot.XMax: visible (deleter started after snapshot)
//   - If xmax committed: not visible (deleted)
//   - If xmax aborted: visible (delete rolled back)
func IsVisible(header *MVCCHeader, snapshot *Snapshot, mgr *Manager, currentTxID TxID, currentCommand uint32) bool {
	xmin := header.XMin
	xmax := header.XMax

	// Special case: frozen vertex/edge versions are always visible
	if xmin == FrozenTxID {
		return !isXmaxVisible(xmax, header.CMax, snapshot, mgr, currentTxID, currentCommand)
	}

	// Check if xmin is visible
	if !isXminVisible(xmin, header.CMin, snapshot, mgr, currentTxID, currentCommand) {
		return false
	}

	// Check if vertex/edge version has been deleted
	if xmax == InvalidTxID {
		// Not deleted, visible
		return true
	}

	// Check if the deletion is visible
	return !isXmaxVisible(xmax, header.CMax, snapshot, mgr, currentTxID, currentCommand)
}

// isXminVisible checks if the creating transaction is visible to the snapshot.
func isXminVisible(xmin TxID, cmin uint32, snapshot *Snapshot, mgr *Manager, currentTxID TxID, currentCommand uint32) bool {
	// If we created this vertex/edge version, it's visible to us only
	// once our own command counter has caught up to the command that
	// created it (so a later statement in the same transaction sees an
	// earlier statement's insert, but not one still in flight).
	if xmin == currentTxID {
		return cmin <= currentCommand
	}

	// If xmin started after our snapshot, not visible
	if xmin >= snapshot.XMax {
		return false
	}

	// If xmin was in progress when we took our snapshot, not visible
	if snapshot.IsInProgress(xmin) {
		return false
	}

	// If xmin is before our snapshot window, check if it committed
	state := mgr.GetState(xmin)
	return state == TxCommitted
}

// isXmaxVisible checks if the deleting transaction's effects are visible.
// Returns true if the deletion should be considered "done" (vertex/edge version not visible).
func isXmaxVisible(xmax TxID, cmax uint32, snapshot *Snapshot, mgr *Manager, currentTxID TxID, currentCommand uint32) bool {
	if xmax == InvalidTxID {
		return false
	}

	// If we deleted this vertex/edge version ourselves, the deletion is
	// visible to us once our own command counter has caught up to the
	// command that performed it.
	if xmax == currentTxID {
		return cmax <= currentCommand
	}

	// If xmax started after our snapshot, deletion not visible
	if xmax >= snapshot.XMax {
		return false
	}

	// If xmax was in progress when we took our snapshot, deletion not visible
	if snapshot.IsInProgress(xmax) {
		return false
	}

	// Check if the deleting transaction committed
	state := mgr.GetState(xmax)
	return state == TxCommitted
}

// CanModify checks if the current transaction can modify (update/delete) a vertex/edge version.
// This is used to detect write-write conflicts.
// Returns true if the vertex/edge version can be modified, false if there's a conflict.
func CanModify(header *MVCCHeader, currentTxID TxID, mgr *Manager) (bool, error) {
	xmax := header.XMax

	// If not deleted by anyone, we can modify
	if xmax == InvalidTxID {
		return true, nil
	}

	// If we already marked it for deletion, can't modify again
	if xmax == currentTxID {
		return false, nil // Already modified by us
	}

	// Check the state of the transaction that marked it
	state := mgr.GetState(xmax)

	switch state {
	case TxInProgress:
		// Another transaction has a pending modification
		// In a single-threaded system, this shouldn't happen
		// In a concurrent system, we'd wait or abort
		return false, ErrSerializationFailure

	case TxCommitted:
		// The vertex/edge version was already deleted/updated by a committed transaction
		// We're trying to modify something that no longer exists
		return false, nil

	case TxAborted:
		// The deleting transaction aborted, so the vertex/edge version is still there
		// We can modify it
		return true, nil

	default:
		return false, ErrSerializationFailure
	}
}

// RecordVisibilityStatus represents the visibility status of a vertex/edge version.
type RecordVisibilityStatus int

const (
	// RecordVisibilityInvisible means the vertex/edge version is not visible to the current snapshot.
	RecordVisibilityInvisible RecordVisibilityStatus = iota

	// RecordVisibilityLive means the vertex/edge version is visible and not deleted.
	RecordVisibilityLive

	// RecordVisibilityRecentlyDead means the vertex/edge version was recently deleted but might
	// still be visible to some transactions (for VACUUM decisions).
	RecordVisibilityRecentlyDead

	// RecordVisibilityDead means the vertex/edge version is deleted and no longer visible to any
	// active transaction (safe to remove).
	RecordVisibilityDead

	// RecordVisibilityInsertInProgress means the inserting transaction is still running.
	RecordVisibilityInsertInProgress

	// RecordVisibilityDeleteInProgress means the deleting transaction is still running.
	RecordVisibilityDeleteInProgress
)

// GetRecordStatus returns detailed status of a vertex/edge version for the given snapshot.
// This is useful for VACUUM and debugging.
func GetRecordStatus(header *MVCCHeader, snapshot *Snapshot, mgr *Manager, currentTxID TxID, currentCommand uint32) RecordVisibilityStatus {
	xmin := header.XMin
	xmax := header.XMax

	// Check inserter status
	if xmin != FrozenTxID && xmin != currentTxID {
		state := mgr.GetState(xmin)
		if state == TxInProgress {
			return RecordVisibilityInsertInProgress
		}
		if state == TxAborted {
			return RecordVisibilityInvisible
		}
	}

	// Version was inserted by committed or current transaction
	// Now check if deleted
	if xmax == InvalidTxID {
		if IsVisible(header, snapshot, mgr, currentTxID, currentCommand) {
			return RecordVisibilityLive
		}
		return RecordVisibilityInvisible
	}

	// Version has xmax set
	if xmax == currentTxID {
		return RecordVisibilityDeleteInProgress
	}

	state := mgr.GetState(xmax)
	switch state {
	case TxInProgress:
		return RecordVisibilityDeleteInProgress
	case TxAborted:
		if IsVisible(header, snapshot, mgr, currentTxID, currentCommand) {
			return RecordVisibilityLive
		}
		return RecordVisibilityInvisible
	case TxCommitted:
		// Check if any active transaction could still see this vertex/edge version
		oldestActive := mgr.OldestActiveTxID()
		if oldestActive != InvalidTxID && xmax < oldestActive {
			return RecordVisibilityDead
		}
		return RecordVisibilityRecentlyDead
	}

	return RecordVisibilityInvisible
}
