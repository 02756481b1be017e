// Package txn implements two-phase locked transactions over a single
// table.
//
// Each queued Query carries an explicit Kind so preprocess can branch on
// it directly to decide which keys need which lock mode before any query
// runs.
package txn

import (
	"github.com/cosmobiosis/lstore/lock"
	"github.com/cosmobiosis/lstore/table"
)

// Kind identifies which table operation a queued Query performs.
type Kind int

const (
	Insert Kind = iota
	Select
	Update
	Delete
	Sum
	Increment
)

// Query is one operation queued onto a Transaction. Only the fields
// relevant to Kind are read.
type Query struct {
	Kind Kind

	// Insert, Update, Delete, Increment, Select: the primary-key-bearing
	// key, or (Insert) the full column slice carrying it at KeyIndex.
	Key      int64
	KeyIndex int

	Columns      []int64 // Insert
	UpdateValues []*int64 // Update
	QueryColumns []bool  // Select

	StartRange      int64 // Sum
	EndRange        int64 // Sum
	AggregateColumn int   // Sum

	IncrementColumn int // Increment
}

// Transaction batches queries against one table under two-phase locking:
// every primary key touched is locked (non-blocking) before any query
// runs, and the whole transaction aborts if any lock is unavailable.
type Transaction struct {
	tbl     *table.Table
	queries []Query
	aborted bool
	held    lock.Held
}

// New creates a Transaction bound to tbl.
func New(tbl *table.Table) *Transaction {
	return &Transaction{tbl: tbl}
}

// AddQuery appends q to the transaction's batch.
func (tx *Transaction) AddQuery(q Query) {
	tx.queries = append(tx.queries, q)
}

// Aborted reports whether the transaction failed to acquire its locks.
func (tx *Transaction) Aborted() bool { return tx.aborted }

// Run preprocesses the batch into a lock set, acquires every lock
// non-blocking, executes the queries if that succeeds, and releases the
// locks. It returns 1 on success and 0 if the transaction aborted for lack
// of a lock.
func (tx *Transaction) Run() int {
	keysToLock := tx.preprocess()
	if !tx.acquireLocks(keysToLock) {
		tx.Abort()
		return 0
	}

	for _, q := range tx.queries {
		tx.execute(q)
	}
	tx.releaseLocks()
	return 1
}

// Abort releases whatever locks were acquired and marks the transaction
// as failed.
func (tx *Transaction) Abort() {
	tx.releaseLocks()
	tx.aborted = true
}

// Commit is a deliberate no-op: every query already durably mutated the
// table as it ran, so there is nothing left to apply.
func (tx *Transaction) Commit() {}

func (tx *Transaction) releaseLocks() {
	tx.held.ReleaseAll(tx.tbl.Locks)
}

func (tx *Transaction) acquireLocks(keysToLock map[int64]lock.Mode) bool {
	for key, mode := range keysToLock {
		if !tx.tbl.Locks.TryAcquire(key, mode) {
			return false
		}
		tx.held.Add(key, mode)
	}
	return true
}

// preprocess derives which primary keys this transaction will touch and
// in which mode, per query kind: inserts/increments take a write lock on
// their own key; selects
// take a read lock on every primary key reachable through the queried
// column; updates/deletes take a write lock on their key; sums take a read
// lock on every existing key in range.
func (tx *Transaction) preprocess() map[int64]lock.Mode {
	keysToLock := make(map[int64]lock.Mode)

	for _, q := range tx.queries {
		switch q.Kind {
		case Insert:
			keysToLock[q.Columns[tx.tbl.KeyIndex]] = lock.Write

		case Increment:
			keysToLock[q.Key] = lock.Write

		case Update, Delete:
			keysToLock[q.Key] = lock.Write

		case Select:
			if q.KeyIndex == tx.tbl.KeyIndex {
				keysToLock[q.Key] = lock.Read
				continue
			}
			baseRIDs, err := tx.tbl.Index.Locate(q.Key, q.KeyIndex)
			if err != nil {
				continue
			}
			for _, rid := range baseRIDs {
				if pkey, ok := tx.tbl.Index.PrimaryKeyForRID(rid); ok {
					keysToLock[pkey] = lock.Read
				}
			}

		case Sum:
			step := int64(1)
			if q.EndRange < q.StartRange {
				step = -1
			}
			for i := q.StartRange; ; i += step {
				if rids, _ := tx.tbl.Index.Locate(i, tx.tbl.KeyIndex); len(rids) > 0 {
					keysToLock[i] = lock.Read
				}
				if i == q.EndRange {
					break
				}
			}
		}
	}
	return keysToLock
}

func (tx *Transaction) execute(q Query) {
	switch q.Kind {
	case Insert:
		_ = tx.tbl.Insert(q.Columns)
	case Select:
		_, _ = tx.tbl.Select(q.Key, q.KeyIndex, q.QueryColumns)
	case Update:
		_ = tx.tbl.Update(q.Key, q.UpdateValues)
	case Delete:
		_ = tx.tbl.Delete(q.Key)
	case Sum:
		_, _ = tx.tbl.Sum(q.StartRange, q.EndRange, q.AggregateColumn)
	case Increment:
		_ = tx.tbl.Increment(q.Key, q.IncrementColumn)
	}
}
