// Package index maintains per-column hash indexes mapping a column value
// to the base RIDs that currently hold it. The primary-key column's index
// is always built; secondary indexes are built on demand.
//
// Index does not call back into Table to materialize values for a new
// column: Index has no reference to a Table at all, so Table owns Index
// and drives BuildIndex itself (see table.Table.BuildIndex).
package index

import (
	"sync"

	"github.com/cosmobiosis/lstore/common"
)

// Index is a per-table collection of per-column value→[]RID maps.
type Index struct {
	mu            sync.RWMutex
	numColumns    int
	primaryColumn int
	created       []bool
	maps          []map[int64][]common.RID
}

// New creates an Index for a table with numColumns user features, marking
// the primary column as already built.
func New(numColumns, primaryColumn int) *Index {
	idx := &Index{
		numColumns:    numColumns,
		primaryColumn: primaryColumn,
		created:       make([]bool, numColumns),
		maps:          make([]map[int64][]common.RID, numColumns),
	}
	for i := range idx.maps {
		idx.maps[i] = make(map[int64][]common.RID)
	}
	idx.created[primaryColumn] = true
	return idx
}

// Created reports whether column has a built index.
func (x *Index) Created(column int) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.created[column]
}

// Insert adds a newly inserted record's indexed columns to their maps. The
// primary column rejects duplicates; other columns append.
func (x *Index) Insert(baseRID common.RID, key int64, columns []int64) error {
	if len(columns) != x.numColumns {
		return common.ErrSchemaMismatch
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	for col, value := range columns {
		if !x.created[col] {
			continue
		}
		if col == x.primaryColumn {
			if _, exists := x.maps[col][value]; exists {
				return common.ErrDuplicateKey
			}
			x.maps[col][value] = []common.RID{baseRID}
			continue
		}
		x.maps[col][value] = append(x.maps[col][value], baseRID)
	}
	return nil
}

// Change moves baseRID from its old indexed values to its new ones.
// newValues entries equal to the old value (or absent, represented by a
// nil mask bit upstream) are left untouched.
func (x *Index) Change(baseRID common.RID, oldValues, newValues []int64, changed []bool) error {
	if len(oldValues) != x.numColumns || len(newValues) != x.numColumns {
		return common.ErrSchemaMismatch
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	for col := 0; col < x.numColumns; col++ {
		if !x.created[col] || !changed[col] {
			continue
		}
		oldKey, newKey := oldValues[col], newValues[col]
		if oldKey == newKey {
			continue
		}

		if col == x.primaryColumn {
			if _, exists := x.maps[col][newKey]; exists {
				return common.ErrDuplicateKey
			}
			delete(x.maps[col], oldKey)
			x.maps[col][newKey] = []common.RID{baseRID}
			continue
		}

		x.maps[col][oldKey] = removeRID(x.maps[col][oldKey], baseRID)
		x.maps[col][newKey] = append(x.maps[col][newKey], baseRID)
	}
	return nil
}

// Delete removes key from the primary-key map only. Non-primary index
// entries for the deleted record are left in place, and Table.Select does
// not filter out invalidated RIDs, so a lookup on a secondary column can
// still return the deleted record.
func (x *Index) Delete(key int64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.maps[x.primaryColumn], key)
}

// Locate returns the base RIDs holding value in column, or
// common.ErrNotIndexed if the column has no built index.
func (x *Index) Locate(value int64, column int) ([]common.RID, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if !x.created[column] {
		return nil, common.ErrNotIndexed
	}
	rids, ok := x.maps[column][value]
	if !ok || len(rids) == 0 {
		return nil, nil
	}
	out := make([]common.RID, len(rids))
	copy(out, rids)
	return out, nil
}

// PrimaryColumn returns the index of the table's primary-key column.
func (x *Index) PrimaryColumn() int { return x.primaryColumn }

// RIDForKey is a convenience wrapper over Locate for the primary column,
// returning the single base RID for key.
func (x *Index) RIDForKey(key int64) (common.RID, bool) {
	rids, err := x.Locate(key, x.primaryColumn)
	if err != nil || len(rids) == 0 {
		return common.RID{}, false
	}
	return rids[0], true
}

// PrimaryKeyForRID reverse-scans the primary-key map to find which key
// currently maps to rid. A plain per-call scan avoids maintaining a
// second, RID-keyed map in lockstep with every insert/change/delete on the
// primary map purely to serve this infrequent reverse lookup.
func (x *Index) PrimaryKeyForRID(rid common.RID) (int64, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for key, rids := range x.maps[x.primaryColumn] {
		for _, r := range rids {
			if r == rid {
				return key, true
			}
		}
	}
	return 0, false
}

// MarkCreated flips column's created flag and installs its value→RID map,
// used by Table.BuildIndex once it has finished materializing values for
// a newly requested secondary index.
func (x *Index) MarkCreated(column int, built map[int64][]common.RID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.created[column] = true
	x.maps[column] = built
}

// DropIndex empties column's map and clears its created flag.
func (x *Index) DropIndex(column int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.created[column] = false
	x.maps[column] = make(map[int64][]common.RID)
}

// PrimaryKeys returns a snapshot of every primary key currently indexed,
// used by Database.Close to persist the index file.
func (x *Index) PrimaryKeys() map[int64]common.RID {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make(map[int64]common.RID, len(x.maps[x.primaryColumn]))
	for key, rids := range x.maps[x.primaryColumn] {
		if len(rids) > 0 {
			out[key] = rids[0]
		}
	}
	return out
}

// LoadPrimaryKeys installs a previously persisted key→RID mapping as the
// primary column's index, used by Database.GetTable on reopen.
func (x *Index) LoadPrimaryKeys(keys map[int64]common.RID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	m := make(map[int64][]common.RID, len(keys))
	for key, rid := range keys {
		m[key] = []common.RID{rid}
	}
	x.maps[x.primaryColumn] = m
}

func removeRID(rids []common.RID, target common.RID) []common.RID {
	for i, r := range rids {
		if r == target {
			return append(rids[:i], rids[i+1:]...)
		}
	}
	return rids
}
