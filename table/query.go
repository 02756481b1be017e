// Query-level operations layered on top of the record-level API in
// table.go. Database/Query (package lstoredb) and Transaction (package
// txn) are both thin callers of these methods, so the row semantics live
// in exactly one place.
package table

import (
	"github.com/cosmobiosis/lstore/common"
	"github.com/cosmobiosis/lstore/page"
)

// Insert adds a new row with the given column values, which must include
// a value for every column (the primary key included).
func (t *Table) Insert(columns []int64) error {
	if len(columns) != t.NumColumns {
		return common.ErrSchemaMismatch
	}

	rid := t.GetNewRID(page.Base)
	key := columns[t.KeyIndex]

	if err := t.Index.Insert(rid, key, columns); err != nil {
		return err
	}

	cols := make([]*int64, len(columns))
	for i := range columns {
		cols[i] = &columns[i]
	}
	return t.InsertRecord(&Record{RID: rid, Key: key, Columns: cols, RangeType: page.Base})
}

// Select returns one Record per base RID holding value in column keyIndex,
// with only the columns flagged true in queryColumns populated.
func (t *Table) Select(key int64, keyIndex int, queryColumns []bool) ([]*Record, error) {
	if len(queryColumns) != t.NumColumns {
		return nil, common.ErrSchemaMismatch
	}

	baseRIDs, err := t.Index.Locate(key, keyIndex)
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(baseRIDs))
	for _, baseRID := range baseRIDs {
		cols := make([]*int64, t.NumColumns)
		for i := 0; i < t.NumColumns; i++ {
			if !queryColumns[i] {
				continue
			}
			v, err := t.SelectFeature(baseRID, i)
			if err != nil {
				return nil, err
			}
			val := v
			cols[i] = &val
		}
		records = append(records, &Record{RID: baseRID, Key: key, Columns: cols, RangeType: page.Base})
	}
	return records, nil
}

func (t *Table) allColumnsMask() []bool {
	mask := make([]bool, t.NumColumns)
	for i := range mask {
		mask[i] = true
	}
	return mask
}

// Update appends a tail record carrying the non-nil entries of columns as
// the newest version of the row identified by key, rewiring the
// indirection chain and moving any changed index entries.
func (t *Table) Update(key int64, columns []*int64) error {
	if len(columns) != t.NumColumns {
		return common.ErrSchemaMismatch
	}

	baseRID, ok := t.Index.RIDForKey(key)
	if !ok {
		return common.ErrKeyNotFound
	}

	oldRecs, err := t.Select(key, t.KeyIndex, t.allColumnsMask())
	if err != nil {
		return err
	}
	if len(oldRecs) == 0 {
		return common.ErrKeyNotFound
	}

	oldValues := make([]int64, t.NumColumns)
	newValues := make([]int64, t.NumColumns)
	changed := make([]bool, t.NumColumns)
	for i := 0; i < t.NumColumns; i++ {
		oldValues[i] = *oldRecs[0].Columns[i]
		if columns[i] != nil {
			newValues[i] = *columns[i]
			changed[i] = true
		} else {
			newValues[i] = oldValues[i]
		}
	}
	if err := t.Index.Change(baseRID, oldValues, newValues, changed); err != nil {
		return err
	}

	tailRID := t.GetNewRID(page.Tail)
	rec := &Record{RID: tailRID, Key: key, Columns: columns, RangeType: page.Tail}
	if err := t.InsertRecord(rec); err != nil {
		return err
	}
	return t.UpdateRecord(baseRID, rec)
}

// Delete removes the row with the given primary key: its chain is
// invalidated and its primary-key index entry is dropped.
func (t *Table) Delete(key int64) error {
	baseRID, ok := t.Index.RIDForKey(key)
	if !ok {
		return common.ErrKeyNotFound
	}
	if err := t.DeleteByRID(baseRID); err != nil {
		return err
	}
	t.Index.Delete(key)
	return nil
}

// Sum aggregates aggregateColumn over every existing primary key in
// [startRange, endRange], walking in ascending or descending order
// depending on which bound is larger; keys with no matching row are
// skipped rather than treated as zero. When startRange equals endRange
// the single key is selected directly, and a missing key returns
// ErrKeyNotFound.
func (t *Table) Sum(startRange, endRange int64, aggregateColumn int) (int64, error) {
	queryColumns := make([]bool, t.NumColumns)
	queryColumns[aggregateColumn] = true

	if startRange == endRange {
		recs, err := t.Select(startRange, t.KeyIndex, queryColumns)
		if err != nil {
			return 0, err
		}
		if len(recs) == 0 {
			return 0, common.ErrKeyNotFound
		}
		return *recs[0].Columns[aggregateColumn], nil
	}

	step := int64(1)
	if endRange < startRange {
		step = -1
	}

	var sum int64
	for i := startRange; ; i += step {
		if rids, _ := t.Index.Locate(i, t.KeyIndex); len(rids) > 0 {
			recs, err := t.Select(i, t.KeyIndex, queryColumns)
			if err != nil {
				return 0, err
			}
			if len(recs) > 0 {
				sum += *recs[0].Columns[aggregateColumn]
			}
		}
		if i == endRange {
			break
		}
	}
	return sum, nil
}

// Increment reads column's current value for key and writes back value+1
// as a normal Update.
func (t *Table) Increment(key int64, column int) error {
	recs, err := t.Select(key, t.KeyIndex, t.allColumnsMask())
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return common.ErrKeyNotFound
	}

	newVal := *recs[0].Columns[column] + 1
	updated := make([]*int64, t.NumColumns)
	updated[column] = &newVal
	return t.Update(key, updated)
}
