package lstoredb

import "github.com/cosmobiosis/lstore/table"

// Query exposes the row-level API over one table. Every method forwards
// directly to the matching table.Table method; this
// type exists so callers address a table the same way whether they're
// issuing one-off queries or building a txn.Transaction's query batch.
type Query struct {
	Table *table.Table
}

// New wraps tbl in a Query.
func New(tbl *table.Table) *Query {
	return &Query{Table: tbl}
}

// Insert adds a new row. columns must supply a value for every column.
func (q *Query) Insert(columns ...int64) error {
	return q.Table.Insert(columns)
}

// Select returns every record whose keyIndex column equals key, with only
// the columns flagged true in queryColumns populated.
func (q *Query) Select(key int64, keyIndex int, queryColumns []bool) ([]*table.Record, error) {
	return q.Table.Select(key, keyIndex, queryColumns)
}

// Update appends a new version of the row with primary key key; a nil
// entry in columns leaves that column unchanged.
func (q *Query) Update(key int64, columns []*int64) error {
	return q.Table.Update(key, columns)
}

// Delete removes the row with primary key key.
func (q *Query) Delete(key int64) error {
	return q.Table.Delete(key)
}

// Sum aggregates aggregateColumn over every existing primary key in
// [startRange, endRange].
func (q *Query) Sum(startRange, endRange int64, aggregateColumn int) (int64, error) {
	return q.Table.Sum(startRange, endRange, aggregateColumn)
}

// Increment adds one to column's current value for key.
func (q *Query) Increment(key int64, column int) error {
	return q.Table.Increment(key, column)
}

// CreateIndex builds a secondary index on column if one does not already exist.
func (q *Query) CreateIndex(column int) error {
	return q.Table.BuildIndex(column)
}

// DropIndex removes a previously built secondary index on column.
func (q *Query) DropIndex(column int) {
	q.Table.Index.DropIndex(column)
}
