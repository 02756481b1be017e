package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmobiosis/lstore/common"
)

func TestInsertThenSelect(t *testing.T) {
	tbl := newTestTable(t, 3, 0)
	require.NoError(t, tbl.Insert([]int64{1, 10, 100}))

	recs, err := tbl.Select(1, 0, []bool{true, true, true})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(1), *recs[0].Columns[0])
	assert.Equal(t, int64(10), *recs[0].Columns[1])
	assert.Equal(t, int64(100), *recs[0].Columns[2])
}

func TestSelectProjectsOnlyRequestedColumns(t *testing.T) {
	tbl := newTestTable(t, 3, 0)
	require.NoError(t, tbl.Insert([]int64{1, 10, 100}))

	recs, err := tbl.Select(1, 0, []bool{false, true, false})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].Columns[0])
	require.NotNil(t, recs[0].Columns[1])
	assert.Equal(t, int64(10), *recs[0].Columns[1])
	assert.Nil(t, recs[0].Columns[2])
}

func TestUpdatePartialColumns(t *testing.T) {
	tbl := newTestTable(t, 3, 0)
	require.NoError(t, tbl.Insert([]int64{1, 10, 100}))

	one := int64(20)
	require.NoError(t, tbl.Update(1, []*int64{nil, &one, nil}))

	recs, err := tbl.Select(1, 0, tbl.allColumnsMask())
	require.NoError(t, err)
	assert.Equal(t, int64(20), *recs[0].Columns[1])
	assert.Equal(t, int64(100), *recs[0].Columns[2])
}

func TestUpdateMovesSecondaryIndexEntry(t *testing.T) {
	tbl := newTestTable(t, 2, 0)
	require.NoError(t, tbl.BuildIndex(1))
	require.NoError(t, tbl.Insert([]int64{1, 10}))

	v := int64(20)
	require.NoError(t, tbl.Update(1, []*int64{nil, &v}))

	rids, err := tbl.Index.Locate(10, 1)
	require.NoError(t, err)
	assert.Empty(t, rids)

	rids, err = tbl.Index.Locate(20, 1)
	require.NoError(t, err)
	assert.Len(t, rids, 1)
}

func TestDeleteRemovesFromIndex(t *testing.T) {
	tbl := newTestTable(t, 2, 0)
	require.NoError(t, tbl.Insert([]int64{1, 10}))
	require.NoError(t, tbl.Delete(1))

	_, ok := tbl.Index.RIDForKey(1)
	assert.False(t, ok)
}

func TestSumOverRange(t *testing.T) {
	tbl := newTestTable(t, 2, 0)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, tbl.Insert([]int64{i, i * 10}))
	}
	// key 3 is missing entirely -> skipped.
	require.NoError(t, tbl.Delete(3))

	sum, err := tbl.Sum(1, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10+20+40+50), sum)
}

func TestSumSingleKey(t *testing.T) {
	tbl := newTestTable(t, 2, 0)
	require.NoError(t, tbl.Insert([]int64{1, 42}))

	sum, err := tbl.Sum(1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(42), sum)
}

func TestIncrement(t *testing.T) {
	tbl := newTestTable(t, 2, 0)
	require.NoError(t, tbl.Insert([]int64{1, 10}))

	require.NoError(t, tbl.Increment(1, 1))

	recs, err := tbl.Select(1, 0, tbl.allColumnsMask())
	require.NoError(t, err)
	assert.Equal(t, int64(11), *recs[0].Columns[1])
}

func TestInsertRejectsWrongColumnCount(t *testing.T) {
	tbl := newTestTable(t, 3, 0)
	err := tbl.Insert([]int64{1, 2})
	assert.ErrorIs(t, err, common.ErrSchemaMismatch)
}
