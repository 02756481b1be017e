package table

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmobiosis/lstore/common"
	"github.com/cosmobiosis/lstore/common/testutil"
	"github.com/cosmobiosis/lstore/page"
)

func newTestTable(t *testing.T, numColumns, keyIndex int) *Table {
	t.Helper()
	dir := testutil.TempDir(t)
	cfg := common.DefaultConfig()
	cfg.PageSize = 256
	cfg.WordSize = 8
	cfg.MergeEpoch = 2

	tbl, err := New(cfg, filepath.Join(dir, "grades"), numColumns, keyIndex, nil)
	require.NoError(t, err)
	t.Cleanup(func() { tbl.Close() })
	return tbl
}

func ptr(v int64) *int64 { return &v }

func insertRow(t *testing.T, tbl *Table, values ...int64) common.RID {
	t.Helper()
	rid := tbl.GetNewRID(page.Base)
	cols := make([]*int64, len(values))
	for i, v := range values {
		cols[i] = ptr(v)
	}
	rec := &Record{RID: rid, Key: values[tbl.KeyIndex], Columns: cols, RangeType: page.Base}
	require.NoError(t, tbl.InsertRecord(rec))
	require.NoError(t, tbl.Index.Insert(rid, rec.Key, values))
	return rid
}

func TestInsertAndSelectFeature(t *testing.T) {
	tbl := newTestTable(t, 3, 0)
	rid := insertRow(t, tbl, 1, 10, 100)

	v, err := tbl.SelectFeature(rid, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)

	v, err = tbl.SelectFeature(rid, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(100), v)
}

func applyUpdate(t *testing.T, tbl *Table, baseRID common.RID, key int64, cols []*int64) common.RID {
	t.Helper()
	tailRID := tbl.GetNewRID(page.Tail)
	rec := &Record{RID: tailRID, Key: key, Columns: cols, RangeType: page.Tail}
	require.NoError(t, tbl.InsertRecord(rec))
	require.NoError(t, tbl.UpdateRecord(baseRID, rec))
	return tailRID
}

func TestUpdateRecordRewritesIndirectionChain(t *testing.T) {
	tbl := newTestTable(t, 3, 0)
	rid := insertRow(t, tbl, 1, 10, 100)

	applyUpdate(t, tbl, rid, 1, []*int64{nil, ptr(20), nil})

	v, err := tbl.SelectFeature(rid, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(20), v)

	// Untouched column still reads from the base record.
	v, err = tbl.SelectFeature(rid, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(100), v)
}

func TestSelectFeatureWalksChainToNewestUpdate(t *testing.T) {
	tbl := newTestTable(t, 2, 0)
	rid := insertRow(t, tbl, 1, 10)

	applyUpdate(t, tbl, rid, 1, []*int64{nil, ptr(20)})
	applyUpdate(t, tbl, rid, 1, []*int64{nil, ptr(30)})

	v, err := tbl.SelectFeature(rid, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(30), v)
}

func TestDeleteInvalidatesChain(t *testing.T) {
	tbl := newTestTable(t, 2, 0)
	rid := insertRow(t, tbl, 1, 10)
	tailRID := applyUpdate(t, tbl, rid, 1, []*int64{nil, ptr(20)})

	require.NoError(t, tbl.DeleteByRID(rid))

	ridBuf, err := tbl.cacheEntryForTest(page.Base, rid, common.RIDColumn)
	require.NoError(t, err)
	assert.True(t, common.DecodeRID(ridBuf).IsInvalid())

	tailRIDBuf, err := tbl.cacheEntryForTest(page.Tail, tailRID, common.RIDColumn)
	require.NoError(t, err)
	assert.True(t, common.DecodeRID(tailRIDBuf).IsInvalid())
}

func (t *Table) cacheEntryForTest(rt page.RangeType, rid common.RID, col int) ([]byte, error) {
	return t.cache.GetEntry(rt, rid, col)
}

func TestMergeFoldsTailIntoBase(t *testing.T) {
	tbl := newTestTable(t, 2, 0)
	rid := insertRow(t, tbl, 1, 10)

	for i := 0; i < 40; i++ {
		applyUpdate(t, tbl, rid, 1, []*int64{nil, ptr(int64(100 + i))})
	}

	// Force a synchronous final-style pass (same code the background
	// merge goroutine runs on trigger/close) instead of racing it.
	tbl.runMergePass(true)

	upToDate, err := tbl.BaseUpToDate(rid, 1)
	require.NoError(t, err)
	assert.True(t, upToDate)

	v, err := tbl.SelectFeature(rid, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(139), v)
}

func TestBuildIndexOnSecondaryColumn(t *testing.T) {
	tbl := newTestTable(t, 2, 0)
	insertRow(t, tbl, 1, 42)
	insertRow(t, tbl, 2, 42)
	insertRow(t, tbl, 3, 99)

	require.NoError(t, tbl.BuildIndex(1))
	assert.True(t, tbl.Index.Created(1))

	rids, err := tbl.Index.Locate(42, 1)
	require.NoError(t, err)
	assert.Len(t, rids, 2)
}
