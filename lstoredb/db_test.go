package lstoredb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmobiosis/lstore/common"
	"github.com/cosmobiosis/lstore/common/testutil"
)

func testConfig() common.Config {
	cfg := common.DefaultConfig()
	cfg.PageSize = 256
	cfg.WordSize = 8
	return cfg
}

func TestCreateTableThenQueryInsertSelect(t *testing.T) {
	dir := testutil.TempDir(t)
	db, err := Open(testConfig(), dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tbl, err := db.CreateTable("grades", 3, 0)
	require.NoError(t, err)

	q := New(tbl)
	require.NoError(t, q.Insert(1, 10, 100))

	recs, err := q.Select(1, 0, []bool{true, true, true})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(100), *recs[0].Columns[2])
}

func TestGetTableOnUnknownNameFails(t *testing.T) {
	dir := testutil.TempDir(t)
	db, err := Open(testConfig(), dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.GetTable("nope")
	assert.ErrorIs(t, err, common.ErrTableNotFound)
}

func TestCloseThenReopenPersistsIndex(t *testing.T) {
	dir := testutil.TempDir(t)
	cfg := testConfig()

	db, err := Open(cfg, dir, nil)
	require.NoError(t, err)
	tbl, err := db.CreateTable("grades", 2, 0)
	require.NoError(t, err)

	q := New(tbl)
	require.NoError(t, q.Insert(1, 10))
	require.NoError(t, q.Insert(2, 20))
	require.NoError(t, db.Close())

	db2, err := Open(cfg, dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db2.Close() })

	tbl2, err := db2.GetTable("grades")
	require.NoError(t, err)

	q2 := New(tbl2)
	recs, err := q2.Select(2, 0, []bool{true, true})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(20), *recs[0].Columns[1])
}

func TestDropTableClosesAndForgetsIt(t *testing.T) {
	dir := testutil.TempDir(t)
	db, err := Open(testConfig(), dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.CreateTable("grades", 2, 0)
	require.NoError(t, err)

	require.NoError(t, db.DropTable("grades"))
	err = db.DropTable("grades")
	assert.ErrorIs(t, err, common.ErrTableNotFound)
}

func TestCreateIndexThenLocateByNonPrimaryColumn(t *testing.T) {
	dir := testutil.TempDir(t)
	db, err := Open(testConfig(), dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tbl, err := db.CreateTable("grades", 2, 0)
	require.NoError(t, err)
	q := New(tbl)
	require.NoError(t, q.Insert(1, 42))
	require.NoError(t, q.Insert(2, 42))

	require.NoError(t, q.CreateIndex(1))

	recs, err := q.Select(42, 1, []bool{true, true})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
