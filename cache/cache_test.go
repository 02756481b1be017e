package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmobiosis/lstore/common"
	"github.com/cosmobiosis/lstore/common/testutil"
	"github.com/cosmobiosis/lstore/diskio"
	"github.com/cosmobiosis/lstore/page"
)

func newTestCache(t *testing.T, cacheSize int) (*Cache, *diskio.DiskHelper) {
	t.Helper()
	dir := testutil.TempDir(t)
	cfg := common.DefaultConfig()
	cfg.PageSize = 256
	cfg.WordSize = 8
	cfg.CacheSize = cacheSize
	d := diskio.New(cfg, filepath.Join(dir, "t1"))
	t.Cleanup(func() { d.Close() })

	c, err := New(cfg, d, nil)
	require.NoError(t, err)
	return c, d
}

func TestGetNewRIDMonotonic(t *testing.T) {
	c, _ := newTestCache(t, 10)

	var prev common.RID
	for i := 0; i < 50; i++ {
		rid := c.GetNewRID(page.Base)
		if i > 0 {
			assert.True(t, prev.Less(rid), "expected %+v < %+v", prev, rid)
		}
		prev = rid
	}
}

func TestGetNewRIDRollsOverPages(t *testing.T) {
	c, _ := newTestCache(t, 10)
	cfg := common.DefaultConfig()
	cfg.PageSize = 256
	cfg.WordSize = 8

	wordsPerPage := cfg.PageSize / cfg.WordSize
	var last common.RID
	for i := 0; i < wordsPerPage+5; i++ {
		last = c.GetNewRID(page.Tail)
	}
	assert.Equal(t, uint32(1), last.PageIndex)
}

func TestSetEntryThenGetEntry(t *testing.T) {
	c, _ := newTestCache(t, 10)

	rid := c.GetNewRID(page.Base)
	data := make([]byte, 8)
	common.PutInt64LE(data, 42)
	require.NoError(t, c.SetEntry(page.Base, rid, 4, data, true))

	got, err := c.GetEntry(page.Base, rid, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(42), common.Int64LE(got))
}

func TestEvictionWritesBackDirtyPages(t *testing.T) {
	c, d := newTestCache(t, 1)

	ridA := c.GetNewRID(page.Base)
	data := make([]byte, 8)
	common.PutInt64LE(data, 1)
	require.NoError(t, c.SetEntry(page.Base, ridA, 4, data, true))

	// Force a different page into the single-slot cache, evicting the
	// first and writing it back to disk.
	p, err := d.ReadPage(page.Tail, 0, 4)
	require.NoError(t, err)
	require.NoError(t, c.SetPage(page.Tail, 0, 4, p))

	reread, err := d.ReadPage(page.Base, int(ridA.PageIndex), 4)
	require.NoError(t, err)
	field, err := reread.ReadField(int(ridA.ByteOffset))
	require.NoError(t, err)
	assert.Equal(t, int64(1), common.Int64LE(field))
}

func TestFlushPersistsAllDirtyPages(t *testing.T) {
	c, d := newTestCache(t, 10)

	rid := c.GetNewRID(page.Base)
	data := make([]byte, 8)
	common.PutInt64LE(data, 7)
	require.NoError(t, c.SetEntry(page.Base, rid, 4, data, true))

	require.NoError(t, c.Flush())

	reread, err := d.ReadPage(page.Base, int(rid.PageIndex), 4)
	require.NoError(t, err)
	field, err := reread.ReadField(int(rid.ByteOffset))
	require.NoError(t, err)
	assert.Equal(t, int64(7), common.Int64LE(field))
}
