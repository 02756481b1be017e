package diskio

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmobiosis/lstore/common"
	"github.com/cosmobiosis/lstore/common/testutil"
	"github.com/cosmobiosis/lstore/page"
)

func testConfig() common.Config {
	cfg := common.DefaultConfig()
	cfg.PageSize = 256
	cfg.WordSize = 8
	return cfg
}

func TestReadPageGrowsFile(t *testing.T) {
	dir := testutil.TempDir(t)
	cfg := testConfig()
	d := New(cfg, filepath.Join(dir, "t1"))
	defer d.Close()

	p, err := d.ReadPage(page.Base, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p.NumRecords())
}

func TestWritePageOutOfBoundsFails(t *testing.T) {
	dir := testutil.TempDir(t)
	cfg := testConfig()
	d := New(cfg, filepath.Join(dir, "t1"))
	defer d.Close()

	p := page.New(cfg, page.Base)
	err := d.WritePage(page.Base, 5, 0, p)
	assert.ErrorIs(t, err, common.ErrOutOfBounds)
}

func TestWritePageThenReadPageRoundTrips(t *testing.T) {
	dir := testutil.TempDir(t)
	cfg := testConfig()
	d := New(cfg, filepath.Join(dir, "t1"))
	defer d.Close()

	p, err := d.ReadPage(page.Base, 0, 3)
	require.NoError(t, err)
	word := make([]byte, cfg.WordSize)
	copy(word, []byte("hi-there"))
	require.NoError(t, p.WriteField(16, word))

	require.NoError(t, d.WritePage(page.Base, 0, 3, p))

	reread, err := d.ReadPage(page.Base, 0, 3)
	require.NoError(t, err)
	got, err := reread.ReadField(16)
	require.NoError(t, err)
	assert.Equal(t, word, got)
}

func TestGetLastRIDsEmptyFiles(t *testing.T) {
	dir := testutil.TempDir(t)
	cfg := testConfig()
	d := New(cfg, filepath.Join(dir, "t1"))
	defer d.Close()

	base, tail, err := d.GetLastRIDs()
	require.NoError(t, err)
	assert.Equal(t, common.RID{PageIndex: 0, ByteOffset: uint32(cfg.WordSize)}, base)
	assert.Equal(t, common.RID{PageIndex: 0, ByteOffset: 0}, tail)
}

func TestGetLastRIDsAfterWrite(t *testing.T) {
	dir := testutil.TempDir(t)
	cfg := testConfig()
	d := New(cfg, filepath.Join(dir, "t1"))
	defer d.Close()

	p, err := d.ReadPage(page.Base, 0, 0)
	require.NoError(t, err)
	p.IncrementCounter()
	require.NoError(t, d.WritePage(page.Base, 0, 0, p))

	base, _, err := d.GetLastRIDs()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), base.PageIndex)
	assert.Equal(t, uint32(3*cfg.WordSize), base.ByteOffset)
}
