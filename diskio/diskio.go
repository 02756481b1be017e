// Package diskio translates (range, page index, column) coordinates into
// file offsets, lazily growing column files by whole pages as new page
// indexes are faulted in.
package diskio

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/multierr"

	"github.com/cosmobiosis/lstore/common"
	"github.com/cosmobiosis/lstore/page"
)

// fileKey identifies one on-disk column file.
type fileKey struct {
	column int
	rt     page.RangeType
}

// DiskHelper owns every column file for one table and knows how to grow,
// read, and write individual pages within them.
type DiskHelper struct {
	cfg      common.Config
	appendix string
	files    map[fileKey]*os.File
}

// New returns a DiskHelper for appendix's column files. It opens nothing
// itself: each file is opened, and created if absent, on first access.
func New(cfg common.Config, appendix string) *DiskHelper {
	return &DiskHelper{
		cfg:      cfg,
		appendix: appendix,
		files:    make(map[fileKey]*os.File),
	}
}

func (d *DiskHelper) filename(column int, rt page.RangeType) string {
	return fmt.Sprintf("%s_%s_%d", d.appendix, rt.Letter(), column)
}

func (d *DiskHelper) openFile(column int, rt page.RangeType) (*os.File, int64, error) {
	key := fileKey{column: column, rt: rt}
	if f, ok := d.files[key]; ok {
		info, err := f.Stat()
		if err != nil {
			return nil, 0, err
		}
		return f, info.Size(), nil
	}

	f, err := os.OpenFile(d.filename(column, rt), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, 0, err
	}
	d.files[key] = f

	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// ReadPage reads the page at pageIndex, growing the file first if the
// requested index falls beyond the current end of file. On growth it
// unconditionally appends (pageIndex+1) freshly header-initialized pages
// rather than just the missing ones, so every file for a column always
// holds a contiguous run of pages from index 0 with no gaps to special-case
// on a later read.
func (d *DiskHelper) ReadPage(rt page.RangeType, pageIndex int, column int) (*page.Page, error) {
	f, size, err := d.openFile(column, rt)
	if err != nil {
		return nil, err
	}

	if int64(pageIndex) >= size/int64(d.cfg.PageSize) {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			return nil, err
		}
		fresh := page.New(d.cfg, rt)
		grow := make([]byte, 0, (pageIndex+1)*d.cfg.PageSize)
		for i := 0; i <= pageIndex; i++ {
			grow = append(grow, fresh.Bytes()...)
		}
		if _, err := f.Write(grow); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, d.cfg.PageSize)
	if _, err := f.ReadAt(buf, int64(pageIndex)*int64(d.cfg.PageSize)); err != nil {
		return nil, err
	}
	return page.FromBytes(d.cfg, rt, buf), nil
}

// WritePage persists to-write at pageIndex. The file must already be
// large enough to hold that page index.
func (d *DiskHelper) WritePage(rt page.RangeType, pageIndex int, column int, toWrite *page.Page) error {
	f, size, err := d.openFile(column, rt)
	if err != nil {
		return err
	}

	if int64(pageIndex) >= size/int64(d.cfg.PageSize) {
		return common.ErrOutOfBounds
	}

	_, err = f.WriteAt(toWrite.Bytes(), int64(pageIndex)*int64(d.cfg.PageSize))
	return err
}

// GetLastRIDs inspects column 0 of each range and returns the RID that a
// freshly started Cache should resume allocating from: the slot just past
// whatever was last written, or the empty-file starting offset (skipping
// the header words) if the range has never been written to.
func (d *DiskHelper) GetLastRIDs() (baseRID, tailRID common.RID, err error) {
	base, err := d.lastRID(page.Base)
	if err != nil {
		return common.RID{}, common.RID{}, err
	}
	tail, err := d.lastRID(page.Tail)
	if err != nil {
		return common.RID{}, common.RID{}, err
	}
	return base, tail, nil
}

func (d *DiskHelper) lastRID(rt page.RangeType) (common.RID, error) {
	f, size, err := d.openFile(0, rt)
	if err != nil {
		return common.RID{}, err
	}

	if size%int64(d.cfg.PageSize) != 0 {
		return common.RID{}, fmt.Errorf("lstore: file size %d is not a multiple of page size", size)
	}

	if size == 0 {
		offset := uint32(0)
		if rt == page.Base {
			offset = uint32(d.cfg.WordSize)
		}
		return common.RID{PageIndex: 0, ByteOffset: offset}, nil
	}

	lastIndex := uint32(size/int64(d.cfg.PageSize) - 1)
	counterBuf := make([]byte, 8)
	if _, err := f.ReadAt(counterBuf, int64(lastIndex)*int64(d.cfg.PageSize)); err != nil {
		return common.RID{}, err
	}
	numRecords := common.Uint64LE(counterBuf)
	return common.RID{PageIndex: lastIndex, ByteOffset: uint32(numRecords) * uint32(d.cfg.WordSize)}, nil
}

// Close closes every open file handle, aggregating any errors.
func (d *DiskHelper) Close() error {
	var err error
	for key, f := range d.files {
		if cerr := f.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", d.filename(key.column, key.rt), cerr))
		}
	}
	d.files = make(map[fileKey]*os.File)
	return err
}
