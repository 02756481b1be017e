// Package page implements the fixed-size on-disk page format: a record
// counter at word 0 (and, for base pages, a lineage RID at word 1),
// followed by word-granularity payload slots.
package page

import (
	"github.com/cosmobiosis/lstore/common"
)

// RangeType distinguishes base pages (immutable, one per inserted record)
// from tail pages (append-only update deltas).
type RangeType int

const (
	Base RangeType = iota
	Tail
)

func (r RangeType) String() string {
	if r == Base {
		return "base"
	}
	return "tail"
}

// Letter returns the single-character range-type tag used in on-disk
// filenames ("b" or "t").
func (r RangeType) Letter() string {
	if r == Base {
		return "b"
	}
	return "t"
}

// Page is a fixed-size byte buffer with word-granularity field access and
// an embedded record counter. A page does not know its own identity
// (range/index/column) — identity lives in the cache key.
type Page struct {
	cfg       common.Config
	data      []byte
	numRecs   uint64
	rangeType RangeType
}

// New creates a zero-filled page of the given flavor. Base pages reserve
// word 0 for the record counter and word 1 for the lineage RID, so their
// counter starts at 2; tail pages only reserve word 0, so theirs starts
// at 1.
func New(cfg common.Config, rt RangeType) *Page {
	p := &Page{
		cfg:       cfg,
		data:      make([]byte, cfg.PageSize),
		rangeType: rt,
	}
	if rt == Base {
		p.numRecs = 2
	} else {
		p.numRecs = 1
	}
	common.PutUint64LE(p.data[0:8], p.numRecs)
	return p
}

// FromBytes wraps an on-disk page, reading the record counter from word 0.
func FromBytes(cfg common.Config, rt RangeType, buf []byte) *Page {
	data := make([]byte, cfg.PageSize)
	copy(data, buf)
	return &Page{
		cfg:       cfg,
		data:      data,
		numRecs:   common.Uint64LE(data[0:8]),
		rangeType: rt,
	}
}

// Clone returns a deep copy, used by Cache.SetEntry and the merge engine
// so that a page being mutated never aliases the version a concurrent
// reader might still be holding.
func (p *Page) Clone() *Page {
	data := make([]byte, len(p.data))
	copy(data, p.data)
	return &Page{cfg: p.cfg, data: data, numRecs: p.numRecs, rangeType: p.rangeType}
}

// RangeType reports whether this is a base or tail page.
func (p *Page) RangeType() RangeType { return p.rangeType }

// Bytes returns the page's raw on-disk representation.
func (p *Page) Bytes() []byte { return p.data }

// NumRecords returns the record counter stored at word 0.
func (p *Page) NumRecords() uint64 { return p.numRecs }

// IncrementCounter bumps the record counter by one slot and persists it
// at word 0.
func (p *Page) IncrementCounter() {
	p.numRecs++
	common.PutUint64LE(p.data[0:8], p.numRecs)
}

// ReadField returns the WordSize bytes starting at offset.
func (p *Page) ReadField(offset int) ([]byte, error) {
	if offset < 0 || offset+p.cfg.WordSize > p.cfg.PageSize {
		return nil, common.ErrOutOfBounds
	}
	out := make([]byte, p.cfg.WordSize)
	copy(out, p.data[offset:offset+p.cfg.WordSize])
	return out, nil
}

// WriteField overwrites the word at offset with word, which must be
// exactly WordSize bytes long.
func (p *Page) WriteField(offset int, word []byte) error {
	if len(word) != p.cfg.WordSize {
		return common.ErrBadWordSize
	}
	if offset < 0 || offset+p.cfg.WordSize > p.cfg.PageSize {
		return common.ErrOutOfBounds
	}
	copy(p.data[offset:offset+p.cfg.WordSize], word)
	return nil
}

// LineageOffset is the byte offset of a base page's lineage RID field
// (word 1).
func (p *Page) LineageOffset() int { return p.cfg.WordSize }

// Lineage returns a base page's lineage RID (the high-water-mark tail RID
// folded into this page by the merge engine). Zero-initialized pages
// decode to RID{0,0}, which compares less than any real RID.
func (p *Page) Lineage() common.RID {
	buf, _ := p.ReadField(p.LineageOffset())
	if buf == nil {
		return common.RID{}
	}
	return common.DecodeRID(buf)
}

// SetLineage writes a base page's lineage RID.
func (p *Page) SetLineage(r common.RID) error {
	enc := r.Encode()
	return p.WriteField(p.LineageOffset(), enc[:])
}
