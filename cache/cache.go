// Package cache implements the buffer pool: an LRU-ordered map from page
// key to (dirty, Page), bounded by a configured size, plus the RID
// allocator.
//
// GetPage and SetPage both mutate the same LRU list and page map, so they
// share one mutex, structMu, rather than each guarding their own: a
// separate pair of locks over a single shared structure would just invite
// a miss path (GetPage faulting in a page) to reacquire a lock it already
// holds, or a writer and a reader to interleave on the same list pointers.
// The on-miss fault-in path reuses the already-held structMu instead of
// recursing through the public SetPage. RID allocation touches a separate
// counter, never the page map or LRU list, so it gets its own independent
// mutex, ridLatch, instead of contending with page traffic.
package cache

import (
	"container/list"
	"sync"

	"go.uber.org/zap"

	"github.com/cosmobiosis/lstore/common"
	"github.com/cosmobiosis/lstore/diskio"
	"github.com/cosmobiosis/lstore/page"
)

// Key identifies one cached page.
type Key struct {
	Range  page.RangeType
	Index  int
	Column int
}

type entry struct {
	dirty bool
	page  *page.Page
}

// Cache is the per-table buffer pool and RID allocator.
type Cache struct {
	cfg  common.Config
	disk *diskio.DiskHelper
	log  *zap.Logger

	structMu sync.Mutex
	ridLatch sync.Mutex

	pages   map[Key]*entry
	lru     *list.List
	lruElem map[Key]*list.Element

	lastRID map[page.RangeType]common.RID
}

// New constructs a Cache backed by disk, resuming RID allocation from
// whatever the disk helper reports as the last allocated RID per range.
func New(cfg common.Config, disk *diskio.DiskHelper, log *zap.Logger) (*Cache, error) {
	if log == nil {
		log = common.NopLogger()
	}
	baseRID, tailRID, err := disk.GetLastRIDs()
	if err != nil {
		return nil, err
	}

	return &Cache{
		cfg:     cfg,
		disk:    disk,
		log:     log,
		pages:   make(map[Key]*entry),
		lru:     list.New(),
		lruElem: make(map[Key]*list.Element),
		lastRID: map[page.RangeType]common.RID{
			page.Base: baseRID,
			page.Tail: tailRID,
		},
	}, nil
}

// GetNewRID allocates the next RID in rangeType, advancing the
// allocator's cursor by one word and rolling over to a fresh page (with
// the header words skipped) when the current page is full. Thread-safe
// via the RID allocator latch.
func (c *Cache) GetNewRID(rt page.RangeType) common.RID {
	c.ridLatch.Lock()
	defer c.ridLatch.Unlock()

	cur := c.lastRID[rt]
	entryOffset := int(cur.ByteOffset)/c.cfg.WordSize + 1

	pageIndex := cur.PageIndex
	if entryOffset >= c.cfg.PageSize/c.cfg.WordSize {
		pageIndex++
		if rt == page.Base {
			entryOffset = 2
		} else {
			entryOffset = 1
		}
	}

	newRID := common.RID{PageIndex: pageIndex, ByteOffset: uint32(entryOffset * c.cfg.WordSize)}
	c.lastRID[rt] = newRID
	return newRID
}

// LastPageIndex returns the page index of the most recently allocated RID
// in rangeType.
func (c *Cache) LastPageIndex(rt page.RangeType) int {
	c.ridLatch.Lock()
	defer c.ridLatch.Unlock()
	return int(c.lastRID[rt].PageIndex)
}

// GetPage returns the page at (range, index, column), faulting it in from
// disk on a cache miss.
func (c *Cache) GetPage(rt page.RangeType, index, column int) (*page.Page, error) {
	c.structMu.Lock()
	defer c.structMu.Unlock()
	return c.getPageLocked(Key{Range: rt, Index: index, Column: column})
}

func (c *Cache) getPageLocked(key Key) (*page.Page, error) {
	if e, ok := c.pages[key]; ok {
		c.lru.MoveToFront(c.lruElem[key])
		return e.page, nil
	}

	p, err := c.disk.ReadPage(key.Range, key.Index, key.Column)
	if err != nil {
		return nil, err
	}
	c.log.Debug("page fault", zap.String("range", key.Range.String()), zap.Int("index", key.Index), zap.Int("column", key.Column))
	c.insertLocked(key, p, false)
	return p, nil
}

// SetPage installs newPage as the cached, dirty version of (range, index,
// column), evicting the LRU entry if the cache is now over capacity.
func (c *Cache) SetPage(rt page.RangeType, index, column int, newPage *page.Page) error {
	c.structMu.Lock()
	defer c.structMu.Unlock()
	return c.setPageLocked(Key{Range: rt, Index: index, Column: column}, newPage)
}

func (c *Cache) setPageLocked(key Key, p *page.Page) error {
	if elem, ok := c.lruElem[key]; ok {
		c.lru.Remove(elem)
		delete(c.lruElem, key)
		delete(c.pages, key)
	}
	return c.insertLocked(key, p, true)
}

// insertLocked inserts a page as MRU and evicts the LRU victim (writing it
// back if dirty) when the cache exceeds its configured size. Callers must
// already hold structMu.
func (c *Cache) insertLocked(key Key, p *page.Page, dirty bool) error {
	c.pages[key] = &entry{dirty: dirty, page: p}
	c.lruElem[key] = c.lru.PushFront(key)

	if len(c.pages) <= c.cfg.CacheSize {
		return nil
	}

	back := c.lru.Back()
	victimKey := back.Value.(Key)
	victim := c.pages[victimKey]

	c.lru.Remove(back)
	delete(c.lruElem, victimKey)
	delete(c.pages, victimKey)

	if !victim.dirty {
		return nil
	}
	c.log.Debug("evict dirty page", zap.String("range", victimKey.Range.String()), zap.Int("index", victimKey.Index), zap.Int("column", victimKey.Column))
	return c.disk.WritePage(victimKey.Range, victimKey.Index, victimKey.Column, victim.page)
}

// GetEntry returns the word at rid's offset in the given column.
func (c *Cache) GetEntry(rt page.RangeType, rid common.RID, column int) ([]byte, error) {
	p, err := c.GetPage(rt, int(rid.PageIndex), column)
	if err != nil {
		return nil, err
	}
	return p.ReadField(int(rid.ByteOffset))
}

// SetEntry clones the target page, optionally bumps its record counter
// (when isAppend is true), optionally writes data at rid's offset, then
// stores the mutated page as dirty. A call with neither data nor isAppend
// is a no-op.
func (c *Cache) SetEntry(rt page.RangeType, rid common.RID, column int, data []byte, isAppend bool) error {
	orig, err := c.GetPage(rt, int(rid.PageIndex), column)
	if err != nil {
		return err
	}
	target := orig.Clone()

	if isAppend {
		target.IncrementCounter()
	}
	if data == nil {
		if !isAppend {
			return nil
		}
		return c.SetPage(rt, int(rid.PageIndex), column, target)
	}

	if err := target.WriteField(int(rid.ByteOffset), data); err != nil {
		return err
	}
	return c.SetPage(rt, int(rid.PageIndex), column, target)
}

// Flush writes every dirty page back to disk, used on table shutdown
// since eviction is write-back rather than write-through.
func (c *Cache) Flush() error {
	c.structMu.Lock()
	defer c.structMu.Unlock()

	for key, e := range c.pages {
		if !e.dirty {
			continue
		}
		if err := c.disk.WritePage(key.Range, key.Index, key.Column, e.page); err != nil {
			return err
		}
	}
	return nil
}
