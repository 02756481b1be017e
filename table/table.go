// Package table implements the per-table storage engine: base/tail record
// management, the indirection chain, and the background merge engine that
// folds tail updates back into base pages.
//
// The background merge worker runs as a goroutine driven by a stopChan/
// mergeTrigger select loop: a trigger send schedules a merge pass without
// blocking the caller, and closing stopChan runs one final pass over
// every remaining queued entry before the goroutine exits.
package table

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cosmobiosis/lstore/cache"
	"github.com/cosmobiosis/lstore/common"
	"github.com/cosmobiosis/lstore/diskio"
	"github.com/cosmobiosis/lstore/index"
	"github.com/cosmobiosis/lstore/lock"
	"github.com/cosmobiosis/lstore/page"
)

// Record is the table-layer view of one row: its RID, primary key, and the
// (possibly partial, for updates) column values. A nil entry in Columns
// means "leave this column unchanged" for an update record.
type Record struct {
	RID       common.RID
	Key       int64
	Columns   []*int64
	RangeType page.RangeType
}

type mergeEntry struct {
	BaseRID common.RID
	TailRID common.RID
}

// Table owns one table's pages, index, locks, and background merge engine.
type Table struct {
	cfg        common.Config
	Name       string
	KeyIndex   int
	NumColumns int

	Index *index.Index
	Locks *lock.Manager

	disk  *diskio.DiskHelper
	cache *cache.Cache
	log   *zap.Logger

	mqMu         sync.Mutex
	mergeQueue   [][][]mergeEntry // [feature][basePageIndex]
	mergeCounter int

	mergeTrigger chan struct{}
	stopChan     chan struct{}
	mergeWg      sync.WaitGroup
	closed       atomic.Bool
}

// New opens (or creates) a table named name with numColumns user columns
// and keyIndex as the primary-key column, and starts its merge goroutine.
func New(cfg common.Config, name string, numColumns, keyIndex int, log *zap.Logger) (*Table, error) {
	if log == nil {
		log = common.NopLogger()
	}

	disk := diskio.New(cfg, name)
	c, err := cache.New(cfg, disk, log)
	if err != nil {
		disk.Close()
		return nil, err
	}

	t := &Table{
		cfg:          cfg,
		Name:         name,
		KeyIndex:     keyIndex,
		NumColumns:   numColumns,
		Index:        index.New(numColumns, keyIndex),
		Locks:        lock.NewManager(),
		disk:         disk,
		cache:        c,
		log:          log,
		mergeTrigger: make(chan struct{}, 1),
		stopChan:     make(chan struct{}),
	}

	numBasePages := c.LastPageIndex(page.Base) + 1
	t.mergeQueue = make([][][]mergeEntry, numColumns)
	for f := 0; f < numColumns; f++ {
		t.mergeQueue[f] = make([][]mergeEntry, numBasePages)
	}

	t.mergeWg.Add(1)
	go t.mergeLoop()

	return t, nil
}

// GetNewRID allocates the next RID in rangeType, expanding the merge queue
// matrix with a fresh row per column whenever a new base page is started.
func (t *Table) GetNewRID(rt page.RangeType) common.RID {
	rid := t.cache.GetNewRID(rt)
	if rt == page.Base && int(rid.ByteOffset) == 2*t.cfg.WordSize {
		t.mqMu.Lock()
		for f := 0; f < t.NumColumns; f++ {
			t.mergeQueue[f] = append(t.mergeQueue[f], nil)
		}
		t.mqMu.Unlock()
	}
	return rid
}

// InsertRecord appends rec into its own range (base for a fresh row, tail
// for an update delta), initializing the four internal columns and every
// user column.
func (t *Table) InsertRecord(rec *Record) error {
	rt := rec.RangeType
	rid := rec.RID

	ridBuf := rid.Encode()
	if err := t.cache.SetEntry(rt, rid, common.RIDColumn, ridBuf[:], true); err != nil {
		return err
	}

	invBuf := common.InvalidRID.Encode()
	if err := t.cache.SetEntry(rt, rid, common.IndirectionColumn, invBuf[:], true); err != nil {
		return err
	}

	if err := t.cache.SetEntry(rt, rid, common.SchemaEncodingColumn, nil, true); err != nil {
		return err
	}

	tsBuf := make([]byte, t.cfg.WordSize)
	common.PutUint64LE(tsBuf, uint64(time.Now().UnixMicro()))
	if err := t.cache.SetEntry(rt, rid, common.TimestampColumn, tsBuf, true); err != nil {
		return err
	}

	for i, val := range rec.Columns {
		col := i + common.NumInternalColumn
		if val == nil {
			if err := t.cache.SetEntry(rt, rid, col, nil, true); err != nil {
				return err
			}
			continue
		}
		buf := make([]byte, t.cfg.WordSize)
		common.PutInt64LE(buf, *val)
		if err := t.cache.SetEntry(rt, rid, col, buf, true); err != nil {
			return err
		}
	}
	return nil
}

// UpdateRecord appends tailRec (already inserted via InsertRecord into the
// tail range) as the newest update of baseRID: it rewires the indirection
// chain, sets the dirty bit for every changed column on both the base and
// tail records, and enqueues (baseRID, tailRID) pairs for the merge engine.
func (t *Table) UpdateRecord(baseRID common.RID, tailRec *Record) error {
	tailRID := tailRec.RID

	if int(tailRID.ByteOffset) == t.cfg.WordSize {
		t.mqMu.Lock()
		t.mergeCounter++
		shouldTrigger := t.mergeCounter > t.cfg.MergeEpoch
		t.mqMu.Unlock()
		if shouldTrigger {
			select {
			case t.mergeTrigger <- struct{}{}:
			default:
			}
		}
	}

	indBuf, err := t.cache.GetEntry(page.Base, baseRID, common.IndirectionColumn)
	if err != nil {
		return err
	}
	baseIndirection := common.DecodeRID(indBuf)

	newTailBuf := tailRID.Encode()
	if baseIndirection.IsInvalid() {
		if err := t.cache.SetEntry(page.Base, baseRID, common.IndirectionColumn, newTailBuf[:], false); err != nil {
			return err
		}
	} else {
		oldTailBuf := baseIndirection.Encode()
		if err := t.cache.SetEntry(page.Tail, tailRID, common.IndirectionColumn, oldTailBuf[:], false); err != nil {
			return err
		}
		if err := t.cache.SetEntry(page.Base, baseRID, common.IndirectionColumn, newTailBuf[:], false); err != nil {
			return err
		}
	}

	basePageIdx := int(baseRID.PageIndex)
	for i, val := range tailRec.Columns {
		if val == nil {
			continue
		}
		if err := t.UpdateSchema(page.Base, i, baseRID); err != nil {
			return err
		}
		if err := t.UpdateSchema(page.Tail, i, tailRID); err != nil {
			return err
		}

		t.mqMu.Lock()
		if basePageIdx < len(t.mergeQueue[i]) {
			t.mergeQueue[i][basePageIdx] = append(t.mergeQueue[i][basePageIdx], mergeEntry{BaseRID: baseRID, TailRID: tailRID})
		}
		t.mqMu.Unlock()

		buf := make([]byte, t.cfg.WordSize)
		common.PutInt64LE(buf, *val)
		col := i + common.NumInternalColumn
		if err := t.cache.SetEntry(page.Tail, tailRID, col, buf, false); err != nil {
			return err
		}
	}
	return nil
}

// UpdateSchema sets featureIndex's dirty bit in rid's schema-encoding word.
func (t *Table) UpdateSchema(rt page.RangeType, featureIndex int, rid common.RID) error {
	buf, err := t.cache.GetEntry(rt, rid, common.SchemaEncodingColumn)
	if err != nil {
		return err
	}
	schema := common.Uint64LE(buf) | (uint64(1) << uint(featureIndex))
	out := make([]byte, t.cfg.WordSize)
	common.PutUint64LE(out, schema)
	return t.cache.SetEntry(rt, rid, common.SchemaEncodingColumn, out, false)
}

// IsUpdated reports whether featureIndex's bit is set in a schema-encoding word.
func IsUpdated(encoding []byte, featureIndex int) bool {
	return common.Uint64LE(encoding)&(uint64(1)<<uint(featureIndex)) != 0
}

// SelectFeature returns the current value of featureIndex for the record
// rooted at baseRID: the base value directly if it has never been updated
// or the base page has already been merged past the latest update,
// otherwise the value from the newest tail record that actually touched
// this column.
func (t *Table) SelectFeature(baseRID common.RID, featureIndex int) (int64, error) {
	encBuf, err := t.cache.GetEntry(page.Base, baseRID, common.SchemaEncodingColumn)
	if err != nil {
		return 0, err
	}

	upToDate, err := t.BaseUpToDate(baseRID, featureIndex)
	if err != nil {
		return 0, err
	}

	if upToDate || !IsUpdated(encBuf, featureIndex) {
		buf, err := t.cache.GetEntry(page.Base, baseRID, featureIndex+common.NumInternalColumn)
		if err != nil {
			return 0, err
		}
		return common.Int64LE(buf), nil
	}

	indBuf, err := t.cache.GetEntry(page.Base, baseRID, common.IndirectionColumn)
	if err != nil {
		return 0, err
	}
	tailRID := common.DecodeRID(indBuf)

	encBuf, err = t.cache.GetEntry(page.Tail, tailRID, common.SchemaEncodingColumn)
	if err != nil {
		return 0, err
	}

	for !IsUpdated(encBuf, featureIndex) {
		indBuf, err = t.cache.GetEntry(page.Tail, tailRID, common.IndirectionColumn)
		if err != nil {
			return 0, err
		}
		tailRID = common.DecodeRID(indBuf)
		encBuf, err = t.cache.GetEntry(page.Tail, tailRID, common.SchemaEncodingColumn)
		if err != nil {
			return 0, err
		}
	}

	buf, err := t.cache.GetEntry(page.Tail, tailRID, featureIndex+common.NumInternalColumn)
	if err != nil {
		return 0, err
	}
	return common.Int64LE(buf), nil
}

// BaseUpToDate reports whether baseRID's base page has already folded in
// its latest recorded update, by checking that the page's lineage RID is
// at or past the base record's current indirection target.
func (t *Table) BaseUpToDate(baseRID common.RID, featureIndex int) (bool, error) {
	col := featureIndex + common.NumInternalColumn
	p, err := t.cache.GetPage(page.Base, int(baseRID.PageIndex), col)
	if err != nil {
		return false, err
	}
	lineage := p.Lineage()

	indBuf, err := t.cache.GetEntry(page.Base, baseRID, common.IndirectionColumn)
	if err != nil {
		return false, err
	}
	latestTail := common.DecodeRID(indBuf)

	if lineage.PageIndex != latestTail.PageIndex {
		return lineage.PageIndex > latestTail.PageIndex, nil
	}
	return lineage.ByteOffset >= latestTail.ByteOffset, nil
}

// DeleteByRID invalidates a base record and every tail record in its
// indirection chain by overwriting their RID columns with InvalidRID. It
// does not touch the index; callers going through the primary key use
// Delete instead.
func (t *Table) DeleteByRID(rid common.RID) error {
	indBuf, err := t.cache.GetEntry(page.Base, rid, common.IndirectionColumn)
	if err != nil {
		return err
	}
	latest := common.DecodeRID(indBuf)

	invBuf := common.InvalidRID.Encode()
	if err := t.cache.SetEntry(page.Base, rid, common.RIDColumn, invBuf[:], false); err != nil {
		return err
	}

	for !latest.IsInvalid() {
		if err := t.cache.SetEntry(page.Tail, latest, common.RIDColumn, invBuf[:], false); err != nil {
			return err
		}
		nextBuf, err := t.cache.GetEntry(page.Tail, latest, common.IndirectionColumn)
		if err != nil {
			return err
		}
		latest = common.DecodeRID(nextBuf)
	}
	return nil
}

// BuildIndex materializes a value→[]RID map for column by walking every
// currently indexed primary key through SelectFeature, then installs it.
// Table drives this (rather than Index calling back into Table) so that
// Index has no dependency on the table layer at all.
func (t *Table) BuildIndex(column int) error {
	if t.Index.Created(column) {
		return nil
	}

	built := make(map[int64][]common.RID)
	for _, baseRID := range t.Index.PrimaryKeys() {
		val, err := t.SelectFeature(baseRID, column)
		if err != nil {
			return err
		}
		built[val] = append(built[val], baseRID)
	}
	t.Index.MarkCreated(column, built)
	return nil
}

// mergeLoop drains trigger signals and runs merge passes until stopChan is
// closed, at which point it runs one final pass that also folds in the
// current (possibly still-filling) base page before exiting.
func (t *Table) mergeLoop() {
	defer t.mergeWg.Done()
	for {
		select {
		case <-t.stopChan:
			t.runMergePass(true)
			return
		case <-t.mergeTrigger:
			t.runMergePass(false)
			t.mqMu.Lock()
			if t.mergeCounter > t.cfg.MergeEpoch {
				t.mergeCounter -= t.cfg.MergeEpoch
			} else {
				t.mergeCounter = 0
			}
			t.mqMu.Unlock()
		}
	}
}

// runMergePass folds every pending (baseRID, tailRID) merge-queue entry
// into its base page, one (feature, base page) cell at a time. Within a
// cell, only the newest update per base RID survives (last-writer-wins via
// a plain map), and the page's lineage RID advances to the newest tail RID
// popped off the queue regardless of which base RID it targeted.
//
// Merging works on a real Clone() of the base page rather than mutating
// the cached object in place, since other goroutines may be holding a
// pointer to that same cached page via a concurrent Cache.GetPage; the
// clone is written back through Cache.SetPage once the merge is complete.
func (t *Table) runMergePass(closing bool) {
	mergeRange := t.cache.LastPageIndex(page.Base)
	if closing {
		mergeRange++
	}

	for feature := 0; feature < t.NumColumns; feature++ {
		for pageIdx := 0; pageIdx < mergeRange; pageIdx++ {
			t.mqMu.Lock()
			var queue []mergeEntry
			if pageIdx < len(t.mergeQueue[feature]) {
				queue = t.mergeQueue[feature][pageIdx]
				t.mergeQueue[feature][pageIdx] = nil
			}
			t.mqMu.Unlock()

			if len(queue) == 0 {
				continue
			}
			t.mergeCell(feature, pageIdx, queue)
		}
	}
}

func (t *Table) mergeCell(feature, pageIdx int, queue []mergeEntry) {
	col := feature + common.NumInternalColumn
	basePage, err := t.cache.GetPage(page.Base, pageIdx, col)
	if err != nil {
		t.log.Error("merge: read base page failed", zap.Int("feature", feature), zap.Int("page", pageIdx), zap.Error(err))
		return
	}
	newBasePage := basePage.Clone()

	seen := make(map[common.RID]common.RID, len(queue))
	lineage := newBasePage.Lineage()
	for _, e := range queue {
		seen[e.BaseRID] = e.TailRID
		lineage = e.TailRID
	}
	if err := newBasePage.SetLineage(lineage); err != nil {
		t.log.Error("merge: set lineage failed", zap.Error(err))
		return
	}

	for baseRID, tailRID := range seen {
		data, err := t.cache.GetEntry(page.Tail, tailRID, col)
		if err != nil {
			t.log.Error("merge: read tail entry failed", zap.Error(err))
			continue
		}
		if err := newBasePage.WriteField(int(baseRID.ByteOffset), data); err != nil {
			t.log.Error("merge: write base field failed", zap.Error(err))
			continue
		}
	}

	if err := t.cache.SetPage(page.Base, pageIdx, col, newBasePage); err != nil {
		t.log.Error("merge: write base page failed", zap.Error(err))
	}
}

// Close stops the merge goroutine (running one final flush pass first),
// flushes every remaining dirty page, and closes the table's files.
func (t *Table) Close() error {
	if t.closed.CompareAndSwap(false, true) {
		close(t.stopChan)
	}
	t.mergeWg.Wait()

	if err := t.cache.Flush(); err != nil {
		return err
	}
	return t.disk.Close()
}
