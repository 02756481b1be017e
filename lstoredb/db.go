// Package lstoredb is the external boundary of the engine: Database opens
// a folder of tables and Query exposes the row-level API over one of
// them. Both are thin shims — every real operation is implemented once on
// table.Table (package table) and forwarded here.
package lstoredb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/cosmobiosis/lstore/common"
	"github.com/cosmobiosis/lstore/page"
	"github.com/cosmobiosis/lstore/table"
)

// catalogEntry is one table's schema, persisted alongside its data files
// so GetTable can reconstruct it on reopen. Without it, a Database could
// only reopen tables that all happened to share the same column count and
// key index; the catalog lets each table keep its own shape across a
// close/reopen cycle.
type catalogEntry struct {
	Name       string `json:"name"`
	NumColumns int    `json:"num_columns"`
	KeyIndex   int    `json:"key_index"`
}

// Database manages a directory of tables.
type Database struct {
	cfg    common.Config
	log    *zap.Logger
	dir    string
	mu     sync.Mutex
	tables map[string]*table.Table
}

// Open creates dir if it does not already exist and returns a Database
// rooted there.
func Open(cfg common.Config, dir string, log *zap.Logger) (*Database, error) {
	if log == nil {
		log = common.NopLogger()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Database{
		cfg:    cfg,
		log:    log,
		dir:    dir,
		tables: make(map[string]*table.Table),
	}, nil
}

func (db *Database) appendix(name string) string {
	return filepath.Join(db.dir, name)
}

func (db *Database) catalogPath(name string) string {
	return db.appendix(name) + "_catalog"
}

func (db *Database) indexPath(name string) string {
	return db.appendix(name) + "_index"
}

// CreateTable creates a fresh table named name with numColumns user
// columns and keyIndex as the primary key, truncating any existing files
// under the same name.
func (db *Database) CreateTable(name string, numColumns, keyIndex int) (*table.Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	entry := catalogEntry{Name: name, NumColumns: numColumns, KeyIndex: keyIndex}
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(db.catalogPath(name), raw, 0644); err != nil {
		return nil, err
	}
	os.Remove(db.indexPath(name))
	for col := 0; col < numColumns+common.NumInternalColumn; col++ {
		for _, rt := range []page.RangeType{page.Base, page.Tail} {
			os.Remove(fmt.Sprintf("%s_%s_%d", db.appendix(name), rt.Letter(), col))
		}
	}

	tbl, err := table.New(db.cfg, db.appendix(name), numColumns, keyIndex, db.log)
	if err != nil {
		return nil, err
	}
	db.tables[name] = tbl
	return tbl, nil
}

// GetTable returns a previously created table, opening it from disk (and
// reloading its persisted primary-key index) if it is not already held
// open in memory.
func (db *Database) GetTable(name string) (*table.Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if tbl, ok := db.tables[name]; ok {
		return tbl, nil
	}

	raw, err := os.ReadFile(db.catalogPath(name))
	if err != nil {
		return nil, common.ErrTableNotFound
	}
	var entry catalogEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}

	tbl, err := table.New(db.cfg, db.appendix(name), entry.NumColumns, entry.KeyIndex, db.log)
	if err != nil {
		return nil, err
	}

	keys, err := loadIndexFile(db.indexPath(name), db.cfg.WordSize)
	if err == nil {
		tbl.Index.LoadPrimaryKeys(keys)
	}

	db.tables[name] = tbl
	return tbl, nil
}

// DropTable closes the open table name and removes it from the open-table
// set. A name that is not currently open returns ErrTableNotFound. It does
// not delete the underlying files.
func (db *Database) DropTable(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tbl, ok := db.tables[name]
	if !ok {
		return common.ErrTableNotFound
	}
	delete(db.tables, name)
	return tbl.Close()
}

// Close closes every open table, persisting each one's primary-key index
// to disk first.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var err error
	for name, tbl := range db.tables {
		if werr := saveIndexFile(db.indexPath(name), tbl.Index.PrimaryKeys(), db.cfg.WordSize); werr != nil {
			err = multierr.Append(err, werr)
		}
		if cerr := tbl.Close(); cerr != nil {
			err = multierr.Append(err, cerr)
		}
	}
	db.tables = make(map[string]*table.Table)
	return err
}

// Index file records are a fixed 8-byte key followed by an 8-byte RID,
// regardless of the table's configured WordSize: the key is always a Go
// int64 and the RID is always the two-uint32 encoding from common.RID.
const indexRecordSize = 16

func saveIndexFile(path string, keys map[int64]common.RID, _ int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, 8)
	for key, rid := range keys {
		common.PutInt64LE(buf, key)
		if _, err := f.Write(buf); err != nil {
			return err
		}
		ridBuf := rid.Encode()
		if _, err := f.Write(ridBuf[:]); err != nil {
			return err
		}
	}
	return nil
}

func loadIndexFile(path string, _ int) (map[int64]common.RID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	keys := make(map[int64]common.RID, len(data)/indexRecordSize)
	for off := 0; off+indexRecordSize <= len(data); off += indexRecordSize {
		key := common.Int64LE(data[off : off+8])
		rid := common.DecodeRID(data[off+8 : off+indexRecordSize])
		keys[key] = rid
	}
	return keys, nil
}
