package common

import "errors"

// Sentinel errors for the engine's error vocabulary (spec §7).
var (
	// ErrOutOfBounds is returned for a read/write offset outside a page,
	// or a WritePage beyond the file's current page count.
	ErrOutOfBounds = errors.New("lstore: offset out of bounds")

	// ErrBadWordSize is returned when WriteField is called with a word
	// whose length does not equal WordSize.
	ErrBadWordSize = errors.New("lstore: word has wrong size")

	// ErrUnknownRangeType is returned when a range type is not "base" or
	// "tail".
	ErrUnknownRangeType = errors.New("lstore: unknown range type")

	// ErrDuplicateKey is returned when an insert or update would violate
	// primary-key uniqueness.
	ErrDuplicateKey = errors.New("lstore: duplicate primary key")

	// ErrNotIndexed is returned by Index.Locate on a column whose index
	// has not been built.
	ErrNotIndexed = errors.New("lstore: column is not indexed")

	// ErrSchemaMismatch is returned when the number of supplied columns
	// does not match the table's width.
	ErrSchemaMismatch = errors.New("lstore: column count mismatch")

	// ErrLockContended is returned when a non-blocking lock acquisition
	// fails; it causes the owning transaction to abort.
	ErrLockContended = errors.New("lstore: lock contended")

	// ErrKeyNotFound is returned when a lookup key has no matching
	// record.
	ErrKeyNotFound = errors.New("lstore: key not found")

	// ErrTableNotFound is returned by Database.GetTable/DropTable for an
	// unknown table name.
	ErrTableNotFound = errors.New("lstore: table not found")

	// ErrClosed is returned by operations attempted after Table.Close.
	ErrClosed = errors.New("lstore: table is closed")
)
