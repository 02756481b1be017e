package common

import "encoding/binary"

// RID is a record identifier: a (page index, byte offset) pair packed as
// eight bytes, two little-endian uint32 fields. ByteOffset is always a
// multiple of the table's WordSize.
type RID struct {
	PageIndex  uint32
	ByteOffset uint32
}

// InvalidRID is the reserved sentinel marking deleted records and "no
// update yet" indirection links.
var InvalidRID = RID{PageIndex: 0xFFFFFFFF, ByteOffset: 0xFFFFFFFF}

// IsInvalid reports whether r is the InvalidRID sentinel.
func (r RID) IsInvalid() bool {
	return r == InvalidRID
}

// Less reports whether r sorts strictly before other under the
// lexicographic (PageIndex, ByteOffset) ordering: a RID allocated from a
// later page, or a later offset within the same page, always sorts after
// one allocated earlier, which is what lineage comparisons rely on.
func (r RID) Less(other RID) bool {
	if r.PageIndex != other.PageIndex {
		return r.PageIndex < other.PageIndex
	}
	return r.ByteOffset < other.ByteOffset
}

// Encode packs r into its eight-byte on-disk representation.
func (r RID) Encode() [8]byte {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], r.PageIndex)
	binary.LittleEndian.PutUint32(buf[4:8], r.ByteOffset)
	return buf
}

// DecodeRID unpacks an eight-byte on-disk RID representation.
func DecodeRID(buf []byte) RID {
	return RID{
		PageIndex:  binary.LittleEndian.Uint32(buf[0:4]),
		ByteOffset: binary.LittleEndian.Uint32(buf[4:8]),
	}
}

// PutUint64LE writes v as the canonical internal-column representation
// (unsigned 64-bit little-endian).
func PutUint64LE(buf []byte, v uint64) {
	binary.LittleEndian.PutUint64(buf, v)
}

// Uint64LE reads an internal column's unsigned 64-bit little-endian value.
func Uint64LE(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf)
}

// PutInt64LE writes v as the canonical user-column representation (signed
// 64-bit little-endian).
func PutInt64LE(buf []byte, v int64) {
	binary.LittleEndian.PutUint64(buf, uint64(v))
}

// Int64LE reads a user column's signed 64-bit little-endian value.
func Int64LE(buf []byte) int64 {
	return int64(binary.LittleEndian.Uint64(buf))
}

// RIDBytes returns the 8-byte encoding of r as a slice, useful as a
// comparison value when scanning raw column bytes.
func RIDBytes(r RID) []byte {
	enc := r.Encode()
	return enc[:]
}
