// Package digest implements the hashing context's pair of digest tables:
// flat SHA-256 arrays, one slot per block, memory-mapped to sidecar files
// so a multi-gigabyte table never has to be held entirely in the Go heap.
package digest

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Size is the length in bytes of one digest slot (SHA-256).
const Size = sha256.Size

// Table is a dense array of N digest slots, index i covering the block
// at offset i*blockSize within its segment.
type Table struct {
	mapping mapping
	count   int
}

// Count reports the number of slots in the table.
func (t *Table) Count() int {
	return t.count
}

// Slot returns the 32-byte digest at index i. The returned slice aliases
// the table's backing storage and must not be retained past Close.
func (t *Table) Slot(i int) []byte {
	if i < 0 || i >= t.count {
		panic(fmt.Sprintf("digest: slot %d out of range [0,%d)", i, t.count))
	}
	off := i * Size
	return t.mapping.bytes()[off : off+Size]
}

// SetSlot writes a 32-byte digest at index i.
func (t *Table) SetSlot(i int, sum []byte) {
	if len(sum) != Size {
		panic("digest: SetSlot requires a 32-byte SHA-256 sum")
	}
	copy(t.Slot(i), sum)
}

// Equal reports whether slot i in t equals slot i in other. Used by the
// hasher's DIFF mode to decide whether a block changed.
func (t *Table) Equal(i int, other *Table) bool {
	return string(t.Slot(i)) == string(other.Slot(i))
}

// Close flushes and releases the table's backing storage.
func (t *Table) Close() error {
	return t.mapping.close()
}

// Sum computes the SHA-256 digest of buf.
func Sum(buf []byte) [Size]byte {
	return sha256.Sum256(buf)
}

// Shape is a cheap fingerprint over a digest table's dimensions (block
// size and block count). Open does not consult it: a previous-copy
// sidecar of the wrong shape is rejected by Open comparing the file's
// length with count*Size before mapping it.
type Shape struct {
	BlockSize  uint32
	BlockCount uint64
	Fingerprint uint64
}

// NewShape computes a Shape for a segment of the given block size and
// block count.
func NewShape(blockSize uint32, blockCount uint64) Shape {
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[0:4], blockSize)
	binary.BigEndian.PutUint64(buf[4:12], blockCount)
	return Shape{
		BlockSize:   blockSize,
		BlockCount:  blockCount,
		Fingerprint: xxhash.Sum64(buf[:]),
	}
}

// Compatible reports whether two shapes describe digest tables of the
// same dimensions — the precondition for DIFF-mode comparison.
func (s Shape) Compatible(other Shape) bool {
	return s.Fingerprint == other.Fingerprint &&
		s.BlockSize == other.BlockSize &&
		s.BlockCount == other.BlockCount
}
