// Package blockpool implements the fixed-size slab allocator that backs
// every block moving through a session pipeline: one contiguous byte
// arena sliced into blockSize pieces, handed out and reclaimed under a
// single mutex so the pipeline's memory footprint never grows with
// volume size.
package blockpool

import (
	"fmt"
	"sync"
)

// Pool is a fixed-capacity slab of equal-sized buffers.
type Pool struct {
	mu        sync.Mutex
	arena     []byte
	blockSize int
	free      []bool // free[i] true means slot i is available
	freeCount int
}

// DefaultBlockCount is the default number of buffers in a pool. It is
// smaller than the default queue depth (blockqueue.DefaultCapacity, 64),
// so the pool, not the queues, bounds how many blocks are in flight.
const DefaultBlockCount = 32

// New preallocates a pool of blockCount buffers of blockSize bytes each.
func New(blockSize, blockCount int) *Pool {
	if blockSize <= 0 || blockCount <= 0 {
		panic("blockpool: blockSize and blockCount must be positive")
	}
	p := &Pool{
		arena:     make([]byte, blockSize*blockCount),
		blockSize: blockSize,
		free:      make([]bool, blockCount),
		freeCount: blockCount,
	}
	for i := range p.free {
		p.free[i] = true
	}
	return p
}

// BlockSize reports the fixed size of every buffer this pool hands out.
func (p *Pool) BlockSize() int {
	return p.blockSize
}

// Capacity reports the total number of buffers in the pool.
func (p *Pool) Capacity() int {
	return len(p.free)
}

// FreeCount reports how many buffers are currently unallocated. Testable
// property: after a session terminates, FreeCount must equal Capacity.
func (p *Pool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.freeCount
}

// Allocate linearly scans for a free slot and returns a slice over it, or
// nil if the pool is fully checked out. Callers must back off and retry;
// the pool applies no blocking of its own.
func (p *Pool) Allocate() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, isFree := range p.free {
		if isFree {
			p.free[i] = false
			p.freeCount--
			start := i * p.blockSize
			return p.arena[start : start+p.blockSize : start+p.blockSize]
		}
	}
	return nil
}

// Free returns a buffer previously returned by Allocate. Passing a slice
// that was not allocated from this pool, or one already freed, is a
// programmer error and panics rather than silently corrupting pool state.
func (p *Pool) Free(buf []byte) {
	if buf == nil {
		return
	}
	offset := sliceOffset(p.arena, buf)
	if offset < 0 || offset%p.blockSize != 0 {
		panic(fmt.Sprintf("blockpool: freed buffer is not slot-aligned (offset=%d, blockSize=%d)", offset, p.blockSize))
	}
	slot := offset / p.blockSize
	p.mu.Lock()
	defer p.mu.Unlock()
	if slot < 0 || slot >= len(p.free) {
		panic(fmt.Sprintf("blockpool: freed buffer slot %d out of range", slot))
	}
	if p.free[slot] {
		panic(fmt.Sprintf("blockpool: double free of slot %d", slot))
	}
	p.free[slot] = true
	p.freeCount++
}

// sliceOffset returns the byte offset of buf's first element within
// arena, or -1 if buf does not point into arena's backing array.
func sliceOffset(arena, buf []byte) int {
	if len(arena) == 0 {
		return -1
	}
	aStart := &arena[0]
	if len(buf) == 0 {
		return -1
	}
	bStart := &buf[0]

	// Pointer arithmetic via unsafe is the idiomatic way to recover a
	// slot index from a sub-slice; done through a small helper so the
	// unsafe usage stays contained and auditable.
	return ptrDiff(aStart, bStart)
}
