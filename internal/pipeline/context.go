// Package pipeline implements the three cooperating session stages —
// Reader, Hasher, Writer — connected by bounded queues and sharing one
// block allocator, progress bitmaps, and digest tables.
package pipeline

import (
	"sync/atomic"

	"github.com/xuranus/volumebackup/internal/bitmap"
	"github.com/xuranus/volumebackup/internal/blockpool"
	"github.com/xuranus/volumebackup/internal/blockqueue"
	"github.com/xuranus/volumebackup/internal/digest"
	"github.com/xuranus/volumebackup/internal/rawio"
)

// Mode selects the hasher's behavior.
type Mode int

const (
	// ModeDirect forwards every block to the writer unconditionally.
	ModeDirect Mode = iota
	// ModeDiff drops blocks whose digest matches the previous copy's
	// digest table at the same index.
	ModeDiff
)

// SharedConfig is the immutable description of one session's work,
// handed to all three stages at construction.
type SharedConfig struct {
	SessionOffset    int64 // volume byte offset this session begins at
	SessionLength    int64 // byte length of this session
	BlockSize        int
	HasherEnabled    bool
	Mode             Mode
	SkipEmptyBlock   bool
}

// BlockCount returns the number of blocks in this session, rounding the
// last block up.
func (c SharedConfig) BlockCount() int {
	return int((c.SessionLength + int64(c.BlockSize) - 1) / int64(c.BlockSize))
}

// Counters holds the six monotonically increasing statistics atomics
// plus the write-failure count, reset at session boundaries and folded
// into the task's completed statistics when a session terminates.
type Counters struct {
	BytesToRead       atomic.Int64
	BytesRead         atomic.Int64
	BlocksToHash      atomic.Int64
	BlocksHashed      atomic.Int64
	BytesToWrite      atomic.Int64
	BytesWritten      atomic.Int64
	BlocksWriteFailed atomic.Int64
}

// Snapshot captures a point-in-time read of every counter.
type Snapshot struct {
	BytesToRead, BytesRead               int64
	BlocksToHash, BlocksHashed           int64
	BytesToWrite, BytesWritten           int64
	BlocksWriteFailed                    int64
}

// Load reads every counter without synchronizing them against each
// other; callers treat the result as an approximate live snapshot.
func (c *Counters) Load() Snapshot {
	return Snapshot{
		BytesToRead:       c.BytesToRead.Load(),
		BytesRead:         c.BytesRead.Load(),
		BlocksToHash:      c.BlocksToHash.Load(),
		BlocksHashed:      c.BlocksHashed.Load(),
		BytesToWrite:      c.BytesToWrite.Load(),
		BytesWritten:      c.BytesWritten.Load(),
		BlocksWriteFailed: c.BlocksWriteFailed.Load(),
	}
}

// Add folds another snapshot's deltas into an accumulator snapshot,
// used by the task to roll a finished session's counters into its
// running total.
func (s *Snapshot) Add(other Snapshot) {
	s.BytesToRead += other.BytesToRead
	s.BytesRead += other.BytesRead
	s.BlocksToHash += other.BlocksToHash
	s.BlocksHashed += other.BlocksHashed
	s.BytesToWrite += other.BytesToWrite
	s.BytesWritten += other.BytesWritten
	s.BlocksWriteFailed += other.BlocksWriteFailed
}

// SharedContext is the mutable state one session's three stages share:
// the allocator, the two queues, the three progress bitmaps, the
// counters, and (when hashing is enabled) the digest tables.
type SharedContext struct {
	Config SharedConfig

	Pool          *blockpool.Pool
	HashQueue     *blockqueue.Queue // reader -> hasher; nil if hashing disabled
	WriteQueue    *blockqueue.Queue // hasher (or reader) -> writer

	Written           *bitmap.Bitmap
	Processed         *bitmap.Bitmap
	HashingProcessed  *bitmap.Bitmap

	Counters Counters

	PrevDigest   *digest.Table // nil unless Mode == ModeDiff
	LatestDigest *digest.Table // nil unless HasherEnabled

	Source rawio.ReaderWriter
	Sink   rawio.ReaderWriter
}

// NewSharedContext allocates a session's pool, queues, and bitmaps for
// cfg, ready to be handed to a Reader, optional Hasher, and Writer.
func NewSharedContext(cfg SharedConfig, blockCount, poolBlockCount, queueCapacity int) *SharedContext {
	sc := &SharedContext{
		Config:    cfg,
		Pool:      blockpool.New(cfg.BlockSize, poolBlockCount),
		WriteQueue: blockqueue.New(queueCapacity),

		Written:          bitmap.New(blockCount),
		Processed:        bitmap.New(blockCount),
		HashingProcessed: bitmap.New(blockCount),
	}
	if cfg.HasherEnabled {
		sc.HashQueue = blockqueue.New(queueCapacity)
	}
	return sc
}
