package pipeline

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/xuranus/volumebackup/internal/blockqueue"
)

// Status mirrors the terminal states a stage (and, by aggregation, a
// session) can reach.
type Status int

const (
	StatusRunning Status = iota
	StatusSucceeded
	StatusFailed
	StatusAborted
)

// allocatorRetryInterval is how long a stage backs off before retrying
// an exhausted block pool.
var allocatorRetryInterval = time.Second

// Reader is stage 1: it reads the source in block-sized chunks starting
// from the first unprocessed index, pushing each block to the hashing
// queue if a hasher is attached, or straight to the write queue.
type Reader struct {
	ctx    *SharedContext
	abort  atomic.Bool
	status atomic.Int32
	err    error
}

// NewReader constructs a Reader over ctx. ctx.Source must already be
// open for reading.
func NewReader(ctx *SharedContext) *Reader {
	return &Reader{ctx: ctx}
}

// Abort requests the reader stop at its next loop iteration.
func (r *Reader) Abort() { r.abort.Store(true) }

// Status reports the reader's terminal status, valid after Run returns.
func (r *Reader) Status() Status { return Status(r.status.Load()) }

// Err returns the error that caused a failed status, if any.
func (r *Reader) Err() error { return r.err }

// downstream returns whichever queue the reader feeds: the hashing queue
// if a hasher is attached, otherwise the write queue directly.
func (r *Reader) downstream() *blockqueue.Queue {
	if r.ctx.Config.HasherEnabled {
		return r.ctx.HashQueue
	}
	return r.ctx.WriteQueue
}

// Run executes the reader loop to completion. On return the reader has
// called Finish on whichever queue it feeds, exactly once, unless the
// session has a hasher (in which case the hasher finishes the write
// queue instead).
func (r *Reader) Run() {
	cfg := r.ctx.Config
	q := r.downstream()

	startIndex := r.ctx.Processed.First()
	blockCount := cfg.BlockCount()
	currentOffset := cfg.SessionOffset + int64(startIndex)*int64(cfg.BlockSize)
	sessionEnd := cfg.SessionOffset + cfg.SessionLength

	r.ctx.Counters.BytesToRead.Store(cfg.SessionLength - int64(startIndex)*int64(cfg.BlockSize))

	index := startIndex
	for index < blockCount {
		if r.abort.Load() {
			q.Finish()
			r.status.Store(int32(StatusAborted))
			return
		}

		var buf []byte
		for {
			buf = r.ctx.Pool.Allocate()
			if buf != nil {
				break
			}
			if r.abort.Load() {
				q.Finish()
				r.status.Store(int32(StatusAborted))
				return
			}
			time.Sleep(allocatorRetryInterval)
		}

		remaining := sessionEnd - currentOffset
		n := int64(cfg.BlockSize)
		if remaining < n {
			n = remaining
		}
		if n <= 0 {
			r.ctx.Pool.Free(buf)
			break
		}

		read, err := r.ctx.Source.ReadAt(buf[:n], currentOffset)
		if err != nil && int64(read) < n {
			r.ctx.Pool.Free(buf)
			q.Finish()
			r.status.Store(int32(StatusFailed))
			r.err = fmt.Errorf("pipeline: reader failed at offset %d: %w", currentOffset, err)
			slog.Error("session reader failed", "offset", currentOffset, "err", err)
			return
		}

		blk := blockqueue.Block{
			Buf:          buf[:n],
			Index:        index,
			VolumeOffset: cfg.SessionOffset + (currentOffset - cfg.SessionOffset),
			Length:       int(n),
		}
		if !q.BlockingPush(blk) {
			// Queue was finished out from under us — a programmer
			// error in session wiring, since the reader is the sole
			// owner of this transition when it feeds the queue
			// directly, and never finishes a queue a hasher owns.
			r.ctx.Pool.Free(buf)
			panic("pipeline: reader's downstream queue finished prematurely")
		}

		r.ctx.Counters.BytesRead.Add(n)
		currentOffset += n
		index++
	}

	q.Finish()
	r.status.Store(int32(StatusSucceeded))
}
