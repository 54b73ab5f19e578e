package pipeline

import (
	"log/slog"
	"sync/atomic"
)

// Writer is stage 3: it pops blocks from the write queue, writes them to
// the sink at the block's volume offset, marks the bitmaps, and frees
// the buffer. It never stops draining the queue on a per-block I/O
// failure — only accumulates a failure count — so the reader and hasher
// are never starved by one bad block.
type Writer struct {
	ctx    *SharedContext
	abort  atomic.Bool
	status atomic.Int32
}

func NewWriter(ctx *SharedContext) *Writer {
	return &Writer{ctx: ctx}
}

func (w *Writer) Abort() { w.abort.Store(true) }

func (w *Writer) Status() Status { return Status(w.status.Load()) }

// Run drains the write queue until end-of-stream or abort, then flushes
// the sink.
func (w *Writer) Run() {
	for {
		if w.abort.Load() {
			w.drainAndFree()
			w.status.Store(int32(StatusAborted))
			return
		}

		blk, ok := w.ctx.WriteQueue.BlockingPop()
		if !ok {
			break
		}

		if w.ctx.Config.SkipEmptyBlock && isAllZero(blk.Buf) {
			w.ctx.Pool.Free(blk.Buf)
			w.ctx.Written.Set(blk.Index)
			w.ctx.Processed.Set(blk.Index)
			continue
		}

		n, err := w.ctx.Sink.WriteAt(blk.Buf, blk.VolumeOffset)
		if err != nil || n != len(blk.Buf) {
			// A short write is treated as fatal to this block, not
			// retried: the surrounding code has no documented
			// retry contract for a partial write.
			slog.Error("session writer block failed", "index", blk.Index, "offset", blk.VolumeOffset, "err", err)
			w.ctx.Counters.BlocksWriteFailed.Add(1)
			w.ctx.Pool.Free(blk.Buf)
			continue
		}

		w.ctx.Written.Set(blk.Index)
		w.ctx.Processed.Set(blk.Index)
		w.ctx.Pool.Free(blk.Buf)
		w.ctx.Counters.BytesWritten.Add(int64(blk.Length))
	}

	if err := w.ctx.Sink.Flush(); err != nil {
		slog.Error("session writer flush failed", "err", err)
		w.ctx.Counters.BlocksWriteFailed.Add(1)
	}

	if w.ctx.Counters.BlocksWriteFailed.Load() > 0 {
		w.status.Store(int32(StatusFailed))
	} else {
		w.status.Store(int32(StatusSucceeded))
	}
}

func (w *Writer) drainAndFree() {
	for {
		blk, ok := w.ctx.WriteQueue.TryPop()
		if !ok {
			return
		}
		w.ctx.Pool.Free(blk.Buf)
	}
}

func isAllZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}
