package pipeline

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/xuranus/volumebackup/internal/digest"
)

// MaxHasherWorkers caps the hasher worker count regardless of processor
// count.
const MaxHasherWorkers = 32

// HasherWorkerCount returns the default number of hasher workers: one
// per processor, capped at MaxHasherWorkers.
func HasherWorkerCount() int {
	n := runtime.NumCPU()
	if n > MaxHasherWorkers {
		n = MaxHasherWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Hasher is stage 2: N worker goroutines pop from the hashing queue,
// compute each block's SHA-256 into the latest digest table, and in DIFF
// mode drop blocks whose digest is unchanged from the previous copy.
type Hasher struct {
	ctx     *SharedContext
	workers int
	abort   atomic.Bool
	status  atomic.Int32
	err     error
	errOnce sync.Once
}

// NewHasher constructs a Hasher with workers worker goroutines.
func NewHasher(ctx *SharedContext, workers int) *Hasher {
	if workers < 1 {
		workers = 1
	}
	return &Hasher{ctx: ctx, workers: workers}
}

func (h *Hasher) Abort() { h.abort.Store(true) }

func (h *Hasher) Status() Status { return Status(h.status.Load()) }

func (h *Hasher) Err() error { return h.err }

// Run starts all worker goroutines and blocks until every one exits. The
// last worker to exit calls Finish on the write queue exactly once.
func (h *Hasher) Run() {
	var wg sync.WaitGroup
	var remaining atomic.Int32
	remaining.Store(int32(h.workers))
	failed := atomic.Bool{}
	aborted := atomic.Bool{}

	wg.Add(h.workers)
	for i := 0; i < h.workers; i++ {
		go func() {
			defer wg.Done()
			h.worker(&failed, &aborted)
			if remaining.Add(-1) == 0 {
				h.ctx.WriteQueue.Finish()
			}
		}()
	}
	wg.Wait()

	switch {
	case failed.Load():
		h.status.Store(int32(StatusFailed))
	case aborted.Load():
		h.status.Store(int32(StatusAborted))
	default:
		h.status.Store(int32(StatusSucceeded))
	}
}

func (h *Hasher) worker(failed, aborted *atomic.Bool) {
	for {
		if h.abort.Load() {
			aborted.Store(true)
			h.drainAndFree()
			return
		}

		blk, ok := h.ctx.HashQueue.BlockingPop()
		if !ok {
			return
		}

		sum := digest.Sum(blk.Buf)
		h.ctx.LatestDigest.SetSlot(blk.Index, sum[:])
		h.ctx.Counters.BlocksHashed.Add(1)

		if h.ctx.Config.Mode == ModeDiff && h.ctx.PrevDigest != nil {
			if h.ctx.LatestDigest.Equal(blk.Index, h.ctx.PrevDigest) {
				h.ctx.Pool.Free(blk.Buf)
				h.ctx.Processed.Set(blk.Index)
				h.ctx.HashingProcessed.Set(blk.Index)
				continue
			}
		}

		h.ctx.Counters.BytesToWrite.Add(int64(blk.Length))
		if !h.ctx.WriteQueue.BlockingPush(blk) {
			h.ctx.Pool.Free(blk.Buf)
		}
		h.ctx.HashingProcessed.Set(blk.Index)
	}
}

// drainAndFree pops and frees any blocks left in the hashing queue after
// an abort, so the allocator is fully reclaimed promptly.
func (h *Hasher) drainAndFree() {
	for {
		blk, ok := h.ctx.HashQueue.TryPop()
		if !ok {
			return
		}
		h.ctx.Pool.Free(blk.Buf)
	}
}
