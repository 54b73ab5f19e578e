// Package blockqueue implements the bounded producer/consumer channel of
// Block descriptors connecting the reader, hasher, and writer stages of a
// session pipeline.
package blockqueue

import "sync"

// Block is a transient in-flight unit of pipeline work. Buf is borrowed
// from a blockpool.Pool; the writer (or a hasher that drops an unchanged
// block) is responsible for returning it.
type Block struct {
	Buf          []byte
	Index        int
	VolumeOffset int64
	Length       int
}

// DefaultCapacity is the default queue depth.
const DefaultCapacity = 64

// Queue is a FIFO of Block values with a capacity, guarded by a mutex and
// two condition variables (not-empty, not-full), plus a one-way finished
// flag signaling end-of-stream.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []Block
	capacity int
	finished bool
}

// New creates an empty queue of the given capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		panic("blockqueue: capacity must be positive")
	}
	q := &Queue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// BlockingPush waits until there is room or the queue is finished. It
// returns false if the queue was already finished, in which case v was
// not enqueued and the caller must dispose of (free) its buffer itself.
func (q *Queue) BlockingPush(v Block) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) >= q.capacity && !q.finished {
		q.notFull.Wait()
	}
	if q.finished {
		return false
	}
	q.items = append(q.items, v)
	q.notEmpty.Signal()
	return true
}

// BlockingPop waits until the queue is non-empty or finished. It returns
// false only when the queue is both empty and finished, which signals
// end-of-stream to the consumer; a finished-but-nonempty queue still
// drains normally in FIFO order.
func (q *Queue) BlockingPop() (Block, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.finished {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		return Block{}, false
	}
	v := q.items[0]
	q.items = q.items[1:]
	q.notFull.Signal()
	return v, true
}

// TryPush is the non-blocking variant of BlockingPush: it returns false
// immediately if the queue is full or finished.
func (q *Queue) TryPush(v Block) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.finished || len(q.items) >= q.capacity {
		return false
	}
	q.items = append(q.items, v)
	q.notEmpty.Signal()
	return true
}

// TryPop is the non-blocking variant of BlockingPop.
func (q *Queue) TryPop() (Block, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Block{}, false
	}
	v := q.items[0]
	q.items = q.items[1:]
	q.notFull.Signal()
	return v, true
}

// Finish marks the queue finished and wakes every waiter. It is a
// programmer error to call Finish twice on the same queue: the
// concurrency model assigns exactly one owner per queue (the reader for
// the hashing queue, the last exiting hasher — or the reader, if hashing
// is disabled — for the write queue).
func (q *Queue) Finish() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.finished {
		panic("blockqueue: Finish called twice on the same queue")
	}
	q.finished = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Len reports the current number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
