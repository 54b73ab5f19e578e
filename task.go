// Package volumebackup is the public task facade: build a backup or
// restore Task from a config struct, start it, and poll its status.
// Everything else — allocator, queues, bitmaps, digest tables, sessions,
// resource management — is orchestrated from internal/ packages.
package volumebackup

import (
	"io"
	"sync"
	"time"

	"github.com/xuranus/volumebackup/internal/checkpoint"
	"github.com/xuranus/volumebackup/internal/pipeline"
	"github.com/xuranus/volumebackup/internal/resource"
	"github.com/xuranus/volumebackup/internal/session"
)

// TaskStatus mirrors the Session state machine at the task level, with
// two extra states: init (built, not yet started) and aborting (abort
// requested, current session still winding down). Succeed, aborted and
// failed are the sticky terminal states; aborting is not terminal.
type TaskStatus int

const (
	StatusInit TaskStatus = iota
	StatusRunning
	StatusSucceed
	StatusAborting
	StatusAborted
	StatusFailed
)

func (s TaskStatus) String() string {
	switch s {
	case StatusInit:
		return "init"
	case StatusRunning:
		return "running"
	case StatusSucceed:
		return "succeed"
	case StatusAborting:
		return "aborting"
	case StatusAborted:
		return "aborted"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// sessionSpec bundles one session's construction config with the
// resources (file handles, mapped digest tables) that must be closed
// once that session terminates, win or lose.
type sessionSpec struct {
	cfg     session.Config
	closers []io.Closer
}

func (s *sessionSpec) close() {
	for _, c := range s.closers {
		c.Close()
	}
}

// Task drives a sequence of Sessions, one per copy segment, to
// completion, folding their statistics together and surfacing one
// aggregate status and error code.
type Task struct {
	copyName       string
	sessions       []*sessionSpec
	resources      *resource.Manager
	checkpoints    *checkpoint.Store
	clearOnSucceed bool
	pollInterval   time.Duration
	// extraClosers are shared handles (e.g. one volume file used by
	// every session) closed once the whole task terminates,
	// rather than per-session.
	extraClosers []io.Closer

	// zeroCopy, when set, bypasses the session pipeline entirely per
	// §4.10.3: run() drives this loop directly instead of iterating
	// sessions.
	zeroCopy *zeroCopyPlan

	// onSucceed runs after every session has succeeded but before the
	// task reports success. The backup task uses it to register the copy
	// in the Copy Registry (CopyMeta itself was already persisted during
	// prepare()); restore and zero-copy restore leave it nil.
	onSucceed func() error

	mu             sync.Mutex
	status         TaskStatus
	err            error
	code           ErrorCode
	statistics     pipeline.Snapshot
	currentSession *session.Session
	abortSignal    chan struct{}
	abortOnce      sync.Once
	done           chan struct{}
}

func newTask(copyName string, sessions []*sessionSpec, resources *resource.Manager, checkpoints *checkpoint.Store, clearOnSucceed bool, pollInterval time.Duration) *Task {
	return &Task{
		copyName:       copyName,
		sessions:       sessions,
		resources:      resources,
		checkpoints:    checkpoints,
		clearOnSucceed: clearOnSucceed,
		pollInterval:   pollInterval,
		status:         StatusInit,
		abortSignal:    make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start launches the task's sessions in order on a background
// goroutine and returns immediately with whether the launch itself
// succeeded (it always does once a Task has been built; failures
// surface later via GetStatus/GetErrorCode).
func (t *Task) Start() bool {
	t.mu.Lock()
	if t.status != StatusInit {
		t.mu.Unlock()
		return false
	}
	t.status = StatusRunning
	t.mu.Unlock()

	go t.run()
	return true
}

func (t *Task) run() {
	defer close(t.done)
	defer t.resources.Close()
	defer func() {
		for _, c := range t.extraClosers {
			c.Close()
		}
	}()

	if t.zeroCopy != nil {
		t.runZeroCopy()
		return
	}

	for _, spec := range t.sessions {
		select {
		case <-t.abortSignal:
			spec.close()
			t.finish(StatusAborted, nil)
			return
		default:
		}

		sess, err := session.New(spec.cfg)
		if err != nil {
			spec.close()
			t.finish(StatusFailed, err)
			return
		}
		sess.Start()

		t.mu.Lock()
		t.currentSession = sess
		t.mu.Unlock()

		st := t.runSession(sess)
		spec.close()

		t.mu.Lock()
		t.statistics.Add(sess.Statistics())
		t.currentSession = nil
		t.mu.Unlock()

		switch st {
		case session.StatusFailed:
			t.finish(StatusFailed, sess.Err())
			return
		case session.StatusAborted:
			t.finish(StatusAborted, nil)
			return
		}
	}

	if t.clearOnSucceed && t.checkpoints != nil {
		t.checkpoints.Clear(t.copyName)
	}
	if t.onSucceed != nil {
		if err := t.onSucceed(); err != nil {
			t.finish(StatusFailed, err)
			return
		}
	}
	t.finish(StatusSucceed, nil)
}

// runZeroCopy drives the bypass restore path: no allocator, no queues,
// no bitmap, not checkpointed. Counters advance in lockstep with bytes
// moved by each kernel-assisted copy.
func (t *Task) runZeroCopy() {
	plan := t.zeroCopy
	offset := plan.sessionOffset
	end := plan.sessionOffset + plan.sessionLength

	for offset < end {
		select {
		case <-t.abortSignal:
			t.finish(StatusAborted, nil)
			return
		default:
		}

		sliceLen := plan.blockSize
		if remaining := end - offset; remaining < sliceLen {
			sliceLen = remaining
		}

		n, err := kernelCopy(plan.sink, plan.source, offset, offset, sliceLen)
		if err != nil {
			t.finish(StatusFailed, newCopyError("restore", t.copyName, CopyAccessDenied, err))
			return
		}

		t.mu.Lock()
		t.statistics.BytesRead += n
		t.statistics.BytesWritten += n
		t.mu.Unlock()

		offset += n
	}

	t.finish(StatusSucceed, nil)
}

// runSession starts a ticker that polls for abort requests and live
// statistics every pollInterval, while a session's Wait() runs on its
// own goroutine so the poll loop is never blocked by it.
func (t *Task) runSession(sess *session.Session) session.Status {
	waitCh := make(chan session.Status, 1)
	go func() { waitCh <- sess.Wait() }()

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case st := <-waitCh:
			return st
		case <-ticker.C:
			select {
			case <-t.abortSignal:
				sess.Abort()
			default:
			}
		}
	}
}

func (t *Task) finish(status TaskStatus, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusAborted || t.status == StatusFailed || t.status == StatusSucceed {
		return
	}
	t.status = status
	t.err = err
	t.code = errorCode(err)
}

// IsTerminated reports whether the task has reached any of its three
// terminal states.
func (t *Task) IsTerminated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status == StatusSucceed || t.status == StatusAborted || t.status == StatusFailed
}

// GetStatus returns the task's current status.
func (t *Task) GetStatus() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// GetStatistics returns every completed session's folded counters plus
// the in-flight session's live counters, if one is running.
func (t *Task) GetStatistics() pipeline.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	live := t.statistics
	if t.currentSession != nil {
		live.Add(t.currentSession.Statistics())
	}
	return live
}

// GetErrorCode returns the stable error code for a failed task, or
// Success otherwise.
func (t *Task) GetErrorCode() ErrorCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.code
}

// Err returns the underlying Go error for a failed task, if any.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Abort requests the task to stop. It is idempotent: calling it from
// init moves the task directly to aborted and releases every resource
// the builder already acquired, since run() will never get a chance to;
// calling it while running moves it to aborting until the current
// session unwinds and run() performs that cleanup itself.
func (t *Task) Abort() {
	t.abortOnce.Do(func() { close(t.abortSignal) })

	t.mu.Lock()
	wasInit := t.status == StatusInit
	if wasInit {
		t.status = StatusAborted
	} else if t.status == StatusRunning {
		t.status = StatusAborting
	}
	t.mu.Unlock()

	if wasInit {
		for _, spec := range t.sessions {
			spec.close()
		}
		for _, c := range t.extraClosers {
			c.Close()
		}
		t.resources.Close()
		close(t.done)
	}
}

// Wait blocks until the task reaches a terminal state, for callers
// (tests, a synchronous CLI) that do not want to poll.
func (t *Task) Wait() TaskStatus {
	<-t.done
	return t.GetStatus()
}
