// Package session implements the Session component: one
// reader/hasher/writer pipeline run bounded to a single copy segment,
// with checkpoint load/flush around its lifetime.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xuranus/volumebackup/internal/bitmap"
	"github.com/xuranus/volumebackup/internal/checkpoint"
	"github.com/xuranus/volumebackup/internal/digest"
	"github.com/xuranus/volumebackup/internal/pipeline"
	"github.com/xuranus/volumebackup/internal/rawio"
)

// Status mirrors pipeline.Status at the session level.
type Status = pipeline.Status

const (
	StatusRunning   = pipeline.StatusRunning
	StatusSucceeded = pipeline.StatusSucceeded
	StatusFailed    = pipeline.StatusFailed
	StatusAborted   = pipeline.StatusAborted
)

// FlushInterval is how often a running session flushes its bitmap to the
// checkpoint store.
var FlushInterval = time.Second

// Session owns one reader/hasher/writer triple and their shared context.
type Session struct {
	Index int

	ctx    *pipeline.SharedContext
	reader *pipeline.Reader
	hasher *pipeline.Hasher
	writer *pipeline.Writer

	checkpoints *checkpoint.Store
	copyName    string

	mu     sync.Mutex
	status Status
	err    error

	stopFlush chan struct{}
	wg        sync.WaitGroup
}

// Config bundles everything needed to build a Session's context.
type Config struct {
	Index             int
	CopyName          string
	Cfg               pipeline.SharedConfig
	PoolBlockCount    int
	QueueCapacity     int
	HasherWorkers     int
	Source            rawio.ReaderWriter
	Sink              rawio.ReaderWriter
	PrevDigest        *digest.Table
	LatestDigest      *digest.Table
	Checkpoints       *checkpoint.Store
	CheckpointEnabled bool
}

// New builds a Session from cfg, loading any existing checkpoint for its
// index before the pipeline starts.
func New(cfg Config) (*Session, error) {
	blockCount := cfg.Cfg.BlockCount()

	s := &Session{
		Index:       cfg.Index,
		checkpoints: cfg.Checkpoints,
		copyName:    cfg.CopyName,
		status:      StatusRunning,
	}

	s.ctx = pipeline.NewSharedContext(cfg.Cfg, blockCount, cfg.PoolBlockCount, cfg.QueueCapacity)
	s.ctx.Source = cfg.Source
	s.ctx.Sink = cfg.Sink
	s.ctx.PrevDigest = cfg.PrevDigest
	s.ctx.LatestDigest = cfg.LatestDigest

	if cfg.CheckpointEnabled && cfg.Checkpoints != nil {
		if bm, err := cfg.Checkpoints.LoadBitmap(cfg.CopyName, cfg.Index, blockCount); err == nil {
			s.ctx.Processed = bm
		} else if !checkpoint.IsNotExist(err) {
			return nil, fmt.Errorf("session: load checkpoint for segment %d: %w", cfg.Index, err)
		}
	}

	s.reader = pipeline.NewReader(s.ctx)
	if cfg.Cfg.HasherEnabled {
		workers := cfg.HasherWorkers
		if workers <= 0 {
			workers = pipeline.HasherWorkerCount()
		}
		s.hasher = pipeline.NewHasher(s.ctx, workers)
	}
	s.writer = pipeline.NewWriter(s.ctx)

	return s, nil
}

// Start launches the reader, optional hasher, and writer goroutines and
// a periodic checkpoint flusher. It returns immediately.
func (s *Session) Start() {
	s.stopFlush = make(chan struct{})

	s.wg.Add(1)
	go func() { defer s.wg.Done(); s.reader.Run() }()
	if s.hasher != nil {
		s.wg.Add(1)
		go func() { defer s.wg.Done(); s.hasher.Run() }()
	}
	s.wg.Add(1)
	go func() { defer s.wg.Done(); s.writer.Run() }()

	go s.flushLoop()
}

func (s *Session) flushLoop() {
	t := time.NewTicker(FlushInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.flushCheckpoint()
		case <-s.stopFlush:
			return
		}
	}
}

func (s *Session) flushCheckpoint() {
	if s.checkpoints == nil {
		return
	}
	if err := s.checkpoints.SaveBitmap(s.copyName, s.Index, s.ctx.Processed); err != nil {
		slog.Error("session checkpoint flush failed", "segment", s.Index, "err", err)
	}
}

// Abort requests every stage to stop at its next loop iteration.
func (s *Session) Abort() {
	s.reader.Abort()
	if s.hasher != nil {
		s.hasher.Abort()
	}
	s.writer.Abort()
}

// Wait blocks until all three stages have terminated, then flushes a
// final checkpoint and computes the aggregate status: any-failed wins
// over aborted, which wins over succeeded.
func (s *Session) Wait() Status {
	s.wg.Wait()
	close(s.stopFlush)
	s.flushCheckpoint()

	statuses := []Status{s.reader.Status(), s.writer.Status()}
	if s.hasher != nil {
		statuses = append(statuses, s.hasher.Status())
	}

	final := StatusSucceeded
	for _, st := range statuses {
		if st == StatusFailed {
			final = StatusFailed
			break
		}
		if st == StatusAborted {
			final = StatusAborted
		}
	}
	s.mu.Lock()
	s.status = final
	if final == StatusFailed {
		s.err = s.reader.Err()
		if s.err == nil {
			s.err = fmt.Errorf("session: segment %d failed: %d block write(s) failed", s.Index, s.ctx.Counters.BlocksWriteFailed.Load())
		}
	}
	s.mu.Unlock()
	return final
}

// Statistics returns the current counters snapshot.
func (s *Session) Statistics() pipeline.Snapshot {
	return s.ctx.Counters.Load()
}

// Bitmap exposes the session's processed bitmap, e.g. for a checkpoint
// test to verify resume-from behavior.
func (s *Session) Bitmap() *bitmap.Bitmap {
	return s.ctx.Processed
}

// Err returns the first stage error observed, if the session failed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
