package pipeline

import (
	"bytes"
	"testing"
	"time"
)

func fillPattern(buf []byte) {
	for i := range buf {
		buf[i] = byte(i % 256)
	}
}

func TestReaderWriterDirectNoHasher(t *testing.T) {
	const volumeSize = 1 << 20 // 1 MiB
	const blockSize = 64 * 1024

	source := newMemIO(volumeSize)
	fillPattern(source.buf)
	sink := newMemIO(volumeSize)

	cfg := SharedConfig{
		SessionOffset: 0,
		SessionLength: volumeSize,
		BlockSize:     blockSize,
		HasherEnabled: false,
	}
	ctx := NewSharedContext(cfg, cfg.BlockCount(), blockpoolDefaultCount, 8)
	ctx.Source = source
	ctx.Sink = sink

	r := NewReader(ctx)
	w := NewWriter(ctx)

	done := make(chan struct{})
	go func() { r.Run(); close(done) }()
	w.Run()
	<-done

	if r.Status() != StatusSucceeded {
		t.Fatalf("reader status = %v, want succeeded", r.Status())
	}
	if w.Status() != StatusSucceeded {
		t.Fatalf("writer status = %v, want succeeded", w.Status())
	}
	if !bytes.Equal(sink.buf, source.buf) {
		t.Fatal("sink bytes do not match source after direct copy")
	}
	if !ctx.Processed.AllSet() {
		t.Fatal("not every block marked processed")
	}
	if got := ctx.Pool.FreeCount(); got != ctx.Pool.Capacity() {
		t.Fatalf("pool FreeCount = %d after run, want %d (fully reclaimed)", got, ctx.Pool.Capacity())
	}
}

func TestWriterSkipsAllZeroBlocks(t *testing.T) {
	const volumeSize = 256 * 1024
	const blockSize = 64 * 1024

	source := newMemIO(volumeSize) // all zero
	sink := newMemIO(volumeSize)
	for i := range sink.buf {
		sink.buf[i] = 0xff // prefill so we can tell a skip from a zero-write
	}

	cfg := SharedConfig{
		SessionOffset:  0,
		SessionLength:  volumeSize,
		BlockSize:      blockSize,
		HasherEnabled:  false,
		SkipEmptyBlock: true,
	}
	ctx := NewSharedContext(cfg, cfg.BlockCount(), blockpoolDefaultCount, 8)
	ctx.Source = source
	ctx.Sink = sink

	r := NewReader(ctx)
	w := NewWriter(ctx)
	done := make(chan struct{})
	go func() { r.Run(); close(done) }()
	w.Run()
	<-done

	for _, b := range sink.buf {
		if b != 0xff {
			t.Fatal("skip_empty_block still issued a write to the sink")
		}
	}
	if !ctx.Processed.AllSet() {
		t.Fatal("skipped blocks were not marked processed")
	}
}

func TestReaderAbortIsPrompt(t *testing.T) {
	const volumeSize = 64 << 20
	const blockSize = 64 * 1024

	source := newMemIO(volumeSize)
	sink := newMemIO(volumeSize)
	cfg := SharedConfig{SessionOffset: 0, SessionLength: volumeSize, BlockSize: blockSize}
	ctx := NewSharedContext(cfg, cfg.BlockCount(), blockpoolDefaultCount, 4)
	ctx.Source = source
	ctx.Sink = sink

	r := NewReader(ctx)
	w := NewWriter(ctx)
	readerDone := make(chan struct{})
	go func() { r.Run(); close(readerDone) }()
	writerDone := make(chan struct{})
	go func() { w.Run(); close(writerDone) }()

	time.Sleep(5 * time.Millisecond)
	r.Abort()
	w.Abort()

	select {
	case <-readerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not terminate promptly after Abort")
	}
	select {
	case <-writerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not terminate promptly after Abort")
	}
	if got := ctx.Pool.FreeCount(); got != ctx.Pool.Capacity() {
		t.Fatalf("pool FreeCount = %d after abort, want %d (fully reclaimed)", got, ctx.Pool.Capacity())
	}
}

const blockpoolDefaultCount = 8
