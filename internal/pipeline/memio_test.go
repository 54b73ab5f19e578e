package pipeline

import "os"

// memIO is a trivial in-memory rawio.ReaderWriter for pipeline tests.
type memIO struct {
	buf []byte
}

func newMemIO(size int) *memIO { return &memIO{buf: make([]byte, size)} }

func (m *memIO) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m.buf[off:])
	return n, nil
}

func (m *memIO) WriteAt(p []byte, off int64) (int, error) {
	n := copy(m.buf[off:], p)
	return n, nil
}

func (m *memIO) Flush() error       { return nil }
func (m *memIO) Ok() bool           { return true }
func (m *memIO) Handle() *os.File   { return nil }
func (m *memIO) Close() error       { return nil }
