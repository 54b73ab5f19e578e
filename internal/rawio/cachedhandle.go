package rawio

import "os"

// CachedHandle is a ReaderWriter over one path whose underlying *os.File
// is borrowed from a HandleCache on every operation, rather than held
// open for the CachedHandle's own lifetime. A fragmented copy with many
// .part{N} segments can address every one of them through a CachedHandle
// while the cache itself bounds how many descriptors are open at once.
type CachedHandle struct {
	cache *HandleCache
	path  string
}

// NewCachedHandle returns a ReaderWriter for path backed by cache.
func NewCachedHandle(cache *HandleCache, path string) *CachedHandle {
	return &CachedHandle{cache: cache, path: path}
}

func (c *CachedHandle) ReadAt(buf []byte, off int64) (int, error) {
	f, err := c.cache.Get(c.path)
	if err != nil {
		return 0, err
	}
	return f.ReadAt(buf, off)
}

func (c *CachedHandle) WriteAt(buf []byte, off int64) (int, error) {
	f, err := c.cache.Get(c.path)
	if err != nil {
		return 0, err
	}
	return f.WriteAt(buf, off)
}

func (c *CachedHandle) Flush() error {
	f, err := c.cache.Get(c.path)
	if err != nil {
		return err
	}
	return f.Sync()
}

func (c *CachedHandle) Ok() bool { return true }

func (c *CachedHandle) Handle() *os.File {
	f, err := c.cache.Get(c.path)
	if err != nil {
		return nil
	}
	return f
}

// Close is a no-op: the handle's descriptor is owned by the cache and
// closed by HandleCache.Close at task or mount teardown, not here.
func (c *CachedHandle) Close() error { return nil }
