package rawio

import (
	"hash/maphash"
	"os"
	"sync"

	"github.com/dgryski/go-tinylfu"
)

// HandleCache bounds the number of concurrently open *os.File handles
// when a task touches many segment files at once (a bin_fragmented copy
// with dozens of .part{N} files, or the inspection mount reading across
// all of them). Eviction runs the standard TinyLFU admission policy so
// hot segments stay resident and cold ones get their descriptors closed.
type HandleCache struct {
	mu       sync.Mutex
	cache    *tinylfu.T[string, *os.File]
	open     func(path string) (*os.File, error)
	seed     maphash.Seed
	live     map[string]*os.File
	capacity int
}

// NewHandleCache creates a cache holding at most capacity open handles,
// opened on demand with open.
func NewHandleCache(capacity int, open func(path string) (*os.File, error)) *HandleCache {
	c := &HandleCache{open: open, seed: maphash.MakeSeed(), live: make(map[string]*os.File), capacity: capacity}
	c.cache = tinylfu.New[string, *os.File](capacity, capacity*10, c.hash, tinylfu.OnEvict(c.evict))
	return c
}

func (c *HandleCache) hash(path string) uint64 {
	return maphash.String(c.seed, path)
}

func (c *HandleCache) evict(path string, f *os.File) {
	delete(c.live, path)
	f.Close()
}

// Get returns the open handle for path, opening it (and possibly evicting
// a colder handle) if it is not already cached.
func (c *HandleCache) Get(path string) (*os.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f, ok := c.cache.Get(path); ok {
		return f, nil
	}
	f, err := c.open(path)
	if err != nil {
		return nil, err
	}
	c.live[path] = f
	c.cache.Add(path, f)
	return f, nil
}

// CloseAll closes every cached handle and resets the cache. Call it when
// the owning session or mount is torn down.
func (c *HandleCache) CloseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for path, f := range c.live {
		f.Close()
		delete(c.live, path)
	}
	c.cache = tinylfu.New[string, *os.File](c.capacity, c.capacity*10, c.hash, tinylfu.OnEvict(c.evict))
}

// Close satisfies io.Closer so a HandleCache can sit directly in a
// Task's extraClosers alongside plain file handles.
func (c *HandleCache) Close() error {
	c.CloseAll()
	return nil
}
