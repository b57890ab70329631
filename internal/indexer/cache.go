package indexer

import "sync"

// checksumCache remembers the content checksum last indexed for each
// mosaic-relative path, so unchanged files are skipped on re-index.
type checksumCache struct {
	mu sync.Mutex
	m  map[string]string
}

func newChecksumCache() *checksumCache {
	return &checksumCache{m: make(map[string]string)}
}

// Matches reports whether path was last indexed with the given checksum.
func (c *checksumCache) Matches(path, checksum string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[path] == checksum
}

func (c *checksumCache) Put(path, checksum string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[path] = checksum
}

func (c *checksumCache) Delete(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, path)
}

func (c *checksumCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[string]string)
}

// Replace swaps in a freshly loaded checksum map, typically sourced from
// the database on startup.
func (c *checksumCache) Replace(m map[string]string) {
	if m == nil {
		m = make(map[string]string)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = m
}

func (c *checksumCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}
