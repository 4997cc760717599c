package render

import (
	"container/list"
	"sync"

	"github.com/drummonds/pagerender/document"
	"github.com/dustin/go-humanize"
)

const megabyte = 1 << 20

// CacheStats is a snapshot of the render cache
type CacheStats struct {
	Enabled    bool   `json:"enabled"`
	Entries    int    `json:"entries"`
	Bytes      int64  `json:"bytes"`
	MaxBytes   int64  `json:"maxBytes"`
	MaxEntries int    `json:"maxEntries"`
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Evictions  uint64 `json:"evictions"`
}

type cacheEntry struct {
	page document.Handle
	opts Options
	buf  *ImageBuffer
}

// renderCache keeps the last render of each page, least recently used first
// out. One mutex covers lookup, insert and eviction.
type renderCache struct {
	mu         sync.Mutex
	enabled    bool
	maxBytes   int64
	maxEntries int // 0 means no entry bound
	bytes      int64
	lru        *list.List
	items      map[document.Handle]*list.Element

	hits, misses, evictions uint64
}

func newRenderCache(enabled bool, sizeMB, maxEntries int) *renderCache {
	return &renderCache{
		enabled:    enabled,
		maxBytes:   int64(sizeMB) * megabyte,
		maxEntries: maxEntries,
		lru:        list.New(),
		items:      make(map[document.Handle]*list.Element),
	}
}

// get returns a copy of the cached buffer when page was last rendered with opts
func (c *renderCache) get(page document.Handle, opts Options) (*ImageBuffer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return nil, false
	}
	el, ok := c.items[page]
	if !ok || el.Value.(*cacheEntry).opts != opts {
		c.misses++
		return nil, false
	}
	c.hits++
	c.lru.MoveToFront(el)
	return el.Value.(*cacheEntry).buf.Clone(), true
}

// put stores a private copy of buf as the page's entry
func (c *renderCache) put(page document.Handle, opts Options, buf *ImageBuffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled || int64(buf.Len()) > c.maxBytes {
		return
	}
	if el, ok := c.items[page]; ok {
		c.removeElement(el)
	}
	entry := &cacheEntry{page: page, opts: opts, buf: buf.Clone()}
	c.items[page] = c.lru.PushFront(entry)
	c.bytes += int64(buf.Len())
	c.evict()
}

func (c *renderCache) evict() {
	for c.lru.Len() > 0 && (c.bytes > c.maxBytes || (c.maxEntries > 0 && c.lru.Len() > c.maxEntries)) {
		el := c.lru.Back()
		entry := el.Value.(*cacheEntry)
		c.removeElement(el)
		c.evictions++
		Logger.Debug("Evicted render from cache",
			"page", entry.page.String(),
			"size", humanize.IBytes(uint64(entry.buf.Len())),
			"cached", humanize.IBytes(uint64(c.bytes)))
	}
}

func (c *renderCache) removeElement(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	c.lru.Remove(el)
	delete(c.items, entry.page)
	c.bytes -= int64(entry.buf.Len())
}

func (c *renderCache) invalidate(page document.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[page]; ok {
		c.removeElement(el)
	}
}

func (c *renderCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Init()
	c.items = make(map[document.Handle]*list.Element)
	c.bytes = 0
}

// setEnabled toggles caching; disabling drops every entry
func (c *renderCache) setEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
	if !enabled {
		c.clear()
	}
}

func (c *renderCache) setSizeMB(mb int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxBytes = int64(mb) * megabyte
	c.evict()
}

func (c *renderCache) setMaxEntries(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxEntries = n
	c.evict()
}

func (c *renderCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Enabled:    c.enabled,
		Entries:    c.lru.Len(),
		Bytes:      c.bytes,
		MaxBytes:   c.maxBytes,
		MaxEntries: c.maxEntries,
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
	}
}
