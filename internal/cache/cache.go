// Package cache implements the paged cache over a record store (spec
// §4.J): viewers scroll in ranges, so caching whole pages rather than
// individual rows maximises sequential-read throughput from the store
// and keeps eviction metadata small.
package cache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"logcore/internal/metrics"
	"logcore/internal/store"
)

// Source is the subset of store.Engine the cache reads through.
type Source interface {
	Bounds() (oldest, newest int64, hasRows bool)
	ReadRange(ctx context.Context, fromID int64, count int, callback func(store.Row) error) error
}

type page struct {
	firstID int64
	rows    []store.Row
}

func (p *page) covers(id int64) bool {
	return id >= p.firstID && id < p.firstID+int64(len(p.rows))
}

// Cache is a bounded set of non-overlapping pages over a Source.
type Cache struct {
	source   Source
	pageSize int

	mu    sync.Mutex
	pages *lru.Cache[int64, *page] // keyed by page.firstID
}

// New returns a Cache holding up to maxPages pages of pageSize rows
// each.
func New(source Source, maxPages, pageSize int) (*Cache, error) {
	if maxPages <= 0 {
		maxPages = 16
	}
	if pageSize <= 0 {
		pageSize = 256
	}
	pages, err := lru.New[int64, *page](maxPages)
	if err != nil {
		return nil, err
	}
	return &Cache{source: source, pageSize: pageSize, pages: pages}, nil
}

// Get translates index to firstMessageId + offset and returns the
// record at that absolute id, reading a fresh page from the source
// and evicting the least-recently-used page if the cache is full when
// no cached page already covers it.
func (c *Cache) Get(ctx context.Context, index int64) (store.Row, bool, error) {
	oldest, _, hasRows := c.source.Bounds()
	if !hasRows {
		return store.Row{}, false, nil
	}
	id := oldest + index

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.findCoveringLocked(id); ok {
		metrics.CacheHitsTotal.Inc()
		row := p.rows[id-p.firstID]
		return row, true, nil
	}
	metrics.CacheMissesTotal.Inc()

	firstID := id - (id % int64(c.pageSize))
	pageEnd := firstID + int64(c.pageSize)
	if firstID < oldest {
		firstID = oldest
	}
	p := &page{firstID: firstID}
	err := c.source.ReadRange(ctx, firstID, int(pageEnd-firstID), func(r store.Row) error {
		p.rows = append(p.rows, r)
		return nil
	})
	if err != nil {
		return store.Row{}, false, err
	}
	if !p.covers(id) {
		return store.Row{}, false, nil
	}
	c.pages.Add(firstID, p)
	metrics.CachePagesResident.Set(float64(c.pages.Len()))
	return p.rows[id-p.firstID], true, nil
}

func (c *Cache) findCoveringLocked(id int64) (*page, bool) {
	for _, key := range c.pages.Keys() {
		p, ok := c.pages.Peek(key)
		if ok && p.covers(id) {
			c.pages.Get(key) // bump recency
			return p, true
		}
	}
	return nil, false
}

// PruneNotification discards every cached page that overlaps
// [fromID, toID] (inclusive). Record ids are stable in this design —
// a prune never renumbers surviving rows — so pages above the pruned
// range need no re-anchoring, only pages that overlapped it are
// evicted.
func (c *Cache) PruneNotification(fromID, toID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.pages.Keys() {
		p, ok := c.pages.Peek(key)
		if !ok {
			continue
		}
		lastID := p.firstID + int64(len(p.rows)) - 1
		if p.firstID <= toID && lastID >= fromID {
			c.pages.Remove(key)
		}
	}
	metrics.CachePagesResident.Set(float64(c.pages.Len()))
}

// Invalidate drops every cached page, used after a configuration swap
// or a full clear.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages.Purge()
	metrics.CachePagesResident.Set(0)
}
