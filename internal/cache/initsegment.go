// SPDX-License-Identifier: MIT

// Package cache provides the bounded init-segment cache: an LRU keyed by
// (url, byte range) with single-flight coalescing of concurrent misses.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hlsgate/hlsgate/internal/hls"
	"github.com/hlsgate/hlsgate/internal/metrics"
	"github.com/hlsgate/hlsgate/internal/upstream"
)

// Fetcher is the slice of the upstream client the cache needs.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers upstream.Headers, br *hls.ByteRange) (*upstream.Result, error)
}

type entry struct {
	key   string
	bytes []byte
}

// InitSegmentCache is safe for concurrent use. The mutex guards only the
// LRU bookkeeping; fetches run outside the lock and concurrent misses for
// the same key collapse into one upstream request.
type InitSegmentCache struct {
	fetcher      Fetcher
	fetchTimeout time.Duration
	capacity     int

	mu    sync.Mutex
	ll    *list.List
	items map[string]*list.Element

	group singleflight.Group
}

// New builds a cache holding at most capacity entries. Shared fetches run
// under their own deadline, detached from any single requester.
func New(capacity int, fetchTimeout time.Duration, fetcher Fetcher) *InitSegmentCache {
	if capacity < 1 {
		capacity = 1
	}
	return &InitSegmentCache{
		fetcher:      fetcher,
		fetchTimeout: fetchTimeout,
		capacity:     capacity,
		ll:           list.New(),
		items:        make(map[string]*list.Element),
	}
}

func cacheKey(url string, br *hls.ByteRange) string {
	if br == nil {
		return url
	}
	return url + "|" + br.Query()
}

// GetOrFetch returns the init segment bytes, fetching on miss. Concurrent
// misses for the same key await a single fetch; its failure propagates to
// every waiter and leaves no cache entry behind. A caller whose context
// expires stops waiting without cancelling the shared fetch.
func (c *InitSegmentCache) GetOrFetch(ctx context.Context, url string, headers upstream.Headers, br *hls.ByteRange) ([]byte, error) {
	key := cacheKey(url, br)

	if b, ok := c.get(key); ok {
		metrics.InitCacheHits.Inc()
		return b, nil
	}
	metrics.InitCacheMisses.Inc()

	ch := c.group.DoChan(key, func() (any, error) {
		// Detach from the requester so a disconnect does not starve other
		// waiters; the fetch keeps its own deadline.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		res, err := c.fetcher.Fetch(fctx, url, headers, br)
		if err != nil {
			return nil, err
		}
		c.put(key, res.Body)
		return res.Body, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.InitCacheShared.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// Len returns the number of completed entries.
func (c *InitSegmentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// get returns a cached value and marks it most recently used.
func (c *InitSegmentCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).bytes, true
}

// put inserts a value as most recently used, evicting the LRU entry when
// over capacity.
func (c *InitSegmentCache) put(key string, bytes []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*entry).bytes = bytes
		return
	}

	el := c.ll.PushFront(&entry{key: key, bytes: bytes})
	c.items[key] = el

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).key)
		metrics.InitCacheEvictions.Inc()
	}
}
