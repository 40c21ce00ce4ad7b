// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hlsgate/hlsgate/internal/hls"
	"github.com/hlsgate/hlsgate/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type stubFetcher struct {
	calls atomic.Int64
	delay time.Duration
	err   error
	body  func(url string) []byte
}

func (s *stubFetcher) Fetch(ctx context.Context, url string, headers upstream.Headers, br *hls.ByteRange) (*upstream.Result, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	body := []byte("init-bytes")
	if s.body != nil {
		body = s.body(url)
	}
	return &upstream.Result{Body: body, Status: 200}, nil
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestGetOrFetchCachesResult(t *testing.T) {
	f := &stubFetcher{}
	c := New(4, time.Second, f)

	b, err := c.GetOrFetch(context.Background(), "https://o/init.mp4", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("init-bytes"), b)

	b, err = c.GetOrFetch(context.Background(), "https://o/init.mp4", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("init-bytes"), b)

	assert.Equal(t, int64(1), f.calls.Load(), "second lookup must be a cache hit")
}

func TestByteRangeIsPartOfTheKey(t *testing.T) {
	f := &stubFetcher{}
	c := New(4, time.Second, f)

	br := &hls.ByteRange{Length: 1024, Offset: 0, HasOffset: true}
	_, err := c.GetOrFetch(context.Background(), "https://o/init.mp4", nil, br)
	require.NoError(t, err)
	_, err = c.GetOrFetch(context.Background(), "https://o/init.mp4", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(2), f.calls.Load())
	assert.Equal(t, 2, c.Len())
}

func TestSingleFlight(t *testing.T) {
	f := &stubFetcher{delay: 100 * time.Millisecond}
	c := New(4, time.Second, f)

	const waiters = 16
	var wg sync.WaitGroup
	results := make([][]byte, waiters)
	errs := make([]error, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrFetch(context.Background(), "https://o/init.mp4", nil, nil)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), f.calls.Load(), "concurrent misses must collapse into one fetch")
	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []byte("init-bytes"), results[i])
	}
}

func TestFetchErrorPropagatesAndLeavesNoEntry(t *testing.T) {
	f := &stubFetcher{err: errors.New("origin down")}
	c := New(4, time.Second, f)

	_, err := c.GetOrFetch(context.Background(), "https://o/init.mp4", nil, nil)
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())

	// A later attempt retries rather than serving the failure.
	f.err = nil
	_, err = c.GetOrFetch(context.Background(), "https://o/init.mp4", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.calls.Load())
}

func TestLRUBound(t *testing.T) {
	f := &stubFetcher{body: func(url string) []byte { return []byte(url) }}
	c := New(3, time.Second, f)

	for i := 0; i < 3; i++ {
		_, err := c.GetOrFetch(context.Background(), fmt.Sprintf("https://o/init%d.mp4", i), nil, nil)
		require.NoError(t, err)
	}

	// Touch init0 so init1 becomes least recently used.
	_, err := c.GetOrFetch(context.Background(), "https://o/init0.mp4", nil, nil)
	require.NoError(t, err)
	calls := f.calls.Load()

	// Inserting a fourth key evicts init1 only.
	_, err = c.GetOrFetch(context.Background(), "https://o/init3.mp4", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())

	_, err = c.GetOrFetch(context.Background(), "https://o/init0.mp4", nil, nil)
	require.NoError(t, err)
	_, err = c.GetOrFetch(context.Background(), "https://o/init2.mp4", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, calls+1, f.calls.Load(), "init0 and init2 must still be cached")

	_, err = c.GetOrFetch(context.Background(), "https://o/init1.mp4", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, calls+2, f.calls.Load(), "init1 must have been evicted")
}

func TestWaiterContextExpiryDoesNotCancelFetch(t *testing.T) {
	f := &stubFetcher{delay: 150 * time.Millisecond}
	c := New(4, time.Second, f)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.GetOrFetch(ctx, "https://o/init.mp4", nil, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The detached fetch completes and populates the cache for later callers.
	assert.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, 10*time.Millisecond)
	_, err = c.GetOrFetch(context.Background(), "https://o/init.mp4", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.calls.Load())
}
