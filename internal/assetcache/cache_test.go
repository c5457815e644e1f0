// ABOUTME: Tests for the asset cache
// ABOUTME: Covers idempotent loads, per-id dedupe, timeouts, placeholders, write-through and clearing

package assetcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosutra21/Techno/internal/store"
)

// countingFetcher returns "asset-<id>" and counts calls per id.
type countingFetcher struct {
	mu    sync.Mutex
	calls map[int]int
	fn    func(ctx context.Context, id int) ([]byte, error)
}

func newCountingFetcher(fn func(ctx context.Context, id int) ([]byte, error)) *countingFetcher {
	if fn == nil {
		fn = func(_ context.Context, id int) ([]byte, error) {
			return []byte(fmt.Sprintf("asset-%d", id)), nil
		}
	}
	return &countingFetcher{calls: make(map[int]int), fn: fn}
}

func (f *countingFetcher) Fetch(ctx context.Context, id int) ([]byte, error) {
	f.mu.Lock()
	f.calls[id]++
	f.mu.Unlock()
	return f.fn(ctx, id)
}

func (f *countingFetcher) Calls(id int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func newTestCache(t *testing.T, f Fetcher, s store.CacheStore, timeout time.Duration) *Cache {
	t.Helper()
	c, err := New(Options{Fetcher: f, Store: s, Timeout: timeout})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNew_RequiresFetcher(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestCache_Load_Success(t *testing.T) {
	f := newCountingFetcher(nil)
	c := newTestCache(t, f, nil, time.Second)

	h := c.Load(t.Context(), 3)

	assert.Equal(t, 3, h.ID)
	assert.Equal(t, StatusReady, h.Status)
	assert.True(t, strings.HasPrefix(h.Ref, "blob:"), "ref %q", h.Ref)
	assert.Equal(t, []byte("asset-3"), h.Bytes())
	assert.True(t, c.IsLoaded(3))
}

func TestCache_Load_IsIdempotent(t *testing.T) {
	f := newCountingFetcher(nil)
	c := newTestCache(t, f, nil, time.Second)

	first := c.Load(t.Context(), 5)
	second := c.Load(t.Context(), 5)

	assert.Same(t, first, second)
	assert.Equal(t, 1, f.Calls(5))
}

func TestCache_Load_ConcurrentCallsShareOneFetch(t *testing.T) {
	release := make(chan struct{})
	f := newCountingFetcher(func(_ context.Context, id int) ([]byte, error) {
		<-release
		return []byte("shared"), nil
	})
	c := newTestCache(t, f, nil, 5*time.Second)

	const callers = 10
	results := make([]*Handle, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Load(context.Background(), 8)
		}(i)
	}

	require.Eventually(t, func() bool {
		st, ok := c.Status(8)
		return ok && st == StatusLoading
	}, time.Second, 5*time.Millisecond)

	close(release)
	wg.Wait()

	assert.Equal(t, 1, f.Calls(8))
	for i := 1; i < callers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestCache_Load_DifferentIDsAreIndependent(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	f := newCountingFetcher(func(_ context.Context, id int) ([]byte, error) {
		if id == 1 {
			<-block
		}
		return []byte("ok"), nil
	})
	c := newTestCache(t, f, nil, 5*time.Second)

	go c.Load(context.Background(), 1)

	done := make(chan *Handle, 1)
	go func() { done <- c.Load(context.Background(), 2) }()

	select {
	case h := <-done:
		assert.Equal(t, StatusReady, h.Status)
	case <-time.After(time.Second):
		t.Fatal("load of id 2 was blocked by id 1")
	}
}

func TestCache_Load_TimeoutReturnsPlaceholderAndRetries(t *testing.T) {
	var aborted atomic.Int32
	f := newCountingFetcher(func(ctx context.Context, id int) ([]byte, error) {
		<-ctx.Done()
		aborted.Add(1)
		return nil, ctx.Err()
	})
	c := newTestCache(t, f, nil, 30*time.Millisecond)

	var reasons []error
	c.OnError(func(e LoadError) { reasons = append(reasons, e.Err) })

	h := c.Load(t.Context(), 5)
	assert.Equal(t, StatusFallback, h.Status)
	assert.Equal(t, "data:text/plain,Chapter 5 Model Placeholder", h.Ref)
	assert.Nil(t, h.Bytes())
	assert.False(t, c.IsLoaded(5), "placeholder must not be cached")

	again := c.Load(t.Context(), 5)
	assert.Equal(t, PlaceholderRef(5), again.Ref)
	assert.Equal(t, 2, f.Calls(5), "second load must retry the network")
	assert.Equal(t, int32(2), aborted.Load(), "timed out fetches are cancelled")

	require.Len(t, reasons, 2)
	assert.ErrorIs(t, reasons[0], ErrNetworkTimeout)
}

func TestCache_Load_NetworkFailure(t *testing.T) {
	f := newCountingFetcher(func(context.Context, int) ([]byte, error) {
		return nil, fmt.Errorf("%w: status 404", ErrNetworkFailure)
	})
	c := newTestCache(t, f, nil, time.Second)

	var got LoadError
	c.OnError(func(e LoadError) { got = e })

	h := c.Load(t.Context(), 9)
	assert.True(t, h.Placeholder())
	assert.Equal(t, 9, got.ID)
	assert.ErrorIs(t, got, ErrNetworkFailure)
	assert.False(t, got.Background)
}

func TestCache_Load_EmptyPayloadIsDecodeFailure(t *testing.T) {
	f := newCountingFetcher(func(context.Context, int) ([]byte, error) {
		return nil, nil
	})
	c := newTestCache(t, f, nil, time.Second)

	var got error
	c.OnError(func(e LoadError) { got = e.Err })

	h := c.Load(t.Context(), 2)
	assert.True(t, h.Placeholder())
	assert.ErrorIs(t, got, ErrDecodeFailure)
}

func TestCache_Load_InvalidID(t *testing.T) {
	f := newCountingFetcher(nil)
	c := newTestCache(t, f, nil, time.Second)

	var got error
	c.OnError(func(e LoadError) { got = e.Err })

	h := c.Load(t.Context(), 0)
	assert.True(t, h.Placeholder())
	assert.ErrorIs(t, got, ErrInvalidID)
	assert.Zero(t, f.Calls(0))
}

func TestCache_Load_WritesThroughToStore(t *testing.T) {
	s := store.NewMockStore()
	c := newTestCache(t, newCountingFetcher(nil), s, time.Second)

	c.Load(t.Context(), 4)

	entry, err := s.GetCacheEntry(t.Context(), "modelo4.glb")
	require.NoError(t, err)
	assert.Equal(t, 4, entry.AssetID)
	assert.Equal(t, []byte("asset-4"), entry.Data)
}

func TestCache_Load_PersistFailureIsIgnored(t *testing.T) {
	s := store.NewMockStore()
	s.PutErr = errors.New("quota exceeded")
	c := newTestCache(t, newCountingFetcher(nil), s, time.Second)

	var failures int
	c.OnError(func(LoadError) { failures++ })

	h := c.Load(t.Context(), 4)

	assert.Equal(t, StatusReady, h.Status)
	assert.Equal(t, 1, s.PutCalls())
	assert.Zero(t, failures)
}

func TestCache_Load_RestoresFromStoreWhenOffline(t *testing.T) {
	s := store.NewMockStore()
	require.NoError(t, s.PutCacheEntry(t.Context(), &store.CacheEntry{
		Filename: "modelo6.glb",
		AssetID:  6,
		Data:     []byte("durable-6"),
	}))
	f := newCountingFetcher(func(context.Context, int) ([]byte, error) {
		return nil, ErrNetworkFailure
	})
	c := newTestCache(t, f, s, time.Second)

	h := c.Load(t.Context(), 6)

	assert.Equal(t, StatusReady, h.Status)
	assert.Equal(t, []byte("durable-6"), h.Bytes())
	assert.True(t, c.IsLoaded(6))

	// Other ids without a durable copy still fall back.
	assert.True(t, c.Load(t.Context(), 7).Placeholder())
}

func TestCache_Clear(t *testing.T) {
	f := newCountingFetcher(nil)
	c := newTestCache(t, f, nil, time.Second)

	var cleared int
	c.OnCleared(func() { cleared++ })

	h := c.Load(t.Context(), 1)
	c.Load(t.Context(), 2)
	require.Equal(t, 2, c.Stats().Loaded)

	c.Clear()

	assert.True(t, h.Revoked())
	assert.Nil(t, h.Bytes())
	assert.False(t, c.IsLoaded(1))
	assert.Zero(t, c.Stats().Loaded)
	assert.Equal(t, 1, cleared)

	fresh := c.Load(t.Context(), 1)
	assert.NotSame(t, h, fresh)
	assert.Equal(t, 2, f.Calls(1), "load after clear fetches again")
}

func TestCache_Clear_DiscardsInFlightResult(t *testing.T) {
	release := make(chan struct{})
	f := newCountingFetcher(func(context.Context, int) ([]byte, error) {
		<-release
		return []byte("late"), nil
	})
	c := newTestCache(t, f, nil, 5*time.Second)

	done := make(chan *Handle, 1)
	go func() { done <- c.Load(context.Background(), 3) }()

	require.Eventually(t, func() bool { return f.Calls(3) == 1 }, time.Second, 5*time.Millisecond)
	c.Clear()
	close(release)

	h := <-done
	assert.True(t, h.Placeholder())
	assert.False(t, c.IsLoaded(3), "result of a fetch started before Clear is not kept")
}

func TestCache_Clear_AbortsInFlightFetch(t *testing.T) {
	var active, peak atomic.Int32
	aborted := make(chan struct{}, 1)
	release := make(chan struct{})
	f := newCountingFetcher(func(ctx context.Context, id int) ([]byte, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		select {
		case <-release:
			return []byte("fresh"), nil
		case <-ctx.Done():
			aborted <- struct{}{}
			return nil, ctx.Err()
		}
	})
	c := newTestCache(t, f, nil, 5*time.Second)

	first := make(chan *Handle, 1)
	go func() { first <- c.Load(context.Background(), 3) }()
	require.Eventually(t, func() bool { return f.Calls(3) == 1 }, time.Second, 5*time.Millisecond)

	var loadErrs []error
	var mu sync.Mutex
	c.OnError(func(e LoadError) {
		mu.Lock()
		loadErrs = append(loadErrs, e.Err)
		mu.Unlock()
	})

	c.Clear()

	select {
	case <-aborted:
	case <-time.After(time.Second):
		t.Fatal("Clear did not cancel the running fetch")
	}

	second := make(chan *Handle, 1)
	go func() { second <- c.Load(context.Background(), 3) }()

	h := <-first
	assert.True(t, h.Placeholder())

	require.Eventually(t, func() bool { return f.Calls(3) == 2 }, time.Second, 5*time.Millisecond)
	close(release)

	h = <-second
	assert.Equal(t, StatusReady, h.Status)
	assert.Equal(t, []byte("fresh"), h.Bytes())
	assert.True(t, c.IsLoaded(3))
	assert.Equal(t, int32(1), peak.Load(), "fetches of one id never overlap")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, loadErrs, 1)
	assert.ErrorIs(t, loadErrs[0], ErrCleared)
}

func TestCache_Status_LoadingAfterWaiterGivesUp(t *testing.T) {
	release := make(chan struct{})
	f := newCountingFetcher(func(context.Context, int) ([]byte, error) {
		<-release
		return []byte("slow"), nil
	})
	c := newTestCache(t, f, nil, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *Handle, 1)
	go func() { done <- c.Load(ctx, 6) }()
	require.Eventually(t, func() bool { return f.Calls(6) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.True(t, (<-done).Placeholder())

	st, ok := c.Status(6)
	assert.True(t, ok)
	assert.Equal(t, StatusLoading, st)
	assert.Equal(t, 1, c.Stats().InFlight)

	close(release)
	require.Eventually(t, func() bool { return c.IsLoaded(6) }, time.Second, 5*time.Millisecond)
	assert.Zero(t, c.Stats().InFlight)
}

func TestCache_Load_CallerCancellationDoesNotAbortSharedFetch(t *testing.T) {
	release := make(chan struct{})
	f := newCountingFetcher(func(context.Context, int) ([]byte, error) {
		<-release
		return []byte("eventually"), nil
	})
	c := newTestCache(t, f, nil, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan *Handle, 1)
	go func() { cancelled <- c.Load(ctx, 10) }()

	require.Eventually(t, func() bool { return f.Calls(10) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	h := <-cancelled
	assert.True(t, h.Placeholder())

	close(release)
	require.Eventually(t, func() bool { return c.IsLoaded(10) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.Calls(10))
}

func TestCache_OnLoaded(t *testing.T) {
	c := newTestCache(t, newCountingFetcher(nil), nil, time.Second)

	var got []LoadEvent
	sub := c.OnLoaded(func(e LoadEvent) { got = append(got, e) })

	c.Load(t.Context(), 1)
	c.Prefetch(t.Context(), 2)
	c.Load(t.Context(), 1) // resident hit, no event

	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Handle.ID)
	assert.False(t, got[0].Background)
	assert.Equal(t, 2, got[1].Handle.ID)
	assert.True(t, got[1].Background)

	sub.Unsubscribe()
	c.Load(t.Context(), 3)
	assert.Len(t, got, 2)
}

func TestCache_WaitIdle(t *testing.T) {
	release := make(chan struct{})
	f := newCountingFetcher(func(_ context.Context, id int) ([]byte, error) {
		<-release
		return []byte("x"), nil
	})
	c := newTestCache(t, f, nil, 5*time.Second)

	// Nothing in flight
	require.NoError(t, c.WaitIdle(t.Context()))

	go c.Prefetch(context.Background(), 20)
	require.Eventually(t, func() bool { return f.Calls(20) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.WaitIdle(t.Context()), "background loads do not count as foreground work")

	go c.Load(context.Background(), 21)
	require.Eventually(t, func() bool { return c.Stats().Foreground == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.WaitIdle(ctx), context.DeadlineExceeded)

	idle := make(chan error, 1)
	go func() { idle <- c.WaitIdle(context.Background()) }()
	close(release)

	select {
	case err := <-idle:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitIdle did not return after foreground load finished")
	}
}

func TestCache_Stats(t *testing.T) {
	c := newTestCache(t, newCountingFetcher(nil), nil, time.Second)

	c.Load(t.Context(), 2)
	c.Load(t.Context(), 1)

	assert.Equal(t, Stats{Loaded: 2}, c.Stats())
	assert.Equal(t, []int{1, 2}, c.LoadedIDs())

	st, ok := c.Status(1)
	assert.True(t, ok)
	assert.Equal(t, StatusReady, st)

	_, ok = c.Status(99)
	assert.False(t, ok)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "loading", StatusLoading.String())
	assert.Equal(t, "ready", StatusReady.String())
	assert.Equal(t, "fallback", StatusFallback.String())
	assert.Equal(t, "status(7)", Status(7).String())
}
