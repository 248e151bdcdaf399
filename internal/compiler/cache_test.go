package compiler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingInvoker struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (c *countingInvoker) Compile(ctx context.Context, inv Invocation) (*Output, error) {
	c.calls.Add(1)
	if c.release != nil {
		select {
		case <-c.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return &Output{Input: inv.Input, Artifacts: []Artifact{{ContractName: "A"}}}, nil
}

func TestCacheKey(t *testing.T) {
	a := testInvocation(t)
	b := testInvocation(t)

	ka, err := CacheKey(a)
	require.NoError(t, err)
	kb, err := CacheKey(b)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)

	b.Version = MustParseVersion("v0.8.8+commit.dddeac2f")
	kb, err = CacheKey(b)
	require.NoError(t, err)
	assert.NotEqual(t, ka, kb)
}

func TestCachedInvokerCachesSuccess(t *testing.T) {
	next := &countingInvoker{}
	c := NewCachedInvoker(next, NewMemoryCache(16, time.Minute), discardLogger())

	inv := testInvocation(t)
	out1, err := c.Compile(context.Background(), inv)
	require.NoError(t, err)
	out2, err := c.Compile(context.Background(), inv)
	require.NoError(t, err)

	assert.Equal(t, int32(1), next.calls.Load())
	assert.Equal(t, out1.Artifacts, out2.Artifacts)
	assert.Same(t, inv.Input, out2.Input)
}

func TestCachedInvokerLeaderCancelDoesNotFailFollower(t *testing.T) {
	next := &countingInvoker{release: make(chan struct{})}
	c := NewCachedInvoker(next, NewMemoryCache(16, time.Minute), discardLogger())
	inv := testInvocation(t)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.Compile(leaderCtx, inv)
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return next.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		out *Output
		err error
	}
	follower := make(chan result, 1)
	go func() {
		out, err := c.Compile(context.Background(), inv)
		follower <- result{out, err}
	}()
	// Give the follower time to join the in-flight compilation.
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(next.release)
	res := <-follower
	require.NoError(t, res.err)
	assert.Equal(t, "A", res.out.Artifacts[0].ContractName)
	assert.Equal(t, int32(1), next.calls.Load())

	// The detached compilation still populated the cache.
	_, err := c.Compile(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestCachedInvokerCompileTimeout(t *testing.T) {
	next := &countingInvoker{release: make(chan struct{})}
	defer close(next.release)
	c := NewCachedInvoker(next, NewMemoryCache(16, time.Minute), discardLogger(),
		WithCompileTimeout(20*time.Millisecond))

	_, err := c.Compile(context.Background(), testInvocation(t))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCachedInvokerDoesNotCacheErrors(t *testing.T) {
	next := &countingInvoker{err: &CompilationError{Messages: []string{"boom"}}}
	cache := NewMemoryCache(16, time.Minute)
	c := NewCachedInvoker(next, cache, discardLogger())

	inv := testInvocation(t)
	for i := 0; i < 2; i++ {
		_, err := c.Compile(context.Background(), inv)
		var compileErr *CompilationError
		require.True(t, errors.As(err, &compileErr))
	}
	assert.Equal(t, int32(2), next.calls.Load())
	assert.Zero(t, cache.Len())
}

func TestCachedInvokerSingleFlight(t *testing.T) {
	next := &countingInvoker{release: make(chan struct{})}
	c := NewCachedInvoker(next, NewMemoryCache(16, time.Minute), discardLogger())
	inv := testInvocation(t)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Compile(context.Background(), inv)
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return next.calls.Load() == 1 }, time.Second, time.Millisecond)
	// Give the remaining callers time to join the in-flight compilation.
	time.Sleep(50 * time.Millisecond)
	close(next.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache(4, 20*time.Millisecond)
	require.NoError(t, cache.Set(context.Background(), "k", &Output{}))

	_, ok, err := cache.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok, _ := cache.Get(context.Background(), "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
