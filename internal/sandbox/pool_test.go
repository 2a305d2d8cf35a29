package sandbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/livepreview/backend/internal/domain/preview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAcquireRelease(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 2)
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()
	runtime, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, PoolStats{Size: 2, Available: 1, InUse: 1}, pool.Stats())

	result, err := runtime.Execute(ctx, preview.Build(`<script>console.log(42)</script>`), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, messages(result.Console))

	require.NoError(t, pool.Release(runtime))
	assert.Equal(t, PoolStats{Size: 2, Available: 2}, pool.Stats())
}

func TestPoolExecute(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 2)
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()
	doc := preview.Build(`<script>var count = (window.count || 0) + 1; console.log(count)</script>`)

	// Runtimes are reset between runs, so state never carries over
	var wg sync.WaitGroup
	results := make([]*Result, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = pool.Execute(ctx, doc, nil)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, []string{"1"}, messages(results[i].Console))
	}
	assert.Equal(t, 2, pool.Stats().Available)
}

func TestPoolAcquireTimeout(t *testing.T) {
	config := DefaultConfig()
	config.AcquireTimeout = 20 * time.Millisecond
	pool, err := NewPool(config, 1)
	require.NoError(t, err)
	defer pool.Close()

	held, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, pool.Release(held))
}

func TestPoolClose(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, pool.Stats().Size)

	held, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())
	assert.True(t, pool.Stats().Closed)

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)

	_, err = pool.Execute(context.Background(), preview.Build(""), nil)
	assert.ErrorIs(t, err, ErrPoolClosed)

	// Runtimes released after close are shut down
	require.NoError(t, pool.Release(held))
	_, err = held.Execute(context.Background(), preview.Build(""), nil)
	assert.ErrorIs(t, err, ErrClosed)
}
