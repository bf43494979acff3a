package resource

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(50))
	require.NoError(t, c.AcquireMemory(40))
	assert.Equal(t, int64(90), c.MemoryUsage())

	assert.ErrorIs(t, c.AcquireMemory(20), ErrMemoryLimitExceeded)
	assert.False(t, c.TryAcquireMemory(20))
	assert.Equal(t, int64(90), c.MemoryUsage())

	c.ReleaseMemory(50)
	assert.True(t, c.TryAcquireMemory(20))
	assert.Equal(t, int64(60), c.MemoryUsage())
	assert.Equal(t, int64(100), c.MemoryLimit())
}

func TestController_Reclaimer(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})
	require.NoError(t, c.AcquireMemory(60)) // generation
	require.NoError(t, c.AcquireMemory(30)) // reclaimable

	var asked []int64
	reclaimable := int64(30)
	c.SetReclaimer(func(bytes int64) int64 {
		asked = append(asked, bytes)
		freed := min(bytes, reclaimable)
		reclaimable -= freed
		c.ReleaseMemory(freed)
		return freed
	})

	assert.False(t, c.TryAcquireMemory(20))
	assert.Empty(t, asked)

	require.NoError(t, c.AcquireMemory(20))
	assert.Equal(t, []int64{20}, asked)
	assert.Equal(t, int64(90), c.MemoryUsage())

	// Only 10 bytes left to reclaim; they are freed but the request fails.
	assert.ErrorIs(t, c.AcquireMemory(30), ErrMemoryLimitExceeded)
	assert.Equal(t, []int64{20, 30}, asked)
	assert.Equal(t, int64(80), c.MemoryUsage())
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.AcquireMemory(1000))
	c.ReleaseMemory(500)
	assert.Equal(t, int64(500), c.MemoryUsage())

	require.NoError(t, c.AcquireMemory(0))
	require.NoError(t, c.AcquireMemory(-5))
	assert.Equal(t, int64(500), c.MemoryUsage())
}

func TestController_Loads(t *testing.T) {
	c := NewController(Config{MaxConcurrentLoads: 2})

	require.NoError(t, c.AcquireLoad(t.Context()))
	require.NoError(t, c.AcquireLoad(t.Context()))
	assert.False(t, c.TryAcquireLoad())

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireLoad(ctx))

	c.ReleaseLoad()
	assert.True(t, c.TryAcquireLoad())
}

func TestController_IO(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	// Larger than the burst; split rather than rejected.
	require.NoError(t, c.AcquireIO(t.Context(), 1<<20+1))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.Error(t, c.AcquireIO(ctx, 1<<20))
}

func TestRateLimitedReader(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})
	src := bytes.Repeat([]byte("x"), 4096)

	got, err := io.ReadAll(NewRateLimitedReader(t.Context(), bytes.NewReader(src), c))
	require.NoError(t, err)
	assert.Equal(t, src, got)
}

func TestController_Nil(t *testing.T) {
	var c *Controller

	require.NoError(t, c.AcquireMemory(10))
	c.ReleaseMemory(10)
	assert.Zero(t, c.MemoryUsage())
	assert.Zero(t, c.MemoryLimit())
	require.NoError(t, c.AcquireLoad(t.Context()))
	assert.True(t, c.TryAcquireLoad())
	c.ReleaseLoad()
	require.NoError(t, c.AcquireIO(t.Context(), 1<<30))

	got, err := io.ReadAll(NewRateLimitedReader(t.Context(), bytes.NewReader([]byte("abc")), c))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}
