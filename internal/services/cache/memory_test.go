package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"))
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute, 0)

	t.Run("miss then hit", func(t *testing.T) {
		_, ok := c.Get(ctx, "a")
		assert.False(t, ok)

		require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
		v, ok := c.Get(ctx, "a")
		require.True(t, ok)
		assert.Equal(t, []byte("1"), v)
		assert.True(t, c.Has(ctx, "a"))
	})

	t.Run("expiry", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "short", []byte("x"), 10*time.Millisecond))
		assert.Eventually(t, func() bool { return !c.Has(ctx, "short") }, time.Second, 5*time.Millisecond)
	})

	t.Run("delete and clear", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
		require.NoError(t, c.Delete(ctx, "b"))
		assert.False(t, c.Has(ctx, "b"))

		require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))
		require.NoError(t, c.Clear(ctx))
		assert.Equal(t, int64(0), c.Stats().Items)
	})

	t.Run("stats", func(t *testing.T) {
		s := c.Stats()
		assert.GreaterOrEqual(t, s.Hits, int64(1))
		assert.GreaterOrEqual(t, s.Misses, int64(1))
		assert.GreaterOrEqual(t, s.Sets, int64(3))
	})
}
