package usagecontrol

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCounter(t *testing.T) (*RedisCounter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCounter(client), mr
}

func TestCounters(t *testing.T) {
	redisCounter, _ := newRedisCounter(t)

	counters := map[string]UsageCounter{
		"memory": NewMemoryCounter(),
		"redis":  redisCounter,
	}

	for name, c := range counters {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			n, err := c.Count(ctx, testAgreement, testArtifact)
			require.NoError(t, err)
			assert.Zero(t, n)

			for want := int64(1); want <= 3; want++ {
				n, err = c.Increment(ctx, testAgreement, testArtifact)
				require.NoError(t, err)
				assert.Equal(t, want, n)
			}

			n, err = c.Count(ctx, testAgreement, testArtifact)
			require.NoError(t, err)
			assert.Equal(t, int64(3), n)

			// counts are kept per agreement and artifact
			n, err = c.Count(ctx, testAgreement, "urn:artifact:2")
			require.NoError(t, err)
			assert.Zero(t, n)
			n, err = c.Count(ctx, "urn:agreement:2", testArtifact)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestRedisCounterKey(t *testing.T) {
	c, mr := newRedisCounter(t)
	_, err := c.Increment(context.Background(), testAgreement, testArtifact)
	require.NoError(t, err)

	v, err := mr.Get("usage:" + testAgreement + ":" + testArtifact)
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestRedisCounterUnavailable(t *testing.T) {
	c, mr := newRedisCounter(t)
	mr.Close()

	_, err := c.Count(context.Background(), testAgreement, testArtifact)
	assert.Error(t, err)
	_, err = c.Increment(context.Background(), testAgreement, testArtifact)
	assert.Error(t, err)
}

func TestMemoryCounterConcurrent(t *testing.T) {
	c := NewMemoryCounter()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Increment(context.Background(), testAgreement, testArtifact)
		}()
	}
	wg.Wait()

	n, err := c.Count(context.Background(), testAgreement, testArtifact)
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)
}
