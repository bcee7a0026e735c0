package pipeline

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/curator/internal/catalog"
)

func exerciseRegistry(t *testing.T, r Registry, key string) {
	t.Helper()
	ctx := context.Background()

	first := catalog.JobState{JobID: "job-1", TenantID: "t1", Status: catalog.JobDownloading}
	ok, err := r.Acquire(ctx, key, first)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Acquire(ctx, key, catalog.JobState{JobID: "job-2"})
	require.NoError(t, err)
	assert.False(t, ok)

	first.Progress = 40
	require.NoError(t, r.Set(ctx, key, first))
	got, err := r.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, 40, got.Progress)

	// Release ignores entries owned by another job.
	require.NoError(t, r.Release(ctx, key, "job-2"))
	got, err = r.Get(ctx, key)
	require.NoError(t, err)
	assert.NotNil(t, got)

	require.NoError(t, r.Release(ctx, key, "job-1"))
	got, err = r.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err = r.Acquire(ctx, key, catalog.JobState{JobID: "job-3"})
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, r.Delete(ctx, key))
	got, err = r.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryRegistry(t *testing.T) {
	exerciseRegistry(t, NewMemoryRegistry(), "t1")
}

func TestMemoryRegistryKeysByKind(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()
	ok, err := r.Acquire(ctx, catalog.JobKey("t1", catalog.JobSync), catalog.JobState{JobID: "a"})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.Acquire(ctx, catalog.JobKey("t1", catalog.JobReindex), catalog.JobState{JobID: "b"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisRegistry(t *testing.T) {
	url := os.Getenv("CURATOR_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CURATOR_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	r := NewRedisRegistry(rdb, time.Minute)
	key := "test-" + time.Now().Format("150405.000000")
	exerciseRegistry(t, r, key)

	ok, err := r.Acquire(context.Background(), key, catalog.JobState{JobID: "ttl"})
	require.NoError(t, err)
	require.True(t, ok)
	ttl, err := rdb.TTL(context.Background(), r.prefix+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	require.NoError(t, r.Delete(context.Background(), key))
}
