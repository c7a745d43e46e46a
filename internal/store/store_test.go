package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryKVTTLExpiry(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	now := time.Now()
	Clock = func() time.Time { return now }
	defer func() { Clock = time.Now }()

	require.NoError(t, kv.Put(ctx, "k", []byte(`"v"`), 10, "test"))

	_, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	Clock = func() time.Time { return now.Add(11 * time.Second) }
	_, ok, err = kv.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok, "expired entry must not be returned")
}

func TestMemoryKVZeroTTLNeverExpires(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()
	require.NoError(t, kv.Put(ctx, "k", []byte(`"v"`), 0, "test"))

	Clock = func() time.Time { return time.Now().Add(1000 * time.Hour) }
	defer func() { Clock = time.Now }()

	_, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCacheSingleFlight(t *testing.T) {
	kv := NewMemoryKV()
	cache := NewCache[string](kv, 60, "test")

	var calls int32
	produce := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return "value", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := cache.GetOrProduce(context.Background(), "same-key", produce)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&calls), "producer must run exactly once for concurrent same-key readers")
	for _, r := range results {
		require.Equal(t, "value", r)
	}
}

func TestCacheReusesStoredValue(t *testing.T) {
	kv := NewMemoryKV()
	cache := NewCache[string](kv, 60, "test")
	ctx := context.Background()

	var calls int
	produce := func(ctx context.Context) (string, error) {
		calls++
		return "first", nil
	}

	v1, err := cache.GetOrProduce(ctx, "k", produce)
	require.NoError(t, err)
	require.Equal(t, "first", v1)

	v2, err := cache.GetOrProduce(ctx, "k", produce)
	require.NoError(t, err)
	require.Equal(t, "first", v2)
	require.Equal(t, 1, calls, "second read must be served from cache, not re-produced")
}

func TestProgressStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/progress.json"
	ps := NewProgressStore(path)

	_, ok, err := ps.Load()
	require.NoError(t, err)
	require.False(t, ok)

	p := &struct{}{}
	_ = p

	prog := newTestProgress()
	require.NoError(t, ps.Save(prog))

	loaded, ok, err := ps.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, prog.Stage, loaded.Stage)
	require.Equal(t, prog.Input, loaded.Input)
}
