package biz

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/docqa/store"
)

func TestLifecycle_States(t *testing.T) {
	index, err := store.NewFileIndex(t.TempDir())
	require.NoError(t, err)
	l := NewLifecycle(index)
	ctx := context.Background()

	assert.False(t, l.HasIndex(ctx))
	assert.Equal(t, StateEmpty, l.State(ctx))

	err = l.Rebuild(ctx, func(ctx context.Context, idx store.VectorIndex) error {
		return idx.Rebuild(ctx, store.Manifest{Generation: "g1"},
			[]store.Chunk{{Ordinal: 0, Text: "x"}}, [][]float32{{1}})
	})
	require.NoError(t, err)

	assert.True(t, l.HasIndex(ctx))
	assert.Equal(t, StateReady, l.State(ctx))
}

func TestLifecycle_RebuildsAreSerialized(t *testing.T) {
	index, err := store.NewFileIndex(t.TempDir())
	require.NoError(t, err)
	l := NewLifecycle(index)

	var inFlight, maxInFlight atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Rebuild(context.Background(), func(context.Context, store.VectorIndex) error {
				n := inFlight.Add(1)
				for {
					cur := maxInFlight.Load()
					if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestLifecycle_CanceledContext(t *testing.T) {
	index, err := store.NewFileIndex(t.TempDir())
	require.NoError(t, err)
	l := NewLifecycle(index)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err = l.Rebuild(ctx, func(context.Context, store.VectorIndex) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
