package verification

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingVerifier struct {
	count   atomic.Int32
	release chan struct{}
	mu      sync.Mutex
	seen    []string
}

func (v *countingVerifier) Verify(_ context.Context, task Task) Result {
	if v.release != nil {
		<-v.release
	}
	v.mu.Lock()
	v.seen = append(v.seen, task.RequestID)
	v.mu.Unlock()
	v.count.Add(1)
	return Result{RequestID: task.RequestID, State: StateAllowed}
}

func TestDispatcherSubmitNeverBlocks(t *testing.T) {
	store := NewInMemoryStore()
	d := NewDispatcher(&countingVerifier{}, 2,
		WithDispatcherLogger(discardLogger()),
		WithDropRecorder(store),
	)

	// No workers running: the queue fills and further submits are dropped.
	assert.True(t, d.Submit(context.Background(), Task{RequestID: "a"}))
	assert.True(t, d.Submit(context.Background(), Task{RequestID: "b"}))
	assert.False(t, d.Submit(context.Background(), Task{RequestID: "c"}))
	assert.Equal(t, 2, d.Pending())

	saved, err := store.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "c", saved[0].RequestID)
	assert.True(t, saved[0].Skipped)
	assert.Equal(t, SkipQueueFull, saved[0].SkipReason)
}

func TestDispatcherProcessesTasks(t *testing.T) {
	v := &countingVerifier{}
	d := NewDispatcher(v, 16, WithWorkers(3), WithDispatcherLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.True(t, d.Submit(context.Background(), Task{RequestID: id}))
	}
	require.Eventually(t, func() bool { return v.count.Load() == 5 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.False(t, d.Submit(context.Background(), Task{RequestID: "late"}))
}

func TestDispatcherDrainsOnShutdown(t *testing.T) {
	v := &countingVerifier{release: make(chan struct{})}
	d := NewDispatcher(v, 16, WithWorkers(1), WithDispatcherLogger(discardLogger()), WithDrainTimeout(time.Second))

	for _, id := range []string{"a", "b", "c"} {
		require.True(t, d.Submit(context.Background(), Task{RequestID: id}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	close(v.release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(3), v.count.Load())
	assert.Equal(t, 0, d.Pending())
}
