package commandqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueue(t *testing.T) *Queue {
	t.Helper()
	q := New(Config{Logger: zerolog.Nop()})
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestEnqueue(t *testing.T) {
	q := newQueue(t)

	t.Run("should run the task and return its error", func(t *testing.T) {
		boom := errors.New("boom")
		err := q.Enqueue(context.Background(), MainLane, func(ctx context.Context) error {
			return boom
		})
		assert.Same(t, boom, err)
	})

	t.Run("should convert panics into errors", func(t *testing.T) {
		err := q.Enqueue(context.Background(), MainLane, func(ctx context.Context) error {
			panic("kaboom")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kaboom")
	})

	t.Run("should mark the task context as in lane", func(t *testing.T) {
		var inside bool
		require.NoError(t, q.Enqueue(context.Background(), MainLane, func(ctx context.Context) error {
			inside = InLane(ctx, MainLane)
			return nil
		}))
		assert.True(t, inside)
		assert.False(t, InLane(context.Background(), MainLane))
	})
}

func TestSerialExecution(t *testing.T) {
	q := newQueue(t)

	var running, maxRunning int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Enqueue(context.Background(), MainLane, func(ctx context.Context) error {
				n := atomic.AddInt32(&running, 1)
				for {
					m := atomic.LoadInt32(&maxRunning)
					if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxRunning))
}

func TestNestedEnqueueRunsInline(t *testing.T) {
	q := newQueue(t)

	done := make(chan error, 1)
	go func() {
		done <- q.Enqueue(context.Background(), MainLane, func(ctx context.Context) error {
			return q.Enqueue(ctx, MainLane, func(ctx context.Context) error {
				return nil
			})
		})
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("nested enqueue deadlocked")
	}
}

func TestCancelledWhileQueued(t *testing.T) {
	q := newQueue(t)

	release := make(chan struct{})
	go func() {
		_ = q.Enqueue(context.Background(), MainLane, func(ctx context.Context) error {
			<-release
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		return q.Stats()[MainLane]["running"] == 1
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var ran atomic.Bool
	err := q.Enqueue(ctx, MainLane, func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.Eventually(t, func() bool {
		return q.Stats()[MainLane]["queued"] == 0 && q.Stats()[MainLane]["running"] == 0
	}, time.Second, 5*time.Millisecond)
	assert.False(t, ran.Load())
}

func TestClose(t *testing.T) {
	q := New(Config{Logger: zerolog.Nop()})
	require.NoError(t, q.Close())

	err := q.Enqueue(context.Background(), MainLane, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}
