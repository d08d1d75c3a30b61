// Package commandqueue serializes work on named lanes.
//
// Invariants:
// - Tasks in the same lane execute in FIFO order, at most Concurrency at a time.
// - A task enqueued from inside a running task of the same lane runs inline
//   on the caller's goroutine instead of waiting behind itself.
// - Queue activity is observable through metrics and spans.
//
// Usage:
//
//	queue := commandqueue.New(commandqueue.Config{})
//	defer queue.Close()
//	err := queue.Enqueue(ctx, commandqueue.MainLane, func(ctx context.Context) error {
//		return nil
//	})
package commandqueue
