package commandqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/orca/internal/observability"
	"github.com/harun/orca/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// MainLane is the lane every dispatch runs on
const MainLane = "main"

// ErrClosed is returned for tasks enqueued after Close
var ErrClosed = errors.New("command queue closed")

// Task is one unit of work
type Task func(ctx context.Context) error

// Config holds queue configuration
type Config struct {
	// Lanes maps lane names to concurrency; MainLane defaults to 1
	Lanes  map[string]int
	Logger zerolog.Logger
}

type taskRecord struct {
	id         string
	task       Task
	ctx        context.Context
	enqueuedAt time.Time
	result     chan error
}

type laneState struct {
	concurrency int
	queue       []*taskRecord
	running     int
	mu          sync.Mutex
}

// laneKey marks a context as running inside a lane
type laneKey struct{ lane string }

// Queue provides lane-based task serialization with concurrency control
type Queue struct {
	lanes     map[string]*laneState
	taskIDSeq int
	closed    bool
	mu        sync.RWMutex
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	logger    zerolog.Logger
}

// New creates a queue with the main lane and any configured lanes
func New(cfg Config) *Queue {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		lanes:  make(map[string]*laneState),
		ctx:    ctx,
		cancel: cancel,
		logger: cfg.Logger,
	}

	q.initLane(MainLane, 1)
	for lane, concurrency := range cfg.Lanes {
		q.SetConcurrency(lane, concurrency)
	}
	return q
}

func (q *Queue) initLane(lane string, concurrency int) *laneState {
	q.mu.Lock()
	defer q.mu.Unlock()

	ls, exists := q.lanes[lane]
	if !exists {
		ls = &laneState{concurrency: concurrency}
		q.lanes[lane] = ls
		q.logger.Debug().Str("lane", lane).Int("concurrency", concurrency).Msg("Lane initialized")
	}
	return ls
}

func (q *Queue) lane(lane string) *laneState {
	q.mu.RLock()
	ls, exists := q.lanes[lane]
	q.mu.RUnlock()

	if !exists {
		return q.initLane(lane, 1)
	}
	return ls
}

// InLane reports whether ctx belongs to a task running on lane
func InLane(ctx context.Context, lane string) bool {
	return ctx != nil && ctx.Value(laneKey{lane}) != nil
}

// Enqueue runs task on lane and waits for it. When ctx already belongs to a
// task of the same lane the task runs inline.
func (q *Queue) Enqueue(ctx context.Context, lane string, task Task) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if InLane(ctx, lane) {
		return task(ctx)
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"orca.commandqueue",
		"commandqueue.enqueue",
		attribute.String("lane", lane),
	)
	defer span.End()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.taskIDSeq++
	taskID := fmt.Sprintf("%s-%d", lane, q.taskIDSeq)
	q.mu.Unlock()

	ls := q.lane(lane)

	record := &taskRecord{
		id:         taskID,
		task:       task,
		ctx:        ctx,
		enqueuedAt: time.Now(),
		result:     make(chan error, 1),
	}

	ls.mu.Lock()
	ls.queue = append(ls.queue, record)
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	logger := tracing.LoggerFromContext(ctx, q.logger)
	logger.Debug().
		Str("lane", lane).
		Str("taskId", taskID).
		Int("queueSize", queueSize).
		Msg("Task enqueued")
	observability.RecordQueueEnqueue(lane, queueSize)

	go q.processLane(lane)

	var err error
	select {
	case err = <-record.result:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (q *Queue) processLane(lane string) {
	ls := q.lane(lane)
	ls.mu.Lock()
	defer ls.mu.Unlock()

	for ls.running < ls.concurrency && len(ls.queue) > 0 {
		record := ls.queue[0]
		ls.queue = ls.queue[1:]

		if err := record.ctx.Err(); err != nil {
			record.result <- err
			continue
		}

		ls.running++
		q.wg.Add(1)
		go q.execute(lane, record)
	}
}

func (q *Queue) execute(lane string, record *taskRecord) {
	defer q.wg.Done()

	taskCtx, span := tracing.StartSpan(
		record.ctx,
		"orca.commandqueue",
		"commandqueue.execute_task",
		attribute.String("lane", lane),
		attribute.String("task_id", record.id),
	)
	defer span.End()

	taskCtx = context.WithValue(taskCtx, laneKey{lane}, record.id)
	runCtx, cancel := context.WithCancel(taskCtx)
	stopCancel := context.AfterFunc(q.ctx, cancel)
	defer func() {
		stopCancel()
		cancel()
	}()

	logger := tracing.LoggerFromContext(taskCtx, q.logger)
	start := time.Now()

	err := q.run(runCtx, record)
	duration := time.Since(start)

	ls := q.lane(lane)
	ls.mu.Lock()
	ls.running--
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	record.result <- err

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Debug().Str("lane", lane).Str("taskId", record.id).Dur("duration", duration).Err(err).Msg("Task failed")
	} else {
		logger.Debug().Str("lane", lane).Str("taskId", record.id).Dur("duration", duration).Msg("Task completed")
	}
	observability.RecordQueueCompletion(lane, duration, err == nil, queueSize)

	go q.processLane(lane)
}

// run converts a task panic into an error so the lane keeps draining
func (q *Queue) run(ctx context.Context, record *taskRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", record.id, r)
		}
	}()
	return record.task(ctx)
}

// Stats returns queued and running counts per lane
func (q *Queue) Stats() map[string]map[string]int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := make(map[string]map[string]int, len(q.lanes))
	for lane, ls := range q.lanes {
		ls.mu.Lock()
		stats[lane] = map[string]int{
			"queued":      len(ls.queue),
			"running":     ls.running,
			"concurrency": ls.concurrency,
		}
		ls.mu.Unlock()
	}
	return stats
}

// SetConcurrency updates the concurrency limit for a lane
func (q *Queue) SetConcurrency(lane string, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	ls := q.lane(lane)
	ls.mu.Lock()
	old := ls.concurrency
	ls.concurrency = concurrency
	ls.mu.Unlock()

	if concurrency > old {
		go q.processLane(lane)
	}
}

// Close cancels running tasks and waits for them to return
func (q *Queue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	return nil
}
