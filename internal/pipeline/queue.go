package pipeline

import (
	"context"
	"errors"
	"sync"

	"contentengine/internal/infra"
)

// ErrQueueFull is returned by Submit when no slot is free.
var ErrQueueFull = errors.New("pipeline: queue full")

var errQueueClosed = errors.New("pipeline: queue closed")

// Task is one queued run against an accepted job.
type Task struct {
	JobID   int64
	Params  Params
	Publish bool
}

// Queue runs generation tasks on a fixed set of goroutines so request
// handlers never wait on provider or image retries.
type Queue struct {
	run    func(ctx context.Context, t Task) error
	tasks  chan Task
	logger *infra.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue returns a queue that runs tasks through p. depth bounds the
// number of waiting tasks.
func NewQueue(p *Pipeline, depth int, logger *infra.Logger) *Queue {
	return newQueue(func(ctx context.Context, t Task) error {
		_, err := p.GenerateOnce(ctx, t.Params, t.Publish, t.JobID)
		return err
	}, depth, logger)
}

func newQueue(run func(context.Context, Task) error, depth int, logger *infra.Logger) *Queue {
	if depth < 1 {
		depth = 1
	}
	return &Queue{run: run, tasks: make(chan Task, depth), logger: infra.LoggerOrDiscard(logger)}
}

// Start launches workers goroutines that drain the queue until Close.
func (q *Queue) Start(ctx context.Context, workers int) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for t := range q.tasks {
				if err := q.run(ctx, t); err != nil {
					q.logger.Warn().Err(err).Int64("job_id", t.JobID).Msg("pipeline: queued run failed")
				}
			}
		}()
	}
}

// Submit enqueues t without blocking.
func (q *Queue) Submit(t Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errQueueClosed
	}
	select {
	case q.tasks <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
