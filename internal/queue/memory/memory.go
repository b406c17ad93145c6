// Package memory is an in-process job queue for single-binary deployments and tests.
// Jobs do not survive a restart.
package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/domain/job"
	"github.com/kailas-cloud/fedsearch/internal/queue"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("queue closed")

const defaultBuffer = 1024

// Queue delivers jobs from a buffered channel to a fixed worker pool.
type Queue struct {
	jobs    chan job.Job
	workers int
	policy  queue.RetryPolicy
	sink    queue.FailureSink
	logger  *zap.Logger

	// pending counts enqueued jobs that have not reached a final outcome.
	pending atomic.Int64
	closed  atomic.Bool
	done    chan struct{}
}

var (
	_ queue.Queue    = (*Queue)(nil)
	_ queue.Consumer = (*Queue)(nil)
)

// New creates a queue. buffer <= 0 uses a default capacity.
func New(workers, buffer int, policy queue.RetryPolicy, sink queue.FailureSink, logger *zap.Logger) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Queue{
		jobs:    make(chan job.Job, buffer),
		workers: workers,
		policy:  policy,
		sink:    sink,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Enqueue blocks while the buffer is full.
func (q *Queue) Enqueue(ctx context.Context, jobs ...job.Job) error {
	for _, j := range jobs {
		if j.Attempt <= 0 {
			j.Attempt = 1
		}
		q.pending.Add(1)
		if err := q.push(ctx, j); err != nil {
			q.pending.Add(-1)
			return err
		}
	}
	return nil
}

func (q *Queue) push(ctx context.Context, j job.Job) error {
	if q.closed.Load() {
		return ErrClosed
	}
	select {
	case q.jobs <- j:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the worker pool and blocks until ctx is done.
func (q *Queue) Run(ctx context.Context, h queue.Handler) error {
	var wg sync.WaitGroup
	for range q.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx, h)
		}()
	}
	wg.Wait()
	return nil
}

func (q *Queue) work(ctx context.Context, h queue.Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case j := <-q.jobs:
			q.handle(ctx, h, j)
		}
	}
}

func (q *Queue) handle(ctx context.Context, h queue.Handler, j job.Job) {
	out, delay, err := queue.Execute(ctx, q.policy, h, j)
	switch out {
	case queue.Ack:
		q.pending.Add(-1)
	case queue.Retry:
		q.logger.Warn("Job failed, scheduling retry",
			zap.String("job_id", j.ID),
			zap.Int("attempt", j.Attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		next := j
		next.Attempt++
		time.AfterFunc(delay, func() {
			if err := q.push(ctx, next); err != nil {
				q.sink.Failed(context.WithoutCancel(ctx), next, err)
				q.pending.Add(-1)
			}
		})
	case queue.Fail:
		q.sink.Failed(ctx, j, err)
		q.pending.Add(-1)
	}
}

// Close stops accepting jobs and releases idle workers. Pending retries are dropped to the sink.
func (q *Queue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.done)
	}
}

// Wait blocks until every enqueued job is acknowledged or failed, or ctx is done.
// Workers must be running for Wait to return.
func (q *Queue) Wait(ctx context.Context) error {
	t := time.NewTicker(10 * time.Millisecond)
	defer t.Stop()
	for q.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

// Len returns the number of buffered jobs.
func (q *Queue) Len() int {
	return len(q.jobs)
}
