// Package queue defines the durable job queue contract, its retry policy and failure handling.
package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/job"
	"github.com/kailas-cloud/fedsearch/internal/metrics"
)

// Handler processes one delivery of a job. j.Attempt is 1 on the first delivery.
type Handler func(ctx context.Context, j job.Job) error

// Queue accepts jobs for asynchronous processing.
type Queue interface {
	Enqueue(ctx context.Context, jobs ...job.Job) error
}

// Consumer delivers jobs to a handler until ctx is done.
type Consumer interface {
	Run(ctx context.Context, h Handler) error
}

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the queue fails the job without retry. Nil stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return err
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// RetryPolicy bounds redelivery of failed jobs.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Exponential bool
	MaxDelay    time.Duration
}

// DefaultRetryPolicy retries three times total with exponential backoff from one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: time.Second, Exponential: true, MaxDelay: time.Minute}
}

// Backoff returns the wait before the delivery that follows attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.Delay <= 0 {
		return 0
	}
	d := p.Delay
	if p.Exponential && attempt > 1 {
		d = time.Duration(float64(p.Delay) * math.Pow(2, float64(attempt-1)))
	}
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	return d
}

// Outcome is what a queue does with a delivery after the handler returns.
type Outcome int

const (
	// Ack removes the job.
	Ack Outcome = iota
	// Retry redelivers the job after the returned delay.
	Retry
	// Fail hands the job to the failure sink.
	Fail
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "success"
	case Retry:
		return "retry"
	default:
		return "failed"
	}
}

// Decide maps a handler result to an outcome.
func (p RetryPolicy) Decide(attempt int, err error) (Outcome, time.Duration) {
	switch {
	case err == nil:
		return Ack, 0
	case IsPermanent(err):
		return Fail, 0
	case attempt >= max(p.MaxAttempts, 1):
		return Fail, 0
	default:
		return Retry, p.Backoff(attempt)
	}
}

// Execute runs h for one delivery, recording metrics and turning panics into errors.
func Execute(ctx context.Context, p RetryPolicy, h Handler, j job.Job) (out Outcome, delay time.Duration, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			out, delay = p.Decide(j.Attempt, err)
		}
		metrics.JobDuration.WithLabelValues(string(j.Kind)).Observe(time.Since(start).Seconds())
		metrics.JobsTotal.WithLabelValues(string(j.Kind), out.String()).Inc()
	}()

	err = h(ctx, j)
	out, delay = p.Decide(j.Attempt, err)
	return out, delay, err
}

// FailureSink receives jobs that will not be delivered again.
type FailureSink interface {
	Failed(ctx context.Context, j job.Job, err error)
}

// LogSink logs failed jobs with their full context.
type LogSink struct {
	Logger *zap.Logger
}

// Failed implements FailureSink.
func (s LogSink) Failed(_ context.Context, j job.Job, err error) {
	s.Logger.Error("Job permanently failed",
		zap.String("job_id", j.ID),
		zap.String("kind", string(j.Kind)),
		zap.String("source_type", j.SourceType),
		zap.String("tenant", j.Tenant),
		zap.Strings("record_ids", j.RecordIDs),
		zap.Int("attempt", j.Attempt),
		zap.Bool("permanent", IsPermanent(err)),
		zap.Error(err),
	)
}

// Failure is a recorded dead letter. Err matches domain.ErrJobFailed.
type Failure struct {
	Job job.Job
	Err error
}

// MemorySink keeps dead letters in memory.
type MemorySink struct {
	mu       sync.Mutex
	failures []Failure
}

// Failed implements FailureSink.
func (s *MemorySink) Failed(_ context.Context, j job.Job, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, Failure{Job: j, Err: fmt.Errorf("%w: %w", domain.ErrJobFailed, err)})
}

// Failures returns a snapshot of the dead letters.
func (s *MemorySink) Failures() []Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Failure, len(s.failures))
	copy(out, s.failures)
	return out
}

// Sinks fans a failure out to several sinks in order.
type Sinks []FailureSink

// Failed implements FailureSink.
func (ss Sinks) Failed(ctx context.Context, j job.Job, err error) {
	for _, s := range ss {
		s.Failed(ctx, j, err)
	}
}
