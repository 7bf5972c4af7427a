package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/try-flowforge/backend/pkg/ratelimit"
)

const maxRetryDelay = time.Hour

// Handler processes one job. The returned value is stored as the job result.
type Handler func(ctx context.Context, job *Job) (any, error)

// Options tunes a worker pool for one queue.
type Options struct {
	Concurrency     int           `yaml:"concurrency"       validate:"min=1"`
	RateLimitMax    int           `yaml:"rate_limit_max"    validate:"min=0"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
	Attempts        int           `yaml:"attempts"          validate:"min=1"`
	BackoffDelay    time.Duration `yaml:"backoff_delay"`
	JobTimeout      time.Duration `yaml:"job_timeout"       validate:"gt=0"`
	PollTimeout     time.Duration `yaml:"poll_timeout"`
	PromoteInterval time.Duration `yaml:"promote_interval"`
	StallTimeout    time.Duration `yaml:"stall_timeout"`
}

// PermanentError marks a handler failure that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the worker fails the job without retrying.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Worker consumes one queue with a fixed number of goroutines.
type Worker struct {
	client  *Client
	limiter *ratelimit.Limiter
	queue   string
	handler Handler
	opts    Options
	logger  *slog.Logger
}

func NewWorker(client *Client, limiter *ratelimit.Limiter, queueName string, handler Handler, opts Options, logger *slog.Logger) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}

	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 5 * time.Minute
	}

	if opts.PollTimeout <= 0 {
		opts.PollTimeout = time.Second
	}

	if opts.PromoteInterval <= 0 {
		opts.PromoteInterval = time.Second
	}

	if opts.StallTimeout <= 0 {
		opts.StallTimeout = 2 * opts.JobTimeout
	}

	return &Worker{
		client:  client,
		limiter: limiter,
		queue:   queueName,
		handler: handler,
		opts:    opts,
		logger:  logger.With("module", "queue_worker", "queue", queueName),
	}
}

// Run blocks until ctx is cancelled and all in-flight jobs have settled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting queue worker", "concurrency", w.opts.Concurrency)

	var wg sync.WaitGroup

	for i := range w.opts.Concurrency {
		wg.Add(1)

		go func() {
			defer wg.Done()
			w.consume(ctx, i)
		}()
	}

	wg.Add(1)

	go func() {
		defer wg.Done()
		w.maintain(ctx)
	}()

	wg.Wait()
	w.logger.InfoContext(ctx, "Queue worker stopped")

	return nil
}

func (w *Worker) consume(ctx context.Context, slot int) {
	logger := w.logger.With("slot", slot)

	for ctx.Err() == nil {
		job, err := w.client.reserve(ctx, w.queue, w.opts.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			logger.ErrorContext(ctx, "Failed to reserve job", "error", err)
			sleep(ctx, w.opts.PollTimeout)

			continue
		}

		if job == nil {
			continue
		}

		w.throttle(ctx)
		w.Process(context.WithoutCancel(ctx), job)
	}
}

// throttle waits until the queue-wide rate limit admits another job.
func (w *Worker) throttle(ctx context.Context) {
	if w.limiter == nil || w.opts.RateLimitMax <= 0 || w.opts.RateLimitWindow <= 0 {
		return
	}

	for ctx.Err() == nil {
		result := w.limiter.CheckRateLimit(ctx, "queue:"+w.queue, w.opts.RateLimitMax, w.opts.RateLimitWindow)
		if result.Allowed {
			return
		}

		sleep(ctx, result.ResetIn)
	}
}

// Process runs the handler for a reserved job and settles it.
func (w *Worker) Process(ctx context.Context, job *Job) {
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = w.opts.Attempts
	}

	logger := w.logger.With("job_id", job.ID, "attempt", job.Attempts, "max_attempts", maxAttempts)
	logger.DebugContext(ctx, "Processing job")

	jobCtx, cancel := context.WithTimeout(ctx, w.opts.JobTimeout)
	defer cancel()

	value, err := w.invoke(jobCtx, job)
	if err == nil {
		err = w.client.complete(ctx, job, value)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to complete job", "error", err)
		}

		return
	}

	var permanent *PermanentError
	if errors.As(err, &permanent) || errors.Is(err, ErrInvalidInput) || job.Attempts >= maxAttempts {
		logger.ErrorContext(ctx, "Job failed", "error", err)

		settleErr := w.client.fail(ctx, job, err)
		if settleErr != nil {
			logger.ErrorContext(ctx, "Failed to mark job as failed", "error", settleErr)
		}

		return
	}

	delay := RetryDelay(w.opts.BackoffDelay, job.Attempts)
	logger.WarnContext(ctx, "Job failed, scheduling retry", "error", err, "delay", delay)

	settleErr := w.client.retry(ctx, job, err, delay)
	if settleErr != nil {
		logger.ErrorContext(ctx, "Failed to schedule retry", "error", settleErr)
	}
}

func (w *Worker) invoke(ctx context.Context, job *Job) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()

	return w.handler(ctx, job)
}

func (w *Worker) maintain(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PromoteInterval)
	defer ticker.Stop()

	lastRecovery := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := w.client.Promote(ctx, w.queue)
			if err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Failed to promote delayed jobs", "error", err)
			}

			if time.Since(lastRecovery) < w.opts.StallTimeout {
				continue
			}

			lastRecovery = time.Now()

			_, err = w.client.Recover(ctx, w.queue, w.opts.StallTimeout)
			if err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Failed to recover stalled jobs", "error", err)
			}
		}
	}
}

// RetryDelay returns base * 2^(attempt-1).
func RetryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = base
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = maxRetryDelay
	policy.MaxElapsedTime = 0
	policy.Reset()

	delay := policy.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = policy.NextBackOff()
	}

	return delay
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
