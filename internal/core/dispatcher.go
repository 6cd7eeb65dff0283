package core

// dispatcher.go runs metadata generation off the request path.
//
// Upload enqueues a MetadataJob and returns. Workers call the generator
// with a per-attempt timeout, retry with exponential backoff and hand the
// resulting MetadataOutcome to the service, which applies it through the
// lifecycle. A job that cannot be queued is reported as a failed outcome
// straight away so the dataset never stays in processed.

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/datasets/internal/logging"
)

// MetadataGenerator produces bilingual metadata from prompt content.
type MetadataGenerator interface {
	Generate(ctx context.Context, content string) (Metadata, error)
}

// ErrGeneratorUnavailable marks generator failures that retrying cannot
// fix, such as an open circuit breaker or a missing API key.
var ErrGeneratorUnavailable = errors.New("metadata generator unavailable")

// ErrQueueFull is the outcome error for jobs rejected by a full queue.
var ErrQueueFull = errors.New("metadata queue is full")

// ErrDispatcherStopped is the outcome error for jobs enqueued after Stop.
var ErrDispatcherStopped = errors.New("metadata dispatcher stopped")

// MetadataJob asks for metadata for one dataset.
type MetadataJob struct {
	DatasetID string
	Content   string
	Enqueued  time.Time
}

// MetadataOutcome is the completion message for a job. Err is nil on
// success.
type MetadataOutcome struct {
	DatasetID string
	Metadata  Metadata
	Err       error
	Attempts  int
}

// DispatcherConfig tunes the worker pool.
type DispatcherConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration // per attempt
	Retries   int           // attempts after the first
	Backoff   time.Duration // delay before the first retry, doubled after
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	return c
}

// OutcomeHandler applies a finished job.
type OutcomeHandler func(ctx context.Context, o MetadataOutcome)

// Dispatcher is a bounded queue drained by a fixed set of workers.
type Dispatcher struct {
	gen      MetadataGenerator
	handle   OutcomeHandler
	cfg      DispatcherConfig
	recorder Recorder

	jobs chan MetadataJob

	mu      sync.RWMutex
	started bool
	stopped bool

	group  errgroup.Group
	cancel context.CancelFunc
}

// NewDispatcher creates a stopped dispatcher. Call Start before Enqueue.
func NewDispatcher(gen MetadataGenerator, cfg DispatcherConfig, handle OutcomeHandler, rec Recorder) *Dispatcher {
	cfg = cfg.withDefaults()
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Dispatcher{
		gen:      gen,
		handle:   handle,
		cfg:      cfg,
		recorder: rec,
		jobs:     make(chan MetadataJob, cfg.QueueSize),
	}
}

// Start launches the workers. Jobs run under a context detached from ctx's
// cancellation so that a finished request never aborts its job.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	for i := 0; i < d.cfg.Workers; i++ {
		d.group.Go(func() error {
			for job := range d.jobs {
				d.recorder.QueueDepth(len(d.jobs))
				d.handle(runCtx, d.run(runCtx, job))
			}
			return nil
		})
	}
}

// Enqueue queues job without blocking. When the queue is full or the
// dispatcher is stopped, a failed outcome is applied immediately.
func (d *Dispatcher) Enqueue(ctx context.Context, job MetadataJob) {
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now()
	}

	d.mu.RLock()
	var reject error
	switch {
	case d.stopped || !d.started:
		reject = ErrDispatcherStopped
	default:
		select {
		case d.jobs <- job:
			d.recorder.QueueDepth(len(d.jobs))
		default:
			reject = ErrQueueFull
		}
	}
	d.mu.RUnlock()

	if reject != nil {
		logging.ForDataset(ctx, job.DatasetID).Warn("metadata job rejected", "error", reject)
		d.recorder.MetadataGenerated("rejected", 0, 0)
		d.handle(context.WithoutCancel(ctx), MetadataOutcome{DatasetID: job.DatasetID, Err: reject})
	}
}

// Stop closes the queue and waits for queued jobs to finish. If ctx ends
// first, in-flight generator calls are cancelled and ctx's error returned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.jobs)
	cancel := d.cancel
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = d.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		if cancel != nil {
			cancel()
		}
		return nil
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		<-done
		return ctx.Err()
	}
}

// run executes one job with retries.
func (d *Dispatcher) run(ctx context.Context, job MetadataJob) MetadataOutcome {
	start := time.Now()
	out := MetadataOutcome{DatasetID: job.DatasetID}
	logger := logging.ForDataset(ctx, job.DatasetID)

	for attempt := 0; attempt <= d.cfg.Retries; attempt++ {
		if attempt > 0 {
			delay := d.cfg.Backoff << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				out.Err = ctx.Err()
				d.recorder.MetadataGenerated("failed", out.Attempts, time.Since(start))
				return out
			}
		}

		out.Attempts++
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		md, err := d.gen.Generate(callCtx, job.Content)
		cancel()

		if err == nil {
			out.Metadata = md
			out.Err = nil
			d.recorder.MetadataGenerated("succeeded", out.Attempts, time.Since(start))
			return out
		}

		out.Err = err
		logger.Warn("metadata generation attempt failed", "attempt", out.Attempts, "error", err)
		if errors.Is(err, ErrGeneratorUnavailable) || ctx.Err() != nil {
			break
		}
	}

	d.recorder.MetadataGenerated("failed", out.Attempts, time.Since(start))
	return out
}
