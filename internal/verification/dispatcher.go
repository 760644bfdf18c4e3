package verification

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"ironclad/internal/platform/metrics"
)

const (
	DefaultWorkers      = 4
	DefaultQueueSize    = 256
	DefaultDrainTimeout = 10 * time.Second
)

// Verifier is the work each dispatcher worker performs.
type Verifier interface {
	Verify(ctx context.Context, task Task) Result
}

// Dispatcher feeds tasks to a fixed pool of workers through a bounded queue.
// Submit never blocks; a full queue drops the task.
type Dispatcher struct {
	verifier     Verifier
	queue        chan Task
	workers      int
	drainTimeout time.Duration
	stopped      atomic.Bool
	logger       *slog.Logger
	metrics      *metrics.Metrics
	results      ResultStore
}

type DispatcherOption func(*Dispatcher)

func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithDrainTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.drainTimeout = t
		}
	}
}

func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithDropRecorder stores a skipped result for every dropped task.
func WithDropRecorder(store ResultStore) DispatcherOption {
	return func(d *Dispatcher) {
		d.results = store
	}
}

func NewDispatcher(v Verifier, queueSize int, opts ...DispatcherOption) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	d := &Dispatcher{
		verifier:     v,
		queue:        make(chan Task, queueSize),
		workers:      DefaultWorkers,
		drainTimeout: DefaultDrainTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit enqueues task and reports whether it was accepted. It returns false
// without blocking when the queue is full or the dispatcher has stopped.
func (d *Dispatcher) Submit(ctx context.Context, task Task) bool {
	if d.stopped.Load() {
		d.drop(ctx, task, "dispatcher stopped")
		return false
	}
	select {
	case d.queue <- task:
		d.metrics.SetQueueDepth(len(d.queue))
		return true
	default:
		d.drop(ctx, task, "queue full")
		return false
	}
}

func (d *Dispatcher) drop(ctx context.Context, task Task, why string) {
	d.metrics.IncQueueDrop()
	d.metrics.IncVerification(string(StateAllowed), true, false)
	d.logger.WarnContext(ctx, "verification dropped",
		"request_id", task.RequestID,
		"reason", why,
		"tokens", len(task.TokenIDs),
	)
	if d.results == nil {
		return
	}
	now := time.Now()
	res := Result{
		RequestID:  task.RequestID,
		State:      StateAllowed,
		Tier:       StateAllowed,
		Skipped:    true,
		SkipReason: SkipQueueFull,
		TokenCount: len(task.TokenIDs),
		StartedAt:  now,
		FinishedAt: now,
	}
	if err := d.results.Save(context.WithoutCancel(ctx), res); err != nil {
		d.logger.WarnContext(ctx, "save dropped verification failed",
			"request_id", task.RequestID,
			"error", err,
		)
	}
}

// Pending returns the number of queued tasks.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Run starts the workers and blocks until ctx is cancelled and the queue has
// been drained, or the drain timeout elapses. Tasks still queued after the
// deadline are abandoned; their tokens simply expire.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.InfoContext(ctx, "verification dispatcher started",
		"workers", d.workers,
		"queue_size", cap(d.queue),
	)

	g, gctx := errgroup.WithContext(ctx)
	for range d.workers {
		g.Go(func() error {
			d.work(gctx)
			return nil
		})
	}
	<-gctx.Done()
	d.stopped.Store(true)

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.drainTimeout)
	defer cancel()
	for range d.workers {
		g.Go(func() error {
			d.drain(drainCtx)
			return nil
		})
	}
	err := g.Wait()

	if left := len(d.queue); left > 0 {
		d.logger.WarnContext(ctx, "verification drain deadline reached",
			"abandoned", left,
		)
	}
	d.logger.InfoContext(ctx, "verification dispatcher stopped")
	return err
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-d.queue:
			d.metrics.SetQueueDepth(len(d.queue))
			// Each verification outlives the shutdown signal; only the grader
			// timeout bounds it.
			d.verifier.Verify(context.WithoutCancel(ctx), task)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case task := <-d.queue:
			d.metrics.SetQueueDepth(len(d.queue))
			d.verifier.Verify(ctx, task)
		default:
			return
		}
	}
}
