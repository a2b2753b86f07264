package tutor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Dispatcher errors delivered on a job's result channel.
var (
	ErrDropped          = errors.New("side effect dropped under backpressure")
	ErrDispatcherClosed = errors.New("side effect dispatcher closed")
)

const (
	defaultDispatchQueue   = 256
	defaultJobTimeout      = 5 * time.Second
	dispatcherCloseTimeout = 5 * time.Second
	slowJobThreshold       = 500 * time.Millisecond
)

type job struct {
	name string
	run  func(ctx context.Context) error
	done chan error
}

// DispatcherStats is a snapshot of dispatcher counters.
type DispatcherStats struct {
	QueueLen      int   `json:"queueLen"`
	QueueCapacity int   `json:"queueCapacity"`
	Enqueued      int64 `json:"enqueued"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
	Dropped       int64 `json:"dropped"`
}

// Dispatcher runs best-effort side effects on a single background worker so
// they never delay a reply. When the queue is full the oldest job is dropped.
type Dispatcher struct {
	queue      chan *job
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	jobTimeout time.Duration
	logger     *slog.Logger

	// mu guards closed; submitters hold it for reading so Close cannot
	// close the queue under them.
	mu     sync.RWMutex
	closed bool

	enqueued  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewDispatcher starts a dispatcher. Non-positive arguments use defaults.
func NewDispatcher(queueSize int, jobTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = defaultDispatchQueue
	}
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		queue:      make(chan *job, queueSize),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		jobTimeout: jobTimeout,
		logger:     logger,
	}
	go d.worker()
	return d
}

// Submit queues fn and returns a channel that receives exactly one value:
// the job's result, ErrDropped, or ErrDispatcherClosed. Submit never blocks.
func (d *Dispatcher) Submit(name string, fn func(ctx context.Context) error) <-chan error {
	j := &job{name: name, run: fn, done: make(chan error, 1)}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		j.done <- ErrDispatcherClosed
		return j.done
	}

	select {
	case d.queue <- j:
		d.enqueued.Add(1)
		return j.done
	default:
	}

	d.logger.Warn("side effect queue full, applying backpressure",
		"job", name, "queue_len", len(d.queue))

	select {
	case oldest := <-d.queue:
		d.dropped.Add(1)
		oldest.done <- ErrDropped
		d.logger.Warn("dropped oldest side effect", "job", oldest.name)
	default:
	}

	select {
	case d.queue <- j:
		d.enqueued.Add(1)
	default:
		d.dropped.Add(1)
		j.done <- ErrDropped
	}
	return j.done
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	for j := range d.queue {
		d.execute(j)
	}
}

func (d *Dispatcher) execute(j *job) {
	ctx, cancel := context.WithTimeout(d.ctx, d.jobTimeout)
	defer cancel()

	start := time.Now()
	err := safeRun(ctx, j.run)
	if elapsed := time.Since(start); elapsed > slowJobThreshold {
		d.logger.Warn("slow side effect", "job", j.name, "duration_ms", elapsed.Milliseconds())
	}

	if err != nil {
		d.failed.Add(1)
	} else {
		d.completed.Add(1)
	}
	j.done <- err
}

func safeRun(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Kind: KindInternal, Err: errors.New("side effect panicked")}
			slog.Error("side effect panicked", "panic", r)
		}
	}()
	return fn(ctx)
}

// Stats returns current counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		QueueLen:      len(d.queue),
		QueueCapacity: cap(d.queue),
		Enqueued:      d.enqueued.Load(),
		Completed:     d.completed.Load(),
		Failed:        d.failed.Load(),
		Dropped:       d.dropped.Load(),
	}
}

// Close stops accepting jobs and lets the worker finish the queue. If that
// takes longer than five seconds the remaining jobs are cancelled.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.logger.Info("closing side effect dispatcher", "queue_remaining", len(d.queue))

	select {
	case <-d.done:
		d.cancel()
		return nil
	case <-time.After(dispatcherCloseTimeout):
		d.logger.Warn("side effect dispatcher shutdown timeout, cancelling remaining jobs",
			"queue_remaining", len(d.queue))
		d.cancel()
		<-d.done
		return errors.New("side effect dispatcher shutdown timeout")
	}
}
