package notify

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a unit of background work, usually one email.
type Job func(ctx context.Context) error

type task struct {
	name string
	fn   Job
}

// Dispatcher runs jobs on a fixed pool of workers. Dispatch never blocks:
// when the queue is full the job is dropped and logged.
type Dispatcher struct {
	log     *zap.Logger
	timeout time.Duration
	queue   chan task

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts workers goroutines reading from a queue of the given size.
func NewDispatcher(log *zap.Logger, workers, queue int, timeout time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	d := &Dispatcher{log: log, timeout: timeout, queue: make(chan task, queue)}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

// Dispatch enqueues fn under name. It reports whether the job was accepted.
func (d *Dispatcher) Dispatch(name string, fn Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("notification_dropped", zap.String("job", name), zap.String("reason", "closed"))
		return false
	}
	select {
	case d.queue <- task{name: name, fn: fn}:
		return true
	default:
		d.log.Warn("notification_dropped", zap.String("job", name), zap.String("reason", "queue_full"))
		return false
	}
}

// Close stops accepting jobs and waits for queued ones until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for t := range d.queue {
		d.run(t)
	}
}

func (d *Dispatcher) run(t task) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("notification_panic",
				zap.String("job", t.name),
				zap.Any("reason", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()

	start := time.Now()
	if err := t.fn(ctx); err != nil {
		d.log.Error("notification_failed", zap.String("job", t.name), zap.Error(err), zap.Duration("dur", time.Since(start)))
		return
	}
	d.log.Debug("notification_sent", zap.String("job", t.name), zap.Duration("dur", time.Since(start)))
}
