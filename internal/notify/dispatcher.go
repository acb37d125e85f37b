// AngelaMos | 2026
// dispatcher.go

package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fertilityflow/portal/internal/metrics"
)

type Task struct {
	Kind string
	Run  func(ctx context.Context) error
}

// Dispatcher runs notification tasks on a fixed pool of workers so request
// handlers never wait on Brevo. Enqueue never blocks: a full queue drops
// the task with a warning.
type Dispatcher struct {
	queue   chan Task
	log     *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
}

func NewDispatcher(
	workers, queueSize int,
	timeout time.Duration,
	log *slog.Logger,
) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}

	d := &Dispatcher{
		queue:   make(chan Task, queueSize),
		log:     log,
		timeout: timeout,
	}

	d.wg.Add(workers)
	for range workers {
		go d.work()
	}

	return d
}

func (d *Dispatcher) Enqueue(task Task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Warn("notification dropped after shutdown", slog.String("kind", task.Kind))
		metrics.Notifications.WithLabelValues(task.Kind, "dropped").Inc()
		return false
	}

	select {
	case d.queue <- task:
		return true
	default:
		d.log.Warn("notification queue full, dropping task", slog.String("kind", task.Kind))
		metrics.Notifications.WithLabelValues(task.Kind, "dropped").Inc()
		return false
	}
}

// Shutdown stops intake and waits for queued tasks to finish or ctx to end.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
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

func (d *Dispatcher) work() {
	defer d.wg.Done()

	for task := range d.queue {
		d.run(task)
	}
}

func (d *Dispatcher) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic in notification task",
				slog.String("kind", task.Kind),
				slog.Any("recover", r),
			)
			metrics.Notifications.WithLabelValues(task.Kind, "failed").Inc()
		}
	}()

	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err := task.Run(ctx); err != nil {
		d.log.Error("notification task failed",
			slog.String("kind", task.Kind),
			slog.Any("error", err),
		)
		metrics.Notifications.WithLabelValues(task.Kind, "failed").Inc()
		return
	}

	metrics.Notifications.WithLabelValues(task.Kind, "sent").Inc()
}
