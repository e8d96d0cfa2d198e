// Package sideeffects runs post-commit work off the request path.
package sideeffects

import (
	"context"
	"sync"
	"time"

	"concierge/pkg/logger"
)

type Task func(ctx context.Context) error

// Dispatcher starts each task on its own goroutine with a fresh context,
// detached from the caller's, so a finished HTTP request never cancels it.
// Failures are logged and dropped.
type Dispatcher struct {
	log     *logger.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(log *logger.Logger, timeout time.Duration) *Dispatcher {
	return &Dispatcher{log: log, timeout: timeout}
}

// Dispatch schedules task. It reports false when the dispatcher is draining.
func (d *Dispatcher) Dispatch(name string, task Task) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn("Side effect dropped, dispatcher is draining", "task", name)
		return false
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("Side effect panicked", "task", name, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		start := time.Now()
		if err := task(ctx); err != nil {
			d.log.Error("Side effect failed", "task", name, "duration", time.Since(start), "error", err)
			return
		}
		d.log.Debug("Side effect completed", "task", name, "duration", time.Since(start))
	}()
	return true
}

// Drain refuses new tasks and waits for in-flight ones until ctx ends.
func (d *Dispatcher) Drain(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info("Side effects drained")
		return nil
	case <-ctx.Done():
		d.log.Warn("Side effects still running at shutdown")
		return ctx.Err()
	}
}
