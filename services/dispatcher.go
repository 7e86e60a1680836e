package services

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const sideEffectTimeout = 10 * time.Second

// Dispatcher runs post-commit side effects in the background. Failures are
// logged and never reach the request that triggered them.
type Dispatcher struct {
	log *slog.Logger
	wg  sync.WaitGroup
}

func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{log: log}
}

// Go schedules fn with its own timeout, detached from the caller's context.
func (d *Dispatcher) Go(name string, fn func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("side effect panicked", "task", name, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			d.log.Warn("side effect failed", "task", name, "err", err)
		}
	}()
}

// Wait blocks until every scheduled side effect has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
