// Package sched runs the fixed set of periodic background workers. A worker
// error is logged and the next tick scheduled; workers are never aborted.
package sched

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Worker is one periodic background task. Period means "fire no faster
// than": the next tick is scheduled after Run returns.
type Worker struct {
	Name    string
	Period  time.Duration
	Enabled bool
	Run     func(ctx context.Context) error
}

// Orchestrator owns worker lifecycles. Shutdown cancels the shared context
// and awaits in-flight runs up to a bounded deadline.
type Orchestrator struct {
	mu      sync.Mutex
	workers []Worker
	wg      sync.WaitGroup
	started bool
	log     *zap.Logger
}

// New creates an empty orchestrator.
func New(log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{log: log}
}

// Register adds a worker. Must be called before Start.
func (o *Orchestrator) Register(w Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		o.log.Error("worker registered after start, ignoring", zap.String("worker", w.Name))
		return
	}
	o.workers = append(o.workers, w)
}

// Names returns the names of the enabled workers; disabled ones are omitted.
func (o *Orchestrator) Names() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.workers))
	for _, w := range o.workers {
		if w.Enabled {
			names = append(names, w.Name)
		}
	}
	return names
}

// Start launches one goroutine per enabled worker. Each runs immediately,
// then on its period, until ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	workers := make([]Worker, len(o.workers))
	copy(workers, o.workers)
	o.started = true
	o.mu.Unlock()

	enabled := 0
	for _, w := range workers {
		if !w.Enabled {
			continue
		}
		enabled++
		o.wg.Add(1)
		go o.loop(ctx, w)
	}
	o.log.Info("background workers started", zap.Int("count", enabled))
}

func (o *Orchestrator) loop(ctx context.Context, w Worker) {
	defer o.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			o.log.Warn("worker tick failed", zap.String("worker", w.Name), zap.Error(err))
		}

		if ctx.Err() != nil {
			return
		}
		timer.Reset(w.Period)
	}
}

// Wait blocks until all workers exit or the deadline elapses. Returns true
// when everything drained in time.
func (o *Orchestrator) Wait(deadline time.Duration) bool {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(deadline):
		o.log.Warn("some workers did not stop before deadline")
		return false
	}
}
