// Package worker runs collaborator jobs off the gameplay path on a bounded
// goroutine pool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Job is a unit of background work. The context is cancelled if the pool is
// forced to stop before the job finishes.
type Job func(ctx context.Context) error

// Status is a point-in-time view of the pool
type Status struct {
	Capacity int `json:"capacity"`
	Running  int `json:"running"`
	Pending  int `json:"pending"`
}

// Pool is a bounded pool of goroutines backed by ants. When every worker is
// busy a job runs on a fresh goroutine instead of blocking the submitter.
type Pool struct {
	mu     sync.RWMutex
	pool   *ants.Pool
	closed bool

	pending sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
}

// New creates a pool with the given number of workers
func New(size int, logger *slog.Logger) (*Pool, error) {
	pool, err := ants.NewPool(size,
		ants.WithExpiryDuration(60*time.Second),
		ants.WithNonblocking(true),
	)
	if err != nil {
		return nil, fmt.Errorf("pool init failed: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		pool:   pool,
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With(slog.String("component", "worker_pool")),
	}, nil
}

// Submit schedules job. The name is used for logging only.
func (p *Pool) Submit(name string, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job dropped, pool closed", slog.String("job", name))
		return ErrPoolClosed
	}

	p.pending.Add(1)
	run := func() {
		defer p.pending.Done()
		p.safeRun(name, job)
	}
	if err := p.pool.Submit(run); err != nil {
		p.logger.Warn("pool fallback", slog.String("job", name), slog.String("reason", err.Error()))
		go run()
	}
	return nil
}

func (p *Pool) safeRun(name string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panic",
				slog.String("job", name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	if p.ctx.Err() != nil {
		return
	}
	if err := job(p.ctx); err != nil {
		p.logger.Warn("job failed", slog.String("job", name), slog.String("error", err.Error()))
	}
}

// Status reports the pool's capacity and load
func (p *Pool) Status() Status {
	return Status{
		Capacity: p.pool.Cap(),
		Running:  p.pool.Running(),
		Pending:  p.pool.Waiting(),
	}
}

// Stop refuses new jobs and waits for submitted ones. If ctx expires first
// the remaining jobs' contexts are cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	p.cancel()
	p.pool.Release()
	p.logger.Info("worker pool stopped", slog.Bool("drained", err == nil))
	return err
}
