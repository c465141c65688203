// Package jobs runs extraction work on a fixed pool of workers with a
// bounded queue.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrQueueFull is returned by Submit when the queue has no room.
var ErrQueueFull = errors.New("job queue full")

// Job is one unit of background work.
type Job struct {
	Name string
	Run  func(ctx context.Context)
}

// Pool runs jobs on a fixed number of workers.
type Pool struct {
	queue chan Job
	log   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu serializes Submit against Shutdown so the queue is never sent
	// on after it is closed.
	mu     sync.Mutex
	closed bool

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewPool creates a pool with the given worker count and queue size.
func NewPool(workers, queueSize int, log *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 32
	}
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:  make(chan Job, queueSize),
		log:    log.With("component", "jobs"),
		ctx:    ctx,
		cancel: cancel,
	}

	p.startOnce.Do(func() {
		for i := 0; i < workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
	return p
}

// Submit enqueues a job without blocking. Returns ErrQueueFull when the
// queue is at capacity.
func (p *Pool) Submit(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %q has no run function", job.Name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("pool is shut down")
	}

	select {
	case p.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// QueueDepth returns the number of jobs waiting to run.
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}

// Shutdown stops accepting jobs, cancels running ones and waits for
// workers to exit.
func (p *Pool) Shutdown() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
		p.cancel()
	})
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for job := range p.queue {
		if p.ctx.Err() != nil {
			return
		}
		p.runJob(id, job)
	}
}

// runJob executes one job, converting a panic into a logged failure so
// a bad job cannot kill the worker.
func (p *Pool) runJob(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("job panicked", "worker", id, "job", job.Name, "panic", r)
		}
	}()

	p.log.Debug("job started", "worker", id, "job", job.Name)
	job.Run(p.ctx)
	p.log.Debug("job finished", "worker", id, "job", job.Name)
}
