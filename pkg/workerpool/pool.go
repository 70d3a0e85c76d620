package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// WorkerPool manages a pool of workers
type WorkerPool struct {
	config Config
	tasks  chan *Task         // Task queue
	wg     sync.WaitGroup     // Wait for workers
	ctx    context.Context    // Pool context
	cancel context.CancelFunc // Cancel function
	once   sync.Once          // Ensure single shutdown
	closed atomic.Bool        // Pool closed flag

	// Statistics
	stats *statsCollector

	// For Wait() implementation
	waitGroup sync.WaitGroup
}

// NewWorkerPool creates a new worker pool with given configuration.
// Returns error if configuration is invalid.
//
// Example:
//
//	pool, err := workerpool.NewWorkerPool(workerpool.Config{
//	    Workers: 4,
//	    QueueSize: 100,
//	    ShutdownTimeout: 5 * time.Second,
//	})
func NewWorkerPool(config Config) (*WorkerPool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	pool := &WorkerPool{
		config: config,
		tasks:  make(chan *Task, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		stats:  newStatsCollector(),
	}

	pool.startWorkers()

	return pool, nil
}

// NewDefaultWorkerPool creates a pool with sensible defaults.
// Workers = runtime.NumCPU()
// QueueSize = 1000
// ShutdownTimeout = 30s
func NewDefaultWorkerPool() *WorkerPool {
	pool, _ := NewWorkerPool(DefaultConfig())
	return pool
}

// startWorkers starts the worker goroutines
func (p *WorkerPool) startWorkers() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		p.stats.incActiveWorkers()

		go p.worker()
	}
}

// worker is the main worker goroutine
func (p *WorkerPool) worker() {
	defer func() {
		p.wg.Done()
		p.stats.decActiveWorkers()
	}()

	for {
		select {
		case <-p.ctx.Done():
			return // Pool shutdown
		case task, ok := <-p.tasks:
			if !ok {
				return // Channel closed
			}
			p.executeTask(task)
		}
	}
}

// executeTask executes a single task with panic recovery
func (p *WorkerPool) executeTask(task *Task) {
	defer p.waitGroup.Done()

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.stats.recordTaskFailure()
			err := &TaskError{
				TaskID: task.ID,
				Err:    fmt.Errorf("panic: %v", r),
				Stack:  string(debug.Stack()),
			}
			if p.config.ErrorHandler != nil {
				p.config.ErrorHandler(err)
			}
		}

		p.stats.recordTaskCompletion(time.Since(start))
	}()

	if err := task.Fn(); err != nil {
		p.stats.recordTaskFailure()
		if p.config.ErrorHandler != nil {
			p.config.ErrorHandler(&TaskError{TaskID: task.ID, Err: err})
		}
	}
}

// Submit submits a task to the pool.
// Blocks if queue is full until space is available.
// Returns error if pool is closed.
//
// Example:
//
//	err := pool.Submit(func() error {
//	    // Do work
//	    return nil
//	})
func (p *WorkerPool) Submit(fn func() error) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	task := newTask(fn)
	p.waitGroup.Add(1)
	p.stats.recordTaskSubmission()

	select {
	case <-p.ctx.Done():
		p.waitGroup.Done()
		return ErrPoolClosed
	case p.tasks <- task:
		return nil
	}
}

// Stop gracefully shuts down the worker pool.
// Stops accepting new tasks and waits for in-flight tasks to complete.
// Respects ShutdownTimeout from config.
// Returns error if forced shutdown occurred (timeout exceeded).
func (p *WorkerPool) Stop() error {
	var shutdownErr error

	p.once.Do(func() {
		// Mark as closed
		p.closed.Store(true)

		// Close task channel (no more tasks accepted); workers drain it
		close(p.tasks)

		// Wait for workers with timeout
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			// Graceful shutdown completed
		case <-time.After(p.config.ShutdownTimeout):
			p.cancel()
			shutdownErr = fmt.Errorf("%w: shutdown timeout exceeded", ErrPoolClosed)
		}
	})

	return shutdownErr
}

// IsClosed returns true if pool is closed.
func (p *WorkerPool) IsClosed() bool {
	return p.closed.Load()
}

// Stats returns current pool statistics.
// Safe for concurrent access.
func (p *WorkerPool) Stats() Stats {
	return p.stats.snapshot(len(p.tasks))
}

// Wait blocks until all queued tasks are completed.
// Does not prevent new task submission.
// Use Stop() for graceful shutdown.
func (p *WorkerPool) Wait() {
	p.waitGroup.Wait()
}
