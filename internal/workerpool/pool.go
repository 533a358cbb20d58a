package workerpool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Goofygiraffe06/blaze/internal/logging"
)

// Task represents a unit of work to be executed by the pool.
// The context carries the per-task deadline.
type Task func(ctx context.Context)

// Pool is a bounded worker pool executing submitted tasks.
type Pool struct {
	name        string
	size        int
	taskTimeout time.Duration
	queue       chan Task
	wg          sync.WaitGroup
	closed      chan struct{}
	shutdown    sync.Once
}

var (
	// ErrPoolClosed is returned when submitting to a closed pool.
	ErrPoolClosed = errors.New("worker pool closed")
	// ErrQueueFull is returned when the pool cannot accept more work.
	ErrQueueFull = errors.New("worker pool queue full")
)

// New creates a worker pool with given size, queue capacity and per-task timeout.
func New(name string, size, queueCap int, taskTimeout time.Duration) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueCap <= 0 {
		queueCap = 1
	}
	if taskTimeout <= 0 {
		taskTimeout = 30 * time.Second
	}
	p := &Pool{
		name:        name,
		size:        size,
		taskTimeout: taskTimeout,
		queue:       make(chan Task, queueCap),
		closed:      make(chan struct{}),
	}
	p.start()
	return p
}

func (p *Pool) start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-p.closed:
					return
				case task, ok := <-p.queue:
					if !ok {
						return
					}
					p.execute(id, task)
				}
			}
		}(i)
	}
}

func (p *Pool) execute(id int, task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), p.taskTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorLog("workerpool '%s' worker %d recovered from panic: %v", p.name, id, r)
		}
	}()
	task(ctx)
}

// Submit enqueues a task without waiting for it.
func (p *Pool) Submit(task Task) error {
	select {
	case <-p.closed:
		return ErrPoolClosed
	default:
	}
	select {
	case p.queue <- task:
		return nil
	default:
		logging.WarnLog("workerpool '%s' queue full; dropping task", p.name)
		return ErrQueueFull
	}
}

// Run executes fn on the pool and waits for it, or for ctx to end.
// fn sees the earlier of ctx's deadline and the pool task timeout.
func (p *Pool) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	err := p.Submit(func(taskCtx context.Context) {
		merged, cancel := context.WithCancel(taskCtx)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
		done <- fn(merged)
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close gracefully shuts down the pool and waits for workers to finish.
func (p *Pool) Close() {
	p.shutdown.Do(func() {
		close(p.closed)
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			logging.WarnLog("workerpool '%s' shutdown timed out", p.name)
		}
	})
}
