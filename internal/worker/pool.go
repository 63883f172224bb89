package worker

import (
	"context"
	"sync"
)

// Task is a unit of work run by a Pool
type Task[T any] func(ctx context.Context) T

// Pool runs tasks on a fixed set of goroutines. Results arrive in
// completion order.
type Pool[T any] struct {
	workers int
	tasks   chan Task[T]
	results chan T
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	closeResults sync.Once
	closeTasks   sync.Once
}

// NewPool creates a pool of workers bound to ctx. Running tasks receive the
// cancelled context; queued tasks are dropped.
func NewPool[T any](ctx context.Context, workers int) *Pool[T] {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Pool[T]{
		workers: workers,
		tasks:   make(chan Task[T], workers*2),
		results: make(chan T, workers*2),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers
func (p *Pool[T]) Start() {
	for range p.workers {
		p.wg.Add(1)
		go p.run()
	}
}

func (p *Pool[T]) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			out := task(p.ctx)
			select {
			case p.results <- out:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a task. It reports false once the pool is cancelled.
func (p *Pool[T]) Submit(task Task[T]) bool {
	select {
	case <-p.ctx.Done():
		return false
	case p.tasks <- task:
		return true
	}
}

// Close marks the end of submissions
func (p *Pool[T]) Close() {
	p.closeTasks.Do(func() { close(p.tasks) })
}

// Collect drains results until every worker has exited. Run it alongside
// Submit when the batch is larger than the queue.
func (p *Pool[T]) Collect() []T {
	go func() {
		p.wg.Wait()
		p.closeResults.Do(func() { close(p.results) })
	}()

	var out []T
	for r := range p.results {
		out = append(out, r)
	}
	p.cancel()
	return out
}

// Wait closes the queue and collects every result
func (p *Pool[T]) Wait() []T {
	p.Close()
	return p.Collect()
}

// Shutdown cancels running tasks and waits for the workers to exit
func (p *Pool[T]) Shutdown() {
	p.cancel()
	p.wg.Wait()
	p.closeResults.Do(func() { close(p.results) })
}
