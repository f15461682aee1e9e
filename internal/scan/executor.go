package scan

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// pool runs tasks on their own goroutines, at most size at a time. A size of
// zero leaves it unbounded.
type pool struct {
	size int
	sem  *semaphore.Weighted
	wg   sync.WaitGroup
}

func newPool(size int) *pool {
	p := &pool{size: size}
	if size > 0 {
		p.sem = semaphore.NewWeighted(int64(size))
	}
	return p
}

// submit schedules fn. If ctx is cancelled before a slot frees up, onCancel
// runs instead of fn.
func (p *pool) submit(ctx context.Context, fn func(), onCancel func(error)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if p.sem != nil {
			if err := p.sem.Acquire(ctx, 1); err != nil {
				onCancel(err)
				return
			}
			defer p.sem.Release(1)
		}
		fn()
	}()
}

// Executor owns the I/O pool for fetching, the CPU pool for processing and
// a single sink goroutine that runs emission jobs one by one in FIFO order.
type Executor struct {
	io   *pool
	cpu  *pool
	sink *queue[func()]

	sinkDone chan struct{}
}

// NewExecutor starts an executor. Pool sizes of zero mean unbounded.
func NewExecutor(ioSize, cpuSize int) *Executor {
	e := &Executor{
		io:       newPool(ioSize),
		cpu:      newPool(cpuSize),
		sink:     newQueue[func()](),
		sinkDone: make(chan struct{}),
	}
	go func() {
		defer close(e.sinkDone)
		for {
			job, ok := e.sink.Pop()
			if !ok {
				return
			}
			job()
		}
	}()
	return e
}

// IO schedules a fetch task.
func (e *Executor) IO(ctx context.Context, fn func(), onCancel func(error)) {
	e.io.submit(ctx, fn, onCancel)
}

// CPUBound returns the CPU pool size, zero when unbounded.
func (e *Executor) CPUBound() int { return e.cpu.size }

// CPU schedules a processing task.
func (e *Executor) CPU(ctx context.Context, fn func(), onCancel func(error)) {
	e.cpu.submit(ctx, fn, onCancel)
}

// Sink queues an emission job behind every job queued before it.
func (e *Executor) Sink(fn func()) {
	e.sink.Push(fn)
}

// Wait blocks until every scheduled task and sink job has finished. Fetch
// tasks may schedule processing tasks, so the pools are drained in pipeline
// order. The executor cannot be used afterwards.
func (e *Executor) Wait() {
	e.io.wg.Wait()
	e.cpu.wg.Wait()
	e.sink.Close()
	<-e.sinkDone
}
