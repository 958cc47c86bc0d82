// Package workerpool provides a simple worker pool to run a number of tasks
// with a fixed amount of parallelism.
package workerpool

import (
	"sync"
)

// Pool runs functions on a fixed number of worker goroutines.
//
// Example:
//
//	p := workerpool.New(10)
//	for _, task := range tasks {
//	  task := task
//	  p.Go(func() {
//	    process(task)
//	  })
//	}
//	p.Wait()
type Pool struct {
	queue chan func()
	wg    sync.WaitGroup
	mtx   sync.Mutex
	done  bool
}

// New returns a Pool which runs at most numWorkers functions concurrently.
func New(numWorkers int) *Pool {
	p := &Pool{
		queue: make(chan func()),
	}
	p.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer p.wg.Done()
			for fn := range p.queue {
				fn()
			}
		}()
	}
	return p
}

// Go enqueues the given function to be run by a worker. It blocks until a
// worker is available. Panics if called after Wait().
func (p *Pool) Go(fn func()) {
	// Sending on the closed queue after Wait() panics, which is what we want.
	p.queue <- fn
}

// Wait stops the Pool, blocking until all previously enqueued functions have
// finished. The Pool cannot be reused; calling Go() or Wait() again panics.
func (p *Pool) Wait() {
	p.mtx.Lock()
	if p.done {
		p.mtx.Unlock()
		panic("Wait() may only be called once per Pool.")
	}
	p.done = true
	p.mtx.Unlock()
	close(p.queue)
	p.wg.Wait()
}
