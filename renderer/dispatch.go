// Copyright 2025 the gsplat authors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// workerPool runs kernel tasks on a fixed set of goroutines. Workers pull
// from their own queue first and steal from the others when idle, which
// keeps tiles with deep instance lists from serializing a whole stage.
type workerPool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	next    int
	nextMu  sync.Mutex
}

func newWorkerPool(workers int) *workerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &workerPool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range p.queues {
		p.queues[i] = make(chan func(), 4)
	}
	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *workerPool) worker(id int) {
	defer p.wg.Done()
	myQueue := p.queues[id]
	for {
		select {
		case <-p.done:
			return
		case task := <-myQueue:
			task()
		default:
			if task := p.steal(id); task != nil {
				task()
				continue
			}
			select {
			case <-p.done:
				return
			case task := <-myQueue:
				task()
			}
		}
	}
}

func (p *workerPool) steal(myID int) func() {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case task := <-p.queues[i]:
			return task
		default:
		}
	}
	return nil
}

// submit enqueues one task, round-robin across worker queues.
func (p *workerPool) submit(task func()) {
	p.nextMu.Lock()
	q := p.queues[p.next]
	p.next = (p.next + 1) % p.workers
	p.nextMu.Unlock()
	q <- task
}

// run executes fn over [0, n) in grain-sized blocks and waits for all blocks
// to complete. It must not be called from a pool worker.
func (p *workerPool) run(n, grain int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}
	if grain <= 0 {
		grain = 1
	}
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += grain {
		hi := min(lo+grain, n)
		wg.Add(1)
		p.submit(func() {
			defer wg.Done()
			fn(lo, hi)
		})
	}
	wg.Wait()
}

func (p *workerPool) close() {
	close(p.done)
	p.wg.Wait()
}

// dispatcher launches kernels on the pool. In debug mode every launch is
// synchronously checked: worker panics are caught, attributed to the failing
// kernel by name, and reported. In release mode the wrappers are elided and
// a kernel fault propagates as a raw panic.
type dispatcher struct {
	pool  *workerPool
	debug bool
}

func (d *dispatcher) launch(kernel string, n, grain int, fn func(lo, hi int)) error {
	if !d.debug {
		d.pool.run(n, grain, fn)
		return nil
	}
	var mu sync.Mutex
	var fault error
	d.pool.run(n, grain, func(lo, hi int) {
		defer func() {
			if r := recover(); r != nil {
				mu.Lock()
				if fault == nil {
					fault = fmt.Errorf("kernel %q: %v", kernel, r)
				}
				mu.Unlock()
			}
		}()
		fn(lo, hi)
	})
	if fault != nil {
		Logger().Error("kernel fault", zap.Error(fault))
		return fault
	}
	Logger().Debug("kernel complete", zap.String("kernel", kernel), zap.Int("items", n))
	return nil
}

// maxChunks bounds how many blocks the sort and scan primitives split their
// input into; their provisioned workspace is sized from it.
func maxChunks(workers int) int {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return workers * 4
}
