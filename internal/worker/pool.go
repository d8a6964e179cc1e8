package worker

import (
	"context"
	"sort"
	"sync"
)

// Job is a unit of work run by the pool
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is what a job hands back
type Result interface {
	GetError() error
}

type queued struct {
	seq int
	job Job
}

type collected struct {
	seq    int
	result Result
}

// Pool runs jobs on a fixed number of goroutines. Results are returned in
// submission order regardless of completion order.
type Pool struct {
	workers    int
	jobQueue   chan queued
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc

	mu        sync.Mutex // guards submitted, closed and sends on jobQueue
	submitted int
	closed    bool

	resMu   sync.Mutex
	results []collected
}

// NewPool creates a pool of workers bound to ctx. Cancelling ctx has the
// same effect as Shutdown.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan queued, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case q, ok := <-p.jobQueue:
			if !ok {
				return
			}
			// Jobs observe ctx themselves; a started job always reports back
			result := q.job.Execute(p.ctx)
			p.resMu.Lock()
			p.results = append(p.results, collected{seq: q.seq, result: result})
			p.resMu.Unlock()
		}
	}
}

// Submit queues job. It returns false once the pool is shut down or Wait
// has been called.
func (p *Pool) Submit(job Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}

	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- queued{seq: p.submitted, job: job}:
		p.submitted++
		return true
	}
}

// Wait stops accepting jobs, waits for the queued ones and returns their
// results in submission order. Jobs still queued when the pool is shut
// down produce no result.
func (p *Pool) Wait() []Result {
	p.closeQueue()
	p.wg.Wait()
	return p.collect()
}

// Shutdown cancels the pool context and waits for running jobs to return
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.closeQueue()
	p.wg.Wait()
}

func (p *Pool) closeQueue() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.jobQueue)
	}
}

func (p *Pool) collect() []Result {
	p.resMu.Lock()
	defer p.resMu.Unlock()

	sort.Slice(p.results, func(i, j int) bool { return p.results[i].seq < p.results[j].seq })

	out := make([]Result, len(p.results))
	for i, c := range p.results {
		out[i] = c.result
	}
	return out
}
