package server

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// Job is one unit of work handed to the pool.
type Job func()

// jobQueueDepth bounds the handoff channel. Execute only blocks once this many
// jobs are waiting for a worker.
const jobQueueDepth = 64

// Pool runs a fixed set of symmetric workers consuming jobs from a shared
// channel. Any worker may pick up any job.
type Pool struct {
	jobs      chan Job
	wg        sync.WaitGroup
	logger    *Logger
	closeOnce sync.Once
}

// NewPool starts size workers. Size must be at least 1.
func NewPool(size int, logger *Logger) (*Pool, error) {
	if size < 1 {
		return nil, errors.New("pool size must be at least 1")
	}
	p := &Pool{
		jobs:   make(chan Job, jobQueueDepth),
		logger: logger,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	return p, nil
}

// Execute enqueues job for exactly one worker.
func (p *Pool) Execute(job Job) {
	p.jobs <- job
}

// Close stops accepting jobs, lets the workers drain the queue, and joins them.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(id, job)
	}
}

// run executes one job. A panic must not poison the pool: it is recovered,
// logged, and the worker keeps consuming.
func (p *Pool) run(id int, job Job) {
	defer func() {
		if r := recover(); r != nil && p.logger != nil {
			p.logger.Stderr("worker {} recovered from panic: {}",
				Arg(strconv.Itoa(id), ColorYellow),
				Arg(fmt.Sprint(r), ColorRed),
			)
		}
	}()
	job()
}
