// Package dispatch runs jobs serially per key and in parallel across keys.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ErrClosed is returned by Submit after Close has been called.
var ErrClosed = errors.New("dispatch: executor closed")

// Executor runs submitted jobs in FIFO order per key. Each key with pending
// work has one worker goroutine, which exits once its queue is empty.
type Executor struct {
	mu     sync.Mutex
	queues map[string]*queue
	closed bool
	wg     sync.WaitGroup
	logger zerolog.Logger
}

type queue struct {
	jobs []func()
}

// New creates a new executor
func New(logger zerolog.Logger) *Executor {
	return &Executor{
		queues: make(map[string]*queue),
		logger: logger.With().Str("component", "dispatch").Logger(),
	}
}

// Submit queues job behind any pending jobs for key.
func (e *Executor) Submit(key string, job func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	if q, ok := e.queues[key]; ok {
		q.jobs = append(q.jobs, job)
		return nil
	}

	q := &queue{jobs: []func(){job}}
	e.queues[key] = q
	e.wg.Add(1)
	go e.run(key, q)
	return nil
}

func (e *Executor) run(key string, q *queue) {
	defer e.wg.Done()

	for {
		e.mu.Lock()
		if len(q.jobs) == 0 {
			delete(e.queues, key)
			e.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]
		e.mu.Unlock()

		e.exec(key, job)
	}
}

func (e *Executor) exec(key string, job func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("key", key).
				Str("panic", fmt.Sprint(r)).
				Msg("Job panicked")
		}
	}()
	job()
}

// Pending returns the number of queued jobs across all keys, excluding jobs
// currently running.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, q := range e.queues {
		n += len(q.jobs)
	}
	return n
}

// Close stops accepting jobs and waits for queued jobs to drain or for ctx
// to expire.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	pending := 0
	for _, q := range e.queues {
		pending += len(q.jobs)
	}
	e.mu.Unlock()

	e.logger.Debug().Int("pending", pending).Msg("Draining executor")

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		e.logger.Warn().Err(ctx.Err()).Msg("Executor drain deadline exceeded")
		return ctx.Err()
	}
}
