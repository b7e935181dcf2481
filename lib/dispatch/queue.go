// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch provides serial execution queues. A Queue runs the
// functions submitted to it one at a time, in submission order, on a
// goroutine it owns. Connections use queues to serialize sends and to
// run event handlers and reply continuations.
package dispatch

import (
	"fmt"
	"log/slog"
	"sync"
)

// Queue is a serial FIFO executor. The zero value is not usable; call
// NewQueue.
type Queue struct {
	label  string
	logger *slog.Logger

	mu        sync.Mutex
	ready     *sync.Cond
	tasks     []func()
	suspended int
	closed    bool
	done      chan struct{}
}

// NewQueue starts a queue. The label identifies it in log output.
func NewQueue(label string, logger *slog.Logger) *Queue {
	queue := &Queue{
		label:  label,
		logger: logger,
		done:   make(chan struct{}),
	}
	queue.ready = sync.NewCond(&queue.mu)
	go queue.run()
	return queue
}

// Label returns the label given to NewQueue.
func (q *Queue) Label() string { return q.label }

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for !q.closed && (q.suspended > 0 || len(q.tasks) == 0) {
			q.ready.Wait()
		}
		if len(q.tasks) == 0 {
			// Closed and drained.
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task()
	}
}

// Async submits fn to run after everything submitted before it. It
// reports false, without running fn, once the queue is closed.
func (q *Queue) Async(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Debug("task submitted to closed queue", "queue", q.label)
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.ready.Signal()
	return true
}

// Sync submits fn and waits for it to finish. Calling Sync from a task
// running on the same queue deadlocks. It reports false if the queue
// was already closed.
func (q *Queue) Sync(fn func()) bool {
	finished := make(chan struct{})
	if !q.Async(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	<-finished
	return true
}

// Barrier waits until every task submitted before it has run.
func (q *Queue) Barrier() bool {
	return q.Sync(func() {})
}

// Suspend stops the queue from starting new tasks. A task already
// running finishes. Suspensions are counted; each needs a Resume.
func (q *Queue) Suspend() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.suspended++
}

// Resume undoes one Suspend. Resuming a queue that is not suspended is
// a programming error and panics.
func (q *Queue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.suspended == 0 {
		q.logger.Error("queue resumed more times than suspended", "queue", q.label)
		panic(fmt.Sprintf("dispatch: over-resume of queue %q", q.label))
	}
	q.suspended--
	if q.suspended == 0 {
		q.ready.Signal()
	}
}

// Close stops the queue from accepting tasks. Tasks already submitted
// still run, even if the queue is suspended. Done is closed once the
// last of them has finished.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.suspended = 0
	q.ready.Signal()
}

// Done is closed when the queue has been closed and drained.
func (q *Queue) Done() <-chan struct{} { return q.done }
