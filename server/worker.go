package server

import (
	"context"
	"errors"
	"fmt"
)

// ErrWorkerStopped is returned for work submitted after Stop.
var ErrWorkerStopped = errors.New("worker stopped")

// request represents a unit of work to be executed on the worker goroutine.
type request struct {
	fn   func() error
	done chan error
}

// Worker serializes all generation work through a single goroutine.
// Sessions are not safe for concurrent use; every handler touching a
// session must go through the worker.
type Worker struct {
	requests chan request
	quit     chan struct{}
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker() *Worker {
	w := &Worker{
		requests: make(chan request, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn, recovering from panics.
func (w *Worker) execute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// Do submits fn for execution on the worker goroutine and blocks until it
// completes or ctx is done. Results are passed back through fn's closure.
func (w *Worker) Do(ctx context.Context, fn func() error) error {
	req := request{
		fn:   fn,
		done: make(chan error, 1),
	}
	select {
	case <-w.quit:
		return ErrWorkerStopped
	default:
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return ErrWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-w.quit:
		return ErrWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts down the worker goroutine.
func (w *Worker) Stop() {
	close(w.quit)
}
