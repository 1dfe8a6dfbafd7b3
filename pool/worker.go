package pool

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Worker struct {
	// the worker id
	id string

	// the thread the worker loop runs on, set once it has been started
	thread Thread

	// the pool the worker drains tasks from
	pool *WorkerPool
}

func NewWorker(id string, p *WorkerPool) *Worker {
	return &Worker{
		id:   id,
		pool: p,
	}
}

// Start runs the worker loop until the pool is stopped: sleep until there is
// something to drain, drain, repeat.
func (w *Worker) Start() {
	p := w.pool
	p.log.Debug(fmt.Sprintf("starting worker %s", w.id))

	defer func() {
		p.mu.Lock()
		p.live--
		p.quiet.Broadcast()
		p.mu.Unlock()

		p.log.Debug(fmt.Sprintf("worker %s has been stopped", w.id))
	}()

	for w.sleep() {
		w.drain()
	}
}

// sleep blocks on the wake condition while the pool is paused or has
// nothing queued. The predicate is checked under p.mu, the same lock Push
// signals under, so a task queued before the wait always wakes someone.
// It reports whether the pool is still running.
func (w *Worker) sleep() bool {
	p := w.pool
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.running.Load() && (p.paused.Load() || p.queue.Size() == 0) {
		p.idle++
		p.metrics.idle(p.idle)
		if p.idle == p.live {
			p.quiet.Broadcast()
		}

		// whoever woke us already took us off the idle count
		p.wake.Wait()
	}

	return p.running.Load()
}

// drain pops and executes tasks until the queue is empty. Pause and Stop are
// honoured before every pop, not just on entry.
func (w *Worker) drain() {
	p := w.pool
	for p.running.Load() && !p.paused.Load() {
		task, ok := p.queue.TryPop()
		if !ok {
			return
		}

		w.execute(task)
	}
}

// execute runs one task outside every lock. A panic is recovered so the
// worker survives it; the fault is logged, counted and handed to the task
// when it implements FailureHandler.
func (w *Worker) execute(task Task) {
	p := w.pool
	name := taskName(task)

	_, span := p.tracer.Start(context.Background(), name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("pool.worker", w.id)),
	)
	start := time.Now()

	defer func() {
		faulted := false
		if r := recover(); r != nil {
			faulted = true
			perr := newPanicError(r)

			p.faults.Add(1)
			span.RecordError(perr)
			span.SetStatus(codes.Error, "task panicked")
			p.log.Error(fmt.Sprintf("worker %s: task %s panicked: %v", w.id, name, r))

			w.reportFailure(task, perr)
		}

		p.executed.Add(1)
		p.metrics.executed(time.Since(start), faulted)
		span.End()
	}()

	task.Execute()
}

func (w *Worker) reportFailure(task Task, err error) {
	fh, ok := task.(FailureHandler)
	if !ok {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			w.pool.log.Error(fmt.Sprintf("worker %s: failure handler panicked: %v", w.id, r))
		}
	}()

	fh.OnFailure(err)
}
