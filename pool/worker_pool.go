package pool

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"
)

type WorkerPool struct {
	cfg Config

	// tasks waiting for a worker
	queue *WorkQueue

	// mu guards idle, live and every write to running and paused. It is the
	// lock behind both condition variables.
	mu sync.Mutex

	// workers sleep on wake while there is nothing to drain
	wake *sync.Cond

	// Wait() callers sleep on quiet until the pool is quiescent
	quiet *sync.Cond

	// mirrored atomically so the drain loop can read them without mu
	running atomic.Bool
	paused  atomic.Bool

	// workers blocked on wake that nobody has signalled yet
	idle int

	// workers whose loop has not returned yet
	live int

	workers []*Worker

	// ensure the pool can only be stopped once
	stop sync.Once

	// ensure the workers are only joined once
	close sync.Once

	executed atomic.Int64
	faults   atomic.Int64
	dropped  atomic.Int64

	log     *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// Stats is a point-in-time snapshot of a pool.
type Stats struct {
	Workers  int
	Live     int
	Idle     int
	Queued   int
	Executed int64
	Faults   int64
	Dropped  int64
	Paused   bool
	Running  bool
}

// NewWorkerPool validates cfg and starts cfg.StartingThreads workers. If any
// worker fails to start, the ones already running are stopped and joined
// and an error wrapping ErrThreadStart is returned.
func NewWorkerPool(cfg Config, opts ...Option) (*WorkerPool, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	p := &WorkerPool{
		cfg:     cfg,
		queue:   NewWorkQueue(),
		log:     o.logger,
		metrics: o.metrics,
		tracer:  o.tracer,
	}
	p.queue.observe = o.metrics.queued
	p.wake = sync.NewCond(&p.mu)
	p.quiet = sync.NewCond(&p.mu)
	p.running.Store(true)

	if err := p.startWorkers(o.starter); err != nil {
		return nil, err
	}

	p.log.Info("worker pool started",
		slog.Int("workers", len(p.workers)),
		slog.Int("minimum_threads", cfg.MinimumThreads),
		slog.Int("maximum_threads", cfg.MaximumThreads),
	)

	return p, nil
}

func (p *WorkerPool) startWorkers(starter ThreadStarter) error {
	n := p.cfg.StartingThreads
	p.workers = make([]*Worker, 0, n)

	for i := 0; i < n; i++ {
		w := NewWorker(fmt.Sprintf("worker_%d", i+1), p)

		// counted before it runs so Wait never sees fewer live workers than exist
		p.mu.Lock()
		p.live++
		p.mu.Unlock()

		thread, err := starter.Start(w.Start)
		if err != nil {
			p.mu.Lock()
			p.live--
			p.mu.Unlock()

			p.log.Error(fmt.Sprintf("failed to start %s: %s", w.id, err.Error()))
			p.Close()

			return fmt.Errorf("%w: worker %d of %d: %w", ErrThreadStart, i+1, n, err)
		}

		w.thread = thread
		p.workers = append(p.workers, w)
	}

	return nil
}

// Push adds t to the queue and wakes one sleeping worker. After Stop the
// task is dropped without being run.
func (p *WorkerPool) Push(t Task) {
	if t == nil {
		return
	}

	// held across the check and the append so Close cannot drain in between
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running.Load() {
		p.drop(1)
		return
	}

	p.queue.Push(t)
	p.signal(1)
}

// PushBatch adds tasks in order. When the batch outnumbers the idle workers
// all of them are woken, otherwise one per task.
func (p *WorkerPool) PushBatch(tasks ...Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running.Load() {
		n := 0
		for _, t := range tasks {
			if t != nil {
				n++
			}
		}
		p.drop(n)
		return
	}

	n := p.queue.PushBatch(tasks...)
	if n == 0 {
		return
	}

	if n > p.idle {
		p.broadcast()
		return
	}
	p.signal(n)
}

func (p *WorkerPool) drop(n int) {
	if n == 0 {
		return
	}
	p.dropped.Add(int64(n))
	p.metrics.dropped(n)
	p.log.Debug(fmt.Sprintf("dropped %d task(s) pushed to a stopped pool", n))
}

func (p *WorkerPool) WakeOne() {
	p.mu.Lock()
	p.signal(1)
	p.mu.Unlock()
}

func (p *WorkerPool) Wake(n int) {
	if n <= 0 {
		return
	}
	if n > p.Size() {
		p.WakeAll()
		return
	}

	p.mu.Lock()
	p.signal(n)
	p.mu.Unlock()
}

func (p *WorkerPool) WakeAll() {
	p.mu.Lock()
	p.broadcast()
	p.mu.Unlock()
}

// signal wakes up to n sleeping workers. The waker takes each woken worker
// off the idle count, so a notified worker is never counted as idle while
// it waits to reacquire mu. Must be called with p.mu held.
func (p *WorkerPool) signal(n int) {
	for ; n > 0 && p.idle > 0; n-- {
		p.idle--
		p.wake.Signal()
	}
	p.metrics.idle(p.idle)
}

// broadcast wakes every sleeping worker. Must be called with p.mu held.
func (p *WorkerPool) broadcast() {
	p.idle = 0
	p.wake.Broadcast()
	p.metrics.idle(0)
}

// Wait blocks until the pool is quiescent: every live worker is asleep and
// the queue is empty or the pool is paused. On a stopped pool it waits for
// every worker loop to return. Calling Wait from inside a task deadlocks.
func (p *WorkerPool) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.quiescent() {
		p.quiet.Wait()
	}
}

// quiescent must be called with p.mu held.
func (p *WorkerPool) quiescent() bool {
	if !p.running.Load() {
		return p.live == 0
	}
	return p.idle == p.live && (p.paused.Load() || p.queue.Size() == 0)
}

func (p *WorkerPool) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.paused.Swap(true) {
		return
	}
	p.log.Info("worker pool paused")

	// a paused pool with a backlog counts as quiescent
	p.quiet.Broadcast()
}

// Resume clears the pause flag and wakes one worker per queued task, up to
// the number of workers.
func (p *WorkerPool) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.paused.Swap(false) {
		return
	}

	backlog := p.queue.Size()
	p.log.Info("worker pool resumed", slog.Int("backlog", backlog))

	p.signal(min(backlog, p.live))
}

func (p *WorkerPool) Stop() {
	p.stop.Do(func() {
		p.log.Info("stopping worker pool")

		p.mu.Lock()
		p.running.Store(false)
		p.broadcast()
		p.quiet.Broadcast()
		p.mu.Unlock()
	})
}

// Close stops the pool and joins every worker thread, so no worker outlives
// the call. Tasks still queued are discarded. Calling Close from inside a
// task deadlocks.
func (p *WorkerPool) Close() {
	p.Stop()

	p.close.Do(func() {
		for _, w := range p.workers {
			w.thread.Join()
		}

		if rest := p.queue.Drain(); len(rest) > 0 {
			p.log.Info(fmt.Sprintf("discarding %d queued task(s)", len(rest)))
			p.drop(len(rest))
		}

		p.log.Info("worker pool has been stopped")
	})
}

func (p *WorkerPool) Size() int {
	return len(p.workers)
}

func (p *WorkerPool) Config() Config {
	return p.cfg
}

func (p *WorkerPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Workers:  len(p.workers),
		Live:     p.live,
		Idle:     p.idle,
		Queued:   p.queue.Size(),
		Executed: p.executed.Load(),
		Faults:   p.faults.Load(),
		Dropped:  p.dropped.Load(),
		Paused:   p.paused.Load(),
		Running:  p.running.Load(),
	}
}
