package pool

type Pool interface {
	// Push queues a task and wakes one sleeping worker. Tasks pushed after
	// Stop() are dropped.
	Push(Task)

	// PushBatch queues tasks in order, waking every sleeping worker when the
	// batch is larger than the number of idle workers.
	PushBatch(...Task)

	// WakeOne signals one sleeping worker, if any
	WakeOne()

	// Wake signals n sleeping workers, or all of them when n exceeds Size()
	Wake(n int)

	// WakeAll signals every sleeping worker
	WakeAll()

	// Wait blocks until every worker is asleep and the queue is either empty
	// or paused. It must not be called from inside a task.
	Wait()

	// Pause stops workers from dequeuing; tasks already running complete.
	Pause()

	// Resume clears a Pause and wakes enough workers for the backlog.
	Resume()

	// Stop tells every worker to exit after its current task. A stopped pool
	// cannot be restarted.
	Stop()

	// Close stops the pool and joins every worker. Further calls are no-ops.
	Close()

	// Size returns the number of workers
	Size() int
}

var _ Pool = (*WorkerPool)(nil)
