// Package pool implements a fixed-size worker pool that executes
// heterogeneous, type-erased tasks in FIFO order.
//
// Workers sleep on a condition variable until work is pushed, drain the
// shared queue, then go back to sleep. The pool can be paused, resumed,
// waited on until quiescent, and stopped:
//
//	p, err := pool.NewWorkerPool(pool.Config{StartingThreads: 4})
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//
//	p.Push(pool.Bind2(store.Put, "key", value))
//	p.Push(pool.TaskFunc(cache.Flush))
//	p.Wait()
//
// A panic inside a task is recovered by the worker that ran it; the worker
// keeps draining. Tasks implementing FailureHandler are told about it.
package pool
