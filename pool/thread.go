package pool

import "errors"

var ErrThreadStart = errors.New("failed to start worker thread")

// Thread is a running thread of control that can be joined once its entry
// point returns.
type Thread interface {
	// Join blocks until the thread's entry point has returned
	Join()
}

// ThreadStarter starts a new thread of control at entry. A pool uses exactly
// one ThreadStarter for all of its workers.
type ThreadStarter interface {
	Start(entry func()) (Thread, error)
}

// ThreadStarterFunc adapts a function to a ThreadStarter.
type ThreadStarterFunc func(entry func()) (Thread, error)

func (f ThreadStarterFunc) Start(entry func()) (Thread, error) { return f(entry) }

type goroutineStarter struct{}

type goroutine struct {
	done chan struct{}
}

// GoroutineStarter runs each worker on its own goroutine. It never fails.
func GoroutineStarter() ThreadStarter { return goroutineStarter{} }

func (goroutineStarter) Start(entry func()) (Thread, error) {
	g := &goroutine{done: make(chan struct{})}
	go func() {
		defer close(g.done)
		entry()
	}()
	return g, nil
}

func (g *goroutine) Join() { <-g.done }
