package litepool

import (
	"context"
	"fmt"
	"sync"
)

// Mux routes a task to the handler registered for its queue.
type Mux struct {
	entries map[string]muxEntry
	mu      *sync.RWMutex
}

type muxEntry struct {
	h    Handler
	name string
}

func NewMux() *Mux {
	return &Mux{
		entries: make(map[string]muxEntry),
		mu:      &sync.RWMutex{},
	}
}

// Handle registers h for the queue name, replacing any previous handler.
func (m *Mux) Handle(name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[name] = muxEntry{
		h:    h,
		name: name,
	}
}

// HandleFunc registers fn for the queue name.
func (m *Mux) HandleFunc(name string, fn func(context.Context, *Task) error) {
	m.Handle(name, HandlerFunc(fn))
}

// match finds a handler in entries given a queue name. Must be called with
// m.mu held.
func (m *Mux) match(queueName string) Handler {
	if v, ok := m.entries[queueName]; ok {
		return v.h
	}

	return nil
}

// ProcessTask dispatches the task to the handler registered for its queue.
func (m *Mux) ProcessTask(ctx context.Context, task *Task) error {
	h := m.Handler(task)
	return h.ProcessTask(ctx, task)
}

// Handler returns the handler to use for the given task.
// It always returns a non-nil handler.
//
// If there is no registered handler that applies to the task,
// handler returns a 'not found' handler which returns an error.
func (m *Mux) Handler(t *Task) (h Handler) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h = m.match(t.Type())
	if h == nil {
		h = NotFoundHandler()
	}

	return h
}

// NotFound returns an error indicating that the handler was not found for the given task.
func NotFound(ctx context.Context, task *Task) error {
	return fmt.Errorf("%w for queue %q", ErrHandlerNotFound, task.Type())
}

// NotFoundHandler returns a simple task handler that returns a “not found“ error.
func NotFoundHandler() Handler { return HandlerFunc(NotFound) }
