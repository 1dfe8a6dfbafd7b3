package litepool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jirevwe/litepool/packer"
	"github.com/jirevwe/litepool/pool"
	"github.com/jirevwe/litepool/queue"
	"github.com/jirevwe/litepool/queue/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrServerClosed    = errors.New("litepool: server closed")
	ErrHandlerNotFound = errors.New("handler not found")
)

// Server claims messages from a durable queue and runs them on a worker
// pool, recording each message's outcome back in the store.
type Server struct {
	cfg        Config
	mux        *Mux
	queue      queue.Queue
	logger     *slog.Logger
	workerPool *pool.WorkerPool

	// mu guards closed and the polling wait group
	mu     sync.Mutex
	closed bool

	// done is closed by Stop to end every polling loop
	done chan struct{}

	// polling counts running Start loops
	polling sync.WaitGroup

	stop    sync.Once
	stopErr error
}

type serverOptions struct {
	queue      queue.Queue
	mux        *Mux
	logger     *slog.Logger
	registerer prometheus.Registerer
	tracer     trace.Tracer
	poolOpts   []pool.Option
}

type ServerOption func(*serverOptions)

// WithQueue replaces the sqlite store built from Config.DBPath.
func WithQueue(q queue.Queue) ServerOption {
	return func(o *serverOptions) { o.queue = q }
}

func WithMux(m *Mux) ServerOption {
	return func(o *serverOptions) { o.mux = m }
}

func WithLogger(l *slog.Logger) ServerOption {
	return func(o *serverOptions) { o.logger = l }
}

// WithRegisterer is where pool metrics are registered when
// Config.MetricsNamespace is set. Defaults to prometheus.DefaultRegisterer.
func WithRegisterer(r prometheus.Registerer) ServerOption {
	return func(o *serverOptions) { o.registerer = r }
}

func WithTracer(t trace.Tracer) ServerOption {
	return func(o *serverOptions) { o.tracer = t }
}

// WithPoolOptions passes extra options through to the worker pool.
func WithPoolOptions(opts ...pool.Option) ServerOption {
	return func(o *serverOptions) { o.poolOpts = append(o.poolOpts, opts...) }
}

func NewServer(cfg Config, opts ...ServerOption) (*Server, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &serverOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}

	if o.mux == nil {
		o.mux = NewMux()
	}

	ownStore := false
	if o.queue == nil {
		s, err := sqlite.NewSqlite(cfg.DBPath, o.logger)
		if err != nil {
			return nil, err
		}
		o.queue = s
		ownStore = true
	}

	poolOpts := []pool.Option{pool.WithLogger(o.logger)}
	if cfg.MetricsNamespace != "" {
		poolOpts = append(poolOpts, pool.WithMetrics(pool.NewMetrics(o.registerer, cfg.MetricsNamespace)))
	}
	if o.tracer != nil {
		poolOpts = append(poolOpts, pool.WithTracer(o.tracer))
	}
	poolOpts = append(poolOpts, o.poolOpts...)

	workerPool, err := pool.NewWorkerPool(cfg.Pool, poolOpts...)
	if err != nil {
		if ownStore {
			_ = o.queue.Close()
		}
		return nil, err
	}

	return &Server{
		cfg:        cfg,
		mux:        o.mux,
		queue:      o.queue,
		logger:     o.logger,
		workerPool: workerPool,
		done:       make(chan struct{}),
	}, nil
}

// CreateQueue creates queueName in the store if it does not exist yet and
// routes its messages to handler.
func (s *Server) CreateQueue(ctx context.Context, queueName string, handler Handler) error {
	// fetch the queue, so we don't have to create it again if it already exists
	if !s.queue.QueueExists(ctx, queueName) {
		if err := s.queue.CreateQueue(ctx, queueName); err != nil {
			return err
		}
	}

	s.mux.Handle(queueName, handler)

	return nil
}

// Enqueue packs payload and writes it to queueName as a scheduled message.
// It returns the message id.
func (s *Server) Enqueue(ctx context.Context, queueName string, payload any) (string, error) {
	if s.isClosed() {
		return "", ErrServerClosed
	}

	raw, err := packer.Encode(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	msg := queue.NewMessage(queueName, raw, s.cfg.VisibilityDelay)
	if err = s.queue.Push(ctx, msg); err != nil {
		return "", err
	}

	return msg.Id, nil
}

// Start polls the store for visible messages and hands each one to the
// worker pool. It blocks until ctx is done (returning ctx.Err()) or Stop is
// called (returning nil). Messages are only claimed while the pool backlog
// is smaller than the number of workers.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.polling.Add(1)
	s.mu.Unlock()
	defer s.polling.Done()

	s.logger.Info("litepool server started",
		slog.Int("workers", s.workerPool.Size()),
		slog.Duration("poll_interval", s.cfg.PollInterval),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		default:
		}

		if s.workerPool.Stats().Queued >= s.workerPool.Size() {
			s.sleep(ctx)
			continue
		}

		liteMessage, err := s.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error(err.Error(), "func", "queue.Pop")
			}
			s.sleep(ctx)
			continue
		}

		if liteMessage == nil {
			// nothing to work on, sleep then try again
			s.sleep(ctx)
			continue
		}

		task := NewTask(liteMessage.Message, liteMessage.QueueId).WithTaskId(liteMessage.Id)
		s.workerPool.Push(pool.Named("litepool/"+task.Type(), &dispatch{
			ctx:    ctx,
			server: s,
			task:   task,
		}))
	}
}

// sleep waits one poll interval, or less if ctx is done or Stop is called.
func (s *Server) sleep(ctx context.Context) {
	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-s.done:
	case <-timer.C:
	}
}

// Drain blocks until every message handed to the pool so far has run.
func (s *Server) Drain() {
	s.workerPool.Wait()
}

// Stop ends polling, waits for claimed messages to finish, then shuts the
// pool down and closes the store. It is safe to call more than once.
func (s *Server) Stop() error {
	s.stop.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.done)
		s.mu.Unlock()

		s.polling.Wait()
		s.workerPool.Wait()
		s.workerPool.Close()

		s.stopErr = s.queue.Close()
		s.logger.Info("litepool server has been stopped")
	})

	return s.stopErr
}

// Stats reports the worker pool's state.
func (s *Server) Stats() pool.Stats {
	return s.workerPool.Stats()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// setStatus records a task outcome, retrying transient store errors.
// Transitions the store rejects outright are logged and not retried.
func (s *Server) setStatus(ctx context.Context, id string, status queue.Status) {
	var permanent error
	err := NewRetry(s.cfg.MaxRetries, s.cfg.RetryDelay, func() error {
		_, err := s.queue.UpdateMessageStatus(ctx, id, status)
		if errors.Is(err, queue.ErrInvalidTransition) || errors.Is(err, queue.ErrMessageNotFound) {
			permanent = err
			return nil
		}
		return err
	}).Do(ctx)
	if err == nil {
		err = permanent
	}

	if err != nil {
		s.logger.Error(err.Error(), "source", "status", "message_id", id, "status", string(status))
	}
}

// dispatch runs one claimed message on a pool worker.
type dispatch struct {
	ctx    context.Context
	server *Server
	task   *Task
}

func (d *dispatch) Execute() {
	// outcomes are written even when the polling context has been cancelled
	statusCtx := context.WithoutCancel(d.ctx)

	if err := d.server.mux.ProcessTask(d.ctx, d.task); err != nil {
		d.server.logger.Error(fmt.Sprintf("task %s on queue %s failed: %s", d.task.Id(), d.task.Type(), err.Error()))
		d.server.setStatus(statusCtx, d.task.Id(), queue.StatusFailed)
		return
	}

	d.server.setStatus(statusCtx, d.task.Id(), queue.StatusCompleted)
}

// OnFailure is called by the pool when the handler panicked.
func (d *dispatch) OnFailure(err error) {
	d.server.setStatus(context.WithoutCancel(d.ctx), d.task.Id(), queue.StatusFailed)
}
