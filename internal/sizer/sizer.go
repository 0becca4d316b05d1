// Package sizer serializes content size computation: one walk at a time,
// FIFO order, duplicate requests coalesced onto the newest path set.
package sizer

import (
	"context"
	"log/slog"
	"sync"

	"scorch/internal/logging"
	"scorch/internal/staging"
)

// Result is one completed size computation, keyed by the submit key.
type Result struct {
	Key              string
	TotalBytes       int64
	LargestFileBytes int64
	Err              error
}

// ComputeFunc performs the actual measurement. The default walks the
// paths with the staging exclusion rules.
type ComputeFunc func(ctx context.Context, paths []string) (total, largest int64, err error)

// Option configures the sizer.
type Option func(*Sizer)

// WithCompute injects a custom measurement function (primarily for tests).
func WithCompute(compute ComputeFunc) Option {
	return func(s *Sizer) {
		if compute != nil {
			s.compute = compute
		}
	}
}

type request struct {
	key   string
	paths []string
}

// Sizer runs size computations on a single worker goroutine.
type Sizer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []request
	queued   map[string]int
	inflight bool
	closed   bool

	compute ComputeFunc
	results chan Result
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	logger  *slog.Logger
}

// New starts the worker. Close must be called to release it.
func New(logger *slog.Logger, opts ...Option) *Sizer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sizer{
		queued: make(map[string]int),
		compute: func(ctx context.Context, paths []string) (int64, int64, error) {
			return staging.ComputeTreeSize(ctx, paths, nil)
		},
		results: make(chan Result, 16),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  logging.NewComponentLogger(logger, "sizer"),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

// Submit queues a computation for key. A key already waiting in the queue
// is updated in place with the new paths instead of queueing twice; a key
// currently being computed queues one follow-up.
func (s *Sizer) Submit(key string, paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if idx, ok := s.queued[key]; ok {
		s.queue[idx].paths = append([]string(nil), paths...)
		return
	}
	s.queue = append(s.queue, request{key: key, paths: append([]string(nil), paths...)})
	s.queued[key] = len(s.queue) - 1
	s.cond.Signal()
}

// Results delivers completed computations in submission order.
func (s *Sizer) Results() <-chan Result {
	return s.results
}

// Busy reports whether any computation is queued or running. The
// readiness evaluator maps this to its pending-sizes reason.
func (s *Sizer) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight || len(s.queue) > 0
}

// Close stops the worker and closes the results channel once the current
// computation unwinds.
func (s *Sizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancel()
	s.cond.Signal()
	s.mu.Unlock()
	<-s.done
}

func (s *Sizer) run() {
	defer close(s.done)
	defer close(s.results)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		req := s.queue[0]
		s.queue = s.queue[1:]
		delete(s.queued, req.key)
		for key, idx := range s.queued {
			s.queued[key] = idx - 1
		}
		s.inflight = true
		s.mu.Unlock()

		total, largest, err := s.compute(s.ctx, req.paths)
		if err != nil {
			s.logger.Debug("size computation failed",
				logging.String("key", req.key),
				logging.Error(err))
		}

		s.mu.Lock()
		s.inflight = false
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		select {
		case s.results <- Result{Key: req.key, TotalBytes: total, LargestFileBytes: largest, Err: err}:
		case <-s.ctx.Done():
			return
		}
	}
}
