package watcher

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
	"github.com/ofriw/chunkhound-sub000/internal/index"
	"github.com/ofriw/chunkhound-sub000/internal/store"
)

// EventSource is the watcher's view of a platform event source: start
// watching root, expose debounced event batches and non-fatal errors, stop
// on request. HybridWatcher implements it; tests substitute a fake.
type EventSource interface {
	Start(ctx context.Context, root string) error
	Stop() error
	Events() <-chan []FileEvent
	Errors() <-chan error
}

var _ EventSource = (*HybridWatcher)(nil)

// Service is component E's scheduling layer: a single background worker
// consuming a bounded queue fed by an EventSource, driving the indexing
// coordinator one path at a time. Initial-directory-scan is explicitly not
// this component's job (the coordinator's ProcessDirectory handles that at
// startup); Service only reacts to live changes.
type Service struct {
	Source      EventSource
	Coordinator *index.Coordinator
	Engine      *store.Engine
	Root        string
	QueueSize   int

	queue      chan FileEvent
	inFlight   map[string]bool
	mu         sync.Mutex
	cancel     context.CancelFunc
	workerDone chan struct{}
	dropped    atomic.Uint64
}

// NewService constructs a Service. A queueSize of zero uses DefaultQueueSize.
func NewService(source EventSource, coordinator *index.Coordinator, engine *store.Engine, root string, queueSize int) *Service {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Service{
		Source:      source,
		Coordinator: coordinator,
		Engine:      engine,
		Root:        root,
		QueueSize:   queueSize,
	}
}

// Run starts the event source and the worker, and blocks until ctx is
// cancelled, Stop is called, or the event source fails to start. On return,
// any in-flight file processing has already finished; events still sitting
// in the queue at that point are discarded, per the cancellation contract.
func (s *Service) Run(ctx context.Context) error {
	s.queue = make(chan FileEvent, s.QueueSize)
	s.inFlight = make(map[string]bool)
	s.workerDone = make(chan struct{})

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	go s.consume(runCtx)
	go s.forward(runCtx)
	go s.drainErrors()

	err := s.Source.Start(runCtx, s.Root)
	// Always stop the source and cancel runCtx on the way out: the
	// fsnotify path already stops itself on ctx cancellation, but the
	// polling fallback doesn't, and Start can also return on its own (the
	// source failed) with runCtx never cancelled otherwise — either way
	// forward/consume need runCtx cancelled to unwind.
	_ = s.Source.Stop()
	cancel()
	<-s.workerDone
	if err != nil && err != context.Canceled {
		return cherrors.IO("watcher event source failed", err)
	}
	return nil
}

// Stop cancels the run started by Run. Safe to call once Run has returned.
func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.Source.Stop()
}

// forward flattens the source's debounced batches onto the bounded queue,
// applying in-flight dedup so a path already queued or being processed
// isn't queued again — its eventual processing will read the file's
// current state from disk regardless of which event triggered it.
func (s *Service) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-s.Source.Events():
			if !ok {
				return
			}
			for _, ev := range batch {
				s.enqueue(ev)
			}
		}
	}
}

func (s *Service) enqueue(ev FileEvent) {
	s.mu.Lock()
	if s.inFlight[ev.Path] {
		s.mu.Unlock()
		return
	}
	s.inFlight[ev.Path] = true
	s.mu.Unlock()

	select {
	case s.queue <- ev:
	default:
		s.mu.Lock()
		delete(s.inFlight, ev.Path)
		s.mu.Unlock()
		n := s.dropped.Add(1)
		slog.Warn("watcher queue full, dropping event",
			slog.String("path", ev.Path), slog.String("op", ev.Operation.String()), slog.Uint64("total_dropped", n))
	}
}

// consume is the single background worker. Events for a given path are
// processed in the order they were enqueued; no ordering is promised
// across distinct paths.
func (s *Service) consume(ctx context.Context) {
	defer close(s.workerDone)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.queue:
			if !ok {
				return
			}
			// Processing runs to completion even if ctx is cancelled mid-way
			// (the cancellation contract allows in-flight work to finish);
			// only the queue read above is gated on ctx.
			s.process(context.Background(), ev)
		}
	}
}

func (s *Service) process(ctx context.Context, ev FileEvent) {
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, ev.Path)
		s.mu.Unlock()
	}()

	var succeeded bool
	switch ev.Operation {
	case OpDelete:
		if err := s.Engine.DeleteFileCompletely(ev.Path); err != nil {
			slog.Warn("watcher: failed to delete file from index", slog.String("path", ev.Path), slog.String("error", err.Error()))
			return
		}
		succeeded = true
	default: // created, modified
		result, err := s.Coordinator.ProcessFile(ctx, s.Root, ev.Path, index.ProcessOptions{})
		if err != nil {
			slog.Warn("watcher: failed to process file change", slog.String("path", ev.Path), slog.String("error", err.Error()))
			return
		}
		if result.Status == index.StatusError {
			slog.Warn("watcher: file processing reported an error", slog.String("path", ev.Path), slog.String("error", result.Error))
			return
		}
		succeeded = true
	}

	if succeeded {
		if err := s.Engine.Flush(); err != nil {
			slog.Warn("watcher: failed to flush storage after file change", slog.String("path", ev.Path), slog.String("error", err.Error()))
		}
	}
}

func (s *Service) drainErrors() {
	for err := range s.Source.Errors() {
		slog.Warn("watcher: event source error", slog.String("error", err.Error()))
	}
}

// Dropped returns the number of events discarded because the queue was
// full when they arrived.
func (s *Service) Dropped() uint64 {
	return s.dropped.Load()
}
