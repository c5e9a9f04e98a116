package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid per-path modify events to prevent index
// thrashing from editors and build tools that rewrite a file several times
// in quick succession. created and deleted events bypass the window
// entirely: they fire as their own single-event batch immediately, per
// component E's debouncing contract. Only a run of modify events on the
// same path waits out the window, and only the last one in the run fires.
type Debouncer struct {
	window  time.Duration
	pending map[string]*pendingEvent
	mu      sync.Mutex
	output  chan []FileEvent
	timer   *time.Timer
	stopped bool
}

type pendingEvent struct {
	event    FileEvent
	lastSeen time.Time
}

// NewDebouncer creates a debouncer with the given coalescing window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
		output:  make(chan []FileEvent, 64),
	}
}

// Add adds an event to be debounced. created/deleted events skip
// coalescing and are emitted on their own right away, clearing any pending
// modify for the same path (there's no point coalescing a modify into an
// event the path no longer needs one for).
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	if event.Operation != OpModify {
		delete(d.pending, event.Path)
		d.mu.Unlock()
		d.emit([]FileEvent{event})
		return
	}

	d.pending[event.Path] = &pendingEvent{event: event, lastSeen: time.Now()}
	d.scheduleFlush()
	d.mu.Unlock()
}

// scheduleFlush (re)schedules a flush after the debounce window. Must be
// called with mu held.
func (d *Debouncer) scheduleFlush() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush emits every path still pending once the window has elapsed without
// a further modify on any path: the timer is shared, so each new modify
// restarts it for every pending path.
func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	events := make([]FileEvent, 0, len(d.pending))
	for _, pe := range d.pending {
		events = append(events, pe.event)
	}
	d.pending = make(map[string]*pendingEvent)
	d.mu.Unlock()

	d.emit(events)
}

// emit performs a non-blocking send of a batch to the output channel,
// dropping and logging on overflow rather than blocking the event source.
func (d *Debouncer) emit(events []FileEvent) {
	select {
	case d.output <- events:
	default:
		slog.Warn("debouncer output full, dropping batch", slog.Int("batch_size", len(events)))
	}
}

// Output returns the channel of debounced event batches.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop stops the debouncer and closes the output channel. Safe to call more
// than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
