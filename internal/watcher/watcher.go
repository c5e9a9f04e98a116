package watcher

import "time"

// Operation is the normalized kind of change a FileEvent reports. An
// observed rename is resolved into one or both of created/deleted before it
// reaches the debouncer; only these three kinds are ever emitted downstream.
type Operation string

const (
	OpCreate Operation = "created"
	OpModify Operation = "modified"
	OpDelete Operation = "deleted"
)

func (o Operation) String() string {
	return string(o)
}

// FileEvent is a single normalized filesystem change, relative to the
// watched root.
type FileEvent struct {
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// DefaultDebounceWindow is the per-path modify coalescing window.
const DefaultDebounceWindow = 500 * time.Millisecond

// DefaultPollInterval is the polling fallback's scan interval.
const DefaultPollInterval = 5 * time.Second

// DefaultQueueSize bounds the Service's event queue between debouncing and
// the single background worker that drives the indexing coordinator.
const DefaultQueueSize = 1000

// Options configures the watcher's event source, debouncer, and queue.
type Options struct {
	// DebounceWindow is the per-path modify-event coalescing window.
	// created/deleted events always bypass it.
	DebounceWindow time.Duration
	// PollInterval is the scan interval used by the polling fallback.
	PollInterval time.Duration
	// QueueSize bounds the Service's event queue between the debouncer and
	// the single background worker.
	QueueSize int
	// Include/Exclude are glob patterns with the same semantics as the
	// discovery cache's. A path must match Include (when non-empty) and
	// must not match Exclude to be watched. When Include is empty, only
	// paths with a source extension index.DetectLanguage knows are accepted.
	Include []string
	Exclude []string
	// RespectGitignore additionally filters out paths matched by any
	// .gitignore found under the watched root.
	RespectGitignore bool
}

// DefaultOptions returns the package defaults.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:   DefaultDebounceWindow,
		PollInterval:     DefaultPollInterval,
		QueueSize:        DefaultQueueSize,
		RespectGitignore: true,
	}
}

// WithDefaults fills in zero-valued fields with package defaults.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = DefaultDebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	return o
}
