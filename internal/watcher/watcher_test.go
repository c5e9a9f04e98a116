package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperation_String(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpCreate, "created"},
		{OpModify, "modified"},
		{OpDelete, "deleted"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.String())
		})
	}
}

func TestFileEvent_Fields(t *testing.T) {
	now := time.Now()
	event := FileEvent{
		Path:      "src/main.go",
		Operation: OpModify,
		IsDir:     false,
		Timestamp: now,
	}

	assert.Equal(t, "src/main.go", event.Path)
	assert.Equal(t, OpModify, event.Operation)
	assert.False(t, event.IsDir)
	assert.Equal(t, now, event.Timestamp)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.Equal(t, 500*time.Millisecond, opts.DebounceWindow)
	assert.Equal(t, 5*time.Second, opts.PollInterval)
	assert.Equal(t, 1000, opts.QueueSize)
	assert.True(t, opts.RespectGitignore)
}

func TestOptions_WithDefaults(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want Options
	}{
		{
			name: "empty options get defaults",
			opts: Options{},
			want: Options{DebounceWindow: DefaultDebounceWindow, PollInterval: DefaultPollInterval, QueueSize: DefaultQueueSize},
		},
		{
			name: "partial options keep custom values",
			opts: Options{DebounceWindow: 250 * time.Millisecond},
			want: Options{DebounceWindow: 250 * time.Millisecond, PollInterval: DefaultPollInterval, QueueSize: DefaultQueueSize},
		},
		{
			name: "all custom values preserved",
			opts: Options{DebounceWindow: 100 * time.Millisecond, PollInterval: 10 * time.Second, QueueSize: 50, Include: []string{"**/*.go"}},
			want: Options{DebounceWindow: 100 * time.Millisecond, PollInterval: 10 * time.Second, QueueSize: 50, Include: []string{"**/*.go"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.opts.WithDefaults()
			assert.Equal(t, tt.want.DebounceWindow, got.DebounceWindow)
			assert.Equal(t, tt.want.PollInterval, got.PollInterval)
			assert.Equal(t, tt.want.QueueSize, got.QueueSize)
			assert.Equal(t, tt.want.Include, got.Include)
		})
	}
}
