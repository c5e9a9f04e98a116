package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_SingleModify_PassesThroughAfterWindow(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	start := time.Now()
	d.Add(FileEvent{Path: "test.go", Operation: OpModify, Timestamp: time.Now()})

	select {
	case events := <-d.Output():
		require.Len(t, events, 1)
		assert.Equal(t, "test.go", events[0].Path)
		assert.Equal(t, OpModify, events[0].Operation)
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	case <-time.After(300 * time.Millisecond):
		t.Fatal("timeout waiting for debounced event")
	}
}

func TestDebouncer_RapidModifies_CoalesceToOne(t *testing.T) {
	d := NewDebouncer(100 * time.Millisecond)
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Add(FileEvent{Path: "test.go", Operation: OpModify, Timestamp: time.Now()})
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case events := <-d.Output():
		require.Len(t, events, 1)
		assert.Equal(t, "test.go", events[0].Path)
		assert.Equal(t, OpModify, events[0].Operation)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for debounced event")
	}
}

func TestDebouncer_Create_BypassesWindow(t *testing.T) {
	d := NewDebouncer(time.Hour) // window long enough that a waiting test would time out
	defer d.Stop()

	d.Add(FileEvent{Path: "new.go", Operation: OpCreate, Timestamp: time.Now()})

	select {
	case events := <-d.Output():
		require.Len(t, events, 1)
		assert.Equal(t, OpCreate, events[0].Operation)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("created event should not wait for the debounce window")
	}
}

func TestDebouncer_Delete_BypassesWindow(t *testing.T) {
	d := NewDebouncer(time.Hour)
	defer d.Stop()

	d.Add(FileEvent{Path: "gone.go", Operation: OpDelete, Timestamp: time.Now()})

	select {
	case events := <-d.Output():
		require.Len(t, events, 1)
		assert.Equal(t, OpDelete, events[0].Operation)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("deleted event should not wait for the debounce window")
	}
}

func TestDebouncer_ModifyThenDelete_ClearsPendingModify(t *testing.T) {
	d := NewDebouncer(200 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "existing.go", Operation: OpModify, Timestamp: time.Now()})
	d.Add(FileEvent{Path: "existing.go", Operation: OpDelete, Timestamp: time.Now()})

	// The delete fires immediately.
	select {
	case events := <-d.Output():
		require.Len(t, events, 1)
		assert.Equal(t, OpDelete, events[0].Operation)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for delete event")
	}

	// The modify that preceded it was cleared, so nothing else fires once
	// the original window would have elapsed.
	select {
	case events := <-d.Output():
		t.Fatalf("expected no further event, got %v", events)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestDebouncer_DifferentPaths_IndependentModifyBatch(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "a.go", Operation: OpModify, Timestamp: time.Now()})
	d.Add(FileEvent{Path: "b.go", Operation: OpModify, Timestamp: time.Now()})

	select {
	case events := <-d.Output():
		require.Len(t, events, 2)
		paths := map[string]bool{}
		for _, e := range events {
			paths[e.Path] = true
		}
		assert.True(t, paths["a.go"])
		assert.True(t, paths["b.go"])
	case <-time.After(300 * time.Millisecond):
		t.Fatal("timeout waiting for debounced events")
	}
}

func TestDebouncer_Stop_ClosesOutput(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	d.Stop()

	select {
	case _, ok := <-d.Output():
		assert.False(t, ok, "channel should be closed")
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for channel close")
	}
}
