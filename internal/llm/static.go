package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// StaticCompleter returns a deterministic, templated completion built from
// the prompt and system instruction. It needs no network access and no
// provider credentials, so tests use it to exercise the research engine
// without a live backend.
type StaticCompleter struct {
	mu     sync.RWMutex
	closed bool
}

var _ Completer = (*StaticCompleter)(nil)

// NewStaticCompleter creates a new static completer.
func NewStaticCompleter() *StaticCompleter {
	return &StaticCompleter{}
}

// Complete returns a deterministic response derived from the prompt, clipped
// to roughly maxTokens tokens' worth of characters (0 means unbounded).
func (c *StaticCompleter) Complete(_ context.Context, prompt, system string, maxTokens int) (string, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return "", fmt.Errorf("completer is closed")
	}
	c.mu.RUnlock()

	var b strings.Builder
	if system != "" {
		b.WriteString("[")
		b.WriteString(strings.TrimSpace(system))
		b.WriteString("] ")
	}
	b.WriteString(strings.TrimSpace(prompt))
	out := b.String()

	if maxTokens > 0 {
		maxChars := maxTokens * charsPerToken
		if len(out) > maxChars {
			out = out[:maxChars]
		}
	}

	return out, nil
}

// EstimateTokens approximates text's token count the same way HTTPCompleter does.
func (c *StaticCompleter) EstimateTokens(text string) int {
	return estimateTokens(text)
}

// Available returns true until Close is called.
func (c *StaticCompleter) Available(_ context.Context) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Close releases resources.
func (c *StaticCompleter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
