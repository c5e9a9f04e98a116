// Package llm provides the opaque completer collaborator the deep research
// engine drives: complete(prompt, system, max_tokens) -> text and
// estimate_tokens(text) -> int, per spec §1's treatment of the LLM client as
// an external collaborator.
package llm

import "context"

// Completer generates text completions and estimates token counts for
// budget accounting. Implementations are expected to honor ctx deadlines;
// the research engine relies on this for its per-node and single-pass
// synthesis timeouts (§4.G).
type Completer interface {
	// Complete generates a completion for prompt, optionally guided by a
	// system instruction, bounded to maxTokens output tokens.
	Complete(ctx context.Context, prompt, system string, maxTokens int) (string, error)

	// EstimateTokens approximates the token count of text. Used for budget
	// accounting before a call is made, not as an exact count.
	EstimateTokens(text string) int

	// Available reports whether the completer can currently serve requests.
	Available(ctx context.Context) bool

	// Close releases resources held by the completer.
	Close() error
}
