package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Default HTTPCompleter configuration.
const (
	DefaultTimeout = 10 * time.Minute // bounds the research engine's single-pass synthesis call (§4.G)

	// charsPerToken approximates English/code token density. No tokenizer
	// library is wired (the teacher's tokenizer/ONNX stack backs a local
	// embedding model this design doesn't carry — see SPEC_FULL §11), so
	// token budgets are estimated rather than counted exactly.
	charsPerToken = 4
)

// HTTPConfig configures HTTPCompleter, the default opaque completer: a plain
// REST client speaking the OpenAI-shaped chat-completions request/response
// body that OpenAI, most OpenAI-compatible gateways, and Ollama's
// OpenAI-compatibility endpoint all accept. A deployment targeting a
// different wire shape supplies its own Completer instead.
type HTTPConfig struct {
	BaseURL string // e.g. "https://api.openai.com/v1" or "http://localhost:11434/v1"
	Model   string
	APIKey  string
	Timeout time.Duration
}

// HTTPCompleter implements Completer via an HTTP chat-completions endpoint.
type HTTPCompleter struct {
	client *http.Client
	cfg    HTTPConfig

	mu     sync.RWMutex
	closed bool
}

var _ Completer = (*HTTPCompleter)(nil)

// NewHTTPCompleter constructs an HTTPCompleter. It does not contact the
// provider at construction time.
func NewHTTPCompleter(cfg HTTPConfig) *HTTPCompleter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &HTTPCompleter{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends prompt (and optional system instruction) to the configured
// endpoint and returns the first choice's content.
func (c *HTTPCompleter) Complete(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return "", fmt.Errorf("completer is closed")
	}
	c.mu.RUnlock()

	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	reqBody := chatCompletionRequest{
		Model:     c.cfg.Model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	url := c.cfg.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("completion failed (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("completion response had no choices")
	}

	return result.Choices[0].Message.Content, nil
}

// EstimateTokens approximates text's token count at charsPerToken chars/token.
func (c *HTTPCompleter) EstimateTokens(text string) int {
	return estimateTokens(text)
}

func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// Available checks whether the endpoint is reachable.
func (c *HTTPCompleter) Available(ctx context.Context) bool {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return false
	}
	c.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, c.cfg.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// Close releases resources.
func (c *HTTPCompleter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
