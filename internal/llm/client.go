// Package llm provides the LLM fallback categorizer and its provider clients.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Client defines the interface for LLM providers.
type Client interface {
	// Complete sends a chat completion request and returns the raw completion.
	Complete(ctx context.Context, system, user string) (Completion, error)
	// Model returns the provider model name used for completions.
	Model() string
}

// Completion is the raw result of one LLM call.
type Completion struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Config holds provider-agnostic client configuration.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

// NewClient creates an LLM client based on the provided configuration.
func NewClient(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// cleanMarkdownWrapper strips a markdown code fence around a JSON payload.
// Some models wrap their response despite being told not to.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}
	return content
}
