package llm

import (
	"fmt"
	"strings"
)

// NewCompleter creates a completer based on configuration
func NewCompleter(config Config) (Completer, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAICompleter(config)

	case "anthropic", "claude":
		return NewAnthropicCompleter(config)

	case "ollama":
		return NewOllamaCompleter(config)

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// NewClientFromConfig builds the high-level client for a configured provider
func NewClientFromConfig(config Config) (*Client, error) {
	completer, err := NewCompleter(config)
	if err != nil {
		return nil, err
	}
	return NewClient(completer), nil
}
