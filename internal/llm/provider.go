// Package llm wraps the language-model collaborator behind the four
// structured calls the agent makes: curiosity generation, candidate
// identification, artifact assembly, and quality judgment. Structured
// responses go through a two-stage parse-with-recovery protocol before
// a ParseError surfaces.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/bracketlabs/bracket/internal/errs"
	"github.com/bracketlabs/bracket/internal/model"
)

// Completer is the low-level completion contract implemented per
// provider (OpenAI, Anthropic, Ollama).
type Completer interface {
	// Name returns the provider name
	Name() string

	// Complete sends one prompt and returns the raw response text
	Complete(ctx context.Context, system, prompt string) (string, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests, seconds
	Timeout int

	// MaxTokens limits response length
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "openai",
		Timeout:   60,
		MaxTokens: 1500,
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(mc model.LLMConfig) Config {
	return Config{
		Provider:   mc.Provider,
		Model:      mc.Model,
		APIKey:     mc.APIKey,
		BaseURL:    mc.BaseURL,
		Timeout:    mc.Timeout,
		MaxTokens:  mc.MaxTokens,
		HTTPProxy:  mc.HTTPProxy,
		HTTPSProxy: mc.HTTPSProxy,
		NoProxy:    mc.NoProxy,
	}
}

// Judgment carries the two semantically judged component scores.
type Judgment struct {
	FrameCompatibility float64
	Containment        float64
	Rationale          string
}

// Client exposes the agent's high-level calls on top of a Completer.
type Client struct {
	completer Completer
}

// NewClient wraps a completer.
func NewClient(completer Completer) *Client {
	return &Client{completer: completer}
}

// Name returns the underlying provider name.
func (c *Client) Name() string { return c.completer.Name() }

// IsAvailable reports whether the underlying provider is reachable.
func (c *Client) IsAvailable(ctx context.Context) bool { return c.completer.IsAvailable(ctx) }

// GenerateCuriosity produces a one-sentence exploration query, steering
// away from recently explored topics. Plain text, no parsing involved.
func (c *Client) GenerateCuriosity(ctx context.Context, recentTopics []string) (string, error) {
	raw, err := c.completer.Complete(ctx, curiositySystem, buildCuriosityPrompt(recentTopics))
	if err != nil {
		return "", err
	}

	line := strings.TrimSpace(raw)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	line = strings.Trim(line, `"`)
	if line == "" {
		return "", fmt.Errorf("empty curiosity response")
	}
	return line, nil
}

// IdentifyCandidates extracts bracket candidates from content.
func (c *Client) IdentifyCandidates(ctx context.Context, content string) ([]model.Candidate, error) {
	var resp identifyResponse
	if err := c.completeStructured(ctx, "identify", identifySystem, buildIdentifyPrompt(content), &resp); err != nil {
		return nil, err
	}
	return resp.toCandidates(), nil
}

// AssembleArtifact elevates a selected candidate into a named, described
// artifact with a containment argument and commentary.
func (c *Client) AssembleArtifact(ctx context.Context, cand model.Candidate, sourceText string) (*model.AssembledArtifact, error) {
	var resp assembleResponse
	if err := c.completeStructured(ctx, "assemble", assembleSystem, buildAssemblePrompt(cand, sourceText), &resp); err != nil {
		return nil, err
	}
	return resp.toArtifact(cand, sourceText), nil
}

// JudgeArtifact asks the model for the two judged component scores.
func (c *Client) JudgeArtifact(ctx context.Context, art *model.AssembledArtifact, sourceText string) (*Judgment, error) {
	var resp judgeResponse
	if err := c.completeStructured(ctx, "judge", judgeSystem, buildJudgePrompt(art, sourceText), &resp); err != nil {
		return nil, err
	}
	return resp.toJudgment(), nil
}

// completeStructured runs the parse-with-recovery protocol: parse the
// first response; on failure re-issue the prompt with a stricter schema
// reminder once; on second failure raise a ParseError.
func (c *Client) completeStructured(ctx context.Context, call, system, prompt string, out response) error {
	raw, err := c.completer.Complete(ctx, system, prompt)
	if err != nil {
		return err
	}
	firstErr := decodeStrict(raw, out)
	if firstErr == nil {
		return nil
	}

	raw, err = c.completer.Complete(ctx, system, prompt+"\n\n"+strictReminder)
	if err != nil {
		return err
	}
	if secondErr := decodeStrict(raw, out); secondErr != nil {
		return errs.NewParse(call, 2, secondErr)
	}
	return nil
}
