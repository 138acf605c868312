// Package embed wraps the external embedding service. Callers batch the
// four per-artifact texts into a single call; results are cached in
// memory by text hash so repeated concepts within a session never hit
// the API twice.
package embed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bracketlabs/bracket/internal/cache"
	"github.com/bracketlabs/bracket/internal/errs"
	"github.com/bracketlabs/bracket/internal/model"
)

// Embedder is the embedding-service contract used by the pipeline.
type Embedder interface {
	// EmbedSingle returns the embedding vector for one text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// embeddingsAPI is the slice of the OpenAI client the service needs
// (injectable for tests).
type embeddingsAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Service implements Embedder against the OpenAI embeddings API with an
// in-memory cache keyed by text hash.
type Service struct {
	client  embeddingsAPI
	cache   cache.Cache
	model   string
	dims    int
	timeout time.Duration
}

// NewService creates an embedding service from configuration.
func NewService(cfg model.EmbeddingConfig, c cache.Cache) (*Service, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Service{
		client:  openai.NewClientWithConfig(clientConfig),
		cache:   c,
		model:   cfg.Model,
		dims:    cfg.Dimensions,
		timeout: timeout,
	}, nil
}

// EmbedSingle returns the embedding for one text.
func (s *Service) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one API call, serving cached entries and
// requesting only the misses.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if vec, ok := s.cached(text); ok {
			results[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return results, nil
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateEmbeddings(ctxWithTimeout, openai.EmbeddingRequest{
		Input: missing,
		Model: openai.EmbeddingModel(s.model),
	})
	if err != nil {
		return nil, classifyAPIError("embed", err)
	}

	if len(resp.Data) != len(missing) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs", len(resp.Data), len(missing))
	}

	for j, item := range resp.Data {
		vec := item.Embedding
		if s.dims > 0 && len(vec) != s.dims {
			return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(vec), s.dims)
		}
		results[missingIdx[j]] = vec
		s.store(missing[j], vec)
	}

	return results, nil
}

func (s *Service) cached(text string) ([]float32, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok := s.cache.Get(cache.Key("embed", text))
	if !ok {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

func (s *Service) store(text string, vec []float32) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	_ = s.cache.Set(cache.Key("embed", text), data, 0)
}

// classifyAPIError maps API failures onto the error taxonomy.
func classifyAPIError(call string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return errs.NewFatal("authentication", err)
		case apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500:
			return errs.NewRetryable("rate_limit_or_server", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.NewRetryable("timeout", err)
	}
	return errs.NewRetryable(call, err)
}
