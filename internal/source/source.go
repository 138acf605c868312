// Package source implements the tiered content sources the forager draws
// from. Every source enforces its own rate limit and returns the uniform
// SourceResult record regardless of transport.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/bracketlabs/bracket/internal/errs"
	"github.com/bracketlabs/bracket/internal/model"
)

// Source is a content origin the forager can draw from.
type Source interface {
	// Name returns the source name used in tier configuration
	Name() string

	// Fetch retrieves content matching a query
	Fetch(ctx context.Context, query string) (*model.SourceResult, error)

	// FetchRandom retrieves serendipitous content with no query
	FetchRandom(ctx context.Context) (*model.SourceResult, error)
}

// Options configure shared source behaviour.
type Options struct {
	UserAgent         string
	Timeout           time.Duration
	MaxBodyBytes      int64
	RequestsPerMinute float64
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = "Bracket/0.1 (+https://github.com/bracketlabs/bracket)"
	}
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxBodyBytes == 0 {
		o.MaxBodyBytes = 2_000_000
	}
	if o.RequestsPerMinute <= 0 {
		o.RequestsPerMinute = 10
	}
	return o
}

// newLimiter builds a per-source limiter from a per-minute budget.
func newLimiter(requestsPerMinute float64) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(requestsPerMinute/60.0), 1)
}

// httpGet performs a rate-limited GET with the shared headers and a body
// size cap, classifying transport failures as retryable.
func httpGet(ctx context.Context, client *http.Client, limiter *rate.Limiter, userAgent, url string, maxBytes int64) ([]byte, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return nil, errs.NewRetryable("fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, errs.NewRetryable("status", fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, errs.NewRetryable("read_body", err)
	}
	return body, nil
}

// seedWords drive serendipitous fetches when no curiosity is available.
var seedWords = []string{
	"theorem", "paradox", "optimization", "constraint", "equilibrium",
	"convergence", "entropy", "symmetry", "recursion", "emergence",
	"bifurcation", "resonance", "topology", "duality", "invariant",
}
