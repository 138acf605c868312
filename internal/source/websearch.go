package source

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/bracketlabs/bracket/internal/errs"
	"github.com/bracketlabs/bracket/internal/model"
	"github.com/bracketlabs/bracket/internal/util"
)

const duckduckgoHTMLURL = "https://html.duckduckgo.com/html/"

// WebSearchSource searches the web through the DuckDuckGo HTML interface
// and fetches the top result's page text. Tier 2: broader but noisier
// than the encyclopedic tier. Target pages are checked against
// robots.txt before fetching.
type WebSearchSource struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	robots     *util.RobotsChecker
	opts       Options
	searchURL  string
}

// NewWebSearchSource creates a web search source.
func NewWebSearchSource(opts Options) *WebSearchSource {
	opts = opts.withDefaults()
	return &WebSearchSource{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		limiter:   newLimiter(opts.RequestsPerMinute),
		robots:    util.NewRobotsChecker(opts.UserAgent, opts.Timeout),
		opts:      opts,
		searchURL: duckduckgoHTMLURL,
	}
}

// Name returns the source name
func (s *WebSearchSource) Name() string { return "web_search" }

// Fetch searches for the query and returns the first result's page text.
func (s *WebSearchSource) Fetch(ctx context.Context, query string) (*model.SourceResult, error) {
	if query == "" {
		return s.FetchRandom(ctx)
	}

	href, title, err := s.search(ctx, query)
	if err != nil {
		return nil, err
	}

	allowed, _, err := s.robots.CanFetch(ctx, href)
	if err == nil && !allowed {
		return nil, fmt.Errorf("robots.txt disallows %s", href)
	}

	body, err := httpGet(ctx, s.httpClient, s.limiter, s.opts.UserAgent, href, s.opts.MaxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("fetch result page: %w", err)
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse result page: %w", err)
	}

	return &model.SourceResult{
		Content:    visibleText(doc),
		URL:        href,
		Title:      title,
		SourceName: s.Name(),
		Query:      query,
	}, nil
}

// FetchRandom searches for a random seed word.
func (s *WebSearchSource) FetchRandom(ctx context.Context) (*model.SourceResult, error) {
	return s.Fetch(ctx, seedWords[rand.Intn(len(seedWords))])
}

// search posts the query and returns the first organic result.
func (s *WebSearchSource) search(ctx context.Context, query string) (href, title string, err error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", "", err
	}

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.searchURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", "", errs.NewRetryable("search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", errs.NewRetryable("search_status", fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("parse search page: %w", err)
	}

	results := anchorsByClass(doc, "result__a")
	if len(results) == 0 {
		return "", "", fmt.Errorf("no results for %q", query)
	}

	href = normalizeResultHref(results[0][0])
	if href == "" {
		return "", "", fmt.Errorf("unusable result link for %q", query)
	}
	return href, results[0][1], nil
}

// normalizeResultHref unwraps DuckDuckGo's redirect links (uddg param)
// and rejects non-http targets.
func normalizeResultHref(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if uddg := parsed.Query().Get("uddg"); uddg != "" {
		if target, err := url.QueryUnescape(uddg); err == nil {
			href = target
			parsed, err = url.Parse(href)
			if err != nil {
				return ""
			}
		}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	return href
}
