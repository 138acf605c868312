package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/bracketlabs/bracket/internal/model"
)

const wikipediaAPIURL = "https://en.wikipedia.org/w/api.php"

// WikipediaSource fetches article plain text via the MediaWiki API.
// Tier 1: reliable, well-structured content.
type WikipediaSource struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	opts       Options
	apiURL     string
}

// NewWikipediaSource creates a Wikipedia source.
func NewWikipediaSource(opts Options) *WikipediaSource {
	opts = opts.withDefaults()
	return &WikipediaSource{
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    newLimiter(opts.RequestsPerMinute),
		opts:       opts,
		apiURL:     wikipediaAPIURL,
	}
}

// Name returns the source name
func (s *WikipediaSource) Name() string { return "wikipedia" }

type wikiQueryResponse struct {
	Query struct {
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
		Pages map[string]struct {
			Title   string `json:"title"`
			Extract string `json:"extract"`
		} `json:"pages"`
	} `json:"query"`
}

// Fetch searches for the query and returns the top article's plain text.
func (s *WikipediaSource) Fetch(ctx context.Context, query string) (*model.SourceResult, error) {
	if query == "" {
		return s.FetchRandom(ctx)
	}

	searchURL := fmt.Sprintf("%s?action=query&list=search&srsearch=%s&srlimit=1&format=json",
		s.apiURL, url.QueryEscape(query))
	body, err := httpGet(ctx, s.httpClient, s.limiter, s.opts.UserAgent, searchURL, s.opts.MaxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("wikipedia search: %w", err)
	}

	var search wikiQueryResponse
	if err := json.Unmarshal(body, &search); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if len(search.Query.Search) == 0 {
		return nil, fmt.Errorf("no results for %q", query)
	}

	return s.fetchExtract(ctx, search.Query.Search[0].Title, query)
}

// FetchRandom returns the plain text of a random main-namespace article.
func (s *WikipediaSource) FetchRandom(ctx context.Context) (*model.SourceResult, error) {
	randomURL := s.apiURL + "?action=query&generator=random&grnnamespace=0&grnlimit=1&prop=extracts&explaintext=1&format=json"
	body, err := httpGet(ctx, s.httpClient, s.limiter, s.opts.UserAgent, randomURL, s.opts.MaxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("wikipedia random: %w", err)
	}

	var resp wikiQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode random response: %w", err)
	}

	for _, page := range resp.Query.Pages {
		return s.result(page.Title, page.Extract, ""), nil
	}
	return nil, fmt.Errorf("empty random response")
}

func (s *WikipediaSource) fetchExtract(ctx context.Context, title, query string) (*model.SourceResult, error) {
	extractURL := fmt.Sprintf("%s?action=query&prop=extracts&explaintext=1&titles=%s&format=json",
		s.apiURL, url.QueryEscape(title))
	body, err := httpGet(ctx, s.httpClient, s.limiter, s.opts.UserAgent, extractURL, s.opts.MaxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("wikipedia extract: %w", err)
	}

	var resp wikiQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode extract response: %w", err)
	}

	for _, page := range resp.Query.Pages {
		if page.Extract != "" {
			return s.result(page.Title, page.Extract, query), nil
		}
	}
	return nil, fmt.Errorf("no extract for %q", title)
}

func (s *WikipediaSource) result(title, content, query string) *model.SourceResult {
	return &model.SourceResult{
		Content:    content,
		URL:        "https://en.wikipedia.org/wiki/" + url.PathEscape(title),
		Title:      title,
		SourceName: s.Name(),
		Query:      query,
	}
}
