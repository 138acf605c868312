package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/bracketlabs/bracket/internal/model"
)

const arxivAPIURL = "http://export.arxiv.org/api/query"

// ArxivSource fetches paper abstracts from the arXiv Atom API.
// Tier 3: experimental, dense material.
type ArxivSource struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	opts       Options
	apiURL     string
}

// NewArxivSource creates an arXiv source.
func NewArxivSource(opts Options) *ArxivSource {
	opts = opts.withDefaults()
	return &ArxivSource{
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    newLimiter(opts.RequestsPerMinute),
		opts:       opts,
		apiURL:     arxivAPIURL,
	}
}

// Name returns the source name
func (s *ArxivSource) Name() string { return "arxiv" }

type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
	ID      string `xml:"id"`
}

// Fetch queries the arXiv API and concatenates the top abstracts.
func (s *ArxivSource) Fetch(ctx context.Context, query string) (*model.SourceResult, error) {
	if query == "" {
		return s.FetchRandom(ctx)
	}

	queryURL := fmt.Sprintf("%s?search_query=all:%s&max_results=3", s.apiURL, url.QueryEscape(query))
	body, err := httpGet(ctx, s.httpClient, s.limiter, s.opts.UserAgent, queryURL, s.opts.MaxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("arxiv query: %w", err)
	}

	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	if len(feed.Entries) == 0 {
		return nil, fmt.Errorf("no results for %q", query)
	}

	var sb strings.Builder
	for _, entry := range feed.Entries {
		sb.WriteString(strings.TrimSpace(entry.Title))
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(entry.Summary))
		sb.WriteString("\n\n")
	}

	return &model.SourceResult{
		Content:    strings.TrimSpace(sb.String()),
		URL:        strings.TrimSpace(feed.Entries[0].ID),
		Title:      strings.TrimSpace(feed.Entries[0].Title),
		SourceName: s.Name(),
		Query:      query,
	}, nil
}

// FetchRandom queries a random seed word.
func (s *ArxivSource) FetchRandom(ctx context.Context) (*model.SourceResult, error) {
	return s.Fetch(ctx, seedWords[rand.Intn(len(seedWords))])
}
