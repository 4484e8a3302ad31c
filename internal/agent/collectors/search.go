package collectors

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
	"github.com/mohammad-safakhou/osinthunter/internal/helpers"
	"github.com/mohammad-safakhou/osinthunter/tools/web_search"
	"github.com/mohammad-safakhou/osinthunter/tools/web_search/models"
)

// queryWords bounds the keyword query derived from the problem text.
const queryWords = 8

// WebSearch runs the configured search provider over a keyword query.
type WebSearch struct {
	base
	searcher     web_search.WebSearcher // nil when no key is configured
	allowNetwork bool
	maxResults   int
}

func NewWebSearch(searcher web_search.WebSearcher, allowNetwork bool, maxResults int) *WebSearch {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &WebSearch{
		base: base{
			name:        core.CollectorWebSearch,
			description: "Propose or execute web searches for OSINT leads",
			network:     true,
		},
		searcher:     searcher,
		allowNetwork: allowNetwork,
		maxResults:   maxResults,
	}
}

func (c *WebSearch) Run(ctx context.Context, p core.ProblemInput) []core.Evidence {
	query := searchQuery(p.Text, queryWords)
	if !c.allowNetwork || c.searcher == nil {
		return []core.Evidence{c.degraded(fmt.Sprintf("Search not executed (network disabled). Suggested query: '%s'", query))}
	}
	results, err := c.searcher.Discover(ctx, query, c.maxResults)
	if err != nil {
		return []core.Evidence{c.failed(fmt.Sprintf("Search for '%s'", query), err)}
	}
	if len(results) == 0 {
		return []core.Evidence{c.evidence(fmt.Sprintf("Search returned no results for '%s'", query), 0.3)}
	}
	out := make([]core.Evidence, 0, len(results))
	for i, r := range results {
		out = append(out, c.evidence(fmt.Sprintf("Search result: %s -> %s | %s", helpers.PlainText(r.Title), r.URL, truncate(helpers.PlainText(r.Snippet), 200)), 0.5).
			WithMetadata(map[string]interface{}{"query": query, "rank": i + 1, "url": r.URL}))
	}
	return out
}

// tavilyResults is the number of Tavily hits kept per run.
const tavilyResults = 3

// TavilySearch queries Tavily with the full problem text.
type TavilySearch struct {
	base
	searcher     web_search.WebSearcher
	allowNetwork bool
}

func NewTavilySearch(searcher web_search.WebSearcher, allowNetwork bool) *TavilySearch {
	return &TavilySearch{
		base: base{
			name:        "tavily-search",
			description: "High-signal web search using Tavily",
			network:     true,
		},
		searcher:     searcher,
		allowNetwork: allowNetwork,
	}
}

func (c *TavilySearch) Run(ctx context.Context, p core.ProblemInput) []core.Evidence {
	query := truncate(p.Text, 400)
	if query == "" {
		return []core.Evidence{c.evidence("No query provided", confidenceNothing)}
	}
	short := truncate(query, 80)
	if !c.allowNetwork || c.searcher == nil {
		return []core.Evidence{c.degraded(fmt.Sprintf("Tavily not executed (network disabled). Suggested query: '%s'", short))}
	}
	results, err := c.searcher.Discover(ctx, query, tavilyResults)
	if err != nil {
		return []core.Evidence{c.failed("Tavily search", err)}
	}
	if len(results) == 0 {
		return []core.Evidence{c.evidence(fmt.Sprintf("Tavily returned no results for '%s'", short), 0.3)}
	}
	out := make([]core.Evidence, 0, len(results))
	for _, r := range firstResults(results, tavilyResults) {
		out = append(out, c.evidence(fmt.Sprintf("Tavily: %s -> %s | %s", helpers.PlainText(r.Title), r.URL, truncate(helpers.PlainText(r.Snippet), 200)), 0.6))
	}
	return out
}

// LensSearcher looks up visual matches for a public image URL.
type LensSearcher interface {
	Lens(ctx context.Context, imageURL string, k int) ([]models.Result, error)
}

// lensMatches is the number of visual matches kept per image.
const lensMatches = 3

// GoogleLens runs reverse image search through SerpAPI's google_lens engine.
type GoogleLens struct {
	base
	lens         LensSearcher // nil when no SerpAPI key is configured
	allowNetwork bool
}

func NewGoogleLens(lens LensSearcher, allowNetwork bool) *GoogleLens {
	return &GoogleLens{
		base: base{
			name:        "google-lens",
			description: "Reverse image suggestions using SerpAPI google_lens engine when image URLs are provided",
			network:     true,
		},
		lens:         lens,
		allowNetwork: allowNetwork,
	}
}

func (c *GoogleLens) Run(ctx context.Context, p core.ProblemInput) []core.Evidence {
	images := unique(p.ImagePaths)
	if len(images) == 0 {
		return []core.Evidence{c.evidence("No images provided for reverse search", confidenceNothing)}
	}
	var out []core.Evidence
	for _, img := range images {
		if !c.allowNetwork || c.lens == nil {
			out = append(out, c.degraded(fmt.Sprintf("Google Lens not executed for %s (network disabled or no SerpAPI key); upload it to https://lens.google.com manually", img)))
			continue
		}
		if u, err := url.Parse(img); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			out = append(out, c.evidence(fmt.Sprintf("Image is not a URL: %s. Upload to a temporary host to use Lens.", img), 0.3))
			continue
		}
		matches, err := c.lens.Lens(ctx, img, lensMatches)
		if err != nil {
			out = append(out, c.failed("Lens query for "+img, err))
			continue
		}
		if len(matches) == 0 {
			out = append(out, c.evidence("No Lens matches for "+img, 0.3))
			continue
		}
		for _, m := range matches {
			out = append(out, c.evidence(fmt.Sprintf("Lens match: %s -> %s", helpers.PlainText(m.Title), m.URL), 0.55).
				WithMetadata(map[string]interface{}{"image": img}))
		}
	}
	return out
}

func firstResults(items []models.Result, n int) []models.Result {
	if len(items) > n {
		return items[:n]
	}
	return items
}
