package collectors

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
	"github.com/mohammad-safakhou/osinthunter/internal/helpers"
	"github.com/mohammad-safakhou/osinthunter/tools/web_fetch"
)

// maxFetchURLs bounds how many pages are rendered per run.
const maxFetchURLs = 3

// URLFetch renders pages behind the problem URLs and reports their content.
type URLFetch struct {
	base
	fetcher      web_fetch.WebFetcher
	allowNetwork bool
}

func NewURLFetch(fetcher web_fetch.WebFetcher, allowNetwork bool) *URLFetch {
	return &URLFetch{
		base: base{
			name:        core.CollectorURLFetch,
			description: "Render URLs in a headless browser and extract title, text and flag-like tokens",
			network:     true,
		},
		fetcher:      fetcher,
		allowNetwork: allowNetwork,
	}
}

func (c *URLFetch) Run(ctx context.Context, p core.ProblemInput) []core.Evidence {
	urls := firstN(problemURLs(p), maxFetchURLs)
	if len(urls) == 0 {
		return []core.Evidence{c.evidence("No URLs to fetch", confidenceNothing)}
	}
	var out []core.Evidence
	for _, u := range urls {
		if !c.allowNetwork || c.fetcher == nil {
			out = append(out, c.degraded(fmt.Sprintf("Open %s in a browser and review the rendered page (network disabled)", u)))
			continue
		}
		res, err := c.fetcher.Exec(ctx, u)
		if err != nil {
			out = append(out, c.failed("Fetch of "+u, err))
			continue
		}
		md := map[string]interface{}{"url": u, "status": res.Status, "html_hash": res.HTMLHash, "render_ms": res.RenderMS}
		title := helpers.PlainText(res.Title)
		if title == "" {
			title = "(untitled)"
		}
		summary := res.Excerpt
		if summary == "" {
			summary = res.Text
		}
		out = append(out, c.evidence(fmt.Sprintf("Page %s: %s | %s", u, title, truncate(summary, 160)), 0.55).WithMetadata(md))
		for _, flag := range unique(core.ExtractFlags(res.Title + " " + res.Text)) {
			out = append(out, c.evidence(fmt.Sprintf("Flag-like token on %s: %s", u, flag), 0.8))
		}
	}
	return out
}
