package collectors

import (
	"fmt"
	"time"

	"github.com/mohammad-safakhou/osinthunter/config"
	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
	"github.com/mohammad-safakhou/osinthunter/tools/web_fetch"
	"github.com/mohammad-safakhou/osinthunter/tools/web_search"
	"github.com/mohammad-safakhou/osinthunter/tools/web_search/serpapi"
	"go.uber.org/zap"
)

// Registry is the catalogue of collectors built for one configuration.
type Registry struct {
	order  []string
	byName map[string]core.Collector
}

// Option customises registry construction.
type Option func(*buildOptions)

type buildOptions struct {
	http     *HTTPClient
	searcher web_search.WebSearcher
	tavily   web_search.WebSearcher
	lens     LensSearcher
	fetcher  web_fetch.WebFetcher
	logger   *zap.Logger
}

// WithHTTPClient overrides the client used by the API backed collectors.
func WithHTTPClient(c *HTTPClient) Option {
	return func(o *buildOptions) { o.http = c }
}

// WithSearcher overrides the web-search backend.
func WithSearcher(s web_search.WebSearcher) Option {
	return func(o *buildOptions) { o.searcher = s }
}

// WithFetcher overrides the page fetcher.
func WithFetcher(f web_fetch.WebFetcher) Option {
	return func(o *buildOptions) { o.fetcher = f }
}

// WithLogger sets the logger used while building.
func WithLogger(l *zap.Logger) Option {
	return func(o *buildOptions) { o.logger = l }
}

// NewRegistry builds every known collector with credentials and the network
// switch from cfg injected at construction.
func NewRegistry(cfg *config.Config, opts ...Option) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	o := buildOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.http == nil {
		o.http = NewHTTPClient(10*time.Second, 1, 300*time.Millisecond)
	}
	creds := cfg.Credentials
	allow := cfg.Agent.AllowNetwork

	if o.searcher == nil {
		provider := web_search.Provider(cfg.Search.Provider)
		if key := providerKey(creds, provider); key != "" {
			s, err := web_search.NewWebSearcher(provider, key)
			if err != nil {
				return nil, fmt.Errorf("search provider: %w", err)
			}
			o.searcher = s
		} else {
			o.logger.Debug("no key for search provider, web-search runs degraded", zap.String("provider", cfg.Search.Provider))
		}
	}
	if o.tavily == nil && creds.Tavily != "" {
		s, err := web_search.NewWebSearcher(web_search.TavilyProvider, creds.Tavily)
		if err != nil {
			return nil, err
		}
		o.tavily = s
	}
	if o.lens == nil && creds.SerpAPI != "" {
		o.lens = serpapi.Search{ApiKey: creds.SerpAPI}
	}
	if o.fetcher == nil && allow {
		f, err := web_fetch.NewWebFetcher(web_fetch.ChromedpFetcherType, cfg.Fetch.Timeout, cfg.Fetch.MaxChars)
		if err != nil {
			return nil, fmt.Errorf("page fetcher: %w", err)
		}
		o.fetcher = f
	}

	all := []core.Collector{
		NewTextAnalysis(),
		NewURLInvestigation(),
		NewURLFetch(o.fetcher, allow),
		NewSNS(),
		NewWebSearch(o.searcher, allow, cfg.Search.MaxResults),
		NewGeolocation(),
		NewImageOSINT(),
		NewGoogleLens(o.lens, allow),
		NewYandexImages(),
		NewEarthView(),
		NewShodan(creds.Shodan, allow, o.http),
		NewCensys(creds.CensysID, creds.CensysSecret, allow, o.http),
		NewWhois(),
		NewBuiltWith(creds.BuiltWith, allow, o.http),
		NewHunter(creds.Hunter, allow, o.http),
		NewPhonebook(),
		NewWayback(allow, o.http),
		NewSocialSearcher(),
		NewSherlock(),
		NewTavilySearch(o.tavily, allow),
	}
	r := &Registry{byName: make(map[string]core.Collector, len(all))}
	for _, c := range all {
		r.order = append(r.order, c.Name())
		r.byName[c.Name()] = c
	}
	return r, nil
}

func providerKey(creds config.CredentialsConfig, p web_search.Provider) string {
	switch p {
	case web_search.SerpAPIProvider:
		return creds.SerpAPI
	case web_search.SerperProvider:
		return creds.Serper
	case web_search.BraveProvider:
		return creds.Brave
	case web_search.TavilyProvider:
		return creds.Tavily
	default:
		return ""
	}
}

// Names lists collector names in catalogue order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// All returns every collector in catalogue order.
func (r *Registry) All() []core.Collector {
	out := make([]core.Collector, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Get looks a collector up by name.
func (r *Registry) Get(name string) (core.Collector, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Select returns the named collectors in the requested order. An empty
// selection returns the whole catalogue. Unknown names are an error.
func (r *Registry) Select(names []string) ([]core.Collector, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	out := make([]core.Collector, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		c, ok := r.byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", core.ErrUnknownCollector, name)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}
