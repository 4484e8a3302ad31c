package web_search

import (
	"context"
	"net/http"

	"github.com/mohammad-safakhou/osinthunter/tools/web_search/brave"
	"github.com/mohammad-safakhou/osinthunter/tools/web_search/models"
	"github.com/mohammad-safakhou/osinthunter/tools/web_search/serpapi"
	"github.com/mohammad-safakhou/osinthunter/tools/web_search/serper"
	"github.com/mohammad-safakhou/osinthunter/tools/web_search/tavily"
)

type WebSearcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider  Provider = "serper"
	BraveProvider   Provider = "brave"
	SerpAPIProvider Provider = "serpapi"
	TavilyProvider  Provider = "tavily"
)

var ErrUnsupportedProvider = &models.Error{Message: "unsupported provider"}

// Providers lists the supported provider names.
func Providers() []Provider {
	return []Provider{SerpAPIProvider, SerperProvider, BraveProvider, TavilyProvider}
}

// Option customises a searcher; mostly used to point it at a test server.
type Option func(*settings)

type settings struct {
	client  *http.Client
	baseURL string
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.client = c }
}

// WithBaseURL overrides the provider endpoint.
func WithBaseURL(u string) Option {
	return func(s *settings) { s.baseURL = u }
}

func NewWebSearcher(provider Provider, apiKey string, opts ...Option) (WebSearcher, error) {
	s := settings{client: http.DefaultClient}
	for _, opt := range opts {
		opt(&s)
	}
	switch provider {
	case SerperProvider:
		return serper.Search{ApiKey: apiKey, Client: s.client, BaseURL: s.baseURL}, nil
	case BraveProvider:
		return brave.Search{ApiKey: apiKey, Client: s.client, BaseURL: s.baseURL}, nil
	case SerpAPIProvider:
		return serpapi.Search{ApiKey: apiKey, Client: s.client, BaseURL: s.baseURL}, nil
	case TavilyProvider:
		return tavily.Search{ApiKey: apiKey, Client: s.client, BaseURL: s.baseURL}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
