package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mohammad-safakhou/osinthunter/tools/web_search/models"
)

const defaultBaseURL = "https://serpapi.com/search.json"

type Search struct {
	ApiKey  string
	Client  *http.Client
	BaseURL string
}

func (s Search) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	params := url.Values{
		"engine":  {"google"},
		"q":       {q},
		"num":     {strconv.Itoa(k)},
		"api_key": {s.ApiKey},
	}
	var raw struct {
		Error          string `json:"error"`
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}
	if err := s.get(ctx, params, &raw); err != nil {
		return nil, err
	}
	if raw.Error != "" {
		return nil, &models.Error{Message: "serpapi: " + raw.Error}
	}
	var out []models.Result
	for i, r := range raw.OrganicResults {
		if i >= k {
			break
		}
		out = append(out, models.Result{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return out, nil
}

// Lens queries the google_lens engine for visual matches of a public image URL.
func (s Search) Lens(ctx context.Context, imageURL string, k int) ([]models.Result, error) {
	params := url.Values{
		"engine":  {"google_lens"},
		"url":     {imageURL},
		"api_key": {s.ApiKey},
	}
	var raw struct {
		Error         string `json:"error"`
		VisualMatches []struct {
			Title  string `json:"title"`
			Link   string `json:"link"`
			Source string `json:"source"`
		} `json:"visual_matches"`
	}
	if err := s.get(ctx, params, &raw); err != nil {
		return nil, err
	}
	if raw.Error != "" {
		return nil, &models.Error{Message: "serpapi: " + raw.Error}
	}
	var out []models.Result
	for i, r := range raw.VisualMatches {
		if i >= k {
			break
		}
		out = append(out, models.Result{Title: r.Title, URL: r.Link, Snippet: r.Source})
	}
	return out, nil
}

func (s Search) get(ctx context.Context, params url.Values, out any) error {
	base := s.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &models.Error{Message: fmt.Sprintf("serpapi: status %d", resp.StatusCode)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
