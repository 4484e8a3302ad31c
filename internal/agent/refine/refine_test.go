package refine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mohammad-safakhou/osinthunter/config"
	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
	openai "github.com/sashabaranov/go-openai"
)

func chatServer(t *testing.T, status int, content string, seen *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
			t.Errorf("expected json_object response format, got %+v", req.ResponseFormat)
		}
		if seen != nil && len(req.Messages) == 2 {
			*seen = req.Messages[1].Content
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		resp := map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(config.LLMConfig{APIKey: "test-key", BaseURL: srv.URL + "/", Model: "test", Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(config.LLMConfig{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestPlannerFiltersUnknownCollectors(t *testing.T) {
	var prompt string
	srv := chatServer(t, http.StatusOK, "Sure:\n"+`{"steps":[
		{"title":"Pivot handle","collector":"sns-osint","rationale":"handle seen"},
		{"title":"Port scan","collector":"nmap","rationale":"not available"},
		{"title":"Think","collector":"","rationale":"free form"}]}`, &prompt)

	p := NewPlanner(testClient(t, srv), []string{"sns-osint", "web-search"})
	state := core.OrchestrationState{
		Iteration: 2,
		Input:     core.ProblemInput{Text: "who is @ghost"},
		Evidence:  []core.Evidence{core.NewEvidence("text-analysis", "Possible handle: ghost", 0.55)},
	}
	heuristic := []core.PlanStep{{Title: "Web search", Collector: "web-search", Rationale: "context"}}
	got, err := p.RefinePlan(context.Background(), state, heuristic)
	if err != nil {
		t.Fatalf("RefinePlan: %v", err)
	}
	want := []core.PlanStep{
		{Title: "Pivot handle", Collector: "sns-osint", Rationale: "handle seen"},
		{Title: "Think", Rationale: "free form"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("steps mismatch (-want +got):\n%s", diff)
	}
	for _, part := range []string{"who is @ghost", "Possible handle: ghost", "1. Web search [web-search]", "sns-osint, web-search"} {
		if !strings.Contains(prompt, part) {
			t.Fatalf("prompt lacks %q:\n%s", part, prompt)
		}
	}
}

func TestValidatorKeepsOnlyFlagShapedTokens(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"flags":["FLAG{one}","the answer is flag{two} probably","nope"],"stop":true,"note":"done"}`, nil)
	verdict, err := NewValidator(testClient(t, srv)).RefineValidation(context.Background(), core.OrchestrationState{})
	if err != nil {
		t.Fatalf("RefineValidation: %v", err)
	}
	want := core.Verdict{Flags: []string{"FLAG{one}", "flag{two}"}, Stop: true, Note: "done"}
	if diff := cmp.Diff(want, verdict); diff != "" {
		t.Fatalf("verdict mismatch (-want +got):\n%s", diff)
	}
}

func TestRefinersReportTransportErrors(t *testing.T) {
	srv := chatServer(t, http.StatusTooManyRequests, "", nil)
	c := testClient(t, srv)
	if _, err := NewPlanner(c, nil).RefinePlan(context.Background(), core.OrchestrationState{}, nil); err == nil {
		t.Fatalf("expected plan error")
	}
	_, err := NewValidator(c).RefineValidation(context.Background(), core.OrchestrationState{})
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) || apiErr.HTTPStatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 api error, got %v", err)
	}

	bad := chatServer(t, http.StatusOK, "not json at all", nil)
	if _, err := NewValidator(testClient(t, bad)).RefineValidation(context.Background(), core.OrchestrationState{}); err == nil {
		t.Fatalf("expected parse error")
	}
}
