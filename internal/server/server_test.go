package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/osinthunter/config"
	"github.com/mohammad-safakhou/osinthunter/internal/agent"
	"github.com/mohammad-safakhou/osinthunter/internal/agent/collectors"
	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
	"github.com/mohammad-safakhou/osinthunter/internal/agent/telemetry"
	"github.com/mohammad-safakhou/osinthunter/internal/runlog"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeRuns struct {
	runs  []runlog.RunSummary
	err   error
	limit int
}

func (f *fakeRuns) Recent(_ context.Context, limit int) ([]runlog.RunSummary, error) {
	f.limit = limit
	return f.runs, f.err
}

type fixture struct {
	srv     *Server
	index   *runlog.Index
	records []core.RunRecord
	reg     *prometheus.Registry
}

func newFixture(t *testing.T, runs RunLister) *fixture {
	t.Helper()
	cfg := &config.Config{
		Agent:  config.AgentConfig{MaxIterations: 2},
		Server: config.ServerConfig{MaxUploadBytes: 64, MaxIterations: 5},
	}
	reg, err := collectors.NewRegistry(cfg)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	idx, err := runlog.NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })

	f := &fixture{index: idx, reg: prometheus.NewRegistry()}
	metrics, err := telemetry.NewMetrics(f.reg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	record := core.SinkFunc(func(_ context.Context, r core.RunRecord) error {
		f.records = append(f.records, r)
		return nil
	})
	f.srv, err = New(cfg, Options{
		Registry: reg,
		Deps:     agent.Deps{Sink: runlog.Multi{record, idx}, Metrics: metrics.Hooks()},
		Index:    idx,
		Runs:     runs,
		Gatherer: f.reg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.srv.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndCollectors(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/collectors", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got []collectorInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 20 || got[0].Name != "text-analysis" || got[0].RequiresNetwork {
		t.Fatalf("unexpected collectors %+v", got[:1])
	}
}

func TestInvestigateJSON(t *testing.T) {
	f := newFixture(t, nil)
	body := `{"text":"leak: flag{abc123} at http://example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/investigations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res core.AgentResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff([]string{"flag{abc123}"}, res.FlagCandidates); diff != "" {
		t.Fatalf("flags mismatch (-want +got):\n%s", diff)
	}
	if res.Iterations != 1 || len(f.records) != 1 {
		t.Fatalf("unexpected run: iterations=%d records=%d", res.Iterations, len(f.records))
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/evidence/search?q=token&k=5", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), f.records[0].ID) {
		t.Fatalf("indexed evidence not searchable: %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `osinthunter_runs_total{stop_reason="flag_found"} 1`) {
		t.Fatalf("run not counted in metrics:\n%s", rec.Body.String())
	}
}

func TestInvestigateRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)
	cases := []struct {
		body string
		code int
	}{
		{`{"text":"   "}`, http.StatusBadRequest},
		{`{"text":"x","max_iterations":-1}`, http.StatusBadRequest},
		{`{"text":"x","max_iterations":6}`, http.StatusBadRequest},
		{`{not json`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/investigations", strings.NewReader(tc.body))
		req.Header.Set("Content-Type", "application/json")
		rec := f.do(req)
		if rec.Code != tc.code {
			t.Fatalf("%s: expected %d, got %d", tc.body, tc.code, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"error"`) {
			t.Fatalf("%s: expected json error body, got %s", tc.body, rec.Body.String())
		}
	}
	if len(f.records) != 0 {
		t.Fatalf("rejected requests must not run")
	}
}

func multipartRequest(t *testing.T, text string, files map[string]string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("text", text); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	for name, ctype := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="images"; filename="`+name+`"`)
		h.Set("Content-Type", ctype)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		_, _ = part.Write(data)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/investigations", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestInvestigateMultipartImages(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(multipartRequest(t, "where is this?", map[string]string{"street.jpg": "image/jpeg"}, []byte("fake jpeg")))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res core.AgentResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, ev := range res.Evidence {
		if strings.Contains(ev.Fact, "street.jpg") && ev.Source == "image-osint" {
			found = true
		}
	}
	if !found {
		t.Fatalf("uploaded image did not reach the collectors")
	}
	path := f.records[0].Input.ImagePaths[0]
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("upload %s was not cleaned up", path)
	}
}

func TestInvestigateMultipartLimits(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(multipartRequest(t, "x", map[string]string{"notes.txt": "text/plain"}, []byte("hello")))
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}
	rec = f.do(multipartRequest(t, "x", map[string]string{"big.png": "image/png"}, bytes.Repeat([]byte("a"), 65)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestSearchAndRunsDisabledOrInvalid(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.do(httptest.NewRequest(http.MethodGet, "/api/evidence/search", nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty query, got %d", rec.Code)
	}
	if rec := f.do(httptest.NewRequest(http.MethodGet, "/api/runs", nil)); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without postgres, got %d", rec.Code)
	}
}

func TestRecentRuns(t *testing.T) {
	runs := &fakeRuns{runs: []runlog.RunSummary{{ID: "run-1", Loop: 2, StopReason: "max_iterations"}}}
	f := newFixture(t, runs)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/runs?limit=5", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "run-1") || runs.limit != 5 {
		t.Fatalf("unexpected response %d %s (limit %d)", rec.Code, rec.Body.String(), runs.limit)
	}
	if rec := f.do(httptest.NewRequest(http.MethodGet, "/api/runs?limit=zero", nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
	runs.err = errors.New("connection refused")
	if rec := f.do(httptest.NewRequest(http.MethodGet, "/api/runs", nil)); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 on backend error, got %d", rec.Code)
	}
}

func formRequest(t *testing.T, fields map[string]string, uploads map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	for name, ctype := range uploads {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="upload"; filename="`+name+`"`)
		h.Set("Content-Type", ctype)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		_, _ = part.Write([]byte("fake image"))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/run", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestIndexPageRendersForm(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, part := range []string{`action="/run"`, `name="prompt"`, `name="images"`, `name="upload"`, "20 collectors enabled", `max="5"`} {
		if !strings.Contains(body, part) {
			t.Fatalf("index page lacks %q:\n%s", part, body)
		}
	}
}

func TestRunPageMergesImageRefsAndUploads(t *testing.T) {
	f := newFixture(t, nil)
	fields := map[string]string{
		"prompt": "where was this taken?",
		"urls":   "https://ctf.example/chal\nhttps://paste.example/raw",
		"images": "https://img.example/tower.jpg\r\n\n/srv/evidence/beach.png",
	}
	rec := f.do(formRequest(t, fields, map[string]string{"street.jpg": "image/jpeg"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, echo.MIMETextHTML) {
		t.Fatalf("expected html, got %q", ct)
	}
	if len(f.records) != 1 {
		t.Fatalf("expected one recorded run, got %d", len(f.records))
	}
	in := f.records[0].Input
	if diff := cmp.Diff([]string{"https://ctf.example/chal", "https://paste.example/raw"}, in.URLs); diff != "" {
		t.Fatalf("urls mismatch (-want +got):\n%s", diff)
	}
	if len(in.ImagePaths) != 3 || in.ImagePaths[0] != "https://img.example/tower.jpg" || in.ImagePaths[1] != "/srv/evidence/beach.png" {
		t.Fatalf("listed images must come before uploads: %v", in.ImagePaths)
	}
	if filepath.Base(in.ImagePaths[2]) != "00_street.jpg" {
		t.Fatalf("unexpected upload path %q", in.ImagePaths[2])
	}
	body := rec.Body.String()
	for _, part := range []string{"where was this taken?", "https://img.example/tower.jpg", "<li>street.jpg</li>", "Flag candidates", "Inspect tower.jpg"} {
		if !strings.Contains(body, part) {
			t.Fatalf("result page lacks %q", part)
		}
	}
}

func TestRunPageRendersErrors(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(formRequest(t, map[string]string{"prompt": "  "}, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `class="error">text, urls or images required`) {
		t.Fatalf("error not rendered: %s", rec.Body.String())
	}
	rec = f.do(formRequest(t, map[string]string{"prompt": "x", "max_iterations": "50"}, nil))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "must not exceed 5") {
		t.Fatalf("expected iteration cap error, got %d %s", rec.Code, rec.Body.String())
	}
	if len(f.records) != 0 {
		t.Fatalf("rejected forms must not run")
	}
}
