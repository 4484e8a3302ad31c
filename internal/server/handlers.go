package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/osinthunter/internal/agent"
	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
	"go.uber.org/zap"
)

type collectorInfo struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	RequiresNetwork bool   `json:"requires_network"`
}

func (s *Server) listCollectors(c echo.Context) error {
	all := s.registry.All()
	out := make([]collectorInfo, 0, len(all))
	for _, col := range all {
		out = append(out, collectorInfo{Name: col.Name(), Description: col.Description(), RequiresNetwork: col.RequiresNetwork()})
	}
	return c.JSON(http.StatusOK, out)
}

// investigationRequest is the JSON intake of POST /api/investigations.
type investigationRequest struct {
	Text          string   `json:"text"`
	URLs          []string `json:"urls"`
	ImagePaths    []string `json:"image_paths"`
	MaxIterations int      `json:"max_iterations"`

	Uploads []string `json:"-"` // original names of uploaded files, paths are in ImagePaths
}

// defaultRequestIterations caps per-request overrides when server.max_iterations is unset.
const defaultRequestIterations = 20

func (s *Server) investigate(c echo.Context) error {
	req, cleanup, err := s.readRequest(c)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return err
	}
	result, err := s.runInvestigation(c, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// readRequest decodes a JSON body or a multipart form into an investigation request.
func (s *Server) readRequest(c echo.Context) (investigationRequest, func(), error) {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(ct, echo.MIMEMultipartForm) || strings.HasPrefix(ct, echo.MIMEApplicationForm) {
		return s.parseForm(c)
	}
	var req investigationRequest
	if err := c.Bind(&req); err != nil {
		return req, nil, echo.NewHTTPError(http.StatusBadRequest, "invalid json body")
	}
	return req, nil, nil
}

// runInvestigation validates req and runs a per-request orchestrator over it.
func (s *Server) runInvestigation(c echo.Context, req investigationRequest) (core.AgentResult, error) {
	problem := core.ProblemInput{
		Text:       strings.TrimSpace(req.Text),
		URLs:       compact(req.URLs),
		ImagePaths: compact(req.ImagePaths),
	}
	if problem.Text == "" && len(problem.URLs) == 0 && len(problem.ImagePaths) == 0 {
		return core.AgentResult{}, echo.NewHTTPError(http.StatusBadRequest, "text, urls or images required")
	}
	if req.MaxIterations < 0 {
		return core.AgentResult{}, echo.NewHTTPError(http.StatusBadRequest, "max_iterations must be positive")
	}
	if limit := s.requestIterationLimit(); req.MaxIterations > limit {
		return core.AgentResult{}, echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("max_iterations must not exceed %d", limit))
	}

	cfg := *s.cfg
	if req.MaxIterations > 0 {
		cfg.Agent.MaxIterations = req.MaxIterations
	}
	deps := s.deps
	deps.Logger = s.logger.With(zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))
	orch, err := agent.New(&cfg, s.registry, deps)
	if err != nil {
		return core.AgentResult{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := orch.Run(c.Request().Context(), problem)
	if err != nil {
		// the client went away; the run was still finalized and reported
		s.logger.Warn("investigation cancelled", zap.Error(err))
	}
	return result, nil
}

func (s *Server) requestIterationLimit() int {
	if s.cfg.Server.MaxIterations > 0 {
		return s.cfg.Server.MaxIterations
	}
	return defaultRequestIterations
}

// parseForm reads text (or prompt), urls and images. urls and images accept
// values separated by newlines; uploaded files under images or upload are
// written to a temporary directory removed by the returned cleanup and merged
// after the listed image paths.
func (s *Server) parseForm(c echo.Context) (investigationRequest, func(), error) {
	var req investigationRequest
	req.Text = c.FormValue("text")
	if req.Text == "" {
		req.Text = c.FormValue("prompt")
	}
	params, err := c.FormParams()
	if err != nil {
		return req, nil, echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	for _, raw := range params["urls"] {
		req.URLs = append(req.URLs, strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '\n' || r == '\r' || r == ' ' })...)
	}
	for _, raw := range params["images"] {
		req.ImagePaths = append(req.ImagePaths, splitLines(raw)...)
	}
	if v := strings.TrimSpace(params.Get("max_iterations")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, nil, echo.NewHTTPError(http.StatusBadRequest, "max_iterations must be an integer")
		}
		req.MaxIterations = n
	}

	form, err := c.MultipartForm()
	if err != nil {
		// url-encoded forms carry no files
		return req, nil, nil
	}
	var files []*multipart.FileHeader
	for _, field := range []string{"images", "upload"} {
		for _, fh := range form.File[field] {
			if fh.Filename != "" {
				files = append(files, fh)
			}
		}
	}
	if len(files) == 0 {
		return req, nil, nil
	}
	dir, err := os.MkdirTemp("", "osinthunter-upload-")
	if err != nil {
		return req, nil, fmt.Errorf("upload dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	limit := s.cfg.Server.MaxUploadBytes
	for i, fh := range files {
		if limit > 0 && fh.Size > limit {
			return req, cleanup, echo.NewHTTPError(http.StatusRequestEntityTooLarge,
				fmt.Sprintf("image %s exceeds %d bytes", fh.Filename, limit))
		}
		if !strings.HasPrefix(fh.Header.Get(echo.HeaderContentType), "image/") {
			return req, cleanup, echo.NewHTTPError(http.StatusUnsupportedMediaType,
				fmt.Sprintf("%s is not an image", fh.Filename))
		}
		dst := filepath.Join(dir, fmt.Sprintf("%02d_%s", i, filepath.Base(fh.Filename)))
		if err := saveUpload(fh, dst); err != nil {
			return req, cleanup, err
		}
		req.ImagePaths = append(req.ImagePaths, dst)
		req.Uploads = append(req.Uploads, fh.Filename)
	}
	return req, cleanup, nil
}

func saveUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("store upload %s: %w", fh.Filename, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return fmt.Errorf("store upload %s: %w", fh.Filename, err)
	}
	return out.Close()
}

func (s *Server) searchEvidence(c echo.Context) error {
	if s.index == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "evidence index disabled")
	}
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	k, _ := strconv.Atoi(c.QueryParam("k"))
	hits, err := s.index.Search(q, k)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"query": q, "hits": hits})
}

func (s *Server) recentRuns(c echo.Context) error {
	if s.runs == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "postgres run log disabled")
	}
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	runs, err := s.runs.Recent(c.Request().Context(), limit)
	if err != nil {
		return errors.Join(echo.NewHTTPError(http.StatusBadGateway, "run log unavailable"), err)
	}
	return c.JSON(http.StatusOK, runs)
}

func splitLines(raw string) []string {
	return compact(strings.FieldsFunc(raw, func(r rune) bool { return r == '\n' || r == '\r' }))
}

func compact(items []string) []string {
	var out []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
