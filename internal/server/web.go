package server

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// pageRenderer renders the embedded HTML pages for echo.
type pageRenderer struct {
	templates *template.Template
}

func (r *pageRenderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

type indexPage struct {
	Collectors     int
	MaxIterations  int
	IterationLimit int
}

type resultPage struct {
	Prompt string
	URLs   []string
	Images []string
	Error  string
	Result *core.AgentResult
}

func (s *Server) indexPage(c echo.Context) error {
	return c.Render(http.StatusOK, "index.html", indexPage{
		Collectors:     len(s.registry.Names()),
		MaxIterations:  s.cfg.Agent.MaxIterations,
		IterationLimit: s.requestIterationLimit(),
	})
}

// runPage is the form counterpart of POST /api/investigations. Errors are
// rendered into the result page with their status code.
func (s *Server) runPage(c echo.Context) error {
	req, cleanup, err := s.parseForm(c)
	if cleanup != nil {
		defer cleanup()
	}
	page := resultPage{
		Prompt: req.Text,
		URLs:   compact(req.URLs),
		Images: displayImages(req),
	}
	if err == nil {
		var result core.AgentResult
		if result, err = s.runInvestigation(c, req); err == nil {
			page.Result = &result
			return c.Render(http.StatusOK, "result.html", page)
		}
	}
	code := http.StatusInternalServerError
	page.Error = err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		page.Error = fmt.Sprint(he.Message)
	}
	return c.Render(code, "result.html", page)
}

// displayImages lists the typed image references followed by the original
// names of uploaded files rather than their temporary paths.
func displayImages(req investigationRequest) []string {
	listed := req.ImagePaths[:len(req.ImagePaths)-len(req.Uploads)]
	return append(compact(listed), req.Uploads...)
}
