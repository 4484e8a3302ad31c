package collectors

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
	"github.com/mohammad-safakhou/osinthunter/internal/helpers"
)

// TextAnalysis extracts surface entities from the problem text.
type TextAnalysis struct{ base }

func NewTextAnalysis() *TextAnalysis {
	return &TextAnalysis{base{
		name:        core.CollectorTextAnalysis,
		description: "Extract entities (urls, emails, usernames, coordinates, IPs, hashtags) from text",
	}}
}

func (c *TextAnalysis) Run(_ context.Context, p core.ProblemInput) []core.Evidence {
	text := p.Text
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []core.Evidence

	for _, raw := range extractURLs(text) {
		host := ""
		if u, err := url.Parse(raw); err == nil {
			host = u.Host
		}
		out = append(out, c.evidence(fmt.Sprintf("URL found: %s (domain=%s)", raw, host), 0.7))
	}
	for _, email := range extractEmails(text) {
		out = append(out, c.evidence("Email found: "+email, 0.6))
	}
	for _, h := range extractHandles(text) {
		out = append(out, c.evidence("Possible handle: "+h, 0.55).
			WithMetadata(map[string]interface{}{"username": h}))
	}
	for _, co := range extractCoordinates(text) {
		out = append(out, c.evidence(fmt.Sprintf("Possible coordinates: %s, %s", co.lat, co.lon), 0.65).
			WithMetadata(map[string]interface{}{"lat": co.lat, "lon": co.lon}))
	}
	for _, ip := range extractIPs(text) {
		out = append(out, c.evidence("Possible IP address: "+ip, 0.5))
	}
	for _, tag := range extractHashtags(text) {
		out = append(out, c.evidence("Hashtag detected: #"+tag, 0.45))
	}
	for _, flag := range unique(core.ExtractFlags(text)) {
		out = append(out, c.evidence("Flag-like token: "+flag, 0.9))
	}
	return out
}

var archiveExtensions = []string{".zip", ".rar", ".7z", ".gz", ".tar", ".bak"}

// URLInvestigation breaks URLs into pivotable components.
type URLInvestigation struct{ base }

func NewURLInvestigation() *URLInvestigation {
	return &URLInvestigation{base{
		name:        core.CollectorURLInvestigation,
		description: "Parse URLs and highlight domains, paths, and potential pivots",
	}}
}

func (c *URLInvestigation) Run(_ context.Context, p core.ProblemInput) []core.Evidence {
	var out []core.Evidence
	for _, raw := range problemURLs(p) {
		u, err := url.Parse(raw)
		if err != nil {
			out = append(out, c.evidence(fmt.Sprintf("URL analysis: %s | unparsable (%v)", raw, err), 0.3))
			continue
		}
		var parts []string
		if u.Host != "" {
			parts = append(parts, "domain="+u.Host)
			if ipv4Re.FindString(u.Hostname()) == u.Hostname() {
				parts = append(parts, "host_is_ipv4")
			}
		}
		if u.Path != "" && u.Path != "/" {
			parts = append(parts, "path="+u.Path)
			lower := strings.ToLower(u.Path)
			for _, ext := range archiveExtensions {
				if strings.HasSuffix(lower, ext) {
					parts = append(parts, "archive_extension="+ext)
					break
				}
			}
		}
		if u.RawQuery != "" {
			parts = append(parts, "query parameters present")
		}
		if len(parts) == 0 {
			parts = append(parts, "no notable components")
		}
		confidence := 0.55
		if len(parts) > 1 {
			confidence = 0.65
		}

		md := map[string]interface{}{"url": raw}
		if canonical, err := helpers.CanonicalURL(raw); err == nil {
			md["canonical"] = canonical
		}
		if fp, err := helpers.URLFingerprint(raw); err == nil {
			md["fingerprint"] = fp
		}
		out = append(out, c.evidence(fmt.Sprintf("URL analysis: %s | %s", raw, strings.Join(parts, ", ")), confidence).WithMetadata(md))
	}
	return out
}
