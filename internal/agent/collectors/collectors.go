// Package collectors holds the Collector implementations and the registry
// that builds them from configuration.
package collectors

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
)

// Confidence levels shared by collectors.
const (
	confidenceFailure  = 0.2
	confidenceDegraded = 0.25
	confidenceNothing  = 0.2
)

var (
	urlRe     = regexp.MustCompile(`https?://[^\s]+`)
	emailRe   = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	handleRe  = regexp.MustCompile(`(?:^|[^A-Za-z0-9._%+-])@([A-Za-z0-9_]{3,32})`)
	coordRe   = regexp.MustCompile(`(-?\d{1,3}\.\d{3,}),\s*(-?\d{1,3}\.\d{3,})`)
	ipv4Re    = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	hashtagRe = regexp.MustCompile(`#(\w{2,64})`)
	domainRe  = regexp.MustCompile(`\b([A-Za-z0-9.-]+\.[A-Za-z]{2,})\b`)
	emailHost = regexp.MustCompile(`[A-Za-z0-9._%+-]+@([A-Za-z0-9.-]+\.[A-Za-z]{2,})`)
)

// base carries the descriptive part of every collector.
type base struct {
	name        string
	description string
	network     bool
}

func (b base) Name() string          { return b.name }
func (b base) Description() string   { return b.description }
func (b base) RequiresNetwork() bool { return b.network }

func (b base) evidence(fact string, confidence float64) core.Evidence {
	return core.NewEvidence(b.name, fact, confidence)
}

// failed keeps the fact stable across iterations so repeated failures dedup;
// the error text goes to metadata.
func (b base) failed(what string, err error) core.Evidence {
	return b.evidence(what+" failed", confidenceFailure).
		WithMetadata(map[string]interface{}{"error": err.Error()})
}

func (b base) degraded(fact string) core.Evidence {
	return b.evidence(fact, confidenceDegraded).WithMetadata(map[string]interface{}{"degraded": true})
}

// unique keeps the first occurrence of each non-empty item.
func unique(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func trimURL(raw string) string {
	return strings.TrimRight(raw, ".,;:!?)]'\">")
}

func extractURLs(text string) []string {
	var out []string
	for _, m := range urlRe.FindAllString(text, -1) {
		out = append(out, trimURL(m))
	}
	return unique(out)
}

// problemURLs returns the explicit URLs followed by the ones found in text.
func problemURLs(p core.ProblemInput) []string {
	return unique(append(append([]string(nil), p.URLs...), extractURLs(p.Text)...))
}

func extractEmails(text string) []string {
	return unique(emailRe.FindAllString(text, -1))
}

func extractHandles(text string) []string {
	var out []string
	for _, m := range handleRe.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return unique(out)
}

type coordinate struct{ lat, lon string }

func extractCoordinates(text string) []coordinate {
	seen := map[coordinate]struct{}{}
	var out []coordinate
	for _, m := range coordRe.FindAllStringSubmatch(text, -1) {
		c := coordinate{lat: m[1], lon: m[2]}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func extractIPs(text string) []string {
	return unique(ipv4Re.FindAllString(text, -1))
}

func extractHashtags(text string) []string {
	var out []string
	for _, m := range hashtagRe.FindAllStringSubmatch(strings.ToLower(text), -1) {
		out = append(out, m[1])
	}
	return unique(out)
}

// extractHosts collects hosts from URLs, bare domains and email addresses.
// Dotted quads are left to the IP based collectors.
func extractHosts(p core.ProblemInput) []string {
	var hosts []string
	for _, raw := range problemURLs(p) {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
		}
	}
	for _, m := range domainRe.FindAllStringSubmatch(p.Text, -1) {
		hosts = append(hosts, m[1])
	}
	for _, m := range emailHost.FindAllStringSubmatch(p.Text, -1) {
		hosts = append(hosts, m[1])
	}
	out := make([]string, 0, len(hosts))
	for _, h := range unique(hosts) {
		if ipv4Re.MatchString(h) && ipv4Re.FindString(h) == h {
			continue
		}
		out = append(out, strings.ToLower(h))
	}
	return unique(out)
}

// searchQuery builds a short keyword query from the problem text.
func searchQuery(text string, words int) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "osint ctf"
	}
	return strings.Join(firstN(fields, words), " ")
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
