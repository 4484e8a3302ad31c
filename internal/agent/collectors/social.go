package collectors

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
)

// SNS suggests cross-platform checks for discovered handles.
type SNS struct{ base }

func NewSNS() *SNS {
	return &SNS{base{
		name:        core.CollectorSNS,
		description: "Suggest cross-platform checks for discovered handles",
		network:     true,
	}}
}

func (c *SNS) Run(_ context.Context, p core.ProblemInput) []core.Evidence {
	var out []core.Evidence
	for _, h := range extractHandles(p.Text) {
		out = append(out, c.evidence(fmt.Sprintf("Check handle '%s' on X/Instagram/GitHub/Reddit", h), 0.55).
			WithMetadata(map[string]interface{}{"username": h}))
	}
	if len(out) == 0 {
		out = append(out, c.evidence("No handles found for SNS pivot", confidenceNothing))
	}
	return out
}

// SocialSearcher points at keyword search across social networks.
type SocialSearcher struct{ base }

func NewSocialSearcher() *SocialSearcher {
	return &SocialSearcher{base{name: "social-searcher", description: "Cross-SNS keyword/hashtag guidance"}}
}

func (c *SocialSearcher) Run(_ context.Context, p core.ProblemInput) []core.Evidence {
	query := truncate(p.Text, 80)
	if query == "" {
		return []core.Evidence{c.evidence("No keywords provided for social search", confidenceNothing)}
	}
	out := []core.Evidence{c.evidence("Use Social Searcher or native SNS search for: "+query, 0.3)}
	for _, tag := range extractHashtags(p.Text) {
		out = append(out, c.evidence(fmt.Sprintf("Search hashtag #%s on https://www.social-searcher.com/", tag), 0.3))
	}
	return out
}

// Sherlock suggests local username enumeration.
type Sherlock struct{ base }

func NewSherlock() *Sherlock {
	return &Sherlock{base{name: "sherlock", description: "Username presence across sites"}}
}

func (c *Sherlock) Run(_ context.Context, p core.ProblemInput) []core.Evidence {
	handles := extractHandles(p.Text)
	if len(handles) == 0 {
		return []core.Evidence{c.evidence("Run: sherlock <username> --print-found (requires local tool install)", 0.35)}
	}
	return []core.Evidence{c.evidence(
		fmt.Sprintf("Run: sherlock %s --print-found (requires local tool install)", strings.Join(handles, " ")), 0.4)}
}
