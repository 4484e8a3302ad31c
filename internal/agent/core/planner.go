package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// DefaultPlanMaxSteps bounds the length of a refined plan.
const DefaultPlanMaxSteps = 8

// sparseEvidence is the evidence volume under which the planner treats the run as just started.
const sparseEvidence = 3

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// Collector names referenced by the heuristic plan.
const (
	CollectorTextAnalysis     = "text-analysis"
	CollectorURLInvestigation = "url-investigation"
	CollectorURLFetch         = "url-fetch"
	CollectorSNS              = "sns-osint"
	CollectorWebSearch        = "web-search"
	CollectorImage            = "image-osint"
	CollectorGeolocation      = "geolocation"
)

type stepTemplate struct {
	title     string
	collector string
	rationale string
	when      func(OrchestrationState) bool
}

var heuristicSteps = []stepTemplate{
	{title: "Extract surface entities", collector: CollectorTextAnalysis, rationale: "Identify URLs, handles, IPs or coordinates"},
	{title: "Parse URL anatomy", collector: CollectorURLInvestigation, rationale: "Understand domains and pivot points"},
	{title: "Enrich URLs", collector: CollectorURLFetch, rationale: "Fetch page content behind the URLs", when: OrchestrationState.HasURLs},
	{title: "Cross-platform handles", collector: CollectorSNS, rationale: "Search for the same username across SNS"},
	{title: "Web search", collector: CollectorWebSearch, rationale: "Gather open web context"},
	{title: "Image inspection", collector: CollectorImage, rationale: "Check EXIF/OCR and landmarks", when: OrchestrationState.HasImages},
	{title: "Geolocation", collector: CollectorGeolocation, rationale: "Resolve coordinates or location hints"},
}

// PlanCollectors lists every collector the heuristic plan can reference.
func PlanCollectors() []string {
	out := make([]string, 0, len(heuristicSteps))
	for _, st := range heuristicSteps {
		out = append(out, st.collector)
	}
	return out
}

// Planner produces the ordered steps of an iteration.
type Planner struct {
	refiner  PlanRefiner
	maxSteps int
	logger   *zap.Logger
}

// NewPlanner creates a planner. refiner may be nil.
func NewPlanner(refiner PlanRefiner, maxSteps int, logger *zap.Logger) *Planner {
	if maxSteps <= 0 {
		maxSteps = DefaultPlanMaxSteps
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{refiner: refiner, maxSteps: maxSteps, logger: logger}
}

// Heuristic returns the static plan conditioned on the input signals and
// current evidence volume.
func (p *Planner) Heuristic(state OrchestrationState) []PlanStep {
	volume := len(state.Evidence)
	steps := make([]PlanStep, 0, len(heuristicSteps))
	for _, st := range heuristicSteps {
		if st.when != nil && !st.when(state) {
			continue
		}
		steps = append(steps, PlanStep{
			Title:     st.title,
			Collector: st.collector,
			Rationale: annotateRationale(st.rationale, volume),
		})
	}
	return steps
}

// Plan returns the refined plan when a refiner is set and produced something
// usable, and the heuristic plan otherwise. It never fails.
func (p *Planner) Plan(ctx context.Context, state OrchestrationState) []PlanStep {
	heuristic := p.Heuristic(state)
	if p.refiner == nil {
		return heuristic
	}
	refined, err := p.refiner.RefinePlan(ctx, state.Clone(), append([]PlanStep(nil), heuristic...))
	if err != nil {
		p.logger.Warn("plan refinement failed, using heuristic plan", zap.Error(err))
		return heuristic
	}
	refined = p.sanitize(refined)
	if len(refined) == 0 {
		p.logger.Debug("plan refinement returned nothing usable")
		return heuristic
	}
	return refined
}

func (p *Planner) sanitize(steps []PlanStep) []PlanStep {
	out := make([]PlanStep, 0, len(steps))
	for _, st := range steps {
		st.Title = strings.TrimSpace(st.Title)
		if st.Title == "" {
			continue
		}
		st.Collector = strings.TrimSpace(st.Collector)
		st.Rationale = strings.TrimSpace(st.Rationale)
		out = append(out, st)
		if len(out) == p.maxSteps {
			break
		}
	}
	return out
}

func annotateRationale(base string, volume int) string {
	if volume < sparseEvidence {
		if volume == 0 {
			return base + " (no evidence yet)"
		}
		return base + " (evidence is sparse)"
	}
	return fmt.Sprintf("%s (%d findings so far)", base, volume)
}

// PlanTitles flattens steps to their titles.
func PlanTitles(steps []PlanStep) []string {
	out := make([]string, 0, len(steps))
	for _, st := range steps {
		out = append(out, st.Title)
	}
	return out
}
