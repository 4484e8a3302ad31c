package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func collectorsOf(steps []PlanStep) []string {
	out := make([]string, 0, len(steps))
	for _, st := range steps {
		out = append(out, st.Collector)
	}
	return out
}

func TestHeuristicPlanSkipsConditionalSteps(t *testing.T) {
	p := NewPlanner(nil, 0, nil)
	got := collectorsOf(p.Heuristic(OrchestrationState{Input: ProblemInput{Text: "who is @ghost?"}}))
	want := []string{CollectorTextAnalysis, CollectorURLInvestigation, CollectorSNS, CollectorWebSearch, CollectorGeolocation}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestHeuristicPlanIncludesURLAndImageSteps(t *testing.T) {
	p := NewPlanner(nil, 0, nil)
	state := OrchestrationState{Input: ProblemInput{Text: "see https://example.com", ImagePaths: []string{"a.jpg"}}}
	got := collectorsOf(p.Heuristic(state))
	if diff := cmp.Diff(PlanCollectors(), got); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestHeuristicRationaleTracksEvidenceVolume(t *testing.T) {
	p := NewPlanner(nil, 0, nil)
	cases := []struct {
		evidence int
		suffix   string
	}{
		{0, "(no evidence yet)"},
		{2, "(evidence is sparse)"},
		{5, "(5 findings so far)"},
	}
	for _, tc := range cases {
		state := OrchestrationState{Evidence: make([]Evidence, tc.evidence)}
		steps := p.Heuristic(state)
		if !strings.HasSuffix(steps[0].Rationale, tc.suffix) {
			t.Fatalf("evidence=%d: rationale %q lacks %q", tc.evidence, steps[0].Rationale, tc.suffix)
		}
	}
}

func TestPlanFallsBackWhenRefinerFails(t *testing.T) {
	state := OrchestrationState{Input: ProblemInput{Text: "x"}}
	heuristic := NewPlanner(nil, 0, nil).Heuristic(state)

	failing := planRefinerFunc(func(context.Context, OrchestrationState, []PlanStep) ([]PlanStep, error) {
		return nil, errors.New("llm down")
	})
	if diff := cmp.Diff(heuristic, NewPlanner(failing, 0, nil).Plan(context.Background(), state)); diff != "" {
		t.Fatalf("expected heuristic plan on error (-want +got):\n%s", diff)
	}

	blank := planRefinerFunc(func(context.Context, OrchestrationState, []PlanStep) ([]PlanStep, error) {
		return []PlanStep{{Title: "  "}}, nil
	})
	if diff := cmp.Diff(heuristic, NewPlanner(blank, 0, nil).Plan(context.Background(), state)); diff != "" {
		t.Fatalf("expected heuristic plan on unusable refinement (-want +got):\n%s", diff)
	}
}

func TestPlanUsesRefinedStepsUpToLimit(t *testing.T) {
	refiner := planRefinerFunc(func(_ context.Context, _ OrchestrationState, h []PlanStep) ([]PlanStep, error) {
		if len(h) == 0 {
			t.Errorf("refiner should receive the heuristic plan")
		}
		return []PlanStep{
			{Title: " Pivot on handle ", Collector: "sns-osint"},
			{Title: ""},
			{Title: "Reverse image"},
			{Title: "Too many"},
		}, nil
	})
	got := NewPlanner(refiner, 2, nil).Plan(context.Background(), OrchestrationState{})
	want := []PlanStep{{Title: "Pivot on handle", Collector: "sns-osint"}, {Title: "Reverse image"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("refined plan mismatch (-want +got):\n%s", diff)
	}
}
