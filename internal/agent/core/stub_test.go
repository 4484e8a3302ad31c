package core

import (
	"context"
	"sync/atomic"
	"time"
)

// stubCollector returns a fixed list or runs fn when set.
type stubCollector struct {
	name  string
	facts []string
	fn    func(ctx context.Context, p ProblemInput) []Evidence
	calls atomic.Int32
}

func (s *stubCollector) Name() string          { return s.name }
func (s *stubCollector) Description() string   { return "stub " + s.name }
func (s *stubCollector) RequiresNetwork() bool { return false }

func (s *stubCollector) Run(ctx context.Context, p ProblemInput) []Evidence {
	s.calls.Add(1)
	if s.fn != nil {
		return s.fn(ctx, p)
	}
	out := make([]Evidence, 0, len(s.facts))
	for _, f := range s.facts {
		out = append(out, NewEvidence(s.name, f, 0.5))
	}
	return out
}

func stub(name string, facts ...string) *stubCollector {
	return &stubCollector{name: name, facts: facts}
}

func panicking(name string) *stubCollector {
	return &stubCollector{name: name, fn: func(context.Context, ProblemInput) []Evidence {
		panic("boom")
	}}
}

func sleeping(name string, d time.Duration) *stubCollector {
	return &stubCollector{name: name, fn: func(ctx context.Context, _ ProblemInput) []Evidence {
		time.Sleep(d)
		return []Evidence{NewEvidence(name, "late", 0.5)}
	}}
}

// planSet returns stubs for every collector the heuristic plan references.
func planSet(extra ...Collector) []Collector {
	var out []Collector
	for _, name := range PlanCollectors() {
		out = append(out, stub(name))
	}
	return append(out, extra...)
}

type planRefinerFunc func(ctx context.Context, s OrchestrationState, h []PlanStep) ([]PlanStep, error)

func (f planRefinerFunc) RefinePlan(ctx context.Context, s OrchestrationState, h []PlanStep) ([]PlanStep, error) {
	return f(ctx, s, h)
}

type validationRefinerFunc func(ctx context.Context, s OrchestrationState) (Verdict, error)

func (f validationRefinerFunc) RefineValidation(ctx context.Context, s OrchestrationState) (Verdict, error) {
	return f(ctx, s)
}
