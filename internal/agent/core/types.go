package core

import (
	"context"
	"time"
)

// ProblemInput is the normalized investigation request. It is built once per
// run and never mutated afterwards; components that need to change it work on
// a Clone.
type ProblemInput struct {
	Text       string                 `json:"text"`
	URLs       []string               `json:"urls"`
	ImagePaths []string               `json:"image_paths"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the slices and a shallow copy of the metadata map.
func (p ProblemInput) Clone() ProblemInput {
	out := ProblemInput{
		Text:       p.Text,
		URLs:       append([]string(nil), p.URLs...),
		ImagePaths: append([]string(nil), p.ImagePaths...),
	}
	if p.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(p.Metadata))
		for k, v := range p.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Evidence is a single attributed finding produced by a collector.
type Evidence struct {
	Source     string                 `json:"source"`
	Fact       string                 `json:"fact"`
	Confidence float64                `json:"confidence"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// EvidenceKey identifies an Evidence item for deduplication. Confidence and
// metadata do not participate.
type EvidenceKey struct {
	Source string
	Fact   string
}

// Key returns the deduplication key of the evidence.
func (e Evidence) Key() EvidenceKey {
	return EvidenceKey{Source: e.Source, Fact: e.Fact}
}

// NewEvidence is a small constructor used by collectors.
func NewEvidence(source, fact string, confidence float64) Evidence {
	return Evidence{Source: source, Fact: fact, Confidence: confidence}
}

// WithMetadata returns a copy of e carrying the given metadata.
func (e Evidence) WithMetadata(md map[string]interface{}) Evidence {
	e.Metadata = md
	return e
}

// PlanStep is one investigative action proposed for an iteration.
type PlanStep struct {
	Title     string `json:"title"`
	Collector string `json:"collector"`
	Rationale string `json:"rationale"`
}

// Phase is a state of the orchestration state machine.
type Phase string

const (
	PhasePlanning   Phase = "PLANNING"
	PhaseCollecting Phase = "COLLECTING"
	PhaseValidating Phase = "VALIDATING"
	PhaseFinalizing Phase = "FINALIZING"
	PhaseDone       Phase = "DONE"
)

// IsTerminal reports whether p is the final state.
func (p Phase) IsTerminal() bool { return p == PhaseDone }

// StopReason records why the loop moved to FINALIZING.
type StopReason string

const (
	StopNone          StopReason = ""
	StopFlagFound     StopReason = "flag_found"
	StopMaxIterations StopReason = "max_iterations"
	StopRefiner       StopReason = "refiner"
	StopCancelled     StopReason = "cancelled"
)

// OrchestrationState is threaded through the loop. Every node receives a
// snapshot and returns a new one; slices are never shared between snapshots.
type OrchestrationState struct {
	Input       ProblemInput `json:"input"`
	Plan        []PlanStep   `json:"plan"`
	Evidence    []Evidence   `json:"evidence"`
	Flags       []string     `json:"flags"`
	Iteration   int          `json:"loop"`
	Stop        bool         `json:"stop"`
	StopReason  StopReason   `json:"stop_reason,omitempty"`
	Phase       Phase        `json:"phase"`
	RefinerNote string       `json:"refiner_note,omitempty"` // latest non-empty validation refiner note
}

// Clone deep-copies the state.
func (s OrchestrationState) Clone() OrchestrationState {
	out := s
	out.Input = s.Input.Clone()
	out.Plan = append([]PlanStep(nil), s.Plan...)
	out.Evidence = append([]Evidence(nil), s.Evidence...)
	out.Flags = append([]string(nil), s.Flags...)
	return out
}

// HasURLs reports whether the input carries URLs, either explicitly or inline in the text.
func (s OrchestrationState) HasURLs() bool {
	return len(s.Input.URLs) > 0 || urlPattern.MatchString(s.Input.Text)
}

// HasImages reports whether the input carries image references.
func (s OrchestrationState) HasImages() bool {
	return len(s.Input.ImagePaths) > 0
}

// AgentResult is the terminal output bundle of a run.
type AgentResult struct {
	Plan           []PlanStep `json:"plan"`
	Evidence       []Evidence `json:"evidence"`
	FlagCandidates []string   `json:"flag_candidates"`
	Notes          string     `json:"notes,omitempty"`
	Iterations     int        `json:"iterations"`
	StopReason     StopReason `json:"stop_reason"`
}

// Collector maps a problem description to zero or more findings.
//
// Run must not panic. Internal failures are reported as a single
// low-confidence Evidence whose Source is the collector's own name, and a
// collector that needs network or credentials it does not have returns a
// manual pivot hint instead of nothing.
type Collector interface {
	Name() string
	Description() string
	RequiresNetwork() bool
	Run(ctx context.Context, problem ProblemInput) []Evidence
}

// PlanRefiner may replace the heuristic plan with an externally computed one.
type PlanRefiner interface {
	RefinePlan(ctx context.Context, state OrchestrationState, heuristic []PlanStep) ([]PlanStep, error)
}

// Verdict is a ValidationRefiner's opinion about the current state.
type Verdict struct {
	Flags []string
	Stop  bool
	Note  string
}

// ValidationRefiner may propose extra flags and an early stop.
type ValidationRefiner interface {
	RefineValidation(ctx context.Context, state OrchestrationState) (Verdict, error)
}

// RunRecord is the line written to the run log when a run completes.
type RunRecord struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"ts"`
	Input     ProblemInput `json:"input"`
	Evidence  []Evidence   `json:"evidence"`
	Flags     []string     `json:"flags"`
	Plan      []string     `json:"plan"`
	Loop      int          `json:"loop"`
	Reason    StopReason   `json:"stop_reason,omitempty"`
}

// Sink receives the terminal state of each run. Failures never affect the result.
type Sink interface {
	Report(ctx context.Context, record RunRecord) error
}

// NopSink discards records.
type NopSink struct{}

// Report implements Sink.
func (NopSink) Report(context.Context, RunRecord) error { return nil }

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, record RunRecord) error

// Report implements Sink.
func (f SinkFunc) Report(ctx context.Context, record RunRecord) error { return f(ctx, record) }
