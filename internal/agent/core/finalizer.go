package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Finalizer turns the terminal state into an AgentResult and reports the run.
type Finalizer struct {
	sink   Sink
	logger *zap.Logger
	now    func() time.Time
}

// NewFinalizer creates a finalizer. A nil sink discards records.
func NewFinalizer(sink Sink, logger *zap.Logger) *Finalizer {
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finalizer{sink: sink, logger: logger, now: time.Now}
}

// Finalize builds the result bundle from state.
func (f *Finalizer) Finalize(state OrchestrationState) AgentResult {
	return AgentResult{
		Plan:           append([]PlanStep(nil), state.Plan...),
		Evidence:       append([]Evidence(nil), state.Evidence...),
		FlagCandidates: SortedUnique(state.Flags),
		Notes:          notesFor(state),
		Iterations:     state.Iteration,
		StopReason:     state.StopReason,
	}
}

// Report hands the terminal state to the sink. Errors and panics from the
// sink are logged and swallowed.
func (f *Finalizer) Report(ctx context.Context, state OrchestrationState) {
	record := RunRecord{
		ID:        uuid.NewString(),
		Timestamp: f.now().UTC(),
		Input:     state.Input.Clone(),
		Evidence:  append([]Evidence(nil), state.Evidence...),
		Flags:     SortedUnique(state.Flags),
		Plan:      PlanTitles(state.Plan),
		Loop:      state.Iteration,
		Reason:    state.StopReason,
	}
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("run log sink panicked", zap.String("run_id", record.ID), zap.Any("panic", r))
		}
	}()
	// Reporting must still happen when the run itself was cancelled.
	if err := f.sink.Report(context.WithoutCancel(ctx), record); err != nil {
		f.logger.Warn("run log sink failed", zap.String("run_id", record.ID), zap.Error(err))
	}
}

func notesFor(state OrchestrationState) string {
	var reason string
	switch state.StopReason {
	case StopFlagFound:
		reason = fmt.Sprintf("%d flag candidate(s) found", len(SortedUnique(state.Flags)))
	case StopMaxIterations:
		reason = "iteration ceiling reached"
	case StopRefiner:
		reason = "refinement hook recommended stopping"
	case StopCancelled:
		reason = "run cancelled"
	default:
		reason = "loop finished"
	}
	notes := fmt.Sprintf("Investigation stopped after %d iteration(s): %s; %d evidence item(s).",
		state.Iteration, reason, len(state.Evidence))
	if state.RefinerNote != "" {
		notes += " Refiner: " + state.RefinerNote
	}
	return notes
}
