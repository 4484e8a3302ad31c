package core

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractFlagsKeepsCasing(t *testing.T) {
	got := ExtractFlags("a FLAG{Upper} b flag{} c Flag{x}y flag{nested{z}")
	want := []string{"FLAG{Upper}", "Flag{x}", "flag{nested{z}"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("flags mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateStopsOnFlag(t *testing.T) {
	v := NewValidator(5, nil, nil)
	state := OrchestrationState{Iteration: 1, Evidence: []Evidence{
		NewEvidence("a", "token flag{b}", 0.9),
		NewEvidence("b", "token flag{a} and flag{b}", 0.9),
	}}
	next := v.Validate(context.Background(), state)
	if !next.Stop || next.StopReason != StopFlagFound {
		t.Fatalf("expected flag stop, got %+v", next)
	}
	if diff := cmp.Diff([]string{"flag{a}", "flag{b}"}, next.Flags); diff != "" {
		t.Fatalf("flags mismatch (-want +got):\n%s", diff)
	}
	if len(state.Flags) != 0 {
		t.Fatalf("input snapshot was mutated")
	}

	again := v.Validate(context.Background(), next)
	if diff := cmp.Diff(next.Flags, again.Flags); diff != "" {
		t.Fatalf("validation is not idempotent (-want +got):\n%s", diff)
	}
}

func TestValidateIterationCeiling(t *testing.T) {
	v := NewValidator(2, nil, nil)
	if next := v.Validate(context.Background(), OrchestrationState{Iteration: 1}); next.Stop {
		t.Fatalf("did not expect stop before the ceiling")
	}
	next := v.Validate(context.Background(), OrchestrationState{Iteration: 2})
	if !next.Stop || next.StopReason != StopMaxIterations {
		t.Fatalf("expected ceiling stop, got %+v", next)
	}
}

func TestValidateStopPriority(t *testing.T) {
	stopper := validationRefinerFunc(func(context.Context, OrchestrationState) (Verdict, error) {
		return Verdict{Stop: true}, nil
	})
	v := NewValidator(1, stopper, nil)

	withFlag := OrchestrationState{Iteration: 1, Evidence: []Evidence{NewEvidence("a", "flag{x}", 1)}}
	if got := v.Validate(context.Background(), withFlag).StopReason; got != StopFlagFound {
		t.Fatalf("flag must win, got %s", got)
	}
	if got := v.Validate(context.Background(), OrchestrationState{Iteration: 1}).StopReason; got != StopMaxIterations {
		t.Fatalf("ceiling must beat refiner, got %s", got)
	}
	v = NewValidator(5, stopper, nil)
	if got := v.Validate(context.Background(), OrchestrationState{Iteration: 1}).StopReason; got != StopRefiner {
		t.Fatalf("expected refiner stop, got %s", got)
	}
}

func TestValidateRefinerFlagsAndErrors(t *testing.T) {
	adds := validationRefinerFunc(func(context.Context, OrchestrationState) (Verdict, error) {
		return Verdict{Flags: []string{" flag{from_llm} ", ""}}, nil
	})
	next := NewValidator(5, adds, nil).Validate(context.Background(), OrchestrationState{Iteration: 1})
	if diff := cmp.Diff([]string{"flag{from_llm}"}, next.Flags); diff != "" {
		t.Fatalf("flags mismatch (-want +got):\n%s", diff)
	}

	failing := validationRefinerFunc(func(context.Context, OrchestrationState) (Verdict, error) {
		return Verdict{Stop: true, Flags: []string{"flag{ignored}"}}, errors.New("timeout")
	})
	next = NewValidator(5, failing, nil).Validate(context.Background(), OrchestrationState{Iteration: 1})
	if next.Stop || len(next.Flags) != 0 {
		t.Fatalf("failed refinement must be ignored, got %+v", next)
	}
}

func TestValidateKeepsLatestRefinerNote(t *testing.T) {
	note := ""
	refiner := validationRefinerFunc(func(context.Context, OrchestrationState) (Verdict, error) {
		return Verdict{Note: note}, nil
	})
	v := NewValidator(5, refiner, nil)

	note = " check the exif data "
	next := v.Validate(context.Background(), OrchestrationState{Iteration: 1})
	if next.RefinerNote != "check the exif data" {
		t.Fatalf("unexpected note %q", next.RefinerNote)
	}
	note = "   "
	next.Iteration = 2
	if got := v.Validate(context.Background(), next).RefinerNote; got != "check the exif data" {
		t.Fatalf("blank note must not clear the previous one, got %q", got)
	}
}
