package core

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// FlagPattern matches the termination signal: literal "flag{", one or more
// non-"}" characters, then "}". Matching is case-insensitive and the original
// casing of the match is kept.
var FlagPattern = regexp.MustCompile(`(?i)flag\{[^}]+\}`)

// ExtractFlags returns every flag-shaped token in text, in order of appearance.
func ExtractFlags(text string) []string {
	return FlagPattern.FindAllString(text, -1)
}

// Validator decides whether the loop should stop.
type Validator struct {
	maxIterations int
	refiner       ValidationRefiner
	logger        *zap.Logger
}

// NewValidator creates a validator with the given iteration ceiling. refiner may be nil.
func NewValidator(maxIterations int, refiner ValidationRefiner, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{maxIterations: maxIterations, refiner: refiner, logger: logger}
}

// Validate scans the accumulated evidence for flags and returns the updated
// snapshot. Stop is set when a flag exists or the iteration ceiling is reached;
// a refiner can only add flags or make the loop stop earlier.
func (v *Validator) Validate(ctx context.Context, state OrchestrationState) OrchestrationState {
	next := state.Clone()

	facts := make([]string, 0, len(next.Evidence))
	for _, ev := range next.Evidence {
		facts = append(facts, ev.Fact)
	}
	flags := append(next.Flags, ExtractFlags(strings.Join(facts, " "))...)

	refinerStop := false
	if v.refiner != nil {
		verdict, err := v.refiner.RefineValidation(ctx, state.Clone())
		if err != nil {
			v.logger.Warn("validation refinement failed, using heuristic verdict", zap.Error(err))
		} else {
			for _, f := range verdict.Flags {
				if f = strings.TrimSpace(f); f != "" {
					flags = append(flags, f)
				}
			}
			refinerStop = verdict.Stop
			if note := strings.TrimSpace(verdict.Note); note != "" {
				next.RefinerNote = note
			}
		}
	}

	next.Flags = SortedUnique(flags)
	switch {
	case len(next.Flags) > 0:
		next.Stop, next.StopReason = true, StopFlagFound
	case next.Iteration >= v.maxIterations:
		next.Stop, next.StopReason = true, StopMaxIterations
	case refinerStop:
		next.Stop, next.StopReason = true, StopRefiner
	default:
		next.Stop, next.StopReason = false, StopNone
	}
	return next
}

// SortedUnique returns a sorted copy of items without duplicates.
func SortedUnique(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}
