package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var orchestratorTracer trace.Tracer = otel.Tracer("osinthunter/internal/agent/orchestrator")

// DefaultMaxIterations is used when Options.MaxIterations is zero.
const DefaultMaxIterations = 6

// Construction errors. NewOrchestrator wraps them with details.
var (
	ErrNoCollectors         = errors.New("no collectors enabled")
	ErrInvalidMaxIterations = errors.New("max iterations must be at least 1")
	ErrDuplicateCollector   = errors.New("duplicate collector name")
	ErrUnknownCollector     = errors.New("unknown collector")
)

// TransitionFunc observes state machine transitions.
type TransitionFunc func(from, to Phase, state OrchestrationState)

// Options configures an Orchestrator.
type Options struct {
	Collectors        []Collector
	MaxIterations     int
	CollectorTimeout  time.Duration
	MaxConcurrency    int
	PlanMaxSteps      int
	PlanRefiner       PlanRefiner
	ValidationRefiner ValidationRefiner
	Sink              Sink
	Metrics           Metrics
	Logger            *zap.Logger
	OnTransition      TransitionFunc
}

// Orchestrator drives the PLANNING -> COLLECTING -> VALIDATING loop until the
// validator asks to stop, then finalizes.
type Orchestrator struct {
	maxIterations int
	planner       *Planner
	executor      *Executor
	validator     *Validator
	finalizer     *Finalizer
	metrics       Metrics
	logger        *zap.Logger
	onTransition  TransitionFunc
}

// NewOrchestrator validates opts and builds an orchestrator. Every error it
// returns is a configuration problem detected before any iteration runs.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if len(opts.Collectors) == 0 {
		return nil, ErrNoCollectors
	}
	maxIter := opts.MaxIterations
	if maxIter == 0 {
		maxIter = DefaultMaxIterations
	}
	if maxIter < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMaxIterations, opts.MaxIterations)
	}

	enabled := make(map[string]struct{}, len(opts.Collectors))
	for i, c := range opts.Collectors {
		if c == nil {
			return nil, fmt.Errorf("collector at position %d is nil", i)
		}
		name := c.Name()
		if name == "" {
			return nil, fmt.Errorf("collector at position %d has an empty name", i)
		}
		if _, dup := enabled[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCollector, name)
		}
		enabled[name] = struct{}{}
	}
	for _, name := range PlanCollectors() {
		if _, ok := enabled[name]; !ok {
			return nil, fmt.Errorf("%w: plan step references %q which is not enabled", ErrUnknownCollector, name)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		maxIterations: maxIter,
		planner:       NewPlanner(opts.PlanRefiner, opts.PlanMaxSteps, logger.Named("planner")),
		executor: NewExecutor(opts.Collectors,
			WithCollectorTimeout(opts.CollectorTimeout),
			WithConcurrency(opts.MaxConcurrency),
			WithExecutorMetrics(opts.Metrics),
			WithExecutorLogger(logger.Named("executor")),
		),
		validator:    NewValidator(maxIter, opts.ValidationRefiner, logger.Named("validator")),
		finalizer:    NewFinalizer(opts.Sink, logger.Named("finalizer")),
		metrics:      opts.Metrics,
		logger:       logger,
		onTransition: opts.OnTransition,
	}, nil
}

// MaxIterations returns the effective iteration ceiling.
func (o *Orchestrator) MaxIterations() int { return o.maxIterations }

// Run investigates problem until a flag is found, the iteration ceiling is
// reached or a refiner asks to stop. When ctx is cancelled the run finalizes
// with the evidence gathered so far and the context error is returned next to
// the result.
func (o *Orchestrator) Run(ctx context.Context, problem ProblemInput) (AgentResult, error) {
	ctx, span := orchestratorTracer.Start(ctx, "agent.investigate",
		trace.WithAttributes(
			attribute.Int("input.urls", len(problem.URLs)),
			attribute.Int("input.images", len(problem.ImagePaths)),
			attribute.Int("max_iterations", o.maxIterations),
		))
	defer span.End()

	store := NewEvidenceStore()
	state := OrchestrationState{Input: problem.Clone(), Phase: PhasePlanning}
	var runErr error

	for !state.Phase.IsTerminal() {
		switch state.Phase {
		case PhasePlanning:
			if err := ctx.Err(); err != nil {
				runErr = err
				state.Stop, state.StopReason = true, StopCancelled
				state = o.transition(state, PhaseFinalizing)
				continue
			}
			state = o.plan(ctx, state)
			state = o.transition(state, PhaseCollecting)

		case PhaseCollecting:
			state = o.collect(ctx, state, store)
			state = o.transition(state, PhaseValidating)

		case PhaseValidating:
			state = o.validate(ctx, state)
			if state.Stop {
				state = o.transition(state, PhaseFinalizing)
			} else {
				state = o.transition(state, PhasePlanning)
			}

		case PhaseFinalizing:
			o.finalizer.Report(ctx, state)
			o.metrics.runDone(state.StopReason, state.Iteration)
			state = o.transition(state, PhaseDone)

		default:
			// unreachable with the phases above
			state = o.transition(state, PhaseFinalizing)
		}
	}

	result := o.finalizer.Finalize(state)
	span.SetAttributes(
		attribute.Int("iterations", result.Iterations),
		attribute.String("stop_reason", string(result.StopReason)),
		attribute.Int("evidence.count", len(result.Evidence)),
		attribute.Int("flags.count", len(result.FlagCandidates)),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	} else {
		span.SetStatus(codes.Ok, "completed")
	}
	o.logger.Info("investigation finished",
		zap.Int("iterations", result.Iterations),
		zap.String("stop_reason", string(result.StopReason)),
		zap.Int("evidence", len(result.Evidence)),
		zap.Strings("flags", result.FlagCandidates),
	)
	return result, runErr
}

func (o *Orchestrator) plan(ctx context.Context, state OrchestrationState) OrchestrationState {
	next := state.Clone()
	next.Iteration++
	planCtx, span := orchestratorTracer.Start(ctx, "agent.plan",
		trace.WithAttributes(attribute.Int("iteration", next.Iteration)))
	defer span.End()

	next.Plan = o.planner.Plan(planCtx, next)
	span.SetAttributes(attribute.Int("plan.steps", len(next.Plan)))
	o.logger.Debug("plan ready", zap.Int("iteration", next.Iteration), zap.Strings("steps", PlanTitles(next.Plan)))
	return next
}

func (o *Orchestrator) collect(ctx context.Context, state OrchestrationState, store *EvidenceStore) OrchestrationState {
	next := state.Clone()
	collectCtx, span := orchestratorTracer.Start(ctx, "agent.collect",
		trace.WithAttributes(attribute.Int("iteration", next.Iteration)))
	defer span.End()

	added := o.executor.Collect(collectCtx, next.Input, store)
	next.Evidence = store.All()
	span.SetAttributes(
		attribute.Int("evidence.added", added),
		attribute.Int("evidence.total", len(next.Evidence)),
	)
	o.logger.Debug("collection done", zap.Int("iteration", next.Iteration), zap.Int("added", added), zap.Int("total", len(next.Evidence)))
	return next
}

func (o *Orchestrator) validate(ctx context.Context, state OrchestrationState) OrchestrationState {
	validateCtx, span := orchestratorTracer.Start(ctx, "agent.validate",
		trace.WithAttributes(attribute.Int("iteration", state.Iteration)))
	defer span.End()

	next := o.validator.Validate(validateCtx, state)
	span.SetAttributes(
		attribute.Bool("stop", next.Stop),
		attribute.String("stop_reason", string(next.StopReason)),
		attribute.Int("flags.count", len(next.Flags)),
	)
	return next
}

func (o *Orchestrator) transition(state OrchestrationState, to Phase) OrchestrationState {
	from := state.Phase
	state.Phase = to
	o.logger.Debug("phase transition", zap.String("from", string(from)), zap.String("to", string(to)), zap.Int("iteration", state.Iteration))
	if o.onTransition != nil {
		o.onTransition(from, to, state.Clone())
	}
	return state
}
