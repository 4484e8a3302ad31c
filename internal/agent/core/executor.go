package core

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Outcome classifies a single collector invocation.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomePanic   Outcome = "panic"
	OutcomeTimeout Outcome = "timeout"
)

// Confidence assigned to findings synthesized by the executor.
const syntheticConfidence = 0.1

// Defaults for the fan-out executor.
const (
	DefaultCollectorTimeout = 20 * time.Second
	DefaultMaxConcurrency   = 8
)

// Metrics aggregates optional telemetry callbacks.
type Metrics struct {
	CollectorDone func(collector string, outcome Outcome, d time.Duration)
	EvidenceAdded func(n int)
	RunDone       func(reason StopReason, iterations int)
}

func (m Metrics) collectorDone(name string, outcome Outcome, d time.Duration) {
	if m.CollectorDone != nil {
		m.CollectorDone(name, outcome, d)
	}
}

func (m Metrics) evidenceAdded(n int) {
	if m.EvidenceAdded != nil && n > 0 {
		m.EvidenceAdded(n)
	}
}

func (m Metrics) runDone(reason StopReason, iterations int) {
	if m.RunDone != nil {
		m.RunDone(reason, iterations)
	}
}

// Executor invokes every enabled collector once per iteration and merges the
// results into an EvidenceStore.
type Executor struct {
	collectors  []Collector
	timeout     time.Duration
	concurrency int
	metrics     Metrics
	logger      *zap.Logger
}

// ExecutorOption configures executor behaviour.
type ExecutorOption func(*Executor)

// WithCollectorTimeout bounds each collector invocation.
func WithCollectorTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithConcurrency bounds how many collectors run at once.
func WithConcurrency(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithExecutorMetrics sets executor metrics callbacks.
func WithExecutorMetrics(m Metrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithExecutorLogger sets the executor logger.
func WithExecutorLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates a fan-out executor over collectors.
func NewExecutor(collectors []Collector, opts ...ExecutorOption) *Executor {
	e := &Executor{
		collectors:  append([]Collector(nil), collectors...),
		timeout:     DefaultCollectorTimeout,
		concurrency: DefaultMaxConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Collect runs all collectors against problem, waits for every one of them
// (or its timeout) and then merges the results into store in collector order.
// It returns the number of newly stored items.
func (e *Executor) Collect(ctx context.Context, problem ProblemInput, store *EvidenceStore) int {
	slots := make([][]Evidence, len(e.collectors))

	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	for i, c := range e.collectors {
		i, c := i, c
		g.Go(func() error {
			slots[i] = e.invoke(ctx, c, problem)
			return nil
		})
	}
	_ = g.Wait() // failures are carried as evidence

	added := 0
	for _, found := range slots {
		added += store.Extend(found)
	}
	e.metrics.evidenceAdded(added)
	return added
}

type invocation struct {
	evidence []Evidence
	panicked interface{}
}

func (e *Executor) invoke(ctx context.Context, c Collector, problem ProblemInput) []Evidence {
	name := c.Name()
	callCtx, span := orchestratorTracer.Start(ctx, "collector.run",
		trace.WithAttributes(
			attribute.String("collector.name", name),
			attribute.Bool("collector.requires_network", c.RequiresNetwork()),
		))
	defer span.End()
	// In-flight calls are not torn down by run cancellation; only the per-call timeout applies.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(callCtx), e.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan invocation, 1)
	go func() {
		var res invocation
		defer func() {
			if r := recover(); r != nil {
				res.panicked = r
			}
			done <- res
		}()
		res.evidence = c.Run(callCtx, problem.Clone())
	}()

	select {
	case res := <-done:
		elapsed := time.Since(start)
		if res.panicked != nil {
			e.logger.Error("collector panicked", zap.String("collector", name), zap.Any("panic", res.panicked))
			span.SetStatus(codes.Error, "panic")
			e.metrics.collectorDone(name, OutcomePanic, elapsed)
			return []Evidence{{
				Source:     name,
				Fact:       fmt.Sprintf("collector %s failed", name),
				Confidence: syntheticConfidence,
				Metadata: map[string]interface{}{
					"synthetic": true,
					"outcome":   string(OutcomePanic),
					"panic":     fmt.Sprint(res.panicked),
				},
			}}
		}
		span.SetAttributes(attribute.Int("collector.evidence_count", len(res.evidence)))
		span.SetStatus(codes.Ok, "completed")
		e.metrics.collectorDone(name, OutcomeOK, elapsed)
		return fillSource(name, res.evidence)
	case <-callCtx.Done():
		elapsed := time.Since(start)
		e.logger.Warn("collector timed out", zap.String("collector", name), zap.Duration("elapsed", elapsed))
		span.SetStatus(codes.Error, "timeout")
		e.metrics.collectorDone(name, OutcomeTimeout, elapsed)
		return []Evidence{{
			Source:     name,
			Fact:       fmt.Sprintf("collector %s timed out", name),
			Confidence: syntheticConfidence,
			Metadata: map[string]interface{}{
				"synthetic":  true,
				"outcome":    string(OutcomeTimeout),
				"elapsed_ms": elapsed.Milliseconds(),
			},
		}}
	}
}

// fillSource attributes evidence without a source to the producing collector.
func fillSource(name string, found []Evidence) []Evidence {
	for i := range found {
		if found[i].Source == "" {
			found[i].Source = name
		}
	}
	return found
}
