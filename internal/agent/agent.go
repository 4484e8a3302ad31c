// Package agent assembles an orchestrator from the configuration object.
package agent

import (
	"fmt"

	"github.com/mohammad-safakhou/osinthunter/config"
	"github.com/mohammad-safakhou/osinthunter/internal/agent/collectors"
	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
	"github.com/mohammad-safakhou/osinthunter/internal/agent/refine"
	"go.uber.org/zap"
)

// Deps are the injectable side effects of a run.
type Deps struct {
	Sink         core.Sink
	Metrics      core.Metrics
	Logger       *zap.Logger
	OnTransition core.TransitionFunc
}

// New selects the configured collectors from reg, attaches the language-model
// refiners when llm.enabled is set and returns a ready orchestrator.
func New(cfg *config.Config, reg *collectors.Registry, deps Deps) (*core.Orchestrator, error) {
	if cfg == nil || reg == nil {
		return nil, fmt.Errorf("config and registry are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	enabled, err := reg.Select(cfg.Agent.Collectors)
	if err != nil {
		return nil, fmt.Errorf("select collectors: %w", err)
	}

	opts := core.Options{
		Collectors:       enabled,
		MaxIterations:    cfg.Agent.MaxIterations,
		CollectorTimeout: cfg.Agent.CollectorTimeout,
		MaxConcurrency:   cfg.Agent.MaxConcurrentCollectors,
		PlanMaxSteps:     cfg.Agent.PlanMaxSteps,
		Sink:             deps.Sink,
		Metrics:          deps.Metrics,
		Logger:           logger.Named("orchestrator"),
		OnTransition:     deps.OnTransition,
	}
	if cfg.LLM.Enabled {
		client, err := refine.NewClient(cfg.LLM, refine.WithLogger(logger.Named("llm")))
		if err != nil {
			return nil, fmt.Errorf("llm refiners: %w", err)
		}
		names := make([]string, 0, len(enabled))
		for _, c := range enabled {
			names = append(names, c.Name())
		}
		opts.PlanRefiner = refine.NewPlanner(client, names)
		opts.ValidationRefiner = refine.NewValidator(client)
		logger.Info("llm refinement enabled", zap.String("model", cfg.LLM.Model))
	}
	return core.NewOrchestrator(opts)
}
