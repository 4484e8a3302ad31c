package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mohammad-safakhou/osinthunter/config"
	"github.com/mohammad-safakhou/osinthunter/internal/agent"
	"github.com/mohammad-safakhou/osinthunter/internal/agent/collectors"
	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
	"github.com/mohammad-safakhou/osinthunter/internal/agent/telemetry"
	"github.com/mohammad-safakhou/osinthunter/internal/logging"
	"github.com/mohammad-safakhou/osinthunter/internal/runlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runFlags struct {
	file          string
	urls          []string
	images        []string
	asJSON        bool
	maxIterations int
	allowNetwork  bool
	cfgPath       string
}

func runCMD() *cobra.Command {
	var f runFlags
	var run = &cobra.Command{
		Use:   "run [prompt]",
		Short: "Investigate a problem and print plan, evidence and flag candidates",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := loadText(args, f.file)
			if err != nil {
				return err
			}
			cfg, err := config.Load(f.cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("max-iterations") {
				cfg.Agent.MaxIterations = f.maxIterations
			}
			if cmd.Flags().Changed("allow-network") {
				cfg.Agent.AllowNetwork = f.allowNetwork
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			problem := core.ProblemInput{Text: text, URLs: f.urls, ImagePaths: f.images}
			res, err := investigate(ctx, cfg, problem)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			if f.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	run.Flags().StringVar(&f.file, "file", "", "path to a text file with the problem statement")
	run.Flags().StringArrayVar(&f.urls, "url", nil, "URL to include in the problem context (repeatable)")
	run.Flags().StringArrayVar(&f.images, "image", nil, "image path to include for image OSINT (repeatable)")
	run.Flags().BoolVar(&f.asJSON, "json", false, "print the result as JSON")
	run.Flags().IntVar(&f.maxIterations, "max-iterations", core.DefaultMaxIterations, "iteration ceiling")
	run.Flags().BoolVar(&f.allowNetwork, "allow-network", false, "let collectors call external services")
	run.Flags().StringVarP(&f.cfgPath, "config", "c", "", "config file (default is ./osinthunter.yaml)")
	return run
}

func loadText(args []string, file string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read problem file: %w", err)
		}
		return string(b), nil
	}
	return "", errors.New("provide a prompt or --file")
}

func investigate(ctx context.Context, cfg *config.Config, problem core.ProblemInput) (core.AgentResult, error) {
	logger, err := logging.New(cfg.General.LogLevel, cfg.General.LogFormat)
	if err != nil {
		return core.AgentResult{}, err
	}
	defer func() { _ = logger.Sync() }()

	tracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry, version)
	if err != nil {
		return core.AgentResult{}, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(shutdownCtx)
	}()

	metrics, err := telemetry.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return core.AgentResult{}, err
	}
	sinks, err := runlog.Open(ctx, cfg.RunLog, logger.Named("runlog"))
	if err != nil {
		return core.AgentResult{}, err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.Warn("closing run log", zap.Error(err))
		}
	}()

	reg, err := collectors.NewRegistry(cfg, collectors.WithLogger(logger.Named("collectors")))
	if err != nil {
		return core.AgentResult{}, err
	}
	orch, err := agent.New(cfg, reg, agent.Deps{Sink: sinks.Multi, Metrics: metrics.Hooks(), Logger: logger})
	if err != nil {
		return core.AgentResult{}, err
	}
	return orch.Run(ctx, problem)
}

func printResult(w io.Writer, res core.AgentResult) {
	fmt.Fprintln(w, "# Plan")
	for _, st := range res.Plan {
		fmt.Fprintf(w, "- %s [%s] :: %s\n", st.Title, st.Collector, st.Rationale)
	}

	fmt.Fprintln(w, "\n# Evidence")
	for _, ev := range res.Evidence {
		fmt.Fprintf(w, "- (%.2f) %s: %s\n", ev.Confidence, ev.Source, ev.Fact)
	}

	if len(res.FlagCandidates) > 0 {
		fmt.Fprintln(w, "\n# Flag candidates")
		for _, flag := range res.FlagCandidates {
			fmt.Fprintf(w, "- %s\n", flag)
		}
	}

	if res.Notes != "" {
		fmt.Fprintln(w, "\n# Notes")
		fmt.Fprintln(w, res.Notes)
	}
}
