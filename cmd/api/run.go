package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"research/backend/internal/llm"
	"research/backend/internal/research"
	"research/backend/internal/search"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one research request and print the result as JSON",
	Long: `run executes the research pipeline once against the configured completion
and search providers. Progress goes to stderr; the result JSON goes to stdout.
The command exits non-zero when the run fails.`,
	Example: `  api run --objective "python testing best practices"
  api run --context "$(cat notes.txt)" --objective "migrate to Go 1.24" --num-queries 4`,
	RunE: runResearch,
}

func init() {
	runCmd.Flags().String("context", "", "private context to anonymize before searching")
	runCmd.Flags().String("objective", "", "what the research should accomplish")
	runCmd.Flags().Int("num-queries", 0, "number of search queries (env RESEARCH_NUM_QUERIES)")
	runCmd.Flags().Float64("threshold", 0, "minimum relevance score (env RESEARCH_RELEVANCE_THRESHOLD)")
	runCmd.Flags().String("provider", "", "completion provider (env LLM_PROVIDER)")
	runCmd.Flags().String("model", "", "completion model (env LLM_MODEL)")
	runCmd.Flags().StringSlice("include-domain", nil, "restrict search to these domains")
	runCmd.Flags().StringSlice("exclude-domain", nil, "drop results from these domains")
	runCmd.Flags().Bool("quiet", false, "do not print stage progress")
	_ = runCmd.MarkFlagRequired("objective")

	rootCmd.AddCommand(runCmd)
}

func runResearch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, map[string]string{
		"RESEARCH_NUM_QUERIES":         "num-queries",
		"RESEARCH_RELEVANCE_THRESHOLD": "threshold",
		"LLM_PROVIDER":                 "provider",
		"LLM_MODEL":                    "model",
	})
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	objective, _ := cmd.Flags().GetString("objective")
	rawContext, _ := cmd.Flags().GetString("context")
	include, _ := cmd.Flags().GetStringSlice("include-domain")
	exclude, _ := cmd.Flags().GetStringSlice("exclude-domain")
	quiet, _ := cmd.Flags().GetBool("quiet")

	if strings.TrimSpace(objective) == "" {
		return errors.New("--objective must not be empty")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ResearchTimeout())
	defer cancel()

	httpClient := &http.Client{Timeout: cfg.ResearchTimeout()}
	client, err := llm.New(ctx, cfg, llm.Params{}, httpClient, logger)
	if err != nil {
		return err
	}
	searcher, err := search.New(cfg, httpClient)
	if err != nil {
		return err
	}

	opts := research.ResolveOptions(research.OptionsFromConfig(cfg), research.Overrides{
		IncludeDomains: include,
		ExcludeDomains: exclude,
	})
	if !quiet {
		stderr := cmd.ErrOrStderr()
		opts.OnProgress = func(p research.Progress) {
			switch {
			case !p.Done:
				fmt.Fprintf(stderr, "%s...\n", p.Stage)
			case p.Err != "":
				fmt.Fprintf(stderr, "%s failed after %s: %s\n", p.Stage, p.Duration.Round(time.Millisecond), p.Err)
			default:
				fmt.Fprintf(stderr, "%s done in %s\n", p.Stage, p.Duration.Round(time.Millisecond))
			}
		}
	}

	report := research.NewPipeline(client, searcher, opts, logger).Run(ctx, research.Request{
		Context:   rawContext,
		Objective: objective,
	})

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report.Result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	for _, warning := range report.Warnings {
		logger.Warn("research warning", zap.String("warning", warning))
	}
	if report.Status == research.StatusFailed {
		return fmt.Errorf("research failed at %s: %w", report.FailedStage, report.Err)
	}
	return nil
}
