// Package research runs the privacy-preserving research pipeline:
// anonymize, generate queries, search, analyze, assemble.
package research

import (
	"context"
	"errors"
	"time"

	"research/backend/internal/logging"
	"research/backend/internal/metrics"
	"research/backend/internal/search"

	"go.uber.org/zap"
)

var (
	ErrEmptyObjective      = errors.New("objective is required")
	ErrSearcherUnavailable = errors.New("search client is not configured")
)

type stageFunc func(ctx context.Context, state State) (State, error)

type Pipeline struct {
	completer Completer
	searcher  search.Searcher
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

// NewPipeline wires a pipeline. completer may be nil, in which case every
// model-backed step takes its fallback path.
func NewPipeline(completer Completer, searcher search.Searcher, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		completer: completer,
		searcher:  searcher,
		opts:      ResolveOptions(opts, Overrides{}),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (p *Pipeline) stages() []struct {
	name Stage
	run  stageFunc
} {
	return []struct {
		name Stage
		run  stageFunc
	}{
		{StageAnonymize, p.anonymize},
		{StageGenerateQueries, p.generateQueries},
		{StageSearch, p.search},
		{StageAnalyze, p.analyze},
		{StageAssemble, p.assemble},
	}
}

// Run executes every stage in order and stops at the first stage error.
// It never returns an error: a failed run yields an empty Result and a
// Report whose Status is StatusFailed.
func (p *Pipeline) Run(ctx context.Context, req Request) Report {
	started := time.Now()
	state := State{Request: req}

	for _, stage := range p.stages() {
		if err := ctx.Err(); err != nil {
			return p.finish(req, state, stage.name, err, started)
		}

		p.emit(Progress{Stage: stage.name})
		stageStart := time.Now()
		next, err := stage.run(ctx, state)
		elapsed := time.Since(stageStart)
		metrics.PipelineStageDuration.WithLabelValues(string(stage.name)).Observe(elapsed.Seconds())

		progress := Progress{Stage: stage.name, Done: true, Duration: elapsed}
		if err != nil {
			progress.Err = err.Error()
			p.emit(progress)
			return p.finish(req, state, stage.name, err, started)
		}
		p.emit(progress)
		state = next
	}

	return p.finish(req, state, "", nil, started)
}

func (p *Pipeline) finish(req Request, state State, failed Stage, err error, started time.Time) Report {
	report := Report{
		Warnings: state.Warnings,
		Duration: time.Since(started),
	}

	switch {
	case err != nil:
		report.Status = StatusFailed
		report.FailedStage = failed
		report.Err = err
		report.Result = emptyResult(req.Objective, p.now())
	case state.Result == nil:
		report.Status = StatusFailed
		report.FailedStage = StageAssemble
		report.Err = errors.New("pipeline produced no result")
		report.Result = emptyResult(req.Objective, p.now())
	default:
		report.Result = *state.Result
		report.Status = StatusOK
		if len(state.Warnings) > 0 {
			report.Status = StatusDegraded
		}
	}

	metrics.PipelineRunsTotal.WithLabelValues(string(report.Status)).Inc()
	metrics.PipelineDocuments.WithLabelValues("found").Observe(float64(report.Result.TotalDocumentsFound))
	metrics.PipelineDocuments.WithLabelValues("selected").Observe(float64(len(report.Result.SelectedDocuments)))

	fields := []zap.Field{
		zap.String("status", string(report.Status)),
		logging.Redacted("objective", req.Objective),
		logging.Redacted("context", req.Context),
		zap.Int("queries", len(report.Result.AnonymizedQueries)),
		zap.Int("documents_found", report.Result.TotalDocumentsFound),
		zap.Int("documents_selected", len(report.Result.SelectedDocuments)),
		zap.Strings("warnings", report.Warnings),
		zap.Duration("duration", report.Duration),
	}
	if report.Err != nil {
		fields = append(fields, zap.String("failed_stage", string(report.FailedStage)), zap.Error(report.Err))
		p.logger.Error("research run failed", fields...)
	} else {
		p.logger.Info("research run finished", fields...)
	}
	return report
}

func (p *Pipeline) emit(progress Progress) {
	if p.opts.OnProgress != nil {
		p.opts.OnProgress(progress)
	}
}
