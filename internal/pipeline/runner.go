package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/flood-report-etl/internal/classify"
	"github.com/couchcryptid/flood-report-etl/internal/domain"
	"github.com/couchcryptid/flood-report-etl/internal/geojson"
	"github.com/couchcryptid/flood-report-etl/internal/observability"
	"github.com/couchcryptid/flood-report-etl/internal/report"
)

// HistoryRecorder persists run summaries.
type HistoryRecorder interface {
	Record(ctx context.Context, s domain.Summary) error
}

// Options configures a Runner.
type Options struct {
	// DataDir is the root relative job paths resolve against. Relative paths
	// may not escape it.
	DataDir     string
	DepthColumn domain.DepthColumn
	// Classes is the number of severity classes; zero selects the default.
	Classes int
	JoinKey string
	// Sections overrides the report section markers when both are set.
	DepthSection, FloodSection report.Section
}

// Runner performs one enrichment of a dataset from a report: parse, join,
// derive, optionally classify, then save once.
type Runner struct {
	opts     Options
	parser   *report.Parser
	enricher *geojson.Enricher
	history  HistoryRecorder
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewRunner creates a Runner. history may be nil.
func NewRunner(opts Options, history HistoryRecorder, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	if opts.DepthColumn == "" {
		opts.DepthColumn = domain.DepthColumnMax
	}
	if opts.Classes == 0 {
		opts.Classes = classify.DefaultClasses
	}

	var parserOpts []report.Option
	if opts.DepthSection.Title != "" && opts.FloodSection.Title != "" {
		parserOpts = append(parserOpts, report.WithSections(opts.DepthSection, opts.FloodSection))
	}

	return &Runner{
		opts:     opts,
		parser:   report.NewParser(opts.DepthColumn, parserOpts...),
		enricher: geojson.NewEnricher(opts.JoinKey),
		history:  history,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run executes job and returns its summary. On success the enriched
// collection is also returned; on failure nothing has been written and the
// summary carries the error. The summary is recorded in the history either way.
func (r *Runner) Run(ctx context.Context, job domain.Job) (domain.Summary, *geojson.FeatureCollection, error) {
	sum := domain.Summary{
		RunID:       domain.NewRunID(),
		JobID:       job.ID,
		DepthColumn: r.opts.DepthColumn,
		StartedAt:   domain.Now(),
	}

	fc, err := r.run(ctx, job, &sum)

	sum.FinishedAt = domain.Now()
	if err != nil {
		sum.Status = domain.StatusFailed
		sum.Error = err.Error()
		fc = nil
	} else {
		sum.Status = domain.StatusSucceeded
	}

	r.metrics.Runs.WithLabelValues(sum.Status).Inc()
	r.metrics.RunDuration.Observe(sum.Duration().Seconds())
	r.record(ctx, sum)

	logger := r.logger.With("run_id", sum.RunID, "job_id", sum.JobID)
	if err != nil {
		logger.Warn("enrichment run failed", "error", err, "report", sum.ReportPath, "source", sum.SourcePath)
	} else {
		logger.Info("enrichment run complete",
			"output", sum.OutputPath,
			"depth_matched", sum.DepthMatched,
			"flood_matched", sum.FloodMatched,
			"class_matched", sum.ClassMatched,
			"duration", sum.Duration(),
		)
	}
	return sum, fc, err
}

func (r *Runner) run(ctx context.Context, job domain.Job, sum *domain.Summary) (*geojson.FeatureCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var err error
	if sum.ReportPath, err = r.resolve(job.ReportPath); err != nil {
		return nil, err
	}
	if sum.SourcePath, err = r.resolve(job.SourcePath); err != nil {
		return nil, err
	}
	sum.OutputPath = sum.SourcePath
	if job.OutputPath != "" {
		if sum.OutputPath, err = r.resolve(job.OutputPath); err != nil {
			return nil, err
		}
	}

	if err := requireFile("report", sum.ReportPath); err != nil {
		return nil, err
	}
	if err := requireFile("source dataset", sum.SourcePath); err != nil {
		return nil, err
	}

	start := time.Now()
	parsed, err := r.parser.ParseFile(sum.ReportPath)
	if err != nil {
		return nil, err
	}
	r.metrics.StageDuration("parse").Observe(time.Since(start).Seconds())

	sum.DepthRecords = len(parsed.Depth)
	sum.FloodRecords = len(parsed.Flood)
	sum.SkippedLines = parsed.SkippedLines
	r.metrics.RecordsExtracted.WithLabelValues("depth").Add(float64(sum.DepthRecords))
	r.metrics.RecordsExtracted.WithLabelValues("flood").Add(float64(sum.FloodRecords))
	r.metrics.SkippedLines.Add(float64(sum.SkippedLines))
	if parsed.Empty() {
		return nil, fmt.Errorf("report %s: %w", sum.ReportPath, domain.ErrNoData)
	}

	start = time.Now()
	fc, err := geojson.Load(sum.SourcePath)
	if err != nil {
		return nil, err
	}
	r.metrics.StageDuration("load").Observe(time.Since(start).Seconds())
	sum.Features = len(fc.Features)

	start = time.Now()
	flood := domain.FloodValues(parsed.Flood)
	depthProp := r.opts.DepthColumn.Property()
	sum.DepthMatched = r.enricher.Apply(fc, depthProp, domain.DepthValues(parsed.Depth))
	sum.FloodMatched = r.enricher.Apply(fc, domain.PropFloodVolume, flood)
	r.metrics.FeaturesMatched.WithLabelValues(depthProp).Add(float64(sum.DepthMatched))
	r.metrics.FeaturesMatched.WithLabelValues(domain.PropFloodVolume).Add(float64(sum.FloodMatched))
	if sum.DepthRecords > 0 && sum.DepthMatched == 0 {
		sum.Warnings = append(sum.Warnings, fmt.Sprintf("no feature matched a depth record on %s", r.enricher.JoinKey()))
	}

	sum.OutDepthComputed, sum.OutDepthFailed = geojson.DeriveOutDepth(fc)
	r.metrics.OutDepthFailures.Add(float64(sum.OutDepthFailed))
	r.metrics.StageDuration("enrich").Observe(time.Since(start).Seconds())

	if job.Classify {
		if err := r.classify(fc, flood, sum); err != nil {
			return nil, err
		}
	}

	start = time.Now()
	if err := geojson.Save(sum.OutputPath, fc); err != nil {
		return nil, err
	}
	r.metrics.StageDuration("save").Observe(time.Since(start).Seconds())

	return fc, nil
}

// classify computes severity classes over the flood volumes and writes them
// to flooded features. Too little data is recorded as a warning.
func (r *Runner) classify(fc *geojson.FeatureCollection, flood *domain.NodeValues, sum *domain.Summary) error {
	start := time.Now()
	res, err := classify.Classify(flood, r.opts.Classes)
	if err != nil {
		return err
	}
	r.metrics.StageDuration("classify").Observe(time.Since(start).Seconds())

	if res.Skipped {
		sum.ClassificationSkipped = true
		sum.Warnings = append(sum.Warnings, fmt.Sprintf("%s: %d flooded nodes", domain.ErrInsufficientData, flood.Len()))
		r.metrics.ClassificationSkipped.Inc()
		return nil
	}

	sum.Classified = true
	sum.ClassMatched = r.enricher.ApplyClasses(fc, res.Classes)
	sum.Breaks = res.Breaks
	sum.Ranges = res.Ranges()
	sum.GVF = res.GVF
	r.metrics.FeaturesMatched.WithLabelValues(domain.PropClass).Add(float64(sum.ClassMatched))
	r.metrics.ClassificationGVF.Observe(res.GVF)
	return nil
}

// resolve maps a job path onto the data directory. Absolute paths are used
// as given.
func (r *Runner) resolve(p string) (string, error) {
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	if r.opts.DataDir != "" && !filepath.IsLocal(p) {
		return "", fmt.Errorf("path %q escapes the data directory", p)
	}
	return filepath.Join(r.opts.DataDir, p), nil
}

func requireFile(what, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s %s: %w", what, path, domain.ErrMissingInput)
		}
		return fmt.Errorf("stat %s: %w", what, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s %s is a directory", what, path)
	}
	return nil
}

func (r *Runner) record(ctx context.Context, sum domain.Summary) {
	if r.history == nil {
		return
	}
	// A run that started finishes its bookkeeping even during shutdown.
	if err := r.history.Record(context.WithoutCancel(ctx), sum); err != nil {
		r.metrics.HistoryErrors.Inc()
		r.logger.Warn("record run history failed", "error", err, "run_id", sum.RunID)
	}
}
