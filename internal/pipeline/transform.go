package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/flood-report-etl/internal/domain"
)

// JobRunner executes one enrichment job.
type JobRunner interface {
	Run(ctx context.Context, job domain.Job) (domain.Summary, error)
}

// runnerAdapter drops the enriched collection, which the job loop does not
// need once it has been saved.
type runnerAdapter struct{ r *Runner }

func (a runnerAdapter) Run(ctx context.Context, job domain.Job) (domain.Summary, error) {
	sum, _, err := a.r.Run(ctx, job)
	return sum, err
}

// AsJobRunner exposes a Runner to the job loop.
func AsJobRunner(r *Runner) JobRunner {
	return runnerAdapter{r: r}
}

// JobTransformer implements Transformer by decoding a job message, running
// it, and serializing the run summary.
type JobTransformer struct {
	runner JobRunner
	logger *slog.Logger
}

// NewTransformer creates a JobTransformer around runner.
func NewTransformer(runner JobRunner, logger *slog.Logger) *JobTransformer {
	return &JobTransformer{
		runner: runner,
		logger: logger,
	}
}

// Transform returns an error only when the message is not a valid job. A job
// whose run fails still yields a summary with status "failed", so every valid
// job is answered on the sink topic.
func (t *JobTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	job, err := domain.ParseJob(raw)
	if err != nil {
		return domain.OutputEvent{}, err
	}

	t.logger.Debug("job received", "job_id", job.ID, "report", job.ReportPath, "source", job.SourcePath)

	sum, err := t.runner.Run(ctx, job)
	if err != nil && sum.Status == "" {
		sum = domain.Summary{
			RunID:      domain.NewRunID(),
			JobID:      job.ID,
			ReportPath: job.ReportPath,
			SourcePath: job.SourcePath,
			Status:     domain.StatusFailed,
			Error:      err.Error(),
			StartedAt:  domain.Now(),
			FinishedAt: domain.Now(),
		}
	}
	return domain.SerializeSummary(sum)
}
