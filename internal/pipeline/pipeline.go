// Package pipeline runs enrichment jobs: Runner performs a single job, and
// Pipeline drives Runner from a stream of job messages.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/flood-report-etl/internal/domain"
	"github.com/couchcryptid/flood-report-etl/internal/observability"
)

// BatchExtractor reads up to batchSize job messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer turns a job message into a summary event.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error)
}

// BatchLoader writes summary events to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.OutputEvent) error
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Pipeline consumes enrichment jobs, runs them one at a time, and publishes
// their summaries.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil once a summary has been published.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no enrichment job has completed yet")
	}
	return nil
}

// Run executes the job loop until the context is cancelled. Cancellation is
// observed between jobs; a job that has started runs to completion.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-run-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.JobsConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = initialBackoff

	loaded, ok := p.runAndLoad(ctx, rawBatch, backoff)
	if !ok {
		return false
	}

	if loaded > 0 {
		p.metrics.BatchDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
	}
	return true
}

// runAndLoad runs every job in the batch in order, publishes the summaries,
// and commits offsets. Messages that are not valid jobs are committed and
// dropped. Returns the number of published summaries and false if the
// pipeline should stop.
func (p *Pipeline) runAndLoad(ctx context.Context, rawBatch []domain.RawEvent, backoff *time.Duration) (int, bool) {
	outBatch := make([]domain.OutputEvent, 0, len(rawBatch))
	answered := make([]domain.RawEvent, 0, len(rawBatch))

	for _, raw := range rawBatch {
		// Jobs not yet started are left uncommitted for redelivery.
		if ctx.Err() != nil {
			break
		}

		out, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("invalid job, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.InvalidJobs.Inc()
			p.commitOffset(ctx, raw)
			continue
		}
		outBatch = append(outBatch, out)
		answered = append(answered, raw)
	}

	if len(outBatch) == 0 {
		return 0, true
	}

	// Summaries of finished jobs are published even when shutdown began
	// during the batch.
	loadCtx := context.WithoutCancel(ctx)
	if err := p.loader.LoadBatch(loadCtx, outBatch); err != nil {
		p.logger.Error("load batch failed", "error", err, "batch_size", len(outBatch))
		return 0, p.backoffOrStop(ctx, backoff)
	}

	p.metrics.SummariesEmitted.Add(float64(len(outBatch)))

	for _, raw := range answered {
		p.commitOffset(loadCtx, raw)
	}

	return len(outBatch), true
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit {
		return limit
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
