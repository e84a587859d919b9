package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricCommitsCapturedTotal = "graphiti.capture.commits.total"
	metricBatchesFlushedTotal  = "graphiti.capture.batches.total"
	metricBatchDuration        = "graphiti.capture.batch.duration.seconds"
	metricLLMCallsTotal        = "graphiti.llm.calls.total"
	metricAllowlistHitsTotal   = "graphiti.security.allowlist.hits.total"
	metricAllowlistMissesTotal = "graphiti.security.allowlist.misses.total"

	attrOutcome = "outcome"
)

// PipelineMetrics holds OTel instruments for the capture pipeline, the LLM
// transport, and the security filter's allowlist.
type PipelineMetrics struct {
	commitsCaptured metric.Int64Counter
	batchesFlushed  metric.Int64Counter
	batchDuration   metric.Float64Histogram
	llmCalls        metric.Int64Counter
	allowlistHits   metric.Int64Counter
	allowlistMisses metric.Int64Counter
}

// PipelineRunStats summarizes a single capture-pipeline invocation.
type PipelineRunStats struct {
	CommitsCaptured int64
	CommitsSkipped  int64
	BatchesFlushed  int
	BatchDurations  []time.Duration
	AllowlistHits   int64
	AllowlistMisses int64
}

// NewPipelineMetrics creates capture-pipeline metric instruments from the given meter.
func NewPipelineMetrics(mt metric.Meter) (*PipelineMetrics, error) {
	commits, err := mt.Int64Counter(metricCommitsCapturedTotal,
		metric.WithDescription("Total commits captured, by outcome"),
		metric.WithUnit("{commit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCommitsCapturedTotal, err)
	}

	batches, err := mt.Int64Counter(metricBatchesFlushedTotal,
		metric.WithDescription("Total batches flushed to the LLM summarizer"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricBatchesFlushedTotal, err)
	}

	batchDur, err := mt.Float64Histogram(metricBatchDuration,
		metric.WithDescription("Per-batch summarize-and-store duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricBatchDuration, err)
	}

	llmCalls, err := mt.Int64Counter(metricLLMCallsTotal,
		metric.WithDescription("Total LLM transport calls, by endpoint and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricLLMCallsTotal, err)
	}

	hits, err := mt.Int64Counter(metricAllowlistHitsTotal,
		metric.WithDescription("Secret findings suppressed by the allowlist"),
		metric.WithUnit("{finding}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricAllowlistHitsTotal, err)
	}

	misses, err := mt.Int64Counter(metricAllowlistMissesTotal,
		metric.WithDescription("Secret findings redacted (not on the allowlist)"),
		metric.WithUnit("{finding}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricAllowlistMissesTotal, err)
	}

	return &PipelineMetrics{
		commitsCaptured: commits,
		batchesFlushed:  batches,
		batchDuration:   batchDur,
		llmCalls:        llmCalls,
		allowlistHits:   hits,
		allowlistMisses: misses,
	}, nil
}

// RecordRun records pipeline statistics for a completed capture run.
// Safe to call on a nil receiver (no-op).
func (pm *PipelineMetrics) RecordRun(ctx context.Context, stats PipelineRunStats) {
	if pm == nil {
		return
	}

	pm.commitsCaptured.Add(ctx, stats.CommitsCaptured, metric.WithAttributes(attribute.String(attrOutcome, "captured")))
	pm.commitsCaptured.Add(ctx, stats.CommitsSkipped, metric.WithAttributes(attribute.String(attrOutcome, "skipped")))
	pm.batchesFlushed.Add(ctx, int64(stats.BatchesFlushed))

	for _, d := range stats.BatchDurations {
		pm.batchDuration.Record(ctx, d.Seconds())
	}

	pm.allowlistHits.Add(ctx, stats.AllowlistHits)
	pm.allowlistMisses.Add(ctx, stats.AllowlistMisses)
}

// RecordLLMCall records one LLM transport call outcome (e.g. endpoint=cloud,
// outcome=success|failover|queued).
func (pm *PipelineMetrics) RecordLLMCall(ctx context.Context, endpoint, outcome string) {
	if pm == nil {
		return
	}

	pm.llmCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String(attrOutcome, outcome),
	))
}
