package curator

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/playbookd/internal/playbook"
)

const instrumentationName = "github.com/fyrsmithlabs/playbookd/internal/curator"

// Curator wraps the pure Apply/PostProcess pipeline with tracing and
// metrics, following the telemetry shape of the teacher's checkpoint
// service.
type Curator struct {
	cfg    Config
	logger *zap.Logger

	tracer          trace.Tracer
	meter           metric.Meter
	appliedCounter  metric.Int64Counter
	skippedCounter  metric.Int64Counter
	prunedCounter   metric.Int64Counter
	invertedCounter metric.Int64Counter
}

// New constructs a Curator with the given config. A nil logger defaults
// to a no-op logger.
func New(cfg Config, logger *zap.Logger) *Curator {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Curator{
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	c.initMetrics()
	return c
}

func (c *Curator) initMetrics() {
	var err error

	c.appliedCounter, err = c.meter.Int64Counter(
		"playbookd.curator.deltas_applied_total",
		metric.WithDescription("Total number of deltas applied to the playbook"),
		metric.WithUnit("{delta}"),
	)
	if err != nil {
		c.logger.Warn("failed to create applied counter", zap.Error(err))
	}

	c.skippedCounter, err = c.meter.Int64Counter(
		"playbookd.curator.deltas_skipped_total",
		metric.WithDescription("Total number of deltas skipped as conflicts"),
		metric.WithUnit("{delta}"),
	)
	if err != nil {
		c.logger.Warn("failed to create skipped counter", zap.Error(err))
	}

	c.prunedCounter, err = c.meter.Int64Counter(
		"playbookd.curator.bullets_pruned_total",
		metric.WithDescription("Total number of bullets auto-deprecated by post-processing"),
		metric.WithUnit("{bullet}"),
	)
	if err != nil {
		c.logger.Warn("failed to create pruned counter", zap.Error(err))
	}

	c.invertedCounter, err = c.meter.Int64Counter(
		"playbookd.curator.bullets_inverted_total",
		metric.WithDescription("Total number of bullets inverted into anti-patterns"),
		metric.WithUnit("{bullet}"),
	)
	if err != nil {
		c.logger.Warn("failed to create inverted counter", zap.Error(err))
	}
}

// Run applies the given deltas against pb, recording the outcome on a
// span and on the curator's counters.
func (c *Curator) Run(ctx context.Context, pb *playbook.Playbook, deltas []Delta) *Result {
	ctx, span := c.tracer.Start(ctx, "curator.run")
	defer span.End()

	span.SetAttributes(attribute.Int("delta_count", len(deltas)))

	result := Apply(pb, deltas, c.cfg)

	if c.appliedCounter != nil {
		c.appliedCounter.Add(ctx, int64(result.Applied))
	}
	if c.skippedCounter != nil {
		c.skippedCounter.Add(ctx, int64(result.Skipped))
	}
	if c.prunedCounter != nil {
		c.prunedCounter.Add(ctx, int64(result.Pruned))
	}
	if c.invertedCounter != nil {
		c.invertedCounter.Add(ctx, int64(len(result.Inversions)))
	}

	span.SetAttributes(
		attribute.Int("applied", result.Applied),
		attribute.Int("skipped", result.Skipped),
		attribute.Int("pruned", result.Pruned),
		attribute.Int("promotions", len(result.Promotions)),
		attribute.Int("inversions", len(result.Inversions)),
	)

	if result.Skipped > 0 {
		c.logger.Debug("curator skipped deltas", zap.Int("skipped", result.Skipped), zap.Int("applied", result.Applied))
	}

	return result
}
