// Package reflector implements the Reflection Orchestrator from
// spec.md §4.K: it drives one reflection cycle end to end — discover
// an unprocessed session, extract its diary via the external
// validator, turn diary fields into candidate deltas, run each through
// the evidence gate (deferring ambiguous candidates to the validator),
// and hand the surviving deltas to the curator under the playbook's
// lock.
package reflector

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/playbookd/internal/curator"
	"github.com/fyrsmithlabs/playbookd/internal/evidence"
	"github.com/fyrsmithlabs/playbookd/internal/history"
	"github.com/fyrsmithlabs/playbookd/internal/playbook"
	"github.com/fyrsmithlabs/playbookd/internal/processedlog"
	"github.com/fyrsmithlabs/playbookd/internal/sanitize"
	"github.com/fyrsmithlabs/playbookd/internal/validator"
)

const instrumentationName = "github.com/fyrsmithlabs/playbookd/internal/reflector"

// Session is one external session transcript awaiting reflection.
type Session struct {
	Path     string
	Text     string
	Agent    string
	Metadata map[string]string
}

// Config bundles the orchestrator's tunables, threading through to the
// evidence gate it drives.
type Config struct {
	Evidence evidence.Config
	Curator  curator.Config
}

// DefaultConfig returns the component defaults.
func DefaultConfig() Config {
	return Config{Evidence: evidence.DefaultConfig(), Curator: curator.DefaultConfig()}
}

// Reflector wires the sanitizer, validator, evidence gate, and curator
// into one reflection cycle per call to Run.
type Reflector struct {
	cfg       Config
	validator validator.Validator
	searcher  history.Searcher
	sanitizer *sanitize.Sanitizer
	curator   *curator.Curator
	logger    *zap.Logger
	tracer    trace.Tracer
}

// New constructs a Reflector. searcher and v may be nil — both the
// evidence gate and diary extraction degrade gracefully when their
// external collaborator is unavailable (spec.md §7).
func New(cfg Config, v validator.Validator, searcher history.Searcher, sanitizer *sanitize.Sanitizer, c *curator.Curator, logger *zap.Logger) *Reflector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reflector{
		cfg:       cfg,
		validator: v,
		searcher:  searcher,
		sanitizer: sanitizer,
		curator:   c,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
	}
}

// CycleResult summarizes one reflection cycle.
type CycleResult struct {
	DeltasProposed int
	DeltasApplied  int
	Curator        *curator.Result
	Diary          validator.Diary
}

// Run executes discover → diary → deltas → curate for one session
// against pb, then appends a processed-log entry at logPath so the
// session is never reflected on twice.
func (r *Reflector) Run(ctx context.Context, pb *playbook.Playbook, session Session, logPath string) (CycleResult, error) {
	ctx, span := r.tracer.Start(ctx, "reflector.run")
	defer span.End()
	span.SetAttributes(attribute.String("session.path", session.Path))

	sanitizedText := session.Text
	if r.sanitizer != nil {
		sanitizedText = r.sanitizer.Redact(session.Text)
	}

	diary, err := r.extractDiary(ctx, sanitizedText, session.Metadata)
	if err != nil {
		return CycleResult{}, fmt.Errorf("reflector: extract diary: %w", err)
	}

	deltas, gateConflicts := r.buildDeltas(ctx, diary, session)
	span.SetAttributes(attribute.Int("deltas.proposed", len(deltas)))

	curatorResult := &curator.Result{}
	if r.curator != nil && len(deltas) > 0 {
		curatorResult = r.curator.Run(ctx, pb, deltas)
	}
	if len(gateConflicts) > 0 {
		curatorResult.Skipped += len(gateConflicts)
		curatorResult.Conflicts = append(curatorResult.Conflicts, gateConflicts...)
	}

	entry := processedlog.Entry{
		SessionPath:    session.Path,
		ProcessedAt:    now(),
		DeltasProposed: len(deltas),
		DeltasApplied:  curatorResult.Applied,
	}
	if logPath != "" {
		if err := processedlog.Append(ctx, logPath, entry); err != nil {
			r.logger.Warn("reflector: failed to append processed log entry", zap.Error(err), zap.String("session", session.Path))
		}
	}

	return CycleResult{
		DeltasProposed: len(deltas),
		DeltasApplied:  curatorResult.Applied,
		Curator:        curatorResult,
		Diary:          diary,
	}, nil
}

// extractDiary calls the external validator's diary extraction, or
// returns an empty diary (not an error) when no validator is
// configured — a reflection cycle with nothing to extract from simply
// proposes no deltas.
func (r *Reflector) extractDiary(ctx context.Context, sanitizedText string, metadata map[string]string) (validator.Diary, error) {
	if r.validator == nil {
		return validator.Diary{}, nil
	}
	return r.validator.ExtractDiary(ctx, sanitizedText, metadata)
}

// now is overridable in tests.
var now = func() time.Time { return time.Now().UTC() }
