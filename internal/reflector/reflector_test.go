package reflector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/playbookd/internal/curator"
	"github.com/fyrsmithlabs/playbookd/internal/history"
	"github.com/fyrsmithlabs/playbookd/internal/playbook"
	"github.com/fyrsmithlabs/playbookd/internal/processedlog"
	"github.com/fyrsmithlabs/playbookd/internal/sanitize"
	"github.com/fyrsmithlabs/playbookd/internal/validator"
)

var errValidatorUnreachable = errors.New("validator: connection refused")

// stubValidator returns a fixed diary and verdict for every call.
// validateErr is returned only from Validate, so a test can make the
// ambiguous-evidence validator call fail without also breaking diary
// extraction.
type stubValidator struct {
	diary       validator.Diary
	result      validator.Result
	err         error
	validateErr error
}

func (s *stubValidator) Validate(ctx context.Context, content, evidenceSummary string) (validator.Result, error) {
	return s.result, s.validateErr
}

func (s *stubValidator) ExtractDiary(ctx context.Context, sessionText string, metadata map[string]string) (validator.Diary, error) {
	return s.diary, s.err
}

// stubSearcher returns a fixed set of snippets for every Search call,
// enough to push the evidence gate toward auto-accept or auto-reject.
type stubSearcher struct {
	snippets []history.Snippet
}

func (s *stubSearcher) Search(ctx context.Context, query string, opts history.SearchOptions) ([]history.Snippet, error) {
	return s.snippets, nil
}

func (s *stubSearcher) Export(ctx context.Context, sessionPath, format string) (string, error) {
	return "", nil
}

func (s *stubSearcher) Timeline(ctx context.Context, days int) ([]history.TimelineGroup, error) {
	return nil, nil
}

func successSnippets(n int) []history.Snippet {
	out := make([]history.Snippet, n)
	for i := range out {
		out[i] = history.Snippet{Snippet: "fixed the bug successfully", Score: 0.9}
	}
	return out
}

func newTestCurator(t *testing.T) *curator.Curator {
	t.Helper()
	return curator.New(curator.DefaultConfig(), nil)
}

func TestRun_EvidenceAutoAcceptAppliesDeltaAndLogsSession(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "processed.ndjson")

	v := &stubValidator{diary: validator.Diary{
		KeyLearnings: []string{"always run migrations before deploy"},
	}}
	searcher := &stubSearcher{snippets: successSnippets(6)}
	sanitizer := sanitize.New(sanitize.DefaultConfig(), nil)
	cur := newTestCurator(t)

	r := New(DefaultConfig(), v, searcher, sanitizer, cur, nil)

	pb := playbook.Empty("test")
	session := Session{Path: "sess1.md", Text: "some session transcript", Agent: "claude"}

	result, err := r.Run(context.Background(), pb, session, logPath)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.DeltasProposed != 1 {
		t.Fatalf("expected 1 delta proposed, got %d", result.DeltasProposed)
	}
	if result.DeltasApplied != 1 {
		t.Fatalf("expected 1 delta applied, got %d", result.DeltasApplied)
	}
	if len(pb.Bullets) != 1 {
		t.Fatalf("expected 1 bullet added to playbook, got %d", len(pb.Bullets))
	}

	if _, err := os.Stat(logPath); err != nil {
		t.Fatalf("expected processed log to be written: %v", err)
	}
	log, err := processedlog.Load(logPath)
	if err != nil {
		t.Fatalf("processedlog.Load() error = %v", err)
	}
	if len(log.Entries) != 1 || log.Entries[0].SessionPath != "sess1.md" {
		t.Fatalf("unexpected processed log entries: %+v", log.Entries)
	}
}

func TestRun_EvidenceAutoRejectProducesNoDeltas(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "processed.ndjson")

	v := &stubValidator{diary: validator.Diary{
		KeyLearnings: []string{"never hardcode credentials"},
	}}
	failureSnippets := make([]history.Snippet, 4)
	for i := range failureSnippets {
		failureSnippets[i] = history.Snippet{Snippet: "this failed with error: timeout", Score: 0.9}
	}
	searcher := &stubSearcher{snippets: failureSnippets}
	sanitizer := sanitize.New(sanitize.DefaultConfig(), nil)
	cur := newTestCurator(t)

	r := New(DefaultConfig(), v, searcher, sanitizer, cur, nil)
	pb := playbook.Empty("test")
	session := Session{Path: "sess2.md", Text: "a failing session", Agent: "claude"}

	result, err := r.Run(context.Background(), pb, session, logPath)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.DeltasProposed != 0 {
		t.Fatalf("expected 0 deltas proposed on auto-reject, got %d", result.DeltasProposed)
	}
	if len(pb.Bullets) != 0 {
		t.Fatalf("expected no bullets added, got %d", len(pb.Bullets))
	}
}

func TestRun_AmbiguousDefersToValidatorAcceptWithCaution(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "processed.ndjson")

	v := &stubValidator{
		diary: validator.Diary{KeyLearnings: []string{"prefer composition over inheritance"}},
		result: validator.Result{
			Valid:   true,
			Verdict: validator.VerdictAcceptWithCaution,
		},
	}
	// Mixed, below-threshold signal: neither enough successes nor
	// enough failures to auto-accept/auto-reject, so the gate defers
	// to the validator.
	searcher := &stubSearcher{snippets: []history.Snippet{
		{SourcePath: "s1.md", Snippet: "fixed the bug successfully", Score: 0.9},
		{SourcePath: "s2.md", Snippet: "this failed with error: timeout", Score: 0.8},
	}}
	sanitizer := sanitize.New(sanitize.DefaultConfig(), nil)
	cur := newTestCurator(t)

	r := New(DefaultConfig(), v, searcher, sanitizer, cur, nil)
	pb := playbook.Empty("test")
	session := Session{Path: "sess3.md", Text: "an ambiguous session", Agent: "claude"}

	result, err := r.Run(context.Background(), pb, session, logPath)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.DeltasProposed != 1 {
		t.Fatalf("expected validator-accepted candidate to become a delta, got %d", result.DeltasProposed)
	}
}

// ambiguousSnippets mixes enough success and failure hits that the
// evidence gate lands on neither auto-accept nor auto-reject.
func ambiguousSnippets() []history.Snippet {
	return []history.Snippet{
		{SourcePath: "s1.md", Snippet: "fixed the bug successfully", Score: 0.9},
		{SourcePath: "s2.md", Snippet: "this failed with error: timeout", Score: 0.8},
	}
}

// TestGate_AmbiguousWithNoValidatorSkipsAsUnavailable locks in spec.md
// §9's resolution of the validator-unreachable open question: an
// ambiguous candidate with no validator wired must be skipped, not
// admitted, with reason "validator_unavailable".
func TestGate_AmbiguousWithNoValidatorSkipsAsUnavailable(t *testing.T) {
	searcher := &stubSearcher{snippets: ambiguousSnippets()}
	sanitizer := sanitize.New(sanitize.DefaultConfig(), nil)
	cur := newTestCurator(t)

	r := New(DefaultConfig(), nil, searcher, sanitizer, cur, nil)
	c := candidate{content: "prefer composition over inheritance", category: "workflow"}
	diary := validator.Diary{KeyLearnings: []string{c.content}}

	passed, reason := r.gate(context.Background(), c, diary)
	if passed {
		t.Fatal("expected gate to reject an ambiguous candidate when no validator is configured")
	}
	if reason != "validator_unavailable" {
		t.Fatalf("expected reason %q, got %q", "validator_unavailable", reason)
	}
}

// TestRun_AmbiguousValidatorErrorSkipsAsUnavailable exercises the same
// resolution end to end through Run, for the case where a validator is
// configured but unreachable.
func TestRun_AmbiguousValidatorErrorSkipsAsUnavailable(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "processed.ndjson")

	v := &stubValidator{
		diary:       validator.Diary{KeyLearnings: []string{"prefer composition over inheritance"}},
		validateErr: errValidatorUnreachable,
	}
	searcher := &stubSearcher{snippets: ambiguousSnippets()}
	sanitizer := sanitize.New(sanitize.DefaultConfig(), nil)
	cur := newTestCurator(t)

	r := New(DefaultConfig(), v, searcher, sanitizer, cur, nil)
	pb := playbook.Empty("test")
	session := Session{Path: "sess-validator-error.md", Text: "an ambiguous session"}

	result, err := r.Run(context.Background(), pb, session, logPath)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.DeltasProposed != 0 {
		t.Fatalf("expected 0 deltas when the validator errors on an ambiguous candidate, got %d", result.DeltasProposed)
	}
	if result.Curator.Skipped == 0 {
		t.Fatal("expected the gate-skipped candidate to be counted as skipped")
	}
	found := false
	for _, c := range result.Curator.Conflicts {
		if c.Reason == "validator_unavailable" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a validator_unavailable conflict, got %+v", result.Curator.Conflicts)
	}
}

func TestRun_SanitizesTextBeforeExtractingDiary(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "processed.ndjson")

	var seenText string
	v := &capturingValidator{capture: &seenText}
	searcher := &stubSearcher{}
	sanitizer := sanitize.New(sanitize.DefaultConfig(), nil)
	cur := newTestCurator(t)

	r := New(DefaultConfig(), v, searcher, sanitizer, cur, nil)
	pb := playbook.Empty("test")
	session := Session{
		Path: "sess4.md",
		Text: "here is my token: bearer abcdefghijklmnopqrstuvwxyz0123456789 ok",
	}

	if _, err := r.Run(context.Background(), pb, session, logPath); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if seenText == session.Text {
		t.Fatal("expected validator to receive sanitized text, got raw text")
	}
	if !contains(seenText, "[REDACTED:bearer-token:") {
		t.Fatalf("expected sanitized text to carry a redaction marker, got %q", seenText)
	}
}

type capturingValidator struct {
	capture *string
}

func (c *capturingValidator) Validate(ctx context.Context, content, evidenceSummary string) (validator.Result, error) {
	return validator.Result{Valid: true, Verdict: validator.VerdictAccept}, nil
}

func (c *capturingValidator) ExtractDiary(ctx context.Context, sessionText string, metadata map[string]string) (validator.Diary, error) {
	*c.capture = sessionText
	return validator.Diary{}, nil
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestRun_NoValidatorConfiguredProposesNoDeltas(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "processed.ndjson")

	searcher := &stubSearcher{}
	sanitizer := sanitize.New(sanitize.DefaultConfig(), nil)
	cur := newTestCurator(t)

	r := New(DefaultConfig(), nil, searcher, sanitizer, cur, nil)
	pb := playbook.Empty("test")
	session := Session{Path: "sess5.md", Text: "no validator wired"}

	result, err := r.Run(context.Background(), pb, session, logPath)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.DeltasProposed != 0 {
		t.Fatalf("expected no deltas with no validator/diary, got %d", result.DeltasProposed)
	}
}
