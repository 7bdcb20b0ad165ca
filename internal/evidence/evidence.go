// Package evidence implements the Evidence Gate from spec.md §4.H: it
// decides whether a proposed "add" delta is cheap-accept, cheap-reject,
// or must be deferred to the external validator, using
// word-boundary-anchored regex classification of historical snippets.
package evidence

import (
	"context"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/playbookd/internal/history"
	"github.com/fyrsmithlabs/playbookd/internal/similarity"
)

// Config bundles the gate's tunables.
type Config struct {
	ValidationLookbackDays int
	AutoAcceptSuccesses    int
	AutoRejectFailures     int
}

// DefaultConfig matches spec.md §4.H/§8 boundary scenarios.
func DefaultConfig() Config {
	return Config{
		ValidationLookbackDays: 90,
		AutoAcceptSuccesses:    5,
		AutoRejectFailures:     3,
	}
}

// successPatterns and failurePatterns are word-boundary-anchored so
// "fixed-width" never matches "fixed" (spec.md §4.H explicitly rejects
// generic substring matching).
var successPatterns = compileAll([]string{
	`\bfixed\s+(the|a|this|that|it)\b`,
	`\bsuccessfully\b`,
	`\bsolved\s+(the|a|this|that)\b`,
	`\bworks\s+(now|correctly|properly)\b`,
	`\bresolved\b`,
	`\bworking\s+now\b`,
})

var failurePatterns = compileAll([]string{
	`\bfailed\s+(to|with)\b`,
	`\berror:`,
	`\b(threw|throws)\b.*\berror\b`,
	`\bbroken\b`,
	`\bcrash(ed|es|ing)?\b`,
	`\bbug\s+(in|found|caused)\b`,
	`\bdoesn'?t\s+work\b`,
})

func compileAll(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(`(?i)`+p))
	}
	return compiled
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Classification is success/failure/neither for one snippet.
type Classification int

const (
	ClassificationNeutral Classification = iota
	ClassificationSuccess
	ClassificationFailure
)

// Classify applies spec.md §4.H's anchored regex rules to one snippet.
// A snippet matching both classes is treated as neutral — the rules are
// specific enough that intentional ambiguity should fall through to the
// validator rather than bias a noisy signal toward either side.
func Classify(snippet string) Classification {
	success := matchesAny(successPatterns, snippet)
	failure := matchesAny(failurePatterns, snippet)
	switch {
	case success && !failure:
		return ClassificationSuccess
	case failure && !success:
		return ClassificationFailure
	default:
		return ClassificationNeutral
	}
}

// Decision is the gate's verdict (spec.md §4.H).
type Decision struct {
	Passed         bool
	Reason         string
	SuggestedState string
	SessionCount   int
	SuccessCount   int
	FailureCount   int
}

// Evaluate runs the evidence gate procedure for candidate content.
func Evaluate(ctx context.Context, searcher history.Searcher, content string, cfg Config) Decision {
	if searcher == nil {
		return Decision{Passed: true, Reason: "skipping (fail-open)", SuggestedState: "draft"}
	}

	query := strings.Join(similarity.Keywords(content), " ")
	snippets, err := searcher.Search(ctx, query, history.SearchOptions{
		Limit: 20,
		Days:  cfg.ValidationLookbackDays,
	})
	if err != nil {
		return Decision{Passed: true, Reason: "skipping (fail-open)", SuggestedState: "draft"}
	}

	successCount, failureCount, sessionCount := aggregate(snippets)

	switch {
	case sessionCount == 0:
		return Decision{Passed: true, Reason: "no historical evidence", SuggestedState: "draft",
			SessionCount: sessionCount, SuccessCount: successCount, FailureCount: failureCount}
	case successCount >= cfg.AutoAcceptSuccesses && failureCount == 0:
		return Decision{Passed: true, SuggestedState: "active",
			SessionCount: sessionCount, SuccessCount: successCount, FailureCount: failureCount}
	case failureCount >= cfg.AutoRejectFailures && successCount == 0:
		return Decision{Passed: false, SuggestedState: "draft",
			SessionCount: sessionCount, SuccessCount: successCount, FailureCount: failureCount}
	default:
		return Decision{Passed: true, Reason: "ambiguous — defer to validator", SuggestedState: "draft",
			SessionCount: sessionCount, SuccessCount: successCount, FailureCount: failureCount}
	}
}

// aggregate groups snippets by sessionPath (spec.md §4.H step 4),
// counting distinct sessions and per-classification hits.
func aggregate(snippets []history.Snippet) (successCount, failureCount, sessionCount int) {
	sessions := make(map[string]struct{})
	for _, s := range snippets {
		sessions[s.SourcePath] = struct{}{}
		switch Classify(s.Snippet) {
		case ClassificationSuccess:
			successCount++
		case ClassificationFailure:
			failureCount++
		}
	}
	return successCount, failureCount, len(sessions)
}
