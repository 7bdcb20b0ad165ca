// Package validator defines the llm.validate / llm.extractDiary
// contract from spec.md §6: the external collaborator that turns a
// sanitized session transcript into a diary document, and that renders
// a verdict on an ambiguous candidate rule given supporting evidence.
package validator

import (
	"context"
	"errors"
)

// ErrUnavailable wraps any failure reaching the configured provider
// (missing credentials, network failure, malformed response) so
// callers can fail open per spec.md §7's "external unavailability".
var ErrUnavailable = errors.New("validator: provider unavailable")

// Verdict is the external validator's classification of a candidate
// rule against its supporting evidence (spec.md §6).
type Verdict string

const (
	VerdictAccept            Verdict = "ACCEPT"
	VerdictReject            Verdict = "REJECT"
	VerdictAcceptWithCaution Verdict = "ACCEPT_WITH_CAUTION"
	VerdictRefine            Verdict = "REFINE"
)

// Result is the normalized llm.validate response.
type Result struct {
	Valid               bool
	Verdict             Verdict
	Confidence          float64
	Evidence            []string
	SuggestedRefinement string
}

// Diary is the normalized llm.extractDiary response (spec.md §6).
type Diary struct {
	Status          string
	Accomplishments []string
	Decisions       []string
	Challenges      []string
	Preferences     []string
	KeyLearnings    []string
	Tags            []string
	SearchAnchors   []string
}

// Validator is the contract the reflector and evidence gate depend on.
type Validator interface {
	Validate(ctx context.Context, candidateRule, evidenceText string) (Result, error)
	ExtractDiary(ctx context.Context, sanitizedSessionText string, metadata map[string]string) (Diary, error)
}

// Normalize applies the REFINE -> ACCEPT_WITH_CAUTION*0.8 adjustment a
// provider's raw verdict may need before callers act on it: a provider
// that asks for refinement hasn't rejected the candidate, but its
// confidence shouldn't carry the weight of an outright accept either.
func Normalize(r Result) Result {
	if r.Verdict == VerdictRefine {
		r.Verdict = VerdictAcceptWithCaution
		r.Confidence *= 0.8
	}
	return r
}
