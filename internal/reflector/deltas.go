package reflector

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/playbookd/internal/curator"
	"github.com/fyrsmithlabs/playbookd/internal/evidence"
	"github.com/fyrsmithlabs/playbookd/internal/playbook"
	"github.com/fyrsmithlabs/playbookd/internal/validator"
)

// candidate is one prospective bullet derived from a diary field,
// before it has passed the evidence gate.
type candidate struct {
	content  string
	category string
	kind     playbook.Kind
}

// buildDeltas derives add-delta candidates from diary, runs each
// through the evidence gate, defers ambiguous candidates to the
// validator, and returns the deltas that survived plus a conflict
// record for every candidate the gate rejected (spec.md §4.H).
func (r *Reflector) buildDeltas(ctx context.Context, diary validator.Diary, session Session) ([]curator.Delta, []curator.Conflict) {
	candidates := candidatesFromDiary(diary)
	if len(candidates) == 0 {
		return nil, nil
	}

	workspace := session.Metadata["workspace"]
	scope := playbook.ScopeGlobal
	scopeKey := ""
	if workspace != "" {
		scope = playbook.ScopeWorkspace
		scopeKey = workspace
	}

	var deltas []curator.Delta
	var conflicts []curator.Conflict
	for i, c := range candidates {
		if passed, reason := r.gate(ctx, c, diary); !passed {
			conflicts = append(conflicts, curator.Conflict{Index: i, Kind: curator.DeltaAdd, Reason: reason})
			continue
		}
		deltas = append(deltas, curator.Delta{
			Kind: curator.DeltaAdd,
			Bullet: curator.AddSpec{
				Content:  c.content,
				Category: c.category,
				Kind:     c.kind,
				Tags:     diary.Tags,
				Scope:    scope,
				ScopeKey: scopeKey,
			},
			SourceSession: session.Path,
		})
	}
	return deltas, conflicts
}

// candidatesFromDiary maps diary fields to candidate bullets: key
// learnings and preferences become workflow rules, challenges become
// anti-patterns describing what to avoid. Accomplishments and
// decisions are narrative, not procedural, so they are not proposed.
func candidatesFromDiary(diary validator.Diary) []candidate {
	var out []candidate
	for _, learning := range diary.KeyLearnings {
		out = append(out, candidate{content: learning, category: "workflow", kind: playbook.KindWorkflowRule})
	}
	for _, pref := range diary.Preferences {
		out = append(out, candidate{content: pref, category: "preference", kind: playbook.KindStackPattern})
	}
	for _, challenge := range diary.Challenges {
		out = append(out, candidate{content: "AVOID: " + challenge, category: "workflow", kind: playbook.KindAntiPattern})
	}
	return out
}

// gate runs the evidence gate for one candidate, deferring ambiguous
// verdicts to the external validator when one is configured. It
// returns whether the candidate should become an add delta and, when
// rejected, the reason recorded against it.
//
// spec.md §9's open question on an unreachable validator mid-"ambiguous"
// is resolved explicitly: surface as skipped with reason
// "validator_unavailable" rather than admitting the candidate. The gate
// is a safety net, not a default-accept; admitting every ambiguous
// candidate whenever no validator is wired would make the "ambiguous →
// defer to validator" branch never actually defer.
func (r *Reflector) gate(ctx context.Context, c candidate, diary validator.Diary) (bool, string) {
	decision := evidence.Evaluate(ctx, r.searcher, c.content, r.cfg.Evidence)
	if !decision.Passed {
		return false, decision.Reason
	}
	if !strings.Contains(decision.Reason, "ambiguous") {
		return true, ""
	}
	if r.validator == nil {
		return false, "validator_unavailable"
	}

	result, err := r.validator.Validate(ctx, c.content, evidenceSummary(diary))
	if err != nil {
		r.logger.Warn("reflector: validator unreachable, skipping ambiguous candidate", zap.Error(err))
		return false, "validator_unavailable"
	}

	switch result.Verdict {
	case validator.VerdictAccept, validator.VerdictAcceptWithCaution:
		return true, ""
	default:
		return false, fmt.Sprintf("validator rejected: %s", result.Verdict)
	}
}

func evidenceSummary(diary validator.Diary) string {
	return strings.Join(diary.KeyLearnings, "\n")
}
