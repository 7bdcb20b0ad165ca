package curator

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/playbookd/internal/playbook"
	"github.com/fyrsmithlabs/playbookd/internal/scoring"
)

// PostProcess runs the promotion, demotion/auto-prune, and inversion
// passes once over every active bullet (spec.md §4.F). Pinned bullets
// are exempt from demotion and auto-prune but still eligible for
// promotion.
func PostProcess(pb *playbook.Playbook, cfg Config, result *Result) {
	scoringCfg := scoring.DefaultConfig()
	asOf := now()

	for _, b := range playbook.GetActiveBullets(pb) {
		s := scoring.Compute(b, scoringCfg, asOf)

		proposed := scoring.NextMaturity(b.Maturity, s, scoringCfg)
		if b.Pinned && proposed == playbook.MaturityDeprecated {
			// Auto-deprecation via the FSM is exempt for pinned bullets
			// (spec.md §3 invariant 4); only an explicit DeprecateBullet
			// call can retire one.
			proposed = b.Maturity
		}
		guarded := scoring.PromotionGuard(b.Maturity, proposed)
		if guarded != b.Maturity {
			result.Promotions = append(result.Promotions, Promotion{
				BulletID: b.ID,
				From:     b.Maturity,
				To:       guarded,
				Reason:   fmt.Sprintf("effective score %.2f over %.0f feedback events", s.Effective, s.Total),
			})
			b.Maturity = guarded
			b.UpdatedAt = asOf
		}

		s = scoring.Compute(b, scoringCfg, asOf)
		outcome, next := scoring.Demote(b, s, scoringCfg)
		switch outcome {
		case scoring.DemotionOneLevel:
			b.Maturity = next
			b.UpdatedAt = asOf
		case scoring.DemotionAutoDeprecate:
			_, _ = playbook.DeprecateBullet(pb, b.ID, "auto-pruned: effective score fell below the harmful threshold", "")
			result.Pruned++
		}
	}

	invertHarmfulBullets(pb, scoringCfg, asOf, result)
}

// invertHarmfulBullets creates an anti-pattern bullet for every active
// bullet meeting spec.md §4.E's inversion criteria, then deprecates the
// original in favor of the new anti-pattern.
func invertHarmfulBullets(pb *playbook.Playbook, scoringCfg scoring.Config, asOf time.Time, result *Result) {
	for _, b := range playbook.GetActiveBullets(pb) {
		s := scoring.Compute(b, scoringCfg, asOf)
		if !scoring.ShouldInvert(b, s) {
			continue
		}

		reason := fmt.Sprintf("inverted after %.0f harmful reports vs %.0f helpful", s.DecayedHarmful, s.DecayedHelpful)
		antiPattern := &playbook.Bullet{
			ID:             uuid.NewString(),
			Content:        fmt.Sprintf("AVOID: %s. %s", b.Content, reason),
			Category:       b.Category,
			Kind:           playbook.KindAntiPattern,
			Type:           playbook.TypeAntiPattern,
			IsNegative:     true,
			Scope:          b.Scope,
			ScopeKey:       b.ScopeKey,
			Workspace:      b.Workspace,
			State:          playbook.StateActive,
			Maturity:       playbook.MaturityCandidate,
			Tags:           b.Tags,
			SourceSessions: b.SourceSessions,
			CreatedAt:      asOf,
			UpdatedAt:      asOf,
		}
		pb.Bullets = append(pb.Bullets, antiPattern)

		_, _ = playbook.DeprecateBullet(pb, b.ID, reason, antiPattern.ID)

		result.Inversions = append(result.Inversions, Inversion{
			OriginalID:    b.ID,
			AntiPatternID: antiPattern.ID,
		})
	}
}
