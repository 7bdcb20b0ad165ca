package curator

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/playbookd/internal/playbook"
	"github.com/fyrsmithlabs/playbookd/internal/similarity"
)

// Apply applies a batch of deltas against pb and runs post-processing
// once (spec.md §4.F). pb is mutated in place.
func Apply(pb *playbook.Playbook, deltas []Delta, cfg Config) *Result {
	result := &Result{}

	for i, d := range deltas {
		applyOne(pb, d, cfg, i, result)
	}

	PostProcess(pb, cfg, result)

	return result
}

func applyOne(pb *playbook.Playbook, d Delta, cfg Config, index int, result *Result) {
	switch d.Kind {
	case DeltaAdd:
		applyAdd(pb, d, cfg, index, result)
	case DeltaHelpful:
		applyHelpful(pb, d, index, result)
	case DeltaHarmful:
		applyHarmful(pb, d, index, result)
	case DeltaReplace:
		applyReplace(pb, d, index, result)
	case DeltaDeprecate:
		applyDeprecate(pb, d, index, result)
	case DeltaMerge:
		applyMerge(pb, d, index, result)
	default:
		skip(result, index, d.Kind, fmt.Sprintf("unknown delta kind %q", d.Kind))
	}
}

func skip(result *Result, index int, kind DeltaKind, reason string) {
	result.Skipped++
	result.Conflicts = append(result.Conflicts, Conflict{Index: index, Kind: kind, Reason: reason})
}

func activeCandidates(pb *playbook.Playbook) []similarity.Candidate {
	active := playbook.GetActiveBullets(pb)
	candidates := make([]similarity.Candidate, len(active))
	for i, b := range active {
		candidates[i] = similarity.Candidate{ID: b.ID, Content: b.Content, Order: i}
	}
	return candidates
}

func applyAdd(pb *playbook.Playbook, d Delta, cfg Config, index int, result *Result) {
	if d.Bullet.Content == "" || d.Bullet.Category == "" {
		skip(result, index, DeltaAdd, "content and category are required")
		return
	}

	newHash := similarity.HashContent(d.Bullet.Content)
	for _, b := range playbook.GetActiveBullets(pb) {
		if similarity.HashContent(b.Content) == newHash {
			skip(result, index, DeltaAdd, fmt.Sprintf("exact duplicate of bullet %s", b.ID))
			return
		}
	}

	if match, found := similarity.FindSimilarBullet(activeCandidates(pb), d.Bullet.Content, cfg.DedupSimilarityThreshold); found {
		target := playbook.FindBullet(pb, match.ID)
		if target != nil {
			playbook.RecordFeedbackEvent(pb, target.ID, playbook.FeedbackHelpful, playbook.FeedbackOptions{
				SessionPath: d.SourceSession,
				Context:     "Reinforced by similar insight",
			})
			result.Applied++
			return
		}
	}

	_, err := playbook.AddBullet(pb, playbook.NewBulletData{
		Content:  d.Bullet.Content,
		Category: d.Bullet.Category,
		Kind:     d.Bullet.Kind,
		Tags:     d.Bullet.Tags,
		Scope:    d.Bullet.Scope,
		ScopeKey: d.Bullet.ScopeKey,
	}, d.SourceSession, cfg.DefaultHalfLifeDays)
	if err != nil {
		skip(result, index, DeltaAdd, err.Error())
		return
	}
	result.Applied++
}

func applyHelpful(pb *playbook.Playbook, d Delta, index int, result *Result) {
	if !playbook.RecordFeedbackEvent(pb, d.BulletID, playbook.FeedbackHelpful, playbook.FeedbackOptions{
		SessionPath: d.SourceSession,
		Context:     d.Context,
	}) {
		skip(result, index, DeltaHelpful, fmt.Sprintf("bullet %s not found", d.BulletID))
		return
	}
	result.Applied++
}

func applyHarmful(pb *playbook.Playbook, d Delta, index int, result *Result) {
	if !playbook.RecordFeedbackEvent(pb, d.BulletID, playbook.FeedbackHarmful, playbook.FeedbackOptions{
		SessionPath: d.SourceSession,
		Reason:      d.Reason,
		Context:     d.Context,
	}) {
		skip(result, index, DeltaHarmful, fmt.Sprintf("bullet %s not found", d.BulletID))
		return
	}
	result.Applied++
}

func applyReplace(pb *playbook.Playbook, d Delta, index int, result *Result) {
	b := playbook.FindBullet(pb, d.BulletID)
	if b == nil {
		skip(result, index, DeltaReplace, fmt.Sprintf("bullet %s not found", d.BulletID))
		return
	}
	if d.NewContent == "" {
		skip(result, index, DeltaReplace, "newContent is required")
		return
	}
	b.Content = d.NewContent
	b.UpdatedAt = now()
	result.Applied++
}

func applyDeprecate(pb *playbook.Playbook, d Delta, index int, result *Result) {
	ok, err := playbook.DeprecateBullet(pb, d.BulletID, d.Reason, d.ReplacedBy)
	if err != nil || !ok {
		reason := fmt.Sprintf("bullet %s not found", d.BulletID)
		if err != nil {
			reason = err.Error()
		}
		skip(result, index, DeltaDeprecate, reason)
		return
	}
	result.Applied++
}

func applyMerge(pb *playbook.Playbook, d Delta, index int, result *Result) {
	if len(d.BulletIDs) < 2 {
		skip(result, index, DeltaMerge, "merge requires at least 2 source bullets")
		return
	}
	if d.MergedContent == "" {
		skip(result, index, DeltaMerge, "mergedContent is required")
		return
	}

	var sources []*playbook.Bullet
	for _, id := range d.BulletIDs {
		b := playbook.FindBullet(pb, id)
		if b == nil {
			skip(result, index, DeltaMerge, fmt.Sprintf("source bullet %s not found", id))
			return
		}
		sources = append(sources, b)
	}

	tagSet := make(map[string]struct{})
	var tags []string
	for _, s := range sources {
		for _, t := range s.Tags {
			if _, ok := tagSet[t]; !ok {
				tagSet[t] = struct{}{}
				tags = append(tags, t)
			}
		}
	}

	merged := &playbook.Bullet{
		ID:        uuid.NewString(),
		Content:   d.MergedContent,
		Category:  sources[0].Category,
		Type:      playbook.TypeRule,
		Scope:     sources[0].Scope,
		Workspace: sources[0].Workspace,
		State:     playbook.StateDraft,
		Maturity:  playbook.MaturityCandidate,
		Tags:      tags,
		CreatedAt: now(),
		UpdatedAt: now(),
	}
	pb.Bullets = append(pb.Bullets, merged)

	for _, id := range d.BulletIDs {
		ok, err := playbook.DeprecateBullet(pb, id, "merged into "+merged.ID, merged.ID)
		if err != nil || !ok {
			reason := fmt.Sprintf("merge source %s was not deprecated", id)
			if err != nil {
				reason = fmt.Sprintf("merge source %s: %s", id, err.Error())
			}
			result.Conflicts = append(result.Conflicts, Conflict{Index: index, Kind: DeltaMerge, Reason: reason})
		}
	}

	result.Applied++
}
