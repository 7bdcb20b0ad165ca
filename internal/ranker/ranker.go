// Package ranker implements the Context Ranker from spec.md §4.G: it
// turns a task description into a ranked, relevance-scored context
// bundle drawn from the playbook and historical evidence.
package ranker

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/playbookd/internal/history"
	"github.com/fyrsmithlabs/playbookd/internal/playbook"
	"github.com/fyrsmithlabs/playbookd/internal/scoring"
	"github.com/fyrsmithlabs/playbookd/internal/similarity"
)

// Config bundles the ranker's tunables (spec.md §6).
type Config struct {
	MaxBulletsInContext int
	MaxHistoryInContext int
	SessionLookbackDays int
}

// DefaultConfig matches spec.md §4.G's named defaults.
func DefaultConfig() Config {
	return Config{
		MaxBulletsInContext: 10,
		MaxHistoryInContext: 5,
		SessionLookbackDays: 30,
	}
}

// RankedBullet pairs a bullet with the relevance/final score it earned
// for one ranking call.
type RankedBullet struct {
	Bullet    *playbook.Bullet
	Relevance float64
	Final     float64
}

// ContextResult is the ranker's output (spec.md §4.G step 9).
type ContextResult struct {
	Task                    string
	RelevantBullets         []RankedBullet
	AntiPatterns            []RankedBullet
	HistorySnippets         []history.Snippet
	DeprecatedWarnings      []string
	SuggestedHistoryQueries []string
}

// scoreBulletRelevance is a keyword-overlap heuristic: the fraction of
// task keywords present in the bullet's content or tags. Implementers
// may substitute cosine similarity when embeddings are available
// (spec.md §4.G step 3); see internal/semantic for that path.
func scoreBulletRelevance(content string, tags []string, taskKeywords []string) float64 {
	if len(taskKeywords) == 0 {
		return 0
	}

	haystack := strings.ToLower(content)
	for _, t := range tags {
		haystack += " " + strings.ToLower(t)
	}
	haystackWords := similarity.Keywords(haystack)
	present := make(map[string]struct{}, len(haystackWords))
	for _, w := range haystackWords {
		present[w] = struct{}{}
	}

	hits := 0
	for _, kw := range taskKeywords {
		if _, ok := present[kw]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(taskKeywords))
}

// Rank implements spec.md §4.G end to end: load is the caller's
// responsibility (it already happened to produce pb, the merged +
// toxic-filtered playbook); Rank scores, splits, queries history, and
// derives warnings.
func Rank(ctx context.Context, pb *playbook.Playbook, task string, workspace string, searcher history.Searcher, cfg Config, scoringCfg scoring.Config, asOf time.Time) ContextResult {
	taskKeywords := similarity.Keywords(task)

	candidates := scopedBullets(pb, workspace)

	ranked := make([]RankedBullet, 0, len(candidates))
	for _, b := range candidates {
		s := scoring.Compute(b, scoringCfg, asOf)
		relevance := scoreBulletRelevance(b.Content, b.Tags, taskKeywords)
		final := relevance * maxFloat(0.1, s.Effective)
		ranked = append(ranked, RankedBullet{Bullet: b, Relevance: relevance, Final: final})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Final > ranked[j].Final })

	positive := make([]RankedBullet, 0, len(ranked))
	for _, r := range ranked {
		if r.Final <= 0 {
			continue
		}
		positive = append(positive, r)
		if len(positive) >= cfg.MaxBulletsInContext {
			break
		}
	}

	rules, antiPatterns := splitRulesAndAntiPatterns(positive)

	query := strings.Join(taskKeywords, " ")
	var snippets []history.Snippet
	if searcher != nil {
		if found, err := searcher.Search(ctx, query, history.SearchOptions{
			Limit:     cfg.MaxHistoryInContext,
			Days:      cfg.SessionLookbackDays,
			Workspace: workspace,
		}); err == nil {
			snippets = found
		}
	}

	warnings := deprecatedWarnings(pb.DeprecatedPatterns, task, snippets)

	return ContextResult{
		Task:                    task,
		RelevantBullets:         rules,
		AntiPatterns:            antiPatterns,
		HistorySnippets:         snippets,
		DeprecatedWarnings:      warnings,
		SuggestedHistoryQueries: []string{query},
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// scopedBullets keeps active bullets, filtering workspace-scoped ones
// to the requested workspace while leaving every other scope intact
// (spec.md §4.G step 2).
func scopedBullets(pb *playbook.Playbook, workspace string) []*playbook.Bullet {
	active := playbook.GetActiveBullets(pb)
	if workspace == "" {
		return active
	}

	kept := make([]*playbook.Bullet, 0, len(active))
	for _, b := range active {
		if b.Scope == playbook.ScopeWorkspace && b.Workspace != workspace {
			continue
		}
		kept = append(kept, b)
	}
	return kept
}

func splitRulesAndAntiPatterns(ranked []RankedBullet) (rules, antiPatterns []RankedBullet) {
	for _, r := range ranked {
		if r.Bullet.IsNegative || r.Bullet.Kind == playbook.KindAntiPattern {
			antiPatterns = append(antiPatterns, r)
		} else {
			rules = append(rules, r)
		}
	}
	return rules, antiPatterns
}

// deprecatedWarnings matches each deprecated pattern against the task
// text and the historical snippets (spec.md §4.G step 8).
func deprecatedWarnings(patterns []playbook.DeprecatedPattern, task string, snippets []history.Snippet) []string {
	var warnings []string
	taskLower := strings.ToLower(task)

	for _, p := range patterns {
		needle := strings.ToLower(p.Pattern)
		matched := strings.Contains(taskLower, needle)
		if !matched {
			for _, s := range snippets {
				if strings.Contains(strings.ToLower(s.Snippet), needle) {
					matched = true
					break
				}
			}
		}
		if matched {
			warning := p.Pattern
			if p.Reason != "" {
				warning += ": " + p.Reason
			}
			if p.Replacement != "" {
				warning += " (use " + p.Replacement + " instead)"
			}
			warnings = append(warnings, warning)
		}
	}
	return warnings
}
