// Package scoring implements the time-decayed feedback scoring and
// maturity lifecycle engine from spec.md §4.E.
package scoring

import (
	"math"
	"time"

	"github.com/fyrsmithlabs/playbookd/internal/playbook"
)

// Config holds the tunable thresholds from spec.md §6.
type Config struct {
	DecayHalfLifeDays       float64
	HarmfulMultiplier       float64
	MinFeedbackForActive    float64
	MinHelpfulForProven     float64
	MaxHarmfulRatioForProven float64
	PruneHarmfulThreshold   float64
	StaleDays               float64
}

// DefaultConfig returns the thresholds named by spec.md §4.E/§6.
func DefaultConfig() Config {
	return Config{
		DecayHalfLifeDays:        30,
		HarmfulMultiplier:        4,
		MinFeedbackForActive:     3,
		MinHelpfulForProven:      5,
		MaxHarmfulRatioForProven: 0.3,
		PruneHarmfulThreshold:    3,
		StaleDays:                90,
	}
}

var maturityMultiplier = map[playbook.Maturity]float64{
	playbook.MaturityCandidate:   0.5,
	playbook.MaturityEstablished: 1.0,
	playbook.MaturityProven:      1.5,
	playbook.MaturityDeprecated:  0.0,
}

// Decay returns 0.5^(max(0,ageDays)/halfLifeDays). Future-dated ages
// (negative) are clamped to zero, contributing 1.0 (spec.md §4.E,
// §8 invariant 4).
func Decay(ageDays, halfLifeDays float64) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	if halfLifeDays <= 0 {
		halfLifeDays = DefaultConfig().DecayHalfLifeDays
	}
	return math.Pow(0.5, ageDays/halfLifeDays)
}

func ageDays(ts, now time.Time) float64 {
	return now.Sub(ts).Hours() / 24
}

// DecayedCounts computes decayedHelpful and decayedHarmful for a
// bullet as of now, using the bullet's half-life override if set, else
// the config default.
func DecayedCounts(b *playbook.Bullet, cfg Config, now time.Time) (helpful, harmful float64) {
	halfLife := cfg.DecayHalfLifeDays
	if b.ConfidenceDecayHalfLifeDays > 0 {
		halfLife = b.ConfidenceDecayHalfLifeDays
	}

	for _, e := range b.FeedbackEvents {
		weight := e.Weight
		if weight == 0 {
			weight = 1.0
		}
		d := Decay(ageDays(e.Timestamp, now), halfLife) * weight
		switch e.Type {
		case playbook.FeedbackHelpful:
			helpful += d
		case playbook.FeedbackHarmful:
			harmful += d
		}
	}
	return helpful, harmful
}

// RawScore is decayedHelpful - harmfulMultiplier*decayedHarmful.
func RawScore(decayedHelpful, decayedHarmful float64, cfg Config) float64 {
	return decayedHelpful - cfg.HarmfulMultiplier*decayedHarmful
}

// EffectiveScore is RawScore times the maturity multiplier.
func EffectiveScore(raw float64, maturity playbook.Maturity) float64 {
	return raw * maturityMultiplier[maturity]
}

// Score bundles the scoring engine's output for a single bullet.
type Score struct {
	DecayedHelpful float64
	DecayedHarmful float64
	Raw            float64
	Effective      float64
	HarmfulRatio   float64
	Total          float64
}

// Compute runs the full scoring pipeline for a bullet as of now.
func Compute(b *playbook.Bullet, cfg Config, now time.Time) Score {
	helpful, harmful := DecayedCounts(b, cfg, now)
	total := helpful + harmful
	ratio := 0.0
	if total > 0 {
		ratio = harmful / total
	}
	raw := RawScore(helpful, harmful, cfg)
	return Score{
		DecayedHelpful: helpful,
		DecayedHarmful: harmful,
		Raw:            raw,
		Effective:      EffectiveScore(raw, b.Maturity),
		HarmfulRatio:   ratio,
		Total:          total,
	}
}

// NextMaturity evaluates the maturity FSM (spec.md §4.E) and returns
// the maturity a bullet should transition to.
func NextMaturity(current playbook.Maturity, s Score, cfg Config) playbook.Maturity {
	if current == playbook.MaturityDeprecated {
		return playbook.MaturityDeprecated
	}
	if s.HarmfulRatio > 0.3 && s.Total > cfg.MinFeedbackForActive {
		return playbook.MaturityDeprecated
	}
	if s.Total < cfg.MinFeedbackForActive {
		return playbook.MaturityCandidate
	}
	if s.DecayedHelpful >= cfg.MinHelpfulForProven && s.HarmfulRatio < cfg.MaxHarmfulRatioForProven {
		return playbook.MaturityProven
	}
	return playbook.MaturityEstablished
}

var maturityRank = map[playbook.Maturity]int{
	playbook.MaturityCandidate:   0,
	playbook.MaturityEstablished: 1,
	playbook.MaturityProven:      2,
	playbook.MaturityDeprecated:  3,
}

// PromotionGuard applies spec.md §4.E's promotion guard: a bullet may
// be promoted but not regressed via promotion alone. proven and
// deprecated are sinks for promotion (a non-deprecated candidate for
// `next` below deprecated is never chosen by NextMaturity directly,
// but this guard additionally protects against any caller passing a
// lower target).
func PromotionGuard(current, next playbook.Maturity) playbook.Maturity {
	if current == playbook.MaturityProven || current == playbook.MaturityDeprecated {
		return current
	}
	if maturityRank[next] < maturityRank[current] {
		return current
	}
	return next
}

// DemotionOutcome is the recommended action from spec.md §4.E's
// demotion rule.
type DemotionOutcome string

const (
	DemotionNone          DemotionOutcome = "none"
	DemotionOneLevel      DemotionOutcome = "demote"
	DemotionAutoDeprecate DemotionOutcome = "auto-deprecate"
)

// Demote evaluates spec.md §4.E's demotion/auto-prune rule. Pinned
// bullets are exempt (spec.md §3 invariant 4).
func Demote(b *playbook.Bullet, s Score, cfg Config) (DemotionOutcome, playbook.Maturity) {
	if b.Pinned {
		return DemotionNone, b.Maturity
	}
	if s.Effective < -cfg.PruneHarmfulThreshold {
		return DemotionAutoDeprecate, playbook.MaturityDeprecated
	}
	if s.Effective < 0 {
		switch b.Maturity {
		case playbook.MaturityProven:
			return DemotionOneLevel, playbook.MaturityEstablished
		case playbook.MaturityEstablished:
			return DemotionOneLevel, playbook.MaturityCandidate
		}
	}
	return DemotionNone, b.Maturity
}

// Stale reports whether a bullet has gone quiet: no events and
// createdAt older than staleDays, or last event older than staleDays
// (spec.md §4.E).
func Stale(b *playbook.Bullet, cfg Config, now time.Time) bool {
	staleDays := cfg.StaleDays
	if staleDays <= 0 {
		staleDays = DefaultConfig().StaleDays
	}

	if len(b.FeedbackEvents) == 0 {
		return ageDays(b.CreatedAt, now) > staleDays
	}

	last := b.FeedbackEvents[0].Timestamp
	for _, e := range b.FeedbackEvents[1:] {
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}
	return ageDays(last, now) > staleDays
}

// ShouldInvert reports whether a bullet meets spec.md §4.E's inversion
// criteria: non-pinned, non-anti-pattern, active, and sufficiently
// harmful (decayedHarmful >= 3 and decayedHarmful > 2*decayedHelpful).
func ShouldInvert(b *playbook.Bullet, s Score) bool {
	if b.Pinned || b.Kind == playbook.KindAntiPattern || b.Inactive() {
		return false
	}
	return s.DecayedHarmful >= 3 && s.DecayedHarmful > 2*s.DecayedHelpful
}
