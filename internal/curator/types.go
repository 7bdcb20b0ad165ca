// Package curator implements the batch delta-application engine from
// spec.md §4.F: applies add/helpful/harmful/replace/deprecate/merge
// deltas against a Playbook with deduplication, merging, and
// post-processing (promotion, demotion/auto-prune, inversion).
package curator

import (
	"time"

	"github.com/fyrsmithlabs/playbookd/internal/playbook"
)

// DeltaKind identifies the variant of a PlaybookDelta.
type DeltaKind string

const (
	DeltaAdd       DeltaKind = "add"
	DeltaHelpful   DeltaKind = "helpful"
	DeltaHarmful   DeltaKind = "harmful"
	DeltaReplace   DeltaKind = "replace"
	DeltaDeprecate DeltaKind = "deprecate"
	DeltaMerge     DeltaKind = "merge"
)

// AddSpec is the payload of an "add" delta.
type AddSpec struct {
	Content  string
	Category string
	Kind     playbook.Kind
	Tags     []string
	Scope    playbook.Scope
	ScopeKey string
}

// Delta is one proposed change to a playbook (spec.md §4.F).
type Delta struct {
	Kind DeltaKind

	// add
	Bullet        AddSpec
	SourceSession string

	// helpful / harmful / replace / deprecate
	BulletID string
	Reason   string
	Context  string

	// replace
	NewContent string

	// deprecate
	ReplacedBy string

	// merge
	BulletIDs     []string
	MergedContent string
}

// Conflict records a delta that could not be applied.
type Conflict struct {
	Index  int
	Kind   DeltaKind
	Reason string
}

// Promotion records a maturity promotion applied during post-processing.
type Promotion struct {
	BulletID string
	From     playbook.Maturity
	To       playbook.Maturity
	Reason   string
}

// Inversion records an anti-pattern created by inverting a harmful
// bullet.
type Inversion struct {
	OriginalID    string
	AntiPatternID string
}

// Result is the outcome of applying a batch of deltas (spec.md §4.F).
type Result struct {
	Applied    int
	Skipped    int
	Conflicts  []Conflict
	Promotions []Promotion
	Inversions []Inversion
	Pruned     int
}

// Config bundles the tunables the curator consults.
type Config struct {
	DedupSimilarityThreshold float64
	DefaultHalfLifeDays      float64
}

// DefaultConfig mirrors spec.md §4.F's defaults.
func DefaultConfig() Config {
	return Config{
		DedupSimilarityThreshold: 0.85,
		DefaultHalfLifeDays:      30,
	}
}

// now is overridable in tests via a package variable rather than a
// full clock interface, matching the scale of what curator needs.
var now = func() time.Time { return time.Now().UTC() }
