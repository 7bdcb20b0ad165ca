// Package playbook implements the Playbook store described in
// spec.md §3 and §4.D: a versioned, file-backed collection of bullets
// with cascading global/repo scopes, atomic persistence, and a
// toxic-content filter.
package playbook

import "time"

// Scope classifies where a bullet applies.
type Scope string

const (
	ScopeGlobal    Scope = "global"
	ScopeWorkspace Scope = "workspace"
	ScopeLanguage  Scope = "language"
	ScopeFramework Scope = "framework"
	ScopeTask      Scope = "task"
)

// State is the coarse lifecycle state of a bullet.
type State string

const (
	StateDraft   State = "draft"
	StateActive  State = "active"
	StateRetired State = "retired"
)

// Maturity is the quality tier of a bullet.
type Maturity string

const (
	MaturityCandidate   Maturity = "candidate"
	MaturityEstablished Maturity = "established"
	MaturityProven      Maturity = "proven"
	MaturityDeprecated  Maturity = "deprecated"
)

// Kind further classifies content, e.g. "workflow_rule", "anti_pattern",
// "stack_pattern".
type Kind string

const (
	KindWorkflowRule Kind = "workflow_rule"
	KindAntiPattern  Kind = "anti_pattern"
	KindStackPattern Kind = "stack_pattern"
)

// BulletType is the coarse rule/anti-pattern split used by the ranker.
type BulletType string

const (
	TypeRule        BulletType = "rule"
	TypeAntiPattern BulletType = "anti-pattern"
)

// FeedbackType distinguishes helpful from harmful feedback events.
type FeedbackType string

const (
	FeedbackHelpful FeedbackType = "helpful"
	FeedbackHarmful FeedbackType = "harmful"
)

// FeedbackEvent is the single source of truth for a bullet's feedback
// history (spec.md §3).
type FeedbackEvent struct {
	Type        FeedbackType `yaml:"type" json:"type"`
	Timestamp   time.Time    `yaml:"timestamp" json:"timestamp"`
	SessionPath string       `yaml:"sessionPath,omitempty" json:"sessionPath,omitempty"`
	Reason      string       `yaml:"reason,omitempty" json:"reason,omitempty"`
	Context     string       `yaml:"context,omitempty" json:"context,omitempty"`

	// Weight scales the event's contribution to the decayed score
	// (spec.md §4.J's decayedValue, clamped to [0.1, 2.0] by the
	// outcome applier). Zero means the default weight of 1.0 — most
	// manually recorded feedback leaves this unset.
	Weight float64 `yaml:"weight,omitempty" json:"weight,omitempty"`
}

// Bullet is the unit of procedural knowledge (spec.md §3).
type Bullet struct {
	ID string `yaml:"id" json:"id"`

	Content  string `yaml:"content" json:"content"`
	Category string `yaml:"category" json:"category"`
	Kind     Kind   `yaml:"kind,omitempty" json:"kind,omitempty"`

	Type       BulletType `yaml:"type" json:"type"`
	IsNegative bool       `yaml:"isNegative" json:"isNegative"`

	Scope     Scope  `yaml:"scope" json:"scope"`
	ScopeKey  string `yaml:"scopeKey,omitempty" json:"scopeKey,omitempty"`
	Workspace string `yaml:"workspace,omitempty" json:"workspace,omitempty"`

	State    State    `yaml:"state" json:"state"`
	Maturity Maturity `yaml:"maturity" json:"maturity"`

	Pinned       bool   `yaml:"pinned" json:"pinned"`
	PinnedReason string `yaml:"pinnedReason,omitempty" json:"pinnedReason,omitempty"`

	Deprecated        bool   `yaml:"deprecated" json:"deprecated"`
	DeprecatedAt      *time.Time `yaml:"deprecatedAt,omitempty" json:"deprecatedAt,omitempty"`
	DeprecationReason string `yaml:"deprecationReason,omitempty" json:"deprecationReason,omitempty"`
	ReplacedBy        string `yaml:"replacedBy,omitempty" json:"replacedBy,omitempty"`

	SourceSessions []string `yaml:"sourceSessions,omitempty" json:"sourceSessions,omitempty"`
	SourceAgents   []string `yaml:"sourceAgents,omitempty" json:"sourceAgents,omitempty"`
	Tags           []string `yaml:"tags,omitempty" json:"tags,omitempty"`

	FeedbackEvents []FeedbackEvent `yaml:"feedbackEvents,omitempty" json:"feedbackEvents,omitempty"`
	HelpfulCount   int             `yaml:"helpfulCount" json:"helpfulCount"`
	HarmfulCount   int             `yaml:"harmfulCount" json:"harmfulCount"`

	CreatedAt       time.Time  `yaml:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time  `yaml:"updatedAt" json:"updatedAt"`
	LastValidatedAt *time.Time `yaml:"lastValidatedAt,omitempty" json:"lastValidatedAt,omitempty"`

	ConfidenceDecayHalfLifeDays float64 `yaml:"confidenceDecayHalfLifeDays,omitempty" json:"confidenceDecayHalfLifeDays,omitempty"`

	Embedding   []float32 `yaml:"embedding,omitempty" json:"embedding,omitempty"`
	ContentHash string    `yaml:"contentHash,omitempty" json:"contentHash,omitempty"`
}

// Inactive reports whether the bullet is excluded from active views
// (spec.md §3 invariant 3). All three markers are expected to agree;
// Inactive is true if any one of them says so, so a caller who only
// just set one marker during a transition still sees the bullet as
// inactive immediately.
func (b *Bullet) Inactive() bool {
	return b.Maturity == MaturityDeprecated || b.State == StateRetired || b.Deprecated
}

// DeprecatedPattern is matched case-insensitively against candidate
// task text to surface warnings (spec.md §3, §4.G).
type DeprecatedPattern struct {
	Pattern     string `yaml:"pattern" json:"pattern"`
	Reason      string `yaml:"reason,omitempty" json:"reason,omitempty"`
	Replacement string `yaml:"replacement,omitempty" json:"replacement,omitempty"`
}

// Metadata carries playbook-level bookkeeping.
type Metadata struct {
	CreatedAt              time.Time  `yaml:"createdAt" json:"createdAt"`
	LastReflection         *time.Time `yaml:"lastReflection,omitempty" json:"lastReflection,omitempty"`
	TotalReflections       int        `yaml:"totalReflections" json:"totalReflections"`
	TotalSessionsProcessed int        `yaml:"totalSessionsProcessed" json:"totalSessionsProcessed"`
}

// SchemaVersion is the current on-disk schema version written by Save.
const SchemaVersion = 1

// Playbook is the aggregate root persisted per file (spec.md §3).
type Playbook struct {
	SchemaVersion      int                 `yaml:"schemaVersion" json:"schemaVersion"`
	Name               string              `yaml:"name" json:"name"`
	Description        string              `yaml:"description,omitempty" json:"description,omitempty"`
	Metadata           Metadata            `yaml:"metadata" json:"metadata"`
	DeprecatedPatterns []DeprecatedPattern `yaml:"deprecatedPatterns,omitempty" json:"deprecatedPatterns,omitempty"`
	Bullets            []*Bullet           `yaml:"bullets,omitempty" json:"bullets,omitempty"`
}

// Empty returns a freshly initialized, empty playbook (spec.md §4.D
// load semantics: missing or empty file yields an empty playbook).
func Empty(name string) *Playbook {
	return &Playbook{
		SchemaVersion: SchemaVersion,
		Name:          name,
		Metadata:      Metadata{CreatedAt: time.Now().UTC()},
	}
}

// ToxicEntry is one forgotten piece of content that must never be
// resurrected (spec.md §3 ancillary entities).
type ToxicEntry struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Reason     string    `json:"reason,omitempty"`
	ForgottenAt time.Time `json:"forgottenAt"`
}
