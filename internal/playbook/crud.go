package playbook

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/playbookd/internal/apperr"
)

// NewBulletData carries the caller-supplied fields for AddBullet; the
// rest of the Bullet's fields are defaulted per spec.md §3.
type NewBulletData struct {
	Content   string
	Category  string
	Kind      Kind
	Scope     Scope
	ScopeKey  string
	Workspace string
	Tags      []string
}

// AddBullet constructs a fresh bullet with defaults as specified in
// spec.md §3 ("Creation") and appends it to pb.
func AddBullet(pb *Playbook, data NewBulletData, sourceSession string, halfLifeDays float64) (*Bullet, error) {
	if data.Content == "" {
		return nil, apperr.New(apperr.CodeInvalidInput, "bullet content is required")
	}
	if data.Category == "" {
		return nil, apperr.New(apperr.CodeInvalidInput, "bullet category is required")
	}

	now := time.Now().UTC()
	bulletType := TypeRule
	isNegative := false
	if data.Kind == KindAntiPattern {
		bulletType = TypeAntiPattern
		isNegative = true
	}

	scope := data.Scope
	if scope == "" {
		scope = ScopeGlobal
	}

	b := &Bullet{
		ID:                          uuid.NewString(),
		Content:                     data.Content,
		Category:                   data.Category,
		Kind:                        data.Kind,
		Type:                        bulletType,
		IsNegative:                  isNegative,
		Scope:                       scope,
		ScopeKey:                    data.ScopeKey,
		Workspace:                   data.Workspace,
		State:                       StateDraft,
		Maturity:                    MaturityCandidate,
		Tags:                        data.Tags,
		CreatedAt:                   now,
		UpdatedAt:                   now,
		ConfidenceDecayHalfLifeDays: halfLifeDays,
	}
	if sourceSession != "" {
		b.SourceSessions = []string{sourceSession}
		b.SourceAgents = []string{DeriveSourceAgent(sourceSession)}
	}

	pb.Bullets = append(pb.Bullets, b)
	return b, nil
}

// FindBullet returns the bullet with the given id, or nil.
func FindBullet(pb *Playbook, id string) *Bullet {
	for _, b := range pb.Bullets {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// GetActiveBullets returns bullets that are not inactive (spec.md §8
// invariant 2).
func GetActiveBullets(pb *Playbook) []*Bullet {
	active := make([]*Bullet, 0, len(pb.Bullets))
	for _, b := range pb.Bullets {
		if !b.Inactive() {
			active = append(active, b)
		}
	}
	return active
}

// GetBulletsByCategory filters active bullets by case-insensitive
// category match.
func GetBulletsByCategory(pb *Playbook, category string) []*Bullet {
	target := strings.ToLower(category)
	var out []*Bullet
	for _, b := range GetActiveBullets(pb) {
		if strings.ToLower(b.Category) == target {
			out = append(out, b)
		}
	}
	return out
}

// FilterBulletsByScope filters active bullets to a scope, optionally
// requiring a matching scopeKey/workspace.
func FilterBulletsByScope(pb *Playbook, scope Scope, scopeKey string) []*Bullet {
	var out []*Bullet
	for _, b := range GetActiveBullets(pb) {
		if b.Scope != scope {
			continue
		}
		if scopeKey != "" && b.ScopeKey != scopeKey && b.Workspace != scopeKey {
			continue
		}
		out = append(out, b)
	}
	return out
}

// DeprecateBullet sets all three retirement markers in agreement
// (spec.md §3 invariant 3). Pinned bullets refuse deprecation unless
// force is explicitly requested via PinBullet/UnpinBullet first — see
// spec.md §3 invariant 4.
func DeprecateBullet(pb *Playbook, id, reason, replacedBy string) (bool, error) {
	b := FindBullet(pb, id)
	if b == nil {
		return false, apperr.NotFound("bullet", id)
	}
	if b.Pinned {
		return false, apperr.New(apperr.CodePolicyViolation, "cannot deprecate a pinned bullet").
			WithHint("unpin the bullet first")
	}

	now := time.Now().UTC()
	b.State = StateRetired
	b.Maturity = MaturityDeprecated
	b.Deprecated = true
	b.DeprecatedAt = &now
	b.DeprecationReason = reason
	if replacedBy != "" {
		b.ReplacedBy = replacedBy
	}
	b.UpdatedAt = now
	return true, nil
}

// PinBullet marks a bullet as exempt from auto-deprecation, auto-prune,
// and inversion.
func PinBullet(pb *Playbook, id, reason string) error {
	b := FindBullet(pb, id)
	if b == nil {
		return apperr.NotFound("bullet", id)
	}
	b.Pinned = true
	b.PinnedReason = reason
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// UnpinBullet clears a bullet's pinned state.
func UnpinBullet(pb *Playbook, id string) error {
	b := FindBullet(pb, id)
	if b == nil {
		return apperr.NotFound("bullet", id)
	}
	b.Pinned = false
	b.PinnedReason = ""
	b.UpdatedAt = time.Now().UTC()
	return nil
}
