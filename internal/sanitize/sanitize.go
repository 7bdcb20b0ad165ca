// Package sanitize implements the Sanitizer from spec.md §4.M: every
// piece of external text entering the system (session exports,
// user-supplied notes, historical snippets) passes through a
// pattern-driven redactor before it is persisted, embedded in a
// prompt, or shown.
package sanitize

import (
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// AuditLevel controls how much detail the audit log carries.
type AuditLevel string

const (
	AuditLevelInfo  AuditLevel = "info"
	AuditLevelDebug AuditLevel = "debug"
)

// Config is the sanitizer's recognized configuration options
// (spec.md §4.M).
type Config struct {
	Enabled       bool
	ExtraPatterns []string
	AuditLog      bool
	AuditLevel    AuditLevel

	// UseGitleaks additionally runs the Gitleaks SDK's default
	// ruleset (~800 patterns) alongside the fixed rule list above.
	// Off by default: the fixed rules cover spec.md §4.M's named
	// classes at a fraction of the scan cost.
	UseGitleaks bool
}

// DefaultConfig enables sanitization with no extra patterns.
func DefaultConfig() Config {
	return Config{Enabled: true, AuditLevel: AuditLevelInfo}
}

type compiledRule struct {
	Rule
	pattern *regexp.Regexp
}

// Sanitizer redacts secrets from text using the fixed rule list plus
// any valid extra patterns from Config.
type Sanitizer struct {
	cfg      Config
	rules    []compiledRule
	skipped  []string
	gitleaks *GitleaksBackend
	logger   *zap.Logger
}

// New compiles the fixed rule list and any extra patterns that pass
// the ReDoS guard, skipping (and logging) any that don't. When
// cfg.UseGitleaks is set, it also loads the Gitleaks default ruleset;
// a load failure is logged and Gitleaks scanning is simply skipped,
// since the fixed rule list still provides baseline coverage.
func New(cfg Config, logger *zap.Logger) *Sanitizer {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Sanitizer{cfg: cfg, logger: logger}

	for _, r := range DefaultRules() {
		s.rules = append(s.rules, compiledRule{Rule: r, pattern: regexp.MustCompile(r.Pattern)})
	}

	for i, p := range cfg.ExtraPatterns {
		id := fmt.Sprintf("extra-%d", i)
		if !reDoSGuard(p) {
			s.skipped = append(s.skipped, p)
			logger.Warn("sanitize: rejected extra pattern (ReDoS guard)", zap.String("pattern", p))
			continue
		}
		compiled, err := regexp.Compile(p)
		if err != nil {
			s.skipped = append(s.skipped, p)
			logger.Warn("sanitize: rejected extra pattern (invalid regex)", zap.String("pattern", p), zap.Error(err))
			continue
		}
		s.rules = append(s.rules, compiledRule{Rule: Rule{ID: id, Description: "extra pattern", Pattern: p}, pattern: compiled})
	}

	if cfg.UseGitleaks {
		backend, err := NewGitleaksBackend()
		if err != nil {
			logger.Warn("sanitize: gitleaks backend unavailable, continuing with fixed rules only", zap.Error(err))
		} else {
			s.gitleaks = backend
		}
	}

	return s
}

// Redaction is one match the sanitizer replaced.
type Redaction struct {
	RuleID  string
	Preview string
}

// AuditEntry records one Redact call's findings, for callers with
// AuditLog enabled.
type AuditEntry struct {
	Timestamp  time.Time
	Redactions []Redaction
}

// Redact returns text with every secret match replaced by
// "[REDACTED:<ruleID>:<preview>]", preserving surrounding context for
// embeddings while hiding the actual value. A disabled sanitizer
// returns text unchanged. Redact is idempotent: redaction markers do
// not themselves match any rule, so re-applying Redact to its own
// output is a no-op.
func (s *Sanitizer) Redact(text string) string {
	redacted, _ := s.RedactWithAudit(text)
	return redacted
}

// RedactWithAudit behaves like Redact but also returns the audit trail
// (spec.md §4.M's `auditLog`/`auditLevel` options).
func (s *Sanitizer) RedactWithAudit(text string) (string, AuditEntry) {
	entry := AuditEntry{Timestamp: now()}
	if !s.cfg.Enabled {
		return text, entry
	}

	out := text
	for _, r := range s.rules {
		out = r.pattern.ReplaceAllStringFunc(out, func(match string) string {
			preview := match
			if len(preview) > 4 {
				preview = preview[:4]
			}
			if s.cfg.AuditLog {
				entry.Redactions = append(entry.Redactions, Redaction{RuleID: r.ID, Preview: preview})
			}
			return fmt.Sprintf("[REDACTED:%s:%s]", r.ID, preview)
		})
	}

	if s.gitleaks != nil {
		var gitleaksRedactions []Redaction
		out, gitleaksRedactions = s.gitleaks.redact(out)
		if s.cfg.AuditLog {
			entry.Redactions = append(entry.Redactions, gitleaksRedactions...)
		}
	}

	return out, entry
}

// SkippedPatterns returns the extra patterns rejected at construction
// time, for diagnostics.
func (s *Sanitizer) SkippedPatterns() []string {
	return s.skipped
}

var now = func() time.Time { return time.Now().UTC() }
