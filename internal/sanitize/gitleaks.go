package sanitize

import (
	"sort"
	"strings"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// GitleaksBackend runs the Gitleaks SDK's ~800-pattern default ruleset
// as an additional detector alongside the fixed rule list, for callers
// who opt into broader (but slower) secret coverage than spec.md
// §4.M's named pattern classes.
type GitleaksBackend struct {
	detector *detect.Detector
}

// NewGitleaksBackend constructs a backend using Gitleaks' default
// config. Returns an error only if the embedded default config fails
// to load, which does not happen with an unmodified Gitleaks release.
func NewGitleaksBackend() (*GitleaksBackend, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, err
	}
	return &GitleaksBackend{detector: d}, nil
}

// redactWithGitleaks replaces every Gitleaks finding in text with a
// "[REDACTED:<ruleID>:<preview>]" marker, same format as the fixed
// rule list, and reports each as a Redaction for the audit trail.
func (b *GitleaksBackend) redact(text string) (string, []Redaction) {
	findings := b.detector.DetectString(text)
	if len(findings) == 0 {
		return text, nil
	}

	// Replace back-to-front per line so earlier column offsets on the
	// same line stay valid as later ones are rewritten.
	sorted := make([]struct {
		line, start, end int
		ruleID, match     string
	}, len(findings))
	for i, f := range findings {
		sorted[i].line = f.StartLine
		sorted[i].start = f.StartColumn
		sorted[i].end = f.EndColumn
		sorted[i].ruleID = f.RuleID
		sorted[i].match = f.Secret
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].line != sorted[j].line {
			return sorted[i].line > sorted[j].line
		}
		return sorted[i].start > sorted[j].start
	})

	lines := strings.Split(text, "\n")
	var redactions []Redaction
	for _, f := range sorted {
		if f.line < 1 || f.line > len(lines) {
			continue
		}
		line := lines[f.line-1]
		if f.start < 0 || f.end > len(line) || f.start > f.end {
			continue
		}

		preview := f.match
		if len(preview) > 4 {
			preview = preview[:4]
		}
		marker := "[REDACTED:" + f.ruleID + ":" + preview + "]"
		lines[f.line-1] = line[:f.start] + marker + line[f.end:]
		redactions = append(redactions, Redaction{RuleID: f.ruleID, Preview: preview})
	}

	return strings.Join(lines, "\n"), redactions
}
