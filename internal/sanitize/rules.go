package sanitize

import "regexp"

// Rule is one secret-detection pattern.
type Rule struct {
	ID          string
	Description string
	Pattern     string
}

// DefaultRules is the fixed pattern list from spec.md §4.M: cloud
// keys, bearer/API tokens, PEM blocks, version-control tokens,
// messaging-service tokens, and database URLs with credentials.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "aws-access-key-id",
			Description: "AWS Access Key ID",
			Pattern:     `(?i)\b(A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}\b`,
		},
		{
			ID:          "aws-secret-access-key",
			Description: "AWS Secret Access Key",
			Pattern:     `(?i)\b(?:aws_secret_access_key|aws_secret_key)\s*[:=]\s*['"]?([A-Za-z0-9/+=]{40})['"]?`,
		},
		{
			ID:          "bearer-token",
			Description: "Bearer / API token",
			Pattern:     `(?i)\b(?:bearer|api[_-]?key|apikey|token)\s*[:=]?\s*['"]?([A-Za-z0-9_\-\.]{20,})['"]?`,
		},
		{
			ID:          "pem-block",
			Description: "PEM-encoded private key",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----[\s\S]*?-----END (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`,
		},
		{
			ID:          "github-token",
			Description: "GitHub personal/app access token",
			Pattern:     `\b(?:ghp|gho|ghu|ghs|github_pat)_[A-Za-z0-9_]{20,}\b`,
		},
		{
			ID:          "gitlab-token",
			Description: "GitLab personal access token",
			Pattern:     `\bglpat-[A-Za-z0-9\-]{20,}\b`,
		},
		{
			ID:          "slack-token",
			Description: "Slack bot/user/app token",
			Pattern:     `\bxox[baprs]-[A-Za-z0-9\-]{10,}\b`,
		},
		{
			ID:          "database-url",
			Description: "Database connection string with embedded credentials",
			Pattern:     `\b[a-zA-Z][a-zA-Z0-9+.\-]*://[^\s:@/]+:[^\s:@/]+@[^\s/]+`,
		},
	}
}

// reDoSGuard rejects extra patterns that are too long, or that contain
// a nested-quantifier shape of the kind that backtracking regex
// engines are catastrophically slow on (spec.md §4.M).
var nestedQuantifier = regexp.MustCompile(`\([^()]*[*+][^()]*\)[*+?]`)

func reDoSGuard(pattern string) bool {
	if len(pattern) > 256 {
		return false
	}
	return !nestedQuantifier.MatchString(pattern)
}
