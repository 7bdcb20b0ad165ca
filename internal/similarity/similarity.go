// Package similarity implements the content-hash, Jaccard, and cosine
// primitives from spec.md §4.C used by duplicate detection throughout
// the playbook store and curator.
package similarity

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
)

// stopWords is the fixed English stop-word list consulted by Jaccard.
// Kept intentionally short — the goal is coarse relevance, not NLP.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "day": {}, "get": {}, "has": {}, "him": {},
	"his": {}, "how": {}, "man": {}, "new": {}, "now": {}, "old": {},
	"see": {}, "two": {}, "way": {}, "who": {}, "boy": {}, "did": {},
	"its": {}, "let": {}, "put": {}, "say": {}, "she": {}, "too": {},
	"use": {}, "with": {}, "that": {}, "this": {}, "from": {}, "they": {},
	"have": {}, "will": {}, "your": {}, "about": {}, "into": {}, "than": {},
	"then": {}, "them": {}, "these": {}, "when": {}, "where": {}, "which": {},
	"should": {}, "could": {}, "would": {},
}

// normalize collapses s to a stable comparison form: lowercased,
// whitespace-collapsed.
func normalize(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	return strings.Join(fields, " ")
}

// HashContent returns a stable 16+ hex digit hash of a normalized form
// of s (spec.md §4.C, invariant 5 in §8).
func HashContent(s string) string {
	sum := sha256.Sum256([]byte(normalize(s)))
	return hex.EncodeToString(sum[:])[:16]
}

// tokenize splits s into lowercased ASCII word tokens of length >= 3,
// excluding stop words.
func tokenize(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, raw := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	}) {
		if len(raw) < 3 {
			continue
		}
		if _, stop := stopWords[raw]; stop {
			continue
		}
		set[raw] = struct{}{}
	}
	return set
}

// Keywords returns s's significant tokens (lowercased, length >= 3,
// stop words excluded) in first-seen order, deduplicated. Used by the
// context ranker and evidence gate to build history search queries.
func Keywords(s string) []string {
	seen := make(map[string]struct{})
	var kept []string
	for _, raw := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	}) {
		if len(raw) < 3 {
			continue
		}
		if _, stop := stopWords[raw]; stop {
			continue
		}
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		kept = append(kept, raw)
	}
	return kept
}

// Jaccard returns the token Jaccard similarity of a and b, in [0, 1].
func Jaccard(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}

	intersection := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			intersection++
		}
	}

	union := len(ta) + len(tb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Cosine returns the cosine similarity of u and v. Zero when either
// vector is empty or their lengths mismatch (spec.md §4.C).
func Cosine(u, v []float32) float64 {
	if len(u) == 0 || len(v) == 0 || len(u) != len(v) {
		return 0
	}

	var dot, magU, magV float64
	for i := range u {
		dot += float64(u[i]) * float64(v[i])
		magU += float64(u[i]) * float64(u[i])
		magV += float64(v[i]) * float64(v[i])
	}
	if magU == 0 || magV == 0 {
		return 0
	}
	return dot / (math.Sqrt(magU) * math.Sqrt(magV))
}

// Candidate is the minimal shape FindSimilarBullet needs from a bullet:
// its content and an insertion index for tie-breaking.
type Candidate struct {
	ID      string
	Content string
	Order   int
}

// Match is the best similarity hit found by FindSimilarBullet.
type Match struct {
	ID    string
	Score float64
}

// FindSimilarBullet scans candidates and returns the single
// highest-Jaccard match >= threshold, ties broken by insertion order
// (spec.md §4.C).
func FindSimilarBullet(candidates []Candidate, content string, threshold float64) (Match, bool) {
	best := Match{}
	found := false
	bestOrder := -1

	for _, c := range candidates {
		score := Jaccard(c.Content, content)
		if score < threshold {
			continue
		}
		if !found || score > best.Score || (score == best.Score && c.Order < bestOrder) {
			best = Match{ID: c.ID, Score: score}
			bestOrder = c.Order
			found = true
		}
	}

	return best, found
}
