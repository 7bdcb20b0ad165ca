// Package semantic implements the optional embedding hook referenced by
// spec.md §4.C's design note: similarity and ranking stay purely
// lexical (Jaccard/keyword overlap) unless an embedding provider is
// configured, in which case cosine similarity over real vectors
// supplements it. The hook is never required; every caller must
// degrade to zero-vector behavior when it is nil or returns no vector.
package semantic

import "context"

// Hook embeds a single piece of text into a vector. Implementations
// are expected to internally distinguish document vs. query embedding
// conventions (e.g. BGE's "passage: "/"query: " prefixes) via the
// isQuery flag.
type Hook interface {
	Embed(ctx context.Context, text string, isQuery bool) ([]float32, error)
}

// Config is the subset of spec.md §6's env/config surface relevant to
// the semantic hook: `semanticSearchEnabled` and `embeddingModel` (or
// the literal "none").
type Config struct {
	Enabled  bool
	Model    string
	CacheDir string
}

// Enabled reports whether cfg names a real model (unset or "none"
// disables the hook even if Config.Enabled is true, matching the
// config surface's documented sentinel).
func (c Config) enabled() bool {
	return c.Enabled && c.Model != "" && c.Model != "none"
}

// NewHook builds the configured embedding hook, or returns a nil Hook
// (not an error) when semantic search is disabled — callers treat a
// nil Hook exactly like one that always returns no vector.
func NewHook(cfg Config) (Hook, error) {
	if !cfg.enabled() {
		return nil, nil
	}
	return newFastEmbedHook(cfg)
}

// EmbedOrNil embeds text via hook, returning a nil vector (not an
// error) if hook is nil or the embed call fails — any consumer feeding
// the result into similarity.Cosine already falls back to 0 for absent
// vectors per spec.md §4.C.
func EmbedOrNil(ctx context.Context, hook Hook, text string, isQuery bool) []float32 {
	if hook == nil {
		return nil
	}
	vec, err := hook.Embed(ctx, text, isQuery)
	if err != nil {
		return nil
	}
	return vec
}
