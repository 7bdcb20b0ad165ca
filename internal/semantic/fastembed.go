package semantic

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

var modelMapping = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// fastEmbedHook embeds bullet/task text with a local ONNX model via
// fastembed-go, the same provider the teacher uses for its reasoning
// bank (internal/embeddings/fastembed.go).
type fastEmbedHook struct {
	model *fastembed.FlagEmbedding
	mu    sync.RWMutex
}

func newFastEmbedHook(cfg Config) (*fastEmbedHook, error) {
	model, ok := modelMapping[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("semantic: unsupported embedding model %q", cfg.Model)
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "local_cache")
	}
	showProgress := false

	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            512,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: initializing fastembed: %w", err)
	}

	return &fastEmbedHook{model: flagEmbed}, nil
}

// Embed embeds text, using the passage prefix for content being stored
// and the query prefix for search terms, as BGE-family models expect.
func (h *fastEmbedHook) Embed(ctx context.Context, text string, isQuery bool) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if text == "" {
		return nil, fmt.Errorf("semantic: empty text")
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if isQuery {
		return h.model.QueryEmbed(text)
	}
	vectors, err := h.model.PassageEmbed([]string{text}, 256)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("semantic: no vector returned")
	}
	return vectors[0], nil
}

var _ Hook = (*fastEmbedHook)(nil)
