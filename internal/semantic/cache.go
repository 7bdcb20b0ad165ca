package semantic

import (
	"context"
	"fmt"
	"os"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/playbookd/internal/lock"
)

const collectionName = "playbookd_bullets"

// Cache is the optional, persistent embedding store from spec.md §6's
// `embeddings/bullets.json` on-disk layout entry — backed by
// chromem-go's embedded vector database rather than a hand-rolled JSON
// map, the way the teacher's internal/vectorstore wraps it for its
// reasoning bank.
type Cache struct {
	db     *chromem.DB
	hook   Hook
	path   string
	logger *zap.Logger
}

// OpenCache opens (creating if absent) the persistent embedding cache
// at path. A nil hook is valid: Upsert/Query become no-ops, matching
// every other semantic-hook consumer's nil-safety contract.
func OpenCache(path string, hook Hook, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("semantic: creating cache dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("semantic: opening chromem db: %w", err)
	}
	return &Cache{db: db, hook: hook, path: path, logger: logger}, nil
}

func (c *Cache) embedFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		if c.hook == nil {
			return nil, fmt.Errorf("semantic: no embedding hook configured")
		}
		return c.hook.Embed(ctx, text, false)
	}
}

// Upsert stores (or replaces) the embedding for a bullet, under the
// cache's lock file so concurrent reflection runs don't interleave
// writes to the same persisted directory (spec.md §5).
func (c *Cache) Upsert(ctx context.Context, bulletID, content string) error {
	if c.hook == nil {
		return nil
	}
	_, err := lock.WithLock(ctx, c.path+".lock", func(ctx context.Context) (struct{}, error) {
		collection, err := c.db.GetOrCreateCollection(collectionName, nil, c.embedFunc())
		if err != nil {
			return struct{}{}, err
		}
		docs := []chromem.Document{{ID: bulletID, Content: content}}
		return struct{}{}, collection.AddDocuments(ctx, docs, 1)
	})
	return err
}

// Match is one nearest-neighbor hit from Query.
type Match struct {
	BulletID   string
	Similarity float64
}

// Query returns the topK bullets whose cached embeddings are closest
// to queryText. A nil hook (or an empty/uninitialized collection)
// yields an empty result, not an error.
func (c *Cache) Query(ctx context.Context, queryText string, topK int) ([]Match, error) {
	if c.hook == nil {
		return nil, nil
	}
	collection := c.db.GetCollection(collectionName, c.embedFunc())
	if collection == nil {
		return nil, nil
	}

	results, err := collection.Query(ctx, queryText, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("semantic: query: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{BulletID: r.ID, Similarity: float64(r.Similarity)})
	}
	return matches, nil
}
