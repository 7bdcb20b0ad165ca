package history

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCASSClient_Search_ParsesHits(t *testing.T) {
	c := NewCASSClient("cass", nil)
	hits := []cassSearchHit{{SourcePath: "a.json", LineNumber: 3, Agent: "claude", Snippet: "fixed the bug", Score: 0.9}}
	body, _ := json.Marshal(hits)

	c.runner = func(ctx context.Context, name string, args ...string) ([]byte, int, error) {
		return body, 0, nil
	}

	snippets, err := c.Search(context.Background(), "bug", SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Equal(t, "fixed the bug", snippets[0].Snippet)
}

func TestCASSClient_Search_RebuildsOnceOnMissingIndex(t *testing.T) {
	c := NewCASSClient("cass", nil)
	calls := 0
	okBody, _ := json.Marshal([]cassSearchHit{})

	c.runner = func(ctx context.Context, name string, args ...string) ([]byte, int, error) {
		calls++
		if calls == 1 {
			return nil, exitIndexMissing, nil
		}
		if args[0] == "index" {
			return nil, 0, nil
		}
		return okBody, 0, nil
	}

	_, err := c.Search(context.Background(), "q", SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, calls, "expected search, index rebuild, then retried search")
}

func TestCASSClient_Search_FailsSoftOnExecError(t *testing.T) {
	c := NewCASSClient("cass", nil)
	c.runner = func(ctx context.Context, name string, args ...string) ([]byte, int, error) {
		return nil, -1, assertError{}
	}

	_, err := c.Search(context.Background(), "q", SearchOptions{})
	require.Error(t, err)
	var unavailable *Unavailable
	assert.ErrorAs(t, err, &unavailable)
}

type assertError struct{}

func (assertError) Error() string { return "binary not found" }
